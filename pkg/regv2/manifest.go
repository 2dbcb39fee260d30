// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/opencontainers/go-digest"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// Docker media types not covered by the OCI image-spec constants.
const (
	// MediaTypeDockerManifest is the Docker image manifest v2 schema 2 type.
	MediaTypeDockerManifest = "application/vnd.docker.distribution.manifest.v2+json"
	// MediaTypeDockerManifestList is the Docker manifest list type.
	MediaTypeDockerManifestList = "application/vnd.docker.distribution.manifest.list.v2+json"
	// MediaTypeDockerSchema1 is the legacy schema 1 manifest type.
	MediaTypeDockerSchema1 = "application/vnd.docker.distribution.manifest.v1+json"
	// MediaTypeDockerSchema1Signed is the JWS-signed schema 1 variant.
	MediaTypeDockerSchema1Signed = "application/vnd.docker.distribution.manifest.v1+prettyjws"
)

// DefaultManifestTypes returns the manifest media types offered in the
// Accept header so the registry can pick its native representation. The
// set is configuration, not a protocol constant; override it with
// WithAcceptedManifestTypes.
func DefaultManifestTypes() []string {
	return []string{
		ocispec.MediaTypeImageManifest,
		ocispec.MediaTypeImageIndex,
		MediaTypeDockerManifest,
		MediaTypeDockerManifestList,
		MediaTypeDockerSchema1Signed,
		MediaTypeDockerSchema1,
	}
}

// ManifestKind is the parsed shape of a manifest body.
type ManifestKind int

const (
	// KindImage is a single-platform image manifest (Docker schema 2 or
	// OCI image manifest): one config blob plus ordered layers.
	KindImage ManifestKind = iota
	// KindIndex is a multi-platform manifest list (Docker manifest list
	// or OCI image index).
	KindIndex
	// KindSchema1 is the legacy Docker schema 1 manifest.
	KindSchema1
)

func (k ManifestKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindIndex:
		return "index"
	case KindSchema1:
		return "schema1"
	default:
		return "unknown"
	}
}

// Manifest is a fetched, digest-verified manifest. Raw holds the exact
// body bytes whose digest is Digest; the parsed view depends on Kind.
type Manifest struct {
	MediaType string
	Digest    digest.Digest
	Raw       []byte
	Kind      ManifestKind

	// Config and Layers are set for KindImage.
	Config ocispec.Descriptor
	Layers []ocispec.Descriptor

	// Manifests is set for KindIndex, one entry per platform, in
	// response order.
	Manifests []ocispec.Descriptor

	// Schema1 is set for KindSchema1.
	Schema1 *Schema1Manifest
}

// Schema1Manifest is the parsed view of a legacy schema 1 body. Layer
// blob digests are in fsLayers order (most-recent first, as the registry
// returns them).
type Schema1Manifest struct {
	Name         string
	Tag          string
	Architecture string
	FSLayers     []digest.Digest
}

type schema1Body struct {
	SchemaVersion int    `json:"schemaVersion"`
	Name          string `json:"name"`
	Tag           string `json:"tag"`
	Architecture  string `json:"architecture"`
	FSLayers      []struct {
		BlobSum string `json:"blobSum"`
	} `json:"fsLayers"`
}

// SelectPlatform returns the child digest for the given os/architecture
// pair of a KindIndex manifest.
func (m *Manifest) SelectPlatform(os, arch string) (ocispec.Descriptor, bool) {
	for _, d := range m.Manifests {
		if d.Platform != nil && d.Platform.OS == os && d.Platform.Architecture == arch {
			return d, true
		}
	}
	return ocispec.Descriptor{}, false
}

// maxManifestSize bounds manifest bodies. The distribution spec suggests
// 4 MiB as a conservative ceiling.
const maxManifestSize = 4 << 20

// GetManifest fetches the manifest for reference (a tag name or an
// algorithm:hex digest) from repo and verifies it before returning.
//
// The body digest is always computed; when reference is itself a digest a
// mismatch is ErrDigestMismatch, never a parsed result. The body is
// parsed according to the media type the response declares, not by
// sniffing its shape; an undeclared or unrecognized type is
// ErrUnsupportedManifestType.
//
// For a KindIndex result, callers chase a child by calling GetManifest
// again with the child digest, which reuses the same verification path.
func (c *Client) GetManifest(ctx context.Context, repo, reference string) (*Manifest, error) {
	var wantDigest digest.Digest
	if strings.Contains(reference, ":") {
		d, err := ParseDigest(reference)
		if err != nil {
			return nil, err
		}
		wantDigest = d
	}

	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.manifestURL(repo, reference), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", strings.Join(c.accept, ", "))
		req.Header.Set("Accept-Encoding", acceptEncoding)
		return req, nil
	}
	resp, err := c.roundTrip(ctx, newReq, operation{
		notFound:  NotFoundManifest,
		repo:      repo,
		reference: reference,
		scope:     pullScope(repo),
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := decodeBody(resp)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(io.LimitReader(body, maxManifestSize+1))
	if err != nil {
		return nil, fmt.Errorf("read manifest %s/%s: %w", repo, reference, err)
	}
	if len(raw) > maxManifestSize {
		return nil, fmt.Errorf("manifest %s/%s exceeds %d bytes", repo, reference, maxManifestSize)
	}

	got := DigestBytes(raw)
	if wantDigest != "" && got != wantDigest {
		return nil, fmt.Errorf("%w: manifest %s/%s: body is %s", ErrDigestMismatch, repo, reference, got)
	}
	// Registries echo the canonical digest in Docker-Content-Digest;
	// when present it must agree with what we computed.
	if hdr := resp.Header.Get("Docker-Content-Digest"); hdr != "" {
		hd, err := ParseDigest(hdr)
		if err == nil && hd.Algorithm() == got.Algorithm() && hd != got {
			return nil, fmt.Errorf("%w: manifest %s/%s: header says %s, body is %s", ErrDigestMismatch, repo, reference, hd, got)
		}
	}

	mediaType := resp.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(mediaType); err == nil {
		mediaType = mt
	}
	m := &Manifest{
		MediaType: mediaType,
		Digest:    got,
		Raw:       raw,
	}
	switch mediaType {
	case ocispec.MediaTypeImageManifest, MediaTypeDockerManifest:
		var body ocispec.Manifest
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("unmarshal manifest %s/%s: %w", repo, reference, err)
		}
		m.Kind = KindImage
		m.Config = body.Config
		m.Layers = body.Layers
	case ocispec.MediaTypeImageIndex, MediaTypeDockerManifestList:
		var body ocispec.Index
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("unmarshal index %s/%s: %w", repo, reference, err)
		}
		m.Kind = KindIndex
		m.Manifests = body.Manifests
	case MediaTypeDockerSchema1, MediaTypeDockerSchema1Signed:
		var body schema1Body
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("unmarshal schema1 manifest %s/%s: %w", repo, reference, err)
		}
		s1 := &Schema1Manifest{
			Name:         body.Name,
			Tag:          body.Tag,
			Architecture: body.Architecture,
		}
		for _, l := range body.FSLayers {
			d, err := ParseDigest(l.BlobSum)
			if err != nil {
				return nil, fmt.Errorf("schema1 manifest %s/%s: %w", repo, reference, err)
			}
			s1.FSLayers = append(s1.FSLayers, d)
		}
		m.Kind = KindSchema1
		m.Schema1 = s1
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedManifestType, mediaType)
	}
	return m, nil
}

// HasManifest reports whether repo has a manifest for reference, using a
// HEAD request.
func (c *Client) HasManifest(ctx context.Context, repo, reference string) (bool, error) {
	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.manifestURL(repo, reference), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", strings.Join(c.accept, ", "))
		return req, nil
	}
	resp, err := c.roundTrip(ctx, newReq, operation{
		notFound:  NotFoundManifest,
		repo:      repo,
		reference: reference,
		scope:     pullScope(repo),
	})
	if err != nil {
		var nf *NotFoundError
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	resp.Body.Close()
	return true, nil
}
