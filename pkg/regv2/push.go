// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/opencontainers/go-digest"
)

// PushBlob uploads a blob to repo: it initiates an upload session and
// completes it with a single PUT, hashing the stream on the way out. The
// caller-supplied digest names the content; if the streamed bytes hash to
// anything else the push fails with ErrDigestMismatch (the registry will
// have rejected it too). size must be the exact byte count of r, or -1 if
// unknown.
//
// Authentication is negotiated on the session initiation, which carries
// no body and so can be retried; the data-carrying PUT itself is not
// replayable after a credential refresh.
func (c *Client) PushBlob(ctx context.Context, repo, dgst string, size int64, r io.Reader) error {
	want, err := ParseDigest(dgst)
	if err != nil {
		return err
	}
	op := operation{
		notFound:  NotFoundRepository,
		repo:      repo,
		reference: want.String(),
		scope:     pushScope(repo),
	}

	newInit := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL()+"/v2/"+repo+"/blobs/uploads/", nil)
	}
	resp, err := c.roundTrip(ctx, newInit, op)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	location := resp.Header.Get("Location")
	if location == "" {
		return fmt.Errorf("push blob %s: registry returned no upload location", want)
	}
	u, err := c.resolveLink(location)
	if err != nil {
		return fmt.Errorf("push blob %s: bad upload location %q: %w", want, location, err)
	}
	q := u.Query()
	q.Set("digest", want.String())
	u.RawQuery = q.Encode()

	digester := digest.Canonical.Digester()
	body := io.TeeReader(r, digester.Hash())
	used := false
	newPut := func(ctx context.Context) (*http.Request, error) {
		if used {
			return nil, errors.New("blob upload stream cannot be replayed after a credential refresh")
		}
		used = true
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, u.String(), body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/octet-stream")
		if size >= 0 {
			req.ContentLength = size
		}
		return req, nil
	}
	resp, err = c.roundTrip(ctx, newPut, op)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if got := digester.Digest(); got != want {
		return fmt.Errorf("%w: pushed content of %s hashed to %s", ErrDigestMismatch, want, got)
	}
	if hdr := resp.Header.Get("Docker-Content-Digest"); hdr != "" && hdr != want.String() {
		return fmt.Errorf("%w: registry stored %s as %s", ErrDigestMismatch, want, hdr)
	}
	return nil
}

// PushManifest uploads a manifest body under reference (tag or digest)
// and returns the digest the content addresses. The registry's reported
// digest must agree with the locally computed one.
func (c *Client) PushManifest(ctx context.Context, repo, reference, mediaType string, body []byte) (digest.Digest, error) {
	want := DigestBytes(body)
	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.manifestURL(repo, reference), bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mediaType)
		return req, nil
	}
	resp, err := c.roundTrip(ctx, newReq, operation{
		notFound:  NotFoundRepository,
		repo:      repo,
		reference: reference,
		scope:     pushScope(repo),
	})
	if err != nil {
		return "", err
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	if hdr := resp.Header.Get("Docker-Content-Digest"); hdr != "" && hdr != want.String() {
		return "", fmt.Errorf("%w: registry stored manifest %s/%s as %s, body is %s", ErrDigestMismatch, repo, reference, hdr, want)
	}
	return want, nil
}
