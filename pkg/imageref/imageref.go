// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package imageref parses human-written image references into their
// registry domain, repository path, and tag or digest parts, following
// Docker Hub naming conventions.
package imageref

import (
	"fmt"
	"strings"
)

// Ref is a parsed image reference. Exactly one of Tag and Digest is set;
// Tag defaults to "latest" when the reference names neither.
type Ref struct {
	Domain string // registry host, e.g. "docker.io" or "localhost:5000"
	Path   string // repository path, e.g. "library/nginx"
	Tag    string
	Digest string // algorithm:hex, set for name@digest references
}

// Reference reports the tag or digest to fetch by.
func (r Ref) Reference() string {
	if r.Digest != "" {
		return r.Digest
	}
	return r.Tag
}

func (r Ref) String() string {
	if r.Digest != "" {
		return r.Domain + "/" + r.Path + "@" + r.Digest
	}
	return r.Domain + "/" + r.Path + ":" + r.Tag
}

// Parse parses an image reference in the form
// [domain/]path[:tag][@digest].
//
// Examples:
//   - "nginx" -> docker.io / library/nginx : latest
//   - "user/app:v1" -> docker.io / user/app : v1
//   - "registry.example.com/app@sha256:..." -> registry.example.com / app @ sha256:...
func Parse(s string) (Ref, error) {
	if s == "" {
		return Ref{}, fmt.Errorf("empty image reference")
	}
	var ref Ref

	if name, dgst, ok := strings.Cut(s, "@"); ok {
		if dgst == "" {
			return Ref{}, fmt.Errorf("invalid image reference %q: empty digest", s)
		}
		ref.Digest = dgst
		s = name
	}

	// A colon after the last slash is a tag separator; earlier colons
	// belong to the domain's port.
	if i := strings.LastIndex(s, ":"); i >= 0 && !strings.Contains(s[i:], "/") {
		tag := s[i+1:]
		if tag == "" {
			return Ref{}, fmt.Errorf("invalid image reference %q: empty tag", s)
		}
		ref.Tag = tag
		s = s[:i]
	}
	if ref.Tag == "" && ref.Digest == "" {
		ref.Tag = "latest"
	}
	if ref.Tag != "" && ref.Digest != "" {
		// name:tag@digest is accepted, the digest wins for fetching
		ref.Tag = ""
	}

	ref.Domain, ref.Path = splitDomain(s)
	if ref.Path == "" {
		return Ref{}, fmt.Errorf("invalid image reference %q: empty repository", s)
	}
	return ref, nil
}

// splitDomain separates the registry domain from the repository path,
// handling Docker Hub conventions: a first segment without a dot or port
// colon is part of the path, and single-segment Hub paths get the
// "library/" prefix.
func splitDomain(repo string) (domain, path string) {
	domain, path, _ = strings.Cut(repo, "/")
	if path == "" {
		domain, path = "docker.io", domain
	}
	if !strings.Contains(domain, ".") && !strings.Contains(domain, ":") && domain != "localhost" {
		domain, path = "docker.io", repo
	}
	if domain == "docker.io" && !strings.Contains(path, "/") {
		path = "library/" + path
	}
	return domain, path
}

// RegistryHost maps a reference domain to the host the client should
// connect to. docker.io is an alias for the actual registry endpoint.
func RegistryHost(domain string) string {
	if domain == "docker.io" || domain == "index.docker.io" {
		return "registry-1.docker.io"
	}
	return domain
}
