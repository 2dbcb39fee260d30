// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package imageref

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParse(t *testing.T) {
	const dgst = "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	tests := []struct {
		in      string
		want    Ref
		wantErr bool
	}{
		{
			in:   "nginx",
			want: Ref{Domain: "docker.io", Path: "library/nginx", Tag: "latest"},
		},
		{
			in:   "nginx:1.27",
			want: Ref{Domain: "docker.io", Path: "library/nginx", Tag: "1.27"},
		},
		{
			in:   "user/app",
			want: Ref{Domain: "docker.io", Path: "user/app", Tag: "latest"},
		},
		{
			in:   "registry.example.com/app:v1",
			want: Ref{Domain: "registry.example.com", Path: "app", Tag: "v1"},
		},
		{
			in:   "localhost:5000/app",
			want: Ref{Domain: "localhost:5000", Path: "app", Tag: "latest"},
		},
		{
			in:   "localhost/app",
			want: Ref{Domain: "localhost", Path: "app", Tag: "latest"},
		},
		{
			in:   "ghcr.io/owner/repo/sub:edge",
			want: Ref{Domain: "ghcr.io", Path: "owner/repo/sub", Tag: "edge"},
		},
		{
			in:   "alpine@" + dgst,
			want: Ref{Domain: "docker.io", Path: "library/alpine", Digest: dgst},
		},
		{
			// The digest wins when both are present.
			in:   "alpine:3.20@" + dgst,
			want: Ref{Domain: "docker.io", Path: "library/alpine", Digest: dgst},
		},
		{in: "", wantErr: true},
		{in: "nginx:", wantErr: true},
		{in: "nginx@", wantErr: true},
		{in: "localhost:5000/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Parse(%q) = %+v, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.in, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.in, diff)
			}
		})
	}
}

func TestReference(t *testing.T) {
	if got := (Ref{Tag: "v1"}).Reference(); got != "v1" {
		t.Errorf("Reference() = %q, want v1", got)
	}
	const dgst = "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := (Ref{Tag: "", Digest: dgst}).Reference(); got != dgst {
		t.Errorf("Reference() = %q, want digest", got)
	}
}

func TestString(t *testing.T) {
	in := "ghcr.io/owner/repo:v2"
	ref, err := Parse(in)
	if err != nil {
		t.Fatal(err)
	}
	if got := ref.String(); got != in {
		t.Errorf("String() = %q, want %q", got, in)
	}
}

func TestRegistryHost(t *testing.T) {
	tests := []struct {
		domain, want string
	}{
		{"docker.io", "registry-1.docker.io"},
		{"index.docker.io", "registry-1.docker.io"},
		{"ghcr.io", "ghcr.io"},
		{"localhost:5000", "localhost:5000"},
	}
	for _, tt := range tests {
		if got := RegistryHost(tt.domain); got != tt.want {
			t.Errorf("RegistryHost(%q) = %q, want %q", tt.domain, got, tt.want)
		}
	}
}
