// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// newTestClient points a client at an httptest registry.
func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	host := strings.TrimPrefix(srv.URL, "http://")
	opts = append([]Option{WithPlainHTTP(true), WithHTTPClient(srv.Client())}, opts...)
	return New(host, opts...)
}

// testManifest builds an OCI image manifest body and its digest.
func testManifest(t *testing.T) (body []byte, dgst string) {
	t.Helper()
	m := ocispec.Manifest{
		MediaType: ocispec.MediaTypeImageManifest,
		Config: ocispec.Descriptor{
			MediaType: ocispec.MediaTypeImageConfig,
			Digest:    DigestBytes([]byte("config")),
			Size:      6,
		},
		Layers: []ocispec.Descriptor{
			{
				MediaType: ocispec.MediaTypeImageLayerGzip,
				Digest:    DigestBytes([]byte("layer0")),
				Size:      6,
			},
		},
	}
	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal manifest: %v", err)
	}
	return raw, DigestBytes(raw).String()
}

func serveManifest(w http.ResponseWriter, body []byte, mediaType string) {
	w.Header().Set("Content-Type", mediaType)
	w.Header().Set("Docker-Content-Digest", DigestBytes(body).String())
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func TestPing(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		version string
		want    bool
	}{
		{
			name:    "supported",
			status:  http.StatusOK,
			version: "registry/2.0",
			want:    true,
		},
		{
			name:    "supported behind auth",
			status:  http.StatusUnauthorized,
			version: "registry/2.0",
			want:    true,
		},
		{
			name:   "no version header",
			status: http.StatusOK,
			want:   false,
		},
		{
			name:    "server error",
			status:  http.StatusBadGateway,
			version: "registry/2.0",
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v2/" {
					http.NotFound(w, r)
					return
				}
				if tt.version != "" {
					w.Header().Set("Docker-Distribution-API-Version", tt.version)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			ok, err := newTestClient(t, srv).Ping(context.Background())
			if err != nil {
				t.Fatalf("Ping: %v", err)
			}
			if ok != tt.want {
				t.Errorf("Ping = %v, want %v", ok, tt.want)
			}
		})
	}
}

func TestStatusMapping(t *testing.T) {
	_, dgst := testManifest(t)

	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "404 is manifest NotFoundError",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				var nf *NotFoundError
				if !errors.As(err, &nf) {
					t.Fatalf("error = %v, want NotFoundError", err)
				}
				if nf.Kind != NotFoundManifest || nf.Repo != "foo/bar" {
					t.Errorf("NotFoundError = %+v", nf)
				}
			},
		},
		{
			name:   "429 is transient",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				var te *TransientError
				if !errors.As(err, &te) || te.Status != http.StatusTooManyRequests {
					t.Fatalf("error = %v, want TransientError 429", err)
				}
			},
		},
		{
			name:   "503 is transient",
			status: http.StatusServiceUnavailable,
			check: func(t *testing.T, err error) {
				var te *TransientError
				if !errors.As(err, &te) || te.Status != http.StatusServiceUnavailable {
					t.Fatalf("error = %v, want TransientError 503", err)
				}
			},
		},
		{
			name:   "403 carries the decoded OCI error body",
			status: http.StatusForbidden,
			body:   `{"errors":[{"code":"DENIED","message":"pull access denied"}]}`,
			check: func(t *testing.T, err error) {
				var re *RegistryError
				if !errors.As(err, &re) {
					t.Fatalf("error = %v, want RegistryError", err)
				}
				if re.Status != http.StatusForbidden || len(re.Errors) != 1 || re.Errors[0].Code != ErrCodeDenied {
					t.Errorf("RegistryError = %+v", re)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).GetManifest(context.Background(), "foo/bar", dgst)
			if err == nil {
				t.Fatal("GetManifest succeeded, want error")
			}
			tt.check(t, err)
		})
	}
}

func TestLogin(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="registry"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if user != "alice" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	if err := newTestClient(t, srv, WithCredentials("alice", "secret")).Login(context.Background()); err != nil {
		t.Fatalf("Login: %v", err)
	}

	err := newTestClient(t, srv, WithCredentials("alice", "wrong")).Login(context.Background())
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("Login with bad password: error = %v, want ErrAuthenticationFailed", err)
	}
}
