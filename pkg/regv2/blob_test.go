// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func blobServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return newTestClient(t, srv)
}

func TestGetBlobVerifiedDrain(t *testing.T) {
	content := []byte("layer bytes, totally legitimate")
	dgst := DigestBytes(content)

	c := blobServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/foo/blobs/"+dgst.String() {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Header().Set("Docker-Content-Digest", dgst.String())
		w.Write(content)
	})

	br, err := c.GetBlob(context.Background(), "foo", dgst.String())
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	defer br.Close()

	if br.Size() != int64(len(content)) {
		t.Errorf("Size = %d, want %d", br.Size(), len(content))
	}
	got, err := io.ReadAll(br)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("content mismatch")
	}
	// A drained stream stays terminal.
	if _, err := br.Read(make([]byte, 1)); err != io.EOF {
		t.Errorf("read after drain = %v, want io.EOF", err)
	}
}

func TestGetBlobCorruptContent(t *testing.T) {
	content := []byte("expected content")
	dgst := DigestBytes(content)

	c := blobServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("tampered content!"))
	})

	br, err := c.GetBlob(context.Background(), "foo", dgst.String())
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	defer br.Close()

	_, err = io.ReadAll(br)
	if !errors.Is(err, ErrDigestMismatch) {
		t.Fatalf("drain error = %v, want ErrDigestMismatch", err)
	}
}

func TestGetBlobTruncated(t *testing.T) {
	content := []byte("the full expected blob content")
	dgst := DigestBytes(content)

	c := blobServer(t, func(w http.ResponseWriter, r *http.Request) {
		// Promise more bytes than we deliver.
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		w.Write(content[:10])
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		// Abort the connection so the short body is observable.
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, err := hj.Hijack()
			if err == nil {
				conn.Close()
			}
		}
	})

	br, err := c.GetBlob(context.Background(), "foo", dgst.String())
	if err != nil {
		t.Fatalf("GetBlob: %v", err)
	}
	defer br.Close()

	_, err = io.ReadAll(br)
	if !errors.Is(err, ErrTruncatedBlob) {
		t.Fatalf("drain error = %v, want ErrTruncatedBlob", err)
	}
}

func TestGetBlobRejectsMalformedDigest(t *testing.T) {
	c := blobServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request reached the server for a malformed digest")
	})
	if _, err := c.GetBlob(context.Background(), "foo", "sha256:nope"); !errors.Is(err, ErrMalformedDigest) {
		t.Fatalf("error = %v, want ErrMalformedDigest", err)
	}
}

func TestGetBlobNotFound(t *testing.T) {
	content := []byte("x")
	dgst := DigestBytes(content)
	c := blobServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	_, err := c.GetBlob(context.Background(), "foo", dgst.String())
	var nf *NotFoundError
	if !errors.As(err, &nf) || nf.Kind != NotFoundBlob {
		t.Fatalf("error = %v, want blob NotFoundError", err)
	}
}

func TestGetBlobCompressedResponses(t *testing.T) {
	content := []byte("compressible blob content content content content")
	dgst := DigestBytes(content)

	encode := map[string]func(t *testing.T) []byte{
		"gzip": func(t *testing.T) []byte {
			var buf bytes.Buffer
			gw := gzip.NewWriter(&buf)
			gw.Write(content)
			gw.Close()
			return buf.Bytes()
		},
		"zstd": func(t *testing.T) []byte {
			var buf bytes.Buffer
			zw, err := zstd.NewWriter(&buf)
			if err != nil {
				t.Fatalf("zstd writer: %v", err)
			}
			zw.Write(content)
			zw.Close()
			return buf.Bytes()
		},
	}

	for encoding, enc := range encode {
		t.Run(encoding, func(t *testing.T) {
			wire := enc(t)
			c := blobServer(t, func(w http.ResponseWriter, r *http.Request) {
				if !bytes.Contains([]byte(r.Header.Get("Accept-Encoding")), []byte(encoding)) {
					t.Errorf("client did not offer %s", encoding)
				}
				w.Header().Set("Content-Encoding", encoding)
				w.Write(wire)
			})

			br, err := c.GetBlob(context.Background(), "foo", dgst.String())
			if err != nil {
				t.Fatalf("GetBlob: %v", err)
			}
			defer br.Close()

			got, err := io.ReadAll(br)
			if err != nil {
				t.Fatalf("drain: %v", err)
			}
			if !bytes.Equal(got, content) {
				t.Error("decoded content mismatch")
			}
			// No Content-Length check applies to encoded responses.
			if br.Size() != -1 {
				t.Errorf("Size = %d, want -1 for encoded response", br.Size())
			}
		})
	}
}

func TestHasBlob(t *testing.T) {
	content := []byte("present blob")
	dgst := DigestBytes(content)

	c := blobServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s, want HEAD", r.Method)
		}
		if r.URL.Path == "/v2/foo/blobs/"+dgst.String() {
			w.Header().Set("Content-Length", strconv.Itoa(len(content)))
			w.WriteHeader(http.StatusOK)
			return
		}
		http.NotFound(w, r)
	})

	if ok, err := c.HasBlob(context.Background(), "foo", dgst.String()); err != nil || !ok {
		t.Errorf("HasBlob(present) = %v, %v", ok, err)
	}
	absent := DigestBytes([]byte("absent"))
	if ok, err := c.HasBlob(context.Background(), "foo", absent.String()); err != nil || ok {
		t.Errorf("HasBlob(absent) = %v, %v", ok, err)
	}
}
