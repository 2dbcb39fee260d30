// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/opencontainers/go-digest"
)

// BlobReader streams one blob while hashing it. It is single-pass and not
// restartable; fetch the blob again to restart.
//
// Integrity is only guaranteed once Read has returned io.EOF: the final
// read verifies the accumulated digest against the requested one and the
// byte count against the server-declared Content-Length. A caller that
// stops early, or that already persisted chunks before a failing read,
// holds unverified data and must discard it.
type BlobReader struct {
	body     io.ReadCloser // decoded stream
	raw      io.Closer     // underlying response body
	want     digest.Digest
	verifier digest.Verifier
	size     int64 // declared size, -1 if unknown
	read     int64
	done     error // sticky terminal state, io.EOF on success
}

// Digest returns the digest the stream is verified against.
func (b *BlobReader) Digest() digest.Digest { return b.want }

// Size returns the server-declared blob size, or -1 if the server did not
// declare one.
func (b *BlobReader) Size() int64 { return b.size }

func (b *BlobReader) Read(p []byte) (int, error) {
	if b.done != nil {
		return 0, b.done
	}
	n, err := b.body.Read(p)
	if n > 0 {
		b.read += int64(n)
		// hash.Hash writes never fail
		b.verifier.Write(p[:n])
	}
	switch {
	case err == nil:
		return n, nil
	case errors.Is(err, io.EOF):
		b.done = b.finish()
		return n, b.done
	case errors.Is(err, io.ErrUnexpectedEOF):
		b.done = fmt.Errorf("%w: %s ended after %d bytes", ErrTruncatedBlob, b.want, b.read)
		return n, b.done
	default:
		b.done = err
		return n, err
	}
}

// finish converts stream exhaustion into the verification outcome.
func (b *BlobReader) finish() error {
	if b.size >= 0 && b.read != b.size {
		return fmt.Errorf("%w: %s: got %d bytes, Content-Length said %d", ErrTruncatedBlob, b.want, b.read, b.size)
	}
	if !b.verifier.Verified() {
		return fmt.Errorf("%w: content of %s does not match", ErrDigestMismatch, b.want)
	}
	return io.EOF
}

// Close releases the underlying connection. It does not verify anything;
// only a Read that returned io.EOF does.
func (b *BlobReader) Close() error {
	if c, ok := b.body.(io.Closer); ok && c != b.raw {
		c.Close()
	}
	return b.raw.Close()
}

// GetBlob fetches the blob named by dgst from repo as a verified stream.
// See BlobReader for the integrity contract.
func (c *Client) GetBlob(ctx context.Context, repo, dgst string) (*BlobReader, error) {
	want, err := ParseDigest(dgst)
	if err != nil {
		return nil, err
	}

	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.blobURL(repo, want.String()), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept-Encoding", acceptEncoding)
		return req, nil
	}
	resp, err := c.roundTrip(ctx, newReq, operation{
		notFound:  NotFoundBlob,
		repo:      repo,
		reference: want.String(),
		scope:     pullScope(repo),
	})
	if err != nil {
		return nil, err
	}

	body, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}
	// Content-Length describes the wire bytes; it only bounds the blob
	// when the response is unencoded.
	size := int64(-1)
	if resp.Header.Get("Content-Encoding") == "" && resp.ContentLength >= 0 {
		size = resp.ContentLength
	}
	return &BlobReader{
		body:     body,
		raw:      resp.Body,
		want:     want,
		verifier: want.Verifier(),
		size:     size,
	}, nil
}

// HasBlob reports whether repo has the blob named by dgst, using a HEAD
// request.
func (c *Client) HasBlob(ctx context.Context, repo, dgst string) (bool, error) {
	want, err := ParseDigest(dgst)
	if err != nil {
		return false, err
	}
	newReq := func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodHead, c.blobURL(repo, want.String()), nil)
	}
	resp, err := c.roundTrip(ctx, newReq, operation{
		notFound:  NotFoundBlob,
		repo:      repo,
		reference: want.String(),
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
