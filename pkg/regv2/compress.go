// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"

	"github.com/klauspost/compress/zstd"
)

// acceptEncoding is what the client advertises for manifest and blob
// downloads. Registries that negotiate compression (zstd preferred, then
// gzip, then deflate) send a matching Content-Encoding; everything else
// sends identity.
const acceptEncoding = "zstd, gzip, deflate"

// decodeBody wraps resp.Body with a decoder for the response's
// Content-Encoding. Digest verification always runs over the decoded
// bytes, since that is what the digest addresses.
//
// Note Go's transport does not auto-decompress when Accept-Encoding was
// set explicitly, so all three encodings are handled here.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch enc := resp.Header.Get("Content-Encoding"); enc {
	case "", "identity":
		return resp.Body, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("zstd reader: %w", err)
		}
		return &decodedBody{Reader: zr.IOReadCloser(), underlying: resp.Body}, nil
	case "gzip":
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return &decodedBody{Reader: gr, underlying: resp.Body}, nil
	case "deflate":
		return &decodedBody{Reader: flate.NewReader(resp.Body), underlying: resp.Body}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
}

// decodedBody closes both the decoder (when it is a closer) and the
// underlying response body.
type decodedBody struct {
	io.Reader
	underlying io.Closer
}

func (d *decodedBody) Close() error {
	if c, ok := d.Reader.(io.Closer); ok {
		c.Close()
	}
	return d.underlying.Close()
}
