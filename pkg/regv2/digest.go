// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"fmt"
	"strings"

	"github.com/opencontainers/go-digest"
)

// ParseDigest parses the algorithm:hex wire form of a content digest.
// Hex is normalized to lowercase; anything else about the string must be
// exact. Unknown algorithms and wrong-length hex fail with
// ErrMalformedDigest.
func ParseDigest(s string) (digest.Digest, error) {
	algo, hex, ok := strings.Cut(s, ":")
	if !ok || algo == "" || hex == "" {
		return "", fmt.Errorf("%w: %q", ErrMalformedDigest, s)
	}
	d := digest.Digest(algo + ":" + strings.ToLower(hex))
	if err := d.Validate(); err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrMalformedDigest, s, err)
	}
	return d, nil
}

// DigestBytes computes the canonical (sha256) digest of b.
func DigestBytes(b []byte) digest.Digest {
	return digest.Canonical.FromBytes(b)
}
