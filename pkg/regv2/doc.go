// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package regv2 is a client for the Docker/OCI Container Registry HTTP
// API v2: it resolves tags and digests to manifests, streams blobs, and
// walks tag and catalog listings against any compliant registry.
//
// The client supports:
//   - Manifest resolution across Docker schema 1, schema 2, manifest
//     lists, and the OCI manifest and index types
//   - Mandatory content-digest verification of every manifest and blob
//   - Basic and Bearer token authentication with transparent refresh
//   - Link-header pagination for tag and catalog listings
//   - Blob and manifest push as the symmetric write path
//   - Transparent response decompression (zstd, gzip, deflate)
//
// # Integrity
//
// Every manifest body is hashed before it is parsed; a fetch by digest
// whose body hashes to anything else fails with ErrDigestMismatch and
// never produces a descriptor. Blob streams hash incrementally and only
// report success at io.EOF, so a consumer knows the content is good
// exactly when the stream drains cleanly; see BlobReader.
//
// # Authentication
//
// On a 401 the client parses the WWW-Authenticate challenge, obtains a
// credential (the static username/password for Basic, a token from the
// challenge realm for Bearer), and retries the request once. Tokens are
// cached per scope, and concurrent requests needing the same scope share
// one token round trip. A second consecutive 401 for the same request
// surfaces ErrAuthenticationFailed rather than looping.
//
// # Retries
//
// The single auth retry is the only retry the client performs. Rate
// limits and server errors surface as TransientError; backoff policy for
// them belongs to the caller, because registries vary widely in
// rate-limit semantics.
//
// Spec: https://github.com/opencontainers/distribution-spec/blob/main/spec.md
package regv2
