// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	// ErrMalformedDigest indicates a digest string that does not match
	// the algorithm:hex wire form.
	ErrMalformedDigest = errors.New("malformed digest")
	// ErrMalformedChallenge indicates an unparseable WWW-Authenticate header.
	ErrMalformedChallenge = errors.New("malformed auth challenge")
	// ErrAuthenticationFailed indicates the registry rejected our best
	// credential even after a token refresh.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrDigestMismatch indicates fetched content whose digest does not
	// match the requested digest. Content carrying this error must be
	// discarded.
	ErrDigestMismatch = errors.New("digest mismatch")
	// ErrTruncatedBlob indicates a blob stream that ended before the
	// server-declared Content-Length.
	ErrTruncatedBlob = errors.New("truncated blob")
	// ErrUnsupportedManifestType indicates a manifest media type the
	// client does not know how to parse.
	ErrUnsupportedManifestType = errors.New("unsupported manifest media type")
)

// Error codes defined by OCI Distribution Specification
const (
	// ErrCodeBlobUnknown indicates blob is unknown to the registry
	ErrCodeBlobUnknown = "BLOB_UNKNOWN"
	// ErrCodeDigestInvalid indicates provided digest did not match content
	ErrCodeDigestInvalid = "DIGEST_INVALID"
	// ErrCodeManifestUnknown indicates manifest is unknown
	ErrCodeManifestUnknown = "MANIFEST_UNKNOWN"
	// ErrCodeManifestInvalid indicates manifest is invalid
	ErrCodeManifestInvalid = "MANIFEST_INVALID"
	// ErrCodeNameInvalid indicates invalid repository name
	ErrCodeNameInvalid = "NAME_INVALID"
	// ErrCodeNameUnknown indicates repository name not known
	ErrCodeNameUnknown = "NAME_UNKNOWN"
	// ErrCodeUnauthorized indicates authentication required
	ErrCodeUnauthorized = "UNAUTHORIZED"
	// ErrCodeDenied indicates requested access denied
	ErrCodeDenied = "DENIED"
	// ErrCodeTooManyRequests indicates too many requests
	ErrCodeTooManyRequests = "TOOMANYREQUESTS"
)

// ErrorDescriptor is a single error entry in an OCI registry error body.
type ErrorDescriptor struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  any    `json:"detail,omitempty"`
}

// Error implements the error interface.
func (e ErrorDescriptor) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorResponse is the OCI-compliant error response body format.
type ErrorResponse struct {
	Errors []ErrorDescriptor `json:"errors"`
}

// NotFoundKind says which kind of object a 404 was for, so callers can
// distinguish a missing manifest from a missing blob or repository.
type NotFoundKind string

const (
	NotFoundManifest   NotFoundKind = "manifest"
	NotFoundBlob       NotFoundKind = "blob"
	NotFoundRepository NotFoundKind = "repository"
)

// NotFoundError is returned for 404 responses.
type NotFoundError struct {
	Kind      NotFoundKind
	Repo      string
	Reference string
}

func (e *NotFoundError) Error() string {
	if e.Reference == "" {
		return fmt.Sprintf("%s not found: %s", e.Kind, e.Repo)
	}
	return fmt.Sprintf("%s not found: %s@%s", e.Kind, e.Repo, e.Reference)
}

// RegistryError is returned for 4xx responses other than 401/404/429. It
// carries the decoded OCI error body when the server sent one.
type RegistryError struct {
	Status int
	Errors []ErrorDescriptor
	Body   []byte
}

func (e *RegistryError) Error() string {
	if len(e.Errors) > 0 {
		msgs := make([]string, len(e.Errors))
		for i, d := range e.Errors {
			msgs[i] = d.Error()
		}
		return fmt.Sprintf("registry rejected request (status %d): %s", e.Status, strings.Join(msgs, "; "))
	}
	return fmt.Sprintf("registry rejected request (status %d)", e.Status)
}

// TransientError is returned for 429 and 5xx responses. The client does
// not retry these itself; retry and backoff policy belongs to the caller.
type TransientError struct {
	Status int
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient registry error (status %d)", e.Status)
}

// AuthServerError indicates the token endpoint named by a Bearer challenge
// was unreachable or answered with a server error.
type AuthServerError struct {
	Realm string
	Err   error
}

func (e *AuthServerError) Error() string {
	return fmt.Sprintf("auth server %s: %v", e.Realm, e.Err)
}

func (e *AuthServerError) Unwrap() error { return e.Err }

// maxErrorBody bounds how much of an error response body we keep.
const maxErrorBody = 64 << 10

// parseRegistryError drains up to maxErrorBody bytes of an error response
// and decodes the OCI error body if the server sent one.
func parseRegistryError(resp *http.Response) *RegistryError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	re := &RegistryError{Status: resp.StatusCode, Body: body}
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		re.Errors = er.Errors
	}
	return re
}
