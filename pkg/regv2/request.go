// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// Registry API v2 path layout.

func (c *Client) baseURL() string {
	return c.scheme + "://" + c.registry
}

// manifestURL returns the URL for a manifest.
func (c *Client) manifestURL(repo, reference string) string {
	return c.baseURL() + "/v2/" + repo + "/manifests/" + reference
}

// blobURL returns the URL for a blob.
func (c *Client) blobURL(repo, dgst string) string {
	return c.baseURL() + "/v2/" + repo + "/blobs/" + dgst
}

// tagsURL returns the URL for a repository's tag listing.
func (c *Client) tagsURL(repo string) string {
	return c.baseURL() + "/v2/" + repo + "/tags/list"
}

// catalogURL returns the URL for the registry catalog.
func (c *Client) catalogURL() string {
	return c.baseURL() + "/v2/_catalog"
}

// Token scopes for the registry operations we perform.

func pullScope(repo string) string {
	return "repository:" + repo + ":pull"
}

func pushScope(repo string) string {
	return "repository:" + repo + ":pull,push"
}

const catalogScope = "registry:catalog:*"

// operation describes one registry API call for error reporting: what a
// 404 means for it and which token scope it needs.
type operation struct {
	notFound  NotFoundKind
	repo      string
	reference string
	scope     string
}

// roundTrip executes one registry API call. newReq must return a fresh
// request each time it is called; it is invoked again for the retry after
// a token refresh.
//
// Exactly one transparent re-authentication is performed per call: a 401
// carrying a challenge triggers a negotiation and a single retry, and a
// second consecutive 401 surfaces ErrAuthenticationFailed. Nothing else
// is retried here; backoff policy for TransientError belongs to the
// caller.
//
// On success the response is returned with its body open; the caller owns
// closing it.
func (c *Client) roundTrip(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error), op operation) (*http.Response, error) {
	resp, err := c.do(ctx, newReq, op)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return c.checkStatus(resp, op)
	}

	header := resp.Header.Get("WWW-Authenticate")
	resp.Body.Close()
	if header == "" {
		return nil, fmt.Errorf("%w: registry returned 401 without a challenge", ErrAuthenticationFailed)
	}
	ch, err := parseChallenge(header)
	if err != nil {
		return nil, err
	}
	c.vlog("renegotiating %s auth for scope %q", ch.scheme, op.scope)
	c.auth.invalidate(op.scope)
	if err := c.auth.negotiate(ctx, ch, op.scope); err != nil {
		return nil, err
	}

	resp, err = c.do(ctx, newReq, op)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.auth.invalidate(op.scope)
		return nil, fmt.Errorf("%w: registry rejected refreshed credential for scope %q", ErrAuthenticationFailed, op.scope)
	}
	return c.checkStatus(resp, op)
}

func (c *Client) do(ctx context.Context, newReq func(ctx context.Context) (*http.Request, error), op operation) (*http.Response, error) {
	req, err := newReq(ctx)
	if err != nil {
		return nil, err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	c.auth.authorize(req, op.scope)
	c.vlog("%s %s", req.Method, req.URL)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	return resp, nil
}

// checkStatus maps HTTP outcomes to typed results. 2xx responses pass
// through with the body open.
func (c *Client) checkStatus(resp *http.Response, op operation) (*http.Response, error) {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp, nil
	case resp.StatusCode == http.StatusNotFound:
		resp.Body.Close()
		return nil, &NotFoundError{Kind: op.notFound, Repo: op.repo, Reference: op.reference}
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		resp.Body.Close()
		return nil, &TransientError{Status: resp.StatusCode}
	default:
		defer resp.Body.Close()
		return nil, parseRegistryError(resp)
	}
}

// newGet builds a GET request factory. rawQuery, when non-empty, replaces
// the URL query; it is how pagination cursors are threaded through.
func (c *Client) newGet(urlStr, accept, rawQuery string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
		if err != nil {
			return nil, err
		}
		if rawQuery != "" {
			req.URL.RawQuery = rawQuery
		}
		if accept != "" {
			req.Header.Set("Accept", accept)
		}
		return req, nil
	}
}

// resolveLink resolves a Link header URL against the registry base,
// handling both absolute and path-relative forms.
func (c *Client) resolveLink(link string) (*url.URL, error) {
	base, err := url.Parse(c.baseURL() + "/")
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(link)
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(u), nil
}
