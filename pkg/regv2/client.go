// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"context"
	"log"
	"net/http"
	"time"
)

const defaultUserAgent = "regv2/1.0"

// defaultTokenTimeout bounds the token endpoint round trip. All callers
// waiting on the same scope share that round trip, so it must not stall
// unbounded.
const defaultTokenTimeout = 30 * time.Second

// Client talks to one registry endpoint. It is safe for concurrent use;
// the only shared mutable state is the credential cache, which is owned by
// the client's authenticator.
type Client struct {
	registry   string // host[:port]
	scheme     string // "https" unless WithPlainHTTP
	httpClient *http.Client
	userAgent  string
	accept     []string // manifest media types offered in Accept
	verbose    bool
	auth       *authenticator
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient supplies the HTTP transport the client executes requests
// on. TLS policy, connection pooling and redirects are its concern.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCredentials supplies a static username/password for the registry.
// It is used directly for Basic challenges and as the token request's own
// authentication for Bearer challenges.
func WithCredentials(username, password string) Option {
	return func(c *Client) {
		c.auth.username = username
		c.auth.password = password
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// WithPlainHTTP uses http instead of https, for local registries.
func WithPlainHTTP(plain bool) Option {
	return func(c *Client) {
		if plain {
			c.scheme = "http"
		}
	}
}

// WithAcceptedManifestTypes replaces the manifest media types offered in
// the Accept header. The default covers Docker schema 1 and 2, manifest
// lists, and the OCI manifest and index types.
func WithAcceptedManifestTypes(mediaTypes []string) Option {
	return func(c *Client) { c.accept = mediaTypes }
}

// WithTokenTimeout bounds each token endpoint round trip.
func WithTokenTimeout(d time.Duration) Option {
	return func(c *Client) { c.auth.tokenTimeout = d }
}

// WithVerbose enables wire-level request tracing to the standard logger.
func WithVerbose(v bool) Option {
	return func(c *Client) { c.verbose = v }
}

// New creates a client for the registry at host (for example
// "registry-1.docker.io" or "localhost:5000").
func New(host string, opts ...Option) *Client {
	c := &Client{
		registry:   host,
		scheme:     "https",
		httpClient: http.DefaultClient,
		userAgent:  defaultUserAgent,
		accept:     DefaultManifestTypes(),
	}
	c.auth = newAuthenticator(nil, "", "", defaultTokenTimeout)
	for _, opt := range opts {
		opt(c)
	}
	c.auth.httpClient = c.httpClient
	return c
}

func (c *Client) vlog(format string, args ...any) {
	if c.verbose {
		log.Printf(format, args...)
	}
}

// Ping reports whether the endpoint speaks the registry API v2, checking
// the Docker-Distribution-API-Version header on GET /v2/. A 401 still
// counts as supported; it only means the endpoint wants credentials.
func (c *Client) Ping(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL()+"/v2/", nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnauthorized {
		return false, nil
	}
	return resp.Header.Get("Docker-Distribution-API-Version") == "registry/2.0", nil
}

// Login verifies the client's credentials by performing an authenticated
// GET /v2/, negotiating a token if the registry demands one.
func (c *Client) Login(ctx context.Context) error {
	resp, err := c.roundTrip(ctx, c.newGet(c.baseURL()+"/v2/", "", ""), operation{
		notFound: NotFoundRepository,
		scope:    "",
	})
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
