// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// challenge is a parsed WWW-Authenticate header.
type challenge struct {
	scheme  string // "basic" or "bearer"
	realm   string
	service string
	scope   string
}

// parseChallenge parses the WWW-Authenticate grammar:
//
//	Bearer realm="https://auth.example/token",service="registry",scope="repository:foo:pull"
//	Basic realm="registry"
//
// A challenge that cannot be parsed fails closed with
// ErrMalformedChallenge; the client never proceeds unauthenticated when a
// challenge was present.
func parseChallenge(header string) (*challenge, error) {
	scheme, params, _ := strings.Cut(strings.TrimSpace(header), " ")
	c := &challenge{scheme: strings.ToLower(scheme)}
	switch c.scheme {
	case "basic", "bearer":
	default:
		return nil, fmt.Errorf("%w: unknown scheme in %q", ErrMalformedChallenge, header)
	}
	for _, kv := range splitChallengeParams(params) {
		k, v, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, fmt.Errorf("%w: bad parameter %q", ErrMalformedChallenge, kv)
		}
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
			v = v[1 : len(v)-1]
		} else if strings.Contains(v, `"`) {
			return nil, fmt.Errorf("%w: unbalanced quotes in %q", ErrMalformedChallenge, kv)
		}
		switch k {
		case "realm":
			c.realm = v
		case "service":
			c.service = v
		case "scope":
			c.scope = v
		}
	}
	if c.scheme == "bearer" && c.realm == "" {
		return nil, fmt.Errorf("%w: bearer challenge without realm", ErrMalformedChallenge)
	}
	return c, nil
}

// splitChallengeParams splits comma-separated auth parameters, keeping
// commas inside quoted values intact.
func splitChallengeParams(s string) []string {
	var out []string
	var b strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			b.WriteRune(r)
		case r == ',' && !inQuote:
			if p := strings.TrimSpace(b.String()); p != "" {
				out = append(out, p)
			}
			b.Reset()
		default:
			b.WriteRune(r)
		}
	}
	if p := strings.TrimSpace(b.String()); p != "" {
		out = append(out, p)
	}
	return out
}

// bearerToken is a cached token for one scope.
type bearerToken struct {
	token     string
	expiresAt time.Time
}

func (t *bearerToken) valid() bool {
	return t != nil && t.token != "" && time.Now().Before(t.expiresAt)
}

// tokenResponse is the body returned by a token endpoint.
type tokenResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// defaultTokenTTL applies when the token endpoint does not report
// expires_in. The Docker token spec defines 60 seconds as the minimum.
const defaultTokenTTL = 60 * time.Second

// authenticator owns the per-scope credential cache. One instance per
// Client; there is no process-wide state.
//
// Concurrent callers that need a token for the same scope share a single
// token round trip via singleflight rather than each hitting the auth
// server.
type authenticator struct {
	httpClient   *http.Client
	username     string
	password     string
	tokenTimeout time.Duration

	mu     sync.Mutex
	basic  bool // registry answered with a Basic challenge
	tokens map[string]*bearerToken
	group  singleflight.Group
}

func newAuthenticator(hc *http.Client, username, password string, tokenTimeout time.Duration) *authenticator {
	return &authenticator{
		httpClient:   hc,
		username:     username,
		password:     password,
		tokenTimeout: tokenTimeout,
		tokens:       make(map[string]*bearerToken),
	}
}

// authorize attaches the best-known credential for scope to req. Reads of
// an already-valid token take only the cache mutex, never a network trip.
func (a *authenticator) authorize(req *http.Request, scope string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.basic && a.username != "" {
		req.SetBasicAuth(a.username, a.password)
		return
	}
	if t := a.tokens[scope]; t.valid() {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
}

// invalidate drops the cached token for scope after the registry rejected
// it.
func (a *authenticator) invalidate(scope string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.tokens, scope)
}

// negotiate turns a 401 challenge into a fresh credential for scope. For
// Basic the caller-supplied static credential is used with no network
// round trip. For Bearer a token is requested from the challenge realm; at
// most one token acquisition per scope is in flight at a time, and
// concurrent callers await its result.
func (a *authenticator) negotiate(ctx context.Context, c *challenge, scope string) error {
	if c.scheme == "basic" {
		if a.username == "" {
			return fmt.Errorf("%w: registry requires basic auth and no credentials were supplied", ErrAuthenticationFailed)
		}
		a.mu.Lock()
		a.basic = true
		a.mu.Unlock()
		return nil
	}
	// The challenge may widen or rewrite the scope (a pull GET can be
	// challenged with pull,push); the token is requested for the
	// challenge's scope but must also be cached under the request's own
	// scope, which is what the retry looks up.
	reqScope := scope
	if c.scope != "" {
		scope = c.scope
	}
	key := c.realm + "\x00" + c.service + "\x00" + scope
	ch := a.group.DoChan(key, func() (any, error) {
		// Detached from the winning caller's ctx: other callers share
		// this fetch, so one caller's cancellation must not fail them
		// all. fetchToken bounds it with the token timeout.
		tok, err := a.fetchToken(context.WithoutCancel(ctx), c, scope)
		if err != nil {
			return nil, err
		}
		a.mu.Lock()
		a.tokens[scope] = tok
		if reqScope != scope {
			a.tokens[reqScope] = tok
		}
		a.mu.Unlock()
		return tok, nil
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fetchToken performs the token endpoint round trip. It is bounded by the
// configured token timeout so a stalled auth server cannot hang every
// waiter sharing the scope.
func (a *authenticator) fetchToken(ctx context.Context, c *challenge, scope string) (*bearerToken, error) {
	ctx, cancel := context.WithTimeout(ctx, a.tokenTimeout)
	defer cancel()

	u, err := url.Parse(c.realm)
	if err != nil {
		return nil, fmt.Errorf("%w: bad realm %q", ErrMalformedChallenge, c.realm)
	}
	q := u.Query()
	if c.service != "" {
		q.Set("service", c.service)
	}
	if scope != "" {
		q.Set("scope", scope)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	if a.username != "" {
		req.SetBasicAuth(a.username, a.password)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, &AuthServerError{Realm: c.realm, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: token endpoint returned status %d", ErrAuthenticationFailed, resp.StatusCode)
	default:
		return nil, &AuthServerError{Realm: c.realm, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return nil, &AuthServerError{Realm: c.realm, Err: fmt.Errorf("decode token response: %w", err)}
	}
	token := tr.Token
	if token == "" {
		token = tr.AccessToken
	}
	if token == "" {
		return nil, &AuthServerError{Realm: c.realm, Err: fmt.Errorf("token response carried no token")}
	}
	ttl := defaultTokenTTL
	if tr.ExpiresIn > 0 {
		ttl = time.Duration(tr.ExpiresIn) * time.Second
	}
	return &bearerToken{token: token, expiresAt: time.Now().Add(ttl)}, nil
}
