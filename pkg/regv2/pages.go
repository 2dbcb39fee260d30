// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package regv2

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
)

// maxListingSize bounds tag and catalog listing pages. A registry that
// wants to send more splits it across pages.
const maxListingSize = 4 << 20

// Pager walks a paginated listing (tags or catalog) page by page. It is
// lazy and forward-only: each Next call performs one HTTP request, and
// there is no way to rewind short of creating a new Pager.
//
// The listing ends when a page arrives without a Link header. An empty
// page that still carries a Link header continues the walk.
type Pager struct {
	c      *Client
	urlStr string
	op     operation
	parse  func([]byte) ([]string, error)
	query  string // continuation cursor, query form
	done   bool
}

// Next fetches the next page of items. ok is false once the listing is
// exhausted.
func (p *Pager) Next(ctx context.Context) (items []string, ok bool, err error) {
	if p.done {
		return nil, false, nil
	}
	resp, err := p.c.roundTrip(ctx, p.c.newGet(p.urlStr, "application/json", p.query), p.op)
	if err != nil {
		return nil, false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxListingSize+1))
	if err != nil {
		return nil, false, fmt.Errorf("read listing: %w", err)
	}
	if len(body) > maxListingSize {
		return nil, false, fmt.Errorf("listing page exceeds %d bytes", maxListingSize)
	}
	items, err = p.parse(body)
	if err != nil {
		return nil, false, err
	}

	next, ok := nextLink(resp.Header.Get("Link"))
	if !ok {
		p.done = true
		return items, true, nil
	}
	u, err := p.c.resolveLink(next)
	if err != nil {
		return nil, false, fmt.Errorf("bad Link header %q: %w", next, err)
	}
	p.query = u.RawQuery
	return items, true, nil
}

// nextLink extracts the rel="next" target from a Link header, per the
// `<url>; rel="next"` continuation grammar.
func nextLink(header string) (string, bool) {
	for _, entry := range strings.Split(header, ",") {
		parts := strings.Split(entry, ";")
		target := strings.TrimSpace(parts[0])
		if !strings.HasPrefix(target, "<") || !strings.HasSuffix(target, ">") {
			continue
		}
		for _, param := range parts[1:] {
			k, v, _ := strings.Cut(strings.TrimSpace(param), "=")
			if strings.TrimSpace(k) == "rel" && strings.Trim(strings.TrimSpace(v), `"`) == "next" {
				return target[1 : len(target)-1], true
			}
		}
	}
	return "", false
}

func firstQuery(pageSize int) string {
	if pageSize <= 0 {
		return ""
	}
	return url.Values{"n": []string{strconv.Itoa(pageSize)}}.Encode()
}

// Tags returns a pager over the tag names of repo. pageSize requests a
// page size from the server (0 for the server default).
func (c *Client) Tags(repo string, pageSize int) *Pager {
	return &Pager{
		c:      c,
		urlStr: c.tagsURL(repo),
		query:  firstQuery(pageSize),
		op: operation{
			notFound: NotFoundRepository,
			repo:     repo,
			scope:    pullScope(repo),
		},
		parse: func(body []byte) ([]string, error) {
			var v struct {
				Name string   `json:"name"`
				Tags []string `json:"tags"`
			}
			if err := json.Unmarshal(body, &v); err != nil {
				return nil, fmt.Errorf("unmarshal tag list: %w", err)
			}
			return v.Tags, nil
		},
	}
}

// Catalog returns a pager over the repository names the registry exposes.
// pageSize requests a page size from the server (0 for the server
// default).
func (c *Client) Catalog(pageSize int) *Pager {
	return &Pager{
		c:      c,
		urlStr: c.catalogURL(),
		query:  firstQuery(pageSize),
		op: operation{
			notFound: NotFoundRepository,
			scope:    catalogScope,
		},
		parse: func(body []byte) ([]string, error) {
			var v struct {
				Repositories []string `json:"repositories"`
			}
			if err := json.Unmarshal(body, &v); err != nil {
				return nil, fmt.Errorf("unmarshal catalog: %w", err)
			}
			return v.Repositories, nil
		},
	}
}

// AllTags drains the tag listing for repo into one slice.
func (c *Client) AllTags(ctx context.Context, repo string) ([]string, error) {
	return drain(ctx, c.Tags(repo, 0))
}

// AllRepositories drains the catalog into one slice.
func (c *Client) AllRepositories(ctx context.Context) ([]string, error) {
	return drain(ctx, c.Catalog(0))
}

func drain(ctx context.Context, p *Pager) ([]string, error) {
	var all []string
	for {
		items, ok, err := p.Next(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return all, nil
		}
		all = append(all, items...)
	}
}
