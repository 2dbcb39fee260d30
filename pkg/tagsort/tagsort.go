// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package tagsort orders registry tag listings by semantic version.
// Registries return tags lexically, which puts "1.10" before "1.9";
// consumers picking an upgrade target want semver order.
package tagsort

import (
	"sort"

	"github.com/Masterminds/semver/v3"
)

// Semver filters tags down to the ones that parse as semantic versions
// (a leading "v" is accepted) and returns them in ascending version
// order. Non-version tags like "latest" or "stable" are dropped.
func Semver(tags []string) []string {
	type parsed struct {
		tag string
		v   *semver.Version
	}
	var vs []parsed
	for _, t := range tags {
		v, err := semver.NewVersion(t)
		if err != nil {
			continue
		}
		vs = append(vs, parsed{tag: t, v: v})
	}
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].v.LessThan(vs[j].v)
	})
	out := make([]string, len(vs))
	for i, p := range vs {
		out[i] = p.tag
	}
	return out
}

// Latest returns the highest semantic version among tags, skipping
// prereleases. ok is false when no tag parses as a release version.
func Latest(tags []string) (string, bool) {
	var best *semver.Version
	var bestTag string
	for _, t := range tags {
		v, err := semver.NewVersion(t)
		if err != nil || v.Prerelease() != "" {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestTag = v, t
		}
	}
	return bestTag, best != nil
}
