// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package credfile loads and stores static registry credentials from a
// TOML file, keyed by registry host. It is the secrets source the CLI
// feeds into the regv2 client; library consumers can bring their own.
package credfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const fileName = "credentials.toml"

// Credential is one registry login.
type Credential struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

// File is a parsed credentials file.
type File struct {
	path       string
	Registries map[string]Credential `toml:"registries"`
}

// DefaultPath returns the per-user credentials file path,
// $XDG_CONFIG_HOME/regv2/credentials.toml or the os.UserConfigDir
// equivalent.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "regv2", fileName), nil
}

// Load reads the credentials file at path. A missing file is not an
// error; it loads as an empty File that Save will create.
func Load(path string) (*File, error) {
	f := &File{path: path, Registries: make(map[string]Credential)}
	if _, err := toml.DecodeFile(path, f); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, nil
		}
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if f.Registries == nil {
		f.Registries = make(map[string]Credential)
	}
	return f, nil
}

// Lookup returns the credential for a registry host. docker.io aliases
// resolve to the same entry.
func (f *File) Lookup(host string) (Credential, bool) {
	for _, h := range hostAliases(host) {
		if c, ok := f.Registries[h]; ok {
			return c, true
		}
	}
	return Credential{}, false
}

// Set records a credential for a registry host.
func (f *File) Set(host, username, password string) {
	f.Registries[host] = Credential{Username: username, Password: password}
}

// Delete removes the credential for a registry host.
func (f *File) Delete(host string) {
	for _, h := range hostAliases(host) {
		delete(f.Registries, h)
	}
}

// Save writes the file back to where it was loaded from, creating parent
// directories as needed. Permissions are owner-only; the file holds
// secrets.
func (f *File) Save() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	out, err := os.OpenFile(f.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	defer out.Close()
	encoder := toml.NewEncoder(out)
	return encoder.Encode(f)
}

// hostAliases returns the lookup keys for a host, folding the Docker Hub
// names together.
func hostAliases(host string) []string {
	switch host {
	case "docker.io", "index.docker.io", "registry-1.docker.io":
		return []string{host, "docker.io", "index.docker.io", "registry-1.docker.io"}
	default:
		return []string{host}
	}
}
