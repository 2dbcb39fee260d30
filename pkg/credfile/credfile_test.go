// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package credfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFile(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "credentials.toml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := f.Lookup("ghcr.io"); ok {
		t.Error("Lookup on empty file reported a credential")
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "credentials.toml")
	f, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	f.Set("ghcr.io", "alice", "hunter2")
	f.Set("localhost:5000", "bob", "s3cret")
	if err := f.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := info.Mode().Perm(); got != 0o600 {
		t.Errorf("file mode = %o, want 600", got)
	}

	g, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	c, ok := g.Lookup("ghcr.io")
	if !ok || c.Username != "alice" || c.Password != "hunter2" {
		t.Errorf("Lookup(ghcr.io) = %+v, %v", c, ok)
	}
	if c, ok := g.Lookup("localhost:5000"); !ok || c.Username != "bob" {
		t.Errorf("Lookup(localhost:5000) = %+v, %v", c, ok)
	}
}

func TestDockerHubAliases(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "credentials.toml"))
	if err != nil {
		t.Fatal(err)
	}
	f.Set("docker.io", "alice", "pw")
	for _, host := range []string{"docker.io", "index.docker.io", "registry-1.docker.io"} {
		if c, ok := f.Lookup(host); !ok || c.Username != "alice" {
			t.Errorf("Lookup(%q) = %+v, %v; want the docker.io entry", host, c, ok)
		}
	}
	if _, ok := f.Lookup("ghcr.io"); ok {
		t.Error("Lookup(ghcr.io) matched the docker.io entry")
	}

	f.Delete("registry-1.docker.io")
	if _, ok := f.Lookup("docker.io"); ok {
		t.Error("Delete via alias left the docker.io entry behind")
	}
}

func TestLoadBadTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	if err := os.WriteFile(path, []byte("not = [valid"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load of malformed file succeeded")
	}
}
