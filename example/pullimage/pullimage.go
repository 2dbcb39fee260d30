// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Pullimage resolves an image reference and prints its layer digests.
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/yeetrun/regv2/pkg/imageref"
	"github.com/yeetrun/regv2/pkg/regv2"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <image>", os.Args[0])
	}
	ref, err := imageref.Parse(os.Args[1])
	if err != nil {
		log.Fatal(err)
	}
	c := regv2.New(imageref.RegistryHost(ref.Domain))
	m, err := c.GetManifest(context.Background(), ref.Path, ref.Reference())
	if err != nil {
		log.Fatal(err)
	}
	if m.Kind == regv2.KindIndex {
		desc, ok := m.SelectPlatform("linux", "amd64")
		if !ok {
			log.Fatalf("no linux/amd64 manifest in %s", ref)
		}
		if m, err = c.GetManifest(context.Background(), ref.Path, desc.Digest.String()); err != nil {
			log.Fatal(err)
		}
	}
	fmt.Println(m.Digest)
	for _, l := range m.Layers {
		fmt.Printf("  %s\t%d\n", l.Digest, l.Size)
	}
}
