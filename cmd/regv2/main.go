// Copyright (c) 2025 AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The regv2 command is a small CLI over the regv2 registry client:
// log in to a registry, list tags and repositories, resolve manifests,
// and stream verified blobs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/opencontainers/go-digest"
	"golang.org/x/term"

	"github.com/yeetrun/regv2/pkg/credfile"
	"github.com/yeetrun/regv2/pkg/imageref"
	"github.com/yeetrun/regv2/pkg/regv2"
	"github.com/yeetrun/regv2/pkg/tagsort"
)

var (
	insecure = flag.Bool("insecure", false, "use plain HTTP instead of HTTPS")
	verbose  = flag.Bool("v", false, "log wire-level requests")
	credPath = flag.String("credentials", "", "credentials file (default: per-user config dir)")
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: regv2 [flags] <command> [args]

Commands:
  login <registry>                    store credentials and verify them
  logout <registry>                   remove stored credentials
  ping <registry>                     check registry API v2 support
  catalog <registry>                  list repositories
  tags [-semver|-latest] <image>      list tags of a repository
  manifest [-raw] [-platform os/arch] <image>
                                      resolve and print a manifest
  blob [-o file] <image> <digest>     stream a verified blob
  push-blob <image> <file>            upload a blob
  push-manifest -t <media-type> <image> <file>
                                      upload a manifest

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	ctx := context.Background()
	cmd, args := flag.Arg(0), flag.Args()[1:]

	var err error
	switch cmd {
	case "login":
		err = cmdLogin(ctx, args)
	case "logout":
		err = cmdLogout(args)
	case "ping":
		err = cmdPing(ctx, args)
	case "catalog":
		err = cmdCatalog(ctx, args)
	case "tags":
		err = cmdTags(ctx, args)
	case "manifest":
		err = cmdManifest(ctx, args)
	case "blob":
		err = cmdBlob(ctx, args)
	case "push-blob":
		err = cmdPushBlob(ctx, args)
	case "push-manifest":
		err = cmdPushManifest(ctx, args)
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s %s", color.RedString("error:"), err)
	}
}

func credentials() (*credfile.File, error) {
	path := *credPath
	if path == "" {
		var err error
		path, err = credfile.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return credfile.Load(path)
}

// newClient builds a client for host, supplying stored credentials when
// there are any.
func newClient(host string) (*regv2.Client, error) {
	creds, err := credentials()
	if err != nil {
		return nil, err
	}
	opts := []regv2.Option{
		regv2.WithPlainHTTP(*insecure),
		regv2.WithVerbose(*verbose),
	}
	if c, ok := creds.Lookup(host); ok {
		opts = append(opts, regv2.WithCredentials(c.Username, c.Password))
	}
	return regv2.New(host, opts...), nil
}

// clientFor parses an image reference and returns a client for its
// registry along with the repository path.
func clientFor(image string) (*regv2.Client, imageref.Ref, error) {
	ref, err := imageref.Parse(image)
	if err != nil {
		return nil, imageref.Ref{}, err
	}
	c, err := newClient(imageref.RegistryHost(ref.Domain))
	if err != nil {
		return nil, imageref.Ref{}, err
	}
	return c, ref, nil
}

func cmdLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	user := fs.String("u", "", "username")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: regv2 login [-u user] <registry>")
	}
	host := fs.Arg(0)

	if *user == "" {
		fmt.Fprint(os.Stderr, "Username: ")
		if _, err := fmt.Scanln(user); err != nil {
			return err
		}
	}
	fmt.Fprint(os.Stderr, "Password: ")
	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return err
	}

	c := regv2.New(imageref.RegistryHost(host),
		regv2.WithPlainHTTP(*insecure),
		regv2.WithVerbose(*verbose),
		regv2.WithCredentials(*user, string(pw)))
	if err := c.Login(ctx); err != nil {
		return err
	}

	creds, err := credentials()
	if err != nil {
		return err
	}
	creds.Set(host, *user, string(pw))
	if err := creds.Save(); err != nil {
		return err
	}
	fmt.Println(color.GreenString("Login succeeded."))
	return nil
}

func cmdLogout(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: regv2 logout <registry>")
	}
	creds, err := credentials()
	if err != nil {
		return err
	}
	creds.Delete(args[0])
	return creds.Save()
}

func cmdPing(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: regv2 ping <registry>")
	}
	c, err := newClient(imageref.RegistryHost(args[0]))
	if err != nil {
		return err
	}
	ok, err := c.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s does not support the registry API v2", args[0])
	}
	fmt.Printf("%s registry API v2 supported\n", color.GreenString("ok:"))
	return nil
}

func cmdCatalog(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: regv2 catalog <registry>")
	}
	c, err := newClient(imageref.RegistryHost(args[0]))
	if err != nil {
		return err
	}
	repos, err := c.AllRepositories(ctx)
	if err != nil {
		return err
	}
	for _, r := range repos {
		fmt.Println(r)
	}
	return nil
}

func cmdTags(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("tags", flag.ExitOnError)
	bySemver := fs.Bool("semver", false, "sort semver tags ascending, dropping the rest")
	latest := fs.Bool("latest", false, "print only the highest release version")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: regv2 tags [-semver|-latest] <image>")
	}
	c, ref, err := clientFor(fs.Arg(0))
	if err != nil {
		return err
	}
	tags, err := c.AllTags(ctx, ref.Path)
	if err != nil {
		return err
	}
	switch {
	case *latest:
		tag, ok := tagsort.Latest(tags)
		if !ok {
			return fmt.Errorf("no release-version tags in %s", ref.Path)
		}
		fmt.Println(tag)
		return nil
	case *bySemver:
		tags = tagsort.Semver(tags)
	}
	for _, t := range tags {
		fmt.Println(t)
	}
	return nil
}

func cmdManifest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("manifest", flag.ExitOnError)
	raw := fs.Bool("raw", false, "print the raw manifest body")
	platform := fs.String("platform", "", "resolve an index to this os/arch child")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: regv2 manifest [-raw] [-platform os/arch] <image>")
	}
	c, ref, err := clientFor(fs.Arg(0))
	if err != nil {
		return err
	}
	m, err := c.GetManifest(ctx, ref.Path, ref.Reference())
	if err != nil {
		return err
	}
	if *platform != "" && m.Kind == regv2.KindIndex {
		osName, arch, ok := strings.Cut(*platform, "/")
		if !ok {
			return fmt.Errorf("bad -platform %q, want os/arch", *platform)
		}
		child, ok := m.SelectPlatform(osName, arch)
		if !ok {
			return fmt.Errorf("no %s child in index %s", *platform, m.Digest)
		}
		if m, err = c.GetManifest(ctx, ref.Path, child.Digest.String()); err != nil {
			return err
		}
	}
	if *raw {
		os.Stdout.Write(m.Raw)
		return nil
	}
	return printManifest(m)
}

func printManifest(m *regv2.Manifest) error {
	type layer struct {
		Digest string `json:"digest"`
		Size   int64  `json:"size,omitempty"`
	}
	out := map[string]any{
		"mediaType": m.MediaType,
		"digest":    m.Digest.String(),
		"kind":      m.Kind.String(),
	}
	switch m.Kind {
	case regv2.KindImage:
		out["config"] = m.Config.Digest.String()
		layers := make([]layer, len(m.Layers))
		for i, l := range m.Layers {
			layers[i] = layer{Digest: l.Digest.String(), Size: l.Size}
		}
		out["layers"] = layers
	case regv2.KindIndex:
		type child struct {
			Platform string `json:"platform"`
			Digest   string `json:"digest"`
		}
		children := make([]child, 0, len(m.Manifests))
		for _, d := range m.Manifests {
			p := ""
			if d.Platform != nil {
				p = d.Platform.OS + "/" + d.Platform.Architecture
			}
			children = append(children, child{Platform: p, Digest: d.Digest.String()})
		}
		out["manifests"] = children
	case regv2.KindSchema1:
		out["name"] = m.Schema1.Name
		out["tag"] = m.Schema1.Tag
		out["architecture"] = m.Schema1.Architecture
		layers := make([]string, len(m.Schema1.FSLayers))
		for i, d := range m.Schema1.FSLayers {
			layers[i] = d.String()
		}
		out["fsLayers"] = layers
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func cmdBlob(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("blob", flag.ExitOnError)
	outPath := fs.String("o", "", "write to file instead of stdout")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: regv2 blob [-o file] <image> <digest>")
	}
	c, ref, err := clientFor(fs.Arg(0))
	if err != nil {
		return err
	}
	br, err := c.GetBlob(ctx, ref.Path, fs.Arg(1))
	if err != nil {
		return err
	}
	defer br.Close()

	var w io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	n, err := io.Copy(w, br)
	if err != nil {
		// Verification failed or the stream broke; whatever was
		// written is not trustworthy.
		if *outPath != "" {
			os.Remove(*outPath)
		}
		return err
	}
	fmt.Fprintf(os.Stderr, "%s %d bytes, %s\n", color.GreenString("verified:"), n, br.Digest())
	return nil
}

func cmdPushBlob(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: regv2 push-blob <image> <file>")
	}
	c, ref, err := clientFor(args[0])
	if err != nil {
		return err
	}
	f, err := os.Open(args[1])
	if err != nil {
		return err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	dgst, err := digestFile(f)
	if err != nil {
		return err
	}
	if err := c.PushBlob(ctx, ref.Path, dgst, st.Size(), f); err != nil {
		return err
	}
	fmt.Printf("%s %s\n", color.GreenString("pushed:"), dgst)
	return nil
}

func digestFile(f *os.File) (string, error) {
	digester := digest.Canonical.Digester()
	if _, err := io.Copy(digester.Hash(), f); err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return digester.Digest().String(), nil
}

func cmdPushManifest(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("push-manifest", flag.ExitOnError)
	mediaType := fs.String("t", "application/vnd.oci.image.manifest.v1+json", "manifest media type")
	fs.Parse(args)
	if fs.NArg() != 2 {
		return fmt.Errorf("usage: regv2 push-manifest -t <media-type> <image> <file>")
	}
	c, ref, err := clientFor(fs.Arg(0))
	if err != nil {
		return err
	}
	body, err := os.ReadFile(fs.Arg(1))
	if err != nil {
		return err
	}
	dgst, err := c.PushManifest(ctx, ref.Path, ref.Reference(), *mediaType, body)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", color.GreenString("pushed:"), dgst)
	return nil
}
