// Package talfile parses RFC 8630 trust anchor locator files into
// model.TrustAnchorLocator. Parsing itself is out of scope for
// correctness (spec.md §6: "the input contract is the struct defined
// in §3"); this package only needs to produce that struct from the
// line-oriented file format relying parties consume.
package talfile

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/carlosm3011/rpki-validator/internal/model"
)

// prefetchDirective marks a comment line that names a bulk warm-up
// hint rather than an ordinary remark, e.g. "#prefetch rsync://host/repo/".
const prefetchDirective = "#prefetch "

// Parse reads a TAL file: one or more certificateLocation URIs, one
// per line, a blank line, then a base64 publicKeyInfo block spanning
// the remaining lines. caName defaults to the file's base name
// without extension. "#prefetch <uri>" comment lines among the
// certificateLocations populate PrefetchUris; any other line starting
// with "#" is an ordinary comment.
func Parse(path string) (model.TrustAnchorLocator, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.TrustAnchorLocator{}, fmt.Errorf("talfile: %w", err)
	}
	defer f.Close()

	var locations []string
	var prefetch []string
	var keyLines []string
	inKey := false

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			inKey = true
			continue
		}
		if inKey {
			keyLines = append(keyLines, line)
			continue
		}
		if strings.HasPrefix(line, prefetchDirective) {
			if uri := strings.TrimSpace(strings.TrimPrefix(line, prefetchDirective)); uri != "" {
				prefetch = append(prefetch, uri)
			}
			continue
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		locations = append(locations, line)
	}
	if err := scanner.Err(); err != nil {
		return model.TrustAnchorLocator{}, fmt.Errorf("talfile: %w", err)
	}
	if len(locations) == 0 {
		return model.TrustAnchorLocator{}, fmt.Errorf("talfile: %s: no certificateLocation URIs", path)
	}
	if len(keyLines) == 0 {
		return model.TrustAnchorLocator{}, fmt.Errorf("talfile: %s: missing publicKeyInfo block", path)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	return model.TrustAnchorLocator{
		CaName:               name,
		PublicKeyInfo:        strings.Join(keyLines, ""),
		CertificateLocations: locations,
		PrefetchUris:         prefetch,
	}, nil
}

// ParseAll parses every path in paths, stopping at the first error.
func ParseAll(paths []string) ([]model.TrustAnchorLocator, error) {
	out := make([]model.TrustAnchorLocator, 0, len(paths))
	for _, p := range paths {
		tal, err := Parse(p)
		if err != nil {
			return nil, err
		}
		out = append(out, tal)
	}
	return out, nil
}
