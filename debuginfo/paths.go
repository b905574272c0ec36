// Copyright © 2018 The ELPS authors

package debuginfo

import (
	"path/filepath"
	"sort"
	"strings"
)

// NormalizePath returns an absolute, cleaned path using forward slashes.
// Paths that cannot be made absolute are only cleaned.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")
	if abs, err := filepath.Abs(filepath.FromSlash(p)); err == nil && !isWindowsAbs(p) {
		p = abs
	}
	return filepath.ToSlash(filepath.Clean(filepath.FromSlash(p)))
}

// SamePath compares two normalised paths case-insensitively.
func SamePath(a, b string) bool {
	return a != "" && strings.EqualFold(a, b)
}

func isWindowsAbs(p string) bool {
	return len(p) >= 3 && p[1] == ':' && p[2] == '/'
}

func (d *DebugInfo) resolveDocuments(dir string) {
	for i, doc := range d.Documents {
		if doc == "" || filepath.IsAbs(doc) || isWindowsAbs(strings.ReplaceAll(doc, "\\", "/")) {
			continue
		}
		d.Documents[i] = filepath.Join(dir, doc)
	}
}

// Remap rewrites document paths through a source file map. Keys are path
// prefixes as recorded by the compiler and values their location on this
// machine. The longest matching prefix wins.
func (d *DebugInfo) Remap(sourceFileMap map[string]string) {
	if len(sourceFileMap) == 0 {
		return
	}
	prefixes := make([]string, 0, len(sourceFileMap))
	for k := range sourceFileMap {
		prefixes = append(prefixes, k)
	}
	sort.Slice(prefixes, func(i, j int) bool { return len(prefixes[i]) > len(prefixes[j]) })
	for i, doc := range d.Documents {
		d.Documents[i] = remapPath(doc, prefixes, sourceFileMap)
	}
}

func remapPath(doc string, prefixes []string, m map[string]string) string {
	slashed := strings.ReplaceAll(doc, "\\", "/")
	for _, prefix := range prefixes {
		p := strings.TrimSuffix(strings.ReplaceAll(prefix, "\\", "/"), "/")
		if len(slashed) < len(p) || !strings.EqualFold(slashed[:len(p)], p) {
			continue
		}
		rest := slashed[len(p):]
		if rest != "" && rest[0] != '/' {
			continue
		}
		return filepath.Join(m[prefix], filepath.FromSlash(rest))
	}
	return doc
}
