// Package pathresolve implements the PathResolver of spec §4.1:
// expanding user-supplied paths, home-prefixed paths, and wildcard
// patterns (including "**") into an ordered, deduplicated list of
// existing inputs.
package pathresolve

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/bcdev/nc2zarr/fsutil"
	"github.com/bcdev/nc2zarr/nzerr"
)

// Lister is consulted for object-store schemes (s3://...) instead of
// the local filesystem, per spec §4.1 ("expansion consults the remote
// lister"). A local-filesystem fs.FS (os.DirFS-shaped) also satisfies
// this via fsutil.OpenGlob.
type Lister interface {
	fs.FS
}

// SortBy is the PathResolver sort_by option.
type SortBy string

const (
	SortNone SortBy = ""
	SortPath SortBy = "path"
	SortName SortBy = "name"
)

// Resolve expands paths (literal paths, home-prefixed paths, or
// wildcard patterns possibly containing "**") against fsys into an
// ordered, deduplicated sequence of existing entries.
//
// fsys roots the resolution: for local inputs this is typically
// os.DirFS("/"), so absolute paths can be passed through unchanged
// after leading-slash trimming; for object-store inputs it is the
// bucket's Lister.
func Resolve(fsys fs.FS, paths []string, sortBy string) ([]string, error) {
	switch SortBy(sortBy) {
	case SortNone, SortPath, SortName:
	default:
		return nil, fmt.Errorf("%w: %q", nzerr.InvalidSortBy, sortBy)
	}

	var out []string
	seen := map[string]bool{}
	for _, p := range paths {
		expanded, err := resolveOne(fsys, expandHome(p))
		if err != nil {
			return nil, err
		}
		for _, e := range expanded {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}

	switch SortBy(sortBy) {
	case SortPath:
		slices.Sort(out)
	case SortName:
		slices.SortStableFunc(out, func(a, b string) bool {
			return strings.TrimRight(path.Base(a), "/") < strings.TrimRight(path.Base(b), "/")
		})
	}
	return out, nil
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return path.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

func isWildcard(p string) bool {
	return strings.ContainsAny(p, "*?[")
}

func resolveOne(fsys fs.FS, p string) ([]string, error) {
	rel := strings.TrimPrefix(p, "/")
	if rel == "" {
		rel = "."
	}
	if !isWildcard(p) {
		if _, err := fs.Stat(fsys, rel); err != nil {
			return nil, fmt.Errorf("%w: %s", nzerr.InputNotFound, p)
		}
		return []string{p}, nil
	}

	matches, err := globAll(fsys, rel)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("%w: %s", nzerr.NoInputsForWildcard, p)
	}
	prefix := ""
	if strings.HasPrefix(p, "/") {
		prefix = "/"
	}
	for i, m := range matches {
		matches[i] = prefix + m
	}
	return matches, nil
}

// globAll expands a pattern that may contain "**" (matched via
// fsutil's recursive directory walk, fsutil.WalkGlob / OpenGlob handle
// single-segment "*"/"?"/"[...]" natively; "**" additionally crosses
// directory boundaries).
func globAll(fsys fs.FS, pattern string) ([]string, error) {
	if !strings.Contains(pattern, "**") {
		files, err := fsutil.OpenGlob(fsys, pattern)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(files))
		for i, f := range files {
			out[i] = f.Path()
			f.Close()
		}
		return out, nil
	}

	// "**" matches across any number of path segments: split on the
	// first "**" and walk the whole subtree under its parent,
	// filtering by the remaining suffix pattern.
	idx := strings.Index(pattern, "**")
	base := path.Dir(pattern[:idx])
	if base == "." && !strings.HasPrefix(pattern, "./") {
		base = "."
	}
	suffix := strings.TrimPrefix(pattern[idx+2:], "/")

	var out []string
	err := fsutil.WalkDir(fsys, base, "", "", func(p string, d fsutil.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if suffix == "" {
			out = append(out, p)
			return nil
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(p, base), "/")
		if ok, _ := path.Match(suffix, path.Base(rel)); ok {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
