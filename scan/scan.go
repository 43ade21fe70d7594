// Package scan lists matrix files in a directory.
package scan

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/IGLOU-EU/go-wildcard/v2"
)

// Options controls which files are listed.
type Options struct {
	// Pattern is matched against the file name. "*" and "?" are wildcards. An
	// empty pattern matches every file.
	Pattern string
	// Recursive descends into sub-directories.
	Recursive bool
	// Hidden includes dot files.
	Hidden bool
}

// Files returns the regular files under root accepted by opts, sorted
// lexically so batches are reproducible.
func Files(root string, opts Options) ([]string, error) {
	var out []string
	if !opts.Recursive {
		entries, err := os.ReadDir(root)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.Type().IsRegular() && opts.accept(e.Name()) {
				out = append(out, filepath.Join(root, e.Name()))
			}
		}
		return out, nil
	}

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && !opts.Hidden && isHidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Type().IsRegular() && opts.accept(d.Name()) {
			out = append(out, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(out)
	return out, nil
}

// Dirs returns the immediate sub-directories of root, sorted.
func Dirs(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() && !isHidden(e.Name()) {
			out = append(out, filepath.Join(root, e.Name()))
		}
	}
	return out, nil
}

func (o Options) accept(name string) bool {
	if !o.Hidden && isHidden(name) {
		return false
	}
	return o.Pattern == "" || wildcard.Match(o.Pattern, name)
}

func isHidden(name string) bool {
	return len(name) > 0 && name[0] == '.'
}
