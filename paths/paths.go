// Package paths derives output image paths from input matrix paths.
package paths

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Deriver maps an input path to the path its rendered image is written to.
// ext includes the leading dot.
type Deriver interface {
	Derive(input, ext string) (string, error)
}

// Rule is the default Deriver. The zero value writes next to the input with
// the extension replaced.
//
// Segment/Name replaces the path segment at index Segment with Name. Negative
// indices count from the end: -1 is the file name, -2 its directory.
//
// From/To renames the last directory named From to To.
//
// Root, when set, is applied last and moves the result under Root keeping
// only the file name.
type Rule struct {
	Segment int
	Name    string

	From string
	To   string

	Root string
}

// Validate reports conflicting or incomplete settings.
func (r Rule) Validate() error {
	if r.Segment != 0 && r.From != "" {
		return errors.New("segment and rename rules are exclusive")
	}
	if r.Segment != 0 && r.Name == "" {
		return fmt.Errorf("segment %d has no replacement name", r.Segment)
	}
	if r.Segment == 0 && r.Name != "" {
		return fmt.Errorf("replacement name %q has no segment", r.Name)
	}
	if (r.From == "") != (r.To == "") {
		return errors.New("rename needs both a source and a target directory")
	}
	if strings.ContainsRune(r.Name, filepath.Separator) || strings.ContainsRune(r.To, filepath.Separator) {
		return errors.New("replacement names must be a single path segment")
	}
	return nil
}

// ParseRename parses "from:to".
func ParseRename(s string) (from, to string, err error) {
	from, to, ok := strings.Cut(s, ":")
	if !ok || from == "" || to == "" {
		return "", "", fmt.Errorf("invalid rename %q, expected from:to", s)
	}
	return from, to, nil
}

// Derive implements Deriver.
func (r Rule) Derive(input, ext string) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	dir, file := filepath.Split(input)
	if file == "" {
		return "", fmt.Errorf("%q has no file name", input)
	}
	file = strings.TrimSuffix(file, filepath.Ext(file)) + ext

	switch {
	case r.Segment != 0:
		segs := strings.Split(filepath.Join(dir, file), string(filepath.Separator))
		if strings.HasPrefix(input, string(filepath.Separator)) {
			// keep the leading empty segment out of index arithmetic
			segs[0] = string(filepath.Separator)
		}
		i := r.Segment
		if i < 0 {
			i += len(segs)
		}
		if i < 0 || i >= len(segs) {
			return "", fmt.Errorf("segment %d out of range for %q", r.Segment, input)
		}
		if i == len(segs)-1 {
			segs[i] = r.Name + ext
		} else {
			segs[i] = r.Name
		}
		return r.rebase(filepath.Join(segs...)), nil

	case r.From != "":
		segs := strings.Split(filepath.Clean(dir), string(filepath.Separator))
		for i := len(segs) - 1; i >= 0; i-- {
			if segs[i] == r.From {
				segs[i] = r.To
				out := strings.Join(segs, string(filepath.Separator))
				if out == "" {
					out = string(filepath.Separator)
				}
				return r.rebase(filepath.Join(out, file)), nil
			}
		}
		return "", fmt.Errorf("no directory named %q in %q", r.From, input)
	}
	return r.rebase(filepath.Join(dir, file)), nil
}

func (r Rule) rebase(p string) string {
	if r.Root == "" {
		return p
	}
	return filepath.Join(r.Root, filepath.Base(p))
}
