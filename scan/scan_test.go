package scan

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		p := filepath.Join(root, filepath.FromSlash(n))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte("h\n1\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestFiles(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "b.txt", "a.txt", "notes.md", ".hidden.txt", "sub/c.txt", ".git/d.txt")

	got, err := Files(root, Options{Pattern: "*.txt"})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(root, "a.txt"), filepath.Join(root, "b.txt")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	got, err = Files(root, Options{Pattern: "*.txt", Recursive: true})
	if err != nil {
		t.Fatal(err)
	}
	want = append(want, filepath.Join(root, "sub", "c.txt"))
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	got, err = Files(root, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %v", got)
	}
}

func TestFiles_missing(t *testing.T) {
	if _, err := Files(filepath.Join(t.TempDir(), "nope"), Options{}); err == nil {
		t.Fatal("expected failure")
	}
}

func TestDirs(t *testing.T) {
	root := t.TempDir()
	touch(t, root, "m2/a.txt", "m1/a.txt", ".cache/x", "file.txt")
	got, err := Dirs(root)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(root, "m1"), filepath.Join(root, "m2")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
