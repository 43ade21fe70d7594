package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFileSink_Put(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "m1", "A_gray", "frame001.png")
	if err := (FileSink{}).Put(context.Background(), p, []byte("png"), "image/png"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != "png" {
		t.Fatal(string(b))
	}
	// Overwrite in place.
	if err := (FileSink{}).Put(context.Background(), p, []byte("png2"), "image/png"); err != nil {
		t.Fatal(err)
	}
	entries, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "frame001.png" {
		t.Fatalf("temporary files left behind: %v", entries)
	}
	fi, err := os.Stat(p)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Size() != 4 {
		t.Fatal(fi.Size())
	}
}

func TestFileSink_Put_fail(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	err := (FileSink{}).Put(context.Background(), filepath.Join(blocker, "x.png"), []byte("x"), "image/png")
	var werr *WriteError
	if !errors.As(err, &werr) {
		t.Fatalf("got %v, want *WriteError", err)
	}
	if werr.Op != "mkdir" {
		t.Fatal(werr.Op)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = (FileSink{}).Put(ctx, filepath.Join(root, "y.png"), []byte("y"), "image/png")
	if !errors.Is(err, context.Canceled) {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "y.png")); !os.IsNotExist(err) {
		t.Fatal("file written despite cancellation")
	}
}

func TestS3Sink_Key(t *testing.T) {
	data := []struct {
		prefix, in, want string
	}{
		{"", "/data/m1/A_gray/f.png", "data/m1/A_gray/f.png"},
		{"renders/", "/data/f.png", "renders/data/f.png"},
		{"/renders", "key|gray|png", "renders/key|gray|png"},
	}
	for i, line := range data {
		s := &S3Sink{Prefix: line.prefix}
		if got := s.Key(filepath.FromSlash(line.in)); got != line.want {
			t.Fatalf("#%d: got %q, want %q", i, got, line.want)
		}
	}
}

func TestNewS3Sink_fail(t *testing.T) {
	if _, err := NewS3Sink(S3Config{}); err == nil {
		t.Fatal("expected failure")
	}
}

func TestCache(t *testing.T) {
	c, err := NewCache(CacheConfig{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64, TTL: time.Minute})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	obj := Object{Body: []byte("img"), ContentType: "image/png"}
	if !c.Set("k", obj) {
		t.Fatal("set dropped")
	}
	c.Wait()
	got, ok := c.Get("k")
	if !ok || string(got.Body) != "img" || got.ContentType != "image/png" {
		t.Fatalf("got %+v %v", got, ok)
	}
	c.Delete("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("still cached")
	}
}
