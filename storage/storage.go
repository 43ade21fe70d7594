// Package storage writes rendered images and caches them for the HTTP service.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Sink persists one encoded image. Implementations must be safe for
// concurrent use and must not leave partial objects behind on failure.
type Sink interface {
	Put(ctx context.Context, path string, data []byte, contentType string) error
}

// Object is an encoded image with its content type.
type Object struct {
	Body        []byte
	ContentType string
}

// WriteError reports a failed write to a sink.
type WriteError struct {
	Path string
	// Op is the step that failed, e.g. "mkdir", "write", "rename" or "put".
	Op  string
	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// FileSink writes to the local file system. Missing directories are created.
// Files appear atomically: data goes to a temporary file next to the target
// which is then renamed over it.
type FileSink struct {
	// Perm is applied to written files, 0644 when zero.
	Perm os.FileMode
}

// Put implements Sink.
func (s FileSink) Put(ctx context.Context, path string, data []byte, _ string) error {
	if err := ctx.Err(); err != nil {
		return &WriteError{Path: path, Op: "write", Err: err}
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Path: path, Op: "mkdir", Err: err}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return &WriteError{Path: path, Op: "create", Err: err}
	}
	name := tmp.Name()
	fail := func(op string, err error) error {
		_ = tmp.Close()
		_ = os.Remove(name)
		return &WriteError{Path: path, Op: op, Err: err}
	}
	if _, err := tmp.Write(data); err != nil {
		return fail("write", err)
	}
	if err := tmp.Sync(); err != nil {
		return fail("sync", err)
	}
	perm := s.Perm
	if perm == 0 {
		perm = 0o644
	}
	if err := tmp.Chmod(perm); err != nil {
		return fail("chmod", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(name)
		return &WriteError{Path: path, Op: "close", Err: err}
	}
	if err := os.Rename(name, path); err != nil {
		_ = os.Remove(name)
		return &WriteError{Path: path, Op: "rename", Err: err}
	}
	return nil
}
