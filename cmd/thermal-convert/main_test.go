package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zaptest"

	"thermal-render/config"
	"thermal-render/convert"
)

func defaults() config.Config {
	return config.Config{
		Format:        "png",
		Quality:       90,
		Scale:         1,
		Workers:       7,
		InputPattern:  "*.txt",
		Sink:          "file",
		MaxMatrixSize: 1 << 20,
		LogLevel:      "info",
	}
}

func TestParseArgs(t *testing.T) {
	o, err := parseArgs(defaults(), []string{"-op", "select", "-mode", "gray", "-workers", "3", "-segment", "-3", "-name", "temperature_gray", "-v", "in1", "in2"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	if o.op != convert.SelectMaxSpread || o.mode != "gray" || o.cfg.Workers != 3 {
		t.Fatalf("%+v", o)
	}
	if o.cfg.OutputSegment != -3 || o.cfg.OutputName != "temperature_gray" || o.cfg.LogLevel != "debug" {
		t.Fatalf("%+v", o.cfg)
	}
	if len(o.dirs) != 2 || o.dirs[1] != "in2" {
		t.Fatal(o.dirs)
	}

	data := [][]string{
		{},
		{"-op", "merge", "in"},
		{"-mode", "sepia", "in"},
		{"-workers", "0", "in"},
		{"-format", "gif", "in"},
		{"-rename", "nocolon", "in"},
		{"-unknown", "in"},
	}
	for _, args := range data {
		if _, err := parseArgs(defaults(), args, io.Discard); err == nil {
			t.Fatalf("%q: expected failure", args)
		}
	}
}

func writeFrame(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestRun_each(t *testing.T) {
	root := t.TempDir()
	in := filepath.Join(root, "in")
	writeFrame(t, filepath.Join(in, "m1", "a.txt"), "h\n1,2\n3,4\n")
	writeFrame(t, filepath.Join(in, "m1", "b.txt"), "h\n1,2\n3,9\n")
	writeFrame(t, filepath.Join(in, "m2", "a.txt"), "h\n5,5\n5,6\n")
	writeFrame(t, filepath.Join(in, "m2", "notes.md"), "ignored")

	o, err := parseArgs(defaults(), []string{"-op", "select", "-each", "-rename", "in:out", in}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	c, err := newConverter(o, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	var stdout bytes.Buffer
	if err := run(context.Background(), o, c, &stdout); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{
		filepath.Join(root, "out", "m1", "b.png"),
		filepath.Join(root, "out", "m2", "a.png"),
	} {
		if _, err := os.Stat(p); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := os.Stat(filepath.Join(root, "out", "m1", "a.png")); !os.IsNotExist(err) {
		t.Fatal("lower spread frame was rendered")
	}
	if !strings.Contains(stdout.String(), "selected "+filepath.Join(in, "m1", "b.txt")) {
		t.Fatal(stdout.String())
	}
}

func TestRun_failures(t *testing.T) {
	root := t.TempDir()
	writeFrame(t, filepath.Join(root, "a.txt"), "h\n1,2\n")
	writeFrame(t, filepath.Join(root, "b.txt"), "h\n1,x\n")

	o, err := parseArgs(defaults(), []string{"-format", "bmp", root, filepath.Join(root, "missing")}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	c, err := newConverter(o, zaptest.NewLogger(t))
	if err != nil {
		t.Fatal(err)
	}
	var stdout bytes.Buffer
	err = run(context.Background(), o, c, &stdout)
	if err == nil {
		t.Fatal("expected failure")
	}
	if !strings.Contains(err.Error(), "b.txt") {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(root, "a.bmp")); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout.String(), "1 written, 0 skipped, 1 failed") {
		t.Fatal(stdout.String())
	}
}

func TestRun_selectRejected(t *testing.T) {
	root := t.TempDir()
	writeFrame(t, filepath.Join(root, "a.txt"), "h\n1,2\n3,4\n")
	writeFrame(t, filepath.Join(root, "b.txt"), "h\n1,2\n3,oops\n")
	writeFrame(t, filepath.Join(root, "c.txt"), "h\n1,2\n3,9\n")

	for _, workers := range []string{"1", "4"} {
		o, err := parseArgs(defaults(), []string{"-op", "select", "-workers", workers, "-root", filepath.Join(root, "out"+workers), root}, io.Discard)
		if err != nil {
			t.Fatal(err)
		}
		c, err := newConverter(o, zaptest.NewLogger(t))
		if err != nil {
			t.Fatal(err)
		}
		var stdout bytes.Buffer
		err = run(context.Background(), o, c, &stdout)
		if err == nil || !strings.Contains(err.Error(), "b.txt") {
			t.Fatalf("workers %s: %v", workers, err)
		}
		if !strings.Contains(stdout.String(), "1 written, 0 skipped, 0 failed, 1 rejected") {
			t.Fatalf("workers %s: %s", workers, stdout.String())
		}
		if !strings.Contains(stdout.String(), "selected "+filepath.Join(root, "c.txt")) {
			t.Fatalf("workers %s: %s", workers, stdout.String())
		}
	}
}
