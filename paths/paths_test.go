package paths

import (
	"path/filepath"
	"testing"
)

func TestRule_Derive(t *testing.T) {
	data := []struct {
		rule  Rule
		input string
		ext   string
		want  string
	}{
		{Rule{}, "/data/m1/A/frame001.txt", ".png", "/data/m1/A/frame001.png"},
		{Rule{From: "A", To: "A_gray"}, "/data/m1/A/frame001.txt", ".png", "/data/m1/A_gray/frame001.png"},
		{Rule{From: "A", To: "A_gray"}, "/A/x/A/frame001.txt", ".png", "/A/x/A_gray/frame001.png"},
		{Rule{Segment: -2, Name: "save"}, "/data/m1/A/frame001.txt", ".png", "/data/m1/save/frame001.png"},
		{Rule{Segment: -3, Name: "save"}, "/data/m1/A/frame001.txt", ".png", "/data/save/A/frame001.png"},
		{Rule{Segment: -4, Name: "temperature_gray"}, "/t/20170307_30C/m1/A/f.txt", ".jpg", "/t/temperature_gray/m1/A/f.jpg"},
		{Rule{Segment: -1, Name: "best"}, "/data/m1/frame001.txt", ".png", "/data/m1/best.png"},
		{Rule{Segment: 1, Name: "out"}, "/data/m1/frame001.txt", ".png", "/out/m1/frame001.png"},
		{Rule{}, "rel/frame.v2.txt", ".webp", "rel/frame.v2.webp"},
		{Rule{Root: "/out"}, "/data/m1/A/frame001.txt", ".png", "/out/frame001.png"},
		{Rule{Segment: -2, Name: "save", Root: "/out"}, "/data/m1/A/frame001.txt", ".png", "/out/frame001.png"},
	}
	for i, line := range data {
		got, err := line.rule.Derive(filepath.FromSlash(line.input), line.ext)
		if err != nil {
			t.Fatalf("#%d: %v", i, err)
		}
		if want := filepath.FromSlash(line.want); got != want {
			t.Fatalf("#%d: got %q, want %q", i, got, want)
		}
	}
}

func TestRule_Derive_fail(t *testing.T) {
	data := []struct {
		rule  Rule
		input string
	}{
		{Rule{Segment: -9, Name: "x"}, "/a/b.txt"},
		{Rule{Segment: 9, Name: "x"}, "/a/b.txt"},
		{Rule{From: "missing", To: "x"}, "/a/b.txt"},
		{Rule{Segment: -2}, "/a/b.txt"},
		{Rule{Name: "x"}, "/a/b.txt"},
		{Rule{From: "a"}, "/a/b.txt"},
		{Rule{Segment: -2, Name: "x", From: "a", To: "b"}, "/a/b.txt"},
		{Rule{Segment: -2, Name: "x/y"}, "/a/b.txt"},
		{Rule{}, "/a/"},
	}
	for i, line := range data {
		if got, err := line.rule.Derive(filepath.FromSlash(line.input), ".png"); err == nil {
			t.Fatalf("#%d: expected failure, got %q", i, got)
		}
	}
}

func TestParseRename(t *testing.T) {
	from, to, err := ParseRename("A:A_gray")
	if err != nil || from != "A" || to != "A_gray" {
		t.Fatal(from, to, err)
	}
	for _, bad := range []string{"", "A", ":b", "a:"} {
		if _, _, err := ParseRename(bad); err == nil {
			t.Fatalf("%q: expected failure", bad)
		}
	}
}
