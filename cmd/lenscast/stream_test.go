package main

import (
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/lenscast/lenscast/internal/media"
)

func TestRelayURLFromJoin(t *testing.T) {
	cmd := newTestCommand()
	if err := cmd.Flags().Set("relay", "http://fallback:8000"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	if got := relayURLFromJoin(cmd, "http://192.168.1.20:8765/join/abc123"); got != "http://192.168.1.20:8765" {
		t.Fatalf("relayURLFromJoin = %q, want join URL host", got)
	}
	if got := relayURLFromJoin(cmd, "https://cast.example.com/join/abc123"); got != "https://cast.example.com" {
		t.Fatalf("relayURLFromJoin = %q, want https host", got)
	}
	// Bare session ids carry no host, so resolution falls back.
	if got := relayURLFromJoin(cmd, "abc123"); got != "http://fallback:8000" {
		t.Fatalf("relayURLFromJoin = %q, want fallback", got)
	}
}

func TestBuildFrameSourcePattern(t *testing.T) {
	cmd := newTestCommand()
	cmd.Flags().String("source", "pattern", "")

	src, name, err := buildFrameSource(cmd)
	if err != nil {
		t.Fatalf("buildFrameSource failed: %v", err)
	}
	defer src.Close()
	if name != "pattern" {
		t.Fatalf("source name = %q, want pattern", name)
	}
	if _, ok := src.(*media.TestPatternSource); !ok {
		t.Fatalf("expected test pattern source, got %T", src)
	}
}

func TestBuildFrameSourceDirectory(t *testing.T) {
	dir := t.TempDir()
	writeTestPNG(t, filepath.Join(dir, "frame.png"))

	cmd := newTestCommand()
	cmd.Flags().String("source", dir, "")

	src, name, err := buildFrameSource(cmd)
	if err != nil {
		t.Fatalf("buildFrameSource failed: %v", err)
	}
	defer src.Close()
	if name != dir {
		t.Fatalf("source name = %q, want %q", name, dir)
	}
	if _, ok := src.(*media.DirectorySource); !ok {
		t.Fatalf("expected directory source, got %T", src)
	}
}

func TestBuildFrameSourceMissingDirectory(t *testing.T) {
	cmd := newTestCommand()
	cmd.Flags().String("source", filepath.Join(t.TempDir(), "nope"), "")

	if _, _, err := buildFrameSource(cmd); err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create image file: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
}
