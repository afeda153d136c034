package media

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

func writeSolidImage(t *testing.T, path string, c color.RGBA) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	switch filepath.Ext(path) {
	case ".png":
		err = png.Encode(f, img)
	default:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

func framesEqual(a, b image.Image) bool {
	ab, bb := a.Bounds(), b.Bounds()
	if ab != bb {
		return false
	}
	for y := ab.Min.Y; y < ab.Max.Y; y++ {
		for x := ab.Min.X; x < ab.Max.X; x++ {
			if a.At(x, y) != b.At(x, y) {
				return false
			}
		}
	}
	return true
}

func TestTestPatternSourceFramesDiffer(t *testing.T) {
	src := NewTestPatternSource(320, 240)
	defer src.Close()

	first, err := src.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	second, err := src.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}

	if first.Seq != 0 || second.Seq != 1 {
		t.Fatalf("expected sequential frame numbers, got %d and %d", first.Seq, second.Seq)
	}
	if bounds := first.Image.Bounds(); bounds.Dx() != 320 || bounds.Dy() != 240 {
		t.Fatalf("expected 320x240 frame, got %dx%d", bounds.Dx(), bounds.Dy())
	}
	if first.Timestamp.IsZero() {
		t.Fatal("expected frame timestamp to be set")
	}

	// The block must actually move between frames.
	if framesEqual(first.Image, second.Image) {
		t.Fatal("consecutive pattern frames are identical")
	}
}

func TestTestPatternSourceDefaultsGeometry(t *testing.T) {
	src := NewTestPatternSource(0, -1)
	frame, err := src.NextFrame(context.Background())
	if err != nil {
		t.Fatalf("frame: %v", err)
	}
	if bounds := frame.Image.Bounds(); bounds.Dx() != 640 || bounds.Dy() != 480 {
		t.Fatalf("expected 640x480 fallback, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestSourceHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewTestPatternSource(64, 48)
	if _, err := src.NextFrame(ctx); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestDirectorySourceCyclesFiles(t *testing.T) {
	dir := t.TempDir()
	writeSolidImage(t, filepath.Join(dir, "a.png"), color.RGBA{R: 255, A: 255})
	writeSolidImage(t, filepath.Join(dir, "b.png"), color.RGBA{B: 255, A: 255})
	writeSolidImage(t, filepath.Join(dir, "c.jpg"), color.RGBA{G: 255, A: 255})
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write notes.txt: %v", err)
	}

	src, err := NewDirectorySource(dir)
	if err != nil {
		t.Fatalf("NewDirectorySource: %v", err)
	}
	defer src.Close()

	sample := func() color.RGBA {
		frame, err := src.NextFrame(context.Background())
		if err != nil {
			t.Fatalf("NextFrame: %v", err)
		}
		r, g, b, _ := frame.Image.At(16, 16).RGBA()
		return color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
	}

	// Files come back in name order, then the cycle restarts.
	if got := sample(); got.R < 200 {
		t.Fatalf("expected red first frame, got %+v", got)
	}
	if got := sample(); got.B < 200 {
		t.Fatalf("expected blue second frame, got %+v", got)
	}
	if got := sample(); got.G < 200 {
		t.Fatalf("expected green third frame, got %+v", got)
	}
	if got := sample(); got.R < 200 {
		t.Fatalf("expected cycle back to red, got %+v", got)
	}
}

func TestDirectorySourceRejectsEmptyDir(t *testing.T) {
	if _, err := NewDirectorySource(t.TempDir()); err == nil {
		t.Fatal("expected error for directory without images")
	}
	if _, err := NewDirectorySource(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("expected error for missing directory")
	}
}
