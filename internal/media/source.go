package media

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
)

// RawFrame is one captured frame before processing. Image contents must not
// be modified after NextFrame returns; downstream stages share the pixels by
// reference.
type RawFrame struct {
	Image     image.Image
	Timestamp time.Time
	Seq       uint64
}

// Source produces frames for the phone agent's capture loop. Implementations
// are driven from a single loop goroutine and need not be safe for
// concurrent NextFrame calls.
type Source interface {
	NextFrame(ctx context.Context) (*RawFrame, error)
	Close() error
}

// TestPatternSource synthesizes frames: a white block sliding over a color
// gradient. It stands in for camera hardware in tests and on machines
// without a capture device.
type TestPatternSource struct {
	width  int
	height int
	seq    uint64
}

// NewTestPatternSource creates a pattern source with the given frame
// geometry. Non-positive dimensions fall back to 640x480.
func NewTestPatternSource(width, height int) *TestPatternSource {
	if width <= 0 {
		width = 640
	}
	if height <= 0 {
		height = 480
	}
	return &TestPatternSource{width: width, height: height}
}

func (s *TestPatternSource) NextFrame(ctx context.Context) (*RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for y := 0; y < s.height; y++ {
		for x := 0; x < s.width; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x * 255 / s.width),
				G: uint8(y * 255 / s.height),
				B: 128,
				A: 255,
			})
		}
	}

	// The block advances with the sequence number so consecutive frames
	// differ.
	blockSize := s.height / 4
	if blockSize < 8 {
		blockSize = 8
	}
	if blockSize > s.width {
		blockSize = s.width
	}
	blockX := 0
	if span := s.width - blockSize; span > 0 {
		blockX = int(s.seq*16) % span
	}
	blockY := (s.height - blockSize) / 2
	if blockY < 0 {
		blockY = 0
	}
	for y := blockY; y < blockY+blockSize && y < s.height; y++ {
		for x := blockX; x < blockX+blockSize; x++ {
			img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
	}

	frame := &RawFrame{
		Image:     img,
		Timestamp: time.Now().UTC(),
		Seq:       s.seq,
	}
	s.seq++
	return frame, nil
}

func (s *TestPatternSource) Close() error {
	return nil
}

// DirectorySource cycles through the JPEG and PNG files of a directory,
// decoding one per frame. Useful for replaying captured footage against a
// live relay.
type DirectorySource struct {
	files []string
	idx   int
	seq   uint64
}

// NewDirectorySource lists the image files in dir. The file list is fixed at
// construction; files added later are not picked up.
func NewDirectorySource(dir string) (*DirectorySource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("media: read source directory: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("media: no JPEG or PNG files in %s", dir)
	}

	return &DirectorySource{files: files}, nil
}

func (s *DirectorySource) NextFrame(ctx context.Context) (*RawFrame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.files[s.idx]
	s.idx = (s.idx + 1) % len(s.files)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("media: open %s: %w", path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("media: decode %s: %w", path, err)
	}

	frame := &RawFrame{
		Image:     img,
		Timestamp: time.Now().UTC(),
		Seq:       s.seq,
	}
	s.seq++
	return frame, nil
}

func (s *DirectorySource) Close() error {
	return nil
}
