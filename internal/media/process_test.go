package media

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/jpeg"
	"testing"
	"time"

	"github.com/lenscast/lenscast/internal/protocol"
	"github.com/lenscast/lenscast/internal/vision"
)

func decodeFrameData(t *testing.T, data string) image.Image {
	t.Helper()

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		t.Fatalf("frame data is not base64: %v", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("frame data is not JPEG: %v", err)
	}
	return img
}

func testFrame(width, height int) *RawFrame {
	return &RawFrame{
		Image:     image.NewRGBA(image.Rect(0, 0, width, height)),
		Timestamp: time.Now().UTC(),
	}
}

func TestScaleToWidthPreservesAspect(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 1280, 720))

	scaled := ScaleToWidth(img, 640)
	if bounds := scaled.Bounds(); bounds.Dx() != 640 || bounds.Dy() != 360 {
		t.Fatalf("expected 640x360, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestScaleToWidthNeverUpscales(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 240))

	if got := ScaleToWidth(img, 640); got != img {
		t.Fatal("expected small image to pass through unscaled")
	}
	if got := ScaleToWidth(img, 0); got != img {
		t.Fatal("expected non-positive target to pass through")
	}
}

func TestEncodeJPEGRoundTrip(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))

	data, err := EncodeJPEG(img, 70)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	decoded := decodeFrameData(t, data)
	if bounds := decoded.Bounds(); bounds.Dx() != 64 || bounds.Dy() != 48 {
		t.Fatalf("expected 64x48 after round trip, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestDecodeImageData(t *testing.T) {
	data, err := EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 40, 30)), 70)
	if err != nil {
		t.Fatalf("EncodeJPEG: %v", err)
	}
	img, err := DecodeImageData(data)
	if err != nil {
		t.Fatalf("DecodeImageData: %v", err)
	}
	if bounds := img.Bounds(); bounds.Dx() != 40 || bounds.Dy() != 30 {
		t.Fatalf("expected 40x30, got %dx%d", bounds.Dx(), bounds.Dy())
	}

	if _, err := DecodeImageData("not-base64!"); err == nil {
		t.Fatal("expected error for invalid base64")
	}
	if _, err := DecodeImageData("aGVsbG8="); err == nil {
		t.Fatal("expected error for non-JPEG payload")
	}
}

func TestProcessRawReportsOutputDimensions(t *testing.T) {
	data, dims, err := ProcessRaw(testFrame(1280, 720), 640, 70)
	if err != nil {
		t.Fatalf("ProcessRaw: %v", err)
	}
	if dims.Width != 640 || dims.Height != 360 {
		t.Fatalf("expected 640x360 dimensions, got %dx%d", dims.Width, dims.Height)
	}

	decoded := decodeFrameData(t, data)
	if bounds := decoded.Bounds(); bounds.Dx() != dims.Width || bounds.Dy() != dims.Height {
		t.Fatalf("reported dimensions %dx%d do not match encoded %dx%d",
			dims.Width, dims.Height, bounds.Dx(), bounds.Dy())
	}
}

func TestProcessCroppedEnforcesFixedAspect(t *testing.T) {
	frame := testFrame(640, 480)
	grid := protocol.GridFromCorners(protocol.QuadCorners{
		TopLeft:     protocol.Point{X: 100, Y: 100},
		TopRight:    protocol.Point{X: 500, Y: 110},
		BottomLeft:  protocol.Point{X: 95, Y: 300},
		BottomRight: protocol.Point{X: 505, Y: 290},
	})

	data, err := ProcessCropped(frame, vision.CropRectifier{}, grid, 480, 70)
	if err != nil {
		t.Fatalf("ProcessCropped: %v", err)
	}

	decoded := decodeFrameData(t, data)
	wantHeight := CroppedHeightFor(480)
	if bounds := decoded.Bounds(); bounds.Dx() != 480 || bounds.Dy() != wantHeight {
		t.Fatalf("expected 480x%d cropped output, got %dx%d", wantHeight, bounds.Dx(), bounds.Dy())
	}
}

func TestProcessCroppedRequiresRectifier(t *testing.T) {
	grid := protocol.GridFromCorners(protocol.QuadCorners{})
	if _, err := ProcessCropped(testFrame(64, 48), nil, grid, 480, 70); err == nil {
		t.Fatal("expected error without a rectifier")
	}
}

func TestCroppedHeightFor(t *testing.T) {
	if got := CroppedHeightFor(480); got != 160 {
		t.Fatalf("expected height 160 for width 480, got %d", got)
	}
	if got := CroppedHeightFor(1); got != 1 {
		t.Fatalf("expected minimum height 1, got %d", got)
	}
}
