package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"math"

	"golang.org/x/image/draw"

	"github.com/lenscast/lenscast/internal/protocol"
	"github.com/lenscast/lenscast/internal/vision"
)

// Frame processing tunables. These shape bandwidth, not the protocol:
// receivers take whatever geometry arrives.
const (
	// DefaultRawWidth is the target width for raw mode downscaling.
	DefaultRawWidth = 640

	// DefaultCroppedWidth is the output width for cropped mode.
	DefaultCroppedWidth = 480

	// DefaultJPEGQuality is the encoder quality for both modes.
	DefaultJPEGQuality = 70

	// CroppedAspectRatio is output height over width for cropped frames.
	// The photographed device has a fixed physical shape, so cropped
	// geometry derives from width alone, never from the input frame.
	CroppedAspectRatio = 1.0 / 3.0
)

// CroppedHeightFor derives the fixed-aspect output height for a width.
func CroppedHeightFor(width int) int {
	h := int(math.Round(float64(width) * CroppedAspectRatio))
	if h < 1 {
		h = 1
	}
	return h
}

// ScaleToWidth downscales img to targetWidth preserving its aspect ratio.
// Images already at or below the target pass through unchanged; this never
// upscales.
func ScaleToWidth(img image.Image, targetWidth int) image.Image {
	bounds := img.Bounds()
	if targetWidth <= 0 || bounds.Dx() <= targetWidth {
		return img
	}

	targetHeight := bounds.Dy() * targetWidth / bounds.Dx()
	if targetHeight < 1 {
		targetHeight = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, draw.Over, nil)
	return dst
}

// EncodeJPEG encodes img at the given quality and returns it base64-encoded
// for the frame payload. Non-positive quality falls back to the default.
func EncodeJPEG(img image.Image, quality int) (string, error) {
	if quality <= 0 {
		quality = DefaultJPEGQuality
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return "", fmt.Errorf("media: encode jpeg: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeImageData reverses EncodeJPEG. Receivers use it to get back at the
// pixels of a relayed frame.
func DecodeImageData(data string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("media: decode base64: %w", err)
	}
	img, err := jpeg.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("media: decode jpeg: %w", err)
	}
	return img, nil
}

// ProcessRaw downscales and encodes a frame for raw mode, reporting the
// output dimensions that accompany raw frames on the wire.
func ProcessRaw(frame *RawFrame, targetWidth, quality int) (string, protocol.Dimensions, error) {
	if targetWidth <= 0 {
		targetWidth = DefaultRawWidth
	}

	scaled := ScaleToWidth(frame.Image, targetWidth)
	data, err := EncodeJPEG(scaled, quality)
	if err != nil {
		return "", protocol.Dimensions{}, err
	}

	bounds := scaled.Bounds()
	return data, protocol.Dimensions{Width: bounds.Dx(), Height: bounds.Dy()}, nil
}

// ProcessCropped rectifies a frame against the calibration grid and encodes
// the result. Output geometry is the fixed-aspect contract: height derives
// from outputWidth regardless of the input frame's shape, which is why
// cropped frames carry no dimensions on the wire.
func ProcessCropped(frame *RawFrame, rectifier vision.Rectifier, grid protocol.CalibrationGrid, outputWidth, quality int) (string, error) {
	if rectifier == nil {
		return "", fmt.Errorf("media: rectifier is required for cropped mode")
	}
	if outputWidth <= 0 {
		outputWidth = DefaultCroppedWidth
	}

	rectified, err := rectifier.Rectify(frame.Image, grid.Corners, outputWidth, CroppedHeightFor(outputWidth))
	if err != nil {
		return "", fmt.Errorf("media: rectify frame: %w", err)
	}
	return EncodeJPEG(rectified, quality)
}
