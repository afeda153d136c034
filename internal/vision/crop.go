package vision

import (
	"fmt"
	"image"
	"math"

	"golang.org/x/image/draw"

	"github.com/lenscast/lenscast/internal/protocol"
)

// CropRectifier approximates rectification with an axis-aligned crop: it
// takes the bounding box of the corners and scales it to the requested
// output geometry. Good enough for flat, camera-parallel targets; skewed
// shots need a real perspective transform.
type CropRectifier struct{}

func (CropRectifier) Rectify(src image.Image, corners protocol.QuadCorners, width, height int) (image.Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("vision: invalid output geometry %dx%d", width, height)
	}

	region := boundingBox(corners).Intersect(src.Bounds())
	if region.Empty() {
		return nil, fmt.Errorf("vision: corners outside the frame")
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, region, draw.Over, nil)
	return dst, nil
}

func boundingBox(c protocol.QuadCorners) image.Rectangle {
	minX := math.Min(math.Min(c.TopLeft.X, c.TopRight.X), math.Min(c.BottomLeft.X, c.BottomRight.X))
	maxX := math.Max(math.Max(c.TopLeft.X, c.TopRight.X), math.Max(c.BottomLeft.X, c.BottomRight.X))
	minY := math.Min(math.Min(c.TopLeft.Y, c.TopRight.Y), math.Min(c.BottomLeft.Y, c.BottomRight.Y))
	maxY := math.Max(math.Max(c.TopLeft.Y, c.TopRight.Y), math.Max(c.BottomLeft.Y, c.BottomRight.Y))

	return image.Rect(
		int(math.Floor(minX)),
		int(math.Floor(minY)),
		int(math.Ceil(maxX)),
		int(math.Ceil(maxY)),
	)
}
