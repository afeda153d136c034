// Package vision holds the image-geometry collaborators of the phone and
// desktop agents. Real perspective rectification and fiducial detection live
// in external implementations; this package defines their contracts and
// ships simple built-ins so the pipeline runs end to end without them.
package vision

import (
	"image"

	"github.com/lenscast/lenscast/internal/protocol"
)

// Rectifier produces a cropped, perspective-corrected image of the given
// output geometry from the region named by the corners. Implementations must
// not retain or modify src.
type Rectifier interface {
	Rectify(src image.Image, corners protocol.QuadCorners, width, height int) (image.Image, error)
}

// MarkerDetector locates the calibration markers in a frame. The boolean
// reports whether a usable quadrilateral was found.
type MarkerDetector interface {
	Detect(src image.Image) (protocol.QuadCorners, bool)
}
