package desktop

import (
	"log"
	"sync"
	"time"

	"github.com/lenscast/lenscast/internal/media"
	"github.com/lenscast/lenscast/internal/protocol"
	"github.com/lenscast/lenscast/internal/vision"
)

// Auto-calibration tunables. A handful of consecutive hits filters out
// single-frame flukes; the debounce keeps a brief occlusion from wiping a
// good calibration.
const (
	DefaultStableDetections = 3
	DefaultLostDebounce     = 2 * time.Second
)

// CalibrationTarget receives the calibration decisions. *Agent satisfies it.
type CalibrationTarget interface {
	PushCalibration(corners protocol.QuadCorners) error
	ClearCalibration() error
}

// AutoCalibratorConfig tunes detection stability. Zero values select the
// defaults.
type AutoCalibratorConfig struct {
	StableDetections int
	LostDebounce     time.Duration
}

// AutoCalibrator scans raw frames for the capture target. After enough
// consecutive detections it pushes the corners to the phone; once the
// markers stay lost past the debounce window it clears them again. Cropped
// frames are ignored, they mean the pushed calibration is in effect.
type AutoCalibrator struct {
	detector vision.MarkerDetector
	target   CalibrationTarget

	stableDetections int
	lostDebounce     time.Duration

	// nowFunc returns the current time. Overridden in tests.
	nowFunc func() time.Time

	mu       sync.Mutex
	hits     int
	pushed   bool
	lastSeen time.Time
}

// NewAutoCalibrator builds a calibrator pushing to target.
func NewAutoCalibrator(detector vision.MarkerDetector, target CalibrationTarget, cfg AutoCalibratorConfig) *AutoCalibrator {
	if cfg.StableDetections <= 0 {
		cfg.StableDetections = DefaultStableDetections
	}
	if cfg.LostDebounce <= 0 {
		cfg.LostDebounce = DefaultLostDebounce
	}
	return &AutoCalibrator{
		detector:         detector,
		target:           target,
		stableDetections: cfg.StableDetections,
		lostDebounce:     cfg.LostDebounce,
		nowFunc:          time.Now,
	}
}

// Observe feeds one received frame through the detector and pushes or
// clears calibration on state transitions. Sends run on their own goroutine
// so the caller's read loop never blocks on the relay.
func (c *AutoCalibrator) Observe(frame Frame) {
	if frame.Mode != protocol.FrameModeRaw {
		return
	}
	img, err := media.DecodeImageData(frame.ImageData)
	if err != nil {
		log.Printf("[AutoCalibrator] decode frame: %v", err)
		return
	}

	corners, found := c.detector.Detect(img)
	now := c.nowFunc()

	c.mu.Lock()
	defer c.mu.Unlock()
	if found {
		c.lastSeen = now
		c.hits++
		if !c.pushed && c.hits >= c.stableDetections {
			c.pushed = true
			go func() {
				if err := c.target.PushCalibration(corners); err != nil {
					log.Printf("[AutoCalibrator] push calibration: %v", err)
				}
			}()
		}
		return
	}

	c.hits = 0
	if c.pushed && !c.lastSeen.IsZero() && now.Sub(c.lastSeen) >= c.lostDebounce {
		c.pushed = false
		go func() {
			if err := c.target.ClearCalibration(); err != nil {
				log.Printf("[AutoCalibrator] clear calibration: %v", err)
			}
		}()
	}
}

// Pushed reports whether a calibration is currently pushed.
func (c *AutoCalibrator) Pushed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pushed
}
