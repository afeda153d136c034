package protocol

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// FrameMode selects what the phone sends: full downscaled frames or
// perspective-corrected crops.
type FrameMode string

const (
	FrameModeRaw     FrameMode = "raw"
	FrameModeCropped FrameMode = "cropped"
)

// Valid reports whether the mode is one of the known modes.
func (m FrameMode) Valid() bool {
	return m == FrameModeRaw || m == FrameModeCropped
}

// Point is a 2D position in source-image pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// QuadCorners names the four corners of the crop quadrilateral. Geometry is
// not validated here; degenerate quads are the rectifier's problem.
type QuadCorners struct {
	TopLeft     Point `json:"topLeft"`
	TopRight    Point `json:"topRight"`
	BottomLeft  Point `json:"bottomLeft"`
	BottomRight Point `json:"bottomRight"`
}

// CalibrationGrid describes the calibrated crop region and its column layout
// for downstream splitting.
type CalibrationGrid struct {
	Corners        QuadCorners `json:"corners"`
	ColumnCount    int         `json:"columnCount"`
	ColumnDividers []float64   `json:"columnDividers,omitempty"`
	Rotation       float64     `json:"rotation,omitempty"`
}

// Validate checks the column layout. Corners are passed through as-is.
func (g CalibrationGrid) Validate() error {
	if g.ColumnCount < 1 {
		return fmt.Errorf("protocol: column count %d, need at least 1", g.ColumnCount)
	}
	for _, d := range g.ColumnDividers {
		if d <= 0 || d >= 1 {
			return fmt.Errorf("protocol: column divider %v outside (0,1)", d)
		}
	}
	return nil
}

// GridFromCorners builds a single-column calibration grid. Used when the
// desktop pushes plain corners without column layout.
func GridFromCorners(corners QuadCorners) CalibrationGrid {
	return CalibrationGrid{Corners: corners, ColumnCount: 1}
}

// Dimensions carries pixel width and height of a frame.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Session is the public view of a relay session as reported by the REST API.
type Session struct {
	ID            string    `json:"id"`
	JoinURL       string    `json:"joinUrl,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	ExpiresAt     time.Time `json:"expiresAt"`
	PhoneJoined   bool      `json:"phoneJoined"`
	DesktopJoined bool      `json:"desktopJoined"`
}

// DaemonStatus is the /api/status response body.
type DaemonStatus struct {
	Version        string    `json:"version"`
	StartedAt      time.Time `json:"startedAt"`
	ActiveSessions int       `json:"activeSessions"`
	Connections    int       `json:"connections"`
}

const joinPathPrefix = "/join/"

// BuildJoinURL embeds a session id into a scannable URL under the relay's
// external base URL.
func BuildJoinURL(baseURL, sessionID string) string {
	return strings.TrimRight(baseURL, "/") + joinPathPrefix + sessionID
}

// ParseJoinURL extracts the session id from a join URL. A bare session id is
// accepted as-is so tokens can be typed by hand.
func ParseJoinURL(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("protocol: empty join token")
	}
	if !strings.Contains(raw, "/") {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("protocol: parse join URL: %w", err)
	}
	idx := strings.LastIndex(u.Path, joinPathPrefix)
	if idx < 0 {
		return "", fmt.Errorf("protocol: join URL %q has no session segment", raw)
	}
	id := u.Path[idx+len(joinPathPrefix):]
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("protocol: join URL %q has no session segment", raw)
	}
	return id, nil
}
