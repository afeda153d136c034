package store

// Setting represents a simple key-value pair scoped to instance/profile.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt string
}

// SavedSession is the desktop-side record of the most recent camera session.
// Timestamps are stored as RFC 3339 UTC strings; ExpiresAt may be empty for
// records written before expiry tracking existed.
type SavedSession struct {
	SessionID string
	RelayURL  string
	JoinURL   string
	CreatedAt string
	ExpiresAt string
	UpdatedAt string
}

// Profile contains metadata about available profiles.
type Profile struct {
	Name      string
	IsDefault bool
	CreatedAt string
	UpdatedAt string
}

// TransportConfig captures daemon binding-related settings.
type TransportConfig struct {
	Port           int
	Binding        string   // loopback/lan/public
	AdvertisedURL  string   // external base URL embedded in join links
	AllowedOrigins []string // websocket origin allowlist
}
