package constants

// DefaultHTTPPort is the relay port used when the transport config carries
// none. The daemon persists the effective port back into the store, so the
// CLI can always resolve the running daemon from there.
const DefaultHTTPPort = 8765
