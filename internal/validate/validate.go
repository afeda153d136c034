package validate

import (
	"fmt"
	"net/url"
	"regexp"
)

// SessionIDRe matches session identifiers issued by the session store:
// lowercase hex, fixed length. Anything else is rejected before it reaches
// the store or the relay.
var SessionIDRe = regexp.MustCompile(`^[0-9a-f]{8}$`)

// SessionID validates a session identifier.
func SessionID(s string) bool {
	return SessionIDRe.MatchString(s)
}

// IdentRe matches valid identifiers used for instance and profile names.
// Must start with alphanumeric, followed by alphanumeric, dots, hyphens, or underscores.
var IdentRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// MaxIdentLen is the maximum length for identifiers.
const MaxIdentLen = 128

// Ident validates a string as a valid identifier (instance or profile name).
func Ident(s string) bool {
	return len(s) > 0 && len(s) <= MaxIdentLen && IdentRe.MatchString(s)
}

// HTTPURL ensures the URL uses http or https scheme and has a non-empty host.
// Relay URLs come from user flags and persisted settings, so file://, ftp://
// and other schemes are rejected up front.
func HTTPURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	switch u.Scheme {
	case "http", "https":
		// OK
	case "":
		return fmt.Errorf("URL missing scheme: %s", rawURL)
	default:
		return fmt.Errorf("URL scheme %q not allowed (only http/https)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL missing host: %s", rawURL)
	}
	return nil
}
