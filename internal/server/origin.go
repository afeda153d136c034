package server

import "net/url"

type builtinOrigin struct {
	scheme  string
	host    string
	portAny bool
}

// Local viewers served off the developer's own machine are always allowed;
// anything else must be listed in transport.allowed_origins.
var builtinOrigins = []builtinOrigin{
	{scheme: "http", host: "localhost", portAny: true},
	{scheme: "http", host: "127.0.0.1", portAny: true},
}

func isBuiltinOrigin(u *url.URL) bool {
	if u == nil {
		return false
	}
	hostname := u.Hostname()
	port := u.Port()
	for _, b := range builtinOrigins {
		if u.Scheme != b.scheme {
			continue
		}
		if hostname != b.host {
			continue
		}
		if !b.portAny && port != "" {
			continue
		}
		return true
	}
	return false
}

func (tc *transportConfig) originAllowed(origin string) bool {
	if origin == "" {
		return false
	}

	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Hostname() == "" {
		return false
	}

	if isBuiltinOrigin(u) {
		return true
	}

	tc.transportMu.RLock()
	defer tc.transportMu.RUnlock()
	for _, allowed := range tc.allowedOrigins {
		if origin == allowed {
			return true
		}
	}
	return false
}
