package api

import (
	"fmt"
	"net/url"
	"strings"
)

// DeriveWebSocketURL maps an API base URL to its WebSocket endpoint:
// https becomes wss, anything else ws, and /ws is appended. Default ports
// are dropped so the derived URL matches what browsers emit.
func DeriveWebSocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base URL %q must be absolute", base)
	}

	host := u.Host
	switch u.Scheme {
	case "https":
		if u.Port() == "443" {
			host = u.Hostname()
		}
		u.Scheme = "wss"
	default:
		if u.Scheme == "http" && u.Port() == "80" {
			host = u.Hostname()
		}
		u.Scheme = "ws"
	}
	u.Host = host
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	return u.String(), nil
}
