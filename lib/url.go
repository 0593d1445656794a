package lib

import (
	"fmt"
	"net/url"
	"strings"
)

// ParsePublicURL parses the base URL a service advertises to clients and
// dashboards. The URL must be absolute over http or https. Trailing
// slashes are trimmed so derived URLs never double up separators; a query
// or fragment is rejected because every derived URL would inherit it.
func ParsePublicURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("public URL is empty")
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing public URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("public URL %q must use http or https", raw)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("public URL %q has no host", raw)
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return nil, fmt.Errorf("public URL %q must not carry a query or fragment", raw)
	}

	u.Path = strings.TrimRight(u.Path, "/")
	return u, nil
}
