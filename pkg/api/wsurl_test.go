package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveWebSocketURL(t *testing.T) {
	cases := []struct {
		name string
		base string
		want string
	}{
		{"https with explicit port", "https://api.host:3000", "wss://api.host:3000/ws"},
		{"http without port", "http://example.com", "ws://example.com/ws"},
		{"http default port dropped", "http://example.com:80", "ws://example.com/ws"},
		{"https default port dropped", "https://example.com:443", "wss://example.com/ws"},
		{"non-default https port kept", "https://example.com:8443", "wss://example.com:8443/ws"},
		{"path preserved", "https://example.com/foreman", "wss://example.com/foreman/ws"},
		{"trailing slash collapsed", "http://example.com:9000/", "ws://example.com:9000/ws"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := DeriveWebSocketURL(tc.base)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}

	t.Run("rejects invalid URLs", func(t *testing.T) {
		for _, base := range []string{"", "example.com", "://missing-scheme", "http://"} {
			_, err := DeriveWebSocketURL(base)
			require.Error(t, err, "base %q", base)
		}
	})
}
