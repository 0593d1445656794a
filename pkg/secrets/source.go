// Package secrets fetches pipeline credentials from an upstream source,
// shielding callers behind a circuit breaker with a file-backed fallback
// snapshot.
package secrets

import (
	"context"
	"os"
	"strings"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("secrets")

// Source provides the current secret set from an upstream.
type Source interface {
	Fetch(ctx context.Context) (map[string]string, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (map[string]string, error)

func (f SourceFunc) Fetch(ctx context.Context) (map[string]string, error) { return f(ctx) }

// EnvSource reads secrets from the process environment. Variables carrying
// the prefix are exposed with the prefix stripped.
type EnvSource struct {
	Prefix string
}

func (s EnvSource) Fetch(context.Context) (map[string]string, error) {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, s.Prefix) {
			continue
		}
		name := strings.TrimPrefix(key, s.Prefix)
		if name == "" {
			continue
		}
		out[name] = value
	}
	return out, nil
}

// StaticSource serves a fixed secret set.
type StaticSource map[string]string

func (s StaticSource) Fetch(context.Context) (map[string]string, error) {
	out := make(map[string]string, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}
