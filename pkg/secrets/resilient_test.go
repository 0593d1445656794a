package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sidequest-dev/foreman/pkg/faults"
)

// flakySource is an upstream whose availability the test scripts.
type flakySource struct {
	mu    sync.Mutex
	fail  bool
	calls int
	value map[string]string
}

func (s *flakySource) Fetch(context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail {
		return nil, errors.New("upstream returned 503")
	}
	out := make(map[string]string, len(s.value))
	for k, v := range s.value {
		out[k] = v
	}
	return out, nil
}

func (s *flakySource) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func (s *flakySource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func seedSnapshot(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestEnvSourceStripsPrefix(t *testing.T) {
	t.Setenv("FM_SECRET_API_KEY", "zzz")
	t.Setenv("FM_SECRET_DB_URL", "postgres://x")
	t.Setenv("UNRELATED", "nope")

	got, err := EnvSource{Prefix: "FM_SECRET_"}.Fetch(context.Background())
	require.NoError(t, err)
	require.Equal(t, "zzz", got["API_KEY"])
	require.Equal(t, "postgres://x", got["DB_URL"])
	require.NotContains(t, got, "UNRELATED")
}

func TestBreakerOpensAfterThresholdAndShortCircuits(t *testing.T) {
	src := &flakySource{fail: true}
	path := seedSnapshot(t, `{"API_KEY":"cached"}`)
	r, err := NewResilient(src, WithFallbackPath(path), WithTimeout(200*time.Millisecond))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < DefaultFailureThreshold; i++ {
		secrets, err := r.Fetch(ctx)
		require.NoError(t, err, "fallback must absorb upstream failure %d", i+1)
		require.Equal(t, "cached", secrets["API_KEY"])
	}
	require.Equal(t, DefaultFailureThreshold, src.callCount())

	h := r.Health()
	require.Equal(t, "open", h.State)
	require.Equal(t, DefaultFailureThreshold, h.ConsecutiveFailures)
	require.True(t, h.UsingFallback)
	require.NotNil(t, h.LastError)
	require.Positive(t, h.WaitTimeMS)
	require.NotNil(t, h.NextAttemptTime)
	require.Equal(t, int64(4000), h.CurrentBackoffMS)

	// Open breaker short-circuits; the upstream is not called again.
	secrets, err := r.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, "cached", secrets["API_KEY"])
	require.Equal(t, DefaultFailureThreshold, src.callCount())
}

func TestHalfOpenClosesAfterTwoSuccesses(t *testing.T) {
	src := &flakySource{fail: true, value: map[string]string{"API_KEY": "fresh"}}
	path := seedSnapshot(t, `{"API_KEY":"cached"}`)
	r, err := NewResilient(src, WithFallbackPath(path), WithTimeout(60*time.Millisecond))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < DefaultFailureThreshold; i++ {
		_, _ = r.Fetch(ctx)
	}
	require.Equal(t, "open", r.Health().State)

	src.setFail(false)
	require.Eventually(t, func() bool {
		return r.Health().State == "half-open"
	}, 2*time.Second, 10*time.Millisecond)

	secrets, err := r.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, "fresh", secrets["API_KEY"])
	require.Equal(t, "half-open", r.Health().State)

	_, err = r.Fetch(ctx)
	require.NoError(t, err)

	h := r.Health()
	require.Equal(t, "closed", h.State)
	require.Zero(t, h.ConsecutiveFailures)
	require.Zero(t, h.CurrentBackoffMS)
	require.False(t, h.UsingFallback)
	require.Nil(t, h.NextAttemptTime)

	// The healed fetch rewrote the snapshot.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"API_KEY":"fresh"}`, string(raw))
}

func TestHalfOpenFailureReopens(t *testing.T) {
	src := &flakySource{fail: true}
	path := seedSnapshot(t, `{"API_KEY":"cached"}`)
	r, err := NewResilient(src, WithFallbackPath(path), WithTimeout(60*time.Millisecond))
	require.NoError(t, err)

	ctx := context.Background()
	for i := 0; i < DefaultFailureThreshold; i++ {
		_, _ = r.Fetch(ctx)
	}
	calls := src.callCount()

	require.Eventually(t, func() bool {
		return r.Health().State == "half-open"
	}, 2*time.Second, 10*time.Millisecond)

	secrets, err := r.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, "cached", secrets["API_KEY"])
	require.Equal(t, calls+1, src.callCount(), "half-open admits exactly one probe")
	require.Equal(t, "open", r.Health().State)
}

func TestFallbackReloadsFromDiskAfterTTL(t *testing.T) {
	src := &flakySource{fail: true}
	path := seedSnapshot(t, `{"API_KEY":"v1"}`)
	r, err := NewResilient(src,
		WithFallbackPath(path),
		WithTimeout(time.Minute),
		WithFallbackTTL(40*time.Millisecond))
	require.NoError(t, err)

	ctx := context.Background()
	secrets, err := r.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, "v1", secrets["API_KEY"])

	// Newer snapshot on disk is invisible until the in-process copy
	// expires.
	require.NoError(t, os.WriteFile(path, []byte(`{"API_KEY":"v2"}`), 0o600))
	secrets, err = r.Fetch(ctx)
	require.NoError(t, err)
	require.Equal(t, "v1", secrets["API_KEY"])

	require.Eventually(t, func() bool {
		got, err := r.Fetch(ctx)
		return err == nil && got["API_KEY"] == "v2"
	}, 2*time.Second, 20*time.Millisecond)
}

func TestNoFallbackSurfacesError(t *testing.T) {
	src := &flakySource{fail: true}
	r, err := NewResilient(src, WithTimeout(time.Minute))
	require.NoError(t, err)

	_, err = r.Fetch(context.Background())
	require.ErrorIs(t, err, ErrNoFallback)

	_, err = r.Get(context.Background(), "API_KEY")
	require.ErrorIs(t, err, ErrNoFallback)
}

func TestGetReturnsSingleSecret(t *testing.T) {
	r, err := NewResilient(StaticSource{"TOKEN": "abc"})
	require.NoError(t, err)

	got, err := r.Get(context.Background(), "TOKEN")
	require.NoError(t, err)
	require.Equal(t, "abc", got)

	_, err = r.Get(context.Background(), "MISSING")
	require.ErrorIs(t, err, faults.ErrNotFound)
}

func TestSuccessWritesSnapshotFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "secrets.json")
	r, err := NewResilient(StaticSource{"TOKEN": "abc"}, WithFallbackPath(path))
	require.NoError(t, err)

	_, err = r.Fetch(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.JSONEq(t, `{"TOKEN":"abc"}`, string(raw))

	h := r.Health()
	require.Equal(t, uint64(1), h.TotalCalls)
	require.Equal(t, uint64(1), h.TotalSuccesses)
	require.Equal(t, float64(1), h.SuccessRate)
}
