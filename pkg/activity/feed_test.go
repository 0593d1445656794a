package activity

import (
	"errors"
	"testing"
	"time"

	"github.com/raulk/clock"
	"github.com/stretchr/testify/require"

	"github.com/sidequest-dev/foreman/pkg/events"
)

func TestAddStampsMonotonicIDsAndTrims(t *testing.T) {
	f, err := NewFeed(WithMax(5))
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		f.Add(Activity{Type: "job:created"})
	}

	got := f.Recent(10)
	require.Len(t, got, 5)
	// Newest first; the two oldest entries fell off the ring.
	require.Equal(t, int64(7), got[0].ID)
	require.Equal(t, int64(3), got[4].ID)
	for _, a := range got {
		require.False(t, a.Timestamp.IsZero())
	}
}

func TestRecentDefaultsToTwenty(t *testing.T) {
	f, err := NewFeed()
	require.NoError(t, err)
	for i := 0; i < 30; i++ {
		f.Add(Activity{Type: "job:created"})
	}
	require.Len(t, f.Recent(0), DefaultRecent)
	require.Len(t, f.Recent(3), 3)
}

func TestAddPublishesActivityNew(t *testing.T) {
	var got []events.Message
	pub := events.PublisherFunc(func(msg events.Message) { got = append(got, msg) })
	f, err := NewFeed(WithPublisher(pub))
	require.NoError(t, err)

	f.Add(Activity{Type: "job:completed", JobID: "job-1"})
	require.Len(t, got, 1)
	require.Equal(t, events.TypeActivityNew, got[0].Type)
	require.Equal(t, events.ChannelActivity, events.ChannelFor(got[0].Type))
}

func TestListenerConvertsJobEvents(t *testing.T) {
	f, err := NewFeed()
	require.NoError(t, err)

	f.Publish(events.JobCreated("job-1", "duplication-scan"))
	f.Publish(events.JobStarted("job-1", "duplication-scan"))
	f.Publish(events.JobFailed("job-1", "duplication-scan",
		map[string]any{"message": "scan blew up", "code": "ETIMEDOUT"}, true))
	f.Publish(events.RetryCreated("job-1", "job-1-retry1", 1, 3, "ETIMEDOUT", 5*time.Second))
	f.Publish(events.RetryMaxAttempts("job-1", 3))
	f.Publish(events.JobCompleted("job-1-retry1", "duplication-scan", time.Second))
	// Not a feed type; ignored.
	f.Publish(events.CacheHit("job-1:json"))

	got := f.Recent(10)
	require.Len(t, got, 6)
	require.Equal(t, "check", got[0].Icon)

	var failed Activity
	for _, a := range got {
		if a.Type == events.TypeJobFailed {
			failed = a
		}
	}
	require.NotNil(t, failed.Error)
	require.Equal(t, "scan blew up", failed.Error.Message)
	require.Equal(t, "ETIMEDOUT", failed.Error.Code)
	require.Contains(t, failed.Message, "scan blew up")
	require.Equal(t, "duplication-scan", failed.PipelineID)
}

func TestListenerDropsJobsWithoutID(t *testing.T) {
	f, err := NewFeed()
	require.NoError(t, err)

	f.Publish(events.JobCreated("", "duplication-scan"))
	f.Publish(events.New(events.TypeJobFailed, map[string]any{"job_type": "scan"}))

	require.Empty(t, f.Recent(10))
}

func TestSanitizeErrorNeverYieldsEmptyMessage(t *testing.T) {
	cases := []struct {
		name    string
		in      any
		message string
		code    string
	}{
		{"nil", nil, "Job failed with no error details", ""},
		{"empty string", "", "Unknown error", ""},
		{"string", "boom", "boom", ""},
		{"error value", errors.New("kaput"), "kaput", ""},
		{"map with message and code", map[string]any{"message": "m", "code": "E1"}, "m", "E1"},
		{"map without message", map[string]any{"status": 500}, "Unknown error", ""},
		{"empty map", map[string]any{}, "Unknown error", ""},
		{"number", 42, "42", ""},
		{"float", 1.5, "1.5", ""},
		{"bool", false, "false", ""},
		{"weird payload", []byte("x"), "Unknown error", ""},
		{"nested junk", map[string]any{"message": 7}, "Unknown error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := SanitizeError(tc.in)
			require.Equal(t, tc.message, rec.Message)
			require.Equal(t, tc.code, rec.Code)
			require.NotEmpty(t, rec.Message)
		})
	}
}

func TestStatsBucketsByAge(t *testing.T) {
	mock := clock.NewMock()
	f, err := NewFeed(WithClock(mock))
	require.NoError(t, err)

	f.Add(Activity{Type: "job:created"})
	mock.Add(2 * time.Hour)
	f.Add(Activity{Type: "job:completed"})
	mock.Add(30 * time.Minute)
	f.Add(Activity{Type: "job:completed"})

	stats := f.Stats()
	require.Equal(t, 3, stats.Recent.Total)
	require.Equal(t, 2, stats.Recent.LastHour)
	require.Equal(t, 3, stats.Recent.LastDay)
	require.Equal(t, 1, stats.TypeCount["job:created"])
	require.Equal(t, 2, stats.TypeCount["job:completed"])
	require.NotNil(t, stats.Oldest)
	require.NotNil(t, stats.Newest)
	require.True(t, stats.Newest.After(*stats.Oldest))
}

func TestClearKeepsIDsMonotonic(t *testing.T) {
	f, err := NewFeed()
	require.NoError(t, err)
	f.Add(Activity{Type: "job:created"})
	f.Add(Activity{Type: "job:created"})
	f.Clear()
	require.Empty(t, f.Recent(10))

	a := f.Add(Activity{Type: "job:created"})
	require.Equal(t, int64(3), a.ID)
}
