package health

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChecker_NotReadyByDefault(t *testing.T) {
	c := NewChecker()

	assert.False(t, c.IsReady(), "checker should report not-ready until the engine starts")
}

func TestChecker_SetReady(t *testing.T) {
	c := NewChecker()
	assert.False(t, c.IsReady())

	c.SetReady(true)
	assert.True(t, c.IsReady())

	c.SetReady(false)
	assert.False(t, c.IsReady())
}

func TestChecker_LivenessCheck(t *testing.T) {
	c := NewChecker()

	resp := c.LivenessCheck()
	assert.Equal(t, StatusOK, resp.Status)
	assert.NotEmpty(t, resp.Version)
	assert.NotZero(t, resp.Timestamp)
}

func TestChecker_ReadinessCheck(t *testing.T) {
	c := NewChecker()

	resp := c.ReadinessCheck()
	assert.Equal(t, StatusFailed, resp.Status)

	c.SetReady(true)
	resp = c.ReadinessCheck()
	assert.Equal(t, StatusOK, resp.Status)
	assert.NotEmpty(t, resp.Version)
}

func TestChecker_HealthCheck_NoComponents(t *testing.T) {
	c := NewChecker()
	c.SetReady(true)

	resp := c.HealthCheck(context.Background())
	assert.Equal(t, StatusOK, resp.Status)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, "readiness", resp.Checks[0].Name)
	assert.Equal(t, StatusOK, resp.Checks[0].Status)
}

func TestChecker_HealthCheck_NotReady(t *testing.T) {
	c := NewChecker()

	resp := c.HealthCheck(context.Background())
	assert.Equal(t, StatusFailed, resp.Status)
	require.Len(t, resp.Checks, 1)
	assert.Equal(t, StatusFailed, resp.Checks[0].Status)
}

func TestChecker_HealthCheck_WorstStatusWins(t *testing.T) {
	c := NewChecker()
	c.SetReady(true)

	c.AddCheck(func(ctx context.Context) Check {
		return Check{Name: "store", Status: StatusOK}
	})
	c.AddCheck(func(ctx context.Context) Check {
		return Check{Name: "secrets", Status: StatusDegraded}
	})

	resp := c.HealthCheck(context.Background())
	assert.Equal(t, StatusDegraded, resp.Status)
	require.Len(t, resp.Checks, 3)

	c.AddCheck(func(ctx context.Context) Check {
		return Check{Name: "broken", Status: StatusFailed}
	})

	resp = c.HealthCheck(context.Background())
	assert.Equal(t, StatusFailed, resp.Status)
}

func TestChecker_HealthCheck_IncludesDetail(t *testing.T) {
	c := NewChecker()
	c.SetReady(true)

	c.AddCheck(func(ctx context.Context) Check {
		return Check{Name: "store", Status: StatusOK, Detail: map[string]int{"queued_writes": 0}}
	})

	resp := c.HealthCheck(context.Background())
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, "store", resp.Checks[1].Name)
	assert.NotNil(t, resp.Checks[1].Detail)
}
