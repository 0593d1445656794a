package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

func readyChecker() *Checker {
	c := NewChecker()
	c.SetReady(true)
	return c
}

// hit invokes one handler func against a fresh context and decodes the
// response body.
func hit(t *testing.T, h func(echo.Context) error, path string) (int, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h(echo.New().NewContext(req, rec)))

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func staticCheck(name string, status Status) CheckFunc {
	return func(context.Context) Check {
		return Check{Name: name, Status: status}
	}
}

func TestHealthAggregation(t *testing.T) {
	t.Run("all checks passing", func(t *testing.T) {
		checker := readyChecker()
		checker.AddCheck(staticCheck("store", StatusOK))

		code, resp := hit(t, NewHandler(checker).Health, "/health")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, StatusOK, resp.Status)
		require.Len(t, resp.Checks, 2, "readiness plus the store check")
	})

	t.Run("degraded component keeps serving", func(t *testing.T) {
		checker := readyChecker()
		checker.AddCheck(staticCheck("store", StatusDegraded))

		code, resp := hit(t, NewHandler(checker).Health, "/health")
		require.Equal(t, http.StatusOK, code, "degraded is not an outage")
		require.Equal(t, StatusDegraded, resp.Status)
	})

	t.Run("failed component answers 503", func(t *testing.T) {
		checker := readyChecker()
		checker.AddCheck(staticCheck("secrets", StatusFailed))

		code, resp := hit(t, NewHandler(checker).Health, "/health")
		require.Equal(t, http.StatusServiceUnavailable, code)
		require.Equal(t, StatusFailed, resp.Status)
	})

	t.Run("worst status wins", func(t *testing.T) {
		checker := readyChecker()
		checker.AddCheck(staticCheck("store", StatusDegraded))
		checker.AddCheck(staticCheck("secrets", StatusFailed))
		checker.AddCheck(staticCheck("engine", StatusOK))

		code, resp := hit(t, NewHandler(checker).Health, "/health")
		require.Equal(t, http.StatusServiceUnavailable, code)
		require.Equal(t, StatusFailed, resp.Status)
		require.Len(t, resp.Checks, 4)
	})
}

func TestLivenessIgnoresReadiness(t *testing.T) {
	code, resp := hit(t, NewHandler(NewChecker()).Liveness, "/livez")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, StatusOK, resp.Status)
}

func TestReadiness(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		code, resp := hit(t, NewHandler(readyChecker()).Readiness, "/readyz")
		require.Equal(t, http.StatusOK, code)
		require.Equal(t, StatusOK, resp.Status)
	})

	t.Run("not ready", func(t *testing.T) {
		code, resp := hit(t, NewHandler(NewChecker()).Readiness, "/readyz")
		require.Equal(t, http.StatusServiceUnavailable, code)
		require.Equal(t, StatusFailed, resp.Status)
	})
}

func TestRegisterRoutesMountsAllSurfaces(t *testing.T) {
	e := echo.New()
	NewHandler(readyChecker()).RegisterRoutes(e)

	mounted := map[string]bool{}
	for _, r := range e.Routes() {
		mounted[r.Path] = true
	}
	for _, path := range []string{"/health", "/healthz", "/livez", "/readyz"} {
		require.True(t, mounted[path], "%s not registered", path)
	}
}
