package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sidequest-dev/foreman/pkg/build"
)

func get(t *testing.T, url, accept string) (*http.Response, string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	return res, string(body)
}

func TestBannerHandler(t *testing.T) {
	const publicURL = "http://foreman.example.com:9000"

	ts := httptest.NewServer(NewHandler(publicURL))
	defer ts.Close()

	t.Run("plain text by default", func(t *testing.T) {
		res, body := get(t, ts.URL, "")

		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Contains(t, res.Header.Get("Content-Type"), "text/plain")
		require.Contains(t, body, build.Version)
		require.Contains(t, body, publicURL)
		require.Contains(t, body, repoURL)
	})

	t.Run("json when requested", func(t *testing.T) {
		res, body := get(t, ts.URL, "application/json")

		require.Equal(t, http.StatusOK, res.StatusCode)
		require.Contains(t, res.Header.Get("Content-Type"), "application/json")

		var info ServerInfo
		require.NoError(t, json.Unmarshal([]byte(body), &info))
		require.Equal(t, "foreman", info.Name)
		require.Equal(t, publicURL, info.PublicURL)
		require.Equal(t, build.Version, info.Build.Version)
		require.Equal(t, build.Commit, info.Build.Commit)
		require.Equal(t, repoURL, info.Build.Repo)
	})
}

func TestBannerHandlerWithoutPublicURL(t *testing.T) {
	ts := httptest.NewServer(NewHandler(""))
	defer ts.Close()

	_, body := get(t, ts.URL, "application/json")

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	require.NotContains(t, raw, "public_url")
}
