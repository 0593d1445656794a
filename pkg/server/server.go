package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/sidequest-dev/foreman/pkg/build"
)

// BuildInfo reports how the running binary was produced.
type BuildInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Repo    string `json:"repo"`
}

// ServerInfo is the payload served from the root route when the client
// asks for JSON.
type ServerInfo struct {
	Name      string    `json:"name"`
	PublicURL string    `json:"public_url,omitempty"`
	Build     BuildInfo `json:"build"`
}

const repoURL = "https://github.com/sidequest-dev/foreman"

// NewHandler returns the service banner handler. It answers with JSON when
// the Accept header asks for it, and a short plain-text banner otherwise.
func NewHandler(publicURL string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.Header.Get("Accept"), "application/json") {
			info := ServerInfo{
				Name:      "foreman",
				PublicURL: publicURL,
				Build: BuildInfo{
					Version: build.Version,
					Commit:  build.Commit,
					Repo:    repoURL,
				},
			}
			w.Header().Set("Content-Type", "application/json")
			if err := json.NewEncoder(w).Encode(info); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintf(w, "⚒️ foreman %s\n", build.Version)
		fmt.Fprintf(w, "- %s\n", repoURL)
		if publicURL != "" {
			fmt.Fprintf(w, "- %s\n", publicURL)
		}
	})
}
