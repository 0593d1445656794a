// Package shutdown implements the client-side command that asks a running
// foreman server to stop.
package shutdown

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/sidequest-dev/foreman/pkg/config"
	"github.com/sidequest-dev/foreman/pkg/fx/admin"
)

var Cmd = &cobra.Command{
	Use:   "shutdown",
	Short: "Gracefully shutdown a running foreman server",
	Long: `Send a shutdown signal to a running foreman server instance.
The server performs a graceful shutdown, letting running jobs observe
cancellation and persisting their final state.

The target defaults to the host and port of the loaded configuration, so
the same config file that started a server can stop it.`,
	Args: cobra.NoArgs,
	RunE: shutdownServer,
}

func init() {
	Cmd.Flags().String("server-url", "", "Base URL of the server to stop (overrides host/port from config)")
	cobra.CheckErr(viper.BindPFlag("shutdown.server_url", Cmd.Flags().Lookup("server-url")))

	Cmd.Flags().Duration("timeout", 10*time.Second, "How long to wait for the server to acknowledge")
	cobra.CheckErr(viper.BindPFlag("shutdown.timeout", Cmd.Flags().Lookup("timeout")))
}

func targetURL() string {
	if base := viper.GetString("shutdown.server_url"); base != "" {
		return strings.TrimRight(base, "/")
	}
	host := viper.GetString(string(config.ServerHost))
	port := viper.GetUint(string(config.ServerPort))
	return fmt.Sprintf("http://%s:%d", host, port)
}

func shutdownServer(cmd *cobra.Command, _ []string) error {
	base := targetURL()
	client := &http.Client{Timeout: viper.GetDuration("shutdown.timeout")}

	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, base+"/admin/shutdown", http.NoBody)
	if err != nil {
		return fmt.Errorf("building shutdown request: %w", err)
	}

	cmd.Printf("Requesting shutdown of %s...\n", base)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("reaching server: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		var body admin.Ack
		if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Message != "" {
			cmd.Printf("Server acknowledged: %s\n", body.Message)
		} else {
			cmd.Println("Server acknowledged the shutdown request.")
		}
		return nil
	case http.StatusServiceUnavailable:
		return fmt.Errorf("server is already shutting down")
	case http.StatusNotFound:
		return fmt.Errorf("no admin shutdown endpoint at %s; is this a foreman server?", base)
	default:
		return fmt.Errorf("unexpected response from server: %s", resp.Status)
	}
}
