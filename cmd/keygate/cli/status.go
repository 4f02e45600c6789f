package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check if the Keygate server is running",
		Long:  "Check the status of the Keygate server: process state, HTTP health, and storage readiness.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus()
		},
	}
}

func runStatus() error {
	pid, err := readPID()
	if err != nil {
		fmt.Println("Server is not running (no PID file found).")
		return nil
	}

	if !isProcessRunning(pid) {
		removePID()
		fmt.Println("Server is not running (stale PID file removed).")
		return nil
	}

	// Server process is alive — check HTTP health
	port := viper.GetInt("server.port")
	if port == 0 {
		port = 8080
	}
	host := viper.GetString("server.host")
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	base := fmt.Sprintf("http://%s:%d", host, port)
	client := &http.Client{Timeout: 2 * time.Second}

	resp, err := client.Get(base + "/healthz")
	if err != nil {
		fmt.Printf("Server process is running (PID %d) but not responding to HTTP.\n", pid)
		fmt.Printf("  Logs: %s\n", logFilePath())
		return nil
	}
	resp.Body.Close()

	// /readyz pings the key store, so this distinguishes a healthy process
	// from one that lost its database.
	storage := "ready"
	readyResp, err := client.Get(base + "/readyz")
	if err != nil {
		storage = "unreachable"
	} else {
		readyResp.Body.Close()
		if readyResp.StatusCode != http.StatusOK {
			storage = fmt.Sprintf("not ready (%d)", readyResp.StatusCode)
		}
	}

	fmt.Printf("Server is running (PID %d)\n", pid)
	fmt.Printf("  Health:  %s/healthz (%d)\n", base, resp.StatusCode)
	fmt.Printf("  Storage: %s\n", storage)
	fmt.Printf("  Logs:    %s\n", logFilePath())
	return nil
}
