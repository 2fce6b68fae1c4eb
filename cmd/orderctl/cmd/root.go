package cmd

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	serverURL  string
	apiToken   string
	reqTimeout time.Duration
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "orderctl",
	Short: "Command line client for the orderflow server",
	Long: `orderctl talks to a running orderflow server over its HTTP API.

It can:
  - submit orders to the submission queue
  - cancel orders by id
  - list open orders and the ticker ledger
  - show queue state and the order event journal`,
	SilenceUsage: true,
}

// Execute запускает корневую команду
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("ORDERFLOW_URL", "http://127.0.0.1:8080"), "orderflow server base URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "token", os.Getenv("ORDERFLOW_TOKEN"), "API bearer token")
	rootCmd.PersistentFlags().DurationVar(&reqTimeout, "timeout", 20*time.Second, "request timeout")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print raw JSON responses")
}

func newClient() *Client {
	return NewClient(serverURL, apiToken, reqTimeout)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
