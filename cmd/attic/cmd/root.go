package cmd

import (
	"os"

	"github.com/apex/log"
	"github.com/atticfile/attic/pkg/atticc"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	apiToken  string
)

var rootCmd = &cobra.Command{
	Use:   "attic",
	Short: "Upload, download and manage versioned files on an attic server",
	Long:  ``,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:1560", "attic server URL")
	rootCmd.PersistentFlags().StringVar(&apiToken, "api-token", "", "API token (defaults to ATTIC_API_TOKEN)")
}

func mustNewClient() *atticc.Client {
	token := apiToken
	if token == "" {
		token = os.Getenv("ATTIC_API_TOKEN")
	}

	if token == "" {
		log.Fatalf("No API token given; use --api-token or set ATTIC_API_TOKEN")
	}

	return atticc.NewClient(serverURL, token)
}
