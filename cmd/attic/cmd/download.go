package cmd

import (
	"context"
	"os"

	"github.com/apex/log"
	"github.com/spf13/cobra"
)

var (
	downloadOutput  string
	downloadVersion int
)

var downloadCmd = &cobra.Command{
	Use:   "download <file-uuid>",
	Short: "Download a file's current version, or an older one with --version",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		fileUUID := args[0]
		client := mustNewClient()

		out := os.Stdout
		if downloadOutput != "" {
			f, err := os.Create(downloadOutput)
			if err != nil {
				log.Fatalf("Cannot create %s: %s", downloadOutput, err)
			}
			defer f.Close()
			out = f
		}

		var err error
		if cmd.Flags().Changed("version") {
			err = client.DownloadFileVersion(context.Background(), fileUUID, downloadVersion, out)
		} else {
			err = client.DownloadFile(context.Background(), fileUUID, out)
		}

		if err != nil {
			log.Fatalf("Download failed: %s", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(downloadCmd)
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "write to this file instead of stdout")
	downloadCmd.Flags().IntVar(&downloadVersion, "version", 0, "download this version instead of the current one")
}
