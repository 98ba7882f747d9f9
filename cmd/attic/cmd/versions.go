package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/apex/log"
	"github.com/spf13/cobra"
)

var versionsCmd = &cobra.Command{
	Use:   "versions <file-uuid>",
	Short: "List a file's version history, most recent first",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := mustNewClient()

		listing, err := client.ListVersions(context.Background(), args[0])
		if err != nil {
			log.Fatalf("Listing versions failed: %s", err)
		}

		for _, v := range listing.Versions {
			marker := " "
			if v.VersionNumber == listing.CurrentVersion {
				marker = "*"
			}
			fmt.Printf("%s v%d  %10d bytes  %s  %s  %s\n",
				marker, v.VersionNumber, v.Size, v.Checksum, v.CreatedAt.Format("2006-01-02 15:04:05"), v.Note)
		}
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore <file-uuid> <version>",
	Short: "Make an older version current again",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		versionNumber, err := strconv.Atoi(args[1])
		if err != nil {
			log.Fatalf("Invalid version number %s", args[1])
		}

		client := mustNewClient()

		restored, err := client.RestoreVersion(context.Background(), args[0], versionNumber)
		if err != nil {
			log.Fatalf("Restore failed: %s", err)
		}

		log.Infof("Restored version %d as new version %d", versionNumber, restored.VersionNumber)
	},
}

func init() {
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(restoreCmd)
}
