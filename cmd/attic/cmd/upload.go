package cmd

import (
	"context"
	"path/filepath"

	"github.com/apex/log"
	"github.com/atticfile/attic/pkg/atticc"
	"github.com/spf13/cobra"
)

var (
	uploadName        string
	uploadContentType string
	uploadFolderID    int
	resumeUploadID    string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a file, resuming from the server's offset if interrupted",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		localPath := args[0]

		client := mustNewClient()
		uploader := atticc.NewUploader(client)

		if resumeUploadID != "" {
			if err := uploader.ResumeUpload(context.Background(), resumeUploadID, localPath); err != nil {
				log.Fatalf("Resume of upload %s failed: %s", resumeUploadID, err)
			}
			log.Infof("Resumed and finished upload %s", resumeUploadID)
			return
		}

		remoteName := uploadName
		if remoteName == "" {
			remoteName = filepath.Base(localPath)
		}

		var folderID *int
		if cmd.Flags().Changed("folder-id") {
			folderID = &uploadFolderID
		}

		uploadID, err := uploader.UploadFile(context.Background(), localPath, remoteName, uploadContentType, folderID)
		if err != nil {
			if uploadID != "" {
				log.Fatalf("Upload failed: %s (resume with --resume %s)", err, uploadID)
			}
			log.Fatalf("Upload failed: %s", err)
		}

		log.Infof("Uploaded %s as %s", localPath, remoteName)
	},
}

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVar(&uploadName, "name", "", "name to store the file under (defaults to the local file name)")
	uploadCmd.Flags().StringVar(&uploadContentType, "content-type", "", "content type of the file")
	uploadCmd.Flags().IntVar(&uploadFolderID, "folder-id", 0, "folder to place the file in")
	uploadCmd.Flags().StringVar(&resumeUploadID, "resume", "", "resume the upload with this id instead of starting a new one")
}
