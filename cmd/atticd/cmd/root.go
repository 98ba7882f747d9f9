package cmd

import (
	"context"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/atticfile/attic/pkg/atticd/uploads"
	"github.com/atticfile/attic/pkg/atticd/versions"
	"github.com/atticfile/attic/pkg/atticdb"
	"github.com/atticfile/attic/pkg/atticdb/stor"
	"github.com/atticfile/attic/pkg/config"
	"github.com/atticfile/attic/pkg/lock"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/spf13/cobra"
	"github.com/subosito/gotenv"
)

var rootCmd = &cobra.Command{
	Use:   "atticd",
	Short: "Run the attic upload and versioning server",
	Long:  ``,
	Run: func(cmd *cobra.Command, args []string) {
		if dotenvFilePath := os.Getenv("ATTIC_DOTENV_PATH"); dotenvFilePath != "" {
			if err := gotenv.Load(dotenvFilePath); err != nil {
				log.Fatalf("Failed loading configuration file %s: %s", dotenvFilePath, err)
			}
		}

		atticDir := config.MustGetKey("ATTIC_DIR")
		log.Infof("Attic Dir: %s", atticDir)

		db := atticdb.MustConnectToDB()
		if err := atticdb.RunMigrations(db); err != nil {
			log.Fatalf("Failed running migrations: %s", err)
		}

		stors := stor.NewGormStors(db)

		maxUploadSize := config.GetInt64KeyWithDefault("ATTIC_MAX_UPLOAD_SIZE", 10*1024*1024*1024)
		uploadTTL := config.GetDurationKeyWithDefault("ATTIC_UPLOAD_TTL", 24*time.Hour)
		sweepInterval := config.GetDurationKeyWithDefault("ATTIC_SWEEP_INTERVAL", 10*time.Minute)

		sessionLocker := lock.NewKeyLocker()
		progress := uploads.NewProgressCache()

		engine := uploads.NewEngine(uploads.EngineOpts{
			SessionStor: stors.SessionStor,
			FolderStor:  stors.FolderStor,
			Locker:      sessionLocker,
			Progress:    progress,
			Root:        atticDir,
			MaxSize:     maxUploadSize,
			TTL:         uploadTTL,
		})

		versionsService := versions.NewService(stors.FileStor, stors.VersionStor, lock.NewKeyLocker(), atticDir)

		finalizer := uploads.NewFinalizer(uploads.FinalizerOpts{
			SessionStor:   stors.SessionStor,
			FileStor:      stors.FileStor,
			VersionStor:   stors.VersionStor,
			Versions:      versionsService,
			SessionLocker: sessionLocker,
			Progress:      progress,
			Root:          atticDir,
			Quota:         uploads.NoQuota,
		})

		sweeper := uploads.NewSweeper(stors.SessionStor, sessionLocker, progress, atticDir, sweepInterval)
		sweeper.Start(context.Background())

		e := echo.New()
		e.HideBanner = true
		e.HidePort = true
		e.Use(middleware.Recover())

		setupRoutes(e, routeOpts{
			stors:     stors,
			engine:    engine,
			finalizer: finalizer,
			versions:  versionsService,
			progress:  progress,
		})

		if err := e.Start(":" + config.GetKeyWithDefault("ATTICD_PORT", "1560")); err != nil {
			log.Fatalf("Unable to start server: %s", err)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
