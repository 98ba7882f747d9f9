package cmd

import (
	"github.com/atticfile/attic/pkg/atticd/uploads"
	"github.com/atticfile/attic/pkg/atticd/versions"
	"github.com/atticfile/attic/pkg/atticd/webapi"
	"github.com/atticfile/attic/pkg/atticd/webapi/apimiddleware"
	"github.com/atticfile/attic/pkg/atticdb/stor"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type routeOpts struct {
	stors     *stor.Stors
	engine    *uploads.Engine
	finalizer *uploads.Finalizer
	versions  *versions.Service
	progress  *uploads.ProgressCache
}

func setupRoutes(e *echo.Echo, opts routeOpts) {
	e.Use(apimiddleware.APIKeyAuth(apimiddleware.APIKeyConfig{
		Skipper:           middleware.DefaultSkipper,
		Keyname:           "X-API-Token",
		GetUserByAPIToken: opts.stors.UserStor.GetUserByAPIToken,
	}))

	g := e.Group("/api")

	uploadController := webapi.NewUploadController(opts.engine, opts.finalizer)

	ug := g.Group("/uploads", webapi.RequireTusResumable)
	ug.POST("", uploadController.CreateUpload)
	ug.HEAD("/:id", uploadController.GetUploadStatus)
	ug.PATCH("/:id", uploadController.AppendToUpload)
	ug.DELETE("/:id", uploadController.CancelUpload)

	progressController := webapi.NewProgressController(opts.progress)
	g.GET("/uploads/:id/progress", progressController.GetUploadProgress)
	g.GET("/uploads/:id/progress/ws", progressController.StreamUploadProgress)

	downloadController := webapi.NewDownloadController(opts.stors.FileStor, opts.versions)
	g.GET("/files/:uuid", downloadController.DownloadCurrent)
	g.GET("/files/:uuid/versions/:version", downloadController.DownloadVersion)

	versionController := webapi.NewVersionController(opts.stors.FileStor, opts.versions)
	g.GET("/files/:uuid/versions", versionController.ListFileVersions)
	g.POST("/files/:uuid/versions/:version/restore", versionController.RestoreFileVersion)
}
