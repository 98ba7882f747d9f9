package webapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/atticfile/attic/pkg/atticd/versions"
	"github.com/atticfile/attic/pkg/atticdb/stor"
	"github.com/labstack/echo/v4"
)

// VersionController exposes a file's version history and restore.
type VersionController struct {
	fileStor stor.FileStor
	versions *versions.Service
}

func NewVersionController(fileStor stor.FileStor, versions *versions.Service) *VersionController {
	return &VersionController{
		fileStor: fileStor,
		versions: versions,
	}
}

func (c *VersionController) ListFileVersions(ctx echo.Context) error {
	user, ok := getUser(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "User not authenticated")
	}

	file, err := c.fileStor.GetFileByUUIDForOwner(ctx.Param("uuid"), user.ID)
	if err != nil {
		return errorResponse(ctx, http.StatusNotFound, "No such file")
	}

	fileVersions, err := c.versions.ListVersions(file)
	if err != nil {
		return errorResponse(ctx, http.StatusInternalServerError, "Failed to list versions")
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"file_uuid":       file.UUID,
		"current_version": file.CurrentVersion,
		"versions":        fileVersions,
	})
}

func (c *VersionController) RestoreFileVersion(ctx echo.Context) error {
	user, ok := getUser(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "User not authenticated")
	}

	file, err := c.fileStor.GetFileByUUIDForOwner(ctx.Param("uuid"), user.ID)
	if err != nil {
		return errorResponse(ctx, http.StatusNotFound, "No such file")
	}

	versionNumber, err := strconv.Atoi(ctx.Param("version"))
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "Invalid version number")
	}

	restored, err := c.versions.Restore(file, versionNumber, user.ID)
	switch {
	case errors.Is(err, versions.ErrVersionNotFound):
		return errorResponse(ctx, http.StatusNotFound, "No such version")
	case err != nil:
		return errorResponse(ctx, http.StatusInternalServerError, "Failed to restore version")
	}

	return ctx.JSON(http.StatusOK, map[string]interface{}{
		"file_uuid":       file.UUID,
		"current_version": file.CurrentVersion,
		"restored":        restored,
	})
}
