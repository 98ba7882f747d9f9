package webapi

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/atticfile/attic/pkg/atticd/versions"
	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/atticfile/attic/pkg/atticdb/stor"
	"github.com/atticfile/attic/pkg/rangestream"
	"github.com/labstack/echo/v4"
)

// DownloadController streams stored file content, either the current version
// or a named one. Range requests get back exactly the requested window; a
// malformed Range header is ignored and the full payload streams instead.
type DownloadController struct {
	fileStor stor.FileStor
	versions *versions.Service
}

func NewDownloadController(fileStor stor.FileStor, versions *versions.Service) *DownloadController {
	return &DownloadController{
		fileStor: fileStor,
		versions: versions,
	}
}

func (c *DownloadController) DownloadCurrent(ctx echo.Context) error {
	user, ok := getUser(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "User not authenticated")
	}

	file, err := c.fileStor.GetFileByUUIDForOwner(ctx.Param("uuid"), user.ID)
	if err != nil {
		return errorResponse(ctx, http.StatusNotFound, "No such file")
	}

	version, err := c.versions.GetCurrentVersion(file)
	if err != nil {
		return errorResponse(ctx, http.StatusNotFound, "File has no content")
	}

	return c.streamVersion(ctx, file, version)
}

func (c *DownloadController) DownloadVersion(ctx echo.Context) error {
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

	version, err := c.versions.GetVersion(file, versionNumber)
	if err != nil {
		return errorResponse(ctx, http.StatusNotFound, "No such version")
	}

	return c.streamVersion(ctx, file, version)
}

func (c *DownloadController) streamVersion(ctx echo.Context, file *model.File, version *model.FileVersion) error {
	path := version.ToStoragePath(c.versions.Root())

	rangeHeader := ctx.Request().Header.Get("Range")
	if rangeHeader == "" {
		return c.streamWhole(ctx, file, version, path)
	}

	byteRange, err := rangestream.ParseRange(rangeHeader, version.Size)
	switch {
	case errors.Is(err, rangestream.ErrMalformedRange):
		return c.streamWhole(ctx, file, version, path)
	case errors.Is(err, rangestream.ErrUnsatisfiable):
		ctx.Response().Header().Set("Content-Range", fmt.Sprintf("bytes */%d", version.Size))
		return ctx.NoContent(http.StatusRequestedRangeNotSatisfiable)
	case err != nil:
		return errorResponse(ctx, http.StatusInternalServerError, "Failed to resolve range")
	}

	f, err := os.Open(path)
	if err != nil {
		return errorResponse(ctx, http.StatusInternalServerError, "Failed to open stored content")
	}

	if _, err := f.Seek(byteRange.Start, io.SeekStart); err != nil {
		_ = f.Close()
		return errorResponse(ctx, http.StatusInternalServerError, "Failed to seek stored content")
	}

	reader := rangestream.New(f, byteRange.Length)
	defer reader.Close()

	ctx.Response().Header().Set("Content-Range",
		fmt.Sprintf("bytes %d-%d/%d", byteRange.Start, byteRange.Start+byteRange.Length-1, version.Size))
	ctx.Response().Header().Set("Accept-Ranges", "bytes")
	ctx.Response().Header().Set(echo.HeaderContentLength, fmt.Sprintf("%d", byteRange.Length))

	return ctx.Stream(http.StatusPartialContent, file.MimeType, reader)
}

func (c *DownloadController) streamWhole(ctx echo.Context, file *model.File, version *model.FileVersion, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errorResponse(ctx, http.StatusInternalServerError, "Failed to open stored content")
	}
	defer f.Close()

	ctx.Response().Header().Set("Accept-Ranges", "bytes")
	ctx.Response().Header().Set(echo.HeaderContentLength, fmt.Sprintf("%d", version.Size))

	return ctx.Stream(http.StatusOK, file.MimeType, f)
}
