package webapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/atticfile/attic/pkg/atticd/uploads"
	"github.com/labstack/echo/v4"
)

// UploadController exposes the upload engine over the tus wire conventions:
// create a session, query its offset, append a chunk, cancel. A chunk that
// brings the session to its declared size finalizes it in the same request.
type UploadController struct {
	engine    *uploads.Engine
	finalizer *uploads.Finalizer
}

func NewUploadController(engine *uploads.Engine, finalizer *uploads.Finalizer) *UploadController {
	return &UploadController{
		engine:    engine,
		finalizer: finalizer,
	}
}

func (c *UploadController) CreateUpload(ctx echo.Context) error {
	user, ok := getUser(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "User not authenticated")
	}

	totalSize, err := strconv.ParseInt(ctx.Request().Header.Get(UploadLengthHeader), 10, 64)
	if err != nil {
		return errorResponse(ctx, http.StatusBadRequest, "Invalid Upload-Length")
	}

	metadata := ParseUploadMetadata(ctx.Request().Header.Get(UploadMetadataHeader))
	if metadata["filename"] == "" {
		return errorResponse(ctx, http.StatusBadRequest, "Upload-Metadata must include a filename")
	}

	var folderID *int
	if raw, ok := metadata["folder_id"]; ok && raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			return errorResponse(ctx, http.StatusBadRequest, "Invalid folder_id")
		}
		folderID = &id
	}

	session, err := c.engine.Create(uploads.CreateRequest{
		FileName:    metadata["filename"],
		ContentType: metadata["contentType"],
		TotalSize:   totalSize,
		FolderID:    folderID,
		OwnerID:     user.ID,
	})

	switch {
	case errors.Is(err, uploads.ErrInvalidRequest):
		return errorResponse(ctx, http.StatusBadRequest, "Invalid upload request")
	case err != nil:
		return errorResponse(ctx, http.StatusInternalServerError, "Failed to create upload")
	}

	ctx.Response().Header().Set("Location", "/api/uploads/"+session.ID)
	ctx.Response().Header().Set(UploadOffsetHeader, "0")

	return ctx.JSON(http.StatusCreated, map[string]interface{}{
		"id":         session.ID,
		"total_size": session.TotalSize,
	})
}

func (c *UploadController) GetUploadStatus(ctx echo.Context) error {
	user, ok := getUser(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "User not authenticated")
	}

	session, err := c.engine.Status(ctx.Param("id"), user.ID)
	switch {
	case errors.Is(err, uploads.ErrNotFound):
		return ctx.NoContent(http.StatusNotFound)
	case err != nil:
		return ctx.NoContent(http.StatusInternalServerError)
	}

	ctx.Response().Header().Set(UploadOffsetHeader, fmt.Sprintf("%d", session.ReceivedOffset))
	ctx.Response().Header().Set(UploadLengthHeader, fmt.Sprintf("%d", session.TotalSize))
	ctx.Response().Header().Set("Cache-Control", "no-store")

	return ctx.NoContent(http.StatusOK)
}

func (c *UploadController) AppendToUpload(ctx echo.Context) error {
	user, ok := getUser(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "User not authenticated")
	}

	if ctx.Request().Header.Get(echo.HeaderContentType) != OffsetOctetStreamMediaType {
		return errorResponse(ctx, http.StatusBadRequest, "Content-Type must be "+OffsetOctetStreamMediaType)
	}

	claimedOffset, err := strconv.ParseInt(ctx.Request().Header.Get(UploadOffsetHeader), 10, 64)
	if err != nil || claimedOffset < 0 {
		return errorResponse(ctx, http.StatusBadRequest, "Invalid Upload-Offset")
	}

	chunkLen := ctx.Request().ContentLength
	if chunkLen < 0 {
		return errorResponse(ctx, http.StatusBadRequest, "Content-Length is required")
	}

	sessionID := ctx.Param("id")

	newOffset, err := c.engine.Append(sessionID, user.ID, claimedOffset, chunkLen, ctx.Request().Body)

	var conflict *uploads.OffsetConflictError
	switch {
	case errors.As(err, &conflict):
		ctx.Response().Header().Set(UploadOffsetHeader, fmt.Sprintf("%d", conflict.Offset))
		return errorResponse(ctx, http.StatusConflict, "Upload offset mismatch")
	case errors.Is(err, uploads.ErrNotFound):
		return errorResponse(ctx, http.StatusNotFound, "No such upload")
	case errors.Is(err, uploads.ErrInvalidRequest):
		return errorResponse(ctx, http.StatusBadRequest, "Chunk extends past declared upload size")
	case err != nil:
		return errorResponse(ctx, http.StatusInternalServerError, "Failed to append chunk")
	}

	// A session at its declared size is finalized before the response goes
	// out. If finalization fails the session stays intact and the client can
	// retry it with a zero-length append at the final offset.
	session, err := c.engine.Status(sessionID, user.ID)
	if err == nil && session.IsComplete {
		if _, version, ferr := c.finalizer.Finalize(sessionID, user.ID); ferr != nil {
			if version == nil {
				return errorResponse(ctx, http.StatusInternalServerError, "Failed to finalize upload")
			}

			// The version was published; only the accounting hook failed.
			// That failure is reported without retracting the version.
			log.Errorf("quota accounting failed for finalized session %s: %s", sessionID, ferr)

			msg := "Storage accounting failed"
			if errors.Is(ferr, uploads.ErrQuotaExceeded) {
				msg = "Storage quota exceeded"
			}

			ctx.Response().Header().Set(UploadOffsetHeader, fmt.Sprintf("%d", newOffset))
			return ctx.JSON(http.StatusOK, map[string]interface{}{
				"error":     msg,
				"published": true,
			})
		}
	}

	ctx.Response().Header().Set(UploadOffsetHeader, fmt.Sprintf("%d", newOffset))

	return ctx.NoContent(http.StatusNoContent)
}

func (c *UploadController) CancelUpload(ctx echo.Context) error {
	user, ok := getUser(ctx)
	if !ok {
		return errorResponse(ctx, http.StatusUnauthorized, "User not authenticated")
	}

	if err := c.engine.Cancel(ctx.Param("id"), user.ID); err != nil {
		return errorResponse(ctx, http.StatusInternalServerError, "Failed to cancel upload")
	}

	return ctx.NoContent(http.StatusNoContent)
}
