package webapi

import (
	"net/http"
	"time"

	"github.com/atticfile/attic/pkg/atticd/uploads"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
)

// ProgressController reports how far an upload session has gotten, either as
// a one-shot JSON snapshot or as a websocket stream that pushes the offset
// while the upload runs.
type ProgressController struct {
	progress *uploads.ProgressCache
	upgrader websocket.Upgrader
	interval time.Duration
}

func NewProgressController(progress *uploads.ProgressCache) *ProgressController {
	return &ProgressController{
		progress: progress,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		interval: 500 * time.Millisecond,
	}
}

type progressMessage struct {
	UploadID string `json:"upload_id"`
	Offset   int64  `json:"offset"`
}

func (c *ProgressController) GetUploadProgress(ctx echo.Context) error {
	uploadID := ctx.Param("id")

	return ctx.JSON(http.StatusOK, progressMessage{
		UploadID: uploadID,
		Offset:   c.progress.GetUploadProgress(uploadID),
	})
}

// StreamUploadProgress upgrades to a websocket and pushes the session's
// offset on a fixed cadence until the client disconnects.
func (c *ProgressController) StreamUploadProgress(ctx echo.Context) error {
	uploadID := ctx.Param("id")

	conn, err := c.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Consume control frames so we notice the client going away.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return nil
		case <-ticker.C:
			msg := progressMessage{
				UploadID: uploadID,
				Offset:   c.progress.GetUploadProgress(uploadID),
			}
			if err := conn.WriteJSON(msg); err != nil {
				return nil
			}
		}
	}
}
