package webapi

import (
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/labstack/echo/v4"
)

// Protocol headers follow the tus resumable upload conventions.
const (
	TusResumableHeader   = "Tus-Resumable"
	TusVersionHeader     = "Tus-Version"
	UploadOffsetHeader   = "Upload-Offset"
	UploadLengthHeader   = "Upload-Length"
	UploadMetadataHeader = "Upload-Metadata"

	TusProtocolVersion = "1.0.0"

	OffsetOctetStreamMediaType = "application/offset+octet-stream"
)

// RequireTusResumable rejects requests that don't carry the protocol version
// header, answering with the version the server speaks. Matching requests get
// the version echoed back on the response.
func RequireTusResumable(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.Request().Header.Get(TusResumableHeader) != TusProtocolVersion {
			c.Response().Header().Set(TusVersionHeader, TusProtocolVersion)
			return c.NoContent(http.StatusPreconditionFailed)
		}

		c.Response().Header().Set(TusResumableHeader, TusProtocolVersion)
		return next(c)
	}
}

// ParseUploadMetadata decodes an Upload-Metadata header: comma separated
// pairs of "key base64value", value optional. Pairs that fail to decode are
// skipped.
func ParseUploadMetadata(header string) map[string]string {
	metadata := make(map[string]string)

	for _, pair := range strings.Split(header, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}

		key, encoded, _ := strings.Cut(pair, " ")
		if encoded == "" {
			metadata[key] = ""
			continue
		}

		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}

		metadata[key] = string(decoded)
	}

	return metadata
}

func getUser(ctx echo.Context) (*model.User, bool) {
	user, ok := ctx.Get("User").(model.User)
	if !ok {
		return nil, false
	}
	return &user, true
}

func errorResponse(ctx echo.Context, httpError int, msg string) error {
	return ctx.JSON(httpError, map[string]string{"error": msg})
}
