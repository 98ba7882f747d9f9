package atticc

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
)

const (
	tusResumableHeader   = "Tus-Resumable"
	uploadOffsetHeader   = "Upload-Offset"
	uploadLengthHeader   = "Upload-Length"
	uploadMetadataHeader = "Upload-Metadata"

	tusProtocolVersion = "1.0.0"

	offsetOctetStreamMediaType = "application/offset+octet-stream"
)

var ErrNotFound = errors.New("not found")

// OffsetConflictError is returned when the server rejects an append because
// the claimed offset doesn't match its own. Offset is the server's truth; the
// driver resumes from it.
type OffsetConflictError struct {
	Offset int64
}

func (e *OffsetConflictError) Error() string {
	return fmt.Sprintf("offset conflict, server is at %d", e.Offset)
}

// Client speaks the attic server's API: resumable uploads, downloads and
// version operations. All requests carry the caller's API token.
type Client struct {
	c *resty.Client
}

func NewClient(baseURL, apiToken string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("X-API-Token", apiToken)

	return &Client{c: c}
}

// UploadStatus is the client-side view of one upload session.
type UploadStatus struct {
	ID             string
	TotalSize      int64
	ReceivedOffset int64
}

type createUploadResponse struct {
	ID        string `json:"id"`
	TotalSize int64  `json:"total_size"`
}

// CreateUpload starts a new upload session for a file of the given size.
func (c *Client) CreateUpload(ctx context.Context, fileName, contentType string, totalSize int64, folderID *int) (*UploadStatus, error) {
	metadata := []string{
		fmt.Sprintf("filename %s", base64.StdEncoding.EncodeToString([]byte(fileName))),
	}
	if contentType != "" {
		metadata = append(metadata, fmt.Sprintf("contentType %s", base64.StdEncoding.EncodeToString([]byte(contentType))))
	}
	if folderID != nil {
		metadata = append(metadata, fmt.Sprintf("folder_id %s", base64.StdEncoding.EncodeToString([]byte(strconv.Itoa(*folderID)))))
	}

	var created createUploadResponse
	resp, err := c.c.R().
		SetContext(ctx).
		SetHeader(tusResumableHeader, tusProtocolVersion).
		SetHeader(uploadLengthHeader, fmt.Sprintf("%d", totalSize)).
		SetHeader(uploadMetadataHeader, strings.Join(metadata, ",")).
		SetResult(&created).
		Post("/api/uploads")
	if err != nil {
		return nil, errors.Wrap(err, "create upload request failed")
	}

	if resp.StatusCode() != http.StatusCreated {
		return nil, errors.Errorf("create upload failed with status %d: %s", resp.StatusCode(), resp.String())
	}

	return &UploadStatus{ID: created.ID, TotalSize: created.TotalSize}, nil
}

// GetUploadStatus asks the server how many bytes it has durably received.
func (c *Client) GetUploadStatus(ctx context.Context, uploadID string) (*UploadStatus, error) {
	resp, err := c.c.R().
		SetContext(ctx).
		SetHeader(tusResumableHeader, tusProtocolVersion).
		Head("/api/uploads/" + uploadID)
	if err != nil {
		return nil, errors.Wrap(err, "upload status request failed")
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		offset, err := strconv.ParseInt(resp.Header().Get(uploadOffsetHeader), 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "server sent an unparsable Upload-Offset")
		}
		length, err := strconv.ParseInt(resp.Header().Get(uploadLengthHeader), 10, 64)
		if err != nil {
			return nil, errors.Wrap(err, "server sent an unparsable Upload-Length")
		}
		return &UploadStatus{ID: uploadID, TotalSize: length, ReceivedOffset: offset}, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, errors.Errorf("upload status failed with status %d", resp.StatusCode())
	}
}

// AppendChunk sends one chunk at the given offset and returns the server's
// new offset. An offset mismatch comes back as *OffsetConflictError.
func (c *Client) AppendChunk(ctx context.Context, uploadID string, offset int64, chunk []byte) (int64, error) {
	resp, err := c.c.R().
		SetContext(ctx).
		SetHeader(tusResumableHeader, tusProtocolVersion).
		SetHeader("Content-Type", offsetOctetStreamMediaType).
		SetHeader(uploadOffsetHeader, fmt.Sprintf("%d", offset)).
		SetBody(chunk).
		Patch("/api/uploads/" + uploadID)
	if err != nil {
		return 0, errors.Wrap(err, "append chunk request failed")
	}

	switch resp.StatusCode() {
	case http.StatusNoContent:
		newOffset, err := strconv.ParseInt(resp.Header().Get(uploadOffsetHeader), 10, 64)
		if err != nil {
			return 0, errors.Wrap(err, "server sent an unparsable Upload-Offset")
		}
		return newOffset, nil
	case http.StatusConflict:
		serverOffset, _ := strconv.ParseInt(resp.Header().Get(uploadOffsetHeader), 10, 64)
		return serverOffset, &OffsetConflictError{Offset: serverOffset}
	case http.StatusNotFound:
		return 0, ErrNotFound
	default:
		return 0, errors.Errorf("append chunk failed with status %d: %s", resp.StatusCode(), resp.String())
	}
}

// CancelUpload abandons the upload. Canceling an unknown upload is not an
// error.
func (c *Client) CancelUpload(ctx context.Context, uploadID string) error {
	resp, err := c.c.R().
		SetContext(ctx).
		SetHeader(tusResumableHeader, tusProtocolVersion).
		Delete("/api/uploads/" + uploadID)
	if err != nil {
		return errors.Wrap(err, "cancel upload request failed")
	}

	if resp.StatusCode() != http.StatusNoContent {
		return errors.Errorf("cancel upload failed with status %d", resp.StatusCode())
	}

	return nil
}

// DownloadFile streams the file's current version into w.
func (c *Client) DownloadFile(ctx context.Context, fileUUID string, w io.Writer) error {
	return c.download(ctx, "/api/files/"+fileUUID, "", w)
}

// DownloadFileVersion streams one specific version into w.
func (c *Client) DownloadFileVersion(ctx context.Context, fileUUID string, versionNumber int, w io.Writer) error {
	return c.download(ctx, fmt.Sprintf("/api/files/%s/versions/%d", fileUUID, versionNumber), "", w)
}

// DownloadFileRange streams length bytes starting at start of the current
// version into w.
func (c *Client) DownloadFileRange(ctx context.Context, fileUUID string, start, length int64, w io.Writer) error {
	rangeHeader := fmt.Sprintf("bytes=%d-%d", start, start+length-1)
	return c.download(ctx, "/api/files/"+fileUUID, rangeHeader, w)
}

func (c *Client) download(ctx context.Context, path, rangeHeader string, w io.Writer) error {
	req := c.c.R().
		SetContext(ctx).
		SetDoNotParseResponse(true)

	if rangeHeader != "" {
		req.SetHeader("Range", rangeHeader)
	}

	resp, err := req.Get(path)
	if err != nil {
		return errors.Wrap(err, "download request failed")
	}

	body := resp.RawBody()
	defer body.Close()

	switch resp.StatusCode() {
	case http.StatusOK, http.StatusPartialContent:
		_, err = io.Copy(w, body)
		return errors.Wrap(err, "download stream failed")
	case http.StatusNotFound:
		return ErrNotFound
	default:
		return errors.Errorf("download failed with status %d", resp.StatusCode())
	}
}

type VersionListing struct {
	FileUUID       string              `json:"file_uuid"`
	CurrentVersion int                 `json:"current_version"`
	Versions       []model.FileVersion `json:"versions"`
}

// ListVersions returns a file's version history, most recent first.
func (c *Client) ListVersions(ctx context.Context, fileUUID string) (*VersionListing, error) {
	var listing VersionListing
	resp, err := c.c.R().
		SetContext(ctx).
		SetResult(&listing).
		Get("/api/files/" + fileUUID + "/versions")
	if err != nil {
		return nil, errors.Wrap(err, "list versions request failed")
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &listing, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, errors.Errorf("list versions failed with status %d", resp.StatusCode())
	}
}

// RestoreVersion makes an older version current again by appending a copy of
// it to the history.
func (c *Client) RestoreVersion(ctx context.Context, fileUUID string, versionNumber int) (*model.FileVersion, error) {
	var restored struct {
		Restored model.FileVersion `json:"restored"`
	}

	resp, err := c.c.R().
		SetContext(ctx).
		SetResult(&restored).
		Post(fmt.Sprintf("/api/files/%s/versions/%d/restore", fileUUID, versionNumber))
	if err != nil {
		return nil, errors.Wrap(err, "restore version request failed")
	}

	switch resp.StatusCode() {
	case http.StatusOK:
		return &restored.Restored, nil
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, errors.Errorf("restore version failed with status %d", resp.StatusCode())
	}
}
