package atticc

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/pkg/errors"
)

const DefaultChunkSize = 1024 * 1024

// retryDelays bounds how long a chunk is retried before the failure surfaces
// to the caller: one immediate retry, then increasingly spaced ones.
var retryDelays = []time.Duration{0, time.Second, 3 * time.Second, 5 * time.Second}

// Uploader drives resumable uploads over a Client. Chunks of one upload are
// strictly sequential; a chunk is never sent before the previous one's
// response is seen. Independent uploads may run in parallel, each tracked in
// the uploader's active set under its upload id.
type Uploader struct {
	client    *Client
	chunkSize int64

	mu     sync.Mutex
	active map[string]*UploadStatus
}

func NewUploader(client *Client) *Uploader {
	return &Uploader{
		client:    client,
		chunkSize: DefaultChunkSize,
		active:    make(map[string]*UploadStatus),
	}
}

// UploadFile uploads localPath as remoteName, creating a fresh session. Small
// files go up in a single chunk. On an unrecoverable failure the session is
// left on the server so ResumeUpload can pick it up later; the returned
// upload id identifies it.
func (u *Uploader) UploadFile(ctx context.Context, localPath, remoteName, contentType string, folderID *int) (string, error) {
	finfo, err := os.Stat(localPath)
	if err != nil {
		return "", errors.Wrapf(err, "cannot stat %s", localPath)
	}

	status, err := u.client.CreateUpload(ctx, remoteName, contentType, finfo.Size(), folderID)
	if err != nil {
		return "", err
	}

	return status.ID, u.drive(ctx, status, localPath, 0)
}

// ResumeUpload continues an interrupted upload of localPath, reconciling to
// the server's offset first.
func (u *Uploader) ResumeUpload(ctx context.Context, uploadID, localPath string) error {
	status, err := u.client.GetUploadStatus(ctx, uploadID)
	if err != nil {
		return err
	}

	return u.drive(ctx, status, localPath, status.ReceivedOffset)
}

// ActiveUploads lists the uploads currently being driven.
func (u *Uploader) ActiveUploads() []UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()

	statuses := make([]UploadStatus, 0, len(u.active))
	for _, status := range u.active {
		statuses = append(statuses, *status)
	}

	return statuses
}

func (u *Uploader) drive(ctx context.Context, status *UploadStatus, localPath string, offset int64) error {
	u.mu.Lock()
	u.active[status.ID] = status
	u.mu.Unlock()

	defer func() {
		u.mu.Lock()
		delete(u.active, status.ID)
		u.mu.Unlock()
	}()

	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "cannot open %s", localPath)
	}
	defer f.Close()

	if status.TotalSize == 0 {
		// An empty file still needs one append to finalize it.
		_, err := u.sendWithRetries(ctx, status.ID, 0, nil)
		return err
	}

	buf := make([]byte, u.chunkSize)

	for offset < status.TotalSize {
		chunkLen := status.TotalSize - offset
		if chunkLen > u.chunkSize {
			chunkLen = u.chunkSize
		}

		if _, err := f.Seek(offset, io.SeekStart); err != nil {
			return errors.Wrapf(err, "cannot seek %s to %d", localPath, offset)
		}

		chunk := buf[:chunkLen]
		if _, err := io.ReadFull(f, chunk); err != nil {
			return errors.Wrapf(err, "cannot read %s at %d", localPath, offset)
		}

		newOffset, err := u.sendWithRetries(ctx, status.ID, offset, chunk)
		if err != nil {
			return err
		}

		offset = newOffset
		u.mu.Lock()
		status.ReceivedOffset = newOffset
		u.mu.Unlock()
	}

	// A finalized session is gone. If it still exists at its full size the
	// final chunk landed but finalization failed; a zero-length append at the
	// final offset re-drives it.
	current, err := u.client.GetUploadStatus(ctx, status.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil
	case err != nil:
		return err
	case current.ReceivedOffset == status.TotalSize:
		_, err := u.sendWithRetries(ctx, status.ID, status.TotalSize, nil)
		return err
	default:
		return errors.Errorf("upload %s: stalled at %d of %d", status.ID, current.ReceivedOffset, status.TotalSize)
	}
}

// sendWithRetries sends one chunk, retrying transient failures on the backoff
// schedule. An offset conflict isn't a failure: the server's offset is
// adopted and the caller refills the chunk from there.
func (u *Uploader) sendWithRetries(ctx context.Context, uploadID string, offset int64, chunk []byte) (int64, error) {
	var lastErr error

	for _, delay := range retryDelays {
		if delay != 0 {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
		}

		newOffset, err := u.client.AppendChunk(ctx, uploadID, offset, chunk)

		var conflict *OffsetConflictError
		switch {
		case err == nil:
			return newOffset, nil
		case errors.As(err, &conflict):
			// The server is at a different offset. Reconcile to its truth
			// rather than retrying the same claim.
			log.Infof("upload %s: offset conflict at %d, server is at %d", uploadID, offset, conflict.Offset)
			return conflict.Offset, nil
		case errors.Is(err, ErrNotFound):
			return 0, err
		default:
			lastErr = err
		}
	}

	return 0, errors.Wrapf(lastErr, "upload %s: giving up on chunk at %d", uploadID, offset)
}
