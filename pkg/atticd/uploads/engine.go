package uploads

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/atticfile/attic/pkg/atticdb/stor"
	"github.com/atticfile/attic/pkg/lock"
	"github.com/hashicorp/go-uuid"
	"gorm.io/gorm"
)

// Engine implements the server half of the resumable upload protocol:
// create a session, report its offset, append a chunk at a verified offset,
// cancel. All mutations of one session are serialized through the session
// locker; appends use a non-blocking acquire so a racing append is rejected
// instead of interleaved.
type Engine struct {
	sessionStor stor.SessionStor
	folderStor  stor.FolderStor
	locker      *lock.KeyLocker
	progress    *ProgressCache
	root        string
	maxSize     int64
	ttl         time.Duration
}

type EngineOpts struct {
	SessionStor stor.SessionStor
	FolderStor  stor.FolderStor
	Locker      *lock.KeyLocker
	Progress    *ProgressCache
	Root        string
	MaxSize     int64
	TTL         time.Duration
}

func NewEngine(opts EngineOpts) *Engine {
	return &Engine{
		sessionStor: opts.SessionStor,
		folderStor:  opts.FolderStor,
		locker:      opts.Locker,
		progress:    opts.Progress,
		root:        opts.Root,
		maxSize:     opts.MaxSize,
		ttl:         opts.TTL,
	}
}

type CreateRequest struct {
	FileName    string
	ContentType string
	TotalSize   int64
	FolderID    *int
	OwnerID     int
}

// Create starts a new upload session and its temp payload file.
func (e *Engine) Create(req CreateRequest) (*model.UploadSession, error) {
	if req.TotalSize < 0 || req.TotalSize > e.maxSize {
		return nil, ErrInvalidRequest
	}

	if req.FolderID != nil {
		if _, err := e.folderStor.GetFolderForOwner(*req.FolderID, req.OwnerID); err != nil {
			return nil, ErrInvalidRequest
		}
	}

	id, err := uuid.GenerateUUID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &model.UploadSession{
		ID:             id,
		FileName:       req.FileName,
		ContentType:    req.ContentType,
		TotalSize:      req.TotalSize,
		ReceivedOffset: 0,
		FolderID:       req.FolderID,
		OwnerID:        req.OwnerID,
		IsComplete:     req.TotalSize == 0,
		LastActivityAt: now,
		ExpiresAt:      now.Add(e.ttl),
	}

	if err := createEmptyFile(session.TempPath(e.root)); err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}

	if _, err := e.sessionStor.CreateSession(session); err != nil {
		_ = os.Remove(session.TempPath(e.root))
		return nil, err
	}

	return session, nil
}

// Status reports the session's current received offset, scoped to its owner.
func (e *Engine) Status(sessionID string, ownerID int) (*model.UploadSession, error) {
	return e.getLiveSession(sessionID, ownerID)
}

// Append verifies claimedOffset against the session's received offset and,
// when they match, appends chunkLen bytes read from r to the temp payload.
// The offset check happens before any byte is written. Only one append per
// session may be in flight; a second concurrent one is rejected with a
// conflict rather than queued.
func (e *Engine) Append(sessionID string, ownerID int, claimedOffset, chunkLen int64, r io.Reader) (int64, error) {
	if chunkLen < 0 {
		return 0, ErrInvalidRequest
	}

	if !e.locker.TryAcquire(sessionID) {
		// A concurrent append holds the session. Report whatever offset we
		// can see; the client reconciles through Status anyway.
		offset := int64(0)
		if session, err := e.sessionStor.GetSessionForOwner(sessionID, ownerID); err == nil {
			offset = session.ReceivedOffset
		}
		return offset, &OffsetConflictError{Offset: offset}
	}
	defer e.locker.Release(sessionID)

	session, err := e.getLiveSession(sessionID, ownerID)
	if err != nil {
		return 0, err
	}

	if claimedOffset != session.ReceivedOffset {
		return session.ReceivedOffset, &OffsetConflictError{Offset: session.ReceivedOffset}
	}

	if session.ReceivedOffset+chunkLen > session.TotalSize {
		return session.ReceivedOffset, ErrInvalidRequest
	}

	if chunkLen == 0 {
		// Zero-length append at the current offset is a no-op; clients use
		// it to re-drive finalization after a transient failure.
		return session.ReceivedOffset, nil
	}

	tempPath := session.TempPath(e.root)
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return session.ReceivedOffset, errors.Join(ErrStorageFailure, err)
	}

	n, err := io.Copy(file, io.LimitReader(r, chunkLen))
	if cerr := file.Close(); err == nil {
		err = cerr
	}

	if err != nil || n != chunkLen {
		// The chunk didn't arrive whole. Drop the partial bytes so the
		// file matches the recorded offset.
		if terr := os.Truncate(tempPath, session.ReceivedOffset); terr != nil {
			log.Errorf("failed truncating %s back to %d after short append: %s", tempPath, session.ReceivedOffset, terr)
		}
		return session.ReceivedOffset, errors.Join(ErrStorageFailure, err)
	}

	newOffset := session.ReceivedOffset + chunkLen
	now := time.Now()
	complete := newOffset == session.TotalSize

	if err := e.sessionStor.AdvanceOffset(session, newOffset, now, now.Add(e.ttl), complete); err != nil {
		if terr := os.Truncate(tempPath, claimedOffset); terr != nil {
			log.Errorf("failed truncating %s back to %d after offset update failure: %s", tempPath, claimedOffset, terr)
		}
		return claimedOffset, errors.Join(ErrStorageFailure, err)
	}

	e.progress.SetUploadProgress(sessionID, newOffset)

	return newOffset, nil
}

// Cancel deletes the session and its temp payload. Canceling a session that
// is already gone is not an error. Cancel waits for any in-flight append to
// finish so a write is never half-applied to a deleted session.
func (e *Engine) Cancel(sessionID string, ownerID int) error {
	e.locker.Acquire(sessionID)
	defer e.locker.Release(sessionID)

	session, err := e.sessionStor.GetSessionForOwner(sessionID, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if err := os.Remove(session.TempPath(e.root)); err != nil && !os.IsNotExist(err) {
		log.Errorf("failed removing temp payload for canceled session %s: %s", sessionID, err)
	}

	if err := e.sessionStor.DeleteSession(sessionID); err != nil {
		return err
	}

	e.progress.DeleteUploadProgress(sessionID)

	return nil
}

// getLiveSession maps missing, foreign and expired sessions onto ErrNotFound.
// A completed session never expires; it waits for finalization.
func (e *Engine) getLiveSession(sessionID string, ownerID int) (*model.UploadSession, error) {
	session, err := e.sessionStor.GetSessionForOwner(sessionID, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if !session.IsComplete && session.IsExpired(time.Now()) {
		return nil, ErrNotFound
	}

	return session, nil
}

// createEmptyFile creates (or truncates) the file at path, creating its
// directory when needed.
func createEmptyFile(path string) error {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return err
		}

		file, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
		if err != nil {
			return err
		}
	}

	return file.Close()
}
