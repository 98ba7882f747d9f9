package uploads

import (
	"errors"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/atticfile/attic/pkg/atticd/versions"
	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/atticfile/attic/pkg/atticdb/stor"
	"github.com/atticfile/attic/pkg/checksum"
	"github.com/atticfile/attic/pkg/lock"
	"github.com/hashicorp/go-uuid"
	"gorm.io/gorm"
)

// QuotaFunc is the surrounding application's storage-accounting hook. It is
// invoked after a successful finalize with the owner and the number of bytes
// the new version added; its error is passed back to the caller unchanged.
type QuotaFunc func(ownerID int, addedBytes int64) error

// NoQuota admits every upload. It is the hook a server wires when no storage
// accounting is configured; enforcing deployments swap in their own QuotaFunc
// and return ErrQuotaExceeded (or a wrapper of it) to reject.
func NoQuota(ownerID int, addedBytes int64) error {
	return nil
}

// Finalizer converts a completed upload session into a version of a logical
// file. The payload is moved into permanent storage and hashed before the
// current pointer advances, so readers never observe a half-finalized file.
// On any failure the session is left intact and finalize can be retried.
type Finalizer struct {
	sessionStor   stor.SessionStor
	fileStor      stor.FileStor
	versionStor   stor.VersionStor
	versions      *versions.Service
	sessionLocker *lock.KeyLocker
	progress      *ProgressCache
	root          string
	quotaFn       QuotaFunc
}

type FinalizerOpts struct {
	SessionStor   stor.SessionStor
	FileStor      stor.FileStor
	VersionStor   stor.VersionStor
	Versions      *versions.Service
	SessionLocker *lock.KeyLocker
	Progress      *ProgressCache
	Root          string
	Quota         QuotaFunc
}

func NewFinalizer(opts FinalizerOpts) *Finalizer {
	return &Finalizer{
		sessionStor:   opts.SessionStor,
		fileStor:      opts.FileStor,
		versionStor:   opts.VersionStor,
		versions:      opts.Versions,
		sessionLocker: opts.SessionLocker,
		progress:      opts.Progress,
		root:          opts.Root,
		quotaFn:       opts.Quota,
	}
}

// Finalize moves the session's payload into permanent storage, creates or
// advances the target file's version chain, and deletes the session.
func (f *Finalizer) Finalize(sessionID string, ownerID int) (*model.File, *model.FileVersion, error) {
	f.sessionLocker.Acquire(sessionID)
	defer f.sessionLocker.Release(sessionID)

	session, err := f.sessionStor.GetSessionForOwner(sessionID, ownerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	if !session.IsComplete {
		return nil, nil, ErrNotReady
	}

	tempPath := session.TempPath(f.root)
	hash, size, err := checksum.File(tempPath)
	if err != nil {
		return nil, nil, errors.Join(ErrStorageFailure, err)
	}

	if size != session.TotalSize {
		// The temp payload doesn't match the recorded offset; refuse to
		// publish it.
		return nil, nil, errors.Join(ErrStorageFailure,
			errors.New("temp payload size does not match session total size"))
	}

	file, err := f.fileStor.GetOrCreateFile(session.FileName, session.FolderID, ownerID, mimeTypeFor(session))
	if err != nil {
		return nil, nil, err
	}

	var version *model.FileVersion
	if file.VersioningEnabled || file.CurrentVersion == 0 {
		version, err = f.appendNewVersion(session, file, hash, size)
	} else {
		version, err = f.overwriteCurrentVersion(session, file, hash, size)
	}
	if err != nil {
		return nil, nil, err
	}

	// The permanent copy is confirmed; release the session. A failure here
	// is logged rather than surfaced so a retry can't publish the payload
	// twice.
	if err := f.sessionStor.DeleteSession(sessionID); err != nil {
		log.Errorf("finalized session %s but failed deleting it: %s", sessionID, err)
	}

	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		log.Errorf("failed removing temp payload for finalized session %s: %s", sessionID, err)
	}

	f.progress.DeleteUploadProgress(sessionID)

	if f.quotaFn != nil {
		if err := f.quotaFn(ownerID, version.Size); err != nil {
			return file, version, err
		}
	}

	return file, version, nil
}

// appendNewVersion publishes the payload as the next version in the chain.
// If some stored payload already has the same content hash, the new version
// shares its storage location and the temp bytes are simply discarded.
func (f *Finalizer) appendNewVersion(session *model.UploadSession, file *model.File, hash string, size int64) (*model.FileVersion, error) {
	tempPath := session.TempPath(f.root)

	storageUUID := ""
	moved := false

	if match, err := f.versionStor.FindMatchingVersionByChecksum(hash); err == nil {
		storageUUID = match.StorageUUID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if storageUUID == "" {
		newUUID, err := uuid.GenerateUUID()
		if err != nil {
			return nil, err
		}

		dest := model.StoragePathForUUID(f.root, newUUID)
		if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
			return nil, errors.Join(ErrStorageFailure, err)
		}

		if err := os.Rename(tempPath, dest); err != nil {
			return nil, errors.Join(ErrStorageFailure, err)
		}

		storageUUID = newUUID
		moved = true
	}

	version, err := f.versions.Append(file, versions.AppendRequest{
		StorageUUID: storageUUID,
		Size:        size,
		Checksum:    hash,
		CreatedByID: session.OwnerID,
	})
	if err != nil {
		if moved {
			// Put the payload back so the session stays retryable.
			if rerr := os.Rename(model.StoragePathForUUID(f.root, storageUUID), tempPath); rerr != nil {
				log.Errorf("failed restoring temp payload for session %s: %s", session.ID, rerr)
			}
		}
		return nil, err
	}

	return version, nil
}

// overwriteCurrentVersion replaces the current version's payload and row in
// place. This is the deliberate space-for-history trade a file makes when
// versioning is disabled. When the current payload is deduplicated into other
// version chains, writing over it would mutate their write-once history, so
// the new content goes under a fresh location and the row is repointed; the
// shared payload stays on disk for the versions that still reference it.
func (f *Finalizer) overwriteCurrentVersion(session *model.UploadSession, file *model.File, hash string, size int64) (*model.FileVersion, error) {
	current, err := f.versions.GetVersion(file, file.CurrentVersion)
	if err != nil {
		return nil, err
	}

	storageUUID := current.StorageUUID

	refs, err := f.versionStor.CountVersionsForStorageUUID(storageUUID)
	if err != nil {
		return nil, err
	}

	if refs > 1 {
		if storageUUID, err = uuid.GenerateUUID(); err != nil {
			return nil, err
		}
	}

	dest := model.StoragePathForUUID(f.root, storageUUID)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}

	if err := os.Rename(session.TempPath(f.root), dest); err != nil {
		return nil, errors.Join(ErrStorageFailure, err)
	}

	return f.versions.OverwriteCurrent(file, storageUUID, hash, size, session.OwnerID)
}

func mimeTypeFor(session *model.UploadSession) string {
	if session.ContentType != "" {
		return session.ContentType
	}

	mimeType := mime.TypeByExtension(filepath.Ext(session.FileName))
	if mimeType == "" {
		return "application/octet-stream"
	}

	if semicolon := strings.Index(mimeType, ";"); semicolon != -1 {
		mimeType = mimeType[:semicolon]
	}

	return strings.TrimSpace(mimeType)
}
