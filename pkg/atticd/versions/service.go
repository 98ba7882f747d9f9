package versions

import (
	"errors"
	"fmt"

	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/atticfile/attic/pkg/atticdb/stor"
	"github.com/atticfile/attic/pkg/lock"
	"gorm.io/gorm"
)

// ErrVersionNotFound is returned for version numbers that were never
// assigned to the file.
var ErrVersionNotFound = errors.New("no such version")

// Service maintains the per-file version chain: an append-only history of
// immutable payloads plus the current pointer on the logical file. Version
// number assignment and pointer advancement for one file are serialized
// through the file locker; different files proceed in parallel.
type Service struct {
	fileStor    stor.FileStor
	versionStor stor.VersionStor
	fileLocker  *lock.KeyLocker
	root        string
}

func NewService(fileStor stor.FileStor, versionStor stor.VersionStor, fileLocker *lock.KeyLocker, root string) *Service {
	return &Service{
		fileStor:    fileStor,
		versionStor: versionStor,
		fileLocker:  fileLocker,
		root:        root,
	}
}

func (s *Service) Root() string {
	return s.root
}

type AppendRequest struct {
	StorageUUID string
	Size        int64
	Checksum    string
	CreatedByID int
	Note        string
}

// Append adds a new version to the file's chain and advances the current
// pointer to it. The payload must already be durable at the storage location
// named by StorageUUID before Append is called; the pointer swap is the
// moment the new content becomes visible to readers.
func (s *Service) Append(file *model.File, req AppendRequest) (*model.FileVersion, error) {
	var version *model.FileVersion

	err := s.fileLocker.WithLock(fileLockKey(file.ID), func() error {
		next, err := s.versionStor.NextVersionNumber(file.ID)
		if err != nil {
			return err
		}

		version, err = s.versionStor.CreateVersion(&model.FileVersion{
			FileID:        file.ID,
			VersionNumber: next,
			StorageUUID:   req.StorageUUID,
			Size:          req.Size,
			Checksum:      req.Checksum,
			Note:          req.Note,
			CreatedByID:   req.CreatedByID,
		})
		if err != nil {
			return err
		}

		return s.fileStor.UpdateCurrentVersion(file, next, req.Checksum, req.Size)
	})

	if err != nil {
		return nil, err
	}

	return version, nil
}

// OverwriteCurrent replaces the file's current version in place, keeping its
// version number. This is the versioning-disabled path: the file trades
// history for storage. storageUUID names where the new payload lives; it is
// the current location when that location is exclusively ours, or a fresh one
// when the old payload is shared with other version chains.
func (s *Service) OverwriteCurrent(file *model.File, storageUUID, checksum string, size int64, userID int) (*model.FileVersion, error) {
	var version *model.FileVersion

	err := s.fileLocker.WithLock(fileLockKey(file.ID), func() error {
		current, err := s.versionStor.GetVersion(file.ID, file.CurrentVersion)
		if err != nil {
			return err
		}

		if err := s.versionStor.UpdateVersionInPlace(current, storageUUID, checksum, size, userID); err != nil {
			return err
		}

		version = current
		return s.fileStor.UpdateCurrentVersion(file, current.VersionNumber, checksum, size)
	})

	if err != nil {
		return nil, err
	}

	return version, nil
}

func (s *Service) GetVersion(file *model.File, versionNumber int) (*model.FileVersion, error) {
	version, err := s.versionStor.GetVersion(file.ID, versionNumber)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}

	return version, nil
}

func (s *Service) GetCurrentVersion(file *model.File) (*model.FileVersion, error) {
	if file.CurrentVersion == 0 {
		return nil, ErrVersionNotFound
	}

	return s.GetVersion(file, file.CurrentVersion)
}

// ListVersions returns the file's history, most recent first.
func (s *Service) ListVersions(file *model.File) ([]model.FileVersion, error) {
	return s.versionStor.ListVersions(file.ID)
}

// Restore makes an older version's content current again by appending a new
// trailing version that shares the restored payload's storage location and
// checksum. Nothing is deleted; history stays monotonic.
func (s *Service) Restore(file *model.File, versionNumber, userID int) (*model.FileVersion, error) {
	var version *model.FileVersion

	err := s.fileLocker.WithLock(fileLockKey(file.ID), func() error {
		restored, err := s.versionStor.GetVersion(file.ID, versionNumber)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVersionNotFound
			}
			return err
		}

		next, err := s.versionStor.NextVersionNumber(file.ID)
		if err != nil {
			return err
		}

		version, err = s.versionStor.CreateVersion(&model.FileVersion{
			FileID:        file.ID,
			VersionNumber: next,
			StorageUUID:   restored.StorageUUID,
			Size:          restored.Size,
			Checksum:      restored.Checksum,
			Note:          fmt.Sprintf("restored from version %d", versionNumber),
			CreatedByID:   userID,
		})
		if err != nil {
			return err
		}

		return s.fileStor.UpdateCurrentVersion(file, next, restored.Checksum, restored.Size)
	})

	if err != nil {
		return nil, err
	}

	return version, nil
}

func fileLockKey(fileID int) string {
	return fmt.Sprintf("file-%d", fileID)
}
