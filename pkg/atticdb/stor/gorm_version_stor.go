package stor

import (
	"time"

	"github.com/atticfile/attic/pkg/atticdb/model"
	"gorm.io/gorm"
)

type GormVersionStor struct {
	db *gorm.DB
}

func NewGormVersionStor(db *gorm.DB) *GormVersionStor {
	return &GormVersionStor{db: db}
}

func (s *GormVersionStor) CreateVersion(version *model.FileVersion) (*model.FileVersion, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(version).Error
	})

	return version, err
}

func (s *GormVersionStor) GetVersion(fileID, versionNumber int) (*model.FileVersion, error) {
	var version model.FileVersion
	err := s.db.Where("file_id = ?", fileID).
		Where("version_number = ?", versionNumber).
		First(&version).Error
	if err != nil {
		return nil, err
	}

	return &version, nil
}

func (s *GormVersionStor) ListVersions(fileID int) ([]model.FileVersion, error) {
	var versions []model.FileVersion
	err := s.db.Where("file_id = ?", fileID).
		Order("version_number desc").
		Find(&versions).Error

	return versions, err
}

// NextVersionNumber returns one past the highest version number recorded for
// the file. Callers must hold the per-file lock so that two finalizations of
// the same file can't read the same maximum.
func (s *GormVersionStor) NextVersionNumber(fileID int) (int, error) {
	var maxVersion int
	err := s.db.Model(&model.FileVersion{}).
		Where("file_id = ?", fileID).
		Select("COALESCE(MAX(version_number), 0)").
		Scan(&maxVersion).Error
	if err != nil {
		return 0, err
	}

	return maxVersion + 1, nil
}

// UpdateVersionInPlace rewrites an existing version row, including its
// storage location. Only the versioning-disabled overwrite path uses this;
// everywhere else versions are write-once.
func (s *GormVersionStor) UpdateVersionInPlace(version *model.FileVersion, storageUUID, checksum string, size int64, createdByID int) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		err := tx.Model(version).Updates(map[string]interface{}{
			"storage_uuid":  storageUUID,
			"checksum":      checksum,
			"size":          size,
			"created_by_id": createdByID,
			"created_at":    time.Now(),
		}).Error
		if err != nil {
			return err
		}

		version.StorageUUID = storageUUID
		version.Checksum = checksum
		version.Size = size
		version.CreatedByID = createdByID
		return nil
	})
}

// FindMatchingVersionByChecksum looks for a stored payload with the given
// content hash so a new version can share its storage rather than writing a
// duplicate copy. The current version of a file with versioning disabled is
// never a match: its payload can be overwritten in place, so sharing it would
// let that overwrite mutate another chain's write-once history.
func (s *GormVersionStor) FindMatchingVersionByChecksum(checksum string) (*model.FileVersion, error) {
	var version model.FileVersion
	err := s.db.Where("checksum = ?", checksum).
		Where(`NOT EXISTS (SELECT 1 FROM files
			WHERE files.id = file_versions.file_id
			AND files.versioning_enabled = ?
			AND files.current_version = file_versions.version_number)`, false).
		First(&version).Error
	if err != nil {
		return nil, err
	}

	return &version, nil
}

// CountVersionsForStorageUUID reports how many version rows reference a
// stored payload. The overwrite path uses this to detect a deduplicated
// location it must not write over.
func (s *GormVersionStor) CountVersionsForStorageUUID(storageUUID string) (int64, error) {
	var count int64
	err := s.db.Model(&model.FileVersion{}).
		Where("storage_uuid = ?", storageUUID).
		Count(&count).Error

	return count, err
}
