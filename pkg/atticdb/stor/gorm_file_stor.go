package stor

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/atticfile/attic/pkg/lock"
	"github.com/hashicorp/go-uuid"
	"gorm.io/gorm"
)

type GormFileStor struct {
	db          *gorm.DB
	createLocks *lock.KeyLocker
}

func NewGormFileStor(db *gorm.DB) *GormFileStor {
	return &GormFileStor{
		db:          db,
		createLocks: lock.NewKeyLocker(),
	}
}

func (s *GormFileStor) GetFileByID(fileID int) (*model.File, error) {
	var file model.File
	if err := s.db.First(&file, fileID).Error; err != nil {
		return nil, err
	}

	return &file, nil
}

func (s *GormFileStor) GetFileByUUIDForOwner(fileUUID string, ownerID int) (*model.File, error) {
	var file model.File
	err := s.db.Where("uuid = ?", fileUUID).
		Where("owner_id = ?", ownerID).
		First(&file).Error
	if err != nil {
		return nil, err
	}

	return &file, nil
}

// GetOrCreateFile finds the logical file with the given name in the target
// folder for the owner, creating it when the upload is for a name that
// doesn't exist yet. New files start with no current version; the version
// pointer is set when the first finalize completes.
//
// Two finalizations of the same brand-new name must resolve to one logical
// file, and no per-file lock can exist before the row does. Creation is
// serialized on the file's location, and the unique index on
// (name, owner_id, folder_id) catches a lost race with another server, in
// which case the winning row is fetched and returned.
func (s *GormFileStor) GetOrCreateFile(name string, folderID *int, ownerID int, mimeType string) (*model.File, error) {
	var file model.File

	err := s.createLocks.WithLock(fileLocationKey(name, folderID, ownerID), func() error {
		return WithTxRetry(s.db, func(tx *gorm.DB) error {
			err := fileByLocation(tx, name, folderID, ownerID).First(&file).Error
			if err == nil {
				return nil
			}

			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			file = model.File{
				Name:              name,
				OwnerID:           ownerID,
				FolderID:          folderID,
				MimeType:          mimeType,
				CurrentVersion:    0,
				VersioningEnabled: true,
			}

			if file.UUID, err = uuid.GenerateUUID(); err != nil {
				return err
			}

			if err := tx.Create(&file).Error; err != nil {
				// Another server inserted the row between the lookup and
				// the create; the unique index rejected the duplicate.
				if ferr := fileByLocation(tx, name, folderID, ownerID).First(&file).Error; ferr == nil {
					return nil
				}
				return err
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return &file, nil
}

// UpdateCurrentVersion advances the file's current pointer. This is the last
// step of finalize; readers see the new version only after this commits.
func (s *GormFileStor) UpdateCurrentVersion(file *model.File, versionNumber int, checksum string, size int64) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		err := tx.Model(file).Updates(map[string]interface{}{
			"current_version": versionNumber,
			"checksum":        checksum,
			"size":            size,
		}).Error
		if err != nil {
			return err
		}

		file.CurrentVersion = versionNumber
		file.Checksum = checksum
		file.Size = size
		return nil
	})
}

func (s *GormFileStor) SetVersioningEnabled(file *model.File, enabled bool) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		err := tx.Model(file).Update("versioning_enabled", enabled).Error
		if err != nil {
			return err
		}

		file.VersioningEnabled = enabled
		return nil
	})
}

func fileByLocation(tx *gorm.DB, name string, folderID *int, ownerID int) *gorm.DB {
	q := tx.Where("name = ?", name).Where("owner_id = ?", ownerID)
	if folderID == nil {
		return q.Where("folder_id IS NULL")
	}

	return q.Where("folder_id = ?", *folderID)
}

func fileLocationKey(name string, folderID *int, ownerID int) string {
	folder := "root"
	if folderID != nil {
		folder = strconv.Itoa(*folderID)
	}

	return fmt.Sprintf("file-create-%d-%s-%s", ownerID, folder, name)
}
