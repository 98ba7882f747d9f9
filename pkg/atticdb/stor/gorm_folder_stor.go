package stor

import (
	"github.com/atticfile/attic/pkg/atticdb/model"
	"gorm.io/gorm"
)

type GormFolderStor struct {
	db *gorm.DB
}

func NewGormFolderStor(db *gorm.DB) *GormFolderStor {
	return &GormFolderStor{db: db}
}

func (s *GormFolderStor) CreateFolder(folder *model.Folder) (*model.Folder, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(folder).Error
	})

	return folder, err
}

func (s *GormFolderStor) GetFolderForOwner(folderID, ownerID int) (*model.Folder, error) {
	var folder model.Folder
	err := s.db.Where("id = ?", folderID).
		Where("owner_id = ?", ownerID).
		First(&folder).Error
	if err != nil {
		return nil, err
	}

	return &folder, nil
}
