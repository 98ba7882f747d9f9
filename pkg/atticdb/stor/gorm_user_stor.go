package stor

import (
	"github.com/atticfile/attic/pkg/atticdb/model"
	"gorm.io/gorm"
)

type GormUserStor struct {
	db *gorm.DB
}

func NewGormUserStor(db *gorm.DB) *GormUserStor {
	return &GormUserStor{db: db}
}

func (s *GormUserStor) CreateUser(user *model.User) (*model.User, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(user).Error
	})

	return user, err
}

func (s *GormUserStor) GetUserByAPIToken(apiToken string) (*model.User, error) {
	var user model.User
	if err := s.db.Where("api_token = ?", apiToken).First(&user).Error; err != nil {
		return nil, err
	}

	return &user, nil
}
