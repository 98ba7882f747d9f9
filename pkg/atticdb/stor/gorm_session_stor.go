package stor

import (
	"time"

	"github.com/atticfile/attic/pkg/atticdb/model"
	"gorm.io/gorm"
)

type GormSessionStor struct {
	db *gorm.DB
}

func NewGormSessionStor(db *gorm.DB) *GormSessionStor {
	return &GormSessionStor{db: db}
}

func (s *GormSessionStor) CreateSession(session *model.UploadSession) (*model.UploadSession, error) {
	err := WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Create(session).Error
	})

	return session, err
}

// GetSessionForOwner looks up a session scoped to its owner. A session that
// exists but belongs to someone else is reported exactly like a missing one
// so callers can't probe for other users' session ids.
func (s *GormSessionStor) GetSessionForOwner(sessionID string, ownerID int) (*model.UploadSession, error) {
	var session model.UploadSession
	err := s.db.Where("id = ?", sessionID).
		Where("owner_id = ?", ownerID).
		First(&session).Error
	if err != nil {
		return nil, err
	}

	return &session, nil
}

// AdvanceOffset records a successful append. Offset, activity time, expiry
// and the completion flag all move in one transaction so no reader observes
// a half-updated session.
func (s *GormSessionStor) AdvanceOffset(session *model.UploadSession, newOffset int64, activityAt, expiresAt time.Time, complete bool) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		err := tx.Model(session).Updates(map[string]interface{}{
			"received_offset":  newOffset,
			"last_activity_at": activityAt,
			"expires_at":       expiresAt,
			"is_complete":      complete,
		}).Error
		if err != nil {
			return err
		}

		session.ReceivedOffset = newOffset
		session.LastActivityAt = activityAt
		session.ExpiresAt = expiresAt
		session.IsComplete = complete
		return nil
	})
}

func (s *GormSessionStor) DeleteSession(sessionID string) error {
	return WithTxRetry(s.db, func(tx *gorm.DB) error {
		return tx.Delete(&model.UploadSession{}, "id = ?", sessionID).Error
	})
}

// ListExpired returns sessions past their expiry that never completed.
// Completed sessions are excluded so finalization never races the sweeper.
func (s *GormSessionStor) ListExpired(now time.Time) ([]model.UploadSession, error) {
	var sessions []model.UploadSession
	err := s.db.Where("expires_at <= ?", now).
		Where("is_complete = ?", false).
		Find(&sessions).Error

	return sessions, err
}
