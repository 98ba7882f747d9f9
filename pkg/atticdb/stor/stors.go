package stor

import (
	"time"

	"github.com/atticfile/attic/pkg/atticdb/model"
	"gorm.io/gorm"
)

type UserStor interface {
	CreateUser(user *model.User) (*model.User, error)
	GetUserByAPIToken(apiToken string) (*model.User, error)
}

type FolderStor interface {
	CreateFolder(folder *model.Folder) (*model.Folder, error)
	GetFolderForOwner(folderID, ownerID int) (*model.Folder, error)
}

type FileStor interface {
	GetFileByID(fileID int) (*model.File, error)
	GetFileByUUIDForOwner(fileUUID string, ownerID int) (*model.File, error)
	GetOrCreateFile(name string, folderID *int, ownerID int, mimeType string) (*model.File, error)
	UpdateCurrentVersion(file *model.File, versionNumber int, checksum string, size int64) error
	SetVersioningEnabled(file *model.File, enabled bool) error
}

type VersionStor interface {
	CreateVersion(version *model.FileVersion) (*model.FileVersion, error)
	GetVersion(fileID, versionNumber int) (*model.FileVersion, error)
	ListVersions(fileID int) ([]model.FileVersion, error)
	NextVersionNumber(fileID int) (int, error)
	UpdateVersionInPlace(version *model.FileVersion, storageUUID, checksum string, size int64, createdByID int) error
	FindMatchingVersionByChecksum(checksum string) (*model.FileVersion, error)
	CountVersionsForStorageUUID(storageUUID string) (int64, error)
}

type SessionStor interface {
	CreateSession(session *model.UploadSession) (*model.UploadSession, error)
	GetSessionForOwner(sessionID string, ownerID int) (*model.UploadSession, error)
	AdvanceOffset(session *model.UploadSession, newOffset int64, activityAt, expiresAt time.Time, complete bool) error
	DeleteSession(sessionID string) error
	ListExpired(now time.Time) ([]model.UploadSession, error)
}

type Stors struct {
	UserStor    UserStor
	FolderStor  FolderStor
	FileStor    FileStor
	VersionStor VersionStor
	SessionStor SessionStor
}

func NewGormStors(db *gorm.DB) *Stors {
	return &Stors{
		UserStor:    NewGormUserStor(db),
		FolderStor:  NewGormFolderStor(db),
		FileStor:    NewGormFileStor(db),
		VersionStor: NewGormVersionStor(db),
		SessionStor: NewGormSessionStor(db),
	}
}
