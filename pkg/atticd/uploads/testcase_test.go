package uploads

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/atticfile/attic/pkg/atticd/versions"
	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/atticfile/attic/pkg/atticdb/stor"
	"github.com/atticfile/attic/pkg/lock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testMaxSize = int64(1 << 20)
	testTTL     = time.Hour
)

type testCase struct {
	*testing.T
	db        *gorm.DB
	stors     *stor.Stors
	root      string
	progress  *ProgressCache
	engine    *Engine
	finalizer *Finalizer
	sweeper   *Sweeper
	versions  *versions.Service
	owner     *model.User
	folder    *model.Folder
}

func newTestCase(t *testing.T) *testCase {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoErrorf(t, err, "gorm.Open failed: %s", err)

	sqlitedb, err := db.DB()
	require.NoError(t, err)
	sqlitedb.SetMaxOpenConns(1)

	err = db.AutoMigrate(&model.User{}, &model.Folder{}, &model.File{}, &model.FileVersion{}, &model.UploadSession{})
	require.NoErrorf(t, err, "Migration failed with: %s", err)

	tc := &testCase{
		T:     t,
		db:    db,
		stors: stor.NewGormStors(db),
		root:  t.TempDir(),
	}

	tc.owner, err = tc.stors.UserStor.CreateUser(&model.User{Email: "user1@test.com", APIToken: "token1"})
	require.NoErrorf(t, err, "Failed creating user1: %s", err)

	tc.folder, err = tc.stors.FolderStor.CreateFolder(&model.Folder{OwnerID: tc.owner.ID, Name: "documents"})
	require.NoErrorf(t, err, "Failed creating folder: %s", err)

	sessionLocker := lock.NewKeyLocker()
	fileLocker := lock.NewKeyLocker()
	tc.progress = NewProgressCache()

	tc.engine = NewEngine(EngineOpts{
		SessionStor: tc.stors.SessionStor,
		FolderStor:  tc.stors.FolderStor,
		Locker:      sessionLocker,
		Progress:    tc.progress,
		Root:        tc.root,
		MaxSize:     testMaxSize,
		TTL:         testTTL,
	})

	tc.versions = versions.NewService(tc.stors.FileStor, tc.stors.VersionStor, fileLocker, tc.root)

	tc.finalizer = NewFinalizer(FinalizerOpts{
		SessionStor:   tc.stors.SessionStor,
		FileStor:      tc.stors.FileStor,
		VersionStor:   tc.stors.VersionStor,
		Versions:      tc.versions,
		SessionLocker: sessionLocker,
		Progress:      tc.progress,
		Root:          tc.root,
	})

	tc.sweeper = NewSweeper(tc.stors.SessionStor, sessionLocker, tc.progress, tc.root, time.Minute)

	return tc
}

func (tc *testCase) createSession(name string, totalSize int64) *model.UploadSession {
	session, err := tc.engine.Create(CreateRequest{
		FileName:    name,
		ContentType: "application/octet-stream",
		TotalSize:   totalSize,
		FolderID:    &tc.folder.ID,
		OwnerID:     tc.owner.ID,
	})
	require.NoErrorf(tc.T, err, "Failed creating session: %s", err)
	return session
}

func (tc *testCase) appendBytes(sessionID string, offset int64, data []byte) (int64, error) {
	return tc.engine.Append(sessionID, tc.owner.ID, offset, int64(len(data)), strings.NewReader(string(data)))
}

// expireSession backdates the session past its TTL, simulating a long idle
// period.
func (tc *testCase) expireSession(sessionID string) {
	past := time.Now().Add(-time.Minute)
	err := tc.db.Model(&model.UploadSession{ID: sessionID}).Update("expires_at", past).Error
	require.NoError(tc.T, err)
}
