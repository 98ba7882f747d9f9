package webapi

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atticfile/attic/pkg/atticd/uploads"
	"github.com/atticfile/attic/pkg/atticd/versions"
	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/atticfile/attic/pkg/atticdb/stor"
	"github.com/atticfile/attic/pkg/lock"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	testMaxSize = int64(1 << 20)
	testTTL     = time.Hour
)

// testCase wires the controllers onto a real engine, finalizer and versions
// service backed by an in-memory db and a temp storage root.
type testCase struct {
	stors    *stor.Stors
	root     string
	progress *uploads.ProgressCache
	engine   *uploads.Engine
	versions *versions.Service

	uploadController   *UploadController
	downloadController *DownloadController
	versionController  *VersionController
	progressController *ProgressController

	owner *model.User
	e     *echo.Echo
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

	stors := stor.NewGormStors(db)
	root := t.TempDir()

	owner, err := stors.UserStor.CreateUser(&model.User{Email: "owner@test.org", APIToken: "owner-token"})
	require.NoError(t, err)

	sessionLocker := lock.NewKeyLocker()
	progress := uploads.NewProgressCache()

	engine := uploads.NewEngine(uploads.EngineOpts{
		SessionStor: stors.SessionStor,
		FolderStor:  stors.FolderStor,
		Locker:      sessionLocker,
		Progress:    progress,
		Root:        root,
		MaxSize:     testMaxSize,
		TTL:         testTTL,
	})

	versionsService := versions.NewService(stors.FileStor, stors.VersionStor, lock.NewKeyLocker(), root)

	finalizer := uploads.NewFinalizer(uploads.FinalizerOpts{
		SessionStor:   stors.SessionStor,
		FileStor:      stors.FileStor,
		VersionStor:   stors.VersionStor,
		Versions:      versionsService,
		SessionLocker: sessionLocker,
		Progress:      progress,
		Root:          root,
	})

	return &testCase{
		stors:              stors,
		root:               root,
		progress:           progress,
		engine:             engine,
		versions:           versionsService,
		uploadController:   NewUploadController(engine, finalizer),
		downloadController: NewDownloadController(stors.FileStor, versionsService),
		versionController:  NewVersionController(stors.FileStor, versionsService),
		progressController: NewProgressController(progress),
		owner:              owner,
		e:                  echo.New(),
	}
}

// newContext builds an echo context carrying the authenticated owner, the
// protocol version header and any extra headers the caller needs.
func (tc *testCase) newContext(method, target string, body []byte, headers map[string]string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set(TusResumableHeader, TusProtocolVersion)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	c := tc.e.NewContext(req, rec)
	c.Set("User", *tc.owner)

	return c, rec
}

// uploadFile pushes content through the engine and finalizer, returning the
// stored file. folderID may be nil.
func (tc *testCase) uploadFile(t *testing.T, name string, content []byte, folderID *int) *model.File {
	session, err := tc.engine.Create(uploads.CreateRequest{
		FileName:  name,
		TotalSize: int64(len(content)),
		FolderID:  folderID,
		OwnerID:   tc.owner.ID,
	})
	require.NoError(t, err)

	if len(content) > 0 {
		_, err = tc.engine.Append(session.ID, tc.owner.ID, 0, int64(len(content)), bytes.NewReader(content))
		require.NoError(t, err)
	}

	ctx, rec := tc.newContext("PATCH", "/api/uploads/"+session.ID, nil, map[string]string{
		echo.HeaderContentType: OffsetOctetStreamMediaType,
		UploadOffsetHeader:     fmt.Sprintf("%d", len(content)),
	})
	ctx.SetParamNames("id")
	ctx.SetParamValues(session.ID)

	require.NoError(t, tc.uploadController.AppendToUpload(ctx))
	require.Equal(t, 204, rec.Code)

	file, err := tc.stors.FileStor.GetOrCreateFile(name, folderID, tc.owner.ID, "application/octet-stream")
	require.NoError(t, err)

	return file
}
