package uploads

import (
	"bytes"
	"errors"
	"os"
	"sync"
	"testing"

	"github.com/atticfile/attic/pkg/atticdb/model"
	"github.com/atticfile/attic/pkg/checksum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// uploadComplete drives a full append sequence so finalize can be exercised.
func (tc *testCase) uploadComplete(name string, payload []byte) *model.UploadSession {
	session := tc.createSession(name, int64(len(payload)))
	_, err := tc.appendBytes(session.ID, 0, payload)
	require.NoError(tc.T, err)
	return session
}

func TestFinalizeFullFlow(t *testing.T) {
	tc := newTestCase(t)

	payload := bytes.Repeat([]byte("p"), 1000)
	wantHash, _, err := checksum.Stream(bytes.NewReader(payload))
	require.NoError(t, err)

	session := tc.uploadComplete("report.pdf", payload)

	file, version, err := tc.finalizer.Finalize(session.ID, tc.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, version.VersionNumber)
	assert.Equal(t, wantHash, version.Checksum)
	assert.Equal(t, int64(1000), version.Size)
	assert.Equal(t, 1, file.CurrentVersion)
	assert.Equal(t, wantHash, file.Checksum)

	stored, err := os.ReadFile(version.ToStoragePath(tc.root))
	require.NoError(t, err)
	assert.Equal(t, payload, stored)

	// The session is consumed exactly once.
	_, err = tc.engine.Status(session.ID, tc.owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = os.Stat(session.TempPath(tc.root))
	assert.True(t, os.IsNotExist(err), "temp payload is released after finalize")
}

func TestFinalizeNotReady(t *testing.T) {
	tc := newTestCase(t)

	session := tc.createSession("a.bin", 1000)
	_, err := tc.appendBytes(session.ID, 0, bytes.Repeat([]byte("x"), 600))
	require.NoError(t, err)

	_, _, err = tc.finalizer.Finalize(session.ID, tc.owner.ID)
	assert.ErrorIs(t, err, ErrNotReady)

	// Nothing was partially finalized; the session is still appendable.
	offset, err := tc.appendBytes(session.ID, 600, bytes.Repeat([]byte("x"), 400))
	require.NoError(t, err)
	assert.Equal(t, int64(1000), offset)
}

func TestFinalizeUnknownSession(t *testing.T) {
	tc := newTestCase(t)

	_, _, err := tc.finalizer.Finalize("no-such-session", tc.owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinalizeAdvancesVersionChain(t *testing.T) {
	tc := newTestCase(t)

	first := tc.uploadComplete("doc.txt", []byte("first contents"))
	file1, v1, err := tc.finalizer.Finalize(first.ID, tc.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, v1.VersionNumber)

	second := tc.uploadComplete("doc.txt", []byte("second contents, longer"))
	file2, v2, err := tc.finalizer.Finalize(second.ID, tc.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, file1.ID, file2.ID, "same name in same folder advances one chain")
	assert.Equal(t, 2, v2.VersionNumber)
	assert.Equal(t, 2, file2.CurrentVersion)

	// The old payload is still readable.
	old, err := os.ReadFile(v1.ToStoragePath(tc.root))
	require.NoError(t, err)
	assert.Equal(t, []byte("first contents"), old)
}

func TestFinalizeDeduplicatesByChecksum(t *testing.T) {
	tc := newTestCase(t)

	payload := []byte("identical bytes in two files")

	s1 := tc.uploadComplete("one.bin", payload)
	_, v1, err := tc.finalizer.Finalize(s1.ID, tc.owner.ID)
	require.NoError(t, err)

	s2 := tc.uploadComplete("two.bin", payload)
	_, v2, err := tc.finalizer.Finalize(s2.ID, tc.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, v1.StorageUUID, v2.StorageUUID, "identical content shares one stored payload")
	assert.Equal(t, v1.Checksum, v2.Checksum)
}

func TestFinalizeVersioningDisabledOverwritesInPlace(t *testing.T) {
	tc := newTestCase(t)

	first := tc.uploadComplete("config.json", []byte(`{"v":1}`))
	file, v1, err := tc.finalizer.Finalize(first.ID, tc.owner.ID)
	require.NoError(t, err)

	require.NoError(t, tc.stors.FileStor.SetVersioningEnabled(file, false))

	second := tc.uploadComplete("config.json", []byte(`{"v":2,"extra":true}`))
	file2, v2, err := tc.finalizer.Finalize(second.ID, tc.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, v1.VersionNumber, v2.VersionNumber, "overwrite keeps the version number")
	assert.Equal(t, v1.StorageUUID, v2.StorageUUID, "overwrite keeps the storage location")
	assert.Equal(t, 1, file2.CurrentVersion)

	stored, err := os.ReadFile(v2.ToStoragePath(tc.root))
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"v":2,"extra":true}`), stored)

	history, err := tc.versions.ListVersions(file2)
	require.NoError(t, err)
	assert.Len(t, history, 1, "no history accumulates while versioning is disabled")
}

func TestOverwriteLeavesSharedPayloadIntact(t *testing.T) {
	tc := newTestCase(t)

	payload := []byte("identical starting content")

	sA := tc.uploadComplete("a.bin", payload)
	_, vA, err := tc.finalizer.Finalize(sA.ID, tc.owner.ID)
	require.NoError(t, err)

	sB := tc.uploadComplete("b.bin", payload)
	fileB, vB, err := tc.finalizer.Finalize(sB.ID, tc.owner.ID)
	require.NoError(t, err)
	require.Equal(t, vA.StorageUUID, vB.StorageUUID, "identical content is deduplicated")

	require.NoError(t, tc.stors.FileStor.SetVersioningEnabled(fileB, false))

	sB2 := tc.uploadComplete("b.bin", []byte("brand new b content"))
	fileB2, vB2, err := tc.finalizer.Finalize(sB2.ID, tc.owner.ID)
	require.NoError(t, err)

	assert.Equal(t, vB.VersionNumber, vB2.VersionNumber, "overwrite keeps the version number")
	assert.NotEqual(t, vA.StorageUUID, vB2.StorageUUID, "overwriting a shared payload moves to a fresh location")
	assert.Equal(t, 1, fileB2.CurrentVersion)

	aBytes, err := os.ReadFile(vA.ToStoragePath(tc.root))
	require.NoError(t, err)
	assert.Equal(t, payload, aBytes, "the other chain's version still reads its original content")

	bBytes, err := os.ReadFile(vB2.ToStoragePath(tc.root))
	require.NoError(t, err)
	assert.Equal(t, []byte("brand new b content"), bBytes)
}

func TestDedupSkipsOverwritableCurrentVersion(t *testing.T) {
	tc := newTestCase(t)

	payload := []byte("content that will change")

	sB := tc.uploadComplete("mutable.bin", payload)
	fileB, vB, err := tc.finalizer.Finalize(sB.ID, tc.owner.ID)
	require.NoError(t, err)
	require.NoError(t, tc.stors.FileStor.SetVersioningEnabled(fileB, false))

	sA := tc.uploadComplete("other.bin", payload)
	_, vA, err := tc.finalizer.Finalize(sA.ID, tc.owner.ID)
	require.NoError(t, err)

	assert.NotEqual(t, vB.StorageUUID, vA.StorageUUID, "an overwritable payload is never shared")

	sB2 := tc.uploadComplete("mutable.bin", []byte("changed"))
	_, _, err = tc.finalizer.Finalize(sB2.ID, tc.owner.ID)
	require.NoError(t, err)

	aBytes, err := os.ReadFile(vA.ToStoragePath(tc.root))
	require.NoError(t, err)
	assert.Equal(t, payload, aBytes)
}

func TestConcurrentFinalizeDistinctSessionsSameFile(t *testing.T) {
	tc := newTestCase(t)

	// Two completed sessions for the same logical file finalized in
	// parallel must receive distinct version numbers.
	s1 := tc.uploadComplete("same.bin", []byte("payload one"))
	s2 := tc.uploadComplete("same.bin", []byte("payload two!"))

	var wg sync.WaitGroup
	versionNumbers := make([]int, 2)
	for i, id := range []string{s1.ID, s2.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, v, err := tc.finalizer.Finalize(id, tc.owner.ID)
			require.NoError(tc.T, err)
			versionNumbers[i] = v.VersionNumber
		}(i, id)
	}
	wg.Wait()

	assert.NotEqual(t, versionNumbers[0], versionNumbers[1])
	assert.ElementsMatch(t, []int{1, 2}, versionNumbers)
}

func TestFinalizeQuotaHookPassthrough(t *testing.T) {
	tc := newTestCase(t)

	quotaErr := errors.New("quota exceeded for household")
	var gotOwner int
	var gotBytes int64

	tc.finalizer.quotaFn = func(ownerID int, addedBytes int64) error {
		gotOwner = ownerID
		gotBytes = addedBytes
		return quotaErr
	}

	session := tc.uploadComplete("big.bin", bytes.Repeat([]byte("b"), 256))
	file, version, err := tc.finalizer.Finalize(session.ID, tc.owner.ID)

	assert.Equal(t, quotaErr, err, "the collaborator's quota error passes through unchanged")
	assert.NotNil(t, file)
	require.NotNil(t, version)
	assert.Equal(t, tc.owner.ID, gotOwner)
	assert.Equal(t, int64(256), gotBytes)
}
