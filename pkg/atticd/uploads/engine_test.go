package uploads

import (
	"bytes"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateValidation(t *testing.T) {
	tc := newTestCase(t)

	t.Run("NegativeSize", func(t *testing.T) {
		_, err := tc.engine.Create(CreateRequest{FileName: "a", TotalSize: -1, OwnerID: tc.owner.ID})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("OverMaxSize", func(t *testing.T) {
		_, err := tc.engine.Create(CreateRequest{FileName: "a", TotalSize: testMaxSize + 1, OwnerID: tc.owner.ID})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("UnknownFolder", func(t *testing.T) {
		badFolder := 9999
		_, err := tc.engine.Create(CreateRequest{FileName: "a", TotalSize: 10, FolderID: &badFolder, OwnerID: tc.owner.ID})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("FolderOwnedBySomeoneElse", func(t *testing.T) {
		_, err := tc.engine.Create(CreateRequest{FileName: "a", TotalSize: 10, FolderID: &tc.folder.ID, OwnerID: tc.owner.ID + 1})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("Valid", func(t *testing.T) {
		session := tc.createSession("a.bin", 10)
		assert.NotEmpty(t, session.ID)
		assert.Equal(t, int64(0), session.ReceivedOffset)
		assert.False(t, session.IsComplete)

		_, err := os.Stat(session.TempPath(tc.root))
		assert.NoError(t, err, "temp payload file should exist at creation")
	})
}

func TestAppendAndResume(t *testing.T) {
	tc := newTestCase(t)

	payload := bytes.Repeat([]byte("r"), 1000)
	session := tc.createSession("report.pdf", 1000)

	offset, err := tc.appendBytes(session.ID, 0, payload[:600])
	require.NoError(t, err)
	assert.Equal(t, int64(600), offset)

	// Simulated disconnect: the client re-queries status and resumes from
	// the reported offset.
	status, err := tc.engine.Status(session.ID, tc.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(600), status.ReceivedOffset)
	assert.False(t, status.IsComplete)

	offset, err = tc.appendBytes(session.ID, 600, payload[600:])
	require.NoError(t, err)
	assert.Equal(t, int64(1000), offset)

	status, err = tc.engine.Status(session.ID, tc.owner.ID)
	require.NoError(t, err)
	assert.True(t, status.IsComplete)

	got, err := os.ReadFile(status.TempPath(tc.root))
	require.NoError(t, err)
	assert.Equal(t, payload, got, "temp payload must equal chunk concatenation in offset order")
}

func TestAppendBoundaryIndependence(t *testing.T) {
	tc := newTestCase(t)

	payload := []byte("the quick brown fox jumps over the lazy dog")
	session := tc.createSession("fox.txt", int64(len(payload)))

	// Uneven chunk boundaries; the result must not depend on them.
	boundaries := []int{7, 8, 20, len(payload)}
	start := 0
	for _, end := range boundaries {
		offset, err := tc.appendBytes(session.ID, int64(start), payload[start:end])
		require.NoError(t, err)
		assert.Equal(t, int64(end), offset)
		start = end
	}

	got, err := os.ReadFile(session.TempPath(tc.root))
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestAppendOffsetConflict(t *testing.T) {
	tc := newTestCase(t)

	session := tc.createSession("a.bin", 1000)
	_, err := tc.appendBytes(session.ID, 0, bytes.Repeat([]byte("x"), 500))
	require.NoError(t, err)

	before, err := os.ReadFile(session.TempPath(tc.root))
	require.NoError(t, err)

	offset, err := tc.appendBytes(session.ID, 600, []byte("should not be written"))
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, int64(500), offset, "conflict reports the true offset")

	var conflict *OffsetConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, int64(500), conflict.Offset)

	after, err := os.ReadFile(session.TempPath(tc.root))
	require.NoError(t, err)
	assert.Equal(t, before, after, "a conflicting append must not mutate the payload")
}

func TestAppendBeyondDeclaredSize(t *testing.T) {
	tc := newTestCase(t)

	session := tc.createSession("a.bin", 10)
	_, err := tc.appendBytes(session.ID, 0, bytes.Repeat([]byte("x"), 11))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	status, err := tc.engine.Status(session.ID, tc.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), status.ReceivedOffset)
}

func TestZeroLengthAppendIsNoOp(t *testing.T) {
	tc := newTestCase(t)

	session := tc.createSession("a.bin", 5)
	_, err := tc.appendBytes(session.ID, 0, []byte("hello"))
	require.NoError(t, err)

	offset, err := tc.appendBytes(session.ID, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(5), offset)
}

func TestConcurrentAppendsOneWins(t *testing.T) {
	tc := newTestCase(t)

	for i := 0; i < 10; i++ {
		session := tc.createSession("race.bin", 100)

		chunk := bytes.Repeat([]byte("c"), 100)
		results := make([]error, 2)

		var wg sync.WaitGroup
		for w := 0; w < 2; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				_, results[w] = tc.appendBytes(session.ID, 0, chunk)
			}(w)
		}
		wg.Wait()

		conflicts := 0
		successes := 0
		for _, err := range results {
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, ErrConflict):
				conflicts++
			}
		}

		assert.Equal(t, 1, successes, "exactly one racing append succeeds")
		assert.Equal(t, 1, conflicts, "the other is rejected with a conflict")

		got, err := os.ReadFile(session.TempPath(tc.root))
		require.NoError(t, err)
		assert.Equal(t, chunk, got, "the payload is never corrupted by the race")
	}
}

func TestStatusOwnerScoping(t *testing.T) {
	tc := newTestCase(t)

	session := tc.createSession("a.bin", 10)

	_, err := tc.engine.Status(session.ID, tc.owner.ID+1)
	assert.ErrorIs(t, err, ErrNotFound, "another owner's lookup is indistinguishable from a missing session")

	_, err = tc.engine.Status("no-such-session", tc.owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStatusExpiredSession(t *testing.T) {
	tc := newTestCase(t)

	session := tc.createSession("a.bin", 10)
	tc.expireSession(session.ID)

	_, err := tc.engine.Status(session.ID, tc.owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tc.appendBytes(session.ID, 0, []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCancel(t *testing.T) {
	tc := newTestCase(t)

	session := tc.createSession("a.bin", 10)
	_, err := tc.appendBytes(session.ID, 0, []byte("12345"))
	require.NoError(t, err)

	require.NoError(t, tc.engine.Cancel(session.ID, tc.owner.ID))

	_, err = tc.engine.Status(session.ID, tc.owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = os.Stat(session.TempPath(tc.root))
	assert.True(t, os.IsNotExist(err), "temp payload is reclaimed on cancel")

	// Canceling again, or canceling something that never existed, succeeds.
	assert.NoError(t, tc.engine.Cancel(session.ID, tc.owner.ID))
	assert.NoError(t, tc.engine.Cancel("never-existed", tc.owner.ID))
}
