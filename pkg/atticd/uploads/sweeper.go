package uploads

import (
	"context"
	"os"
	"time"

	"github.com/apex/log"
	"github.com/atticfile/attic/pkg/atticdb/stor"
	"github.com/atticfile/attic/pkg/lock"
)

// Sweeper periodically deletes upload sessions past their expiry along with
// their temp payloads. Completed sessions are never selected, so sweeping
// can't race a finalization. A failure on one session is logged and the
// batch moves on.
type Sweeper struct {
	sessionStor stor.SessionStor
	locker      *lock.KeyLocker
	progress    *ProgressCache
	root        string
	interval    time.Duration
}

func NewSweeper(sessionStor stor.SessionStor, locker *lock.KeyLocker, progress *ProgressCache, root string, interval time.Duration) *Sweeper {
	return &Sweeper{
		sessionStor: sessionStor,
		locker:      locker,
		progress:    progress,
		root:        root,
		interval:    interval,
	}
}

// Start runs the sweep loop until ctx is canceled.
func (s *Sweeper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(time.Now())
			}
		}
	}()
}

// Sweep deletes every expired, incomplete session as of now.
func (s *Sweeper) Sweep(now time.Time) {
	expired, err := s.sessionStor.ListExpired(now)
	if err != nil {
		log.Errorf("sweep failed listing expired sessions: %s", err)
		return
	}

	for _, session := range expired {
		s.sweepSession(session.ID, session.OwnerID, now)
	}
}

func (s *Sweeper) sweepSession(sessionID string, ownerID int, now time.Time) {
	s.locker.Acquire(sessionID)
	defer s.locker.Release(sessionID)

	// Re-check under the lock; an append may have renewed the session
	// between the listing and here.
	session, err := s.sessionStor.GetSessionForOwner(sessionID, ownerID)
	if err != nil {
		return
	}

	if session.IsComplete || !session.IsExpired(now) {
		return
	}

	if err := os.Remove(session.TempPath(s.root)); err != nil && !os.IsNotExist(err) {
		log.Errorf("sweep failed removing temp payload for session %s: %s", sessionID, err)
		// Fall through; the session row still goes away.
	}

	if err := s.sessionStor.DeleteSession(sessionID); err != nil {
		log.Errorf("sweep failed deleting session %s: %s", sessionID, err)
		return
	}

	s.progress.DeleteUploadProgress(sessionID)

	log.Infof("swept expired upload session %s", sessionID)
}
