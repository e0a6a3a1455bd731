package files

import (
	"context"
	"io/fs"
	"time"

	"github.com/sirupsen/logrus"
)

// Sweeper reclaims orphaned storage objects. An upload writes bytes before
// committing metadata, so a crash in between leaves an object no row points
// at; the sweep deletes such objects once they are older than the grace
// period.
type Sweeper struct {
	store   *Store
	objects *ObjectStore
	logger  *logrus.Logger

	gracePeriod time.Duration
}

// NewSweeper creates the orphan sweeper.
func NewSweeper(store *Store, objects *ObjectStore, gracePeriod time.Duration, logger *logrus.Logger) *Sweeper {
	return &Sweeper{
		store:       store,
		objects:     objects,
		logger:      logger,
		gracePeriod: gracePeriod,
	}
}

// Sweep walks the storage tree and removes unreferenced objects older than
// the grace period. Returns the number of objects removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	known, err := s.store.KnownPaths(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-s.gracePeriod)
	removed := 0

	err = s.objects.Walk(func(relPath string, info fs.FileInfo) error {
		if known[relPath] {
			return nil
		}
		if info.ModTime().After(cutoff) {
			// Possibly an upload still in flight.
			return nil
		}
		if err := s.objects.Delete(relPath); err != nil {
			s.logger.WithError(err).WithField("path", relPath).Warn("failed to remove orphaned object")
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}

	if removed > 0 {
		s.logger.WithField("removed", removed).Info("orphan sweep complete")
	}
	return removed, nil
}

// Run executes one sweep, logging instead of returning errors. Suitable as
// a cron job body.
func (s *Sweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if _, err := s.Sweep(ctx); err != nil {
		s.logger.WithError(err).Error("orphan sweep failed")
	}
}
