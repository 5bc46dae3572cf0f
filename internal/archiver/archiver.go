// Package archiver sweeps terminal jobs past retention into the archive
// table.
package archiver

import (
	"context"
	"time"

	"github.com/ncobase/jobstream/internal/job/data/repository"
	"github.com/ncobase/jobstream/pkg/logger"
)

// Archiver periodically moves expired jobs out of the live table.
type Archiver struct {
	archive   *repository.ArchiveRepo
	retention time.Duration
	interval  time.Duration

	now func() time.Time
}

// New creates an archiver.
func New(archive *repository.ArchiveRepo, retention, interval time.Duration) *Archiver {
	return &Archiver{
		archive:   archive,
		retention: retention,
		interval:  interval,
		now:       time.Now,
	}
}

// Run sweeps once at startup and then on every tick until the context is
// cancelled.
func (a *Archiver) Run(ctx context.Context) {
	a.sweep(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *Archiver) sweep(ctx context.Context) {
	n, err := a.RunOnce(ctx)
	if err != nil {
		logger.StdLogger().Errorf(ctx, "archive sweep failed: %v", err)
		return
	}
	if n > 0 {
		logger.StdLogger().Infof(ctx, "archived %d expired jobs", n)
	}
}

// RunOnce performs a single sweep and returns how many jobs moved.
func (a *Archiver) RunOnce(ctx context.Context) (int, error) {
	cutoff := a.now().Add(-a.retention)
	return a.archive.ArchiveBefore(ctx, cutoff)
}
