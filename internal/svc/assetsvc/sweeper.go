package assetsvc

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mkrupp/feed/internal/domain"
	"github.com/mkrupp/feed/internal/infra/logging"
	"github.com/mkrupp/feed/internal/repo/blob"
)

// ReferenceChecker reports whether an asset is still attached to a post.
type ReferenceChecker interface {
	ImageReferenced(ctx context.Context, ref domain.AssetRef) (bool, error)
}

// Sweeper deletes stored assets that no post references.
// Assets younger than the grace period are skipped since their post may not be committed yet.
type Sweeper struct {
	blobs blob.Repository
	refs  ReferenceChecker
	cfg   AssetConfig
	now   func() time.Time
	log   logging.Logger
}

// NewSweeper creates a Sweeper over the assets in blobs.
func NewSweeper(blobs blob.Repository, refs ReferenceChecker, cfg AssetConfig) *Sweeper {
	return &Sweeper{
		blobs: blobs,
		refs:  refs,
		cfg:   cfg,
		now:   time.Now,
		log:   logging.GetLogger("svc.assetsvc.sweeper"),
	}
}

// WithClock replaces the clock used to compute asset ages.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now

	return s
}

// Sweep runs one pass and returns the number of deleted assets.
// A failing asset does not stop the pass, all failures are returned joined.
func (s *Sweeper) Sweep(ctx context.Context) (deleted int, err error) {
	log := s.log

	defer func() {
		if err != nil {
			log.ErrorContext(ctx, "asset sweep failed", "deleted", deleted, "error", err)
		} else {
			log.DebugContext(ctx, "asset sweep done", "deleted", deleted)
		}
	}()

	infos, err := s.blobs.List(ctx, domain.AssetPathPrefix)
	if err != nil {
		return 0, fmt.Errorf("list assets: %w", err)
	}

	cutoff := s.now().Add(-s.cfg.SweepGrace)

	var errs []error

	for _, info := range infos {
		ref := domain.AssetRef(info.ID)
		if !ref.Valid() || info.ModTime.After(cutoff) {
			continue
		}

		referenced, err := s.refs.ImageReferenced(ctx, ref)
		if err != nil {
			errs = append(errs, fmt.Errorf("check %s: %w", ref, err))

			continue
		} else if referenced {
			continue
		}

		if err := s.blobs.Delete(ctx, ref.BlobID()); err != nil && !errors.Is(err, domain.ErrBlobNotFound) {
			errs = append(errs, fmt.Errorf("delete %s: %w", ref, err))

			continue
		}

		log.InfoContext(ctx, "orphaned asset deleted", logging.Group("asset", "ref", ref))

		deleted++
	}

	return deleted, errors.Join(errs...)
}

// Run sweeps on the configured cron schedule until ctx is cancelled.
// An empty schedule disables the sweeper.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.cfg.SweepSchedule == "" {
		s.log.InfoContext(ctx, "asset sweeper disabled")

		return nil
	}

	cronLog := cron.PrintfLogger(logging.GetLogLogger(s.log, logging.LevelDebug))
	scheduler := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)

	if _, err := scheduler.AddFunc(s.cfg.SweepSchedule, func() {
		_, _ = s.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("schedule sweep %q: %w", s.cfg.SweepSchedule, err)
	}

	s.log.InfoContext(ctx, "asset sweeper started", "schedule", s.cfg.SweepSchedule)
	scheduler.Start()

	<-ctx.Done()

	<-scheduler.Stop().Done()

	return nil
}
