package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JuhanV/Sleep-Game/internal/domain"
	"github.com/JuhanV/Sleep-Game/internal/domain/oauth"
	"github.com/JuhanV/Sleep-Game/internal/metrics"
	"github.com/JuhanV/Sleep-Game/internal/repository"
)

// SleepSyncer refreshes one profile's stored scores. *DashboardService implements it.
type SleepSyncer interface {
	SyncSleep(ctx context.Context, profile domain.Profile) (domain.SleepSummary, error)
}

// SyncResult summarises one pass.
type SyncResult struct {
	Profiles int
	Synced   int
	Failed   int
}

// SyncWorker periodically refreshes every profile's sleep scores so the
// leaderboard stays current for users who have not signed in recently.
type SyncWorker struct {
	profiles    repository.ProfileRepository
	syncer      SleepSyncer
	interval    time.Duration
	concurrency int
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewSyncWorker constructs a worker. An interval of zero disables Run.
func NewSyncWorker(
	profiles repository.ProfileRepository,
	syncer SleepSyncer,
	interval time.Duration,
	concurrency int,
	m *metrics.Metrics,
	logger *zap.Logger,
) *SyncWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SyncWorker{
		profiles:    profiles,
		syncer:      syncer,
		interval:    interval,
		concurrency: concurrency,
		timeout:     30 * time.Second,
		metrics:     m,
		logger:      logger,
	}
}

// Enabled reports whether Run does anything.
func (w *SyncWorker) Enabled() bool { return w.interval > 0 }

// Run syncs once per interval until ctx is done.
func (w *SyncWorker) Run(ctx context.Context) {
	if !w.Enabled() {
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log().Info("metric sync started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log().Info("metric sync stopped")
			return
		case <-ticker.C:
			if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				w.log().Error("metric sync run failed", zap.Error(err))
			}
		}
	}
}

// RunOnce syncs every profile. Per-profile failures are counted, not returned.
func (w *SyncWorker) RunOnce(ctx context.Context) (result SyncResult, err error) {
	defer func() { w.metrics.ObserveSyncRun(err) }()

	profiles, err := w.profiles.List(ctx)
	if err != nil {
		return SyncResult{}, fmt.Errorf("list profiles: %w", err)
	}
	result.Profiles = len(profiles)

	outcomes := make([]error, len(profiles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.concurrency)
	for i, profile := range profiles {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, w.timeout)
			defer cancel()
			_, syncErr := w.syncer.SyncSleep(pctx, profile)
			outcomes[i] = syncErr
			w.metrics.ObserveSyncProfile(syncErr)
			if syncErr != nil {
				w.log().Warn("profile sync failed",
					zap.Int64("profile_id", profile.ID),
					zap.Bool("token_unreadable", errors.Is(syncErr, oauth.ErrDecryptionFailure)),
					zap.Bool("unauthorized", errors.Is(syncErr, ErrUpstreamUnauthorized)),
					zap.Error(syncErr),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, e := range outcomes {
		if e != nil {
			result.Failed++
		} else {
			result.Synced++
		}
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	w.log().Info("metric sync finished",
		zap.Int("profiles", result.Profiles),
		zap.Int("synced", result.Synced),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

func (w *SyncWorker) log() *zap.Logger {
	if w != nil && w.logger != nil {
		return w.logger
	}
	return zap.L()
}
