package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/tokenmint/internal/tokens/store"
)

// HousekeepingService periodically purges expired token records so the
// repository does not grow without bound on deployments with little issuance
// traffic (the opportunistic purge only fires on creation paths).
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the sweeper. If interval is 0 or negative,
// defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep immediately on startup.
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep purges each repository independently; a failure in one never stops
// the others.
func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	now := time.Now()

	repos := map[string]store.TokenRepository{
		"authorization_codes": s.Store.AuthorizationCodes(),
		"access_tokens":       s.Store.AccessTokens(),
		"refresh_tokens":      s.Store.RefreshTokens(),
	}

	var total int64
	for name, repo := range repos {
		n, err := repo.DeleteExpired(ctx, now)
		if err != nil {
			s.Logger.Error("failed to purge expired records", "repository", name, "error", err)
			continue
		}
		total += n
	}
	s.Logger.Debug("housekeeping sweep completed", "purged", total)
}
