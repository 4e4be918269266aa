// Package cleanup provides conversation retention enforcement.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// ThreadCleaner deletes threads whose last activity predates the age.
// Satisfied by *store.Store.
type ThreadCleaner interface {
	CleanupOlderThan(ctx context.Context, age time.Duration) (int, error)
}

// Service periodically expires conversations past their TTL. Individual
// thread failures are logged and skipped inside the cleaner; a whole
// sweep failing is logged here. Safe to start once per process.
type Service struct {
	cleaner  ThreadCleaner
	ttl      time.Duration
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewService creates a cleanup service expiring threads older than ttl
// every interval.
func NewService(cleaner ThreadCleaner, ttl, interval time.Duration) *Service {
	return &Service{cleaner: cleaner, ttl: ttl, interval: interval}
}

// Start launches the background cleanup loop.
func (s *Service) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Cleanup service started", "ttl", s.ttl, "interval", s.interval)
}

// Stop signals the cleanup loop to exit and waits for it to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Cleanup service stopped")
}

func (s *Service) run(ctx context.Context) {
	defer close(s.done)

	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	count, err := s.cleaner.CleanupOlderThan(ctx, s.ttl)
	if err != nil {
		slog.Error("Retention: conversation cleanup failed", "error", err)
		return
	}
	if count > 0 {
		slog.Info("Retention: expired old conversations", "count", count)
	}
}
