package service

import (
	"context"
	"time"
)

// Purger removes credential sessions that are past their expiry
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// StartSessionJanitor runs a background loop that purges expired credential
// sessions every interval, reporting each sweep's count to observe. It
// blocks until the context is cancelled, so it should be launched in a
// separate goroutine.
func (s *Service) StartSessionJanitor(ctx context.Context, purger Purger, interval time.Duration, observe func(n int64)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Infof("Session janitor started (every %s)", interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Session janitor stopped")
			return
		case <-ticker.C:
			s.purgeSessions(ctx, purger, observe)
		}
	}
}

func (s *Service) purgeSessions(ctx context.Context, purger Purger, observe func(n int64)) {
	n, err := purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Errorf("Failed to purge expired sessions: %v", err)
		return
	}
	if observe != nil {
		observe(n)
	}
	if n > 0 {
		s.logger.Infof("Purged %d expired sessions", n)
	}
}
