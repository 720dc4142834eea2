package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/pagescheduler/internal/logutil"
)

// refreshRequest represents a manual sweep trigger.
type refreshRequest struct {
	done chan refreshResult
}

type refreshResult struct {
	summary RefreshSummary
	err     error
}

// RefreshScheduler runs TokenManager.RefreshAllTokens periodically. Manual
// sweeps requested through Trigger run on the scheduler goroutine, so the
// scheduler never runs two sweeps at once. Sweeps started elsewhere are not
// coordinated with it.
type RefreshScheduler struct {
	tokens    *TokenManager
	interval  time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	refreshCh chan refreshRequest
}

// NewRefreshScheduler creates a scheduler that sweeps every interval.
func NewRefreshScheduler(tokens *TokenManager, interval time.Duration, clock clockwork.Clock, logger *slog.Logger) *RefreshScheduler {
	return &RefreshScheduler{
		tokens:    tokens,
		interval:  interval,
		clock:     clock,
		logger:    logutil.NoopIfNil(logger),
		refreshCh: make(chan refreshRequest),
	}
}

// Start runs an immediate sweep, then one per interval, and serves manual
// triggers. Start blocks until the context is canceled.
func (s *RefreshScheduler) Start(ctx context.Context) {
	s.sweep(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh scheduler stopped")
			return
		case <-ticker.Chan():
			s.sweep(ctx)
		case req := <-s.refreshCh:
			summary, err := s.tokens.RefreshAllTokens(ctx)
			req.done <- refreshResult{summary: summary, err: err}
		}
	}
}

// Trigger requests an immediate sweep and waits for its summary. It blocks
// until the sweep completes or the context is canceled.
func (s *RefreshScheduler) Trigger(ctx context.Context) (RefreshSummary, error) {
	done := make(chan refreshResult, 1)

	select {
	case s.refreshCh <- refreshRequest{done: done}:
	case <-ctx.Done():
		return RefreshSummary{}, ctx.Err()
	}

	select {
	case res := <-done:
		return res.summary, res.err
	case <-ctx.Done():
		return RefreshSummary{}, ctx.Err()
	}
}

func (s *RefreshScheduler) sweep(ctx context.Context) {
	if _, err := s.tokens.RefreshAllTokens(ctx); err != nil {
		s.logger.Error("token refresh sweep failed", "error", err)
	}
}
