package wallet

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultResetExpr fires at midnight UTC on the first of each month.
const DefaultResetExpr = "0 0 1 * *"

// ResetScheduler zeroes every wallet at the start of each billing period.
type ResetScheduler struct {
	ledger *Ledger
	runner *cron.Cron
	logger zerolog.Logger
}

// NewResetScheduler builds the scheduler. expr uses the standard five-field
// cron syntax; empty means DefaultResetExpr.
func NewResetScheduler(ledger *Ledger, expr string, logger zerolog.Logger) (*ResetScheduler, error) {
	if expr == "" {
		expr = DefaultResetExpr
	}

	scheduler := &ResetScheduler{
		ledger: ledger,
		runner: cron.New(cron.WithLocation(time.UTC)),
		logger: logger.With().Str("component", "wallet_reset").Logger(),
	}

	if _, err := scheduler.runner.AddFunc(expr, scheduler.reset); err != nil {
		return nil, fmt.Errorf("invalid reset schedule %q: %w", expr, err)
	}
	return scheduler, nil
}

// Start begins the schedule in a background goroutine.
func (s *ResetScheduler) Start() {
	s.runner.Start()
	s.logger.Info().Msg("Wallet reset scheduler started")
}

// Stop halts the schedule, waiting for a running reset to finish.
func (s *ResetScheduler) Stop() {
	ctx := s.runner.Stop()
	<-ctx.Done()
	s.logger.Info().Msg("Wallet reset scheduler stopped")
}

func (s *ResetScheduler) reset() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.ledger.ResetAll(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Monthly wallet reset failed")
	}
}
