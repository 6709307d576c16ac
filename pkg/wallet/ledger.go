// Package wallet enforces per-user spend limits. Each wallet carries a
// funded balance and a monthly cap over cumulative spend; every purchase the
// pipeline approves is debited here, and a debit that would overdraw either
// the balance or the cap is refused without changing state.
package wallet

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/harlan/mixcue/internal/observability"
	"github.com/harlan/mixcue/pkg/events"
	"github.com/harlan/mixcue/pkg/pricing"
)

// Alert levels published when a debit crosses a utilization threshold.
const (
	AlertWarning   = "warning"   // 80%
	AlertCritical  = "critical"  // 95%
	AlertExhausted = "exhausted" // 100%
)

const walletSchema = `
CREATE TABLE IF NOT EXISTS wallets (
	user_id     TEXT PRIMARY KEY,
	balance_usd REAL NOT NULL,
	cap_usd     REAL NOT NULL,
	spent_usd   REAL NOT NULL DEFAULT 0
);
`

// SpendResult is the outcome of one debit attempt.
type SpendResult struct {
	Allowed      bool    `json:"allowed"`
	RemainingUSD float64 `json:"remaining_usd"`
}

// Ledger is the sqlite-backed budget ledger.
type Ledger struct {
	db            *sql.DB
	mu            sync.Mutex
	defaultCapUSD float64
	publisher     events.Publisher
	logger        zerolog.Logger
}

// walletState is one user's row.
type walletState struct {
	balanceUSD float64
	capUSD     float64
	spentUSD   float64
}

// headroom is the amount still spendable: the balance and the cap both
// bound it.
func (w walletState) headroom() float64 {
	return pricing.RoundCents(math.Min(w.balanceUSD, w.capUSD-w.spentUSD))
}

// NewLedger opens or creates the ledger database. Users seen for the first
// time get defaultCapUSD as both cap and starting balance; Deposit tops the
// balance up afterwards.
func NewLedger(path string, defaultCapUSD float64, publisher events.Publisher, logger zerolog.Logger) (*Ledger, error) {
	if defaultCapUSD <= 0 {
		return nil, fmt.Errorf("default cap must be positive, got %f", defaultCapUSD)
	}
	if publisher == nil {
		publisher = events.Nop{}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open wallet database: %w", err)
	}
	if _, err := db.Exec(walletSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize wallet schema: %w", err)
	}

	return &Ledger{
		db:            db,
		defaultCapUSD: defaultCapUSD,
		publisher:     publisher,
		logger:        logger.With().Str("component", "wallet").Logger(),
	}, nil
}

// Spend atomically checks and debits amountUSD for the user. The debit is
// allowed only when the balance covers the amount and cumulative spend stays
// within the monthly cap; on success both move in one update. A refused
// debit leaves the wallet untouched; the returned remaining reflects the
// current headroom either way.
func (l *Ledger) Spend(ctx context.Context, userID string, amountUSD float64) (SpendResult, error) {
	if userID == "" {
		return SpendResult{}, fmt.Errorf("user id is required")
	}
	if amountUSD < 0 {
		return SpendResult{}, fmt.Errorf("amount must not be negative, got %f", amountUSD)
	}
	amountUSD = pricing.RoundCents(amountUSD)

	// The mutex serializes check-and-debit across goroutines sharing this
	// ledger; the transaction covers concurrent processes.
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return SpendResult{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := l.loadWallet(ctx, tx, userID)
	if err != nil {
		return SpendResult{}, err
	}

	if amountUSD > state.balanceUSD || pricing.RoundCents(state.spentUSD+amountUSD) > state.capUSD {
		observability.RecordWalletSpend(false)
		l.logger.Info().
			Str("user_id", userID).
			Float64("amount_usd", amountUSD).
			Float64("balance_usd", state.balanceUSD).
			Float64("remaining_usd", state.headroom()).
			Msg("Debit refused")
		return SpendResult{Allowed: false, RemainingUSD: state.headroom()}, nil
	}

	after := walletState{
		balanceUSD: pricing.RoundCents(state.balanceUSD - amountUSD),
		capUSD:     state.capUSD,
		spentUSD:   pricing.RoundCents(state.spentUSD + amountUSD),
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance_usd = ?, spent_usd = ? WHERE user_id = ?`,
		after.balanceUSD, after.spentUSD, userID); err != nil {
		return SpendResult{}, fmt.Errorf("failed to debit wallet: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return SpendResult{}, fmt.Errorf("failed to commit debit: %w", err)
	}

	observability.RecordWalletSpend(true)
	l.alertIfThresholdCrossed(userID, state.capUSD, state.spentUSD, after.spentUSD)

	return SpendResult{Allowed: true, RemainingUSD: after.headroom()}, nil
}

// Deposit adds funds to the user's balance. The cap and current spend are
// unchanged.
func (l *Ledger) Deposit(ctx context.Context, userID string, amountUSD float64) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if amountUSD <= 0 {
		return fmt.Errorf("deposit must be positive, got %f", amountUSD)
	}
	amountUSD = pricing.RoundCents(amountUSD)

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := l.loadWallet(ctx, tx, userID)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE wallets SET balance_usd = ? WHERE user_id = ?`,
		pricing.RoundCents(state.balanceUSD+amountUSD), userID); err != nil {
		return fmt.Errorf("failed to deposit: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit deposit: %w", err)
	}
	return nil
}

// Remaining returns the user's current headroom.
func (l *Ledger) Remaining(ctx context.Context, userID string) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	state, err := l.loadWallet(ctx, tx, userID)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	return state.headroom(), nil
}

// SetCap changes the user's monthly cap without touching current spend.
func (l *Ledger) SetCap(ctx context.Context, userID string, capUSD float64) error {
	if capUSD <= 0 {
		return fmt.Errorf("cap must be positive, got %f", capUSD)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO wallets (user_id, balance_usd, cap_usd, spent_usd) VALUES (?, ?, ?, 0)
		ON CONFLICT(user_id) DO UPDATE SET cap_usd = excluded.cap_usd`,
		userID, capUSD, capUSD)
	if err != nil {
		return fmt.Errorf("failed to set cap: %w", err)
	}
	return nil
}

// ResetAll zeroes every wallet's spend. Balances are untouched: the billing
// period renews the cap, not the funds. Called at the start of each period.
func (l *Ledger) ResetAll(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	result, err := l.db.ExecContext(ctx, `UPDATE wallets SET spent_usd = 0`)
	if err != nil {
		return fmt.Errorf("failed to reset wallets: %w", err)
	}

	affected, _ := result.RowsAffected()
	l.logger.Info().Int64("wallets", affected).Msg("Monthly spend reset")
	return nil
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// loadWallet reads the user's row inside tx, creating it with the default
// cap and a matching starting balance on first sight.
func (l *Ledger) loadWallet(ctx context.Context, tx *sql.Tx, userID string) (walletState, error) {
	var state walletState
	err := tx.QueryRowContext(ctx,
		`SELECT balance_usd, cap_usd, spent_usd FROM wallets WHERE user_id = ?`, userID).
		Scan(&state.balanceUSD, &state.capUSD, &state.spentUSD)
	if err == sql.ErrNoRows {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO wallets (user_id, balance_usd, cap_usd, spent_usd) VALUES (?, ?, ?, 0)`,
			userID, l.defaultCapUSD, l.defaultCapUSD); err != nil {
			return walletState{}, fmt.Errorf("failed to create wallet: %w", err)
		}
		return walletState{balanceUSD: l.defaultCapUSD, capUSD: l.defaultCapUSD}, nil
	}
	if err != nil {
		return walletState{}, fmt.Errorf("failed to read wallet: %w", err)
	}
	return state, nil
}

// alertIfThresholdCrossed publishes at most one alert per debit, for the
// highest threshold the debit crossed.
func (l *Ledger) alertIfThresholdCrossed(userID string, capUSD, before, after float64) {
	thresholds := []struct {
		level    string
		fraction float64
	}{
		{AlertExhausted, 1.00},
		{AlertCritical, 0.95},
		{AlertWarning, 0.80},
	}

	for _, threshold := range thresholds {
		mark := capUSD * threshold.fraction
		if before < mark && after >= mark {
			observability.RecordBudgetAlert(threshold.level)
			l.logger.Warn().
				Str("user_id", userID).
				Str("level", threshold.level).
				Float64("spent_usd", after).
				Float64("cap_usd", capUSD).
				Msg("Budget threshold crossed")
			l.publisher.Publish(events.New(events.EventBudgetAlert, 1, map[string]interface{}{
				"user_id":   userID,
				"level":     threshold.level,
				"spent_usd": after,
				"cap_usd":   capUSD,
			}))
			return
		}
	}
}
