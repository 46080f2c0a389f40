// Package session owns authentication state for a run. Every market-data
// call goes through the Guard, which detects token expiry, re-authenticates
// exactly once, and replays the failed call exactly once. No other component
// touches session state; they only observe call success or failure.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"txdata/internal/domain"
	"txdata/internal/market"
)

// State tracks the guard's view of the session token.
type State string

const (
	StateUnknown State = "unknown"
	StateValid   State = "valid"
	StateExpired State = "expired"
	StateFatal   State = "fatal"
)

// Guard wraps a market.Client with the single-retry re-authentication
// policy. It is not safe for concurrent use; the run model is strictly
// sequential.
type Guard struct {
	client market.Client
	state  State
	log    *slog.Logger
}

// NewGuard creates a Guard over client.
func NewGuard(client market.Client, log *slog.Logger) *Guard {
	if log == nil {
		log = slog.Default()
	}
	return &Guard{
		client: client,
		state:  StateUnknown,
		log:    log.With("component", "session"),
	}
}

// State returns the guard's current session state.
func (g *Guard) State() State { return g.state }

// Login performs the initial authentication. It must succeed before any
// guarded call; failures here are fatal for the run.
func (g *Guard) Login(ctx context.Context) error {
	if err := g.client.Login(ctx); err != nil {
		g.state = StateFatal
		return err
	}
	g.state = StateValid
	g.log.Info("session established")
	return nil
}

// Logout releases the session.
func (g *Guard) Logout(ctx context.Context) error {
	return g.client.Logout(ctx)
}

// call runs op; on an auth-expiry failure it re-authenticates once and
// replays op once. Any other failure, and any failure of the replay,
// propagates unmodified.
func (g *Guard) call(ctx context.Context, op func() error) error {
	err := op()
	if err == nil {
		return nil
	}
	if !errors.Is(err, market.ErrAuthExpired) {
		return err
	}

	g.state = StateExpired
	g.log.Warn("auth token expired, re-authenticating once")

	if lerr := g.client.Login(ctx); lerr != nil {
		g.state = StateFatal
		return fmt.Errorf("re-login after token expiry: %w", lerr)
	}

	// The replay is the last chance: any failure here ends the run.
	if err := op(); err != nil {
		g.state = StateFatal
		return err
	}
	g.state = StateValid
	return nil
}

// FetchTicks is the guarded form of Client.FetchTicks.
func (g *Guard) FetchTicks(ctx context.Context, contractID string, date time.Time) ([]domain.Tick, error) {
	var ticks []domain.Tick
	err := g.call(ctx, func() error {
		var err error
		ticks, err = g.client.FetchTicks(ctx, contractID, date)
		return err
	})
	return ticks, err
}

// FetchKBars is the guarded form of Client.FetchKBars.
func (g *Guard) FetchKBars(ctx context.Context, contractID string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	err := g.call(ctx, func() error {
		var err error
		bars, err = g.client.FetchKBars(ctx, contractID, start, end)
		return err
	})
	return bars, err
}

// Contracts is the guarded form of Client.Contracts.
func (g *Guard) Contracts(ctx context.Context) ([]domain.Contract, error) {
	var contracts []domain.Contract
	err := g.call(ctx, func() error {
		var err error
		contracts, err = g.client.Contracts(ctx)
		return err
	})
	return contracts, err
}

// Usage is the guarded form of Client.Usage.
func (g *Guard) Usage(ctx context.Context) (market.Usage, error) {
	var usage market.Usage
	err := g.call(ctx, func() error {
		var err error
		usage, err = g.client.Usage(ctx)
		return err
	})
	return usage, err
}
