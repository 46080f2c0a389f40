// Package market defines the market-data client abstraction and its error
// taxonomy, with implementations for the Shioaji HTTP bridge and the Alpaca
// data API.
package market

import (
	"context"
	"errors"
	"time"

	"txdata/internal/domain"
)

// Error kinds the fetch layer can surface. AuthExpired is the only transient
// kind: the session guard re-authenticates once and replays the call once.
// Everything else propagates immediately.
var (
	ErrAuthExpired        = errors.New("auth token expired")
	ErrCredentialInvalid  = errors.New("invalid credentials")
	ErrCertificateInvalid = errors.New("invalid certificate")
)

// Usage reports consumption against the provider's data quota.
type Usage struct {
	BytesUsed  int64
	LimitBytes int64
}

// Client is the opaque market-data capability the pipeline consumes. Login
// establishes (or re-establishes) the session, including certificate
// activation where the provider requires one; credentials are held by the
// implementation so the session guard can re-login without seeing them.
type Client interface {
	Login(ctx context.Context) error
	Logout(ctx context.Context) error

	// Usage returns quota consumption for the current session.
	Usage(ctx context.Context) (Usage, error)

	// Contracts lists the provider's futures contracts for the configured
	// product, including continuous-series codes.
	Contracts(ctx context.Context) ([]domain.Contract, error)

	// FetchTicks returns all ticks for one contract on one calendar day.
	// The tick endpoint is single-day only.
	FetchTicks(ctx context.Context, contractID string, date time.Time) ([]domain.Tick, error)

	// FetchKBars returns fixed-interval bars for an inclusive date range.
	FetchKBars(ctx context.Context, contractID string, start, end time.Time) ([]domain.Bar, error)
}
