package market

import (
	"context"
	"fmt"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"txdata/internal/domain"
	"txdata/internal/util"
)

// Compile-time interface check.
var _ Client = (*AlpacaClient)(nil)

// AlpacaClient adapts the Alpaca data API to the market.Client contract so
// the same pipeline can backfill US symbols. Alpaca authenticates per
// request with static keys, so Login only records readiness and the session
// guard's auth-expiry path never triggers for this provider. Only the
// native continuity policy applies: Alpaca has no discrete futures chain.
type AlpacaClient struct {
	client *marketdata.Client
}

// NewAlpacaClient creates an AlpacaClient with the given credentials.
// dataURL overrides the default data endpoint when non-empty.
func NewAlpacaClient(apiKey, apiSecret, dataURL string) *AlpacaClient {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	return &AlpacaClient{client: marketdata.NewClient(opts)}
}

// Login is a no-op: keys ride on every request.
func (a *AlpacaClient) Login(context.Context) error { return nil }

// Logout is a no-op.
func (a *AlpacaClient) Logout(context.Context) error { return nil }

// Usage reports zero values: Alpaca does not meter historical queries by
// bytes.
func (a *AlpacaClient) Usage(context.Context) (Usage, error) {
	return Usage{}, nil
}

// Contracts is unsupported: manual stitching has no meaning for this
// provider.
func (a *AlpacaClient) Contracts(context.Context) ([]domain.Contract, error) {
	return nil, fmt.Errorf("alpaca provider has no futures contract chain")
}

// FetchTicks returns the day's trades for symbol contractID. Alpaca trades
// carry no quote context, so bid/ask fields stay zero and every tick is a
// deal.
func (a *AlpacaClient) FetchTicks(_ context.Context, contractID string, date time.Time) ([]domain.Tick, error) {
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	trades, err := a.client.GetTrades(contractID, marketdata.GetTradesRequest{
		Start: dayStart,
		End:   dayStart.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("GetTrades %s %s: %w", contractID, date.Format(domain.DateLayout), err)
	}

	ticks := make([]domain.Tick, 0, len(trades))
	for _, tr := range trades {
		ticks = append(ticks, domain.Tick{
			TimestampNS: tr.Timestamp.UnixNano(),
			Price:       tr.Price,
			Size:        int64(tr.Size),
			Side:        domain.SideDeal,
		})
	}
	return ticks, nil
}

// FetchKBars returns minute bars over [start, end], timestamps rendered in
// the market timezone for schema parity with the bridge client.
func (a *AlpacaClient) FetchKBars(_ context.Context, contractID string, start, end time.Time) ([]domain.Bar, error) {
	alpacaBars, err := a.client.GetBars(contractID, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     start,
		End:       end.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", contractID, err)
	}

	loc := util.MarketLocation()
	out := make([]domain.Bar, 0, len(alpacaBars))
	for _, ab := range alpacaBars {
		out = append(out, domain.Bar{
			Timestamp: ab.Timestamp.In(loc),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	return out, nil
}
