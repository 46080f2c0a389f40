// Command txdata-batch is the non-interactive downloader for cron and
// scripted use. The run is described entirely by flags; -fresh discards
// saved progress so the run starts from the requested date.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"txdata/internal/config"
	"txdata/internal/contract"
	"txdata/internal/domain"
	"txdata/internal/gather"
	"txdata/internal/market"
	"txdata/internal/menu"
	"txdata/internal/progress"
	"txdata/internal/session"
	"txdata/internal/sink"
	"txdata/internal/store"
	"txdata/internal/util"
)

func main() {
	kind := flag.String("kind", "ticks", "what to download: ticks | bars | continuous")
	startStr := flag.String("start", "", "start date YYYY-MM-DD (default: last trading day)")
	endStr := flag.String("end", "", "end date YYYY-MM-DD (default: start)")
	useCSV := flag.Bool("csv", true, "write CSV output")
	useMongo := flag.Bool("mongo", false, "write to the document store")
	fresh := flag.Bool("fresh", false, "discard saved progress and start from -start")
	flag.Parse()

	cfgPath := "config/txdata.yaml"
	if p := os.Getenv("TXDATA_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logFileName := fmt.Sprintf("/tmp/txdata-batch-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := util.NewLogger(w, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	r, err := parseRange(*startStr, *endStr)
	if err != nil {
		log.Fatalf("invalid range: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *kind, r, *useCSV, *useMongo, *fresh, logger); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

func parseRange(startStr, endStr string) (domain.DateRange, error) {
	var r domain.DateRange
	if startStr == "" {
		today := time.Now().In(util.MarketLocation())
		d := util.LastTradingDay(time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC))
		r.Start, r.End = d, d
	} else {
		start, err := domain.ParseDate(startStr)
		if err != nil {
			return r, err
		}
		r.Start, r.End = start, start
	}
	if endStr != "" {
		end, err := domain.ParseDate(endStr)
		if err != nil {
			return r, err
		}
		r.End = end
	}
	return r, r.Validate()
}

func run(ctx context.Context, cfg *config.Config, kind string, r domain.DateRange, useCSV, useMongo, fresh bool, logger *slog.Logger) error {
	client, err := buildClient(cfg)
	if err != nil {
		return err
	}
	guard := session.NewGuard(client, logger)
	if err := guard.Login(ctx); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	defer func() {
		if err := guard.Logout(ctx); err != nil {
			logger.Warn("logout failed", "error", err)
		}
	}()

	kindNS, ok := markerKind(kind)
	if !ok {
		return fmt.Errorf("unknown kind %q", kind)
	}
	resolver, err := buildResolver(ctx, cfg, guard, r.Start)
	if err != nil {
		return err
	}
	tracker, err := progress.NewTracker(cfg.Storage.StateDir, kindNS, logger)
	if err != nil {
		return err
	}
	if fresh {
		if err := tracker.Reset(); err != nil {
			return fmt.Errorf("resetting progress: %w", err)
		}
	}

	o := gather.New(gather.Params{
		Fetcher:     guard,
		Tracker:     tracker,
		Resolver:    resolver,
		Limiter:     util.NewRateLimiter(cfg.Fetch.RateLimitPerMin),
		Log:         logger,
		Symbol:      cfg.Fetch.Symbol,
		Interval:    time.Duration(cfg.Fetch.BarMinutes) * time.Minute,
		SessionOnly: cfg.Fetch.SessionOnly,
	})
	opts := sink.Options{CSV: useCSV, Mongo: useMongo, ArchiveTick: cfg.Storage.ArchiveTick}

	switch kind {
	case "ticks":
		sinks, cleanup, err := sink.BuildTickSinks(ctx, cfg, r, opts, logger)
		if err != nil {
			return err
		}
		defer cleanup(ctx)
		return o.RunTicks(ctx, r, sinks)

	case "bars":
		sinks, cleanup, err := sink.BuildBarSinks(ctx, cfg, opts, logger)
		if err != nil {
			return err
		}
		defer cleanup(ctx)
		return o.RunBars(ctx, r, sinks)

	case "continuous":
		sinks, cleanup, err := sink.BuildBarSinks(ctx, cfg, opts, logger)
		if err != nil {
			return err
		}
		defer cleanup(ctx)
		staging, err := store.NewBarStore(cfg.Storage.SQLitePath, util.MarketLocation())
		if err != nil {
			return fmt.Errorf("opening staging store: %w", err)
		}
		defer staging.Close()
		return o.RunContinuousBars(ctx, r, staging, sinks)
	}
	return fmt.Errorf("unknown kind %q", kind)
}

// markerKind maps the -kind flag to the progress namespace shared with the
// interactive downloader, so both tools resume each other's runs.
func markerKind(kind string) (string, bool) {
	switch kind {
	case "ticks":
		return string(menu.KindTicks), true
	case "bars":
		return string(menu.KindBars), true
	case "continuous":
		return string(menu.KindContinuousBars), true
	}
	return "", false
}

func buildClient(cfg *config.Config) (market.Client, error) {
	switch cfg.Fetch.Provider {
	case config.ProviderSinotrade:
		return market.NewSinotradeClient(
			cfg.Sinotrade.BaseURL,
			cfg.Sinotrade.APIKey,
			cfg.Sinotrade.SecretKey,
			cfg.Sinotrade.CertPath,
			cfg.Sinotrade.CertPass,
		), nil
	case config.ProviderAlpaca:
		return market.NewAlpacaClient(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL), nil
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Fetch.Provider)
}

func buildResolver(ctx context.Context, cfg *config.Config, guard *session.Guard, earliest time.Time) (contract.Resolver, error) {
	if cfg.Fetch.Policy == config.PolicyNative {
		return contract.Native{Code: cfg.Fetch.ContinuousCode}, nil
	}
	contracts, err := guard.Contracts(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching contract chain: %w", err)
	}
	return contract.NewStitcher(contracts, earliest)
}
