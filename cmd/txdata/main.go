// Command txdata is the interactive downloader. It prompts for the data
// kind, period, and storage target, then runs the retrieval sequentially
// with resume support.
package main

import (
	"context"
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

	// Dual logger: stdout + /tmp log file.
	logFileName := fmt.Sprintf("/tmp/txdata-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.Create(logFileName)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	w := io.MultiWriter(os.Stdout, logFile)
	logger := util.NewLogger(w, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	m := menu.New(os.Stdin, os.Stdout)
	spec, err := m.Run()
	if err != nil {
		log.Fatalf("aborted: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, spec, m, logger); err != nil {
		log.Fatalf("run failed: %v", err)
	}
}

func run(ctx context.Context, cfg *config.Config, spec menu.RunSpec, m *menu.Menu, logger *slog.Logger) error {
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

	resolver, err := buildResolver(ctx, cfg, guard, spec.Range.Start)
	if err != nil {
		return err
	}
	tracker, err := progress.NewTracker(cfg.Storage.StateDir, string(spec.Kind), logger)
	if err != nil {
		return err
	}
	if next, ok, err := tracker.Resume(); err != nil {
		return err
	} else if ok {
		resume, err := m.ConfirmResume(next)
		if err != nil {
			return err
		}
		if !resume {
			if err := tracker.Reset(); err != nil {
				return fmt.Errorf("resetting progress: %w", err)
			}
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

	opts := sink.Options{
		CSV:         spec.Target == menu.TargetCSV || spec.Target == menu.TargetBoth,
		Mongo:       spec.Target == menu.TargetMongo || spec.Target == menu.TargetBoth,
		ArchiveTick: cfg.Storage.ArchiveTick,
	}

	switch spec.Kind {
	case menu.KindTicks:
		sinks, cleanup, err := sink.BuildTickSinks(ctx, cfg, spec.Range, opts, logger)
		if err != nil {
			return err
		}
		defer cleanup(ctx)
		if err := o.RunTicks(ctx, spec.Range, sinks); err != nil {
			return err
		}

	case menu.KindBars:
		sinks, cleanup, err := sink.BuildBarSinks(ctx, cfg, opts, logger)
		if err != nil {
			return err
		}
		defer cleanup(ctx)
		if err := o.RunBars(ctx, spec.Range, sinks); err != nil {
			return err
		}

	case menu.KindContinuousBars:
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
		if err := o.RunContinuousBars(ctx, spec.Range, staging, sinks); err != nil {
			return err
		}
	}

	reportUsage(ctx, cfg, guard, logger)
	return nil
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

// reportUsage prints the provider's data quota after a run. Providers
// without metering report zeros and are skipped.
func reportUsage(ctx context.Context, cfg *config.Config, guard *session.Guard, logger *slog.Logger) {
	if cfg.Fetch.Provider != config.ProviderSinotrade {
		return
	}
	u, err := guard.Usage(ctx)
	if err != nil {
		logger.Warn("usage query failed", "error", err)
		return
	}
	pct := 0.0
	if u.LimitBytes > 0 {
		pct = float64(u.BytesUsed) / float64(u.LimitBytes) * 100
	}
	logger.Info("api usage",
		"used_mb", fmt.Sprintf("%.1f", float64(u.BytesUsed)/(1<<20)),
		"limit_mb", fmt.Sprintf("%.1f", float64(u.LimitBytes)/(1<<20)),
		"used_pct", fmt.Sprintf("%.1f", pct),
	)
}
