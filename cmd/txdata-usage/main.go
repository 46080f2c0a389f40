// Command txdata-usage logs in, prints the provider's data quota, and
// exits. Useful before a large backfill.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"txdata/internal/config"
	"txdata/internal/market"
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
	if cfg.Fetch.Provider != config.ProviderSinotrade {
		log.Fatalf("provider %q does not meter data usage", cfg.Fetch.Provider)
	}

	logger := util.NewDefaultLogger(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := market.NewSinotradeClient(
		cfg.Sinotrade.BaseURL,
		cfg.Sinotrade.APIKey,
		cfg.Sinotrade.SecretKey,
		cfg.Sinotrade.CertPath,
		cfg.Sinotrade.CertPass,
	)
	if err := client.Login(ctx); err != nil {
		log.Fatalf("login: %v", err)
	}
	defer func() {
		if err := client.Logout(ctx); err != nil {
			logger.Warn("logout failed", "error", err)
		}
	}()

	u, err := client.Usage(ctx)
	if err != nil {
		log.Fatalf("usage query: %v", err)
	}

	pct := 0.0
	if u.LimitBytes > 0 {
		pct = float64(u.BytesUsed) / float64(u.LimitBytes) * 100
	}
	fmt.Printf("data usage: %.1f MB of %.1f MB (%.1f%%)\n",
		float64(u.BytesUsed)/(1<<20), float64(u.LimitBytes)/(1<<20), pct)
}
