package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"stockledger/internal/cache"
	"stockledger/internal/config"
	"stockledger/internal/httpapi"
	"stockledger/internal/ledger"
	"stockledger/internal/logging"
	"stockledger/internal/notify"
	"stockledger/internal/service"
	"stockledger/internal/store"
	"stockledger/internal/store/memory"
	pgstore "stockledger/internal/store/postgres"
	"stockledger/internal/store/remote"
	"stockledger/internal/store/sqlite"
	"stockledger/internal/syncq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(logging.Config{Env: cfg.AppEnv, Level: cfg.LogLevel})
	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid security configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StoreTimeout)
	defer cancel()

	repo, durable := openRepository(ctx, cfg, logger)
	closers := []func() error{repo.Close}

	var (
		client   *redis.Client
		notifier notify.Notifier   = notify.NewLogNotifier(logger)
		reports  cache.ReportCache = cache.NoopReportCache{}
	)
	if cfg.RedisAddr != "" {
		c := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
		if err := c.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unavailable, outbox is in-memory only")
			_ = c.Close()
		} else {
			client = c
			notifier = notify.Multi{notifier, notify.NewRedisNotifier(client, cfg.AlertChannel)}
			reports = cache.NewRedisReportCache(client, cfg.OutboxKey+":report")
			closers = append(closers, client.Close)
		}
	}
	outbox := newOutbox(client, cfg.OutboxKey, durable, logger)

	dispatcher := syncq.NewDispatcher(outbox, repo, logger, cfg.SyncInterval)
	// Change sets left over from a previous run go out before the snapshot is read.
	if n, err := dispatcher.Drain(ctx); err != nil {
		logger.Warn().Err(err).Int("applied", n).Msg("replaying outbox")
	} else if n > 0 {
		logger.Info().Int("applied", n).Msg("outbox replayed")
	}

	l, err := ledger.New(cfg.Locations, ledger.Options{
		Syncer:   dispatcher,
		Notifier: notifier,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("ledger")
	}
	if err := l.Load(ctx, repo); err != nil {
		logger.Fatal().Err(err).Msg("load snapshot")
	}

	svc := service.New(l, service.Options{
		Loyalty: service.Loyalty{
			EarnRateCents:    cfg.LoyaltyEarnRateCents,
			RedeemValueCents: cfg.LoyaltyRedeemValueCents,
		},
		ReportCache: reports,
		Logger:      logger,
	})
	if cfg.SeedAdminEmail != "" {
		if _, err := svc.BootstrapAdmin(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPIN); err != nil {
			logger.Fatal().Err(err).Msg("seed admin")
		}
	}

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, l)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Production:    cfg.IsProduction(),
		Store:         repo,
		Backlog:       dispatcher,
		Logger:        logger,
	})

	runCtx, stopRun := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		dispatcher.Run(runCtx)
	}()

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Address()).Int("locations", len(cfg.Locations)).Msg("stock ledger listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown")
	}
	stopRun()
	<-done
	if err := dispatcher.Flush(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("flush outbox")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close")
		}
	}
	logger.Info().Msg("server stopped")
}

// newOutbox keeps pending change sets in Redis only when they are headed for a
// durable store. Sets queued for a store that is down stay in Redis untouched
// until a later start reaches it.
func newOutbox(client *redis.Client, key string, durable bool, logger zerolog.Logger) syncq.Outbox {
	if client == nil {
		return syncq.NewMemoryOutbox()
	}
	if !durable {
		logger.Warn().Str("key", key).Msg("store is not durable, leaving redis outbox for a later start")
		return syncq.NewMemoryOutbox()
	}
	logger.Info().Str("key", key).Msg("outbox: redis")
	return syncq.NewRedisOutbox(client, key)
}

// openRepository picks the durable store: DATABASE_URL, then SQLITE_PATH,
// then STORE_URL, else the in-process store. The flag is false for the
// in-process store.
func openRepository(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Repository, bool) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback")
		}
		logger.Info().Msg("repository: postgres")
		return pg, true
	case cfg.SQLitePath != "":
		lite, err := sqlite.New(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("open sqlite")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("repository: sqlite")
		return lite, true
	case cfg.StoreURL != "":
		rs := remote.New(cfg.StoreURL, cfg.StoreTimeout, logger)
		if err := rs.Health(ctx); err != nil {
			logger.Warn().Err(err).Str("url", cfg.StoreURL).Msg("store unreachable, falling back to local memory; writes will not survive a restart")
			return memory.New(), false
		}
		logger.Info().Str("url", cfg.StoreURL).Msg("repository: remote")
		return rs, true
	}
	if cfg.IsProduction() {
		logger.Warn().Msg("repository: in-memory; writes will not survive a restart")
		return memory.New(), false
	}
	logger.Info().Msg("repository: in-memory (seeded)")
	return memory.NewSeeded(cfg.Locations), false
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SeedAdminEmail == "" {
		return nil
	}
	if len(cfg.SeedAdminPIN) < 6 {
		return fmt.Errorf("SEED_ADMIN_PIN must be set and at least 6 digits")
	}
	if err := validatePINStrength(cfg.SeedAdminPIN); err != nil {
		return fmt.Errorf("SEED_ADMIN_PIN is too weak: %w", err)
	}
	return nil
}

// validatePINStrength rejects PINs that are all the same digit,
// sequential (ascending or descending), or from a known-weak list.
func validatePINStrength(pin string) error {
	known := map[string]bool{
		"123456": true, "654321": true, "000000": true, "111111": true,
		"121212": true, "112233": true, "123123": true, "159753": true,
	}
	if known[pin] {
		return fmt.Errorf("common PIN not allowed")
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return fmt.Errorf("PIN must be digits only")
		}
	}

	allSame := true
	for i := 1; i < len(pin); i++ {
		if pin[i] != pin[0] {
			allSame = false
			break
		}
	}
	if allSame {
		return fmt.Errorf("all-same-digit PIN not allowed")
	}

	ascending, descending := true, true
	for i := 1; i < len(pin); i++ {
		diff := int(pin[i]) - int(pin[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
	}
	if ascending || descending {
		return fmt.Errorf("sequential PIN not allowed")
	}
	return nil
}
