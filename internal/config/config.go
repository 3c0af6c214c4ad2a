package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"stockledger/internal/domain"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AppEnv        string `envconfig:"APP_ENV" default:"development"`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	// Store selection: DATABASE_URL, then SQLITE_PATH, then STORE_URL, else memory.
	DatabaseURL  string        `envconfig:"DATABASE_URL"`
	SQLitePath   string        `envconfig:"SQLITE_PATH"`
	StoreURL     string        `envconfig:"STORE_URL"`
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"10s"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	OutboxKey     string `envconfig:"OUTBOX_KEY" default:"stockledger:outbox"`
	AlertChannel  string `envconfig:"ALERT_CHANNEL" default:"stockledger:low-stock"`
	SyncInterval  time.Duration `envconfig:"SYNC_INTERVAL" default:"5s"`

	AuthSecret            string `envconfig:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `envconfig:"ACCESS_TOKEN_TTL_MINUTES" default:"480"`
	SeedAdminEmail        string `envconfig:"SEED_ADMIN_EMAIL"`
	SeedAdminPIN          string `envconfig:"SEED_ADMIN_PIN"`

	Locations Locations `envconfig:"LOCATIONS" default:"store-1:Main Store:STORE,wh-1:Central Warehouse:WAREHOUSE"`

	LoyaltyEarnRateCents    int64 `envconfig:"LOYALTY_EARN_RATE_CENTS" default:"10000"`
	LoyaltyRedeemValueCents int64 `envconfig:"LOYALTY_REDEEM_VALUE_CENTS" default:"10"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.SeedAdminPIN = strings.TrimSpace(cfg.SeedAdminPIN)
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.LoyaltyEarnRateCents < 1 {
		return Config{}, fmt.Errorf("LOYALTY_EARN_RATE_CENTS must be positive")
	}
	if cfg.LoyaltyRedeemValueCents < 0 {
		return Config{}, fmt.Errorf("LOYALTY_REDEEM_VALUE_CENTS must not be negative")
	}
	if len(cfg.Locations) == 0 {
		return Config{}, fmt.Errorf("LOCATIONS must name at least one location")
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Locations decodes "id:name:TYPE" entries separated by commas. TYPE defaults
// to STORE.
type Locations []domain.Location

func (l *Locations) Decode(value string) error {
	var out Locations
	seen := make(map[string]bool)
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		loc := domain.Location{ID: strings.TrimSpace(parts[0]), Type: domain.LocationStore}
		if loc.ID == "" {
			return fmt.Errorf("location %q has no id", entry)
		}
		if seen[loc.ID] {
			return fmt.Errorf("duplicate location id %q", loc.ID)
		}
		seen[loc.ID] = true
		loc.Name = loc.ID
		if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
			loc.Name = strings.TrimSpace(parts[1])
		}
		if len(parts) > 2 {
			switch domain.LocationType(strings.ToUpper(strings.TrimSpace(parts[2]))) {
			case domain.LocationStore:
			case domain.LocationWarehouse:
				loc.Type = domain.LocationWarehouse
			default:
				return fmt.Errorf("location %q has unknown type %q", loc.ID, parts[2])
			}
		}
		out = append(out, loc)
	}
	*l = out
	return nil
}
