package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies JRNL_* environment variable overrides, and
// returns the final Config. A missing file is not an error; env-only
// deployments run straight off the defaults plus overrides. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return nil, err
			}
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known JRNL_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Database ──
	setStr(&cfg.Database.DSN, "JRNL_DATABASE_DSN")
	setStr(&cfg.Database.Host, "JRNL_DATABASE_HOST")
	setInt(&cfg.Database.Port, "JRNL_DATABASE_PORT")
	setStr(&cfg.Database.Database, "JRNL_DATABASE_NAME")
	setStr(&cfg.Database.User, "JRNL_DATABASE_USER")
	setStr(&cfg.Database.Password, "JRNL_DATABASE_PASSWORD")
	setStr(&cfg.Database.SSLMode, "JRNL_DATABASE_SSLMODE")
	setInt(&cfg.Database.PoolMaxConns, "JRNL_DATABASE_POOL_MAX_CONNS")
	setInt(&cfg.Database.PoolMinConns, "JRNL_DATABASE_POOL_MIN_CONNS")
	setBool(&cfg.Database.RunMigrations, "JRNL_DATABASE_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "JRNL_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "JRNL_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "JRNL_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "JRNL_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "JRNL_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "JRNL_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "JRNL_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "JRNL_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "JRNL_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "JRNL_S3_REGION")
	setStr(&cfg.S3.Bucket, "JRNL_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "JRNL_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "JRNL_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "JRNL_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "JRNL_S3_FORCE_PATH_STYLE")

	// ── Hyperliquid ──
	setStr(&cfg.Hyperliquid.BaseURL, "JRNL_HYPERLIQUID_BASE_URL")
	setStr(&cfg.Hyperliquid.UserAddress, "JRNL_HYPERLIQUID_USER_ADDRESS")

	// ── Sync ──
	setBool(&cfg.Sync.Enabled, "JRNL_SYNC_ENABLED")
	setDuration(&cfg.Sync.Interval, "JRNL_SYNC_INTERVAL")
	setInt(&cfg.Sync.ArchiveRetentionDays, "JRNL_SYNC_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Sync.ArchiveCron, "JRNL_SYNC_ARCHIVE_CRON")

	// ── Stats ──
	setFloat64(&cfg.Stats.StartEquity, "JRNL_STATS_START_EQUITY")
	setInt(&cfg.Stats.Projection, "JRNL_STATS_PROJECTION")

	// ── Server ──
	setInt(&cfg.Server.Port, "JRNL_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "JRNL_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "JRNL_SERVER_API_KEY")

	// ── Top-level ──
	setStr(&cfg.Mode, "JRNL_MODE")
	setStr(&cfg.LogLevel, "JRNL_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
