package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret            string        `mapstructure:"JWT_SECRET"`
	AuthIssuer           string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL          string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience         string        `mapstructure:"AUTH_AUDIENCE"`
	EmergencyTokenSecret string        `mapstructure:"EMERGENCY_TOKEN_SECRET"`
	EmergencyTokenTTL    time.Duration `mapstructure:"EMERGENCY_TOKEN_TTL"`
	ConsentDefaultDays   int           `mapstructure:"CONSENT_DEFAULT_DAYS"`
	AdvisoryDailyLimit   int           `mapstructure:"ADVISORY_DAILY_LIMIT"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	TLSEnabled           bool          `mapstructure:"TLS_ENABLED"`
	TLSCertFile          string        `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile           string        `mapstructure:"TLS_KEY_FILE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("EMERGENCY_TOKEN_TTL", "1h")
	v.SetDefault("CONSENT_DEFAULT_DAYS", 30)
	v.SetDefault("ADVISORY_DAILY_LIMIT", 50)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("JWT_SECRET")
	v.BindEnv("AUTH_ISSUER")
	v.BindEnv("AUTH_JWKS_URL")
	v.BindEnv("AUTH_AUDIENCE")
	v.BindEnv("EMERGENCY_TOKEN_SECRET")
	v.BindEnv("EMERGENCY_TOKEN_TTL")
	v.BindEnv("CONSENT_DEFAULT_DAYS")
	v.BindEnv("ADVISORY_DAILY_LIMIT")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("TLS_ENABLED")
	v.BindEnv("TLS_CERT_FILE")
	v.BindEnv("TLS_KEY_FILE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Token validation
// needs either a shared HMAC secret or a JWKS endpoint; the emergency bypass
// needs its own secret, which must differ from the access-token secret so
// that one credential cannot stand in for the other.
func (c *Config) Validate() error {
	if c.JWTSecret == "" && c.AuthJWKSURL == "" && c.AuthIssuer == "" {
		return fmt.Errorf("one of JWT_SECRET or AUTH_JWKS_URL/AUTH_ISSUER must be set")
	}

	if c.EmergencyTokenSecret == "" {
		return fmt.Errorf("EMERGENCY_TOKEN_SECRET is required")
	}
	if c.JWTSecret != "" && c.EmergencyTokenSecret == c.JWTSecret {
		return fmt.Errorf("EMERGENCY_TOKEN_SECRET must differ from JWT_SECRET")
	}
	if c.EmergencyTokenTTL <= 0 {
		return fmt.Errorf("EMERGENCY_TOKEN_TTL must be positive")
	}

	if c.ConsentDefaultDays <= 0 {
		return fmt.Errorf("CONSENT_DEFAULT_DAYS must be positive")
	}
	if c.AdvisoryDailyLimit <= 0 {
		return fmt.Errorf("ADVISORY_DAILY_LIMIT must be positive")
	}

	// When TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}
