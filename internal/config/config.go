package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string   `mapstructure:"PORT"`
	Env           string   `mapstructure:"ENV"`
	DatabaseURL   string   `mapstructure:"DATABASE_URL"`
	DBMaxConns    int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32    `mapstructure:"DB_MIN_CONNS"`
	DefaultTenant string   `mapstructure:"DEFAULT_TENANT"`
	CORSOrigins   []string `mapstructure:"CORS_ORIGINS"`

	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`
	AuthJWKSURL  string `mapstructure:"AUTH_JWKS_URL"`

	// Identity platform admin credentials. All four are required before the
	// registration flow may issue a single remote call.
	PlatformBaseURL      string `mapstructure:"PLATFORM_BASE_URL"`
	PlatformClientID     string `mapstructure:"PLATFORM_CLIENT_ID"`
	PlatformClientSecret string `mapstructure:"PLATFORM_CLIENT_SECRET"`
	PlatformProjectID    string `mapstructure:"PLATFORM_PROJECT_ID"`
	AccessPolicyID       string `mapstructure:"ACCESS_POLICY_ID"`

	// Billing provider webhook verification.
	BillingSigningSecret string `mapstructure:"BILLING_SIGNING_SECRET"`

	// Shared secret the identity platform presents on inbound event posts.
	PlatformEventSecret string `mapstructure:"PLATFORM_EVENT_SECRET"`

	// Welcome email delivery.
	AppBaseURL           string        `mapstructure:"APP_BASE_URL"`
	EmailFrom            string        `mapstructure:"EMAIL_FROM"`
	SMTPHost             string        `mapstructure:"SMTP_HOST"`
	SMTPPort             string        `mapstructure:"SMTP_PORT"`
	SMTPUsername         string        `mapstructure:"SMTP_USERNAME"`
	SMTPPassword         string        `mapstructure:"SMTP_PASSWORD"`
	WelcomeRetryAttempts int           `mapstructure:"WELCOME_RETRY_ATTEMPTS"`
	WelcomeRetryDelay    time.Duration `mapstructure:"WELCOME_RETRY_DELAY"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`
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
	v.SetDefault("DEFAULT_TENANT", "default")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("SMTP_PORT", "587")
	v.SetDefault("WELCOME_RETRY_ATTEMPTS", 3)
	v.SetDefault("WELCOME_RETRY_DELAY", "2s")
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"DEFAULT_TENANT", "CORS_ORIGINS",
		"AUTH_ISSUER", "AUTH_AUDIENCE", "AUTH_JWKS_URL",
		"PLATFORM_BASE_URL", "PLATFORM_CLIENT_ID", "PLATFORM_CLIENT_SECRET",
		"PLATFORM_PROJECT_ID", "ACCESS_POLICY_ID",
		"BILLING_SIGNING_SECRET", "PLATFORM_EVENT_SECRET",
		"APP_BASE_URL", "EMAIL_FROM",
		"SMTP_HOST", "SMTP_PORT", "SMTP_USERNAME", "SMTP_PASSWORD",
		"WELCOME_RETRY_ATTEMPTS", "WELCOME_RETRY_DELAY",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		v.BindEnv(key)
	}

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

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: operator APIs accept unauthenticated requests in this mode.")
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

// ValidateRegistration checks that every credential the registration flow
// needs is present. A missing value here is a fatal configuration error and
// must be surfaced before any remote call is attempted.
func (c *Config) ValidateRegistration() error {
	missing := []string{}
	if c.PlatformBaseURL == "" {
		missing = append(missing, "PLATFORM_BASE_URL")
	}
	if c.PlatformClientID == "" {
		missing = append(missing, "PLATFORM_CLIENT_ID")
	}
	if c.PlatformClientSecret == "" {
		missing = append(missing, "PLATFORM_CLIENT_SECRET")
	}
	if c.PlatformProjectID == "" {
		missing = append(missing, "PLATFORM_PROJECT_ID")
	}
	if c.AccessPolicyID == "" {
		missing = append(missing, "ACCESS_POLICY_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("registration is not configured: missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks that the configuration is safe to run. In production the
// registration credentials and the billing signing secret are mandatory;
// webhook payloads are never trusted without signature verification.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if err := c.ValidateRegistration(); err != nil {
			return err
		}
		if c.BillingSigningSecret == "" {
			return fmt.Errorf("BILLING_SIGNING_SECRET is required in production")
		}
		if c.PlatformEventSecret == "" {
			return fmt.Errorf("PLATFORM_EVENT_SECRET is required in production")
		}
		if c.AuthIssuer == "" && c.AuthJWKSURL == "" {
			return fmt.Errorf("AUTH_ISSUER or AUTH_JWKS_URL must be set in production")
		}
	}
	if c.WelcomeRetryAttempts <= 0 {
		return fmt.Errorf("WELCOME_RETRY_ATTEMPTS must be positive, got %d", c.WelcomeRetryAttempts)
	}
	if c.WelcomeRetryDelay < 0 {
		return fmt.Errorf("WELCOME_RETRY_DELAY must not be negative, got %s", c.WelcomeRetryDelay)
	}
	return nil
}
