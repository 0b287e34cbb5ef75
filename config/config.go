package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Verification policy names accepted in configuration.
const (
	PolicyStrict          = "STRICT"
	PolicyTrustedExtended = "TRUSTED_EXTENDED"
)

// ServerConfig holds all configuration for the server. Tags use mapstructure
// for Viper unmarshalling; every key can also be supplied as an environment
// variable of the same name.
type ServerConfig struct {
	HTTPPort    string `mapstructure:"HTTP_PORT"`
	Environment string `mapstructure:"ENVIRONMENT"` // "local" relaxes cookie flags

	MongoURI    string `mapstructure:"MONGO_URI"`
	MongoDBName string `mapstructure:"MONGO_DB_NAME"`
	RedisAddr   string `mapstructure:"REDIS_ADDR"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	OtelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	JWTSecretKey       string `mapstructure:"JWT_SECRET_KEY"`
	JWTIssuer          string `mapstructure:"JWT_ISSUER"`
	AccessTokenTTLMin  int    `mapstructure:"ACCESS_TOKEN_TTL_MIN"`
	RefreshTokenTTLDay int    `mapstructure:"REFRESH_TOKEN_TTL_DAY"`

	// VerificationPolicy selects how email verification is proven: STRICT
	// accepts only the provider's own email_verified flag; TRUSTED_EXTENDED
	// additionally accepts a trusted provider with an email present, or a
	// valid accompanying team invite.
	VerificationPolicy string   `mapstructure:"VERIFICATION_POLICY"`
	TrustedProviders   []string `mapstructure:"TRUSTED_PROVIDERS"`

	IdentityVerifierURL string `mapstructure:"IDENTITY_VERIFIER_URL"`

	FrontendURL            string `mapstructure:"FRONTEND_URL"`
	NotificationServiceURL string `mapstructure:"NOTIFICATION_SERVICE_URL"`
	EmailFrom              string `mapstructure:"EMAIL_FROM"`
	RegistrationInviteDays int    `mapstructure:"REGISTRATION_INVITE_EXPIRATION_DAYS"`
	SystemInviterID        string `mapstructure:"SYSTEM_INVITER_ID"`
}

// IsLocal reports whether the server runs in local/dev mode.
func (c *ServerConfig) IsLocal() bool { return c.Environment == "local" }

// AccessTokenTTL returns the access token lifetime as a duration.
func (c *ServerConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMin) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime as a duration.
func (c *ServerConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.RefreshTokenTTLDay) * 24 * time.Hour
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/ed-user-management/")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("ENVIRONMENT", "local")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/user_management_dev")
	v.SetDefault("MONGO_DB_NAME", "user_management_dev")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("OTEL_SERVICE_NAME", "ed-user-management")
	v.SetDefault("JWT_SECRET_KEY", "a_very_secret_jwt_key_change_me") // CHANGE IN PRODUCTION
	v.SetDefault("JWT_ISSUER", "ed-user-management")
	v.SetDefault("ACCESS_TOKEN_TTL_MIN", 15)
	v.SetDefault("REFRESH_TOKEN_TTL_DAY", 30)
	v.SetDefault("VERIFICATION_POLICY", PolicyTrustedExtended)
	v.SetDefault("TRUSTED_PROVIDERS", []string{"google.com", "github.com"})
	v.SetDefault("IDENTITY_VERIFIER_URL", "")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("NOTIFICATION_SERVICE_URL", "http://localhost:8090")
	v.SetDefault("EMAIL_FROM", "no-reply@localhost")
	v.SetDefault("REGISTRATION_INVITE_EXPIRATION_DAYS", 7)
	v.SetDefault("SYSTEM_INVITER_ID", "system-root")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env vars apply. Any
		// other read error is real.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if cfg.VerificationPolicy != PolicyStrict && cfg.VerificationPolicy != PolicyTrustedExtended {
		return nil, fmt.Errorf("invalid VERIFICATION_POLICY %q", cfg.VerificationPolicy)
	}

	return &cfg, nil
}
