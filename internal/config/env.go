package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// authEnv holds the raw values read by LoadFromEnv
type authEnv struct {
	Addr             string        `env:"AUTH_ADDR"              envDefault:":8080"`
	BaseURL          string        `env:"AUTH_BASE_URL"`
	ProviderKind     string        `env:"AUTH_PROVIDER_KIND"     envDefault:"oidc"`
	ProviderURL      string        `env:"AUTH_PROVIDER_URL"`
	ProviderKey      string        `env:"AUTH_PROVIDER_PUBLIC_KEY"`
	ProviderSecret   string        `env:"AUTH_PROVIDER_CLIENT_SECRET"`
	Scopes           []string      `env:"AUTH_PROVIDER_SCOPES"   envSeparator:","`
	AllowedDomains   []string      `env:"AUTH_ALLOWED_DOMAINS"   envSeparator:","`
	AllowedOrgs      []string      `env:"AUTH_ALLOWED_ORGS"      envSeparator:","`
	EncryptionKey    string        `env:"AUTH_ENCRYPTION_KEY"`
	CookieName       string        `env:"AUTH_COOKIE_NAME"`
	CookieDomain     string        `env:"AUTH_COOKIE_DOMAIN"`
	SessionMaxAge    time.Duration `env:"AUTH_SESSION_MAX_AGE"`
	ErrorPath        string        `env:"AUTH_ERROR_PATH"`
	RequireRelative  bool          `env:"AUTH_REQUIRE_RELATIVE_NEXT"`
	ExchangeTimeout  time.Duration `env:"AUTH_EXCHANGE_TIMEOUT"`
	StorageKind      string        `env:"AUTH_STORAGE"           envDefault:"memory"`
	GCPProject       string        `env:"AUTH_GCP_PROJECT"`
	FirestoreDB      string        `env:"AUTH_FIRESTORE_DATABASE"`
	FirestoreCollect string        `env:"AUTH_FIRESTORE_COLLECTION"`
}

// LoadFromEnv builds a config from AUTH_* environment variables, for
// deployments that run without a config file
func LoadFromEnv() (Config, error) {
	var raw authEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	config := Config{
		Server: ServerConfig{
			Addr:    raw.Addr,
			BaseURL: raw.BaseURL,
		},
		Provider: ProviderConfig{
			Kind:           ProviderKind(raw.ProviderKind),
			URL:            raw.ProviderURL,
			PublicKey:      raw.ProviderKey,
			ClientSecret:   Secret(raw.ProviderSecret),
			Scopes:         raw.Scopes,
			AllowedDomains: raw.AllowedDomains,
			AllowedOrgs:    raw.AllowedOrgs,
		},
		Session: SessionConfig{
			CookieName:    raw.CookieName,
			EncryptionKey: Secret(raw.EncryptionKey),
			MaxAge:        raw.SessionMaxAge,
			Domain:        raw.CookieDomain,
		},
		Callback: CallbackConfig{
			ErrorPath:           raw.ErrorPath,
			RequireRelativeNext: raw.RequireRelative,
			Timeout:             raw.ExchangeTimeout,
		},
		Storage: StorageConfig{
			Kind:                StorageKind(raw.StorageKind),
			GCPProject:          raw.GCPProject,
			FirestoreDatabase:   raw.FirestoreDB,
			FirestoreCollection: raw.FirestoreCollect,
		},
	}

	config.ApplyDefaults()

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return config, nil
}
