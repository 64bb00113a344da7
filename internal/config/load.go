package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/dgellow/authcallback/internal/envutil"
	"github.com/dgellow/authcallback/internal/log"
)

// MinEncryptionKeyLength is the minimum length of session.encryptionKey
const MinEncryptionKeyLength = 32

// Load loads and processes the config with immediate env var resolution
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var rawConfig map[string]any
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return Config{}, fmt.Errorf("parsing config JSON: %w", err)
	}

	version, ok := rawConfig["version"].(string)
	if !ok {
		return Config{}, fmt.Errorf("config version is required")
	}
	if version != SupportedVersion {
		return Config{}, fmt.Errorf("unsupported config version: %s", version)
	}

	if err := validateRawConfig(rawConfig); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	// The custom UnmarshalJSON methods resolve env vars immediately
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	config.ApplyDefaults()

	if err := ValidateConfig(&config); err != nil {
		return Config{}, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// secretFields lists the secrets that may only be given as env references
var secretFields = []struct {
	section string
	name    string
}{
	{"provider", "clientSecret"},
	{"session", "encryptionKey"},
}

// validateRawConfig validates the config structure before environment resolution
func validateRawConfig(rawConfig map[string]any) error {
	for _, secret := range secretFields {
		section, ok := rawConfig[secret.section].(map[string]any)
		if !ok {
			continue
		}
		value, exists := section[secret.name]
		if !exists {
			continue
		}
		if _, isString := value.(string); isString {
			return fmt.Errorf("%s.%s must use environment variable reference for security", secret.section, secret.name)
		}
		if refMap, isMap := value.(map[string]any); isMap {
			if _, hasEnv := refMap["$env"]; !hasEnv {
				return fmt.Errorf("%s.%s must use {\"$env\": \"VAR_NAME\"} format", secret.section, secret.name)
			}
		}
	}
	return nil
}

// ValidateConfig validates the resolved configuration
func ValidateConfig(config *Config) error {
	if config.Server.BaseURL == "" {
		return fmt.Errorf("server.baseURL is required")
	}
	if _, err := url.ParseRequestURI(config.Server.BaseURL); err != nil {
		return fmt.Errorf("server.baseURL is not a valid URL: %w", err)
	}
	if strings.HasSuffix(config.Server.BaseURL, "/") {
		return fmt.Errorf("server.baseURL must not end with a slash")
	}
	if config.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}

	if err := validateProviderConfig(&config.Provider); err != nil {
		return fmt.Errorf("provider config: %w", err)
	}
	if err := validateSessionConfig(&config.Session); err != nil {
		return fmt.Errorf("session config: %w", err)
	}
	if err := validateCallbackConfig(&config.Callback); err != nil {
		return fmt.Errorf("callback config: %w", err)
	}

	switch config.Storage.Kind {
	case StorageKindMemory:
	case StorageKindFirestore:
		if config.Storage.GCPProject == "" {
			return fmt.Errorf("storage.gcpProject is required when using firestore storage")
		}
	default:
		return fmt.Errorf("unknown storage kind '%s'", config.Storage.Kind)
	}

	return nil
}

func validateProviderConfig(p *ProviderConfig) error {
	if p.PublicKey == "" {
		return fmt.Errorf("publicKey is required")
	}

	switch p.Kind {
	case ProviderKindOIDC:
		if p.URL == "" && !p.HasDirectEndpoints() {
			return fmt.Errorf("url is required for oidc unless authorizationUrl, tokenUrl and userInfoUrl are all set")
		}
	case ProviderKindGitHub:
		if p.ClientSecret == "" {
			return fmt.Errorf("clientSecret is required for github")
		}
	case ProviderKindDev:
		if p.URL == "" {
			return fmt.Errorf("url is required for the dev provider")
		}
		if !envutil.IsDev() {
			log.LogWarnWithFields("config", "Dev provider configured outside development mode", map[string]any{
				"url": p.URL,
			})
		}
	case "":
		return fmt.Errorf("kind is required. Options: oidc, github, dev")
	default:
		return fmt.Errorf("unknown provider kind '%s'", p.Kind)
	}
	return nil
}

func validateSessionConfig(s *SessionConfig) error {
	if len(s.EncryptionKey) < MinEncryptionKeyLength {
		return fmt.Errorf("encryptionKey must be at least %d characters (got %d). Generate with: openssl rand -base64 32", MinEncryptionKeyLength, len(s.EncryptionKey))
	}
	if s.MaxAge < 0 {
		return fmt.Errorf("maxAge cannot be negative")
	}
	switch s.SameSite {
	case "", "lax", "strict", "none":
	default:
		return fmt.Errorf("sameSite must be one of lax, strict, none")
	}
	return nil
}

func validateCallbackConfig(c *CallbackConfig) error {
	for name, path := range map[string]string{
		"path":        c.Path,
		"errorPath":   c.ErrorPath,
		"defaultNext": c.DefaultNext,
	} {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%s must be an absolute path starting with /", name)
		}
	}
	for name, path := range map[string]string{"path": c.Path, "errorPath": c.ErrorPath} {
		if strings.ContainsAny(path, "?# ") {
			return fmt.Errorf("%s must be a plain path without query or fragment", name)
		}
	}
	if c.Path == c.ErrorPath {
		return fmt.Errorf("path and errorPath must differ")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	return nil
}
