package config

import (
	"encoding/json"
	"net/http"
	"time"
)

// SupportedVersion is the only config file version this build accepts
const SupportedVersion = "v1"

// Secret is a string type that redacts itself when printed
type Secret string

// String implements fmt.Stringer to redact the secret
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "***"
}

// MarshalJSON implements json.Marshaler to keep secrets out of JSON logs
func (s Secret) MarshalJSON() ([]byte, error) {
	if s == "" {
		return json.Marshal("")
	}
	return json.Marshal("***")
}

// ProviderKind selects the identity provider back end
type ProviderKind string

const (
	ProviderKindOIDC   ProviderKind = "oidc"
	ProviderKindGitHub ProviderKind = "github"
	// ProviderKindDev mounts the embedded development provider on this server
	ProviderKindDev ProviderKind = "dev"
)

// StorageKind selects where user records are kept
type StorageKind string

const (
	StorageKindMemory    StorageKind = "memory"
	StorageKindFirestore StorageKind = "firestore"
)

// Defaults applied by ApplyDefaults
const (
	DefaultAddr                = ":8080"
	DefaultCookieName          = "auth-token"
	DefaultSessionMaxAge       = 7 * 24 * time.Hour
	DefaultCallbackPath        = "/auth/callback"
	DefaultErrorPath           = "/auth/auth-code-error"
	DefaultNext                = "/"
	DefaultExchangeTimeout     = 30 * time.Second
	DefaultDevIDPPrefix        = "/dev-idp"
	DefaultFirestoreDatabase   = "(default)"
	DefaultFirestoreCollection = "authcallback_users"
)

// ServerConfig is the HTTP listener configuration
type ServerConfig struct {
	Addr    string `json:"addr"`
	BaseURL string `json:"baseURL"`
}

// ProviderConfig describes the authentication provider with resolved values.
//
// URL is the provider base URL. For oidc it is the issuer used for discovery,
// unless the three endpoint URLs are given directly. PublicKey is the public
// OAuth client identifier.
type ProviderConfig struct {
	Kind             ProviderKind `json:"kind"`
	URL              string       `json:"url"`
	PublicKey        string       `json:"publicKey"`
	ClientSecret     Secret       `json:"clientSecret"`
	AuthorizationURL string       `json:"authorizationUrl,omitempty"`
	TokenURL         string       `json:"tokenUrl,omitempty"`
	UserInfoURL      string       `json:"userInfoUrl,omitempty"`
	Scopes           []string     `json:"scopes,omitempty"`
	AllowedDomains   []string     `json:"allowedDomains,omitempty"`
	AllowedOrgs      []string     `json:"allowedOrgs,omitempty"` // github only
}

// HasDirectEndpoints reports whether all three endpoints are configured
func (p ProviderConfig) HasDirectEndpoints() bool {
	return p.AuthorizationURL != "" && p.TokenURL != "" && p.UserInfoURL != ""
}

// SessionConfig controls the session cookies written by the provider client
type SessionConfig struct {
	CookieName    string        `json:"cookieName"`
	EncryptionKey Secret        `json:"encryptionKey"`
	MaxAge        time.Duration `json:"maxAge"`
	Domain        string        `json:"domain,omitempty"`
	SameSite      string        `json:"sameSite,omitempty"` // lax, strict or none
}

// SameSiteMode maps the configured string onto http.SameSite
func (s SessionConfig) SameSiteMode() http.SameSite {
	switch s.SameSite {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteLaxMode
	}
}

// CallbackConfig controls the authorization code exchange handler
type CallbackConfig struct {
	Path        string `json:"path"`
	ErrorPath   string `json:"errorPath"`
	DefaultNext string `json:"defaultNext"`
	// RequireRelativeNext rejects next values that are not same-origin paths.
	// Off by default, which redirects to next verbatim.
	RequireRelativeNext bool          `json:"requireRelativeNext"`
	Timeout             time.Duration `json:"timeout"`
}

// StorageConfig selects the user tracking back end
type StorageConfig struct {
	Kind                StorageKind `json:"kind"`
	GCPProject          string      `json:"gcpProject,omitempty"`
	FirestoreDatabase   string      `json:"firestoreDatabase,omitempty"`
	FirestoreCollection string      `json:"firestoreCollection,omitempty"`
}

// Config represents the config structure with resolved values
type Config struct {
	Server   ServerConfig   `json:"server"`
	Provider ProviderConfig `json:"provider"`
	Session  SessionConfig  `json:"session"`
	Callback CallbackConfig `json:"callback"`
	Storage  StorageConfig  `json:"storage"`
}

// ApplyDefaults fills unset optional fields
func (c *Config) ApplyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = DefaultCookieName
	}
	if c.Session.MaxAge == 0 {
		c.Session.MaxAge = DefaultSessionMaxAge
	}
	if c.Callback.Path == "" {
		c.Callback.Path = DefaultCallbackPath
	}
	if c.Callback.ErrorPath == "" {
		c.Callback.ErrorPath = DefaultErrorPath
	}
	if c.Callback.DefaultNext == "" {
		c.Callback.DefaultNext = DefaultNext
	}
	if c.Callback.Timeout == 0 {
		c.Callback.Timeout = DefaultExchangeTimeout
	}
	if c.Storage.Kind == "" {
		c.Storage.Kind = StorageKindMemory
	}
	if c.Storage.Kind == StorageKindFirestore {
		if c.Storage.FirestoreDatabase == "" {
			c.Storage.FirestoreDatabase = DefaultFirestoreDatabase
		}
		if c.Storage.FirestoreCollection == "" {
			c.Storage.FirestoreCollection = DefaultFirestoreCollection
		}
	}
	if c.Provider.Kind == ProviderKindDev && c.Provider.URL == "" && c.Server.BaseURL != "" {
		c.Provider.URL = c.Server.BaseURL + DefaultDevIDPPrefix
	}
}

// CallbackURL is the absolute redirect URI registered with the provider
func (c *Config) CallbackURL() string {
	return c.Server.BaseURL + c.Callback.Path
}
