package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ParseConfigValue parses a JSON value that is either a plain string or an
// {"$env": "VAR_NAME"} reference resolved immediately
func ParseConfigValue(raw json.RawMessage) (string, error) {
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str, nil
	}

	var ref map[string]string
	if err := json.Unmarshal(raw, &ref); err != nil {
		return "", fmt.Errorf("config value must be string or reference object")
	}

	envVar, ok := ref["$env"]
	if !ok {
		return "", fmt.Errorf("unknown reference type in config value")
	}

	value := os.Getenv(envVar)
	if value == "" {
		return "", fmt.Errorf("environment variable %s not set", envVar)
	}
	// Strip surrounding quotes if present (only matching pairs)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') ||
			(value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return value, nil
}

// parseOptional resolves raw into dst when the field was present
func parseOptional(raw json.RawMessage, field string, dst *string) error {
	if raw == nil {
		return nil
	}
	value, err := ParseConfigValue(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = value
	return nil
}

func parseDuration(raw, field string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing %s: %w", field, err)
	}
	*dst = d
	return nil
}

// UnmarshalJSON implements custom unmarshaling for ServerConfig
func (s *ServerConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Addr    json.RawMessage `json:"addr"`
		BaseURL json.RawMessage `json:"baseURL"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if err := parseOptional(raw.Addr, "addr", &s.Addr); err != nil {
		return err
	}
	return parseOptional(raw.BaseURL, "baseURL", &s.BaseURL)
}

// UnmarshalJSON implements custom unmarshaling for ProviderConfig
func (p *ProviderConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind             ProviderKind    `json:"kind"`
		URL              json.RawMessage `json:"url"`
		PublicKey        json.RawMessage `json:"publicKey"`
		ClientSecret     json.RawMessage `json:"clientSecret"`
		AuthorizationURL string          `json:"authorizationUrl"`
		TokenURL         string          `json:"tokenUrl"`
		UserInfoURL      string          `json:"userInfoUrl"`
		Scopes           []string        `json:"scopes"`
		AllowedDomains   []string        `json:"allowedDomains"`
		AllowedOrgs      []string        `json:"allowedOrgs"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Kind = raw.Kind
	p.AuthorizationURL = raw.AuthorizationURL
	p.TokenURL = raw.TokenURL
	p.UserInfoURL = raw.UserInfoURL
	p.Scopes = raw.Scopes
	p.AllowedDomains = raw.AllowedDomains
	p.AllowedOrgs = raw.AllowedOrgs

	if err := parseOptional(raw.URL, "url", &p.URL); err != nil {
		return err
	}
	if err := parseOptional(raw.PublicKey, "publicKey", &p.PublicKey); err != nil {
		return err
	}

	var secret string
	if err := parseOptional(raw.ClientSecret, "clientSecret", &secret); err != nil {
		return err
	}
	p.ClientSecret = Secret(secret)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for SessionConfig
func (s *SessionConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		CookieName    string          `json:"cookieName"`
		EncryptionKey json.RawMessage `json:"encryptionKey"`
		MaxAge        string          `json:"maxAge"`
		Domain        string          `json:"domain"`
		SameSite      string          `json:"sameSite"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.CookieName = raw.CookieName
	s.Domain = raw.Domain
	s.SameSite = raw.SameSite

	if err := parseDuration(raw.MaxAge, "maxAge", &s.MaxAge); err != nil {
		return err
	}

	var key string
	if err := parseOptional(raw.EncryptionKey, "encryptionKey", &key); err != nil {
		return err
	}
	s.EncryptionKey = Secret(key)

	return nil
}

// UnmarshalJSON implements custom unmarshaling for CallbackConfig
func (c *CallbackConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Path                string `json:"path"`
		ErrorPath           string `json:"errorPath"`
		DefaultNext         string `json:"defaultNext"`
		RequireRelativeNext bool   `json:"requireRelativeNext"`
		Timeout             string `json:"timeout"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	c.Path = raw.Path
	c.ErrorPath = raw.ErrorPath
	c.DefaultNext = raw.DefaultNext
	c.RequireRelativeNext = raw.RequireRelativeNext

	return parseDuration(raw.Timeout, "timeout", &c.Timeout)
}

// UnmarshalJSON implements custom unmarshaling for StorageConfig
func (s *StorageConfig) UnmarshalJSON(data []byte) error {
	var raw struct {
		Kind                StorageKind     `json:"kind"`
		GCPProject          json.RawMessage `json:"gcpProject"`
		FirestoreDatabase   string          `json:"firestoreDatabase"`
		FirestoreCollection string          `json:"firestoreCollection"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.Kind = raw.Kind
	s.FirestoreDatabase = raw.FirestoreDatabase
	s.FirestoreCollection = raw.FirestoreCollection

	return parseOptional(raw.GCPProject, "gcpProject", &s.GCPProject)
}
