package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasPath(issues []ValidationError, path string) bool {
	for _, issue := range issues {
		if issue.Path == path {
			return true
		}
	}
	return false
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name         string
		config       string
		wantErrors   []string
		wantWarnings []string
	}{
		{
			name:   "starter config",
			config: StarterConfig,
		},
		{
			name:       "invalid json",
			config:     `{"version": `,
			wantErrors: []string{""},
		},
		{
			name:       "missing sections",
			config:     `{"version": "v1"}`,
			wantErrors: []string{"server", "provider", "session"},
		},
		{
			name: "plaintext secrets",
			config: `{"version": "v1",
				"server": {"baseURL": "http://localhost", "addr": ":8080"},
				"provider": {"kind": "github", "publicKey": "c", "clientSecret": "plain"},
				"session": {"encryptionKey": "plain"}}`,
			wantErrors: []string{"provider.clientSecret", "session.encryptionKey"},
		},
		{
			name: "oidc without url or endpoints",
			config: `{"version": "v1",
				"server": {"baseURL": "http://localhost", "addr": ":8080"},
				"provider": {"kind": "oidc", "publicKey": "c", "tokenUrl": "https://id/token"},
				"session": {"encryptionKey": {"$env": "K"}}}`,
			wantErrors: []string{"provider.authorizationUrl", "provider.userInfoUrl"},
		},
		{
			name: "bash style and open redirect warnings",
			config: `{"version": "v1",
				"server": {"baseURL": "${BASE_URL}", "addr": ":8080"},
				"provider": {"kind": "oidc", "url": "https://id", "publicKey": "c"},
				"session": {"encryptionKey": {"$env": "K"}, "maxAge": "1h"},
				"callback": {"requireRelativeNext": false}}`,
			wantWarnings: []string{"server.baseURL", "callback.requireRelativeNext"},
		},
		{
			name: "strict same site",
			config: `{"version": "v1",
				"server": {"baseURL": "http://localhost", "addr": ":8080"},
				"provider": {"kind": "oidc", "url": "https://id", "publicKey": "c"},
				"session": {"encryptionKey": {"$env": "K"}, "sameSite": "strict"}}`,
			wantWarnings: []string{"session.sameSite"},
		},
		{
			name: "bad durations and storage",
			config: `{"version": "v1",
				"server": {"baseURL": "http://localhost", "addr": ":8080"},
				"provider": {"kind": "oidc", "url": "https://id", "publicKey": "c"},
				"session": {"encryptionKey": {"$env": "K"}, "maxAge": "forever"},
				"callback": {"timeout": 30},
				"storage": {"kind": "firestore"}}`,
			wantErrors: []string{"session.maxAge", "callback.timeout", "storage.gcpProject"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := ValidateFile(writeConfig(t, tt.config))
			require.NoError(t, err)

			if len(tt.wantErrors) == 0 {
				assert.True(t, result.IsValid(), "unexpected errors: %v", result.Errors)
			}
			for _, path := range tt.wantErrors {
				assert.True(t, hasPath(result.Errors, path), "expected error at %q, got %v", path, result.Errors)
			}
			for _, path := range tt.wantWarnings {
				assert.True(t, hasPath(result.Warnings, path), "expected warning at %q, got %v", path, result.Warnings)
			}
		})
	}
}

func TestValidateFile_MissingFile(t *testing.T) {
	_, err := ValidateFile("/nonexistent/config.json")
	assert.Error(t, err)
}
