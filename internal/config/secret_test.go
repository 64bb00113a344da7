package config

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretRedaction(t *testing.T) {
	secret := Secret("super-secret-value")

	assert.Equal(t, "***", secret.String())
	assert.Equal(t, "***", fmt.Sprintf("%v", secret))
	assert.NotContains(t, fmt.Sprintf("%+v", ProviderConfig{ClientSecret: secret}), "super-secret-value")

	data, err := json.Marshal(SessionConfig{EncryptionKey: secret})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"encryptionKey":"***"`)
	assert.NotContains(t, string(data), "super-secret-value")

	assert.Equal(t, "", Secret("").String())
	assert.Equal(t, "super-secret-value", string(secret))
}

func TestSameSiteMode(t *testing.T) {
	assert.Equal(t, http.SameSiteLaxMode, SessionConfig{}.SameSiteMode())
	assert.Equal(t, http.SameSiteStrictMode, SessionConfig{SameSite: "strict"}.SameSiteMode())
	assert.Equal(t, http.SameSiteNoneMode, SessionConfig{SameSite: "none"}.SameSiteMode())
}
