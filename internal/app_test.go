package internal

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/dgellow/authcallback/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func devConfig(addr string) config.Config {
	cfg := config.Config{
		Server: config.ServerConfig{
			Addr:    addr,
			BaseURL: "http://localhost:8080",
		},
		Provider: config.ProviderConfig{
			Kind:      config.ProviderKindDev,
			PublicKey: "local-app",
		},
		Session: config.SessionConfig{
			EncryptionKey: config.Secret(strings.Repeat("k", 32)),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestNewApp_DevRoutes(t *testing.T) {
	t.Setenv("AUTHCALLBACK_ENV", "dev")

	app, err := NewApp(context.Background(), devConfig("127.0.0.1:0"))
	require.NoError(t, err)
	h := app.Handler()

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login?next=/dashboard", nil))
	require.Equal(t, http.StatusFound, w.Code)

	authURL, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/dev-idp/authorize", authURL.Path)
	assert.Equal(t, "S256", authURL.Query().Get("code_challenge_method"))
	assert.Equal(t, "http://localhost:8080/auth/callback", authURL.Query().Get("redirect_uri"))

	var verifierSet bool
	for _, c := range w.Result().Cookies() {
		if c.Name == "auth-token-code-verifier" {
			verifierSet = true
			assert.True(t, c.HttpOnly)
		}
	}
	assert.True(t, verifierSet)

	// The embedded provider answers on the same handler
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, authURL.RequestURI(), nil))
	callbackURL, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/callback", callbackURL.Path)
	assert.NotEmpty(t, callbackURL.Query().Get("code"))
	assert.Equal(t, authURL.Query().Get("state"), callbackURL.Query().Get("state"))

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))
	assert.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/auth/auth-code-error", w.Header().Get("Location"))
}

func TestNewApp_StrictSessionKeepsVerifierLax(t *testing.T) {
	t.Setenv("AUTHCALLBACK_ENV", "dev")

	cfg := devConfig("127.0.0.1:0")
	cfg.Session.SameSite = "strict"
	app, err := NewApp(context.Background(), cfg)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login", nil))
	require.Equal(t, http.StatusFound, w.Code)

	var verifier *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == "auth-token-code-verifier" {
			verifier = c
		}
	}
	require.NotNil(t, verifier)
	assert.Equal(t, http.SameSiteLaxMode, verifier.SameSite)
	assert.Contains(t, w.Header().Get("Set-Cookie"), "SameSite=Lax")
}

func TestNewApp_DevProviderNeedsMountPath(t *testing.T) {
	cfg := devConfig("127.0.0.1:0")
	cfg.Provider.URL = "http://localhost:8080"

	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "needs a mount path")
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), devConfig("127.0.0.1:0"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_RunReportsListenFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	app, err := NewApp(context.Background(), devConfig(ln.Addr().String()))
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP server error")
}
