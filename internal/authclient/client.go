// Package authclient is the authentication provider client. It starts the
// PKCE sign-in, exchanges authorization codes for sessions and keeps the
// session in encrypted cookies written through a cookie.Store.
package authclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/authcallback/internal/cookie"
	"github.com/dgellow/authcallback/internal/crypto"
	"github.com/dgellow/authcallback/internal/idp"
	"github.com/dgellow/authcallback/internal/log"
	"github.com/dgellow/authcallback/internal/storage"
	"golang.org/x/oauth2"
)

var (
	// ErrCodeVerifierMissing means the sign-in was not started from this browser
	ErrCodeVerifierMissing = errors.New("code verifier cookie missing")
	ErrNoSession           = errors.New("no session")
	ErrSessionExpired      = errors.New("session expired")
)

const (
	// DefaultCookieName is the session cookie name when none is configured
	DefaultCookieName = "auth-token"
	// VerifierCookieSuffix is appended to the cookie name for the PKCE verifier
	VerifierCookieSuffix = "-code-verifier"

	DefaultSessionMaxAge = 7 * 24 * time.Hour
	// StateTTL bounds how long a sign-in may take
	StateTTL = 10 * time.Minute
)

// Recorder is notified of every successful sign-in
type Recorder interface {
	UpsertUser(ctx context.Context, provider, subject, email string) (*storage.UserRecord, error)
}

// Options configures a Client
type Options struct {
	CookieName string
	// Secret is the session secret, at least 32 bytes. Cookie encryption and
	// state signing use separate keys derived from it.
	Secret        []byte
	SessionMaxAge time.Duration
	// Cookie holds the attributes for every cookie the client writes
	Cookie         cookie.Options
	AllowedDomains []string
	// Recorder is optional. Failures are logged and do not fail the sign-in.
	Recorder Recorder
}

// Client talks to one identity provider
type Client struct {
	provider       idp.Provider
	encryptor      crypto.Encryptor
	stateSigner    crypto.TokenSigner
	cookieName     string
	maxAge         time.Duration
	cookieOpts     cookie.Options
	allowedDomains []string
	recorder       Recorder
	now            func() time.Time
}

// authState is signed into the OAuth state parameter
type authState struct {
	Nonce     string `json:"nonce"`
	ReturnURL string `json:"return_url,omitempty"`
}

// New creates a Client
func New(provider idp.Provider, opts Options) (*Client, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}

	encKey, err := crypto.DeriveKey(opts.Secret, crypto.PurposeSessionCookie)
	if err != nil {
		return nil, fmt.Errorf("session secret: %w", err)
	}
	encryptor, err := crypto.NewEncryptor(encKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create session encryptor: %w", err)
	}
	stateKey, err := crypto.DeriveKey(opts.Secret, crypto.PurposeOAuthState)
	if err != nil {
		return nil, fmt.Errorf("session secret: %w", err)
	}

	c := &Client{
		provider:       provider,
		encryptor:      encryptor,
		stateSigner:    crypto.NewTokenSigner(stateKey, StateTTL),
		cookieName:     opts.CookieName,
		maxAge:         opts.SessionMaxAge,
		cookieOpts:     opts.Cookie,
		allowedDomains: opts.AllowedDomains,
		recorder:       opts.Recorder,
		now:            time.Now,
	}
	if c.cookieName == "" {
		c.cookieName = DefaultCookieName
	}
	if c.maxAge == 0 {
		c.maxAge = DefaultSessionMaxAge
	}
	return c, nil
}

// CookieName returns the session cookie name
func (c *Client) CookieName() string {
	return c.cookieName
}

func (c *Client) verifierCookieName() string {
	return c.cookieName + VerifierCookieSuffix
}

func (c *Client) withMaxAge(d time.Duration) cookie.Options {
	opts := c.cookieOpts
	opts.MaxAge = int(d.Seconds())
	return opts
}

// SignInWithOAuth stores a fresh PKCE verifier in cookies and returns the
// provider URL the browser must visit. next is carried in the signed state
// and used when the callback has no next parameter of its own.
func (c *Client) SignInWithOAuth(ctx context.Context, cookies cookie.Store, next string) (string, error) {
	verifier := oauth2.GenerateVerifier()

	nonce, err := crypto.GenerateSecureToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}
	state, err := c.stateSigner.Sign(authState{Nonce: nonce, ReturnURL: next})
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}

	verifierOpts := c.withMaxAge(StateTTL)
	// The verifier must survive the top-level redirect back from the provider
	verifierOpts.SameSite = http.SameSiteLaxMode
	cookies.Set(c.verifierCookieName(), verifier, verifierOpts)

	log.LogDebugWithFields("authclient", "Sign-in started", log.WithRequest(ctx, map[string]any{
		"provider": c.provider.Type(),
		"next":     next,
	}))

	return c.provider.AuthURL(state, oauth2.S256ChallengeOption(verifier)), nil
}

// ReturnURLFromState returns the return URL carried in a state produced by
// SignInWithOAuth, if the state is authentic and unexpired
func (c *Client) ReturnURLFromState(state string) (string, bool) {
	if state == "" {
		return "", false
	}
	var s authState
	if err := c.stateSigner.Verify(state, &s); err != nil {
		log.LogDebugWithFields("authclient", "Ignoring invalid state", map[string]any{
			"error": err.Error(),
		})
		return "", false
	}
	return s.ReturnURL, s.ReturnURL != ""
}

// ExchangeCodeForSession trades code for tokens using the verifier cookie,
// resolves the user and writes the session cookies. Nothing is written to
// cookies unless the whole exchange succeeds.
func (c *Client) ExchangeCodeForSession(ctx context.Context, code string, cookies cookie.Store) error {
	verifier, ok := cookies.Get(c.verifierCookieName())
	if !ok || verifier == "" {
		return ErrCodeVerifierMissing
	}

	token, err := c.provider.ExchangeCode(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return fmt.Errorf("exchanging code: %w", err)
	}

	identity, err := c.provider.UserInfo(ctx, token)
	if err != nil {
		return fmt.Errorf("fetching user info: %w", err)
	}
	if err := idp.ValidateDomain(identity.Domain, c.allowedDomains); err != nil {
		return err
	}

	now := c.now()
	session := &Session{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenType:    token.Type(),
		TokenExpiry:  token.Expiry,
		ExpiresAt:    now.Add(c.maxAge),
		User:         *identity,
	}

	plaintext, err := encodeSession(session)
	if err != nil {
		return err
	}
	sealed, err := c.encryptor.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt session: %w", err)
	}

	writeChunks(cookies, c.cookieName, sealed, c.withMaxAge(c.maxAge))
	cookies.Remove(c.verifierCookieName(), cookie.Options{Path: c.cookieOpts.Path, Domain: c.cookieOpts.Domain})

	log.LogInfoWithFields("authclient", "Session established", log.WithRequest(ctx, map[string]any{
		"provider": identity.ProviderType,
		"subject":  identity.Subject,
	}))

	if c.recorder != nil {
		if _, err := c.recorder.UpsertUser(ctx, identity.ProviderType, identity.Subject, identity.Email); err != nil {
			log.LogWarnWithFields("authclient", "Failed to record user", log.WithRequest(ctx, map[string]any{
				"subject": identity.Subject,
				"error":   err.Error(),
			}))
		}
	}

	return nil
}

// GetSession reads and decrypts the session cookies
func (c *Client) GetSession(cookies cookie.Store) (*Session, error) {
	sealed, ok := readChunks(cookies, c.cookieName)
	if !ok {
		return nil, ErrNoSession
	}

	plaintext, err := c.encryptor.Decrypt(sealed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	session, err := decodeSession(plaintext)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoSession, err)
	}
	if session.Expired(c.now()) {
		return nil, ErrSessionExpired
	}
	return session, nil
}

// SignOut removes the session cookies and any pending verifier
func (c *Client) SignOut(cookies cookie.Store) {
	removeOpts := cookie.Options{Path: c.cookieOpts.Path, Domain: c.cookieOpts.Domain}
	for _, name := range chunkNames(cookies, c.cookieName) {
		cookies.Remove(name, removeOpts)
	}
	if _, ok := cookies.Get(c.verifierCookieName()); ok {
		cookies.Remove(c.verifierCookieName(), removeOpts)
	}
}
