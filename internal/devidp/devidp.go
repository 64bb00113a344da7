// Package devidp is a minimal authorization server for local development
// and end-to-end tests. It approves every request without a login screen.
package devidp

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/dgellow/authcallback/internal/emailutil"
	jsonwriter "github.com/dgellow/authcallback/internal/json"
	"github.com/dgellow/authcallback/internal/log"
	"github.com/ory/fosite"
	"github.com/ory/fosite/compose"
	"github.com/ory/fosite/storage"
)

// DefaultEmail is used when the authorize request carries no login_hint
const DefaultEmail = "dev@localhost.test"

// Config configures the development provider
type Config struct {
	// ClientID is the public client allowed to use this provider
	ClientID string
	// RedirectURIs must contain the callback URL exactly
	RedirectURIs []string
	// Secret signs codes and tokens, at least 32 bytes
	Secret []byte
	// TokenURL is advertised to fosite for audience checks
	TokenURL      string
	AccessTTL     time.Duration
	CodeTTL       time.Duration
	AllowedScopes []string
}

// Provider serves authorize, token and userinfo endpoints
type Provider struct {
	oauth2 fosite.OAuth2Provider
	store  *storage.MemoryStore
}

// New creates a development provider with one registered public client
func New(cfg Config) (*Provider, error) {
	if len(cfg.Secret) < 32 {
		return nil, fmt.Errorf("secret must be at least 32 bytes long, got %d bytes", len(cfg.Secret))
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client ID is required")
	}
	if len(cfg.RedirectURIs) == 0 {
		return nil, fmt.Errorf("at least one redirect URI is required")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.CodeTTL == 0 {
		cfg.CodeTTL = 10 * time.Minute
	}
	scopes := cfg.AllowedScopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile", "offline"}
	}

	fositeConfig := &fosite.Config{
		AccessTokenLifespan:            cfg.AccessTTL,
		RefreshTokenLifespan:           cfg.AccessTTL * 2,
		AuthorizeCodeLifespan:          cfg.CodeTTL,
		TokenURL:                       cfg.TokenURL,
		ScopeStrategy:                  fosite.HierarchicScopeStrategy,
		AudienceMatchingStrategy:       fosite.DefaultAudienceMatchingStrategy,
		EnforcePKCEForPublicClients:    true,
		EnablePKCEPlainChallengeMethod: false,
		MinParameterEntropy:            fosite.MinParameterEntropy,
		GlobalSecret:                   cfg.Secret,
	}

	store := storage.NewMemoryStore()
	store.Clients[cfg.ClientID] = &fosite.DefaultClient{
		ID:            cfg.ClientID,
		RedirectURIs:  cfg.RedirectURIs,
		GrantTypes:    []string{"authorization_code", "refresh_token"},
		ResponseTypes: []string{"code"},
		Scopes:        scopes,
		Public:        true,
	}

	provider := compose.Compose(
		fositeConfig,
		store,
		&compose.CommonStrategy{
			CoreStrategy: compose.NewOAuth2HMACStrategy(fositeConfig),
		},
		compose.OAuth2AuthorizeExplicitFactory,
		compose.OAuth2PKCEFactory,
		compose.OAuth2RefreshTokenGrantFactory,
		compose.OAuth2TokenIntrospectionFactory,
	)

	log.LogInfoWithFields("devidp", "Development provider initialized", map[string]any{
		"client_id":     cfg.ClientID,
		"redirect_uris": cfg.RedirectURIs,
	})

	return &Provider{oauth2: provider, store: store}, nil
}

func newSession(email string) *fosite.DefaultSession {
	return &fosite.DefaultSession{
		Username: email,
		Subject:  subjectFor(email),
	}
}

// subjectFor derives a stable subject so repeated logins map to one user
func subjectFor(email string) string {
	if email == "" {
		return ""
	}
	return "dev|" + email
}

// Handler mounts the endpoints under prefix, e.g. "/dev-idp"
func (p *Provider) Handler(prefix string) http.Handler {
	prefix = strings.TrimSuffix(prefix, "/")
	mux := http.NewServeMux()
	mux.HandleFunc(prefix+"/authorize", p.AuthorizeHandler)
	mux.HandleFunc(prefix+"/token", p.TokenHandler)
	mux.HandleFunc(prefix+"/userinfo", p.UserInfoHandler)
	return mux
}

// AuthorizeHandler approves the request for the login_hint identity and
// redirects back with a single-use code
func (p *Provider) AuthorizeHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ar, err := p.oauth2.NewAuthorizeRequest(ctx, r)
	if err != nil {
		log.LogWarnWithFields("devidp", "Invalid authorize request", map[string]any{
			"error": err.Error(),
		})
		p.oauth2.WriteAuthorizeError(ctx, w, ar, err)
		return
	}

	email := emailutil.Normalize(r.URL.Query().Get("login_hint"))
	if email == "" {
		email = DefaultEmail
	}
	if emailutil.ExtractDomain(email) == "" {
		p.oauth2.WriteAuthorizeError(ctx, w, ar, fosite.ErrInvalidRequest.WithHint("login_hint must be an email address"))
		return
	}

	for _, scope := range ar.GetRequestedScopes() {
		ar.GrantScope(scope)
	}

	resp, err := p.oauth2.NewAuthorizeResponse(ctx, ar, newSession(email))
	if err != nil {
		log.LogErrorWithFields("devidp", "Failed to create authorize response", map[string]any{
			"error": err.Error(),
		})
		p.oauth2.WriteAuthorizeError(ctx, w, ar, err)
		return
	}

	log.LogDebugWithFields("devidp", "Authorization granted", map[string]any{
		"email":  email,
		"scopes": ar.GetGrantedScopes(),
	})
	p.oauth2.WriteAuthorizeResponse(ctx, w, ar, resp)
}

// TokenHandler exchanges codes and refresh tokens
func (p *Provider) TokenHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ar, err := p.oauth2.NewAccessRequest(ctx, r, newSession(""))
	if err != nil {
		log.LogWarnWithFields("devidp", "Token request rejected", map[string]any{
			"error": fosite.ErrorToRFC6749Error(err).ErrorField,
			"hint":  fosite.ErrorToRFC6749Error(err).HintField,
		})
		p.oauth2.WriteAccessError(ctx, w, ar, err)
		return
	}

	resp, err := p.oauth2.NewAccessResponse(ctx, ar)
	if err != nil {
		p.oauth2.WriteAccessError(ctx, w, ar, err)
		return
	}

	p.oauth2.WriteAccessResponse(ctx, w, ar, resp)
}

// UserInfo is the userinfo response body
type UserInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name,omitempty"`
}

// UserInfoHandler returns the identity behind a bearer access token
func (p *Provider) UserInfoHandler(w http.ResponseWriter, r *http.Request) {
	info, err := p.lookup(r.Context(), fosite.AccessTokenFromRequest(r))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
		jsonwriter.WriteUnauthorized(w, "Invalid or expired token")
		return
	}
	jsonwriter.WriteResponse(w, http.StatusOK, info)
}

func (p *Provider) lookup(ctx context.Context, token string) (*UserInfo, error) {
	if token == "" {
		return nil, fosite.ErrRequestUnauthorized
	}

	// IntrospectToken does not populate the session passed in; the stored
	// session comes back on the returned requester.
	_, ar, err := p.oauth2.IntrospectToken(ctx, token, fosite.AccessToken, newSession(""))
	if err != nil {
		return nil, err
	}
	session, ok := ar.GetSession().(*fosite.DefaultSession)
	if !ok || session.Username == "" {
		return nil, fosite.ErrRequestUnauthorized
	}

	local, _, _ := strings.Cut(session.Username, "@")
	return &UserInfo{
		Subject:       session.Subject,
		Email:         session.Username,
		EmailVerified: true,
		Name:          local,
	}, nil
}
