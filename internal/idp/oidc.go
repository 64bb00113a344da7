package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/dgellow/authcallback/internal/emailutil"
	"github.com/dgellow/authcallback/internal/ioutil"
	"github.com/dgellow/authcallback/internal/log"
	"golang.org/x/oauth2"
)

// OIDCConfig configures a generic OIDC provider.
type OIDCConfig struct {
	// ProviderType identifies this provider (e.g., "oidc", "dev").
	ProviderType string

	// IssuerURL enables discovery and ID token verification (optional if endpoints are provided directly).
	IssuerURL string

	// Direct endpoint configuration (used if IssuerURL is not set).
	AuthorizationURL string
	TokenURL         string
	UserInfoURL      string

	// OAuth client configuration. ClientSecret is empty for public clients.
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
}

// OIDCProvider implements the Provider interface for OIDC-compliant identity providers.
type OIDCProvider struct {
	providerType string
	config       oauth2.Config
	userInfoURL  string

	// set when discovery was used
	discovered *oidc.Provider
	verifier   *oidc.IDTokenVerifier
}

// oidcClaims are the identity claims read from ID tokens and userinfo responses.
type oidcClaims struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// NewOIDCProvider creates a new OIDC provider. With an issuer URL the
// endpoints and signing keys come from the discovery document.
func NewOIDCProvider(ctx context.Context, cfg OIDCConfig) (*OIDCProvider, error) {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "email", "profile"}
	}

	providerType := cfg.ProviderType
	if providerType == "" {
		providerType = "oidc"
	}

	p := &OIDCProvider{
		providerType: providerType,
		config: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       scopes,
		},
	}

	if cfg.IssuerURL != "" {
		discovered, err := oidc.NewProvider(ctx, cfg.IssuerURL)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch OIDC discovery: %w", err)
		}
		endpoint := discovered.Endpoint()
		endpoint.AuthStyle = authStyle(cfg.ClientSecret)
		p.config.Endpoint = endpoint
		p.discovered = discovered
		p.verifier = discovered.Verifier(&oidc.Config{ClientID: cfg.ClientID})

		log.LogDebugWithFields("idp", "OIDC discovery complete", map[string]any{
			"issuer":        cfg.IssuerURL,
			"authorization": endpoint.AuthURL,
			"token":         endpoint.TokenURL,
		})
		return p, nil
	}

	if cfg.AuthorizationURL == "" || cfg.TokenURL == "" || cfg.UserInfoURL == "" {
		return nil, fmt.Errorf("either an issuer url or all endpoints (authorizationUrl, tokenUrl, userInfoUrl) must be provided")
	}
	p.config.Endpoint = oauth2.Endpoint{
		AuthURL:   cfg.AuthorizationURL,
		TokenURL:  cfg.TokenURL,
		AuthStyle: authStyle(cfg.ClientSecret),
	}
	p.userInfoURL = cfg.UserInfoURL
	return p, nil
}

// Type returns the provider type.
func (p *OIDCProvider) Type() string {
	return p.providerType
}

// AuthURL generates the authorization URL.
func (p *OIDCProvider) AuthURL(state string, opts ...oauth2.AuthCodeOption) string {
	return p.config.AuthCodeURL(state, opts...)
}

// ExchangeCode exchanges an authorization code for tokens.
func (p *OIDCProvider) ExchangeCode(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	return p.config.Exchange(ctx, code, opts...)
}

// UserInfo returns the identity from a verified ID token when it carries an
// email, and from the userinfo endpoint otherwise.
func (p *OIDCProvider) UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error) {
	var fromIDToken *oidcClaims
	if p.verifier != nil {
		if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
			idToken, err := p.verifier.Verify(ctx, rawIDToken)
			if err != nil {
				return nil, fmt.Errorf("failed to verify ID token: %w", err)
			}
			var claims oidcClaims
			if err := idToken.Claims(&claims); err != nil {
				return nil, fmt.Errorf("failed to decode ID token claims: %w", err)
			}
			claims.Sub = idToken.Subject
			if claims.Email != "" {
				return p.identity(claims), nil
			}
			fromIDToken = &claims
		}
	}

	claims, err := p.fetchUserInfo(ctx, token)
	if err != nil {
		return nil, err
	}
	if fromIDToken != nil && fromIDToken.Sub != claims.Sub {
		return nil, fmt.Errorf("userinfo subject %q does not match ID token subject %q", claims.Sub, fromIDToken.Sub)
	}
	return p.identity(*claims), nil
}

func (p *OIDCProvider) fetchUserInfo(ctx context.Context, token *oauth2.Token) (*oidcClaims, error) {
	if p.discovered != nil {
		info, err := p.discovered.UserInfo(ctx, oauth2.StaticTokenSource(token))
		if err != nil {
			return nil, fmt.Errorf("failed to get user info: %w", err)
		}
		// email_verified may be a string, so only the profile claims are decoded here
		var profile struct {
			Name    string `json:"name"`
			Picture string `json:"picture"`
		}
		if err := info.Claims(&profile); err != nil {
			return nil, fmt.Errorf("failed to decode user info: %w", err)
		}
		return &oidcClaims{
			Sub:           info.Subject,
			Email:         info.Email,
			EmailVerified: info.EmailVerified,
			Name:          profile.Name,
			Picture:       profile.Picture,
		}, nil
	}

	client := p.config.Client(ctx, token)
	resp, err := client.Get(p.userInfoURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to get user info: status %d: %s", resp.StatusCode, ioutil.ReadLimited(resp.Body, errorBodyLimit))
	}

	var claims oidcClaims
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	return &claims, nil
}

func (p *OIDCProvider) identity(claims oidcClaims) *Identity {
	return &Identity{
		ProviderType:  p.providerType,
		Subject:       claims.Sub,
		Email:         claims.Email,
		EmailVerified: claims.EmailVerified,
		Name:          claims.Name,
		Picture:       claims.Picture,
		Domain:        emailutil.ExtractDomain(claims.Email),
	}
}
