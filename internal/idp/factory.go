package idp

import (
	"context"
	"fmt"

	"github.com/dgellow/authcallback/internal/config"
	"github.com/dgellow/authcallback/internal/urlutil"
)

// Paths of the embedded development provider, relative to its mount point
const (
	DevAuthorizePath = "/authorize"
	DevTokenPath     = "/token"
	DevUserInfoPath  = "/userinfo"
)

// NewProvider creates a Provider based on the ProviderConfig.
// redirectURI is the absolute callback URL registered with the provider.
func NewProvider(ctx context.Context, cfg config.ProviderConfig, redirectURI string) (Provider, error) {
	switch cfg.Kind {
	case config.ProviderKindGitHub:
		return NewGitHubProvider(
			cfg.PublicKey,
			string(cfg.ClientSecret),
			redirectURI,
			cfg.AllowedOrgs,
		), nil

	case config.ProviderKindOIDC:
		oidcCfg := OIDCConfig{
			ProviderType: "oidc",
			ClientID:     cfg.PublicKey,
			ClientSecret: string(cfg.ClientSecret),
			RedirectURI:  redirectURI,
			Scopes:       cfg.Scopes,
		}
		if cfg.HasDirectEndpoints() {
			oidcCfg.AuthorizationURL = cfg.AuthorizationURL
			oidcCfg.TokenURL = cfg.TokenURL
			oidcCfg.UserInfoURL = cfg.UserInfoURL
		} else {
			oidcCfg.IssuerURL = cfg.URL
		}
		return NewOIDCProvider(ctx, oidcCfg)

	case config.ProviderKindDev:
		// The dev provider is served by this process, so discovery at
		// startup would race the listener.
		endpoints := make([]string, 3)
		for i, p := range []string{DevAuthorizePath, DevTokenPath, DevUserInfoPath} {
			endpoint, err := urlutil.JoinPath(cfg.URL, p)
			if err != nil {
				return nil, fmt.Errorf("invalid dev provider url: %w", err)
			}
			endpoints[i] = endpoint
		}
		return NewOIDCProvider(ctx, OIDCConfig{
			ProviderType:     "dev",
			AuthorizationURL: endpoints[0],
			TokenURL:         endpoints[1],
			UserInfoURL:      endpoints[2],
			ClientID:         cfg.PublicKey,
			RedirectURI:      redirectURI,
			Scopes:           cfg.Scopes,
		})

	default:
		return nil, fmt.Errorf("unknown provider kind: %s", cfg.Kind)
	}
}
