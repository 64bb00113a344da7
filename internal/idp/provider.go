package idp

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"golang.org/x/oauth2"
)

// ErrAccessDenied is returned when an identity fails an access check
var ErrAccessDenied = errors.New("access denied")

// errorBodyLimit caps how much of a failed response ends up in an error
const errorBodyLimit = 1024

// Identity represents the signed-in user as reported by any provider.
type Identity struct {
	ProviderType  string   `json:"provider_type"`
	Subject       string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	Name          string   `json:"name,omitempty"`
	Picture       string   `json:"picture,omitempty"`
	Domain        string   `json:"domain,omitempty"`
	Organizations []string `json:"organizations,omitempty"`
}

// Provider abstracts identity provider operations.
type Provider interface {
	// Type returns the provider type identifier (e.g., "oidc", "github", "dev").
	Type() string

	// AuthURL generates the authorization URL for the OAuth flow.
	// opts carries the PKCE challenge and any provider hints.
	AuthURL(state string, opts ...oauth2.AuthCodeOption) string

	// ExchangeCode exchanges an authorization code for tokens.
	// opts carries the PKCE verifier.
	ExchangeCode(ctx context.Context, code string, opts ...oauth2.AuthCodeOption) (*oauth2.Token, error)

	// UserInfo fetches the identity behind token.
	// Provider-specific access control (e.g., GitHub org membership) is configured at construction.
	UserInfo(ctx context.Context, token *oauth2.Token) (*Identity, error)
}

// ValidateDomain checks if the domain is in the allowed list.
// Returns nil if allowedDomains is empty (no restriction) or domain is allowed.
func ValidateDomain(domain string, allowedDomains []string) error {
	if len(allowedDomains) == 0 {
		return nil
	}
	if !slices.Contains(allowedDomains, domain) {
		return fmt.Errorf("%w: domain '%s' is not allowed", ErrAccessDenied, domain)
	}
	return nil
}

// authStyle picks how client credentials are sent to the token endpoint.
// Public clients have no secret and identify themselves in the form body.
func authStyle(clientSecret string) oauth2.AuthStyle {
	if clientSecret == "" {
		return oauth2.AuthStyleInParams
	}
	return oauth2.AuthStyleAutoDetect
}
