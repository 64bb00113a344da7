package server

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dgellow/authcallback/internal/authclient"
	"github.com/dgellow/authcallback/internal/callback"
	"github.com/dgellow/authcallback/internal/cookie"
	"github.com/dgellow/authcallback/internal/idp"
	jsonwriter "github.com/dgellow/authcallback/internal/json"
	"github.com/dgellow/authcallback/internal/log"
	"github.com/dgellow/authcallback/internal/storage"
)

// SessionClient is the part of the provider client the auth routes use
type SessionClient interface {
	SignInWithOAuth(ctx context.Context, cookies cookie.Store, next string) (string, error)
	GetSession(cookies cookie.Store) (*authclient.Session, error)
	SignOut(cookies cookie.Store)
}

// UserLookup reads the sign-in record kept for a user
type UserLookup interface {
	GetUser(ctx context.Context, provider, subject string) (*storage.UserRecord, error)
}

// AuthHandlers serves the sign-in, session and sign-out routes
type AuthHandlers struct {
	client              SessionClient
	bind                callback.CookieBinder
	loginPath           string
	afterSignOut        string
	requireRelativeNext bool
	users               UserLookup
}

// AuthHandlersOptions configures AuthHandlers
type AuthHandlersOptions struct {
	// LoginPath is linked from the error page
	LoginPath string
	// AfterSignOut is where sign-out redirects, "/" by default
	AfterSignOut string
	// RequireRelativeNext drops non-relative next values at sign-in
	RequireRelativeNext bool
	// Users adds the stored sign-in record to the session response
	Users UserLookup
}

// SessionResponse is the body of GET /auth/session
type SessionResponse struct {
	User      idp.Identity `json:"user"`
	ExpiresAt time.Time    `json:"expires_at"`

	FirstSeen  *time.Time `json:"first_seen,omitempty"`
	LoginCount int64      `json:"login_count,omitempty"`
}

// NewAuthHandlers creates new auth handlers with dependency injection
func NewAuthHandlers(client SessionClient, bind callback.CookieBinder, opts AuthHandlersOptions) *AuthHandlers {
	if opts.LoginPath == "" {
		opts.LoginPath = "/auth/login"
	}
	if opts.AfterSignOut == "" {
		opts.AfterSignOut = "/"
	}
	return &AuthHandlers{
		client:              client,
		bind:                bind,
		loginPath:           opts.LoginPath,
		afterSignOut:        opts.AfterSignOut,
		requireRelativeNext: opts.RequireRelativeNext,
		users:               opts.Users,
	}
}

// LoginHandler starts the sign-in and redirects to the provider
func (h *AuthHandlers) LoginHandler(w http.ResponseWriter, r *http.Request) {
	next := r.URL.Query().Get("next")
	if next != "" && h.requireRelativeNext && !callback.IsRelativePath(next) {
		log.LogWarnWithFields("auth", "Dropping non-relative next at sign-in", log.WithRequest(r.Context(), map[string]any{
			"next": next,
		}))
		next = ""
	}

	authURL, err := h.client.SignInWithOAuth(r.Context(), h.bind(w, r), next)
	if err != nil {
		log.LogErrorWithFields("auth", "Failed to start sign-in", log.WithRequest(r.Context(), map[string]any{
			"error": err.Error(),
		}))
		jsonwriter.WriteInternalServerError(w, "Failed to start sign-in")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, authURL, http.StatusFound)
}

// ErrorPageHandler renders the page shown when a callback fails
func (h *AuthHandlers) ErrorPageHandler(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	data := AuthErrorPageData{
		LoginURL:  h.loginPath,
		RequestID: log.RequestID(r.Context()),
	}
	if err := authErrorPageTemplate.Execute(&buf, data); err != nil {
		log.LogErrorWithFields("auth", "Failed to render error page", map[string]any{
			"error": err.Error(),
		})
		jsonwriter.WriteInternalServerError(w, "Failed to render page")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// SessionHandler returns the signed-in identity. Tokens are never exposed.
func (h *AuthHandlers) SessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.client.GetSession(h.bind(w, r))
	if err != nil {
		switch {
		case errors.Is(err, authclient.ErrSessionExpired):
			jsonwriter.WriteUnauthorized(w, "Session expired")
		default:
			log.LogDebugWithFields("auth", "No valid session", log.WithRequest(r.Context(), map[string]any{
				"error": err.Error(),
			}))
			jsonwriter.WriteUnauthorized(w, "Not signed in")
		}
		return
	}

	resp := SessionResponse{
		User:      session.User,
		ExpiresAt: session.ExpiresAt,
	}
	if h.users != nil {
		record, err := h.users.GetUser(r.Context(), session.User.ProviderType, session.User.Subject)
		switch {
		case err == nil:
			resp.FirstSeen = &record.FirstSeen
			resp.LoginCount = record.LoginCount
		case !errors.Is(err, storage.ErrUserNotFound):
			log.LogWarnWithFields("auth", "Failed to load user record", log.WithRequest(r.Context(), map[string]any{
				"subject": session.User.Subject,
				"error":   err.Error(),
			}))
		}
	}

	_ = jsonwriter.Write(w, resp)
}

// SignOutHandler clears the session cookies
func (h *AuthHandlers) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	h.client.SignOut(h.bind(w, r))

	log.LogInfoWithFields("auth", "Signed out", log.WithRequest(r.Context(), nil))

	w.Header().Set("Location", h.afterSignOut)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusSeeOther)
}
