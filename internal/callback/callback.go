// Package callback implements the redirect leg of the OAuth authorization
// code flow. It hands the code to an Exchanger together with a cookie store
// bound to the current request, then redirects to next or to an error page.
package callback

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dgellow/authcallback/internal/cookie"
	jsonwriter "github.com/dgellow/authcallback/internal/json"
	"github.com/dgellow/authcallback/internal/log"
)

// Defaults for Options
const (
	DefaultErrorPath       = "/auth/auth-code-error"
	DefaultNext            = "/"
	DefaultRedirectStatus  = http.StatusSeeOther
	DefaultExchangeTimeout = 30 * time.Second
)

// ErrNoCode is reported when the redirect carries no code parameter
var ErrNoCode = errors.New("authorization code missing")

// ExchangeError wraps a failed code exchange
type ExchangeError struct {
	Err error
}

func (e *ExchangeError) Error() string {
	return fmt.Sprintf("code exchange failed: %v", e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Exchanger turns an authorization code into a session. Any cookies the
// session needs are written through cookies.
type Exchanger interface {
	ExchangeCodeForSession(ctx context.Context, code string, cookies cookie.Store) error
}

// CookieBinder binds a cookie store to one request/response pair
type CookieBinder func(w http.ResponseWriter, r *http.Request) cookie.Store

// Outcome classifies a callback
type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomeNoCode         Outcome = "no_code"
	OutcomeExchangeFailed Outcome = "exchange_failed"
)

// Result is the decision for one callback request
type Result struct {
	Outcome  Outcome
	Location string
	// Err is ErrNoCode or an *ExchangeError; nil on success
	Err error
}

// Options configures a Handler. Zero values use the defaults.
type Options struct {
	ErrorPath   string
	DefaultNext string
	// RequireRelativeNext only accepts next values that are same-origin
	// paths. Rejected values fall back to DefaultNext. When false, next is
	// used verbatim.
	RequireRelativeNext bool
	RedirectStatus      int
	ExchangeTimeout     time.Duration
	// StateReturnURL recovers a return URL from the state parameter when the
	// query has no next
	StateReturnURL func(state string) (string, bool)
}

func (o Options) withDefaults() Options {
	if o.ErrorPath == "" {
		o.ErrorPath = DefaultErrorPath
	}
	if o.DefaultNext == "" {
		o.DefaultNext = DefaultNext
	}
	if o.RedirectStatus == 0 {
		o.RedirectStatus = DefaultRedirectStatus
	}
	if o.ExchangeTimeout == 0 {
		o.ExchangeTimeout = DefaultExchangeTimeout
	}
	return o
}

// Handler serves the OAuth redirect URI
type Handler struct {
	exchanger Exchanger
	bind      CookieBinder
	opts      Options
}

// NewHandler creates a Handler
func NewHandler(exchanger Exchanger, bind CookieBinder, opts Options) *Handler {
	return &Handler{
		exchanger: exchanger,
		bind:      bind,
		opts:      opts.withDefaults(),
	}
}

// ServeHTTP resolves the callback and writes the redirect
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		jsonwriter.WriteMethodNotAllowed(w, http.MethodGet, http.MethodHead)
		return
	}
	// Codes are single use, so HEAD never reaches the exchange
	if r.Method == http.MethodHead {
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		return
	}

	result := h.Resolve(r.Context(), r.URL.Query(), h.bind(w, r))

	// Location is written as is; http.Redirect would clean and resolve it
	w.Header().Set("Location", result.Location)
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(h.opts.RedirectStatus)
}

// Resolve runs the callback state machine without touching HTTP. The
// cookie store is only handed to the exchanger; Resolve itself never
// reads or writes cookies.
func (h *Handler) Resolve(ctx context.Context, query url.Values, cookies cookie.Store) Result {
	if providerErr := query.Get("error"); providerErr != "" {
		log.LogWarnWithFields("callback", "Provider returned an error", log.WithRequest(ctx, map[string]any{
			"error":             providerErr,
			"error_description": query.Get("error_description"),
		}))
	}

	code := query.Get("code")
	if code == "" {
		log.LogInfoWithFields("callback", "Callback without code", log.WithRequest(ctx, map[string]any{
			"outcome": OutcomeNoCode,
		}))
		return Result{Outcome: OutcomeNoCode, Location: h.opts.ErrorPath, Err: ErrNoCode}
	}

	next := h.next(query)

	exchangeCtx, cancel := context.WithTimeout(ctx, h.opts.ExchangeTimeout)
	defer cancel()

	if err := h.exchanger.ExchangeCodeForSession(exchangeCtx, code, cookies); err != nil {
		log.LogErrorWithFields("callback", "Code exchange failed", log.WithRequest(ctx, map[string]any{
			"outcome": OutcomeExchangeFailed,
			"error":   err.Error(),
		}))
		return Result{Outcome: OutcomeExchangeFailed, Location: h.opts.ErrorPath, Err: &ExchangeError{Err: err}}
	}

	log.LogInfoWithFields("callback", "Code exchanged", log.WithRequest(ctx, map[string]any{
		"outcome": OutcomeSuccess,
		"next":    next,
	}))
	return Result{Outcome: OutcomeSuccess, Location: next}
}

// next picks the redirect target: the query, then the signed state, then the default
func (h *Handler) next(query url.Values) string {
	next := query.Get("next")
	if next == "" && h.opts.StateReturnURL != nil {
		if fromState, ok := h.opts.StateReturnURL(query.Get("state")); ok {
			next = fromState
		}
	}
	if next == "" {
		return h.opts.DefaultNext
	}
	if h.opts.RequireRelativeNext && !IsRelativePath(next) {
		log.LogWarnWithFields("callback", "Rejected non-relative next", map[string]any{
			"next": next,
		})
		return h.opts.DefaultNext
	}
	return next
}

// IsRelativePath reports whether next stays on the current origin: it must
// start with a single slash and carry no scheme or host
func IsRelativePath(next string) bool {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return false
	}
	if strings.ContainsAny(next, "\r\n\t") {
		return false
	}
	u, err := url.Parse(next)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == ""
}
