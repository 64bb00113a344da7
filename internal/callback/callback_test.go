package callback

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/dgellow/authcallback/internal/cookie"
	"github.com/dgellow/authcallback/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// bindTo returns a binder that always hands out store
func bindTo(store cookie.Store) CookieBinder {
	return func(http.ResponseWriter, *http.Request) cookie.Store { return store }
}

func serve(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestHandler_NoCode(t *testing.T) {
	exchanger := &testutil.MockExchanger{}
	store := &testutil.MockCookieStore{}
	h := NewHandler(exchanger, bindTo(store), Options{})

	for _, target := range []string{"/auth/callback", "/auth/callback?next=/dashboard", "/auth/callback?code="} {
		t.Run(target, func(t *testing.T) {
			w := serve(t, h, target)

			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, "/auth/auth-code-error", w.Header().Get("Location"))
		})
	}

	exchanger.AssertNotCalled(t, "ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestHandler_Success(t *testing.T) {
	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"default next", "/auth/callback?code=abc123", "/"},
		{"explicit next", "/auth/callback?code=abc123&next=/dashboard", "/dashboard"},
		{"next with query", "/auth/callback?code=abc123&next=" + url.QueryEscape("/projects?tab=1"), "/projects?tab=1"},
		{"next kept verbatim", "/auth/callback?code=abc123&next=/a/../b", "/a/../b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exchanger := &testutil.MockExchanger{}
			exchanger.On("ExchangeCodeForSession", mock.Anything, "abc123", mock.Anything).Return(nil).Once()

			h := NewHandler(exchanger, bindTo(&testutil.MockCookieStore{}), Options{})
			w := serve(t, h, tt.target)

			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, tt.want, w.Header().Get("Location"))
			assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
			exchanger.AssertExpectations(t)
		})
	}
}

func TestHandler_CookiesOnlyWrittenByExchanger(t *testing.T) {
	store := &testutil.MockCookieStore{}
	store.On("Get", "auth-token-code-verifier").Return("verifier", true).Once()
	store.On("Set", "auth-token", "session", mock.Anything).Once()
	store.On("Remove", "auth-token-code-verifier", mock.Anything).Once()

	exchanger := &testutil.MockExchanger{}
	exchanger.On("ExchangeCodeForSession", mock.Anything, "abc123", store).
		Run(func(args mock.Arguments) {
			cookies := args.Get(2).(cookie.Store)
			_, _ = cookies.Get("auth-token-code-verifier")
			cookies.Set("auth-token", "session", cookie.Options{})
			cookies.Remove("auth-token-code-verifier", cookie.Options{})
		}).
		Return(nil)

	h := NewHandler(exchanger, bindTo(store), Options{})
	w := serve(t, h, "/auth/callback?code=abc123&next=/dashboard")

	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	exchanger.AssertExpectations(t)
	store.AssertExpectations(t)
}

func TestHandler_ExchangeFailure(t *testing.T) {
	failures := []error{
		errors.New("invalid_grant"),
		context.DeadlineExceeded,
		errors.New(""),
	}

	for _, failure := range failures {
		t.Run(failure.Error(), func(t *testing.T) {
			exchanger := &testutil.MockExchanger{}
			exchanger.On("ExchangeCodeForSession", mock.Anything, "abc123", mock.Anything).Return(failure)

			h := NewHandler(exchanger, bindTo(&testutil.MockCookieStore{}), Options{})
			w := serve(t, h, "/auth/callback?code=abc123&next=/dashboard")

			assert.Equal(t, http.StatusSeeOther, w.Code)
			assert.Equal(t, "/auth/auth-code-error", w.Header().Get("Location"))
		})
	}
}

func TestResolve_Classification(t *testing.T) {
	cause := errors.New("provider said no")
	exchanger := &testutil.MockExchanger{}
	exchanger.On("ExchangeCodeForSession", mock.Anything, "bad", mock.Anything).Return(cause)
	exchanger.On("ExchangeCodeForSession", mock.Anything, "good", mock.Anything).Return(nil)

	h := NewHandler(exchanger, nil, Options{})
	ctx := context.Background()

	result := h.Resolve(ctx, url.Values{}, nil)
	assert.Equal(t, OutcomeNoCode, result.Outcome)
	assert.ErrorIs(t, result.Err, ErrNoCode)

	result = h.Resolve(ctx, url.Values{"code": {"bad"}}, nil)
	assert.Equal(t, OutcomeExchangeFailed, result.Outcome)
	var exchangeErr *ExchangeError
	require.ErrorAs(t, result.Err, &exchangeErr)
	assert.ErrorIs(t, result.Err, cause)

	result = h.Resolve(ctx, url.Values{"code": {"good"}}, nil)
	assert.Equal(t, OutcomeSuccess, result.Outcome)
	assert.NoError(t, result.Err)
	assert.Equal(t, "/", result.Location)
}

func TestResolve_ProviderErrorWithoutCode(t *testing.T) {
	exchanger := &testutil.MockExchanger{}
	h := NewHandler(exchanger, nil, Options{})

	result := h.Resolve(context.Background(), url.Values{
		"error":             {"access_denied"},
		"error_description": {"user cancelled"},
	}, nil)

	assert.Equal(t, OutcomeNoCode, result.Outcome)
	assert.Equal(t, "/auth/auth-code-error", result.Location)
	exchanger.AssertNotCalled(t, "ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything)
}

// singleUseExchanger accepts each code once
type singleUseExchanger struct {
	mu    sync.Mutex
	valid map[string]bool
}

func (e *singleUseExchanger) ExchangeCodeForSession(_ context.Context, code string, _ cookie.Store) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.valid[code] {
		return errors.New("invalid_grant: code already used or unknown")
	}
	delete(e.valid, code)
	return nil
}

func TestHandler_ReplayedCodeFails(t *testing.T) {
	h := NewHandler(&singleUseExchanger{valid: map[string]bool{"abc123": true}}, bindTo(nil), Options{})

	first := serve(t, h, "/auth/callback?code=abc123&next=/dashboard")
	assert.Equal(t, "/dashboard", first.Header().Get("Location"))

	second := serve(t, h, "/auth/callback?code=abc123&next=/dashboard")
	assert.Equal(t, "/auth/auth-code-error", second.Header().Get("Location"))
}

func TestHandler_Options(t *testing.T) {
	exchanger := &testutil.MockExchanger{}
	exchanger.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	h := NewHandler(exchanger, bindTo(nil), Options{
		ErrorPath:      "/login?error=1",
		DefaultNext:    "/home",
		RedirectStatus: http.StatusFound,
	})

	w := serve(t, h, "/auth/callback?code=abc123")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/home", w.Header().Get("Location"))

	w = serve(t, h, "/auth/callback")
	assert.Equal(t, "/login?error=1", w.Header().Get("Location"))
}

func TestHandler_OpenRedirectBehaviour(t *testing.T) {
	exchanger := &testutil.MockExchanger{}
	exchanger.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	target := "/auth/callback?code=abc123&next=" + url.QueryEscape("https://evil.example/phish")

	t.Run("verbatim by default", func(t *testing.T) {
		h := NewHandler(exchanger, bindTo(nil), Options{})
		w := serve(t, h, target)
		assert.Equal(t, "https://evil.example/phish", w.Header().Get("Location"))
	})

	t.Run("rejected when relative paths are required", func(t *testing.T) {
		h := NewHandler(exchanger, bindTo(nil), Options{RequireRelativeNext: true})
		w := serve(t, h, target)
		assert.Equal(t, "/", w.Header().Get("Location"))

		w = serve(t, h, "/auth/callback?code=abc123&next=/dashboard")
		assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	})
}

func TestHandler_StateReturnURL(t *testing.T) {
	exchanger := &testutil.MockExchanger{}
	exchanger.On("ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	h := NewHandler(exchanger, bindTo(nil), Options{
		StateReturnURL: func(state string) (string, bool) {
			if state == "signed" {
				return "/from-state", true
			}
			return "", false
		},
	})

	w := serve(t, h, "/auth/callback?code=abc123&state=signed")
	assert.Equal(t, "/from-state", w.Header().Get("Location"))

	w = serve(t, h, "/auth/callback?code=abc123&state=signed&next=/from-query")
	assert.Equal(t, "/from-query", w.Header().Get("Location"), "query next wins over state")

	w = serve(t, h, "/auth/callback?code=abc123&state=forged")
	assert.Equal(t, "/", w.Header().Get("Location"))
}

func TestHandler_ExchangeTimeout(t *testing.T) {
	exchanger := &testutil.MockExchanger{}
	exchanger.On("ExchangeCodeForSession", mock.Anything, "slow", mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(context.DeadlineExceeded)

	h := NewHandler(exchanger, bindTo(nil), Options{ExchangeTimeout: 10 * time.Millisecond})
	w := serve(t, h, "/auth/callback?code=slow&next=/dashboard")

	assert.Equal(t, "/auth/auth-code-error", w.Header().Get("Location"))
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	exchanger := &testutil.MockExchanger{}
	h := NewHandler(exchanger, bindTo(nil), Options{})

	r := httptest.NewRequest(http.MethodPost, "/auth/callback?code=abc123", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
	assert.Equal(t, "GET, HEAD", w.Header().Get("Allow"))
	exchanger.AssertNotCalled(t, "ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandler_HeadDoesNotExchange(t *testing.T) {
	exchanger := &testutil.MockExchanger{}
	store := &testutil.MockCookieStore{}
	h := NewHandler(exchanger, bindTo(store), Options{})

	r := httptest.NewRequest(http.MethodHead, "/auth/callback?code=abc123&next=/dashboard", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Location"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	exchanger.AssertNotCalled(t, "ExchangeCodeForSession", mock.Anything, mock.Anything, mock.Anything)
	store.AssertExpectations(t)
}

func TestIsRelativePath(t *testing.T) {
	tests := []struct {
		next string
		want bool
	}{
		{"/", true},
		{"/dashboard", true},
		{"/projects?tab=1#top", true},
		{"//evil.example", false},
		{"/\\evil.example", false},
		{"https://evil.example", false},
		{"javascript:alert(1)", false},
		{"dashboard", false},
		{"/foo\r\nSet-Cookie: x=y", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.next, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRelativePath(tt.next))
		})
	}
}
