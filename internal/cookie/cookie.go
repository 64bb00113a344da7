package cookie

import (
	"net/http"
	"slices"
	"strings"

	"github.com/dgellow/authcallback/internal/envutil"
	"github.com/dgellow/authcallback/internal/log"
)

// Options are the attributes written with a cookie.
// Zero fields fall back to the store defaults.
type Options struct {
	Path     string
	Domain   string
	MaxAge   int
	Secure   bool
	HttpOnly bool
	SameSite http.SameSite
}

// Store is the get/set/remove capability handed to the provider client.
// Implementations are bound to a single request/response pair and are not
// safe for concurrent use.
type Store interface {
	Get(name string) (string, bool)
	Set(name, value string, opts Options)
	Remove(name string, opts Options)
}

// Lister is implemented by stores that can enumerate cookie names
type Lister interface {
	Names(prefix string) []string
}

// DefaultOptions returns the attributes used for session cookies
func DefaultOptions() Options {
	return Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   !envutil.IsDev(),
		SameSite: http.SameSiteLaxMode,
	}
}

func (o Options) merge(override Options) Options {
	merged := o
	if override.Path != "" {
		merged.Path = override.Path
	}
	if merged.Path == "" {
		merged.Path = "/"
	}
	if override.Domain != "" {
		merged.Domain = override.Domain
	}
	if override.MaxAge != 0 {
		merged.MaxAge = override.MaxAge
	}
	if override.SameSite != 0 {
		merged.SameSite = override.SameSite
	}
	merged.Secure = o.Secure || override.Secure
	merged.HttpOnly = o.HttpOnly || override.HttpOnly
	return merged
}

// HTTPStore binds Store to a net/http request and response writer.
// Values set during the request are visible to later Get calls.
type HTTPStore struct {
	w        http.ResponseWriter
	r        *http.Request
	defaults Options
	pending  map[string]*string // nil marks a removed cookie
}

var (
	_ Store  = (*HTTPStore)(nil)
	_ Lister = (*HTTPStore)(nil)
)

// NewHTTPStore creates a store for one request/response pair
func NewHTTPStore(w http.ResponseWriter, r *http.Request, defaults Options) *HTTPStore {
	return &HTTPStore{
		w:        w,
		r:        r,
		defaults: defaults,
		pending:  make(map[string]*string),
	}
}

// Binder returns a constructor that binds stores with the given defaults
func Binder(defaults Options) func(w http.ResponseWriter, r *http.Request) Store {
	return func(w http.ResponseWriter, r *http.Request) Store {
		return NewHTTPStore(w, r, defaults)
	}
}

// Get returns the cookie value, preferring values written in this response
func (s *HTTPStore) Get(name string) (string, bool) {
	if v, ok := s.pending[name]; ok {
		if v == nil {
			return "", false
		}
		return *v, true
	}
	c, err := s.r.Cookie(name)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

// Set writes a Set-Cookie header
func (s *HTTPStore) Set(name, value string, opts Options) {
	o := s.defaults.merge(opts)
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		Secure:   o.Secure,
		HttpOnly: o.HttpOnly,
		SameSite: o.SameSite,
	})
	s.pending[name] = &value

	log.LogTraceWithFields("cookie", "Cookie set", map[string]any{
		"name":   name,
		"maxAge": o.MaxAge,
		"secure": o.Secure,
	})
}

// Remove expires the cookie on the client
func (s *HTTPStore) Remove(name string, opts Options) {
	o := s.defaults.merge(opts)
	http.SetCookie(s.w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   -1,
		Secure:   o.Secure,
		HttpOnly: o.HttpOnly,
		SameSite: o.SameSite,
	})
	s.pending[name] = nil

	log.LogTraceWithFields("cookie", "Cookie removed", map[string]any{
		"name": name,
	})
}

// Names lists the cookies currently visible whose name starts with prefix, sorted
func (s *HTTPStore) Names(prefix string) []string {
	seen := make(map[string]bool)
	for _, c := range s.r.Cookies() {
		if strings.HasPrefix(c.Name, prefix) {
			seen[c.Name] = true
		}
	}
	for name, v := range s.pending {
		if strings.HasPrefix(name, prefix) {
			seen[name] = v != nil
		}
	}

	names := make([]string, 0, len(seen))
	for name, present := range seen {
		if present {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names
}
