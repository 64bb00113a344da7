package server

import (
	"net/http"
	"strings"
)

// Routes are the handlers mounted by NewMux
type Routes struct {
	Auth         *AuthHandlers
	Callback     http.Handler
	CallbackPath string
	ErrorPath    string
	LoginPath    string
	// DevIDP is mounted under DevIDPPrefix when set
	DevIDP       http.Handler
	DevIDPPrefix string
}

// NewMux builds the HTTP handler with middleware applied
func NewMux(routes Routes) http.Handler {
	if routes.LoginPath == "" {
		routes.LoginPath = "/auth/login"
	}

	mux := http.NewServeMux()

	mux.Handle("GET /health", NewHealthHandler())
	mux.HandleFunc("GET "+routes.LoginPath, routes.Auth.LoginHandler)
	mux.Handle(routes.CallbackPath, routes.Callback)
	mux.Handle("GET "+routes.ErrorPath, ChainMiddleware(
		http.HandlerFunc(routes.Auth.ErrorPageHandler),
		NewSecurityHeadersMiddleware(),
	))
	mux.HandleFunc("GET /auth/session", routes.Auth.SessionHandler)
	mux.HandleFunc("POST /auth/signout", routes.Auth.SignOutHandler)

	if routes.DevIDP != nil {
		prefix := strings.TrimSuffix(routes.DevIDPPrefix, "/")
		mux.Handle(prefix+"/", routes.DevIDP)
	}

	return ChainMiddleware(mux,
		NewRecoverMiddleware("http"),
		NewLoggerMiddleware("http"),
		NewRequestIDMiddleware(),
	)
}
