package internal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/dgellow/authcallback/internal/authclient"
	"github.com/dgellow/authcallback/internal/callback"
	"github.com/dgellow/authcallback/internal/config"
	"github.com/dgellow/authcallback/internal/cookie"
	"github.com/dgellow/authcallback/internal/crypto"
	"github.com/dgellow/authcallback/internal/devidp"
	"github.com/dgellow/authcallback/internal/idp"
	"github.com/dgellow/authcallback/internal/log"
	"github.com/dgellow/authcallback/internal/server"
	"github.com/dgellow/authcallback/internal/storage"
	"github.com/dgellow/authcallback/internal/urlutil"
	"golang.org/x/sync/errgroup"
)

// App is the complete authcallback service
type App struct {
	config     config.Config
	handler    http.Handler
	httpServer *server.HTTPServer
	storage    storage.UserStore
}

// NewApp builds the service with all dependencies wired
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	log.LogInfoWithFields("app", "Building application", map[string]any{
		"baseURL":  cfg.Server.BaseURL,
		"provider": cfg.Provider.Kind,
		"storage":  cfg.Storage.Kind,
	})

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	devProvider, devPrefix, err := setupDevProvider(cfg)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to setup development provider: %w", err)
	}

	provider, err := idp.NewProvider(ctx, cfg.Provider, cfg.CallbackURL())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to setup identity provider: %w", err)
	}

	cookieOpts := cookie.DefaultOptions()
	cookieOpts.Domain = cfg.Session.Domain
	cookieOpts.SameSite = cfg.Session.SameSiteMode()

	client, err := authclient.New(provider, authclient.Options{
		CookieName:     cfg.Session.CookieName,
		Secret:         []byte(cfg.Session.EncryptionKey),
		SessionMaxAge:  cfg.Session.MaxAge,
		Cookie:         cookieOpts,
		AllowedDomains: cfg.Provider.AllowedDomains,
		Recorder:       store,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to setup auth client: %w", err)
	}

	bind := cookie.Binder(cookieOpts)
	routes := server.Routes{
		Auth: server.NewAuthHandlers(client, bind, server.AuthHandlersOptions{
			RequireRelativeNext: cfg.Callback.RequireRelativeNext,
			Users:               store,
		}),
		Callback: callback.NewHandler(client, bind, callback.Options{
			ErrorPath:           cfg.Callback.ErrorPath,
			DefaultNext:         cfg.Callback.DefaultNext,
			RequireRelativeNext: cfg.Callback.RequireRelativeNext,
			ExchangeTimeout:     cfg.Callback.Timeout,
			StateReturnURL:      client.ReturnURLFromState,
		}),
		CallbackPath: cfg.Callback.Path,
		ErrorPath:    cfg.Callback.ErrorPath,
	}
	if devProvider != nil {
		routes.DevIDP = devProvider.Handler(devPrefix)
		routes.DevIDPPrefix = devPrefix
	}

	handler := server.NewMux(routes)

	return &App{
		config:     cfg,
		handler:    handler,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		storage:    store,
	}, nil
}

// setupDevProvider creates the embedded provider when the dev kind is
// configured. It returns the mount prefix taken from the provider URL.
func setupDevProvider(cfg config.Config) (*devidp.Provider, string, error) {
	if cfg.Provider.Kind != config.ProviderKindDev {
		return nil, "", nil
	}

	providerURL, err := url.Parse(cfg.Provider.URL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid provider url: %w", err)
	}
	prefix := providerURL.Path
	if prefix == "" || prefix == "/" {
		return nil, "", fmt.Errorf("dev provider url %q needs a mount path", cfg.Provider.URL)
	}

	secret, err := crypto.DeriveKey([]byte(cfg.Session.EncryptionKey), crypto.PurposeDevProvider)
	if err != nil {
		return nil, "", err
	}

	tokenURL, err := urlutil.JoinPath(cfg.Provider.URL, idp.DevTokenPath)
	if err != nil {
		return nil, "", err
	}

	dev, err := devidp.New(devidp.Config{
		ClientID:      cfg.Provider.PublicKey,
		RedirectURIs:  []string{cfg.CallbackURL()},
		Secret:        secret,
		TokenURL:      tokenURL,
		AllowedScopes: cfg.Provider.Scopes,
	})
	if err != nil {
		return nil, "", err
	}

	log.LogWarnWithFields("app", "Development provider enabled, every sign-in is approved", map[string]any{
		"mount": prefix,
	})
	return dev, prefix, nil
}

// Handler returns the root HTTP handler
func (a *App) Handler() http.Handler {
	return a.handler
}

// Run serves until ctx is cancelled or the server fails, then shuts down
// gracefully
func (a *App) Run(ctx context.Context) error {
	log.LogInfoWithFields("app", "Starting application", map[string]any{
		"addr": a.config.Server.Addr,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()

		log.LogInfoWithFields("app", "Starting graceful shutdown", map[string]any{
			"reason":  context.Cause(gctx).Error(),
			"timeout": server.ShutdownTimeout.String(),
		})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
		defer cancel()

		if err := a.httpServer.Stop(shutdownCtx); err != nil {
			log.LogErrorWithFields("app", "HTTP server shutdown error", map[string]any{
				"error": err.Error(),
			})
			return err
		}
		return nil
	})

	err := g.Wait()

	if closeErr := a.storage.Close(); closeErr != nil {
		log.LogWarnWithFields("app", "Failed to close storage", map[string]any{
			"error": closeErr.Error(),
		})
	}

	log.LogInfoWithFields("app", "Application shutdown complete", nil)
	return err
}
