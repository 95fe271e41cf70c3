package internal

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/foliosite/siterelay/internal/config"
	"github.com/foliosite/siterelay/internal/crypto"
	"github.com/foliosite/siterelay/internal/idp"
	"github.com/foliosite/siterelay/internal/log"
	"github.com/foliosite/siterelay/internal/relay"
	"github.com/foliosite/siterelay/internal/server"
	"github.com/foliosite/siterelay/internal/storage"
	"github.com/foliosite/siterelay/internal/webhook"
)

// Version is reported by the health endpoint; set by the main package
var Version = "dev"

const (
	stateKeyPurpose      = "decap-oauth-state"
	stateCleanupInterval = 10 * time.Minute
	shutdownTimeout      = 30 * time.Second
)

// SiteRelay is the complete application: the CMS OAuth relay and the
// booking webhook receiver behind one HTTP server
type SiteRelay struct {
	config     config.Config
	httpServer *server.HTTPServer
	storage    storage.StateStore
	cleanup    *storage.CleanupManager
	limiters   routeLimiters
}

// routeLimiters keeps separate buckets for the CMS sign-in routes and the
// webhook, so booking bursts cannot lock out sign-in
type routeLimiters struct {
	decap   *server.RateLimiter
	webhook *server.RateLimiter
}

func newRouteLimiters(rl config.RateLimitConfig) routeLimiters {
	return routeLimiters{
		decap:   server.NewRateLimiter(rl.RequestsPerMinute, rl.Burst),
		webhook: server.NewRateLimiter(rl.RequestsPerMinute, rl.Burst),
	}
}

func (l routeLimiters) start(ctx context.Context, interval time.Duration) {
	l.decap.Start(ctx, interval)
	l.webhook.Start(ctx, interval)
}

// NewSiteRelay builds every component from cfg
func NewSiteRelay(ctx context.Context, cfg config.Config) (*SiteRelay, error) {
	log.LogInfoWithFields("siterelay", "Building application", map[string]any{
		"baseURL": cfg.Server.BaseURL,
		"decap":   cfg.Decap != nil,
		"webhook": cfg.Webhook != nil,
	})

	store, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	limiters := newRouteLimiters(cfg.Server.RateLimit)

	handler, err := buildHTTPHandler(cfg, store, limiters)
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, fmt.Errorf("failed to build HTTP handler: %w", err)
	}

	var cleanup *storage.CleanupManager
	if store != nil {
		cleanup = storage.NewCleanupManager(store, stateCleanupInterval)
	}

	return &SiteRelay{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		storage:    store,
		cleanup:    cleanup,
		limiters:   limiters,
	}, nil
}

// Run serves until SIGINT/SIGTERM or a server error, then drains
func (s *SiteRelay) Run() error {
	log.LogInfoWithFields("siterelay", "Starting application", map[string]any{
		"addr": s.config.Server.Addr,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	if s.cleanup != nil {
		s.cleanup.Start(ctx)
	}
	s.limiters.start(ctx, stateCleanupInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var shutdownReason string
	var runErr error
	select {
	case sig := <-sigChan:
		shutdownReason = fmt.Sprintf("signal %v", sig)
		log.LogInfoWithFields("siterelay", "Received shutdown signal", map[string]any{
			"signal": sig.String(),
		})
	case err := <-errChan:
		shutdownReason = fmt.Sprintf("error: %v", err)
		runErr = err
		log.LogErrorWithFields("siterelay", "Shutting down due to error", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("siterelay", "Starting graceful shutdown", map[string]any{
		"reason":  shutdownReason,
		"timeout": shutdownTimeout.String(),
	})
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := s.httpServer.Stop(shutdownCtx); err != nil {
		log.LogErrorWithFields("siterelay", "HTTP server shutdown error", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	if s.cleanup != nil {
		s.cleanup.Stop()
	}
	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			log.LogWarnWithFields("siterelay", "Storage close error", map[string]any{
				"error": err.Error(),
			})
		}
	}

	log.LogInfoWithFields("siterelay", "Application shutdown complete", map[string]any{
		"reason": shutdownReason,
	})
	return runErr
}

// setupStorage creates the consumed-state ledger; nil when the relay is off
func setupStorage(ctx context.Context, cfg config.Config) (storage.StateStore, error) {
	if cfg.Decap == nil {
		return nil, nil
	}

	if cfg.Decap.Storage == config.StorageFirestore {
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.Decap.GCPProject,
			"database":   cfg.Decap.FirestoreDatabase,
			"collection": cfg.Decap.FirestoreCollection,
		})
		firestoreStorage, err := storage.NewFirestoreStorage(
			ctx,
			cfg.Decap.GCPProject,
			cfg.Decap.FirestoreDatabase,
			cfg.Decap.FirestoreCollection,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Firestore storage: %w", err)
		}
		return firestoreStorage, nil
	}

	log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{})
	return storage.NewMemoryStorage(), nil
}

// setupStateIssuer signs states with a key derived from the state secret,
// or issues bare nonces when none is configured
func setupStateIssuer(d *config.DecapConfig) (*crypto.StateIssuer, error) {
	if d.StateSecret == "" {
		return crypto.NewStateIssuer(nil, d.StateTTL), nil
	}
	key, err := crypto.DeriveKey([]byte(d.StateSecret), stateKeyPurpose)
	if err != nil {
		return nil, fmt.Errorf("deriving state key: %w", err)
	}
	return crypto.NewStateIssuer(key, d.StateTTL), nil
}

func buildDecapHandlers(cfg config.Config, store storage.StateStore) (*server.DecapHandlers, error) {
	d := cfg.Decap

	provider, err := idp.NewProvider(*d)
	if err != nil {
		return nil, fmt.Errorf("failed to create identity provider: %w", err)
	}
	issuer, err := setupStateIssuer(d)
	if err != nil {
		return nil, err
	}

	configured := d.HasCredentials()
	if !configured {
		log.LogWarnWithFields("decap", "OAuth client credentials missing; sign-in requests will fail", nil)
	}

	return server.NewDecapHandlers(
		relay.NewAuthorizer(provider, issuer, configured),
		relay.NewExchanger(provider, issuer, store, d.ExchangeTimeout, configured),
		server.DecapOptions{
			Provider:        provider.Type(),
			ProviderHost:    provider.Host(),
			RedirectURI:     d.RedirectURI,
			StateTTL:        d.StateTTL,
			ExchangeTimeout: d.ExchangeTimeout,
			SignedState:     issuer.Signed(),
			Configured:      configured,
			Storage:         string(d.Storage),
			AllowedOrigins:  cfg.Server.AllowedOrigins,
		},
	), nil
}

func buildHTTPHandler(cfg config.Config, store storage.StateStore, limiters routeLimiters) (http.Handler, error) {
	mux := http.NewServeMux()

	route := func(path string) string {
		return config.DecapBasePath + path
	}

	mux.Handle("GET /health", server.NewHealthHandler(Version))

	if cfg.Decap != nil {
		decapHandlers, err := buildDecapHandlers(cfg, store)
		if err != nil {
			return nil, err
		}

		decapMiddleware := []server.MiddlewareFunc{
			server.NewNoStoreMiddleware(),
			server.NewCORSMiddleware(cfg.Server.AllowedOrigins),
			server.NewLoggerMiddleware("decap"),
			server.NewRecoverMiddleware("decap"),
		}
		limitedMiddleware := append([]server.MiddlewareFunc{limiters.decap.Middleware()}, decapMiddleware...)

		authorize := server.ChainMiddleware(http.HandlerFunc(decapHandlers.AuthorizeHandler), limitedMiddleware...)
		mux.Handle("GET "+route("/oauth/authorize"), authorize)
		mux.Handle("GET "+route("/auth"), authorize)
		mux.Handle("GET "+route("/callback"), server.ChainMiddleware(http.HandlerFunc(decapHandlers.CallbackHandler), decapMiddleware...))
		mux.Handle("POST "+route("/token"), server.ChainMiddleware(http.HandlerFunc(decapHandlers.TokenHandler), limitedMiddleware...))
		mux.Handle("OPTIONS "+route("/token"), server.ChainMiddleware(http.HandlerFunc(noContent), decapMiddleware...))
		mux.Handle("GET "+route("/health"), server.ChainMiddleware(http.HandlerFunc(decapHandlers.HealthHandler), decapMiddleware...))
		mux.Handle("GET "+route("/diag"), server.ChainMiddleware(http.HandlerFunc(decapHandlers.DiagHandler), decapMiddleware...))
		mux.Handle("GET "+route("/ping"), server.ChainMiddleware(http.HandlerFunc(decapHandlers.PingHandler), decapMiddleware...))
	}

	if cfg.Webhook != nil {
		dispatcher := webhook.NewBookingDispatcher()
		webhookHandlers := server.NewWebhookHandlers(string(cfg.Webhook.Secret), cfg.Webhook.MaxBodyBytes, dispatcher)

		if cfg.Webhook.Secret == "" {
			log.LogWarnWithFields("webhook", "Webhook secret missing; deliveries will be rejected", map[string]any{
				"path": cfg.Webhook.Path,
			})
		}

		mux.Handle("POST "+cfg.Webhook.Path, server.ChainMiddleware(
			http.HandlerFunc(webhookHandlers.ReceiveHandler),
			limiters.webhook.Middleware(),
			server.NewNoStoreMiddleware(),
			server.NewLoggerMiddleware("webhook"),
			server.NewRecoverMiddleware("webhook"),
		))
	}

	return mux, nil
}

func noContent(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
