package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"aercd/internal/ratelimit"
	"aercd/internal/util"
	"aercd/pkg/ai"
	"aercd/pkg/auth"
	"aercd/pkg/domain"
	"aercd/pkg/registry"
	"aercd/services/site/internal/app"
	"aercd/services/site/internal/chat"
	"aercd/services/site/internal/config"
	"aercd/services/site/internal/server"
	"aercd/services/site/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Fatalf("failed to load .env: %v", err)
	}
	cfg, err := config.Load(os.Getenv("SITE_CONFIG"))
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)

	reg := registry.Default()
	if cfg.RegistryFile != "" {
		if reg, err = registry.LoadFile(cfg.RegistryFile); err != nil {
			log.Fatalf("failed to load registry: %v", err)
		}
	}
	seed := store.DefaultSeed()
	if cfg.SeedFile != "" {
		if seed, err = store.LoadSeedFile(cfg.SeedFile); err != nil {
			log.Fatalf("failed to load seed: %v", err)
		}
	}

	sessions, err := newSessionStore(cfg)
	if err != nil {
		log.Fatalf("failed to init sessions: %v", err)
	}

	accounts := cfg.Accounts
	if len(accounts) == 0 {
		logger.Warn("no accounts configured, using the demo administrator")
		accounts = auth.DefaultAccounts()
	}
	authenticator, err := auth.NewStaticAuthenticator(accounts)
	if err != nil {
		log.Fatalf("failed to init accounts: %v", err)
	}

	bridge, err := newBridge(cfg, reg)
	if err != nil {
		log.Fatalf("failed to init chat: %v", err)
	}

	appCore, err := app.New(app.Config{
		Store:         store.NewMemoryStore(seed.Options()...),
		Sessions:      sessions,
		Authenticator: authenticator,
		Registry:      reg,
		Bridge:        bridge,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}
	if issues, err := appCore.CatalogIssues(adminUser(authenticator)); err == nil && len(issues) > 0 {
		logger.Warn("catalog subjects without a matching program", "count", len(issues))
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		log.Fatalf("failed to parse trusted proxies: %v", err)
	}
	loginLimiter, err := newLimiter(cfg, "aercd:ratelimit:login", cfg.LoginRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init login limiter: %v", err)
	}
	chatLimiter, err := newLimiter(cfg, "aercd:ratelimit:chat", cfg.ChatRateLimitPerMinute)
	if err != nil {
		log.Fatalf("failed to init chat limiter: %v", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		LoginLimiter:   loginLimiter,
		ChatLimiter:    chatLimiter,
		TrustedProxies: trusted,
		CORSOrigins:    cfg.CORSOrigins,
		CookieSecure:   cfg.CookieSecure,
		SessionTTL:     cfg.SessionTTLDuration(),
	})
	if err != nil {
		log.Fatalf("failed to init server: %v", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.ChatTimeoutDuration() + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr, "sessions", cfg.SessionBackend, "chat_online", appCore.ChatOnline())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

func newSessionStore(cfg config.FileConfig) (store.SessionStore, error) {
	ttl := cfg.SessionTTLDuration()
	switch cfg.SessionBackend {
	case config.SessionRedis:
		return store.NewRedisSessionStore(cfg.RedisAddr, cfg.RedisPassword, ttl), nil
	case config.SessionJWT:
		var revoker store.TokenRevoker = store.NewMemoryTokenRevoker()
		if cfg.RedisAddr != "" {
			revoker = store.NewRedisTokenRevoker(cfg.RedisAddr, cfg.RedisPassword)
		}
		return store.NewJWTSessionStore(cfg.SessionSecret, ttl, revoker)
	default:
		return store.NewMemorySessionStore(ttl), nil
	}
}

func newBridge(cfg config.FileConfig, reg *registry.Registry) (*chat.Bridge, error) {
	generator, err := ai.NewGenerator(ai.ProviderConfig{
		Provider: cfg.GenerationProvider,
		Model:    cfg.GenerationModel,
		APIKey:   cfg.GeminiAPIKey,
		BaseURL:  cfg.GenerationBaseURL,
	})
	switch {
	case errors.Is(err, ai.ErrNoCredential):
		slog.Warn("no generation credential configured, chat runs offline")
		generator = nil
	case err != nil:
		return nil, err
	}
	var transcripts chat.TranscriptStore
	if cfg.RedisAddr != "" {
		transcripts = chat.NewRedisTranscripts(cfg.RedisAddr, cfg.RedisPassword, cfg.SessionTTLDuration())
	}
	return chat.New(chat.Config{
		Generator:    generator,
		Registry:     reg,
		Transcripts:  transcripts,
		HistoryLimit: chatHistoryLimit(cfg.ChatHistoryLimit),
		Timeout:      cfg.ChatTimeoutDuration(),
	})
}

// chatHistoryLimit maps the configured number of prior messages to the
// bridge setting, where 0 selects the default and a negative value sends none.
func chatHistoryLimit(configured int) int {
	if configured <= 0 {
		return -1
	}
	return configured
}

// newLimiter returns nil when limit is zero, which disables limiting.
func newLimiter(cfg config.FileConfig, prefix string, limit int) (ratelimit.Limiter, error) {
	if limit <= 0 {
		return nil, nil
	}
	if cfg.RedisAddr != "" {
		return ratelimit.NewRedisFixedWindow(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
	}
	return ratelimit.NewMemoryFixedWindow(limit, time.Minute)
}

func adminUser(a *auth.StaticAuthenticator) domain.User {
	for _, u := range a.Users() {
		if u.IsAdmin() {
			return u
		}
	}
	return domain.User{}
}
