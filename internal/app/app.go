package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/lexyo-server/internal/abuse"
	"github.com/vovakirdan/lexyo-server/internal/auth"
	"github.com/vovakirdan/lexyo-server/internal/captcha"
	"github.com/vovakirdan/lexyo-server/internal/config"
	"github.com/vovakirdan/lexyo-server/internal/core"
	applog "github.com/vovakirdan/lexyo-server/internal/log"
	"github.com/vovakirdan/lexyo-server/internal/store"
	"github.com/vovakirdan/lexyo-server/internal/store/jsonfs"
	"github.com/vovakirdan/lexyo-server/internal/store/sqlite"
	"github.com/vovakirdan/lexyo-server/internal/translate"
	transporthttp "github.com/vovakirdan/lexyo-server/internal/transport/http"
	"github.com/vovakirdan/lexyo-server/internal/vault"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             core.Hub
	cache           *sqlite.TranslationCache
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	// Private history is only persisted when a secret is configured.
	var cipher store.Cipher
	if cfg.PrivateSecret != "" {
		v, err := vault.New(cfg.PrivateSecret)
		if err != nil {
			return nil, fmt.Errorf("init vault: %w", err)
		}
		cipher = v
	} else {
		logger.Warn().Msg("private_secret not set, private history will not be persisted")
	}

	st, err := jsonfs.New(jsonfs.Options{
		Dir:           cfg.DataDir,
		HistoryLimit:  cfg.HistoryLimit,
		Cipher:        cipher,
		OfficialRooms: cfg.OfficialRooms,
	}, applog.Component(logger, "store"))
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("data_dir", cfg.DataDir).Msg("store initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}

	translator, err := a.buildTranslator(cfg)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	keys := auth.NewKeyVerifier(cfg.AdminKey, cfg.AdminKeyHash)
	if !keys.Configured() {
		logger.Warn().Msg("no admin key configured, /admin is disabled")
	}

	deps := core.Deps{
		Store:   st,
		Captcha: captcha.New(cfg.Captcha, cfg.CaptchaRequired(), applog.Component(logger, "captcha")),
		Keys:    keys,
		Limiter: abuse.NewLimiter(cfg.RateLimit.Window, cfg.RateLimit.MaxPerAddr, cfg.RateLimit.MaxPerIdentity),
		Guard:   abuse.NewGuard(cfg.AdminGuard.Window, cfg.AdminGuard.MaxAttempts, cfg.AdminGuard.Lockout),
		Logger:  applog.Component(logger, "hub"),
	}
	if translator != nil {
		deps.Translator = translator
	}

	hub := core.NewHub(core.Options{
		DefaultRoom:      cfg.DefaultRoom,
		OfficialRooms:    cfg.OfficialRooms,
		HistoryLimit:     cfg.HistoryLimit,
		RoomTTL:          cfg.RoomTTL,
		CleanupInterval:  cfg.CleanupInterval,
		MinMessageDelay:  cfg.MinMessageDelay,
		MaxMessageLength: cfg.MaxMessageLength,
		SaveDebounce:     cfg.SaveDebounce,
		TranslateHistory: cfg.TranslateHistory,
	}, deps)

	tokens := auth.NewService(&auth.JWTConfig{
		Secret: []byte(cfg.Operator.Secret),
		Issuer: cfg.Operator.Issuer,
		TTL:    cfg.Operator.TTL,
	})
	if !tokens.Enabled() {
		logger.Info().Msg("operator.secret not set, operator api disabled")
	}

	a.hub = hub
	a.server = transporthttp.NewServer(hub, tokens, cfg, applog.Component(logger, "http"))
	return a, nil
}

// buildTranslator returns nil when no backend is configured.
func (a *App) buildTranslator(cfg *config.Config) (*translate.Service, error) {
	tc := cfg.Translation
	if tc.APIKey == "" {
		a.log.Info().Msg("translation.api_key not set, messages are delivered untranslated")
		return nil, nil
	}

	backend, err := translate.NewOpenAIBackend(tc.APIKey, tc.Model, tc.Timeout)
	if err != nil {
		return nil, fmt.Errorf("init translation backend: %w", err)
	}

	var disk store.TranslationCache
	if tc.CachePath != "" {
		cache, err := sqlite.New(tc.CachePath, tc.MaxCacheEntries)
		if err != nil {
			return nil, fmt.Errorf("init translation cache: %w", err)
		}
		a.cache = cache
		disk = cache
		a.log.Info().Str("path", tc.CachePath).Msg("translation cache initialized")
	}

	svc, err := translate.New(backend, tc.CacheSize, disk, applog.Component(a.log, "translate"))
	if err != nil {
		return nil, fmt.Errorf("init translation: %w", err)
	}
	return svc, nil
}

// Run starts the hub and the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.hub.Run(gctx)
	})

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// cleanup closes the translation cache.
func (a *App) cleanup() {
	if a.cache == nil {
		return
	}
	if err := a.cache.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close translation cache")
	} else {
		a.log.Info().Msg("translation cache closed")
	}
}
