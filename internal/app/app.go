package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/campuschat/internal/auth"
	"github.com/vovakirdan/campuschat/internal/config"
	"github.com/vovakirdan/campuschat/internal/core"
	"github.com/vovakirdan/campuschat/internal/policy"
	"github.com/vovakirdan/campuschat/internal/store"
	redisstore "github.com/vovakirdan/campuschat/internal/store/redis"
	"github.com/vovakirdan/campuschat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/campuschat/internal/transport/http"
)

const tokenTTL = 24 * time.Hour

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	redis           goredis.UniversalClient
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	var sequencer core.Sequencer = st
	if cfg.Sequencer == config.SequencerRedis {
		client, err := connectRedis(cfg.RedisAddr)
		if err != nil {
			a.cleanup()
			return nil, err
		}
		a.redis = client
		sequencer = redisstore.NewSequencer(client, cfg.RedisPrefix, st)
		logger.Info().Str("redis_addr", cfg.RedisAddr).Msg("using redis sequencer")
	}

	checker, err := policy.NewChecker(cfg.AuthzMode, st)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init authorization: %w", err)
	}

	authService := auth.NewService(NewJWTConfig(cfg))

	a.hub = core.NewHub(core.Deps{
		Authenticator: authService,
		Authorizer:    checker,
		Messages:      st,
		Sequencer:     sequencer,
		Logger:        logger,
	}, HubOptions(cfg))
	a.server = transporthttp.NewServer(a.hub, authService, cfg, logger)

	return a, nil
}

// NewJWTConfig derives the token settings from configuration.
func NewJWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      tokenTTL,
	}
}

// HubOptions maps configuration onto hub tuning.
func HubOptions(cfg *config.Config) core.Options {
	return core.Options{
		HistoryLimit:       cfg.HistoryLimit,
		MaxHistoryLimit:    cfg.MaxHistoryLimit,
		MaxBodyLength:      cfg.MaxBodyLength,
		TypingTTL:          cfg.TypingTTL,
		SweepInterval:      cfg.SweepInterval,
		AuthzTimeout:       cfg.AuthzTimeout,
		PersistMaxAttempts: cfg.PersistMaxAttempts,
		PersistBackoff:     cfg.PersistBackoff,
		SendBuffer:         cfg.SendBuffer,
	}
}

func connectRedis(addr string) (goredis.UniversalClient, error) {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return client, nil
}

// Run starts the hub and the HTTP server and blocks until context
// cancellation or a fatal error.
func (a *App) Run(ctx context.Context) error {
	defer a.cleanup()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.hub.Run(gctx)
		return nil
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
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
