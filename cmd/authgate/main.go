package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/authgate/internal/api"
	"github.com/Checker-Finance/authgate/internal/auth"
	"github.com/Checker-Finance/authgate/internal/credentials"
	"github.com/Checker-Finance/authgate/internal/events"
	"github.com/Checker-Finance/authgate/internal/pipeline"
	"github.com/Checker-Finance/authgate/internal/rate"
	"github.com/Checker-Finance/authgate/internal/transport"
	"github.com/Checker-Finance/authgate/pkg/config"
	"github.com/Checker-Finance/authgate/pkg/logger"
	"github.com/Checker-Finance/authgate/pkg/secrets"
	"github.com/Checker-Finance/authgate/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [authgate]...")
	logg.Infow("upstream configured", "base_url", cfg.UpstreamBaseURL)

	// --- Credential store ---
	var store credentials.Store
	switch cfg.CredentialBackend {
	case "redis":
		rs, err := credentials.NewRedisStore(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, cfg.CredentialKey, logger.L())
		if err != nil {
			logg.Fatalw("failed to init redis credential store", "error", err, "addr", cfg.RedisAddr)
		}
		defer rs.Close() //nolint:errcheck
		store = rs
		logg.Infow("credential store ready", "backend", "redis", "addr", cfg.RedisAddr)
	default:
		store = credentials.NewMemoryStore()
		logg.Infow("credential store ready", "backend", "memory")
	}

	// --- Auth lifecycle events (optional) ---
	var pub *events.Publisher
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			logg.Fatalw("failed to connect to NATS", "error", err, "url", utils.MaskDSN(cfg.NATSURL))
		}
		pub, err = events.New(logger.L(), nc, cfg.EventsSubject, cfg.ServiceName)
		if err != nil {
			logg.Fatalw("failed to init events publisher", "error", err)
		}
		defer pub.Close()
		logg.Infow("events publisher ready", "url", utils.MaskDSN(cfg.NATSURL), "subject", cfg.EventsSubject)
	} else {
		logg.Warn("NATS_URL not configured; auth lifecycle events disabled")
	}

	// --- Rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	})

	// --- Transport + refresher ---
	tr := transport.New(logger.L(), rateMgr, &http.Client{Timeout: cfg.HTTPTimeout})
	refresher := auth.NewRefresher(logger.L(), cfg.UpstreamBaseURL, cfg.LoginPath, cfg.RefreshPath, cfg.RefreshTimeout)

	// --- Refresh coordinator ---
	onRefreshed := func() {
		if pub != nil {
			if err := pub.TokenRefreshed(); err != nil {
				logg.Warnw("failed to publish auth.token_refreshed event", "error", err)
			}
		}
	}
	onAuthLost := func() {
		logg.Warn("authentication lost; credentials cleared")
		if pub != nil {
			if err := pub.AuthLost(); err != nil {
				logg.Warnw("failed to publish auth.lost event", "error", err)
			}
		}
	}
	coord := auth.NewCoordinator(logger.L(), store, refresher, onRefreshed, onAuthLost)

	// --- Pipeline + auth service ---
	client := pipeline.NewClient(logger.L(), cfg.UpstreamBaseURL, store, tr, coord)
	onLogin := func() {
		if pub != nil {
			if err := pub.LoginSucceeded(); err != nil {
				logg.Warnw("failed to publish auth.login event", "error", err)
			}
		}
	}
	authSvc := auth.NewService(logger.L(), store, refresher, onLogin)

	// --- Bootstrap login from AWS Secrets Manager (optional) ---
	if cfg.BootstrapSecret != "" {
		secretCache := secrets.NewCache[secrets.LoginCredentials](cfg.SecretCacheTTL)
		stopCleaner := make(chan struct{})
		go secretCache.StartCleaner(cfg.CleanupFreq, stopCleaner)
		defer close(stopCleaner)

		awsProvider, err := secrets.NewAWSProvider(cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}

		creds, ok := secretCache.Get(cfg.BootstrapSecret)
		if !ok {
			creds, err = secrets.ResolveLogin(ctx, awsProvider, cfg.BootstrapSecret)
			if err != nil {
				logg.Fatalw("failed to resolve bootstrap credentials", "error", err, "secret", cfg.BootstrapSecret)
			}
			secretCache.Put(cfg.BootstrapSecret, creds)
		}

		if err := authSvc.Login(ctx, creds.Username, creds.Password); err != nil {
			logg.Warnw("bootstrap login failed; waiting for explicit login", "error", err)
		} else {
			logg.Infow("bootstrap login succeeded", "user", creds.Username)
		}
	}

	// --- Fiber HTTP server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})
	api.RegisterRoutes(app, api.NewHandler(logger.L(), authSvc, client))

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	logg.Infow("[authgate] running",
		"env", cfg.Env,
		"upstream", cfg.UpstreamBaseURL,
		"credential_backend", cfg.CredentialBackend,
	)

	<-ctx.Done()
	logg.Info("shutting down [authgate]...")

	if err := app.Shutdown(); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
}
