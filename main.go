package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	log "github.com/sirupsen/logrus"

	"github.com/wynnblevins/kanban/api"
	"github.com/wynnblevins/kanban/config"
	"github.com/wynnblevins/kanban/session"
	"github.com/wynnblevins/kanban/storage"
	"github.com/wynnblevins/kanban/stream"
)

const (
	cleanupInterval = time.Minute
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := log.StandardLogger()
	cfg.ConfigureLogger(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal(err)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *log.Logger) error {
	auth, err := newAuth(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := api.NewMetrics(reg)

	broker := stream.NewBroker()
	deps := api.Deps{Auth: auth, Updates: broker, Metrics: metrics, Log: logger}
	var fanoutOpts []session.FanoutOption

	if rc := storage.NewRedisClient(cfg.RedisConnectionString); rc != nil {
		defer rc.Close()
		cache := storage.NewCache(rc, cfg.BoardCacheTTL)
		deps.Cache = cache
		deps.Deduper = api.NewRedisDeduper(rc, cfg.DeduperTTL)
		fanoutOpts = append(fanoutOpts, session.WithRemote(storage.NewPublisher(rc, cfg.UpdatesChannel, cache), cfg.PublishTimeout))
		go stream.SubscribeUpdates(ctx, logger, rc, cfg.UpdatesChannel, broker.Broadcast)
	} else {
		logger.Warn("REDIS_CONNECTION_STRING not set, boards are served by this instance only")
	}

	if cfg.StorageConnectionString != "" {
		templates, err := storage.NewTemplateStore(cfg.StorageConnectionString, cfg.TemplatesTable)
		if err != nil {
			return fmt.Errorf("templates: %w", err)
		}
		deps.Templates = templates

		queue, err := storage.NewActivityQueue(cfg.StorageConnectionString, cfg.ActivityQueue)
		if err != nil {
			return fmt.Errorf("activity queue: %w", err)
		}
		dispatcher := storage.NewDispatcher(queue, storage.DispatcherOptions{
			Workers:        cfg.PublishWorkers,
			Buffer:         cfg.PublishBuffer,
			Timeout:        cfg.PublishTimeout,
			HandoffTimeout: cfg.PublishHandoffTimeout,
		}, logger)
		defer dispatcher.Close()
		fanoutOpts = append(fanoutOpts, session.WithActivity(dispatcher))
	}

	fanout := session.NewFanout(broker, logger, fanoutOpts...)
	boards := session.NewRegistry(session.MultiPublisher{fanout, metrics}, session.Options{
		IDStrategy:         cfg.IDStrategy,
		OrphanPolicy:       cfg.OrphanPolicy,
		ActivationDistance: cfg.ActivationDistance,
	}, logger)
	if cfg.SessionIdleTTL > 0 {
		boards.StartCleanup(ctx, cleanupInterval, cfg.SessionIdleTTL)
	}
	deps.Boards = boards

	e := echo.New()
	e.HideBanner = true
	e.JSONSerializer = api.JSONSerializer{}
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, echo.HeaderContentEncoding},
	}))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "kanban",
		Registerer: reg,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/metrics" || c.Path() == "/healthz"
		},
	}))
	e.GET("/metrics", echoprometheus.NewHandlerWithConfig(echoprometheus.HandlerConfig{Gatherer: reg}))
	api.Register(e, deps)

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Addr())
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

func newAuth(cfg *config.Config, logger *log.Logger) (*api.Auth, error) {
	switch {
	case cfg.LocalAuthMode:
		logger.Warn("local auth mode: accepting HS256 tokens signed with the shared secret")
		return api.NewAuth(nil, "", "", api.WithSharedSecret([]byte(cfg.LocalAuthSharedSecret))), nil
	case cfg.Auth0TestMode:
		return api.NewAuth(nil, "", "", api.WithSharedSecret([]byte(cfg.TestJWTSecret))), nil
	}

	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", cfg.Auth0Domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval: cfg.JWKSCacheTTL,
		RefreshErrorHandler: func(err error) {
			logger.Errorf("jwks refresh: %v", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("jwks: %w", err)
	}
	return api.NewAuth(jwks, cfg.Auth0Audience, "https://"+cfg.Auth0Domain+"/", api.WithKeyCacheTTL(cfg.JWKSCacheTTL)), nil
}
