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

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/medq/medq/internal/board"
	"github.com/medq/medq/internal/config"
	"github.com/medq/medq/internal/domain/queue"
	"github.com/medq/medq/internal/platform/auth"
	"github.com/medq/medq/internal/platform/events"
	"github.com/medq/medq/internal/platform/metrics"
	"github.com/medq/medq/internal/platform/middleware"
	"github.com/medq/medq/internal/platform/notification"
	"github.com/medq/medq/internal/platform/proxy"
	"github.com/medq/medq/internal/platform/websocket"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

const notificationsUpdated = "notifications.updated"

func main() {
	rootCmd := &cobra.Command{
		Use:   "medq-server",
		Short: "Hospital walk-in queue server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(boardCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the queue API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func boardCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Show a live queue board in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			interval, _ := cmd.Flags().GetDuration("interval")
			token, _ := cmd.Flags().GetString("token")
			if token == "" {
				token = os.Getenv("MEDQ_TOKEN")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return board.Run(ctx, board.NewHTTPFetcher(url, token, 10*time.Second), interval)
		},
	}
	cmd.Flags().String("url", "http://localhost:8000", "Base URL of the medq server")
	cmd.Flags().Duration("interval", 5*time.Second, "Refresh interval")
	cmd.Flags().String("token", "", "Bearer token (defaults to $MEDQ_TOKEN)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the server version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "medq-server %s\n", version)
		},
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	logger := zerolog.New(os.Stdout)
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// app holds the wired server and the resources that need closing.
type app struct {
	echo    *echo.Echo
	session *queue.Session
	hub     *websocket.Hub
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg *prometheus.Registry) (*app, error) {
	a := &app{}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	a.echo = e

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.DevRoleHeader},
	}))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Auth middleware
	if cfg.IsDev() {
		logger.Warn().Msg("development mode: requests run as dev-user without token verification")
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			SigningKey: []byte(cfg.AuthSecret),
			Skipper:    auth.AuthSkipper,
		}))
	}

	e.Use(middleware.Audit(logger))

	// Metrics
	queueMetrics := metrics.NewQueueMetrics(reg)
	e.GET("/metrics", metrics.Handler(reg))

	// WebSocket hub
	hub := websocket.NewHub(logger)
	a.hub = hub
	websocket.NewHandler(hub, cfg.CORSOrigins...).RegisterRoutes(e.Group(""))

	// Notifications
	store := notification.NewStore()
	store.Subscribe(func(list []notification.Notification) {
		ev, err := events.NewEvent(events.TopicNotifications, notificationsUpdated, list)
		if err != nil {
			logger.Error().Err(err).Msg("failed to build notifications event")
			return
		}
		if err := hub.Publish(context.Background(), ev); err != nil {
			logger.Warn().Err(err).Msg("notifications push failed")
		}
	})

	// Event fan-out
	publishers := events.Multi{hub}
	if cfg.RedisEnabled() {
		client, err := events.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		publishers = append(publishers, events.NewRedisPublisher(client, events.DefaultRedisChannel))
		logger.Info().Str("channel", events.DefaultRedisChannel).Msg("publishing queue events to redis")
	}
	if cfg.PubNubEnabled() {
		publishers = append(publishers, events.NewPubNubPublisher(events.PubNubConfig{
			PublishKey:   cfg.PubNubPublishKey,
			SubscribeKey: cfg.PubNubSubscribeKey,
			SecretKey:    cfg.PubNubSecretKey,
			UserID:       cfg.PubNubUserID,
		}))
		logger.Info().Msg("publishing patient events to pubnub")
	}

	// Queue
	a.session = queue.NewSession(queue.NewEngine(), store,
		queue.WithPublisher(publishers),
		queue.WithRecorder(queueMetrics),
		queue.WithLogger(logger.With().Str("component", "queue").Logger()),
	)

	// API groups
	rateLimitCfg := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 && cfg.RateLimitBurst > 0 {
		rateLimitCfg.RequestsPerSecond = cfg.RateLimitRPS
		rateLimitCfg.BurstSize = cfg.RateLimitBurst
	}
	apiV1 := e.Group("/api/v1", middleware.RateLimit(rateLimitCfg))
	queue.NewHandler(a.session).RegisterRoutes(apiV1)
	notification.NewHandler(store).RegisterRoutes(apiV1)

	// PHP backend
	if cfg.PHPAPIURL != "" {
		p, err := proxy.New(proxy.Config{
			Target:  cfg.PHPAPIURL,
			Timeout: cfg.RequestTimeout,
			Logger:  logger,
		})
		if err != nil {
			a.Close()
			return nil, err
		}
		p.RegisterRoutes(e)
	}

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status":            "ok",
			"version":           version,
			"websocket_clients": hub.ClientCount(),
		})
	})

	return a, nil
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Logger
	logger := newLogger(cfg)

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(ctx, cfg, logger, reg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer a.Close()

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
