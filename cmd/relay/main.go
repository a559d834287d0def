package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vroom/internal/core/services"
	"vroom/internal/infrastructure/middleware"
	"vroom/internal/infrastructure/monitoring"
	repositories "vroom/internal/infrastructure/repositories"
	signalws "vroom/internal/infrastructure/signal"
	"vroom/pkg/config"
	"vroom/pkg/logger"
	"vroom/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/vroom/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		cfg = config.DefaultConfig()
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(ctx)
	}()

	repoFactory, err := repositories.NewFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	registry := repoFactory.CreateRoomRegistry()
	roomService := services.NewRoomService(registry, log)
	shareAllocator := services.NewShareAllocator(cfg.Rooms.ScreenShareCap, log)

	collector := monitoring.NewCollector(prometheus.DefaultRegisterer)

	relay := signalws.NewServer(roomService, shareAllocator, collector, signalws.Options{
		PingInterval:      cfg.Relay.PingInterval,
		PongTimeout:       cfg.Relay.PongTimeout,
		ReadTimeout:       cfg.Relay.ReadTimeout,
		WriteTimeout:      cfg.Relay.WriteTimeout,
		RateLimitEnabled:  cfg.RateLimiting.Enabled,
		MessagesPerSecond: cfg.RateLimiting.MessagesPerSecond,
		Burst:             cfg.RateLimiting.Burst,
	}, log)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.NewConnectionRateLimitMiddleware(cfg))

	router.GET("/ws", func(c *gin.Context) {
		relay.HandleWebSocket(c.Writer, c.Request)
	})

	health := monitoring.NewHealthChecker(
		func() (int, int) {
			rooms, _ := roomService.RoomCount(context.Background())
			return relay.ConnectionCount(), rooms
		},
		repoFactory.HealthCheck,
	)
	router.GET("/healthz", health.Handler())

	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// The in-browser client bundle, when one is deployed alongside the relay.
	if cfg.Relay.StaticDir != "" {
		if _, err := os.Stat(cfg.Relay.StaticDir); err == nil {
			router.Static("/app", cfg.Relay.StaticDir)
			router.GET("/", func(c *gin.Context) {
				c.Redirect(http.StatusFound, "/app/")
			})
			log.Infow("serving static bundle", "dir", cfg.Relay.StaticDir)
		}
	}

	srv := &http.Server{
		Addr:    cfg.Relay.Address,
		Handler: router,
		// Read timeouts stay off the server: websocket connections are
		// long-lived and keepalive is handled by ping/pong.
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting signaling relay on %s", cfg.Relay.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down relay...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Relay.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if err := repoFactory.Close(); err != nil {
		log.Errorw("Error closing repository factory", "error", err)
	}

	log.Info("Relay stopped")
}
