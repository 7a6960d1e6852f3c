package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taxitrack/internal/config"
	"taxitrack/internal/engine"
	"taxitrack/internal/location"
	"taxitrack/internal/route"
	"taxitrack/internal/viewmodel"
)

var (
	configPath      = flag.String("config", "", "YAML config file")
	httpPort        = flag.Int("port", 0, "HTTP port (overrides config)")
	shutdownTimeout = flag.Duration("shutdown_timeout", 10*time.Second, "HTTP server shutdown timeout")
	locationsURL    = flag.String("locations_url", "", "taxi location feed base URL (overrides config)")
	routeURL        = flag.String("route_url", "", "route service base URL (overrides config)")
	routeTransport  = flag.String("route_transport", "", "route service transport: http or grpc (overrides config)")
	feedFormat      = flag.String("feed_format", "", "feed format: json, gtfsrt, siri-json, siri-xml (overrides config)")
	logLevel        = flag.String("log_level", "", "log level: debug, info, warn, error (overrides config)")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("taxitrack exited", "err", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}
	if *httpPort != 0 {
		cfg.HTTPPort = *httpPort
	}
	if *locationsURL != "" {
		cfg.LocationsURL = *locationsURL
	}
	if *routeURL != "" {
		cfg.RouteURL = *routeURL
	}
	if *routeTransport != "" {
		cfg.RouteTransport = *routeTransport
	}
	if *feedFormat != "" {
		cfg.FeedFormat = *feedFormat
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	return cfg, cfg.Validate()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func newSubmitter(cfg config.Config) (route.Submitter, func() error, error) {
	if cfg.RouteTransport == "grpc" {
		c, err := route.NewGRPCClient(cfg.GRPCAddr, cfg.SubmitTimeout)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
	return route.NewHTTPClient(cfg.RouteURL, cfg.SubmitTimeout, nil), func() error { return nil }, nil
}

func run(cfg config.Config, logger *slog.Logger) error {
	format, err := location.ParseFormat(cfg.FeedFormat)
	if err != nil {
		return err
	}
	feed := location.NewClient(cfg.LocationsURL, cfg.FetchTimeout,
		location.WithFormat(format), location.WithSentinel(cfg.Sentinel))

	submitter, closeSubmitter, err := newSubmitter(cfg)
	if err != nil {
		return fmt.Errorf("route client: %w", err)
	}
	defer closeSubmitter()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	hub := newHub(ctx, cfg.SubmitTimeout, logger)
	eng := engine.New(feed, submitter, viewmodel.NewPolicy(cfg.Seed(), cfg.Sentinel), hub, engine.Options{
		Interval:     cfg.PollInterval,
		FetchTimeout: cfg.FetchTimeout,
		Logger:       logger,
	})
	hub.engine = eng

	mux := http.NewServeMux()
	registerRoutes(mux, hub, eng, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", fmt.Sprintf("http://localhost:%d/", cfg.HTTPPort),
			"locations_url", cfg.LocationsURL, "route_transport", cfg.RouteTransport, "feed_format", cfg.FeedFormat)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	done := make(chan struct{})
	go func() {
		eng.Run(ctx)
		close(done)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown initiated")
	case err := <-errc:
		stop()
		<-done
		return fmt.Errorf("http server: %w", err)
	}

	sctx, cancel := context.WithTimeout(context.Background(), *shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Warn("HTTP server shutdown error", "err", err)
	} else {
		logger.Info("HTTP server shut down successfully")
	}
	<-done
	return nil
}
