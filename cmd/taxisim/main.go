// Command taxisim serves a simulated taxi location feed and route service so
// taxitrack can run without the real backends.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"taxitrack/internal/location"
	"taxitrack/internal/taxisim"
)

var (
	feedAddr  = flag.String("feed_addr", ":7114", "location feed listen address")
	routeAddr = flag.String("route_addr", ":8081", "route service HTTP listen address")
	grpcAddr  = flag.String("grpc_addr", ":8082", "route service gRPC listen address (empty disables)")
	redisAddr = flag.String("redis_addr", "", "redis address for shared idempotency keys (empty uses memory)")
	redisDB   = flag.Int("redis_db", 0, "redis database")
	keyTTL    = flag.Duration("key_ttl", 24*time.Hour, "idempotency key lifetime")
	sentinel  = flag.Float64("sentinel", location.DefaultSentinel, "marker reported for arrived trips")
)

// Idle cabs around downtown San Jose.
var idleFleet = []location.Position{
	{Key: "cab-1", Coordinate: [3]float64{-121.8863, 37.3382, 0}},
	{Key: "cab-2", Coordinate: [3]float64{-121.8947, 37.3297, 0}},
	{Key: "cab-3", Coordinate: [3]float64{-121.8810, 37.3352, 0}},
}

func main() {
	flag.Parse()
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store taxisim.Store = taxisim.NewMemoryStore(*keyTTL)
	if *redisAddr != "" {
		rs, err := taxisim.NewRedisStore(ctx, *redisAddr, *redisDB, *keyTTL)
		if err != nil {
			logger.Error("Redis init failed", "error", err)
			os.Exit(1)
		}
		defer rs.Close()
		store = rs
		logger.Info("using redis idempotency store", "addr", *redisAddr)
	}

	sim := taxisim.New(store, idleFleet, *sentinel, logger)
	h := sim.Handler()

	servers := []*http.Server{
		{Addr: *feedAddr, Handler: h, ReadHeaderTimeout: 5 * time.Second},
	}
	if *routeAddr != *feedAddr {
		servers = append(servers, &http.Server{Addr: *routeAddr, Handler: h, ReadHeaderTimeout: 5 * time.Second})
	}
	for _, srv := range servers {
		go func(srv *http.Server) {
			logger.Info("taxisim listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "addr", srv.Addr, "error", err)
				stop()
			}
		}(srv)
	}

	if *grpcAddr != "" {
		lis, err := net.Listen("tcp", *grpcAddr)
		if err != nil {
			logger.Error("grpc listen failed", "addr", *grpcAddr, "error", err)
			os.Exit(1)
		}
		gs := sim.NewGRPCServer()
		go func() {
			logger.Info("taxisim gRPC listening", "addr", *grpcAddr)
			if err := gs.Serve(lis); err != nil {
				logger.Error("grpc server failed", "error", err)
			}
		}()
		defer gs.GracefulStop()
	}

	<-ctx.Done()
	logger.Info("shutdown initiated")
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(sctx)
	}
}
