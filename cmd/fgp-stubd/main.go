// Command fgp-stubd is a minimal daemon for checking clients against a real socket. It answers
// health, echo and stub.methods.
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

	"fgp-rpc/config"
	"fgp-rpc/message"
	"fgp-rpc/middleware"
	"fgp-rpc/registry"
	"fgp-rpc/server"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config.yaml (default <home>/.fgp/config.yaml)")
	service := flag.String("service", "", "service name to serve (default fly)")
	socket := flag.String("socket", "", "explicit socket path, overrides the conventional one")
	metricsAddr := flag.String("metrics-addr", "", "serve prometheus metrics on this address (optional)")
	rps := flag.Float64("rate", 0, "requests per second allowed, 0 disables limiting")
	handlerTimeout := flag.Duration("handler-timeout", 30*time.Second, "upper bound for one request")
	etcd := flag.String("etcd", "", "comma-separated etcd endpoints to advertise the socket on (optional)")
	flag.Parse()
	if *showVersion {
		fmt.Printf("fgp-stubd version=%s\n", version)
		return
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(1)
	}
	if *service != "" {
		cfg.Service = *service
	}
	if *socket != "" {
		cfg.Socket = *socket
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, cfg, *metricsAddr, *rps, *handlerTimeout, *etcd); err != nil {
		logger.Error("stub daemon failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg config.Client, metricsAddr string, rps float64, timeout time.Duration, etcd string) error {
	svr := server.NewServer(server.WithLogger(logger), server.WithName(cfg.Service), server.WithVersion(version))
	svr.Use(middleware.Logging(logger))

	promReg := prometheus.NewRegistry()
	collectors, err := middleware.NewCollectors(promReg, "fgp_stubd")
	if err != nil {
		return err
	}
	svr.Use(middleware.Metrics(collectors))
	if rps > 0 {
		svr.Use(middleware.RateLimit(rps, int(rps)+1))
	}
	if timeout > 0 {
		svr.Use(middleware.Timeout(timeout))
	}

	started := time.Now()
	svr.Handle(message.HealthMethod, func(ctx context.Context, req *message.Request) (*message.Response, error) {
		return message.Success(req.ID, map[string]any{
			"status":         "healthy",
			"version":        version,
			"uptime_seconds": int64(time.Since(started).Seconds()),
		})
	})
	svr.Handle("echo", func(ctx context.Context, req *message.Request) (*message.Response, error) {
		return message.Success(req.ID, req.Params)
	})
	svr.Handle("stub.methods", func(ctx context.Context, req *message.Request) (*message.Response, error) {
		return message.Success(req.ID, map[string]any{"methods": svr.Methods()})
	})

	var reg registry.Registry = registry.NewDirRegistry(cfg.Home, cfg.App)
	if etcd != "" {
		etcdReg, err := registry.NewEtcdRegistry(strings.Split(etcd, ","))
		if err != nil {
			return err
		}
		defer etcdReg.Close()
		reg = etcdReg
	}

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
		metricsSrv := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		defer metricsSrv.Close()
	}

	errc := make(chan error, 1)
	go func() { errc <- svr.Serve(cfg.SocketPath(), reg) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	if err := svr.Shutdown(5 * time.Second); err != nil {
		return err
	}
	return <-errc
}
