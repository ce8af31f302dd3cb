// msgstore server
// Serves the message API over HTTP and gRPC, with metrics on a side port
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nainya/msgstore/internal/config"
	"github.com/nainya/msgstore/internal/logger"
	"github.com/nainya/msgstore/internal/metrics"
	"github.com/nainya/msgstore/internal/server"
	"github.com/nainya/msgstore/pkg/store"
)

var (
	configPath  = flag.String("config", "", "YAML configuration file")
	port        = flag.Int("port", 0, "HTTP API port (overrides config)")
	grpcPort    = flag.Int("grpc-port", -1, "gRPC port, 0 disables (overrides config)")
	metricsPort = flag.Int("metrics-port", -1, "Metrics port, 0 disables (overrides config)")
	dbPath      = flag.String("db", "", "Database file path (overrides config)")
)

func main() {
	flag.Parse()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "msgstore: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath, os.Getenv)
	if err != nil {
		return err
	}
	applyFlags(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger.InitGlobalLogger(cfg.LoggerConfig())
	log := logger.GetGlobalLogger()
	log.LogServerStart(cfg.Server.HTTPPort, cfg.Server.GRPCPort, cfg.Database.Path)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.Close()
	log.DbLogger("open").Info("Database opened").Str("path", st.Path()).Send()

	m := metrics.NewMetrics(prometheus.DefaultRegisterer)
	srv := server.NewServer(st, m, log)
	if n, err := st.Count(context.Background()); err == nil {
		m.UpdateDbStats(n)
	}

	// Bind the gRPC port before anything starts serving so a busy port
	// fails startup cleanly.
	grpcListener, err := listenGRPC(cfg.Server.GRPCPort)
	if err != nil {
		return err
	}

	errCh := make(chan error, 3)

	httpServer := server.NewHTTPServer(cfg.Server.HTTPPort, srv.Handler(), log)
	go func() { errCh <- httpServer.Start() }()

	var obsServer *server.ObservabilityServer
	if cfg.Server.MetricsPort != 0 {
		obsServer = server.NewObservabilityServer(cfg.Server.MetricsPort, prometheus.DefaultGatherer, srv.Ready, log)
		go func() { errCh <- obsServer.Start() }()
	}

	var grpcServer interface{ GracefulStop() }
	if grpcListener != nil {
		gs := srv.NewGRPCServer()
		grpcServer = gs
		go func() {
			log.Info("Starting gRPC server").Str("addr", grpcListener.Addr().String()).Send()
			errCh <- gs.Serve(grpcListener)
		}()
	}

	log.LogServerReady(cfg.Server.HTTPPort, cfg.Server.GRPCPort)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var serveErr error
	select {
	case sig := <-sigChan:
		log.Info("Received signal").Str("signal", sig.String()).Send()
	case serveErr = <-errCh:
		log.Error("Server stopped unexpectedly").Err(serveErr).Send()
	}

	log.LogServerShutdown()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	if obsServer != nil {
		if err := obsServer.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(append(errs, serveErr)...)
}

// listenGRPC binds the gRPC port. Port 0 disables gRPC and returns a nil
// listener.
func listenGRPC(port int) (net.Listener, error) {
	if port == 0 {
		return nil, nil
	}
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen grpc: %w", err)
	}
	return lis, nil
}

// applyFlags lets command-line flags override file and environment settings
func applyFlags(cfg *config.Config) {
	if *port > 0 {
		cfg.Server.HTTPPort = *port
	}
	if *grpcPort >= 0 {
		cfg.Server.GRPCPort = *grpcPort
	}
	if *metricsPort >= 0 {
		cfg.Server.MetricsPort = *metricsPort
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
}
