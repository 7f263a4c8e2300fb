package main

import (
	"context"
	"errors"
	"fleet-hub/auth"
	"fleet-hub/contract"
	"fleet-hub/domain/event"
	"fleet-hub/infrastructure/api"
	"fleet-hub/infrastructure/gateway"
	"fleet-hub/infrastructure/grpc/server"
	"fleet-hub/infrastructure/storage"
	"fleet-hub/infrastructure/ws"
	"fleet-hub/internal"
	"fleet-hub/observability"
	"fleet-hub/runtime"
	"fleet-hub/runtime/workers"
	"fleet-hub/services"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	env "github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const telemetryBufferSize = 1024

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Hub terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets every defer run.
func run() (int, error) {
	// 1. Configuration & Logger
	// .env is optional, real environment variables win.
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, err
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Agent inventory (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(ctx, config, logger))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	agents := storage.NewAgentRepository(db, logger)
	if config.AgentManifest != "" {
		n, err := storage.ImportManifest(config.AgentManifest, agents)
		if err != nil {
			return exitConfig, fmt.Errorf("agent manifest: %w", err)
		}
		logger.Info("Agent manifest imported", "path", config.AgentManifest, "agents", n)
	}

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available",
			"url", fmt.Sprintf("http://localhost:%d%s?prefix=%s", config.DebugPort, endpoint, storage.InspectPrefix))
		go database.StartDebugServer(db, config.DebugPort, endpoint, storage.InspectMapper)
	}

	// 3. Core
	telemetryChan := make(chan event.Event, telemetryBufferSize)

	gate := auth.NewGate(auth.GateConfig{
		Secret:         []byte(config.JWTSecret),
		Issuer:         config.JWTIssuer,
		Audience:       config.JWTAudience,
		ClockSkew:      config.JWTClockSkew,
		AllowAnonymous: config.AllowAnonymous,
	}, logger, telemetryChan)

	gw := buildGateway(config, logger, agents)
	fanout := workers.NewEventFanout(logger, config.FanoutConcurrency, config.SendTimeout, telemetryChan)
	router := runtime.NewGroupRouter(logger, fanout)
	sessions := runtime.NewSessionRegistry(logger, gate, router, gw, telemetryChan)
	hub := services.NewHubService(logger, router, gw)
	broadcaster := workers.NewBroadcaster(logger, gw, router, config.BroadcastInterval, telemetryChan)

	// 4. Observability
	counter := event.NewCounter()
	monitor := observability.NewHubMonitor(logger, observability.Sources{
		Sessions: sessions.Count,
		Groups:   router.GroupCount,
		Paused:   broadcaster.Paused,
		LastRun:  broadcaster.LastRun,
		Healthy:  broadcaster.Healthy,
		Counter:  counter,
	}, 3*config.MetricInterval)
	go monitor.Listen(ctx, config.MetricInterval)

	healthServer := server.NewHealthServer(logger)

	handlers := []event.Handler{
		event.NewLifecycleHandler(logger, counter),
		event.NewWorkerRestartedAfterPanicHandler(logger, counter),
		event.NewChannelCapacityHandler(logger, config.LowCapacityThreshold),
		monitor,
	}

	supervisor := workers.NewSupervisor(logger, telemetryChan, config.RestartInterval)
	supervisor.Add(
		broadcaster,
		workers.NewTelemetryWorker(logger, telemetryChan, handlers),
		workers.NewChannelCapacityWorker(logger,
			[]workers.NamedChannel{{Name: "telemetry", Channel: telemetryChan}},
			router.Sinks, telemetryChan, config.MetricInterval),
		workers.NewHealthWorker(logger, broadcaster, healthServer, config.MetricInterval),
	)
	go supervisor.Run(ctx)

	// 5. Servers
	errChan := make(chan error, 2)

	wsServer := ws.NewServer(ctx, logger, sessions, hub, config.ConnectionBufferSize)
	httpServer := &http.Server{
		Addr:    config.Addr(),
		Handler: api.NewHandler(logger, wsServer, gate, broadcaster, monitor).Engine(),
	}
	go func() {
		logger.Info("Hub listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http serve: %w", err)
		}
	}()

	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", config.Host, config.GRPCPort))
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on grpc port %d: %w", config.GRPCPort, err)
	}
	go func() {
		if err := healthServer.Serve(lis); err != nil {
			errChan <- err
		}
	}()

	// 6. Wait for signal or server failure
	code := exitOK
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case runErr = <-errChan:
		logger.Error("Server failure", "error", runErr)
		code = exitRuntime
	}

	// 7. Graceful shutdown
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", "error", err)
	}
	supervisor.Shutdown(config.BroadcastGrace)
	healthServer.Stop()
	logger.Info("Program stopped cleanly")

	return code, runErr
}

func buildBadgerOpts(ctx context.Context, config internal.Config, logger *slog.Logger) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}

func buildGateway(config internal.Config, logger *slog.Logger, agents contract.AgentRepository) contract.Gateway {
	if config.GatewayMode == internal.GatewayModeHTTP {
		logger.Info("Using runtime HTTP gateway", "url", config.GatewayURL)
		return gateway.NewHTTPGateway(logger, config.GatewayURL, config.GatewayToken, config.GatewayTimeout)
	}
	logger.Info("Using host gateway", "disk", config.DiskPath)
	return gateway.NewHostGateway(logger, gateway.GopsutilSampler(config.DiskPath), agents)
}
