package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joseph-ayodele/claims-processor/internal/async"
	"github.com/joseph-ayodele/claims-processor/internal/export"
	repo "github.com/joseph-ayodele/claims-processor/internal/repository"
	svc "github.com/joseph-ayodele/claims-processor/internal/server"
)

func main() {
	cfg, err := svc.LoadConfig()
	if err != nil {
		_, _ = os.Stderr.WriteString("invalid configuration: " + err.Error() + "\n")
		os.Exit(2)
	}
	logger := svc.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close(logger)

	claimsRepo := repo.NewClaimRepository(db, logger)
	processor, extractor := svc.NewPipeline(cfg, logger)

	jobs := svc.NewJobTrackerWithTTL(cfg.Claims.JobTTL)
	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Claims.Workers),
		async.WithQueueSize(cfg.Claims.QueueSize),
		async.WithProcessTimeout(cfg.Claims.Timeout),
		async.WithStatusTTL(cfg.Claims.JobTTL),
		async.WithSink(claimsRepo),
		async.WithCallback(jobs.Record),
	)

	deps := svc.Deps{
		Processor: processor,
		Extractor: extractor,
		Claims:    claimsRepo,
		Queue:     queue,
		Jobs:      jobs,
		Exporter:  export.NewService(claimsRepo, logger),
		Ping: func(ctx context.Context) error {
			return svc.PingDB(ctx, db, logger, cfg.Database.DialTimeout)
		},
		Logger: logger,
	}

	// gRPC server
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	grpcServer, healthServer := svc.NewGRPCServer(deps)
	go func() {
		logger.Info("grpc.serve", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()

	// HTTP server
	httpServer := svc.NewServer(cfg.Server, svc.NewHandler(deps, cfg.Server.MaxUploadBytes))
	go func() {
		if err := httpServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve error", "error", err)
			stop()
		}
	}()

	logger.Info("claims-processor listening", "http", cfg.Server.HTTPAddr, "grpc", cfg.Server.GRPCAddr)
	<-ctx.Done()
	logger.Info("shutting down")

	healthServer.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	grpcServer.GracefulStop()
	queue.Shutdown(shutdownCtx)
}
