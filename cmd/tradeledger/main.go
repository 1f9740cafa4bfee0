package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/tradewire/tradewire/internal/config"
	"github.com/tradewire/tradewire/internal/dropcopy"
	"github.com/tradewire/tradewire/internal/logging"
	"github.com/tradewire/tradewire/internal/observability"
)

func main() {
	cfg := config.Load("tradeledger")

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.DropCopyBrokers == "" {
		logger.Fatal("DROPCOPY_BROKERS must be set for the trade ledger")
	}
	brokers := strings.Split(cfg.DropCopyBrokers, ",")
	for i := range brokers {
		brokers[i] = strings.TrimSpace(brokers[i])
	}

	logger.Info("starting trade ledger",
		zap.Strings("brokers", brokers),
		zap.String("topic", cfg.DropCopyTopic),
		zap.String("db_path", cfg.LedgerDBPath),
	)

	ledger, err := dropcopy.OpenLedger(cfg.LedgerDBPath)
	if err != nil {
		logger.Fatal("failed to open ledger", zap.Error(err))
	}
	defer ledger.Close()

	consumer, err := dropcopy.NewConsumer(brokers, "tradeledger-v1", cfg.DropCopyTopic, logger)
	if err != nil {
		logger.Fatal("failed to create consumer", zap.Error(err))
	}
	defer consumer.Close()

	healthChecker := observability.NewHealthChecker(logger)

	grpcServer := grpc.NewServer()
	healthChecker.RegisterGRPC(grpcServer)

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		logger.Fatal("failed to listen on gRPC port", zap.Error(err))
	}

	grpcErrCh := make(chan error, 1)
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr()))
		if err := grpcServer.Serve(grpcListener); err != nil {
			grpcErrCh <- err
		}
	}()

	httpErrCh := make(chan error, 1)
	go func() {
		if err := healthChecker.StartHTTPServer(cfg.HTTPAddr()); err != nil && err != http.ErrServerClosed {
			httpErrCh <- err
		}
	}()

	consumerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var duplicates atomic.Int64
	consumerErrCh := make(chan error, 1)
	go func() {
		err := consumer.Run(consumerCtx, func(ctx context.Context, event dropcopy.Event) error {
			duplicate, err := ledger.Insert(ctx, event)
			if err != nil {
				return fmt.Errorf("storing event %s: %w", event.EventID, err)
			}
			if duplicate {
				duplicates.Add(1)
				logger.Warn("duplicate drop-copy event",
					zap.String("event_id", event.EventID))
			}
			return nil
		})
		if err != nil && err != context.Canceled {
			consumerErrCh <- err
		}
	}()
	healthChecker.SetFeedReady(true)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-grpcErrCh:
		logger.Error("gRPC server error", zap.Error(err))
	case err := <-httpErrCh:
		logger.Error("HTTP server error", zap.Error(err))
	case err := <-consumerErrCh:
		logger.Error("consumer error", zap.Error(err))
	}

	logger.Info("shutting down gracefully...")
	cancel()
	consumer.Close()

	report, err := ledger.BuildReport(context.Background())
	if err != nil {
		logger.Error("failed to build report", zap.Error(err))
	} else {
		report.Duplicates = duplicates.Load()
		logger.Info("ledger report",
			zap.Int64("events", report.Events),
			zap.Int64("duplicates", report.Duplicates),
		)
		for _, c := range report.Clients {
			logger.Info("client activity",
				zap.Uint32("client_id", c.ClientID),
				zap.Int64("accepted", c.Accepted),
				zap.Int64("canceled", c.Canceled),
				zap.Int64("filled", c.Filled),
				zap.Int64("cancel_rejected", c.Rejected),
				zap.Int64("exec_total", c.ExecTotal),
			)
		}
		for _, v := range report.Volumes {
			logger.Info("ticker volume",
				zap.Uint32("ticker_id", v.TickerID),
				zap.Int64("traded_qty", v.TradedQty),
			)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("trade ledger stopped")
}
