package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/config"
	"github.com/tradewire/tradewire/internal/dropcopy"
	"github.com/tradewire/tradewire/internal/exchange/marketdata"
	"github.com/tradewire/tradewire/internal/exchange/matcher"
	"github.com/tradewire/tradewire/internal/exchange/orderserver"
	"github.com/tradewire/tradewire/internal/logging"
	"github.com/tradewire/tradewire/internal/observability"
	"github.com/tradewire/tradewire/internal/wire"
)

func main() {
	cfg := config.Load("exchange")

	logger, err := logging.NewLogger(cfg.ServiceName, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting exchange",
		zap.String("order_gw_addr", cfg.OrderGatewayAddr),
		zap.String("incremental_group", cfg.IncrementalGroup),
		zap.String("snapshot_group", cfg.SnapshotGroup),
		zap.Int("snapshot_interval_secs", cfg.SnapshotIntervalSecs),
	)

	// queues between the three exchange components
	reqProd, reqCons := common.NewSPSC[wire.ClientRequest](common.MaxClientUpdates)
	respProd, respCons := common.NewSPSC[wire.ClientResponse](common.MaxClientUpdates)
	updProd, updCons := common.NewSPSC[wire.MarketUpdate](common.MaxMarketUpdates)
	snapProd, snapCons := common.NewSPSC[wire.SeqMarketUpdate](common.MaxMarketUpdates)

	// optional drop-copy
	var dropCopyProd *common.Producer[wire.ClientResponse]
	var dropCopyPublisher *dropcopy.Publisher
	if cfg.DropCopyBrokers != "" {
		var dcCons *common.Consumer[wire.ClientResponse]
		dropCopyProd, dcCons = common.NewSPSC[wire.ClientResponse](common.MaxClientUpdates)

		brokers := strings.Split(cfg.DropCopyBrokers, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		dropCopyPublisher, err = dropcopy.NewPublisher(brokers, cfg.DropCopyTopic, dcCons, logger)
		if err != nil {
			logger.Fatal("failed to create drop-copy publisher", zap.Error(err))
		}
	}

	engine := matcher.NewMatchingEngine(reqCons, respProd, updProd, logger)

	incrementalFeed, err := marketdata.NewUDPSender(cfg.IncrementalGroup)
	if err != nil {
		logger.Fatal("failed to open incremental feed", zap.Error(err))
	}
	defer incrementalFeed.Close()

	snapshotFeed, err := marketdata.NewUDPSender(cfg.SnapshotGroup)
	if err != nil {
		logger.Fatal("failed to open snapshot feed", zap.Error(err))
	}
	defer snapshotFeed.Close()

	publisher := marketdata.NewPublisher(updCons, incrementalFeed, snapProd, logger)
	synthesizer := marketdata.NewSnapshotSynthesizer(snapCons, snapshotFeed,
		time.Duration(cfg.SnapshotIntervalSecs)*time.Second, logger)

	server := orderserver.NewServer(cfg.OrderGatewayAddr, reqProd, respCons, dropCopyProd, logger)

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

	// start consumers before producers so nothing backs up
	synthesizer.Start()
	publisher.Start()
	engine.Start()
	if dropCopyPublisher != nil {
		dropCopyPublisher.Start()
	}
	if err := server.Start(); err != nil {
		logger.Fatal("failed to start order server", zap.Error(err))
	}
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
	}

	logger.Info("shutting down gracefully...")

	server.Stop()
	engine.Stop()
	publisher.Stop()
	synthesizer.Stop()
	if dropCopyPublisher != nil {
		dropCopyPublisher.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("exchange stopped")
}
