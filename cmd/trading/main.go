package main

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/tradewire/tradewire/internal/common"
	"github.com/tradewire/tradewire/internal/config"
	"github.com/tradewire/tradewire/internal/logging"
	"github.com/tradewire/tradewire/internal/observability"
	"github.com/tradewire/tradewire/internal/trading/engine"
	"github.com/tradewire/tradewire/internal/trading/gateway"
	"github.com/tradewire/tradewire/internal/trading/marketdata"
	"github.com/tradewire/tradewire/internal/trading/strategy"
	"github.com/tradewire/tradewire/internal/wire"
)

const idleShutdownAfter = 60 * time.Second

func usage() {
	fmt.Fprintf(os.Stderr,
		"usage: trading <client_id> <MAKER|TAKER|RANDOM> [<clip> <threshold> <max_order_size> <max_position> <max_loss>]...\n")
	os.Exit(1)
}

func parseArgs(args []string) (common.ClientId, string, [common.MaxTickers]common.TradeEngineCfg) {
	if len(args) < 2 {
		usage()
	}

	clientId, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil || clientId >= common.MaxClients {
		usage()
	}
	algo := args[1]
	if algo != "MAKER" && algo != "TAKER" && algo != "RANDOM" {
		usage()
	}

	// five parameters per ticker; tickers without a group stay
	// zeroed, which the risk checks keep inert
	var cfgs [common.MaxTickers]common.TradeEngineCfg
	rest := args[2:]
	if len(rest)%5 != 0 || len(rest)/5 > common.MaxTickers {
		usage()
	}
	for i := 0; i*5 < len(rest); i++ {
		group := rest[i*5 : i*5+5]
		clip, err1 := strconv.ParseUint(group[0], 10, 32)
		threshold, err2 := strconv.ParseFloat(group[1], 64)
		maxOrderSize, err3 := strconv.ParseUint(group[2], 10, 32)
		maxPosition, err4 := strconv.ParseUint(group[3], 10, 32)
		maxLoss, err5 := strconv.ParseFloat(group[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			usage()
		}
		cfgs[i] = common.TradeEngineCfg{
			Clip:      common.Qty(clip),
			Threshold: threshold,
			Risk: common.RiskCfg{
				MaxOrderSize: common.Qty(maxOrderSize),
				MaxPosition:  common.Qty(maxPosition),
				MaxLoss:      maxLoss,
			},
		}
	}
	return common.ClientId(clientId), algo, cfgs
}

// runRandomAlgo fires randomized order flow at the exchange: each NEW
// is followed by a CANCEL of a randomly chosen earlier order.
func runRandomAlgo(te *engine.TradeEngine, clientId common.ClientId, logger *zap.Logger) {
	rng := rand.New(rand.NewSource(int64(clientId)))

	var basePrices [common.MaxTickers]common.Price
	for i := range basePrices {
		basePrices[i] = common.Price(rng.Intn(100) + 100)
	}

	var sentOrderIds []common.OrderId
	nextOrderId := common.OrderId(1)

	for i := 0; i < 10000; i++ {
		tickerId := common.TickerId(rng.Intn(common.MaxTickers))
		price := basePrices[tickerId] + common.Price(rng.Intn(10)+1)
		qty := common.Qty(rng.Intn(100) + 2)
		side := common.SideBuy
		if rng.Intn(2) == 1 {
			side = common.SideSell
		}

		te.SendClientRequest(wire.ClientRequest{
			Type: wire.RequestNew, ClientId: clientId, TickerId: tickerId,
			OrderId: nextOrderId, Side: side, Price: price, Qty: qty,
		})
		sentOrderIds = append(sentOrderIds, nextOrderId)
		nextOrderId++
		time.Sleep(time.Duration(rng.Intn(5)+1) * time.Millisecond)

		cancelOrderId := sentOrderIds[rng.Intn(len(sentOrderIds))]
		te.SendClientRequest(wire.ClientRequest{
			Type: wire.RequestCancel, ClientId: clientId, TickerId: tickerId,
			OrderId: cancelOrderId, Side: side, Price: price, Qty: qty,
		})
		time.Sleep(time.Duration(rng.Intn(5)+1) * time.Millisecond)
	}
	logger.Info("random order flow finished")
}

func main() {
	clientId, algoName, cfgs := parseArgs(os.Args[1:])

	cfg := config.Load("trading")

	logger, err := logging.NewLogger(fmt.Sprintf("%s-%d", cfg.ServiceName, clientId), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting trading client",
		zap.Uint32("client_id", uint32(clientId)),
		zap.String("algo", algoName),
		zap.String("order_gw_addr", cfg.OrderGatewayAddr),
		zap.String("incremental_group", cfg.IncrementalGroup),
		zap.String("snapshot_group", cfg.SnapshotGroup),
	)

	reqProd, reqCons := common.NewSPSC[wire.ClientRequest](common.MaxClientUpdates)
	respProd, respCons := common.NewSPSC[wire.ClientResponse](common.MaxClientUpdates)
	updProd, updCons := common.NewSPSC[wire.MarketUpdate](common.MaxMarketUpdates)

	te := engine.NewTradeEngine(clientId, reqProd, respCons, updCons, logger)

	switch algoName {
	case "MAKER", "TAKER":
		rm := strategy.NewRiskManager(te.PositionKeeper(), cfgs, logger)
		om := strategy.NewOrderManager(te, rm, logger)
		if algoName == "MAKER" {
			te.SetAlgo(strategy.NewMarketMaker(te.FeatureEngine(), om, cfgs, logger))
		} else {
			te.SetAlgo(strategy.NewLiquidityTaker(te.FeatureEngine(), om, cfgs, logger))
		}
	case "RANDOM":
		// no book-driven algo; flow is generated below
	}

	gw := gateway.NewGateway(clientId, cfg.OrderGatewayAddr, reqCons, respProd, logger)
	consumer := marketdata.NewConsumer(cfg.IncrementalGroup, cfg.SnapshotGroup, updProd, logger)

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

	te.Start()
	if err := gw.Start(); err != nil {
		logger.Fatal("failed to connect order gateway", zap.Error(err))
	}
	if err := consumer.Start(); err != nil {
		logger.Fatal("failed to start market data consumer", zap.Error(err))
	}
	healthChecker.SetFeedReady(true)

	if algoName == "RANDOM" {
		go runRandomAlgo(te, clientId, logger)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	idleTicker := time.NewTicker(time.Second)
	defer idleTicker.Stop()

loop:
	for {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", zap.String("signal", sig.String()))
			break loop
		case err := <-grpcErrCh:
			logger.Error("gRPC server error", zap.Error(err))
			break loop
		case err := <-httpErrCh:
			logger.Error("HTTP server error", zap.Error(err))
			break loop
		case <-idleTicker.C:
			if te.SilentDuration() >= idleShutdownAfter && te.QueuesDrained() {
				logger.Info("no activity, shutting down",
					zap.Duration("silent_for", te.SilentDuration()))
				break loop
			}
		}
	}

	logger.Info("shutting down gracefully...")

	consumer.Stop()
	gw.Stop()
	te.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := healthChecker.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down health checker", zap.Error(err))
	}
	grpcServer.GracefulStop()

	logger.Info("trading client stopped")
}
