package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/wfunc/gamehall/backfill"
	"github.com/wfunc/gamehall/broadcast"
	"github.com/wfunc/gamehall/config"
	"github.com/wfunc/gamehall/game"
	"github.com/wfunc/gamehall/hall"
	"github.com/wfunc/gamehall/logger"
	"github.com/wfunc/gamehall/matchqueue"
	"github.com/wfunc/gamehall/monitor"
	"github.com/wfunc/gamehall/persistence"
	"github.com/wfunc/gamehall/room"
	"github.com/wfunc/gamehall/rpc"
	"github.com/wfunc/gamehall/server"
	"github.com/wfunc/gamehall/services"
	"github.com/wfunc/gamehall/settlement"
	"github.com/wfunc/gamehall/timer"
)

func main() {
	configPath := flag.String("config", ".", "directory containing config.yaml")
	flag.Parse()

	// Initialize logger
	logger.Init()

	// Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.InitWithLevel(cfg.Log.Level)
	defer logger.Sync()

	// Initialize Database
	db, err := persistence.Open(cfg.Database.Options())
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Log.Infof("Database ready (driver %q).", cfg.Database.Driver)

	stats := services.NewStatsService(db, services.NewEloCalculator(cfg.Matchmaking.EloK))

	var settler room.Settler
	if cfg.Settlement.Endpoint != "" {
		settler = settlement.NewClient(cfg.Settlement.Endpoint, cfg.Settlement.Secret, cfg.Settlement.Timeout)
		logger.Log.Infof("Settlement enabled: %s", cfg.Settlement.Endpoint)
	}

	mon := monitor.NewMonitor(cfg.Monitor.Namespace)
	hub := broadcast.NewHub()
	hub.OnDrop = mon.MessageDropped

	h := hall.New(hall.Deps{
		Broadcaster: hub,
		Stats:       stats,
		Backfill:    backfill.NewPool(),
		Settler:     settler,
		Observer:    mon,
		Pool:        mon,
	})
	for _, g := range cfg.Games {
		if err := h.Register(hall.CenterConfig{
			GameType: g.GameType,
			Room:     g.RoomConfig(),
			Game:     game.NewRelay,
			Tiers:    g.Tiers,
		}); err != nil {
			logger.Log.Fatalf("Failed to register game %s: %v", g.GameType, err)
		}
	}

	queue := matchqueue.New(cfg.Matchmaking.QueueConfig(), hub, mon)
	for _, gt := range h.GameTypes() {
		queue.Register(gt, h.Handoff(gt))
	}

	rpcServer, err := rpc.NewServer(cfg.Server.RPCAddress, rpc.NewGameService(stats, h))
	if err != nil {
		logger.Log.Fatalf("Failed to create RPC server: %v", err)
	}

	gameServer := server.NewGameServer(server.Options{
		Addr:              cfg.Server.HTTPAddress,
		HeartbeatInterval: cfg.Server.HeartbeatInterval,
		SendBuffer:        cfg.Server.SendBuffer,
		RateLimit:         cfg.Server.RateLimit,
		RateBurst:         cfg.Server.RateBurst,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
	}, h, queue, hub, stats, mon)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tm := timer.NewTimerManager()
	defer tm.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(gameServer.Start)
	g.Go(rpcServer.Start)
	g.Go(func() error { return queue.Run(gctx, tm) })
	g.Go(func() error { return h.StartSweeper(gctx, tm, cfg.Server.ZombieSweep) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("Shutting down...")

		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		rpcServer.Stop()
		if err := gameServer.Shutdown(sctx); err != nil {
			logger.Log.Warnf("HTTP shutdown: %v", err)
		}
		return h.Close()
	})

	if err := g.Wait(); err != nil {
		logger.Log.Errorf("Game server stopped: %v", err)
		os.Exit(1)
	}
	logger.Log.Info("Game server stopped.")
}
