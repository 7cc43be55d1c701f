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
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jensholdgaard/cricket-auction/internal/api"
	"github.com/jensholdgaard/cricket-auction/internal/auction"
	"github.com/jensholdgaard/cricket-auction/internal/bot"
	"github.com/jensholdgaard/cricket-auction/internal/broker"
	"github.com/jensholdgaard/cricket-auction/internal/catalog"
	"github.com/jensholdgaard/cricket-auction/internal/chat"
	"github.com/jensholdgaard/cricket-auction/internal/clock"
	"github.com/jensholdgaard/cricket-auction/internal/config"
	"github.com/jensholdgaard/cricket-auction/internal/health"
	"github.com/jensholdgaard/cricket-auction/internal/leader"
	"github.com/jensholdgaard/cricket-auction/internal/registry"
	"github.com/jensholdgaard/cricket-auction/internal/store"
	"github.com/jensholdgaard/cricket-auction/internal/telemetry"

	// Register store drivers so they are available via store.Open.
	_ "github.com/jensholdgaard/cricket-auction/internal/store/memstore"
	_ "github.com/jensholdgaard/cricket-auction/internal/store/sqlstore"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := run(*configPath); err != nil {
		slog.Error("fatal error", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry setup failed, continuing without OTEL export", slog.Any("error", err))
		tp = telemetry.NewNopProvider()
	}
	defer func() {
		if shutdownErr := tp.Shutdown(context.Background()); shutdownErr != nil {
			slog.Error("telemetry shutdown error", slog.Any("error", shutdownErr))
		}
	}()

	logger := tp.Logger
	clk := clock.Real{}

	repos, err := store.Open(ctx, cfg.Database, clk)
	if err != nil {
		return fmt.Errorf("opening store (driver=%s): %w", cfg.Database.Driver, err)
	}
	defer repos.Closer.Close()

	logger.InfoContext(ctx, "connected to database", slog.String("driver", cfg.Database.Driver))

	cat := catalog.New(repos.Players)
	if err := cat.Reload(ctx); err != nil {
		return fmt.Errorf("loading catalog: %w", err)
	}
	players, err := cat.List(ctx)
	if err != nil {
		return fmt.Errorf("listing catalog: %w", err)
	}
	if len(players) == 0 {
		logger.WarnContext(ctx, "player catalog is empty, auctions cannot start")
	}

	deps := auction.Deps{
		Rooms:    repos.Rooms,
		Ledger:   repos.Ledger,
		Catalog:  cat,
		Registry: registry.New(repos.Participants, repos.Ledger, cat, cfg.Auction, logger, tp.TracerProvider),
		Events:   repos.Events,
		Metrics:  tp.Metrics,
	}
	if cfg.Broker.URL != "" {
		pub, dialErr := broker.Dial(cfg.Broker.URL, cfg.Broker.Exchange, logger, tp.TracerProvider)
		if dialErr != nil {
			return fmt.Errorf("connecting to broker: %w", dialErr)
		}
		defer pub.Close()
		deps.Publisher = pub
		logger.InfoContext(ctx, "publishing events", slog.String("exchange", cfg.Broker.Exchange))
	}

	auctionMgr := auction.NewManager(deps, cfg.Auction, logger, tp.TracerProvider, clk)
	chatSvc := chat.NewService(repos.Rooms, repos.Chat, logger, tp.TracerProvider)

	healthHandler := health.NewHandler(clk,
		health.Checker{
			Name:  "database",
			Check: repos.Ping,
		},
	)

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.NewHandler(auctionMgr, chatSvc, cat, logger), healthHandler, cfg.Server)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.InfoContext(ctx, "starting http server", slog.Int("port", cfg.Server.Port))
		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "http server error", slog.Any("error", listenErr))
			cancel()
		}
	}()

	if cfg.Discord.Token != "" {
		discordBot, botErr := bot.New(cfg.Discord, auctionMgr, logger, tp.TracerProvider)
		if botErr != nil {
			return fmt.Errorf("creating bot: %w", botErr)
		}
		if botErr = discordBot.Start(ctx); botErr != nil {
			return fmt.Errorf("starting bot: %w", botErr)
		}
		defer func() {
			if stopErr := discordBot.Stop(); stopErr != nil {
				logger.Error("bot shutdown error", slog.Any("error", stopErr))
			}
		}()
	}

	// driveTimers is the work only one replica should do.
	driveTimers := func(ctx context.Context) {
		healthHandler.SetTimers(true)
		defer healthHandler.SetTimers(false)
		if timerErr := auctionMgr.RunTimers(ctx); timerErr != nil {
			logger.ErrorContext(ctx, "room timers stopped", slog.Any("error", timerErr))
		}
	}

	healthHandler.SetReady(true)
	logger.InfoContext(ctx, "auctiond is running", slog.String("version", version))

	switch {
	case !cfg.Auction.DriveTimers:
		logger.InfoContext(ctx, "timer scheduler disabled, rooms advance on reads")
		<-ctx.Done()
	case cfg.LeaderElection.Enabled:
		logger.InfoContext(ctx, "leader election enabled, timers run on the leader only")
		if leaderErr := leader.Run(ctx, cfg.LeaderElection, logger, leader.Callbacks{
			OnStartedLeading: driveTimers,
		}); leaderErr != nil {
			return fmt.Errorf("leader election: %w", leaderErr)
		}
	default:
		driveTimers(ctx)
	}

	logger.Info("shutting down...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", slog.Any("error", err))
	}

	logger.Info("shutdown complete")
	return nil
}
