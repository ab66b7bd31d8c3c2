package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"pepeearn/internal/api"
	"pepeearn/internal/bonus"
	"pepeearn/internal/config"
	"pepeearn/internal/db"
	"pepeearn/internal/ledger"
	"pepeearn/internal/logging"
	"pepeearn/internal/middleware"
	"pepeearn/internal/quota"
	"pepeearn/internal/referral"
	"pepeearn/internal/session"
	"pepeearn/internal/store"
	"pepeearn/internal/telegram"
	"pepeearn/internal/withdrawal"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Error loading configuration: %v", err)
	}

	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("Error building logger: %v", err)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Connecting to database",
		zap.String("driver", cfg.DBDriver),
		zap.String("host", cfg.DBHost),
		zap.String("name", cfg.DBName),
	)
	database, err := db.InitDB(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	hub := store.NewHub()
	st := store.NewSQLStore(database, cfg.DBDriver, hub, logger)

	if cfg.DBDriver == db.DriverPostgres {
		listener, err := store.NewPGListener(db.PostgresDSN(cfg), hub, logger)
		if err != nil {
			return err
		}
		go listener.Run(ctx)
		defer func() {
			cancel()
			listener.Close()
		}()
	}

	dispatcher := ledger.NewDispatcher(cfg.CommissionQueue, logger)
	ledgerSvc := ledger.New(st, dispatcher, logger)
	graph := referral.NewGraph(st, ledgerSvc, logger)
	dispatcher.Start(ctx, cfg.CommissionWorkers, graph.PayCommission)
	defer dispatcher.Close()

	var checker bonus.MembershipChecker
	if cfg.VerifyChannelMembership {
		bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			return err
		}
		logger.Info("Verifying bonus channel membership",
			zap.String("bot", bot.Self.UserName),
			zap.String("channel", cfg.BonusChannel),
		)
		checker = telegram.NewChannelChecker(bot, cfg.BonusChannel, logger)
	}

	sessions := session.NewRegistry(session.Config{
		Store:       st,
		Graph:       graph,
		Tracker:     quota.NewTracker(st, ledgerSvc, cfg.Location, logger),
		Bonus:       bonus.NewVerifier(st, ledgerSvc, checker, logger),
		Withdrawals: withdrawal.NewManager(st, ledgerSvc, logger),
		BotURL:      cfg.BotURL(),
		IdleTTL:     cfg.SessionTTL,
		Logger:      logger,
	})
	defer sessions.CloseAll()
	go sessions.Run(ctx, time.Minute)

	server := api.NewServer(api.Options{
		Sessions:       sessions,
		Auth:           middleware.NewAuth(cfg.JWTSecret, cfg.SessionTTL),
		DB:             database,
		BotToken:       cfg.BotToken,
		InitDataMaxAge: cfg.InitDataMaxAge,
		DevMode:        cfg.DevMode,
		Logger:         logger,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Port), zap.Bool("dev_mode", cfg.DevMode))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	go func() {
		for cerr := range dispatcher.Errors() {
			logger.Debug("Commission error drained", zap.String("user_id", cerr.Credit.UserID), zap.Error(cerr.Err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("Shutting down", zap.String("signal", sig.String()))
	}

	// event streams only end with their sessions
	sessions.CloseAll()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Graceful shutdown failed", zap.Error(err))
	}
	dispatcher.Close()
	logger.Info("Server stopped")
	return nil
}
