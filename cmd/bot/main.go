package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"polymarket-trade-bot-go/internal/book"
	"polymarket-trade-bot-go/internal/config"
	"polymarket-trade-bot-go/internal/database"
	"polymarket-trade-bot-go/internal/ledger"
	"polymarket-trade-bot-go/internal/logger"
	"polymarket-trade-bot-go/internal/polymarket"
	"polymarket-trade-bot-go/internal/store"
	"polymarket-trade-bot-go/internal/trader"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	configPath := pflag.String("config", "./configs", "directory containing config.yml")
	pflag.String("strategy", "", "strategy to run: simple, momentum or copy")
	mode := pflag.String("mode", "", "run mode: once, continuous or status")
	pflag.Bool("live", false, "submit real orders instead of simulating fills")
	pflag.String("target-user", "", "address of the user to copy-trade")
	pflag.Float64("copy-amount", 0, "fixed size of each copied BUY")
	pflag.Float64("copy-ratio", 0, "fraction of the balance per copied BUY")
	pflag.Int("time-window", 0, "max age of a source trade in seconds")
	pflag.Float64("max-copy-size", 0, "cap on the size of a copied BUY")
	pflag.Parse()

	bindFlags()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// The logger isn't up yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	command := "continuous"
	if *mode != "" {
		command = *mode
	} else if pflag.NArg() > 0 {
		command = pflag.Arg(0)
	}

	positionsFile := store.NewFile(cfg.State.PositionsFile, log)
	copyStateFile := store.NewFile(cfg.State.CopyStateFile, log)

	if command == "status" {
		if err := printStatus(&cfg, positionsFile, copyStateFile, log); err != nil {
			log.Fatal("Failed to read status", zap.Error(err))
		}
		return
	}

	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}

	client := polymarket.NewRestClient(&cfg.Polymarket, log)

	csv := ledger.NewCSV(cfg.State.HistoryFile, log)
	recorder := ledger.NewRecorder(csv, db, log)
	positionBook, err := book.NewBook(positionsFile, recorder, log)
	if err != nil {
		log.Fatal("Failed to load position book", zap.Error(err))
	}

	strategy, err := buildStrategy(&cfg, copyStateFile)
	if err != nil {
		log.Fatal("Failed to build strategy", zap.Error(err))
	}

	execMode := trader.ModeSimulated
	if !cfg.Trading.DryRun {
		execMode = trader.ModeLive
	}
	limits := trader.RiskLimits{
		MaxPositionSize:  cfg.Risk.MaxPositionSize,
		MaxTotalExposure: cfg.Risk.MaxTotalExposure,
		MaxSlippage:      cfg.Risk.MaxSlippage,
		MinTradeSize:     cfg.Risk.MinTradeSize,
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	executor := trader.NewExecutor(execMode, limits, client, positionBook, rng, log)
	engine := trader.NewEngine(log, &cfg, client, strategy, executor, positionBook)

	switch command {
	case "once":
		if err := engine.RunOnce(); err != nil {
			log.Fatal("Iteration failed", zap.Error(err))
		}
	case "continuous":
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			sigchan := make(chan os.Signal, 1)
			signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
			<-sigchan
			log.Info("Shutdown signal received, gracefully shutting down...")
			cancel()
		}()

		api := trader.NewAPIServer(engine, db, cfg.Server.Port, log)
		api.Start()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := api.Stop(shutdownCtx); err != nil {
				log.Error("API server shutdown failed", zap.Error(err))
			}
		}()

		if err := engine.Run(ctx); err != nil {
			log.Fatal("Engine stopped with error", zap.Error(err))
		}
	default:
		log.Fatal("Unknown command", zap.String("command", command))
	}

	log.Info("Bot has been shut down.")
}

// bindFlags maps the command-line flags onto their config keys so flags win
// over both the config file and the environment.
func bindFlags() {
	bindings := map[string]string{
		"trading.strategy":   "strategy",
		"copy.target_user":   "target-user",
		"copy.copy_amount":   "copy-amount",
		"copy.copy_ratio":    "copy-ratio",
		"copy.time_window":   "time-window",
		"copy.max_copy_size": "max-copy-size",
	}
	for key, flagName := range bindings {
		flag := pflag.Lookup(flagName)
		if flag != nil && flag.Changed {
			viper.BindPFlag(key, flag)
		}
	}
	if flag := pflag.Lookup("live"); flag != nil && flag.Changed {
		viper.Set("trading.dry_run", false)
	}
}

func buildStrategy(cfg *config.Config, copyStateFile *store.File) (trader.Strategy, error) {
	switch cfg.Trading.Strategy {
	case "simple":
		return trader.NewSimpleStrategy(cfg.Trading.BuyThreshold, cfg.Trading.SellThreshold), nil
	case "momentum":
		return trader.NewMomentumStrategy(cfg.Trading.MomentumThreshold, cfg.Trading.TargetProfit, cfg.Trading.MaxPositionPerMarket), nil
	case "copy":
		return trader.NewCopyTradingStrategy(cfg.Copy, copyStateFile), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Trading.Strategy)
	}
}

// printStatus dumps the persisted bot state without touching the network.
func printStatus(cfg *config.Config, positionsFile, copyStateFile *store.File, log *zap.Logger) error {
	positionBook, err := book.NewBook(positionsFile, ledger.NewCSV(cfg.State.HistoryFile, log), log)
	if err != nil {
		return err
	}

	status := struct {
		Positions any     `json:"positions"`
		Exposure  float64 `json:"exposure"`
		Copy      any     `json:"copy_trading,omitempty"`
	}{
		Positions: positionBook.List(),
		Exposure:  positionBook.TotalExposure(),
	}

	if copyStatus, err := trader.ReadCopyStatus(copyStateFile); err == nil && copyStatus.TargetUser != "" {
		status.Copy = copyStatus
	}

	out, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
