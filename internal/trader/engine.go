package trader

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"polymarket-trade-bot-go/internal/book"
	"polymarket-trade-bot-go/internal/config"
	"polymarket-trade-bot-go/internal/polymarket"
	"go.uber.org/zap"
)

// Engine is the orchestrator: it polls markets, asks the strategy for
// signals, and hands each signal to the executor. One full poll-decide-act
// pass is an iteration; stop requests take effect between iterations.
type Engine struct {
	logger   *zap.Logger
	cfg      *config.Config
	client   polymarket.ClientInterface
	strategy Strategy
	executor *Executor
	book     *book.Book
}

// NewEngine wires the pipeline together.
func NewEngine(logger *zap.Logger, cfg *config.Config, client polymarket.ClientInterface, strategy Strategy, executor *Executor, b *book.Book) *Engine {
	return &Engine{
		logger:   logger,
		cfg:      cfg,
		client:   client,
		strategy: strategy,
		executor: executor,
		book:     b,
	}
}

// Run starts the polling loop and blocks until ctx is cancelled. An
// iteration already in flight finishes before the loop exits.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.initialize(); err != nil {
		return err
	}

	interval := time.Duration(e.cfg.Trading.PollInterval) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	e.logger.Info("Starting trading loop",
		zap.String("strategy", e.strategy.Name()),
		zap.Duration("interval", interval))

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Stopping trading engine...")
			return nil
		case <-ticker.C:
			if err := e.iterate(); err != nil {
				if isFatal(err, e.executor.mode) {
					e.logger.Error("Fatal error, shutting down", zap.Error(err))
					return err
				}
				e.logger.Warn("Iteration failed", zap.Error(err))
			}
		}
	}
}

// RunOnce executes a single iteration. Used by the `once` command and by
// tests.
func (e *Engine) RunOnce() error {
	if err := e.initialize(); err != nil {
		return err
	}
	return e.iterate()
}

func (e *Engine) initialize() error {
	sctx := StrategyContext{Logger: e.logger, Cfg: e.cfg, Client: e.client}
	if err := e.strategy.Initialize(sctx); err != nil {
		return fmt.Errorf("failed to initialize strategy %q: %w", e.strategy.Name(), err)
	}
	return nil
}

// iterate runs one poll-decide-act pass. Signal-level failures are logged
// and dropped so one bad signal never blocks the rest of the batch; only
// errors that make continuing pointless propagate.
func (e *Engine) iterate() error {
	markets, err := e.client.ListMarkets()
	if err != nil {
		return fmt.Errorf("failed to list markets: %w", err)
	}

	balance, err := e.balance()
	if err != nil {
		return fmt.Errorf("failed to determine balance: %w", err)
	}

	sctx := StrategyContext{Logger: e.logger, Cfg: e.cfg, Client: e.client}
	signals, err := e.strategy.GenerateSignals(sctx, markets, e.book.List(), balance)
	if err != nil {
		return fmt.Errorf("strategy %q failed: %w", e.strategy.Name(), err)
	}
	if len(signals) == 0 {
		e.logger.Debug("No signals this iteration")
		return nil
	}

	for _, signal := range signals {
		if err := e.executor.Execute(signal); err != nil {
			switch {
			case IsRiskRejected(err):
				e.logger.Info("Signal rejected by risk checks",
					zap.String("token_id", signal.TokenID),
					zap.Error(err))
			case errors.Is(err, book.ErrNoPosition), errors.Is(err, book.ErrInsufficientSize):
				e.logger.Warn("Signal inconsistent with position book",
					zap.String("token_id", signal.TokenID),
					zap.Error(err))
			case isFatal(err, e.executor.mode):
				return err
			default:
				e.logger.Warn("Signal execution failed",
					zap.String("token_id", signal.TokenID),
					zap.Error(err))
			}
		}
	}
	return nil
}

// balance returns the funds available for new BUYs. In dry-run mode the
// virtual balance net of current exposure stands in for an account query.
func (e *Engine) balance() (float64, error) {
	if e.cfg.Trading.DryRun {
		return math.Max(0, e.cfg.Trading.VirtualBalance-e.book.TotalExposure()), nil
	}
	return e.client.GetBalance()
}

// isFatal reports whether err should stop the engine. Authentication
// failures in live mode cannot resolve themselves by retrying.
func isFatal(err error, mode Mode) bool {
	return mode == ModeLive && polymarket.IsAuth(err)
}
