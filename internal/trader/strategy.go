package trader

import (
	"polymarket-trade-bot-go/internal/config"
	"polymarket-trade-bot-go/internal/models"
	"polymarket-trade-bot-go/internal/polymarket"
	"go.uber.org/zap"
)

// StrategyContext provides the strategy with access to the core components.
type StrategyContext struct {
	Logger *zap.Logger
	Cfg    *config.Config
	Client polymarket.ClientInterface
}

// Strategy defines the interface for a trading strategy.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// Initialize gives the strategy a chance to perform setup tasks, such as
	// loading persisted state.
	Initialize(ctx StrategyContext) error

	// GenerateSignals is the main logic of the strategy, called once per poll
	// by the engine with the current market view, the bot's open positions
	// and its available balance. The returned signals are executed in order.
	GenerateSignals(ctx StrategyContext, markets []models.Market, positions []models.Position, balance float64) ([]models.Signal, error)
}
