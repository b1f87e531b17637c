package trader

import (
	"math"

	"polymarket-trade-bot-go/internal/models"
	"go.uber.org/zap"
)

// SimpleStrategy buys undervalued YES tokens and sells them once they recover.
type SimpleStrategy struct {
	buyThreshold  float64
	sellThreshold float64
}

// NewSimpleStrategy creates a SimpleStrategy with the given entry and exit
// thresholds.
func NewSimpleStrategy(buyThreshold, sellThreshold float64) *SimpleStrategy {
	return &SimpleStrategy{
		buyThreshold:  buyThreshold,
		sellThreshold: sellThreshold,
	}
}

func (s *SimpleStrategy) Name() string {
	return "simple"
}

func (s *SimpleStrategy) Initialize(ctx StrategyContext) error {
	ctx.Logger.Info("SimpleStrategy initialized",
		zap.Float64("buy_threshold", s.buyThreshold),
		zap.Float64("sell_threshold", s.sellThreshold))
	return nil
}

// GenerateSignals buys the YES token when its price sits below the buy
// threshold and sells the whole position when it reaches the sell threshold.
func (s *SimpleStrategy) GenerateSignals(ctx StrategyContext, markets []models.Market, positions []models.Position, balance float64) ([]models.Signal, error) {
	l := ctx.Logger.With(zap.String("strategy", s.Name()))

	// With a zero balance (fresh dry run) the virtual balance stands in so the
	// strategy can still be exercised.
	effectiveBalance := balance
	if effectiveBalance <= 0 {
		effectiveBalance = ctx.Cfg.Trading.VirtualBalance
		l.Debug("Using virtual balance", zap.Float64("balance", effectiveBalance))
	}

	positionMap := make(map[string]models.Position, len(positions))
	for _, p := range positions {
		positionMap[p.TokenID] = p
	}

	var signals []models.Signal
	for _, market := range markets {
		if market.Closed || !market.AcceptingOrders || market.YesPrice <= 0 {
			continue
		}

		if pos, ok := positionMap[market.TokenID]; ok {
			if market.YesPrice >= s.sellThreshold {
				signals = append(signals, models.Signal{
					Side:    models.SideSell,
					TokenID: market.TokenID,
					Price:   market.YesPrice,
					Size:    pos.Size,
					Reason:  "price reached sell threshold",
				})
			}
			continue
		}

		if market.YesPrice < s.buyThreshold && effectiveBalance >= 10.0 {
			signals = append(signals, models.Signal{
				Side:    models.SideBuy,
				TokenID: market.TokenID,
				Price:   market.YesPrice,
				Size:    math.Min(10.0, effectiveBalance*0.1),
				Reason:  "price below buy threshold",
			})
		}
	}

	return signals, nil
}
