package trader

import (
	"math"

	"polymarket-trade-bot-go/internal/models"
	"go.uber.org/zap"
)

// MomentumStrategy buys YES tokens whose price jumped since the previous poll
// and takes profit once the position has gained enough.
type MomentumStrategy struct {
	momentumThreshold    float64
	targetProfit         float64
	maxPositionPerMarket float64

	// lastPrices holds each token's YES price from the previous poll;
	// momentum is measured over one poll interval.
	lastPrices map[string]float64
}

// NewMomentumStrategy creates a MomentumStrategy.
func NewMomentumStrategy(momentumThreshold, targetProfit, maxPositionPerMarket float64) *MomentumStrategy {
	return &MomentumStrategy{
		momentumThreshold:    momentumThreshold,
		targetProfit:         targetProfit,
		maxPositionPerMarket: maxPositionPerMarket,
		lastPrices:           make(map[string]float64),
	}
}

func (s *MomentumStrategy) Name() string {
	return "momentum"
}

func (s *MomentumStrategy) Initialize(ctx StrategyContext) error {
	ctx.Logger.Info("MomentumStrategy initialized",
		zap.Float64("momentum_threshold", s.momentumThreshold),
		zap.Float64("target_profit", s.targetProfit))
	return nil
}

func (s *MomentumStrategy) GenerateSignals(ctx StrategyContext, markets []models.Market, positions []models.Position, balance float64) ([]models.Signal, error) {
	l := ctx.Logger.With(zap.String("strategy", s.Name()))

	effectiveBalance := balance
	if effectiveBalance <= 0 {
		effectiveBalance = ctx.Cfg.Trading.VirtualBalance
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

		prev, seen := s.lastPrices[market.TokenID]
		s.lastPrices[market.TokenID] = market.YesPrice

		if pos, ok := positionMap[market.TokenID]; ok {
			if pos.EntryPrice <= 0 {
				continue
			}
			gain := (market.YesPrice - pos.EntryPrice) / pos.EntryPrice
			if gain >= s.targetProfit {
				signals = append(signals, models.Signal{
					Side:    models.SideSell,
					TokenID: market.TokenID,
					Price:   market.YesPrice,
					Size:    pos.Size,
					Reason:  "target profit reached",
				})
			}
			continue
		}

		if !seen || prev <= 0 {
			continue // need two polls to measure momentum
		}
		momentum := (market.YesPrice - prev) / prev
		if momentum >= s.momentumThreshold {
			size := math.Min(s.maxPositionPerMarket, effectiveBalance*0.1)
			if size <= 0 {
				continue
			}
			l.Debug("Momentum entry",
				zap.String("token_id", market.TokenID),
				zap.Float64("momentum", momentum))
			signals = append(signals, models.Signal{
				Side:    models.SideBuy,
				TokenID: market.TokenID,
				Price:   market.YesPrice,
				Size:    size,
				Reason:  "price momentum above threshold",
			})
		}
	}

	return signals, nil
}
