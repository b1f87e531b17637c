package trader

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"polymarket-trade-bot-go/internal/book"
	"polymarket-trade-bot-go/internal/models"
	"polymarket-trade-bot-go/internal/polymarket"
	"go.uber.org/zap"
)

// Mode selects whether orders hit the exchange or are simulated locally.
type Mode string

const (
	ModeLive      Mode = "live"
	ModeSimulated Mode = "simulated"
)

// RiskRejectedError reports a signal dropped by a risk check. It is not a
// failure of the pipeline; the orchestrator logs it and moves on.
type RiskRejectedError struct {
	Check  string
	Reason string
}

func (e *RiskRejectedError) Error() string {
	return fmt.Sprintf("risk check %q rejected signal: %s", e.Check, e.Reason)
}

// IsRiskRejected reports whether err is a risk rejection.
func IsRiskRejected(err error) bool {
	var rr *RiskRejectedError
	return errors.As(err, &rr)
}

// RiskLimits are the hard limits every signal must clear before execution.
type RiskLimits struct {
	MaxPositionSize  float64
	MaxTotalExposure float64
	MaxSlippage      float64
	MinTradeSize     float64
}

// Executor turns approved signals into fills and applies them to the position
// book. In simulated mode fills are generated locally with randomized
// slippage; in live mode the order goes to the exchange and the book is only
// updated after a confirmed fill.
type Executor struct {
	mode   Mode
	limits RiskLimits
	client polymarket.ClientInterface
	book   *book.Book
	logger *zap.Logger

	// rng drives simulated slippage; seedable for reproducible runs.
	rng *rand.Rand
	now func() time.Time
}

// NewExecutor creates an executor. rng may be nil, in which case a
// time-seeded source is used.
func NewExecutor(mode Mode, limits RiskLimits, client polymarket.ClientInterface, b *book.Book, rng *rand.Rand, logger *zap.Logger) *Executor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Executor{
		mode:   mode,
		limits: limits,
		client: client,
		book:   b,
		logger: logger,
		rng:    rng,
		now:    time.Now,
	}
}

// Execute runs the risk checks and, if the signal survives, fills it. The
// fill price includes slippage, which always moves against the bot.
func (e *Executor) Execute(signal models.Signal) error {
	l := e.logger.With(
		zap.String("side", string(signal.Side)),
		zap.String("token_id", signal.TokenID),
		zap.Float64("price", signal.Price),
		zap.Float64("size", signal.Size),
	)

	if err := e.checkRisk(signal); err != nil {
		return err
	}

	switch e.mode {
	case ModeLive:
		return e.executeLive(signal, l)
	default:
		return e.executeSimulated(signal, l)
	}
}

// checkRisk applies the risk checks in a fixed order: position size, then
// total exposure, then slippage, then minimum trade size. The first failure
// wins.
func (e *Executor) checkRisk(signal models.Signal) error {
	if e.limits.MaxPositionSize > 0 && signal.Side == models.SideBuy {
		current := 0.0
		if pos, ok := e.book.Get(signal.TokenID); ok {
			current = pos.Size
		}
		if current+signal.Size > e.limits.MaxPositionSize {
			return &RiskRejectedError{
				Check:  "max_position_size",
				Reason: fmt.Sprintf("position would be %.4f, limit %.4f", current+signal.Size, e.limits.MaxPositionSize),
			}
		}
	}

	if e.limits.MaxTotalExposure > 0 && signal.Side == models.SideBuy {
		projected := e.book.TotalExposure() + signal.Price*signal.Size
		if projected > e.limits.MaxTotalExposure {
			return &RiskRejectedError{
				Check:  "max_total_exposure",
				Reason: fmt.Sprintf("exposure would be %.4f, limit %.4f", projected, e.limits.MaxTotalExposure),
			}
		}
	}

	if e.mode == ModeLive && e.limits.MaxSlippage > 0 {
		expected, err := e.expectedSlippage(signal)
		if err != nil {
			return fmt.Errorf("failed to estimate slippage: %w", err)
		}
		if expected > e.limits.MaxSlippage {
			return &RiskRejectedError{
				Check:  "max_slippage",
				Reason: fmt.Sprintf("expected slippage %.4f exceeds limit %.4f", expected, e.limits.MaxSlippage),
			}
		}
	}

	if e.limits.MinTradeSize > 0 && signal.Size < e.limits.MinTradeSize {
		return &RiskRejectedError{
			Check:  "min_trade_size",
			Reason: fmt.Sprintf("size %.4f below minimum %.4f", signal.Size, e.limits.MinTradeSize),
		}
	}
	return nil
}

// expectedSlippage compares the signal price against the touch of the live
// order book.
func (e *Executor) expectedSlippage(signal models.Signal) (float64, error) {
	ob, err := e.client.GetOrderBook(signal.TokenID)
	if err != nil {
		return 0, err
	}
	var touch float64
	if signal.Side == models.SideBuy {
		touch = ob.BestAsk()
	} else {
		touch = ob.BestBid()
	}
	if touch <= 0 || signal.Price <= 0 {
		return 0, nil
	}
	slip := (touch - signal.Price) / signal.Price
	if signal.Side == models.SideSell {
		slip = -slip
	}
	if slip < 0 {
		slip = 0
	}
	return slip, nil
}

func (e *Executor) executeSimulated(signal models.Signal, l *zap.Logger) error {
	slippage := e.rng.Float64() * e.limits.MaxSlippage
	fillPrice := applySlippage(signal.Side, signal.Price, slippage)

	if err := e.applyFill(signal, fillPrice, signal.Size, slippage); err != nil {
		return err
	}
	l.Info("Simulated fill applied",
		zap.Float64("fill_price", fillPrice),
		zap.Float64("slippage", slippage))
	return nil
}

func (e *Executor) executeLive(signal models.Signal, l *zap.Logger) error {
	fill, err := e.client.SubmitOrder(signal.TokenID, signal.Side, signal.Price, signal.Size)
	if err != nil {
		return fmt.Errorf("order submission failed: %w", err)
	}

	slippage := 0.0
	if signal.Price > 0 {
		slippage = (fill.Price - signal.Price) / signal.Price
		if signal.Side == models.SideSell {
			slippage = -slippage
		}
	}

	// The book only reflects confirmed fills.
	if err := e.applyFill(signal, fill.Price, fill.Size, slippage); err != nil {
		return err
	}
	l.Info("Live fill applied",
		zap.String("order_id", fill.OrderID),
		zap.Float64("fill_price", fill.Price),
		zap.Float64("fill_size", fill.Size))
	return nil
}

func (e *Executor) applyFill(signal models.Signal, fillPrice, fillSize, slippage float64) error {
	switch signal.Side {
	case models.SideBuy:
		_, err := e.book.OpenOrIncrease(signal.TokenID, fillPrice, fillSize, e.now())
		return err
	case models.SideSell:
		_, err := e.book.Close(signal.TokenID, fillSize, fillPrice, e.now(), slippage)
		return err
	default:
		return fmt.Errorf("unknown signal side %q", signal.Side)
	}
}

// applySlippage moves a price against the trader: BUYs fill above the signal
// price, SELLs below it.
func applySlippage(side models.Side, price, slippage float64) float64 {
	if side == models.SideBuy {
		return price * (1 + slippage)
	}
	return price * (1 - slippage)
}
