package trader

import (
	"fmt"
	"math"
	"sort"
	"time"

	"polymarket-trade-bot-go/internal/config"
	"polymarket-trade-bot-go/internal/models"
	"polymarket-trade-bot-go/internal/store"
	"go.uber.org/zap"
)

// copyState is the persisted document in copy_trading_state.json.
type copyState struct {
	TargetUser      string   `json:"target_user"`
	CopyAmount      float64  `json:"copy_amount"`
	CopyRatio       float64  `json:"copy_ratio"`
	TimeWindow      int      `json:"time_window"`
	MaxCopySize     float64  `json:"max_copy_size"`
	ProcessedTrades []string `json:"processed_trades"`
}

// CopyTradingStrategy mirrors a target user's trades as the bot's own signals.
//
// Every source trade is converted at most once across restarts and overlapping
// polling windows: the set of processed source trade ids is persisted after
// each batch of decisions, and dedup is by the trade's stable id, never by
// timestamp. A crash between deciding and persisting only causes the batch to
// be reconsidered, which is safe because the decisions themselves are
// idempotent against current position state.
type CopyTradingStrategy struct {
	cfg  config.Copy
	file *store.File

	processed map[string]struct{}
	lastPoll  time.Time

	// now is the clock; replaceable in tests.
	now func() time.Time
}

// NewCopyTradingStrategy creates the strategy. Persisted state is loaded in
// Initialize.
func NewCopyTradingStrategy(cfg config.Copy, file *store.File) *CopyTradingStrategy {
	return &CopyTradingStrategy{
		cfg:       cfg,
		file:      file,
		processed: make(map[string]struct{}),
		now:       time.Now,
	}
}

func (s *CopyTradingStrategy) Name() string {
	return "copy"
}

// Initialize loads the processed-trade set persisted by earlier runs. Config
// parameters always come from the current configuration; only the processed
// set survives from disk.
func (s *CopyTradingStrategy) Initialize(ctx StrategyContext) error {
	if s.cfg.TargetUser == "" {
		return fmt.Errorf("copy-trading requires a target user")
	}
	if s.cfg.TimeWindow <= 0 {
		return fmt.Errorf("copy-trading requires a positive time window, got %d", s.cfg.TimeWindow)
	}

	var state copyState
	if err := s.file.Load(&state); err != nil {
		return fmt.Errorf("failed to load copy-trading state: %w", err)
	}
	for _, id := range state.ProcessedTrades {
		s.processed[id] = struct{}{}
	}

	ctx.Logger.Info("CopyTradingStrategy initialized",
		zap.String("target_user", s.cfg.TargetUser),
		zap.Int("processed_trades", len(s.processed)),
		zap.Int("time_window", s.cfg.TimeWindow))
	return nil
}

// GenerateSignals fetches the target user's trades since the last successful
// poll and converts the unseen, fresh ones into copy signals.
func (s *CopyTradingStrategy) GenerateSignals(ctx StrategyContext, markets []models.Market, positions []models.Position, balance float64) ([]models.Signal, error) {
	l := ctx.Logger.With(zap.String("strategy", s.Name()))
	now := s.now()
	window := time.Duration(s.cfg.TimeWindow) * time.Second

	since := s.lastPoll
	if since.IsZero() {
		since = now.Add(-window)
	}

	trades, err := ctx.Client.GetTradesByUser(s.cfg.TargetUser, since)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch target user trades: %w", err)
	}

	// Two source trades for the same token in one batch must net out
	// correctly, so the batch is processed in timestamp order. The sort is
	// stable: trades with identical timestamps keep the order the exchange
	// returned them in.
	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].Timestamp.Before(trades[j].Timestamp)
	})

	// The bot's view of what it holds, updated as signals are emitted so a
	// BUY followed by a SELL within the same batch is handled like the
	// executed sequence it will become.
	held := make(map[string]float64, len(positions))
	for _, p := range positions {
		held[p.TokenID] = p.Size
	}

	var signals []models.Signal
	dirty := false

	for _, trade := range trades {
		if _, done := s.processed[trade.ID]; done {
			continue
		}
		s.processed[trade.ID] = struct{}{}
		dirty = true

		age := now.Sub(trade.Timestamp)
		if age >= window {
			// Exclusive bound: a trade exactly time_window old is expired.
			l.Debug("Skipping stale source trade",
				zap.String("source_trade_id", trade.ID),
				zap.Duration("age", age))
			continue
		}

		switch trade.Side {
		case models.SideBuy:
			if held[trade.TokenID] > 0 {
				// No pyramiding: never add to a position via copy-trading.
				l.Info("Skipping copy BUY, position already open",
					zap.String("token_id", trade.TokenID),
					zap.String("source_trade_id", trade.ID))
				continue
			}
			size := s.copySize(balance)
			if size <= 0 {
				continue
			}
			signals = append(signals, models.Signal{
				Side:          models.SideBuy,
				TokenID:       trade.TokenID,
				Price:         trade.Price,
				Size:          size,
				SourceTradeID: trade.ID,
				Reason:        fmt.Sprintf("copying BUY by %s", s.cfg.TargetUser),
			})
			held[trade.TokenID] += size

		case models.SideSell:
			heldSize := held[trade.TokenID]
			if heldSize <= 0 {
				// Still marked processed so it is never retried.
				l.Info("Skipping copy SELL, no position to close",
					zap.String("token_id", trade.TokenID),
					zap.String("source_trade_id", trade.ID))
				continue
			}
			signals = append(signals, models.Signal{
				Side:          models.SideSell,
				TokenID:       trade.TokenID,
				Price:         trade.Price,
				Size:          heldSize, // copy SELLs close the whole position
				SourceTradeID: trade.ID,
				Reason:        fmt.Sprintf("copying SELL by %s", s.cfg.TargetUser),
			})
			held[trade.TokenID] = 0
		}
	}

	if dirty {
		// Persist after the decisions and before handing the signals to the
		// executor; this is what makes restarts safe.
		if err := s.persist(); err != nil {
			return nil, err
		}
	}

	s.lastPoll = now
	if len(signals) > 0 {
		l.Info("Generated copy signals", zap.Int("count", len(signals)))
	}
	return signals, nil
}

// copySize computes the size of a copy BUY: a fixed amount, or a ratio of the
// available balance, clamped to the configured maximum. A configured ratio
// takes precedence over the fixed amount.
func (s *CopyTradingStrategy) copySize(balance float64) float64 {
	size := s.cfg.CopyAmount
	if s.cfg.CopyRatio > 0 {
		size = balance * s.cfg.CopyRatio
	}
	if s.cfg.MaxCopySize > 0 {
		size = math.Min(size, s.cfg.MaxCopySize)
	}
	return size
}

func (s *CopyTradingStrategy) persist() error {
	ids := make([]string, 0, len(s.processed))
	for id := range s.processed {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	state := copyState{
		TargetUser:      s.cfg.TargetUser,
		CopyAmount:      s.cfg.CopyAmount,
		CopyRatio:       s.cfg.CopyRatio,
		TimeWindow:      s.cfg.TimeWindow,
		MaxCopySize:     s.cfg.MaxCopySize,
		ProcessedTrades: ids,
	}
	if err := s.file.Save(state); err != nil {
		return fmt.Errorf("failed to persist copy-trading state: %w", err)
	}
	return nil
}

// CopyStatus is a read-only view of the persisted copy-trading state.
type CopyStatus struct {
	TargetUser      string  `json:"target_user"`
	CopyAmount      float64 `json:"copy_amount"`
	CopyRatio       float64 `json:"copy_ratio"`
	TimeWindow      int     `json:"time_window"`
	MaxCopySize     float64 `json:"max_copy_size"`
	ProcessedTrades int     `json:"processed_trades"`
}

// ReadCopyStatus loads the persisted copy-trading state without mutating it.
func ReadCopyStatus(file *store.File) (CopyStatus, error) {
	var state copyState
	if err := file.Load(&state); err != nil {
		return CopyStatus{}, err
	}
	return CopyStatus{
		TargetUser:      state.TargetUser,
		CopyAmount:      state.CopyAmount,
		CopyRatio:       state.CopyRatio,
		TimeWindow:      state.TimeWindow,
		MaxCopySize:     state.MaxCopySize,
		ProcessedTrades: len(state.ProcessedTrades),
	}, nil
}
