package book

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"polymarket-trade-bot-go/internal/ledger"
	"polymarket-trade-bot-go/internal/models"
	"polymarket-trade-bot-go/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrNoPosition is returned by Close when no position is open for the token.
	ErrNoPosition = errors.New("no open position")

	// ErrInsufficientSize is returned by Close when the exit size exceeds the
	// open position's size.
	ErrInsufficientSize = errors.New("exit size exceeds open position size")
)

// positionDoc is the persisted shape of one position in virtual_positions.json.
type positionDoc struct {
	EntryPrice float64   `json:"entry_price"`
	Size       float64   `json:"size"`
	EntryTime  time.Time `json:"entry_time"`
}

// Book owns all open positions. It is the only writer of the trade history
// ledger; every close goes through it so position state and the ledger stay
// consistent. All mutations are persisted to the positions file before they
// are visible to callers.
//
// The Book is single-writer: the polling loop is the only goroutine that
// mutates it. The status API reads it from HTTP handler goroutines, so reads
// and writes are guarded by an RWMutex.
type Book struct {
	file   *store.File
	ledger ledger.Appender
	logger *zap.Logger

	mu        sync.RWMutex
	positions map[string]*models.Position
	order     []string // token ids in insertion order of first open
}

// NewBook loads any persisted positions and returns a ready Book.
func NewBook(file *store.File, lg ledger.Appender, logger *zap.Logger) (*Book, error) {
	b := &Book{
		file:      file,
		ledger:    lg,
		logger:    logger,
		positions: make(map[string]*models.Position),
	}

	doc := make(map[string]positionDoc)
	if err := file.Load(&doc); err != nil {
		return nil, fmt.Errorf("failed to load positions: %w", err)
	}

	for tokenID, p := range doc {
		b.positions[tokenID] = &models.Position{
			TokenID:    tokenID,
			EntryPrice: p.EntryPrice,
			Size:       p.Size,
			EntryTime:  p.EntryTime,
		}
		b.order = append(b.order, tokenID)
	}
	// The JSON document is a map, so first-open order is re-derived from the
	// entry times after a restart.
	sort.Slice(b.order, func(i, j int) bool {
		pi, pj := b.positions[b.order[i]], b.positions[b.order[j]]
		if pi.EntryTime.Equal(pj.EntryTime) {
			return pi.TokenID < pj.TokenID
		}
		return pi.EntryTime.Before(pj.EntryTime)
	})

	if len(b.positions) > 0 {
		logger.Info("Loaded persisted positions", zap.Int("count", len(b.positions)))
	}
	return b, nil
}

// OpenOrIncrease records a filled BUY. If a position already exists for the
// token, its size grows and the entry price becomes the size-weighted average
// of old and new fills; otherwise a new position is created.
func (b *Book) OpenOrIncrease(tokenID string, fillPrice, size float64, entryTime time.Time) (models.Position, error) {
	if size <= 0 {
		return models.Position{}, fmt.Errorf("position size must be positive, got %f", size)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[tokenID]
	if !ok {
		pos = &models.Position{
			TokenID:    tokenID,
			EntryPrice: fillPrice,
			Size:       size,
			EntryTime:  entryTime,
		}
		b.positions[tokenID] = pos
		b.order = append(b.order, tokenID)
	} else {
		newSize := pos.Size + size
		pos.EntryPrice = (pos.EntryPrice*pos.Size + fillPrice*size) / newSize
		pos.Size = newSize
	}

	if err := b.persist(); err != nil {
		return models.Position{}, err
	}

	b.logger.Info("Position opened/increased",
		zap.String("token_id", tokenID),
		zap.Float64("entry_price", pos.EntryPrice),
		zap.Float64("size", pos.Size))
	return *pos, nil
}

// Close records a filled SELL against an open position. It reduces the
// position (removing it entirely when the remaining size reaches zero),
// persists the result and appends the closed trade to the ledger.
func (b *Book) Close(tokenID string, exitSize, exitPrice float64, exitTime time.Time, slippage float64) (models.TradeRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[tokenID]
	if !ok {
		return models.TradeRecord{}, fmt.Errorf("%w: %s", ErrNoPosition, tokenID)
	}
	if exitSize-pos.Size > 1e-9 {
		return models.TradeRecord{}, fmt.Errorf("%w: %s (have %f, asked %f)",
			ErrInsufficientSize, tokenID, pos.Size, exitSize)
	}

	rec := models.TradeRecord{
		Timestamp:   exitTime,
		TokenID:     tokenID,
		Side:        models.SideSell,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   exitPrice,
		Size:        exitSize,
		HoldingTime: exitTime.Sub(pos.EntryTime),
		PnL:         (exitPrice - pos.EntryPrice) * exitSize,
		Slippage:    slippage,
	}
	if pos.EntryPrice > 0 {
		rec.PnLPct = (exitPrice - pos.EntryPrice) / pos.EntryPrice
	}

	remaining := pos.Size - exitSize
	if remaining <= 1e-9 {
		// No zero-size positions persist.
		delete(b.positions, tokenID)
		for i, id := range b.order {
			if id == tokenID {
				b.order = append(b.order[:i], b.order[i+1:]...)
				break
			}
		}
	} else {
		pos.Size = remaining
	}

	if err := b.persist(); err != nil {
		return models.TradeRecord{}, err
	}
	if err := b.ledger.Append(rec); err != nil {
		return models.TradeRecord{}, fmt.Errorf("position closed but trade record not appended: %w", err)
	}

	b.logger.Info("Position closed",
		zap.String("token_id", tokenID),
		zap.Float64("size", exitSize),
		zap.Float64("pnl", rec.PnL))
	return rec, nil
}

// Get returns the open position for the token, if any.
func (b *Book) Get(tokenID string) (models.Position, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	pos, ok := b.positions[tokenID]
	if !ok {
		return models.Position{}, false
	}
	return *pos, true
}

// List returns all open positions in insertion order of first open. The order
// is stable across reads.
func (b *Book) List() []models.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]models.Position, 0, len(b.order))
	for _, tokenID := range b.order {
		out = append(out, *b.positions[tokenID])
	}
	return out
}

// TotalExposure is the value committed across all open positions at their
// entry prices.
func (b *Book) TotalExposure() float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total float64
	for _, pos := range b.positions {
		total += pos.Value()
	}
	return total
}

func (b *Book) persist() error {
	doc := make(map[string]positionDoc, len(b.positions))
	for tokenID, pos := range b.positions {
		doc[tokenID] = positionDoc{
			EntryPrice: pos.EntryPrice,
			Size:       pos.Size,
			EntryTime:  pos.EntryTime,
		}
	}
	if err := b.file.Save(doc); err != nil {
		return fmt.Errorf("failed to persist positions: %w", err)
	}
	return nil
}
