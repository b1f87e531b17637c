package trader

import (
	"path/filepath"
	"testing"
	"time"

	"polymarket-trade-bot-go/internal/config"
	"polymarket-trade-bot-go/internal/models"
	"polymarket-trade-bot-go/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
)

func copyTestConfig() config.Copy {
	return config.Copy{
		TargetUser:  "0xwhale",
		CopyAmount:  10,
		TimeWindow:  300,
		MaxCopySize: 100,
	}
}

func newCopyStrategy(t *testing.T, cfg config.Copy, now time.Time) (*CopyTradingStrategy, *store.File, *MockClient, StrategyContext) {
	t.Helper()
	file := store.NewFile(filepath.Join(t.TempDir(), "copy_trading_state.json"), zap.NewNop())
	client := new(MockClient)
	s := NewCopyTradingStrategy(cfg, file)
	s.now = func() time.Time { return now }
	ctx := StrategyContext{Logger: zap.NewNop(), Cfg: &config.Config{}, Client: client}
	assert.NoError(t, s.Initialize(ctx))
	return s, file, client, ctx
}

func TestCopyTradingStrategy_DedupAcrossPolls(t *testing.T) {
	// Arrange
	now := time.Now()
	s, _, client, ctx := newCopyStrategy(t, copyTestConfig(), now)

	trade := models.UserTrade{
		ID:        "trade-1",
		Side:      models.SideBuy,
		TokenID:   "token-a",
		Price:     0.45,
		Size:      50,
		Timestamp: now.Add(-10 * time.Second),
	}
	client.On("GetTradesByUser", "0xwhale", mock.Anything).Return([]models.UserTrade{trade}, nil)

	// Act: the same source trade shows up in two consecutive polls.
	first, err := s.GenerateSignals(ctx, nil, nil, 1000)
	assert.NoError(t, err)
	second, err := s.GenerateSignals(ctx, nil, nil, 1000)
	assert.NoError(t, err)

	// Assert: converted exactly once.
	assert.Len(t, first, 1)
	assert.Equal(t, "trade-1", first[0].SourceTradeID)
	assert.Equal(t, models.SideBuy, first[0].Side)
	assert.Equal(t, 10.0, first[0].Size)
	assert.Empty(t, second)
}

func TestCopyTradingStrategy_DedupSurvivesRestart(t *testing.T) {
	// Arrange
	now := time.Now()
	cfg := copyTestConfig()
	s, file, client, ctx := newCopyStrategy(t, cfg, now)

	trade := models.UserTrade{
		ID:        "trade-1",
		Side:      models.SideBuy,
		TokenID:   "token-a",
		Price:     0.45,
		Size:      50,
		Timestamp: now.Add(-10 * time.Second),
	}
	client.On("GetTradesByUser", "0xwhale", mock.Anything).Return([]models.UserTrade{trade}, nil)

	first, err := s.GenerateSignals(ctx, nil, nil, 1000)
	assert.NoError(t, err)
	assert.Len(t, first, 1)

	// Act: a fresh strategy instance on the same state file sees the same
	// trade again.
	restarted := NewCopyTradingStrategy(cfg, file)
	restarted.now = func() time.Time { return now }
	client2 := new(MockClient)
	client2.On("GetTradesByUser", "0xwhale", mock.Anything).Return([]models.UserTrade{trade}, nil)
	ctx2 := StrategyContext{Logger: zap.NewNop(), Cfg: &config.Config{}, Client: client2}
	assert.NoError(t, restarted.Initialize(ctx2))

	second, err := restarted.GenerateSignals(ctx2, nil, nil, 1000)

	// Assert
	assert.NoError(t, err)
	assert.Empty(t, second)
}

func TestCopyTradingStrategy_TimeWindowBoundary(t *testing.T) {
	// Arrange: time_window is 300s; a 299s-old trade is fresh, a 300s-old
	// trade is expired.
	now := time.Now()
	s, _, client, ctx := newCopyStrategy(t, copyTestConfig(), now)

	trades := []models.UserTrade{
		{ID: "fresh", Side: models.SideBuy, TokenID: "token-a", Price: 0.45, Timestamp: now.Add(-299 * time.Second)},
		{ID: "expired", Side: models.SideBuy, TokenID: "token-b", Price: 0.45, Timestamp: now.Add(-300 * time.Second)},
	}
	client.On("GetTradesByUser", "0xwhale", mock.Anything).Return(trades, nil)

	// Act
	signals, err := s.GenerateSignals(ctx, nil, nil, 1000)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, signals, 1)
	assert.Equal(t, "fresh", signals[0].SourceTradeID)

	// The expired trade must still never come back.
	more, err := s.GenerateSignals(ctx, nil, nil, 1000)
	assert.NoError(t, err)
	assert.Empty(t, more)
}

func TestCopyTradingStrategy_NoPyramiding(t *testing.T) {
	// Arrange: a position in token-a is already open.
	now := time.Now()
	s, _, client, ctx := newCopyStrategy(t, copyTestConfig(), now)

	trade := models.UserTrade{
		ID:        "trade-1",
		Side:      models.SideBuy,
		TokenID:   "token-a",
		Price:     0.55,
		Timestamp: now.Add(-10 * time.Second),
	}
	client.On("GetTradesByUser", "0xwhale", mock.Anything).Return([]models.UserTrade{trade}, nil)
	positions := []models.Position{{TokenID: "token-a", EntryPrice: 0.50, Size: 10, EntryTime: now.Add(-time.Hour)}}

	// Act
	signals, err := s.GenerateSignals(ctx, nil, positions, 1000)

	// Assert: skipped, and marked processed so it is not retried.
	assert.NoError(t, err)
	assert.Empty(t, signals)
	more, err := s.GenerateSignals(ctx, nil, nil, 1000)
	assert.NoError(t, err)
	assert.Empty(t, more)
}

func TestCopyTradingStrategy_SellWithoutPosition(t *testing.T) {
	// Arrange
	now := time.Now()
	s, _, client, ctx := newCopyStrategy(t, copyTestConfig(), now)

	trade := models.UserTrade{
		ID:        "sell-1",
		Side:      models.SideSell,
		TokenID:   "token-a",
		Price:     0.60,
		Timestamp: now.Add(-10 * time.Second),
	}
	client.On("GetTradesByUser", "0xwhale", mock.Anything).Return([]models.UserTrade{trade}, nil)

	// Act
	signals, err := s.GenerateSignals(ctx, nil, nil, 1000)

	// Assert: no signal, but the trade is consumed.
	assert.NoError(t, err)
	assert.Empty(t, signals)
	more, err := s.GenerateSignals(ctx, nil, nil, 1000)
	assert.NoError(t, err)
	assert.Empty(t, more)
}

func TestCopyTradingStrategy_SellClosesWholePosition(t *testing.T) {
	// Arrange
	now := time.Now()
	s, _, client, ctx := newCopyStrategy(t, copyTestConfig(), now)

	trade := models.UserTrade{
		ID:        "sell-1",
		Side:      models.SideSell,
		TokenID:   "token-a",
		Price:     0.60,
		Size:      5, // the source size is irrelevant
		Timestamp: now.Add(-10 * time.Second),
	}
	client.On("GetTradesByUser", "0xwhale", mock.Anything).Return([]models.UserTrade{trade}, nil)
	positions := []models.Position{{TokenID: "token-a", EntryPrice: 0.50, Size: 25, EntryTime: now.Add(-time.Hour)}}

	// Act
	signals, err := s.GenerateSignals(ctx, nil, positions, 1000)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, signals, 1)
	assert.Equal(t, models.SideSell, signals[0].Side)
	assert.Equal(t, 25.0, signals[0].Size)
}

func TestCopyTradingStrategy_BatchIsTimestampOrdered(t *testing.T) {
	// Arrange: the feed returns a SELL before the BUY that opened the
	// position, but the BUY is older. Processing in timestamp order means
	// the BUY opens first and the SELL then closes it.
	now := time.Now()
	s, _, client, ctx := newCopyStrategy(t, copyTestConfig(), now)

	trades := []models.UserTrade{
		{ID: "sell-1", Side: models.SideSell, TokenID: "token-a", Price: 0.60, Timestamp: now.Add(-10 * time.Second)},
		{ID: "buy-1", Side: models.SideBuy, TokenID: "token-a", Price: 0.45, Timestamp: now.Add(-60 * time.Second)},
	}
	client.On("GetTradesByUser", "0xwhale", mock.Anything).Return(trades, nil)

	// Act
	signals, err := s.GenerateSignals(ctx, nil, nil, 1000)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, signals, 2)
	assert.Equal(t, "buy-1", signals[0].SourceTradeID)
	assert.Equal(t, models.SideBuy, signals[0].Side)
	assert.Equal(t, "sell-1", signals[1].SourceTradeID)
	assert.Equal(t, models.SideSell, signals[1].Side)
	assert.Equal(t, signals[0].Size, signals[1].Size)
}

func TestCopyTradingStrategy_RatioSizing(t *testing.T) {
	// Arrange: copy_ratio 0.05 of a 1000 balance is 50, under the cap.
	cfg := copyTestConfig()
	cfg.CopyRatio = 0.05
	now := time.Now()
	s, _, client, ctx := newCopyStrategy(t, cfg, now)

	trade := models.UserTrade{
		ID: "trade-1", Side: models.SideBuy, TokenID: "token-a",
		Price: 0.45, Timestamp: now.Add(-10 * time.Second),
	}
	client.On("GetTradesByUser", "0xwhale", mock.Anything).Return([]models.UserTrade{trade}, nil)

	// Act
	signals, err := s.GenerateSignals(ctx, nil, nil, 1000)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, signals, 1)
	assert.Equal(t, 50.0, signals[0].Size)
}

func TestCopyTradingStrategy_MaxCopySizeCap(t *testing.T) {
	// Arrange: 0.5 of a 1000 balance is 500, clamped to 100.
	cfg := copyTestConfig()
	cfg.CopyRatio = 0.5
	now := time.Now()
	s, _, client, ctx := newCopyStrategy(t, cfg, now)

	trade := models.UserTrade{
		ID: "trade-1", Side: models.SideBuy, TokenID: "token-a",
		Price: 0.45, Timestamp: now.Add(-10 * time.Second),
	}
	client.On("GetTradesByUser", "0xwhale", mock.Anything).Return([]models.UserTrade{trade}, nil)

	// Act
	signals, err := s.GenerateSignals(ctx, nil, nil, 1000)

	// Assert
	assert.NoError(t, err)
	assert.Len(t, signals, 1)
	assert.Equal(t, 100.0, signals[0].Size)
}

func TestCopyTradingStrategy_InitializeValidation(t *testing.T) {
	file := store.NewFile(filepath.Join(t.TempDir(), "state.json"), zap.NewNop())
	ctx := StrategyContext{Logger: zap.NewNop(), Cfg: &config.Config{}, Client: new(MockClient)}

	t.Run("MissingTargetUser", func(t *testing.T) {
		cfg := copyTestConfig()
		cfg.TargetUser = ""
		err := NewCopyTradingStrategy(cfg, file).Initialize(ctx)
		assert.Error(t, err)
	})

	t.Run("NonPositiveWindow", func(t *testing.T) {
		cfg := copyTestConfig()
		cfg.TimeWindow = 0
		err := NewCopyTradingStrategy(cfg, file).Initialize(ctx)
		assert.Error(t, err)
	})
}
