package trader

import (
	"math/rand"
	"testing"
	"time"

	"polymarket-trade-bot-go/internal/config"
	"polymarket-trade-bot-go/internal/models"
	"polymarket-trade-bot-go/internal/polymarket"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// stubStrategy returns a fixed batch of signals.
type stubStrategy struct {
	signals []models.Signal
	err     error
}

func (s *stubStrategy) Name() string                        { return "stub" }
func (s *stubStrategy) Initialize(ctx StrategyContext) error { return nil }
func (s *stubStrategy) GenerateSignals(ctx StrategyContext, markets []models.Market, positions []models.Position, balance float64) ([]models.Signal, error) {
	return s.signals, s.err
}

func engineTestConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Trading.DryRun = true
	cfg.Trading.PollInterval = 60
	cfg.Trading.VirtualBalance = 1000
	return cfg
}

func TestEngine_RunOnce(t *testing.T) {
	t.Run("ExecutesSignals", func(t *testing.T) {
		// Arrange
		b := newTestBook(t)
		client := new(MockClient)
		client.On("ListMarkets").Return([]models.Market{}, nil)
		limits := defaultLimits()
		limits.MaxSlippage = 0
		executor := NewExecutor(ModeSimulated, limits, client, b, rand.New(rand.NewSource(1)), zap.NewNop())
		strategy := &stubStrategy{signals: []models.Signal{
			{Side: models.SideBuy, TokenID: "token-a", Price: 0.50, Size: 10},
		}}
		engine := NewEngine(zap.NewNop(), engineTestConfig(), client, strategy, executor, b)

		// Act
		err := engine.RunOnce()

		// Assert
		assert.NoError(t, err)
		pos, ok := b.Get("token-a")
		assert.True(t, ok)
		assert.Equal(t, 10.0, pos.Size)
	})

	t.Run("RiskRejectionDoesNotFailIteration", func(t *testing.T) {
		// Arrange: the first signal breaks the position limit, the second is
		// fine. Both are attempted.
		b := newTestBook(t)
		client := new(MockClient)
		client.On("ListMarkets").Return([]models.Market{}, nil)
		limits := defaultLimits()
		limits.MaxSlippage = 0
		executor := NewExecutor(ModeSimulated, limits, client, b, rand.New(rand.NewSource(1)), zap.NewNop())
		strategy := &stubStrategy{signals: []models.Signal{
			{Side: models.SideBuy, TokenID: "token-a", Price: 0.50, Size: 500},
			{Side: models.SideBuy, TokenID: "token-b", Price: 0.50, Size: 10},
		}}
		engine := NewEngine(zap.NewNop(), engineTestConfig(), client, strategy, executor, b)

		// Act
		err := engine.RunOnce()

		// Assert
		assert.NoError(t, err)
		_, ok := b.Get("token-a")
		assert.False(t, ok)
		_, ok = b.Get("token-b")
		assert.True(t, ok)
	})

	t.Run("MarketFetchFailurePropagates", func(t *testing.T) {
		b := newTestBook(t)
		client := new(MockClient)
		client.On("ListMarkets").Return(nil, &polymarket.TransientError{Op: "list markets", Err: assert.AnError})
		limits := defaultLimits()
		executor := NewExecutor(ModeSimulated, limits, client, b, rand.New(rand.NewSource(1)), zap.NewNop())
		engine := NewEngine(zap.NewNop(), engineTestConfig(), client, &stubStrategy{}, executor, b)

		err := engine.RunOnce()

		assert.Error(t, err)
		assert.True(t, polymarket.IsTransient(err))
	})
}

func TestEngine_AuthFailureHandling(t *testing.T) {
	t.Run("FatalInLiveMode", func(t *testing.T) {
		// Arrange: a live engine whose order submission hits an auth failure.
		b := newTestBook(t)
		client := new(MockClient)
		client.On("ListMarkets").Return([]models.Market{}, nil)
		client.On("GetBalance").Return(1000.0, nil)
		client.On("SubmitOrder", "token-a", models.SideBuy, 0.50, 10.0).
			Return(nil, &polymarket.AuthError{Op: "submit order", Status: 401})
		limits := defaultLimits()
		limits.MaxSlippage = 0
		executor := NewExecutor(ModeLive, limits, client, b, rand.New(rand.NewSource(1)), zap.NewNop())
		strategy := &stubStrategy{signals: []models.Signal{
			{Side: models.SideBuy, TokenID: "token-a", Price: 0.50, Size: 10},
		}}
		cfg := engineTestConfig()
		cfg.Trading.DryRun = false
		engine := NewEngine(zap.NewNop(), cfg, client, strategy, executor, b)

		// Act
		err := engine.RunOnce()

		// Assert: the error propagates and nothing reached the book.
		assert.Error(t, err)
		assert.True(t, polymarket.IsAuth(err))
		assert.Empty(t, b.List())
	})

	t.Run("SubmitFailureNonFatalInLiveMode", func(t *testing.T) {
		// Arrange: a transient submission failure drops the signal but the
		// iteration itself succeeds.
		b := newTestBook(t)
		client := new(MockClient)
		client.On("ListMarkets").Return([]models.Market{}, nil)
		client.On("GetBalance").Return(1000.0, nil)
		client.On("SubmitOrder", "token-a", models.SideBuy, 0.50, 10.0).
			Return(nil, &polymarket.TransientError{Op: "submit order", Err: assert.AnError})
		limits := defaultLimits()
		limits.MaxSlippage = 0
		executor := NewExecutor(ModeLive, limits, client, b, rand.New(rand.NewSource(1)), zap.NewNop())
		strategy := &stubStrategy{signals: []models.Signal{
			{Side: models.SideBuy, TokenID: "token-a", Price: 0.50, Size: 10},
		}}
		cfg := engineTestConfig()
		cfg.Trading.DryRun = false
		engine := NewEngine(zap.NewNop(), cfg, client, strategy, executor, b)

		// Act
		err := engine.RunOnce()

		// Assert
		assert.NoError(t, err)
		assert.Empty(t, b.List())
	})
}

func TestEngine_DryRunBalanceNetsExposure(t *testing.T) {
	// Arrange: exposure 0.50*100 = 50 against a 1000 virtual balance.
	b := newTestBook(t)
	_, err := b.OpenOrIncrease("token-a", 0.50, 100, time.Now())
	assert.NoError(t, err)
	client := new(MockClient)
	executor := NewExecutor(ModeSimulated, defaultLimits(), client, b, rand.New(rand.NewSource(1)), zap.NewNop())
	engine := NewEngine(zap.NewNop(), engineTestConfig(), client, &stubStrategy{}, executor, b)

	// Act
	balance, err := engine.balance()

	// Assert
	assert.NoError(t, err)
	assert.Equal(t, 950.0, balance)
}
