package trader

import (
	"time"

	"polymarket-trade-bot-go/internal/models"
	"polymarket-trade-bot-go/internal/polymarket"
	"github.com/stretchr/testify/mock"
)

// MockClient is a testify mock of polymarket.ClientInterface shared by the
// trader package tests.
type MockClient struct {
	mock.Mock
}

var _ polymarket.ClientInterface = (*MockClient)(nil)

func (m *MockClient) ListMarkets() ([]models.Market, error) {
	args := m.Called()
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Market), args.Error(1)
}

func (m *MockClient) GetOrderBook(tokenID string) (*polymarket.OrderBook, error) {
	args := m.Called(tokenID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*polymarket.OrderBook), args.Error(1)
}

func (m *MockClient) GetMidpoint(tokenID string) (float64, error) {
	args := m.Called(tokenID)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockClient) GetTradesByUser(user string, since time.Time) ([]models.UserTrade, error) {
	args := m.Called(user, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UserTrade), args.Error(1)
}

func (m *MockClient) GetBalance() (float64, error) {
	args := m.Called()
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockClient) SubmitOrder(tokenID string, side models.Side, price, size float64) (*polymarket.FillResult, error) {
	args := m.Called(tokenID, side, price, size)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*polymarket.FillResult), args.Error(1)
}
