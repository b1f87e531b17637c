package polymarket

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"polymarket-trade-bot-go/internal/config"
	"polymarket-trade-bot-go/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ClientInterface defines the interface the bot consumes from the Polymarket
// APIs. Markets and prices come from the gamma/CLOB endpoints, tracked-user
// trades from the data API, orders go to the CLOB.
type ClientInterface interface {
	ListMarkets() ([]models.Market, error)
	GetOrderBook(tokenID string) (*OrderBook, error)
	GetMidpoint(tokenID string) (float64, error)
	GetTradesByUser(user string, since time.Time) ([]models.UserTrade, error)
	GetBalance() (float64, error)
	SubmitOrder(tokenID string, side models.Side, price, size float64) (*FillResult, error)
}

// RestClient is a client for the Polymarket REST APIs.
// It implements the ClientInterface.
type RestClient struct {
	client  *resty.Client
	cfg     *config.Polymarket
	logger  *zap.Logger
	limiter *rate.Limiter
}

// ensure RestClient implements the interface
var _ ClientInterface = (*RestClient)(nil)

// NewRestClient creates a new Polymarket REST API client.
func NewRestClient(cfg *config.Polymarket, logger *zap.Logger) *RestClient {
	client := resty.New()

	// rate.Limit is requests per second, shared across all three API hosts.
	limiter := rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst)

	return &RestClient{
		client:  client,
		cfg:     cfg,
		logger:  logger,
		limiter: limiter,
	}
}

// sign creates a HMAC-SHA256 signature over the request payload for the CLOB
// L2 auth headers.
func (c *RestClient) sign(data string) string {
	h := hmac.New(sha256.New, []byte(c.cfg.ApiSecret))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// doRequest handles the actual request execution with rate limiting and retry
// logic. 401/403 surface immediately as AuthError; rate limiting, server
// errors and network failures are retried with backoff and surface as
// TransientError when the attempts are exhausted.
func (c *RestClient) doRequest(ctx context.Context, method, url, op string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error
	const maxRetries = 3

	for i := 0; i < maxRetries; i++ {
		// Wait for the rate limiter
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &TransientError{Op: op, Err: fmt.Errorf("rate limiter wait failed: %w", err)}
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil // Success
		}

		// Analyze error and decide whether to retry
		shouldRetry := false
		var retryAfter time.Duration

		if resp != nil && err == nil {
			statusCode := resp.StatusCode()
			switch {
			case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
				return nil, &AuthError{Op: op, Status: statusCode}
			case statusCode == http.StatusTooManyRequests:
				shouldRetry = true
				retryAfterHeader := resp.Header().Get("Retry-After")
				if seconds, err := strconv.Atoi(retryAfterHeader); err == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			case statusCode >= 500: // Server errors
				shouldRetry = true
			}
		} else { // Network or other client-side errors
			shouldRetry = true
		}

		if !shouldRetry {
			return nil, fmt.Errorf("%s failed with status %s: %s", op, resp.Status(), resp.String())
		}

		// If we should retry, calculate wait time
		if retryAfter == 0 {
			// Exponential backoff: 1s, 2s, 4s
			retryAfter = time.Duration(math.Pow(2, float64(i))) * time.Second
		}

		c.logger.Warn("Request failed, retrying...",
			zap.String("op", op),
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
			continue
		case <-ctx.Done():
			return nil, &TransientError{Op: op, Err: ctx.Err()}
		}
	}

	if err == nil {
		err = fmt.Errorf("status %s", resp.Status())
	}
	return nil, &TransientError{Op: op, Err: fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)}
}

// marketToken is one outcome token inside a market response.
type marketToken struct {
	TokenID string  `json:"token_id"`
	Outcome string  `json:"outcome"`
	Price   float64 `json:"price"`
}

// marketResponse is a single market as returned by the markets endpoint.
type marketResponse struct {
	Question        string        `json:"question"`
	Closed          bool          `json:"closed"`
	AcceptingOrders bool          `json:"accepting_orders"`
	Tokens          []marketToken `json:"tokens"`
}

// ListMarkets fetches the open markets. The YES token identifies the market
// for the strategies.
func (c *RestClient) ListMarkets() ([]models.Market, error) {
	var raw []marketResponse

	req := c.client.R().
		SetResult(&raw).
		SetQueryParams(map[string]string{
			"active": "true",
			"closed": "false",
			"limit":  "50",
		}).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", c.cfg.GammaURL+"/markets", "list markets", req)
	if err != nil {
		return nil, err
	}

	raw = *resp.Result().(*[]marketResponse)
	markets := make([]models.Market, 0, len(raw))
	for _, m := range raw {
		market := models.Market{
			Question:        m.Question,
			Closed:          m.Closed,
			AcceptingOrders: m.AcceptingOrders,
		}
		for _, tok := range m.Tokens {
			switch tok.Outcome {
			case "Yes":
				market.TokenID = tok.TokenID
				market.YesPrice = tok.Price
			case "No":
				market.NoPrice = tok.Price
			}
		}
		if market.TokenID == "" {
			continue // market without a YES token is not tradable for us
		}
		markets = append(markets, market)
	}
	return markets, nil
}

// PriceLevel is one level of an orderbook side.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is the current book for one token.
type OrderBook struct {
	Bids []PriceLevel
	Asks []PriceLevel
}

// BestBid returns the highest bid, or 0 when the book side is empty.
func (b *OrderBook) BestBid() float64 {
	best := 0.0
	for _, l := range b.Bids {
		if l.Price > best {
			best = l.Price
		}
	}
	return best
}

// BestAsk returns the lowest ask, or 0 when the book side is empty.
func (b *OrderBook) BestAsk() float64 {
	best := 0.0
	for _, l := range b.Asks {
		if best == 0 || l.Price < best {
			best = l.Price
		}
	}
	return best
}

type rawLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

type orderBookResponse struct {
	Bids []rawLevel `json:"bids"`
	Asks []rawLevel `json:"asks"`
}

// GetOrderBook fetches the current orderbook for a token.
func (c *RestClient) GetOrderBook(tokenID string) (*OrderBook, error) {
	var raw orderBookResponse

	req := c.client.R().
		SetResult(&raw).
		SetQueryParam("token_id", tokenID).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", c.cfg.ClobURL+"/book", "get orderbook", req)
	if err != nil {
		return nil, err
	}

	raw = *resp.Result().(*orderBookResponse)
	book := &OrderBook{}
	for _, l := range raw.Bids {
		price, err1 := strconv.ParseFloat(l.Price, 64)
		size, err2 := strconv.ParseFloat(l.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		book.Bids = append(book.Bids, PriceLevel{Price: price, Size: size})
	}
	for _, l := range raw.Asks {
		price, err1 := strconv.ParseFloat(l.Price, 64)
		size, err2 := strconv.ParseFloat(l.Size, 64)
		if err1 != nil || err2 != nil {
			continue
		}
		book.Asks = append(book.Asks, PriceLevel{Price: price, Size: size})
	}
	return book, nil
}

// GetMidpoint fetches the midpoint price for a token.
func (c *RestClient) GetMidpoint(tokenID string) (float64, error) {
	type midpointResponse struct {
		Mid string `json:"mid"`
	}
	var raw midpointResponse

	req := c.client.R().
		SetResult(&raw).
		SetQueryParam("token_id", tokenID).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", c.cfg.ClobURL+"/midpoint", "get midpoint", req)
	if err != nil {
		return 0, err
	}

	raw = *resp.Result().(*midpointResponse)
	mid, err := strconv.ParseFloat(raw.Mid, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse midpoint %q for %s: %w", raw.Mid, tokenID, err)
	}
	return mid, nil
}

// userTradeResponse is one trade from the data API's trade feed.
type userTradeResponse struct {
	TransactionHash string  `json:"transactionHash"`
	Side            string  `json:"side"`
	Asset           string  `json:"asset"`
	Price           float64 `json:"price"`
	Size            float64 `json:"size"`
	Timestamp       int64   `json:"timestamp"`
}

// GetTradesByUser fetches the user's trades at or after since. Windows may
// overlap with earlier polls after retries; callers dedup by trade id, never
// by timestamp.
func (c *RestClient) GetTradesByUser(user string, since time.Time) ([]models.UserTrade, error) {
	var raw []userTradeResponse

	req := c.client.R().
		SetResult(&raw).
		SetQueryParams(map[string]string{
			"user":  user,
			"limit": "100",
		}).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", c.cfg.DataURL+"/trades", "get user trades", req)
	if err != nil {
		return nil, err
	}

	raw = *resp.Result().(*[]userTradeResponse)
	trades := make([]models.UserTrade, 0, len(raw))
	for _, t := range raw {
		ts := time.Unix(t.Timestamp, 0)
		if ts.Before(since) {
			continue
		}
		trades = append(trades, models.UserTrade{
			ID:        t.TransactionHash,
			Side:      models.Side(t.Side),
			TokenID:   t.Asset,
			Price:     t.Price,
			Size:      t.Size,
			Timestamp: ts,
		})
	}
	return trades, nil
}

// GetBalance fetches the account's available USDC value.
func (c *RestClient) GetBalance() (float64, error) {
	type valueResponse struct {
		User  string  `json:"user"`
		Value float64 `json:"value"`
	}
	var raw []valueResponse

	req := c.client.R().
		SetResult(&raw).
		SetQueryParam("user", c.cfg.Funder).
		SetHeader("Content-Type", "application/json")
	ctx := context.Background()

	resp, err := c.doRequest(ctx, "GET", c.cfg.DataURL+"/value", "get balance", req)
	if err != nil {
		return 0, err
	}

	raw = *resp.Result().(*[]valueResponse)
	if len(raw) == 0 {
		return 0, nil
	}
	return raw[0].Value, nil
}

// FillResult is the confirmed fill of a submitted order.
type FillResult struct {
	OrderID string
	Price   float64
	Size    float64
	Status  string
}

type orderResponse struct {
	Success  bool   `json:"success"`
	ErrorMsg string `json:"errorMsg"`
	OrderID  string `json:"orderID"`
	Status   string `json:"status"`
}

// SubmitOrder places an order on the CLOB and returns the confirmed fill.
func (c *RestClient) SubmitOrder(tokenID string, side models.Side, price, size float64) (*FillResult, error) {
	clientID := uuid.NewString()
	body := map[string]any{
		"order": map[string]any{
			"token_id":  tokenID,
			"side":      string(side),
			"price":     price,
			"size":      size,
			"client_id": clientID,
		},
		"owner":     c.cfg.ApiKey,
		"orderType": "FOK",
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req := c.client.R().
		SetBody(body).
		SetResult(&orderResponse{}).
		SetHeader("Content-Type", "application/json").
		SetHeader("POLY-API-KEY", c.cfg.ApiKey).
		SetHeader("POLY-PASSPHRASE", c.cfg.Passphrase).
		SetHeader("POLY-TIMESTAMP", timestamp).
		SetHeader("POLY-SIGNATURE", c.sign(timestamp+"POST/order"))

	ctx := context.Background()
	resp, err := c.doRequest(ctx, "POST", c.cfg.ClobURL+"/order", "submit order", req)
	if err != nil {
		c.logger.Error("Failed to submit order",
			zap.Error(err),
			zap.String("token_id", tokenID),
			zap.String("side", string(side)),
		)
		return nil, err
	}

	result := resp.Result().(*orderResponse)
	if !result.Success {
		return nil, fmt.Errorf("order rejected by exchange: %s", result.ErrorMsg)
	}

	c.logger.Info("Successfully submitted order",
		zap.String("order_id", result.OrderID),
		zap.String("client_id", clientID),
		zap.String("status", result.Status))
	return &FillResult{
		OrderID: result.OrderID,
		Price:   price,
		Size:    size,
		Status:  result.Status,
	}, nil
}
