package models

import "time"

// Market is one open prediction market as seen by the bot. TokenID refers to
// the YES outcome token; strategies trade that token.
type Market struct {
	TokenID         string
	Question        string
	YesPrice        float64
	NoPrice         float64
	Closed          bool
	AcceptingOrders bool
}

// UserTrade is a single trade by a tracked user, as reported by the exchange's
// trade feed. ID is a stable identifier (transaction hash) used for dedup;
// polling windows can overlap after retries, so timestamps alone are not enough.
type UserTrade struct {
	ID        string
	Side      Side
	TokenID   string
	Price     float64
	Size      float64
	Timestamp time.Time
}
