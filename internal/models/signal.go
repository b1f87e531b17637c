package models

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Signal is a proposed trade produced by a strategy. It is not yet executed;
// the executor decides whether it passes risk checks and at what price it fills.
type Signal struct {
	Side    Side
	TokenID string
	Price   float64 // probability-denominated, in [0,1]
	Size    float64

	// SourceTradeID is set only for copy-trading signals and identifies the
	// target user's trade this signal mirrors. Used for exactly-once dedup.
	SourceTradeID string

	// Reason is a human-readable explanation for the audit log.
	Reason string
}
