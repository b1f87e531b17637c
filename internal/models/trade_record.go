package models

import (
	"time"

	"gorm.io/gorm"
)

// TradeRecord is one closed trade. Records are written only when a position
// (or part of one) is closed, so Side is always SELL. Once appended to the
// history they are never mutated.
type TradeRecord struct {
	Timestamp   time.Time
	TokenID     string
	Side        Side
	EntryPrice  float64
	ExitPrice   float64
	Size        float64
	HoldingTime time.Duration
	PnL         float64
	PnLPct      float64
	Slippage    float64
}

// TradeRow is the database mirror of a TradeRecord, kept for status queries.
// The CSV history file remains the authoritative ledger.
type TradeRow struct {
	gorm.Model
	TokenID            string  `json:"token_id"`
	Side               string  `json:"side"`
	EntryPrice         float64 `json:"entry_price"`
	ExitPrice          float64 `json:"exit_price"`
	Size               float64 `json:"size"`
	HoldingTimeSeconds float64 `json:"holding_time_seconds"`
	PnL                float64 `json:"pnl"`
	PnLPct             float64 `json:"pnl_pct"`
	Slippage           float64 `json:"slippage"`
	Timestamp          int64   `json:"timestamp"`
}

// Row converts a TradeRecord into its database representation.
func (r TradeRecord) Row() TradeRow {
	return TradeRow{
		TokenID:            r.TokenID,
		Side:               string(r.Side),
		EntryPrice:         r.EntryPrice,
		ExitPrice:          r.ExitPrice,
		Size:               r.Size,
		HoldingTimeSeconds: r.HoldingTime.Seconds(),
		PnL:                r.PnL,
		PnLPct:             r.PnLPct,
		Slippage:           r.Slippage,
		Timestamp:          r.Timestamp.Unix(),
	}
}
