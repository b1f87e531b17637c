package models

import "time"

// Position is an open, unsettled holding in one market token.
// There is at most one Position per token id; buying into an existing
// position increases its size and recomputes the size-weighted entry price.
type Position struct {
	TokenID    string    `json:"token_id"`
	EntryPrice float64   `json:"entry_price"`
	Size       float64   `json:"size"`
	EntryTime  time.Time `json:"entry_time"`
}

// Value is the amount committed to the position at its entry price.
func (p Position) Value() float64 {
	return p.EntryPrice * p.Size
}
