package models

import "time"

// OrderHandle identifies a submitted order at the broker.
type OrderHandle string

// Order is a signed share delta sent to the broker. Positive buys, negative sells.
type Order struct {
	Handle     OrderHandle
	Instrument Instrument
	Quantity   int64
	Target     int64
	Current    int64
	Price      float64
	Time       time.Time
}

// Side returns "buy" or "sell".
func (o Order) Side() string {
	if o.Quantity < 0 {
		return "sell"
	}
	return "buy"
}
