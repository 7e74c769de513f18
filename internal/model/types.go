package model

import "time"

// -----------------------------------------------------------------------------
// Order Book Types
// -----------------------------------------------------------------------------

// Side identifies which half of the book (or order set) an entry belongs to.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// PriceLevel is a single entry in a ladder.
type PriceLevel struct {
	Price float64 // Level price
	Size  float64 // Resting size at this price, always > 0 inside a ladder
}

// -----------------------------------------------------------------------------
// Account Types
// -----------------------------------------------------------------------------

// OpenOrder is a resting order the venue still considers open
// (or best-effort open).
type OpenOrder struct {
	ClientID  string  // Client-assigned order id (primary key)
	Side      Side    // BUY or SELL
	Price     float64 // Limit price
	Size      float64 // Order size (base units)
	ExpiresAt int64   // Absolute expiry, epoch seconds (0 = none)
	LongLived bool    // True when validity is an absolute expiry timestamp
}

// Fill is a single matched trade reported by the feed or the historical
// fills source.
type Fill struct {
	Price     float64
	Size      float64
	CreatedAt time.Time
}

// Direction is the side of a tracked position.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionNone  Direction = "none"
)

// Position is the single tracked instrument position.
//
// AvgExit is only meaningful when AvgExitValid is true; the venue reports a
// null exit price until the position has partially closed.
type Position struct {
	Symbol       string
	Direction    Direction
	AvgEntry     float64
	AvgExit      float64
	AvgExitValid bool

	SizeBase float64 // Absolute base size
	SizeUSD  float64 // Quote notional (size x reference price)

	CumulativeOpened float64 // Quote volume opened over the position's life
	CumulativeClosed float64 // Quote volume closed over the position's life

	RealizedPnl   float64
	UnrealizedPnl float64
}

// Open reports whether a position is currently tracked.
func (p Position) Open() bool {
	return p.Direction == DirectionLong || p.Direction == DirectionShort
}

// Collateral is the single account collateral balance, fully replaced on
// every update.
type Collateral struct {
	Symbol string
	Size   float64
}

// -----------------------------------------------------------------------------
// Instrument Metadata
// -----------------------------------------------------------------------------

// InstrumentMeta holds per-symbol precision and minimum size derived from an
// instrument snapshot.
type InstrumentMeta struct {
	Symbol        string
	TickSize      string  // Raw tick size string from the venue (e.g., "0.1")
	StepSize      string  // Raw step size string (e.g., "0.001")
	PriceDecimals int     // Digits after the decimal point in TickSize
	SizeDecimals  int     // Digits after the decimal point in StepSize
	MinOrderSize  float64 // Minimum order size in base units
}
