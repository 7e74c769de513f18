package account

import (
	"context"
	"time"

	"github.com/rickgao/perp-stream/internal/model"
)

// PriceSource is the read-only reference-price lookup used for all notional
// and PnL math. Implementations return a typed no-data error when the venue
// has no candle for the symbol; the caller treats that as fatal for the
// computation that needed it, never for held state.
type PriceSource interface {
	LatestDailyClose(ctx context.Context, symbol string) (float64, error)
}

// FillsSource is the read-only historical fills lookup used to seed the
// fill ledger on (re)subscribe while a position is open.
type FillsSource interface {
	RecentFills(ctx context.Context, address, symbol string, limit int) ([]model.Fill, error)
}

// bootstrapPrices is the explicit pre-initialization price source: every
// lookup resolves to 1 until a real client is attached. Modeled as its own
// type so "no client yet" is never conflated with a live price of 1.
type bootstrapPrices struct{}

func (bootstrapPrices) LatestDailyClose(ctx context.Context, symbol string) (float64, error) {
	return 1, nil
}

// Config holds Account View configuration.
type Config struct {
	Address         string        // Subaccount address the view reconciles
	Symbol          string        // The single tracked instrument
	CollateralAsset string        // Collateral balance symbol (e.g., "USDC")
	FillLookback    time.Duration // Historical seeding window on (re)subscribe
	FillFetchLimit  int           // Max historical fills pulled per seed
	MaxFillPrices   int           // Distinct-price bound of the fill ledger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		CollateralAsset: "USDC",
		FillLookback:    time.Hour,
		FillFetchLimit:  100,
		MaxFillPrices:   200,
	}
}

// LedgerEntry is one distinct price in the fill ledger with its cumulative
// matched size, in insertion order.
type LedgerEntry struct {
	Price float64
	Size  float64
}

// Update is the immutable composite returned by every Handle call.
type Update struct {
	Orders          map[model.Side][]model.OpenOrder
	Fills           []LedgerEntry
	Position        model.Position
	Collateral      model.Collateral
	ClosedLongLived map[model.Side][]bool // Long-lived flags of orders removed this batch
}

// -----------------------------------------------------------------------------
// Wire shapes (subaccounts channel)
// -----------------------------------------------------------------------------

type snapshotWire struct {
	Subaccount subaccountWire `json:"subaccount"`
	Orders     []orderWire    `json:"orders"`
}

type subaccountWire struct {
	OpenPerpetualPositions map[string]positionWire `json:"openPerpetualPositions"`
	AssetPositions         map[string]assetWire    `json:"assetPositions"`
}

type diffWire struct {
	Orders             []orderWire    `json:"orders"`
	Fills              []fillWire     `json:"fills"`
	PerpetualPositions []positionWire `json:"perpetualPositions"`
	AssetPositions     []assetWire    `json:"assetPositions"`
}

type orderWire struct {
	ClientID    string `json:"clientId"`
	Market      string `json:"market"`
	Side        string `json:"side"`   // "BUY" / "SELL"
	Status      string `json:"status"` // OPEN, BEST_EFFORT_OPENED, FILLED, CANCELED, BEST_EFFORT_CANCELED
	Price       string `json:"price"`
	Size        string `json:"size"`
	GoodTilTime int64  `json:"goodTilTime,omitempty"` // Absolute expiry, epoch seconds
}

type fillWire struct {
	Market    string    `json:"market"`
	Price     string    `json:"price"`
	Size      string    `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

type positionWire struct {
	Market        string  `json:"market"`
	Status        string  `json:"status"` // "OPEN", "CLOSED", "LIQUIDATED"
	Side          string  `json:"side"`   // "LONG" / "SHORT"
	EntryPrice    string  `json:"entryPrice"`
	ExitPrice     *string `json:"exitPrice"` // Null until partially closed
	Size          string  `json:"size"`
	SumOpen       string  `json:"sumOpen"`
	SumClose      string  `json:"sumClose"`
	RealizedPnl   string  `json:"realizedPnl"`
	UnrealizedPnl string  `json:"unrealizedPnl"`
}

type assetWire struct {
	Symbol string `json:"symbol"`
	Size   string `json:"size"`
}
