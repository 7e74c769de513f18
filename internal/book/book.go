package book

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strconv"
	"sync"

	"github.com/rickgao/perp-stream/internal/connection"
	"github.com/rickgao/perp-stream/internal/model"
)

// MaxDepth is the per-side ladder bound.
const MaxDepth = 20

// Errors
var (
	ErrUnknownSymbol = errors.New("symbol not in configured set")
)

// Book is one symbol's pair of ladders. Returned by value with copied
// slices, so callers can hold it across later updates.
type Book struct {
	Symbol string
	Bids   []model.PriceLevel
	Asks   []model.PriceLevel
}

// BestBid returns the top bid, if any.
func (b Book) BestBid() (model.PriceLevel, bool) {
	if len(b.Bids) == 0 {
		return model.PriceLevel{}, false
	}
	return b.Bids[0], true
}

// BestAsk returns the top ask, if any.
func (b Book) BestAsk() (model.PriceLevel, bool) {
	if len(b.Asks) == 0 {
		return model.PriceLevel{}, false
	}
	return b.Asks[0], true
}

// Crossed reports whether best bid >= best ask.
func (b Book) Crossed() bool {
	return len(b.Bids) > 0 && len(b.Asks) > 0 && b.Bids[0].Price >= b.Asks[0].Price
}

// View maintains the order books for an explicit set of symbols.
type View struct {
	logger *slog.Logger

	mu    sync.RWMutex
	books map[string]*Book
}

// NewView creates an Order Book View for the given symbol set. Messages for
// symbols outside the set are dropped.
func NewView(symbols []string, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}

	books := make(map[string]*Book, len(symbols))
	for _, s := range symbols {
		books[s] = &Book{Symbol: s}
	}

	return &View{
		logger: logger,
		books:  books,
	}
}

// snapshot wire shape: full per-side level lists as objects.
type snapshotWire struct {
	Bids []levelWire `json:"bids"`
	Asks []levelWire `json:"asks"`
}

type levelWire struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// diff wire shape: per-side lists of [price, size] string pairs.
type diffWire struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}

// Handle applies one decoded orderbook message and returns the updated book.
// Malformed payloads leave existing state unchanged.
func (v *View) Handle(msg connection.Message) (Book, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.books[msg.ID]
	if !ok {
		v.logger.Warn("orderbook message for unknown symbol, dropping", "symbol", msg.ID)
		return Book{}, ErrUnknownSymbol
	}

	switch msg.Kind {
	case connection.KindSnapshot:
		var wire snapshotWire
		if err := json.Unmarshal(msg.Contents, &wire); err != nil {
			v.logger.Warn("failed to parse orderbook snapshot", "symbol", msg.ID, "error", err)
			return copyBook(b), err
		}
		b.Bids = buildSide(wire.Bids, true)
		b.Asks = buildSide(wire.Asks, false)

	case connection.KindIncremental:
		var wire diffWire
		if err := json.Unmarshal(msg.Contents, &wire); err != nil {
			v.logger.Warn("failed to parse orderbook diff", "symbol", msg.ID, "error", err)
			return copyBook(b), err
		}
		b.Bids = applySide(b.Bids, wire.Bids, true)
		b.Asks = applySide(b.Asks, wire.Asks, false)
	}

	return copyBook(b), nil
}

// Book returns a copy of the current book for a symbol.
func (v *View) Book(symbol string) (Book, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	b, ok := v.books[symbol]
	if !ok {
		return Book{}, false
	}
	return copyBook(b), true
}

// Maintain runs the on-demand maintenance routines for a symbol: the dust
// filter (drop levels at or below the instrument's minimum step size) and
// the crossed-book fix (drop the top of both sides until best bid < best
// ask or a side empties).
func (v *View) Maintain(symbol string, minStep float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	b, ok := v.books[symbol]
	if !ok {
		return
	}

	b.Bids = dropDust(b.Bids, minStep)
	b.Asks = dropDust(b.Asks, minStep)

	for b.Crossed() {
		v.logger.Warn("crossed book, dropping top of both sides",
			"symbol", symbol,
			"best_bid", b.Bids[0].Price,
			"best_ask", b.Asks[0].Price,
		)
		b.Bids = b.Bids[1:]
		b.Asks = b.Asks[1:]
	}
}

// Reset clears every book to empty. Invoked from the connection teardown
// hook so a fresh snapshot rebuilds state after reconnect.
func (v *View) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, b := range v.books {
		b.Bids = nil
		b.Asks = nil
	}
}

// buildSide parses raw snapshot levels, sorts them for the side, and
// truncates to MaxDepth.
func buildSide(levels []levelWire, descending bool) []model.PriceLevel {
	side := make([]model.PriceLevel, 0, len(levels))
	for _, lvl := range levels {
		price, err1 := strconv.ParseFloat(lvl.Price, 64)
		size, err2 := strconv.ParseFloat(lvl.Size, 64)
		if err1 != nil || err2 != nil || size <= 0 {
			continue
		}
		side = append(side, model.PriceLevel{Price: price, Size: size})
	}

	sort.Slice(side, func(i, j int) bool {
		if descending {
			return side[i].Price > side[j].Price
		}
		return side[i].Price < side[j].Price
	})

	if len(side) > MaxDepth {
		side = side[:MaxDepth]
	}
	return side
}

// applySide applies a batch of (price, size) diff pairs to one side, then
// truncates back to MaxDepth.
func applySide(side []model.PriceLevel, pairs [][]string, descending bool) []model.PriceLevel {
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		price, err1 := strconv.ParseFloat(pair[0], 64)
		size, err2 := strconv.ParseFloat(pair[1], 64)
		if err1 != nil || err2 != nil || size < 0 {
			continue
		}
		side = upsertLevel(side, price, size, descending)
	}

	if len(side) > MaxDepth {
		side = side[:MaxDepth]
	}
	return side
}

// upsertLevel updates, removes, or inserts a single level, preserving the
// side's sort order. The insertion point comes from a binary search whose
// exact-match tie-break returns the matching index.
func upsertLevel(side []model.PriceLevel, price, size float64, descending bool) []model.PriceLevel {
	i := sort.Search(len(side), func(j int) bool {
		if descending {
			return side[j].Price <= price
		}
		return side[j].Price >= price
	})

	if i < len(side) && side[i].Price == price {
		if size == 0 {
			return append(side[:i], side[i+1:]...)
		}
		side[i].Size = size
		return side
	}

	// Removing an absent price is a no-op.
	if size == 0 {
		return side
	}

	side = append(side, model.PriceLevel{})
	copy(side[i+1:], side[i:])
	side[i] = model.PriceLevel{Price: price, Size: size}
	return side
}

// dropDust removes levels whose size is at or below the minimum step.
func dropDust(side []model.PriceLevel, minStep float64) []model.PriceLevel {
	if minStep <= 0 {
		return side
	}
	kept := side[:0]
	for _, lvl := range side {
		if lvl.Size > minStep {
			kept = append(kept, lvl)
		}
	}
	return kept
}

func copyBook(b *Book) Book {
	out := Book{Symbol: b.Symbol}
	out.Bids = append([]model.PriceLevel(nil), b.Bids...)
	out.Asks = append([]model.PriceLevel(nil), b.Asks...)
	return out
}
