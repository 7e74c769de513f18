// Package meta implements the Market Metadata View: per-symbol price/size
// precision and minimum order size derived from instrument snapshots.
package meta

import (
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/rickgao/perp-stream/internal/connection"
	"github.com/rickgao/perp-stream/internal/model"
)

// View holds instrument metadata for every symbol seen in a markets
// snapshot.
type View struct {
	logger *slog.Logger

	mu          sync.RWMutex
	instruments map[string]model.InstrumentMeta
}

// NewView creates an empty Market Metadata View.
func NewView(logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	return &View{
		logger:      logger,
		instruments: make(map[string]model.InstrumentMeta),
	}
}

// snapshot wire shape: symbol -> instrument definition.
type snapshotWire struct {
	Markets map[string]instrumentWire `json:"markets"`
}

type instrumentWire struct {
	TickSize     string `json:"tickSize"`
	StepSize     string `json:"stepSize"`
	MinOrderSize string `json:"minOrderSize"`
}

// Handle applies one decoded markets message and returns the current
// metadata set. Incremental messages are observed only: tick/step changes
// are rare and handled by a full re-subscribe, not a diff.
func (v *View) Handle(msg connection.Message) (map[string]model.InstrumentMeta, error) {
	if msg.Kind == connection.KindIncremental {
		v.logger.Debug("markets incremental observed, state unchanged")
		return v.Instruments(), nil
	}

	var wire snapshotWire
	if err := json.Unmarshal(msg.Contents, &wire); err != nil {
		v.logger.Warn("failed to parse markets snapshot", "error", err)
		return v.Instruments(), err
	}

	v.mu.Lock()
	for symbol, inst := range wire.Markets {
		minSize, err := strconv.ParseFloat(inst.MinOrderSize, 64)
		if err != nil {
			v.logger.Warn("bad minOrderSize, dropping instrument",
				"symbol", symbol,
				"value", inst.MinOrderSize,
			)
			continue
		}
		v.instruments[symbol] = model.InstrumentMeta{
			Symbol:        symbol,
			TickSize:      inst.TickSize,
			StepSize:      inst.StepSize,
			PriceDecimals: decimals(inst.TickSize),
			SizeDecimals:  decimals(inst.StepSize),
			MinOrderSize:  minSize,
		}
	}
	v.mu.Unlock()

	return v.Instruments(), nil
}

// Instrument returns the metadata for one symbol.
func (v *View) Instrument(symbol string) (model.InstrumentMeta, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	m, ok := v.instruments[symbol]
	return m, ok
}

// MinStep returns the minimum order size for a symbol, used as the order
// book dust threshold. Returns 0 when the symbol is unknown.
func (v *View) MinStep(symbol string) float64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.instruments[symbol].MinOrderSize
}

// Instruments returns a copy of the full metadata set.
func (v *View) Instruments() map[string]model.InstrumentMeta {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]model.InstrumentMeta, len(v.instruments))
	for k, m := range v.instruments {
		out[k] = m
	}
	return out
}

// Reset clears all metadata.
func (v *View) Reset() {
	v.mu.Lock()
	v.instruments = make(map[string]model.InstrumentMeta)
	v.mu.Unlock()
}

// decimals counts digits after the decimal point in a tick/step string;
// 0 when there is no fractional part.
func decimals(s string) int {
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(s) - i - 1
}
