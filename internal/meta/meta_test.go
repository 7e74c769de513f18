package meta

import (
	"encoding/json"
	"testing"

	"github.com/rickgao/perp-stream/internal/connection"
)

func marketsMsg(kind connection.MessageKind, contents string) connection.Message {
	return connection.Message{
		Kind:     kind,
		Channel:  connection.ChannelMarkets,
		Contents: json.RawMessage(contents),
	}
}

func TestView_SnapshotDerivesPrecision(t *testing.T) {
	v := NewView(nil)

	got, err := v.Handle(marketsMsg(connection.KindSnapshot, `{
		"markets": {
			"BTC-USD": {"tickSize": "0.01", "stepSize": "0.0001", "minOrderSize": "0.0001"},
			"ETH-USD": {"tickSize": "0.1", "stepSize": "0.001", "minOrderSize": "0.001"},
			"DOGE-USD": {"tickSize": "1", "stepSize": "10", "minOrderSize": "10"}
		}
	}`))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("instruments = %d, want 3", len(got))
	}

	tests := []struct {
		symbol        string
		priceDecimals int
		sizeDecimals  int
		minOrderSize  float64
	}{
		{"BTC-USD", 2, 4, 0.0001},
		{"ETH-USD", 1, 3, 0.001},
		{"DOGE-USD", 0, 0, 10},
	}
	for _, tt := range tests {
		m, ok := v.Instrument(tt.symbol)
		if !ok {
			t.Fatalf("missing instrument %s", tt.symbol)
		}
		if m.PriceDecimals != tt.priceDecimals || m.SizeDecimals != tt.sizeDecimals {
			t.Errorf("%s decimals = (%d, %d), want (%d, %d)",
				tt.symbol, m.PriceDecimals, m.SizeDecimals, tt.priceDecimals, tt.sizeDecimals)
		}
		if m.MinOrderSize != tt.minOrderSize {
			t.Errorf("%s minOrderSize = %v, want %v", tt.symbol, m.MinOrderSize, tt.minOrderSize)
		}
	}
}

func TestView_IncrementalObservedOnly(t *testing.T) {
	v := NewView(nil)

	if _, err := v.Handle(marketsMsg(connection.KindSnapshot, `{
		"markets": {"BTC-USD": {"tickSize": "0.01", "stepSize": "0.0001", "minOrderSize": "0.0001"}}
	}`)); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	got, err := v.Handle(marketsMsg(connection.KindIncremental, `{
		"trading": {"BTC-USD": {"oraclePrice": "65000"}}
	}`))
	if err != nil {
		t.Fatalf("incremental failed: %v", err)
	}

	if m := got["BTC-USD"]; m.TickSize != "0.01" {
		t.Errorf("tick size = %q, want unchanged 0.01", m.TickSize)
	}
}

func TestView_MinStep(t *testing.T) {
	v := NewView(nil)

	if _, err := v.Handle(marketsMsg(connection.KindSnapshot, `{
		"markets": {"BTC-USD": {"tickSize": "0.01", "stepSize": "0.0001", "minOrderSize": "0.0001"}}
	}`)); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	if got := v.MinStep("BTC-USD"); got != 0.0001 {
		t.Errorf("MinStep = %v, want 0.0001", got)
	}
	if got := v.MinStep("SOL-USD"); got != 0 {
		t.Errorf("MinStep for unknown symbol = %v, want 0", got)
	}
}

func TestView_BadMinOrderSizeSkipsInstrument(t *testing.T) {
	v := NewView(nil)

	got, err := v.Handle(marketsMsg(connection.KindSnapshot, `{
		"markets": {
			"BTC-USD": {"tickSize": "0.01", "stepSize": "0.0001", "minOrderSize": "0.0001"},
			"BAD-USD": {"tickSize": "0.01", "stepSize": "0.0001", "minOrderSize": "not-a-number"}
		}
	}`))
	if err != nil {
		t.Fatalf("Handle failed: %v", err)
	}

	if _, ok := got["BAD-USD"]; ok {
		t.Error("instrument with bad minOrderSize retained")
	}
	if _, ok := got["BTC-USD"]; !ok {
		t.Error("valid instrument dropped alongside the bad one")
	}
}

func TestView_Reset(t *testing.T) {
	v := NewView(nil)

	if _, err := v.Handle(marketsMsg(connection.KindSnapshot, `{
		"markets": {"BTC-USD": {"tickSize": "0.01", "stepSize": "0.0001", "minOrderSize": "0.0001"}}
	}`)); err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	v.Reset()

	if got := v.Instruments(); len(got) != 0 {
		t.Errorf("instruments after Reset = %d, want 0", len(got))
	}
}
