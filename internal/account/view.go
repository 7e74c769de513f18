package account

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rickgao/perp-stream/internal/connection"
	"github.com/rickgao/perp-stream/internal/model"
)

// View maintains the account state for one subaccount.
type View struct {
	cfg    Config
	logger *slog.Logger

	prices PriceSource
	fills  FillsSource

	mu         sync.Mutex
	orders     map[model.Side]map[string]model.OpenOrder
	ledger     *fillLedger
	position   model.Position
	collateral model.Collateral
	closed     map[model.Side][]bool
}

// NewView creates an Account View. Until AttachPriceSource is called, all
// reference-price lookups resolve to the explicit bootstrap value 1.
func NewView(cfg Config, logger *slog.Logger) *View {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.CollateralAsset == "" {
		cfg.CollateralAsset = def.CollateralAsset
	}
	if cfg.FillLookback == 0 {
		cfg.FillLookback = def.FillLookback
	}
	if cfg.FillFetchLimit == 0 {
		cfg.FillFetchLimit = def.FillFetchLimit
	}
	if cfg.MaxFillPrices == 0 {
		cfg.MaxFillPrices = def.MaxFillPrices
	}

	v := &View{
		cfg:    cfg,
		logger: logger,
		prices: bootstrapPrices{},
		ledger: newFillLedger(cfg.MaxFillPrices),
	}
	v.resetLocked()
	return v
}

// AttachPriceSource replaces the bootstrap price source with a real client.
func (v *View) AttachPriceSource(ps PriceSource) {
	v.mu.Lock()
	v.prices = ps
	v.mu.Unlock()
}

// AttachFillsSource sets the historical fills source used to seed the
// ledger on (re)subscribe.
func (v *View) AttachFillsSource(fs FillsSource) {
	v.mu.Lock()
	v.fills = fs
	v.mu.Unlock()
}

// Handle applies one decoded subaccounts message. It always returns a usable
// Update, possibly unchanged, alongside the first error encountered.
func (v *View) Handle(ctx context.Context, msg connection.Message) (Update, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var err error
	switch msg.Kind {
	case connection.KindSnapshot:
		err = v.applySnapshot(ctx, msg.Contents)
	case connection.KindIncremental:
		err = v.applyDiff(ctx, msg.Contents)
	}

	return v.updateLocked(), err
}

// Update returns the current composite state without applying a message.
func (v *View) Update() Update {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.updateLocked()
}

// Reset restores all account state to empty defaults. Invoked from the
// connection teardown hook.
func (v *View) Reset() {
	v.mu.Lock()
	v.resetLocked()
	v.mu.Unlock()
}

func (v *View) resetLocked() {
	v.orders = map[model.Side]map[string]model.OpenOrder{
		model.SideBuy:  {},
		model.SideSell: {},
	}
	v.ledger.reset()
	v.position = model.Position{Direction: model.DirectionNone}
	v.collateral = model.Collateral{}
	v.closed = map[model.Side][]bool{}
}

// -----------------------------------------------------------------------------
// Snapshot
// -----------------------------------------------------------------------------

// applySnapshot replaces account state wholesale from a subscribe snapshot.
func (v *View) applySnapshot(ctx context.Context, contents json.RawMessage) error {
	var wire snapshotWire
	if err := json.Unmarshal(contents, &wire); err != nil {
		v.logger.Warn("failed to parse subaccounts snapshot", "error", err)
		return err
	}

	v.resetLocked()

	// Orders: retain only open and best-effort-open.
	for _, ow := range wire.Orders {
		if !isOpenStatus(ow.Status) {
			continue
		}
		order, ok := v.orderFromWire(ow)
		if !ok {
			continue
		}
		v.orders[order.Side][order.ClientID] = order
	}

	// Position: at most the one tracked instrument.
	var firstErr error
	if pw, ok := wire.Subaccount.OpenPerpetualPositions[v.cfg.Symbol]; ok {
		if err := v.applyPositionSnapshot(ctx, pw); err != nil {
			firstErr = err
		}
	}

	// Collateral: single balance, full replace.
	if aw, ok := wire.Subaccount.AssetPositions[v.cfg.CollateralAsset]; ok {
		v.applyCollateral(aw)
	}

	// Seed the ledger from history only while a position is open, so the
	// ledger stays consistent with the position without importing stale
	// fills.
	if v.position.Open() {
		if err := v.seedFills(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}

// -----------------------------------------------------------------------------
// Incremental
// -----------------------------------------------------------------------------

// applyDiff folds one channel_data batch into account state.
func (v *View) applyDiff(ctx context.Context, contents json.RawMessage) error {
	var wire diffWire
	if err := json.Unmarshal(contents, &wire); err != nil {
		v.logger.Warn("failed to parse subaccounts diff", "error", err)
		return err
	}

	// The removed-order flag lists cover a single batch.
	v.closed = map[model.Side][]bool{}

	var firstErr error

	for _, ow := range wire.Orders {
		v.applyOrderDiff(ow)
	}

	for _, fw := range wire.Fills {
		if fw.Market != "" && fw.Market != v.cfg.Symbol {
			continue
		}
		price, err1 := strconv.ParseFloat(fw.Price, 64)
		size, err2 := strconv.ParseFloat(fw.Size, 64)
		if err1 != nil || err2 != nil {
			v.logger.Warn("bad fill, dropping", "price", fw.Price, "size", fw.Size)
			continue
		}
		v.ledger.add(price, size)
	}

	for _, pw := range wire.PerpetualPositions {
		if pw.Market != v.cfg.Symbol {
			continue
		}
		if err := v.applyPositionDiff(ctx, pw); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, aw := range wire.AssetPositions {
		if aw.Symbol != v.cfg.CollateralAsset {
			continue
		}
		v.applyCollateral(aw)
	}

	return firstErr
}

// applyOrderDiff upserts or removes a single order. Unknown statuses are
// logged and dropped, leaving existing state unchanged. A removal only needs
// side and client id: the numeric fields of a filled or cancelled order are
// not required to be present or parseable.
func (v *View) applyOrderDiff(ow orderWire) {
	side := model.Side(ow.Side)
	if side != model.SideBuy && side != model.SideSell {
		v.logger.Warn("unexpected order side, dropping", "client_id", ow.ClientID, "side", ow.Side)
		return
	}

	switch {
	case isOpenStatus(ow.Status):
		order, ok := v.orderFromWire(ow)
		if !ok {
			return
		}
		v.orders[side][order.ClientID] = order

	case isRemovalStatus(ow.Status):
		longLived := ow.GoodTilTime > 0
		if existing, ok := v.orders[side][ow.ClientID]; ok {
			longLived = existing.LongLived
			delete(v.orders[side], ow.ClientID)
		}
		v.closed[side] = append(v.closed[side], longLived)

	default:
		v.logger.Warn("unexpected order status, dropping",
			"client_id", ow.ClientID,
			"status", ow.Status,
		)
	}
}

// -----------------------------------------------------------------------------
// Position
// -----------------------------------------------------------------------------

// applyPositionSnapshot populates the tracked position from a snapshot. PnL
// values are taken verbatim from the snapshot; the reference price is only
// needed for notional and cumulative quote volumes, so a price failure
// leaves prior state untouched.
func (v *View) applyPositionSnapshot(ctx context.Context, pw positionWire) error {
	if pw.Status != "OPEN" {
		v.logger.Warn("position snapshot with non-open status, dropping",
			"symbol", pw.Market,
			"status", pw.Status,
		)
		return nil
	}

	dir, ok := direction(pw.Side)
	if !ok {
		v.logger.Warn("unexpected position side, dropping", "side", pw.Side)
		return nil
	}

	price, err := v.refPrice(ctx)
	if err != nil {
		return err
	}

	entry, err := strconv.ParseFloat(pw.EntryPrice, 64)
	if err != nil {
		v.logger.Warn("bad entry price, dropping position", "value", pw.EntryPrice)
		return nil
	}

	pos := model.Position{
		Symbol:    pw.Market,
		Direction: dir,
		AvgEntry:  entry,
	}

	// Null exit price means "not yet closed at all", kept distinct from an
	// exit price of zero.
	if pw.ExitPrice != nil {
		if exit, err := strconv.ParseFloat(*pw.ExitPrice, 64); err == nil {
			pos.AvgExit = exit
			pos.AvgExitValid = true
		}
	}

	size, _ := strconv.ParseFloat(pw.Size, 64)
	pos.SizeBase = math.Abs(size)
	pos.SizeUSD = pos.SizeBase * price

	sumOpen, _ := strconv.ParseFloat(pw.SumOpen, 64)
	sumClose, _ := strconv.ParseFloat(pw.SumClose, 64)
	pos.CumulativeOpened = sumOpen * price
	pos.CumulativeClosed = sumClose * price

	pos.RealizedPnl, _ = strconv.ParseFloat(pw.RealizedPnl, 64)
	pos.UnrealizedPnl, _ = strconv.ParseFloat(pw.UnrealizedPnl, 64)

	v.position = pos
	return nil
}

// applyPositionDiff folds an incremental update into the tracked position.
// Unrealized PnL is always recomputed locally from the reference price
// rather than trusted from a possibly-stale feed field; realized PnL comes
// from the feed when present, else it holds its previous value.
func (v *View) applyPositionDiff(ctx context.Context, pw positionWire) error {
	if !v.position.Open() {
		v.logger.Debug("position update with no tracked position, dropping",
			"symbol", pw.Market,
		)
		return nil
	}

	price, err := v.refPrice(ctx)
	if err != nil {
		return err
	}

	if pw.EntryPrice != "" {
		if entry, err := strconv.ParseFloat(pw.EntryPrice, 64); err == nil && entry > 0 {
			v.position.AvgEntry = entry
		}
	}
	if pw.ExitPrice != nil {
		if exit, err := strconv.ParseFloat(*pw.ExitPrice, 64); err == nil {
			v.position.AvgExit = exit
			v.position.AvgExitValid = true
		}
	}
	if pw.Size != "" {
		if size, err := strconv.ParseFloat(pw.Size, 64); err == nil {
			v.position.SizeBase = math.Abs(size)
			v.position.SizeUSD = v.position.SizeBase * price
		}
	}
	if pw.SumOpen != "" {
		if sumOpen, err := strconv.ParseFloat(pw.SumOpen, 64); err == nil {
			v.position.CumulativeOpened = sumOpen * price
		}
	}
	if pw.SumClose != "" {
		if sumClose, err := strconv.ParseFloat(pw.SumClose, 64); err == nil {
			v.position.CumulativeClosed = sumClose * price
		}
	}
	if pw.RealizedPnl != "" {
		if realized, err := strconv.ParseFloat(pw.RealizedPnl, 64); err == nil {
			v.position.RealizedPnl = realized
		}
	}

	upnl, err := UnrealizedPnl(v.position.Direction, v.position.AvgEntry, price, v.position.SizeUSD)
	if err != nil {
		return err
	}
	v.position.UnrealizedPnl = upnl

	return nil
}

// UnrealizedPnl derives PnL from a price ratio applied to the quote
// notional: (ratio x notional) - notional, with ratio current/entry for a
// long and entry/current for a short.
func UnrealizedPnl(dir model.Direction, entry, current, notional float64) (float64, error) {
	if entry <= 0 || current <= 0 {
		return 0, fmt.Errorf("unrealized pnl needs positive prices: entry=%v current=%v", entry, current)
	}

	var ratio float64
	switch dir {
	case model.DirectionLong:
		ratio = current / entry
	case model.DirectionShort:
		ratio = entry / current
	default:
		return 0, nil
	}

	return ratio*notional - notional, nil
}

// -----------------------------------------------------------------------------
// Collateral, fills seeding, helpers
// -----------------------------------------------------------------------------

// applyCollateral fully replaces the collateral balance.
func (v *View) applyCollateral(aw assetWire) {
	size, err := strconv.ParseFloat(aw.Size, 64)
	if err != nil {
		v.logger.Warn("bad collateral size, dropping", "symbol", aw.Symbol, "value", aw.Size)
		return
	}
	v.collateral = model.Collateral{Symbol: aw.Symbol, Size: size}
}

// seedFills pulls recent history and folds fills newer than the lookback
// window with the same additive rule as feed fills.
func (v *View) seedFills(ctx context.Context) error {
	if v.fills == nil {
		return nil
	}

	fills, err := v.fills.RecentFills(ctx, v.cfg.Address, v.cfg.Symbol, v.cfg.FillFetchLimit)
	if err != nil {
		v.logger.Warn("historical fill seed failed", "error", err)
		return err
	}

	cutoff := time.Now().Add(-v.cfg.FillLookback)
	seeded := 0
	for _, f := range fills {
		if f.CreatedAt.Before(cutoff) {
			continue
		}
		v.ledger.add(f.Price, f.Size)
		seeded++
	}

	v.logger.Debug("seeded fill ledger", "fills", seeded, "lookback", v.cfg.FillLookback)
	return nil
}

// refPrice fetches the reference price for the tracked symbol.
func (v *View) refPrice(ctx context.Context) (float64, error) {
	price, err := v.prices.LatestDailyClose(ctx, v.cfg.Symbol)
	if err != nil {
		return 0, fmt.Errorf("reference price for %s: %w", v.cfg.Symbol, err)
	}
	return price, nil
}

// orderFromWire parses an order, tagging it long-lived when it carries an
// absolute expiry timestamp.
func (v *View) orderFromWire(ow orderWire) (model.OpenOrder, bool) {
	side := model.Side(ow.Side)
	if side != model.SideBuy && side != model.SideSell {
		v.logger.Warn("unexpected order side, dropping", "client_id", ow.ClientID, "side", ow.Side)
		return model.OpenOrder{}, false
	}

	price, err1 := strconv.ParseFloat(ow.Price, 64)
	size, err2 := strconv.ParseFloat(ow.Size, 64)
	if err1 != nil || err2 != nil {
		v.logger.Warn("bad order numerics, dropping",
			"client_id", ow.ClientID,
			"price", ow.Price,
			"size", ow.Size,
		)
		return model.OpenOrder{}, false
	}

	return model.OpenOrder{
		ClientID:  ow.ClientID,
		Side:      side,
		Price:     price,
		Size:      size,
		ExpiresAt: ow.GoodTilTime,
		LongLived: ow.GoodTilTime > 0,
	}, true
}

// updateLocked builds the immutable composite result.
func (v *View) updateLocked() Update {
	orders := make(map[model.Side][]model.OpenOrder, len(v.orders))
	for side, byID := range v.orders {
		list := make([]model.OpenOrder, 0, len(byID))
		for _, o := range byID {
			list = append(list, o)
		}
		sort.Slice(list, func(i, j int) bool { return list[i].ClientID < list[j].ClientID })
		orders[side] = list
	}

	closed := make(map[model.Side][]bool, len(v.closed))
	for side, flags := range v.closed {
		closed[side] = append([]bool(nil), flags...)
	}

	return Update{
		Orders:          orders,
		Fills:           v.ledger.entries(),
		Position:        v.position,
		Collateral:      v.collateral,
		ClosedLongLived: closed,
	}
}

func isOpenStatus(s string) bool {
	return s == "OPEN" || s == "BEST_EFFORT_OPENED"
}

func isRemovalStatus(s string) bool {
	return s == "FILLED" || s == "CANCELED" || s == "BEST_EFFORT_CANCELED"
}

func direction(side string) (model.Direction, bool) {
	switch side {
	case "LONG":
		return model.DirectionLong, true
	case "SHORT":
		return model.DirectionShort, true
	default:
		return model.DirectionNone, false
	}
}
