package account

// fillLedger maps price to cumulative matched size, insertion-ordered and
// bounded by a distinct-price cap. When the cap is exceeded the
// oldest-inserted distinct price is evicted first.
type fillLedger struct {
	limit int
	order []float64 // Distinct prices in insertion order
	sizes map[float64]float64
}

func newFillLedger(limit int) *fillLedger {
	return &fillLedger{
		limit: limit,
		sizes: make(map[float64]float64),
	}
}

// add folds a fill into the ledger. Repeated fills at the same price sum,
// so folding is commutative per price.
func (l *fillLedger) add(price, size float64) {
	if _, ok := l.sizes[price]; ok {
		l.sizes[price] += size
		return
	}

	if len(l.order) >= l.limit {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.sizes, oldest)
	}

	l.order = append(l.order, price)
	l.sizes[price] = size
}

// entries returns the ledger in insertion order.
func (l *fillLedger) entries() []LedgerEntry {
	out := make([]LedgerEntry, 0, len(l.order))
	for _, price := range l.order {
		out = append(out, LedgerEntry{Price: price, Size: l.sizes[price]})
	}
	return out
}

// reset clears the ledger.
func (l *fillLedger) reset() {
	l.order = nil
	l.sizes = make(map[float64]float64)
}
