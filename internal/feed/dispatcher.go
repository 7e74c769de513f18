// Package feed routes decoded feed messages to the owning view by channel.
//
// Dispatch is single-threaded and cooperative: one message is fully handled
// by its view before the next is taken, so views never observe concurrent
// mutation of their own state.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rickgao/perp-stream/internal/account"
	"github.com/rickgao/perp-stream/internal/book"
	"github.com/rickgao/perp-stream/internal/connection"
	"github.com/rickgao/perp-stream/internal/meta"
)

// Dispatcher routes decoded messages from the Connection Manager to the
// three stateful views.
type Dispatcher interface {
	// Start begins routing messages from the input channel.
	Start(ctx context.Context) error

	// Stop gracefully shuts the dispatcher down.
	Stop(ctx context.Context) error

	// Stats returns current routing statistics.
	Stats() Stats
}

// Stats contains runtime statistics.
type Stats struct {
	Received    int64
	Routed      int64
	HandleError int64
	Unknown     int64
	VersionGaps int64
}

// Views bundles the three reconciliation views behind the dispatcher.
type Views struct {
	Books    *book.View
	Account  *account.View
	Metadata *meta.View
}

// dispatcher is the internal implementation.
type dispatcher struct {
	logger *slog.Logger

	input <-chan connection.Message
	views Views

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	stats Stats
}

// NewDispatcher creates a dispatcher over the manager's message channel.
func NewDispatcher(input <-chan connection.Message, views Views, logger *slog.Logger) Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}

	return &dispatcher{
		logger: logger,
		input:  input,
		views:  views,
	}
}

// Start begins the routing goroutine.
func (d *dispatcher) Start(ctx context.Context) error {
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.wg.Add(1)
	go d.routeLoop()

	d.logger.Info("dispatcher started")
	return nil
}

// Stop gracefully shuts down.
func (d *dispatcher) Stop(ctx context.Context) error {
	if d.cancel != nil {
		d.cancel()
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("dispatcher stopped")
	case <-ctx.Done():
		d.logger.Warn("dispatcher stop timed out")
	}

	return nil
}

// Stats returns current statistics.
func (d *dispatcher) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.stats
}

// routeLoop is the single dispatch goroutine.
func (d *dispatcher) routeLoop() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case msg, ok := <-d.input:
			if !ok {
				d.logger.Info("input channel closed")
				return
			}
			d.route(msg)
		}
	}
}

// route hands one message to its owning view. Handle errors are counted and
// logged; the views themselves fail open, so routing always continues.
func (d *dispatcher) route(msg connection.Message) {
	d.mu.Lock()
	d.stats.Received++
	if msg.VersionGap {
		d.stats.VersionGaps++
	}
	d.mu.Unlock()

	var err error
	switch msg.Channel {
	case connection.ChannelOrderbook:
		_, err = d.views.Books.Handle(msg)
		if err == nil {
			// Every applied batch is followed by the maintenance pass: dust
			// levels at or below the instrument's minimum size are dropped
			// and a crossed book is repaired from the top.
			d.views.Books.Maintain(msg.ID, d.views.Metadata.MinStep(msg.ID))
		}
	case connection.ChannelSubaccounts:
		_, err = d.views.Account.Handle(d.ctx, msg)
	case connection.ChannelMarkets:
		_, err = d.views.Metadata.Handle(msg)
	default:
		d.logger.Warn("message for unknown channel, dropping", "channel", msg.Channel)
		d.mu.Lock()
		d.stats.Unknown++
		d.mu.Unlock()
		return
	}

	d.mu.Lock()
	if err != nil {
		d.stats.HandleError++
	} else {
		d.stats.Routed++
	}
	d.mu.Unlock()

	if err != nil {
		d.logger.Warn("view handle error",
			"channel", msg.Channel,
			"id", msg.ID,
			"error", err,
		)
	}
}
