// Package orders is the thin pass-through for order placement and
// cancellation. Signing and chain submission belong to the exchange SDK
// behind the Submitter interface; the gateway only assigns client order ids
// and logs outcomes.
package orders

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/rickgao/perp-stream/internal/model"
)

// Request describes an order to submit.
type Request struct {
	ClientID    string
	Symbol      string
	Side        model.Side
	Price       float64
	Size        float64
	GoodTilTime int64 // Absolute expiry, epoch seconds; 0 = short-lived
}

// Submitter signs and submits orders on chain. Implemented by the exchange
// SDK; never by this module.
type Submitter interface {
	SubmitOrder(ctx context.Context, req Request) error
	CancelOrder(ctx context.Context, clientID, symbol string) error
}

// Gateway delegates order operations to a Submitter.
type Gateway struct {
	submitter Submitter
	logger    *slog.Logger
}

// NewGateway creates an order gateway.
func NewGateway(submitter Submitter, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		submitter: submitter,
		logger:    logger,
	}
}

// Place submits an order with a fresh client order id and returns the id.
func (g *Gateway) Place(ctx context.Context, req Request) (string, error) {
	if req.ClientID == "" {
		req.ClientID = uuid.NewString()
	}

	if err := g.submitter.SubmitOrder(ctx, req); err != nil {
		return "", fmt.Errorf("submit order %s: %w", req.ClientID, err)
	}

	g.logger.Info("order submitted",
		"client_id", req.ClientID,
		"symbol", req.Symbol,
		"side", req.Side,
		"price", req.Price,
		"size", req.Size,
	)

	return req.ClientID, nil
}

// Cancel cancels an order by client order id.
func (g *Gateway) Cancel(ctx context.Context, clientID, symbol string) error {
	if err := g.submitter.CancelOrder(ctx, clientID, symbol); err != nil {
		return fmt.Errorf("cancel order %s: %w", clientID, err)
	}

	g.logger.Info("order cancelled", "client_id", clientID, "symbol", symbol)
	return nil
}
