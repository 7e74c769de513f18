package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/perp-stream/internal/model"
)

// NoPriceDataError indicates the venue has no price candle for a symbol.
// Callers treat it as fatal for the computation that needed the price, never
// for already-held state.
type NoPriceDataError struct {
	Symbol string
}

func (e *NoPriceDataError) Error() string {
	return "no price data for " + e.Symbol
}

// candlesResponse is the wire shape of the candles endpoint.
type candlesResponse struct {
	Candles []struct {
		Close     string    `json:"close"`
		StartedAt time.Time `json:"startedAt"`
	} `json:"candles"`
}

// fillsResponse is the wire shape of the fills endpoint.
type fillsResponse struct {
	Fills []struct {
		Price     string    `json:"price"`
		Size      string    `json:"size"`
		CreatedAt time.Time `json:"createdAt"`
	} `json:"fills"`
}

// LatestDailyClose returns the close of the most recent daily candle for a
// symbol. A missing candle yields a NoPriceDataError.
func (c *Client) LatestDailyClose(ctx context.Context, symbol string) (float64, error) {
	query := url.Values{}
	query.Set("resolution", "1DAY")
	query.Set("limit", "1")

	var resp candlesResponse
	if err := c.get(ctx, "/v4/candles/perpetualMarkets/"+symbol, query, &resp); err != nil {
		return 0, err
	}

	if len(resp.Candles) == 0 {
		return 0, &NoPriceDataError{Symbol: symbol}
	}

	price, err := strconv.ParseFloat(resp.Candles[0].Close, 64)
	if err != nil {
		return 0, fmt.Errorf("parse candle close %q: %w", resp.Candles[0].Close, err)
	}

	return price, nil
}

// RecentFills returns up to limit recent fills for an address and symbol,
// newest first, as reported by the indexer.
func (c *Client) RecentFills(ctx context.Context, address, symbol string, limit int) ([]model.Fill, error) {
	query := url.Values{}
	query.Set("address", address)
	query.Set("market", symbol)
	query.Set("limit", strconv.Itoa(limit))

	var resp fillsResponse
	if err := c.get(ctx, "/v4/fills", query, &resp); err != nil {
		return nil, err
	}

	fills := make([]model.Fill, 0, len(resp.Fills))
	for _, f := range resp.Fills {
		price, err1 := strconv.ParseFloat(f.Price, 64)
		size, err2 := strconv.ParseFloat(f.Size, 64)
		if err1 != nil || err2 != nil {
			c.logger.Warn("bad fill from indexer, skipping",
				"price", f.Price,
				"size", f.Size,
			)
			continue
		}
		fills = append(fills, model.Fill{
			Price:     price,
			Size:      size,
			CreatedAt: f.CreatedAt,
		})
	}

	return fills, nil
}
