package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/rickgao/perp-stream/internal/model"
)

type fakeSubmitter struct {
	submitErr error
	cancelErr error

	submitted []Request
	cancelled []string
}

func (f *fakeSubmitter) SubmitOrder(ctx context.Context, req Request) error {
	f.submitted = append(f.submitted, req)
	return f.submitErr
}

func (f *fakeSubmitter) CancelOrder(ctx context.Context, clientID, symbol string) error {
	f.cancelled = append(f.cancelled, clientID)
	return f.cancelErr
}

func TestGateway_PlaceAssignsClientID(t *testing.T) {
	sub := &fakeSubmitter{}
	g := NewGateway(sub, nil)

	id, err := g.Place(context.Background(), Request{
		Symbol: "BTC-USD",
		Side:   model.SideBuy,
		Price:  65000,
		Size:   0.1,
	})
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if id == "" {
		t.Fatal("empty client id")
	}
	if len(sub.submitted) != 1 || sub.submitted[0].ClientID != id {
		t.Errorf("submitted = %+v, want client id %s", sub.submitted, id)
	}

	// Explicit ids pass through unchanged.
	id2, err := g.Place(context.Background(), Request{ClientID: "my-id", Symbol: "BTC-USD", Side: model.SideSell})
	if err != nil {
		t.Fatalf("Place failed: %v", err)
	}
	if id2 != "my-id" {
		t.Errorf("id = %s, want my-id", id2)
	}
}

func TestGateway_SubmitErrorPropagates(t *testing.T) {
	wantErr := errors.New("sequence mismatch")
	g := NewGateway(&fakeSubmitter{submitErr: wantErr}, nil)

	if _, err := g.Place(context.Background(), Request{Symbol: "BTC-USD", Side: model.SideBuy}); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestGateway_Cancel(t *testing.T) {
	sub := &fakeSubmitter{}
	g := NewGateway(sub, nil)

	if err := g.Cancel(context.Background(), "abc", "BTC-USD"); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if len(sub.cancelled) != 1 || sub.cancelled[0] != "abc" {
		t.Errorf("cancelled = %v", sub.cancelled)
	}

	g = NewGateway(&fakeSubmitter{cancelErr: errors.New("not found")}, nil)
	if err := g.Cancel(context.Background(), "xyz", "BTC-USD"); err == nil {
		t.Error("expected error")
	}
}
