package order

import (
	"context"
	"strings"
	"testing"
)

type countingGateway struct {
	places, cancels, lists int
}

func (g *countingGateway) Place(context.Context, PlaceRequest) (string, error) {
	g.places++
	return "1", nil
}

func (g *countingGateway) Cancel(context.Context, string, string) error {
	g.cancels++
	return nil
}

func (g *countingGateway) ListOpenOrders(context.Context, string) ([]OpenOrder, error) {
	g.lists++
	return nil, nil
}

func TestRateLimitedGatewayDisabled(t *testing.T) {
	next := &countingGateway{}
	if g := NewRateLimitedGateway(next, 0, 5); g != Gateway(next) {
		t.Fatalf("zero rate must return the wrapped gateway")
	}
}

func TestRateLimitedGatewayBurstThenBlocks(t *testing.T) {
	next := &countingGateway{}
	// 每秒 0.001 个令牌：突发额度用完后 ctx 取消必然先到
	g := NewRateLimitedGateway(next, 0.001, 2)
	ctx := context.Background()

	if _, err := g.Place(ctx, PlaceRequest{Symbol: "XRPUSDC"}); err != nil {
		t.Fatalf("place: %v", err)
	}
	if err := g.Cancel(ctx, "XRPUSDC", "1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err := g.ListOpenOrders(canceled, "XRPUSDC")
	if err == nil || !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !strings.Contains(err.Error(), "rate_limit XRPUSDC") {
		t.Fatalf("unexpected message %q", err.Error())
	}
	if next.places != 1 || next.cancels != 1 || next.lists != 0 {
		t.Fatalf("calls: %+v", *next)
	}
}
