package sim

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"grid-maker-go/order"
	"grid-maker-go/strategy"
)

var ErrUnknownOrder = errors.New("unknown order")

// Exchange 内存纸面交易所：限价单只在被 Cross/Fill 时成交，不做撮合深度。
// 带止盈/止损的订单成交后形成仓位，由 Settle 按价格平仓。
type Exchange struct {
	mu        sync.Mutex
	orders    map[string]restingOrder
	positions map[string]restingOrder
	seq       int64
	ledger  *order.CancelLedger
	fail    map[string]error
	placed  []order.PlaceRequest
	fills   []order.OpenOrder
	cancels int
}

type restingOrder struct {
	order.OpenOrder
	seq        int64
	clientID   string
	takeProfit *float64
	stopLoss   *float64
}

// NewExchange ledger 可为 nil；非 nil 时外部撤单会登记到其中。
func NewExchange(ledger *order.CancelLedger) *Exchange {
	return &Exchange{
		orders:    make(map[string]restingOrder),
		positions: make(map[string]restingOrder),
		ledger:    ledger,
		fail:      make(map[string]error),
	}
}

// FailOn 让指定操作（place/cancel/list）返回 err；err 为 nil 时恢复。
func (e *Exchange) FailOn(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.fail, op)
		return
	}
	e.fail[op] = err
}

func (e *Exchange) Place(ctx context.Context, req order.PlaceRequest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fail["place"]; err != nil {
		return "", err
	}
	if req.Price <= 0 || req.Size <= 0 {
		return "", fmt.Errorf("reject %s %s: price %v size %v", req.Symbol, req.Side, req.Price, req.Size)
	}
	id := uuid.NewString()
	e.seq++
	e.orders[id] = restingOrder{
		OpenOrder: order.OpenOrder{ID: id, Symbol: req.Symbol, Side: req.Side, Price: req.Price, Size: req.Size},
		seq:        e.seq,
		clientID:   req.ClientID,
		takeProfit: copyPrice(req.TakeProfit),
		stopLoss:   copyPrice(req.StopLoss),
	}
	e.placed = append(e.placed, req)
	return id, nil
}

func (e *Exchange) Cancel(ctx context.Context, symbol, orderID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fail["cancel"]; err != nil {
		return err
	}
	o, ok := e.orders[orderID]
	if !ok || o.Symbol != symbol {
		return fmt.Errorf("%w: %s %s", ErrUnknownOrder, symbol, orderID)
	}
	delete(e.orders, orderID)
	e.cancels++
	return nil
}

func (e *Exchange) ListOpenOrders(ctx context.Context, symbol string) ([]order.OpenOrder, error) {
	all, err := e.ListAllOpenOrders(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, o := range all {
		if o.Symbol == symbol {
			out = append(out, o)
		}
	}
	return out, nil
}

// ListAllOpenOrders 按下单顺序返回全部挂单。
func (e *Exchange) ListAllOpenOrders(ctx context.Context) ([]order.OpenOrder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.fail["list"]; err != nil {
		return nil, err
	}
	rest := make([]restingOrder, 0, len(e.orders))
	for _, o := range e.orders {
		rest = append(rest, o)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i].seq < rest[j].seq })
	out := make([]order.OpenOrder, len(rest))
	for i, o := range rest {
		out[i] = o.OpenOrder
	}
	return out, nil
}

// Fill 整单成交。
func (e *Exchange) Fill(orderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	o, ok := e.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	delete(e.orders, orderID)
	e.fillLocked(o)
	return nil
}

func (e *Exchange) fillLocked(o restingOrder) {
	e.fills = append(e.fills, o.OpenOrder)
	if o.takeProfit != nil || o.stopLoss != nil {
		e.positions[o.ID] = o
	}
}

func copyPrice(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// CancelExternally 模拟人工或风控在交易所侧撤单。
func (e *Exchange) CancelExternally(orderID string) error {
	e.mu.Lock()
	o, ok := e.orders[orderID]
	if ok {
		delete(e.orders, orderID)
		e.cancels++
	}
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOrder, orderID)
	}
	if e.ledger != nil {
		e.ledger.Record(o.ID)
	}
	return nil
}

// Cross 以成交价 price 撮合：买单价 >= price、卖单价 <= price 的挂单全部成交。
func (e *Exchange) Cross(symbol string, price float64) []order.OpenOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	var hit []restingOrder
	for id, o := range e.orders {
		if o.Symbol != symbol {
			continue
		}
		if (o.Side == order.Buy && o.Price >= price) || (o.Side == order.Sell && o.Price <= price) {
			delete(e.orders, id)
			hit = append(hit, o)
		}
	}
	sort.Slice(hit, func(i, j int) bool { return hit[i].Price < hit[j].Price })
	filled := make([]order.OpenOrder, len(hit))
	for i, o := range hit {
		e.fillLocked(o)
		filled[i] = o.OpenOrder
	}
	return filled
}

// Settle 以价格 price 检查仓位的止盈/止损，触发的按目标价平仓并返回。
func (e *Exchange) Settle(symbol string, price float64) []order.ClosedPosition {
	e.mu.Lock()
	defer e.mu.Unlock()
	var closed []order.ClosedPosition
	for id, p := range e.positions {
		if p.Symbol != symbol {
			continue
		}
		exit, reason, ok := strategy.TargetHit(p.Side, price, p.takeProfit, p.stopLoss)
		if !ok {
			continue
		}
		delete(e.positions, id)
		closed = append(closed, order.ClosedPosition{
			OrderID:    id,
			Symbol:     p.Symbol,
			Side:       p.Side,
			EntryPrice: p.Price,
			ExitPrice:  exit,
			Size:       p.Size,
			Reason:     reason,
		})
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].EntryPrice < closed[j].EntryPrice })
	return closed
}

// OpenPositions 尚未平仓的仓位数。
func (e *Exchange) OpenPositions() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.positions)
}

// Placed 历史下单请求（副本）。
func (e *Exchange) Placed() []order.PlaceRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]order.PlaceRequest, len(e.placed))
	copy(out, e.placed)
	return out
}

func (e *Exchange) Fills() []order.OpenOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]order.OpenOrder, len(e.fills))
	copy(out, e.fills)
	return out
}

func (e *Exchange) OpenCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.orders)
}
