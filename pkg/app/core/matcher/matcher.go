package matcher

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/hnitrade/pkg/app/core/ledger"
	"github.com/uhyunpark/hnitrade/pkg/app/core/notify"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
	"github.com/uhyunpark/hnitrade/pkg/util"
)

const (
	// LockKeyPrefix namespaces advisory match locks in the shared store.
	LockKeyPrefix  = "hni-trade-match-lock:"
	DefaultLockTTL = 5 * time.Second

	TitleAuto    = "自动撮合成功"
	TitleManual  = "人工撮合成功"
	unknownBrand = "未知品牌"
)

var (
	ErrNotOpen              = errors.New("order is not open")
	ErrNoQuantity           = errors.New("no quantity to trade")
	ErrDuplicateMatch       = errors.New("match already recorded")
	ErrLockHeld             = errors.New("match lock held by another replica")
	ErrSideMismatch         = errors.New("buy order must be a BID and sell order an ASK")
	ErrReconcileCapExceeded = errors.New("reconcile exceeded iteration bound")
)

// IsConflict reports whether err is a benign abort: the trade was already
// executed here or is being executed elsewhere.
func IsConflict(err error) bool {
	return errors.Is(err, ErrDuplicateMatch) || errors.Is(err, ErrLockHeld)
}

// Locker is an advisory, TTL-bounded mutual exclusion token shared between
// replicas. It narrows but does not close the double-execution window.
type Locker interface {
	TryAcquire(key, owner string, ttl time.Duration) bool
}

type Config struct {
	Owner          string // replica identity recorded in lock entries
	LockTTL        time.Duration
	Locker         Locker // optional
	Clock          util.Clock
	Logger         *zap.SugaredLogger
	BrandAttribute string // attribute shown in notifications
}

// ExecOptions tunes a single execution. Zero values mean "derive".
type ExecOptions struct {
	Manual   bool
	Price    orderbook.Price
	Quantity int64
	Notes    string
	// Resting names the side that was already in the book; an automatic
	// trade executes at that order's price. Defaults to Ask.
	Resting orderbook.Side
}

// Execution is everything a replica needs to broadcast one trade.
type Execution struct {
	Trade        ledger.Trade
	Orders       []orderbook.Order // pre-trade state of buy and sell
	Patches      []orderbook.OrderPatch
	Notification notify.Notification
}

// Matcher executes trades against a book and ledger. It is not safe for
// concurrent use; the replica serializes calls.
type Matcher struct {
	book   *orderbook.OrderBook
	ledger *ledger.Ledger
	sink   *notify.Sink
	cfg    Config
	log    *zap.SugaredLogger
	newID  func() string
}

// New wires a matcher. sink may be nil.
func New(book *orderbook.OrderBook, l *ledger.Ledger, sink *notify.Sink, cfg Config) *Matcher {
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.BrandAttribute == "" {
		cfg.BrandAttribute = "品牌"
	}
	if cfg.Owner == "" {
		cfg.Owner = uuid.NewString()
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Matcher{book: book, ledger: l, sink: sink, cfg: cfg, log: log, newID: uuid.NewString}
}

// CheckAutoMatch looks for the best compatible resting order crossing the
// given order and executes against it. It returns nil when nothing crosses.
func (m *Matcher) CheckAutoMatch(order orderbook.Order) (*Execution, error) {
	incoming, ok := m.book.Get(order.ID)
	if !ok {
		return nil, orderbook.ErrNotFound
	}
	if !incoming.IsOpen() {
		return nil, nil
	}

	for _, c := range m.book.OpenOrders(incoming.Side.Opposite(), incoming.InstrumentID) {
		bid, ask := c, incoming
		if incoming.Side == orderbook.Bid {
			bid, ask = incoming, c
		}
		// Candidates are in priority order, so the first non-crossing one ends the search.
		if !crosses(bid, ask) {
			break
		}
		if !Compatible(c.Attributes, incoming.Attributes) {
			continue
		}
		return m.ExecuteTrade(bid.ID, ask.ID, ExecOptions{Resting: c.Side})
	}
	return nil, nil
}

// ExecuteTrade matches buyID against sellID. Orders are re-read from the
// book, so callers may pass ids from stale views.
func (m *Matcher) ExecuteTrade(buyID, sellID string, opts ExecOptions) (*Execution, error) {
	buy, ok := m.book.Get(buyID)
	if !ok {
		return nil, fmt.Errorf("buy %s: %w", buyID, orderbook.ErrNotFound)
	}
	sell, ok := m.book.Get(sellID)
	if !ok {
		return nil, fmt.Errorf("sell %s: %w", sellID, orderbook.ErrNotFound)
	}
	if buy.Side != orderbook.Bid || sell.Side != orderbook.Ask {
		return nil, ErrSideMismatch
	}
	if !buy.IsOpen() || !sell.IsOpen() {
		return nil, ErrNotOpen
	}

	price := m.tradePrice(buy, sell, opts)
	if !price.IsPositive() {
		return nil, fmt.Errorf("%w: price %s", ledger.ErrInvalidTrade, price)
	}
	qty := min(buy.Quantity, sell.Quantity)
	if opts.Quantity > 0 && opts.Quantity < qty {
		qty = opts.Quantity
	}
	if qty <= 0 {
		return nil, ErrNoQuantity
	}

	key := ledger.MatchKey(buy.ID, sell.ID, price, qty)
	if m.ledger.Has(key) {
		return nil, ErrDuplicateMatch
	}
	if m.cfg.Locker != nil && !m.cfg.Locker.TryAcquire(LockKeyPrefix+key, m.cfg.Owner, m.cfg.LockTTL) {
		return nil, ErrLockHeld
	}

	buyAfter, err := m.book.Fill(buy.ID, qty)
	if err != nil {
		return nil, err
	}
	sellAfter, err := m.book.Fill(sell.ID, qty)
	if err != nil {
		return nil, err
	}

	source := ledger.Auto
	if opts.Manual {
		source = ledger.Manual
	}
	trade := ledger.Trade{
		ID:           m.newID(),
		BuyOrderID:   buy.ID,
		SellOrderID:  sell.ID,
		Price:        price,
		Quantity:     qty,
		InstrumentID: buy.InstrumentID,
		CategoryID:   buy.CategoryID,
		ExecutedAt:   m.cfg.Clock.Now().UnixMilli(),
		MatchedBy:    source,
		Notes:        opts.Notes,
		MatchKey:     key,
	}
	m.ledger.Upsert(trade)

	n := m.notification(buy, trade)
	if m.sink != nil {
		n = m.sink.Push(n)
	}

	m.log.Infow("trade_executed",
		"trade", trade.ID,
		"instrument", trade.InstrumentID,
		"price", price.String(),
		"qty", qty,
		"matched_by", source,
	)

	return &Execution{
		Trade:  trade,
		Orders: []orderbook.Order{buy, sell},
		Patches: []orderbook.OrderPatch{
			{ID: buyAfter.ID, Quantity: buyAfter.Quantity, Status: buyAfter.Status},
			{ID: sellAfter.ID, Quantity: sellAfter.Quantity, Status: sellAfter.Status},
		},
		Notification: n,
	}, nil
}

func (m *Matcher) tradePrice(buy, sell orderbook.Order, opts ExecOptions) orderbook.Price {
	if opts.Price.IsPositive() {
		return opts.Price
	}
	if opts.Manual {
		return buy.Price.Mid(sell.Price)
	}
	if opts.Resting == orderbook.Bid {
		return buy.Price
	}
	return sell.Price
}

func (m *Matcher) notification(buy orderbook.Order, t ledger.Trade) notify.Notification {
	brand := unknownBrand
	if v, ok := buy.Attributes.Get(m.cfg.BrandAttribute); ok && v.String() != "" {
		brand = v.String()
	}
	msg := fmt.Sprintf("%s / %d吨 @ ￥%s", brand, t.Quantity, t.Price)
	if t.Notes != "" {
		msg += fmt.Sprintf(" (%s)", t.Notes)
	}

	n := notify.Notification{Kind: notify.KindSuccess, Title: TitleAuto, Message: msg, Role: orderbook.RoleSystem}
	if t.MatchedBy == ledger.Manual {
		n.Title = TitleManual
		n.Role = orderbook.RoleAdmin
	}
	return n
}

// Reconcile sweeps the whole book, executing the best compatible crossing
// pair and rescanning until none is left. Pairs whose execution aborts are
// skipped for the rest of the sweep. Every execution fills at least one
// order, so more than Len()+1 executions means the book is inconsistent.
func (m *Matcher) Reconcile() ([]Execution, error) {
	var out []Execution
	skipped := make(map[[2]string]bool)
	limit := m.book.Len() + 1

	for {
		bid, ask, ok := m.nextCrossing(skipped)
		if !ok {
			return out, nil
		}
		if len(out) >= limit {
			m.log.Warnw("reconcile_cap_exceeded", "executions", len(out), "orders", m.book.Len())
			return out, ErrReconcileCapExceeded
		}

		resting := orderbook.Ask
		if bid.CreatedAt < ask.CreatedAt {
			resting = orderbook.Bid
		}
		exec, err := m.ExecuteTrade(bid.ID, ask.ID, ExecOptions{Resting: resting})
		if err != nil {
			m.log.Debugw("reconcile_pair_skipped", "bid", bid.ID, "ask", ask.ID, "err", err)
			skipped[[2]string{bid.ID, ask.ID}] = true
			continue
		}
		out = append(out, *exec)
	}
}

func (m *Matcher) nextCrossing(skipped map[[2]string]bool) (orderbook.Order, orderbook.Order, bool) {
	asks := m.book.OpenBySide(orderbook.Ask)
	for _, bid := range m.book.OpenBySide(orderbook.Bid) {
		for _, ask := range asks {
			if !crosses(bid, ask) || skipped[[2]string{bid.ID, ask.ID}] {
				continue
			}
			if Compatible(ask.Attributes, bid.Attributes) {
				return bid, ask, true
			}
		}
	}
	return orderbook.Order{}, orderbook.Order{}, false
}
