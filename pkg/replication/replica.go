package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/hnitrade/pkg/app/core"
	"github.com/uhyunpark/hnitrade/pkg/app/core/ledger"
	"github.com/uhyunpark/hnitrade/pkg/app/core/matcher"
	"github.com/uhyunpark/hnitrade/pkg/app/core/notify"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
	"github.com/uhyunpark/hnitrade/pkg/util"
)

// DefaultQuoteSpread is the distance of each leg of a dual quote from its
// reference price.
var DefaultQuoteSpread = orderbook.NewPrice(5)

type Config struct {
	DedupCapacity  int
	LockTTL        time.Duration
	NotifyTTL      time.Duration
	NotifyCapacity int
	SyncInterval   time.Duration // periodic state_request; zero disables

	Clock       util.Clock
	Logger      *zap.SugaredLogger
	Catalog     orderbook.InstrumentCatalog // optional
	Locker      matcher.Locker              // optional
	Transport   Transport                   // optional; nil runs single-replica
	Persistence Persistence                 // optional
	Journal     Journal                     // optional
}

func DefaultConfig() Config {
	return Config{
		DedupCapacity:  DefaultDedupCapacity,
		LockTTL:        matcher.DefaultLockTTL,
		NotifyTTL:      notify.DefaultTTL,
		NotifyCapacity: notify.DefaultCapacity,
		SyncInterval:   30 * time.Second,
	}
}

// Replica is one running instance of the trading core. All state changes go
// through its mutex; outbound messages are published after it is released.
type Replica struct {
	id  string
	cfg Config
	log *zap.SugaredLogger

	mu      sync.Mutex
	book    *orderbook.OrderBook
	ledger  *ledger.Ledger
	matcher *matcher.Matcher
	sink    *notify.Sink
	seen    *seenSet
	version uint64 // bumped on every state change

	out outbox

	persistMu    sync.Mutex
	savedVersion uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a replica with a fresh identity. Identity is never persisted,
// so two processes restored from the same snapshot still differ.
func New(cfg Config) *Replica {
	def := DefaultConfig()
	if cfg.DedupCapacity <= 0 {
		cfg.DedupCapacity = def.DedupCapacity
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.NotifyTTL <= 0 {
		cfg.NotifyTTL = def.NotifyTTL
	}
	if cfg.NotifyCapacity <= 0 {
		cfg.NotifyCapacity = def.NotifyCapacity
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	id := uuid.NewString()
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With("replica", id)

	book := orderbook.NewOrderBook(cfg.Clock, cfg.Catalog)
	l := ledger.New()
	sink := notify.NewSink(cfg.Clock, cfg.NotifyTTL, cfg.NotifyCapacity)
	m := matcher.New(book, l, sink, matcher.Config{
		Owner:   id,
		LockTTL: cfg.LockTTL,
		Locker:  cfg.Locker,
		Clock:   cfg.Clock,
		Logger:  log,
	})

	return &Replica{
		id:      id,
		cfg:     cfg,
		log:     log,
		book:    book,
		ledger:  l,
		matcher: m,
		sink:    sink,
		seen:    newSeenSet(cfg.DedupCapacity),
	}
}

func (r *Replica) ID() string { return r.id }

// Start restores persisted state, subscribes to the transport, asks peers for
// their state and runs periodic sync and notification expiry until Close.
func (r *Replica) Start(ctx context.Context) error {
	if r.cfg.Persistence != nil {
		snap, err := r.cfg.Persistence.Load(ctx)
		if err != nil {
			r.log.Warnw("snapshot_load_failed", "err", err)
		} else if !snap.Empty() {
			r.Ingest(ctx, snap)
			r.log.Infow("snapshot_restored", "orders", len(snap.Orders), "trades", len(snap.Trades))
		}
	}

	if r.cfg.Transport != nil {
		r.cfg.Transport.SetHandler(r.HandleMessage)
	}
	if err := r.RequestSync(ctx); err != nil && !errors.Is(err, ErrTransportUnavailable) {
		r.log.Warnw("initial_sync_failed", "err", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.wg.Add(1)
	go r.loop(loopCtx)

	r.log.Infow("replica_started", "transport", r.cfg.Transport != nil, "persistence", r.cfg.Persistence != nil)
	return nil
}

// loop runs notification expiry and periodic sync on the replica's clock.
func (r *Replica) loop(ctx context.Context) {
	defer r.wg.Done()

	clock := r.cfg.Clock
	expire := clock.After(time.Second)
	var syncC <-chan time.Time
	if r.cfg.SyncInterval > 0 {
		syncC = clock.After(r.cfg.SyncInterval)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-expire:
			r.sink.Expire()
			expire = clock.After(time.Second)
		case <-syncC:
			if err := r.RequestSync(ctx); err != nil && !errors.Is(err, ErrTransportUnavailable) {
				r.log.Debugw("periodic_sync_failed", "err", err)
			}
			syncC = clock.After(r.cfg.SyncInterval)
		}
	}
}

// Close stops background work and writes a final snapshot.
func (r *Replica) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()

	r.mu.Lock()
	snap, version := r.snapshotLocked(), r.version
	r.mu.Unlock()
	r.persist(context.Background(), snap, version)

	r.log.Infow("replica_stopped")
	return nil
}

// SubmitOrder records a new order, broadcasts it and tries to match it.
// The returned order reflects any fill.
func (r *Replica) SubmitOrder(ctx context.Context, d orderbook.OrderData) (orderbook.Order, error) {
	r.mu.Lock()
	o, err := r.submitLocked(d)
	if err != nil {
		r.mu.Unlock()
		return orderbook.Order{}, err
	}
	o, _ = r.book.Get(o.ID)
	snap, version := r.snapshotLocked(), r.version
	r.mu.Unlock()

	r.flush(ctx)
	r.persist(ctx, snap, version)
	return o, nil
}

func (r *Replica) submitLocked(d orderbook.OrderData) (orderbook.Order, error) {
	o, err := r.book.Submit(d)
	if err != nil {
		return orderbook.Order{}, err
	}
	r.version++
	r.enqueue(MsgOrderAdded, OrderAdded{Order: o})
	r.log.Infow("order_submitted", "order", o.ID, "side", o.Side, "instrument", o.InstrumentID, "price", o.Price.String(), "qty", o.Quantity)
	r.autoMatchLocked(o)
	return o, nil
}

func (r *Replica) autoMatchLocked(o orderbook.Order) {
	exec, err := r.matcher.CheckAutoMatch(o)
	if err != nil {
		r.log.Debugw("auto_match_aborted", "order", o.ID, "err", err)
		return
	}
	if exec != nil {
		r.recordExecutionLocked(exec)
	}
}

func (r *Replica) recordExecutionLocked(exec *matcher.Execution) {
	r.version++
	n := exec.Notification
	r.enqueue(MsgTradeExecuted, TradeExecuted{
		Trade:        exec.Trade,
		Orders:       exec.Orders,
		OrderPatches: exec.Patches,
		Notify:       &n,
	})
}

// DualQuote is a market maker's two-sided quote around a reference price.
type DualQuote struct {
	InstrumentID string               `json:"instrumentId"`
	CategoryID   string               `json:"categoryId,omitempty"`
	Price        orderbook.Price      `json:"price"`
	Spread       orderbook.Price      `json:"spread,omitempty"`
	Quantity     int64                `json:"quantity"`
	Attributes   orderbook.Attributes `json:"attributes,omitempty"`
	OwnerRole    string               `json:"ownerRole,omitempty"`
}

// SubmitDualQuote places a BID at price-spread and an ASK at price+spread
// with identical attributes. Both legs are validated before either is placed.
func (r *Replica) SubmitDualQuote(ctx context.Context, q DualQuote) (bid, ask orderbook.Order, err error) {
	spread := q.Spread
	if !spread.IsPositive() {
		spread = DefaultQuoteSpread
	}
	role := q.OwnerRole
	if role == "" {
		role = orderbook.RoleMM
	}
	leg := func(side orderbook.Side, p orderbook.Price) orderbook.OrderData {
		return orderbook.OrderData{
			Side:         side,
			InstrumentID: q.InstrumentID,
			CategoryID:   q.CategoryID,
			Price:        p,
			Quantity:     q.Quantity,
			Attributes:   q.Attributes,
			OwnerRole:    role,
		}
	}
	bidData := leg(orderbook.Bid, q.Price.Sub(spread))
	askData := leg(orderbook.Ask, q.Price.Add(spread))
	if err := bidData.Validate(); err != nil {
		return orderbook.Order{}, orderbook.Order{}, err
	}
	if err := askData.Validate(); err != nil {
		return orderbook.Order{}, orderbook.Order{}, err
	}

	r.mu.Lock()
	bid, err = r.submitLocked(bidData)
	if err == nil {
		ask, err = r.submitLocked(askData)
	}
	if err == nil {
		bid, _ = r.book.Get(bid.ID)
		ask, _ = r.book.Get(ask.ID)
	}
	snap, version := r.snapshotLocked(), r.version
	r.mu.Unlock()

	r.flush(ctx)
	r.persist(ctx, snap, version)
	return bid, ask, err
}

// CancelOrder cancels an OPEN order. Unknown or closed orders are left alone
// and nothing is broadcast.
func (r *Replica) CancelOrder(ctx context.Context, id string) bool {
	r.mu.Lock()
	ok := r.book.Cancel(id)
	if ok {
		r.version++
		r.enqueue(MsgOrderCancelled, OrderCancelled{OrderID: id})
		r.log.Infow("order_cancelled", "order", id)
	}
	snap, version := r.snapshotLocked(), r.version
	r.mu.Unlock()

	if ok {
		r.flush(ctx)
		r.persist(ctx, snap, version)
	}
	return ok
}

// ManualMatch is an operator-directed execution of two specific orders.
type ManualMatch struct {
	BuyOrderID  string          `json:"buyOrderId"`
	SellOrderID string          `json:"sellOrderId"`
	Price       orderbook.Price `json:"price,omitempty"`
	Quantity    int64           `json:"quantity,omitempty"`
	Notes       string          `json:"notes,omitempty"`
}

// ManualExecute matches two orders regardless of attributes. Without a price
// the trade executes at the midpoint; the quantity is clamped to what both
// orders have left.
func (r *Replica) ManualExecute(ctx context.Context, mm ManualMatch) (ledger.Trade, error) {
	r.mu.Lock()
	exec, err := r.matcher.ExecuteTrade(mm.BuyOrderID, mm.SellOrderID, matcher.ExecOptions{
		Manual:   true,
		Price:    mm.Price,
		Quantity: mm.Quantity,
		Notes:    mm.Notes,
	})
	if err != nil {
		r.mu.Unlock()
		r.log.Debugw("manual_match_aborted", "buy", mm.BuyOrderID, "sell", mm.SellOrderID, "err", err)
		return ledger.Trade{}, err
	}
	r.recordExecutionLocked(exec)
	snap, version := r.snapshotLocked(), r.version
	r.mu.Unlock()

	r.flush(ctx)
	r.persist(ctx, snap, version)
	return exec.Trade, nil
}

// RequestSync asks every peer for its full state.
func (r *Replica) RequestSync(ctx context.Context) error {
	if r.cfg.Transport == nil {
		return ErrTransportUnavailable
	}
	r.enqueue(MsgStateRequest, StateRequest{})
	return r.flush(ctx)
}

func (r *Replica) OpenOrders(side orderbook.Side, instrumentID string) []orderbook.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.book.OpenOrders(side, instrumentID)
}

func (r *Replica) TradeHistory(instrumentID string) []ledger.Trade {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ledger.History(instrumentID)
}

func (r *Replica) Order(id string) (orderbook.Order, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.book.Get(id)
}

func (r *Replica) Notifications() []notify.Notification { return r.sink.List() }

func (r *Replica) DismissNotification(id string) bool { return r.sink.Dismiss(id) }

func (r *Replica) SubscribeNotifications(buf int) (<-chan notify.Notification, func()) {
	return r.sink.Subscribe(buf)
}

// MarketDepth is the aggregated book of one instrument plus its last trade.
type MarketDepth struct {
	orderbook.Depth
	LastTrade *ledger.Trade `json:"lastTrade,omitempty"`
}

func (r *Replica) Depth(instrumentID string) MarketDepth {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := MarketDepth{Depth: r.book.Depth(instrumentID)}
	if t, ok := r.ledger.Last(instrumentID); ok {
		d.LastTrade = &t
	}
	return d
}

func (r *Replica) Snapshot() core.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Digest hashes the current orders and trades for convergence checks.
func (r *Replica) Digest() string { return Digest(r.Snapshot()) }

func (r *Replica) snapshotLocked() core.Snapshot {
	return core.Snapshot{Orders: r.book.All(), Trades: r.ledger.All()}
}

// Ingest merges a full snapshot: unknown orders are inserted, known ones
// merged monotonically, trades upserted, and the book reconciled.
func (r *Replica) Ingest(ctx context.Context, snap core.Snapshot) {
	r.mu.Lock()
	r.ingestLocked(snap)
	s, version := r.snapshotLocked(), r.version
	r.mu.Unlock()

	r.flush(ctx)
	r.persist(ctx, s, version)
}

// ingestLocked merges a peer or persisted snapshot. Entries that fail
// validation are skipped one by one so a single bad record does not block
// the rest of the state.
func (r *Replica) ingestLocked(snap core.Snapshot) {
	for _, o := range snap.Orders {
		if err := o.Validate(); err != nil {
			r.log.Debugw("snapshot_order_skipped", "order", o.ID, "err", err)
			continue
		}
		if r.book.Insert(o) {
			r.version++
			continue
		}
		if r.book.ApplyPatch(orderbook.OrderPatch{ID: o.ID, Quantity: o.Quantity, Status: o.Status}) {
			r.version++
		}
	}
	for _, t := range snap.Trades {
		if err := t.Validate(); err != nil {
			r.log.Debugw("snapshot_trade_skipped", "trade", t.ID, "err", err)
			continue
		}
		before, _ := r.ledger.Get(t.Key())
		if r.ledger.Upsert(t) {
			r.version++
			continue
		}
		if after, _ := r.ledger.Get(t.Key()); after != before {
			r.version++
		}
	}
	r.reconcileLocked()
}

func (r *Replica) reconcileLocked() {
	execs, err := r.matcher.Reconcile()
	if err != nil {
		r.log.Warnw("reconcile_anomaly", "err", err, "executions", len(execs))
	}
	for i := range execs {
		r.recordExecutionLocked(&execs[i])
	}
}

// HandleMessage applies one encoded envelope from a peer. Malformed, echoed
// and already seen messages are dropped.
func (r *Replica) HandleMessage(ctx context.Context, raw []byte) {
	env, err := DecodeEnvelope(raw)
	if err != nil {
		r.log.Debugw("envelope_dropped", "err", err)
		return
	}
	if env.SourceID == r.id {
		return
	}

	r.mu.Lock()
	if !r.seen.firstSeen(env.EventID) {
		r.mu.Unlock()
		return
	}
	before := r.version
	if err := r.applyLocked(env); err != nil {
		r.log.Debugw("envelope_rejected", "type", env.Type, "event", env.EventID, "err", err)
	}
	changed := r.version != before
	snap, version := r.snapshotLocked(), r.version
	r.mu.Unlock()

	if r.cfg.Journal != nil {
		r.cfg.Journal.Append(fmt.Sprintf("%d %s %s %s", env.TS, env.Type, env.EventID, env.SourceID))
	}
	r.flush(ctx)
	if changed {
		r.persist(ctx, snap, version)
	}
}

func (r *Replica) applyLocked(env Envelope) error {
	switch env.Type {
	case MsgOrderAdded:
		var p OrderAdded
		if err := env.Decode(&p); err != nil {
			return err
		}
		if err := p.Order.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if r.book.Insert(p.Order) {
			r.version++
		}
		r.autoMatchLocked(p.Order)

	case MsgOrderCancelled:
		var p OrderCancelled
		if err := env.Decode(&p); err != nil {
			return err
		}
		if r.book.Cancel(p.OrderID) {
			r.version++
		}

	case MsgTradeExecuted:
		var p TradeExecuted
		if err := env.Decode(&p); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		for _, o := range p.Orders {
			if r.book.Insert(o) {
				r.version++
			}
		}
		before, _ := r.ledger.Get(p.Trade.Key())
		inserted := r.ledger.Upsert(p.Trade)
		if after, _ := r.ledger.Get(p.Trade.Key()); inserted || after != before {
			r.version++
		}
		for _, patch := range p.OrderPatches {
			if r.book.ApplyPatch(patch) {
				r.version++
			}
		}
		if inserted && p.Notify != nil {
			n := *p.Notify
			n.ID, n.Timestamp = "", 0
			r.sink.Push(n)
		}

	case MsgStateRequest:
		r.enqueue(MsgStateSnapshot, r.snapshotLocked())

	case MsgStateSnapshot:
		var snap core.Snapshot
		if err := env.Decode(&snap); err != nil {
			return err
		}
		r.ingestLocked(snap)
	}
	return nil
}

func (r *Replica) enqueue(t MsgType, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		r.log.Errorw("payload_encode_failed", "type", t, "err", err)
		return
	}
	env := Envelope{
		Type:     t,
		Payload:  b,
		TS:       r.cfg.Clock.Now().UnixMilli(),
		EventID:  uuid.NewString(),
		SourceID: r.id,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		r.log.Errorw("envelope_encode_failed", "type", t, "err", err)
		return
	}
	r.out.push(raw)
}

// flush publishes queued envelopes. Failures are logged and never reach the
// caller's local state.
func (r *Replica) flush(ctx context.Context) error {
	msgs := r.out.drain()
	if r.cfg.Transport == nil {
		return nil
	}
	var errs []error
	for _, m := range msgs {
		if err := r.cfg.Transport.Publish(ctx, m); err != nil {
			r.log.Warnw("publish_failed", "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Replica) persist(ctx context.Context, snap core.Snapshot, version uint64) {
	if r.cfg.Persistence == nil {
		return
	}
	r.persistMu.Lock()
	defer r.persistMu.Unlock()
	if version <= r.savedVersion {
		return
	}
	if err := r.cfg.Persistence.Save(ctx, snap); err != nil {
		r.log.Warnw("snapshot_save_failed", "err", err)
		return
	}
	r.savedVersion = version
}
