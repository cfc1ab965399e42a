package feeder

import (
	"math/rand"
	"time"

	"github.com/uhyunpark/hnitrade/pkg/app/core/market"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
)

// referencePrices anchors generated quotes per instrument, in CNY/ton.
var referencePrices = map[string]int64{
	"rebar":    3840,
	"hrc":      3950,
	"crc":      4600,
	"strip":    3900,
	"billet":   3500,
	"pb-fines": 780,
	"seaborne": 760,
	"methanol": 2450,
	"benzene":  7200,
	"styrene":  8300,
}

const defaultReference = 1000

// Generator creates random but plausible orders against a set of
// instruments, for demos and load testing.
type Generator struct {
	instruments []*market.Instrument
	rng         *rand.Rand

	recent  []string // ids of submitted orders, cancel candidates
	orders  int
	cancels int
}

// Action is one generated step: either an order or the id of an order to cancel.
type Action struct {
	Order    *orderbook.OrderData
	CancelID string
}

// NewGenerator creates a generator over instruments. A zero seed seeds from
// the clock.
func NewGenerator(instruments []*market.Instrument, seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		instruments: instruments,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// GenerateOrder returns a random order within 2% of the instrument's
// reference price. About one attribute in five is the wildcard.
func (g *Generator) GenerateOrder() orderbook.OrderData {
	in := g.instruments[g.rng.Intn(len(g.instruments))]

	side, role := orderbook.Bid, orderbook.RoleBuyer
	if g.rng.Intn(2) == 1 {
		side, role = orderbook.Ask, orderbook.RoleSeller
	}

	ref, ok := referencePrices[in.ID]
	if !ok {
		ref = defaultReference
	}
	band := ref / 50
	price := ref - band + g.rng.Int63n(2*band+1)
	if price < 1 {
		price = 1
	}

	var attrs orderbook.Attributes
	for _, spec := range in.Attributes {
		v := orderbook.Wildcard
		if len(spec.Options) > 0 && g.rng.Intn(5) != 0 {
			v = orderbook.Concrete(spec.Options[g.rng.Intn(len(spec.Options))])
		}
		attrs = attrs.With(spec.Name, v)
	}

	g.orders++
	return orderbook.OrderData{
		Side:         side,
		InstrumentID: in.ID,
		CategoryID:   in.CategoryID,
		Price:        orderbook.NewPrice(price),
		Quantity:     int64(g.rng.Intn(50)+1) * 10,
		Attributes:   attrs,
		OwnerRole:    role,
	}
}

// Remember records a submitted order id as a future cancel candidate.
// Only the last 100 are kept.
func (g *Generator) Remember(id string) {
	g.recent = append(g.recent, id)
	if len(g.recent) > 100 {
		g.recent = g.recent[len(g.recent)-100:]
	}
}

// Next returns an order nine times out of ten and otherwise cancels a
// remembered order, if any.
func (g *Generator) Next() Action {
	if len(g.recent) > 0 && g.rng.Intn(10) == 0 {
		i := g.rng.Intn(len(g.recent))
		id := g.recent[i]
		g.recent = append(g.recent[:i], g.recent[i+1:]...)
		g.cancels++
		return Action{CancelID: id}
	}
	o := g.GenerateOrder()
	return Action{Order: &o}
}

type Stats struct {
	Orders  int
	Cancels int
}

func (g *Generator) Stats() Stats {
	return Stats{Orders: g.orders, Cancels: g.cancels}
}
