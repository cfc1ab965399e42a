package replication

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/uhyunpark/hnitrade/pkg/app/core"
	"github.com/uhyunpark/hnitrade/pkg/app/core/notify"
)

// MsgType is the replication message kind.
type MsgType string

const (
	MsgOrderAdded     MsgType = "order_added"
	MsgOrderCancelled MsgType = "order_cancelled"
	MsgTradeExecuted  MsgType = "trade_executed"
	MsgStateRequest   MsgType = "state_request"
	MsgStateSnapshot  MsgType = "state_snapshot"
)

func (t MsgType) Valid() bool {
	switch t {
	case MsgOrderAdded, MsgOrderCancelled, MsgTradeExecuted, MsgStateRequest, MsgStateSnapshot:
		return true
	}
	return false
}

// Envelope is the wire form shared by every replica.
type Envelope struct {
	Type     MsgType         `json:"type"`
	Payload  json.RawMessage `json:"payload"`
	TS       int64           `json:"ts"` // unix millis at emission
	EventID  string          `json:"eventId"`
	SourceID string          `json:"sourceId"`
}

type OrderAdded struct {
	Order core.Order `json:"order"`
}

type OrderCancelled struct {
	OrderID string `json:"orderId"`
}

// TradeExecuted carries absolute post-trade order state, so applying it twice
// or out of order is harmless. Orders holds the pre-trade orders for
// replicas that never saw them added.
type TradeExecuted struct {
	Trade        core.Trade           `json:"trade"`
	Orders       []core.Order         `json:"orders,omitempty"`
	OrderPatches []core.OrderPatch    `json:"orderPatches"`
	Notify       *notify.Notification `json:"notify,omitempty"`
}

// Validate rejects the whole message when the trade, any carried order or
// any patch is malformed.
func (p TradeExecuted) Validate() error {
	if err := p.Trade.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for _, o := range p.Orders {
		if err := o.Validate(); err != nil {
			return fmt.Errorf("%w: order %s: %v", ErrMalformed, o.ID, err)
		}
	}
	for _, patch := range p.OrderPatches {
		if err := patch.Validate(); err != nil {
			return fmt.Errorf("%w: patch %s: %v", ErrMalformed, patch.ID, err)
		}
	}
	return nil
}

type StateRequest struct{}

var ErrMalformed = errors.New("malformed envelope")

// DecodeEnvelope parses raw bytes and rejects envelopes without a known type
// or an event id.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	if len(raw) == 0 || raw[0] != '{' {
		return Envelope{}, ErrMalformed
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if !env.Type.Valid() {
		return Envelope{}, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
	if env.EventID == "" {
		return Envelope{}, fmt.Errorf("%w: missing eventId", ErrMalformed)
	}
	return env, nil
}

// Decode unmarshals the payload into v. An absent payload leaves v zero.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 || string(e.Payload) == "null" {
		return nil
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Type, err)
	}
	return nil
}
