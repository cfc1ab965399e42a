package orderbook

import (
	"errors"
	"fmt"
)

type Side string

const (
	Bid Side = "BID"
	Ask Side = "ASK"
)

func (s Side) Valid() bool { return s == Bid || s == Ask }

// Opposite returns the contra side.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

// Status ranks OPEN < CANCELLED < FILLED. An order never moves to a lower rank.
type Status string

const (
	Open      Status = "OPEN"
	Cancelled Status = "CANCELLED"
	Filled    Status = "FILLED"
)

// Rank treats unknown or empty statuses as OPEN.
func (s Status) Rank() int {
	switch s {
	case Cancelled:
		return 2
	case Filled:
		return 3
	default:
		return 1
	}
}

func (s Status) normalize() Status {
	switch s {
	case Cancelled, Filled:
		return s
	default:
		return Open
	}
}

// MergeStatus returns the higher-ranked of a and b.
func MergeStatus(a, b Status) Status {
	if a.Rank() >= b.Rank() {
		return a.normalize()
	}
	return b.normalize()
}

// Roles seen on orders and notifications.
const (
	RoleBuyer  = "BUYER"
	RoleSeller = "SELLER"
	RoleMM     = "MM"
	RoleAdmin  = "ADMIN"
	RoleSystem = "SYSTEM"
)

type Order struct {
	ID           string     `json:"id"`
	Side         Side       `json:"side"`
	InstrumentID string     `json:"instrumentId"`
	CategoryID   string     `json:"categoryId,omitempty"`
	Price        Price      `json:"price"`
	Quantity     int64      `json:"quantity"` // remaining
	Attributes   Attributes `json:"attributes"`
	OwnerRole    string     `json:"ownerRole,omitempty"`
	CreatedAt    int64      `json:"createdAt"` // unix millis
	Status       Status     `json:"status"`
}

func (o Order) IsOpen() bool { return o.Status.normalize() == Open }

func (o Order) clone() Order {
	o.Attributes = o.Attributes.Clone()
	return o
}

// OrderData is the caller-supplied part of an order.
type OrderData struct {
	Side         Side       `json:"side"`
	InstrumentID string     `json:"instrumentId"`
	CategoryID   string     `json:"categoryId,omitempty"`
	Price        Price      `json:"price"`
	Quantity     int64      `json:"quantity"`
	Attributes   Attributes `json:"attributes,omitempty"`
	OwnerRole    string     `json:"ownerRole,omitempty"`
}

// OrderPatch is the absolute post-trade state of one order.
type OrderPatch struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
	Status   Status `json:"status"`
}

// MergePatch combines local state with a remote patch. Status takes the higher
// rank; quantity is zero once FILLED and otherwise the smaller of the two,
// since remaining quantity only ever decreases.
func MergePatch(local Order, p OrderPatch) Order {
	local.Status = MergeStatus(local.Status, p.Status)
	if local.Status == Filled {
		local.Quantity = 0
		return local
	}
	if p.Quantity < local.Quantity {
		local.Quantity = p.Quantity
	}
	if local.Quantity < 0 {
		local.Quantity = 0
	}
	return local
}

var ErrNotFound = errors.New("order not found")

// ValidationError rejects malformed submit input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid order: %s %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Validate checks a replicated order. Closed orders may carry zero quantity;
// an OPEN order must still have something left to trade.
func (o Order) Validate() error {
	if o.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	if !o.Side.Valid() {
		return &ValidationError{Field: "side", Reason: "must be BID or ASK"}
	}
	if o.InstrumentID == "" {
		return &ValidationError{Field: "instrumentId", Reason: "is required"}
	}
	if !o.Price.IsPositive() {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	return checkRemaining(o.Quantity, o.Status)
}

func (p OrderPatch) Validate() error {
	if p.ID == "" {
		return &ValidationError{Field: "id", Reason: "is required"}
	}
	return checkRemaining(p.Quantity, p.Status)
}

func checkRemaining(qty int64, status Status) error {
	if qty < 0 {
		return &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if qty == 0 && status.normalize() == Open {
		return &ValidationError{Field: "quantity", Reason: "must be positive while OPEN"}
	}
	return nil
}

func (d OrderData) Validate() error {
	if !d.Side.Valid() {
		return &ValidationError{Field: "side", Reason: "must be BID or ASK"}
	}
	if d.InstrumentID == "" {
		return &ValidationError{Field: "instrumentId", Reason: "is required"}
	}
	if !d.Price.IsPositive() {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	if d.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be positive"}
	}
	return nil
}
