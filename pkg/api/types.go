package api

// API request and response types for REST endpoints and WebSocket messages

import (
	"github.com/uhyunpark/hnitrade/pkg/app/core/ledger"
	"github.com/uhyunpark/hnitrade/pkg/app/core/market"
	"github.com/uhyunpark/hnitrade/pkg/app/core/notify"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
)

// ==============================
// REST Response Types
// ==============================

// InstrumentInfo is one tradable instrument with its attribute options
type InstrumentInfo struct {
	ID           string                 `json:"id"`
	CategoryID   string                 `json:"categoryId"`
	CategoryName string                 `json:"categoryName"`
	Name         string                 `json:"name"`
	Unit         string                 `json:"unit"` // e.g. "元/吨"
	Status       market.Status          `json:"status"`
	Attributes   []market.AttributeSpec `json:"attributes"`
}

func instrumentInfo(in *market.Instrument) InstrumentInfo {
	return InstrumentInfo{
		ID:           in.ID,
		CategoryID:   in.CategoryID,
		CategoryName: in.CategoryName,
		Name:         in.Name,
		Unit:         in.Unit,
		Status:       in.Status,
		Attributes:   in.Attributes,
	}
}

// DualQuoteResponse holds both legs of a market maker quote
type DualQuoteResponse struct {
	Bid orderbook.Order `json:"bid"`
	Ask orderbook.Order `json:"ask"`
}

type CancelOrderResponse struct {
	OrderID   string `json:"orderId"`
	Cancelled bool   `json:"cancelled"` // false when the order was unknown or already closed
}

type TradesResponse struct {
	InstrumentID string         `json:"instrumentId"`
	Trades       []ledger.Trade `json:"trades"` // newest first
}

type NotificationsResponse struct {
	Notifications []notify.Notification `json:"notifications"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage is the base structure for all WebSocket messages
type WSMessage struct {
	Type string `json:"type"` // "notification", "depth"
	Data any    `json:"data"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["notifications", "depth:rebar"]
}

const (
	ChannelNotifications = "notifications"
	channelDepthPrefix   = "depth:"
)

func DepthChannel(instrumentID string) string { return channelDepthPrefix + instrumentID }
