package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/hnitrade/pkg/app/core/ledger"
	"github.com/uhyunpark/hnitrade/pkg/app/core/market"
	"github.com/uhyunpark/hnitrade/pkg/app/core/matcher"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
	"github.com/uhyunpark/hnitrade/pkg/replication"
)

func newTestServer(t *testing.T) (*Server, *replication.Replica, http.Handler) {
	t.Helper()
	reg := market.DefaultCatalog()
	cfg := replication.DefaultConfig()
	cfg.Catalog = reg
	r := replication.New(cfg)
	s := NewServer(r, reg, Config{}, nil)
	return s, r, s.Handler()
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestInstruments(t *testing.T) {
	_, _, h := newTestServer(t)

	rec := do(t, h, "GET", "/api/v1/instruments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[[]InstrumentInfo](t, rec)
	assert.Len(t, list, 10)
	assert.Equal(t, "rebar", list[0].ID)

	rec = do(t, h, "GET", "/api/v1/instruments/rebar", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "元/吨", decode[InstrumentInfo](t, rec).Unit)

	rec = do(t, h, "GET", "/api/v1/instruments/gold", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSubmitOrderValidation(t *testing.T) {
	_, _, h := newTestServer(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"malformed json", `{`, http.StatusBadRequest},
		{"bad side", `{"side":"BUY","instrumentId":"rebar","price":3800,"quantity":1}`, http.StatusBadRequest},
		{"zero price", `{"side":"BID","instrumentId":"rebar","price":0,"quantity":1}`, http.StatusBadRequest},
		{"negative quantity", `{"side":"BID","instrumentId":"rebar","price":3800,"quantity":-5}`, http.StatusBadRequest},
		{"unknown instrument", `{"side":"BID","instrumentId":"gold","price":3800,"quantity":1}`, http.StatusBadRequest},
		{"ok", `{"side":"BID","instrumentId":"rebar","price":"3800.5","quantity":1,"attributes":{"品牌":"任意"}}`, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, "POST", "/api/v1/orders", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestOrderLifecycle(t *testing.T) {
	_, _, h := newTestServer(t)

	rec := do(t, h, "POST", "/api/v1/orders", `{"side":"ASK","instrumentId":"rebar","price":3820,"quantity":100,"attributes":{"品牌":"沙钢"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	ask := decode[orderbook.Order](t, rec)
	assert.Equal(t, orderbook.Open, ask.Status)

	rec = do(t, h, "POST", "/api/v1/orders", `{"side":"BID","instrumentId":"rebar","price":3830,"quantity":200,"attributes":{"品牌":"任意"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	bid := decode[orderbook.Order](t, rec)
	assert.Equal(t, int64(100), bid.Quantity)

	rec = do(t, h, "GET", "/api/v1/instruments/rebar/trades", "")
	trades := decode[TradesResponse](t, rec)
	require.Len(t, trades.Trades, 1)
	assert.Equal(t, "3820", trades.Trades[0].Price.String())
	assert.Equal(t, ledger.Auto, trades.Trades[0].MatchedBy)

	rec = do(t, h, "GET", "/api/v1/instruments/rebar/orders?side=BID", "")
	assert.Len(t, decode[[]orderbook.Order](t, rec), 1)
	rec = do(t, h, "GET", "/api/v1/instruments/rebar/orders?side=ASK", "")
	assert.Empty(t, decode[[]orderbook.Order](t, rec))
	rec = do(t, h, "GET", "/api/v1/instruments/rebar/orders?side=SIDEWAYS", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "GET", "/api/v1/instruments/rebar/depth", "")
	depth := decode[replication.MarketDepth](t, rec)
	require.Len(t, depth.Bids, 1)
	assert.Equal(t, int64(100), depth.Bids[0].Quantity)
	require.NotNil(t, depth.LastTrade)

	rec = do(t, h, "POST", "/api/v1/orders/"+bid.ID+"/cancel", "")
	assert.True(t, decode[CancelOrderResponse](t, rec).Cancelled)
	rec = do(t, h, "POST", "/api/v1/orders/"+bid.ID+"/cancel", "")
	assert.False(t, decode[CancelOrderResponse](t, rec).Cancelled)
}

func TestDualQuoteAndManualTrade(t *testing.T) {
	_, _, h := newTestServer(t)

	rec := do(t, h, "POST", "/api/v1/quotes/dual", `{"instrumentId":"rebar","price":3850,"quantity":100}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	quote := decode[DualQuoteResponse](t, rec)
	assert.Equal(t, "3845", quote.Bid.Price.String())
	assert.Equal(t, "3855", quote.Ask.Price.String())

	rec = do(t, h, "POST", "/api/v1/trades/manual", `{"buyOrderId":"`+quote.Bid.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, "POST", "/api/v1/trades/manual", `{"buyOrderId":"`+quote.Ask.ID+`","sellOrderId":"`+quote.Bid.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "sides swapped")

	body := `{"buyOrderId":"` + quote.Bid.ID + `","sellOrderId":"` + quote.Ask.ID + `","quantity":40,"notes":"phone deal"}`
	rec = do(t, h, "POST", "/api/v1/trades/manual", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	trade := decode[ledger.Trade](t, rec)
	assert.Equal(t, "3850", trade.Price.String())
	assert.Equal(t, int64(40), trade.Quantity)
	assert.Equal(t, ledger.Manual, trade.MatchedBy)

	rec = do(t, h, "POST", "/api/v1/trades/manual", `{"buyOrderId":"missing","sellOrderId":"`+quote.Ask.ID+`"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, "GET", "/api/v1/notifications", "")
	list := decode[NotificationsResponse](t, rec).Notifications
	require.Len(t, list, 1)
	assert.Equal(t, matcher.TitleManual, list[0].Title)
	assert.Contains(t, list[0].Message, "(phone deal)")

	rec = do(t, h, "DELETE", "/api/v1/notifications/"+list[0].ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, h, "DELETE", "/api/v1/notifications/"+list[0].ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSyncWithoutTransport(t *testing.T) {
	_, _, h := newTestServer(t)
	rec := do(t, h, "POST", "/api/v1/sync", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, h, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	_, _, h := newTestServer(t)
	req := httptest.NewRequest("OPTIONS", "/api/v1/orders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketNotificationStream(t *testing.T) {
	s, r, h := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Run(ctx)

	ts := httptest.NewServer(h)
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	_, err = r.SubmitOrder(ctx, orderbook.OrderData{Side: orderbook.Ask, InstrumentID: "rebar", Price: orderbook.NewPrice(3820), Quantity: 10})
	require.NoError(t, err)
	_, err = r.SubmitOrder(ctx, orderbook.OrderData{Side: orderbook.Bid, InstrumentID: "rebar", Price: orderbook.NewPrice(3820), Quantity: 10})
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg struct {
		Type string `json:"type"`
		Data struct {
			Title string `json:"title"`
			Role  string `json:"role"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, "notification", msg.Type)
	assert.Equal(t, matcher.TitleAuto, msg.Data.Title)
	assert.Equal(t, orderbook.RoleSystem, msg.Data.Role)
}
