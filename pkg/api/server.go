package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/hnitrade/pkg/app/core/ledger"
	"github.com/uhyunpark/hnitrade/pkg/app/core/market"
	"github.com/uhyunpark/hnitrade/pkg/app/core/matcher"
	"github.com/uhyunpark/hnitrade/pkg/app/core/notify"
	"github.com/uhyunpark/hnitrade/pkg/app/core/orderbook"
	"github.com/uhyunpark/hnitrade/pkg/replication"
)

// Engine is the trading surface the server drives. *replication.Replica
// implements it.
type Engine interface {
	SubmitOrder(ctx context.Context, d orderbook.OrderData) (orderbook.Order, error)
	SubmitDualQuote(ctx context.Context, q replication.DualQuote) (bid, ask orderbook.Order, err error)
	CancelOrder(ctx context.Context, id string) bool
	ManualExecute(ctx context.Context, mm replication.ManualMatch) (ledger.Trade, error)
	RequestSync(ctx context.Context) error

	OpenOrders(side orderbook.Side, instrumentID string) []orderbook.Order
	TradeHistory(instrumentID string) []ledger.Trade
	Depth(instrumentID string) replication.MarketDepth
	Notifications() []notify.Notification
	DismissNotification(id string) bool
	SubscribeNotifications(buf int) (<-chan notify.Notification, func())
}

type Config struct {
	CORSOrigins []string
}

// Server handles REST API and WebSocket connections
type Server struct {
	engine   Engine
	registry *market.Registry
	router   *mux.Router
	hub      *Hub
	cfg      Config
	log      *zap.SugaredLogger
}

func NewServer(engine Engine, registry *market.Registry, cfg Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	s := &Server{
		engine:   engine,
		registry: registry,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
		cfg:      cfg,
		log:      log,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Instruments
	api.HandleFunc("/instruments", s.handleGetInstruments).Methods("GET")
	api.HandleFunc("/instruments/{id}", s.handleGetInstrument).Methods("GET")
	api.HandleFunc("/instruments/{id}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/instruments/{id}/trades", s.handleGetTrades).Methods("GET")
	api.HandleFunc("/instruments/{id}/depth", s.handleGetDepth).Methods("GET")

	// Orders and trades
	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/quotes/dual", s.handleDualQuote).Methods("POST")
	api.HandleFunc("/trades/manual", s.handleManualTrade).Methods("POST")
	api.HandleFunc("/sync", s.handleSync).Methods("POST")

	// Notifications
	api.HandleFunc("/notifications", s.handleGetNotifications).Methods("GET")
	api.HandleFunc("/notifications/{id}", s.handleDismissNotification).Methods("DELETE")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	origins := s.cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Run starts the WebSocket hub and relays engine notifications to it until
// ctx is done.
func (s *Server) Run(ctx context.Context) {
	ch, cancel := s.engine.SubscribeNotifications(64)
	go s.hub.Run(ctx)
	go s.relayNotifications(ctx, ch, cancel)
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.Run(ctx)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Infow("api_listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) relayNotifications(ctx context.Context, ch <-chan notify.Notification, cancel func()) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			s.hub.BroadcastToChannel(ChannelNotifications, WSMessage{Type: "notification", Data: n})
		}
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetInstruments(w http.ResponseWriter, r *http.Request) {
	list := s.registry.List()
	response := make([]InstrumentInfo, len(list))
	for i, in := range list {
		response[i] = instrumentInfo(in)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetInstrument(w http.ResponseWriter, r *http.Request) {
	in, err := s.registry.Get(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, http.StatusNotFound, "instrument not found", err.Error())
		return
	}
	respondJSON(w, instrumentInfo(in))
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	side := orderbook.Side(r.URL.Query().Get("side"))
	switch {
	case side == "":
		orders := append([]orderbook.Order{}, s.engine.OpenOrders(orderbook.Bid, id)...)
		respondJSON(w, append(orders, s.engine.OpenOrders(orderbook.Ask, id)...))
	case side.Valid():
		respondJSON(w, append([]orderbook.Order{}, s.engine.OpenOrders(side, id)...))
	default:
		respondError(w, http.StatusBadRequest, "invalid side", "expected BID or ASK")
	}
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	trades := s.engine.TradeHistory(id)
	if trades == nil {
		trades = []ledger.Trade{}
	}
	respondJSON(w, TradesResponse{InstrumentID: id, Trades: trades})
}

func (s *Server) handleGetDepth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.engine.Depth(mux.Vars(r)["id"]))
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req orderbook.OrderData
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	order, err := s.engine.SubmitOrder(r.Context(), req)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.log.Infow("api_order_submitted", "order", order.ID, "side", order.Side, "instrument", order.InstrumentID)
	s.broadcastDepth(order.InstrumentID)
	respondJSON(w, order)
}

func (s *Server) handleDualQuote(w http.ResponseWriter, r *http.Request) {
	var req replication.DualQuote
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	bid, ask, err := s.engine.SubmitDualQuote(r.Context(), req)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.broadcastDepth(req.InstrumentID)
	respondJSON(w, DualQuoteResponse{Bid: bid, Ask: ask})
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok := s.engine.CancelOrder(r.Context(), id)
	respondJSON(w, CancelOrderResponse{OrderID: id, Cancelled: ok})
}

func (s *Server) handleManualTrade(w http.ResponseWriter, r *http.Request) {
	var req replication.ManualMatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.BuyOrderID == "" || req.SellOrderID == "" {
		respondError(w, http.StatusBadRequest, "missing order ids", "buyOrderId and sellOrderId are required")
		return
	}

	trade, err := s.engine.ManualExecute(r.Context(), req)
	if err != nil {
		s.respondEngineError(w, err)
		return
	}
	s.broadcastDepth(trade.InstrumentID)
	respondJSON(w, trade)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.RequestSync(r.Context()); err != nil {
		s.respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "requested"})
}

func (s *Server) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	list := s.engine.Notifications()
	if list == nil {
		list = []notify.Notification{}
	}
	respondJSON(w, NotificationsResponse{Notifications: list})
}

func (s *Server) handleDismissNotification(w http.ResponseWriter, r *http.Request) {
	if !s.engine.DismissNotification(mux.Vars(r)["id"]) {
		respondError(w, http.StatusNotFound, "notification not found", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Broadcast Methods
// ==============================

// broadcastDepth pushes the current depth of an instrument to its subscribers
func (s *Server) broadcastDepth(instrumentID string) {
	s.hub.BroadcastToChannel(DepthChannel(instrumentID), WSMessage{
		Type: "depth",
		Data: s.engine.Depth(instrumentID),
	})
}

// ==============================
// Helper Functions
// ==============================

// respondEngineError maps engine errors onto status codes. Only validation
// failures are the caller's fault.
func (s *Server) respondEngineError(w http.ResponseWriter, err error) {
	switch {
	case orderbook.IsValidation(err):
		respondError(w, http.StatusBadRequest, "validation failed", err.Error())
	case errors.Is(err, orderbook.ErrNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	case errors.Is(err, matcher.ErrSideMismatch):
		respondError(w, http.StatusBadRequest, "side mismatch", err.Error())
	case errors.Is(err, ledger.ErrInvalidTrade):
		respondError(w, http.StatusBadRequest, "invalid trade", err.Error())
	case errors.Is(err, matcher.ErrNotOpen), errors.Is(err, matcher.ErrNoQuantity), matcher.IsConflict(err):
		respondError(w, http.StatusConflict, "match aborted", err.Error())
	case errors.Is(err, replication.ErrTransportUnavailable):
		respondError(w, http.StatusServiceUnavailable, "transport unavailable", err.Error())
	default:
		s.log.Warnw("api_engine_error", "err", err)
		respondError(w, http.StatusInternalServerError, "internal error", err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}
