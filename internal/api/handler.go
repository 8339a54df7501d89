package api

import (
	"context"
	"net/http"
	"time"

	"orderflow-be/internal/analytics"
	"orderflow-be/internal/menu"
	"orderflow-be/internal/metrics"
	"orderflow-be/internal/order"
	"orderflow-be/internal/projection"
	"orderflow-be/internal/session"
	"orderflow-be/internal/utils"

	"github.com/gorilla/websocket"
)

// ItemTransitioner changes item statuses.
type ItemTransitioner interface {
	AttemptTransition(ctx context.Context, itemID int64, requested order.ItemStatus) (order.ItemStatus, error)
	Advance(ctx context.Context, itemID int64) (order.ItemStatus, error)
}

type Deps struct {
	Orders    order.Service
	Items     ItemTransitioner
	Menu      menu.Repository
	Analytics analytics.Service
	Views     *projection.Factory
	Registry  *metrics.Registry
	Location  *time.Location
	// AllowedOrigin is checked on websocket handshakes. Empty allows any.
	AllowedOrigin string
}

type Handler struct {
	orders    order.Service
	items     ItemTransitioner
	menu      menu.Repository
	analytics analytics.Service
	views     *projection.Factory
	registry  *metrics.Registry
	loc       *time.Location
	upgrader  websocket.Upgrader

	pingInterval time.Duration
	writeTimeout time.Duration
}

func NewHandler(d Deps) *Handler {
	if d.Registry == nil {
		d.Registry = metrics.Default
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	h := &Handler{
		orders:       d.Orders,
		items:        d.Items,
		menu:         d.Menu,
		analytics:    d.Analytics,
		views:        d.Views,
		registry:     d.Registry,
		loc:          d.Location,
		pingInterval: 30 * time.Second,
		writeTimeout: 10 * time.Second,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return d.AllowedOrigin == "" || origin == "" || origin == d.AllowedOrigin
		},
	}
	return h
}

// Routes registers every endpoint on a new mux.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/menu", h.listMenu)
	mux.HandleFunc("GET /api/metrics", h.guard(h.metrics, session.ViewAnalytics))

	mux.HandleFunc("GET /api/orders", h.guard(h.listOrders, session.ViewOrders))
	mux.HandleFunc("POST /api/orders", h.guard(h.createOrder, session.CreateOrder))
	mux.HandleFunc("GET /api/orders/{id}", h.guard(h.getOrder, session.ViewOrders, session.TrackOrder))
	mux.HandleFunc("PATCH /api/orders/{id}/status", h.guard(h.updateOrderStatus, session.UpdateOrderStatus))

	mux.HandleFunc("PATCH /api/order-items/{id}/status", h.guard(h.updateItemStatus, session.UpdateItemStatus))
	mux.HandleFunc("POST /api/order-items/{id}/advance", h.guard(h.advanceItem, session.UpdateItemStatus))
	mux.HandleFunc("PATCH /api/order-items/{id}/quantity", h.guard(h.updateItemQuantity, session.UpdateOrderStatus))

	mux.HandleFunc("GET /api/boards/staff", h.guard(h.staffBoard, session.ViewOrders))
	mux.HandleFunc("GET /api/boards/kitchen", h.guard(h.kitchenBoard, session.ViewOrders))
	mux.HandleFunc("GET /api/tracker", h.guard(h.tracker, session.TrackOrder))

	mux.HandleFunc("GET /api/analytics/report", h.guard(h.report, session.ViewAnalytics))
	mux.HandleFunc("GET /api/analytics/sales", h.guard(h.salesData, session.ViewAnalytics))
	mux.HandleFunc("GET /api/analytics/operational", h.guard(h.operationalData, session.ViewAnalytics))

	mux.HandleFunc("GET /ws/boards/{kind}", h.stream)

	return mux
}

// guard rejects the request unless the session holds one of perms.
func (h *Handler) guard(next http.HandlerFunc, perms ...session.Permission) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := session.Require(r.Context(), perms...); err != nil {
			writeError(w, r, err)
			return
		}
		next(w, r)
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	utils.WriteJSON(w, http.StatusOK, h.registry.Snapshot())
}

func (h *Handler) listMenu(w http.ResponseWriter, r *http.Request) {
	items, err := h.menu.List(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, items)
}
