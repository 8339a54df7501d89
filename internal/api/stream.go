package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"orderflow-be/internal/logger"
	"orderflow-be/internal/order"
	"orderflow-be/internal/projection"
	"orderflow-be/internal/session"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	actionExpand   = "expand"
	actionCollapse = "collapse"
	actionRefresh  = "refresh"
	actionView     = "view"

	maxMessageSize = 4096
)

type clientMessage struct {
	Action  string `json:"action"`
	OrderID int64  `json:"orderId,omitempty"`
	// Query is a URL query string that replaces the staff board view.
	Query string `json:"query,omitempty"`
}

type serverMessage struct {
	Type  string `json:"type"`
	Kind  string `json:"kind,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

type expander interface {
	Expand(ctx context.Context, orderID int64) (*order.OrderDetail, error)
	Collapse(orderID int64)
}

type refresher interface {
	Refresh(ctx context.Context) error
}

var streamPermissions = map[string][]session.Permission{
	projection.KindStaff:   {session.ViewOrders},
	projection.KindKitchen: {session.ViewOrders},
	projection.KindTracker: {session.TrackOrder},
}

// stream upgrades to a websocket and pushes a fresh snapshot of the view
// every time it changes. The view is built and loaded before the upgrade
// so setup failures are answered as plain HTTP errors.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	kind := r.PathValue("kind")
	perms, ok := streamPermissions[kind]
	if !ok {
		writeError(w, r, fmt.Errorf("%w: unknown board %q", errBadRequest, kind))
		return
	}
	if err := session.Require(r.Context(), perms...); err != nil {
		writeError(w, r, err)
		return
	}

	params, err := h.viewParams(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := h.views.New(kind, params)
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer view.Close()

	updates := make(chan struct{}, 1)
	remove := view.OnUpdate(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer remove()

	if err := view.Start(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	log := logger.FromCtx(r.Context()).With(
		zap.String("layer", "stream"),
		zap.String("kind", kind),
	)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()
	log.Info("stream opened")
	defer log.Info("stream closed")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	actions := make(chan clientMessage)
	go h.readLoop(ctx, conn, actions, cancel)

	ping := time.NewTicker(h.pingInterval)
	defer ping.Stop()

	send := func(m serverMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(h.writeTimeout))
		if err := conn.WriteJSON(m); err != nil {
			log.Debug("stream write failed", zap.Error(err))
			return false
		}
		return true
	}
	snapshot := func() bool {
		return send(serverMessage{Type: "snapshot", Kind: kind, Data: view.Snapshot()})
	}

	if !snapshot() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-updates:
			if !snapshot() {
				return
			}
		case msg := <-actions:
			if err := h.apply(ctx, view, msg); err != nil {
				if !send(serverMessage{Type: "error", Kind: kind, Error: err.Error()}) {
					return
				}
				continue
			}
			if !snapshot() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(h.writeTimeout)); err != nil {
				return
			}
		}
	}
}

// readLoop forwards client actions until the connection fails, then cancels
// the stream.
func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, actions chan<- clientMessage, cancel context.CancelFunc) {
	defer cancel()

	wait := 2 * h.pingInterval
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		var msg clientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))
		select {
		case actions <- msg:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) apply(ctx context.Context, view projection.View, msg clientMessage) error {
	switch msg.Action {
	case actionExpand, actionCollapse:
		ex, ok := view.(expander)
		if !ok {
			return fmt.Errorf("%s is not supported on this board", msg.Action)
		}
		if msg.Action == actionCollapse {
			ex.Collapse(msg.OrderID)
			return nil
		}
		_, err := ex.Expand(ctx, msg.OrderID)
		return err
	case actionRefresh:
		rf, ok := view.(refresher)
		if !ok {
			return fmt.Errorf("refresh is not supported on this board")
		}
		return rf.Refresh(ctx)
	case actionView:
		board, ok := view.(*projection.StaffBoard)
		if !ok {
			return fmt.Errorf("view changes are only supported on the staff board")
		}
		values, err := url.ParseQuery(msg.Query)
		if err != nil {
			return fmt.Errorf("invalid query: %w", err)
		}
		q, err := h.parseStaffQuery(values)
		if err != nil {
			return err
		}
		return board.SetView(ctx, q)
	default:
		return fmt.Errorf("unknown action %q", msg.Action)
	}
}
