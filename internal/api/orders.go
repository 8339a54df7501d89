package api

import (
	"net/http"

	"orderflow-be/internal/fulfillment"
	"orderflow-be/internal/logger"
	"orderflow-be/internal/order"
	"orderflow-be/internal/session"
	"orderflow-be/internal/utils"

	"go.uber.org/zap"
)

type statusRequest struct {
	Status string `json:"status"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

type itemStatusResponse struct {
	ID      int64              `json:"id"`
	Status  order.ItemStatus   `json:"status"`
	Actions []order.ItemStatus `json:"actions"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rng, err := h.parseRange(q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	filter, err := parseFilter(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if q.Get("items") == "true" {
		details, err := h.orders.ListDetails(r.Context(), rng, filter)
		if err != nil {
			writeError(w, r, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, details)
		return
	}

	orders, err := h.orders.GetOrdersInRange(r.Context(), rng, filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []order.Order{}
	}
	utils.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var input order.NewOrder
	if err := decodeBody(r, &input); err != nil {
		writeError(w, r, err)
		return
	}
	// Orders are attributed to the signed-in user, never to a client-supplied id.
	input.UserID = session.From(r.Context()).UserID

	detail, err := h.orders.CreateOrder(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, detail)
}

// getOrder serves staff lookups and customer tracking. Without view_orders
// the caller must prove the order is theirs by phone number or code.
func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	detail, err := h.orders.GetOrderWithItems(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if !session.From(r.Context()).Can(session.ViewOrders) {
		q := r.URL.Query()
		phone, code := q.Get("phone"), q.Get("code")
		owned := (phone != "" && phone == detail.PhoneNumber) || (code != "" && code == detail.Code)
		if !owned {
			// Indistinguishable from a missing order so ids cannot be probed.
			writeError(w, r, order.ErrOrderNotFound)
			return
		}
	}

	utils.WriteJSON(w, http.StatusOK, struct {
		*order.OrderDetail
		Progress fulfillment.Progress `json:"progress"`
	}{detail, fulfillment.DeriveProgress(detail.Items)})
}

func (h *Handler) updateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.orders.UpdateOrderStatus(r.Context(), id, order.OrderStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, updated)
}

func (h *Handler) updateItemStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	status, err := h.items.AttemptTransition(r.Context(), id, order.ItemStatus(req.Status))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeItemStatus(w, r, id, status)
}

func (h *Handler) advanceItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	status, err := h.items.Advance(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.writeItemStatus(w, r, id, status)
}

func (h *Handler) writeItemStatus(w http.ResponseWriter, r *http.Request, id int64, status order.ItemStatus) {
	logger.FromCtx(r.Context()).Debug("item status answered",
		zap.Int64("item_id", id),
		zap.String("status", string(status)),
	)
	utils.WriteJSON(w, http.StatusOK, itemStatusResponse{
		ID:      id,
		Status:  status,
		Actions: fulfillment.AvailableActions(status),
	})
}

func (h *Handler) updateItemQuantity(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req quantityRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	it, err := h.orders.UpdateItemQuantity(r.Context(), id, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, it)
}
