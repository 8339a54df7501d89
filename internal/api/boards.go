package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"orderflow-be/internal/analytics"
	"orderflow-be/internal/projection"
	"orderflow-be/internal/utils"
)

// snapshotFactory builds views for single requests. They are read once and
// closed, so they skip the change feed and the poll job.
func (h *Handler) snapshotFactory() *projection.Factory {
	f := *h.views
	f.Feed = nil
	f.Poller = nil
	f.HighlightWindow = 0
	return &f
}

func (h *Handler) staffBoard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sq, err := h.parseStaffQuery(q)
	if err != nil {
		writeError(w, r, err)
		return
	}

	board := h.snapshotFactory().Staff(sq)
	defer board.Close()
	if err := board.Start(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}

	for _, raw := range strings.Split(q.Get("expand"), ",") {
		id, ok := utils.ParseID(strings.TrimSpace(raw))
		if !ok {
			continue
		}
		if _, err := board.Expand(r.Context(), id); err != nil {
			writeError(w, r, err)
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, board.Page())
}

func (h *Handler) kitchenBoard(w http.ResponseWriter, r *http.Request) {
	rng, err := h.parseRange(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	board := h.snapshotFactory().Kitchen(rng)
	defer board.Close()
	if err := board.Start(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, board.Board())
}

func (h *Handler) tracker(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	t, err := h.snapshotFactory().Tracker(q.Get("phone"), q.Get("code"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	defer t.Close()
	if err := t.Start(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, t.Orders())
}

func (h *Handler) parseReportRequest(q url.Values) (analytics.Request, error) {
	from, err := h.parseTime(q.Get("from"), false)
	if err != nil {
		return analytics.Request{}, err
	}
	to, err := h.parseTime(q.Get("to"), true)
	if err != nil {
		return analytics.Request{}, err
	}
	req := analytics.Request{
		From:     from,
		To:       to,
		Category: q.Get("category"),
	}
	if raw := q.Get("staff"); raw != "" {
		id, ok := utils.ParseID(raw)
		if !ok {
			return req, fmt.Errorf("%w: invalid staff id %q", errBadRequest, raw)
		}
		req.StaffID = &id
	}
	return req, nil
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseReportRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	report, err := h.analytics.BuildReport(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) salesData(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseReportRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.analytics.ComputeSalesData(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, data)
}

func (h *Handler) operationalData(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseReportRequest(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := h.analytics.ComputeOperationalData(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, data)
}
