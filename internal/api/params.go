package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"orderflow-be/internal/order"
	"orderflow-be/internal/projection"
	"orderflow-be/internal/utils"
)

const dateLayout = "2006-01-02"

// parseTime accepts RFC3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func (h *Handler) parseTime(raw string, endOfDay bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.ParseInLocation(dateLayout, raw, h.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", errBadRequest, raw)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

func (h *Handler) parseRange(q url.Values) (order.Range, error) {
	var rng order.Range
	from, err := h.parseTime(q.Get("from"), false)
	if err != nil {
		return rng, err
	}
	to, err := h.parseTime(q.Get("to"), true)
	if err != nil {
		return rng, err
	}
	if from != nil {
		rng.From = *from
	}
	if to != nil {
		rng.To = *to
	}
	if !rng.From.IsZero() && !rng.To.IsZero() && rng.To.Before(rng.From) {
		return rng, fmt.Errorf("%w: range ends before it starts", errBadRequest)
	}
	return rng, nil
}

func parseFilter(q url.Values) (order.Filter, error) {
	f := order.Filter{
		Search: strings.TrimSpace(q.Get("search")),
		Phone:  q.Get("phone"),
		Code:   q.Get("code"),
	}
	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			st := order.OrderStatus(strings.TrimSpace(s))
			if st == "" {
				continue
			}
			if !st.Valid() {
				return f, fmt.Errorf("%w: %q", order.ErrInvalidOrderStatus, st)
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	return f, nil
}

func (h *Handler) parseStaffQuery(q url.Values) (projection.StaffQuery, error) {
	rng, err := h.parseRange(q)
	if err != nil {
		return projection.StaffQuery{}, err
	}
	filter, err := parseFilter(q)
	if err != nil {
		return projection.StaffQuery{}, err
	}
	page, _ := strconv.Atoi(q.Get("page"))
	size, _ := strconv.Atoi(q.Get("pageSize"))
	return projection.StaffQuery{
		Range:    rng,
		Filter:   filter,
		SortBy:   q.Get("sort"),
		Desc:     q.Get("order") == "desc",
		Page:     page,
		PageSize: size,
	}, nil
}

// viewParams builds projection parameters for any view kind from a query string.
func (h *Handler) viewParams(q url.Values) (projection.Params, error) {
	staff, err := h.parseStaffQuery(q)
	if err != nil {
		return projection.Params{}, err
	}
	return projection.Params{
		Staff:   staff,
		Kitchen: staff.Range,
		Phone:   q.Get("phone"),
		Code:    q.Get("code"),
	}, nil
}

func pathID(r *http.Request) (int64, error) {
	id, ok := utils.ParseID(r.PathValue("id"))
	if !ok {
		return 0, fmt.Errorf("%w: invalid id %q", errBadRequest, r.PathValue("id"))
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}
