package api

import (
	"errors"
	"net/http"

	"orderflow-be/internal/analytics"
	"orderflow-be/internal/fulfillment"
	"orderflow-be/internal/logger"
	"orderflow-be/internal/menu"
	"orderflow-be/internal/order"
	"orderflow-be/internal/projection"
	"orderflow-be/internal/session"
	"orderflow-be/internal/utils"

	"go.uber.org/zap"
)

var errBadRequest = errors.New("bad request")

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, fulfillment.ErrInvalidTransition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, order.ErrStaleState), errors.Is(err, order.ErrOrderClosed):
		return http.StatusConflict
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, order.ErrItemNotFound),
		errors.Is(err, menu.ErrMenuItemNotFound):
		return http.StatusNotFound
	case errors.Is(err, errBadRequest),
		errors.Is(err, analytics.ErrConfiguration),
		errors.Is(err, projection.ErrTrackerScope),
		errors.Is(err, order.ErrInvalidOrder),
		errors.Is(err, order.ErrInvalidOrderStatus),
		errors.Is(err, order.ErrInvalidQuantity),
		errors.Is(err, order.ErrUnknownMenuItem):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	log := logger.FromCtx(r.Context()).With(
		zap.String("layer", "api"),
		zap.String("path", r.URL.Path),
		zap.Int("status", code),
	)

	msg := err.Error()
	switch {
	case code == http.StatusInternalServerError:
		log.Error("request failed", zap.Error(err))
		msg = http.StatusText(code)
	case code >= 500:
		log.Error("request failed", zap.Error(err))
	default:
		log.Debug("request rejected", zap.Error(err))
	}
	utils.WriteJSONError(w, msg, code)
}
