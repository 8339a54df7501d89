package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"orderflow-be/internal/changefeed"
	"orderflow-be/internal/logger"
	"orderflow-be/internal/metrics"
	"orderflow-be/internal/order"

	"go.uber.org/zap"
)

// Store is the slice of the order repository the engine needs.
type Store interface {
	GetItem(ctx context.Context, itemID int64) (*order.OrderItem, error)
	UpdateItemStatus(ctx context.Context, itemID int64, status order.ItemStatus, expectedVersion int64) (*order.OrderItem, error)
}

type ItemStatusChanged struct {
	OrderID   int64            `json:"orderId"`
	ItemID    int64            `json:"itemId"`
	OldStatus order.ItemStatus `json:"oldStatus"`
	NewStatus order.ItemStatus `json:"newStatus"`
	Version   int64            `json:"version"`
	Timestamp time.Time        `json:"timestamp"`
}

func (e ItemStatusChanged) Change() changefeed.Change {
	return changefeed.Change{
		Table:     changefeed.TableOrderItems,
		Op:        changefeed.OpUpdate,
		ID:        e.ItemID,
		OrderID:   e.OrderID,
		Version:   e.Version,
		OldStatus: string(e.OldStatus),
		NewStatus: string(e.NewStatus),
		At:        e.Timestamp,
	}
}

// Engine is the only writer of item status.
type Engine struct {
	store     Store
	publisher changefeed.Publisher
	registry  *metrics.Registry
	now       func() time.Time
}

func NewEngine(store Store, publisher changefeed.Publisher, registry *metrics.Registry) *Engine {
	if registry == nil {
		registry = metrics.Default
	}
	return &Engine{
		store:     store,
		publisher: publisher,
		registry:  registry,
		now:       time.Now,
	}
}

// AttemptTransition moves an item to requested if the transition table
// allows it. Re-requesting the current status succeeds without a write.
func (e *Engine) AttemptTransition(ctx context.Context, itemID int64, requested order.ItemStatus) (order.ItemStatus, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "fulfillment"),
		zap.Int64("item_id", itemID),
		zap.String("requested", string(requested)),
	)

	if !requested.Valid() {
		e.registry.Counter(metrics.TransitionsRejected).Inc()
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, requested)
	}

	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return "", classify(err)
	}

	if item.Status == requested {
		log.Debug("transition is a no-op", zap.String("status", string(item.Status)))
		return item.Status, nil
	}

	if !CanTransition(item.Status, requested) {
		e.registry.Counter(metrics.TransitionsRejected).Inc()
		log.Info("transition rejected", zap.String("current", string(item.Status)))
		return "", fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, item.Status, requested)
	}

	updated, err := e.store.UpdateItemStatus(ctx, itemID, requested, item.Version)
	if err != nil {
		if errors.Is(err, ErrStaleState) {
			e.registry.Counter(metrics.TransitionConflicts).Inc()
			log.Warn("item changed concurrently", zap.Int64("expected_version", item.Version))
		}
		return "", classify(err)
	}
	e.registry.Counter(metrics.TransitionsApplied).Inc()

	event := ItemStatusChanged{
		OrderID:   item.OrderID,
		ItemID:    itemID,
		OldStatus: item.Status,
		NewStatus: requested,
		Version:   updated.Version,
		Timestamp: e.now(),
	}
	if e.publisher != nil {
		if err := e.publisher.Publish(ctx, event.Change()); err != nil {
			log.Warn("failed to publish item status change", zap.Error(err))
		}
	}

	log.Info("item status changed",
		zap.Int64("order_id", item.OrderID),
		zap.String("from", string(item.Status)),
		zap.String("to", string(requested)),
	)
	return requested, nil
}

// Advance requests the next status in rank order. At the terminal status it
// re-asserts that status, which is a no-op.
func (e *Engine) Advance(ctx context.Context, itemID int64) (order.ItemStatus, error) {
	item, err := e.store.GetItem(ctx, itemID)
	if err != nil {
		return "", classify(err)
	}
	next, ok := Next(item.Status)
	if !ok {
		next = item.Status
	}
	return e.AttemptTransition(ctx, itemID, next)
}

func classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrStaleState), errors.Is(err, ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
}
