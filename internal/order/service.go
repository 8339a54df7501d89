package order

import (
	"context"
	"fmt"
	"math"
	"time"

	"orderflow-be/internal/changefeed"
	"orderflow-be/internal/logger"
	"orderflow-be/internal/menu"
	"orderflow-be/internal/utils"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Service interface {
	GetOrdersInRange(ctx context.Context, rng Range, filter Filter) ([]Order, error)
	GetOrderWithItems(ctx context.Context, orderID int64) (*OrderDetail, error)
	GetOrderByCode(ctx context.Context, code string) (*OrderDetail, error)
	// ListDetails returns the orders in range joined with their items.
	ListDetails(ctx context.Context, rng Range, filter Filter) ([]OrderDetail, error)

	CreateOrder(ctx context.Context, input NewOrder) (*OrderDetail, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) (*Order, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (*OrderItem, error)
}

type service struct {
	repo      Repository
	menuRepo  menu.Repository
	publisher changefeed.Publisher
	validate  *validator.Validate
	now       func() time.Time
}

// NewService wires the order service. publisher may be nil when row changes
// reach subscribers through database triggers alone.
func NewService(repo Repository, menuRepo menu.Repository, publisher changefeed.Publisher) Service {
	return &service{
		repo:      repo,
		menuRepo:  menuRepo,
		publisher: publisher,
		validate:  validator.New(),
		now:       time.Now,
	}
}

func (s *service) GetOrdersInRange(ctx context.Context, rng Range, filter Filter) ([]Order, error) {
	return s.repo.GetOrdersInRange(ctx, rng, filter)
}

func (s *service) GetOrderWithItems(ctx context.Context, orderID int64) (*OrderDetail, error) {
	return s.repo.GetOrderWithItems(ctx, orderID)
}

func (s *service) GetOrderByCode(ctx context.Context, code string) (*OrderDetail, error) {
	return s.repo.GetOrderByCode(ctx, code)
}

func (s *service) ListDetails(ctx context.Context, rng Range, filter Filter) ([]OrderDetail, error) {
	orders, err := s.repo.GetOrdersInRange(ctx, rng, filter)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := s.repo.GetItemsForOrders(ctx, ids)
	if err != nil {
		return nil, err
	}

	details := make([]OrderDetail, len(orders))
	for i, o := range orders {
		details[i] = OrderDetail{Order: o, Items: items[o.ID]}
		if details[i].Items == nil {
			details[i].Items = []OrderItem{}
		}
	}
	return details, nil
}

func (s *service) CreateOrder(ctx context.Context, input NewOrder) (*OrderDetail, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "service"),
		zap.String("method", "CreateOrder"),
	)

	if err := s.validate.Struct(input); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOrder, err)
	}

	ids := make([]int64, 0, len(input.Items))
	for _, it := range input.Items {
		ids = append(ids, it.MenuItemID)
	}
	catalog, err := s.menuRepo.GetByIDs(ctx, ids)
	if err != nil {
		log.Error("failed to load menu prices", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	items := make([]OrderItem, 0, len(input.Items))
	var amount float64
	for _, it := range input.Items {
		m, ok := catalog[it.MenuItemID]
		if !ok {
			return nil, fmt.Errorf("%w: %d", ErrUnknownMenuItem, it.MenuItemID)
		}
		amount += m.Price * float64(it.Quantity)
		items = append(items, OrderItem{
			MenuItemID: m.ID,
			Quantity:   it.Quantity,
			Status:     ItemNotStarted,
			Name:       m.Name,
			UnitPrice:  m.Price,
			Category:   m.Category,
		})
	}

	prior, err := s.repo.CountOrdersByPhone(ctx, input.PhoneNumber)
	if err != nil {
		return nil, err
	}

	o := &Order{
		Code:         utils.GenerateOrderCode(s.now()),
		CustomerName: input.CustomerName,
		PhoneNumber:  input.PhoneNumber,
		DOB:          input.DOB,
		Badge:        BadgeFor(prior),
		Amount:       math.Round(amount*100) / 100,
		Status:       StatusPending,
		UserID:       input.UserID,
	}

	if err := s.repo.CreateOrderTx(ctx, o, items); err != nil {
		return nil, err
	}

	s.publish(ctx, changefeed.Change{
		Table:     changefeed.TableOrders,
		Op:        changefeed.OpInsert,
		ID:        o.ID,
		OrderID:   o.ID,
		Version:   o.Version,
		NewStatus: string(o.Status),
	})

	log.Info("order placed",
		zap.String("order_code", o.Code),
		zap.String("badge", string(o.Badge)),
		zap.Float64("amount", o.Amount),
	)
	return &OrderDetail{Order: *o, Items: items}, nil
}

// UpdateOrderStatus sets the order-level status. It is independent of item
// statuses; closed orders cannot be reopened.
func (s *service) UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus) (*Order, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidOrderStatus, status)
	}

	current, err := s.repo.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if current.Status == status {
		return current, nil
	}
	if current.Status.Closed() {
		return nil, fmt.Errorf("%w: %s", ErrOrderClosed, current.Status)
	}

	updated, err := s.repo.UpdateOrderStatus(ctx, orderID, status, current.Version)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, changefeed.Change{
		Table:     changefeed.TableOrders,
		Op:        changefeed.OpUpdate,
		ID:        updated.ID,
		OrderID:   updated.ID,
		Version:   updated.Version,
		OldStatus: string(current.Status),
		NewStatus: string(updated.Status),
	})
	return updated, nil
}

func (s *service) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (*OrderItem, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	it, err := s.repo.UpdateItemQuantity(ctx, itemID, quantity)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, changefeed.Change{
		Table:   changefeed.TableOrderItems,
		Op:      changefeed.OpUpdate,
		ID:      it.ID,
		OrderID: it.OrderID,
		Version: it.Version,
	})
	return it, nil
}

func (s *service) publish(ctx context.Context, c changefeed.Change) {
	if s.publisher == nil {
		return
	}
	c.At = s.now()
	if err := s.publisher.Publish(ctx, c); err != nil {
		logger.FromCtx(ctx).Warn("failed to publish order change",
			zap.String("table", c.Table),
			zap.Int64("order_id", c.OrderID),
			zap.Error(err),
		)
	}
}
