package order

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"orderflow-be/internal/logger"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	GetOrdersInRange(ctx context.Context, rng Range, filter Filter) ([]Order, error)
	GetOrder(ctx context.Context, orderID int64) (*Order, error)
	GetOrderWithItems(ctx context.Context, orderID int64) (*OrderDetail, error)
	GetOrderByCode(ctx context.Context, code string) (*OrderDetail, error)
	GetItemsForOrders(ctx context.Context, orderIDs []int64) (map[int64][]OrderItem, error)
	GetItem(ctx context.Context, itemID int64) (*OrderItem, error)
	CountOrdersByPhone(ctx context.Context, phone string) (int, error)

	// UpdateItemStatus writes the status only while the row is still at
	// expectedVersion. A concurrent write yields ErrStaleState.
	UpdateItemStatus(ctx context.Context, itemID int64, status ItemStatus, expectedVersion int64) (*OrderItem, error)
	UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (*OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status OrderStatus, expectedVersion int64) (*Order, error)
	CreateOrderTx(ctx context.Context, order *Order, items []OrderItem) error
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

// likeEscaper makes a search term match literally inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

const orderColumns = `
	o.id, o.order_id, o.customer_name, o.phone_number, o.dob, o.customer_badge,
	o.amount, o.status, o.created_at, o.updated_at, o.completed_at, o.user_id, o.version`

const itemColumns = `
	oi.id, oi.order_id, oi.item_id, oi.quantity, oi.status,
	oi.created_at, oi.updated_at, oi.version, m.name, m.price, m.category`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(s rowScanner) (Order, error) {
	var (
		o           Order
		dob         sql.NullTime
		completedAt sql.NullTime
		userID      sql.NullInt64
	)
	err := s.Scan(
		&o.ID, &o.Code, &o.CustomerName, &o.PhoneNumber, &dob, &o.Badge,
		&o.Amount, &o.Status, &o.CreatedAt, &o.UpdatedAt, &completedAt, &userID, &o.Version,
	)
	if err != nil {
		return Order{}, err
	}
	if dob.Valid {
		o.DOB = &dob.Time
	}
	if completedAt.Valid {
		o.CompletedAt = &completedAt.Time
	}
	if userID.Valid {
		o.UserID = &userID.Int64
	}
	return o, nil
}

func scanItem(s rowScanner) (OrderItem, error) {
	var it OrderItem
	err := s.Scan(
		&it.ID, &it.OrderID, &it.MenuItemID, &it.Quantity, &it.Status,
		&it.CreatedAt, &it.UpdatedAt, &it.Version, &it.Name, &it.UnitPrice, &it.Category,
	)
	return it, err
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

func (r *repository) GetOrdersInRange(ctx context.Context, rng Range, filter Filter) ([]Order, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetOrdersInRange"),
	)

	query := `SELECT` + orderColumns + ` FROM orders o WHERE 1=1`
	args := []any{}
	argIndex := 1

	if !rng.From.IsZero() {
		query += fmt.Sprintf(" AND o.created_at >= $%d", argIndex)
		args = append(args, rng.From)
		argIndex++
	}
	if !rng.To.IsZero() {
		query += fmt.Sprintf(" AND o.created_at <= $%d", argIndex)
		args = append(args, rng.To)
		argIndex++
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		query += fmt.Sprintf(" AND o.status = ANY($%d)", argIndex)
		args = append(args, pq.Array(statuses))
		argIndex++
	}
	if filter.Phone != "" {
		query += fmt.Sprintf(" AND o.phone_number = $%d", argIndex)
		args = append(args, filter.Phone)
		argIndex++
	}
	if filter.Code != "" {
		query += fmt.Sprintf(" AND o.order_id = $%d", argIndex)
		args = append(args, filter.Code)
		argIndex++
	}
	if filter.UserID != nil {
		query += fmt.Sprintf(" AND o.user_id = $%d", argIndex)
		args = append(args, *filter.UserID)
		argIndex++
	}
	if filter.Search != "" {
		query += fmt.Sprintf(
			` AND (o.order_id ILIKE $%[1]d ESCAPE '\' OR o.customer_name ILIKE $%[1]d ESCAPE '\' OR o.phone_number ILIKE $%[1]d ESCAPE '\')`,
			argIndex,
		)
		args = append(args, "%"+likeEscaper.Replace(filter.Search)+"%")
	}

	query += " ORDER BY o.created_at DESC, o.id DESC"

	log.Debug("executing orders in range query", zap.String("query", query), zap.Any("args", args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		log.Error("failed to query orders", zap.Error(err))
		return nil, storeErr(err)
	}
	defer rows.Close()

	orders := []Order{}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			log.Error("failed to scan order row", zap.Error(err))
			return nil, storeErr(err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		log.Error("rows iteration error", zap.Error(err))
		return nil, storeErr(err)
	}

	return orders, nil
}

func (r *repository) GetOrder(ctx context.Context, orderID int64) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+orderColumns+` FROM orders o WHERE o.id = $1`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		logger.FromCtx(ctx).Error("failed to get order",
			zap.String("layer", "repository"),
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
		return nil, storeErr(err)
	}
	return &o, nil
}

func (r *repository) GetOrderWithItems(ctx context.Context, orderID int64) (*OrderDetail, error) {
	o, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return r.withItems(ctx, *o)
}

func (r *repository) GetOrderByCode(ctx context.Context, code string) (*OrderDetail, error) {
	row := r.db.QueryRowContext(ctx, `SELECT`+orderColumns+` FROM orders o WHERE o.order_id = $1`, code)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return r.withItems(ctx, o)
}

func (r *repository) withItems(ctx context.Context, o Order) (*OrderDetail, error) {
	items, err := r.GetItemsForOrders(ctx, []int64{o.ID})
	if err != nil {
		return nil, err
	}
	detail := &OrderDetail{Order: o, Items: items[o.ID]}
	if detail.Items == nil {
		detail.Items = []OrderItem{}
	}
	return detail, nil
}

func (r *repository) GetItemsForOrders(ctx context.Context, orderIDs []int64) (map[int64][]OrderItem, error) {
	result := make(map[int64][]OrderItem, len(orderIDs))
	if len(orderIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT`+itemColumns+`
		FROM order_items oi
		JOIN menu_items m ON m.id = oi.item_id
		WHERE oi.order_id = ANY($1)
		ORDER BY oi.order_id, oi.id
	`, pq.Array(orderIDs))
	if err != nil {
		logger.FromCtx(ctx).Error("failed to query order items",
			zap.String("layer", "repository"),
			zap.Error(err),
		)
		return nil, storeErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, storeErr(err)
		}
		result[it.OrderID] = append(result[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return result, nil
}

func (r *repository) GetItem(ctx context.Context, itemID int64) (*OrderItem, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT`+itemColumns+`
		FROM order_items oi
		JOIN menu_items m ON m.id = oi.item_id
		WHERE oi.id = $1
	`, itemID)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &it, nil
}

func (r *repository) CountOrdersByPhone(ctx context.Context, phone string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE phone_number = $1`, phone).Scan(&n)
	if err != nil {
		return 0, storeErr(err)
	}
	return n, nil
}

func (r *repository) UpdateItemStatus(
	ctx context.Context,
	itemID int64,
	status ItemStatus,
	expectedVersion int64,
) (*OrderItem, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "UpdateItemStatus"),
		zap.Int64("item_id", itemID),
		zap.Int64("expected_version", expectedVersion),
	)

	it := OrderItem{ID: itemID, Status: status}
	err := r.db.QueryRowContext(ctx, `
		UPDATE order_items
		SET status = $1, updated_at = NOW(), version = version + 1
		WHERE id = $2 AND version = $3
		RETURNING order_id, version, updated_at
	`, status, itemID, expectedVersion).Scan(&it.OrderID, &it.Version, &it.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, r.missingOrStale(ctx, itemID)
	}
	if err != nil {
		log.Error("failed to update item status", zap.Error(err))
		return nil, storeErr(err)
	}

	log.Info("item status updated", zap.String("status", string(status)), zap.Int64("version", it.Version))
	return &it, nil
}

// missingOrStale explains why a versioned write touched no rows.
func (r *repository) missingOrStale(ctx context.Context, itemID int64) error {
	var version int64
	err := r.db.QueryRowContext(ctx, `SELECT version FROM order_items WHERE id = $1`, itemID).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrItemNotFound
	}
	if err != nil {
		return storeErr(err)
	}
	return ErrStaleState
}

func (r *repository) UpdateItemQuantity(ctx context.Context, itemID int64, quantity int) (*OrderItem, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeErr(err)
	}
	defer tx.Rollback()

	it := OrderItem{ID: itemID, Quantity: quantity}
	err = tx.QueryRowContext(ctx, `
		UPDATE order_items
		SET quantity = $1, updated_at = NOW(), version = version + 1
		WHERE id = $2
		RETURNING order_id, status, version, updated_at
	`, quantity, itemID).Scan(&it.OrderID, &it.Status, &it.Version, &it.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		return nil, storeErr(err)
	}

	// Keep the order amount equal to the sum of its lines.
	_, err = tx.ExecContext(ctx, `
		UPDATE orders o
		SET amount = sub.total, updated_at = NOW(), version = o.version + 1
		FROM (
			SELECT oi.order_id, SUM(oi.quantity * m.price) AS total
			FROM order_items oi
			JOIN menu_items m ON m.id = oi.item_id
			WHERE oi.order_id = $1
			GROUP BY oi.order_id
		) sub
		WHERE o.id = sub.order_id
	`, it.OrderID)
	if err != nil {
		return nil, storeErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeErr(err)
	}
	return &it, nil
}

func (r *repository) UpdateOrderStatus(
	ctx context.Context,
	orderID int64,
	status OrderStatus,
	expectedVersion int64,
) (*Order, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE orders o
		SET status = $1,
			updated_at = NOW(),
			version = o.version + 1,
			completed_at = CASE WHEN $1::text = 'Completed' THEN COALESCE(o.completed_at, NOW()) ELSE o.completed_at END
		WHERE o.id = $2 AND o.version = $3
		RETURNING`+orderColumns, status, orderID, expectedVersion)

	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := r.GetOrder(ctx, orderID); getErr != nil {
			return nil, getErr
		}
		return nil, ErrStaleState
	}
	if err != nil {
		return nil, storeErr(err)
	}
	return &o, nil
}

func (r *repository) CreateOrderTx(ctx context.Context, order *Order, items []OrderItem) error {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "CreateOrderTx"),
		zap.String("order_code", order.Code),
	)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr(err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO orders (
			order_id, customer_name, phone_number, dob, customer_badge,
			amount, status, user_id
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, created_at, updated_at, version
	`,
		order.Code,
		order.CustomerName,
		order.PhoneNumber,
		order.DOB,
		order.Badge,
		order.Amount,
		order.Status,
		order.UserID,
	).Scan(&order.ID, &order.CreatedAt, &order.UpdatedAt, &order.Version)
	if err != nil {
		log.Error("failed to insert order", zap.Error(err))
		return storeErr(err)
	}

	for i := range items {
		items[i].OrderID = order.ID
		err = tx.QueryRowContext(ctx, `
			INSERT INTO order_items (order_id, item_id, quantity, status)
			VALUES ($1,$2,$3,$4)
			RETURNING id, created_at, updated_at, version
		`,
			order.ID,
			items[i].MenuItemID,
			items[i].Quantity,
			items[i].Status,
		).Scan(&items[i].ID, &items[i].CreatedAt, &items[i].UpdatedAt, &items[i].Version)
		if err != nil {
			log.Error("failed to insert order item", zap.Int64("menu_item_id", items[i].MenuItemID), zap.Error(err))
			return storeErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return storeErr(err)
	}

	log.Info("order created", zap.Int64("order_id", order.ID), zap.Int("items", len(items)))
	return nil
}
