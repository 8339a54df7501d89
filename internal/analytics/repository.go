package analytics

import (
	"context"
	"database/sql"
	"fmt"

	"orderflow-be/internal/logger"
	"orderflow-be/internal/order"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

type Repository interface {
	// GetOrderRecords reads orders created in rng with their lines. An empty
	// statuses slice matches every status; a nil staffID matches every user.
	GetOrderRecords(ctx context.Context, rng order.Range, statuses []order.OrderStatus, staffID *int64) ([]OrderRecord, error)
	GetFeedback(ctx context.Context, rng order.Range, staffID *int64) ([]FeedbackRecord, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func storeErr(err error) error {
	return fmt.Errorf("%w: %v", order.ErrStoreUnavailable, err)
}

const orderRecordsQuery = `
	SELECT o.id, o.order_id, o.amount, o.status, o.created_at, o.completed_at, o.user_id,
		oi.quantity, m.name, m.category, m.price
	FROM orders o
	LEFT JOIN order_items oi ON oi.order_id = o.id
	LEFT JOIN menu_items m ON m.id = oi.item_id
	WHERE o.created_at >= $1 AND o.created_at <= $2
		AND (cardinality($3::text[]) = 0 OR o.status = ANY($3))
		AND ($4::bigint IS NULL OR o.user_id = $4)
	ORDER BY o.created_at, o.id, oi.id`

func (r *repository) GetOrderRecords(ctx context.Context, rng order.Range, statuses []order.OrderStatus, staffID *int64) ([]OrderRecord, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetOrderRecords"),
	)

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	rows, err := r.db.QueryContext(ctx, orderRecordsQuery, rng.From, rng.To, pq.Array(names), staffID)
	if err != nil {
		log.Error("failed to query order records", zap.Error(err))
		return nil, storeErr(err)
	}
	defer rows.Close()

	records := []OrderRecord{}
	index := make(map[int64]int)
	for rows.Next() {
		var (
			rec         OrderRecord
			completedAt sql.NullTime
			userID      sql.NullInt64
			quantity    sql.NullInt64
			name        sql.NullString
			category    sql.NullString
			price       sql.NullFloat64
		)
		if err := rows.Scan(
			&rec.ID, &rec.Code, &rec.Amount, &rec.Status, &rec.CreatedAt, &completedAt, &userID,
			&quantity, &name, &category, &price,
		); err != nil {
			log.Error("failed to scan order record", zap.Error(err))
			return nil, storeErr(err)
		}

		i, seen := index[rec.ID]
		if !seen {
			if completedAt.Valid {
				t := completedAt.Time
				rec.CompletedAt = &t
			}
			if userID.Valid {
				id := userID.Int64
				rec.UserID = &id
			}
			i = len(records)
			index[rec.ID] = i
			records = append(records, rec)
		}

		if quantity.Valid {
			records[i].Lines = append(records[i].Lines, Line{
				Product:   name.String,
				Category:  category.String,
				Quantity:  int(quantity.Int64),
				UnitPrice: price.Float64,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return records, nil
}

const feedbackQuery = `
	SELECT f.id, f.order_id, f.rating, COALESCE(f.comment, ''), f.created_at
	FROM feedback f
	JOIN orders o ON o.id = f.order_id
	WHERE f.created_at >= $1 AND f.created_at <= $2
		AND ($3::bigint IS NULL OR o.user_id = $3)
	ORDER BY f.created_at, f.id`

func (r *repository) GetFeedback(ctx context.Context, rng order.Range, staffID *int64) ([]FeedbackRecord, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "repository"),
		zap.String("method", "GetFeedback"),
	)

	rows, err := r.db.QueryContext(ctx, feedbackQuery, rng.From, rng.To, staffID)
	if err != nil {
		log.Error("failed to query feedback", zap.Error(err))
		return nil, storeErr(err)
	}
	defer rows.Close()

	out := []FeedbackRecord{}
	for rows.Next() {
		var f FeedbackRecord
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Rating, &f.Comment, &f.CreatedAt); err != nil {
			log.Error("failed to scan feedback", zap.Error(err))
			return nil, storeErr(err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(err)
	}
	return out, nil
}
