package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"scan-order/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// PostgresOrders stores orders, their status log and take-number counters.
type PostgresOrders struct {
	pool *pgxpool.Pool
}

func NewPostgresOrders(pool *pgxpool.Pool) *PostgresOrders {
	return &PostgresOrders{pool: pool}
}

const orderColumns = `id, session_id, store_id, store_name, order_type, table_no, items,
	total_amount::text, take_no, status, created_at, updated_at`

func (p *PostgresOrders) Create(ctx context.Context, o *models.Order) error {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal order items: %w", err)
	}
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders (
			id, session_id, store_id, store_name, order_type, table_no, items,
			total_amount, take_no, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $11)`,
		o.ID, o.SessionID, o.StoreID, o.StoreName, string(o.OrderType), o.TableNumber, itemsJSON,
		o.TotalAmount.String(), o.TakeNumber, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, from_status, to_status, note, changed_at)
		VALUES ($1, NULL, $2, '', $3)`,
		o.ID, string(o.Status), o.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert status log: %w", err)
	}
	return tx.Commit(ctx)
}

func scanOrder(row pgx.Row) (*models.Order, error) {
	var (
		o         models.Order
		itemsJSON []byte
		total     string
		orderType string
		status    string
	)
	err := row.Scan(&o.ID, &o.SessionID, &o.StoreID, &o.StoreName, &orderType, &o.TableNumber, &itemsJSON,
		&total, &o.TakeNumber, &status, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(itemsJSON, &o.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	amount, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse total_amount %q: %w", total, err)
	}
	o.TotalAmount = amount
	o.OrderType = models.OrderType(orderType)
	o.Status = models.OrderStatus(status)
	return &o, nil
}

func (p *PostgresOrders) Get(ctx context.Context, id string) (*models.Order, error) {
	o, err := scanOrder(p.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	return o, nil
}

// Transition moves the order from one status to another only if it is still in from.
func (p *PostgresOrders) Transition(ctx context.Context, id string, from, to models.OrderStatus, note string) (*models.Order, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	o, err := scanOrder(tx.QueryRow(ctx, `
		UPDATE orders SET status = $1, updated_at = now()
		WHERE id = $2 AND status = $3
		RETURNING `+orderColumns,
		string(to), id, string(from),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id = $1)`, id).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check order %s: %w", id, err)
		}
		if !exists {
			return nil, ErrOrderNotFound
		}
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update order %s status: %w", id, err)
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO order_status_log (order_id, from_status, to_status, note, changed_at)
		VALUES ($1, $2, $3, $4, $5)`,
		id, string(from), string(to), note, o.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert status log: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return o, nil
}

func (p *PostgresOrders) History(ctx context.Context, id string) ([]models.StatusChange, error) {
	if _, err := p.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := p.pool.Query(ctx, `
		SELECT COALESCE(from_status, ''), to_status, note, changed_at
		FROM order_status_log WHERE order_id = $1 ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("query status log: %w", err)
	}
	defer rows.Close()
	var out []models.StatusChange
	for rows.Next() {
		var from, to string
		c := models.StatusChange{OrderID: id}
		if err := rows.Scan(&from, &to, &c.Note, &c.ChangedAt); err != nil {
			return nil, err
		}
		c.From = models.OrderStatus(from)
		c.To = models.OrderStatus(to)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (p *PostgresOrders) listOrders(ctx context.Context, query string, args ...any) ([]*models.Order, error) {
	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()
	var out []*models.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (p *PostgresOrders) ListBySession(ctx context.Context, sessionID string, limit int) ([]*models.Order, error) {
	return p.listOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE session_id = $1
		ORDER BY created_at DESC LIMIT NULLIF($2::int, 0)`, sessionID, limit)
}

func (p *PostgresOrders) ListOpenByStore(ctx context.Context, storeID string, limit int) ([]*models.Order, error) {
	return p.listOrders(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE store_id = $1 AND status NOT IN ('COMPLETED', 'CANCELLED')
		ORDER BY created_at DESC LIMIT NULLIF($2::int, 0)`, storeID, limit)
}

func (p *PostgresOrders) NextTakeNumber(ctx context.Context, storeID string, day time.Time) (int, error) {
	var n int
	err := p.pool.QueryRow(ctx, `
		INSERT INTO take_numbers (store_id, day, last_number)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (store_id, day) DO UPDATE SET
			last_number = take_numbers.last_number + 1
		RETURNING last_number`,
		storeID, day.UTC().Format("2006-01-02"),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("next take number: %w", err)
	}
	return n, nil
}

func (p *PostgresOrders) DailyStats(ctx context.Context, storeID string, day time.Time) (*models.DailyStats, error) {
	var (
		s       models.DailyStats
		revenue string
	)
	err := p.pool.QueryRow(ctx, `
		SELECT
			COUNT(*)::int,
			COUNT(*) FILTER (WHERE status IN ('PAID', 'PREPARING', 'READY', 'COMPLETED'))::int,
			COUNT(*) FILTER (WHERE status = 'CANCELLED')::int,
			COALESCE(SUM(total_amount) FILTER (WHERE status IN ('PAID', 'PREPARING', 'READY', 'COMPLETED')), 0)::text
		FROM orders
		WHERE store_id = $1 AND (created_at AT TIME ZONE 'UTC')::date = $2::date`,
		storeID, day.UTC().Format("2006-01-02"),
	).Scan(&s.OrdersCount, &s.PaidCount, &s.CancelledCount, &revenue)
	if err != nil {
		return nil, err
	}
	if s.Revenue, err = decimal.NewFromString(revenue); err != nil {
		return nil, fmt.Errorf("parse revenue %q: %w", revenue, err)
	}
	return &s, nil
}
