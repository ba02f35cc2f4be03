package orders

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/joao-fontenele/grocery-fulfillment/internal/domain"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order header and its lines in one transaction, so a
// reader never observes an order without its lines.
func (r *OrderRepository) Create(ctx context.Context, order *domain.Order) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	order.ID = uuid.New().String()
	order.Status = domain.OrderStatusReceived
	order.Total = domain.LinesTotal(order.Lines)
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	order.UpdatedAt = order.CreatedAt

	_, err = tx.ExecContext(ctx, `
		INSERT INTO orders (id, created_at, total, customer_name, address, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $2)
	`, order.ID, order.CreatedAt, order.Total, order.CustomerName, order.Address, order.Status)
	if err != nil {
		return err
	}

	for _, line := range order.Lines {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO order_items (order_id, item_id, name, unit_price, quantity, notes)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, order.ID, line.ItemID, line.Name, line.UnitPrice, line.Quantity, line.Notes)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	order := &domain.Order{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, customer_name, address, status, total, created_at, updated_at
		FROM orders
		WHERE id = $1
	`, id).Scan(&order.ID, &order.CustomerName, &order.Address, &order.Status, &order.Total, &order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT item_id, name, unit_price, quantity, notes
		FROM order_items
		WHERE order_id = $1
		ORDER BY id
	`, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ItemID, &line.Name, &line.UnitPrice, &line.Quantity, &line.Notes); err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	order.Total = domain.LinesTotal(order.Lines)
	return order, nil
}

func (r *OrderRepository) ListByCustomer(ctx context.Context, customerName string, limit int) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT id, customer_name, address, status, total, created_at, updated_at
		FROM orders
		WHERE LOWER(customer_name) = LOWER($1)
		ORDER BY created_at DESC, id
		LIMIT $2
	`, customerName, clampLimit(limit))
}

func (r *OrderRepository) ListRecent(ctx context.Context, limit int) ([]domain.Order, error) {
	return r.list(ctx, `
		SELECT id, customer_name, address, status, total, created_at, updated_at
		FROM orders
		ORDER BY created_at DESC, id
		LIMIT $1
	`, clampLimit(limit))
}

// list loads the headers first and then every line of those orders with a
// single ANY($1) query.
func (r *OrderRepository) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orderMap := make(map[string]*domain.Order)
	var orderIDs []string

	for rows.Next() {
		var order domain.Order
		if err := rows.Scan(&order.ID, &order.CustomerName, &order.Address, &order.Status, &order.Total, &order.CreatedAt, &order.UpdatedAt); err != nil {
			return nil, err
		}
		order.Lines = []domain.OrderLine{}
		orderMap[order.ID] = &order
		orderIDs = append(orderIDs, order.ID)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(orderIDs) == 0 {
		return []domain.Order{}, nil
	}

	lineRows, err := r.db.QueryContext(ctx, `
		SELECT order_id, item_id, name, unit_price, quantity, notes
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY id
	`, pq.Array(orderIDs))
	if err != nil {
		return nil, err
	}
	defer func() { _ = lineRows.Close() }()

	for lineRows.Next() {
		var orderID string
		var line domain.OrderLine
		if err := lineRows.Scan(&orderID, &line.ItemID, &line.Name, &line.UnitPrice, &line.Quantity, &line.Notes); err != nil {
			return nil, err
		}
		order := orderMap[orderID]
		order.Lines = append(order.Lines, line)
	}

	if err := lineRows.Err(); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(orderIDs))
	for _, id := range orderIDs {
		order := orderMap[id]
		order.Total = domain.LinesTotal(order.Lines)
		orders = append(orders, *order)
	}

	return orders, nil
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')
		WHERE id = $2
	`, status, id)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *OrderRepository) Transition(ctx context.Context, id string, from, to domain.OrderStatus) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET status = $1, updated_at = GREATEST(NOW(), updated_at + INTERVAL '1 microsecond')
		WHERE id = $2 AND status = $3
	`, to, id, from)
	if err != nil {
		return false, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rowsAffected > 0, nil
}

func (r *OrderRepository) ListActive(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id
		FROM orders
		WHERE status NOT IN ($1, $2)
		ORDER BY created_at
	`, domain.OrderStatusDelivered, domain.OrderStatusCancelled)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
