package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/lib/pq"
	_ "github.com/lib/pq"
)

const orderColumns = `id, order_number, customer_name, customer_phone, customer_email,
	address, city, district, ward, items, status, notes, payment_method,
	session_key, order_date, updated_at`

type PostgresOrderRepository struct {
	db *sql.DB
}

func NewPostgresOrderRepository(db *sql.DB) *PostgresOrderRepository {
	return &PostgresOrderRepository{db: db}
}

func (r *PostgresOrderRepository) RunMigrations(migrationsDir string) error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "orders_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", migrationsDir),
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

func (r *PostgresOrderRepository) Create(ctx context.Context, order *domain.Order, event *OutboxEvent) (err error) {
	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceErr("begin order transaction", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `INSERT INTO orders (id, order_number, customer_name, customer_phone, customer_email,
	          address, city, district, ward, items, total_amount, status, notes, payment_method,
	          session_key, order_date, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	c := order.Customer
	_, insertErr := tx.ExecContext(ctx, query,
		order.ID,
		order.OrderNumber,
		c.Name,
		c.Phone,
		c.Email,
		c.Address,
		c.City,
		c.District,
		c.Ward,
		itemsJSON,
		order.TotalAmount(),
		order.Status,
		order.Notes,
		order.PaymentMethod,
		order.SessionKey,
		order.OrderDate,
		order.UpdatedAt)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" && pqErr.Constraint == "orders_order_number_key" {
			return ErrDuplicateOrderNumber
		}
		return persistenceErr("insert order", insertErr)
	}

	if event != nil {
		outboxQuery := `INSERT INTO order_outbox (aggregate_id, event_type, payload, created_at)
		                VALUES ($1, $2, $3, $4) RETURNING id`
		if err := tx.QueryRowContext(ctx, outboxQuery,
			event.AggregateID, event.EventType, event.Payload, order.OrderDate).Scan(&event.ID); err != nil {
			return persistenceErr("insert outbox event", err)
		}
		event.CreatedAt = order.OrderDate
	}

	if err := tx.Commit(); err != nil {
		return persistenceErr("commit order", err)
	}
	return nil
}

func (r *PostgresOrderRepository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	query := `SELECT id, aggregate_id, event_type, payload, created_at FROM order_outbox
	          WHERE processed_at IS NULL ORDER BY id LIMIT $1`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, persistenceErr("query outbox events", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, persistenceErr("scan outbox event", err)
		}
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, persistenceErr("iterate outbox events", err)
	}
	return events, nil
}

func (r *PostgresOrderRepository) MarkEventAsProcessed(ctx context.Context, id int64, now time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE order_outbox SET processed_at = $1 WHERE id = $2`, now, id)
	if err != nil {
		return persistenceErr("mark outbox event processed", err)
	}
	return nil
}

func (r *PostgresOrderRepository) GetByNumber(ctx context.Context, orderNumber string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_number = $1`

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, orderNumber))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, persistenceErr("query order by number", err)
	}
	return order, nil
}

// List returns one page of orders, newest first, together with the total
// number of orders matching the filter.
func (r *PostgresOrderRepository) List(ctx context.Context, filter domain.OrderFilter) ([]*domain.Order, int64, error) {
	where, args := orderWhere(filter)

	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, persistenceErr("count orders", err)
	}

	offset, limit := pageBounds(filter.Page, filter.Limit)
	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY order_date DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, persistenceErr("query orders", err)
	}
	defer rows.Close()

	orders := make([]*domain.Order, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, persistenceErr("scan order row", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, persistenceErr("row iteration error", err)
	}

	return orders, total, nil
}

func (r *PostgresOrderRepository) Update(ctx context.Context, orderNumber string, update domain.OrderUpdate, now time.Time) (*domain.Order, error) {
	sets := []string{"updated_at = $1"}
	args := []any{now}
	if update.Status != nil {
		args = append(args, *update.Status)
		sets = append(sets, fmt.Sprintf("status = $%d", len(args)))
	}
	if update.Notes != nil {
		args = append(args, *update.Notes)
		sets = append(sets, fmt.Sprintf("notes = $%d", len(args)))
	}
	args = append(args, orderNumber)

	query := fmt.Sprintf(`UPDATE orders SET %s WHERE order_number = $%d RETURNING %s`,
		strings.Join(sets, ", "), len(args), orderColumns)

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, persistenceErr("update order", err)
	}
	return order, nil
}

func (r *PostgresOrderRepository) Delete(ctx context.Context, orderNumber string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM orders WHERE order_number = $1`, orderNumber)
	if err != nil {
		return persistenceErr("delete order", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return persistenceErr("delete order", err)
	}
	if n == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (r *PostgresOrderRepository) Close() error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var order domain.Order
	var itemsJSON []byte
	c := &order.Customer
	if err := row.Scan(
		&order.ID,
		&order.OrderNumber,
		&c.Name,
		&c.Phone,
		&c.Email,
		&c.Address,
		&c.City,
		&c.District,
		&c.Ward,
		&itemsJSON,
		&order.Status,
		&order.Notes,
		&order.PaymentMethod,
		&order.SessionKey,
		&order.OrderDate,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal(itemsJSON, &order.Items); err != nil {
		return nil, fmt.Errorf("unmarshal order items: %w", err)
	}
	return &order, nil
}

func orderWhere(filter domain.OrderFilter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Phone != "" {
		add("customer_phone LIKE $%d", "%"+filter.Phone+"%")
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(order_number ILIKE $%d OR customer_name ILIKE $%d OR customer_phone ILIKE $%d)", n, n, n))
	}
	if !filter.From.IsZero() {
		add("order_date >= $%d", filter.From)
	}
	if !filter.To.IsZero() {
		add("order_date < $%d", filter.To)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}
