package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/timedeal/timesale/internal/core/domain"
)

// MySQL duplicate-entry error number, raised by the unique key on
// (user_id, product_id).
const mysqlErrDupEntry = 1062

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

// EnsureSchema creates the tables this adapter needs. Schema migration
// proper lives outside this service; this only covers dev and test runs.
func (m *MySQLAdapter) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id         VARCHAR(64)  PRIMARY KEY,
			login_id   VARCHAR(128) NOT NULL,
			created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_users_login_id (login_id)
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id         VARCHAR(64)  PRIMARY KEY,
			name       VARCHAR(255) NOT NULL,
			quantity   INT          NOT NULL,
			version    BIGINT       NOT NULL DEFAULT 0,
			sale_start DATETIME     NOT NULL,
			sale_end   DATETIME     NOT NULL,
			created_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME     NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id         VARCHAR(64) PRIMARY KEY,
			user_id    VARCHAR(64) NOT NULL,
			product_id VARCHAR(64) NOT NULL,
			quantity   INT         NOT NULL,
			created_at DATETIME    NOT NULL,
			UNIQUE KEY uq_orders_user_product (user_id, product_id),
			KEY idx_orders_user (user_id, created_at),
			KEY idx_orders_product (product_id, created_at)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (m *MySQLAdapter) FindByLoginID(ctx context.Context, loginID string) (*domain.User, error) {
	var u domain.User
	err := m.db.QueryRowContext(ctx, `
		SELECT id, login_id, created_at FROM users WHERE login_id = ?`, loginID,
	).Scan(&u.ID, &u.LoginID, &u.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, productID string) (*domain.Product, error) {
	return m.getProduct(ctx, m.db, productID, false)
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (m *MySQLAdapter) getProduct(ctx context.Context, q rowQuerier, productID string, forUpdate bool) (*domain.Product, error) {
	query := `
		SELECT id, name, quantity, version, sale_start, sale_end, created_at, updated_at
		FROM products WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var p domain.Product
	err := q.QueryRowContext(ctx, query, productID).Scan(
		&p.ID, &p.Name, &p.Quantity, &p.Version,
		&p.SaleStart, &p.SaleEnd, &p.CreatedAt, &p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}
	return &p, nil
}

// Reserve reads and writes without any guard. Racy across processes; use
// only under the single-writer gate.
func (m *MySQLAdapter) Reserve(ctx context.Context, productID string, quantity int, now time.Time) (*domain.Product, error) {
	p, err := m.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if err := checkReservable(p, quantity, now); err != nil {
		return nil, err
	}

	_, err = m.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - ?, version = version + 1, updated_at = NOW()
		WHERE id = ?`,
		quantity, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	p.Quantity -= quantity
	p.Version++
	return p, nil
}

func (m *MySQLAdapter) ReserveExclusive(ctx context.Context, productID string, quantity int, now time.Time) (*domain.Product, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	p, err := m.getProduct(ctx, tx, productID, true)
	if err != nil {
		return nil, err
	}
	if err := checkReservable(p, quantity, now); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - ?, version = version + 1, updated_at = NOW()
		WHERE id = ?`,
		quantity, productID,
	)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	p.Quantity -= quantity
	p.Version++
	return p, nil
}

func (m *MySQLAdapter) CompareAndReserve(ctx context.Context, productID string, quantity int, version int64, now time.Time) (*domain.Product, error) {
	p, err := m.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Version != version {
		return nil, domain.ErrVersionConflict
	}
	if err := checkReservable(p, quantity, now); err != nil {
		return nil, err
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - ?, version = version + 1, updated_at = NOW()
		WHERE id = ? AND version = ?`,
		quantity, productID, version,
	)
	if err != nil {
		return nil, fmt.Errorf("update product: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, domain.ErrVersionConflict
	}

	p.Quantity -= quantity
	p.Version++
	return p, nil
}

func (m *MySQLAdapter) Credit(ctx context.Context, productID string, quantity int) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + ?, version = version + 1, updated_at = NOW()
		WHERE id = ?`,
		quantity, productID,
	)
	if err != nil {
		return fmt.Errorf("credit product: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (m *MySQLAdapter) Create(ctx context.Context, order domain.Order) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO orders (id, user_id, product_id, quantity, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		order.ID, order.UserID, order.ProductID, order.Quantity, order.CreatedAt,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDupEntry {
			return domain.ErrDuplicatedOrder
		}
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	var o domain.Order
	err := m.db.QueryRowContext(ctx, `
		SELECT id, user_id, product_id, quantity, created_at
		FROM orders WHERE id = ?`, orderID,
	).Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}
	return &o, nil
}

func (m *MySQLAdapter) ListByUser(ctx context.Context, userID string, page domain.Page) ([]domain.Order, error) {
	return m.listOrders(ctx, `
		SELECT id, user_id, product_id, quantity, created_at
		FROM orders WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		userID, page.Size, page.Offset())
}

func (m *MySQLAdapter) ListByProduct(ctx context.Context, productID string, page domain.Page) ([]domain.Order, error) {
	return m.listOrders(ctx, `
		SELECT id, user_id, product_id, quantity, created_at
		FROM orders WHERE product_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?`,
		productID, page.Size, page.Offset())
}

func (m *MySQLAdapter) listOrders(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// Cancel deletes the order and credits the product in one transaction,
// so the ledger and the inventory never diverge.
func (m *MySQLAdapter) Cancel(ctx context.Context, orderID string) (*domain.Order, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var o domain.Order
	err = tx.QueryRowContext(ctx, `
		SELECT id, user_id, product_id, quantity, created_at
		FROM orders WHERE id = ? FOR UPDATE`, orderID,
	).Scan(&o.ID, &o.UserID, &o.ProductID, &o.Quantity, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = ?`, orderID); err != nil {
		return nil, fmt.Errorf("delete order: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity + ?, version = version + 1, updated_at = NOW()
		WHERE id = ?`,
		o.Quantity, o.ProductID,
	); err != nil {
		return nil, fmt.Errorf("credit product: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &o, nil
}

// SeedProduct and SeedUser upsert fixtures for dev and test runs.
func (m *MySQLAdapter) SeedProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, quantity, version, sale_start, sale_end, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, NOW(), NOW())
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), quantity = VALUES(quantity), version = VALUES(version),
			sale_start = VALUES(sale_start), sale_end = VALUES(sale_end), updated_at = NOW()`,
		p.ID, p.Name, p.Quantity, p.Version, p.SaleStart, p.SaleEnd,
	)
	if err != nil {
		return fmt.Errorf("seed product: %w", err)
	}
	return nil
}

func (m *MySQLAdapter) SeedUser(ctx context.Context, u domain.User) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO users (id, login_id) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE login_id = VALUES(login_id)`,
		u.ID, u.LoginID,
	)
	if err != nil {
		return fmt.Errorf("seed user: %w", err)
	}
	return nil
}
