package store

import (
	"context"
	"database/sql"
	"errors"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// sqlTx implements Tx over an open sqlx transaction.
type sqlTx struct {
	tx *sqlx.Tx
}

var _ Tx = (*sqlTx)(nil)

// ProductForUpdate locks the product row for the remainder of the transaction
func (t *sqlTx) ProductForUpdate(ctx context.Context, productID int64) (*models.Product, error) {
	var product models.Product
	err := t.tx.GetContext(ctx, &product,
		"SELECT * FROM products WHERE id = $1 FOR UPDATE", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// UpdateProductInventory writes the new content pool; quantity always tracks
// the pool length so the two cannot drift apart.
func (t *sqlTx) UpdateProductInventory(ctx context.Context, productID int64, units []string) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE products SET content_units = $1, quantity = $2 WHERE id = $3",
		pq.Array(units), len(units), productID)
	return err
}

// UserForUpdate locks the user row for the remainder of the transaction
func (t *sqlTx) UserForUpdate(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := t.tx.GetContext(ctx, &user,
		"SELECT * FROM users WHERE id = $1 FOR UPDATE", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByID loads a user without locking
func (t *sqlTx) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := t.tx.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUserBalance sets the spendable balance
func (t *sqlTx) UpdateUserBalance(ctx context.Context, userID, balance int64) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE users SET balance = $1 WHERE id = $2", balance, userID)
	return err
}

// AddBonusBalance increments the bonus balance
func (t *sqlTx) AddBonusBalance(ctx context.Context, userID, amount int64) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE users SET bonus_balance = bonus_balance + $1 WHERE id = $2", amount, userID)
	return err
}

// SetBalances sets both balances in one statement
func (t *sqlTx) SetBalances(ctx context.Context, userID, balance, bonusBalance int64) error {
	_, err := t.tx.ExecContext(ctx,
		"UPDATE users SET balance = $1, bonus_balance = $2 WHERE id = $3",
		balance, bonusBalance, userID)
	return err
}

// InsertOrder creates an order row and fills in the generated fields
func (t *sqlTx) InsertOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (order_id, user_id, product_id, product_name, unit_price, quantity, total_price, content, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at`

	return t.tx.QueryRowContext(ctx, query,
		order.OrderID, order.UserID, order.ProductID, order.ProductName,
		order.UnitPrice, order.Quantity, order.TotalPrice, order.Content,
		order.IdempotencyKey,
	).Scan(&order.ID, &order.CreatedAt)
}

// InsertPayment appends a ledger entry
func (t *sqlTx) InsertPayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (user_id, type, amount)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	return t.tx.QueryRowContext(ctx, query,
		payment.UserID, payment.Type, payment.Amount,
	).Scan(&payment.ID, &payment.CreatedAt)
}

// InsertOutboxEvent stages an event for post-commit dispatch
func (t *sqlTx) InsertOutboxEvent(ctx context.Context, event *models.OutboxEvent) error {
	query := `
		INSERT INTO outbox_events (event_id, event_type, payload)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`

	// lib/pq would send []byte as bytea, which does not cast to jsonb.
	return t.tx.QueryRowContext(ctx, query,
		event.EventID, event.EventType, string(event.Payload),
	).Scan(&event.ID, &event.CreatedAt)
}
