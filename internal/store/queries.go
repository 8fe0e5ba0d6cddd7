package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storefront-service/internal/models"

	"github.com/lib/pq"
)

// GetUserByID retrieves a user by primary key
func (s *SQLStore) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByTgID retrieves a user by their external identity key
func (s *SQLStore) GetUserByTgID(ctx context.Context, tgID string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE tg_id = $1", tgID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByReferralCode retrieves the owner of a referral code
func (s *SQLStore) GetUserByReferralCode(ctx context.Context, code string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE referral_code = $1", code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetReferrer links a user to their referrer and bumps the referrer's invited
// count. The referrer_id guard keeps the link set-once even under races.
func (s *SQLStore) SetReferrer(ctx context.Context, userID, referrerID int64) error {
	return s.RunInTx(ctx, func(tx Tx) error {
		t := tx.(*sqlTx)

		res, err := t.tx.ExecContext(ctx,
			"UPDATE users SET referrer_id = $1 WHERE id = $2 AND referrer_id IS NULL",
			referrerID, userID)
		if err != nil {
			return fmt.Errorf("failed to set referrer: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return errors.New("user already has a referrer")
		}

		_, err = t.tx.ExecContext(ctx,
			"UPDATE users SET invited_count = invited_count + 1 WHERE id = $1", referrerID)
		if err != nil {
			return fmt.Errorf("failed to increment invited count: %w", err)
		}
		return nil
	})
}

// GetProductByID retrieves a product by ID
func (s *SQLStore) GetProductByID(ctx context.Context, productID int64) (*models.Product, error) {
	var product models.Product
	err := s.db.GetContext(ctx, &product, "SELECT * FROM products WHERE id = $1", productID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

// GetProducts retrieves all products
func (s *SQLStore) GetProducts(ctx context.Context) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products, "SELECT * FROM products ORDER BY id")
	return products, err
}

// GetProductsByCategory retrieves products in one category
func (s *SQLStore) GetProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error) {
	var products []models.Product
	err := s.db.SelectContext(ctx, &products,
		"SELECT * FROM products WHERE category_id = $1 ORDER BY id", categoryID)
	return products, err
}

// GetCategories retrieves all categories
func (s *SQLStore) GetCategories(ctx context.Context) ([]models.Category, error) {
	var categories []models.Category
	err := s.db.SelectContext(ctx, &categories, "SELECT * FROM categories ORDER BY id")
	return categories, err
}

// CreateProduct inserts a new product; quantity is derived from the pool
func (s *SQLStore) CreateProduct(ctx context.Context, product *models.Product) error {
	query := `
		INSERT INTO products (category_id, name, description, price, quantity, content_units)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`

	product.Quantity = len(product.ContentUnits)
	return s.db.QueryRowContext(ctx, query,
		product.CategoryID, product.Name, product.Description,
		product.Price, product.Quantity, pq.Array(product.ContentUnits),
	).Scan(&product.ID, &product.CreatedAt)
}

// RestockProduct appends content units to the pool under a row lock and
// returns the updated product.
func (s *SQLStore) RestockProduct(ctx context.Context, productID int64, units []string) (*models.Product, error) {
	var updated *models.Product
	err := s.RunInTx(ctx, func(tx Tx) error {
		product, err := tx.ProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}

		pool := append([]string(product.ContentUnits), units...)
		if err := tx.UpdateProductInventory(ctx, productID, pool); err != nil {
			return err
		}

		product.ContentUnits = pool
		product.Quantity = len(pool)
		updated = product
		return nil
	})
	return updated, err
}

// GetOrdersByUser retrieves a user's purchase history, newest first
func (s *SQLStore) GetOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// GetOrderByToken retrieves an order by its externally visible token
func (s *SQLStore) GetOrderByToken(ctx context.Context, orderID string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE order_id = $1", orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetOrderByIdempotencyKey retrieves the user's order carrying the key, nil
// if none. Keys are scoped per user so one buyer's key can never replay
// another buyer's order.
func (s *SQLStore) GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order,
		"SELECT * FROM orders WHERE user_id = $1 AND idempotency_key = $2", userID, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetPaymentsByUser retrieves a user's ledger entries, newest first
func (s *SQLStore) GetPaymentsByUser(ctx context.Context, userID int64) ([]models.Payment, error) {
	var payments []models.Payment
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE user_id = $1 ORDER BY created_at DESC", userID)
	return payments, err
}

// GetReferrals lists the users referred by referrerID
func (s *SQLStore) GetReferrals(ctx context.Context, referrerID int64) ([]models.ReferralInfo, error) {
	var referrals []models.ReferralInfo
	err := s.db.SelectContext(ctx, &referrals,
		"SELECT id, tg_id, username, created_at FROM users WHERE referrer_id = $1 ORDER BY created_at",
		referrerID)
	return referrals, err
}

// GetUndispatchedEvents fetches outbox rows awaiting dispatch, oldest first
func (s *SQLStore) GetUndispatchedEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := s.db.SelectContext(ctx, &events,
		"SELECT * FROM outbox_events WHERE dispatched_at IS NULL ORDER BY id LIMIT $1", limit)
	return events, err
}

// MarkEventDispatched stamps an outbox row as published
func (s *SQLStore) MarkEventDispatched(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE outbox_events SET dispatched_at = NOW() WHERE id = $1", id)
	return err
}
