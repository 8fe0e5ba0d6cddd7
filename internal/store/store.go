package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"storefront-service/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store errors
var (
	ErrProductNotFound = errors.New("product not found")
	ErrUserNotFound    = errors.New("user not found")
	ErrOrderNotFound   = errors.New("order not found")
)

// Tx is the transaction-scoped slice of the store. All row-locking reads and
// writes that must commit together go through a single Tx.
type Tx interface {
	// ProductForUpdate loads a product and locks its row for the transaction.
	ProductForUpdate(ctx context.Context, productID int64) (*models.Product, error)
	// UpdateProductInventory replaces the content pool and sets quantity to its length.
	UpdateProductInventory(ctx context.Context, productID int64, units []string) error
	// UserForUpdate loads a user and locks their row for the transaction.
	UserForUpdate(ctx context.Context, userID int64) (*models.User, error)
	// UserByID loads a user without locking (referrer lookups).
	UserByID(ctx context.Context, userID int64) (*models.User, error)
	UpdateUserBalance(ctx context.Context, userID, balance int64) error
	AddBonusBalance(ctx context.Context, userID, amount int64) error
	SetBalances(ctx context.Context, userID, balance, bonusBalance int64) error
	InsertOrder(ctx context.Context, order *models.Order) error
	InsertPayment(ctx context.Context, payment *models.Payment) error
	InsertOutboxEvent(ctx context.Context, event *models.OutboxEvent) error
}

// Storage is what the services depend on. The SQL implementation lives in
// this package; tests substitute an in-memory one.
type Storage interface {
	// RunInTx executes fn inside a single database transaction. The unit
	// commits only if fn returns nil; any error rolls everything back.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	GetUserByTgID(ctx context.Context, tgID string) (*models.User, error)
	GetUserByReferralCode(ctx context.Context, code string) (*models.User, error)
	SetReferrer(ctx context.Context, userID, referrerID int64) error

	GetProductByID(ctx context.Context, productID int64) (*models.Product, error)
	GetProducts(ctx context.Context) ([]models.Product, error)
	GetProductsByCategory(ctx context.Context, categoryID int64) ([]models.Product, error)
	GetCategories(ctx context.Context) ([]models.Category, error)
	CreateProduct(ctx context.Context, product *models.Product) error
	RestockProduct(ctx context.Context, productID int64, units []string) (*models.Product, error)

	GetOrdersByUser(ctx context.Context, userID int64) ([]models.Order, error)
	GetOrderByToken(ctx context.Context, orderID string) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, userID int64, key string) (*models.Order, error)
	GetPaymentsByUser(ctx context.Context, userID int64) ([]models.Payment, error)
	GetReferrals(ctx context.Context, referrerID int64) ([]models.ReferralInfo, error)

	GetUndispatchedEvents(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkEventDispatched(ctx context.Context, id int64) error
}

// SQLStore is the PostgreSQL-backed Storage implementation.
type SQLStore struct {
	db *sqlx.DB
}

var _ Storage = (*SQLStore)(nil)

// NewStore connects to the database, runs migrations and returns the store.
func NewStore(databaseURL string) (*SQLStore, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db}
	if err := s.runMigrations(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *SQLStore) runMigrations() error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	if err := goose.Up(s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *SQLStore) GetDB() *sqlx.DB {
	return s.db
}

// txAttempts bounds retries of a transaction aborted by a write-write conflict.
const txAttempts = 3

// RunInTx runs fn inside one transaction. On serialization failure or a
// detected deadlock the whole unit is retried from the start, never partial
// steps. Row locks taken via FOR UPDATE serialize concurrent units touching
// the same product or user rows.
func (s *SQLStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; attempt < txAttempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt+1) * 50 * time.Millisecond):
		}
	}
	return err
}

func (s *SQLStore) runOnce(ctx context.Context, fn func(tx Tx) error) error {
	txx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer txx.Rollback()

	if err := fn(&sqlTx{tx: txx}); err != nil {
		return err
	}

	if err := txx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	// serialization_failure, deadlock_detected
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
