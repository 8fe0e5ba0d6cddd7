// Package storetest provides an in-memory Storage implementation for tests.
// RunInTx operates on a deep copy of the state and swaps it in only on
// success, so rollback behavior matches the SQL store: a failed transaction
// leaves no trace.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
)

type state struct {
	users    map[int64]*models.User
	products map[int64]*models.Product
	orders   []models.Order
	payments []models.Payment
	outbox   []models.OutboxEvent

	nextOrderID   int64
	nextPaymentID int64
	nextOutboxID  int64
}

func (s *state) clone() *state {
	c := &state{
		users:         make(map[int64]*models.User, len(s.users)),
		products:      make(map[int64]*models.Product, len(s.products)),
		orders:        append([]models.Order(nil), s.orders...),
		payments:      append([]models.Payment(nil), s.payments...),
		outbox:        append([]models.OutboxEvent(nil), s.outbox...),
		nextOrderID:   s.nextOrderID,
		nextPaymentID: s.nextPaymentID,
		nextOutboxID:  s.nextOutboxID,
	}
	for id, u := range s.users {
		cp := *u
		c.users[id] = &cp
	}
	for id, p := range s.products {
		cp := *p
		cp.ContentUnits = append([]string(nil), p.ContentUnits...)
		c.products[id] = &cp
	}
	return c
}

// Store is an in-memory store.Storage. A single mutex serializes
// transactions, standing in for the row locks of the SQL store.
type Store struct {
	mu sync.Mutex
	st *state

	// FailOn makes the named tx operation return an error, for testing
	// rollback of multi-step transactions.
	FailOn string
}

var _ store.Storage = (*Store)(nil)

// New creates an empty in-memory store
func New() *Store {
	return &Store{st: &state{
		users:    make(map[int64]*models.User),
		products: make(map[int64]*models.Product),
	}}
}

// AddUser seeds a user
func (m *Store) AddUser(u models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := u
	m.st.users[u.ID] = &cp
}

// AddProduct seeds a product, deriving quantity from the content pool
func (m *Store) AddProduct(p models.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := p
	cp.ContentUnits = append([]string(nil), p.ContentUnits...)
	cp.Quantity = len(cp.ContentUnits)
	m.st.products[p.ID] = &cp
}

// User returns a snapshot of a seeded user
func (m *Store) User(id int64) models.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.st.users[id]
}

// Product returns a snapshot of a seeded product
func (m *Store) Product(id int64) models.Product {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := *m.st.products[id]
	p.ContentUnits = append([]string(nil), p.ContentUnits...)
	return p
}

// Payments returns all ledger entries
func (m *Store) Payments() []models.Payment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Payment(nil), m.st.payments...)
}

// Outbox returns all staged events
func (m *Store) Outbox() []models.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.OutboxEvent(nil), m.st.outbox...)
}

// RunInTx implements store.Storage
func (m *Store) RunInTx(_ context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	draft := m.st.clone()
	if err := fn(&memTx{st: draft, failOn: m.FailOn}); err != nil {
		return err
	}
	m.st = draft
	return nil
}

func (m *Store) GetUserByID(_ context.Context, userID int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.st.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *Store) GetUserByTgID(_ context.Context, tgID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.st.users {
		if u.TgID == tgID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (m *Store) GetUserByReferralCode(_ context.Context, code string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.st.users {
		if u.ReferralCode == code {
			cp := *u
			return &cp, nil
		}
	}
	return nil, store.ErrUserNotFound
}

func (m *Store) SetReferrer(_ context.Context, userID, referrerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.st.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	if u.ReferrerID != nil {
		return errors.New("user already has a referrer")
	}
	referrer, ok := m.st.users[referrerID]
	if !ok {
		return store.ErrUserNotFound
	}

	u.ReferrerID = &referrer.ID
	referrer.InvitedCount++
	return nil
}

func (m *Store) GetProductByID(_ context.Context, productID int64) (*models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.st.products[productID]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	cp := *p
	cp.ContentUnits = append([]string(nil), p.ContentUnits...)
	return &cp, nil
}

func (m *Store) GetProducts(_ context.Context) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	products := make([]models.Product, 0, len(m.st.products))
	for _, p := range m.st.products {
		products = append(products, *p)
	}
	return products, nil
}

func (m *Store) GetProductsByCategory(_ context.Context, categoryID int64) ([]models.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var products []models.Product
	for _, p := range m.st.products {
		if p.CategoryID == categoryID {
			products = append(products, *p)
		}
	}
	return products, nil
}

func (m *Store) GetCategories(context.Context) ([]models.Category, error) {
	return nil, nil
}

func (m *Store) CreateProduct(_ context.Context, product *models.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	product.ID = int64(len(m.st.products) + 1)
	product.Quantity = len(product.ContentUnits)
	product.CreatedAt = time.Now()
	cp := *product
	m.st.products[product.ID] = &cp
	return nil
}

func (m *Store) RestockProduct(ctx context.Context, productID int64, units []string) (*models.Product, error) {
	var updated *models.Product
	err := m.RunInTx(ctx, func(tx store.Tx) error {
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

func (m *Store) GetOrdersByUser(_ context.Context, userID int64) ([]models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var orders []models.Order
	for _, o := range m.st.orders {
		if o.UserID == userID {
			orders = append(orders, o)
		}
	}
	return orders, nil
}

func (m *Store) GetOrderByToken(_ context.Context, orderID string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.st.orders {
		if o.OrderID == orderID {
			cp := o
			return &cp, nil
		}
	}
	return nil, store.ErrOrderNotFound
}

func (m *Store) GetOrderByIdempotencyKey(_ context.Context, userID int64, key string) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.st.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			cp := o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) GetPaymentsByUser(_ context.Context, userID int64) ([]models.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payments []models.Payment
	for _, p := range m.st.payments {
		if p.UserID == userID {
			payments = append(payments, p)
		}
	}
	return payments, nil
}

func (m *Store) GetReferrals(_ context.Context, referrerID int64) ([]models.ReferralInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var referrals []models.ReferralInfo
	for _, u := range m.st.users {
		if u.ReferrerID != nil && *u.ReferrerID == referrerID {
			referrals = append(referrals, models.ReferralInfo{
				ID: u.ID, TgID: u.TgID, Username: u.Username, CreatedAt: u.CreatedAt,
			})
		}
	}
	return referrals, nil
}

func (m *Store) GetUndispatchedEvents(_ context.Context, limit int) ([]models.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []models.OutboxEvent
	for _, e := range m.st.outbox {
		if e.DispatchedAt == nil {
			events = append(events, e)
			if len(events) == limit {
				break
			}
		}
	}
	return events, nil
}

func (m *Store) MarkEventDispatched(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.st.outbox {
		if m.st.outbox[i].ID == id {
			now := time.Now()
			m.st.outbox[i].DispatchedAt = &now
			return nil
		}
	}
	return fmt.Errorf("outbox event %d not found", id)
}

// memTx implements store.Tx against a draft state
type memTx struct {
	st     *state
	failOn string
}

var _ store.Tx = (*memTx)(nil)

func (t *memTx) fail(op string) error {
	if t.failOn == op {
		return fmt.Errorf("injected failure: %s", op)
	}
	return nil
}

func (t *memTx) ProductForUpdate(_ context.Context, productID int64) (*models.Product, error) {
	if err := t.fail("ProductForUpdate"); err != nil {
		return nil, err
	}
	p, ok := t.st.products[productID]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	cp := *p
	cp.ContentUnits = append([]string(nil), p.ContentUnits...)
	return &cp, nil
}

func (t *memTx) UpdateProductInventory(_ context.Context, productID int64, units []string) error {
	if err := t.fail("UpdateProductInventory"); err != nil {
		return err
	}
	p, ok := t.st.products[productID]
	if !ok {
		return store.ErrProductNotFound
	}
	p.ContentUnits = append([]string(nil), units...)
	p.Quantity = len(units)
	return nil
}

func (t *memTx) UserForUpdate(_ context.Context, userID int64) (*models.User, error) {
	if err := t.fail("UserForUpdate"); err != nil {
		return nil, err
	}
	u, ok := t.st.users[userID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (t *memTx) UserByID(ctx context.Context, userID int64) (*models.User, error) {
	return t.UserForUpdate(ctx, userID)
}

func (t *memTx) UpdateUserBalance(_ context.Context, userID, balance int64) error {
	if err := t.fail("UpdateUserBalance"); err != nil {
		return err
	}
	u, ok := t.st.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	u.Balance = balance
	return nil
}

func (t *memTx) AddBonusBalance(_ context.Context, userID, amount int64) error {
	if err := t.fail("AddBonusBalance"); err != nil {
		return err
	}
	u, ok := t.st.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	u.BonusBalance += amount
	return nil
}

func (t *memTx) SetBalances(_ context.Context, userID, balance, bonusBalance int64) error {
	if err := t.fail("SetBalances"); err != nil {
		return err
	}
	u, ok := t.st.users[userID]
	if !ok {
		return store.ErrUserNotFound
	}
	u.Balance = balance
	u.BonusBalance = bonusBalance
	return nil
}

func (t *memTx) InsertOrder(_ context.Context, order *models.Order) error {
	if err := t.fail("InsertOrder"); err != nil {
		return err
	}
	t.st.nextOrderID++
	order.ID = t.st.nextOrderID
	order.CreatedAt = time.Now()
	t.st.orders = append(t.st.orders, *order)
	return nil
}

func (t *memTx) InsertPayment(_ context.Context, payment *models.Payment) error {
	if err := t.fail("InsertPayment"); err != nil {
		return err
	}
	t.st.nextPaymentID++
	payment.ID = t.st.nextPaymentID
	payment.CreatedAt = time.Now()
	t.st.payments = append(t.st.payments, *payment)
	return nil
}

func (t *memTx) InsertOutboxEvent(_ context.Context, event *models.OutboxEvent) error {
	if err := t.fail("InsertOutboxEvent"); err != nil {
		return err
	}
	t.st.nextOutboxID++
	event.ID = t.st.nextOutboxID
	event.CreatedAt = time.Now()
	t.st.outbox = append(t.st.outbox, *event)
	return nil
}
