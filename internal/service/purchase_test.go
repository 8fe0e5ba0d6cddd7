package service

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"testing"

	"storefront-service/internal/inventory"
	"storefront-service/internal/ledger"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingDispatcher struct {
	mu    sync.Mutex
	count int
}

func (d *countingDispatcher) Nudge() {
	d.mu.Lock()
	d.count++
	d.mu.Unlock()
}

func (d *countingDispatcher) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.count
}

func newTestPurchaseService(st store.Storage) (*PurchaseService, *countingDispatcher) {
	dispatcher := &countingDispatcher{}
	return NewPurchaseService(st, dispatcher, rand.New(rand.NewSource(42))), dispatcher
}

func seedBuyer(st *storetest.Store, id, balance int64) {
	st.AddUser(models.User{ID: id, TgID: "tg-buyer", Balance: balance, Role: models.RoleUser})
}

func seedProduct(st *storetest.Store, id, price int64, units ...string) {
	st.AddProduct(models.Product{ID: id, Name: "VPN Key", Price: price, ContentUnits: units})
}

func TestPurchaseSuccess(t *testing.T) {
	st := storetest.New()
	seedBuyer(st, 1, 2500)
	seedProduct(st, 10, 1000, "key-a", "key-b", "key-c")
	svc, dispatcher := newTestPurchaseService(st)

	order, err := svc.Execute(context.Background(), 1, 10, 2, "")
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.NotEmpty(t, order.OrderID)
	assert.Equal(t, int64(1000), order.UnitPrice)
	assert.Equal(t, 2, order.Quantity)
	assert.Equal(t, int64(2000), order.TotalPrice)

	allocated := strings.Split(order.Content, ContentSeparator)
	require.Len(t, allocated, 2)

	product := st.Product(10)
	assert.Equal(t, 1, product.Quantity)
	assert.Len(t, product.ContentUnits, 1)

	// Allocated units and remaining pool partition the original pool.
	seen := map[string]bool{}
	for _, u := range allocated {
		assert.False(t, seen[u], "unit %q sold twice", u)
		seen[u] = true
	}
	for _, u := range product.ContentUnits {
		assert.False(t, seen[u], "unit %q both sold and in stock", u)
		seen[u] = true
	}
	assert.Equal(t, map[string]bool{"key-a": true, "key-b": true, "key-c": true}, seen)

	buyer := st.User(1)
	assert.Equal(t, int64(500), buyer.Balance)

	payments := st.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentTypePurchase, payments[0].Type)
	assert.Equal(t, int64(2000), payments[0].Amount)
	assert.Equal(t, int64(1), payments[0].UserID)

	events := st.Outbox()
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeOrderDelivery, events[0].EventType)
	assert.Nil(t, events[0].DispatchedAt)

	assert.Equal(t, 1, dispatcher.Count())
}

func TestPurchaseInsufficientStock(t *testing.T) {
	st := storetest.New()
	seedBuyer(st, 1, 100000)
	seedProduct(st, 10, 1000, "key-a", "key-b", "key-c")
	svc, dispatcher := newTestPurchaseService(st)

	order, err := svc.Execute(context.Background(), 1, 10, 5, "")
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)
	assert.Nil(t, order)

	assert.Equal(t, int64(100000), st.User(1).Balance)
	assert.Equal(t, 3, st.Product(10).Quantity)
	assert.Empty(t, st.Payments())
	assert.Empty(t, st.Outbox())
	assert.Equal(t, 0, dispatcher.Count())
}

func TestPurchaseInsufficientFunds(t *testing.T) {
	st := storetest.New()
	seedBuyer(st, 1, 500)
	seedProduct(st, 10, 1000, "key-a", "key-b")
	svc, _ := newTestPurchaseService(st)

	order, err := svc.Execute(context.Background(), 1, 10, 1, "")
	require.ErrorIs(t, err, ledger.ErrInsufficientFunds)
	assert.Nil(t, order)

	assert.Equal(t, int64(500), st.User(1).Balance)
	assert.Equal(t, 2, st.Product(10).Quantity)
	assert.Empty(t, st.Payments())
}

func TestPurchaseInvalidQuantity(t *testing.T) {
	st := storetest.New()
	seedBuyer(st, 1, 1000)
	seedProduct(st, 10, 100, "key-a")
	svc, _ := newTestPurchaseService(st)

	for _, quantity := range []int{0, -1, -100} {
		_, err := svc.Execute(context.Background(), 1, 10, quantity, "")
		assert.ErrorIs(t, err, ErrInvalidQuantity, "quantity=%d", quantity)
	}
}

func TestPurchaseProductNotFound(t *testing.T) {
	st := storetest.New()
	seedBuyer(st, 1, 1000)
	svc, _ := newTestPurchaseService(st)

	_, err := svc.Execute(context.Background(), 1, 999, 1, "")
	assert.ErrorIs(t, err, store.ErrProductNotFound)
}

func TestPurchaseUnknownBuyer(t *testing.T) {
	st := storetest.New()
	seedProduct(st, 10, 100, "key-a")
	svc, _ := newTestPurchaseService(st)

	_, err := svc.Execute(context.Background(), 42, 10, 1, "")
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestPurchaseReferralBonus(t *testing.T) {
	st := storetest.New()
	referrerID := int64(2)
	st.AddUser(models.User{ID: 2, TgID: "tg-ref", BonusPercent: 20, ReferralCode: "code-ref"})
	st.AddUser(models.User{ID: 1, TgID: "tg-buyer", Balance: 20000, ReferrerID: &referrerID})
	seedProduct(st, 10, 10000, "key-a", "key-b")
	svc, _ := newTestPurchaseService(st)

	order, err := svc.Execute(context.Background(), 1, 10, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(10000), order.TotalPrice)

	// 20% of 100.00 credited to the bonus balance, not the main balance.
	referrer := st.User(2)
	assert.Equal(t, int64(2000), referrer.BonusBalance)
	assert.Equal(t, int64(0), referrer.Balance)

	// The buyer pays the full price; the bonus is not a discount.
	assert.Equal(t, int64(10000), st.User(1).Balance)
}

func TestPurchaseNoReferrerNoBonus(t *testing.T) {
	st := storetest.New()
	seedBuyer(st, 1, 20000)
	st.AddUser(models.User{ID: 2, TgID: "tg-other", BonusPercent: 20})
	seedProduct(st, 10, 10000, "key-a")
	svc, _ := newTestPurchaseService(st)

	_, err := svc.Execute(context.Background(), 1, 10, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.User(2).BonusBalance)
}

func TestPurchaseZeroPercentReferrer(t *testing.T) {
	st := storetest.New()
	referrerID := int64(2)
	st.AddUser(models.User{ID: 2, TgID: "tg-ref", BonusPercent: 0})
	st.AddUser(models.User{ID: 1, TgID: "tg-buyer", Balance: 20000, ReferrerID: &referrerID})
	seedProduct(st, 10, 10000, "key-a")
	svc, _ := newTestPurchaseService(st)

	_, err := svc.Execute(context.Background(), 1, 10, 1, "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.User(2).BonusBalance)
}

func TestPurchaseIdempotencyReplay(t *testing.T) {
	st := storetest.New()
	seedBuyer(st, 1, 5000)
	seedProduct(st, 10, 1000, "key-a", "key-b", "key-c")
	svc, dispatcher := newTestPurchaseService(st)

	first, err := svc.Execute(context.Background(), 1, 10, 1, "req-123")
	require.NoError(t, err)

	second, err := svc.Execute(context.Background(), 1, 10, 1, "req-123")
	require.NoError(t, err)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.Equal(t, first.Content, second.Content)

	// The replay must not touch any state again.
	assert.Equal(t, int64(4000), st.User(1).Balance)
	assert.Equal(t, 2, st.Product(10).Quantity)
	assert.Len(t, st.Payments(), 1)
	assert.Len(t, st.Outbox(), 1)
	assert.Equal(t, 1, dispatcher.Count())
}

func TestPurchaseIdempotencyScopedToBuyer(t *testing.T) {
	st := storetest.New()
	seedBuyer(st, 1, 5000)
	st.AddUser(models.User{ID: 2, TgID: "tg-other", Balance: 5000})
	seedProduct(st, 10, 1000, "key-a", "key-b", "key-c")
	svc, _ := newTestPurchaseService(st)

	first, err := svc.Execute(context.Background(), 1, 10, 1, "shared-key")
	require.NoError(t, err)

	// Another buyer presenting the same key must get their own purchase,
	// never a replay of someone else's order and content.
	second, err := svc.Execute(context.Background(), 2, 10, 1, "shared-key")
	require.NoError(t, err)
	assert.NotEqual(t, first.OrderID, second.OrderID)
	assert.NotEqual(t, first.Content, second.Content)
	assert.Equal(t, int64(2), second.UserID)

	assert.Equal(t, int64(4000), st.User(1).Balance)
	assert.Equal(t, int64(4000), st.User(2).Balance)
	assert.Equal(t, 1, st.Product(10).Quantity)

	// Each buyer's key still replays their own order.
	replay, err := svc.Execute(context.Background(), 2, 10, 1, "shared-key")
	require.NoError(t, err)
	assert.Equal(t, second.OrderID, replay.OrderID)
	assert.Equal(t, int64(4000), st.User(2).Balance)
}

func TestPurchaseRollbackOnLateFailure(t *testing.T) {
	st := storetest.New()
	seedBuyer(st, 1, 5000)
	seedProduct(st, 10, 1000, "key-a", "key-b")
	st.FailOn = "InsertPayment"
	svc, dispatcher := newTestPurchaseService(st)

	_, err := svc.Execute(context.Background(), 1, 10, 1, "")
	require.Error(t, err)

	// Inventory and debit happened before the failing step; all of it must
	// roll back together.
	assert.Equal(t, int64(5000), st.User(1).Balance)
	assert.Equal(t, 2, st.Product(10).Quantity)
	assert.Empty(t, st.Payments())
	assert.Empty(t, st.Outbox())
	assert.Equal(t, 0, dispatcher.Count())
}

func TestPurchaseConcurrentNoOversell(t *testing.T) {
	st := storetest.New()
	const stock = 10
	const buyers = 25

	units := make([]string, stock)
	for i := range units {
		units[i] = strings.Repeat("x", i+1)
	}
	seedProduct(st, 10, 100, units...)
	for i := 1; i <= buyers; i++ {
		st.AddUser(models.User{ID: int64(i), Balance: 100})
	}
	svc, _ := newTestPurchaseService(st)

	var wg sync.WaitGroup
	orders := make(chan *models.Order, buyers)
	errs := make(chan error, buyers)
	for i := 1; i <= buyers; i++ {
		wg.Add(1)
		go func(buyerID int64) {
			defer wg.Done()
			order, err := svc.Execute(context.Background(), buyerID, 10, 1, "")
			if err != nil {
				errs <- err
				return
			}
			orders <- order
		}(int64(i))
	}
	wg.Wait()
	close(orders)
	close(errs)

	var sold []string
	for order := range orders {
		sold = append(sold, order.Content)
	}
	for err := range errs {
		assert.ErrorIs(t, err, inventory.ErrInsufficientStock)
	}

	// Every unit sold exactly once, nothing left behind, nothing oversold.
	assert.Len(t, sold, stock)
	assert.Equal(t, 0, st.Product(10).Quantity)
	unique := map[string]bool{}
	for _, u := range sold {
		assert.False(t, unique[u], "unit %q sold twice", u)
		unique[u] = true
	}
	assert.Len(t, unique, stock)
}

func TestPurchaseConcurrentSharedBalance(t *testing.T) {
	st := storetest.New()
	// The buyer can afford exactly 3 units across all attempts.
	st.AddUser(models.User{ID: 1, Balance: 300})
	units := []string{"u1", "u2", "u3", "u4", "u5", "u6", "u7", "u8"}
	seedProduct(st, 10, 100, units...)
	svc, _ := newTestPurchaseService(st)

	var wg sync.WaitGroup
	results := make(chan error, 6)
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Execute(context.Background(), 1, 10, 1, "")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ledger.ErrInsufficientFunds)
		}
	}
	assert.Equal(t, 3, succeeded)
	assert.Equal(t, int64(0), st.User(1).Balance)
	assert.Equal(t, len(units)-3, st.Product(10).Quantity)
}

func TestOrderLookupOwnership(t *testing.T) {
	st := storetest.New()
	seedBuyer(st, 1, 5000)
	st.AddUser(models.User{ID: 2, TgID: "tg-other", Balance: 5000})
	seedProduct(st, 10, 1000, "key-a", "key-b")
	svc, _ := newTestPurchaseService(st)

	order, err := svc.Execute(context.Background(), 1, 10, 1, "")
	require.NoError(t, err)

	got, err := svc.Order(context.Background(), 1, order.OrderID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderID, got.OrderID)

	_, err = svc.Order(context.Background(), 2, order.OrderID)
	assert.ErrorIs(t, err, store.ErrOrderNotFound)

	_, err = svc.Order(context.Background(), 1, "no-such-order")
	assert.ErrorIs(t, err, store.ErrOrderNotFound)

	orders, err := svc.Orders(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, order.OrderID, orders[0].OrderID)
}

func TestPurchaseAllocationDeterministic(t *testing.T) {
	run := func() string {
		st := storetest.New()
		seedBuyer(st, 1, 5000)
		seedProduct(st, 10, 1000, "key-a", "key-b", "key-c", "key-d")
		svc := NewPurchaseService(st, nil, rand.New(rand.NewSource(7)))
		order, err := svc.Execute(context.Background(), 1, 10, 2, "")
		require.NoError(t, err)
		return order.Content
	}

	first := run()
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, run())
	}
}
