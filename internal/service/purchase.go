package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"storefront-service/internal/inventory"
	"storefront-service/internal/ledger"
	"storefront-service/internal/models"
	"storefront-service/internal/referral"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrInvalidQuantity is returned when the requested quantity is below one.
var ErrInvalidQuantity = errors.New("invalid quantity")

// ContentSeparator joins allocated units into the order's delivered content.
const ContentSeparator = "\n"

// Dispatcher wakes the outbox dispatcher after a commit. The call must never
// block; delivery still happens on the next sweep if the nudge is dropped.
type Dispatcher interface {
	Nudge()
}

// PurchaseService runs the purchase transaction: funds and stock validation,
// inventory allocation, debit, order and payment records and the conditional
// referral credit, all in one atomic unit.
type PurchaseService struct {
	store      store.Storage
	dispatcher Dispatcher
	logger     *zap.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPurchaseService creates a new purchase service. rng drives inventory
// allocation; pass a seeded source for reproducible runs.
func NewPurchaseService(st store.Storage, dispatcher Dispatcher, rng *rand.Rand) *PurchaseService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &PurchaseService{
		store:      st,
		dispatcher: dispatcher,
		logger:     util.GetLogger(),
		rng:        rng,
	}
}

// PurchaseRequest is a request to buy quantity units of one product
type PurchaseRequest struct {
	ProductID      int64  `json:"product_id" binding:"required"`
	Quantity       int    `json:"quantity" binding:"required,min=1"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// Execute performs the purchase for buyerID. Steps up to the commit run in a
// single transaction: concurrent purchases against the same product or buyer
// serialize on row locks, so stock and balance checks hold at commit time.
// After the commit the outbox dispatcher is nudged; delivery failures never
// affect the returned order.
func (s *PurchaseService) Execute(ctx context.Context, buyerID, productID int64, quantity int, idempotencyKey string) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "PurchaseService.Execute")
	defer span.End()

	start := time.Now()
	defer func() {
		util.PurchaseLatency.Observe(time.Since(start).Seconds())
	}()

	if quantity < 1 {
		util.PurchasesFailedTotal.WithLabelValues("invalid_quantity").Inc()
		return nil, ErrInvalidQuantity
	}

	if idempotencyKey != "" {
		existing, err := s.store.GetOrderByIdempotencyKey(ctx, buyerID, idempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if existing != nil {
			s.logger.Info("Duplicate purchase request",
				zap.Int64("user_id", buyerID),
				zap.String("idempotency_key", idempotencyKey),
				zap.String("order_id", existing.OrderID))
			return existing, nil
		}
	}

	var order *models.Order

	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		product, err := tx.ProductForUpdate(ctx, productID)
		if err != nil {
			return err
		}
		if product.Quantity < quantity {
			return inventory.ErrInsufficientStock
		}

		buyer, err := tx.UserForUpdate(ctx, buyerID)
		if err != nil {
			return err
		}

		var referrer *models.User
		if buyer.ReferrerID != nil {
			referrer, err = tx.UserByID(ctx, *buyer.ReferrerID)
			if err != nil && !errors.Is(err, store.ErrUserNotFound) {
				return err
			}
		}

		totalPrice := product.Price * int64(quantity)
		if buyer.Balance < totalPrice {
			return ledger.ErrInsufficientFunds
		}

		allocated, remaining, err := s.allocate(product.ContentUnits, quantity)
		if err != nil {
			return err
		}
		if err := tx.UpdateProductInventory(ctx, product.ID, remaining); err != nil {
			return fmt.Errorf("failed to update inventory: %w", err)
		}

		if err := ledger.Debit(ctx, tx, buyer, totalPrice); err != nil {
			return err
		}

		order = &models.Order{
			OrderID:        uuid.New().String(),
			UserID:         buyer.ID,
			ProductID:      &product.ID,
			ProductName:    product.Name,
			UnitPrice:      product.Price,
			Quantity:       quantity,
			TotalPrice:     totalPrice,
			Content:        strings.Join(allocated, ContentSeparator),
			IdempotencyKey: idempotencyKey,
		}
		if err := tx.InsertOrder(ctx, order); err != nil {
			return fmt.Errorf("failed to create order: %w", err)
		}

		payment := &models.Payment{
			UserID: buyer.ID,
			Type:   models.PaymentTypePurchase,
			Amount: totalPrice,
		}
		if err := tx.InsertPayment(ctx, payment); err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		if bonus := referral.Bonus(totalPrice, referrer); bonus > 0 {
			if err := ledger.CreditBonus(ctx, tx, referrer.ID, bonus); err != nil {
				return fmt.Errorf("failed to credit referral bonus: %w", err)
			}
			util.BonusCreditedTotal.Inc()
		}

		return s.stageDelivery(ctx, tx, order, buyer)
	})
	if err != nil {
		util.PurchasesFailedTotal.WithLabelValues(failureReason(err)).Inc()
		return nil, err
	}

	util.PurchasesTotal.Inc()
	util.UnitsSoldTotal.Add(float64(quantity))
	s.logger.Info("Purchase committed",
		zap.String("order_id", order.OrderID),
		zap.Int64("user_id", buyerID),
		zap.Int64("product_id", productID),
		zap.Int("quantity", quantity),
		zap.Int64("total_price", order.TotalPrice))

	// Post-commit: delivery is someone else's problem now. The nudge only
	// shortens the outbox sweep latency.
	if s.dispatcher != nil {
		s.dispatcher.Nudge()
	}

	return order, nil
}

// stageDelivery writes the order.delivery outbox row in the purchase transaction
func (s *PurchaseService) stageDelivery(ctx context.Context, tx store.Tx, order *models.Order, buyer *models.User) error {
	event := models.OrderDeliveryEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderDelivery,
			Timestamp: time.Now(),
		},
		OrderID:     order.OrderID,
		UserID:      buyer.ID,
		UserTgID:    buyer.TgID,
		ProductName: order.ProductName,
		Quantity:    order.Quantity,
		TotalPrice:  order.TotalPrice,
		Content:     order.Content,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery event: %w", err)
	}

	outbox := &models.OutboxEvent{
		EventID:   event.EventID,
		EventType: event.EventType,
		Payload:   payload,
	}
	if err := tx.InsertOutboxEvent(ctx, outbox); err != nil {
		return fmt.Errorf("failed to stage delivery event: %w", err)
	}
	return nil
}

// Orders retrieves the buyer's purchase history
func (s *PurchaseService) Orders(ctx context.Context, userID int64) ([]models.Order, error) {
	return s.store.GetOrdersByUser(ctx, userID)
}

// Order retrieves one of the buyer's orders by its public token. Orders of
// other users are reported as not found.
func (s *PurchaseService) Order(ctx context.Context, userID int64, orderID string) (*models.Order, error) {
	order, err := s.store.GetOrderByToken(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, store.ErrOrderNotFound
	}
	return order, nil
}

// allocate guards the shared rng; rand.Rand is not safe for concurrent use.
func (s *PurchaseService) allocate(units []string, count int) (allocated, remaining []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return inventory.Allocate(s.rng, units, count)
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidQuantity):
		return "invalid_quantity"
	case errors.Is(err, store.ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, inventory.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ledger.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, store.ErrUserNotFound):
		return "user_not_found"
	default:
		return "internal"
	}
}
