package models

import (
	"time"

	"github.com/lib/pq"
)

// User represents a storefront account. Balance and BonusBalance are kept in
// cents and must never go negative.
type User struct {
	ID           int64     `db:"id" json:"id"`
	TgID         string    `db:"tg_id" json:"tg_id"`
	Username     string    `db:"username" json:"username,omitempty"`
	FirstName    string    `db:"first_name" json:"first_name,omitempty"`
	Balance      int64     `db:"balance" json:"balance"`
	BonusBalance int64     `db:"bonus_balance" json:"bonus_balance"`
	ReferralCode string    `db:"referral_code" json:"referral_code"`
	ReferrerID   *int64    `db:"referrer_id" json:"referrer_id,omitempty"`
	BonusPercent int       `db:"bonus_percent" json:"bonus_percent"`
	InvitedCount int       `db:"invited_count" json:"invited_count"`
	Role         string    `db:"role" json:"role"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Category groups products in the catalog
type Category struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Icon string `db:"icon" json:"icon,omitempty"`
}

// Product represents a digital product whose stock is a pool of individually
// sellable content units. Quantity always equals len(ContentUnits); both are
// only mutated together inside a purchase or restock transaction.
type Product struct {
	ID           int64          `db:"id" json:"id"`
	CategoryID   int64          `db:"category_id" json:"category_id"`
	Name         string         `db:"name" json:"name"`
	Description  string         `db:"description" json:"description"`
	Price        int64          `db:"price" json:"price"`
	Quantity     int            `db:"quantity" json:"quantity"`
	ContentUnits pq.StringArray `db:"content_units" json:"-"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}

// Order represents a committed purchase. It snapshots name and price so the
// record stays meaningful if the product is later changed or deleted.
// Immutable once created.
type Order struct {
	ID             int64     `db:"id" json:"id"`
	OrderID        string    `db:"order_id" json:"order_id"`
	UserID         int64     `db:"user_id" json:"user_id"`
	ProductID      *int64    `db:"product_id" json:"product_id,omitempty"`
	ProductName    string    `db:"product_name" json:"product_name"`
	UnitPrice      int64     `db:"unit_price" json:"unit_price"`
	Quantity       int       `db:"quantity" json:"quantity"`
	TotalPrice     int64     `db:"total_price" json:"total_price"`
	Content        string    `db:"content" json:"content"`
	IdempotencyKey string    `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// Payment is an append-only ledger entry. Never updated or deleted.
type Payment struct {
	ID        int64     `db:"id" json:"id"`
	UserID    int64     `db:"user_id" json:"user_id"`
	Type      string    `db:"type" json:"type"`
	Amount    int64     `db:"amount" json:"amount"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Payment types
const (
	PaymentTypePurchase   = "purchase"
	PaymentTypeWithdrawal = "withdrawal"
)

// OutboxEvent is written in the same transaction as the state change it
// reports on, then dispatched to the broker by a background worker.
type OutboxEvent struct {
	ID           int64      `db:"id" json:"id"`
	EventID      string     `db:"event_id" json:"event_id"`
	EventType    string     `db:"event_type" json:"event_type"`
	Payload      []byte     `db:"payload" json:"payload"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	DispatchedAt *time.Time `db:"dispatched_at" json:"dispatched_at,omitempty"`
}

// ReferralStats summarizes a user's referral program standing
type ReferralStats struct {
	InvitedCount int            `json:"invited_count"`
	BonusPercent int            `json:"bonus_percent"`
	BonusBalance int64          `json:"bonus_balance"`
	ReferralCode string         `json:"referral_code"`
	Referrals    []ReferralInfo `json:"referrals"`
}

// ReferralInfo is one referred user in the stats listing
type ReferralInfo struct {
	ID        int64     `db:"id" json:"id"`
	TgID      string    `db:"tg_id" json:"tg_id"`
	Username  string    `db:"username" json:"username,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
