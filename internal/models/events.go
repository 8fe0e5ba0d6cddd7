package models

import "time"

// Event types
const (
	EventTypeOrderDelivery = "ORDER_DELIVERY"
	EventTypeBroadcast     = "BROADCAST"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderDeliveryEvent carries a committed order and its allocated content to
// the delivery worker. Published from the outbox after the purchase commits.
type OrderDeliveryEvent struct {
	BaseEvent
	OrderID     string `json:"order_id"`
	UserID      int64  `json:"user_id"`
	UserTgID    string `json:"user_tg_id"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	TotalPrice  int64  `json:"total_price"`
	Content     string `json:"content"`
}

// BroadcastEvent carries an admin announcement to all users
type BroadcastEvent struct {
	BaseEvent
	Title string `json:"title"`
}
