package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-inventory/internal/platform/broker"
)

// EventType names an outbound stock event.
type EventType string

const (
	EventTransactionRecorded        EventType = "transaction.recorded"
	EventTransactionDeactivated     EventType = "transaction.deactivated"
	EventTransactionReactivated     EventType = "transaction.reactivated"
	EventTransactionQuantityChanged EventType = "transaction.quantity_changed"
	EventReservePlaced              EventType = "reserve.placed"
	EventReserveReleased            EventType = "reserve.released"
	EventOrderSynced                EventType = "order.synced"
)

// StockEvent is published after a write commits.
type StockEvent struct {
	ID            uuid.UUID       `json:"id"`
	Type          EventType       `json:"type"`
	ProductID     uuid.UUID       `json:"product_id"`
	OrderID       *uuid.UUID      `json:"order_id,omitempty"`
	TransactionID *uuid.UUID      `json:"transaction_id,omitempty"`
	ReserveID     *uuid.UUID      `json:"reserve_id,omitempty"`
	TxType        TransactionType `json:"transaction_type,omitempty"`
	Status        OrderStatus     `json:"status,omitempty"`
	Quantity      int64           `json:"quantity"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// EventPublisher receives committed stock events.
type EventPublisher interface {
	Publish(ctx context.Context, evt StockEvent) error
}

// MessagePublisher is the broker side of BrokerPublisher.
type MessagePublisher interface {
	Publish(ctx context.Context, msg broker.Message) error
}

// BrokerPublisher adapts a broker to EventPublisher, keyed by product so
// events of one product stay ordered on a partition.
type BrokerPublisher struct {
	pub MessagePublisher
}

// NewBrokerPublisher wraps pub.
func NewBrokerPublisher(pub MessagePublisher) *BrokerPublisher {
	return &BrokerPublisher{pub: pub}
}

// Publish implements EventPublisher.
func (p *BrokerPublisher) Publish(ctx context.Context, evt StockEvent) error {
	if p == nil || p.pub == nil {
		return nil
	}
	return p.pub.Publish(ctx, broker.Message{
		Key:   evt.ProductID.String(),
		Type:  string(evt.Type),
		Time:  evt.OccurredAt,
		Value: evt,
	})
}
