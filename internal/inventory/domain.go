package inventory

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType enumerates supported stock movements.
type TransactionType string

const (
	// TransactionTypeArrival records goods received from a supplier.
	TransactionTypeArrival TransactionType = "arrival"
	// TransactionTypeReturn records goods coming back from a customer.
	TransactionTypeReturn TransactionType = "return"
	// TransactionTypeInventory records a positive stock-take correction.
	TransactionTypeInventory TransactionType = "inventory"
	// TransactionTypeOrder records stock committed to a customer order.
	TransactionTypeOrder TransactionType = "order"
	// TransactionTypeWriteOff records damaged or lost goods.
	TransactionTypeWriteOff TransactionType = "write-off"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeArrival, TransactionTypeReturn, TransactionTypeInventory,
		TransactionTypeOrder, TransactionTypeWriteOff:
		return true
	default:
		return false
	}
}

// IsCredit reports whether the type adds stock to the warehouse.
func (t TransactionType) IsCredit() bool {
	return t == TransactionTypeArrival || t == TransactionTypeReturn || t == TransactionTypeInventory
}

// Signed returns the effect of qty units of this type on total balance.
func (t TransactionType) Signed(qty int64) int64 {
	if t.IsCredit() {
		return qty
	}
	return -qty
}

// OrderStatus mirrors the order subsystem lifecycle.
type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "NEW"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusSent       OrderStatus = "SENT"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusExecuted   OrderStatus = "EXECUTED"
	OrderStatusCanceled   OrderStatus = "CANCELED"
	OrderStatusReturned   OrderStatus = "RETURNED"
	OrderStatusIssue      OrderStatus = "ISSUE"
)

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	_, ok := statusPlans[s]
	return ok
}

// Warehouse stores the cached physical balance of one product.
type Warehouse struct {
	ID           uuid.UUID
	ProductID    uuid.UUID
	TotalBalance int64
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ConsignmentNote is the paper document grouping stock movements.
type ConsignmentNote struct {
	ID              uuid.UUID
	Number          string
	ConsignmentDate time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Transaction is a ledger entry. Entries are never deleted; IsActive
// controls whether the quantity counts toward the balance.
type Transaction struct {
	ID                uuid.UUID
	ProductID         uuid.UUID
	ConsignmentNoteID *uuid.UUID
	OrderID           *uuid.UUID
	Type              TransactionType
	Quantity          int64
	Comment           string
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Effect is the signed contribution of the entry to total balance.
func (t Transaction) Effect() int64 {
	if !t.IsActive {
		return 0
	}
	return t.Type.Signed(t.Quantity)
}

// Reserve is a soft hold of stock for a pending order.
type Reserve struct {
	ID        uuid.UUID
	OrderID   uuid.UUID
	ProductID uuid.UUID
	Quantity  int64
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ReserveTotals aggregates active reserves of one product. Unposted is the
// part of the reserves not yet debited by an active ORDER entry of the same order.
type ReserveTotals struct {
	Reserved int64
	Unposted int64
}

// Balance is a point-in-time view of a product's stock.
type Balance struct {
	ProductID uuid.UUID `json:"product_id"`
	Total     int64     `json:"total_balance"`
	Reserved  int64     `json:"reserved_quantity"`
	Unposted  int64     `json:"unposted_reserve"`
	Free      int64     `json:"free_balance"`
}

func newBalance(productID uuid.UUID, total int64, totals ReserveTotals) Balance {
	return Balance{
		ProductID: productID,
		Total:     total,
		Reserved:  totals.Reserved,
		Unposted:  totals.Unposted,
		Free:      total - totals.Unposted,
	}
}

// OrderItem is the part of an order line the inventory core needs.
type OrderItem struct {
	ProductID uuid.UUID
	Quantity  int64
}

// OrderRef is the minimal order view handed over by the order subsystem.
type OrderRef struct {
	ID     uuid.UUID
	Status OrderStatus
	Items  []OrderItem
}

// RecordInput describes a ledger write.
type RecordInput struct {
	ProductID         uuid.UUID       `validate:"required"`
	Type              TransactionType `validate:"required"`
	Quantity          int64
	ConsignmentNoteID *uuid.UUID
	OrderID           *uuid.UUID
	Comment           string `validate:"max=2000"`
}

// ConsignmentNoteInput describes a new consignment note.
type ConsignmentNoteInput struct {
	Number          string    `validate:"required,max=13"`
	ConsignmentDate time.Time `validate:"required"`
}

// TransactionFilter narrows ListTransactions. From/To are inclusive calendar
// days; zero values leave the range open.
type TransactionFilter struct {
	ProductID  *uuid.UUID
	OrderID    *uuid.UUID
	From       time.Time
	To         time.Time
	ActiveOnly bool
	Limit      int
}

// Bounds returns the half-open creation window [From, To+1day). A zero end
// means the range is open on that side.
func (f TransactionFilter) Bounds() (from, to time.Time) {
	if !f.From.IsZero() {
		from = startOfDay(f.From)
	}
	if !f.To.IsZero() {
		to = startOfDay(f.To).AddDate(0, 0, 1)
	}
	return from, to
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ViolationKind names the class of an inconsistency.
type ViolationKind string

const (
	// ViolationNegativeFree means free balance dropped below zero.
	ViolationNegativeFree ViolationKind = "negative_free_balance"
	// ViolationLedgerDrift means the cached total differs from the ledger sum.
	ViolationLedgerDrift ViolationKind = "ledger_drift"
	// ViolationOrphanReserve means an active reserve has no active ORDER entry.
	ViolationOrphanReserve ViolationKind = "orphan_reserve"
)

// Violation describes one consistency problem found on read.
type Violation struct {
	Kind      ViolationKind `json:"kind"`
	ProductID uuid.UUID     `json:"product_id"`
	OrderID   *uuid.UUID    `json:"order_id,omitempty"`
	Expected  int64         `json:"expected"`
	Actual    int64         `json:"actual"`
}
