package report

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-inventory/internal/inventory"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "02.01.2006 15:04:05"
)

// ErrInvalidRange indicates a report range whose end precedes its start.
var ErrInvalidRange = errors.New("report: invalid date range")

// Source is the read side of the inventory repository.
type Source interface {
	ListWarehouses(ctx context.Context) ([]inventory.Warehouse, error)
	ListTransactions(ctx context.Context, filter inventory.TransactionFilter) ([]inventory.Transaction, error)
}

// Range selects transactions created from From through the whole day of To.
// The range applies only when both ends are set.
type Range struct {
	From time.Time
	To   time.Time
}

func (r Range) bounded() bool {
	return !r.From.IsZero() && !r.To.IsZero()
}

// TransactionRow is one active ledger entry in the report.
type TransactionRow struct {
	ID        uuid.UUID `json:"id" xml:"id,attr"`
	Type      string    `json:"transaction_type" xml:"type"`
	Quantity  int64     `json:"quantity" xml:"quantity"`
	Comment   string    `json:"comment" xml:"comment"`
	CreatedAt string    `json:"created_at" xml:"created_at"`
}

// WarehouseRow summarises one product.
type WarehouseRow struct {
	ID              uuid.UUID        `json:"id" xml:"id,attr"`
	ProductID       uuid.UUID        `json:"product_id" xml:"product_id"`
	TotalBalance    int64            `json:"total_balance" xml:"total_balance"`
	SoldItems       int64            `json:"sold_items" xml:"sold_items"`
	WrittenOffItems int64            `json:"written_off_items" xml:"written_off_items"`
	ReturnedItems   int64            `json:"returned_items" xml:"returned_items"`
	Transactions    []TransactionRow `json:"transactions" xml:"transactions>transaction"`
}

// Report is the warehouse report document.
type Report struct {
	XMLName     xml.Name       `json:"-" xml:"warehouse_report"`
	From        string         `json:"from,omitempty" xml:"from,attr,omitempty"`
	To          string         `json:"to,omitempty" xml:"to,attr,omitempty"`
	GeneratedAt time.Time      `json:"generated_at" xml:"generated_at,attr"`
	Warehouses  []WarehouseRow `json:"warehouses" xml:"warehouse"`
}

// Builder assembles reports from the ledger.
type Builder struct {
	source Source
	now    func() time.Time
}

// NewBuilder constructs a Builder.
func NewBuilder(source Source) *Builder {
	return &Builder{source: source, now: func() time.Time { return time.Now().UTC() }}
}

// Build lists every warehouse with its active transactions in rng.
func (b *Builder) Build(ctx context.Context, rng Range) (Report, error) {
	if b == nil || b.source == nil {
		return Report{}, errors.New("report: builder not initialised")
	}
	if rng.bounded() && rng.To.Before(rng.From) {
		return Report{}, fmt.Errorf("%w: %s is before %s", ErrInvalidRange, rng.To.Format(dateLayout), rng.From.Format(dateLayout))
	}
	warehouses, err := b.source.ListWarehouses(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("report: list warehouses: %w", err)
	}
	filter := inventory.TransactionFilter{ActiveOnly: true}
	rep := Report{GeneratedAt: b.now(), Warehouses: make([]WarehouseRow, 0, len(warehouses))}
	if rng.bounded() {
		filter.From, filter.To = rng.From, rng.To
		rep.From, rep.To = rng.From.Format(dateLayout), rng.To.Format(dateLayout)
	}
	entries, err := b.source.ListTransactions(ctx, filter)
	if err != nil {
		return Report{}, fmt.Errorf("report: list transactions: %w", err)
	}

	byProduct := make(map[uuid.UUID][]inventory.Transaction)
	for _, t := range entries {
		byProduct[t.ProductID] = append(byProduct[t.ProductID], t)
	}
	for _, wh := range warehouses {
		row := WarehouseRow{
			ID:           wh.ID,
			ProductID:    wh.ProductID,
			TotalBalance: wh.TotalBalance,
			Transactions: []TransactionRow{},
		}
		for _, t := range byProduct[wh.ProductID] {
			switch t.Type {
			case inventory.TransactionTypeOrder:
				row.SoldItems += t.Quantity
			case inventory.TransactionTypeWriteOff:
				row.WrittenOffItems += t.Quantity
			case inventory.TransactionTypeReturn:
				row.ReturnedItems += t.Quantity
			}
			row.Transactions = append(row.Transactions, TransactionRow{
				ID:        t.ID,
				Type:      string(t.Type),
				Quantity:  t.Quantity,
				Comment:   t.Comment,
				CreatedAt: t.CreatedAt.Format(timestampLayout),
			})
		}
		rep.Warehouses = append(rep.Warehouses, row)
	}
	return rep, nil
}

// ParseDate parses a YYYY-MM-DD query value. Empty input yields zero time.
func ParseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", ErrInvalidRange, value)
	}
	return t, nil
}
