package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StockLedger appends and corrects ledger entries and keeps the cached
// warehouse total in step with them.
type StockLedger struct {
	core *core
}

// RecordTransaction inserts an active entry and applies its signed quantity
// to the product's total balance.
func (l *StockLedger) RecordTransaction(ctx context.Context, in RecordInput) (Transaction, error) {
	if err := l.core.validateRecord(in); err != nil {
		return Transaction{}, err
	}
	var out Transaction
	err := l.core.run(ctx, func(ctx context.Context, u *unit) error {
		before, err := l.core.lock(ctx, u, in.ProductID)
		if err != nil {
			return err
		}
		if in.ConsignmentNoteID != nil {
			if _, err := u.tx.GetConsignmentNote(ctx, *in.ConsignmentNoteID); err != nil {
				return err
			}
		}
		out, err = l.core.insertTransaction(ctx, u, in)
		if err != nil {
			return err
		}
		return l.core.guard(ctx, u, before, in.Quantity, "record_"+string(in.Type))
	})
	if err != nil {
		return Transaction{}, err
	}
	return out, nil
}

// DeactivateTransaction reverses the effect of an entry. Deactivating an
// inactive entry is a no-op.
func (l *StockLedger) DeactivateTransaction(ctx context.Context, id uuid.UUID) error {
	return l.core.run(ctx, func(ctx context.Context, u *unit) error {
		current, before, err := l.core.lockTransaction(ctx, u, id)
		if err != nil {
			return err
		}
		if !current.IsActive {
			return nil
		}
		if _, err := l.core.setActive(ctx, u, current, false); err != nil {
			return err
		}
		return l.core.guard(ctx, u, before, current.Quantity, "deactivate")
	})
}

// UpdateTransactionQuantity changes the quantity of an entry; the total
// balance moves by the signed delta when the entry is active.
func (l *StockLedger) UpdateTransactionQuantity(ctx context.Context, id uuid.UUID, quantity int64) (Transaction, error) {
	if quantity <= 0 {
		return Transaction{}, ErrInvalidQuantity
	}
	var out Transaction
	err := l.core.run(ctx, func(ctx context.Context, u *unit) error {
		current, before, err := l.core.lockTransaction(ctx, u, id)
		if err != nil {
			return err
		}
		out, err = l.core.setQuantity(ctx, u, current, quantity)
		if err != nil {
			return err
		}
		return l.core.guard(ctx, u, before, quantity, "update_quantity")
	})
	if err != nil {
		return Transaction{}, err
	}
	return out, nil
}

// GetTransaction loads one entry.
func (l *StockLedger) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return l.core.repo.GetTransaction(ctx, id)
}

// ListTransactions lists entries ordered by creation time.
func (l *StockLedger) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.To.Before(filter.From) {
		return nil, fmt.Errorf("%w: range end before start", ErrValidation)
	}
	return l.core.repo.ListTransactions(ctx, filter)
}

// CreateConsignmentNote registers a supplier document. Number and date are
// unique together.
func (l *StockLedger) CreateConsignmentNote(ctx context.Context, number string, date time.Time) (ConsignmentNote, error) {
	in := ConsignmentNoteInput{Number: strings.TrimSpace(number), ConsignmentDate: date}
	if err := l.core.validate.Struct(in); err != nil {
		return ConsignmentNote{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	now := l.core.now()
	note := ConsignmentNote{
		ID:              uuid.New(),
		Number:          in.Number,
		ConsignmentDate: startOfDay(date),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	err := l.core.run(ctx, func(ctx context.Context, u *unit) error {
		return u.tx.InsertConsignmentNote(ctx, note)
	})
	if err != nil {
		return ConsignmentNote{}, err
	}
	return note, nil
}

// GetConsignmentNote loads one note.
func (l *StockLedger) GetConsignmentNote(ctx context.Context, id uuid.UUID) (ConsignmentNote, error) {
	return l.core.repo.GetConsignmentNote(ctx, id)
}

func (c *core) validateRecord(in RecordInput) error {
	if in.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidTransactionType, in.Type)
	}
	if err := c.validate.Struct(in); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// lockTransaction locks the owning warehouse first, then the entry, so the
// lock order matches every other writer.
func (c *core) lockTransaction(ctx context.Context, u *unit, id uuid.UUID) (Transaction, Balance, error) {
	peek, err := u.tx.GetTransaction(ctx, id)
	if err != nil {
		return Transaction{}, Balance{}, err
	}
	before, err := c.lock(ctx, u, peek.ProductID)
	if err != nil {
		return Transaction{}, Balance{}, err
	}
	current, err := u.tx.LockTransaction(ctx, id)
	if err != nil {
		return Transaction{}, Balance{}, err
	}
	return current, before, nil
}

func (c *core) insertTransaction(ctx context.Context, u *unit, in RecordInput) (Transaction, error) {
	t := Transaction{
		ID:                uuid.New(),
		ProductID:         in.ProductID,
		ConsignmentNoteID: in.ConsignmentNoteID,
		OrderID:           in.OrderID,
		Type:              in.Type,
		Quantity:          in.Quantity,
		Comment:           in.Comment,
		IsActive:          true,
		CreatedAt:         u.at,
		UpdatedAt:         u.at,
	}
	if err := u.tx.InsertTransaction(ctx, t); err != nil {
		return Transaction{}, fmt.Errorf("insert transaction: %w", err)
	}
	if _, err := u.tx.AddToTotalBalance(ctx, t.ProductID, t.Effect(), u.at); err != nil {
		return Transaction{}, err
	}
	u.emit(StockEvent{
		Type:          EventTransactionRecorded,
		ProductID:     t.ProductID,
		OrderID:       t.OrderID,
		TransactionID: ptr(t.ID),
		TxType:        t.Type,
		Quantity:      t.Quantity,
	})
	c.auditTransaction(u, t, "inventory:"+string(t.Type))
	return t, nil
}

func (c *core) setActive(ctx context.Context, u *unit, t Transaction, active bool) (Transaction, error) {
	if t.IsActive == active {
		return t, nil
	}
	delta := t.Type.Signed(t.Quantity)
	evt := EventTransactionReactivated
	if !active {
		delta = -delta
		evt = EventTransactionDeactivated
	}
	t.IsActive = active
	t.UpdatedAt = u.at
	if err := u.tx.UpdateTransaction(ctx, t); err != nil {
		return Transaction{}, err
	}
	if _, err := u.tx.AddToTotalBalance(ctx, t.ProductID, delta, u.at); err != nil {
		return Transaction{}, err
	}
	u.emit(StockEvent{
		Type:          evt,
		ProductID:     t.ProductID,
		OrderID:       t.OrderID,
		TransactionID: ptr(t.ID),
		TxType:        t.Type,
		Quantity:      t.Quantity,
	})
	c.auditTransaction(u, t, "inventory:"+string(t.Type)+":"+strings.TrimPrefix(string(evt), "transaction."))
	return t, nil
}

func (c *core) setQuantity(ctx context.Context, u *unit, t Transaction, quantity int64) (Transaction, error) {
	if t.Quantity == quantity {
		return t, nil
	}
	var delta int64
	if t.IsActive {
		delta = t.Type.Signed(quantity) - t.Type.Signed(t.Quantity)
	}
	t.Quantity = quantity
	t.UpdatedAt = u.at
	if err := u.tx.UpdateTransaction(ctx, t); err != nil {
		return Transaction{}, err
	}
	if delta != 0 {
		if _, err := u.tx.AddToTotalBalance(ctx, t.ProductID, delta, u.at); err != nil {
			return Transaction{}, err
		}
	}
	u.emit(StockEvent{
		Type:          EventTransactionQuantityChanged,
		ProductID:     t.ProductID,
		OrderID:       t.OrderID,
		TransactionID: ptr(t.ID),
		TxType:        t.Type,
		Quantity:      quantity,
	})
	c.auditTransaction(u, t, "inventory:"+string(t.Type)+":quantity_changed")
	return t, nil
}
