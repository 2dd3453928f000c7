package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-inventory/internal/platform/db"
)

const pgUniqueViolation = "23505"

// Reader exposes queries usable inside and outside a transaction.
type Reader interface {
	GetWarehouse(ctx context.Context, productID uuid.UUID) (Warehouse, error)
	ListWarehouses(ctx context.Context) ([]Warehouse, error)
	ListActiveReserves(ctx context.Context, productID uuid.UUID) ([]Reserve, error)
	ActiveOrderQuantities(ctx context.Context, productID uuid.UUID) (map[uuid.UUID]int64, error)
	GetActiveReserve(ctx context.Context, orderID, productID uuid.UUID) (*Reserve, error)
	ListOrderReserves(ctx context.Context, orderID uuid.UUID) ([]Reserve, error)
	GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error)
	GetConsignmentNote(ctx context.Context, id uuid.UUID) (ConsignmentNote, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Reader
	LockWarehouse(ctx context.Context, productID uuid.UUID) (Warehouse, error)
	InsertWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error)
	AddToTotalBalance(ctx context.Context, productID uuid.UUID, delta int64, at time.Time) (int64, error)
	InsertTransaction(ctx context.Context, tx Transaction) error
	LockTransaction(ctx context.Context, id uuid.UUID) (Transaction, error)
	UpdateTransaction(ctx context.Context, tx Transaction) error
	FindOrderTransaction(ctx context.Context, orderID, productID uuid.UUID, typ TransactionType) (*Transaction, error)
	InsertConsignmentNote(ctx context.Context, note ConsignmentNote) error
	InsertReserve(ctx context.Context, r Reserve) error
	UpdateReserve(ctx context.Context, r Reserve) error
}

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	Reader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type queries struct {
	db dbtx
}

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	*queries
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{queries: &queries{db: pool}, pool: pool}
}

type txRepo struct {
	*queries
}

// WithTx executes the callback inside a read-committed transaction. Row locks
// taken with FOR UPDATE serialise writers per product.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, db.LockingTxOptions, func(tx pgx.Tx) error {
		return fn(ctx, r.Bind(tx))
	})
}

// Bind exposes the transactional operations on a transaction owned by the caller.
func (r *Repository) Bind(tx pgx.Tx) TxRepository {
	return &txRepo{queries: &queries{db: tx}}
}

const warehouseColumns = `id, product_id, total_balance, is_active, created_at, updated_at`

func scanWarehouse(row pgx.Row) (Warehouse, error) {
	var wh Warehouse
	err := row.Scan(&wh.ID, &wh.ProductID, &wh.TotalBalance, &wh.IsActive, &wh.CreatedAt, &wh.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Warehouse{}, ErrWarehouseNotFound
	}
	return wh, err
}

func (q *queries) GetWarehouse(ctx context.Context, productID uuid.UUID) (Warehouse, error) {
	return scanWarehouse(q.db.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouse WHERE product_id=$1`, productID))
}

func (q *queries) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	rows, err := q.db.Query(ctx, `SELECT `+warehouseColumns+` FROM warehouse ORDER BY product_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Warehouse
	for rows.Next() {
		wh, err := scanWarehouse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, wh)
	}
	return out, rows.Err()
}

const reserveColumns = `id, order_id, product_id, quantity, is_active, created_at, updated_at`

func scanReserve(row pgx.Row) (Reserve, error) {
	var r Reserve
	err := row.Scan(&r.ID, &r.OrderID, &r.ProductID, &r.Quantity, &r.IsActive, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func (q *queries) listReserves(ctx context.Context, sql string, arg uuid.UUID) ([]Reserve, error) {
	rows, err := q.db.Query(ctx, sql, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Reserve
	for rows.Next() {
		r, err := scanReserve(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *queries) ListActiveReserves(ctx context.Context, productID uuid.UUID) ([]Reserve, error) {
	return q.listReserves(ctx, `SELECT `+reserveColumns+` FROM reserve WHERE product_id=$1 AND is_active ORDER BY created_at, id`, productID)
}

func (q *queries) ListOrderReserves(ctx context.Context, orderID uuid.UUID) ([]Reserve, error) {
	return q.listReserves(ctx, `SELECT `+reserveColumns+` FROM reserve WHERE order_id=$1 ORDER BY product_id, created_at`, orderID)
}

func (q *queries) GetActiveReserve(ctx context.Context, orderID, productID uuid.UUID) (*Reserve, error) {
	r, err := scanReserve(q.db.QueryRow(ctx, `SELECT `+reserveColumns+` FROM reserve WHERE order_id=$1 AND product_id=$2 AND is_active`, orderID, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (q *queries) ActiveOrderQuantities(ctx context.Context, productID uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT order_id, SUM(quantity) FROM stock_transaction
WHERE product_id=$1 AND type=$2 AND is_active AND order_id IS NOT NULL
GROUP BY order_id`, productID, string(TransactionTypeOrder))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uuid.UUID]int64)
	for rows.Next() {
		var orderID uuid.UUID
		var qty int64
		if err := rows.Scan(&orderID, &qty); err != nil {
			return nil, err
		}
		out[orderID] = qty
	}
	return out, rows.Err()
}

const transactionColumns = `id, product_id, consignment_note_id, order_id, type, quantity, comment, is_active, created_at, updated_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var typ string
	err := row.Scan(&t.ID, &t.ProductID, &t.ConsignmentNoteID, &t.OrderID, &typ, &t.Quantity, &t.Comment, &t.IsActive, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	t.Type = TransactionType(typ)
	return t, err
}

func (q *queries) GetTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return scanTransaction(q.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM stock_transaction WHERE id=$1`, id))
}

func (q *queries) ListTransactions(ctx context.Context, filter TransactionFilter) ([]Transaction, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.ProductID != nil {
		add("product_id=$%d", *filter.ProductID)
	}
	if filter.OrderID != nil {
		add("order_id=$%d", *filter.OrderID)
	}
	from, to := filter.Bounds()
	if !from.IsZero() {
		add("created_at >= $%d", from)
	}
	if !to.IsZero() {
		add("created_at < $%d", to)
	}
	if filter.ActiveOnly {
		conds = append(conds, "is_active")
	}
	sql := `SELECT ` + transactionColumns + ` FROM stock_transaction`
	if len(conds) > 0 {
		sql += ` WHERE ` + strings.Join(conds, " AND ")
	}
	sql += ` ORDER BY created_at, id`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		sql += fmt.Sprintf(` LIMIT $%d`, len(args))
	}

	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Transaction{}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *queries) GetConsignmentNote(ctx context.Context, id uuid.UUID) (ConsignmentNote, error) {
	var note ConsignmentNote
	err := q.db.QueryRow(ctx, `SELECT id, number, consignment_date, created_at, updated_at FROM consignment_note WHERE id=$1`, id).
		Scan(&note.ID, &note.Number, &note.ConsignmentDate, &note.CreatedAt, &note.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ConsignmentNote{}, ErrConsignmentNoteNotFound
	}
	return note, err
}

func (r *txRepo) LockWarehouse(ctx context.Context, productID uuid.UUID) (Warehouse, error) {
	return scanWarehouse(r.db.QueryRow(ctx, `SELECT `+warehouseColumns+` FROM warehouse WHERE product_id=$1 FOR UPDATE`, productID))
}

func (r *txRepo) InsertWarehouse(ctx context.Context, wh Warehouse) (Warehouse, error) {
	if _, err := r.db.Exec(ctx, `INSERT INTO warehouse (`+warehouseColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (product_id) DO NOTHING`, wh.ID, wh.ProductID, wh.TotalBalance, wh.IsActive, wh.CreatedAt, wh.UpdatedAt); err != nil {
		return Warehouse{}, err
	}
	return r.GetWarehouse(ctx, wh.ProductID)
}

func (r *txRepo) AddToTotalBalance(ctx context.Context, productID uuid.UUID, delta int64, at time.Time) (int64, error) {
	var total int64
	err := r.db.QueryRow(ctx, `UPDATE warehouse SET total_balance = total_balance + $2, updated_at=$3 WHERE product_id=$1 RETURNING total_balance`, productID, delta, at).Scan(&total)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrWarehouseNotFound
	}
	return total, err
}

func (r *txRepo) InsertTransaction(ctx context.Context, t Transaction) error {
	_, err := r.db.Exec(ctx, `INSERT INTO stock_transaction (`+transactionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, t.ID, t.ProductID, t.ConsignmentNoteID, t.OrderID, string(t.Type), t.Quantity, t.Comment, t.IsActive, t.CreatedAt, t.UpdatedAt)
	return mapForeignKey(err)
}

func (r *txRepo) LockTransaction(ctx context.Context, id uuid.UUID) (Transaction, error) {
	return scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM stock_transaction WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepo) UpdateTransaction(ctx context.Context, t Transaction) error {
	tag, err := r.db.Exec(ctx, `UPDATE stock_transaction SET quantity=$2, is_active=$3, updated_at=$4 WHERE id=$1`, t.ID, t.Quantity, t.IsActive, t.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *txRepo) FindOrderTransaction(ctx context.Context, orderID, productID uuid.UUID, typ TransactionType) (*Transaction, error) {
	t, err := scanTransaction(r.db.QueryRow(ctx, `SELECT `+transactionColumns+` FROM stock_transaction
WHERE order_id=$1 AND product_id=$2 AND type=$3
ORDER BY is_active DESC, created_at DESC
LIMIT 1`, orderID, productID, string(typ)))
	if errors.Is(err, ErrTransactionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *txRepo) InsertConsignmentNote(ctx context.Context, note ConsignmentNote) error {
	_, err := r.db.Exec(ctx, `INSERT INTO consignment_note (id, number, consignment_date, created_at, updated_at) VALUES ($1,$2,$3,$4,$5)`,
		note.ID, note.Number, note.ConsignmentDate, note.CreatedAt, note.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrDuplicateConsignmentNote
	}
	return err
}

func (r *txRepo) InsertReserve(ctx context.Context, res Reserve) error {
	_, err := r.db.Exec(ctx, `INSERT INTO reserve (`+reserveColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		res.ID, res.OrderID, res.ProductID, res.Quantity, res.IsActive, res.CreatedAt, res.UpdatedAt)
	return err
}

func (r *txRepo) UpdateReserve(ctx context.Context, res Reserve) error {
	_, err := r.db.Exec(ctx, `UPDATE reserve SET quantity=$2, is_active=$3, updated_at=$4 WHERE id=$1`, res.ID, res.Quantity, res.IsActive, res.UpdatedAt)
	return err
}

func mapForeignKey(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" && pgErr.ConstraintName == "stock_transaction_consignment_note_id_fkey" {
		return ErrConsignmentNoteNotFound
	}
	return err
}
