package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// SaleLedger is the read side of the sales table. Sales are only ever written by
// the TransitionEngine, inside the same transaction that moves the unit to sold.
type SaleLedger interface {
	Get(ctx context.Context, saleID int64) (*Sale, error)
	GetByUnit(ctx context.Context, unitID int64) (*Sale, error)
	List(ctx context.Context, filter SaleFilter) ([]Sale, error)
}

type saleLedger struct {
	pool pgxQuerier
}

func NewSaleLedger(pool pgxQuerier) SaleLedger {
	return &saleLedger{pool: pool}
}

const saleColumns = `
	id, sale_code, unit_id, sold_by_user_id, customer_phone, has_package, package_type,
	amount, is_paid, sold_at, paid_at`

func scanSale(row pgx.Row) (*Sale, error) {
	var s Sale
	if err := row.Scan(&s.ID, &s.SaleCode, &s.UnitID, &s.SoldByUserID, &s.CustomerPhone, &s.HasPackage,
		&s.PackageType, &s.Amount, &s.IsPaid, &s.SoldAt, &s.PaidAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (l *saleLedger) Get(ctx context.Context, saleID int64) (*Sale, error) {
	return getSale(ctx, l.pool, "id", saleID, false)
}

func (l *saleLedger) GetByUnit(ctx context.Context, unitID int64) (*Sale, error) {
	return getSale(ctx, l.pool, "unit_id", unitID, false)
}

// getSale looks a sale up by id or unit_id. ErrNotFound when no row matches.
func getSale(ctx context.Context, q pgxQuerier, column string, id int64, forUpdate bool) (*Sale, error) {
	query := "SELECT" + saleColumns + " FROM sales WHERE " + column + " = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	s, err := scanSale(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("sale with %s %d: %w", column, id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load sale: %w", err)
	}
	return s, nil
}

func (l *saleLedger) List(ctx context.Context, f SaleFilter) ([]Sale, error) {
	var (
		conds []string
		args  []any
	)
	if f.SoldByUserID != nil {
		args = append(args, *f.SoldByUserID)
		conds = append(conds, fmt.Sprintf("sold_by_user_id = $%d", len(args)))
	}
	if f.UnpaidOnly {
		conds = append(conds, "NOT is_paid")
	}
	if f.From != nil {
		args = append(args, *f.From)
		conds = append(conds, fmt.Sprintf("sold_at >= $%d", len(args)))
	}
	if f.To != nil {
		args = append(args, *f.To)
		conds = append(conds, fmt.Sprintf("sold_at < $%d", len(args)))
	}

	query := "SELECT" + saleColumns + " FROM sales"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY sold_at DESC, id DESC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := l.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	sales := []Sale{}
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sale: %w", err)
		}
		sales = append(sales, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sales: %w", err)
	}
	return sales, nil
}

// ── Engine-only writes ────────────────────────────────────────────────────────

type newSale struct {
	UnitID        int64
	SoldByUserID  int64
	CustomerPhone *string
	PackageType   *string // nil means sold without a package
	Amount        decimal.Decimal
	Paid          bool
}

// formatSaleCode renders PREFIX-YEAR-NNNNNN.
func formatSaleCode(prefix string, year int, seq int64) string {
	return fmt.Sprintf("%s-%d-%06d", prefix, year, seq)
}

// createSaleTx draws the next sale code and inserts the sale. The unit must already be
// locked by the caller. A unique violation on unit_id means another writer sold it first.
func createSaleTx(ctx context.Context, tx pgx.Tx, prefix string, in newSale) (*Sale, error) {
	var (
		seq  int64
		year int
	)
	if err := tx.QueryRow(ctx,
		"SELECT nextval('sale_code_seq'), EXTRACT(YEAR FROM NOW())::int",
	).Scan(&seq, &year); err != nil {
		return nil, fmt.Errorf("failed to draw sale code: %w", err)
	}

	s, err := scanSale(tx.QueryRow(ctx, `
		INSERT INTO sales (sale_code, unit_id, sold_by_user_id, customer_phone, has_package, package_type,
		                   amount, is_paid, sold_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), CASE WHEN $8 THEN NOW() END)
		RETURNING`+saleColumns,
		formatSaleCode(prefix, year, seq), in.UnitID, in.SoldByUserID, in.CustomerPhone,
		in.PackageType != nil, in.PackageType, in.Amount, in.Paid,
	))
	if err != nil {
		code, constraint := pgErrorCode(err)
		switch {
		case code == pgUniqueViolation && strings.Contains(constraint, "unit_id"):
			return nil, fmt.Errorf("unit %d: %w", in.UnitID, ErrAlreadySold)
		case code == pgForeignKeyViolation:
			return nil, validationError("seller %d does not exist", in.SoldByUserID)
		case code == pgCheckViolation:
			return nil, validationError("sale for unit %d violates %s", in.UnitID, constraint)
		}
		return nil, fmt.Errorf("failed to create sale for unit %d: %w", in.UnitID, err)
	}
	return s, nil
}

// markPaidTx flips is_paid once. It reports whether this call changed the sale;
// an already-paid sale is returned untouched.
func markPaidTx(ctx context.Context, tx pgx.Tx, saleID int64) (*Sale, bool, error) {
	s, err := scanSale(tx.QueryRow(ctx, `
		UPDATE sales SET is_paid = TRUE, paid_at = NOW()
		WHERE id = $1 AND NOT is_paid
		RETURNING`+saleColumns, saleID))
	if err == nil {
		return s, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to mark sale %d paid: %w", saleID, err)
	}

	current, err := getSale(ctx, tx, "id", saleID, false)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}
