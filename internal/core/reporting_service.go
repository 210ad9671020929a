package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ── Report types ──────────────────────────────────────────────────────────────

// LeaderboardRow is one seller's totals for a period.
type LeaderboardRow struct {
	UserID      int64           `json:"user_id"`
	UserName    string          `json:"user_name"`
	UnitsSold   int             `json:"units_sold"`
	PaidCount   int             `json:"paid_count"`
	UnpaidCount int             `json:"unpaid_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// Aging buckets for unpaid sales, by whole days since the sale.
const (
	AgingBucketWeek  = "0-7"
	AgingBucketMonth = "8-30"
	AgingBucketOlder = "31+"
)

// UnpaidSale is an unpaid sale with its age.
type UnpaidSale struct {
	Sale
	SellerName string `json:"seller_name"`
	AgeDays    int    `json:"age_days"`
	Bucket     string `json:"bucket"`
}

// AgingTotal sums the unpaid sales of one bucket.
type AgingTotal struct {
	Bucket string          `json:"bucket"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// UnpaidAgingReport lists unpaid sales, oldest first, with per-bucket totals.
type UnpaidAgingReport struct {
	AsOf   time.Time    `json:"as_of"`
	Totals []AgingTotal `json:"totals"`
	Sales  []UnpaidSale `json:"sales"`
}

// CommissionLine is one seller's commission over paid sales in a period.
type CommissionLine struct {
	UserID     int64           `json:"user_id"`
	UserName   string          `json:"user_name"`
	PaidSales  int             `json:"paid_sales"`
	Amount     decimal.Decimal `json:"amount"`
	Commission decimal.Decimal `json:"commission"`
}

// ── Interface ─────────────────────────────────────────────────────────────────

// ReportingService provides read-only views over the Inventory Store and Sale Ledger.
// Reads are lock-free snapshots and may trail concurrent writes.
type ReportingService interface {
	// Leaderboard ranks sellers by units sold in [from, to). Nil bounds are open.
	Leaderboard(ctx context.Context, from, to *time.Time) ([]LeaderboardRow, error)

	// UnpaidAging lists every unpaid sale bucketed by age at asOf.
	UnpaidAging(ctx context.Context, asOf time.Time) (*UnpaidAgingReport, error)

	// Commissions applies the commission rules to paid sales sold in [from, to).
	Commissions(ctx context.Context, from, to *time.Time) ([]CommissionLine, error)
}

type reportingService struct {
	pool  pgxQuerier
	rules CommissionRules
}

// NewReportingService constructs a ReportingService.
func NewReportingService(pool pgxQuerier, rules CommissionRules) ReportingService {
	return &reportingService{pool: pool, rules: rules}
}

func (s *reportingService) Leaderboard(ctx context.Context, from, to *time.Time) ([]LeaderboardRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.sold_by_user_id,
		       COALESCE(NULLIF(u.full_name, ''), u.username),
		       COUNT(*),
		       COUNT(*) FILTER (WHERE s.is_paid),
		       COUNT(*) FILTER (WHERE NOT s.is_paid),
		       COALESCE(SUM(s.amount), 0)
		FROM sales s
		JOIN users u ON u.id = s.sold_by_user_id
		WHERE ($1::timestamptz IS NULL OR s.sold_at >= $1)
		  AND ($2::timestamptz IS NULL OR s.sold_at < $2)
		GROUP BY s.sold_by_user_id, u.full_name, u.username
		ORDER BY COUNT(*) DESC, SUM(s.amount) DESC, s.sold_by_user_id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	board := []LeaderboardRow{}
	for rows.Next() {
		var r LeaderboardRow
		if err := rows.Scan(&r.UserID, &r.UserName, &r.UnitsSold, &r.PaidCount, &r.UnpaidCount, &r.TotalAmount); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		board = append(board, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating leaderboard: %w", err)
	}
	return board, nil
}

// agingBucket classifies an unpaid sale by whole days elapsed since soldAt.
func agingBucket(soldAt, asOf time.Time) (int, string) {
	days := int(asOf.Sub(soldAt).Hours() / 24)
	if days < 0 {
		days = 0
	}
	switch {
	case days <= 7:
		return days, AgingBucketWeek
	case days <= 30:
		return days, AgingBucketMonth
	default:
		return days, AgingBucketOlder
	}
}

func (s *reportingService) UnpaidAging(ctx context.Context, asOf time.Time) (*UnpaidAgingReport, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.sale_code, s.unit_id, s.sold_by_user_id, s.customer_phone, s.has_package,
		       s.package_type, s.amount, s.is_paid, s.sold_at, s.paid_at,
		       COALESCE(NULLIF(u.full_name, ''), u.username)
		FROM sales s
		JOIN users u ON u.id = s.sold_by_user_id
		WHERE NOT s.is_paid AND s.sold_at <= $1
		ORDER BY s.sold_at, s.id
	`, asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to query unpaid sales: %w", err)
	}
	defer rows.Close()

	report := &UnpaidAgingReport{
		AsOf: asOf,
		Totals: []AgingTotal{
			{Bucket: AgingBucketWeek, Amount: decimal.Zero},
			{Bucket: AgingBucketMonth, Amount: decimal.Zero},
			{Bucket: AgingBucketOlder, Amount: decimal.Zero},
		},
	}
	index := map[string]int{AgingBucketWeek: 0, AgingBucketMonth: 1, AgingBucketOlder: 2}

	for rows.Next() {
		var us UnpaidSale
		if err := rows.Scan(&us.ID, &us.SaleCode, &us.UnitID, &us.SoldByUserID, &us.CustomerPhone, &us.HasPackage,
			&us.PackageType, &us.Amount, &us.IsPaid, &us.SoldAt, &us.PaidAt, &us.SellerName); err != nil {
			return nil, fmt.Errorf("failed to scan unpaid sale: %w", err)
		}
		us.AgeDays, us.Bucket = agingBucket(us.SoldAt, asOf)
		t := &report.Totals[index[us.Bucket]]
		t.Count++
		t.Amount = t.Amount.Add(us.Amount)
		report.Sales = append(report.Sales, us)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unpaid sales: %w", err)
	}
	return report, nil
}

func (s *reportingService) Commissions(ctx context.Context, from, to *time.Time) ([]CommissionLine, error) {
	rules, err := s.rules.List(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT s.sold_by_user_id, COALESCE(NULLIF(u.full_name, ''), u.username),
		       s.package_type, s.amount, s.sold_at
		FROM sales s
		JOIN users u ON u.id = s.sold_by_user_id
		WHERE s.is_paid
		  AND ($1::timestamptz IS NULL OR s.sold_at >= $1)
		  AND ($2::timestamptz IS NULL OR s.sold_at < $2)
		ORDER BY s.sold_by_user_id, s.sold_at
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query paid sales: %w", err)
	}
	defer rows.Close()

	lines := []CommissionLine{}
	for rows.Next() {
		var (
			userID      int64
			userName    string
			packageType *string
			amount      decimal.Decimal
			soldAt      time.Time
		)
		if err := rows.Scan(&userID, &userName, &packageType, &amount, &soldAt); err != nil {
			return nil, fmt.Errorf("failed to scan paid sale: %w", err)
		}
		if len(lines) == 0 || lines[len(lines)-1].UserID != userID {
			lines = append(lines, CommissionLine{UserID: userID, UserName: userName, Amount: decimal.Zero, Commission: decimal.Zero})
		}
		line := &lines[len(lines)-1]
		line.PaidSales++
		line.Amount = line.Amount.Add(amount)
		if rule, ok := selectRule(rules, packageType, soldAt); ok {
			line.Commission = line.Commission.Add(amount.Mul(rule.Rate).Round(2))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating paid sales: %w", err)
	}
	return lines, nil
}
