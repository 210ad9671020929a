package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// CommissionRule maps a package type (nil matches any) to a commission rate on the sale amount.
type CommissionRule struct {
	ID          int64           `json:"id"`
	PackageType *string         `json:"package_type,omitempty"`
	Rate        decimal.Decimal `json:"rate"`
	Priority    int             `json:"priority"`
	EffectiveTo *time.Time      `json:"effective_to,omitempty"`
}

// CommissionRules resolves configurable commission rates from the commission_rules table.
type CommissionRules interface {
	List(ctx context.Context) ([]CommissionRule, error)
	// ResolveRate returns the rate for a sale of packageType on the given day.
	// Returns ErrNotFound if no rule applies.
	ResolveRate(ctx context.Context, packageType *string, on time.Time) (decimal.Decimal, error)
}

type commissionRules struct {
	pool pgxQuerier
}

// NewCommissionRules constructs CommissionRules backed by the commission_rules table.
func NewCommissionRules(pool pgxQuerier) CommissionRules {
	return &commissionRules{pool: pool}
}

func (r *commissionRules) List(ctx context.Context) ([]CommissionRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, package_type, rate, priority, effective_to
		FROM commission_rules
		ORDER BY priority DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query commission rules: %w", err)
	}
	defer rows.Close()

	rules := []CommissionRule{}
	for rows.Next() {
		var c CommissionRule
		if err := rows.Scan(&c.ID, &c.PackageType, &c.Rate, &c.Priority, &c.EffectiveTo); err != nil {
			return nil, fmt.Errorf("failed to scan commission rule: %w", err)
		}
		rules = append(rules, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating commission rules: %w", err)
	}
	return rules, nil
}

func (r *commissionRules) ResolveRate(ctx context.Context, packageType *string, on time.Time) (decimal.Decimal, error) {
	rules, err := r.List(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	rule, ok := selectRule(rules, packageType, on)
	if !ok {
		pkg := "<none>"
		if packageType != nil {
			pkg = *packageType
		}
		return decimal.Zero, fmt.Errorf("commission rule for package %q: %w", pkg, ErrNotFound)
	}
	return rule.Rate, nil
}

// selectRule picks the applicable rule: an exact package match beats a wildcard,
// then the highest priority wins. Expired rules (effective_to before on) are skipped.
func selectRule(rules []CommissionRule, packageType *string, on time.Time) (CommissionRule, bool) {
	day := on.Truncate(24 * time.Hour)
	var (
		best  CommissionRule
		found bool
	)
	for _, c := range rules {
		if c.EffectiveTo != nil && c.EffectiveTo.Before(day) {
			continue
		}
		if c.PackageType != nil && (packageType == nil || *c.PackageType != *packageType) {
			continue
		}
		if !found || ruleBeats(c, best) {
			best, found = c, true
		}
	}
	return best, found
}

func ruleBeats(a, b CommissionRule) bool {
	aExact, bExact := a.PackageType != nil, b.PackageType != nil
	if aExact != bExact {
		return aExact
	}
	return a.Priority > b.Priority
}
