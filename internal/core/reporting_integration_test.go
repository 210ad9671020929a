package core_test

import (
	"testing"
	"time"

	"stock-tracker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sellAt sells a fresh unit and backdates the sale.
func (e *testEnv) sellAt(t *testing.T, seller int64, amount string, pkg string, paid bool, soldAt time.Time) *core.Sale {
	t.Helper()
	u := e.newUnit(t)
	intent := soldIntent(u.ID, seller)
	intent.SaleAmount = ptr(decimal.RequireFromString(amount))
	if pkg != "" {
		intent.PackageChoice = &pkg
	}
	if paid {
		p := core.PaymentPaid
		intent.PaymentStatus = &p
	}
	change, err := e.engine.ApplyIntent(e.ctx, intent)
	require.NoError(t, err)

	_, err = e.pool.Exec(e.ctx, `
		UPDATE sales SET sold_at = $1, paid_at = CASE WHEN is_paid THEN $1 END WHERE id = $2
	`, soldAt, change.Sale.ID)
	require.NoError(t, err)
	return change.Sale
}

func TestReporting_Leaderboard(t *testing.T) {
	env := setupTestDB(t)
	now := time.Now()

	env.sellAt(t, agentID, "100", "", true, now)
	env.sellAt(t, agentID, "200", "", false, now)
	env.sellAt(t, agent2ID, "500", "", true, now)

	board, err := env.reports.Leaderboard(env.ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, agentID, board[0].UserID)
	assert.Equal(t, "Alex Agent", board[0].UserName)
	assert.Equal(t, 2, board[0].UnitsSold)
	assert.Equal(t, 1, board[0].PaidCount)
	assert.Equal(t, 1, board[0].UnpaidCount)
	assert.True(t, board[0].TotalAmount.Equal(decimal.NewFromInt(300)))

	from := now.Add(time.Hour)
	empty, err := env.reports.Leaderboard(env.ctx, &from, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestReporting_UnpaidAging(t *testing.T) {
	env := setupTestDB(t)
	asOf := time.Now().UTC()

	env.sellAt(t, agentID, "10", "", false, asOf.AddDate(0, 0, -2))
	env.sellAt(t, agentID, "20", "", false, asOf.AddDate(0, 0, -10))
	env.sellAt(t, agentID, "30", "", false, asOf.AddDate(0, 0, -45))
	env.sellAt(t, agentID, "40", "", true, asOf.AddDate(0, 0, -45))

	report, err := env.reports.UnpaidAging(env.ctx, asOf)
	require.NoError(t, err)
	require.Len(t, report.Sales, 3)
	assert.Equal(t, core.AgingBucketOlder, report.Sales[0].Bucket, "oldest first")
	assert.Equal(t, 45, report.Sales[0].AgeDays)

	require.Len(t, report.Totals, 3)
	for _, total := range report.Totals {
		assert.Equal(t, 1, total.Count, total.Bucket)
	}
	assert.True(t, report.Totals[1].Amount.Equal(decimal.NewFromInt(20)))
}

func TestReporting_Commissions(t *testing.T) {
	env := setupTestDB(t)
	now := time.Now()

	env.sellAt(t, agentID, "1000", "premium", true, now) // 10%
	env.sellAt(t, agentID, "1000", "basic", true, now)   // 5% wildcard
	env.sellAt(t, agentID, "1000", "", false, now)       // unpaid, no commission
	env.sellAt(t, agent2ID, "300", "", true, now)

	lines, err := env.reports.Commissions(env.ctx, nil, nil)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	assert.Equal(t, agentID, lines[0].UserID)
	assert.Equal(t, 2, lines[0].PaidSales)
	assert.True(t, lines[0].Amount.Equal(decimal.NewFromInt(2000)))
	assert.True(t, lines[0].Commission.Equal(decimal.NewFromInt(150)), lines[0].Commission.String())

	assert.True(t, lines[1].Commission.Equal(decimal.NewFromInt(15)))

	rate, err := env.rules.ResolveRate(env.ctx, ptr("premium"), now)
	require.NoError(t, err)
	assert.True(t, rate.Equal(decimal.RequireFromString("0.10")))
}
