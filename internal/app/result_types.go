package app

import (
	"stock-tracker/internal/core"

	"github.com/shopspring/decimal"
)

// UnitListResult is returned by ListUnits.
type UnitListResult struct {
	Units []core.Unit `json:"units"`
}

// UnitDetailResult is returned by GetUnit.
type UnitDetailResult struct {
	Unit       *core.Unit             `json:"unit"`
	Assignment *core.AssignmentRecord `json:"assignment"`
	Sale       *core.Sale             `json:"sale,omitempty"`
}

// CreateUnitsResult is returned by CreateUnits.
type CreateUnitsResult struct {
	Units    []core.Unit `json:"units"`
	Warnings []string    `json:"warnings,omitempty"`
}

// ChangeResult is returned by SubmitChange. Exactly one of Applied and Pending is set.
type ChangeResult struct {
	Applied *core.AppliedChange `json:"applied,omitempty"`
	Pending *core.PendingUpdate `json:"pending,omitempty"`
}

// IsQueued reports whether the change went to the approval queue.
func (r *ChangeResult) IsQueued() bool { return r.Pending != nil }

// AIResult is returned by ProposeFromText.
type AIResult struct {
	Pending              *core.PendingUpdate `json:"pending,omitempty"`
	ClarificationMessage string              `json:"clarification_message,omitempty"`
	IsClarification      bool                `json:"is_clarification"`
	Confidence           float64             `json:"confidence"`
	Reasoning            string              `json:"reasoning,omitempty"`
}

// BulkOutcome is returned by the bulk operations.
type BulkOutcome struct {
	Results   []core.BulkResult `json:"results"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
}

func newBulkOutcome(results []core.BulkResult) *BulkOutcome {
	out := &BulkOutcome{Results: results}
	for _, r := range results {
		if r.OK {
			out.Succeeded++
		} else {
			out.Failed++
		}
	}
	return out
}

// SaleListResult is returned by ListSales.
type SaleListResult struct {
	Sales []core.Sale `json:"sales"`
}

// SaleDetailResult is returned by GetSale. CommissionRate is nil when no rule applies.
type SaleDetailResult struct {
	Sale           *core.Sale       `json:"sale"`
	CommissionRate *decimal.Decimal `json:"commission_rate,omitempty"`
}

// PendingListResult is returned by ListPending and ListDecided.
type PendingListResult struct {
	Updates []core.PendingUpdate `json:"updates"`
}
