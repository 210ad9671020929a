package ai

import (
	"fmt"
	"strings"

	"stock-tracker/internal/core"

	"github.com/shopspring/decimal"
)

const unchanged = "unchanged"

// intentDraft is the model-facing shape of a ChangeIntent. Strict structured output
// requires every field, so absence is encoded with sentinels instead of omitted keys.
type intentDraft struct {
	TargetStatus          string  `json:"target_status" jsonschema:"enum=unchanged,enum=in_store,enum=in_hand,enum=sold"`
	PaymentStatus         string  `json:"payment_status" jsonschema:"enum=unchanged,enum=paid,enum=unpaid"`
	PackageChoice         string  `json:"package_choice"`
	CustomerPhone         string  `json:"customer_phone"`
	SaleAmount            string  `json:"sale_amount"`
	AssignTeamID          int64   `json:"assign_team_id" jsonschema_description:"team id, -1 to clear, 0 to leave unchanged"`
	AssignUserID          int64   `json:"assign_user_id" jsonschema_description:"user id, -1 to clear, 0 to leave unchanged"`
	NeedsClarification    bool    `json:"needs_clarification"`
	ClarificationQuestion string  `json:"clarification_question"`
	Confidence            float64 `json:"confidence"`
	Reasoning             string  `json:"reasoning"`
}

func (d intentDraft) toInterpretation(unitID int64) (*Interpretation, error) {
	out := &Interpretation{Confidence: d.Confidence, Reasoning: d.Reasoning}
	if d.NeedsClarification {
		out.ClarificationQuestion = strings.TrimSpace(d.ClarificationQuestion)
		if out.ClarificationQuestion == "" {
			out.ClarificationQuestion = "Could you describe the change in more detail?"
		}
		return out, nil
	}

	intent := core.ChangeIntent{UnitID: unitID}
	if d.TargetStatus != "" && d.TargetStatus != unchanged {
		s := core.UnitStatus(d.TargetStatus)
		intent.TargetStatus = &s
	}
	if d.PaymentStatus != "" && d.PaymentStatus != unchanged {
		p := core.PaymentStatus(d.PaymentStatus)
		intent.PaymentStatus = &p
	}
	if d.PackageChoice != "" {
		pkg := d.PackageChoice
		intent.PackageChoice = &pkg
	}
	if d.CustomerPhone != "" {
		phone := d.CustomerPhone
		intent.CustomerPhone = &phone
	}
	if amount := strings.TrimSpace(d.SaleAmount); amount != "" {
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("%w: model returned an invalid sale amount %q", core.ErrValidation, amount)
		}
		intent.SaleAmount = &v
	}
	intent.AssignTeamID = draftID(d.AssignTeamID)
	intent.AssignUserID = draftID(d.AssignUserID)

	intent.Normalize()
	if err := intent.ValidateDraft(); err != nil {
		return nil, fmt.Errorf("proposal validation failed: %w", err)
	}

	out.Intent = &intent
	return out, nil
}

func draftID(v int64) core.Nullable[int64] {
	switch {
	case v > 0:
		return core.Some(v)
	case v < 0:
		return core.Null[int64]()
	default:
		return core.Nullable[int64]{}
	}
}
