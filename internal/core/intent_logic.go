package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

var validate = validator.New()

// ChangeIntent is one caller's requested set of field changes on a unit.
// Pointer fields are absent when nil. Assignment fields use Nullable so that an
// explicit null (clear the assignment) differs from an absent field (leave it).
type ChangeIntent struct {
	UnitID        int64            `json:"unit_id" validate:"gt=0"`
	TargetStatus  *UnitStatus      `json:"target_status,omitempty" validate:"omitempty,oneof=in_store in_hand sold"`
	PaymentStatus *PaymentStatus   `json:"payment_status,omitempty" validate:"omitempty,oneof=paid unpaid"`
	PackageChoice *string          `json:"package_choice,omitempty" validate:"omitempty,max=64"`
	CustomerPhone *string          `json:"customer_phone,omitempty" validate:"omitempty,max=32"`
	SaleAmount    *decimal.Decimal `json:"sale_amount,omitempty"`
	SoldByUserID  *int64           `json:"sold_by_user_id,omitempty" validate:"omitempty,gt=0"`
	AssignTeamID  Nullable[int64]  `json:"assign_team_id,omitzero"`
	AssignUserID  Nullable[int64]  `json:"assign_user_id,omitzero"`
}

// TargetsSold reports whether the intent asks for a sale.
func (i *ChangeIntent) TargetsSold() bool {
	return i.TargetStatus != nil && *i.TargetStatus == StatusSold
}

// HasAssignment reports whether the intent touches the Assignment Index.
func (i *ChangeIntent) HasAssignment() bool {
	return i.AssignTeamID.Set || i.AssignUserID.Set
}

// AssignmentPatch returns the assignment part of the intent.
func (i *ChangeIntent) AssignmentPatch() AssignmentPatch {
	return AssignmentPatch{TeamID: i.AssignTeamID, UserID: i.AssignUserID}
}

// IsEmpty reports whether the intent would change nothing.
func (i *ChangeIntent) IsEmpty() bool {
	return i.TargetStatus == nil && i.PaymentStatus == nil && !i.HasAssignment() && !i.hasSaleFields()
}

func (i *ChangeIntent) hasSaleFields() bool {
	return i.PackageChoice != nil || i.CustomerPhone != nil || i.SaleAmount != nil || i.SoldByUserID != nil
}

// Normalize cleans caller input: trims text fields, lower-cases enum-like values
// and drops empty strings so that they count as absent.
func (i *ChangeIntent) Normalize() {
	if i.TargetStatus != nil {
		s := UnitStatus(strings.ToLower(strings.TrimSpace(string(*i.TargetStatus))))
		if s == "" {
			i.TargetStatus = nil
		} else {
			i.TargetStatus = &s
		}
	}
	if i.PaymentStatus != nil {
		p := PaymentStatus(strings.ToLower(strings.TrimSpace(string(*i.PaymentStatus))))
		if p == "" {
			i.PaymentStatus = nil
		} else {
			i.PaymentStatus = &p
		}
	}
	i.PackageChoice = trimmedOrNil(i.PackageChoice)
	if i.PackageChoice != nil && strings.EqualFold(*i.PackageChoice, PackageNone) {
		none := PackageNone
		i.PackageChoice = &none
	}
	i.CustomerPhone = trimmedOrNil(i.CustomerPhone)
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	t := strings.TrimSpace(*s)
	if t == "" || strings.EqualFold(t, "null") {
		return nil
	}
	return &t
}

// Validate checks the intent's shape without looking at the unit's current state.
// State-dependent rules (transitions, existing sales) are the engine's job.
// Every failure wraps ErrValidation.
func (i *ChangeIntent) Validate() error {
	return i.validate(true)
}

// ValidateDraft is Validate without the seller requirement, for proposals whose
// seller is filled in later from the requester.
func (i *ChangeIntent) ValidateDraft() error {
	return i.validate(false)
}

func (i *ChangeIntent) validate(requireSeller bool) error {
	if err := validate.Struct(i); err != nil {
		return validationError("%s", describeValidation(err))
	}

	if i.IsEmpty() {
		return validationError("intent for unit %d changes nothing", i.UnitID)
	}

	if i.TargetStatus != nil && *i.TargetStatus != StatusSold {
		if i.PaymentStatus != nil {
			return validationError("payment status cannot be combined with target status %s", *i.TargetStatus)
		}
	}

	if i.hasSaleFields() && !i.TargetsSold() {
		return validationError("sale attributes require target status %s", StatusSold)
	}

	if requireSeller && i.TargetsSold() && i.SoldByUserID == nil {
		return validationError("sold_by_user_id is required when target status is %s", StatusSold)
	}

	if i.SaleAmount != nil && i.SaleAmount.IsNegative() {
		return validationError("sale amount cannot be negative, got %s", i.SaleAmount)
	}

	if i.AssignTeamID.Valid && i.AssignTeamID.Value <= 0 {
		return validationError("assign_team_id must be positive, got %d", i.AssignTeamID.Value)
	}
	if i.AssignUserID.Valid && i.AssignUserID.Value <= 0 {
		return validationError("assign_user_id must be positive, got %d", i.AssignUserID.Value)
	}

	return nil
}

// validateNewUnit runs struct validation on a unit creation request.
func validateNewUnit(u NewUnit) error {
	if err := validate.Struct(u); err != nil {
		return validationError("%s", describeValidation(err))
	}
	return nil
}

// describeValidation renders validator errors as "field: rule" pairs.
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s: %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			parts = append(parts, fmt.Sprintf("%s: %s", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
