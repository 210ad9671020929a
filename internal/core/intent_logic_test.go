package core_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"stock-tracker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to core.UnitStatus
		want     bool
	}{
		{core.StatusInStore, core.StatusInHand, true},
		{core.StatusInStore, core.StatusSold, true},
		{core.StatusInHand, core.StatusSold, true},
		{core.StatusInHand, core.StatusInStore, false},
		{core.StatusSold, core.StatusInHand, false},
		{core.StatusSold, core.StatusInStore, false},
		{core.StatusSold, core.StatusSold, false},
		{core.StatusInStore, core.StatusInStore, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, core.CanTransition(tt.from, tt.to), "%s → %s", tt.from, tt.to)
	}
}

func TestChangeIntent_NormalizationAndValidation(t *testing.T) {
	tests := []struct {
		name      string
		intent    core.ChangeIntent
		expectErr bool
	}{
		{
			name:   "status only",
			intent: core.ChangeIntent{UnitID: 1, TargetStatus: ptr(core.StatusInHand)},
		},
		{
			name:   "upper-case status is normalized",
			intent: core.ChangeIntent{UnitID: 1, TargetStatus: ptr(core.UnitStatus(" IN_HAND "))},
		},
		{
			name: "sale with seller and package",
			intent: core.ChangeIntent{
				UnitID:        1,
				TargetStatus:  ptr(core.StatusSold),
				PaymentStatus: ptr(core.PaymentUnpaid),
				PackageChoice: ptr("premium"),
				SoldByUserID:  ptr(int64(7)),
			},
		},
		{
			name:   "assignment only",
			intent: core.ChangeIntent{UnitID: 1, AssignTeamID: core.Some(int64(3))},
		},
		{
			name:   "clearing the user is a change",
			intent: core.ChangeIntent{UnitID: 1, AssignUserID: core.Null[int64]()},
		},
		{
			name:   "payment only",
			intent: core.ChangeIntent{UnitID: 1, PaymentStatus: ptr(core.PaymentPaid)},
		},
		{
			name:      "missing unit id",
			intent:    core.ChangeIntent{TargetStatus: ptr(core.StatusInHand)},
			expectErr: true,
		},
		{
			name:      "empty intent",
			intent:    core.ChangeIntent{UnitID: 1},
			expectErr: true,
		},
		{
			name:      "blank strings count as absent",
			intent:    core.ChangeIntent{UnitID: 1, CustomerPhone: ptr("  ")},
			expectErr: true,
		},
		{
			name:      "unknown status",
			intent:    core.ChangeIntent{UnitID: 1, TargetStatus: ptr(core.UnitStatus("lost"))},
			expectErr: true,
		},
		{
			name:      "sold without seller",
			intent:    core.ChangeIntent{UnitID: 1, TargetStatus: ptr(core.StatusSold)},
			expectErr: true,
		},
		{
			name:      "payment with non-sold target",
			intent:    core.ChangeIntent{UnitID: 1, TargetStatus: ptr(core.StatusInHand), PaymentStatus: ptr(core.PaymentPaid)},
			expectErr: true,
		},
		{
			name:      "sale fields without sold target",
			intent:    core.ChangeIntent{UnitID: 1, CustomerPhone: ptr("0700000000")},
			expectErr: true,
		},
		{
			name: "negative amount",
			intent: core.ChangeIntent{
				UnitID:       1,
				TargetStatus: ptr(core.StatusSold),
				SoldByUserID: ptr(int64(7)),
				SaleAmount:   ptr(decimal.NewFromInt(-5)),
			},
			expectErr: true,
		},
		{
			name:      "non-positive team id",
			intent:    core.ChangeIntent{UnitID: 1, AssignTeamID: core.Some(int64(0))},
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := tt.intent
			intent.Normalize()
			err := intent.Validate()
			if tt.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, core.ErrValidation)
				assert.Equal(t, "validation", core.ErrorCode(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestChangeIntent_ValidateDraftSkipsSeller(t *testing.T) {
	intent := core.ChangeIntent{UnitID: 1, TargetStatus: ptr(core.StatusSold)}
	assert.ErrorIs(t, intent.Validate(), core.ErrValidation)
	assert.NoError(t, intent.ValidateDraft())
}

func TestChangeIntent_NormalizeCanonicalizesNone(t *testing.T) {
	intent := core.ChangeIntent{UnitID: 1, TargetStatus: ptr(core.StatusSold), PackageChoice: ptr(" NONE ")}
	intent.Normalize()
	require.NotNil(t, intent.PackageChoice)
	assert.Equal(t, core.PackageNone, *intent.PackageChoice)
}

func TestChangeIntent_AssignmentPresence(t *testing.T) {
	var intent core.ChangeIntent
	require.NoError(t, json.Unmarshal([]byte(`{"unit_id": 4, "assign_team_id": 9, "assign_user_id": null}`), &intent))

	assert.True(t, intent.HasAssignment())
	patch := intent.AssignmentPatch()
	assert.Equal(t, core.Some(int64(9)), patch.TeamID)
	assert.True(t, patch.UserID.Set)
	assert.False(t, patch.UserID.Valid)

	var absent core.ChangeIntent
	require.NoError(t, json.Unmarshal([]byte(`{"unit_id": 4, "target_status": "in_hand"}`), &absent))
	assert.False(t, absent.HasAssignment())
	assert.True(t, absent.AssignmentPatch().IsEmpty())
}

func TestChangeIntent_StoredFormRoundTrips(t *testing.T) {
	// The approval queue persists intents as JSON; presence must survive storage.
	intent := core.ChangeIntent{
		UnitID:       4,
		TargetStatus: ptr(core.StatusSold),
		SoldByUserID: ptr(int64(2)),
		SaleAmount:   ptr(decimal.RequireFromString("1499.50")),
		AssignUserID: core.Null[int64](),
	}
	data, err := json.Marshal(intent)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"assign_user_id":null`)
	assert.NotContains(t, string(data), "assign_team_id")

	var back core.ChangeIntent
	require.NoError(t, json.Unmarshal(data, &back))
	assert.False(t, back.AssignTeamID.Set)
	assert.True(t, back.AssignUserID.Set)
	assert.False(t, back.AssignUserID.Valid)
	assert.True(t, back.SaleAmount.Equal(decimal.RequireFromString("1499.50")))
}

func TestNullable_Ptr(t *testing.T) {
	assert.Nil(t, core.Nullable[int64]{}.Ptr())
	assert.Nil(t, core.Null[int64]().Ptr())
	assert.Equal(t, int64(5), *core.Some(int64(5)).Ptr())
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "ok", core.ErrorCode(nil))
	assert.Equal(t, "not_found", core.ErrorCode(wrap(core.ErrNotFound)))
	assert.Equal(t, "invalid_transition", core.ErrorCode(wrap(core.ErrInvalidTransition)))
	assert.Equal(t, "already_sold", core.ErrorCode(wrap(core.ErrAlreadySold)))
	assert.Equal(t, "already_decided", core.ErrorCode(wrap(core.ErrAlreadyDecided)))
	assert.Equal(t, "busy", core.ErrorCode(wrap(core.ErrUnitBusy)))
	assert.Equal(t, "internal", core.ErrorCode(assert.AnError))
}

func wrap(err error) error {
	return fmt.Errorf("unit 9: %w", err)
}
