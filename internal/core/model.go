package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// UnitStatus is the lifecycle state of a physical unit.
type UnitStatus string

const (
	StatusInStore UnitStatus = "in_store"
	StatusInHand  UnitStatus = "in_hand"
	StatusSold    UnitStatus = "sold"
)

func (s UnitStatus) Valid() bool {
	switch s {
	case StatusInStore, StatusInHand, StatusSold:
		return true
	}
	return false
}

// CanTransition reports whether the state machine allows moving from one status to another.
// Same-status moves are not transitions; callers treat them separately.
//
//	in_store → in_hand
//	in_store → sold
//	in_hand  → sold
func CanTransition(from, to UnitStatus) bool {
	switch from {
	case StatusInStore:
		return to == StatusInHand || to == StatusSold
	case StatusInHand:
		return to == StatusSold
	}
	return false
}

// UnitKind describes what was shipped as one unit.
type UnitKind string

const (
	KindFullSet     UnitKind = "full_set"
	KindDecoderOnly UnitKind = "decoder_only"
)

// PaymentStatus is the requested payment state of a sale.
type PaymentStatus string

const (
	PaymentPaid   PaymentStatus = "paid"
	PaymentUnpaid PaymentStatus = "unpaid"
)

// PackageNone is the package choice meaning "sold without a subscription package".
const PackageNone = "none"

// Decision is the state of a PendingUpdate.
type Decision string

const (
	DecisionPending  Decision = "pending"
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// Unit is one row of the Inventory Store. AssignedTeamID/AssignedUserID are read
// from the Assignment Index and are never written through the unit itself.
type Unit struct {
	ID             int64      `json:"id"`
	BatchNumber    string     `json:"batch_number"`
	Smartcard      string     `json:"smartcard"`
	SerialNumber   string     `json:"serial_number"`
	Kind           UnitKind   `json:"kind"`
	Status         UnitStatus `json:"status"`
	RegionID       *int64     `json:"region_id,omitempty"`
	AssignedTeamID *int64     `json:"assigned_team_id,omitempty"`
	AssignedUserID *int64     `json:"assigned_user_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// NewUnit is the input for creating a unit. Status always starts at in_store.
type NewUnit struct {
	BatchNumber  string   `json:"batch_number" validate:"max=64"`
	Smartcard    string   `json:"smartcard" validate:"required_without=SerialNumber,max=64"`
	SerialNumber string   `json:"serial_number" validate:"required_without=Smartcard,max=64"`
	Kind         UnitKind `json:"kind" validate:"required,oneof=full_set decoder_only"`
	RegionID     *int64   `json:"region_id,omitempty" validate:"omitempty,gt=0"`
}

// UnitFilter narrows Inventory Store listings. Zero values mean "any".
type UnitFilter struct {
	Status      *UnitStatus
	Kind        *UnitKind
	BatchNumber string
	RegionID    *int64
	TeamID      *int64
	UserID      *int64
	Query       string // substring of smartcard or serial number
	Limit       int
	Offset      int
}

// Sale is one row of the Sale Ledger, created exactly once when its unit is sold.
type Sale struct {
	ID            int64           `json:"id"`
	SaleCode      string          `json:"sale_code"`
	UnitID        int64           `json:"unit_id"`
	SoldByUserID  int64           `json:"sold_by_user_id"`
	CustomerPhone *string         `json:"customer_phone,omitempty"`
	HasPackage    bool            `json:"has_package"`
	PackageType   *string         `json:"package_type,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	IsPaid        bool            `json:"is_paid"`
	SoldAt        time.Time       `json:"sold_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
}

// SaleFilter narrows Sale Ledger listings.
type SaleFilter struct {
	SoldByUserID *int64
	UnpaidOnly   bool
	From         *time.Time
	To           *time.Time
	Limit        int
}

// AssignmentRecord is the Assignment Index entry of one unit.
type AssignmentRecord struct {
	UnitID     int64     `json:"unit_id"`
	TeamID     *int64    `json:"team_id"`
	TeamName   string    `json:"team_name"`
	UserID     *int64    `json:"user_id"`
	UserName   string    `json:"user_name"`
	AssignedAt time.Time `json:"assigned_at"`
}

// AssignmentPatch is a merge update: absent fields are kept, null fields are cleared.
type AssignmentPatch struct {
	TeamID Nullable[int64] `json:"team_id,omitzero"`
	UserID Nullable[int64] `json:"user_id,omitzero"`
}

func (p AssignmentPatch) IsEmpty() bool {
	return !p.TeamID.Set && !p.UserID.Set
}

// PendingUpdate is an Approval Queue row: a serialized ChangeIntent plus the unit
// snapshot shown to the approver. The snapshot is never applied.
type PendingUpdate struct {
	ID              int64        `json:"id"`
	UnitID          int64        `json:"unit_id"`
	Smartcard       string       `json:"smartcard"`
	SerialNumber    string       `json:"serial_number"`
	Kind            UnitKind     `json:"kind"`
	StatusAtRequest UnitStatus   `json:"status_at_request"`
	Intent          ChangeIntent `json:"intent"`
	Note            string       `json:"note,omitempty"`
	RequestedBy     int64        `json:"requested_by"`
	RequestedAt     time.Time    `json:"requested_at"`
	Decision        Decision     `json:"decision"`
	DecidedBy       *int64       `json:"decided_by,omitempty"`
	DecidedAt       *time.Time   `json:"decided_at,omitempty"`
	DecisionNote    string       `json:"decision_note,omitempty"`
	LastError       *string      `json:"last_error,omitempty"`
	LastAttemptAt   *time.Time   `json:"last_attempt_at,omitempty"`
}

// AppliedChange is what one intent did to a unit.
type AppliedChange struct {
	Unit           *Unit             `json:"unit"`
	PreviousStatus UnitStatus        `json:"previous_status"`
	StatusChanged  bool              `json:"status_changed"`
	Sale           *Sale             `json:"sale,omitempty"`
	SaleCreated    bool              `json:"sale_created"`
	PaymentChanged bool              `json:"payment_changed"`
	Assignment     *AssignmentRecord `json:"assignment,omitempty"`
}

// BulkResult is the per-unit outcome of a bulk operation.
type BulkResult struct {
	UnitID  int64  `json:"unit_id"`
	OK      bool   `json:"ok"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

func newBulkResult(unitID int64, err error) BulkResult {
	if err == nil {
		return BulkResult{UnitID: unitID, OK: true}
	}
	return BulkResult{UnitID: unitID, Reason: ErrorCode(err), Message: err.Error(), Err: err}
}

// DeleteResult reports a DeleteMany call.
type DeleteResult struct {
	Deleted []int64 `json:"deleted"`
	Missing []int64 `json:"missing"`
}
