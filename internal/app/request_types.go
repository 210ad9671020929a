package app

import "stock-tracker/internal/core"

// ChangeRequest is the input for SubmitChange.
type ChangeRequest struct {
	UnitID int64
	Intent core.ChangeIntent
	Note   string // shown to the approver when the change is queued
}

// TextProposalRequest is the input for ProposeFromText.
type TextProposalRequest struct {
	UnitID int64
	Text   string
}

// BulkStatusRequest is the input for BulkSetStatus.
type BulkStatusRequest struct {
	UnitIDs []int64
	Status  core.UnitStatus
}

// BulkAssignRequest is the input for BulkAssign.
type BulkAssignRequest struct {
	UnitIDs []int64
	Patch   core.AssignmentPatch
}

// DeleteUnitsRequest is the input for DeleteUnits.
type DeleteUnitsRequest struct {
	UnitIDs []int64
	Confirm bool
}
