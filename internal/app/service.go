package app

import (
	"context"
	"errors"
	"time"

	"stock-tracker/internal/core"
)

// ErrForbidden is returned when an actor's role does not allow the operation.
var ErrForbidden = errors.New("forbidden")

// ErrAIUnavailable is returned by ProposeFromText when no interpreter is configured.
var ErrAIUnavailable = errors.New("AI interpreter not configured")

// Actor is the caller identity asserted by the identity layer. The service trusts
// the role; it only checks that the user still exists and is active.
type Actor struct {
	UserID int64
	Role   core.Role
}

// ApplicationService is the single interface the web adapter calls.
// It decouples presentation from business logic. Implementations must contain
// no display logic of any kind.
type ApplicationService interface {
	// CheckActor verifies that the actor is an active user with the asserted role.
	CheckActor(ctx context.Context, actor Actor) (*core.User, error)

	// ListUnits returns units matching the filter. Lock-free snapshot.
	ListUnits(ctx context.Context, filter core.UnitFilter) (*UnitListResult, error)

	// GetUnit returns a unit with its assignment and, when sold, its sale.
	GetUnit(ctx context.Context, unitID int64) (*UnitDetailResult, error)

	// CreateUnits adds stock. One row goes through Create, several through CreateMany.
	// Duplicate physical identifiers are reported as warnings, not rejected.
	CreateUnits(ctx context.Context, actor Actor, units []core.NewUnit) (*CreateUnitsResult, error)

	// SubmitChange routes an intent by role: admins apply it directly, agents queue it
	// for approval.
	SubmitChange(ctx context.Context, actor Actor, req ChangeRequest) (*ChangeResult, error)

	// ProposeFromText asks the AI interpreter to turn free text into an intent and queues
	// it for approval regardless of the actor's role.
	ProposeFromText(ctx context.Context, actor Actor, req TextProposalRequest) (*AIResult, error)

	// BulkSetStatus moves each unit to status, continuing past per-unit failures.
	BulkSetStatus(ctx context.Context, actor Actor, req BulkStatusRequest) (*BulkOutcome, error)

	// BulkAssign merges the same assignment into each unit.
	BulkAssign(ctx context.Context, actor Actor, req BulkAssignRequest) (*BulkOutcome, error)

	// DeleteUnits hard-deletes units. Irreversible; the request must carry Confirm.
	DeleteUnits(ctx context.Context, actor Actor, req DeleteUnitsRequest) (*core.DeleteResult, error)

	ListSales(ctx context.Context, filter core.SaleFilter) (*SaleListResult, error)
	GetSale(ctx context.Context, saleID int64) (*SaleDetailResult, error)

	// MarkPaid flips a sale to paid; already-paid sales are returned unchanged.
	MarkPaid(ctx context.Context, actor Actor, saleID int64) (*core.Sale, error)

	ListPending(ctx context.Context, actor Actor) (*PendingListResult, error)
	ListDecided(ctx context.Context, actor Actor, limit int) (*PendingListResult, error)

	// ApprovePending replays a pending update through the engine. On engine refusal
	// the update stays pending and the engine error is returned.
	ApprovePending(ctx context.Context, actor Actor, pendingID int64) (*core.AppliedChange, error)
	RejectPending(ctx context.Context, actor Actor, pendingID int64, reason string) (*core.PendingUpdate, error)

	Leaderboard(ctx context.Context, actor Actor, from, to *time.Time) ([]core.LeaderboardRow, error)
	UnpaidAging(ctx context.Context, actor Actor, asOf time.Time) (*core.UnpaidAgingReport, error)
	Commissions(ctx context.Context, actor Actor, from, to *time.Time) ([]core.CommissionLine, error)
}
