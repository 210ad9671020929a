package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// TransitionEngine is the only code path that changes a unit's status or writes the
// Sale Ledger. Each intent runs under the unit's lock in one transaction.
type TransitionEngine interface {
	// ApplyIntent locks the unit, applies every part of the intent atomically and
	// returns what changed.
	ApplyIntent(ctx context.Context, intent ChangeIntent) (*AppliedChange, error)
	// ApplyIntentTx applies the intent inside the caller's transaction. The caller must
	// already hold the unit's lock (see UnitLocker) and is responsible for commit or rollback.
	ApplyIntentTx(ctx context.Context, tx pgx.Tx, intent ChangeIntent) (*AppliedChange, error)
	// MarkPaid flips the sale to paid. Calling it on a paid sale returns the sale unchanged.
	MarkPaid(ctx context.Context, saleID int64) (*Sale, error)
	// BulkSetStatus applies a status intent to each unit in turn, continuing past failures.
	// actorID is recorded as the seller when status is sold.
	BulkSetStatus(ctx context.Context, unitIDs []int64, status UnitStatus, actorID int64) ([]BulkResult, error)
}

// EngineOptions tunes a TransitionEngine. Zero values fall back to defaults.
type EngineOptions struct {
	SaleCodePrefix string
	BulkMaxUnits   int
	Metrics        MetricsRecorder
}

const (
	defaultSaleCodePrefix = "SL"
	defaultBulkMaxUnits   = 500
)

type transitionEngine struct {
	pool    txBeginner
	locker  UnitLocker
	prefix  string
	maxBulk int
	metrics MetricsRecorder
}

func NewTransitionEngine(pool txBeginner, locker UnitLocker, opts EngineOptions) TransitionEngine {
	e := &transitionEngine{
		pool:    pool,
		locker:  locker,
		prefix:  opts.SaleCodePrefix,
		maxBulk: opts.BulkMaxUnits,
		metrics: opts.Metrics,
	}
	if e.prefix == "" {
		e.prefix = defaultSaleCodePrefix
	}
	if e.maxBulk <= 0 {
		e.maxBulk = defaultBulkMaxUnits
	}
	if e.metrics == nil {
		e.metrics = NoopMetrics()
	}
	return e
}

func (e *transitionEngine) ApplyIntent(ctx context.Context, intent ChangeIntent) (change *AppliedChange, err error) {
	defer observe(ctx, e.metrics, "apply_intent", time.Now(), &err)

	intent.Normalize()
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	unlock, err := e.locker.Lock(ctx, intent.UnitID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	change, err = e.apply(ctx, tx, intent)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit intent for unit %d: %w", intent.UnitID, err)
	}
	return change, nil
}

func (e *transitionEngine) ApplyIntentTx(ctx context.Context, tx pgx.Tx, intent ChangeIntent) (*AppliedChange, error) {
	intent.Normalize()
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	return e.apply(ctx, tx, intent)
}

// apply runs the state machine against the live, row-locked unit.
func (e *transitionEngine) apply(ctx context.Context, tx pgx.Tx, intent ChangeIntent) (*AppliedChange, error) {
	unit, err := getUnit(ctx, tx, intent.UnitID, true)
	if err != nil {
		return nil, err
	}
	change := &AppliedChange{PreviousStatus: unit.Status}

	switch {
	case intent.TargetStatus != nil:
		if err := e.applyStatus(ctx, tx, unit, intent, change); err != nil {
			return nil, err
		}
	case intent.PaymentStatus != nil:
		if err := e.applyPayment(ctx, tx, unit, *intent.PaymentStatus, change); err != nil {
			return nil, err
		}
	}

	if intent.HasAssignment() {
		rec, err := upsertAssignmentTx(ctx, tx, unit.ID, intent.AssignmentPatch())
		if err != nil {
			return nil, err
		}
		change.Assignment = rec
	}

	change.Unit, err = getUnit(ctx, tx, unit.ID, false)
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (e *transitionEngine) applyStatus(ctx context.Context, tx pgx.Tx, unit *Unit, intent ChangeIntent, change *AppliedChange) error {
	target := *intent.TargetStatus

	if target == StatusSold {
		return e.sell(ctx, tx, unit, intent, change)
	}
	if target == unit.Status {
		return nil
	}
	if !CanTransition(unit.Status, target) {
		return fmt.Errorf("unit %d %s → %s: %w", unit.ID, unit.Status, target, ErrInvalidTransition)
	}
	if err := setStatusTx(ctx, tx, unit.ID, target); err != nil {
		return err
	}
	change.StatusChanged = true
	return nil
}

func (e *transitionEngine) sell(ctx context.Context, tx pgx.Tx, unit *Unit, intent ChangeIntent, change *AppliedChange) error {
	if unit.Status == StatusSold {
		return fmt.Errorf("unit %d: %w", unit.ID, ErrAlreadySold)
	}
	// A sale without a sold status would break the unit/sale invariant; refuse it all the same.
	if _, err := getSale(ctx, tx, "unit_id", unit.ID, false); err == nil {
		return fmt.Errorf("unit %d has a sale but status %s: %w", unit.ID, unit.Status, ErrAlreadySold)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if !CanTransition(unit.Status, StatusSold) {
		return fmt.Errorf("unit %d %s → %s: %w", unit.ID, unit.Status, StatusSold, ErrInvalidTransition)
	}
	if intent.SoldByUserID == nil {
		return validationError("sold_by_user_id is required to sell unit %d", unit.ID)
	}

	in := newSale{
		UnitID:        unit.ID,
		SoldByUserID:  *intent.SoldByUserID,
		CustomerPhone: intent.CustomerPhone,
		Amount:        decimal.Zero,
		Paid:          intent.PaymentStatus != nil && *intent.PaymentStatus == PaymentPaid,
	}
	if intent.PackageChoice != nil && *intent.PackageChoice != PackageNone {
		in.PackageType = intent.PackageChoice
	}
	if intent.SaleAmount != nil {
		in.Amount = *intent.SaleAmount
	}

	sale, err := createSaleTx(ctx, tx, e.prefix, in)
	if err != nil {
		return err
	}
	if err := setStatusTx(ctx, tx, unit.ID, StatusSold); err != nil {
		return err
	}
	change.Sale = sale
	change.SaleCreated = true
	change.StatusChanged = true
	change.PaymentChanged = sale.IsPaid
	return nil
}

// applyPayment handles an intent that carries a payment status but no target status.
// Only sold units have a payment state; paid is one-way.
func (e *transitionEngine) applyPayment(ctx context.Context, tx pgx.Tx, unit *Unit, status PaymentStatus, change *AppliedChange) error {
	if unit.Status != StatusSold {
		return validationError("unit %d is %s; payment status applies to sold units only", unit.ID, unit.Status)
	}
	sale, err := getSale(ctx, tx, "unit_id", unit.ID, true)
	if err != nil {
		return err
	}

	switch status {
	case PaymentPaid:
		updated, changed, err := markPaidTx(ctx, tx, sale.ID)
		if err != nil {
			return err
		}
		sale = updated
		change.PaymentChanged = changed
	case PaymentUnpaid:
		if sale.IsPaid {
			return fmt.Errorf("sale %s is paid and cannot return to unpaid: %w", sale.SaleCode, ErrInvalidTransition)
		}
	}
	change.Sale = sale
	return nil
}

func (e *transitionEngine) MarkPaid(ctx context.Context, saleID int64) (sale *Sale, err error) {
	defer observe(ctx, e.metrics, "mark_paid", time.Now(), &err)

	current, err := getSale(ctx, e.pool, "id", saleID, false)
	if err != nil {
		return nil, err
	}
	if current.IsPaid {
		return current, nil
	}

	unlock, err := e.locker.Lock(ctx, current.UnitID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := e.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := getUnit(ctx, tx, current.UnitID, true); err != nil {
		return nil, err
	}
	sale, _, err = markPaidTx(ctx, tx, saleID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit payment of sale %d: %w", saleID, err)
	}
	return sale, nil
}

func (e *transitionEngine) BulkSetStatus(ctx context.Context, unitIDs []int64, status UnitStatus, actorID int64) ([]BulkResult, error) {
	ids := dedupeIDs(unitIDs)
	if len(ids) == 0 {
		return nil, validationError("no units to update")
	}
	if len(ids) > e.maxBulk {
		return nil, validationError("batch of %d units exceeds the limit of %d", len(ids), e.maxBulk)
	}
	if !status.Valid() {
		return nil, validationError("unknown status %q", status)
	}
	if status == StatusSold && actorID <= 0 {
		return nil, validationError("a seller is required to bulk-sell units")
	}

	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		intent := ChangeIntent{UnitID: id, TargetStatus: &status}
		if status == StatusSold {
			seller := actorID
			intent.SoldByUserID = &seller
		}
		_, err := e.ApplyIntent(ctx, intent)
		results = append(results, newBulkResult(id, err))
	}
	return results, nil
}
