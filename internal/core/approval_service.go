package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// ApprovalQueue holds intents proposed by unprivileged actors until an admin decides.
// Approval replays the stored intent through the TransitionEngine against the live unit;
// the snapshot taken at submission is for display only.
type ApprovalQueue interface {
	// Submit validates the intent's shape, snapshots the unit and stores a pending update.
	Submit(ctx context.Context, unitID int64, intent ChangeIntent, requestedBy int64, note string) (*PendingUpdate, error)
	Get(ctx context.Context, id int64) (*PendingUpdate, error)
	ListPending(ctx context.Context) ([]PendingUpdate, error)
	ListDecided(ctx context.Context, limit int) ([]PendingUpdate, error)
	// Approve applies the stored intent and marks the update approved in one transaction.
	// When the engine refuses the intent the update stays pending, the failure is recorded
	// on it and the engine's error is returned.
	Approve(ctx context.Context, id, approverID int64) (*AppliedChange, error)
	// Reject closes a pending update without touching inventory, sales or assignments.
	Reject(ctx context.Context, id, approverID int64, reason string) (*PendingUpdate, error)
}

const defaultDecidedLimit = 50

type approvalQueue struct {
	pool    txBeginner
	engine  TransitionEngine
	locker  UnitLocker
	metrics MetricsRecorder
}

func NewApprovalQueue(pool txBeginner, engine TransitionEngine, locker UnitLocker, metrics MetricsRecorder) ApprovalQueue {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &approvalQueue{pool: pool, engine: engine, locker: locker, metrics: metrics}
}

const pendingColumns = `
	id, unit_id, smartcard, serial_number, kind, status_at_request, intent, note,
	requested_by, requested_at, decision, decided_by, decided_at, decision_note,
	last_error, last_attempt_at`

func scanPending(row pgx.Row) (*PendingUpdate, error) {
	var p PendingUpdate
	if err := row.Scan(&p.ID, &p.UnitID, &p.Smartcard, &p.SerialNumber, &p.Kind, &p.StatusAtRequest,
		&p.Intent, &p.Note, &p.RequestedBy, &p.RequestedAt, &p.Decision, &p.DecidedBy, &p.DecidedAt,
		&p.DecisionNote, &p.LastError, &p.LastAttemptAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func getPending(ctx context.Context, q pgxQuerier, id int64, forUpdate bool) (*PendingUpdate, error) {
	query := "SELECT" + pendingColumns + " FROM pending_updates WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}
	p, err := scanPending(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("pending update %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load pending update %d: %w", id, err)
	}
	return p, nil
}

func (q *approvalQueue) Submit(ctx context.Context, unitID int64, intent ChangeIntent, requestedBy int64, note string) (p *PendingUpdate, err error) {
	defer observe(ctx, q.metrics, "submit", time.Now(), &err)

	if intent.UnitID != 0 && intent.UnitID != unitID {
		return nil, validationError("intent targets unit %d, request is for unit %d", intent.UnitID, unitID)
	}
	if requestedBy <= 0 {
		return nil, validationError("requested_by is required")
	}
	intent.UnitID = unitID
	intent.Normalize()
	if intent.TargetsSold() && intent.SoldByUserID == nil {
		seller := requestedBy
		intent.SoldByUserID = &seller
	}
	if err := intent.Validate(); err != nil {
		return nil, err
	}

	unit, err := getUnit(ctx, q.pool, unitID, false)
	if err != nil {
		return nil, err
	}

	p, err = scanPending(q.pool.QueryRow(ctx, `
		INSERT INTO pending_updates (unit_id, smartcard, serial_number, kind, status_at_request, intent, note, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING`+pendingColumns,
		unit.ID, unit.Smartcard, unit.SerialNumber, string(unit.Kind), string(unit.Status),
		intent, strings.TrimSpace(note), requestedBy,
	))
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return nil, validationError("unknown requester %d or unit %d", requestedBy, unitID)
		}
		return nil, fmt.Errorf("failed to store pending update: %w", err)
	}
	return p, nil
}

func (q *approvalQueue) Get(ctx context.Context, id int64) (*PendingUpdate, error) {
	return getPending(ctx, q.pool, id, false)
}

func (q *approvalQueue) ListPending(ctx context.Context) ([]PendingUpdate, error) {
	return q.list(ctx, `
		SELECT`+pendingColumns+` FROM pending_updates
		WHERE decision = 'pending'
		ORDER BY requested_at DESC, id DESC`)
}

func (q *approvalQueue) ListDecided(ctx context.Context, limit int) ([]PendingUpdate, error) {
	if limit <= 0 {
		limit = defaultDecidedLimit
	}
	return q.list(ctx, `
		SELECT`+pendingColumns+` FROM pending_updates
		WHERE decision <> 'pending'
		ORDER BY decided_at DESC, id DESC
		LIMIT $1`, limit)
}

func (q *approvalQueue) list(ctx context.Context, query string, args ...any) ([]PendingUpdate, error) {
	rows, err := q.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending updates: %w", err)
	}
	defer rows.Close()

	updates := []PendingUpdate{}
	for rows.Next() {
		p, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending update: %w", err)
		}
		updates = append(updates, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pending updates: %w", err)
	}
	return updates, nil
}

func (q *approvalQueue) Approve(ctx context.Context, id, approverID int64) (change *AppliedChange, err error) {
	defer observe(ctx, q.metrics, "approve", time.Now(), &err)

	// Unlocked read to learn which unit to lock; re-checked under the row lock below.
	p, err := getPending(ctx, q.pool, id, false)
	if err != nil {
		return nil, err
	}
	if p.Decision != DecisionPending {
		return nil, fmt.Errorf("pending update %d is %s: %w", id, p.Decision, ErrAlreadyDecided)
	}

	unlock, err := q.locker.Lock(ctx, p.UnitID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	p, err = getPending(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if p.Decision != DecisionPending {
		return nil, fmt.Errorf("pending update %d is %s: %w", id, p.Decision, ErrAlreadyDecided)
	}

	change, applyErr := q.engine.ApplyIntentTx(ctx, tx, p.Intent)
	if applyErr != nil {
		// The transaction may be aborted by now; record the failure outside it.
		_ = tx.Rollback(ctx)
		if err := q.recordFailure(ctx, id, applyErr); err != nil {
			return nil, errors.Join(fmt.Errorf("approve pending update %d: %w", id, applyErr), err)
		}
		return nil, fmt.Errorf("approve pending update %d: %w", id, applyErr)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE pending_updates
		SET decision = $1, decided_by = $2, decided_at = NOW(), last_error = NULL
		WHERE id = $3
	`, string(DecisionApproved), approverID, id); err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return nil, validationError("unknown approver %d", approverID)
		}
		return nil, fmt.Errorf("failed to mark pending update %d approved: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit approval of pending update %d: %w", id, err)
	}
	return change, nil
}

func (q *approvalQueue) recordFailure(ctx context.Context, id int64, cause error) error {
	_, err := q.pool.Exec(ctx, `
		UPDATE pending_updates
		SET last_error = $1, last_attempt_at = NOW()
		WHERE id = $2 AND decision = 'pending'
	`, cause.Error(), id)
	if err != nil {
		return fmt.Errorf("failed to record approval failure on pending update %d: %w", id, err)
	}
	return nil
}

func (q *approvalQueue) Reject(ctx context.Context, id, approverID int64, reason string) (p *PendingUpdate, err error) {
	defer observe(ctx, q.metrics, "reject", time.Now(), &err)

	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := getPending(ctx, tx, id, true)
	if err != nil {
		return nil, err
	}
	if current.Decision != DecisionPending {
		return nil, fmt.Errorf("pending update %d is %s: %w", id, current.Decision, ErrAlreadyDecided)
	}

	p, err = scanPending(tx.QueryRow(ctx, `
		UPDATE pending_updates
		SET decision = $1, decided_by = $2, decided_at = NOW(), decision_note = $3
		WHERE id = $4
		RETURNING`+pendingColumns,
		string(DecisionRejected), approverID, strings.TrimSpace(reason), id))
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return nil, validationError("unknown approver %d", approverID)
		}
		return nil, fmt.Errorf("failed to reject pending update %d: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit rejection of pending update %d: %w", id, err)
	}
	return p, nil
}
