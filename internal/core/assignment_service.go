package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// AssignmentIndex records who currently holds each unit. Assignment is independent of
// lifecycle status: changing one never changes the other.
type AssignmentIndex interface {
	// Get returns the unit's assignment; an unassigned unit yields a record with nil ids.
	Get(ctx context.Context, unitID int64) (*AssignmentRecord, error)
	List(ctx context.Context, unitIDs []int64) ([]AssignmentRecord, error)
	// AssignMany merges patch into each unit's record, one unit at a time under that
	// unit's lock. Per-unit failures are reported, not fatal; the batch may partially apply.
	AssignMany(ctx context.Context, unitIDs []int64, patch AssignmentPatch) ([]BulkResult, error)
}

type assignmentIndex struct {
	pool    txBeginner
	locker  UnitLocker
	maxBulk int
	metrics MetricsRecorder
}

func NewAssignmentIndex(pool txBeginner, locker UnitLocker, maxBulk int, metrics MetricsRecorder) AssignmentIndex {
	if metrics == nil {
		metrics = NoopMetrics()
	}
	return &assignmentIndex{pool: pool, locker: locker, maxBulk: maxBulk, metrics: metrics}
}

const assignmentSelect = `
	SELECT u.id, a.team_id, COALESCE(t.name, ''), a.user_id,
	       COALESCE(NULLIF(us.full_name, ''), us.username, ''), a.assigned_at
	FROM units u
	LEFT JOIN unit_assignments a ON a.unit_id = u.id
	LEFT JOIN teams t ON t.id = a.team_id
	LEFT JOIN users us ON us.id = a.user_id`

func scanAssignment(row pgx.Row) (*AssignmentRecord, error) {
	var (
		r          AssignmentRecord
		assignedAt *time.Time
	)
	if err := row.Scan(&r.UnitID, &r.TeamID, &r.TeamName, &r.UserID, &r.UserName, &assignedAt); err != nil {
		return nil, err
	}
	if assignedAt != nil {
		r.AssignedAt = *assignedAt
	}
	return &r, nil
}

func (s *assignmentIndex) Get(ctx context.Context, unitID int64) (*AssignmentRecord, error) {
	return getAssignment(ctx, s.pool, unitID)
}

func getAssignment(ctx context.Context, q pgxQuerier, unitID int64) (*AssignmentRecord, error) {
	r, err := scanAssignment(q.QueryRow(ctx, assignmentSelect+" WHERE u.id = $1", unitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("unit %d: %w", unitID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load assignment of unit %d: %w", unitID, err)
	}
	return r, nil
}

func (s *assignmentIndex) List(ctx context.Context, unitIDs []int64) ([]AssignmentRecord, error) {
	rows, err := s.pool.Query(ctx, assignmentSelect+" WHERE u.id = ANY($1) ORDER BY u.id", dedupeIDs(unitIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	records := []AssignmentRecord{}
	for rows.Next() {
		r, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		records = append(records, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating assignments: %w", err)
	}
	return records, nil
}

func (s *assignmentIndex) AssignMany(ctx context.Context, unitIDs []int64, patch AssignmentPatch) ([]BulkResult, error) {
	ids := dedupeIDs(unitIDs)
	if len(ids) == 0 {
		return nil, validationError("no units to assign")
	}
	if len(ids) > s.maxBulk {
		return nil, validationError("batch of %d units exceeds the limit of %d", len(ids), s.maxBulk)
	}
	if err := validatePatch(patch); err != nil {
		return nil, err
	}

	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, newBulkResult(id, s.assignOne(ctx, id, patch)))
	}
	return results, nil
}

func (s *assignmentIndex) assignOne(ctx context.Context, unitID int64, patch AssignmentPatch) (err error) {
	defer observe(ctx, s.metrics, "assign", time.Now(), &err)

	unlock, err := s.locker.Lock(ctx, unitID)
	if err != nil {
		return err
	}
	defer unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := getUnit(ctx, tx, unitID, true); err != nil {
		return err
	}
	if _, err := upsertAssignmentTx(ctx, tx, unitID, patch); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit assignment of unit %d: %w", unitID, err)
	}
	return nil
}

func validatePatch(p AssignmentPatch) error {
	if p.IsEmpty() {
		return validationError("assignment patch changes nothing")
	}
	if p.TeamID.Valid && p.TeamID.Value <= 0 {
		return validationError("team_id must be positive, got %d", p.TeamID.Value)
	}
	if p.UserID.Valid && p.UserID.Value <= 0 {
		return validationError("user_id must be positive, got %d", p.UserID.Value)
	}
	return nil
}

// upsertAssignmentTx merges patch into the unit's record: absent fields keep their
// stored value, explicit nulls clear it. The unit row must be locked by the caller.
func upsertAssignmentTx(ctx context.Context, tx pgx.Tx, unitID int64, patch AssignmentPatch) (*AssignmentRecord, error) {
	_, err := tx.Exec(ctx, `
		INSERT INTO unit_assignments (unit_id, team_id, user_id, assigned_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (unit_id) DO UPDATE SET
			team_id     = CASE WHEN $4 THEN EXCLUDED.team_id ELSE unit_assignments.team_id END,
			user_id     = CASE WHEN $5 THEN EXCLUDED.user_id ELSE unit_assignments.user_id END,
			assigned_at = NOW()
	`, unitID, patch.TeamID.Ptr(), patch.UserID.Ptr(), patch.TeamID.Set, patch.UserID.Set)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return nil, validationError("assignment of unit %d references an unknown team or user", unitID)
		}
		return nil, fmt.Errorf("failed to upsert assignment of unit %d: %w", unitID, err)
	}
	if err := touchUnitTx(ctx, tx, unitID); err != nil {
		return nil, err
	}
	return getAssignment(ctx, tx, unitID)
}
