package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// InventoryStore is the authoritative table of physical units.
// Status is never written through this interface; only the TransitionEngine
// changes it (via the unexported *Tx helpers below).
type InventoryStore interface {
	Get(ctx context.Context, unitID int64) (*Unit, error)
	List(ctx context.Context, filter UnitFilter) ([]Unit, error)
	// FindByIdentifiers returns stored units sharing a smartcard or serial number with any
	// intake row. Physical identifiers are not unique, so callers use this to surface
	// duplicates. The batch is validated like CreateMany before the single lookup query.
	FindByIdentifiers(ctx context.Context, in []NewUnit) ([]Unit, error)
	Create(ctx context.Context, in NewUnit) (*Unit, error)
	// CreateMany inserts pre-validated intake rows in one transaction: all or none.
	CreateMany(ctx context.Context, in []NewUnit) ([]Unit, error)
	// DeleteMany hard-deletes units with no transition checks. Sales, assignments and
	// pending updates of the deleted units go with them. Irreversible.
	DeleteMany(ctx context.Context, unitIDs []int64) (*DeleteResult, error)
}

type inventoryStore struct {
	pool    txBeginner
	maxBulk int
}

// NewInventoryStore constructs an InventoryStore backed by PostgreSQL.
func NewInventoryStore(pool txBeginner, maxBulk int) InventoryStore {
	return &inventoryStore{pool: pool, maxBulk: maxBulk}
}

const unitColumns = `
	u.id, u.batch_number, u.smartcard, u.serial_number, u.kind, u.status, u.region_id,
	a.team_id, a.user_id, u.created_at, u.updated_at`

const unitFrom = `
	FROM units u
	LEFT JOIN unit_assignments a ON a.unit_id = u.id`

func scanUnit(row pgx.Row) (*Unit, error) {
	var u Unit
	if err := row.Scan(&u.ID, &u.BatchNumber, &u.Smartcard, &u.SerialNumber, &u.Kind, &u.Status,
		&u.RegionID, &u.AssignedTeamID, &u.AssignedUserID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func collectUnits(rows pgx.Rows) ([]Unit, error) {
	defer rows.Close()
	units := []Unit{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit: %w", err)
		}
		units = append(units, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating units: %w", err)
	}
	return units, nil
}

func (s *inventoryStore) Get(ctx context.Context, unitID int64) (*Unit, error) {
	return getUnit(ctx, s.pool, unitID, false)
}

// getUnit loads one unit; with forUpdate it takes the row lock inside the caller's TX.
func getUnit(ctx context.Context, q pgxQuerier, unitID int64, forUpdate bool) (*Unit, error) {
	query := "SELECT" + unitColumns + unitFrom + " WHERE u.id = $1"
	if forUpdate {
		query += " FOR UPDATE OF u"
	}
	u, err := scanUnit(q.QueryRow(ctx, query, unitID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("unit %d: %w", unitID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load unit %d: %w", unitID, err)
	}
	return u, nil
}

func (s *inventoryStore) List(ctx context.Context, f UnitFilter) ([]Unit, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if f.Status != nil {
		add("u.status = $%d", string(*f.Status))
	}
	if f.Kind != nil {
		add("u.kind = $%d", string(*f.Kind))
	}
	if f.BatchNumber != "" {
		add("u.batch_number = $%d", f.BatchNumber)
	}
	if f.RegionID != nil {
		add("u.region_id = $%d", *f.RegionID)
	}
	if f.TeamID != nil {
		add("a.team_id = $%d", *f.TeamID)
	}
	if f.UserID != nil {
		add("a.user_id = $%d", *f.UserID)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf("(u.smartcard ILIKE $%d OR u.serial_number ILIKE $%d)", n, n))
	}

	query := "SELECT" + unitColumns + unitFrom
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY u.id"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query units: %w", err)
	}
	return collectUnits(rows)
}

func (s *inventoryStore) FindByIdentifiers(ctx context.Context, in []NewUnit) ([]Unit, error) {
	if err := s.checkIntake(in); err != nil {
		return nil, err
	}

	smartcards := make([]string, 0, len(in))
	serials := make([]string, 0, len(in))
	for _, u := range in {
		if sc := strings.TrimSpace(u.Smartcard); sc != "" {
			smartcards = append(smartcards, sc)
		}
		if sn := strings.TrimSpace(u.SerialNumber); sn != "" {
			serials = append(serials, sn)
		}
	}

	rows, err := s.pool.Query(ctx, "SELECT"+unitColumns+unitFrom+`
		WHERE u.smartcard = ANY($1) OR u.serial_number = ANY($2)
		ORDER BY u.id`, smartcards, serials)
	if err != nil {
		return nil, fmt.Errorf("failed to query units by identifier: %w", err)
	}
	return collectUnits(rows)
}

// checkIntake bounds the batch and validates every row before any query runs.
func (s *inventoryStore) checkIntake(in []NewUnit) error {
	if len(in) == 0 {
		return validationError("no units to create")
	}
	if len(in) > s.maxBulk {
		return validationError("batch of %d units exceeds the limit of %d", len(in), s.maxBulk)
	}
	for i, u := range in {
		if err := validateNewUnit(u); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *inventoryStore) Create(ctx context.Context, in NewUnit) (*Unit, error) {
	if err := validateNewUnit(in); err != nil {
		return nil, err
	}
	return insertUnit(ctx, s.pool, in)
}

func (s *inventoryStore) CreateMany(ctx context.Context, in []NewUnit) ([]Unit, error) {
	if err := s.checkIntake(in); err != nil {
		return nil, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	created := make([]Unit, 0, len(in))
	for i, u := range in {
		unit, err := insertUnit(ctx, tx, u)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		created = append(created, *unit)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit unit intake: %w", err)
	}
	return created, nil
}

func insertUnit(ctx context.Context, q pgxQuerier, in NewUnit) (*Unit, error) {
	var u Unit
	err := q.QueryRow(ctx, `
		INSERT INTO units (batch_number, smartcard, serial_number, kind, status, region_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, batch_number, smartcard, serial_number, kind, status, region_id, created_at, updated_at
	`, strings.TrimSpace(in.BatchNumber), strings.TrimSpace(in.Smartcard), strings.TrimSpace(in.SerialNumber),
		string(in.Kind), string(StatusInStore), in.RegionID,
	).Scan(&u.ID, &u.BatchNumber, &u.Smartcard, &u.SerialNumber, &u.Kind, &u.Status, &u.RegionID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if code, _ := pgErrorCode(err); code == pgForeignKeyViolation {
			return nil, validationError("region %d does not exist", derefInt64(in.RegionID))
		}
		return nil, fmt.Errorf("failed to create unit: %w", err)
	}
	return &u, nil
}

func (s *inventoryStore) DeleteMany(ctx context.Context, unitIDs []int64) (*DeleteResult, error) {
	ids := dedupeIDs(unitIDs)
	if len(ids) == 0 {
		return nil, validationError("no units to delete")
	}
	if len(ids) > s.maxBulk {
		return nil, validationError("batch of %d units exceeds the limit of %d", len(ids), s.maxBulk)
	}

	rows, err := s.pool.Query(ctx, "DELETE FROM units WHERE id = ANY($1) RETURNING id", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to delete units: %w", err)
	}
	deleted, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to delete units: %w", err)
	}

	gone := make(map[int64]struct{}, len(deleted))
	for _, id := range deleted {
		gone[id] = struct{}{}
	}
	res := &DeleteResult{Deleted: make([]int64, 0, len(deleted)), Missing: []int64{}}
	for _, id := range ids {
		if _, ok := gone[id]; ok {
			res.Deleted = append(res.Deleted, id)
		} else {
			res.Missing = append(res.Missing, id)
		}
	}
	return res, nil
}

// ── Engine-only helpers ───────────────────────────────────────────────────────

// setStatusTx writes a new lifecycle status. Only the TransitionEngine calls it,
// after it has locked the row and checked the transition.
func setStatusTx(ctx context.Context, tx pgx.Tx, unitID int64, status UnitStatus) error {
	tag, err := tx.Exec(ctx, `
		UPDATE units SET status = $1, updated_at = NOW()
		WHERE id = $2
	`, string(status), unitID)
	if err != nil {
		return fmt.Errorf("failed to update status of unit %d: %w", unitID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("unit %d: %w", unitID, ErrNotFound)
	}
	return nil
}

// touchUnitTx stamps updated_at for changes that live outside the units row (assignment).
func touchUnitTx(ctx context.Context, tx pgx.Tx, unitID int64) error {
	if _, err := tx.Exec(ctx, "UPDATE units SET updated_at = NOW() WHERE id = $1", unitID); err != nil {
		return fmt.Errorf("failed to touch unit %d: %w", unitID, err)
	}
	return nil
}

func derefInt64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
