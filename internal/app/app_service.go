package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stock-tracker/internal/ai"
	"stock-tracker/internal/config"
	"stock-tracker/internal/core"

	"github.com/sirupsen/logrus"
)

// Services bundles the core components the application layer orchestrates.
// Agent may be nil when no interpreter is configured.
type Services struct {
	Store   core.InventoryStore
	Ledger  core.SaleLedger
	Assign  core.AssignmentIndex
	Engine  core.TransitionEngine
	Queue   core.ApprovalQueue
	Users   core.UserService
	Rules   core.CommissionRules
	Reports core.ReportingService
	Agent   ai.UpdateInterpreter
	Logger  logrus.FieldLogger
}

type appService struct {
	store   core.InventoryStore
	ledger  core.SaleLedger
	assign  core.AssignmentIndex
	engine  core.TransitionEngine
	queue   core.ApprovalQueue
	users   core.UserService
	rules   core.CommissionRules
	reports core.ReportingService
	agent   ai.UpdateInterpreter
	logger  logrus.FieldLogger
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(s Services) ApplicationService {
	logger := s.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &appService{
		store:   s.Store,
		ledger:  s.Ledger,
		assign:  s.Assign,
		engine:  s.Engine,
		queue:   s.Queue,
		users:   s.Users,
		rules:   s.Rules,
		reports: s.Reports,
		agent:   s.Agent,
		logger:  logger.WithField("module", "app"),
	}
}

func requireAdmin(actor Actor) error {
	if !actor.Role.Privileged() {
		return fmt.Errorf("role %q may not perform this operation: %w", actor.Role, ErrForbidden)
	}
	return nil
}

// ── Identity ──────────────────────────────────────────────────────────────────

func (s *appService) CheckActor(ctx context.Context, actor Actor) (*core.User, error) {
	if actor.UserID <= 0 || !actor.Role.Valid() {
		return nil, fmt.Errorf("malformed actor: %w", ErrForbidden)
	}
	user, err := s.users.GetByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("user %d: %w", actor.UserID, ErrForbidden)
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, fmt.Errorf("user %s is inactive: %w", user.Username, ErrForbidden)
	}
	if user.Role != actor.Role {
		return nil, fmt.Errorf("user %s is %s, not %s: %w", user.Username, user.Role, actor.Role, ErrForbidden)
	}
	return user, nil
}

// ── Units ─────────────────────────────────────────────────────────────────────

func (s *appService) ListUnits(ctx context.Context, filter core.UnitFilter) (*UnitListResult, error) {
	units, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &UnitListResult{Units: units}, nil
}

func (s *appService) GetUnit(ctx context.Context, unitID int64) (*UnitDetailResult, error) {
	unit, err := s.store.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	assignment, err := s.assign.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	result := &UnitDetailResult{Unit: unit, Assignment: assignment}
	if unit.Status == core.StatusSold {
		sale, err := s.ledger.GetByUnit(ctx, unitID)
		if err != nil {
			return nil, err
		}
		result.Sale = sale
	}
	return result, nil
}

func (s *appService) CreateUnits(ctx context.Context, actor Actor, units []core.NewUnit) (*CreateUnitsResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}

	// Duplicates are allowed; collect warnings before insert so the new rows don't match themselves.
	existing, err := s.store.FindByIdentifiers(ctx, units)
	if err != nil {
		return nil, err
	}
	warnings := duplicateWarnings(units, existing)
	for _, w := range warnings {
		s.logger.WithField("actor", actor.UserID).Warn(w)
	}

	var created []core.Unit
	if len(units) == 1 {
		u, err := s.store.Create(ctx, units[0])
		if err != nil {
			return nil, err
		}
		created = []core.Unit{*u}
	} else {
		created, err = s.store.CreateMany(ctx, units)
		if err != nil {
			return nil, err
		}
	}

	s.logger.WithFields(logrus.Fields{"actor": actor.UserID, "count": len(created)}).Info("units created")
	return &CreateUnitsResult{Units: created, Warnings: warnings}, nil
}

// duplicateWarnings reports every intake row whose smartcard or serial number is already
// stored or appears on an earlier row of the same batch.
func duplicateWarnings(units []core.NewUnit, existing []core.Unit) []string {
	warnings := []string{}
	for _, e := range existing {
		for _, u := range units {
			if sameIdentifier(u.Smartcard, e.Smartcard) || sameIdentifier(u.SerialNumber, e.SerialNumber) {
				warnings = append(warnings, fmt.Sprintf("unit %d already carries smartcard %q / serial %q", e.ID, e.Smartcard, e.SerialNumber))
				break
			}
		}
	}

	smartcards := make(map[string]int)
	serials := make(map[string]int)
	for i, u := range units {
		row := i + 1
		if sc := strings.TrimSpace(u.Smartcard); sc != "" {
			if first, ok := smartcards[sc]; ok {
				warnings = append(warnings, fmt.Sprintf("row %d repeats smartcard %q from row %d", row, sc, first))
			} else {
				smartcards[sc] = row
			}
		}
		if sn := strings.TrimSpace(u.SerialNumber); sn != "" {
			if first, ok := serials[sn]; ok {
				warnings = append(warnings, fmt.Sprintf("row %d repeats serial %q from row %d", row, sn, first))
			} else {
				serials[sn] = row
			}
		}
	}
	return warnings
}

func sameIdentifier(incoming, stored string) bool {
	incoming = strings.TrimSpace(incoming)
	return incoming != "" && incoming == stored
}

func (s *appService) DeleteUnits(ctx context.Context, actor Actor, req DeleteUnitsRequest) (*core.DeleteResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !req.Confirm {
		return nil, fmt.Errorf("%w: deleting units requires explicit confirmation", core.ErrValidation)
	}
	res, err := s.store.DeleteMany(ctx, req.UnitIDs)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"actor":   actor.UserID,
		"deleted": res.Deleted,
		"missing": res.Missing,
	}).Warn("units deleted")
	return res, nil
}

// ── Changes ───────────────────────────────────────────────────────────────────

func (s *appService) SubmitChange(ctx context.Context, actor Actor, req ChangeRequest) (*ChangeResult, error) {
	intent := req.Intent
	if intent.UnitID != 0 && intent.UnitID != req.UnitID {
		return nil, fmt.Errorf("%w: intent targets unit %d, request is for unit %d", core.ErrValidation, intent.UnitID, req.UnitID)
	}
	intent.UnitID = req.UnitID

	if !actor.Role.Privileged() {
		p, err := s.queue.Submit(ctx, req.UnitID, intent, actor.UserID, req.Note)
		if err != nil {
			return nil, err
		}
		s.logger.WithFields(logrus.Fields{"actor": actor.UserID, "unit": req.UnitID, "pending": p.ID}).Info("change queued for approval")
		return &ChangeResult{Pending: p}, nil
	}

	if intent.TargetsSold() && intent.SoldByUserID == nil {
		seller := actor.UserID
		intent.SoldByUserID = &seller
	}
	change, err := s.engine.ApplyIntent(ctx, intent)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"actor":  actor.UserID,
		"unit":   req.UnitID,
		"from":   change.PreviousStatus,
		"to":     change.Unit.Status,
		"sold":   change.SaleCreated,
		"paid":   change.PaymentChanged,
		"assign": change.Assignment != nil,
	}).Info("change applied")
	return &ChangeResult{Applied: change}, nil
}

func (s *appService) ProposeFromText(ctx context.Context, actor Actor, req TextProposalRequest) (*AIResult, error) {
	if s.agent == nil {
		return nil, ErrAIUnavailable
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: text is required", core.ErrValidation)
	}

	unit, err := s.store.Get(ctx, req.UnitID)
	if err != nil {
		return nil, err
	}
	directory, err := s.directory(ctx)
	if err != nil {
		return nil, err
	}

	interp, err := s.agent.InterpretUpdate(ctx, text, unit, directory)
	if err != nil {
		config.LogError(s.logger, "app", "ProposeFromText", "interpret update", map[string]any{"unit": req.UnitID}, err)
		return nil, fmt.Errorf("AI interpretation failed: %w", err)
	}

	result := &AIResult{Confidence: interp.Confidence, Reasoning: interp.Reasoning}
	if interp.NeedsClarification() {
		result.IsClarification = true
		result.ClarificationMessage = interp.ClarificationQuestion
		return result, nil
	}

	p, err := s.queue.Submit(ctx, req.UnitID, *interp.Intent, actor.UserID, "AI: "+text)
	if err != nil {
		return nil, err
	}
	result.Pending = p
	return result, nil
}

// directory lists the users the interpreter may reference by id.
func (s *appService) directory(ctx context.Context) (string, error) {
	users, err := s.users.List(ctx, nil)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, u := range users {
		name := u.FullName
		if name == "" {
			name = u.Username
		}
		fmt.Fprintf(&sb, "user %d: %s (%s", u.ID, name, u.Role)
		if u.TeamID != nil {
			fmt.Fprintf(&sb, ", team %d", *u.TeamID)
		}
		sb.WriteString(")\n")
	}
	return sb.String(), nil
}

// ── Bulk ──────────────────────────────────────────────────────────────────────

func (s *appService) BulkSetStatus(ctx context.Context, actor Actor, req BulkStatusRequest) (*BulkOutcome, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	results, err := s.engine.BulkSetStatus(ctx, req.UnitIDs, req.Status, actor.UserID)
	if err != nil {
		return nil, err
	}
	out := newBulkOutcome(results)
	s.logBulk("bulk status", actor, out)
	return out, nil
}

func (s *appService) BulkAssign(ctx context.Context, actor Actor, req BulkAssignRequest) (*BulkOutcome, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	results, err := s.assign.AssignMany(ctx, req.UnitIDs, req.Patch)
	if err != nil {
		return nil, err
	}
	out := newBulkOutcome(results)
	s.logBulk("bulk assign", actor, out)
	return out, nil
}

func (s *appService) logBulk(op string, actor Actor, out *BulkOutcome) {
	entry := s.logger.WithFields(logrus.Fields{"actor": actor.UserID, "succeeded": out.Succeeded, "failed": out.Failed})
	if out.Failed > 0 {
		entry.Warn(op + " finished with failures")
		return
	}
	entry.Info(op + " finished")
}

// ── Sales ─────────────────────────────────────────────────────────────────────

func (s *appService) ListSales(ctx context.Context, filter core.SaleFilter) (*SaleListResult, error) {
	sales, err := s.ledger.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &SaleListResult{Sales: sales}, nil
}

func (s *appService) GetSale(ctx context.Context, saleID int64) (*SaleDetailResult, error) {
	sale, err := s.ledger.Get(ctx, saleID)
	if err != nil {
		return nil, err
	}
	result := &SaleDetailResult{Sale: sale}
	rate, err := s.rules.ResolveRate(ctx, sale.PackageType, sale.SoldAt)
	switch {
	case err == nil:
		result.CommissionRate = &rate
	case errors.Is(err, core.ErrNotFound):
		// no rule covers this sale
	default:
		return nil, err
	}
	return result, nil
}

func (s *appService) MarkPaid(ctx context.Context, actor Actor, saleID int64) (*core.Sale, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.engine.MarkPaid(ctx, saleID)
}

// ── Approval queue ────────────────────────────────────────────────────────────

func (s *appService) ListPending(ctx context.Context, actor Actor) (*PendingListResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	updates, err := s.queue.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	return &PendingListResult{Updates: updates}, nil
}

func (s *appService) ListDecided(ctx context.Context, actor Actor, limit int) (*PendingListResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	updates, err := s.queue.ListDecided(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &PendingListResult{Updates: updates}, nil
}

func (s *appService) ApprovePending(ctx context.Context, actor Actor, pendingID int64) (*core.AppliedChange, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	change, err := s.queue.Approve(ctx, pendingID, actor.UserID)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"actor":   actor.UserID,
			"pending": pendingID,
			"code":    core.ErrorCode(err),
		}).WithError(err).Warn("approval refused")
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{"actor": actor.UserID, "pending": pendingID, "unit": change.Unit.ID}).Info("pending update approved")
	return change, nil
}

func (s *appService) RejectPending(ctx context.Context, actor Actor, pendingID int64, reason string) (*core.PendingUpdate, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.queue.Reject(ctx, pendingID, actor.UserID, reason)
}

// ── Reports ───────────────────────────────────────────────────────────────────

func (s *appService) Leaderboard(ctx context.Context, actor Actor, from, to *time.Time) ([]core.LeaderboardRow, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.reports.Leaderboard(ctx, from, to)
}

func (s *appService) UnpaidAging(ctx context.Context, actor Actor, asOf time.Time) (*core.UnpaidAgingReport, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	return s.reports.UnpaidAging(ctx, asOf)
}

func (s *appService) Commissions(ctx context.Context, actor Actor, from, to *time.Time) ([]core.CommissionLine, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	return s.reports.Commissions(ctx, from, to)
}

func checkRange(from, to *time.Time) error {
	if from != nil && to != nil && to.Before(*from) {
		return fmt.Errorf("%w: range end %s is before start %s", core.ErrValidation,
			to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return nil
}
