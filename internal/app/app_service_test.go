package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"stock-tracker/internal/ai"
	"stock-tracker/internal/core"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Fakes embed the interface so unexercised methods panic loudly.

type fakeStore struct {
	core.InventoryStore
	units   map[int64]*core.Unit
	created []core.NewUnit
	many    bool
	deleted []int64
	lookups int
	maxBulk int
}

func (f *fakeStore) Get(_ context.Context, id int64) (*core.Unit, error) {
	if u, ok := f.units[id]; ok {
		return u, nil
	}
	return nil, core.ErrNotFound
}

func (f *fakeStore) FindByIdentifiers(_ context.Context, in []core.NewUnit) ([]core.Unit, error) {
	if f.maxBulk > 0 && len(in) > f.maxBulk {
		return nil, fmt.Errorf("%w: batch too large", core.ErrValidation)
	}
	f.lookups++
	var out []core.Unit
	for _, u := range f.units {
		for _, n := range in {
			if (n.Smartcard != "" && u.Smartcard == n.Smartcard) || (n.SerialNumber != "" && u.SerialNumber == n.SerialNumber) {
				out = append(out, *u)
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) Create(_ context.Context, in core.NewUnit) (*core.Unit, error) {
	f.created = append(f.created, in)
	return &core.Unit{ID: 100, Smartcard: in.Smartcard, Status: core.StatusInStore}, nil
}

func (f *fakeStore) CreateMany(_ context.Context, in []core.NewUnit) ([]core.Unit, error) {
	f.many = true
	f.created = append(f.created, in...)
	out := make([]core.Unit, len(in))
	for i := range in {
		out[i] = core.Unit{ID: int64(200 + i), Status: core.StatusInStore}
	}
	return out, nil
}

func (f *fakeStore) DeleteMany(_ context.Context, ids []int64) (*core.DeleteResult, error) {
	f.deleted = ids
	return &core.DeleteResult{Deleted: ids}, nil
}

type fakeEngine struct {
	core.TransitionEngine
	intents []core.ChangeIntent
	err     error
	bulk    []core.BulkResult
	seller  int64
}

func (f *fakeEngine) ApplyIntent(_ context.Context, intent core.ChangeIntent) (*core.AppliedChange, error) {
	f.intents = append(f.intents, intent)
	if f.err != nil {
		return nil, f.err
	}
	return &core.AppliedChange{Unit: &core.Unit{ID: intent.UnitID, Status: core.StatusSold}, PreviousStatus: core.StatusInStore}, nil
}

func (f *fakeEngine) BulkSetStatus(_ context.Context, _ []int64, _ core.UnitStatus, actorID int64) ([]core.BulkResult, error) {
	f.seller = actorID
	return f.bulk, nil
}

type fakeQueue struct {
	core.ApprovalQueue
	submitted  []core.ChangeIntent
	requesters []int64
	approveErr error
}

func (f *fakeQueue) Submit(_ context.Context, unitID int64, intent core.ChangeIntent, requestedBy int64, note string) (*core.PendingUpdate, error) {
	f.submitted = append(f.submitted, intent)
	f.requesters = append(f.requesters, requestedBy)
	return &core.PendingUpdate{ID: 7, UnitID: unitID, Intent: intent, Note: note, RequestedBy: requestedBy, Decision: core.DecisionPending}, nil
}

func (f *fakeQueue) Approve(_ context.Context, id, _ int64) (*core.AppliedChange, error) {
	if f.approveErr != nil {
		return nil, f.approveErr
	}
	return &core.AppliedChange{Unit: &core.Unit{ID: 1}}, nil
}

type fakeUsers struct {
	core.UserService
	users map[int64]*core.User
}

func (f *fakeUsers) GetByID(_ context.Context, id int64) (*core.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, core.ErrNotFound
}

func (f *fakeUsers) List(_ context.Context, _ *int64) ([]core.User, error) {
	var out []core.User
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

type fakeLedger struct {
	core.SaleLedger
	sale *core.Sale
}

func (f *fakeLedger) Get(_ context.Context, _ int64) (*core.Sale, error) { return f.sale, nil }

type fakeRules struct {
	core.CommissionRules
	rate decimal.Decimal
	err  error
}

func (f *fakeRules) ResolveRate(_ context.Context, _ *string, _ time.Time) (decimal.Decimal, error) {
	return f.rate, f.err
}

type fakeInterpreter struct {
	result *ai.Interpretation
	err    error
}

func (f *fakeInterpreter) InterpretUpdate(_ context.Context, _ string, _ *core.Unit, _ string) (*ai.Interpretation, error) {
	return f.result, f.err
}

type fixture struct {
	svc    ApplicationService
	store  *fakeStore
	engine *fakeEngine
	queue  *fakeQueue
	ledger *fakeLedger
	rules  *fakeRules
}

func newFixture(agent ai.UpdateInterpreter) *fixture {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	team := int64(1)
	f := &fixture{
		store: &fakeStore{units: map[int64]*core.Unit{
			1: {ID: 1, Smartcard: "SC-1", SerialNumber: "SN-1", Status: core.StatusInStore},
		}},
		engine: &fakeEngine{},
		queue:  &fakeQueue{},
		ledger: &fakeLedger{},
		rules:  &fakeRules{},
	}
	users := &fakeUsers{users: map[int64]*core.User{
		1: {ID: 1, Username: "admin", Role: core.RoleAdmin, IsActive: true},
		2: {ID: 2, Username: "agent1", FullName: "Alex Agent", Role: core.RoleAgent, TeamID: &team, IsActive: true},
		3: {ID: 3, Username: "gone", Role: core.RoleAgent, IsActive: false},
	}}
	f.svc = NewAppService(Services{
		Store:  f.store,
		Ledger: f.ledger,
		Engine: f.engine,
		Queue:  f.queue,
		Users:  users,
		Rules:  f.rules,
		Agent:  agent,
		Logger: logger,
	})
	return f
}

var (
	admin = Actor{UserID: 1, Role: core.RoleAdmin}
	agent = Actor{UserID: 2, Role: core.RoleAgent}
)

func TestCheckActor(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	u, err := f.svc.CheckActor(ctx, admin)
	require.NoError(t, err)
	assert.Equal(t, "admin", u.Username)

	_, err = f.svc.CheckActor(ctx, Actor{UserID: 2, Role: core.RoleAdmin})
	assert.ErrorIs(t, err, ErrForbidden, "role claim must match the stored role")

	_, err = f.svc.CheckActor(ctx, Actor{UserID: 3, Role: core.RoleAgent})
	assert.ErrorIs(t, err, ErrForbidden, "inactive user")

	_, err = f.svc.CheckActor(ctx, Actor{UserID: 99, Role: core.RoleAgent})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.CheckActor(ctx, Actor{UserID: 1, Role: "root"})
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestSubmitChange_AdminAppliesDirectly(t *testing.T) {
	f := newFixture(nil)
	sold := core.StatusSold

	res, err := f.svc.SubmitChange(context.Background(), admin, ChangeRequest{
		UnitID: 1,
		Intent: core.ChangeIntent{TargetStatus: &sold},
	})
	require.NoError(t, err)
	assert.False(t, res.IsQueued())
	require.NotNil(t, res.Applied)

	require.Len(t, f.engine.intents, 1)
	got := f.engine.intents[0]
	assert.Equal(t, int64(1), got.UnitID)
	require.NotNil(t, got.SoldByUserID)
	assert.Equal(t, admin.UserID, *got.SoldByUserID, "seller defaults to the acting admin")
	assert.Empty(t, f.queue.submitted)
}

func TestSubmitChange_AgentIsQueued(t *testing.T) {
	f := newFixture(nil)
	inHand := core.StatusInHand

	res, err := f.svc.SubmitChange(context.Background(), agent, ChangeRequest{
		UnitID: 1,
		Intent: core.ChangeIntent{TargetStatus: &inHand},
		Note:   "picked up",
	})
	require.NoError(t, err)
	assert.True(t, res.IsQueued())
	assert.Equal(t, "picked up", res.Pending.Note)
	assert.Equal(t, []int64{agent.UserID}, f.queue.requesters)
	assert.Empty(t, f.engine.intents, "agents never reach the engine")
}

func TestSubmitChange_UnitMismatch(t *testing.T) {
	f := newFixture(nil)

	_, err := f.svc.SubmitChange(context.Background(), admin, ChangeRequest{
		UnitID: 1,
		Intent: core.ChangeIntent{UnitID: 2},
	})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestSubmitChange_EngineErrorPassesThrough(t *testing.T) {
	f := newFixture(nil)
	f.engine.err = fmt.Errorf("unit 1: %w", core.ErrAlreadySold)
	sold := core.StatusSold

	_, err := f.svc.SubmitChange(context.Background(), admin, ChangeRequest{UnitID: 1, Intent: core.ChangeIntent{TargetStatus: &sold}})
	assert.ErrorIs(t, err, core.ErrAlreadySold)
}

func TestAdminOnlyOperations(t *testing.T) {
	f := newFixture(nil)
	ctx := context.Background()

	_, err := f.svc.CreateUnits(ctx, agent, []core.NewUnit{{Smartcard: "X"}})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.BulkSetStatus(ctx, agent, BulkStatusRequest{UnitIDs: []int64{1}, Status: core.StatusInHand})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.BulkAssign(ctx, agent, BulkAssignRequest{UnitIDs: []int64{1}})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.DeleteUnits(ctx, agent, DeleteUnitsRequest{UnitIDs: []int64{1}, Confirm: true})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.MarkPaid(ctx, agent, 1)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ListPending(ctx, agent)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ApprovePending(ctx, agent, 1)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.RejectPending(ctx, agent, 1, "no")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.Leaderboard(ctx, agent, nil, nil)
	assert.ErrorIs(t, err, ErrForbidden)

	assert.Empty(t, f.store.created)
	assert.Nil(t, f.store.deleted)
}

func TestCreateUnits_WarnsOnDuplicates(t *testing.T) {
	f := newFixture(nil)

	res, err := f.svc.CreateUnits(context.Background(), admin, []core.NewUnit{
		{Smartcard: "SC-1", Kind: core.KindFullSet},
	})
	require.NoError(t, err)
	assert.Len(t, res.Units, 1)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "SC-1")
	assert.False(t, f.store.many)

	res, err = f.svc.CreateUnits(context.Background(), admin, []core.NewUnit{
		{Smartcard: "NEW-1", Kind: core.KindFullSet},
		{Smartcard: "NEW-2", Kind: core.KindFullSet},
	})
	require.NoError(t, err)
	assert.True(t, f.store.many)
	assert.Len(t, res.Units, 2)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 2, f.store.lookups, "one lookup per batch, not per row")
}

func TestCreateUnits_WarnsOnRepeatsWithinBatch(t *testing.T) {
	f := newFixture(nil)

	res, err := f.svc.CreateUnits(context.Background(), admin, []core.NewUnit{
		{Smartcard: "SC-NEW", SerialNumber: "SN-A", Kind: core.KindFullSet},
		{Smartcard: " SC-NEW", SerialNumber: "SN-B", Kind: core.KindFullSet},
		{Smartcard: "SC-OTHER", SerialNumber: "SN-A", Kind: core.KindFullSet},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		`row 2 repeats smartcard "SC-NEW" from row 1`,
		`row 3 repeats serial "SN-A" from row 1`,
	}, res.Warnings)
	assert.Len(t, f.store.created, 3)
}

func TestCreateUnits_RefusedBatchInsertsNothing(t *testing.T) {
	f := newFixture(nil)
	f.store.maxBulk = 10

	rows := make([]core.NewUnit, 5000)
	_, err := f.svc.CreateUnits(context.Background(), admin, rows)
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Zero(t, f.store.lookups)
	assert.Empty(t, f.store.created)
}

func TestDeleteUnits_RequiresConfirm(t *testing.T) {
	f := newFixture(nil)

	_, err := f.svc.DeleteUnits(context.Background(), admin, DeleteUnitsRequest{UnitIDs: []int64{1}})
	assert.ErrorIs(t, err, core.ErrValidation)
	assert.Nil(t, f.store.deleted)

	res, err := f.svc.DeleteUnits(context.Background(), admin, DeleteUnitsRequest{UnitIDs: []int64{1}, Confirm: true})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, res.Deleted)
}

func TestBulkSetStatus_Outcome(t *testing.T) {
	f := newFixture(nil)
	f.engine.bulk = []core.BulkResult{
		{UnitID: 1, OK: true},
		{UnitID: 2, Reason: "already_sold"},
		{UnitID: 3, OK: true},
	}

	out, err := f.svc.BulkSetStatus(context.Background(), admin, BulkStatusRequest{UnitIDs: []int64{1, 2, 3}, Status: core.StatusSold})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Succeeded)
	assert.Equal(t, 1, out.Failed)
	assert.Equal(t, admin.UserID, f.engine.seller)
}

func TestApprovePending_ReturnsEngineError(t *testing.T) {
	f := newFixture(nil)
	f.queue.approveErr = fmt.Errorf("approve pending update 4: %w", core.ErrInvalidTransition)

	_, err := f.svc.ApprovePending(context.Background(), admin, 4)
	assert.ErrorIs(t, err, core.ErrInvalidTransition)

	f.queue.approveErr = nil
	change, err := f.svc.ApprovePending(context.Background(), admin, 4)
	require.NoError(t, err)
	assert.Equal(t, int64(1), change.Unit.ID)
}

func TestProposeFromText(t *testing.T) {
	ctx := context.Background()
	sold := core.StatusSold

	t.Run("no interpreter", func(t *testing.T) {
		f := newFixture(nil)
		_, err := f.svc.ProposeFromText(ctx, agent, TextProposalRequest{UnitID: 1, Text: "sold it"})
		assert.ErrorIs(t, err, ErrAIUnavailable)
	})

	t.Run("empty text", func(t *testing.T) {
		f := newFixture(&fakeInterpreter{})
		_, err := f.svc.ProposeFromText(ctx, agent, TextProposalRequest{UnitID: 1, Text: "  "})
		assert.ErrorIs(t, err, core.ErrValidation)
	})

	t.Run("clarification", func(t *testing.T) {
		f := newFixture(&fakeInterpreter{result: &ai.Interpretation{ClarificationQuestion: "Which unit?", Confidence: 0.3}})
		res, err := f.svc.ProposeFromText(ctx, agent, TextProposalRequest{UnitID: 1, Text: "done"})
		require.NoError(t, err)
		assert.True(t, res.IsClarification)
		assert.Equal(t, "Which unit?", res.ClarificationMessage)
		assert.Empty(t, f.queue.submitted)
	})

	t.Run("admin proposals are still queued", func(t *testing.T) {
		f := newFixture(&fakeInterpreter{result: &ai.Interpretation{
			Intent:     &core.ChangeIntent{UnitID: 1, TargetStatus: &sold},
			Confidence: 0.9,
		}})
		res, err := f.svc.ProposeFromText(ctx, admin, TextProposalRequest{UnitID: 1, Text: "sold to 0700"})
		require.NoError(t, err)
		require.NotNil(t, res.Pending)
		assert.Equal(t, "AI: sold to 0700", res.Pending.Note)
		assert.Empty(t, f.engine.intents)
	})

	t.Run("interpreter failure", func(t *testing.T) {
		f := newFixture(&fakeInterpreter{err: errors.New("upstream timeout")})
		_, err := f.svc.ProposeFromText(ctx, agent, TextProposalRequest{UnitID: 1, Text: "sold"})
		assert.ErrorContains(t, err, "upstream timeout")
	})
}

func TestGetSale_CommissionRate(t *testing.T) {
	f := newFixture(nil)
	f.ledger.sale = &core.Sale{ID: 5, SaleCode: "SL-2026-000005"}
	f.rules.rate = decimal.RequireFromString("0.05")

	res, err := f.svc.GetSale(context.Background(), 5)
	require.NoError(t, err)
	require.NotNil(t, res.CommissionRate)
	assert.True(t, res.CommissionRate.Equal(decimal.RequireFromString("0.05")))

	f.rules.err = core.ErrNotFound
	res, err = f.svc.GetSale(context.Background(), 5)
	require.NoError(t, err)
	assert.Nil(t, res.CommissionRate)
}

func TestReportRangeValidation(t *testing.T) {
	f := newFixture(nil)
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, -1, 0)

	_, err := f.svc.Commissions(context.Background(), admin, &from, &to)
	assert.ErrorIs(t, err, core.ErrValidation)
}
