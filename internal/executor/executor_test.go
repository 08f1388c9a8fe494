package executor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/audit"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/ledger"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/model"
	"github.com/ChristopherHoole/gads-data-layer-sub001/internal/policy"
)

// memLedger implements the executor's Ledger over a slice. Append makes each
// write visible to subsequent gate queries, mirroring the real store.
type memLedger struct {
	entries []ledger.Entry
	nextID  int64
	failAll bool
}

func (m *memLedger) Append(_ context.Context, e ledger.Entry) (int64, error) {
	if m.failAll {
		return 0, errors.New("disk full")
	}
	m.nextID++
	e.ChangeID = m.nextID
	m.entries = append(m.entries, e)
	return e.ChangeID, nil
}

func (m *memLedger) LastChange(_ context.Context, entityID string, lever model.Lever) (time.Time, bool, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.EntityID == entityID && e.Lever == lever {
			return e.ExecutedAt, true, nil
		}
	}
	return time.Time{}, false, nil
}

func (m *memLedger) LastOtherLeverChange(_ context.Context, entityID string, lever model.Lever, since time.Time) (model.Lever, time.Time, bool, error) {
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.EntityID == entityID && e.Lever != lever && e.ExecutedAt.After(since) {
			return e.Lever, e.ExecutedAt, true, nil
		}
	}
	return "", time.Time{}, false, nil
}

func (m *memLedger) CountActions(_ context.Context, customerID, category string, day time.Time) (int, error) {
	n := 0
	wantDay := day.UTC().Format("2006-01-02")
	for _, e := range m.entries {
		if e.CustomerID == customerID && e.ActionCategory == category &&
			e.ExecutedAt.UTC().Format("2006-01-02") == wantDay {
			n++
		}
	}
	return n, nil
}

// scriptedMutator fails the entity IDs listed in failFor.
type scriptedMutator struct {
	failFor map[string]error
	applied []string
}

func (s *scriptedMutator) Apply(_ context.Context, a model.CandidateAction) (string, error) {
	if err, ok := s.failFor[a.EntityID]; ok {
		return "", err
	}
	s.applied = append(s.applied, a.EntityID)
	return "tok-" + a.EntityID, nil
}

func autopilotPolicy() *policy.ClientPolicy {
	p := policy.DefaultPolicy("cust-1")
	p.AutomationMode = model.ModeAutopilot
	return p
}

func budgetAction(entityID string) model.CandidateAction {
	return model.CandidateAction{
		RuleID:        "budget.scale_up",
		CustomerID:    "cust-1",
		EntityType:    model.EntityCampaign,
		EntityID:      entityID,
		Lever:         model.LeverBudget,
		CurrentValue:  100,
		ProposedValue: 108,
		RiskTier:      model.RiskLow,
		Evidence:      model.BudgetEvidence{Clicks7d: 400, Conversions7d: 12},
	}
}

func TestDryRunWritesLedgerButSkipsMutator(t *testing.T) {
	store := &memLedger{}
	mut := &scriptedMutator{}
	x := New(Config{Ledger: store, Mutator: mut})

	res, err := x.Execute(context.Background(), []model.CandidateAction{budgetAction("camp-1")},
		autopilotPolicy(), "sha256:x", DryRun)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(res.Successful) != 1 {
		t.Fatalf("expected 1 success, got %+v", res)
	}
	if len(mut.applied) != 0 {
		t.Error("dry-run must never call the mutation API")
	}
	if len(store.entries) != 1 {
		t.Fatalf("dry-run must journal, got %d entries", len(store.entries))
	}
	e := store.entries[0]
	if e.ApprovedBy != "dry_run" {
		t.Errorf("expected dry_run approver, got %q", e.ApprovedBy)
	}
	if e.RollbackStatus != ledger.StatusNone {
		t.Errorf("dry-run entries must not enter monitoring, got %s", e.RollbackStatus)
	}
}

func TestConsecutiveDryRunsConsumeCooldown(t *testing.T) {
	store := &memLedger{}
	x := New(Config{Ledger: store})
	ctx := context.Background()
	pol := autopilotPolicy()

	res, err := x.Execute(ctx, []model.CandidateAction{budgetAction("camp-1")}, pol, "sha256:x", DryRun)
	if err != nil || len(res.Successful) != 1 {
		t.Fatalf("first dry-run: %v %+v", err, res)
	}

	res, err = x.Execute(ctx, []model.CandidateAction{budgetAction("camp-1")}, pol, "sha256:x", DryRun)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Blocked) != 1 {
		t.Fatalf("second dry-run should hit cooldown, got %+v", res)
	}
	if !strings.Contains(res.Blocked[0].Reasons[0], "cooldown") {
		t.Errorf("expected cooldown reason, got %v", res.Blocked[0].Reasons)
	}
}

func TestLiveExecutionJournalsWithToken(t *testing.T) {
	store := &memLedger{}
	mut := &scriptedMutator{}
	x := New(Config{Ledger: store, Mutator: mut, ApprovedBy: "ops@agency"})

	res, err := x.Execute(context.Background(), []model.CandidateAction{budgetAction("camp-1")},
		autopilotPolicy(), "sha256:x", Live)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Successful) != 1 {
		t.Fatalf("expected success, got %+v", res)
	}
	e := store.entries[0]
	if e.ApprovedBy != "ops@agency" {
		t.Errorf("approver lost: %q", e.ApprovedBy)
	}
	if e.RollbackStatus != ledger.StatusMonitoring {
		t.Errorf("live entries must enter monitoring, got %s", e.RollbackStatus)
	}
	if !strings.Contains(e.Metadata, "tok-camp-1") {
		t.Errorf("mutation token not journaled: %q", e.Metadata)
	}
}

func TestBatchIsolatesItemFailures(t *testing.T) {
	store := &memLedger{}
	mut := &scriptedMutator{failFor: map[string]error{"camp-2": errors.New("quota exceeded")}}
	x := New(Config{Ledger: store, Mutator: mut})

	batch := []model.CandidateAction{
		budgetAction("camp-1"),
		budgetAction("camp-2"),
		budgetAction("camp-3"),
	}
	res, err := x.Execute(context.Background(), batch, autopilotPolicy(), "sha256:x", Live)
	if err != nil {
		t.Fatalf("one bad item must not abort the batch: %v", err)
	}
	if len(res.Successful) != 2 || len(res.Failed) != 1 {
		t.Fatalf("expected 2 ok / 1 failed, got %s", res.Summary())
	}
	if res.Failed[0].Action.EntityID != "camp-2" {
		t.Errorf("wrong item failed: %+v", res.Failed[0])
	}
	if !strings.Contains(res.Failed[0].Err, "quota exceeded") {
		t.Errorf("cause lost: %q", res.Failed[0].Err)
	}
}

func TestRateLimitCountsEarlierBatchItems(t *testing.T) {
	store := &memLedger{}
	mut := &scriptedMutator{}
	x := New(Config{Ledger: store, Mutator: mut})

	pol := autopilotPolicy()
	pol.DailyCaps["budget_change"] = 1

	batch := []model.CandidateAction{
		budgetAction("camp-1"),
		budgetAction("camp-2"),
	}
	res, err := x.Execute(context.Background(), batch, pol, "sha256:x", Live)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Successful) != 1 || len(res.Blocked) != 1 {
		t.Fatalf("second item should see the first item's ledger write, got %s", res.Summary())
	}
	if !strings.Contains(res.Blocked[0].Reasons[0], "rate limit") {
		t.Errorf("expected rate-limit reason, got %v", res.Blocked[0].Reasons)
	}
}

func TestBlockedItemsAreNotJournaled(t *testing.T) {
	store := &memLedger{}
	x := New(Config{Ledger: store})

	pol := autopilotPolicy()
	pol.ProtectedEntities = []string{"camp-1"}

	res, err := x.Execute(context.Background(), []model.CandidateAction{budgetAction("camp-1")},
		pol, "sha256:x", DryRun)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Blocked) != 1 {
		t.Fatalf("expected block, got %+v", res)
	}
	if len(store.entries) != 0 {
		t.Error("blocked attempts must not appear in the ledger")
	}
}

func TestSuggestModeReportsManual(t *testing.T) {
	store := &memLedger{}
	x := New(Config{Ledger: store})

	res, err := x.Execute(context.Background(), []model.CandidateAction{budgetAction("camp-1")},
		policy.DefaultPolicy("cust-1"), "sha256:x", DryRun)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Manual) != 1 {
		t.Fatalf("default policy is suggest mode, expected manual, got %s", res.Summary())
	}
	if len(store.entries) != 0 {
		t.Error("manual items must not be journaled")
	}
}

func TestInvalidPolicyAbortsBeforeAnyWork(t *testing.T) {
	store := &memLedger{}
	x := New(Config{Ledger: store})

	pol := autopilotPolicy()
	pol.Rollback.CPARisePct = -5

	_, err := x.Execute(context.Background(), []model.CandidateAction{budgetAction("camp-1")},
		pol, "sha256:x", Live)
	if !errors.Is(err, policy.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if len(store.entries) != 0 {
		t.Error("nothing may be journaled under an invalid policy")
	}
}

func TestUnknownModeRejected(t *testing.T) {
	x := New(Config{Ledger: &memLedger{}})
	_, err := x.Execute(context.Background(), nil, autopilotPolicy(), "sha256:x", Mode("turbo"))
	if !errors.Is(err, policy.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for unknown mode, got %v", err)
	}
}

func TestLedgerWriteFailureAfterMutationSurfaces(t *testing.T) {
	store := &memLedger{failAll: true}
	mut := &scriptedMutator{}
	x := New(Config{Ledger: store, Mutator: mut})

	res, err := x.Execute(context.Background(), []model.CandidateAction{budgetAction("camp-1")},
		autopilotPolicy(), "sha256:x", Live)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("expected failure surfaced, got %s", res.Summary())
	}
	if !strings.Contains(res.Failed[0].Err, "ledger write failed") {
		t.Errorf("the applied-but-unjournaled case must be loud: %q", res.Failed[0].Err)
	}
	if !strings.Contains(res.Failed[0].Err, "tok-camp-1") {
		t.Errorf("token must be included for manual reconciliation: %q", res.Failed[0].Err)
	}
}

// unencodableEvidence cannot pass through json.Marshal, so building the
// ledger entry fails after the mutation already applied.
type unencodableEvidence struct{ Ch chan int }

func (unencodableEvidence) Kind() string { return "budget" }

func TestEntryBuildFailureAfterMutationSurfaces(t *testing.T) {
	trailPath := filepath.Join(t.TempDir(), "trail.jsonl")
	trail, err := audit.Open(trailPath)
	if err != nil {
		t.Fatal(err)
	}
	store := &memLedger{}
	mut := &scriptedMutator{}
	x := New(Config{Ledger: store, Mutator: mut, Trail: trail})

	action := budgetAction("camp-1")
	action.Evidence = unencodableEvidence{}

	res, err := x.Execute(context.Background(), []model.CandidateAction{action},
		autopilotPolicy(), "sha256:x", Live)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Failed) != 1 {
		t.Fatalf("expected failure surfaced, got %s", res.Summary())
	}
	if !strings.Contains(res.Failed[0].Err, "tok-camp-1") {
		t.Errorf("token must be included for manual reconciliation: %q", res.Failed[0].Err)
	}
	if len(store.entries) != 0 {
		t.Error("no ledger entry expected when the entry could not be built")
	}
	if err := trail.Close(); err != nil {
		t.Fatal(err)
	}

	// The applied-but-unjournaled mutation must leave an audit line carrying
	// the token.
	data, err := os.ReadFile(trailPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"decision":"failed"`) {
		t.Errorf("expected a failed audit line, got %s", data)
	}
	if !strings.Contains(string(data), "tok-camp-1") {
		t.Errorf("audit line must carry the mutation token: %s", data)
	}
}

func TestCancelledContextStopsBetweenItems(t *testing.T) {
	store := &memLedger{}
	x := New(Config{Ledger: store})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := x.Execute(ctx, []model.CandidateAction{budgetAction("camp-1")},
		autopilotPolicy(), "sha256:x", DryRun)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(store.entries) != 0 {
		t.Error("no writes after cancellation")
	}
}
