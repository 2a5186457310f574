package racha

import (
	"context"
	"database/sql"
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/racha/internal/metrics"
	"github.com/hitoshi/racha/internal/model"
)

// TestRemoveParticipant_RedistributesAmongRemaining はCを外すと支出がAとBで割り直されることを検証する。
func TestRemoveParticipant_RedistributesAmongRemaining(t *testing.T) {
	f := newFixture(t)
	a := f.addParticipant(t, "A")
	b := f.addParticipant(t, "B")
	c := f.addParticipant(t, "C")
	e := f.recordExpense(t, a, "100.00", a, b, c)

	result, err := f.svc.RemoveParticipant(context.Background(), testEventID, c.ID)
	if err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}

	if !result.Removed || result.Deactivated {
		t.Errorf("result = %+v, want Removed", result)
	}
	if !reflect.DeepEqual(result.RebalancedExpenseIDs, []string{e.ID}) {
		t.Errorf("RebalancedExpenseIDs = %v, want [%s]", result.RebalancedExpenseIDs, e.ID)
	}

	got := f.storedShares(e.ID)
	want := map[string]string{a.ID: "50.00", b.ID: "50.00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("shares = %v, want %v", got, want)
	}

	if _, ok := f.uow.state.participants[c.ID]; ok {
		t.Error("participant without history should be hard-deleted")
	}

	balances := f.settlement(t)
	if _, ok := balances[c.ID]; ok {
		t.Error("removed participant must not appear in settlement")
	}
	assertAmount(t, "A.Balance", balances[a.ID].Balance, "50.00")
	assertAmount(t, "B.Balance", balances[b.ID].Balance, "-50.00")

	if opts := f.uow.txOptions[len(f.uow.txOptions)-2]; opts == nil || opts.Isolation != sql.LevelReadCommitted {
		t.Errorf("removal tx options = %+v, want read committed", opts)
	}
	if !reflect.DeepEqual(f.recorder.removals, []string{metrics.RemovalOutcomeDeleted}) {
		t.Errorf("removals = %v", f.recorder.removals)
	}
	if f.recorder.rebalanced != 1 {
		t.Errorf("rebalanced = %d, want 1", f.recorder.rebalanced)
	}
}

// TestRemoveParticipant_RemainderFollowsCreationOrder は再配分の端数も作成順に配分されることを検証する。
func TestRemoveParticipant_RemainderFollowsCreationOrder(t *testing.T) {
	f := newFixture(t)
	a := f.addParticipant(t, "A")
	b := f.addParticipant(t, "B")
	c := f.addParticipant(t, "C")
	d := f.addParticipant(t, "D")
	e := f.recordExpense(t, a, "10.00", d, c, b, a)

	if _, err := f.svc.RemoveParticipant(context.Background(), testEventID, b.ID); err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}

	got := f.storedShares(e.ID)
	want := map[string]string{a.ID: "3.34", c.ID: "3.33", d.ID: "3.33"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("shares = %v, want %v", got, want)
	}
}

// TestRemoveParticipant_PayerIsDeactivated は支払者履歴のある参加者が無効化に留まることを検証する。
func TestRemoveParticipant_PayerIsDeactivated(t *testing.T) {
	f := newFixture(t)
	a := f.addParticipant(t, "A")
	b := f.addParticipant(t, "B")
	c := f.addParticipant(t, "C")
	e := f.recordExpense(t, a, "90.00", a, b, c)

	result, err := f.svc.RemoveParticipant(context.Background(), testEventID, a.ID)
	if err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	if !result.Deactivated || result.Removed {
		t.Errorf("result = %+v, want Deactivated", result)
	}

	stored, ok := f.uow.state.participants[a.ID]
	if !ok {
		t.Fatal("payer row must be kept")
	}
	if stored.IsActive {
		t.Error("payer should be inactive")
	}
	if f.uow.state.expenses[e.ID].PayerID != a.ID {
		t.Error("payer attribution must be preserved")
	}

	got := f.storedShares(e.ID)
	want := map[string]string{b.ID: "45.00", c.ID: "45.00"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("shares = %v, want %v", got, want)
	}

	// 無効な支払者の支出は精算から外れ、残る2人は0になる
	balances := f.settlement(t)
	if len(balances) != 2 {
		t.Fatalf("balances = %d, want 2", len(balances))
	}
	for _, bal := range balances {
		assertAmount(t, bal.Name+".Balance", bal.Balance, "0")
	}
	if !reflect.DeepEqual(f.recorder.removals, []string{metrics.RemovalOutcomeDeactivated}) {
		t.Errorf("removals = %v", f.recorder.removals)
	}
}

// TestRemoveParticipant_SoleShareholderBlocks は唯一の負担者を外そうとすると何も変わらないことを検証する。
func TestRemoveParticipant_SoleShareholderBlocks(t *testing.T) {
	f := newFixture(t)
	a := f.addParticipant(t, "A")
	b := f.addParticipant(t, "B")
	c := f.addParticipant(t, "C")
	shared := f.recordExpense(t, a, "60.00", a, b, c)
	sole := f.recordExpense(t, a, "15.00", c)

	before := f.uow.state.clone()

	_, err := f.svc.RemoveParticipant(context.Background(), testEventID, c.ID)
	apiErr := assertCode(t, err, "UNIQUE_SHAREHOLDER_CONFLICT")
	if !errors.Is(err, model.ErrUniqueShareholderConflict) {
		t.Error("errors.Is should match the sentinel")
	}
	if ids, _ := apiErr.Details["expense_ids"].([]string); !reflect.DeepEqual(ids, []string{sole.ID}) {
		t.Errorf("expense_ids = %v, want [%s]", apiErr.Details["expense_ids"], sole.ID)
	}

	if !reflect.DeepEqual(f.uow.state.shares, before.shares) {
		t.Error("shares must be unchanged")
	}
	if !reflect.DeepEqual(f.uow.state.participants, before.participants) {
		t.Error("participants must be unchanged")
	}
	if got := f.storedShares(shared.ID); len(got) != 3 {
		t.Errorf("shared expense shares = %d, want 3", len(got))
	}
	if !reflect.DeepEqual(f.recorder.removals, []string{metrics.RemovalOutcomeBlocked}) {
		t.Errorf("removals = %v", f.recorder.removals)
	}
}

func TestRemoveParticipant_UnblockedAfterDeletingExpense(t *testing.T) {
	f := newFixture(t)
	a := f.addParticipant(t, "A")
	c := f.addParticipant(t, "C")
	sole := f.recordExpense(t, a, "15.00", c)

	if _, err := f.svc.RemoveParticipant(context.Background(), testEventID, c.ID); err == nil {
		t.Fatal("expected conflict before deleting the expense")
	}
	if err := f.svc.DeleteExpense(context.Background(), testEventID, sole.ID); err != nil {
		t.Fatalf("DeleteExpense failed: %v", err)
	}

	result, err := f.svc.RemoveParticipant(context.Background(), testEventID, c.ID)
	if err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}
	if !result.Removed || len(result.RebalancedExpenseIDs) != 0 {
		t.Errorf("result = %+v, want Removed with no rebalanced expenses", result)
	}
}

func TestRemoveParticipant_NotFound(t *testing.T) {
	f := newFixture(t)
	a := f.addParticipant(t, "A")
	inactive := f.addParticipant(t, "Old")
	if err := f.uow.Participants().Deactivate(context.Background(), inactive.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	f.uow.state.events["event-2"] = model.Event{ID: "event-2", Kind: model.EventKindPostpaid}

	tests := []struct {
		name          string
		eventID       string
		participantID string
		wantCode      string
	}{
		{name: "存在しない参加者", eventID: testEventID, participantID: "ghost", wantCode: "PARTICIPANT_NOT_FOUND"},
		{name: "別イベントの参加者", eventID: "event-2", participantID: a.ID, wantCode: "PARTICIPANT_NOT_FOUND"},
		{name: "無効化済みの参加者", eventID: testEventID, participantID: inactive.ID, wantCode: "PARTICIPANT_NOT_FOUND"},
		{name: "存在しないイベント", eventID: "missing", participantID: a.ID, wantCode: "EVENT_NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RemoveParticipant(context.Background(), tt.eventID, tt.participantID)
			assertCode(t, err, tt.wantCode)
		})
	}
}

// TestRemoveParticipant_RollsBackOnFailure は書き換え途中の失敗で全件が元に戻ることを検証する。
func TestRemoveParticipant_RollsBackOnFailure(t *testing.T) {
	f := newFixture(t)
	a := f.addParticipant(t, "A")
	b := f.addParticipant(t, "B")
	c := f.addParticipant(t, "C")
	f.recordExpense(t, a, "100.00", a, b, c)
	f.recordExpense(t, b, "50.00", b, c)

	before := f.uow.state.clone()
	f.uow.replaceSharesErr = errors.New("connection reset")

	_, err := f.svc.RemoveParticipant(context.Background(), testEventID, c.ID)
	if err == nil {
		t.Fatal("expected error")
	}
	if !reflect.DeepEqual(f.uow.state.shares, before.shares) {
		t.Error("shares must be rolled back")
	}
	if _, ok := f.uow.state.participants[c.ID]; !ok {
		t.Error("participant must still exist")
	}
	if len(f.recorder.removals) != 0 {
		t.Errorf("removals = %v, want none", f.recorder.removals)
	}
}

// TestRemoveParticipant_PreservesTotals は再配分後も全支出の負担額合計が総額に一致し、
// 精算がゼロサムのままであることを検証する。
func TestRemoveParticipant_PreservesTotals(t *testing.T) {
	f := newFixture(t)
	a := f.addParticipant(t, "A")
	b := f.addParticipant(t, "B")
	c := f.addParticipant(t, "C")
	d := f.addParticipant(t, "D")
	f.recordExpense(t, a, "100.00", a, b, c, d)
	f.recordExpense(t, b, "0.07", b, c, d)
	f.recordExpense(t, d, "33.33", c, d)
	f.recordExpense(t, c, "12.34", a, c)

	if _, err := f.svc.RemoveParticipant(context.Background(), testEventID, c.ID); err != nil {
		t.Fatalf("RemoveParticipant failed: %v", err)
	}

	for id, e := range f.uow.state.expenses {
		if sum := model.SumShares(f.uow.state.shares[id]); !sum.Equal(e.TotalAmount) {
			t.Errorf("expense %s: shares sum to %s, want %s", id, sum, e.TotalAmount)
		}
	}

	net := decimal.Zero
	for _, bal := range f.settlement(t) {
		net = net.Add(bal.Balance)
	}
	if !net.IsZero() {
		t.Errorf("sum(Balance) = %s, want 0", net)
	}
}

func TestRemoveParticipant_ClosedRachaIsFrozen(t *testing.T) {
	f := newFixture(t)
	a := f.addParticipant(t, "A")
	f.closeSettlement(t)

	_, err := f.svc.RemoveParticipant(context.Background(), testEventID, a.ID)
	assertCode(t, err, "SETTLEMENT_ALREADY_FINAL")
}
