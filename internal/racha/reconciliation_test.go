package racha

import (
	"context"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/racha/internal/model"
)

func TestComputeReconciliation(t *testing.T) {
	f := newFixture(t)
	a := f.addParticipant(t, "A")
	b := f.addParticipant(t, "B")
	c := f.addParticipant(t, "C")
	f.recordExpense(t, a, "100.00", a, b, c)
	f.closeSettlement(t)
	f.recordPayment(t, b, "33.33", "pix-b")
	f.recordPayment(t, c, "10.00", "pix-c")
	for _, id := range []string{"pix-b", "pix-c"} {
		if _, err := f.svc.ApplyPaymentNotification(context.Background(), PaymentNotification{
			ProviderPaymentID: id, Status: model.PaymentStatusPaid,
		}); err != nil {
			t.Fatalf("ApplyPaymentNotification(%s) failed: %v", id, err)
		}
	}

	rows, err := f.svc.ComputeReconciliation(context.Background(), testEventID)
	if err != nil {
		t.Fatalf("ComputeReconciliation failed: %v", err)
	}
	byID := make(map[string]Reconciliation, len(rows))
	for _, r := range rows {
		byID[r.ParticipantID] = r
	}

	assertAmount(t, "A.AmountOwed", byID[a.ID].AmountOwed, "0")
	assertAmount(t, "A.Remaining", byID[a.ID].Remaining, "0")
	assertAmount(t, "B.AmountOwed", byID[b.ID].AmountOwed, "33.33")
	assertAmount(t, "B.Paid", byID[b.ID].Paid, "33.33")
	assertAmount(t, "B.Remaining", byID[b.ID].Remaining, "0")
	assertAmount(t, "C.Paid", byID[c.ID].Paid, "10.00")
	assertAmount(t, "C.Remaining", byID[c.ID].Remaining, "23.33")

	if got := OutstandingParticipantIDs(rows); !reflect.DeepEqual(got, []string{c.ID}) {
		t.Errorf("OutstandingParticipantIDs = %v, want [%s]", got, c.ID)
	}
}

func TestReconcile_OverpaymentLeavesNothingRemaining(t *testing.T) {
	balances := []Balance{
		{ParticipantID: "b", Balance: decimal.RequireFromString("-5.00")},
	}
	paid := map[string]decimal.Decimal{"b": decimal.RequireFromString("7.50")}

	got := reconcile(balances, paid)

	assertAmount(t, "AmountOwed", got[0].AmountOwed, "5.00")
	assertAmount(t, "Remaining", got[0].Remaining, "0")
}
