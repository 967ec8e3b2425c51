package ledger

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/pixelmint/credit-engine/internal/chain"
	"github.com/pixelmint/credit-engine/internal/credit"
	"github.com/pixelmint/credit-engine/internal/generation"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	mr := miniredis.RunT(t)
	return New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
}

const testUser = "0xABCDEF1234567890ABCDEF1234567890ABCDEF12"

func testReservation(id string) *credit.Reservation {
	return &credit.Reservation{
		ID:      id,
		User:    testUser,
		Credits: 200,
		Source:  chain.Fungible(),
		Status:  credit.StatusSettled,
	}
}

func TestRecordSettled(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	job := &generation.Job{ID: "job-1", ModelUsed: "flux-pro", ResultRef: "https://cdn.example/a.png"}
	if err := l.RecordSettled(ctx, testReservation("res-1"), job); err != nil {
		t.Fatalf("RecordSettled: %v", err)
	}

	entries, err := l.Entries(ctx, testUser, 10)
	if err != nil {
		t.Fatalf("Entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.Kind != KindSettled || e.ReservationID != "res-1" || e.JobID != "job-1" {
		t.Errorf("entry: %+v", e)
	}
	if e.Credits != 200 || e.Source != "fungible" || e.ModelUsed != "flux-pro" {
		t.Errorf("entry payload: %+v", e)
	}

	consumed, err := l.ConsumedCredits(ctx, testUser)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != 200 {
		t.Errorf("consumed: got %d want 200", consumed)
	}
}

func TestRecordRefund(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if err := l.RecordRefund(ctx, testReservation("res-2")); err != nil {
		t.Fatalf("RecordRefund: %v", err)
	}

	entries, _ := l.Entries(ctx, testUser, 10)
	if len(entries) != 1 || entries[0].Kind != KindRefund {
		t.Fatalf("entries: %+v", entries)
	}

	refunds, err := l.RefundCount(ctx, testUser)
	if err != nil {
		t.Fatal(err)
	}
	if refunds != 1 {
		t.Errorf("refund count: got %d want 1", refunds)
	}
	// Refunds never count toward consumption.
	consumed, _ := l.ConsumedCredits(ctx, testUser)
	if consumed != 0 {
		t.Errorf("consumed: got %d want 0", consumed)
	}
}

func TestEntries_AppendOnlyOrder(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	l.RecordSettled(ctx, testReservation("res-a"), &generation.Job{ID: "job-a"}) //nolint:errcheck
	l.RecordRefund(ctx, testReservation("res-b"))                                //nolint:errcheck
	l.RecordSettled(ctx, testReservation("res-c"), &generation.Job{ID: "job-c"}) //nolint:errcheck

	entries, err := l.Entries(ctx, testUser, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{"res-a", "res-b", "res-c"}
	for i, id := range want {
		if entries[i].ReservationID != id {
			t.Errorf("[%d] reservation: got %s want %s", i, entries[i].ReservationID, id)
		}
	}
}

func TestEntries_Limit(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3", "r4"} {
		l.RecordRefund(ctx, testReservation(id)) //nolint:errcheck
	}

	entries, err := l.Entries(ctx, testUser, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Most recent two, oldest first.
	if entries[0].ReservationID != "r3" || entries[1].ReservationID != "r4" {
		t.Errorf("entries: %+v", entries)
	}
}

func TestCounters_EmptyUser(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if n, err := l.ConsumedCredits(ctx, "0xNOBODY"); err != nil || n != 0 {
		t.Errorf("consumed: %d %v", n, err)
	}
	if n, err := l.RefundCount(ctx, "0xNOBODY"); err != nil || n != 0 {
		t.Errorf("refunds: %d %v", n, err)
	}
}
