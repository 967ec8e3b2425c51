package credit

import (
	"context"
	"testing"

	"github.com/pixelmint/credit-engine/internal/chain"
)

var testReservation = Reservation{
	ID:        "res-test-001",
	User:      "0xABCDEF1234567890ABCDEF1234567890ABCDEF12",
	Credits:   200,
	Source:    chain.PackageSource(4),
	Status:    StatusReserved,
	Tag:       "generation:image",
	CreatedAt: 1_700_000_000,
}

func TestSaveReservation_GetReservation(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	r := testReservation
	if err := SaveReservation(ctx, rdb, &r); err != nil {
		t.Fatalf("SaveReservation: %v", err)
	}

	got, err := GetReservation(ctx, rdb, r.ID)
	if err != nil {
		t.Fatalf("GetReservation: %v", err)
	}
	if got == nil {
		t.Fatal("expected reservation, got nil")
	}
	if *got != r {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", *got, r)
	}
}

func TestGetReservation_NotFound(t *testing.T) {
	rdb := newTestRedis(t)

	got, err := GetReservation(context.Background(), rdb, "res-missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}

func TestTransitionStatus_SingleTerminal(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	r := testReservation
	if err := SaveReservation(ctx, rdb, &r); err != nil {
		t.Fatal(err)
	}

	ok, err := TransitionStatus(ctx, rdb, r.ID, StatusReserved, StatusSettled)
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if !ok {
		t.Fatal("first transition should succeed")
	}

	// Second attempt out of reserved must lose: the reservation already
	// reached a terminal state.
	ok, err = TransitionStatus(ctx, rdb, r.ID, StatusReserved, StatusRefunded)
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if ok {
		t.Fatal("second transition out of reserved must be refused")
	}

	got, _ := GetReservation(ctx, rdb, r.ID)
	if got.Status != StatusSettled {
		t.Errorf("status: got %s want %s", got.Status, StatusSettled)
	}
}

func TestTransitionStatus_MissingReservation(t *testing.T) {
	rdb := newTestRedis(t)

	ok, err := TransitionStatus(context.Background(), rdb, "res-ghost", StatusReserved, StatusSettled)
	if err != nil {
		t.Fatalf("TransitionStatus: %v", err)
	}
	if ok {
		t.Fatal("transition on a missing reservation must be refused")
	}
}

func TestTransitionStatus_RefundingRoundTrip(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	r := testReservation
	SaveReservation(ctx, rdb, &r) //nolint:errcheck

	if ok, _ := TransitionStatus(ctx, rdb, r.ID, StatusReserved, StatusRefunding); !ok {
		t.Fatal("claim should succeed")
	}
	// A failed ledger credit releases the claim back to reserved.
	if ok, _ := TransitionStatus(ctx, rdb, r.ID, StatusRefunding, StatusReserved); !ok {
		t.Fatal("release should succeed")
	}
	got, _ := GetReservation(ctx, rdb, r.ID)
	if got.Status != StatusReserved {
		t.Errorf("status: got %s want %s", got.Status, StatusReserved)
	}
}

func TestScanReservations_FiltersByStatus(t *testing.T) {
	rdb := newTestRedis(t)
	ctx := context.Background()

	a := testReservation
	a.ID = "res-a"
	b := testReservation
	b.ID = "res-b"
	b.Status = StatusRefunding
	c := testReservation
	c.ID = "res-c"
	c.Status = StatusSettled
	for _, r := range []Reservation{a, b, c} {
		rr := r
		SaveReservation(ctx, rdb, &rr) //nolint:errcheck
	}
	// Unrelated keys must not leak in.
	rdb.Set(ctx, "quota:0xabc:123", 1, 0) //nolint:errcheck

	got, err := ScanReservations(ctx, rdb, StatusRefunding)
	if err != nil {
		t.Fatalf("ScanReservations: %v", err)
	}
	if len(got) != 1 || got[0].ID != "res-b" {
		t.Fatalf("expected only res-b, got %+v", got)
	}
}
