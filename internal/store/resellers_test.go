package store

import (
	"context"
	"errors"
	"testing"

	"github.com/keygate/keygate/internal/model"
)

func TestResellerCRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := &model.Reseller{Username: "shop", PasswordHash: "$2a$10$hash"}
	if err := s.CreateReseller(ctx, res); err != nil {
		t.Fatalf("CreateReseller: %v", err)
	}
	if res.ID == 0 {
		t.Fatal("expected non-zero ID")
	}
	if res.Credits != 0 {
		t.Errorf("new reseller has credits %d", res.Credits)
	}

	dup := &model.Reseller{Username: "shop", PasswordHash: "x"}
	if err := s.CreateReseller(ctx, dup); !errors.Is(err, ErrDuplicateUsername) {
		t.Errorf("expected ErrDuplicateUsername, got %v", err)
	}

	got, err := s.GetResellerByUsername(ctx, "shop")
	if err != nil {
		t.Fatalf("GetResellerByUsername: %v", err)
	}
	if got.ID != res.ID {
		t.Errorf("got ID %d, want %d", got.ID, res.ID)
	}

	if err := s.UpdateResellerLastLogin(ctx, res.ID); err != nil {
		t.Fatalf("UpdateResellerLastLogin: %v", err)
	}
	got, _ = s.GetReseller(ctx, res.ID)
	if got.LastLogin == nil {
		t.Error("expected LastLogin to be set")
	}

	list, err := s.ListResellers(ctx)
	if err != nil {
		t.Fatalf("ListResellers: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d resellers, want 1", len(list))
	}
}

func TestCredits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := &model.Reseller{Username: "shop", PasswordHash: "h"}
	if err := s.CreateReseller(ctx, res); err != nil {
		t.Fatalf("CreateReseller: %v", err)
	}

	if err := s.AddCredits(ctx, res.ID, 10); err != nil {
		t.Fatalf("AddCredits: %v", err)
	}
	if err := s.AddCredits(ctx, res.ID, 0); err == nil {
		t.Error("expected error for zero amount")
	}
	if err := s.AddCredits(ctx, res.ID, -5); err == nil {
		t.Error("expected error for negative amount")
	}
	if err := s.AddCredits(ctx, 999, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	if err := s.DebitCredits(ctx, res.ID, 4); err != nil {
		t.Fatalf("DebitCredits: %v", err)
	}
	got, _ := s.GetReseller(ctx, res.ID)
	if got.Credits != 6 {
		t.Errorf("got credits %d, want 6", got.Credits)
	}

	// Over-debit fails, no mutation.
	if err := s.DebitCredits(ctx, res.ID, 7); !errors.Is(err, ErrInsufficientCredits) {
		t.Errorf("expected ErrInsufficientCredits, got %v", err)
	}
	got, _ = s.GetReseller(ctx, res.ID)
	if got.Credits != 6 {
		t.Errorf("credits changed on failed debit: %d", got.Credits)
	}

	// Exact balance drains to zero.
	if err := s.DebitCredits(ctx, res.ID, 6); err != nil {
		t.Fatalf("DebitCredits exact: %v", err)
	}
	got, _ = s.GetReseller(ctx, res.ID)
	if got.Credits != 0 {
		t.Errorf("got credits %d, want 0", got.Credits)
	}

	if err := s.DebitCredits(ctx, 999, 1); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteResellerOrphansKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := &model.Reseller{Username: "closing", PasswordHash: "h", Credits: 5}
	if err := s.CreateReseller(ctx, res); err != nil {
		t.Fatalf("CreateReseller: %v", err)
	}
	key := seedKey(t, s, "ORPHAN", func(k *model.LoginKey) { k.ResellerID = &res.ID })

	if err := s.DeleteReseller(ctx, res.ID); err != nil {
		t.Fatalf("DeleteReseller: %v", err)
	}

	got, err := s.GetKey(ctx, key.ID)
	if err != nil {
		t.Fatalf("key deleted with reseller: %v", err)
	}
	if got.ResellerID != nil {
		t.Errorf("key still references reseller %d", *got.ResellerID)
	}

	if err := s.DeleteReseller(ctx, res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound on second delete, got %v", err)
	}
}
