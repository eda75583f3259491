package authorization

import (
	"context"
	"errors"
	"testing"
)

func TestInviteRedeemConsumesUses(t *testing.T) {
	db := newTestDB(t)
	store := &InviteStore{db: db}
	ctx := context.Background()

	invite, err := store.Create(ctx, 2)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(invite.Code) != 10 {
		t.Fatalf("expected 10 character code, got %q", invite.Code)
	}

	if err := store.Redeem(ctx, invite.Code); err != nil {
		t.Fatalf("first redeem: %v", err)
	}
	// Codes are normalized, so lowercase input still matches.
	if err := store.Redeem(ctx, " "+invite.Code+" "); err != nil {
		t.Fatalf("second redeem: %v", err)
	}

	err = store.Redeem(ctx, invite.Code)
	if !errors.Is(err, ErrInvalidInviteCode) {
		t.Fatalf("expected ErrInvalidInviteCode once exhausted, got %v", err)
	}
}

func TestInviteRedeemUnknownCode(t *testing.T) {
	db := newTestDB(t)
	store := &InviteStore{db: db}

	err := store.Redeem(context.Background(), "NOPE123456")
	if !errors.Is(err, ErrInvalidInviteCode) {
		t.Fatalf("expected ErrInvalidInviteCode, got %v", err)
	}
}

func TestHasRole(t *testing.T) {
	roles := []string{"User", " admin "}
	if !HasRole(roles, "admin") {
		t.Fatalf("expected admin role match")
	}
	if HasRole(roles, "moderator") {
		t.Fatalf("unexpected moderator match")
	}
	if HasRole(nil, "admin") {
		t.Fatalf("nil roles must not match")
	}
}
