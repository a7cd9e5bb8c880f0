package vault

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

func TestMemoryStoreAdminWriteOnce(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	admin, err := store.Admin(ctx)
	if err != nil || admin != "" {
		t.Fatalf("expected empty admin before init, got %q, %v", admin, err)
	}

	if err := store.SetAdmin(ctx, "alice"); err != nil {
		t.Fatalf("set admin: %v", err)
	}
	if err := store.SetAdmin(ctx, "bob"); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("expected already initialized, got %v", err)
	}

	admin, err = store.Admin(ctx)
	if err != nil || admin != "alice" {
		t.Fatalf("admin overwritten: %q, %v", admin, err)
	}
}

func TestMemoryStoreBalanceDefaultsToZero(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	balance, err := store.Balance(ctx, "alice", "usdc")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("expected zero balance, got %s", balance)
	}

	if err := store.SetBalance(ctx, "alice", "usdc", big.NewInt(42)); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	balance, err = store.Balance(ctx, "alice", "usdc")
	if err != nil || balance.Cmp(big.NewInt(42)) != 0 {
		t.Fatalf("expected 42, got %s, %v", balance, err)
	}

	// 不同代币的余额彼此独立。
	other, err := store.Balance(ctx, "alice", "weth")
	if err != nil || other.Sign() != 0 {
		t.Fatalf("expected independent zero balance, got %s, %v", other, err)
	}
}

func TestMemoryStoreBalanceIsolation(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	amount := big.NewInt(10)
	if err := store.SetBalance(ctx, "alice", "usdc", amount); err != nil {
		t.Fatalf("set balance: %v", err)
	}
	amount.SetInt64(999)

	balance, err := store.Balance(ctx, "alice", "usdc")
	if err != nil || balance.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("stored balance aliased caller's big.Int: %s, %v", balance, err)
	}

	balance.SetInt64(-1)
	again, err := store.Balance(ctx, "alice", "usdc")
	if err != nil || again.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("returned balance aliased stored value: %s, %v", again, err)
	}
}

func TestMemoryStoreLockRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.GetLock(ctx, "alice", 0); !errors.Is(err, ErrLockNotFound) {
		t.Fatalf("expected lock not found, got %v", err)
	}

	entry := &LockEntry{
		Owner:     "alice",
		ID:        0,
		Token:     "usdc",
		Amount:    big.NewInt(30),
		ExpiresAt: 110,
		Status:    StatusActive,
	}
	if err := store.PutLock(ctx, entry); err != nil {
		t.Fatalf("put lock: %v", err)
	}

	got, err := store.GetLock(ctx, "alice", 0)
	if err != nil {
		t.Fatalf("get lock: %v", err)
	}
	if got.Status != StatusActive || got.ExpiresAt != 110 || got.Amount.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected lock entry: %+v", got)
	}
	if got.CreatedAt == 0 || got.UpdatedAt == 0 {
		t.Fatalf("timestamps not stamped: %+v", got)
	}

	got.Status = StatusReleased
	if err := store.PutLock(ctx, got); err != nil {
		t.Fatalf("update lock: %v", err)
	}
	updated, err := store.GetLock(ctx, "alice", 0)
	if err != nil || updated.Status != StatusReleased {
		t.Fatalf("status update lost: %+v, %v", updated, err)
	}
}

func TestMemoryStoreLockIDCounterPerOwner(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	next, err := store.NextLockID(ctx, "alice")
	if err != nil || next != 0 {
		t.Fatalf("expected first id 0, got %d, %v", next, err)
	}
	if err := store.SetNextLockID(ctx, "alice", 1); err != nil {
		t.Fatalf("set next id: %v", err)
	}

	next, err = store.NextLockID(ctx, "alice")
	if err != nil || next != 1 {
		t.Fatalf("expected 1, got %d, %v", next, err)
	}
	other, err := store.NextLockID(ctx, "bob")
	if err != nil || other != 0 {
		t.Fatalf("counters must be per owner, got %d, %v", other, err)
	}
}
