package token

import (
	"context"
	"errors"
	"math/big"
	"testing"
)

func TestMemoryTokenTransfer(t *testing.T) {
	tok := NewMemoryToken()
	ctx := context.Background()

	tok.Mint("alice", big.NewInt(100))

	if err := tok.Transfer(ctx, "alice", "custody", big.NewInt(60)); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	from, err := tok.BalanceOf(ctx, "alice")
	if err != nil || from.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("expected alice 40, got %s, %v", from, err)
	}
	to, err := tok.BalanceOf(ctx, "custody")
	if err != nil || to.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("expected custody 60, got %s, %v", to, err)
	}
}

func TestMemoryTokenRejectsOverdraft(t *testing.T) {
	tok := NewMemoryToken()
	ctx := context.Background()

	tok.Mint("alice", big.NewInt(10))

	if err := tok.Transfer(ctx, "alice", "custody", big.NewInt(11)); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected transfer rejected, got %v", err)
	}
	if err := tok.Transfer(ctx, "ghost", "custody", big.NewInt(1)); !errors.Is(err, ErrTransferRejected) {
		t.Fatalf("expected transfer rejected for unknown account, got %v", err)
	}

	balance, err := tok.BalanceOf(ctx, "alice")
	if err != nil || balance.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("failed transfer must not move funds: %s, %v", balance, err)
	}
}

func TestMemoryTokenAddressNormalisation(t *testing.T) {
	tok := NewMemoryToken()
	ctx := context.Background()

	tok.Mint("ALICE", big.NewInt(5))
	if err := tok.Transfer(ctx, " alice ", "bob", big.NewInt(5)); err != nil {
		t.Fatalf("transfer with mixed-case address: %v", err)
	}
}
