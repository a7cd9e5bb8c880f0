package token

import (
	"context"
	"math/big"
	"strings"
	"sync"

	xerrors "EscrowVault-Chain/internal/errors"
)

// MemoryToken 在内存中模拟一个代币合约，主要用于测试与本地开发。
type MemoryToken struct {
	mu       sync.RWMutex
	balances map[string]*big.Int
}

// NewMemoryToken 创建 MemoryToken。
func NewMemoryToken() *MemoryToken {
	return &MemoryToken{balances: make(map[string]*big.Int)}
}

// Mint 为账户铸造代币。仅测试环境使用。
func (t *MemoryToken) Mint(account string, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := normalise(account)
	balance, ok := t.balances[key]
	if !ok {
		balance = big.NewInt(0)
		t.balances[key] = balance
	}
	balance.Add(balance, amount)
}

// Transfer 实现 Client 接口。余额不足时拒绝划转。
func (t *MemoryToken) Transfer(_ context.Context, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return xerrors.New(xerrors.CodeTransferFailure, "划转金额必须为正数")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	fromKey := normalise(from)
	source, ok := t.balances[fromKey]
	if !ok || source.Cmp(amount) < 0 {
		return ErrTransferRejected
	}
	source.Sub(source, amount)

	toKey := normalise(to)
	dest, ok := t.balances[toKey]
	if !ok {
		dest = big.NewInt(0)
		t.balances[toKey] = dest
	}
	dest.Add(dest, amount)
	return nil
}

// BalanceOf 实现 Client 接口。
func (t *MemoryToken) BalanceOf(_ context.Context, account string) (*big.Int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if balance, ok := t.balances[normalise(account)]; ok {
		return new(big.Int).Set(balance), nil
	}
	return big.NewInt(0), nil
}

// Close 对内存代币无需操作。
func (t *MemoryToken) Close() error {
	return nil
}

func normalise(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

var _ Client = (*MemoryToken)(nil)
