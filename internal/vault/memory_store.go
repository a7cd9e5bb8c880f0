package vault

import (
	"context"
	"math/big"
	"sync"
	"time"
)

// MemoryStore 以内存方式保存合约状态，主要用于测试与本地开发。
type MemoryStore struct {
	mu       sync.RWMutex
	admin    string
	balances map[balanceKey]*big.Int
	locks    map[string]map[uint64]*LockEntry
	nextIDs  map[string]uint64
}

type balanceKey struct {
	owner string
	token string
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		balances: make(map[balanceKey]*big.Int),
		locks:    make(map[string]map[uint64]*LockEntry),
		nextIDs:  make(map[string]uint64),
	}
}

// Admin 实现 Store 接口。
func (m *MemoryStore) Admin(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admin, nil
}

// SetAdmin 实现 Store 接口。管理员记录只允许写入一次。
func (m *MemoryStore) SetAdmin(_ context.Context, admin string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.admin != "" {
		return ErrAlreadyInitialized
	}
	m.admin = admin
	return nil
}

// Balance 实现 Store 接口。
func (m *MemoryStore) Balance(_ context.Context, owner, token string) (*big.Int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if amount, ok := m.balances[balanceKey{owner: owner, token: token}]; ok {
		return cloneAmount(amount), nil
	}
	return big.NewInt(0), nil
}

// SetBalance 实现 Store 接口。
func (m *MemoryStore) SetBalance(_ context.Context, owner, token string, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[balanceKey{owner: owner, token: token}] = cloneAmount(amount)
	return nil
}

// GetLock 实现 Store 接口。
func (m *MemoryStore) GetLock(_ context.Context, owner string, id uint64) (*LockEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.locks[owner][id]
	if !ok {
		return nil, ErrLockNotFound
	}
	return cloneLock(entry), nil
}

// PutLock 实现 Store 接口。
func (m *MemoryStore) PutLock(_ context.Context, entry *LockEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := cloneLock(entry)
	now := time.Now().Unix()
	if clone.CreatedAt == 0 {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now
	byOwner, ok := m.locks[clone.Owner]
	if !ok {
		byOwner = make(map[uint64]*LockEntry)
		m.locks[clone.Owner] = byOwner
	}
	byOwner[clone.ID] = clone
	return nil
}

// NextLockID 实现 Store 接口。
func (m *MemoryStore) NextLockID(_ context.Context, owner string) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.nextIDs[owner], nil
}

// SetNextLockID 实现 Store 接口。
func (m *MemoryStore) SetNextLockID(_ context.Context, owner string, next uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextIDs[owner] = next
	return nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

// ensure interface compliance at compile time
var _ Store = (*MemoryStore)(nil)
