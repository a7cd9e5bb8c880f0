package vault

import (
	"context"
	"math/big"
)

// Store 抽象了合约持久化状态的访问接口。调用方负责串行化：
// 宿主账本对合约调用的互斥保证由 Vault 服务的互斥锁建模，
// 存储实现只需要保证单个方法的完整性。
type Store interface {
	// Admin 返回管理员地址，尚未初始化时返回空字符串。
	Admin(ctx context.Context) (string, error)
	// SetAdmin 持久化管理员地址，若已存在则返回 ErrAlreadyInitialized。
	SetAdmin(ctx context.Context, admin string) error

	// Balance 返回 (owner, token) 的可用余额，条目不存在时返回 0。
	Balance(ctx context.Context, owner, token string) (*big.Int, error)
	// SetBalance 覆盖写入 (owner, token) 的可用余额。
	SetBalance(ctx context.Context, owner, token string, amount *big.Int) error

	// GetLock 返回指定锁定条目，不存在时返回 ErrLockNotFound。
	GetLock(ctx context.Context, owner string, id uint64) (*LockEntry, error)
	// PutLock 写入或更新锁定条目。
	PutLock(ctx context.Context, entry *LockEntry) error

	// NextLockID 返回 owner 命名空间内下一个待分配的锁定 ID。
	NextLockID(ctx context.Context, owner string) (uint64, error)
	// SetNextLockID 推进 owner 命名空间的锁定 ID 计数器。
	SetNextLockID(ctx context.Context, owner string, next uint64) error

	Close() error
}
