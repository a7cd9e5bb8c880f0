package vault

import (
	"math/big"
	"strings"

	xerrors "EscrowVault-Chain/internal/errors"
)

// LockStatus 表示锁定条目在生命周期中的状态。
type LockStatus string

const (
	StatusActive    LockStatus = "active"
	StatusReleased  LockStatus = "released"
	StatusReclaimed LockStatus = "reclaimed"
)

// LockEntry 描述一条链上锁定记录。条目永不物理删除，状态即终态标记。
type LockEntry struct {
	Owner     string     `json:"owner"`
	ID        uint64     `json:"id"`
	Token     string     `json:"token"`
	Amount    *big.Int   `json:"amount"`
	ExpiresAt uint64     `json:"expires_at"`
	Status    LockStatus `json:"status"`
	CreatedAt int64      `json:"created_at"`
	UpdatedAt int64      `json:"updated_at"`
}

var (
	// ErrAlreadyInitialized 表示合约已完成初始化。
	ErrAlreadyInitialized = xerrors.New(CodeAlreadyInitialized, "vault already initialized")
	// ErrNotInitialized 表示合约尚未初始化。
	ErrNotInitialized = xerrors.New(CodeNotInitialized, "vault not initialized")
	// ErrInvalidAmount 表示金额非正数或超出 i128 范围。
	ErrInvalidAmount = xerrors.New(CodeInvalidAmount, "amount must be a positive i128")
	// ErrInvalidExpiry 表示到期账本高度不在未来。
	ErrInvalidExpiry = xerrors.New(CodeInvalidExpiry, "expiry must be strictly in the future")
	// ErrInsufficientFunds 表示可用余额不足。
	ErrInsufficientFunds = xerrors.New(CodeInsufficientFunds, "insufficient free balance")
	// ErrLockNotFound 表示指定的锁定条目不存在。
	ErrLockNotFound = xerrors.New(CodeLockNotFound, "lock not found")
	// ErrLockNotActive 表示锁定条目已经离开 Active 状态。
	ErrLockNotActive = xerrors.New(CodeLockNotActive, "lock is not active")
	// ErrLockExpired 表示释放操作晚于到期高度。
	ErrLockExpired = xerrors.New(CodeLockExpired, "lock already expired")
	// ErrLockNotExpired 表示回收操作早于到期高度。
	ErrLockNotExpired = xerrors.New(CodeLockNotExpired, "lock not yet expired")
)

const (
	CodeAlreadyInitialized xerrors.Code = "VAULT_ALREADY_INITIALIZED"
	CodeNotInitialized     xerrors.Code = "VAULT_NOT_INITIALIZED"
	CodeInvalidAmount      xerrors.Code = "VAULT_INVALID_AMOUNT"
	CodeInvalidExpiry      xerrors.Code = "VAULT_INVALID_EXPIRY"
	CodeInsufficientFunds  xerrors.Code = "VAULT_INSUFFICIENT_FUNDS"
	CodeLockNotFound       xerrors.Code = "VAULT_LOCK_NOT_FOUND"
	CodeLockNotActive      xerrors.Code = "VAULT_LOCK_NOT_ACTIVE"
	CodeLockExpired        xerrors.Code = "VAULT_LOCK_EXPIRED"
	CodeLockNotExpired     xerrors.Code = "VAULT_LOCK_NOT_EXPIRED"
)

func init() {
	xerrors.Register(CodeAlreadyInitialized, xerrors.Attributes{
		Message:   "vault already initialized",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeNotInitialized, xerrors.Attributes{
		Message:   "vault not initialized",
		Severity:  xerrors.SeverityWarning,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInvalidAmount, xerrors.Attributes{
		Message:   "amount must be a positive i128",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInvalidExpiry, xerrors.Attributes{
		Message:   "expiry must be strictly in the future",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeInsufficientFunds, xerrors.Attributes{
		Message:   "insufficient free balance",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeLockNotFound, xerrors.Attributes{
		Message:   "lock not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeLockNotActive, xerrors.Attributes{
		Message:   "lock is not active",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeLockExpired, xerrors.Attributes{
		Message:   "lock already expired",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodeLockNotExpired, xerrors.Attributes{
		Message:   "lock not yet expired",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// i128 的取值边界。所有货币金额必须落在该区间内。
var (
	maxI128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minI128 = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// FitsI128 判断数值是否能用带符号 128 位整数表示。
func FitsI128(v *big.Int) bool {
	if v == nil {
		return false
	}
	return v.Cmp(minI128) >= 0 && v.Cmp(maxI128) <= 0
}

// validAmount 校验金额为正且在 i128 范围内。
func validAmount(v *big.Int) bool {
	return v != nil && v.Sign() > 0 && FitsI128(v)
}

// IsValidStatus 检查给定的锁定状态是否为支持的枚举值。
func IsValidStatus(status LockStatus) bool {
	switch status {
	case StatusActive, StatusReleased, StatusReclaimed:
		return true
	default:
		return false
	}
}

// canonical 统一地址书写形式，保证存储键不受大小写影响。
func canonical(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func cloneAmount(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func cloneLock(entry *LockEntry) *LockEntry {
	if entry == nil {
		return nil
	}
	clone := *entry
	clone.Amount = cloneAmount(entry.Amount)
	return &clone
}
