package vault

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"EscrowVault-Chain/internal/auth"
	"EscrowVault-Chain/internal/chain"
	xerrors "EscrowVault-Chain/internal/errors"
	"EscrowVault-Chain/internal/event"
	"EscrowVault-Chain/internal/token"
	"EscrowVault-Chain/pkg/logger"
)

// Vault 实现托管金库的全部合约入口。宿主账本对合约调用的串行化
// 由内部互斥锁建模：任意时刻只有一个操作在读写状态。
type Vault struct {
	mu         sync.Mutex
	store      Store
	token      token.Client
	sequencer  chain.Sequencer
	events     event.Publisher
	authorizer auth.Authorizer
	custody    string
}

// Options 描述构造 Vault 服务所需的依赖。
type Options struct {
	Store      Store
	Token      token.Client
	Sequencer  chain.Sequencer
	Events     event.Publisher
	Authorizer auth.Authorizer
	// Custody 是金库的托管账户地址，存入的代币全部转入该账户。
	Custody string
}

// NewVault 构造金库服务。Store、Token 与 Sequencer 为必填依赖。
func NewVault(opts Options) (*Vault, error) {
	if opts.Store == nil {
		return nil, errors.New("金库存储未配置")
	}
	if opts.Token == nil {
		return nil, errors.New("代币客户端未配置")
	}
	if opts.Sequencer == nil {
		return nil, errors.New("账本序号来源未配置")
	}
	events := opts.Events
	if events == nil {
		events = event.NewMemoryPublisher(0)
	}
	authorizer := opts.Authorizer
	if authorizer == nil {
		authorizer = auth.NewCallerAuthorizer()
	}
	return &Vault{
		store:      opts.Store,
		token:      opts.Token,
		sequencer:  opts.Sequencer,
		events:     events,
		authorizer: authorizer,
		custody:    canonical(opts.Custody),
	}, nil
}

// Init 完成一次性初始化并记录管理员地址。重复调用返回
// ErrAlreadyInitialized，已有管理员保持不变。
func (v *Vault) Init(ctx context.Context, admin string) error {
	admin = canonical(admin)
	if admin == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "管理员地址不能为空")
	}
	if err := v.authorizer.RequireAuth(ctx, admin); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.store.SetAdmin(ctx, admin); err != nil {
		return err
	}

	seq := v.currentSequence(ctx)
	logger.Audit().Info("金库初始化完成", "admin", admin, "ledger_seq", seq)
	evt := event.New(event.TypeInit, admin)
	evt.LedgerSeq = seq
	v.publish(ctx, evt)
	return nil
}

// Owner 返回当前管理员地址，尚未初始化时返回 ErrNotInitialized。
func (v *Vault) Owner(ctx context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	admin, err := v.store.Admin(ctx)
	if err != nil {
		return "", err
	}
	if admin == "" {
		return "", ErrNotInitialized
	}
	return admin, nil
}

// Deposit 将 owner 的代币转入托管账户并记入可用余额。
func (v *Vault) Deposit(ctx context.Context, owner, tokenAddr string, amount *big.Int) error {
	owner = canonical(owner)
	tokenAddr = canonical(tokenAddr)
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if err := v.authorizer.RequireAuth(ctx, owner); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireInitialized(ctx); err != nil {
		return err
	}

	// 先完成代币划转，转账失败时余额不变。
	if err := v.token.Transfer(ctx, owner, v.custody, amount); err != nil {
		return err
	}

	balance, err := v.store.Balance(ctx, owner, tokenAddr)
	if err != nil {
		return err
	}
	balance = new(big.Int).Add(balance, amount)
	if err := v.store.SetBalance(ctx, owner, tokenAddr, balance); err != nil {
		return err
	}

	seq := v.currentSequence(ctx)
	logger.Audit().Info("存入完成",
		"owner", owner, "token", tokenAddr,
		"amount", amount.String(), "balance", balance.String(), "ledger_seq", seq)
	evt := event.New(event.TypeDeposit, owner)
	evt.Token = tokenAddr
	evt.Amount = amount.String()
	evt.LedgerSeq = seq
	v.publish(ctx, evt)
	return nil
}

// Withdraw 从可用余额扣减并将代币转回 owner。先扣账再转账，
// 转账失败时执行补偿回补，保证不会出现只转账未扣账的状态。
func (v *Vault) Withdraw(ctx context.Context, owner, tokenAddr string, amount *big.Int) error {
	owner = canonical(owner)
	tokenAddr = canonical(tokenAddr)
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	if err := v.authorizer.RequireAuth(ctx, owner); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireInitialized(ctx); err != nil {
		return err
	}

	balance, err := v.store.Balance(ctx, owner, tokenAddr)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientFunds
	}

	remaining := new(big.Int).Sub(balance, amount)
	if err := v.store.SetBalance(ctx, owner, tokenAddr, remaining); err != nil {
		return err
	}

	if err := v.token.Transfer(ctx, v.custody, owner, amount); err != nil {
		// 补偿：把已扣减的余额加回去。
		if compErr := v.store.SetBalance(ctx, owner, tokenAddr, balance); compErr != nil {
			logger.L().Error("提取补偿回补失败，余额已失真",
				"owner", owner, "token", tokenAddr,
				"amount", amount.String(), "error", compErr)
		}
		return err
	}

	seq := v.currentSequence(ctx)
	logger.Audit().Info("提取完成",
		"owner", owner, "token", tokenAddr,
		"amount", amount.String(), "balance", remaining.String(), "ledger_seq", seq)
	evt := event.New(event.TypeWithdraw, owner)
	evt.Token = tokenAddr
	evt.Amount = amount.String()
	evt.LedgerSeq = seq
	v.publish(ctx, evt)
	return nil
}

// Balance 返回 (owner, token) 的可用余额，从未存入时为 0。
func (v *Vault) Balance(ctx context.Context, owner, tokenAddr string) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireInitialized(ctx); err != nil {
		return nil, err
	}
	return v.store.Balance(ctx, canonical(owner), canonical(tokenAddr))
}

// Lock 把一笔可用余额移入带到期高度的锁定条目，返回新条目的 ID。
// 到期高度必须严格大于当前账本序号。
func (v *Vault) Lock(ctx context.Context, owner, tokenAddr string, amount *big.Int, expiresAt uint64) (uint64, error) {
	owner = canonical(owner)
	tokenAddr = canonical(tokenAddr)
	if !validAmount(amount) {
		return 0, ErrInvalidAmount
	}
	if err := v.authorizer.RequireAuth(ctx, owner); err != nil {
		return 0, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireInitialized(ctx); err != nil {
		return 0, err
	}

	seq, err := v.sequencer.Sequence(ctx)
	if err != nil {
		return 0, err
	}
	if expiresAt <= seq {
		return 0, ErrInvalidExpiry
	}

	balance, err := v.store.Balance(ctx, owner, tokenAddr)
	if err != nil {
		return 0, err
	}
	if balance.Cmp(amount) < 0 {
		return 0, ErrInsufficientFunds
	}

	id, err := v.store.NextLockID(ctx, owner)
	if err != nil {
		return 0, err
	}

	remaining := new(big.Int).Sub(balance, amount)
	if err := v.store.SetBalance(ctx, owner, tokenAddr, remaining); err != nil {
		return 0, err
	}
	if err := v.store.SetNextLockID(ctx, owner, id+1); err != nil {
		if compErr := v.store.SetBalance(ctx, owner, tokenAddr, balance); compErr != nil {
			logger.L().Error("锁定补偿回补失败，余额已失真",
				"owner", owner, "token", tokenAddr,
				"amount", amount.String(), "error", compErr)
		}
		return 0, err
	}

	now := time.Now().Unix()
	entry := &LockEntry{
		Owner:     owner,
		ID:        id,
		Token:     tokenAddr,
		Amount:    cloneAmount(amount),
		ExpiresAt: expiresAt,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := v.store.PutLock(ctx, entry); err != nil {
		// 补偿：回补余额并回退计数器。
		if compErr := v.store.SetBalance(ctx, owner, tokenAddr, balance); compErr != nil {
			logger.L().Error("锁定补偿回补失败，余额已失真",
				"owner", owner, "token", tokenAddr,
				"amount", amount.String(), "error", compErr)
		}
		if compErr := v.store.SetNextLockID(ctx, owner, id); compErr != nil {
			logger.L().Error("锁定补偿回退计数器失败",
				"owner", owner, "lock_id", id, "error", compErr)
		}
		return 0, err
	}

	logger.Audit().Info("锁定完成",
		"owner", owner, "token", tokenAddr, "lock_id", id,
		"amount", amount.String(), "expires_at", expiresAt, "ledger_seq", seq)
	evt := event.New(event.TypeLock, owner)
	evt.Token = tokenAddr
	evt.Amount = amount.String()
	evt.LockID = &id
	evt.LedgerSeq = seq
	v.publish(ctx, evt)
	return id, nil
}

// GetLock 返回指定的锁定条目，包含已终结的历史条目。
func (v *Vault) GetLock(ctx context.Context, owner string, id uint64) (*LockEntry, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.store.GetLock(ctx, canonical(owner), id)
}

// Release 在到期前把锁定的代币划转给 recipient，并把条目标记为
// Released。到期当刻及之后只能走 Reclaim。划转失败时条目保持
// Active，可以重试。
func (v *Vault) Release(ctx context.Context, owner string, id uint64, recipient string) error {
	owner = canonical(owner)
	recipient = canonical(recipient)
	if recipient == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "收款地址不能为空")
	}
	if err := v.authorizer.RequireAuth(ctx, owner); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireInitialized(ctx); err != nil {
		return err
	}

	entry, err := v.store.GetLock(ctx, owner, id)
	if err != nil {
		return err
	}
	if entry.Status != StatusActive {
		return ErrLockNotActive
	}

	seq, err := v.sequencer.Sequence(ctx)
	if err != nil {
		return err
	}
	if seq >= entry.ExpiresAt {
		return ErrLockExpired
	}

	if err := v.token.Transfer(ctx, v.custody, recipient, entry.Amount); err != nil {
		return err
	}

	entry.Status = StatusReleased
	entry.UpdatedAt = time.Now().Unix()
	if err := v.store.PutLock(ctx, entry); err != nil {
		logger.L().Error("释放后更新锁定状态失败，代币已划转",
			"owner", owner, "lock_id", id, "recipient", recipient, "error", err)
		return err
	}

	logger.Audit().Info("释放完成",
		"owner", owner, "lock_id", id, "recipient", recipient,
		"amount", entry.Amount.String(), "ledger_seq", seq)
	evt := event.New(event.TypeRelease, owner)
	evt.Token = entry.Token
	evt.Amount = entry.Amount.String()
	evt.LockID = &id
	evt.Recipient = recipient
	evt.LedgerSeq = seq
	v.publish(ctx, evt)
	return nil
}

// Reclaim 在到期当刻及之后把锁定金额退回 owner 的可用余额，
// 并把条目标记为 Reclaimed。到期前调用返回 ErrLockNotExpired。
func (v *Vault) Reclaim(ctx context.Context, owner string, id uint64) error {
	owner = canonical(owner)
	if err := v.authorizer.RequireAuth(ctx, owner); err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if err := v.requireInitialized(ctx); err != nil {
		return err
	}

	entry, err := v.store.GetLock(ctx, owner, id)
	if err != nil {
		return err
	}
	if entry.Status != StatusActive {
		return ErrLockNotActive
	}

	seq, err := v.sequencer.Sequence(ctx)
	if err != nil {
		return err
	}
	if seq < entry.ExpiresAt {
		return ErrLockNotExpired
	}

	balance, err := v.store.Balance(ctx, owner, entry.Token)
	if err != nil {
		return err
	}
	credited := new(big.Int).Add(balance, entry.Amount)
	if err := v.store.SetBalance(ctx, owner, entry.Token, credited); err != nil {
		return err
	}

	entry.Status = StatusReclaimed
	entry.UpdatedAt = time.Now().Unix()
	if err := v.store.PutLock(ctx, entry); err != nil {
		// 补偿：状态写入失败时撤销刚才的入账，条目保持 Active。
		if compErr := v.store.SetBalance(ctx, owner, entry.Token, balance); compErr != nil {
			logger.L().Error("回收补偿回补失败，余额已失真",
				"owner", owner, "lock_id", id, "error", compErr)
		}
		return err
	}

	logger.Audit().Info("回收完成",
		"owner", owner, "lock_id", id,
		"amount", entry.Amount.String(), "ledger_seq", seq)
	evt := event.New(event.TypeReclaim, owner)
	evt.Token = entry.Token
	evt.Amount = entry.Amount.String()
	evt.LockID = &id
	evt.LedgerSeq = seq
	v.publish(ctx, evt)
	return nil
}

// Close 释放服务持有的全部外部资源。
func (v *Vault) Close() error {
	var first error
	if err := v.events.Close(); err != nil {
		first = err
	}
	if err := v.token.Close(); err != nil && first == nil {
		first = err
	}
	if err := v.store.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

// requireInitialized 校验合约已经完成初始化。调用方必须持有 v.mu。
func (v *Vault) requireInitialized(ctx context.Context) error {
	admin, err := v.store.Admin(ctx)
	if err != nil {
		return err
	}
	if admin == "" {
		return ErrNotInitialized
	}
	return nil
}

// currentSequence 获取当前账本序号，仅用于日志与事件标注，
// 失败时返回 0 而不中断操作。
func (v *Vault) currentSequence(ctx context.Context) uint64 {
	seq, err := v.sequencer.Sequence(ctx)
	if err != nil {
		logger.L().Warn("获取账本序号失败", "error", err)
		return 0
	}
	return seq
}

// publish 投递事件。事件属于旁路观测，失败只记日志，不影响主流程。
func (v *Vault) publish(ctx context.Context, evt event.Event) {
	if err := v.events.Publish(ctx, evt); err != nil {
		logger.L().Warn("事件投递失败",
			"event_id", evt.ID, "event_type", string(evt.Type), "error", err)
	}
}
