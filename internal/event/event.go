package event

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Type 标识一次合约操作的事件类型。
type Type string

const (
	TypeInit     Type = "init"
	TypeDeposit  Type = "deposit"
	TypeWithdraw Type = "withdraw"
	TypeLock     Type = "lock"
	TypeRelease  Type = "release"
	TypeReclaim  Type = "reclaim"
)

// Event 描述一次成功提交的合约操作。
type Event struct {
	ID        string  `json:"id"`
	Type      Type    `json:"type"`
	Owner     string  `json:"owner"`
	Token     string  `json:"token,omitempty"`
	Amount    string  `json:"amount,omitempty"`
	LockID    *uint64 `json:"lock_id,omitempty"`
	Recipient string  `json:"recipient,omitempty"`
	LedgerSeq uint64  `json:"ledger_seq"`
	At        int64   `json:"at"`
}

// New 构造带有唯一 ID 和时间戳的事件。
func New(t Type, owner string) Event {
	return Event{
		ID:    uuid.NewString(),
		Type:  t,
		Owner: owner,
		At:    time.Now().Unix(),
	}
}

// Publisher 负责向下游投递事件。
type Publisher interface {
	Publish(ctx context.Context, evt Event) error
	Close() error
}
