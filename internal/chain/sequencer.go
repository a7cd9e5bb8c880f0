package chain

import (
	"context"
	"sync"
)

// Sequencer 返回当前账本序号（区块高度）。
type Sequencer interface {
	Sequence(ctx context.Context) (uint64, error)
}

// ManualSequencer 以内存计数器模拟账本高度，主要用于测试与本地开发。
type ManualSequencer struct {
	mu  sync.RWMutex
	seq uint64
}

// NewManualSequencer 创建从指定高度开始的 ManualSequencer。
func NewManualSequencer(start uint64) *ManualSequencer {
	return &ManualSequencer{seq: start}
}

// Sequence 实现 Sequencer 接口。
func (s *ManualSequencer) Sequence(context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq, nil
}

// Set 将账本高度调整到指定值。
func (s *ManualSequencer) Set(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq = seq
}

// Advance 将账本高度向前推进 n。
func (s *ManualSequencer) Advance(n uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq += n
}

var _ Sequencer = (*ManualSequencer)(nil)
