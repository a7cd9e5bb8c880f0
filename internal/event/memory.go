package event

import (
	"context"
	"errors"
	"sync"
)

// MemoryPublisher 将事件保存在内存环形缓冲中，主要用于测试。
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
	cap    int
	closed bool
}

// NewMemoryPublisher 创建容量受限的内存事件发布器。
func NewMemoryPublisher(capacity int) *MemoryPublisher {
	if capacity <= 0 {
		capacity = 256
	}
	return &MemoryPublisher{cap: capacity}
}

// Publish 实现 Publisher 接口。
func (p *MemoryPublisher) Publish(_ context.Context, evt Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("事件发布器已关闭")
	}
	p.events = append(p.events, evt)
	if len(p.events) > p.cap {
		p.events = p.events[len(p.events)-p.cap:]
	}
	return nil
}

// Events 返回当前缓冲内事件的快照。
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make([]Event, len(p.events))
	copy(snapshot, p.events)
	return snapshot
}

// Close 关闭发布器。
func (p *MemoryPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

var _ Publisher = (*MemoryPublisher)(nil)
