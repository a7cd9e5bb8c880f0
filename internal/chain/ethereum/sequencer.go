package ethereum

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/ethclient"

	"EscrowVault-Chain/internal/chain"
	xerrors "EscrowVault-Chain/internal/errors"
)

// Sequencer 以 EVM 节点的最新区块高度作为账本序号。
type Sequencer struct {
	eth *ethclient.Client
}

// NewSequencer dials the configured RPC endpoint.
func NewSequencer(ctx context.Context, rpcURL string) (*Sequencer, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}
	return &Sequencer{eth: eth}, nil
}

// Sequence 实现 chain.Sequencer 接口。
func (s *Sequencer) Sequence(ctx context.Context) (uint64, error) {
	number, err := s.eth.BlockNumber(ctx)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeSequenceFailure, err, "获取最新区块高度失败")
	}
	return number, nil
}

// Close 释放底层 RPC 连接。
func (s *Sequencer) Close() error {
	if s == nil || s.eth == nil {
		return nil
	}
	s.eth.Close()
	return nil
}

var _ chain.Sequencer = (*Sequencer)(nil)
