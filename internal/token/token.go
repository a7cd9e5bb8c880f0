package token

import (
	"context"
	"math/big"

	xerrors "EscrowVault-Chain/internal/errors"
)

// Client 抽象宿主环境中的代币合约接口。
type Client interface {
	// Transfer 将 amount 的代币从 from 划转到 to。
	Transfer(ctx context.Context, from, to string, amount *big.Int) error
	// BalanceOf 查询账户的代币余额。
	BalanceOf(ctx context.Context, account string) (*big.Int, error)
	Close() error
}

// ErrTransferRejected 表示代币合约拒绝了这次划转。
var ErrTransferRejected = xerrors.New(xerrors.CodeTransferFailure, "token transfer rejected")
