package erc20

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	xerrors "EscrowVault-Chain/internal/errors"
	"EscrowVault-Chain/internal/token"
)

// erc20ABI 只声明金库用到的三个方法。
const erc20ABI = `[
  {"constant":false,"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"},
  {"constant":false,"inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transferFrom","outputs":[{"name":"","type":"bool"}],"type":"function"},
  {"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"type":"function"}
]`

// Config describes how to reach the ERC-20 contract backing the vault.
type Config struct {
	RPCURL          string
	ContractAddress string
	// PrivateKey 是金库托管账户的签名私钥（hex，不带 0x 前缀）。
	PrivateKey string
	ChainID    int64
}

// Client 通过 EVM 节点上的 ERC-20 合约实现 token.Client。
// 金库托管地址即签名账户地址；从其他账户拉取资金时走 transferFrom，
// 需要owner事先完成 approve。
type Client struct {
	mu       sync.Mutex
	eth      *ethclient.Client
	contract *bind.BoundContract
	opts     *bind.TransactOpts
	custody  common.Address
}

// NewClient dials the configured RPC endpoint and binds the token contract.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("非法的代币合约地址: %s", cfg.ContractAddress)
	}

	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	parsedABI, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("解析 ERC-20 ABI 失败: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.PrivateKey), "0x"))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("解析托管账户私钥失败: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(cfg.ChainID))
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("构造交易签名器失败: %w", err)
	}

	contractAddr := common.HexToAddress(cfg.ContractAddress)
	contract := bind.NewBoundContract(contractAddr, parsedABI, eth, eth, eth)

	return &Client{
		eth:      eth,
		contract: contract,
		opts:     opts,
		custody:  crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// CustodyAddress 返回金库托管账户的地址。
func (c *Client) CustodyAddress() string {
	return c.custody.Hex()
}

// Transfer 实现 token.Client 接口。发起交易并等待上链确认。
func (c *Client) Transfer(ctx context.Context, from, to string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return xerrors.New(xerrors.CodeTransferFailure, "划转金额必须为正数")
	}
	if !common.IsHexAddress(to) {
		return xerrors.New(xerrors.CodeTransferFailure, "非法的收款地址")
	}

	// go-ethereum 的 TransactOpts 不支持并发复用。
	c.mu.Lock()
	defer c.mu.Unlock()

	originalCtx := c.opts.Context
	c.opts.Context = ctx
	defer func() { c.opts.Context = originalCtx }()

	fromAddr := common.HexToAddress(from)
	toAddr := common.HexToAddress(to)

	var (
		tx  *types.Transaction
		err error
	)
	if fromAddr == c.custody {
		tx, err = c.contract.Transact(c.opts, "transfer", toAddr, amount)
	} else {
		tx, err = c.contract.Transact(c.opts, "transferFrom", fromAddr, toAddr, amount)
	}
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransferFailure, err, "发送代币划转交易失败")
	}

	receipt, err := bind.WaitMined(ctx, c.eth, tx)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeTransferFailure, err, "等待划转交易确认失败")
	}
	if receipt.Status == 0 {
		return token.ErrTransferRejected
	}
	return nil
}

// BalanceOf 实现 token.Client 接口。
func (c *Client) BalanceOf(ctx context.Context, account string) (*big.Int, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("非法的账户地址: %s", account)
	}
	var out []interface{}
	callOpts := &bind.CallOpts{Context: ctx}
	if err := c.contract.Call(callOpts, &out, "balanceOf", common.HexToAddress(account)); err != nil {
		return nil, fmt.Errorf("查询代币余额失败: %w", err)
	}
	if len(out) != 1 {
		return nil, errors.New("balanceOf 返回值数量异常")
	}
	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.New("balanceOf 返回值类型异常")
	}
	return balance, nil
}

// Close 释放底层 RPC 连接。
func (c *Client) Close() error {
	if c == nil || c.eth == nil {
		return nil
	}
	c.eth.Close()
	return nil
}

var _ token.Client = (*Client)(nil)
