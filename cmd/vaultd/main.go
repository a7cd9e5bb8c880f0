package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"EscrowVault-Chain/internal/api"
	"EscrowVault-Chain/internal/chain"
	chaineth "EscrowVault-Chain/internal/chain/ethereum"
	"EscrowVault-Chain/internal/config"
	"EscrowVault-Chain/internal/event"
	"EscrowVault-Chain/internal/token"
	"EscrowVault-Chain/internal/token/erc20"
	"EscrowVault-Chain/internal/vault"
	"EscrowVault-Chain/pkg/logger"
)

// main 是金库守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("vaultd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("VAULTD_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "vaultd.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Log); err != nil {
		return err
	}
	defer logger.Sync()

	if err := os.MkdirAll(cfg.Runtime.DataDir, 0o755); err != nil {
		return err
	}

	store, err := createStore(cfg)
	if err != nil {
		return err
	}

	tokenClient, custody, err := createTokenClient(ctx, cfg)
	if err != nil {
		_ = store.Close()
		return err
	}

	sequencer, err := createSequencer(ctx, cfg)
	if err != nil {
		_ = store.Close()
		_ = tokenClient.Close()
		return err
	}

	events, err := createPublisher(cfg)
	if err != nil {
		_ = store.Close()
		_ = tokenClient.Close()
		return err
	}

	service, err := vault.NewVault(vault.Options{
		Store:     store,
		Token:     tokenClient,
		Sequencer: sequencer,
		Events:    events,
		Custody:   custody,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := service.Close(); err != nil {
			log.Printf("关闭金库服务失败: %v", err)
		}
	}()
	if closer, ok := sequencer.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	logger.L().Info("vaultd 启动",
		"address", cfg.Server.Address,
		"store", cfg.Storage.VaultStore.Driver,
		"token", cfg.Token.Driver,
		"chain", cfg.Chain.Driver,
		"events", cfg.Events.Driver)

	server := api.NewServer(cfg.Server.Address, service)
	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func createStore(cfg *config.Config) (vault.Store, error) {
	switch cfg.Storage.VaultStore.Driver {
	case "", "memory":
		return vault.NewMemoryStore(), nil
	case "mysql":
		return vault.NewMySQLStore(cfg.Storage.VaultStore.DSN)
	case "redis":
		return vault.NewRedisStore(vault.RedisStoreConfig{
			Address:  cfg.Storage.VaultStore.Redis.Address,
			Password: cfg.Storage.VaultStore.Redis.Password,
			DB:       cfg.Storage.VaultStore.Redis.DB,
			Prefix:   cfg.Storage.VaultStore.Redis.Prefix,
		})
	default:
		return nil, fmt.Errorf("未知的存储驱动: %s", cfg.Storage.VaultStore.Driver)
	}
}

func createTokenClient(ctx context.Context, cfg *config.Config) (token.Client, string, error) {
	switch cfg.Token.Driver {
	case "", "memory":
		custody := cfg.Token.Custody
		if custody == "" {
			custody = "vault-custody"
		}
		return token.NewMemoryToken(), custody, nil
	case "ethereum":
		client, err := erc20.NewClient(ctx, erc20.Config{
			RPCURL:          cfg.Token.RPCURL,
			ContractAddress: cfg.Token.Contract,
			PrivateKey:      cfg.Token.PrivateKey,
			ChainID:         cfg.Token.ChainID,
		})
		if err != nil {
			return nil, "", err
		}
		custody := cfg.Token.Custody
		if custody == "" {
			custody = client.CustodyAddress()
		}
		return client, custody, nil
	default:
		return nil, "", fmt.Errorf("未知的代币驱动: %s", cfg.Token.Driver)
	}
}

func createSequencer(ctx context.Context, cfg *config.Config) (chain.Sequencer, error) {
	switch cfg.Chain.Driver {
	case "", "manual":
		return chain.NewManualSequencer(cfg.Chain.Start), nil
	case "ethereum":
		return chaineth.NewSequencer(ctx, cfg.Chain.RPCURL)
	default:
		return nil, fmt.Errorf("未知的账本序号驱动: %s", cfg.Chain.Driver)
	}
}

func createPublisher(cfg *config.Config) (event.Publisher, error) {
	switch cfg.Events.Driver {
	case "", "memory":
		return event.NewMemoryPublisher(cfg.Events.Buffer), nil
	case "rabbitmq":
		return event.NewRabbitMQPublisher(event.RabbitMQConfig{
			URL:        cfg.Events.RabbitMQ.URL,
			Queue:      cfg.Events.RabbitMQ.Queue,
			Durable:    cfg.Events.RabbitMQ.Durable,
			AutoDelete: cfg.Events.RabbitMQ.AutoDelete,
		})
	default:
		return nil, fmt.Errorf("未知的事件驱动: %s", cfg.Events.Driver)
	}
}
