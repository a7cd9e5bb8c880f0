package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"EscrowVault-Chain/pkg/logger"
)

// Config 描述金库守护进程在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server" yaml:"server"`
	Storage StorageConfig `json:"storage" yaml:"storage"`
	Token   TokenConfig   `json:"token" yaml:"token"`
	Chain   ChainConfig   `json:"chain" yaml:"chain"`
	Events  EventsConfig  `json:"events" yaml:"events"`
	Log     logger.Config `json:"log" yaml:"log"`
	Runtime RuntimeConfig `json:"runtime" yaml:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address" yaml:"address"`
}

// StorageConfig 统一描述 MySQL、Redis 等后端的连接信息。
type StorageConfig struct {
	VaultStore VaultStoreConfig `json:"vault_store" yaml:"vault_store"`
}

// VaultStoreConfig 选择金库状态的持久化后端。
type VaultStoreConfig struct {
	Driver string      `json:"driver" yaml:"driver"`
	DSN    string      `json:"dsn" yaml:"dsn"`
	Redis  RedisConfig `json:"redis" yaml:"redis"`
}

// RedisConfig 描述 Redis 后端的连接参数。
type RedisConfig struct {
	Address  string `json:"address" yaml:"address"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Prefix   string `json:"prefix" yaml:"prefix"`
}

// TokenConfig 配置代币划转的执行方式。
type TokenConfig struct {
	Driver     string `json:"driver" yaml:"driver"`
	RPCURL     string `json:"rpc_url" yaml:"rpc_url"`
	Contract   string `json:"contract" yaml:"contract"`
	PrivateKey string `json:"private_key" yaml:"private_key"`
	ChainID    int64  `json:"chain_id" yaml:"chain_id"`
	// Custody 是金库托管账户地址。ethereum 驱动下默认取签名私钥对应的地址。
	Custody string `json:"custody" yaml:"custody"`
}

// ChainConfig 配置账本序号的来源。
type ChainConfig struct {
	Driver string `json:"driver" yaml:"driver"`
	RPCURL string `json:"rpc_url" yaml:"rpc_url"`
	// Start 是 manual 驱动下的初始序号。
	Start uint64 `json:"start" yaml:"start"`
}

// EventsConfig 配置操作事件的投递后端。
type EventsConfig struct {
	Driver   string         `json:"driver" yaml:"driver"`
	Buffer   int            `json:"buffer" yaml:"buffer"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq" yaml:"rabbitmq"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL        string `json:"url" yaml:"url"`
	Queue      string `json:"queue" yaml:"queue"`
	Durable    bool   `json:"durable" yaml:"durable"`
	AutoDelete bool   `json:"auto_delete" yaml:"auto_delete"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// Load 解析指定路径的配置文件，按扩展名支持 YAML 与 JSON。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析 YAML 配置失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(content, &cfg); err != nil {
			return nil, fmt.Errorf("解析 JSON 配置失败: %w", err)
		}
	default:
		return nil, fmt.Errorf("不支持的配置文件格式: %s", filepath.Ext(path))
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.VaultStore.Driver == "" {
		c.Storage.VaultStore.Driver = "memory"
	}
	if c.Storage.VaultStore.Redis.Prefix == "" {
		c.Storage.VaultStore.Redis.Prefix = "vault"
	}

	if c.Token.Driver == "" {
		c.Token.Driver = "memory"
	}

	if c.Chain.Driver == "" {
		c.Chain.Driver = "manual"
	}

	if c.Events.Driver == "" {
		c.Events.Driver = "memory"
	}
	if c.Events.Buffer <= 0 {
		c.Events.Buffer = 256
	}
	if c.Events.RabbitMQ.Queue == "" {
		c.Events.RabbitMQ.Queue = "vault.events"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
}
