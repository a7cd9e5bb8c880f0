package vault

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	xerrors "EscrowVault-Chain/internal/errors"
)

// RedisStoreConfig 描述 Redis 存储的连接参数。
type RedisStoreConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string
}

// RedisStore 使用 Redis 键值对持久化合约状态。锁定条目以 JSON 编码，
// 余额与 ID 计数器以十进制字符串编码。
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore 创建 Redis 存储实例。
func NewRedisStore(cfg RedisStoreConfig) (*RedisStore, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "vault"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

func (s *RedisStore) adminKey() string {
	return s.prefix + ":admin"
}

func (s *RedisStore) balanceKey(owner, token string) string {
	return fmt.Sprintf("%s:balance:%s:%s", s.prefix, owner, token)
}

func (s *RedisStore) lockKey(owner string, id uint64) string {
	return fmt.Sprintf("%s:lock:%s:%d", s.prefix, owner, id)
}

func (s *RedisStore) nextIDKey(owner string) string {
	return fmt.Sprintf("%s:nextlock:%s", s.prefix, owner)
}

// Admin 实现 Store 接口。
func (s *RedisStore) Admin(ctx context.Context) (string, error) {
	admin, err := s.client.Get(ctx, s.adminKey()).Result()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询管理员记录失败")
	}
	return admin, nil
}

// SetAdmin 实现 Store 接口。通过 SETNX 保证只写入一次。
func (s *RedisStore) SetAdmin(ctx context.Context, admin string) error {
	ok, err := s.client.SetNX(ctx, s.adminKey(), admin, 0).Result()
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入管理员记录失败")
	}
	if !ok {
		return ErrAlreadyInitialized
	}
	return nil
}

// Balance 实现 Store 接口。
func (s *RedisStore) Balance(ctx context.Context, owner, token string) (*big.Int, error) {
	raw, err := s.client.Get(ctx, s.balanceKey(owner, token)).Result()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return big.NewInt(0), nil
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询余额失败")
	}
	return parseAmount(raw)
}

// SetBalance 实现 Store 接口。
func (s *RedisStore) SetBalance(ctx context.Context, owner, token string, amount *big.Int) error {
	if err := s.client.Set(ctx, s.balanceKey(owner, token), cloneAmount(amount).String(), 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入余额失败")
	}
	return nil
}

// GetLock 实现 Store 接口。
func (s *RedisStore) GetLock(ctx context.Context, owner string, id uint64) (*LockEntry, error) {
	raw, err := s.client.Get(ctx, s.lockKey(owner, id)).Result()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return nil, ErrLockNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询锁定条目失败")
	}
	var entry LockEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析锁定条目失败")
	}
	return &entry, nil
}

// PutLock 实现 Store 接口。
func (s *RedisStore) PutLock(ctx context.Context, entry *LockEntry) error {
	if entry == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "锁定条目不能为空")
	}
	clone := cloneLock(entry)
	now := time.Now().Unix()
	if clone.CreatedAt == 0 {
		clone.CreatedAt = now
	}
	clone.UpdatedAt = now

	encoded, err := json.Marshal(clone)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化锁定条目失败")
	}
	if err := s.client.Set(ctx, s.lockKey(clone.Owner, clone.ID), encoded, 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入锁定条目失败")
	}
	return nil
}

// NextLockID 实现 Store 接口。
func (s *RedisStore) NextLockID(ctx context.Context, owner string) (uint64, error) {
	raw, err := s.client.Get(ctx, s.nextIDKey(owner)).Result()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询锁定 ID 计数器失败")
	}
	next, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析锁定 ID 计数器失败")
	}
	return next, nil
}

// SetNextLockID 实现 Store 接口。
func (s *RedisStore) SetNextLockID(ctx context.Context, owner string, next uint64) error {
	if err := s.client.Set(ctx, s.nextIDKey(owner), strconv.FormatUint(next, 10), 0).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新锁定 ID 计数器失败")
	}
	return nil
}

// Close 关闭 Redis 连接。
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
