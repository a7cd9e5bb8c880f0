package vault

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"math/big"
	"sort"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"EscrowVault-Chain/deploy/migrations"
	xerrors "EscrowVault-Chain/internal/errors"
)

// MySQLStore 使用 MySQL 持久化合约状态。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建连接池并初始化数据表。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// initSchema 按文件名顺序执行内嵌的 SQL 迁移脚本。
func (s *MySQLStore) initSchema() error {
	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移脚本失败")
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		content, err := migrations.Files.ReadFile(name)
		if err != nil {
			return xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取迁移脚本失败")
		}
		for _, stmt := range splitStatements(string(content)) {
			if _, err := s.db.Exec(stmt); err != nil {
				return xerrors.Wrap(xerrors.CodeStorageFailure, err, "执行迁移脚本失败")
			}
		}
	}
	return nil
}

// Admin 实现 Store 接口。
func (s *MySQLStore) Admin(ctx context.Context) (string, error) {
	var admin string
	err := s.db.QueryRowContext(ctx, `SELECT admin FROM vault_admin WHERE id = 1`).Scan(&admin)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询管理员记录失败")
	}
	return admin, nil
}

// SetAdmin 实现 Store 接口。依赖主键冲突保证只写入一次。
func (s *MySQLStore) SetAdmin(ctx context.Context, admin string) error {
	const stmt = `INSERT INTO vault_admin (id, admin, created_at) VALUES (1, ?, ?)`
	if _, err := s.db.ExecContext(ctx, stmt, admin, time.Now().Unix()); err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return ErrAlreadyInitialized
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入管理员记录失败")
	}
	return nil
}

// Balance 实现 Store 接口。
func (s *MySQLStore) Balance(ctx context.Context, owner, token string) (*big.Int, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT amount FROM vault_balances WHERE owner = ? AND token = ?`, owner, token,
	).Scan(&raw)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return big.NewInt(0), nil
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询余额失败")
	}
	return parseAmount(raw)
}

// SetBalance 实现 Store 接口。
func (s *MySQLStore) SetBalance(ctx context.Context, owner, token string, amount *big.Int) error {
	const stmt = `INSERT INTO vault_balances (owner, token, amount, updated_at)
        VALUES (?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE amount = VALUES(amount), updated_at = VALUES(updated_at)`

	if _, err := s.db.ExecContext(ctx, stmt, owner, token, cloneAmount(amount).String(), time.Now().Unix()); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入余额失败")
	}
	return nil
}

// GetLock 实现 Store 接口。
func (s *MySQLStore) GetLock(ctx context.Context, owner string, id uint64) (*LockEntry, error) {
	const stmt = `SELECT owner, lock_id, token, amount, expires_at, status, created_at, updated_at
        FROM vault_locks WHERE owner = ? AND lock_id = ?`

	row := s.db.QueryRowContext(ctx, stmt, owner, id)

	var entry LockEntry
	var raw string
	if err := row.Scan(
		&entry.Owner,
		&entry.ID,
		&entry.Token,
		&raw,
		&entry.ExpiresAt,
		&entry.Status,
		&entry.CreatedAt,
		&entry.UpdatedAt,
	); err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return nil, ErrLockNotFound
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询锁定条目失败")
	}

	amount, err := parseAmount(raw)
	if err != nil {
		return nil, err
	}
	entry.Amount = amount
	return &entry, nil
}

// PutLock 实现 Store 接口。
func (s *MySQLStore) PutLock(ctx context.Context, entry *LockEntry) error {
	if entry == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "锁定条目不能为空")
	}

	const stmt = `INSERT INTO vault_locks
        (owner, lock_id, token, amount, expires_at, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE status = VALUES(status), updated_at = VALUES(updated_at)`

	now := time.Now().Unix()
	createdAt := entry.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	if _, err := s.db.ExecContext(ctx, stmt,
		entry.Owner,
		entry.ID,
		entry.Token,
		cloneAmount(entry.Amount).String(),
		entry.ExpiresAt,
		string(entry.Status),
		createdAt,
		now,
	); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入锁定条目失败")
	}
	return nil
}

// NextLockID 实现 Store 接口。
func (s *MySQLStore) NextLockID(ctx context.Context, owner string) (uint64, error) {
	var next uint64
	err := s.db.QueryRowContext(ctx,
		`SELECT next_id FROM vault_lock_ids WHERE owner = ?`, owner,
	).Scan(&next)
	if err != nil {
		if stdErrors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询锁定 ID 计数器失败")
	}
	return next, nil
}

// SetNextLockID 实现 Store 接口。
func (s *MySQLStore) SetNextLockID(ctx context.Context, owner string, next uint64) error {
	const stmt = `INSERT INTO vault_lock_ids (owner, next_id) VALUES (?, ?)
        ON DUPLICATE KEY UPDATE next_id = VALUES(next_id)`

	if _, err := s.db.ExecContext(ctx, stmt, owner, next); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新锁定 ID 计数器失败")
	}
	return nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// splitStatements 把迁移脚本拆成独立语句，丢弃注释行。
func splitStatements(script string) []string {
	var kept []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}

	var stmts []string
	for _, chunk := range strings.Split(strings.Join(kept, "\n"), ";") {
		chunk = strings.TrimSpace(chunk)
		if chunk != "" {
			stmts = append(stmts, chunk)
		}
	}
	return stmts
}

func parseAmount(raw string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok {
		return nil, xerrors.New(xerrors.CodeStorageFailure, "余额字段不是合法的十进制整数")
	}
	return amount, nil
}

var _ Store = (*MySQLStore)(nil)
