package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"EscrowVault-Chain/internal/auth"
	xerrors "EscrowVault-Chain/internal/errors"
	"EscrowVault-Chain/internal/observability/metrics"
	"EscrowVault-Chain/internal/vault"
)

// CallerHeader 携带调用方地址，由服务端转换为授权上下文。
const CallerHeader = "X-Vault-Caller"

// Server 负责暴露 REST 接口，供外部驱动金库执行。
type Server struct {
	addr  string
	vault *vault.Vault
}

// NewServer 构造 API 服务实例。
func NewServer(addr string, v *vault.Vault) *Server {
	return &Server{addr: addr, vault: v}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.Handler()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// Handler 返回完整路由，便于测试直接挂载。
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/vault/init", s.instrument("vault_init", s.handleInit))
	mux.HandleFunc("/api/v1/vault/deposit", s.instrument("vault_deposit", s.handleDeposit))
	mux.HandleFunc("/api/v1/vault/withdraw", s.instrument("vault_withdraw", s.handleWithdraw))
	mux.HandleFunc("/api/v1/vault/balance", s.instrument("vault_balance", s.handleBalance))
	mux.HandleFunc("/api/v1/vault/locks", s.instrument("vault_locks", s.handleLocks))
	mux.HandleFunc("/api/v1/vault/locks/release", s.instrument("vault_release", s.handleRelease))
	mux.HandleFunc("/api/v1/vault/locks/reclaim", s.instrument("vault_reclaim", s.handleReclaim))
	mux.HandleFunc("/api/v1/vault/owner", s.instrument("vault_owner", s.handleOwner))
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

type initRequest struct {
	Admin string `json:"admin"`
}

type amountRequest struct {
	Owner  string `json:"owner"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type lockRequest struct {
	Owner     string `json:"owner"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	ExpiresAt uint64 `json:"expires_at"`
}

type releaseRequest struct {
	Owner     string `json:"owner"`
	LockID    uint64 `json:"lock_id"`
	Recipient string `json:"recipient"`
}

type reclaimRequest struct {
	Owner  string `json:"owner"`
	LockID uint64 `json:"lock_id"`
}

type lockResponse struct {
	Owner     string `json:"owner"`
	ID        uint64 `json:"id"`
	Token     string `json:"token"`
	Amount    string `json:"amount"`
	ExpiresAt uint64 `json:"expires_at"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
	UpdatedAt int64  `json:"updated_at"`
}

func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req initRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if err := s.vault.Init(callerContext(r), req.Admin); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"admin": req.Admin})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, vault.ErrInvalidAmount)
		return
	}
	if err := s.vault.Deposit(callerContext(r), req.Owner, req.Token, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, vault.ErrInvalidAmount)
		return
	}
	if err := s.vault.Withdraw(callerContext(r), req.Owner, req.Token, amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	owner := r.URL.Query().Get("owner")
	token := r.URL.Query().Get("token")
	balance, err := s.vault.Balance(callerContext(r), owner, token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{
		"owner":   owner,
		"token":   token,
		"balance": balance.String(),
	})
}

func (s *Server) handleLocks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateLock(w, r)
	case http.MethodGet:
		s.handleGetLock(w, r)
	default:
		http.Error(w, "仅支持 GET/POST", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreateLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, vault.ErrInvalidAmount)
		return
	}
	id, err := s.vault.Lock(callerContext(r), req.Owner, req.Token, amount, req.ExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]uint64{"lock_id": id})
}

func (s *Server) handleGetLock(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	rawID := r.URL.Query().Get("lock_id")
	id, err := strconv.ParseUint(rawID, 10, 64)
	if err != nil {
		http.Error(w, "lock_id 必须为非负整数", http.StatusBadRequest)
		return
	}
	entry, err := s.vault.GetLock(callerContext(r), owner, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, lockResponse{
		Owner:     entry.Owner,
		ID:        entry.ID,
		Token:     entry.Token,
		Amount:    entry.Amount.String(),
		ExpiresAt: entry.ExpiresAt,
		Status:    string(entry.Status),
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	})
}

func (s *Server) handleRelease(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if err := s.vault.Release(callerContext(r), req.Owner, req.LockID, req.Recipient); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "released"})
}

func (s *Server) handleReclaim(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	var req reclaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if err := s.vault.Reclaim(callerContext(r), req.Owner, req.LockID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"status": "reclaimed"})
}

func (s *Server) handleOwner(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	admin, err := s.vault.Owner(callerContext(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, map[string]string{"admin": admin})
}

// instrument 包装处理器并记录请求指标。
func (s *Server) instrument(name string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// callerContext 把请求头中的调用方地址注入上下文。
func callerContext(r *http.Request) context.Context {
	return auth.WithCaller(r.Context(), r.Header.Get(CallerHeader))
}

func parseAmount(raw string) (*big.Int, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, false
	}
	return value, true
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError 把业务错误码映射为 HTTP 状态码。
func writeError(w http.ResponseWriter, err error) {
	code := xerrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case vault.CodeInvalidAmount, vault.CodeInvalidExpiry, xerrors.CodeInvalidArgument:
		status = http.StatusBadRequest
	case auth.CodeUnauthorized:
		status = http.StatusUnauthorized
	case vault.CodeLockNotFound, xerrors.CodeNotFound:
		status = http.StatusNotFound
	case vault.CodeAlreadyInitialized, vault.CodeLockNotActive,
		vault.CodeLockExpired, vault.CodeLockNotExpired, xerrors.CodeConflict:
		status = http.StatusConflict
	case vault.CodeInsufficientFunds:
		status = http.StatusUnprocessableEntity
	case vault.CodeNotInitialized:
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorPayload{
		Code:    string(code),
		Message: err.Error(),
	})
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
