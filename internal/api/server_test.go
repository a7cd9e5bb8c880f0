package api

import (
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"EscrowVault-Chain/internal/chain"
	"EscrowVault-Chain/internal/event"
	"EscrowVault-Chain/internal/token"
	"EscrowVault-Chain/internal/vault"
)

type apiFixture struct {
	handler   http.Handler
	token     *token.MemoryToken
	sequencer *chain.ManualSequencer
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	tok := token.NewMemoryToken()
	seq := chain.NewManualSequencer(100)
	service, err := vault.NewVault(vault.Options{
		Store:     vault.NewMemoryStore(),
		Token:     tok,
		Sequencer: seq,
		Events:    event.NewMemoryPublisher(64),
		Custody:   "custody",
	})
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}
	server := NewServer(":0", service)
	return &apiFixture{handler: server.Handler(), token: tok, sequencer: seq}
}

func (f *apiFixture) do(t *testing.T, method, target, caller, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) mustInit(t *testing.T) {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/v1/vault/init", "admin", `{"admin":"admin"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("init failed: %d %s", rec.Code, rec.Body)
	}
}

func (f *apiFixture) mustDeposit(t *testing.T, owner, amount string) {
	t.Helper()
	f.token.Mint(owner, mustBig(t, amount))
	body := fmt.Sprintf(`{"owner":%q,"token":"usdc","amount":%q}`, owner, amount)
	rec := f.do(t, http.MethodPost, "/api/v1/vault/deposit", owner, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit failed: %d %s", rec.Code, rec.Body)
	}
}

func TestInitEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	t.Run("missing caller", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/vault/init", "", `{"admin":"admin"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d %s", rec.Code, rec.Body)
		}
	})

	f.mustInit(t)

	t.Run("double init", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/api/v1/vault/init", "admin", `{"admin":"admin"}`)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d %s", rec.Code, rec.Body)
		}
		var payload struct {
			Code string `json:"code"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode error payload: %v", err)
		}
		if payload.Code != "VAULT_ALREADY_INITIALIZED" {
			t.Fatalf("unexpected error code: %q", payload.Code)
		}
	})

	t.Run("owner query", func(t *testing.T) {
		rec := f.do(t, http.MethodGet, "/api/v1/vault/owner", "", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("owner: %d %s", rec.Code, rec.Body)
		}
		var payload struct {
			Admin string `json:"admin"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode owner: %v", err)
		}
		if payload.Admin != "admin" {
			t.Fatalf("unexpected admin: %q", payload.Admin)
		}
	})
}

func TestDepositWithdrawBalanceEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.mustInit(t)
	f.mustDeposit(t, "alice", "100")

	rec := f.do(t, http.MethodGet, "/api/v1/vault/balance?owner=alice&token=usdc", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("balance: %d %s", rec.Code, rec.Body)
	}
	var balance struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Balance != "100" {
		t.Fatalf("expected balance 100, got %q", balance.Balance)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/vault/withdraw", "alice",
		`{"owner":"alice","token":"usdc","amount":"101"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for overdraft, got %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/vault/withdraw", "alice",
		`{"owner":"alice","token":"usdc","amount":"100"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("withdraw: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/vault/deposit", "alice",
		`{"owner":"alice","token":"usdc","amount":"-1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative amount, got %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/vault/withdraw", "bob",
		`{"owner":"alice","token":"usdc","amount":"1"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong caller, got %d %s", rec.Code, rec.Body)
	}
}

func TestUninitializedReturnsServiceUnavailable(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/vault/balance?owner=alice&token=usdc", "", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before init, got %d %s", rec.Code, rec.Body)
	}
}

func TestLockEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.mustInit(t)
	f.mustDeposit(t, "alice", "100")

	rec := f.do(t, http.MethodPost, "/api/v1/vault/locks", "alice",
		`{"owner":"alice","token":"usdc","amount":"30","expires_at":110}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create lock: %d %s", rec.Code, rec.Body)
	}
	var created struct {
		LockID uint64 `json:"lock_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode lock id: %v", err)
	}
	if created.LockID != 0 {
		t.Fatalf("expected lock id 0, got %d", created.LockID)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/vault/locks", "alice",
		`{"owner":"alice","token":"usdc","amount":"10","expires_at":100}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for past expiry, got %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/vault/locks?owner=alice&lock_id=0", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("get lock: %d %s", rec.Code, rec.Body)
	}
	var entry struct {
		Status    string `json:"status"`
		Amount    string `json:"amount"`
		ExpiresAt uint64 `json:"expires_at"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &entry); err != nil {
		t.Fatalf("decode lock: %v", err)
	}
	if entry.Status != "active" || entry.Amount != "30" || entry.ExpiresAt != 110 {
		t.Fatalf("unexpected lock entry: %+v", entry)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/vault/locks?owner=alice&lock_id=9", "", "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown lock, got %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/vault/locks?owner=alice&lock_id=abc", "", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed id, got %d %s", rec.Code, rec.Body)
	}
}

func TestReleaseAndReclaimEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	f.mustInit(t)
	f.mustDeposit(t, "alice", "100")

	rec := f.do(t, http.MethodPost, "/api/v1/vault/locks", "alice",
		`{"owner":"alice","token":"usdc","amount":"30","expires_at":110}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("create lock: %d %s", rec.Code, rec.Body)
	}

	// 到期后释放窗口关闭。
	f.sequencer.Set(110)
	rec = f.do(t, http.MethodPost, "/api/v1/vault/locks/release", "alice",
		`{"owner":"alice","lock_id":0,"recipient":"bob"}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for expired release, got %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/vault/locks/reclaim", "alice",
		`{"owner":"alice","lock_id":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reclaim: %d %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/vault/balance?owner=alice&token=usdc", "", "")
	var balance struct {
		Balance string `json:"balance"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance.Balance != "100" {
		t.Fatalf("expected balance restored to 100, got %q", balance.Balance)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/vault/locks/reclaim", "alice",
		`{"owner":"alice","lock_id":0}`)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 for settled lock, got %d %s", rec.Code, rec.Body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.mustInit(t)

	rec := f.do(t, http.MethodGet, "/metrics", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "vault_http_requests_total") {
		t.Fatalf("metrics output missing request counter: %s", rec.Body)
	}
}

func mustBig(t *testing.T, raw string) *big.Int {
	t.Helper()
	value, ok := parseAmount(raw)
	if !ok {
		t.Fatalf("invalid test amount %q", raw)
	}
	return value
}
