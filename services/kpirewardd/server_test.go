package kpirewardd

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"auxrewards/crypto"
	"auxrewards/native/bank"
	"auxrewards/native/kpireward"
	"auxrewards/storage"
	"auxrewards/storage/journal"
)

const testAdminToken = "admin-secret"

type testEnv struct {
	server  *Server
	engine  *kpireward.Engine
	ledger  *bank.Ledger
	signer  *crypto.PrivateKey
	founder crypto.Identity
}

func newTestEnv(t *testing.T, limiter *RateLimiter) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signer, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	authority, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)
	founder, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	kv := storage.NewKV(storage.NewMemDB())
	_, err = kpireward.NewProgramStore(kv).Initialize(authority.PubKey(), signer.PubKey())
	require.NoError(t, err)

	jrnl, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = jrnl.Close() })

	ledger, err := bank.Open(kv, "AUX", authority.PubKey(), jrnl)
	require.NoError(t, err)

	engine, err := kpireward.NewEngine(kv, ledger.Issuer(authority.PubKey()),
		kpireward.WithReplayCache(kpireward.NewMemoryReplayCache()),
		kpireward.WithReconciler(jrnl),
		kpireward.WithEmitter(jrnl),
		kpireward.WithLogger(logger),
	)
	require.NoError(t, err)

	auth, err := NewAuthenticator(testAdminToken, logger)
	require.NoError(t, err)
	batch := NewBatchProcessor(engine, BatchConfig{MaxClaims: 10, Workers: 4}, logger)
	t.Cleanup(batch.Stop)

	server, err := NewServer(ServerConfig{
		Engine:   engine,
		Partials: jrnl,
		Batch:    batch,
		Auth:     auth,
		Limiter:  limiter,
		Logger:   logger,
	})
	require.NoError(t, err)
	return &testEnv{server: server, engine: engine, ledger: ledger, signer: signer, founder: founder.PubKey()}
}

func (e *testEnv) payload(t *testing.T, signer *crypto.PrivateKey, amount uint64, kpi uint8, ts int64) claimPayload {
	t.Helper()
	req := kpireward.ClaimRequest{Founder: e.founder, Amount: amount, KpiType: kpi, Timestamp: ts}
	digest := req.Digest()
	sig, err := signer.Sign(digest[:])
	require.NoError(t, err)
	return claimPayload{
		Founder:   e.founder.String(),
		Amount:    amount,
		KpiType:   kpi,
		Timestamp: ts,
		Signature: sig.String(),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestServerIssuesClaim(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Now().Unix()

	rec := env.do(t, http.MethodPost, "/v1/claims", env.payload(t, env.signer, 250, 3, now), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var evt kpireward.IssuanceEvent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &evt))
	require.Equal(t, uint64(248), evt.NetAmount)
	require.Equal(t, uint64(2), evt.Burned)
	require.Equal(t, uint8(3), evt.KpiType)
	require.True(t, env.founder.Equals(evt.Founder))

	balance, err := env.ledger.Balance(env.founder)
	require.NoError(t, err)
	require.Equal(t, uint64(248), balance)

	rec = env.do(t, http.MethodGet, "/v1/founders/"+env.founder.String(), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var founder founderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &founder))
	require.Equal(t, uint64(250), founder.State.DailyClaimed)
	require.Equal(t, uint64(4750), founder.RemainingDaily)

	rec = env.do(t, http.MethodGet, "/v1/program", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var program kpireward.ProgramState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &program))
	require.Equal(t, uint64(248), program.TotalRewardsDistributed)
	require.Equal(t, uint64(2), program.TotalTokensBurned)
}

func TestServerMapsRejections(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Now().Unix()
	other, err := crypto.GeneratePrivateKey()
	require.NoError(t, err)

	cases := []struct {
		name   string
		body   claimPayload
		status int
		code   string
	}{
		{"wrong signer", env.payload(t, other, 10, 1, now), http.StatusUnauthorized, "invalid_signature"},
		{"excessive", env.payload(t, env.signer, 1001, 1, now), http.StatusUnprocessableEntity, "excessive_reward"},
		{"stale", env.payload(t, env.signer, 10, 1, now-int64(kpireward.MaxClaimAge)-60), http.StatusUnprocessableEntity, "stale_data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/v1/claims", tc.body, "")
			require.Equal(t, tc.status, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			require.Equal(t, tc.code, body.Code)
			require.False(t, body.Retryable)
		})
	}

	valid := env.payload(t, env.signer, 100, 2, now)
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/claims", valid, "").Code)
	rec := env.do(t, http.MethodPost, "/v1/claims", valid, "")
	require.Equal(t, http.StatusConflict, rec.Code)
	require.Equal(t, "claim_replayed", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodPost, "/v1/claims", claimPayload{Founder: "nope", Signature: "x"}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "invalid_request", decodeError(t, rec).Code)
}

func TestServerDailyLimit(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Now().Unix()
	for i := 0; i < 5; i++ {
		rec := env.do(t, http.MethodPost, "/v1/claims", env.payload(t, env.signer, 1000, uint8(i), now), "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}
	rec := env.do(t, http.MethodPost, "/v1/claims", env.payload(t, env.signer, 1, 9, now), "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	body := decodeError(t, rec)
	require.Equal(t, "daily_limit_exceeded", body.Code)
	require.True(t, body.Retryable)
}

func TestServerAdminRequiresToken(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/admin/pause", nil, "").Code)
	require.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodPost, "/admin/pause", nil, "wrong").Code)
	require.False(t, env.engine.IsPaused(kpireward.ModuleName))
}

func TestServerPauseAndResume(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Now().Unix()

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/admin/pause", nil, testAdminToken).Code)
	rec := env.do(t, http.MethodPost, "/v1/claims", env.payload(t, env.signer, 10, 1, now), "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "module_paused", decodeError(t, rec).Code)

	rec = env.do(t, http.MethodGet, "/admin/status", nil, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var status statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	require.True(t, status.Paused)
	require.Equal(t, kpireward.MaxDailyRewards, status.MaxDailyRewards)
	require.Zero(t, status.PendingPartials)

	require.Equal(t, http.StatusNoContent, env.do(t, http.MethodPost, "/admin/resume", nil, testAdminToken).Code)
	rec = env.do(t, http.MethodPost, "/v1/claims", env.payload(t, env.signer, 10, 1, now), "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestServerBatch(t *testing.T) {
	env := newTestEnv(t, nil)
	now := time.Now().Unix()
	payload := batchPayload{Claims: []claimPayload{
		env.payload(t, env.signer, 100, 1, now),
		{Founder: "bogus", Signature: "bogus"},
		env.payload(t, env.signer, 2000, 2, now),
		env.payload(t, env.signer, 200, 3, now),
	}}

	rec := env.do(t, http.MethodPost, "/v1/claims/batch", payload, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Results []batchItem `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 4)

	require.NotNil(t, body.Results[0].Event)
	require.Equal(t, uint64(99), body.Results[0].Event.NetAmount)
	require.NotNil(t, body.Results[1].Error)
	require.Equal(t, "invalid_request", body.Results[1].Error.Code)
	require.NotNil(t, body.Results[2].Error)
	require.Equal(t, "excessive_reward", body.Results[2].Error.Code)
	require.NotNil(t, body.Results[3].Event)
	require.Equal(t, 3, body.Results[3].Index)

	state, err := env.engine.RewardState(env.founder)
	require.NoError(t, err)
	require.Equal(t, uint64(300), state.DailyClaimed)
}

func TestServerBatchRejectsEmptyAndOversized(t *testing.T) {
	env := newTestEnv(t, nil)
	require.Equal(t, http.StatusBadRequest, env.do(t, http.MethodPost, "/v1/claims/batch", batchPayload{}, "").Code)

	claims := make([]claimPayload, 11)
	for i := range claims {
		claims[i] = env.payload(t, env.signer, 1, uint8(i), time.Now().Unix())
	}
	rec := env.do(t, http.MethodPost, "/v1/claims/batch", batchPayload{Claims: claims}, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	state, err := env.engine.RewardState(env.founder)
	require.NoError(t, err)
	require.Zero(t, state.DailyClaimed)
}

func TestServerReconciliationsEmpty(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/admin/reconciliations", nil, testAdminToken)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Records []kpireward.PartialIssuance `json:"records"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Records)

	rec = env.do(t, http.MethodPost, "/admin/reconciliations/missing/reconcile", nil, testAdminToken)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerRateLimitsClaims(t *testing.T) {
	env := newTestEnv(t, NewRateLimiter(RateLimitConfig{RequestsPerMinute: 1, Burst: 1}))
	now := time.Now().Unix()
	require.Equal(t, http.StatusOK, env.do(t, http.MethodPost, "/v1/claims", env.payload(t, env.signer, 5, 1, now), "").Code)
	rec := env.do(t, http.MethodPost, "/v1/claims", env.payload(t, env.signer, 5, 2, now), "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	require.Equal(t, "rate_limited", decodeError(t, rec).Code)

	require.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/v1/program", nil, "").Code)
}

func TestServerHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(t, http.MethodGet, "/healthz", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())

	rec = env.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
}
