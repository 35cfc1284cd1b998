package rpc

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"stakeledger/native/staking"
	"stakeledger/native/token"
	"stakeledger/observability"
	"stakeledger/storage"
)

const (
	testOwnerHex = "0x00000000000000000000000000000000000000A1"
	testUserHex  = "0x00000000000000000000000000000000000000B2"
)

type testServer struct {
	server *Server
	router http.Handler
	engine *staking.Engine
	tokens *token.Ledger
	owner  [20]byte
	module [20]byte
	now    int64
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()

	owner := common.HexToAddress(testOwnerHex)
	module := common.BytesToAddress([]byte("test/custody"))

	tokens := token.NewLedger("VAI")
	require.NoError(t, tokens.Mint(owner, big.NewInt(1_000_000)))
	require.NoError(t, tokens.Approve(owner, module, big.NewInt(1_000_000)))

	engine := staking.NewEngine(module, staking.SecondsPerYear)
	engine.SetState(storage.NewStore(storage.NewMemDB()))
	engine.SetToken(tokens)
	require.NoError(t, engine.Initialize(owner, 10))

	ts := &testServer{
		engine: engine,
		tokens: tokens,
		owner:  owner,
		module: module,
		now:    1_700_000_000,
	}
	engine.SetNowFunc(func() int64 { return ts.now })

	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics(prometheus.NewRegistry())
	}
	ts.server = NewServer(engine, slog.Default(), opts)
	ts.router = ts.server.Router()
	return ts
}

func (ts *testServer) request(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) refill(t *testing.T, amount string) {
	t.Helper()
	rec := ts.request(t, http.MethodPost, "/v1/staking/pool/refills",
		refillRequest{Caller: testOwnerHex, Amount: amount}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestDepositAndQueryAccount(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.refill(t, "11000")

	rec := ts.request(t, http.MethodPost, "/v1/staking/deposits",
		depositRequest{Caller: testOwnerHex, Account: testUserHex, Amount: "1000"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var acct accountResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acct))
	require.True(t, acct.Active)
	require.Equal(t, "1000", acct.Balance)

	rec = ts.request(t, http.MethodGet, "/v1/staking/accounts/"+testUserHex, nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &acct))
	require.Equal(t, "1000", acct.Balance)
}

func TestDepositErrorTranslation(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.refill(t, "1050")

	// Solvency guard: maxPayout(1000) = 1100 > 1050.
	rec := ts.request(t, http.MethodPost, "/v1/staking/deposits",
		depositRequest{Caller: testOwnerHex, Account: testUserHex, Amount: "1000"}, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	rec = ts.request(t, http.MethodPost, "/v1/staking/deposits",
		depositRequest{Caller: testUserHex, Account: testUserHex, Amount: "10"}, nil)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.request(t, http.MethodPost, "/v1/staking/deposits",
		depositRequest{Caller: testOwnerHex, Account: testUserHex, Amount: "abc"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.request(t, http.MethodPost, "/v1/staking/deposits",
		depositRequest{Caller: testOwnerHex, Account: "nope", Amount: "10"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdrawFlow(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.refill(t, "11000")

	rec := ts.request(t, http.MethodPost, "/v1/staking/withdrawals",
		withdrawRequest{Caller: testUserHex}, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.request(t, http.MethodPost, "/v1/staking/deposits",
		depositRequest{Caller: testOwnerHex, Account: testUserHex, Amount: "1000"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ts.now += staking.SecondsPerYear / 2
	rec = ts.request(t, http.MethodPost, "/v1/staking/withdrawals",
		withdrawRequest{Caller: testUserHex}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var payout withdrawResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payout))
	require.Equal(t, "1050", payout.Payout)

	user := common.HexToAddress(testUserHex)
	require.Equal(t, "1050", ts.tokens.BalanceOf(user).String())
}

func TestWithdrawAfterExpiryConflicts(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.refill(t, "11000")

	rec := ts.request(t, http.MethodPost, "/v1/staking/deposits",
		depositRequest{Caller: testOwnerHex, Account: testUserHex, Amount: "1000"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ts.now += staking.SecondsPerYear
	rec = ts.request(t, http.MethodPost, "/v1/staking/withdrawals",
		withdrawRequest{Caller: testUserHex}, nil)
	require.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())
}

func TestPoolEndpointReflectsLedger(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.refill(t, "5000")

	rec := ts.request(t, http.MethodGet, "/v1/staking/pool", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var pool poolResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &pool))
	require.Equal(t, "5000", pool.TokenPool)
	require.Equal(t, uint64(10), pool.APY)
	require.Equal(t, staking.SecondsPerYear, pool.InactivityLimitSeconds)
	require.Equal(t, common.HexToAddress(testOwnerHex).Hex(), pool.Owner)
}

func TestSweepEndpoint(t *testing.T) {
	ts := newTestServer(t, Options{})
	ts.refill(t, "11000")

	rec := ts.request(t, http.MethodPost, "/v1/staking/deposits",
		depositRequest{Caller: testOwnerHex, Account: testUserHex, Amount: "1000"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	ts.now += staking.SecondsPerYear
	rec = ts.request(t, http.MethodPost, "/v1/staking/sweeps",
		sweepRequest{Caller: testOwnerHex}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var swept sweepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &swept))
	require.Equal(t, "1000", swept.Reclaimed)
}

func TestBearerAuthGuardsMutations(t *testing.T) {
	const secret = "test-secret"
	ts := newTestServer(t, Options{Auth: AuthConfig{
		Enabled:    true,
		HMACSecret: secret,
		Issuer:     "ops",
	}})

	body := refillRequest{Caller: testOwnerHex, Amount: "100"}

	rec := ts.request(t, http.MethodPost, "/v1/staking/pool/refills", body, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = ts.request(t, http.MethodPost, "/v1/staking/pool/refills", body,
		map[string]string{"Authorization": "Bearer not-a-token"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	claims := jwt.MapClaims{
		"iss": "ops",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)

	rec = ts.request(t, http.MethodPost, "/v1/staking/pool/refills", body,
		map[string]string{"Authorization": "Bearer " + signed})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Reads stay open.
	rec = ts.request(t, http.MethodGet, "/v1/staking/pool", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitRejectsBursts(t *testing.T) {
	ts := newTestServer(t, Options{RateLimit: RateLimitConfig{RequestsPerMinute: 60, Burst: 1}})

	first := ts.request(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := ts.request(t, http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusTooManyRequests, second.Code)
}

func TestEventsEndpointExposesRecentEvents(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	recorder := observability.NewEventRecorder(slog.Default(), metrics, 16)
	ts := newTestServer(t, Options{Metrics: metrics, Recorder: recorder})
	ts.engine.SetEmitter(recorder)
	ts.refill(t, "11000")

	rec := ts.request(t, http.MethodPost, "/v1/staking/deposits",
		depositRequest{Caller: testOwnerHex, Account: testUserHex, Amount: "1000"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.request(t, http.MethodGet, "/v1/staking/events", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var recorded []struct {
		Sequence uint64 `json:"sequence"`
		Type     string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &recorded))
	require.Len(t, recorded, 2)
	require.Equal(t, "staking.pool.refilled", recorded[0].Type)
	require.Equal(t, "staking.deposit.made", recorded[1].Type)
}
