// Package rpc exposes the staking ledger operations over HTTP.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stakeledger/native/staking"
	"stakeledger/observability"
)

// Server wires the staking engine to its HTTP surface. Mutating requests are
// serialized through a single mutex, matching the one-operation-at-a-time
// execution model the ledger assumes.
type Server struct {
	engine   *staking.Engine
	logger   *slog.Logger
	metrics  *observability.Metrics
	recorder *observability.EventRecorder

	auth    *authenticator
	limiter *rateLimiter

	mu sync.Mutex
}

// Options configures the optional server components.
type Options struct {
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Metrics   *observability.Metrics
	Recorder  *observability.EventRecorder
}

// NewServer constructs the HTTP server for the given engine.
func NewServer(engine *staking.Engine, logger *slog.Logger, opts Options) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		engine:   engine,
		logger:   logger,
		metrics:  opts.Metrics,
		recorder: opts.Recorder,
		auth:     newAuthenticator(opts.Auth, logger),
		limiter:  newRateLimiter(opts.RateLimit),
	}
}

// Router assembles the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.limiter.middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/staking", func(r chi.Router) {
		r.Get("/accounts/{address}", s.handleGetAccount)
		r.Get("/pool", s.handleGetPool)
		r.Get("/events", s.handleGetEvents)

		r.Group(func(r chi.Router) {
			r.Use(s.auth.middleware)
			r.Post("/deposits", s.handleDeposit)
			r.Post("/withdrawals", s.handleWithdraw)
			r.Put("/apy", s.handleSetAPY)
			r.Post("/pool/refills", s.handleRefill)
			r.Post("/sweeps", s.handleSweep)
			r.Post("/balance-decreases", s.handleDecrease)
			r.Put("/owner", s.handleTransferOwnership)
		})
	})
	return r
}

type errorResponse struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, staking.ErrInvalidParameter):
		return http.StatusBadRequest
	case errors.Is(err, staking.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, staking.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, staking.ErrWindowExpired),
		errors.Is(err, staking.ErrOperationInProgress):
		return http.StatusConflict
	case errors.Is(err, staking.ErrInsufficientPool),
		errors.Is(err, staking.ErrInsufficientBalance),
		errors.Is(err, staking.ErrZeroBalance):
		return http.StatusUnprocessableEntity
	case errors.Is(err, staking.ErrExternalTransferFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	attrs := []any{
		slog.String("op", op),
		slog.String("path", r.URL.Path),
		slog.String("requestId", w.Header().Get(requestIDHeader)),
		slog.Any("error", err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("operation failed", attrs...)
	} else {
		s.logger.Info("operation rejected", attrs...)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", staking.ErrInvalidParameter, err)
	}
	return nil
}

func parseAddress(field, raw string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(raw)
	if !common.IsHexAddress(trimmed) {
		return addr, fmt.Errorf("%w: %s must be a hex address", staking.ErrInvalidParameter, field)
	}
	return common.HexToAddress(trimmed), nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("%w: %s is required", staking.ErrInvalidParameter, field)
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a decimal amount", staking.ErrInvalidParameter, field)
	}
	return amount, nil
}

func (s *Server) refreshGauges() {
	if s.metrics == nil {
		return
	}
	global, err := s.engine.GlobalInfo()
	if err != nil {
		return
	}
	s.metrics.SetLedgerGauges(global.TotalStaked, global.TokenPool)
}

func (s *Server) observe(op string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveOperation(op, err)
	}
}

type accountResponse struct {
	Address         string `json:"address"`
	Balance         string `json:"balance"`
	AccruedReward   string `json:"accruedReward"`
	DepositTime     int64  `json:"depositTime"`
	LastAccrualTime int64  `json:"lastAccrualTime"`
	Active          bool   `json:"active"`
}

func toAccountResponse(addr [20]byte, acct *staking.Account) accountResponse {
	return accountResponse{
		Address:         common.Address(addr).Hex(),
		Balance:         acct.Balance.String(),
		AccruedReward:   acct.AccruedReward.String(),
		DepositTime:     acct.DepositTime,
		LastAccrualTime: acct.LastAccrualTime,
		Active:          acct.Active,
	}
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddress("address", chi.URLParam(r, "address"))
	if err != nil {
		s.writeError(w, r, "get_account", err)
		return
	}
	acct, err := s.engine.GetUserInfo(addr)
	if err != nil {
		s.writeError(w, r, "get_account", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(addr, acct))
}

type poolResponse struct {
	Owner                  string `json:"owner"`
	APY                    uint64 `json:"apy"`
	TokenPool              string `json:"tokenPool"`
	TotalStaked            string `json:"totalStaked"`
	InactivityLimitSeconds int64  `json:"inactivityLimitSeconds"`
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	global, err := s.engine.GlobalInfo()
	if err != nil {
		s.writeError(w, r, "get_pool", err)
		return
	}
	writeJSON(w, http.StatusOK, poolResponse{
		Owner:                  common.Address(global.Owner).Hex(),
		APY:                    global.APY,
		TokenPool:              global.TokenPool.String(),
		TotalStaked:            global.TotalStaked.String(),
		InactivityLimitSeconds: s.engine.InactivityLimit(),
	})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	if s.recorder == nil {
		writeJSON(w, http.StatusOK, []observability.RecordedEvent{})
		return
	}
	writeJSON(w, http.StatusOK, s.recorder.Recent())
}

type depositRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}

	s.mu.Lock()
	err = s.engine.DepositForUser(caller, account, amount)
	s.mu.Unlock()
	s.observe("deposit", err)
	if err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	s.refreshGauges()
	acct, err := s.engine.GetUserInfo(account)
	if err != nil {
		s.writeError(w, r, "deposit", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account, acct))
}

type withdrawRequest struct {
	Caller string `json:"caller"`
}

type withdrawResponse struct {
	Payout string `json:"payout"`
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "withdraw", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, "withdraw", err)
		return
	}

	s.mu.Lock()
	payout, err := s.engine.Withdraw(caller)
	s.mu.Unlock()
	s.observe("withdraw", err)
	if err != nil {
		s.writeError(w, r, "withdraw", err)
		return
	}
	s.refreshGauges()
	writeJSON(w, http.StatusOK, withdrawResponse{Payout: payout.String()})
}

type setAPYRequest struct {
	Caller string `json:"caller"`
	APY    uint64 `json:"apy"`
}

func (s *Server) handleSetAPY(w http.ResponseWriter, r *http.Request) {
	var req setAPYRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "set_apy", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, "set_apy", err)
		return
	}

	s.mu.Lock()
	err = s.engine.SetAPY(caller, req.APY)
	s.mu.Unlock()
	s.observe("set_apy", err)
	if err != nil {
		s.writeError(w, r, "set_apy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"apy": req.APY})
}

type refillRequest struct {
	Caller string `json:"caller"`
	Amount string `json:"amount"`
}

func (s *Server) handleRefill(w http.ResponseWriter, r *http.Request) {
	var req refillRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "refill", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, "refill", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "refill", err)
		return
	}

	s.mu.Lock()
	err = s.engine.RefillTokenPool(caller, amount)
	s.mu.Unlock()
	s.observe("refill", err)
	if err != nil {
		s.writeError(w, r, "refill", err)
		return
	}
	s.refreshGauges()
	global, err := s.engine.GlobalInfo()
	if err != nil {
		s.writeError(w, r, "refill", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"tokenPool": global.TokenPool.String()})
}

type sweepRequest struct {
	Caller string `json:"caller"`
}

type sweepResponse struct {
	Reclaimed string `json:"reclaimed"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "sweep", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, "sweep", err)
		return
	}

	s.mu.Lock()
	reclaimed, err := s.engine.SweepExpiredAccounts(caller)
	s.mu.Unlock()
	s.observe("sweep", err)
	if err != nil {
		s.writeError(w, r, "sweep", err)
		return
	}
	s.refreshGauges()
	writeJSON(w, http.StatusOK, sweepResponse{Reclaimed: reclaimed.String()})
}

type decreaseRequest struct {
	Caller  string `json:"caller"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

func (s *Server) handleDecrease(w http.ResponseWriter, r *http.Request) {
	var req decreaseRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "decrease_balance", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, "decrease_balance", err)
		return
	}
	account, err := parseAddress("account", req.Account)
	if err != nil {
		s.writeError(w, r, "decrease_balance", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		s.writeError(w, r, "decrease_balance", err)
		return
	}

	s.mu.Lock()
	err = s.engine.DecreaseUserBalance(caller, account, amount)
	s.mu.Unlock()
	s.observe("decrease_balance", err)
	if err != nil {
		s.writeError(w, r, "decrease_balance", err)
		return
	}
	s.refreshGauges()
	acct, err := s.engine.GetUserInfo(account)
	if err != nil {
		s.writeError(w, r, "decrease_balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toAccountResponse(account, acct))
}

type transferOwnershipRequest struct {
	Caller   string `json:"caller"`
	NewOwner string `json:"newOwner"`
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req transferOwnershipRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "transfer_ownership", err)
		return
	}
	caller, err := parseAddress("caller", req.Caller)
	if err != nil {
		s.writeError(w, r, "transfer_ownership", err)
		return
	}
	newOwner, err := parseAddress("newOwner", req.NewOwner)
	if err != nil {
		s.writeError(w, r, "transfer_ownership", err)
		return
	}

	s.mu.Lock()
	err = s.engine.TransferOwnership(caller, newOwner)
	s.mu.Unlock()
	s.observe("transfer_ownership", err)
	if err != nil {
		s.writeError(w, r, "transfer_ownership", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"owner": common.Address(newOwner).Hex()})
}
