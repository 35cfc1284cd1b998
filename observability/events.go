package observability

import (
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"stakeledger/core/events"
)

// EventRecorder is an events.Emitter that logs every ledger event, counts it
// in prometheus, and keeps a bounded in-memory tail for the monitoring API.
// Events are append-only and never read back by the ledger itself.
type EventRecorder struct {
	logger  *slog.Logger
	metrics *Metrics

	mu     sync.RWMutex
	ring   []RecordedEvent
	next   uint64
	length int
}

// RecordedEvent pairs an emitted event with its monotonic sequence number.
// Detail is the presentation form served over HTTP: addresses as 0x-prefixed
// hex, amounts as decimal strings, matching the rest of the API.
type RecordedEvent struct {
	Sequence uint64 `json:"sequence"`
	Type     string `json:"type"`
	Detail   any    `json:"detail"`
}

type depositDetail struct {
	Account     string `json:"account"`
	Amount      string `json:"amount"`
	NewBalance  string `json:"newBalance"`
	TotalStaked string `json:"totalStaked"`
	Timestamp   int64  `json:"timestamp"`
}

type withdrawalDetail struct {
	Account   string `json:"account"`
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
	Timestamp int64  `json:"timestamp"`
}

type accrualDetail struct {
	Account   string `json:"account"`
	Reward    string `json:"reward"`
	Accrued   string `json:"accrued"`
	Timestamp int64  `json:"timestamp"`
}

type apyDetail struct {
	OldAPY uint64 `json:"oldApy"`
	NewAPY uint64 `json:"newApy"`
}

type refillDetail struct {
	Amount    string `json:"amount"`
	TokenPool string `json:"tokenPool"`
}

type sweepDetail struct {
	Accounts  int    `json:"accounts"`
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
	Timestamp int64  `json:"timestamp"`
}

type forfeitureDetail struct {
	Account   string `json:"account"`
	Principal string `json:"principal"`
	Reward    string `json:"reward"`
	Timestamp int64  `json:"timestamp"`
}

type decreaseDetail struct {
	Account    string `json:"account"`
	Amount     string `json:"amount"`
	NewBalance string `json:"newBalance"`
}

type ownershipDetail struct {
	OldOwner string `json:"oldOwner"`
	NewOwner string `json:"newOwner"`
}

func hexAddr(addr [20]byte) string { return common.Address(addr).Hex() }

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func eventDetail(evt events.Event) any {
	switch e := evt.(type) {
	case events.StakeDeposited:
		return depositDetail{
			Account:     hexAddr(e.Account),
			Amount:      amountString(e.Amount),
			NewBalance:  amountString(e.NewBalance),
			TotalStaked: amountString(e.TotalStaked),
			Timestamp:   e.Timestamp,
		}
	case events.StakeWithdrawn:
		return withdrawalDetail{
			Account:   hexAddr(e.Account),
			Principal: amountString(e.Principal),
			Reward:    amountString(e.Reward),
			Timestamp: e.Timestamp,
		}
	case events.RewardAccrued:
		return accrualDetail{
			Account:   hexAddr(e.Account),
			Reward:    amountString(e.Reward),
			Accrued:   amountString(e.Accrued),
			Timestamp: e.Timestamp,
		}
	case events.APYUpdated:
		return apyDetail{OldAPY: e.OldAPY, NewAPY: e.NewAPY}
	case events.PoolRefilled:
		return refillDetail{
			Amount:    amountString(e.Amount),
			TokenPool: amountString(e.TokenPool),
		}
	case events.OwnerSwept:
		return sweepDetail{
			Accounts:  e.Accounts,
			Principal: amountString(e.Principal),
			Reward:    amountString(e.Reward),
			Timestamp: e.Timestamp,
		}
	case events.AccountForfeited:
		return forfeitureDetail{
			Account:   hexAddr(e.Account),
			Principal: amountString(e.Principal),
			Reward:    amountString(e.Reward),
			Timestamp: e.Timestamp,
		}
	case events.BalanceDecreased:
		return decreaseDetail{
			Account:    hexAddr(e.Account),
			Amount:     amountString(e.Amount),
			NewBalance: amountString(e.NewBalance),
		}
	case events.OwnershipTransferred:
		return ownershipDetail{
			OldOwner: hexAddr(e.OldOwner),
			NewOwner: hexAddr(e.NewOwner),
		}
	default:
		return evt
	}
}

// NewEventRecorder creates a recorder keeping up to capacity recent events.
func NewEventRecorder(logger *slog.Logger, metrics *Metrics, capacity int) *EventRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if capacity <= 0 {
		capacity = 256
	}
	return &EventRecorder{
		logger:  logger,
		metrics: metrics,
		ring:    make([]RecordedEvent, capacity),
	}
}

// Emit implements events.Emitter.
func (r *EventRecorder) Emit(evt events.Event) {
	if r == nil || evt == nil {
		return
	}
	eventType := evt.EventType()
	detail := eventDetail(evt)
	if r.metrics != nil {
		r.metrics.Events.WithLabelValues(eventType).Inc()
	}
	r.logger.Info("ledger event",
		slog.String("type", eventType),
		slog.String("detail", fmt.Sprintf("%+v", detail)),
	)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[int(r.next)%len(r.ring)] = RecordedEvent{Sequence: r.next, Type: eventType, Detail: detail}
	r.next++
	if r.length < len(r.ring) {
		r.length++
	}
}

// Recent returns the retained events, oldest first.
func (r *EventRecorder) Recent() []RecordedEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]RecordedEvent, 0, r.length)
	start := r.next - uint64(r.length)
	for i := 0; i < r.length; i++ {
		out = append(out, r.ring[int(start+uint64(i))%len(r.ring)])
	}
	return out
}
