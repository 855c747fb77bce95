package service

import (
	"log/slog"
	"time"

	"sequencer/domain/ledger"
	"sequencer/domain/orderbook"
	"sequencer/protocol"
)

// Recorder receives per request measurements. infra/metrics provides the
// Prometheus implementation.
type Recorder interface {
	ObserveRequest(requestType string, code string, elapsed time.Duration)
	ObserveTrades(n int)
	ObserveOrderChanges(changes []orderbook.OrderChanged)
	ObserveCheckpoint(ok bool)
	SetLastSequence(seq uint64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, string, time.Duration) {}
func (nopRecorder) ObserveTrades(int)                            {}
func (nopRecorder) ObserveOrderChanges([]orderbook.OrderChanged) {}
func (nopRecorder) ObserveCheckpoint(bool)                       {}
func (nopRecorder) SetLastSequence(uint64)                       {}

type EngineOption func(*Engine)

func WithEngineLogger(log *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.log = log
	}
}

func WithRecorder(r Recorder) EngineOption {
	return func(e *Engine) {
		e.metrics = r
	}
}

// WithMarketOptions applies opts to every market the engine creates.
func WithMarketOptions(opts ...orderbook.MarketOption) EngineOption {
	return func(e *Engine) {
		e.marketOpts = opts
	}
}

// Engine applies sequenced requests to a State. It is deterministic:
// the same state and the same requests, with the same sequence numbers
// and timestamps, always produce the same responses and the same state.
// Engine is not safe for concurrent use.
type Engine struct {
	state      *ledger.State
	log        *slog.Logger
	metrics    Recorder
	marketOpts []orderbook.MarketOption
}

func NewEngine(state *ledger.State, opts ...EngineOption) *Engine {
	e := &Engine{
		state:   state,
		log:     slog.New(slog.DiscardHandler),
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) State() *ledger.State {
	return e.state
}

// MarketOptions returns the options markets are built with, for restoring
// a checkpoint into an equivalent state.
func (e *Engine) MarketOptions() []orderbook.MarketOption {
	return e.marketOpts
}

// Process applies one request. createdAt is the sequencing time in unix
// milliseconds and is stamped on trades and the response.
func (e *Engine) Process(seq uint64, createdAt int64, req *protocol.Request) *protocol.Response {
	start := time.Now()

	var resp *protocol.Response
	switch req.Type {
	case protocol.TypeAddMarket:
		resp = e.addMarket(req.AddMarket)
	case protocol.TypeSetFeeRates:
		resp = e.setFeeRates(req.FeeRates)
	case protocol.TypeSetWithdrawalFees:
		resp = e.setWithdrawalFees(req.WithdrawalFees)
	case protocol.TypeSetMarketMinFees:
		resp = e.setMarketMinFees(req.MarketMinFees)
	case protocol.TypeApplyOrderBatch:
		resp = e.applyOrderBatch(req.OrderBatch, createdAt)
	case protocol.TypeApplyBalanceBatch:
		resp = e.applyBalanceBatch(req.BalanceBatch)
	default:
		resp = &protocol.Response{Error: protocol.ErrorUnknownRequest}
	}

	resp.Guid = req.Guid
	resp.Sequence = seq
	resp.CreatedAt = createdAt
	elapsed := time.Since(start)
	resp.ProcessingTime = elapsed.Nanoseconds()

	if resp.Error != protocol.ErrorNone {
		e.log.Debug("request rejected", "seq", seq, "guid", req.Guid, "type", req.Type, "error", resp.Error)
	}
	e.metrics.ObserveRequest(string(req.Type), resp.Error.String(), elapsed)
	e.metrics.ObserveTrades(len(resp.TradesCreated))
	e.metrics.ObserveOrderChanges(resp.OrdersChanged)
	return resp
}

func reject(code protocol.Error) *protocol.Response {
	return &protocol.Response{Error: code}
}
