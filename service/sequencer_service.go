package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"sequencer/infra/sequence"
	"sequencer/infra/wal/entry"
	"sequencer/infra/wal/exit"
	"sequencer/protocol"
	"sequencer/snapshot"
)

// ErrStopped is returned by Submit once the writer loop has exited.
var ErrStopped = errors.New("sequencer stopped")

// CheckpointStore persists checkpoints by cycle.
type CheckpointStore interface {
	Save(c snapshot.Checkpoint) error
	Has(cycle int) (bool, error)
	Latest() (snapshot.Checkpoint, error)
	PruneBefore(cycle int) error
}

type ServiceOption func(*Service)

func WithLogger(log *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.log = log
	}
}

func WithMetrics(r Recorder) ServiceOption {
	return func(s *Service) {
		s.metrics = r
	}
}

// WithClock overrides the sequencing clock.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

type submission struct {
	req  *protocol.Request
	done chan result
}

type result struct {
	resp *protocol.Response
	err  error
}

// Service is the only writer of the sequencer state. Submit may be called
// from any goroutine; requests are applied one at a time by Run.
type Service struct {
	engine      *Engine
	input       *entry.WAL
	output      *exit.Log
	checkpoints CheckpointStore
	seq         *sequence.Sequencer

	log     *slog.Logger
	metrics Recorder
	now     func() time.Time

	views    viewPublisher
	requests chan submission
	stopped  chan struct{}
}

func NewService(engine *Engine, input *entry.WAL, output *exit.Log, checkpoints CheckpointStore, seq *sequence.Sequencer, opts ...ServiceOption) *Service {
	s := &Service{
		engine:      engine,
		input:       input,
		output:      output,
		checkpoints: checkpoints,
		seq:         seq,
		log:         slog.New(slog.DiscardHandler),
		metrics:     nopRecorder{},
		now:         time.Now,
		requests:    make(chan submission),
		stopped:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "sequencer")
	return s
}

// Submit hands req to the writer loop and waits for its response. Once
// the loop has taken the request it is applied even if ctx ends first.
func (s *Service) Submit(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	sub := submission{req: req, done: make(chan result, 1)}
	select {
	case s.requests <- sub:
	case <-s.stopped:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-sub.done:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// View returns the latest published top of book of every market. It is
// safe to call from any goroutine.
func (s *Service) View() *View {
	return s.views.load()
}

// Run applies requests until ctx is done. A failure to write either log
// stops the loop: nothing is acknowledged that is not durable.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.stopped)

	if err := s.checkpointIfMissing(); err != nil {
		return err
	}
	s.views.publish(s.engine, s.seq.Current(), "")
	s.log.Info("sequencer running", "segment", s.input.Segment(), "last_seq", s.seq.Current())

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sequencer stopping", "last_seq", s.seq.Current())
			return nil
		case sub := <-s.requests:
			resp, err := s.apply(sub.req)
			sub.done <- result{resp: resp, err: err}
			if err != nil {
				s.log.Error("sequencer halted", "err", err)
				return err
			}
		}
	}
}

func (s *Service) apply(req *protocol.Request) (*protocol.Response, error) {
	data, err := protocol.EncodeRequest(req)
	if err != nil {
		return nil, err
	}
	seq := s.seq.Next()
	rec := entry.NewRecord(entry.RecordRequest, seq, s.now(), data)

	segment := s.input.Segment()
	if err := s.input.Append(rec); err != nil {
		return nil, errors.Wrap(err, "input log")
	}

	resp := s.engine.Process(seq, rec.CreatedAt(), req)

	payload, err := protocol.EncodeResponse(resp)
	if err != nil {
		return nil, err
	}
	if err := s.output.PutNew(seq, payload); err != nil {
		return nil, errors.Wrap(err, "output log")
	}
	s.metrics.SetLastSequence(seq)
	s.views.publish(s.engine, seq, req.Type)

	if next := s.input.Segment(); next != segment {
		s.checkpoint(next)
	}
	return resp, nil
}

// checkpointIfMissing covers the segment opened at startup, which already
// follows every replayed request.
func (s *Service) checkpointIfMissing() error {
	cycle := s.input.Segment()
	ok, err := s.checkpoints.Has(cycle)
	if err != nil {
		return err
	}
	if !ok {
		s.checkpoint(cycle)
	}
	return nil
}

// checkpoint saves the state under cycle. Only after a successful save
// are older input segments and delivered responses released.
func (s *Service) checkpoint(cycle int) {
	start := time.Now()
	c := snapshot.Checkpoint{Cycle: cycle, State: s.engine.State().Checkpoint()}
	if err := s.checkpoints.Save(c); err != nil {
		s.metrics.ObserveCheckpoint(false)
		s.log.Error("checkpoint failed", "cycle", cycle, "err", err)
		return
	}
	s.metrics.ObserveCheckpoint(true)

	if err := s.input.TruncateBefore(cycle); err != nil {
		s.log.Warn("input log truncation failed", "cycle", cycle, "err", err)
	}
	if err := s.checkpoints.PruneBefore(cycle); err != nil {
		s.log.Warn("checkpoint pruning failed", "cycle", cycle, "err", err)
	}
	n, err := s.output.TruncateAckedBefore(s.seq.Current())
	if err != nil {
		s.log.Warn("output log truncation failed", "cycle", cycle, "err", err)
	}
	s.log.Info("checkpoint saved", "cycle", cycle, "last_seq", s.seq.Current(), "responses_released", n, "took", time.Since(start))
}
