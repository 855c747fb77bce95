// Package broadcaster drains the output log: every response not yet
// acknowledged is published, in sequence order, and marked ACKED once the
// sink has taken it.
package broadcaster

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"

	"sequencer/infra/wal/exit"
)

// Publisher delivers one response. Publish returns only once the sink has
// acknowledged the message.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
	Close() error
}

type Recorder interface {
	ObservePublish(ok bool)
}

type nopRecorder struct{}

func (nopRecorder) ObservePublish(bool) {}

var errDeliveryStopped = errors.New("delivery stopped")

type Option func(*Broadcaster)

func WithInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.interval = d
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(b *Broadcaster) {
		b.log = log
	}
}

func WithRecorder(r Recorder) Option {
	return func(b *Broadcaster) {
		b.metrics = r
	}
}

type Broadcaster struct {
	output    *exit.Log
	publisher Publisher
	interval  time.Duration
	log       *slog.Logger
	metrics   Recorder
}

func New(output *exit.Log, publisher Publisher, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		output:    output,
		publisher: publisher,
		interval:  250 * time.Millisecond,
		log:       slog.New(slog.DiscardHandler),
		metrics:   nopRecorder{},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With("component", "broadcaster")
	return b
}

// Run drains the output log every interval until ctx is done.
func (b *Broadcaster) Run(ctx context.Context) error {
	b.log.Info("broadcaster started", "interval", b.interval)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		if _, err := b.Drain(ctx); err != nil {
			b.log.Error("drain failed", "err", err)
		}
		select {
		case <-ctx.Done():
			b.log.Info("broadcaster stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Drain publishes pending responses and returns how many were
// acknowledged. It stops at the first failed delivery so that responses
// never overtake one another; the failed one is retried on the next pass.
func (b *Broadcaster) Drain(ctx context.Context) (int, error) {
	sent := 0
	err := b.output.ScanPending(func(e exit.Entry) error {
		if ctx.Err() != nil {
			return errDeliveryStopped
		}
		if err := b.output.UpdateState(e.Seq, exit.StateSent, e.Retries); err != nil {
			return err
		}

		key := strconv.AppendUint(nil, e.Seq, 10)
		if err := b.publisher.Publish(ctx, key, e.Payload); err != nil {
			b.metrics.ObservePublish(false)
			b.log.Warn("publish failed", "seq", e.Seq, "retries", e.Retries+1, "err", err)
			if err := b.output.UpdateState(e.Seq, exit.StateFailed, e.Retries+1); err != nil {
				return err
			}
			return errDeliveryStopped
		}

		b.metrics.ObservePublish(true)
		sent++
		return b.output.UpdateState(e.Seq, exit.StateAcked, e.Retries)
	})
	if errors.Is(err, errDeliveryStopped) {
		err = nil
	}
	if sent > 0 {
		b.log.Debug("responses delivered", "count", sent)
	}
	return sent, err
}

func (b *Broadcaster) Close() error {
	return b.publisher.Close()
}
