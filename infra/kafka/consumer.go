package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"sequencer/protocol"
)

// Submitter takes a request into the sequencer and waits for its
// response.
type Submitter interface {
	Submit(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
}

// MessageReader is the part of kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

// Consumer feeds requests from a topic into the sequencer. An offset is
// committed only after the request has been sequenced, so a crash
// re-delivers rather than drops.
type Consumer struct {
	reader MessageReader
	submit Submitter
	log    *slog.Logger
}

func NewReader(cfg ConsumerConfig) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        cfg.Brokers,
		Topic:          cfg.Topic,
		GroupID:        cfg.GroupID,
		StartOffset:    kafka.FirstOffset,
		CommitInterval: 0,
		MaxWait:        100 * time.Millisecond,
		MaxBytes:       10e6,
	})
}

func NewConsumer(reader MessageReader, submit Submitter, log *slog.Logger) *Consumer {
	return &Consumer{
		reader: reader,
		submit: submit,
		log:    log.With("component", "kafka"),
	}
}

// Run consumes until ctx is done or the sequencer stops taking requests.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch request")
		}

		// undecodable input is still sequenced and answered as unknown
		req, err := protocol.DecodeRequest(msg.Value)
		if err != nil {
			c.log.Warn("undecodable request", "partition", msg.Partition, "offset", msg.Offset, "err", err)
		}
		if req.Guid == "" {
			req.Guid = uuid.NewString()
		}
		resp, err := c.submit.Submit(ctx, req)
		if err != nil {
			return errors.Wrapf(err, "submit offset %d", msg.Offset)
		}
		c.log.Debug("request sequenced", "guid", req.Guid, "seq", resp.Sequence, "offset", msg.Offset)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			return errors.Wrapf(err, "commit offset %d", msg.Offset)
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
