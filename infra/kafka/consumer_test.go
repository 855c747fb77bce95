package kafka

import (
	"context"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sequencer/protocol"
)

type fakeReader struct {
	msgs      []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if len(r.msgs) == 0 {
		r.cancel()
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.msgs[0]
	r.msgs = r.msgs[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

type recordingSubmitter struct {
	reqs []*protocol.Request
}

func (s *recordingSubmitter) Submit(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	s.reqs = append(s.reqs, req)
	return &protocol.Response{Guid: req.Guid, Sequence: uint64(len(s.reqs))}, nil
}

func TestConsumerSubmitsThenCommits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reader := &fakeReader{cancel: cancel, msgs: []kafka.Message{
		{Offset: 10, Value: []byte(`{"guid":"a","type":"SetFeeRates","feeRates":{"maker":1,"taker":2}}`)},
		{Offset: 11, Value: []byte(`{"type":"SetFeeRates","feeRates":{"maker":1,"taker":2}}`)},
		{Offset: 12, Value: []byte(`not json`)},
	}}
	sub := &recordingSubmitter{}
	c := NewConsumer(reader, sub, slog.New(slog.DiscardHandler))

	require.NoError(t, c.Run(ctx))
	require.Len(t, sub.reqs, 3)
	assert.Equal(t, "a", sub.reqs[0].Guid)
	assert.NotEmpty(t, sub.reqs[1].Guid)
	assert.Equal(t, protocol.RequestType(""), sub.reqs[2].Type)
	assert.Equal(t, []int64{10, 11, 12}, reader.committed)
}
