package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"sequencer/domain/orderbook"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRequest("ApplyOrderBatch", "None", time.Millisecond)
	m.ObserveRequest("ApplyOrderBatch", "ExceedsLimit", time.Millisecond)
	m.ObserveRequest("ApplyOrderBatch", "None", time.Millisecond)
	m.ObserveTrades(3)
	m.ObserveOrderChanges([]orderbook.OrderChanged{
		{Guid: 1, Disposition: orderbook.Filled},
		{Guid: 2, Disposition: orderbook.Filled},
		{Guid: 3, Disposition: orderbook.AutoReduced},
	})
	m.ObserveCheckpoint(true)
	m.ObserveCheckpoint(false)
	m.SetLastSequence(99)
	m.ObservePublish(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.requests.WithLabelValues("ApplyOrderBatch", "None")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.trades))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.orderChanges.WithLabelValues("Filled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.checkpoints.WithLabelValues("error")))
	assert.Equal(t, 99.0, testutil.ToFloat64(m.lastSequence))
	assert.Equal(t, 1, testutil.CollectAndCount(m.apply))
}
