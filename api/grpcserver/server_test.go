package grpcserver

import (
	"context"
	"net"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"sequencer/domain/amount"
	"sequencer/domain/orderbook"
	"sequencer/protocol"
	"sequencer/service"
)

type echoSubmitter struct {
	seq  atomic.Uint64
	err  error
	last atomic.Pointer[protocol.Request]
	view *service.View
}

func (s *echoSubmitter) View() *service.View {
	return s.view
}

func (s *echoSubmitter) Submit(_ context.Context, req *protocol.Request) (*protocol.Response, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.last.Store(req)
	return &protocol.Response{Guid: req.Guid, Sequence: s.seq.Add(1), FeeRatesSet: req.FeeRates}, nil
}

func dial(t testing.TB, svc Sequencer) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	Register(srv, NewServer(svc, nil))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestProcessRoundTrip(t *testing.T) {
	svc := &echoSubmitter{}
	client := dial(t, svc)

	rates := &amount.FeeRates{Maker: 1_000, Taker: 2_000}
	resp, err := client.Process(context.Background(), &protocol.Request{Guid: "g-1", Type: protocol.TypeSetFeeRates, FeeRates: rates})
	require.NoError(t, err)
	assert.Equal(t, "g-1", resp.Guid)
	assert.Equal(t, uint64(1), resp.Sequence)
	assert.Equal(t, rates, resp.FeeRatesSet)
}

func TestProcessCarriesTaggedOrders(t *testing.T) {
	svc := &echoSubmitter{}
	client := dial(t, svc)

	_, err := client.Process(context.Background(), &protocol.Request{
		Type: protocol.TypeApplyOrderBatch,
		OrderBatch: &protocol.OrderBatch{
			MarketID: "BTC/USDC",
			Account:  7,
			OrdersToAdd: protocol.Orders{
				&orderbook.LimitOrder{Guid: 1, Side: orderbook.Sell, Amount: decimal.NewFromInt(5), LevelIx: 100},
				&orderbook.MarketOrder{Guid: 2, Side: orderbook.Buy, Percentage: 50},
			},
		},
	})
	require.NoError(t, err)

	got := svc.last.Load()
	require.NotNil(t, got)
	require.Len(t, got.OrderBatch.OrdersToAdd, 2)
	assert.IsType(t, &orderbook.LimitOrder{}, got.OrderBatch.OrdersToAdd[0])
	assert.IsType(t, &orderbook.MarketOrder{}, got.OrderBatch.OrdersToAdd[1])
}

func TestProcessAssignsGuid(t *testing.T) {
	client := dial(t, &echoSubmitter{})

	resp, err := client.Process(context.Background(), &protocol.Request{Type: protocol.TypeSetFeeRates, FeeRates: &amount.FeeRates{}})
	require.NoError(t, err)
	_, err = uuid.Parse(resp.Guid)
	assert.NoError(t, err)
}

func TestProcessStoppedIsUnavailable(t *testing.T) {
	client := dial(t, &echoSubmitter{err: service.ErrStopped})

	_, err := client.Process(context.Background(), &protocol.Request{Type: protocol.TypeSetFeeRates})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestBookState(t *testing.T) {
	state := orderbook.BidOfferState{MinBidIx: 90, BestBidIx: 99, BestOfferIx: 101, MaxOfferIx: 120}
	client := dial(t, &echoSubmitter{view: &service.View{
		Sequence: 42,
		Markets: map[orderbook.MarketID]service.MarketView{
			"BTC/USDC": {MarketID: "BTC/USDC", TickSize: decimal.RequireFromString("0.5"), BidOfferState: state},
		},
	}})

	resp, err := client.BookState(context.Background(), "BTC/USDC")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), resp.Sequence)
	assert.Equal(t, state, resp.Market.BidOfferState)
	assert.Equal(t, "0.5", resp.Market.TickSize.String())

	_, err = client.BookState(context.Background(), "ETH/USDC")
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func BenchmarkProcess(b *testing.B) {
	client := dial(b, &echoSubmitter{})
	req := &protocol.Request{Guid: "bench", Type: protocol.TypeSetFeeRates, FeeRates: &amount.FeeRates{Maker: 1, Taker: 2}}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			if _, err := client.Process(context.Background(), req); err != nil {
				b.Fatal(err)
			}
		}
	})
}
