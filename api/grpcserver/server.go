// Package grpcserver is the gRPC gateway in front of the sequencer.
// Process submits a request and returns its response; BookState reads
// the top of book the sequencer last published.
package grpcserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"sequencer/domain/orderbook"
	"sequencer/protocol"
	"sequencer/service"
)

const (
	ServiceName     = "sequencer.Sequencer"
	processMethod   = "/" + ServiceName + "/Process"
	bookStateMethod = "/" + ServiceName + "/BookState"
)

// Sequencer is satisfied by *service.Service.
type Sequencer interface {
	Submit(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	View() *service.View
}

type SequencerServer interface {
	Process(ctx context.Context, req *protocol.Request) (*protocol.Response, error)
	BookState(ctx context.Context, req *BookStateRequest) (*BookStateResponse, error)
}

type BookStateRequest struct {
	MarketID orderbook.MarketID `json:"marketId"`
}

type BookStateResponse struct {
	Sequence uint64             `json:"sequence"`
	Market   service.MarketView `json:"market"`
}

type Server struct {
	svc Sequencer
	log *slog.Logger
}

func NewServer(svc Sequencer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Server{svc: svc, log: log.With("component", "grpc")}
}

// Process sequences req. A request without a guid is given one.
func (s *Server) Process(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	if req.Guid == "" {
		req.Guid = uuid.NewString()
	}
	resp, err := s.svc.Submit(ctx, req)
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, service.ErrStopped):
		return nil, status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, status.FromContextError(err).Err()
	default:
		s.log.Error("submit failed", "guid", req.Guid, "type", req.Type, "err", err)
		return nil, status.Error(codes.Internal, err.Error())
	}
}

// BookState is served from the last published view and never waits on
// the writer loop.
func (s *Server) BookState(_ context.Context, req *BookStateRequest) (*BookStateResponse, error) {
	view := s.svc.View()
	m, ok := view.Market(req.MarketID)
	if !ok {
		return nil, status.Errorf(codes.NotFound, "unknown market %q", req.MarketID)
	}
	return &BookStateResponse{Sequence: view.Sequence, Market: m}, nil
}

func processHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(protocol.Request)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SequencerServer).Process(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: processMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SequencerServer).Process(ctx, req.(*protocol.Request))
	}
	return interceptor(ctx, in, info, handler)
}

func bookStateHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(BookStateRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SequencerServer).BookState(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: bookStateMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SequencerServer).BookState(ctx, req.(*BookStateRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SequencerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Process", Handler: processHandler},
		{MethodName: "BookState", Handler: bookStateHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "sequencer",
}

func Register(s grpc.ServiceRegistrar, srv SequencerServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// NewGRPCServer builds a server that logs every call.
func NewGRPCServer(log *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	opts = append([]grpc.ServerOption{grpc.UnaryInterceptor(LoggingInterceptor(log))}, opts...)
	return grpc.NewServer(opts...)
}

func LoggingInterceptor(log *slog.Logger) grpc.UnaryServerInterceptor {
	log = log.With("component", "grpc")
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		log.Debug("call", "method", info.FullMethod, "code", status.Code(err).String(), "took", time.Since(start))
		return resp, err
	}
}

// Client calls a remote gateway.
type Client struct {
	conn grpc.ClientConnInterface
}

func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) Process(ctx context.Context, req *protocol.Request, opts ...grpc.CallOption) (*protocol.Response, error) {
	resp := new(protocol.Response)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.conn.Invoke(ctx, processMethod, req, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) BookState(ctx context.Context, market orderbook.MarketID, opts ...grpc.CallOption) (*BookStateResponse, error) {
	resp := new(BookStateResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.conn.Invoke(ctx, bookStateMethod, &BookStateRequest{MarketID: market}, resp, opts...); err != nil {
		return nil, err
	}
	return resp, nil
}
