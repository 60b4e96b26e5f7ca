package grpchandler

import (
	"context"

	"github.com/tdex-network/unitswap/internal/core/application/swap"
	"github.com/tdex-network/unitswap/internal/grpcutil"
	"google.golang.org/grpc"
)

const ServiceName = "unitswap.v1.SwapService"

// SwapServiceServer is the server API of the unitswap.v1.SwapService.
type SwapServiceServer interface {
	BuildSwap(context.Context, *swap.BuildSwapRequest) (*swap.BuildSwapResponse, error)
	SettleSwap(context.Context, *swap.SettleSwapRequest) (*swap.SettleSwapResponse, error)
	ListReservations(context.Context, *ListReservationsRequest) (*ListReservationsResponse, error)
	ListOutputs(context.Context, *ListOutputsRequest) (*ListOutputsResponse, error)
	ListSettlements(context.Context, *ListSettlementsRequest) (*ListSettlementsResponse, error)
	Reconcile(context.Context, *ReconcileRequest) (*ReconcileResponse, error)
}

// RegisterSwapServiceServer registers srv on the given grpc server. Messages
// are json encoded, see grpcutil.JSONCodecName.
func RegisterSwapServiceServer(s *grpc.Server, srv SwapServiceServer) {
	s.RegisterService(&swapServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](
	method string,
	call func(SwapServiceServer, context.Context, *Req) (*Resp, error),
) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(
		srv interface{}, ctx context.Context, dec func(interface{}) error,
		interceptor grpc.UnaryServerInterceptor,
	) (interface{}, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SwapServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: "/" + ServiceName + "/" + method,
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(SwapServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var swapServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SwapServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "BuildSwap",
			Handler:    unaryHandler("BuildSwap", SwapServiceServer.BuildSwap),
		},
		{
			MethodName: "SettleSwap",
			Handler:    unaryHandler("SettleSwap", SwapServiceServer.SettleSwap),
		},
		{
			MethodName: "ListReservations",
			Handler:    unaryHandler("ListReservations", SwapServiceServer.ListReservations),
		},
		{
			MethodName: "ListOutputs",
			Handler:    unaryHandler("ListOutputs", SwapServiceServer.ListOutputs),
		},
		{
			MethodName: "ListSettlements",
			Handler:    unaryHandler("ListSettlements", SwapServiceServer.ListSettlements),
		},
		{
			MethodName: "Reconcile",
			Handler:    unaryHandler("Reconcile", SwapServiceServer.Reconcile),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "unitswap/v1/swap.proto",
}

// SwapServiceClient is the client API of the unitswap.v1.SwapService.
type SwapServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewSwapServiceClient(cc grpc.ClientConnInterface) *SwapServiceClient {
	return &SwapServiceClient{cc}
}

func (c *SwapServiceClient) invoke(
	ctx context.Context, method string, in, out interface{}, opts ...grpc.CallOption,
) error {
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(grpcutil.JSONCodecName)}, opts...)
	return c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out, opts...)
}

func (c *SwapServiceClient) BuildSwap(
	ctx context.Context, in *swap.BuildSwapRequest, opts ...grpc.CallOption,
) (*swap.BuildSwapResponse, error) {
	out := new(swap.BuildSwapResponse)
	if err := c.invoke(ctx, "BuildSwap", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SwapServiceClient) SettleSwap(
	ctx context.Context, in *swap.SettleSwapRequest, opts ...grpc.CallOption,
) (*swap.SettleSwapResponse, error) {
	out := new(swap.SettleSwapResponse)
	if err := c.invoke(ctx, "SettleSwap", in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SwapServiceClient) ListReservations(
	ctx context.Context, opts ...grpc.CallOption,
) (*ListReservationsResponse, error) {
	out := new(ListReservationsResponse)
	if err := c.invoke(ctx, "ListReservations", &ListReservationsRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SwapServiceClient) ListOutputs(
	ctx context.Context, opts ...grpc.CallOption,
) (*ListOutputsResponse, error) {
	out := new(ListOutputsResponse)
	if err := c.invoke(ctx, "ListOutputs", &ListOutputsRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SwapServiceClient) ListSettlements(
	ctx context.Context, opts ...grpc.CallOption,
) (*ListSettlementsResponse, error) {
	out := new(ListSettlementsResponse)
	if err := c.invoke(ctx, "ListSettlements", &ListSettlementsRequest{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SwapServiceClient) Reconcile(ctx context.Context, opts ...grpc.CallOption) error {
	return c.invoke(ctx, "Reconcile", &ReconcileRequest{}, &ReconcileResponse{}, opts...)
}
