package grpc

import (
	"context"

	grpclib "google.golang.org/grpc"
)

const serviceName = "slots.v1.SlotsService"

const (
	MethodCreateSlot         = "/" + serviceName + "/CreateSlot"
	MethodListAvailableSlots = "/" + serviceName + "/ListAvailableSlots"
	MethodBookSlot           = "/" + serviceName + "/BookSlot"
	MethodCancelSlot         = "/" + serviceName + "/CancelSlot"
	MethodListMyAppointments = "/" + serviceName + "/ListMyAppointments"
)

type SlotsServiceServer interface {
	CreateSlot(context.Context, *CreateSlotRequest) (*CreateSlotResponse, error)
	ListAvailableSlots(context.Context, *ListAvailableSlotsRequest) (*ListAvailableSlotsResponse, error)
	BookSlot(context.Context, *BookSlotRequest) (*BookSlotResponse, error)
	CancelSlot(context.Context, *CancelSlotRequest) (*CancelSlotResponse, error)
	ListMyAppointments(context.Context, *ListMyAppointmentsRequest) (*ListMyAppointmentsResponse, error)
}

var SlotsServiceDesc = grpclib.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SlotsServiceServer)(nil),
	Methods: []grpclib.MethodDesc{
		{MethodName: "CreateSlot", Handler: unaryHandler(MethodCreateSlot, SlotsServiceServer.CreateSlot)},
		{MethodName: "ListAvailableSlots", Handler: unaryHandler(MethodListAvailableSlots, SlotsServiceServer.ListAvailableSlots)},
		{MethodName: "BookSlot", Handler: unaryHandler(MethodBookSlot, SlotsServiceServer.BookSlot)},
		{MethodName: "CancelSlot", Handler: unaryHandler(MethodCancelSlot, SlotsServiceServer.CancelSlot)},
		{MethodName: "ListMyAppointments", Handler: unaryHandler(MethodListMyAppointments, SlotsServiceServer.ListMyAppointments)},
	},
	Streams:  []grpclib.StreamDesc{},
	Metadata: "slots/v1/slots.proto",
}

func RegisterSlotsServiceServer(s grpclib.ServiceRegistrar, srv SlotsServiceServer) {
	s.RegisterService(&SlotsServiceDesc, srv)
}

func unaryHandler[Req, Resp any](fullMethod string, call func(SlotsServiceServer, context.Context, *Req) (*Resp, error)) grpclib.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpclib.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(SlotsServiceServer), ctx, in)
		}
		info := &grpclib.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(SlotsServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
