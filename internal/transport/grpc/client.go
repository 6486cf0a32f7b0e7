package grpc

import (
	"context"

	grpclib "google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// SlotsClient calls SlotsService over a connection using the json codec.
type SlotsClient struct {
	cc grpclib.ClientConnInterface
}

func NewSlotsClient(cc grpclib.ClientConnInterface) *SlotsClient {
	return &SlotsClient{cc: cc}
}

// WithCaller attaches the caller identity to outgoing calls made with ctx.
func WithCaller(ctx context.Context, userID string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, userIDHeader, userID)
}

func (c *SlotsClient) CreateSlot(ctx context.Context, in *CreateSlotRequest, opts ...grpclib.CallOption) (*CreateSlotResponse, error) {
	out := new(CreateSlotResponse)
	if err := c.invoke(ctx, MethodCreateSlot, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SlotsClient) ListAvailableSlots(ctx context.Context, in *ListAvailableSlotsRequest, opts ...grpclib.CallOption) (*ListAvailableSlotsResponse, error) {
	out := new(ListAvailableSlotsResponse)
	if err := c.invoke(ctx, MethodListAvailableSlots, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SlotsClient) BookSlot(ctx context.Context, in *BookSlotRequest, opts ...grpclib.CallOption) (*BookSlotResponse, error) {
	out := new(BookSlotResponse)
	if err := c.invoke(ctx, MethodBookSlot, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SlotsClient) CancelSlot(ctx context.Context, in *CancelSlotRequest, opts ...grpclib.CallOption) (*CancelSlotResponse, error) {
	out := new(CancelSlotResponse)
	if err := c.invoke(ctx, MethodCancelSlot, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SlotsClient) ListMyAppointments(ctx context.Context, in *ListMyAppointmentsRequest, opts ...grpclib.CallOption) (*ListMyAppointmentsResponse, error) {
	out := new(ListMyAppointmentsResponse)
	if err := c.invoke(ctx, MethodListMyAppointments, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SlotsClient) invoke(ctx context.Context, method string, in, out any, opts []grpclib.CallOption) error {
	opts = append([]grpclib.CallOption{grpclib.CallContentSubtype(CodecName)}, opts...)
	return c.cc.Invoke(ctx, method, in, out, opts...)
}
