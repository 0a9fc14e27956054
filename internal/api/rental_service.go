package api

import (
	"context"
	"encoding/json"
	"strings"

	"carma/internal/domain"
	"carma/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	rentalServiceName   = "carma.rental.v1.RentalService"
	methodGetBooking    = "/" + rentalServiceName + "/GetBooking"
	methodListBookings  = "/" + rentalServiceName + "/ListBookings"
	methodConfirmRental = "/" + rentalServiceName + "/ConfirmRental"
)

// RentalServiceServer is the back-office gRPC surface. Requests and replies
// use well-known protobuf types so no generated code is needed.
type RentalServiceServer interface {
	GetBooking(ctx context.Context, id *wrapperspb.StringValue) (*structpb.Struct, error)
	ListBookings(ctx context.Context, account *wrapperspb.StringValue) (*structpb.Struct, error)
	ConfirmRental(ctx context.Context, id *wrapperspb.StringValue) (*structpb.Struct, error)
}

// RentalService implements RentalServiceServer over the booking service.
type RentalService struct {
	bookings domain.BookingService
}

func NewRentalService(bookings domain.BookingService) *RentalService {
	return &RentalService{bookings: bookings}
}

func (s *RentalService) GetBooking(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := strings.TrimSpace(req.GetValue())
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "booking id is required")
	}

	booking, err := s.bookings.GetBooking(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return bookingStruct(booking)
}

// ListBookings returns {"bookings": [...]}, filtered by account when the
// request value is set.
func (s *RentalService) ListBookings(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	bookings, err := s.bookings.ListBookings(ctx, strings.TrimSpace(req.GetValue()))
	if err != nil {
		return nil, grpcError(err)
	}

	list := make([]any, 0, len(bookings))
	for _, b := range bookings {
		m, err := toMap(b)
		if err != nil {
			return nil, status.Error(codes.Internal, msgInternal)
		}
		list = append(list, m)
	}

	out, err := structpb.NewStruct(map[string]any{"bookings": list})
	if err != nil {
		return nil, status.Error(codes.Internal, msgInternal)
	}
	return out, nil
}

func (s *RentalService) ConfirmRental(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {
	id := strings.TrimSpace(req.GetValue())
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "booking id is required")
	}

	booking, err := s.bookings.ConfirmRental(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return bookingStruct(booking)
}

func bookingStruct(b *models.Booking) (*structpb.Struct, error) {
	m, err := toMap(b)
	if err != nil {
		return nil, status.Error(codes.Internal, msgInternal)
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, msgInternal)
	}
	return out, nil
}

// toMap goes through JSON so the struct carries the same field names as
// the HTTP API.
func toMap(v any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func RegisterRentalServiceServer(s grpc.ServiceRegistrar, srv RentalServiceServer) {
	s.RegisterService(&RentalServiceDesc, srv)
}

func unaryHandler(
	method string,
	call func(RentalServiceServer, context.Context, *wrapperspb.StringValue) (*structpb.Struct, error),
) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(wrapperspb.StringValue)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(RentalServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(RentalServiceServer), ctx, req.(*wrapperspb.StringValue))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var RentalServiceDesc = grpc.ServiceDesc{
	ServiceName: rentalServiceName,
	HandlerType: (*RentalServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "GetBooking",
			Handler:    unaryHandler(methodGetBooking, RentalServiceServer.GetBooking),
		},
		{
			MethodName: "ListBookings",
			Handler:    unaryHandler(methodListBookings, RentalServiceServer.ListBookings),
		},
		{
			MethodName: "ConfirmRental",
			Handler:    unaryHandler(methodConfirmRental, RentalServiceServer.ConfirmRental),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "carma/rental/v1/rental.proto",
}

// RentalClient calls RentalService on a connection.
type RentalClient struct {
	cc grpc.ClientConnInterface
}

func NewRentalClient(cc grpc.ClientConnInterface) *RentalClient {
	return &RentalClient{cc: cc}
}

func (c *RentalClient) GetBooking(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodGetBooking, id, opts...)
}

func (c *RentalClient) ListBookings(ctx context.Context, account string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodListBookings, account, opts...)
}

func (c *RentalClient) ConfirmRental(ctx context.Context, id string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, methodConfirmRental, id, opts...)
}

func (c *RentalClient) invoke(ctx context.Context, method, value string, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, wrapperspb.String(value), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
