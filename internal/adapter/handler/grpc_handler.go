package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/timedeal/timesale/internal/core/domain"
	"github.com/timedeal/timesale/internal/core/service"
)

// The gRPC surface is registered with a hand-rolled ServiceDesc over a
// JSON codec. Messages are plain structs; clients dial with the matching
// codec (see JSONCodec).

type PurchaseRequest struct {
	LoginID   string `json:"login_id"`
	ProductID string `json:"product_id"`
}

type PurchaseResponse struct {
	OrderID string `json:"order_id"`
}

type GetOrderRequest struct {
	OrderID string `json:"order_id"`
}

type CancelOrderRequest struct {
	OrderID string `json:"order_id"`
}

type CancelOrderResponse struct{}

type ListUserOrdersRequest struct {
	LoginID string `json:"login_id"`
	Page    int    `json:"page"`
	Size    int    `json:"size"`
}

type ListProductOrdersRequest struct {
	ProductID string `json:"product_id"`
	Page      int    `json:"page"`
	Size      int    `json:"size"`
}

type OrderMessage struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"created_at"`
}

type ListOrdersResponse struct {
	Orders []OrderMessage `json:"orders"`
}

// JSONCodec satisfies grpc/encoding.Codec using encoding/json.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSONCodec) Name() string                       { return "json" }

type GRPCHandler struct {
	orders *service.OrderService
}

func NewGRPCHandler(orders *service.OrderService) *GRPCHandler {
	return &GRPCHandler{orders: orders}
}

// NewGRPCServer builds a server with the JSON codec forced and the order
// service registered.
func NewGRPCServer(h *GRPCHandler, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ForceServerCodec(JSONCodec{}))
	srv := grpc.NewServer(opts...)
	srv.RegisterService(&orderServiceDesc, h)
	return srv
}

func (h *GRPCHandler) Purchase(ctx context.Context, req *PurchaseRequest) (*PurchaseResponse, error) {
	orderID, err := h.orders.Purchase(ctx, req.LoginID, req.ProductID)
	if err != nil {
		return nil, statusError(err)
	}
	return &PurchaseResponse{OrderID: orderID}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderMessage, error) {
	order, err := h.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, statusError(err)
	}
	msg := toOrderMessage(*order)
	return &msg, nil
}

func (h *GRPCHandler) CancelOrder(ctx context.Context, req *CancelOrderRequest) (*CancelOrderResponse, error) {
	if err := h.orders.CancelOrder(ctx, req.OrderID); err != nil {
		return nil, statusError(err)
	}
	return &CancelOrderResponse{}, nil
}

func (h *GRPCHandler) ListUserOrders(ctx context.Context, req *ListUserOrdersRequest) (*ListOrdersResponse, error) {
	orders, err := h.orders.ListUserOrders(ctx, req.LoginID, domain.Page{Number: req.Page, Size: req.Size})
	if err != nil {
		return nil, statusError(err)
	}
	return toListResponse(orders), nil
}

func (h *GRPCHandler) ListProductOrders(ctx context.Context, req *ListProductOrdersRequest) (*ListOrdersResponse, error) {
	orders, err := h.orders.ListProductOrders(ctx, req.ProductID, domain.Page{Number: req.Page, Size: req.Size})
	if err != nil {
		return nil, statusError(err)
	}
	return toListResponse(orders), nil
}

func statusError(err error) error {
	switch {
	case errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrOrderNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrDuplicatedOrder):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, domain.ErrSoldOut):
		return status.Error(codes.ResourceExhausted, err.Error())
	case errors.Is(err, domain.ErrNotSaleTime):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, domain.ErrReserveContention):
		return status.Error(codes.Aborted, err.Error())
	default:
		return status.Error(codes.Internal, "internal error")
	}
}

func toOrderMessage(o domain.Order) OrderMessage {
	return OrderMessage{
		ID:        o.ID,
		UserID:    o.UserID,
		ProductID: o.ProductID,
		Quantity:  o.Quantity,
		CreatedAt: o.CreatedAt,
	}
}

func toListResponse(orders []domain.Order) *ListOrdersResponse {
	out := make([]OrderMessage, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderMessage(o))
	}
	return &ListOrdersResponse{Orders: out}
}

type orderServer interface {
	Purchase(context.Context, *PurchaseRequest) (*PurchaseResponse, error)
	GetOrder(context.Context, *GetOrderRequest) (*OrderMessage, error)
	CancelOrder(context.Context, *CancelOrderRequest) (*CancelOrderResponse, error)
	ListUserOrders(context.Context, *ListUserOrdersRequest) (*ListOrdersResponse, error)
	ListProductOrders(context.Context, *ListProductOrdersRequest) (*ListOrdersResponse, error)
}

var _ orderServer = (*GRPCHandler)(nil)

var orderServiceDesc = grpc.ServiceDesc{
	ServiceName: "timesale.v1.OrderService",
	HandlerType: (*orderServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Purchase", Handler: purchaseMethodHandler},
		{MethodName: "GetOrder", Handler: getOrderMethodHandler},
		{MethodName: "CancelOrder", Handler: cancelOrderMethodHandler},
		{MethodName: "ListUserOrders", Handler: listUserOrdersMethodHandler},
		{MethodName: "ListProductOrders", Handler: listProductOrdersMethodHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "timesale/v1/order_service",
}

func purchaseMethodHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PurchaseRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(orderServer).Purchase(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/timesale.v1.OrderService/Purchase"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(orderServer).Purchase(ctx, req.(*PurchaseRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getOrderMethodHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(orderServer).GetOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/timesale.v1.OrderService/GetOrder"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(orderServer).GetOrder(ctx, req.(*GetOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func cancelOrderMethodHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CancelOrderRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(orderServer).CancelOrder(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/timesale.v1.OrderService/CancelOrder"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(orderServer).CancelOrder(ctx, req.(*CancelOrderRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listUserOrdersMethodHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListUserOrdersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(orderServer).ListUserOrders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/timesale.v1.OrderService/ListUserOrders"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(orderServer).ListUserOrders(ctx, req.(*ListUserOrdersRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func listProductOrdersMethodHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListProductOrdersRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(orderServer).ListProductOrders(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/timesale.v1.OrderService/ListProductOrders"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(orderServer).ListProductOrders(ctx, req.(*ListProductOrdersRequest))
	}
	return interceptor(ctx, in, info, handler)
}
