// Package proto describes the palette.v1.PaletteService RPC surface shared by
// the server and the CLI. Messages are google.protobuf.Struct values holding
// the same JSON documents the HTTP API serves, so no generated code is
// needed on either side.
package proto

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "palette.v1.PaletteService"

// Full method names, as seen by interceptors.
const (
	FullMethodGetEntitlement   = "/" + ServiceName + "/GetEntitlement"
	FullMethodGenerate         = "/" + ServiceName + "/Generate"
	FullMethodListGenerations  = "/" + ServiceName + "/ListGenerations"
	FullMethodExportGeneration = "/" + ServiceName + "/ExportGeneration"
	FullMethodCreateCheckout   = "/" + ServiceName + "/CreateCheckout"
	FullMethodCreatePortal     = "/" + ServiceName + "/CreatePortal"
)

// Entitlement mirrors the entitlement document.
type Entitlement struct {
	TotalGenerations     int64  `json:"totalGenerations"`
	MonthlyGenerations   int64  `json:"monthlyGenerations"`
	Credits              int64  `json:"credits"`
	RemainingGenerations int64  `json:"remainingGenerations"`
	HasSubscription      bool   `json:"hasSubscription"`
	SubscriptionStatus   string `json:"subscriptionStatus,omitempty"`
	IsUnlimited          bool   `json:"isUnlimited"`
	PlanID               string `json:"planId,omitempty"`
	Source               string `json:"source"`
}

type Generation struct {
	ID        string   `json:"id"`
	Colors    []string `json:"colors"`
	Harmony   string   `json:"harmony"`
	Source    string   `json:"source"`
	CreatedAt string   `json:"createdAt"`
}

type GenerateRequest struct {
	Colors  []string `json:"colors"`
	Harmony string   `json:"harmony"`
}

type ListGenerationsRequest struct {
	Limit int `json:"limit"`
}

type ListGenerationsResponse struct {
	Generations []Generation `json:"generations"`
}

type ExportGenerationRequest struct {
	ID string `json:"id"`
}

type CheckoutRequest struct {
	Kind    string `json:"kind"`
	PriceID string `json:"priceId,omitempty"`
}

// URLResponse answers every call that hands back a link.
type URLResponse struct {
	URL string `json:"url"`
}

// Encode converts a JSON-serializable value into a Struct message.
func Encode(v any) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return s, nil
}

// Decode fills v from a Struct message. A nil message leaves v untouched.
func Decode(s *structpb.Struct, v any) error {
	if s == nil {
		return nil
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode message: %w", err)
	}
	return nil
}

// PaletteServiceServer is implemented by the server.
type PaletteServiceServer interface {
	GetEntitlement(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Generate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListGenerations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExportGeneration(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateCheckout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreatePortal(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

func RegisterPaletteServiceServer(s grpc.ServiceRegistrar, srv PaletteServiceServer) {
	s.RegisterService(&PaletteServiceDesc, srv)
}

type method func(PaletteServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(fullMethod string, call method) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PaletteServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(PaletteServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var PaletteServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*PaletteServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetEntitlement", Handler: unaryHandler(FullMethodGetEntitlement, PaletteServiceServer.GetEntitlement)},
		{MethodName: "Generate", Handler: unaryHandler(FullMethodGenerate, PaletteServiceServer.Generate)},
		{MethodName: "ListGenerations", Handler: unaryHandler(FullMethodListGenerations, PaletteServiceServer.ListGenerations)},
		{MethodName: "ExportGeneration", Handler: unaryHandler(FullMethodExportGeneration, PaletteServiceServer.ExportGeneration)},
		{MethodName: "CreateCheckout", Handler: unaryHandler(FullMethodCreateCheckout, PaletteServiceServer.CreateCheckout)},
		{MethodName: "CreatePortal", Handler: unaryHandler(FullMethodCreatePortal, PaletteServiceServer.CreatePortal)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "palette/v1/palette.proto",
}

// PaletteServiceClient is the typed client used by the CLI.
type PaletteServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewPaletteServiceClient(cc grpc.ClientConnInterface) *PaletteServiceClient {
	return &PaletteServiceClient{cc: cc}
}

func (c *PaletteServiceClient) call(ctx context.Context, method string, in, out any, opts ...grpc.CallOption) error {
	req, err := Encode(in)
	if err != nil {
		return err
	}
	resp := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, req, resp, opts...); err != nil {
		return err
	}
	return Decode(resp, out)
}

func (c *PaletteServiceClient) GetEntitlement(ctx context.Context, opts ...grpc.CallOption) (*Entitlement, error) {
	out := &Entitlement{}
	if err := c.call(ctx, FullMethodGetEntitlement, struct{}{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaletteServiceClient) Generate(ctx context.Context, in *GenerateRequest, opts ...grpc.CallOption) (*Generation, error) {
	out := &Generation{}
	if err := c.call(ctx, FullMethodGenerate, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaletteServiceClient) ListGenerations(ctx context.Context, in *ListGenerationsRequest, opts ...grpc.CallOption) (*ListGenerationsResponse, error) {
	out := &ListGenerationsResponse{}
	if err := c.call(ctx, FullMethodListGenerations, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaletteServiceClient) ExportGeneration(ctx context.Context, in *ExportGenerationRequest, opts ...grpc.CallOption) (*URLResponse, error) {
	out := &URLResponse{}
	if err := c.call(ctx, FullMethodExportGeneration, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaletteServiceClient) CreateCheckout(ctx context.Context, in *CheckoutRequest, opts ...grpc.CallOption) (*URLResponse, error) {
	out := &URLResponse{}
	if err := c.call(ctx, FullMethodCreateCheckout, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PaletteServiceClient) CreatePortal(ctx context.Context, opts ...grpc.CallOption) (*URLResponse, error) {
	out := &URLResponse{}
	if err := c.call(ctx, FullMethodCreatePortal, struct{}{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
