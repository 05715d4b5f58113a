package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/palette/internal/common"
	pb "github.com/dmitrijs2005/palette/internal/proto"
)

type GRPCClient struct {
	endpointURL string
	accessToken string
	conn        *grpc.ClientConn
	client      *pb.PaletteServiceClient
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if s.accessToken != "" {
		ctx = withAccessToken(ctx, s.accessToken)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient prepares a lazy connection to endpointURL; nothing is dialled
// until the first call. Extra options are appended after the defaults.
func NewGRPCClient(endpointURL, accessToken string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL, accessToken: accessToken}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = pb.NewPaletteServiceClient(conn)
	return c, nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) Entitlement(ctx context.Context) (*pb.Entitlement, error) {
	resp, err := s.client.GetEntitlement(ctx)
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) Generate(ctx context.Context, colors []string, harmony string) (*pb.Generation, error) {
	resp, err := s.client.Generate(ctx, &pb.GenerateRequest{Colors: colors, Harmony: harmony})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp, nil
}

func (s *GRPCClient) ListGenerations(ctx context.Context, limit int) ([]pb.Generation, error) {
	resp, err := s.client.ListGenerations(ctx, &pb.ListGenerationsRequest{Limit: limit})
	if err != nil {
		return nil, s.mapError(err)
	}
	return resp.Generations, nil
}

func (s *GRPCClient) ExportGeneration(ctx context.Context, id string) (string, error) {
	resp, err := s.client.ExportGeneration(ctx, &pb.ExportGenerationRequest{ID: id})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.URL, nil
}

func (s *GRPCClient) CreateCheckout(ctx context.Context, kind, priceID string) (string, error) {
	resp, err := s.client.CreateCheckout(ctx, &pb.CheckoutRequest{Kind: kind, PriceID: priceID})
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.URL, nil
}

func (s *GRPCClient) CreatePortal(ctx context.Context) (string, error) {
	resp, err := s.client.CreatePortal(ctx)
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.URL, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("rpc error: %w", err)
	}
	switch st.Code() {
	case codes.ResourceExhausted:
		return quotaError(st)
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.NotFound:
		return ErrNotFound
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrInvalidRequest, st.Message())
	case codes.FailedPrecondition:
		return ErrBillingNotConfigured
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}

func quotaError(st *status.Status) *QuotaError {
	qe := &QuotaError{}
	for _, d := range st.Details() {
		s, ok := d.(*structpb.Struct)
		if !ok {
			continue
		}
		var ent pb.Entitlement
		if err := pb.Decode(s, &ent); err == nil {
			qe.Entitlement = &ent
			break
		}
	}
	return qe
}
