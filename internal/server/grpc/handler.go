package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/dmitrijs2005/palette/internal/common"
	pb "github.com/dmitrijs2005/palette/internal/proto"
	"github.com/dmitrijs2005/palette/internal/server/auth"
	"github.com/dmitrijs2005/palette/internal/server/entitlement"
	"github.com/dmitrijs2005/palette/internal/server/models"
	"github.com/dmitrijs2005/palette/internal/server/services"
)

func userID(ctx context.Context) (string, error) {
	id, ok := auth.FromContext(ctx)
	if !ok {
		return "", status.Error(codes.Unauthenticated, "unauthenticated")
	}
	return id.UserID, nil
}

func toEntitlement(st entitlement.Status) pb.Entitlement {
	return pb.Entitlement{
		TotalGenerations:     st.TotalGenerations,
		MonthlyGenerations:   st.MonthlyGenerations,
		Credits:              st.Credits,
		RemainingGenerations: st.RemainingGenerations,
		HasSubscription:      st.HasSubscription,
		SubscriptionStatus:   st.SubscriptionStatus,
		IsUnlimited:          st.IsUnlimited,
		PlanID:               st.PlanID,
		Source:               string(st.Source),
	}
}

func toGeneration(g *models.Generation) pb.Generation {
	return pb.Generation{
		ID:        g.ID,
		Colors:    g.Colors,
		Harmony:   g.Harmony,
		Source:    g.Source,
		CreatedAt: g.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func (s *GRPCServer) reply(ctx context.Context, v any) (*structpb.Struct, error) {
	out, err := pb.Encode(v)
	if err != nil {
		s.logger.Error(ctx, err.Error())
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func (s *GRPCServer) GetEntitlement(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}

	st, err := s.generations.Status(ctx, uid)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, toEntitlement(st))
}

func (s *GRPCServer) Generate(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}

	var in pb.GenerateRequest
	if err := pb.Decode(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	g, err := s.generations.Generate(ctx, uid, in.Colors, in.Harmony)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, toGeneration(g))
}

func (s *GRPCServer) ListGenerations(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}

	var in pb.ListGenerationsRequest
	if err := pb.Decode(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	gens, err := s.generations.List(ctx, uid, in.Limit)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out := pb.ListGenerationsResponse{Generations: make([]pb.Generation, 0, len(gens))}
	for _, g := range gens {
		out.Generations = append(out.Generations, toGeneration(g))
	}
	return s.reply(ctx, out)
}

func (s *GRPCServer) ExportGeneration(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}

	var in pb.ExportGenerationRequest
	if err := pb.Decode(req, &in); err != nil || in.ID == "" {
		return nil, status.Error(codes.InvalidArgument, "generation id required")
	}

	url, err := s.exports.Export(ctx, uid, in.ID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, pb.URLResponse{URL: url})
}

func (s *GRPCServer) CreateCheckout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}

	var in pb.CheckoutRequest
	if err := pb.Decode(req, &in); err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	url, err := s.checkout.CreateCheckout(ctx, uid, in.Kind, in.PriceID)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, pb.URLResponse{URL: url})
}

func (s *GRPCServer) CreatePortal(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	uid, err := userID(ctx)
	if err != nil {
		return nil, err
	}

	url, err := s.checkout.CreatePortal(ctx, uid)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return s.reply(ctx, pb.URLResponse{URL: url})
}

// toStatus maps domain errors to gRPC codes. A quota refusal carries the
// entitlement as a Struct detail so clients can show an upgrade prompt.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	var qe *services.QuotaError
	switch {
	case errors.As(err, &qe):
		st := status.New(codes.ResourceExhausted, "generation quota exhausted")
		if detail, encErr := pb.Encode(toEntitlement(qe.Status)); encErr == nil {
			if withDetail, dErr := st.WithDetails(detail); dErr == nil {
				st = withDetail
			}
		}
		return st.Err()
	case errors.Is(err, common.ErrQuotaExceeded):
		return status.Error(codes.ResourceExhausted, "generation quota exhausted")
	case errors.Is(err, common.ErrInvalidPalette), errors.Is(err, common.ErrUnknownPrice):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrTransientStore):
		s.logger.Warn(ctx, "store busy", "error", err)
		return status.Error(codes.Unavailable, "temporarily unavailable, retry")
	case errors.Is(err, common.ErrBillingNotConfigured):
		return status.Error(codes.FailedPrecondition, "billing not configured")
	}
	s.logger.Error(ctx, err.Error())
	return status.Error(codes.Internal, "internal error")
}
