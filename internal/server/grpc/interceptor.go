package grpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/palette/internal/common"
	pb "github.com/dmitrijs2005/palette/internal/proto"
	"github.com/dmitrijs2005/palette/internal/server/auth"
)

// accessTokenInterceptor authenticates every PaletteService call from the
// access_token metadata and upserts the caller's user row.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+pb.ServiceName+"/") {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	id, err := s.verifier.Verify(ctx, accessToken)
	if err != nil {
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	if _, err := s.users.Ensure(ctx, id); err != nil {
		return nil, s.toStatus(ctx, err)
	}

	return handler(auth.WithIdentity(ctx, id), req)
}
