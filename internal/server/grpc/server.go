package grpc

import (
	"context"
	"net"

	"google.golang.org/grpc"

	"github.com/dmitrijs2005/palette/internal/logging"
	pb "github.com/dmitrijs2005/palette/internal/proto"
	"github.com/dmitrijs2005/palette/internal/server/auth"
	"github.com/dmitrijs2005/palette/internal/server/entitlement"
	"github.com/dmitrijs2005/palette/internal/server/models"
)

type userSvc interface {
	Ensure(ctx context.Context, id auth.Identity) (*models.User, error)
}

type generationSvc interface {
	Status(ctx context.Context, userID string) (entitlement.Status, error)
	Generate(ctx context.Context, userID string, colors []string, harmony string) (*models.Generation, error)
	List(ctx context.Context, userID string, limit int) ([]*models.Generation, error)
}

type exportSvc interface {
	Export(ctx context.Context, userID, generationID string) (string, error)
}

type checkoutSvc interface {
	CreateCheckout(ctx context.Context, userID, kind, priceID string) (string, error)
	CreatePortal(ctx context.Context, userID string) (string, error)
}

// Services bundles what the RPC handlers call.
type Services struct {
	Users       userSvc
	Generations generationSvc
	Exports     exportSvc
	Checkout    checkoutSvc
}

type GRPCServer struct {
	address     string
	verifier    auth.Verifier
	users       userSvc
	generations generationSvc
	exports     exportSvc
	checkout    checkoutSvc
	logger      logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, v auth.Verifier, svc Services) *GRPCServer {
	return &GRPCServer{
		address:     a,
		logger:      l.With("module", "grpc_server"),
		verifier:    v,
		users:       svc.Users,
		generations: svc.Generations,
		exports:     svc.Exports,
		checkout:    svc.Checkout,
	}
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	pb.RegisterPaletteServiceServer(srv, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}
	return nil
}
