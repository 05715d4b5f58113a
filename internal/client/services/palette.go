// Package services implements the CLI's use cases on top of the gRPC client
// and the local history store.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/palette/internal/client/client"
	"github.com/dmitrijs2005/palette/internal/client/models"
	"github.com/dmitrijs2005/palette/internal/client/repositories/history"
	"github.com/dmitrijs2005/palette/internal/common"
	"github.com/dmitrijs2005/palette/internal/filex"
	"github.com/dmitrijs2005/palette/internal/netx"
	"github.com/dmitrijs2005/palette/internal/palette"
	pb "github.com/dmitrijs2005/palette/internal/proto"
)

// API is the subset of the gRPC client the CLI uses.
type API interface {
	Entitlement(ctx context.Context) (*pb.Entitlement, error)
	Generate(ctx context.Context, colors []string, harmony string) (*pb.Generation, error)
	ListGenerations(ctx context.Context, limit int) ([]pb.Generation, error)
	ExportGeneration(ctx context.Context, id string) (string, error)
	CreateCheckout(ctx context.Context, kind, priceID string) (string, error)
	CreatePortal(ctx context.Context) (string, error)
}

type PaletteService interface {
	Status(ctx context.Context) (*pb.Entitlement, error)
	Generate(ctx context.Context, harmony string, size int) (*models.HistoryEntry, error)
	History(ctx context.Context, limit int) ([]*models.HistoryEntry, bool, error)
	Checkout(ctx context.Context, kind string) (string, error)
	Portal(ctx context.Context) (string, error)
	Export(ctx context.Context, id, dir string) (string, error)
}

var (
	newRand  = func() *rand.Rand { return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) }
	download = netx.DownloadPresignedURL
	now      = time.Now
)

type paletteService struct {
	api     API
	history history.Repository
}

func NewPaletteService(api API, h history.Repository) PaletteService {
	return &paletteService{api: api, history: h}
}

func (s *paletteService) Status(ctx context.Context) (*pb.Entitlement, error) {
	return s.api.Entitlement(ctx)
}

// Generate builds a palette locally and records it with the server. When the
// server is unreachable the palette is kept locally as an unrecorded preview.
func (s *paletteService) Generate(ctx context.Context, harmony string, size int) (*models.HistoryEntry, error) {
	h, err := palette.ParseHarmony(harmony)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		size = palette.DefaultColors
	}
	if size < palette.MinColors || size > palette.MaxColors {
		return nil, fmt.Errorf("%w: size must be %d..%d", common.ErrInvalidPalette, palette.MinColors, palette.MaxColors)
	}

	colors := palette.Generate(newRand(), h, size)

	g, err := s.api.Generate(ctx, colors, string(h))
	if errors.Is(err, client.ErrUnavailable) {
		e := &models.HistoryEntry{
			ID:        uuid.NewString(),
			Colors:    colors,
			Harmony:   string(h),
			Source:    models.SourceLocal,
			CreatedAt: now(),
		}
		if err := s.history.Upsert(ctx, e); err != nil {
			return nil, err
		}
		return e, nil
	}
	if err != nil {
		return nil, err
	}

	e := toEntry(g)
	if err := s.history.Upsert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// History lists the server's generations and caches them locally. The bool
// reports that the server was unreachable and the local cache was used.
func (s *paletteService) History(ctx context.Context, limit int) ([]*models.HistoryEntry, bool, error) {
	gens, err := s.api.ListGenerations(ctx, limit)
	if errors.Is(err, client.ErrUnavailable) {
		local, lerr := s.history.List(ctx, limit)
		if lerr != nil {
			return nil, true, fmt.Errorf("%w: %w", client.ErrLocalDataNotAvailable, lerr)
		}
		return local, true, nil
	}
	if err != nil {
		return nil, false, err
	}

	out := make([]*models.HistoryEntry, 0, len(gens))
	for i := range gens {
		e := toEntry(&gens[i])
		if err := s.history.Upsert(ctx, e); err != nil {
			return nil, false, err
		}
		out = append(out, e)
	}
	return out, false, nil
}

func (s *paletteService) Checkout(ctx context.Context, kind string) (string, error) {
	return s.api.CreateCheckout(ctx, kind, "")
}

func (s *paletteService) Portal(ctx context.Context) (string, error) {
	return s.api.CreatePortal(ctx)
}

// Export downloads the generation's JSON export into dir and returns the
// written path.
func (s *paletteService) Export(ctx context.Context, id, dir string) (string, error) {
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: bad generation id %q", client.ErrInvalidRequest, id)
	}

	url, err := s.api.ExportGeneration(ctx, id)
	if err != nil {
		return "", err
	}

	body, err := download(ctx, url)
	if err != nil {
		return "", fmt.Errorf("download export: %w", err)
	}

	path := filepath.Join(dir, id+".json")
	if err := filex.WriteFileAtomic(path, body); err != nil {
		return "", err
	}
	return path, nil
}

func toEntry(g *pb.Generation) *models.HistoryEntry {
	created, err := time.Parse(time.RFC3339, g.CreatedAt)
	if err != nil {
		created = now()
	}
	return &models.HistoryEntry{
		ID:        g.ID,
		Colors:    g.Colors,
		Harmony:   g.Harmony,
		Source:    g.Source,
		CreatedAt: created,
	}
}
