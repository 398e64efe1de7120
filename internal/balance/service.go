package balance

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"spotarb/internal/model"
)

// Source is the part of a venue client the balance service needs.
type Source interface {
	GetName() string
	AvailableBalance(ctx context.Context, asset string) model.BalanceResult
}

// VenueBalance is one venue's entry in a balance report.
type VenueBalance struct {
	Success   bool                     `json:"success"`
	Balances  map[string]model.Balance `json:"balances"`
	Error     *model.ErrorDescriptor   `json:"error,omitempty"`
	FetchedAt time.Time                `json:"fetchedAt"`
}

// Service queries every venue's quote balance and keeps the last report for
// display. Trading decisions never read the cached report.
type Service struct {
	logger  *slog.Logger
	sources []Source
	now     func() time.Time

	mu       sync.RWMutex
	snapshot map[string]VenueBalance
}

// NewService creates a Service over the given venues.
func NewService(logger *slog.Logger, sources ...Source) *Service {
	return &Service{
		logger:   logger.With(slog.String("component", "balance")),
		sources:  sources,
		now:      time.Now,
		snapshot: make(map[string]VenueBalance),
	}
}

// Refresh queries all venues concurrently and returns the new report.
// A failing venue is reported in its own entry.
func (s *Service) Refresh(ctx context.Context) map[string]VenueBalance {
	results := make([]VenueBalance, len(s.sources))
	var g errgroup.Group
	for i, src := range s.sources {
		g.Go(func() error {
			results[i] = s.query(ctx, src)
			return nil
		})
	}
	_ = g.Wait()

	report := make(map[string]VenueBalance, len(s.sources))
	for i, src := range s.sources {
		report[src.GetName()] = results[i]
	}

	s.mu.Lock()
	s.snapshot = report
	s.mu.Unlock()
	return report
}

// Snapshot returns the last report without querying venues.
func (s *Service) Snapshot() map[string]VenueBalance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]VenueBalance, len(s.snapshot))
	for k, v := range s.snapshot {
		out[k] = v
	}
	return out
}

// Run refreshes once; it lets the scheduler keep the display current.
func (s *Service) Run(ctx context.Context) error {
	s.Refresh(ctx)
	return ctx.Err()
}

func (s *Service) Name() string {
	return "balances"
}

func (s *Service) query(ctx context.Context, src Source) VenueBalance {
	res := src.AvailableBalance(ctx, model.QuoteAsset)
	vb := VenueBalance{
		Success:   res.Success,
		Balances:  map[string]model.Balance{},
		Error:     res.Error,
		FetchedAt: s.now(),
	}
	if res.Success {
		vb.Balances[model.QuoteAsset] = model.Balance{
			Venue:     src.GetName(),
			Asset:     model.QuoteAsset,
			Available: res.Available,
			FetchedAt: vb.FetchedAt,
		}
		return vb
	}
	s.logger.Warn("balance query failed", slog.String("venue", src.GetName()), slog.Any("error", res.Error))
	return vb
}
