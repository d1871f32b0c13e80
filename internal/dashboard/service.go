package dashboard

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voyage-crm/voyage/internal/leads"
	"github.com/voyage-crm/voyage/internal/users"
)

const departuresLimit = 20

// Service assembles the per-user dashboard.
type Service struct {
	repo   Repository
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds Service instance. cache may be nil.
func NewService(repo Repository, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, cache: cache, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// CanViewFinance reports whether actor sees the company-wide money totals.
func CanViewFinance(actor *users.User) bool {
	return actor.HasRole(users.RoleAdmin, users.RoleAccount)
}

// Overview returns the dashboard for actor. Lead figures honour the lead
// visibility scope; finance totals are limited to admin and account.
func (s *Service) Overview(ctx context.Context, actor *users.User) (*Overview, error) {
	if actor == nil {
		return nil, ErrForbidden
	}
	key, err := s.cache.BuildKey(ctx, "overview", strconv.FormatInt(actor.ID, 10), string(actor.Role))
	if err != nil {
		s.logger.Warn("dashboard cache key", slog.Any("error", err))
		return s.load(ctx, actor)
	}
	var out Overview
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		return s.load(ctx, actor)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Service) load(ctx context.Context, actor *users.User) (*Overview, error) {
	scope := leads.ScopeFor(actor)
	now := s.now()
	out := &Overview{GeneratedAt: now, UpcomingDepartures: []Departure{}}

	g, gctx := errgroup.WithContext(ctx)
	var counts map[leads.Status]int
	if !scope.None {
		g.Go(func() error {
			var err error
			counts, err = s.repo.StatusCounts(gctx, scope)
			return err
		})
		g.Go(func() error {
			from := truncateDay(now)
			deps, err := s.repo.Departures(gctx, scope, from, from.AddDate(0, 0, upcomingWindow), departuresLimit)
			if err != nil {
				return err
			}
			if deps != nil {
				out.UpcomingDepartures = deps
			}
			return nil
		})
	}
	if actor.HasRole(users.RoleSales, users.RoleOperation) {
		g.Go(func() error {
			n, err := s.repo.OpenLeads(gctx, actor.ID)
			out.MyOpenLeads = n
			return err
		})
	}
	if CanViewFinance(actor) {
		g.Go(func() error {
			f, err := s.finance(gctx)
			if err != nil {
				return err
			}
			out.Finance = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out.StatusCounts = make([]StatusCount, 0, len(leads.Statuses()))
	for _, st := range leads.Statuses() {
		n := counts[st]
		out.StatusCounts = append(out.StatusCounts, StatusCount{Status: st, Label: st.Label(), Color: st.Color(), Count: n})
		out.TotalLeads += n
	}
	return out, nil
}

// finance is cached separately since every finance user shares it.
func (s *Service) finance(ctx context.Context) (*FinanceSummary, error) {
	key, err := s.cache.BuildKey(ctx, "finance")
	if err != nil {
		f, err := s.repo.Finance(ctx)
		return &f, err
	}
	var f FinanceSummary
	err = s.cache.FetchJSON(ctx, key, &f, func(ctx context.Context) (any, error) {
		return s.repo.Finance(ctx)
	})
	if err != nil {
		return nil, err
	}
	return &f, nil
}
