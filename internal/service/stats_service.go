package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/pqr-service/internal/access"
	"github.com/spec-kit/pqr-service/internal/cache"
	"github.com/spec-kit/pqr-service/internal/domain"
	"github.com/spec-kit/pqr-service/internal/repository"
	apperrors "github.com/spec-kit/pqr-service/pkg/util/errorutil"
)

// StatsService computes role-scoped dashboard counts.
type StatsService struct {
	tickets repository.TicketRepository
	cache   cache.StatsCache
	logger  *zap.Logger
}

// NewStatsService builds the service. A nil cache disables caching.
func NewStatsService(tickets repository.TicketRepository, statsCache cache.StatsCache, logger *zap.Logger) *StatsService {
	if statsCache == nil {
		statsCache = cache.NopStatsCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatsService{tickets: tickets, cache: statsCache, logger: logger}
}

// ComputeStats aggregates over exactly the tickets the caller can see. The
// agent breakdown is only present for staff.
func (s *StatsService) ComputeStats(ctx context.Context, identity domain.Identity) (*domain.TicketStats, error) {
	if err := access.Require(identity, access.ActionViewStats, nil); err != nil {
		return nil, err
	}
	cached, slot, err := s.cache.Get(ctx, identity)
	if err != nil {
		s.logger.Warn("stats cache read failed", zap.Error(err))
	} else if cached != nil {
		return cached, nil
	}

	scope := access.StatsScopeFor(identity)
	filter := repository.TicketFilter{AuthorID: scope.Ticket.AuthorID}

	byStatus, err := s.tickets.CountByStatus(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	byType, err := s.tickets.CountByType(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	stats := &domain.TicketStats{
		Open:         byStatus[domain.TicketStatusOpen],
		InProcess:    byStatus[domain.TicketStatusInProcess],
		Closed:       byStatus[domain.TicketStatusClosed],
		ByType:       domain.NewBreakdown(byType),
		Role:         identity.Role.String(),
		IsClientView: !identity.Role.IsStaff(),
	}
	for _, count := range byStatus {
		stats.Total += count
	}

	if scope.IncludeAgents {
		byAgent, err := s.tickets.CountByAgent(ctx, filter)
		if err != nil {
			return nil, apperrors.NewInternalError(err)
		}
		breakdown := domain.NewBreakdown(byAgent)
		stats.ByAgent = &breakdown
	}

	if err := s.cache.Set(ctx, slot, stats); err != nil {
		s.logger.Warn("stats cache write failed", zap.Error(err))
	}
	return stats, nil
}
