package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/pqr-service/internal/cache"
	"github.com/spec-kit/pqr-service/internal/events"
	"github.com/spec-kit/pqr-service/internal/service"
)

// StartNotificationWorker registers notification handlers.
func StartNotificationWorker(notificationService *service.NotificationService) {
	if notificationService == nil {
		return
	}
	notificationService.RegisterHandlers()
}

// StartStatsInvalidator drops cached stats whenever a ticket is created or
// updated.
func StartStatsInvalidator(dispatcher events.Dispatcher, statsCache cache.StatsCache, logger *zap.Logger) {
	if dispatcher == nil || statsCache == nil {
		return
	}
	invalidate := func(ctx context.Context, event events.Event) error {
		if err := statsCache.Invalidate(ctx); err != nil {
			logger.Warn("stats cache invalidation failed", zap.String("event_type", string(event.Type)), zap.Error(err))
			return err
		}
		return nil
	}
	dispatcher.Subscribe(events.EventTicketCreated, invalidate)
	dispatcher.Subscribe(events.EventTicketUpdated, invalidate)
}
