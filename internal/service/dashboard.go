package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

// Dashboard returns today's figures, served from the cache while fresh.
func (s *Service) Dashboard(ctx context.Context) (domain.DashboardStats, error) {
	threshold, err := s.intSetting(ctx, domain.SettingLowStockThreshold, defaultLowStockThreshold)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	windowDays, err := s.intSetting(ctx, domain.SettingExpiryWarningDays, defaultExpiryWarningDays)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	now := s.now()
	today := domain.StartOfDay(now)
	key := fmt.Sprintf("%s:%d:%d", today.Format("2006-01-02"), threshold, windowDays)

	gen := s.dashboardGen.Load()
	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("dashboard cache read failed", zap.Error(err))
	} else if ok {
		return *cached, nil
	}

	stats, err := s.repo.DashboardAggregate(ctx, store.DashboardQuery{
		DayStart:          today,
		DayEnd:            today.AddDate(0, 0, 1),
		LowStockThreshold: threshold,
		Today:             today,
		ExpiryCutoff:      today.AddDate(0, 0, windowDays),
	})
	if err != nil {
		return domain.DashboardStats{}, err
	}
	stats.TodaySalesTotal = stats.TodaySalesTotal.Round(2)
	stats.LowStockThreshold = threshold
	stats.ExpiryWindowDays = windowDays
	stats.GeneratedAt = now

	// A write that landed during the aggregate makes these figures stale.
	if s.dashboardGen.Load() != gen {
		return stats, nil
	}
	if err := s.cache.Set(ctx, key, &stats, s.dashboardTTL); err != nil {
		s.logger.Warn("dashboard cache write failed", zap.Error(err))
	}
	return stats, nil
}

func (s *Service) invalidateDashboard(ctx context.Context) {
	s.dashboardGen.Add(1)
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("dashboard cache invalidation failed", zap.Error(err))
	}
}
