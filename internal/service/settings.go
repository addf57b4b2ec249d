package service

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store"
)

const (
	defaultLowStockThreshold = 10
	defaultExpiryWarningDays = 30
)

func (s *Service) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	return s.repo.Settings().List(ctx)
}

func (s *Service) GetSetting(ctx context.Context, key string) (domain.Setting, error) {
	setting, err := s.repo.Settings().Get(ctx, settingKey(key))
	if err != nil {
		return domain.Setting{}, err
	}
	return *setting, nil
}

// PutSetting creates or replaces one setting. Known numeric keys are checked
// before they are stored.
func (s *Service) PutSetting(ctx context.Context, key string, req domain.SettingRequest) (domain.Setting, error) {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return domain.Setting{}, err
	}
	key = settingKey(key)
	if key == "" || len(key) > 64 {
		return domain.Setting{}, invalid("key", "must be 1 to 64 characters")
	}
	if err := s.check(req); err != nil {
		return domain.Setting{}, err
	}
	value := strings.TrimSpace(req.Value)
	if err := checkSettingValue(key, value); err != nil {
		return domain.Setting{}, err
	}

	setting := domain.Setting{Key: key, Value: value, UpdatedAt: s.now()}
	saved, err := s.repo.Settings().Update(ctx, setting)
	if errors.Is(err, store.ErrNotFound) {
		saved, err = s.repo.Settings().Create(ctx, setting)
	}
	if err != nil {
		return domain.Setting{}, err
	}

	s.invalidateDashboard(ctx)
	s.audit(ctx, "setting_put", "setting", key, zap.String("value", value))
	return *saved, nil
}

func (s *Service) DeleteSetting(ctx context.Context, key string) error {
	if _, err := requireRole(ctx, adminOnly...); err != nil {
		return err
	}
	key = settingKey(key)
	if err := s.repo.Settings().Delete(ctx, key); err != nil {
		return err
	}
	s.invalidateDashboard(ctx)
	s.audit(ctx, "setting_delete", "setting", key)
	return nil
}

// settingKey is the stored form of a setting key.
func settingKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func checkSettingValue(key string, value string) error {
	switch key {
	case domain.SettingLowStockThreshold, domain.SettingExpiryWarningDays:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return invalid("value", "must be a non-negative whole number")
		}
	case domain.SettingTaxRate:
		rate, err := decimal.NewFromString(value)
		if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
			return invalid("value", "must be a percentage between 0 and 100")
		}
	case domain.SettingCurrency:
		if len(value) != 3 {
			return invalid("value", "must be a three-letter currency code")
		}
	}
	return nil
}

// intSetting reads a numeric setting, falling back when it is missing or
// unparsable.
func (s *Service) intSetting(ctx context.Context, key string, fallback int) (int, error) {
	setting, err := s.repo.Settings().Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return fallback, nil
	}
	if err != nil {
		return 0, err
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(setting.Value))
	if convErr != nil || n < 0 {
		s.logger.Warn("ignoring malformed setting", zap.String("key", key), zap.String("value", setting.Value))
		return fallback, nil
	}
	return n, nil
}
