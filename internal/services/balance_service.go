package services

import (
	"context"
	"errors"
	"time"

	"github.com/shahariarshuvo/nesco-helper/internal/database"
	"github.com/shahariarshuvo/nesco-helper/internal/domain"
	apperrors "github.com/shahariarshuvo/nesco-helper/internal/errors"
	"github.com/shahariarshuvo/nesco-helper/internal/logger"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// deltaLookback is how far back the prior sample may be for the
// day-over-day comparison.
const deltaLookback = 24 * time.Hour

// Delta is the day-over-day comparison for one meter. All fields are nil
// when no sample exists within the lookback window; DeltaPercent is also nil
// when the prior balance is zero.
type Delta struct {
	Prior        *decimal.Decimal
	Delta        *decimal.Decimal
	DeltaPercent *decimal.Decimal
}

type BalanceService struct {
	db     *gorm.DB
	source BalanceSource
}

func NewBalanceService(db *gorm.DB, source BalanceSource) *BalanceService {
	return &BalanceService{db: db, source: source}
}

// ComputeDelta compares the current balance against the most recent sample
// recorded within the lookback window before asOf. Absence of history is a
// normal state, not an error.
func (s *BalanceService) ComputeDelta(ctx context.Context, meterID uint, current decimal.Decimal, asOf time.Time) (Delta, error) {
	var sample database.BalanceSample
	err := s.db.WithContext(ctx).
		Where("meter_id = ? AND recorded_at >= ?", meterID, asOf.Add(-deltaLookback)).
		Order("recorded_at desc").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Delta{}, nil
	}
	if err != nil {
		return Delta{}, apperrors.NewDatabaseError(err)
	}

	prior := sample.Balance
	delta := current.Sub(prior)
	d := Delta{Prior: &prior, Delta: &delta}
	if !prior.IsZero() {
		pct := delta.Div(prior).Mul(decimal.NewFromInt(100))
		d.DeltaPercent = &pct
	}
	return d, nil
}

// CheckBalances scrapes every meter of the user, records a new sample per
// successful read and returns one result per meter. A failed meter yields an
// error result and never aborts the batch.
func (s *BalanceService) CheckBalances(ctx context.Context, user *database.User) ([]domain.MeterResult, error) {
	meters, err := s.userMeters(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return nil, apperrors.ErrNoMeters
	}

	results := make([]domain.MeterResult, 0, len(meters))
	for i := range meters {
		meter := &meters[i]

		balance, err := s.source.FetchBalance(ctx, meter.MeterNumber)
		if err != nil {
			logger.Warnf("Balance scrape failed for meter %s: %v", meter.MeterNumber, err)
			results = append(results, domain.ErrResult(meter.MeterName, meter.MeterNumber, err.Error()))
			continue
		}

		now := time.Now()

		// The prior sample is read before the new one is appended, so the
		// comparison never sees the sample it is about to create.
		delta, err := s.ComputeDelta(ctx, meter.ID, balance, now)
		if err != nil {
			logger.Warnf("Delta lookup failed for meter %s: %v", meter.MeterNumber, err)
			delta = Delta{}
		}

		if err := s.recordSample(ctx, meter, balance, now); err != nil {
			logger.Errorf("Failed to record sample for meter %s: %v", meter.MeterNumber, err)
		}

		results = append(results, domain.OkResult(meter.MeterName, meter.MeterNumber, domain.MeterReading{
			Balance:      balance,
			MinBalance:   meter.MinBalance,
			Prior:        delta.Prior,
			Delta:        delta.Delta,
			DeltaPercent: delta.DeltaPercent,
			Alert:        balance.LessThan(meter.MinBalance),
			CheckedAt:    now,
		}))
	}

	return results, nil
}

// CachedBalances answers from the store only, without scraping. Used for
// fast replies where a slightly stale balance is acceptable.
func (s *BalanceService) CachedBalances(ctx context.Context, user *database.User) ([]domain.MeterResult, error) {
	meters, err := s.userMeters(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(meters) == 0 {
		return nil, apperrors.ErrNoMeters
	}

	now := time.Now()
	results := make([]domain.MeterResult, 0, len(meters))
	for i := range meters {
		meter := &meters[i]
		if meter.LastBalance == nil {
			results = append(results, domain.ErrResult(meter.MeterName, meter.MeterNumber, "No cached balance yet"))
			continue
		}
		balance := *meter.LastBalance

		delta, err := s.ComputeDelta(ctx, meter.ID, balance, now)
		if err != nil {
			logger.Warnf("Delta lookup failed for meter %s: %v", meter.MeterNumber, err)
			delta = Delta{}
		}

		checkedAt := now
		if meter.LastChecked != nil {
			checkedAt = *meter.LastChecked
		}
		results = append(results, domain.OkResult(meter.MeterName, meter.MeterNumber, domain.MeterReading{
			Balance:      balance,
			MinBalance:   meter.MinBalance,
			Prior:        delta.Prior,
			Delta:        delta.Delta,
			DeltaPercent: delta.DeltaPercent,
			Alert:        balance.LessThan(meter.MinBalance),
			CheckedAt:    checkedAt,
		}))
	}

	return results, nil
}

func (s *BalanceService) recordSample(ctx context.Context, meter *database.Meter, balance decimal.Decimal, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(meter).Updates(map[string]interface{}{
			"last_balance": balance,
			"last_checked": now,
		}).Error; err != nil {
			return err
		}
		return tx.Create(&database.BalanceSample{
			MeterID:    meter.ID,
			Balance:    balance,
			RecordedAt: now,
		}).Error
	})
}

func (s *BalanceService) userMeters(ctx context.Context, user *database.User) ([]database.Meter, error) {
	var meters []database.Meter
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Order("id asc").
		Find(&meters).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return meters, nil
}
