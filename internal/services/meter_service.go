package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shahariarshuvo/nesco-helper/internal/database"
	apperrors "github.com/shahariarshuvo/nesco-helper/internal/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// BalanceSource supplies the current balance for a meter number. The
// production implementation scrapes the NESCO customer panel; tests inject
// fakes.
type BalanceSource interface {
	FetchBalance(ctx context.Context, meterNumber string) (decimal.Decimal, error)
}

type MeterService struct {
	db     *gorm.DB
	source BalanceSource
}

func NewMeterService(db *gorm.DB, source BalanceSource) *MeterService {
	return &MeterService{db: db, source: source}
}

// AddMeter verifies the meter against the panel, then creates it together
// with its first balance sample.
func (s *MeterService) AddMeter(ctx context.Context, user *database.User, meterNumber, meterName string) (*database.Meter, error) {
	if meterNumber == "" || meterName == "" {
		return nil, apperrors.ErrInvalidInput
	}

	var existing database.Meter
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND meter_number = ?", user.ID, meterNumber).
		First(&existing).Error
	if err == nil {
		return nil, apperrors.ErrMeterExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NewDatabaseError(err)
	}

	balance, err := s.source.FetchBalance(ctx, meterNumber)
	if err != nil {
		return nil, apperrors.NewScrapeError(err, meterNumber)
	}

	now := time.Now()
	meter := &database.Meter{
		UserID:      user.ID,
		MeterNumber: meterNumber,
		MeterName:   meterName,
		MinBalance:  decimal.NewFromInt(50),
		LastBalance: &balance,
		LastChecked: &now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(meter).Error; err != nil {
			return err
		}
		sample := &database.BalanceSample{
			MeterID:    meter.ID,
			Balance:    balance,
			RecordedAt: now,
		}
		return tx.Create(sample).Error
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}

	return meter, nil
}

// ListMeters returns the user's meters in creation order.
func (s *MeterService) ListMeters(ctx context.Context, user *database.User) ([]database.Meter, error) {
	var meters []database.Meter
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Order("id asc").
		Find(&meters).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return meters, nil
}

// RemoveMeter deletes a meter and, via cascade, its sample history.
func (s *MeterService) RemoveMeter(ctx context.Context, user *database.User, meterID uint) (*database.Meter, error) {
	meter, err := s.getUserMeter(ctx, user, meterID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("meter_id = ?", meter.ID).Delete(&database.BalanceSample{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(meter).Error
	})
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return meter, nil
}

// SetMinBalance updates the low-balance alert threshold.
func (s *MeterService) SetMinBalance(ctx context.Context, user *database.User, meterID uint, minBalance decimal.Decimal) (*database.Meter, error) {
	if minBalance.IsNegative() {
		return nil, apperrors.NewValidationError("minimum balance must not be negative")
	}

	meter, err := s.getUserMeter(ctx, user, meterID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(meter).Update("min_balance", minBalance).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	meter.MinBalance = minBalance
	return meter, nil
}

func (s *MeterService) getUserMeter(ctx context.Context, user *database.User, meterID uint) (*database.Meter, error) {
	var meter database.Meter
	err := s.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", meterID, user.ID).
		First(&meter).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrMeterNotFound
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return &meter, nil
}

// FormatMeterList renders the /list reply.
func FormatMeterList(meters []database.Meter) string {
	if len(meters) == 0 {
		return "No meters added yet. Use /add to add one."
	}

	lines := []string{"📊 Your meters:"}
	for i, meter := range meters {
		entry := fmt.Sprintf("%d. %s (%s)", i+1, meter.MeterName, meter.MeterNumber)
		if meter.LastBalance != nil {
			entry += fmt.Sprintf("\nLast balance: %s BDT", meter.LastBalance.StringFixed(2))
		}
		entry += fmt.Sprintf("\nMin balance: %s BDT", meter.MinBalance.StringFixed(2))
		lines = append(lines, entry)
	}
	return joinBlocks(lines)
}

func joinBlocks(blocks []string) string {
	out := ""
	for i, b := range blocks {
		if i > 0 {
			out += "\n\n"
		}
		out += b
	}
	return out
}
