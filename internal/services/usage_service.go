package services

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/shahariarshuvo/nesco-helper/internal/database"
	"github.com/shahariarshuvo/nesco-helper/internal/domain"
	apperrors "github.com/shahariarshuvo/nesco-helper/internal/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// UsageService reconstructs per-day consumption from the sparse balance
// sample history. The reconstruction is a forward fill over point samples:
// a recharge and consumption inside the same inter-sample interval are
// indistinguishable, so the net observed change is what gets attributed.
// The source data (periodic scraped readings) offers no finer resolution.
type UsageService struct {
	db  *gorm.DB
	loc *time.Location
}

func NewUsageService(db *gorm.DB, loc *time.Location) *UsageService {
	return &UsageService{db: db, loc: loc}
}

// BuildMonthlyReport reports the current calendar month up to now.
func (s *UsageService) BuildMonthlyReport(ctx context.Context, user *database.User) (*domain.UsageReport, error) {
	now := time.Now().In(s.loc)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, s.loc)
	return s.BuildUsageReport(ctx, user, monthStart, now)
}

// BuildUsageReport aggregates per-day usage across all of the user's meters
// within [windowStart, asOf]. Usage is derived only from balance decreases
// between consecutive samples; a drop is attributed entirely to the calendar
// day the later sample was observed on, never interpolated across the
// interval. Without a carry-in sample before the window, the first in-window
// interval is skipped rather than treated as zero usage.
func (s *UsageService) BuildUsageReport(ctx context.Context, user *database.User, windowStart, asOf time.Time) (*domain.UsageReport, error) {
	var meters []database.Meter
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Find(&meters).Error; err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	if len(meters) == 0 {
		return nil, apperrors.ErrNoMeters
	}

	usageByDate := make(map[string]decimal.Decimal)
	total := decimal.Zero

	for i := range meters {
		meter := &meters[i]

		carryIn, err := s.carryInBalance(ctx, meter.ID, windowStart)
		if err != nil {
			return nil, err
		}

		var samples []database.BalanceSample
		if err := s.db.WithContext(ctx).
			Where("meter_id = ? AND recorded_at >= ? AND recorded_at <= ?", meter.ID, windowStart, asOf).
			Order("recorded_at asc").
			Find(&samples).Error; err != nil {
			return nil, apperrors.NewDatabaseError(err)
		}

		last := carryIn
		for _, sample := range samples {
			if last != nil {
				usage := last.Sub(sample.Balance)
				if usage.IsPositive() {
					day := sample.RecordedAt.In(s.loc).Format("2006-01-02")
					usageByDate[day] = usageByDate[day].Add(usage)
					total = total.Add(usage)
				}
			}
			balance := sample.Balance
			last = &balance
		}
	}

	days := make([]domain.UsageDay, 0, len(usageByDate))
	for day, usage := range usageByDate {
		days = append(days, domain.UsageDay{Date: day, Usage: usage})
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	return &domain.UsageReport{
		Days:       days,
		Total:      total,
		MonthLabel: asOf.In(s.loc).Format("January 2006"),
		Start:      windowStart,
	}, nil
}

// carryInBalance is the latest sample strictly before the window, if any.
func (s *UsageService) carryInBalance(ctx context.Context, meterID uint, windowStart time.Time) (*decimal.Decimal, error) {
	var sample database.BalanceSample
	err := s.db.WithContext(ctx).
		Where("meter_id = ? AND recorded_at < ?", meterID, windowStart).
		Order("recorded_at desc").
		First(&sample).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	return &sample.Balance, nil
}
