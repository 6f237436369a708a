package services

import (
	"context"
	"testing"
	"time"

	apperrors "github.com/shahariarshuvo/nesco-helper/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildUsageReportSingleDrop(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 200)
	meter := seedMeter(t, db, user, "1234", "Office", "100")
	svc := NewUsageService(db, time.UTC)

	windowStart := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2025, 11, 30, 23, 59, 0, 0, time.UTC)

	seedSample(t, db, meter.ID, "500.00", time.Date(2025, 11, 3, 9, 0, 0, 0, time.UTC))
	seedSample(t, db, meter.ID, "300.00", time.Date(2025, 11, 3, 21, 0, 0, 0, time.UTC))

	report, err := svc.BuildUsageReport(context.Background(), user, windowStart, asOf)
	require.NoError(t, err)
	require.Len(t, report.Days, 1)
	assert.Equal(t, "2025-11-03", report.Days[0].Date)
	assert.True(t, report.Days[0].Usage.Equal(dec("200.00")))
	assert.True(t, report.Total.Equal(dec("200.00")))
	assert.Equal(t, "November 2025", report.MonthLabel)
}

func TestBuildUsageReportRechargesContributeNothing(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 201)
	meter := seedMeter(t, db, user, "1234", "Office", "100")
	svc := NewUsageService(db, time.UTC)

	windowStart := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

	seedSample(t, db, meter.ID, "100.00", time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC))
	seedSample(t, db, meter.ID, "400.00", time.Date(2025, 11, 2, 12, 0, 0, 0, time.UTC))
	seedSample(t, db, meter.ID, "600.00", time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC))

	report, err := svc.BuildUsageReport(context.Background(), user, windowStart, asOf)
	require.NoError(t, err)
	assert.Empty(t, report.Days)
	assert.True(t, report.Total.IsZero())
}

func TestBuildUsageReportSkipsFirstIntervalWithoutCarryIn(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 202)
	meter := seedMeter(t, db, user, "1234", "Office", "100")
	svc := NewUsageService(db, time.UTC)

	windowStart := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

	// The first in-window sample has no predecessor, so whatever happened
	// before it is unknowable and must not count as usage.
	seedSample(t, db, meter.ID, "500.00", time.Date(2025, 11, 2, 9, 0, 0, 0, time.UTC))
	seedSample(t, db, meter.ID, "450.00", time.Date(2025, 11, 2, 21, 0, 0, 0, time.UTC))

	report, err := svc.BuildUsageReport(context.Background(), user, windowStart, asOf)
	require.NoError(t, err)
	assert.True(t, report.Total.Equal(dec("50.00")), "got %s", report.Total)
}

func TestBuildUsageReportUsesCarryInSample(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 203)
	meter := seedMeter(t, db, user, "1234", "Office", "100")
	svc := NewUsageService(db, time.UTC)

	windowStart := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

	seedSample(t, db, meter.ID, "600.00", time.Date(2025, 10, 31, 22, 0, 0, 0, time.UTC))
	seedSample(t, db, meter.ID, "500.00", time.Date(2025, 11, 1, 9, 0, 0, 0, time.UTC))

	report, err := svc.BuildUsageReport(context.Background(), user, windowStart, asOf)
	require.NoError(t, err)
	require.Len(t, report.Days, 1)
	assert.Equal(t, "2025-11-01", report.Days[0].Date)
	assert.True(t, report.Days[0].Usage.Equal(dec("100.00")))
}

func TestBuildUsageReportAttributesDropToLaterSampleDay(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 204)
	meter := seedMeter(t, db, user, "1234", "Office", "100")
	svc := NewUsageService(db, time.UTC)

	windowStart := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

	seedSample(t, db, meter.ID, "500.00", time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC))
	// The next reading lands two days later; the whole drop belongs to the
	// day it was observed.
	seedSample(t, db, meter.ID, "380.00", time.Date(2025, 11, 7, 9, 0, 0, 0, time.UTC))

	report, err := svc.BuildUsageReport(context.Background(), user, windowStart, asOf)
	require.NoError(t, err)
	require.Len(t, report.Days, 1)
	assert.Equal(t, "2025-11-07", report.Days[0].Date)
	assert.True(t, report.Days[0].Usage.Equal(dec("120.00")))
}

func TestBuildUsageReportAggregatesAcrossMeters(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 205)
	office := seedMeter(t, db, user, "1234", "Office", "100")
	home := seedMeter(t, db, user, "5678", "Home", "50")
	svc := NewUsageService(db, time.UTC)

	windowStart := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

	seedSample(t, db, office.ID, "500.00", time.Date(2025, 11, 4, 9, 0, 0, 0, time.UTC))
	seedSample(t, db, office.ID, "470.00", time.Date(2025, 11, 4, 21, 0, 0, 0, time.UTC))
	seedSample(t, db, home.ID, "200.00", time.Date(2025, 11, 4, 10, 0, 0, 0, time.UTC))
	seedSample(t, db, home.ID, "190.00", time.Date(2025, 11, 4, 22, 0, 0, 0, time.UTC))
	seedSample(t, db, home.ID, "170.00", time.Date(2025, 11, 5, 22, 0, 0, 0, time.UTC))

	report, err := svc.BuildUsageReport(context.Background(), user, windowStart, asOf)
	require.NoError(t, err)
	require.Len(t, report.Days, 2)
	assert.Equal(t, "2025-11-04", report.Days[0].Date)
	assert.True(t, report.Days[0].Usage.Equal(dec("40.00")), "got %s", report.Days[0].Usage)
	assert.Equal(t, "2025-11-05", report.Days[1].Date)
	assert.True(t, report.Days[1].Usage.Equal(dec("20.00")))
	assert.True(t, report.Total.Equal(dec("60.00")))
}

func TestBuildUsageReportDayKeyFollowsTimezone(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 206)
	meter := seedMeter(t, db, user, "1234", "Office", "100")

	dhaka, err := time.LoadLocation("Asia/Dhaka")
	require.NoError(t, err)
	svc := NewUsageService(db, dhaka)

	windowStart := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	asOf := time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)

	// 20:00 UTC on Nov 3 is already Nov 4 in Dhaka (UTC+6).
	seedSample(t, db, meter.ID, "500.00", time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC))
	seedSample(t, db, meter.ID, "450.00", time.Date(2025, 11, 3, 20, 0, 0, 0, time.UTC))

	report, err := svc.BuildUsageReport(context.Background(), user, windowStart, asOf)
	require.NoError(t, err)
	require.Len(t, report.Days, 1)
	assert.Equal(t, "2025-11-04", report.Days[0].Date)
}

func TestBuildUsageReportNoMeters(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 207)
	svc := NewUsageService(db, time.UTC)

	_, err := svc.BuildUsageReport(context.Background(), user,
		time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, apperrors.ErrNoMeters)
}
