package services

import (
	"context"
	"testing"

	"github.com/shahariarshuvo/nesco-helper/internal/database"
	apperrors "github.com/shahariarshuvo/nesco-helper/internal/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddMeterVerifiesAndSeedsSample(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 300)

	source := &fakeSource{balances: map[string]decimal.Decimal{"1234": dec("500.00")}}
	svc := NewMeterService(db, source)

	meter, err := svc.AddMeter(context.Background(), user, "1234", "Office")
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)
	assert.Equal(t, "Office", meter.MeterName)
	assert.True(t, meter.MinBalance.Equal(dec("50")))
	require.NotNil(t, meter.LastBalance)
	assert.True(t, meter.LastBalance.Equal(dec("500.00")))

	var count int64
	require.NoError(t, db.Model(&database.BalanceSample{}).Where("meter_id = ?", meter.ID).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestAddMeterRejectsDuplicate(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 301)
	seedMeter(t, db, user, "1234", "Office", "50")

	source := &fakeSource{balances: map[string]decimal.Decimal{"1234": dec("500.00")}}
	svc := NewMeterService(db, source)

	_, err := svc.AddMeter(context.Background(), user, "1234", "Again")
	assert.ErrorIs(t, err, apperrors.ErrMeterExists)
	assert.Equal(t, 0, source.calls)
}

func TestAddMeterScrapeFailure(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 302)

	svc := NewMeterService(db, &fakeSource{})

	_, err := svc.AddMeter(context.Background(), user, "9999", "Ghost")
	require.Error(t, err)

	// Nothing gets persisted when verification fails.
	var count int64
	require.NoError(t, db.Model(&database.Meter{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestAddMeterEmptyInput(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 303)
	svc := NewMeterService(db, &fakeSource{})

	_, err := svc.AddMeter(context.Background(), user, "", "Office")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.AddMeter(context.Background(), user, "1234", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestRemoveMeterDeletesSamples(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 304)
	meter := seedMeter(t, db, user, "1234", "Office", "50")
	seedSample(t, db, meter.ID, "500.00", meter.CreatedAt)

	svc := NewMeterService(db, &fakeSource{})

	removed, err := svc.RemoveMeter(context.Background(), user, meter.ID)
	require.NoError(t, err)
	assert.Equal(t, "Office", removed.MeterName)

	var meterCount, sampleCount int64
	require.NoError(t, db.Model(&database.Meter{}).Where("user_id = ?", user.ID).Count(&meterCount).Error)
	require.NoError(t, db.Model(&database.BalanceSample{}).Where("meter_id = ?", meter.ID).Count(&sampleCount).Error)
	assert.EqualValues(t, 0, meterCount)
	assert.EqualValues(t, 0, sampleCount)
}

func TestRemoveMeterNotOwned(t *testing.T) {
	db := newTestDB(t)
	owner := seedUser(t, db, 305)
	other := seedUser(t, db, 306)
	meter := seedMeter(t, db, owner, "1234", "Office", "50")

	svc := NewMeterService(db, &fakeSource{})

	_, err := svc.RemoveMeter(context.Background(), other, meter.ID)
	assert.ErrorIs(t, err, apperrors.ErrMeterNotFound)
}

func TestSetMinBalance(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 307)
	meter := seedMeter(t, db, user, "1234", "Office", "50")

	svc := NewMeterService(db, &fakeSource{})

	updated, err := svc.SetMinBalance(context.Background(), user, meter.ID, dec("120"))
	require.NoError(t, err)
	assert.True(t, updated.MinBalance.Equal(dec("120")))

	var stored database.Meter
	require.NoError(t, db.First(&stored, meter.ID).Error)
	assert.True(t, stored.MinBalance.Equal(dec("120")))
}

func TestSetMinBalanceRejectsNegative(t *testing.T) {
	db := newTestDB(t)
	user := seedUser(t, db, 308)
	meter := seedMeter(t, db, user, "1234", "Office", "50")

	svc := NewMeterService(db, &fakeSource{})

	_, err := svc.SetMinBalance(context.Background(), user, meter.ID, dec("-1"))
	assert.Error(t, err)
}

func TestFormatMeterList(t *testing.T) {
	assert.Contains(t, FormatMeterList(nil), "No meters added yet")

	last := dec("450.00")
	out := FormatMeterList([]database.Meter{
		{MeterNumber: "1234", MeterName: "Office", MinBalance: dec("100"), LastBalance: &last},
		{MeterNumber: "5678", MeterName: "Home", MinBalance: dec("50")},
	})
	assert.Contains(t, out, "1. Office (1234)")
	assert.Contains(t, out, "Last balance: 450.00 BDT")
	assert.Contains(t, out, "2. Home (5678)")
	assert.Contains(t, out, "Min balance: 50.00 BDT")
}
