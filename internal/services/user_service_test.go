package services

import (
	"context"
	"testing"

	"github.com/shahariarshuvo/nesco-helper/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUserIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db)

	first, err := svc.RegisterUser(context.Background(), 42, "shuvo")
	require.NoError(t, err)

	second, err := svc.RegisterUser(context.Background(), 42, "renamed")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var count int64
	require.NoError(t, db.Model(&database.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGetUserByTelegramIDPreloadsMeters(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db)

	user := seedUser(t, db, 42)
	seedMeter(t, db, user, "1234", "Office", "50")

	loaded, err := svc.GetUserByTelegramID(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, loaded.Meters, 1)
	assert.Equal(t, "Office", loaded.Meters[0].MeterName)

	_, err = svc.GetUserByTelegramID(context.Background(), 9000)
	assert.Error(t, err)
}

func TestToggleReminder(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db)
	user := seedUser(t, db, 42)

	enabled, err := svc.ToggleReminder(context.Background(), user.ID)
	require.NoError(t, err)
	assert.False(t, enabled)

	enabled, err = svc.ToggleReminder(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, enabled)
}

func TestListReminderUsers(t *testing.T) {
	db := newTestDB(t)
	svc := NewUserService(db)

	on := seedUser(t, db, 1)
	seedMeter(t, db, on, "1234", "Office", "50")
	off := seedUser(t, db, 2)
	require.NoError(t, db.Model(off).Update("daily_reminder_enabled", false).Error)

	users, err := svc.ListReminderUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.EqualValues(t, 1, users[0].TelegramID)
	assert.Len(t, users[0].Meters, 1)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "shuvo", DisplayName(&database.User{Username: "shuvo"}))
	assert.Equal(t, "User 42", DisplayName(&database.User{TelegramID: 42}))
}
