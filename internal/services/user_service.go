package services

import (
	"context"
	"fmt"

	"github.com/shahariarshuvo/nesco-helper/internal/database"
	"gorm.io/gorm"
)

type UserService struct {
	db *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{db: db}
}

func (s *UserService) RegisterUser(ctx context.Context, telegramID int64, username string) (*database.User, error) {
	user := &database.User{
		TelegramID:           telegramID,
		Username:             username,
		DailyReminderEnabled: true,
	}

	result := s.db.WithContext(ctx).FirstOrCreate(user, database.User{TelegramID: telegramID})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to register user: %w", result.Error)
	}

	return user, nil
}

func (s *UserService) GetUserByTelegramID(ctx context.Context, telegramID int64) (*database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).Preload("Meters").Where("telegram_id = ?", telegramID).First(&user).Error; err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// ToggleReminder flips the daily reminder flag and returns the new state.
func (s *UserService) ToggleReminder(ctx context.Context, userID uint) (bool, error) {
	var user database.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return false, fmt.Errorf("failed to get user: %w", err)
	}

	user.DailyReminderEnabled = !user.DailyReminderEnabled
	if err := s.db.WithContext(ctx).Model(&user).Update("daily_reminder_enabled", user.DailyReminderEnabled).Error; err != nil {
		return false, fmt.Errorf("failed to update reminder flag: %w", err)
	}

	return user.DailyReminderEnabled, nil
}

// ListReminderUsers returns users with the daily reminder enabled, meters
// preloaded.
func (s *UserService) ListReminderUsers(ctx context.Context) ([]database.User, error) {
	var users []database.User
	if err := s.db.WithContext(ctx).Preload("Meters").
		Where("daily_reminder_enabled = ?", true).
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("failed to list reminder users: %w", err)
	}
	return users, nil
}

// DisplayName is how the user is addressed in replies.
func DisplayName(user *database.User) string {
	if user.Username != "" {
		return user.Username
	}
	return fmt.Sprintf("User %d", user.TelegramID)
}
