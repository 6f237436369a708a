// Package reminder sends the scheduled daily balance summaries.
package reminder

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shahariarshuvo/nesco-helper/internal/logger"
	"github.com/shahariarshuvo/nesco-helper/internal/services"
)

type Service struct {
	api         *tgbotapi.BotAPI
	userService *services.UserService
	balanceSvc  *services.BalanceService
	loc         *time.Location
	hour        int
	minute      int
}

// New parses the "HH:MM" fire time and builds the service.
func New(api *tgbotapi.BotAPI, userService *services.UserService, balanceSvc *services.BalanceService, loc *time.Location, at string) (*Service, error) {
	hour, minute, err := parseClockTime(at)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder time %q: %w", at, err)
	}
	return &Service{
		api:         api,
		userService: userService,
		balanceSvc:  balanceSvc,
		loc:         loc,
		hour:        hour,
		minute:      minute,
	}, nil
}

func parseClockTime(at string) (int, int, error) {
	parts := strings.SplitN(at, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected HH:MM")
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour")
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute")
	}
	return hour, minute, nil
}

// Start fires Run once a day at the configured local time until the context
// is cancelled.
func (s *Service) Start(ctx context.Context) {
	logger.Infof("Scheduling daily reminders at %02d:%02d %s", s.hour, s.minute, s.loc)

	for {
		timer := time.NewTimer(time.Until(s.nextFire(time.Now())))
		select {
		case <-ctx.Done():
			timer.Stop()
			logger.Info("Reminder scheduler stopped")
			return
		case <-timer.C:
			if _, err := s.Run(ctx); err != nil {
				logger.Errorf("Scheduled reminder run failed: %v", err)
			}
		}
	}
}

func (s *Service) nextFire(now time.Time) time.Time {
	now = now.In(s.loc)
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, s.loc)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Run sends one reminder to every user with the reminder enabled and returns
// how many were sent. A single user's failure never aborts the pass.
func (s *Service) Run(ctx context.Context) (int, error) {
	users, err := s.userService.ListReminderUsers(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range users {
		user := &users[i]
		if len(user.Meters) == 0 {
			continue
		}

		var message string
		results, err := s.balanceSvc.CheckBalances(ctx, user)
		if err != nil {
			logger.Warnf("Error preparing reminder for user %d: %v", user.TelegramID, err)
			message = "Unable to fetch your balances right now."
		} else {
			message = services.ComposeReminder(services.DisplayName(user), results, time.Now().In(s.loc))
		}

		msg := tgbotapi.NewMessage(user.TelegramID, message)
		if _, err := s.api.Send(msg); err != nil {
			logger.Warnf("Failed to send reminder to %d: %v", user.TelegramID, err)
			continue
		}
		sent++
		logger.Infof("Reminder sent for user %d", user.TelegramID)
	}

	return sent, nil
}
