package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shahariarshuvo/nesco-helper/internal/database"
	"github.com/shahariarshuvo/nesco-helper/internal/domain"
	"github.com/shahariarshuvo/nesco-helper/internal/logger"
	"github.com/shahariarshuvo/nesco-helper/internal/services"
	"github.com/shopspring/decimal"
)

const (
	stateNone                  = "none"
	stateWaitingForMeterNumber = "waiting_for_meter_number"
	stateWaitingForMeterName   = "waiting_for_meter_name"
)

const welcomeMessage = `Welcome to NESCO Prepaid Meter Monitor 👋

I help you track your NESCO prepaid meter balances right from Telegram.

Commands:
/add - Add a meter
/list - List your meters
/check - Check all balances
/report - Monthly usage report
/remove - Remove a meter
/minbalance - Set minimum balance alert
/reminder - Toggle daily reminder`

type Bot struct {
	api         *tgbotapi.BotAPI
	userService *services.UserService
	meterSvc    *services.MeterService
	balanceSvc  *services.BalanceService
	usageSvc    *services.UsageService
	aiSvc       *services.AIService
	language    string

	// Updates are handled sequentially off one channel, so plain maps are
	// fine here.
	userStates     map[int64]string
	pendingNumbers map[int64]string
}

func NewBot(token string, userService *services.UserService, meterSvc *services.MeterService, balanceSvc *services.BalanceService, usageSvc *services.UsageService, aiSvc *services.AIService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	logger.Infof("Bot authorized on account %s", api.Self.UserName)
	return &Bot{
		api:            api,
		userService:    userService,
		meterSvc:       meterSvc,
		balanceSvc:     balanceSvc,
		usageSvc:       usageSvc,
		aiSvc:          aiSvc,
		language:       "bn",
		userStates:     make(map[int64]string),
		pendingNumbers: make(map[int64]string),
	}, nil
}

// API exposes the underlying client so the reminder scheduler can send
// through the same connection.
func (b *Bot) API() *tgbotapi.BotAPI {
	return b.api
}

func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	logger.Info("Bot is now listening for updates")

	for {
		select {
		case <-ctx.Done():
			logger.Info("Bot is shutting down")
			return ctx.Err()
		case update := <-updates:
			if update.Message == nil {
				continue
			}
			if err := b.handleMessage(ctx, update.Message); err != nil {
				logger.Errorf("Error handling update: %v", err)
			}
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) error {
	user, err := b.userService.RegisterUser(ctx, message.From.ID, message.From.UserName)
	if err != nil {
		return fmt.Errorf("failed to register user: %w", err)
	}

	if message.IsCommand() {
		return b.handleCommand(ctx, message, user)
	}
	if message.Text != "" {
		return b.handleText(ctx, message, user)
	}
	return nil
}

func (b *Bot) handleCommand(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	logger.Infof("Handling command %s from user %d", message.Command(), user.TelegramID)

	switch message.Command() {
	case "start":
		b.userStates[user.TelegramID] = stateNone
		return b.reply(message.Chat.ID, welcomeMessage)

	case "help":
		return b.reply(message.Chat.ID, welcomeMessage)

	case "add":
		b.userStates[user.TelegramID] = stateWaitingForMeterNumber
		return b.reply(message.Chat.ID, "📝 Let's add a new meter!\n\nPlease send your meter number (e.g., 31041051783)\nSend /cancel to abort.")

	case "cancel":
		b.userStates[user.TelegramID] = stateNone
		delete(b.pendingNumbers, user.TelegramID)
		return b.reply(message.Chat.ID, "Cancelled.")

	case "list":
		meters, err := b.meterSvc.ListMeters(ctx, user)
		if err != nil {
			return b.reply(message.Chat.ID, "❌ Could not load your meters. Please try again.")
		}
		return b.reply(message.Chat.ID, services.FormatMeterList(meters))

	case "check":
		return b.handleCheck(ctx, message.Chat.ID, user)

	case "report":
		report, err := b.usageSvc.BuildMonthlyReport(ctx, user)
		if err != nil {
			return b.reply(message.Chat.ID, "No meters found for this account.")
		}
		return b.reply(message.Chat.ID, services.ComposeUsageTable(report))

	case "remove":
		return b.handleRemove(ctx, message, user)

	case "minbalance":
		return b.handleMinBalance(ctx, message, user)

	case "reminder":
		enabled, err := b.userService.ToggleReminder(ctx, user.ID)
		if err != nil {
			return b.reply(message.Chat.ID, "❌ Could not update your reminder setting.")
		}
		status := "disabled"
		if enabled {
			status = "enabled"
		}
		return b.reply(message.Chat.ID, fmt.Sprintf("✅ Daily reminder %s", status))

	default:
		return b.reply(message.Chat.ID, "Unknown command. Use /help to see available commands.")
	}
}

func (b *Bot) handleText(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	switch b.userStates[user.TelegramID] {
	case stateWaitingForMeterNumber:
		number := strings.TrimSpace(message.Text)
		if number == "" {
			return b.reply(message.Chat.ID, "Please send a meter number, or /cancel.")
		}
		b.pendingNumbers[user.TelegramID] = number
		b.userStates[user.TelegramID] = stateWaitingForMeterName
		return b.reply(message.Chat.ID, "Got it. Now send a name for this meter (e.g., Home).")

	case stateWaitingForMeterName:
		name := strings.TrimSpace(message.Text)
		number := b.pendingNumbers[user.TelegramID]
		b.userStates[user.TelegramID] = stateNone
		delete(b.pendingNumbers, user.TelegramID)

		meter, err := b.meterSvc.AddMeter(ctx, user, number, name)
		if err != nil {
			logger.Warnf("Add meter failed for user %d: %v", user.TelegramID, err)
			return b.reply(message.Chat.ID, fmt.Sprintf("❌ Cannot verify meter %s. Please check the number and try again.", number))
		}
		return b.reply(message.Chat.ID, fmt.Sprintf("✅ Added meter: %s (%s)\nCurrent balance: %s BDT",
			meter.MeterName, meter.MeterNumber, meter.LastBalance.StringFixed(2)))

	default:
		return b.handleFreeText(ctx, message, user)
	}
}

// handleFreeText routes a non-command message through the intent classifier.
// When the classifier is unavailable or unsure, the deterministic help text
// is the answer.
func (b *Bot) handleFreeText(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	meters, err := b.meterSvc.ListMeters(ctx, user)
	if err != nil {
		meters = nil
	}

	intent := b.aiSvc.InterpretMessage(ctx, message.Text, meters)
	if intent == nil {
		return b.reply(message.Chat.ID, "Please use the commands to interact with me. /help shows what I can do.")
	}

	switch intent.Name {
	case domain.IntentStart, domain.IntentHelp:
		return b.reply(message.Chat.ID, welcomeMessage)
	case domain.IntentListMeters:
		return b.reply(message.Chat.ID, services.FormatMeterList(meters))
	case domain.IntentCheckBalances:
		if intent.Response != "" {
			if err := b.reply(message.Chat.ID, intent.Response); err != nil {
				return err
			}
		}
		return b.handleNLPCheck(ctx, message.Chat.ID, user)
	case domain.IntentUsageReport:
		report, err := b.usageSvc.BuildMonthlyReport(ctx, user)
		if err != nil {
			return b.reply(message.Chat.ID, "No meters found for this account.")
		}
		return b.reply(message.Chat.ID, services.ComposeUsageTable(report))
	case domain.IntentAddMeter:
		b.userStates[user.TelegramID] = stateWaitingForMeterNumber
		response := intent.Response
		if response == "" {
			response = "Please enter the meter number."
		}
		if intent.MeterNumber != "" {
			b.pendingNumbers[user.TelegramID] = intent.MeterNumber
			b.userStates[user.TelegramID] = stateWaitingForMeterName
			response = "Got it. Now send a name for this meter (e.g., Home)."
		}
		return b.reply(message.Chat.ID, response)
	case domain.IntentToggleRemind:
		enabled, err := b.userService.ToggleReminder(ctx, user.ID)
		if err != nil {
			return b.reply(message.Chat.ID, "❌ Could not update your reminder setting.")
		}
		status := "disabled"
		if enabled {
			status = "enabled"
		}
		return b.reply(message.Chat.ID, fmt.Sprintf("✅ Daily reminder %s", status))
	case domain.IntentSmallTalk:
		if intent.Response != "" {
			return b.reply(message.Chat.ID, intent.Response)
		}
		return b.reply(message.Chat.ID, "🙂")
	default:
		return b.reply(message.Chat.ID, "Please use the commands to interact with me. /help shows what I can do.")
	}
}

func (b *Bot) handleCheck(ctx context.Context, chatID int64, user *database.User) error {
	if err := b.reply(chatID, "Checking your balances now..."); err != nil {
		return err
	}

	results, err := b.balanceSvc.CheckBalances(ctx, user)
	if err != nil {
		return b.reply(chatID, "No meters found. Use /add to add one.")
	}
	return b.reply(chatID, services.ComposeBalanceReport(results))
}

// handleNLPCheck is the conversational balance check: the NLP reply when the
// pipeline delivers one, the deterministic summary otherwise.
func (b *Bot) handleNLPCheck(ctx context.Context, chatID int64, user *database.User) error {
	results, err := b.balanceSvc.CheckBalances(ctx, user)
	if err != nil {
		return b.reply(chatID, "No meters found. Use /add to add one.")
	}

	display := services.DisplayName(user)
	reply := b.aiSvc.GenerateReply(ctx, user.TelegramID, display, results, b.language)
	if reply == "" {
		reply = services.ComposeSummary(display, results, b.language)
	}
	return b.reply(chatID, reply)
}

func (b *Bot) handleRemove(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	meters, err := b.meterSvc.ListMeters(ctx, user)
	if err != nil || len(meters) == 0 {
		return b.reply(message.Chat.ID, "No meters added yet. Use /add to add one.")
	}

	arg := strings.TrimSpace(message.CommandArguments())
	idx, err := strconv.Atoi(arg)
	if err != nil || idx < 1 || idx > len(meters) {
		return b.reply(message.Chat.ID, fmt.Sprintf("Usage: /remove <number>\n\n%s", services.FormatMeterList(meters)))
	}

	meter, err := b.meterSvc.RemoveMeter(ctx, user, meters[idx-1].ID)
	if err != nil {
		return b.reply(message.Chat.ID, "❌ Could not remove that meter. Please try again.")
	}
	return b.reply(message.Chat.ID, fmt.Sprintf("✅ Removed meter: %s", meter.MeterName))
}

func (b *Bot) handleMinBalance(ctx context.Context, message *tgbotapi.Message, user *database.User) error {
	meters, err := b.meterSvc.ListMeters(ctx, user)
	if err != nil || len(meters) == 0 {
		return b.reply(message.Chat.ID, "No meters added yet. Use /add to add one.")
	}

	args := strings.Fields(message.CommandArguments())
	if len(args) != 2 {
		return b.reply(message.Chat.ID, fmt.Sprintf("Usage: /minbalance <number> <amount>\n\n%s", services.FormatMeterList(meters)))
	}

	idx, err := strconv.Atoi(args[0])
	if err != nil || idx < 1 || idx > len(meters) {
		return b.reply(message.Chat.ID, "Invalid meter number. Use /list to see your meters.")
	}
	amount, err := decimal.NewFromString(args[1])
	if err != nil || amount.IsNegative() {
		return b.reply(message.Chat.ID, "Invalid amount. Example: /minbalance 1 100")
	}

	meter, err := b.meterSvc.SetMinBalance(ctx, user, meters[idx-1].ID, amount)
	if err != nil {
		return b.reply(message.Chat.ID, "❌ Could not update the minimum balance.")
	}
	return b.reply(message.Chat.ID, fmt.Sprintf("✅ Min balance set to %s BDT for %s", amount.StringFixed(2), meter.MeterName))
}

func (b *Bot) reply(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}
