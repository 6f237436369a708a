// Package server exposes the bot's operations over HTTP for the web
// frontend and external cron triggers. Shapes follow the original backend:
// JSON bodies keyed by telegram_user_id, responses wrapped in {success, ...}.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shahariarshuvo/nesco-helper/internal/domain"
	"github.com/shahariarshuvo/nesco-helper/internal/logger"
	"github.com/shahariarshuvo/nesco-helper/internal/services"
	"github.com/shopspring/decimal"
)

// ReminderRunner triggers one reminder pass. Implemented by the reminder
// scheduler.
type ReminderRunner interface {
	Run(ctx context.Context) (int, error)
}

type Server struct {
	engine      *gin.Engine
	userService *services.UserService
	meterSvc    *services.MeterService
	balanceSvc  *services.BalanceService
	usageSvc    *services.UsageService
	aiSvc       *services.AIService
	reminders   ReminderRunner
}

func New(userService *services.UserService, meterSvc *services.MeterService, balanceSvc *services.BalanceService, usageSvc *services.UsageService, aiSvc *services.AIService, reminders ReminderRunner) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:      engine,
		userService: userService,
		meterSvc:    meterSvc,
		balanceSvc:  balanceSvc,
		usageSvc:    usageSvc,
		aiSvc:       aiSvc,
		reminders:   reminders,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", s.health)

	api := s.engine.Group("/api")
	api.POST("/add-meter", s.addMeter)
	api.POST("/list-meters", s.listMeters)
	api.POST("/check-balances", s.checkBalances)
	api.POST("/check-balances-nlp", s.checkBalancesNLP)
	api.POST("/check-balances-cached", s.checkBalancesCached)
	api.POST("/remove-meter", s.removeMeter)
	api.POST("/set-min-balance", s.setMinBalance)
	api.POST("/toggle-reminder", s.toggleReminder)
	api.POST("/usage-report", s.usageReport)
	api.GET("/daily-reminder", s.dailyReminder)
}

// Run blocks serving HTTP until the listener fails.
func (s *Server) Run(addr string) error {
	return s.engine.Run(addr)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

type userRequest struct {
	TelegramUserID *int64 `json:"telegram_user_id"`
	Language       string `json:"language"`
	MeterID        uint   `json:"meter_id"`
	MeterNumber    string `json:"meter_number"`
	MeterName      string `json:"meter_name"`
	MinBalance     string `json:"min_balance"`
}

func fail(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"success": false, "error": message})
}

func (s *Server) bindUser(c *gin.Context) (*userRequest, bool) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON body")
		return nil, false
	}
	if req.TelegramUserID == nil {
		fail(c, http.StatusBadRequest, "telegram_user_id is required")
		return nil, false
	}
	return &req, true
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().Format(time.RFC3339)})
}

func (s *Server) addMeter(c *gin.Context) {
	req, ok := s.bindUser(c)
	if !ok {
		return
	}
	if req.MeterNumber == "" || req.MeterName == "" {
		fail(c, http.StatusBadRequest, "Missing required fields")
		return
	}

	user, err := s.userService.RegisterUser(c.Request.Context(), *req.TelegramUserID, "")
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to register user")
		return
	}

	meter, err := s.meterSvc.AddMeter(c.Request.Context(), user, req.MeterNumber, req.MeterName)
	if err != nil {
		fail(c, http.StatusBadRequest, "Cannot verify meter: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Added meter: " + meter.MeterName + " (" + meter.MeterNumber + ")",
	})
}

func (s *Server) listMeters(c *gin.Context) {
	req, ok := s.bindUser(c)
	if !ok {
		return
	}

	user, err := s.userService.GetUserByTelegramID(c.Request.Context(), *req.TelegramUserID)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "meters": []gin.H{}})
		return
	}

	meters := make([]gin.H, 0, len(user.Meters))
	for _, m := range user.Meters {
		entry := gin.H{
			"id":          m.ID,
			"name":        m.MeterName,
			"number":      m.MeterNumber,
			"min_balance": m.MinBalance.InexactFloat64(),
		}
		if m.LastBalance != nil {
			entry["last_balance"] = m.LastBalance.InexactFloat64()
		}
		if m.LastChecked != nil {
			entry["last_checked"] = m.LastChecked.Format(time.RFC3339)
		}
		meters = append(meters, entry)
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "meters": meters})
}

func (s *Server) checkBalances(c *gin.Context) {
	req, ok := s.bindUser(c)
	if !ok {
		return
	}

	user, err := s.userService.GetUserByTelegramID(c.Request.Context(), *req.TelegramUserID)
	if err != nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}

	results, err := s.balanceSvc.CheckBalances(c.Request.Context(), user)
	if err != nil {
		fail(c, http.StatusNotFound, "No meters found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"results":   serializeResults(results),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) checkBalancesNLP(c *gin.Context) {
	req, ok := s.bindUser(c)
	if !ok {
		return
	}
	language := req.Language
	if language == "" {
		language = "bn"
	}

	user, err := s.userService.GetUserByTelegramID(c.Request.Context(), *req.TelegramUserID)
	if err != nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}

	results, err := s.balanceSvc.CheckBalances(c.Request.Context(), user)
	if err != nil {
		fail(c, http.StatusNotFound, "No meters found")
		return
	}

	display := services.DisplayName(user)
	reply := s.aiSvc.GenerateReply(c.Request.Context(), user.TelegramID, display, results, language)
	if reply == "" {
		reply = services.ComposeSummary(display, results, language)
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"results":   serializeResults(results),
		"timestamp": time.Now().Format(time.RFC3339),
		"nlp_reply": reply,
	})
}

func (s *Server) checkBalancesCached(c *gin.Context) {
	req, ok := s.bindUser(c)
	if !ok {
		return
	}

	user, err := s.userService.GetUserByTelegramID(c.Request.Context(), *req.TelegramUserID)
	if err != nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}

	results, err := s.balanceSvc.CachedBalances(c.Request.Context(), user)
	if err != nil {
		fail(c, http.StatusNotFound, "No meters found")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"results":   serializeResults(results),
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) removeMeter(c *gin.Context) {
	req, ok := s.bindUser(c)
	if !ok {
		return
	}
	if req.MeterID == 0 {
		fail(c, http.StatusBadRequest, "Missing required fields")
		return
	}

	user, err := s.userService.GetUserByTelegramID(c.Request.Context(), *req.TelegramUserID)
	if err != nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}

	meter, err := s.meterSvc.RemoveMeter(c.Request.Context(), user, req.MeterID)
	if err != nil {
		fail(c, http.StatusNotFound, "Meter not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Removed meter: " + meter.MeterName})
}

func (s *Server) setMinBalance(c *gin.Context) {
	req, ok := s.bindUser(c)
	if !ok {
		return
	}
	if req.MeterID == 0 || req.MinBalance == "" {
		fail(c, http.StatusBadRequest, "Missing required fields")
		return
	}
	minBalance, err := decimal.NewFromString(req.MinBalance)
	if err != nil {
		fail(c, http.StatusBadRequest, "Invalid min_balance")
		return
	}

	user, err := s.userService.GetUserByTelegramID(c.Request.Context(), *req.TelegramUserID)
	if err != nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}

	meter, err := s.meterSvc.SetMinBalance(c.Request.Context(), user, req.MeterID, minBalance)
	if err != nil {
		fail(c, http.StatusNotFound, "Meter not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Min balance set to " + minBalance.StringFixed(2) + " BDT for " + meter.MeterName,
	})
}

func (s *Server) toggleReminder(c *gin.Context) {
	req, ok := s.bindUser(c)
	if !ok {
		return
	}

	user, err := s.userService.RegisterUser(c.Request.Context(), *req.TelegramUserID, "")
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to register user")
		return
	}

	enabled, err := s.userService.ToggleReminder(c.Request.Context(), user.ID)
	if err != nil {
		fail(c, http.StatusInternalServerError, "Failed to toggle reminder")
		return
	}
	status := "disabled"
	if enabled {
		status = "enabled"
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Daily reminder " + status})
}

func (s *Server) usageReport(c *gin.Context) {
	req, ok := s.bindUser(c)
	if !ok {
		return
	}

	user, err := s.userService.GetUserByTelegramID(c.Request.Context(), *req.TelegramUserID)
	if err != nil {
		fail(c, http.StatusNotFound, "User not found")
		return
	}

	report, err := s.usageSvc.BuildMonthlyReport(c.Request.Context(), user)
	if err != nil {
		fail(c, http.StatusNotFound, "No meters found for this account.")
		return
	}

	rows := make([]gin.H, 0, len(report.Days))
	for _, day := range report.Days {
		rows = append(rows, gin.H{"date": day.Date, "usage": day.Usage.InexactFloat64()})
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"report":      rows,
		"total_usage": report.Total.InexactFloat64(),
		"month_label": report.MonthLabel,
		"month_start": report.Start.Format(time.RFC3339),
	})
}

func (s *Server) dailyReminder(c *gin.Context) {
	sent, err := s.reminders.Run(c.Request.Context())
	if err != nil {
		logger.Errorf("Reminder run failed: %v", err)
		fail(c, http.StatusInternalServerError, "Reminder run failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "reminders_sent": sent})
}

func serializeResults(results []domain.MeterResult) []gin.H {
	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		if r.Failed() {
			out = append(out, gin.H{"name": r.Name, "number": r.Number, "error": r.Err})
			continue
		}
		entry := gin.H{
			"name":        r.Name,
			"number":      r.Number,
			"balance":     r.Reading.Balance.InexactFloat64(),
			"min_balance": r.Reading.MinBalance.InexactFloat64(),
			"alert":       r.Reading.Alert,
		}
		if r.Reading.Prior != nil {
			entry["yesterday_balance"] = r.Reading.Prior.InexactFloat64()
		}
		if r.Reading.Delta != nil {
			entry["delta"] = r.Reading.Delta.InexactFloat64()
		}
		if r.Reading.DeltaPercent != nil {
			entry["delta_percent"] = r.Reading.DeltaPercent.InexactFloat64()
		}
		out = append(out, entry)
	}
	return out
}
