package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/shahariarshuvo/nesco-helper/internal/config"
	"github.com/shahariarshuvo/nesco-helper/internal/database"
	"github.com/shahariarshuvo/nesco-helper/internal/domain"
	apperrors "github.com/shahariarshuvo/nesco-helper/internal/errors"
	"github.com/shahariarshuvo/nesco-helper/internal/logger"
	"github.com/shahariarshuvo/nesco-helper/internal/replycache"
	"github.com/tidwall/gjson"
)

// maxReplyLength caps a model reply before it reaches the user.
const maxReplyLength = 1000

const intentInstructions = "You help the NESCO Meter Helper Telegram bot understand user intent. " +
	"Always respond with ONLY a compact JSON object containing: intent, meter_name, meter_number, response. " +
	"Valid intents: START, HELP, LIST_METERS, ADD_METER, CHECK_BALANCES, REMOVE_METER, TOGGLE_REMINDER, USAGE_REPORT, SMALL_TALK, UNKNOWN. " +
	"If the user wants to add a meter but did not share the number, set intent=ADD_METER and response='Please enter the meter number.' " +
	"If they provide a number, echo it in meter_number and tell them next step (ask for name if missing). " +
	"If they ask for balance, use intent=CHECK_BALANCES and response like 'Checking your balances now.' " +
	"If they ask for a usage report, month summary, or electricity consumption history, set intent=USAGE_REPORT and respond with a short confirmation. " +
	"If they just chat, use intent=SMALL_TALK with a short friendly response under two sentences. " +
	"Never include explanations outside JSON."

const replyInstructions = "You are a concise assistant that formats a short user-friendly reply. " +
	"I will provide a user's prepaid meter balances. Use only this factual data to compose the reply. " +
	"Do NOT invent numbers or other facts. Output only the final reply text (one or two short sentences)."

// AIService talks to an OpenAI-compatible chat-completions endpoint
// (OpenRouter). Every entry point degrades deterministically: GenerateReply
// falls back to ComposeSummary, InterpretMessage returns nil.
type AIService struct {
	client *openai.Client
	cfg    config.AIConfig
	cache  replycache.Cache
	ttl    time.Duration
}

// headerTransport injects the OpenRouter attribution headers.
type headerTransport struct {
	referer string
	title   string
	base    http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set("HTTP-Referer", t.referer)
	req.Header.Set("X-Title", t.title)
	return t.base.RoundTrip(req)
}

func NewAIService(cfg config.AIConfig, cache replycache.Cache, ttl time.Duration) *AIService {
	var client *openai.Client
	if cfg.APIKey != "" {
		clientCfg := openai.DefaultConfig(cfg.APIKey)
		clientCfg.BaseURL = cfg.BaseURL
		clientCfg.HTTPClient = &http.Client{
			Timeout: cfg.Timeout,
			Transport: &headerTransport{
				referer: cfg.Referer,
				title:   cfg.Title,
				base:    http.DefaultTransport,
			},
		}
		client = openai.NewClientWithConfig(clientCfg)
	}

	return &AIService{
		client: client,
		cfg:    cfg,
		cache:  cache,
		ttl:    ttl,
	}
}

// Enabled reports whether the pipeline may call the model at all.
func (s *AIService) Enabled() bool {
	return s.cfg.Enabled && s.cfg.APIKey != "" && s.client != nil
}

// GenerateReply produces a short natural-language balance summary. It never
// returns an error: any failure past the enabled check yields the
// deterministic composer output, so the caller always has usable text. When
// the pipeline is disabled it returns "" and the caller composes the summary
// itself.
func (s *AIService) GenerateReply(ctx context.Context, telegramID int64, userDisplay string, results []domain.MeterResult, language string) string {
	if !s.Enabled() {
		return ""
	}

	key := replycache.Key(telegramID, language)
	if reply, ok := s.cache.Get(ctx, key); ok {
		logger.Infof("NLP cache hit for %s", key)
		return reply
	}

	prompt := buildReplyPrompt(userDisplay, results, language)
	text, err := s.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: replyInstructions},
		{Role: openai.ChatMessageRoleUser, Content: prompt},
	})
	if err != nil {
		logger.Warnf("NLP reply generation failed, using deterministic fallback: %v", err)
		return ComposeSummary(userDisplay, results, language)
	}

	reply := sanitizeReply(text)
	if reply == "" {
		logger.Warn("Model returned empty reply, using deterministic fallback")
		return ComposeSummary(userDisplay, results, language)
	}

	s.cache.Set(ctx, key, reply, s.ttl)
	return reply
}

// InterpretMessage classifies a free-text message into a structured intent.
// A nil result means the caller should use its deterministic routing.
func (s *AIService) InterpretMessage(ctx context.Context, userText string, meters []database.Meter) *domain.Intent {
	if !s.Enabled() {
		return nil
	}

	system := intentInstructions
	if line := meterContextLine(meters); line != "" {
		system = system + " " + line
	}

	text, err := s.complete(ctx, []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: system},
		{Role: openai.ChatMessageRoleUser, Content: userText},
	})
	if err != nil {
		logger.Warnf("Intent interpretation failed: %v", err)
		return nil
	}

	jsonStr := extractJSON(text)
	if jsonStr == "" || !gjson.Valid(jsonStr) {
		logger.Warnf("No valid intent JSON in model output: %.200s", text)
		return nil
	}

	name := gjson.Get(jsonStr, "intent").String()
	if name == "" {
		return nil
	}

	return &domain.Intent{
		Name:        strings.ToUpper(name),
		MeterName:   gjson.Get(jsonStr, "meter_name").String(),
		MeterNumber: gjson.Get(jsonStr, "meter_number").String(),
		Response:    gjson.Get(jsonStr, "response").String(),
	}
}

// complete runs the two-step model policy: one attempt at the primary model,
// one attempt at the free model only when the primary signals
// payment-required, then the error propagates to the caller's fallback. This
// bounds the worst case to two round trips.
func (s *AIService) complete(ctx context.Context, messages []openai.ChatCompletionMessage) (string, error) {
	text, err := s.callModel(ctx, s.cfg.Model, messages)
	if err == nil {
		return text, nil
	}

	if apperrors.IsQuota(err) && s.cfg.FreeModel != "" && s.cfg.FreeModel != s.cfg.Model {
		logger.Warnf("Primary model %q requires payment, retrying with free model %q", s.cfg.Model, s.cfg.FreeModel)
		return s.callModel(ctx, s.cfg.FreeModel, messages)
	}

	return "", err
}

func (s *AIService) callModel(ctx context.Context, model string, messages []openai.ChatCompletionMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusPaymentRequired {
			return "", apperrors.NewQuotaError(err, model)
		}
		return "", apperrors.NewExternalAPIError(err, "openrouter").WithContext("model", model)
	}

	if len(resp.Choices) == 0 {
		return "", apperrors.NewExternalAPIError(fmt.Errorf("no choices in response"), "openrouter").WithContext("model", model)
	}
	return resp.Choices[0].Message.Content, nil
}

// buildReplyPrompt formats the structured results into a compact factual
// context block, one line per meter.
func buildReplyPrompt(userDisplay string, results []domain.MeterResult, language string) string {
	lines := []string{
		fmt.Sprintf("User: %s", userDisplay),
		fmt.Sprintf("Date: %s", time.Now().UTC().Format("2006-01-02")),
		"Balances:",
	}

	for _, r := range results {
		if r.Failed() {
			lines = append(lines, fmt.Sprintf("- %s (%s): ERROR: %s", r.Name, r.Number, r.Err))
			continue
		}
		lines = append(lines, fmt.Sprintf("- %s (%s): %s BDT; min=%s BDT",
			r.Name, r.Number, r.Reading.Balance.StringFixed(2), r.Reading.MinBalance.StringFixed(2)))
	}

	lines = append(lines, fmt.Sprintf("Total used since yesterday: %s BDT", TotalUsedSinceYesterday(results).StringFixed(2)))

	langSentence := "Please reply in English."
	if isBangla(language) {
		langSentence = "Please reply in Bangla."
	}
	lines = append(lines,
		fmt.Sprintf("Language: %s", language),
		langSentence,
		"Produce a single short reply text suitable for a Telegram message.")

	return strings.Join(lines, "\n")
}

func meterContextLine(meters []database.Meter) string {
	if len(meters) == 0 {
		return ""
	}
	if len(meters) > 5 {
		meters = meters[:5]
	}
	parts := make([]string, 0, len(meters))
	for _, m := range meters {
		parts = append(parts, fmt.Sprintf("%s (%s)", m.MeterName, m.MeterNumber))
	}
	return fmt.Sprintf("Known meters: %s.", strings.Join(parts, ", "))
}

// sanitizeReply takes the first non-empty line of the model output,
// collapses internal whitespace and caps the length. This defends against
// models emitting multi-paragraph answers or meta commentary.
func sanitizeReply(text string) string {
	var line string
	for _, candidate := range strings.Split(text, "\n") {
		if strings.TrimSpace(candidate) != "" {
			line = candidate
			break
		}
	}

	line = strings.Join(strings.Fields(line), " ")

	runes := []rune(line)
	if len(runes) > maxReplyLength {
		line = string(runes[:maxReplyLength])
	}
	return line
}

// extractJSON pulls a JSON object out of model output that may be wrapped in
// code fences or prose.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	if start == -1 {
		return ""
	}
	end := strings.LastIndex(s, "}")
	if end == -1 || end <= start {
		return ""
	}
	return s[start : end+1]
}
