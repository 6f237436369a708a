package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/shahariarshuvo/nesco-helper/internal/domain"
	"github.com/shopspring/decimal"
)

// summaryBudget bounds ComposeSummary output so it always fits a Telegram
// message with room for channel markup.
const summaryBudget = 900

// maxSummaryMeters caps how many meters the short summary lists.
const maxSummaryMeters = 5

func isBangla(language string) bool {
	return strings.HasPrefix(strings.ToLower(language), "b")
}

// ComposeSummary renders the short deterministic reply for a balance check.
// It is the guaranteed fallback when the NLP pipeline is disabled or fails,
// and must never itself fail: it is pure formatting over validated results.
func ComposeSummary(userDisplay string, results []domain.MeterResult, language string) string {
	bangla := isBangla(language)

	var parts []string
	if bangla {
		parts = append(parts, "আপনার ব্যালেন্স আপডেট:")
	} else {
		parts = append(parts, fmt.Sprintf("%s balance update:", userDisplay))
	}

	shown := results
	if len(shown) > maxSummaryMeters {
		shown = shown[:maxSummaryMeters]
	}

	var lowWarnings []string
	for _, r := range shown {
		// A meter reports either a reading or an error; when both would be
		// present the error wins and no numeric formatting is attempted.
		if r.Failed() || r.Err != "" {
			if bangla {
				parts = append(parts, fmt.Sprintf("%s (%s): ত্রুটি: %s", r.Name, r.Number, r.Err))
			} else {
				parts = append(parts, fmt.Sprintf("%s (%s): ERROR: %s", r.Name, r.Number, r.Err))
			}
			continue
		}

		parts = append(parts, fmt.Sprintf("%s (%s): %s BDT", r.Name, r.Number, r.Reading.Balance.StringFixed(2)))
		if r.Reading.Alert {
			name := r.Name
			if name == "" {
				name = r.Number
			}
			lowWarnings = append(lowWarnings, name)
		}
	}

	if len(lowWarnings) > 0 {
		if bangla {
			parts = append(parts, fmt.Sprintf("নিম্ন ব্যালেন্স সতর্কতা: %s — অনুগ্রহ করে রিচার্জ করুন।", strings.Join(lowWarnings, ", ")))
		} else {
			parts = append(parts, fmt.Sprintf("Low balance warning: %s — please recharge.", strings.Join(lowWarnings, ", ")))
		}
	}

	return truncateRunes(strings.Join(parts, " "), summaryBudget)
}

func truncateRunes(s string, budget int) string {
	runes := []rune(s)
	if len(runes) <= budget {
		return s
	}
	return string(runes[:budget-3]) + "..."
}

// ComposeBalanceReport renders the detailed /check report with per-meter
// deltas and a total-change header line.
func ComposeBalanceReport(results []domain.MeterResult) string {
	blocks := []string{"💰 Balance report:"}
	totalDelta := decimal.Zero
	totalPrior := decimal.Zero

	for i, r := range results {
		if r.Failed() {
			blocks = append(blocks, fmt.Sprintf("%d. %s (%s): ❌ %s", i+1, r.Name, r.Number, r.Err))
			continue
		}

		status := "✅"
		if r.Reading.Alert {
			status = "⚠️"
		}
		lines := []string{fmt.Sprintf("%d. %s %s (%s)", i+1, status, r.Name, r.Number)}

		if r.Reading.Delta != nil {
			arrow := "→"
			if r.Reading.Delta.IsPositive() {
				arrow = "↑"
			} else if r.Reading.Delta.IsNegative() {
				arrow = "↓"
			}
			pct := ""
			if r.Reading.DeltaPercent != nil {
				pct = fmt.Sprintf(" (%s%%)", signedFixed(*r.Reading.DeltaPercent))
			}
			lines = append(lines, fmt.Sprintf("Balance: %s BDT (%s%s BDT since yesterday%s)",
				r.Reading.Balance.StringFixed(2), arrow, r.Reading.Delta.Abs().StringFixed(2), pct))
			totalDelta = totalDelta.Add(*r.Reading.Delta)
			if r.Reading.Prior != nil {
				totalPrior = totalPrior.Add(*r.Reading.Prior)
			}
		} else {
			lines = append(lines, fmt.Sprintf("Balance: %s BDT (Yesterday: Not available)", r.Reading.Balance.StringFixed(2)))
		}

		if r.Reading.Alert {
			lines = append(lines, fmt.Sprintf("🚨 Below minimum (%s BDT)!", r.Reading.MinBalance.StringFixed(2)))
		}

		blocks = append(blocks, strings.Join(lines, "\n"))
	}

	totalLine := fmt.Sprintf("Total change since yesterday: %s BDT", signedFixed(totalDelta))
	if !totalPrior.IsZero() {
		totalPct := totalDelta.Div(totalPrior).Mul(decimal.NewFromInt(100))
		totalLine += fmt.Sprintf(" (%s%%)", signedFixed(totalPct))
	}
	blocks = append(blocks[:1], append([]string{totalLine}, blocks[1:]...)...)

	return strings.Join(blocks, "\n\n")
}

func signedFixed(d decimal.Decimal) string {
	s := d.StringFixed(2)
	if !d.IsNegative() {
		return "+" + s
	}
	return s
}

// ComposeUsageTable renders the monthly usage report as a fixed-width table.
func ComposeUsageTable(report *domain.UsageReport) string {
	if len(report.Days) == 0 {
		return "No usage data available yet for this month. Try running a balance check first."
	}

	lines := []string{
		fmt.Sprintf("📅 Usage report for %s", report.MonthLabel),
		"Date         Usage (BDT)",
		"------------------------",
	}
	for _, day := range report.Days {
		lines = append(lines, fmt.Sprintf("%s   %s", day.Date, day.Usage.StringFixed(2)))
	}
	lines = append(lines, fmt.Sprintf("\nTotal: %s BDT", report.Total.StringFixed(2)))
	return strings.Join(lines, "\n")
}

// ComposeReminder renders the scheduled daily reminder message.
func ComposeReminder(userDisplay string, results []domain.MeterResult, now time.Time) string {
	usedSinceYesterday := TotalUsedSinceYesterday(results)

	lines := []string{
		"🔔 Daily Meter Balance Reminder",
		"",
		fmt.Sprintf("Hello %s!", userDisplay),
		fmt.Sprintf("📅 Date: %s", now.Format("2006-01-02")),
		"",
		fmt.Sprintf("🧾 Total used since yesterday: %s BDT", usedSinceYesterday.StringFixed(2)),
		"",
	}

	for i, r := range results {
		if r.Failed() {
			lines = append(lines, fmt.Sprintf("%d) ❌ %s (%s): %s", i+1, r.Name, r.Number, r.Err))
			continue
		}
		status := "✅"
		if r.Reading.Alert {
			status = "⚠️"
		}
		lines = append(lines, fmt.Sprintf("%d) %s %s (%s)", i+1, status, r.Name, r.Number))
		lines = append(lines, fmt.Sprintf("   Current balance: %s BDT", r.Reading.Balance.StringFixed(2)))
		lines = append(lines, "")
	}

	return strings.Join(lines, "\n")
}

// TotalUsedSinceYesterday sums the balance decreases across meters. Deltas
// are signed, so only negative ones count as consumption.
func TotalUsedSinceYesterday(results []domain.MeterResult) decimal.Decimal {
	total := decimal.Zero
	for _, r := range results {
		if r.Failed() || r.Reading.Delta == nil {
			continue
		}
		if r.Reading.Delta.IsNegative() {
			total = total.Add(r.Reading.Delta.Neg())
		}
	}
	return total
}
