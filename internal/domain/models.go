package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// MeterReading is a successful per-meter snapshot taken during a balance
// check. Prior, Delta and DeltaPercent are nil when no sample exists within
// the 24h lookback; DeltaPercent is additionally nil when the prior balance
// is zero.
type MeterReading struct {
	Balance      decimal.Decimal
	MinBalance   decimal.Decimal
	Prior        *decimal.Decimal
	Delta        *decimal.Decimal
	DeltaPercent *decimal.Decimal
	Alert        bool
	CheckedAt    time.Time
}

// MeterResult is the per-meter outcome of a balance check. Exactly one of
// Reading and Err is set: a meter either reports a full reading or an error,
// never both.
type MeterResult struct {
	Name    string
	Number  string
	Reading *MeterReading
	Err     string
}

// Failed reports whether the meter's own scrape failed.
func (r MeterResult) Failed() bool {
	return r.Reading == nil
}

// OkResult builds a successful result.
func OkResult(name, number string, reading MeterReading) MeterResult {
	return MeterResult{Name: name, Number: number, Reading: &reading}
}

// ErrResult builds a failed result.
func ErrResult(name, number, message string) MeterResult {
	return MeterResult{Name: name, Number: number, Err: message}
}

// UsageDay is one day of reconstructed consumption. Usage is never negative:
// recharges contribute zero for their interval.
type UsageDay struct {
	Date  string // YYYY-MM-DD in the reporting timezone
	Usage decimal.Decimal
}

// UsageReport is the per-day usage for a reporting window, aggregated across
// all of a user's meters, in ascending date order.
type UsageReport struct {
	Days       []UsageDay
	Total      decimal.Decimal
	MonthLabel string
	Start      time.Time
}

// Intent is the structured interpretation of a free-text message. A nil
// *Intent from the classifier means the deterministic routing applies.
type Intent struct {
	Name        string
	MeterName   string
	MeterNumber string
	Response    string
}

// Known intent names produced by the classifier.
const (
	IntentStart         = "START"
	IntentHelp          = "HELP"
	IntentListMeters    = "LIST_METERS"
	IntentAddMeter      = "ADD_METER"
	IntentCheckBalances = "CHECK_BALANCES"
	IntentRemoveMeter   = "REMOVE_METER"
	IntentToggleRemind  = "TOGGLE_REMINDER"
	IntentUsageReport   = "USAGE_REPORT"
	IntentSmallTalk     = "SMALL_TALK"
	IntentUnknown       = "UNKNOWN"
)
