// Package timeparse resolves the loose time and frequency phrases accepted
// by the command surface into absolute instants or recurrence rules.
//
// All resolution happens in the process-local time zone.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	ErrBadInstant  = errors.New("unparsable date/time")
	ErrPastInstant = errors.New("instant is not in the future")
	// ErrUnsupportedFrequency covers "every <word>" labels that do not
	// normalize to one of the canonical three. The grammar accepts them;
	// no rule derivation exists for them.
	ErrUnsupportedFrequency = errors.New("unsupported frequency")
	ErrNoClockTime          = errors.New("no H:MM clock time found")
)

// Canonical frequency labels.
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
)

// Rule is a normalized recurrence specification at minute granularity.
// DayOfWeek uses Sunday=0. Day fields are meaningful only when their Has
// flag is set.
type Rule struct {
	Hour   int
	Minute int

	DayOfWeek    int
	HasDayOfWeek bool

	DayOfMonth    int
	HasDayOfMonth bool
}

// CronSpec renders the rule as a standard 5-field cron expression.
func (r Rule) CronSpec() string {
	dom := "*"
	if r.HasDayOfMonth {
		dom = strconv.Itoa(r.DayOfMonth)
	}
	dow := "*"
	if r.HasDayOfWeek {
		dow = strconv.Itoa(r.DayOfWeek)
	}
	return fmt.Sprintf("%d %d %s * %s", r.Minute, r.Hour, dom, dow)
}

// instantLayouts are tried in order against the raw expression. A fixed
// list keeps accepted inputs enumerable instead of guessing at arbitrary
// date strings.
var instantLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
	"2006/01/02 15:04",
	"01/02/2006 15:04",
	"Jan 2 2006 15:04",
	"Jan 2, 2006 15:04",
	"2006-01-02",
}

// ResolveInstant parses a date/time literal in the local zone and requires
// it to be strictly after now.
func ResolveInstant(expr string, now time.Time) (time.Time, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return time.Time{}, ErrBadInstant
	}
	for _, layout := range instantLayouts {
		t, err := time.ParseInLocation(layout, s, time.Local)
		if err != nil {
			continue
		}
		if !t.After(now) {
			return time.Time{}, fmt.Errorf("%w: %s", ErrPastInstant, t.Format("2006-01-02 15:04"))
		}
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrBadInstant, expr)
}

// NormalizeFrequency lower-cases and whitespace-normalizes a frequency
// label. Only the canonical three resolve; "every <word>" is accepted
// syntax with no rule mapping, so it fails here.
func NormalizeFrequency(freq string) (string, error) {
	f := strings.ToLower(strings.TrimSpace(freq))
	f = strings.Join(strings.Fields(f), " ")
	switch f {
	case FreqDaily, FreqWeekly, FreqMonthly:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFrequency, freq)
}

var (
	// week order matters: the first name found in the expression wins.
	weekdayNames = []string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

	domOnRe   = regexp.MustCompile(`(?i)\bon\s+(\d{1,2})(st|nd|rd|th)?\b`)
	domBareRe = regexp.MustCompile(`(?i)\b(\d{1,2})(st|nd|rd|th)\b`)
	clockRe   = regexp.MustCompile(`(?i)(\d{1,2}):(\d{2})\s*(am|pm)?`)
)

// ResolveRecurrence derives a Rule from a frequency label and a time
// expression. The H:MM clock sub-match is mandatory; weekday names apply
// only to weekly (default Monday), ordinal day-of-month only to monthly
// (default 1).
func ResolveRecurrence(freq, timeExpr string) (Rule, error) {
	canon, err := NormalizeFrequency(freq)
	if err != nil {
		return Rule{}, err
	}

	hour, minute, err := parseClock(timeExpr)
	if err != nil {
		return Rule{}, err
	}

	rule := Rule{Hour: hour, Minute: minute}
	switch canon {
	case FreqDaily:
		// hour+minute only
	case FreqWeekly:
		rule.DayOfWeek = 1 // Monday
		rule.HasDayOfWeek = true
		if dow, ok := findWeekday(timeExpr); ok {
			rule.DayOfWeek = dow
		}
	case FreqMonthly:
		rule.DayOfMonth = 1
		rule.HasDayOfMonth = true
		if dom, ok := findDayOfMonth(timeExpr); ok {
			rule.DayOfMonth = dom
		}
	}
	return rule, nil
}

func parseClock(expr string) (hour, minute int, err error) {
	m := clockRe.FindStringSubmatch(expr)
	if m == nil {
		return 0, 0, fmt.Errorf("%w in %q", ErrNoClockTime, expr)
	}
	hour, _ = strconv.Atoi(m[1])
	minute, _ = strconv.Atoi(m[2])

	switch strings.ToLower(m[3]) {
	case "pm":
		if hour != 12 {
			hour += 12
		}
	case "am":
		if hour == 12 {
			hour = 0
		}
	}

	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: invalid clock time in %q", ErrNoClockTime, expr)
	}
	return hour, minute, nil
}

func findWeekday(expr string) (int, bool) {
	lower := strings.ToLower(expr)
	for i, name := range weekdayNames {
		if strings.Contains(lower, name) {
			return i, true
		}
	}
	return 0, false
}

func findDayOfMonth(expr string) (int, bool) {
	m := domOnRe.FindStringSubmatch(expr)
	if m == nil {
		m = domBareRe.FindStringSubmatch(expr)
	}
	if m == nil {
		return 0, false
	}
	d, err := strconv.Atoi(m[1])
	if err != nil || d < 1 || d > 31 {
		return 0, false
	}
	return d, true
}
