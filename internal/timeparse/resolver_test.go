package timeparse

import (
	"errors"
	"testing"
	"time"
)

func TestResolveInstant(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.Local)

	tests := []struct {
		name string
		expr string
		want time.Time
		err  error
	}{
		{
			name: "iso datetime",
			expr: "2026-12-20 18:00",
			want: time.Date(2026, 12, 20, 18, 0, 0, 0, time.Local),
		},
		{
			name: "iso with seconds",
			expr: "2026-12-20 18:00:30",
			want: time.Date(2026, 12, 20, 18, 0, 30, 0, time.Local),
		},
		{
			name: "t separator",
			expr: "2026-03-01T09:15",
			want: time.Date(2026, 3, 1, 9, 15, 0, 0, time.Local),
		},
		{
			name: "slash date",
			expr: "2026/03/01 09:15",
			want: time.Date(2026, 3, 1, 9, 15, 0, 0, time.Local),
		},
		{
			name: "us slash date",
			expr: "03/01/2026 09:15",
			want: time.Date(2026, 3, 1, 9, 15, 0, 0, time.Local),
		},
		{
			name: "month name",
			expr: "Dec 20 2026 18:00",
			want: time.Date(2026, 12, 20, 18, 0, 0, 0, time.Local),
		},
		{
			name: "bare date is midnight",
			expr: "2026-06-01",
			want: time.Date(2026, 6, 1, 0, 0, 0, 0, time.Local),
		},
		{
			name: "past instant rejected",
			expr: "2020-01-01 10:00",
			err:  ErrPastInstant,
		},
		{
			name: "exact now rejected",
			expr: "2026-01-01 12:00",
			err:  ErrPastInstant,
		},
		{
			name: "garbage",
			expr: "next tuesday-ish",
			err:  ErrBadInstant,
		},
		{
			name: "empty",
			expr: "   ",
			err:  ErrBadInstant,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveInstant(tt.expr, now)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("ResolveInstant(%q) err = %v, want %v", tt.expr, err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveInstant(%q) err = %v", tt.expr, err)
			}
			if !got.Equal(tt.want) {
				t.Fatalf("ResolveInstant(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestNormalizeFrequency(t *testing.T) {
	t.Parallel()
	for _, ok := range []string{"daily", "  WEEKLY ", "Monthly"} {
		got, err := NormalizeFrequency(ok)
		if err != nil {
			t.Fatalf("NormalizeFrequency(%q) err = %v", ok, err)
		}
		if got != "daily" && got != "weekly" && got != "monthly" {
			t.Fatalf("NormalizeFrequency(%q) = %q", ok, got)
		}
	}
	for _, bad := range []string{"every friday", "every  day", "hourly", ""} {
		if _, err := NormalizeFrequency(bad); !errors.Is(err, ErrUnsupportedFrequency) {
			t.Fatalf("NormalizeFrequency(%q) err = %v, want ErrUnsupportedFrequency", bad, err)
		}
	}
}

func TestResolveRecurrence(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		freq     string
		timeExpr string
		want     Rule
		err      error
	}{
		{
			name:     "daily 24h clock",
			freq:     "daily",
			timeExpr: "09:00",
			want:     Rule{Hour: 9, Minute: 0},
		},
		{
			name:     "daily pm",
			freq:     "daily",
			timeExpr: "6:00 pm",
			want:     Rule{Hour: 18, Minute: 0},
		},
		{
			name:     "midnight is 12am",
			freq:     "daily",
			timeExpr: "12:00 am",
			want:     Rule{Hour: 0, Minute: 0},
		},
		{
			name:     "noon is 12pm",
			freq:     "daily",
			timeExpr: "12:00 pm",
			want:     Rule{Hour: 12, Minute: 0},
		},
		{
			name:     "weekly defaults to monday",
			freq:     "weekly",
			timeExpr: "10:30",
			want:     Rule{Hour: 10, Minute: 30, DayOfWeek: 1, HasDayOfWeek: true},
		},
		{
			name:     "weekly named day",
			freq:     "weekly",
			timeExpr: "friday 10:30",
			want:     Rule{Hour: 10, Minute: 30, DayOfWeek: 5, HasDayOfWeek: true},
		},
		{
			name:     "weekly sunday is zero",
			freq:     "weekly",
			timeExpr: "Sunday 7:00 pm",
			want:     Rule{Hour: 19, Minute: 0, DayOfWeek: 0, HasDayOfWeek: true},
		},
		{
			name:     "monthly defaults to first",
			freq:     "monthly",
			timeExpr: "8:00",
			want:     Rule{Hour: 8, Minute: 0, DayOfMonth: 1, HasDayOfMonth: true},
		},
		{
			name:     "monthly on ordinal",
			freq:     "monthly",
			timeExpr: "on 5th 8:00",
			want:     Rule{Hour: 8, Minute: 0, DayOfMonth: 5, HasDayOfMonth: true},
		},
		{
			name:     "monthly bare ordinal",
			freq:     "monthly",
			timeExpr: "15th 8:00",
			want:     Rule{Hour: 8, Minute: 0, DayOfMonth: 15, HasDayOfMonth: true},
		},
		{
			name:     "monthly out of range falls back",
			freq:     "monthly",
			timeExpr: "on 40 8:00",
			want:     Rule{Hour: 8, Minute: 0, DayOfMonth: 1, HasDayOfMonth: true},
		},
		{
			name:     "every-word label has no rule",
			freq:     "every friday",
			timeExpr: "10:00",
			err:      ErrUnsupportedFrequency,
		},
		{
			name:     "clock time required",
			freq:     "daily",
			timeExpr: "morning",
			err:      ErrNoClockTime,
		},
		{
			name:     "invalid hour",
			freq:     "daily",
			timeExpr: "25:00",
			err:      ErrNoClockTime,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ResolveRecurrence(tt.freq, tt.timeExpr)
			if tt.err != nil {
				if !errors.Is(err, tt.err) {
					t.Fatalf("ResolveRecurrence(%q, %q) err = %v, want %v", tt.freq, tt.timeExpr, err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveRecurrence(%q, %q) err = %v", tt.freq, tt.timeExpr, err)
			}
			if got != tt.want {
				t.Fatalf("ResolveRecurrence(%q, %q) = %+v, want %+v", tt.freq, tt.timeExpr, got, tt.want)
			}
		})
	}
}

func TestCronSpec(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rule Rule
		want string
	}{
		{Rule{Hour: 9, Minute: 0}, "0 9 * * *"},
		{Rule{Hour: 10, Minute: 30, DayOfWeek: 1, HasDayOfWeek: true}, "30 10 * * 1"},
		{Rule{Hour: 8, Minute: 0, DayOfMonth: 5, HasDayOfMonth: true}, "0 8 5 * *"},
		{Rule{Hour: 0, Minute: 0, DayOfWeek: 0, HasDayOfWeek: true}, "0 0 * * 0"},
	}
	for _, tt := range tests {
		if got := tt.rule.CronSpec(); got != tt.want {
			t.Errorf("CronSpec(%+v) = %q, want %q", tt.rule, got, tt.want)
		}
	}
}
