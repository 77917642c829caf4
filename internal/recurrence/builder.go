package recurrence

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/teambition/rrule-go"

	"github.com/example/clinic-scheduler/internal/timeconv"
)

// Frequency is a frequency the rule builder can produce.
type Frequency string

const (
	FrequencyWeekly  Frequency = "WEEKLY"
	FrequencyMonthly Frequency = "MONTHLY"
)

// MonthlyPattern selects how a monthly rule picks its day.
type MonthlyPattern string

const (
	// MonthlyByDay repeats on a fixed day of the month.
	MonthlyByDay MonthlyPattern = "day"
	// MonthlyByNthWeekday repeats on e.g. the first Monday or the last Friday.
	MonthlyByNthWeekday MonthlyPattern = "nth_weekday"
)

// OrdinalLast selects the last matching weekday of the month.
const OrdinalLast = -1

const (
	previewCount   = 3
	previewHorizon = 6 // months
)

// Config is the structured form of a rule the builder can produce.
type Config struct {
	Frequency      Frequency
	Interval       int
	Weekdays       []time.Weekday
	MonthlyPattern MonthlyPattern
	MonthDay       int
	Ordinal        int
	OrdinalWeekday time.Weekday
	// Until is an inclusive local date.
	Until *timeconv.Date
}

// ConfigError reports an invalid builder field. It wraps ErrInvalidRule.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("recurrence: %s %s", e.Field, e.Message)
}

// Unwrap exposes ErrInvalidRule to errors.Is.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidRule
}

// DefaultConfig is a weekly rule repeating every week.
func DefaultConfig() Config {
	return Config{Frequency: FrequencyWeekly, Interval: 1}
}

// Validate checks that exactly one day selection matches the frequency.
func (c Config) Validate() error {
	if c.Interval < 1 {
		return &ConfigError{Field: "interval", Message: "must be at least 1"}
	}
	switch c.Frequency {
	case FrequencyWeekly:
		if len(c.Weekdays) == 0 {
			return &ConfigError{Field: "weekdays", Message: "must select at least one weekday"}
		}
		for _, day := range c.Weekdays {
			if day < time.Sunday || day > time.Saturday {
				return &ConfigError{Field: "weekdays", Message: "contains an unknown weekday"}
			}
		}
		if c.MonthlyPattern != "" || c.MonthDay != 0 || c.Ordinal != 0 {
			return &ConfigError{Field: "monthly_pattern", Message: "is only valid for monthly rules"}
		}
	case FrequencyMonthly:
		if len(c.Weekdays) != 0 {
			return &ConfigError{Field: "weekdays", Message: "is only valid for weekly rules"}
		}
		switch c.MonthlyPattern {
		case MonthlyByDay:
			if c.MonthDay < 1 || c.MonthDay > 31 {
				return &ConfigError{Field: "month_day", Message: "must be between 1 and 31"}
			}
			if c.Ordinal != 0 {
				return &ConfigError{Field: "ordinal", Message: "is only valid for the nth_weekday pattern"}
			}
		case MonthlyByNthWeekday:
			if c.MonthDay != 0 {
				return &ConfigError{Field: "month_day", Message: "is only valid for the day pattern"}
			}
			if !validOrdinal(c.Ordinal) {
				return &ConfigError{Field: "ordinal", Message: "must be 1, 2, 3, 4 or last"}
			}
			if c.OrdinalWeekday < time.Sunday || c.OrdinalWeekday > time.Saturday {
				return &ConfigError{Field: "ordinal_weekday", Message: "is an unknown weekday"}
			}
		default:
			return &ConfigError{Field: "monthly_pattern", Message: "must be day or nth_weekday"}
		}
	default:
		return &ConfigError{Field: "frequency", Message: "must be WEEKLY or MONTHLY"}
	}
	if c.Until != nil {
		if _, err := timeconv.ParseDate(c.Until.String()); err != nil {
			return &ConfigError{Field: "until", Message: "is not a valid date"}
		}
	}
	return nil
}

// ToRuleText renders the config as rule text. Weekdays are emitted Monday
// first and deduplicated.
func ToRuleText(c Config) (string, error) {
	if err := c.Validate(); err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("FREQ=")
	b.WriteString(string(c.Frequency))
	b.WriteString(";INTERVAL=")
	b.WriteString(strconv.Itoa(c.Interval))

	switch c.Frequency {
	case FrequencyWeekly:
		codes := make([]string, 0, len(c.Weekdays))
		for _, day := range normalizeWeekdays(c.Weekdays) {
			codes = append(codes, weekdayCode(day))
		}
		b.WriteString(";BYDAY=")
		b.WriteString(strings.Join(codes, ","))
	case FrequencyMonthly:
		if c.MonthlyPattern == MonthlyByDay {
			b.WriteString(";BYMONTHDAY=")
			b.WriteString(strconv.Itoa(c.MonthDay))
		} else {
			b.WriteString(";BYDAY=")
			b.WriteString(strconv.Itoa(c.Ordinal))
			b.WriteString(weekdayCode(c.OrdinalWeekday))
		}
	}

	if c.Until != nil {
		b.WriteString(";UNTIL=")
		b.WriteString(fmt.Sprintf("%04d%02d%02dT235959Z", c.Until.Year, int(c.Until.Month), c.Until.Day))
	}

	text := b.String()
	if _, err := ParseRule(text); err != nil {
		return "", err
	}
	return text, nil
}

// FromRuleText parses rule text into a Config. Text that cannot be parsed,
// or that uses features the builder cannot express, yields DefaultConfig.
func FromRuleText(text string) Config {
	opt, err := ParseRule(text)
	if err != nil {
		return DefaultConfig()
	}
	if opt.Count != 0 || len(opt.Bysetpos) != 0 || len(opt.Bymonth) != 0 || len(opt.Byyearday) != 0 ||
		len(opt.Byweekno) != 0 || len(opt.Byhour) != 0 || len(opt.Byminute) != 0 || len(opt.Bysecond) != 0 {
		return DefaultConfig()
	}

	cfg := Config{Interval: opt.Interval}
	switch opt.Freq {
	case rrule.WEEKLY:
		if len(opt.Byweekday) == 0 || len(opt.Bymonthday) != 0 {
			return DefaultConfig()
		}
		cfg.Frequency = FrequencyWeekly
		for i := range opt.Byweekday {
			if opt.Byweekday[i].N() != 0 {
				return DefaultConfig()
			}
			cfg.Weekdays = append(cfg.Weekdays, toWeekday(opt.Byweekday[i].Day()))
		}
		cfg.Weekdays = normalizeWeekdays(cfg.Weekdays)
	case rrule.MONTHLY:
		cfg.Frequency = FrequencyMonthly
		switch {
		case len(opt.Bymonthday) == 1 && len(opt.Byweekday) == 0:
			day := opt.Bymonthday[0]
			if day < 1 || day > 31 {
				return DefaultConfig()
			}
			cfg.MonthlyPattern = MonthlyByDay
			cfg.MonthDay = day
		case len(opt.Byweekday) == 1 && len(opt.Bymonthday) == 0:
			n := opt.Byweekday[0].N()
			if !validOrdinal(n) {
				return DefaultConfig()
			}
			cfg.MonthlyPattern = MonthlyByNthWeekday
			cfg.Ordinal = n
			cfg.OrdinalWeekday = toWeekday(opt.Byweekday[0].Day())
		default:
			return DefaultConfig()
		}
	default:
		return DefaultConfig()
	}

	if !opt.Until.IsZero() {
		until := timeconv.DateOf(opt.Until.UTC())
		cfg.Until = &until
	}
	return cfg
}

// WithFrequency switches the config to freq, clearing fields that have no
// meaning for it. Switching to monthly defaults to the anchor's day of month.
func WithFrequency(c Config, freq Frequency, anchor timeconv.Date) Config {
	if c.Frequency == freq {
		return c
	}
	next := Config{Frequency: freq, Interval: c.Interval, Until: c.Until}
	if next.Interval < 1 {
		next.Interval = 1
	}
	switch freq {
	case FrequencyMonthly:
		next.MonthlyPattern = MonthlyByDay
		next.MonthDay = anchor.Day
		if next.MonthDay < 1 || next.MonthDay > 31 {
			next.MonthDay = 1
		}
	case FrequencyWeekly:
		if !anchor.IsZero() {
			next.Weekdays = []time.Weekday{anchor.Weekday()}
		}
	}
	return next
}

// Preview returns up to three upcoming instants of def starting at or after
// now, looking at most six months ahead.
func (e *Engine) Preview(def Definition, now time.Time) ([]time.Time, error) {
	window := Window{Start: now.UTC(), End: now.UTC().AddDate(0, previewHorizon, 0)}
	expansion, err := e.Expand(def, window, previewCount)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(expansion.Instances))
	for _, inst := range expansion.Instances {
		out = append(out, inst.Start)
	}
	return out, nil
}

func validOrdinal(n int) bool {
	return n == OrdinalLast || (n >= 1 && n <= 4)
}

var weekdayCodes = [...]string{"SU", "MO", "TU", "WE", "TH", "FR", "SA"}

func weekdayCode(day time.Weekday) string {
	return weekdayCodes[day]
}

// ParseWeekday parses a two letter weekday code such as "MO".
func ParseWeekday(code string) (time.Weekday, bool) {
	code = strings.ToUpper(strings.TrimSpace(code))
	for i, c := range weekdayCodes {
		if c == code {
			return time.Weekday(i), true
		}
	}
	return time.Sunday, false
}

// WeekdayCode formats a weekday as its two letter code.
func WeekdayCode(day time.Weekday) string {
	if day < time.Sunday || day > time.Saturday {
		return ""
	}
	return weekdayCode(day)
}

// toWeekday maps the rrule weekday index (0 is Monday) to time.Weekday.
func toWeekday(day int) time.Weekday {
	return time.Weekday((day + 1) % 7)
}

func normalizeWeekdays(days []time.Weekday) []time.Weekday {
	set := make(map[time.Weekday]struct{}, len(days))
	out := make([]time.Weekday, 0, len(days))
	for _, day := range days {
		if _, ok := set[day]; ok {
			continue
		}
		set[day] = struct{}{}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool {
		return mondayFirst(out[i]) < mondayFirst(out[j])
	})
	return out
}

func mondayFirst(day time.Weekday) int {
	return (int(day) + 6) % 7
}
