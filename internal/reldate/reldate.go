// Package reldate turns the site's relative publish phrases ("3 hours ago",
// "منذ 5 ساعات") into absolute timestamps.
package reldate

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	herrors "github.com/maltedev/listing-harvester/pkg/errors"
)

// ErrUnrecognized is returned when a phrase holds no (number, unit) pair.
var ErrUnrecognized = errors.New("unrecognized relative time phrase")

type unit int

const (
	unitSecond unit = iota
	unitMinute
	unitHour
	unitDay
	unitMonth
)

// Alternatives are tried left to right, so month tokens come first and
// longer plural forms precede their singular prefixes.
var phrasePattern = regexp.MustCompile(`(?i)(\d+)\s*(` +
	`months|month|شهور|أشهر|اشهر|شهر|` +
	`days|day|أيام|ايام|يوم|` +
	`hours|hour|hrs|hr|ساعات|ساعة|` +
	`minutes|minute|mins|min|دقائق|دقيقة|` +
	`seconds|second|secs|sec|ثواني|ثوان|ثانية` +
	`)`)

var unitTokens = map[string]unit{
	"months": unitMonth, "month": unitMonth, "شهور": unitMonth, "أشهر": unitMonth, "اشهر": unitMonth, "شهر": unitMonth,
	"days": unitDay, "day": unitDay, "أيام": unitDay, "ايام": unitDay, "يوم": unitDay,
	"hours": unitHour, "hour": unitHour, "hrs": unitHour, "hr": unitHour, "ساعات": unitHour, "ساعة": unitHour,
	"minutes": unitMinute, "minute": unitMinute, "mins": unitMinute, "min": unitMinute, "دقائق": unitMinute, "دقيقة": unitMinute,
	"seconds": unitSecond, "second": unitSecond, "secs": unitSecond, "sec": unitSecond, "ثواني": unitSecond, "ثوان": unitSecond, "ثانية": unitSecond,
}

var digitFolder = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
	"۰", "0", "۱", "1", "۲", "2", "۳", "3", "۴", "4",
	"۵", "5", "۶", "6", "۷", "7", "۸", "8", "۹", "9",
)

// Normalize returns now minus the elapsed time described by phrase.
// Months are subtracted on the calendar and clamped to the last day of the
// target month. The result depends only on phrase and now.
func Normalize(phrase string, now time.Time) (time.Time, error) {
	folded := digitFolder.Replace(phrase)

	m := phrasePattern.FindStringSubmatch(folded)
	if m == nil {
		return time.Time{}, herrors.NewParse("normalize relative date", fmt.Errorf("%w: %q", ErrUnrecognized, phrase))
	}

	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, herrors.NewParse("normalize relative date", fmt.Errorf("%w: %q", ErrUnrecognized, phrase))
	}

	u, ok := unitTokens[strings.ToLower(m[2])]
	if !ok {
		return time.Time{}, herrors.NewParse("normalize relative date", fmt.Errorf("%w: %q", ErrUnrecognized, phrase))
	}

	switch u {
	case unitSecond:
		return now.Add(-time.Duration(n) * time.Second), nil
	case unitMinute:
		return now.Add(-time.Duration(n) * time.Minute), nil
	case unitHour:
		return now.Add(-time.Duration(n) * time.Hour), nil
	case unitDay:
		return now.AddDate(0, 0, -n), nil
	default:
		return SubtractMonths(now, n), nil
	}
}

// SubtractMonths moves t back n calendar months, keeping the time of day.
// When the day does not exist in the target month it is clamped to the
// month's last day, so 31 March minus one month is the end of February.
func SubtractMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	hour, min, sec := t.Clock()

	first := time.Date(year, month-time.Month(n), 1, 0, 0, 0, 0, t.Location())
	if last := daysIn(first.Year(), first.Month(), t.Location()); day > last {
		day = last
	}
	return time.Date(first.Year(), first.Month(), day, hour, min, sec, t.Nanosecond(), t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
