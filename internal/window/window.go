// Package window selects the listings published on a single calendar date.
package window

import (
	"fmt"
	"time"

	"github.com/maltedev/listing-harvester/internal/models"
)

// Window is one target calendar date in YYYY-MM-DD form.
type Window struct {
	Date string
}

// Yesterday returns the calendar day before now, in now's location.
func Yesterday(now time.Time) Window {
	return Window{Date: now.AddDate(0, 0, -1).Format(time.DateOnly)}
}

// Parse validates a YYYY-MM-DD date.
func Parse(date string) (Window, error) {
	if _, err := time.Parse(time.DateOnly, date); err != nil {
		return Window{}, fmt.Errorf("invalid window date %q: %w", date, err)
	}
	return Window{Date: date}, nil
}

func (w Window) String() string {
	return w.Date
}

// Contains reports whether the record's publish date falls on the window date.
// A record without a publish date is never contained.
func (w Window) Contains(r models.ListingRecord) bool {
	d := r.PublishDate()
	return d != "" && d == w.Date
}

// Filter returns the records published on date, in their original order.
// The input slice and its records are left untouched.
func Filter(records []models.ListingRecord, date string) []models.ListingRecord {
	w := Window{Date: date}
	out := make([]models.ListingRecord, 0, len(records))
	for _, r := range records {
		if w.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}
