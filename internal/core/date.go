package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout      = "2006-01-02"
	dateTimeLayout  = "2006-01-02T15:04"
	monthKeyLayout  = "2006-01"
	timestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Date is the calendar date a transaction occurred on. Plain dates are
// anchored at local midnight.
type Date struct {
	time.Time
}

// NewDate creates a Date at local midnight.
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.Local)}
}

// ParseDate accepts YYYY-MM-DD, YYYY-MM-DDTHH:MM and RFC 3339. RFC 3339
// values keep their written offset.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.ParseInLocation(dateLayout, s, time.Local); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.ParseInLocation(dateTimeLayout, s, time.Local); err == nil {
		return Date{Time: t}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return Date{Time: t}, nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// MonthKey returns the "YYYY-MM" bucket of the date.
func (d Date) MonthKey() string {
	return d.Format(monthKeyLayout)
}

func (d Date) isMidnight() bool {
	h, m, s := d.Clock()
	return h == 0 && m == 0 && s == 0 && d.Nanosecond() == 0
}

// String writes local midnights as a bare date and everything else as RFC 3339
// with its offset, so ParseDate returns the same instant.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	if d.Location() == time.Local && d.isMidnight() {
		return d.Format(dateLayout)
	}
	return d.Format(time.RFC3339Nano)
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDate, err)
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// FormatTimestamp renders t the way createdAt and exportDate are written.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
