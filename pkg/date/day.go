// Package date implements the UTC calendar day used as the partition key for
// transaction and balance storage.
package date

import (
	"fmt"
	"strings"
	"time"
)

const (
	// Layout is the ISO-8601 date form used in partition keys and payloads.
	Layout = "2006-01-02"

	partitionPrefix = "dt="
)

// Day is a UTC calendar date. The zero value is not a valid day.
type Day struct {
	t time.Time
}

// FromTime truncates t to UTC midnight.
func FromTime(t time.Time) Day {
	u := t.UTC()
	return Day{t: time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// Parse parses an ISO-8601 date, e.g. "2021-11-24".
func Parse(s string) (Day, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return Day{t: t}, nil
}

// MustParse is Parse for hardcoded values; it panics on error.
func MustParse(s string) Day {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Today returns the day that contains now.
func Today(now time.Time) Day {
	return FromTime(now)
}

func (d Day) String() string {
	return d.t.Format(Layout)
}

// Time returns the start of the day (UTC midnight).
func (d Day) Time() time.Time { return d.t }

func (d Day) Next() Day { return Day{t: d.t.AddDate(0, 0, 1)} }
func (d Day) Prev() Day { return Day{t: d.t.AddDate(0, 0, -1)} }

func (d Day) Before(o Day) bool { return d.t.Before(o.t) }
func (d Day) After(o Day) bool  { return d.t.After(o.t) }
func (d Day) Equal(o Day) bool  { return d.t.Equal(o.t) }
func (d Day) IsZero() bool      { return d.t.IsZero() }

// PartitionKey returns the storage path segment for the day, e.g. "dt=2021-11-24".
func (d Day) PartitionKey() string {
	return partitionPrefix + d.String()
}

// ExtractPartitionDay parses the day out of an object key that contains a
// "dt=YYYY-MM-DD" path segment, e.g. "token-holder-balances/dt=2021-11-24/balances.jsonl".
func ExtractPartitionDay(objectKey string) (Day, error) {
	for _, segment := range strings.Split(objectKey, "/") {
		if strings.HasPrefix(segment, partitionPrefix) {
			return Parse(strings.TrimPrefix(segment, partitionPrefix))
		}
	}
	return Day{}, fmt.Errorf("no partition key in object key %q", objectKey)
}

// MarshalJSON renders the day as an ISO-8601 date string.
func (d Day) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// UnmarshalJSON accepts an ISO-8601 date string.
func (d *Day) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
