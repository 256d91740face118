package fees

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH - a calendar month, normalized to first-of-month
// =============================================================================

// Month is the billing period. All period inputs are normalized through this
// type so the engine never depends on "current date" defaults.
type Month struct {
	Year  int
	Month time.Month
}

const monthLayout = "2006-01"

// ParseMonth parses "YYYY-MM". Anything else unwraps to ErrInvalidArgument.
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse(monthLayout, s)
	if err != nil {
		return Month{}, &ValidationError{Field: "month", Message: fmt.Sprintf("invalid month %q (use YYYY-MM)", s)}
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// MonthOf normalizes an arbitrary date to its month.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Start returns the first instant of the month (UTC).
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last day of the month (UTC, midnight).
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, -1)
}

func (m Month) Next() Month { return MonthOf(m.Start().AddDate(0, 1, 0)) }
func (m Month) Prev() Month { return MonthOf(m.Start().AddDate(0, -1, 0)) }

func (m Month) Before(other Month) bool { return m.Start().Before(other.Start()) }
func (m Month) After(other Month) bool  { return m.Start().After(other.Start()) }
func (m Month) Equal(other Month) bool  { return m.Year == other.Year && m.Month == other.Month }
func (m Month) IsZero() bool            { return m.Year == 0 }

func (m Month) String() string { return m.Start().Format(monthLayout) }

// MarshalText/UnmarshalText make Month render as "YYYY-MM" in JSON,
// including inside persisted breakdown documents.
func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(b []byte) error {
	parsed, err := ParseMonth(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
