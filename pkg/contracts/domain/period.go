package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Quarter represents a calendar quarter such as 2013Q2
type Quarter struct {
	Year int `json:"year"`
	Q    int `json:"quarter" validate:"min=1,max=4"`
}

// QuarterOf returns the calendar quarter containing t
func QuarterOf(t time.Time) Quarter {
	return Quarter{Year: t.Year(), Q: (int(t.Month())-1)/3 + 1}
}

// ParseQuarter parses labels of the form "2013Q2" (case insensitive)
func ParseQuarter(s string) (Quarter, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	idx := strings.IndexByte(s, 'Q')
	if idx <= 0 || idx == len(s)-1 {
		return Quarter{}, fmt.Errorf("invalid quarter label %q", s)
	}
	year, err := strconv.Atoi(s[:idx])
	if err != nil {
		return Quarter{}, fmt.Errorf("invalid quarter year in %q: %w", s, err)
	}
	q, err := strconv.Atoi(s[idx+1:])
	if err != nil || q < 1 || q > 4 {
		return Quarter{}, fmt.Errorf("invalid quarter number in %q", s)
	}
	return Quarter{Year: year, Q: q}, nil
}

// MustParseQuarter is like ParseQuarter but panics on error.
// Intended for constants and tests.
func MustParseQuarter(s string) Quarter {
	q, err := ParseQuarter(s)
	if err != nil {
		panic(err)
	}
	return q
}

// String returns the quarter label, e.g. "2013Q2"
func (q Quarter) String() string {
	if q.IsZero() {
		return ""
	}
	return fmt.Sprintf("%dQ%d", q.Year, q.Q)
}

// IsZero reports whether the quarter is unset
func (q Quarter) IsZero() bool {
	return q.Year == 0 && q.Q == 0
}

// Index returns a monotonically increasing ordinal for the quarter
func (q Quarter) Index() int {
	return q.Year*4 + q.Q - 1
}

// Sub returns the number of quarters between q and other (q - other)
func (q Quarter) Sub(other Quarter) int {
	return q.Index() - other.Index()
}

// Add returns the quarter n quarters after q
func (q Quarter) Add(n int) Quarter {
	idx := q.Index() + n
	year := idx / 4
	rem := idx % 4
	if rem < 0 {
		rem += 4
		year--
	}
	return Quarter{Year: year, Q: rem + 1}
}

// Before reports whether q is strictly earlier than other
func (q Quarter) Before(other Quarter) bool {
	return q.Index() < other.Index()
}

// Start returns the first day of the quarter in UTC
func (q Quarter) Start() time.Time {
	return time.Date(q.Year, time.Month((q.Q-1)*3+1), 1, 0, 0, 0, 0, time.UTC)
}

// Month represents a calendar month such as 2013-04
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// MonthOf returns the calendar month containing t
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// String returns the month label, e.g. "2013-04"
func (m Month) String() string {
	if m.Year == 0 && m.Month == 0 {
		return ""
	}
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// ParseMonth parses labels of the form "2013-04"
func ParseMonth(s string) (Month, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Month{}, fmt.Errorf("invalid month label %q: %w", s, err)
	}
	return MonthOf(t), nil
}
