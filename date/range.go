package date

import (
	"fmt"
	"strings"
)

// Range represents a range of dates, boundaries included.
//
// A zero From or To leaves that side open.
type Range struct{ From, To Date }

// Contains return true date is included in the range (boundaries included)
func (r Range) Contains(date Date) bool {
	if !r.From.IsZero() && date.Before(r.From) {
		return false
	}
	if !r.To.IsZero() && date.After(r.To) {
		return false
	}
	return true
}

// ParseRange parses "from..to" where either side may be empty.
// A single date is the range of that one day.
func ParseRange(str string) (Range, error) {
	if str == "" {
		return Range{}, nil
	}
	from, to, found := strings.Cut(str, "..")
	if !found {
		d, err := Parse(str)
		if err != nil {
			return Range{}, err
		}
		return Range{From: d, To: d}, nil
	}
	var r Range
	var err error
	if from != "" {
		if r.From, err = Parse(from); err != nil {
			return Range{}, err
		}
	}
	if to != "" {
		if r.To, err = Parse(to); err != nil {
			return Range{}, err
		}
	}
	if !r.From.IsZero() && !r.To.IsZero() && r.To.Before(r.From) {
		return Range{}, fmt.Errorf("invalid range %q: %s is before %s", str, r.To, r.From)
	}
	return r, nil
}

func (r Range) String() string {
	var from, to string
	if !r.From.IsZero() {
		from = r.From.String()
	}
	if !r.To.IsZero() {
		to = r.To.String()
	}
	return from + ".." + to
}
