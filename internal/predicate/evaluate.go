package predicate

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Subject is the view of a transaction a predicate is evaluated against.
// Nil fields are absent: a leaf predicate over an absent field is false.
type Subject struct {
	Description *string
	Amount      *decimal.Decimal
	Date        *time.Time
}

// Matches reports whether the predicate holds for the subject. It is total:
// malformed nodes, unknown operators, type mismatches, and bad regular
// expressions all evaluate to false rather than erroring.
func (p Predicate) Matches(s Subject) bool {
	switch p.Kind {
	case KindString:
		return p.matchesString(s)
	case KindNumber:
		return p.matchesNumber(s)
	case KindDate:
		return p.matchesDate(s)
	case KindCompound:
		return p.matchesCompound(s)
	default:
		return false
	}
}

func (p Predicate) matchesString(s Subject) bool {
	var value string
	switch p.Column {
	case ColumnDescription:
		if s.Description == nil {
			return false
		}
		value = *s.Description
	default:
		// amount and date are not strings; anything else is unknown.
		return false
	}

	switch p.Operator {
	case OpContains:
		return strings.Contains(strings.ToLower(value), strings.ToLower(p.Operand))
	case OpEquals:
		return strings.EqualFold(value, p.Operand)
	case OpMatches:
		re, err := regexp.Compile("(?i)" + p.Operand)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	case OpStartsWith:
		return strings.HasPrefix(strings.ToLower(value), strings.ToLower(p.Operand))
	case OpEndsWith:
		return strings.HasSuffix(strings.ToLower(value), strings.ToLower(p.Operand))
	default:
		return false
	}
}

func (p Predicate) matchesNumber(s Subject) bool {
	if p.Column != ColumnAmount || s.Amount == nil || p.Number == nil {
		return false
	}
	// Decimal comparison: equality is exact at the stored precision, never a
	// float round-trip.
	cmp := s.Amount.Cmp(*p.Number)

	switch p.Operator {
	case OpGreaterThan:
		return cmp > 0
	case OpLessThan:
		return cmp < 0
	case OpGreaterThanOrEqual:
		return cmp >= 0
	case OpLessThanOrEqual:
		return cmp <= 0
	case OpEquals:
		return cmp == 0
	default:
		return false
	}
}

func (p Predicate) matchesDate(s Subject) bool {
	if p.Column != ColumnDate || s.Date == nil {
		return false
	}
	value := truncateToDate(*s.Date)

	if p.Operator == OpDayOfWeek {
		return strings.EqualFold(value.Weekday().String(), p.Operand)
	}

	operand, err := ParseDate(p.Operand)
	if err != nil {
		return false
	}

	switch p.Operator {
	case OpAfter:
		return value.After(operand)
	case OpBefore:
		return value.Before(operand)
	case OpOn:
		return value.Equal(operand)
	default:
		return false
	}
}

func (p Predicate) matchesCompound(s Subject) bool {
	switch p.Operator {
	case OpAnd:
		for _, child := range p.Children {
			if !child.Matches(s) {
				return false
			}
		}
		return true
	case OpOr:
		for _, child := range p.Children {
			if child.Matches(s) {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// dateLayouts are the calendar-date formats accepted anywhere a rule operand
// or an import row carries a date.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	time.RFC3339,
}

// ParseDate parses a flexible calendar-date string and truncates it to
// midnight UTC. The same layouts are accepted by the CSV import pipeline.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return truncateToDate(t), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
