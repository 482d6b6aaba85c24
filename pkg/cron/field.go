package cron

import (
	"strconv"
	"strings"
)

// Unit identifies one of the six field-sets of an expression.
type Unit int

const (
	Second Unit = iota
	Minute
	Hour
	DayOfMonth
	Month
	DayOfWeek
)

var unitNames = [...]string{"second", "minute", "hour", "day-of-month", "month", "day-of-week"}

func (u Unit) String() string {
	if u < Second || u > DayOfWeek {
		return "unknown"
	}
	return unitNames[u]
}

// bounds returns the inclusive range of values a unit may hold.
func (u Unit) bounds() (int, int) {
	switch u {
	case Second, Minute:
		return 0, 59
	case Hour:
		return 0, 23
	case DayOfMonth:
		return 1, 31
	case Month:
		return 1, 12
	case DayOfWeek:
		return 0, 6
	default:
		return 0, 0
	}
}

const wildcard = "*"

// field is a non-empty set of cron tokens for a single unit.
type field []string

func wildcardField() field {
	return field{wildcard}
}

func (f field) isWildcard() bool {
	return len(f) == 1 && f[0] == wildcard
}

func (f field) render() string {
	return strings.Join(f, ",")
}

func (f field) clone() field {
	return append(field(nil), f...)
}

// matches reports whether value satisfies the field-set.
func (f field) matches(value int) bool {
	if f.isWildcard() {
		return true
	}
	for _, tok := range f {
		if matchToken(tok, value) {
			return true
		}
	}
	return false
}

// matchToken evaluates a single token (which may itself be a comma list).
func matchToken(tok string, value int) bool {
	switch {
	case tok == wildcard:
		return true
	case strings.Contains(tok, ","):
		for member := range strings.SplitSeq(tok, ",") {
			if matchToken(member, value) {
				return true
			}
		}
		return false
	case strings.Contains(tok, "/"):
		_, stepStr, _ := strings.Cut(tok, "/")
		step, err := strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return false
		}
		return value%step == 0
	case strings.Contains(tok, "-"):
		lo, hi, ok := parseRange(tok)
		return ok && lo <= value && value <= hi
	default:
		n, err := strconv.Atoi(tok)
		return err == nil && n == value
	}
}

func parseRange(tok string) (int, int, bool) {
	loStr, hiStr, ok := strings.Cut(tok, "-")
	if !ok {
		return 0, 0, false
	}
	lo, err := strconv.Atoi(loStr)
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.Atoi(hiStr)
	if err != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// validToken checks a token against the grammar and the unit's bounds.
func validToken(u Unit, tok string) bool {
	if tok == "" {
		return false
	}
	if tok == wildcard {
		return true
	}
	if strings.Contains(tok, ",") {
		for member := range strings.SplitSeq(tok, ",") {
			if strings.Contains(member, ",") || !validToken(u, member) {
				return false
			}
		}
		return true
	}
	if base, stepStr, ok := strings.Cut(tok, "/"); ok {
		step, err := strconv.Atoi(stepStr)
		if err != nil || step <= 0 {
			return false
		}
		return base == wildcard || (!strings.Contains(base, "/") && validToken(u, base))
	}
	lo, hi := u.bounds()
	if strings.Contains(tok, "-") {
		a, b, ok := parseRange(tok)
		return ok && a <= b && a >= lo && b <= hi
	}
	n, err := strconv.Atoi(tok)
	return err == nil && n >= lo && n <= hi
}
