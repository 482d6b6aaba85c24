package cron

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/now"
)

const everyMinute = "* * * * *"

// Expression is a parsed cron schedule.
// The zero value holds no schedule; see HasSchedule.
type Expression struct {
	fields     [6]field
	hasSeconds bool
	set        bool
	err        error // first rejected builder value
}

// Parse builds an Expression from a five or six field schedule string.
func Parse(schedule string) (*Expression, error) {
	e := &Expression{}
	if err := e.SetSchedule(schedule); err != nil {
		return nil, err
	}
	return e, nil
}

// MustParse is like Parse but panics on error.
func MustParse(schedule string) *Expression {
	e, err := Parse(schedule)
	if err != nil {
		panic(err)
	}
	return e
}

// SetSchedule replaces the expression with the parsed schedule.
// On failure the current state is left untouched.
func (e *Expression) SetSchedule(schedule string) error {
	tokens := strings.Fields(schedule)

	var parsed [6]field
	hasSeconds := false
	switch len(tokens) {
	case 5:
		parsed[Second] = wildcardField()
		for i, tok := range tokens {
			parsed[Minute+Unit(i)] = field{tok}
		}
	case 6:
		hasSeconds = true
		for i, tok := range tokens {
			parsed[Unit(i)] = field{tok}
		}
	default:
		return fmt.Errorf("%w: expected 5 or 6 fields, got %d in %q", ErrInvalidSchedule, len(tokens), schedule)
	}

	for u, f := range parsed {
		if !validToken(Unit(u), f[0]) {
			return fmt.Errorf("%w: bad %s field %q", ErrInvalidSchedule, Unit(u), f[0])
		}
	}

	e.fields = parsed
	e.hasSeconds = hasSeconds
	e.set = true
	e.err = nil
	return nil
}

// HasSchedule reports whether the expression holds a usable schedule.
// An expression that rejected a builder value has none.
func (e *Expression) HasSchedule() bool {
	return e != nil && e.set && e.err == nil
}

// Err returns the first value rejected by a field setter, if any.
func (e *Expression) Err() error {
	if e == nil {
		return nil
	}
	return e.err
}

// HasSeconds reports whether the expression has sub-minute precision.
func (e *Expression) HasSeconds() bool {
	return e.HasSchedule() && e.hasSeconds
}

// Field returns a copy of the field-set for the given unit.
func (e *Expression) Field(u Unit) []string {
	if !e.HasSchedule() || u < Second || u > DayOfWeek {
		return nil
	}
	return e.fields[u].clone()
}

// Render returns the canonical space-joined schedule string.
func (e *Expression) Render() (string, error) {
	if err := e.Err(); err != nil {
		return "", err
	}
	if !e.HasSchedule() {
		return "", ErrScheduleNotSet
	}
	parts := make([]string, 0, 6)
	start := Minute
	if e.hasSeconds {
		start = Second
	}
	for u := start; u <= DayOfWeek; u++ {
		parts = append(parts, e.fields[u].render())
	}
	return strings.Join(parts, " "), nil
}

// String returns the rendered schedule or an empty string when not set.
func (e *Expression) String() string {
	s, _ := e.Render()
	return s
}

// Clone returns an independent copy of the expression.
func (e *Expression) Clone() *Expression {
	if e == nil {
		return nil
	}
	c := &Expression{hasSeconds: e.hasSeconds, set: e.set, err: e.err}
	for i, f := range e.fields {
		c.fields[i] = f.clone()
	}
	return c
}

// Evaluate reports whether t satisfies the expression.
//
// buffer is the number of seconds into a matching minute that still count as
// due; a negative buffer ignores seconds. Six-field expressions ignore the
// buffer and match the seconds field instead.
func (e *Expression) Evaluate(t time.Time, buffer int) bool {
	if !e.HasSchedule() {
		return false
	}

	second := t.Second()
	if e.hasSeconds {
		return e.matchesMinute(t) && e.fields[Second].matches(second)
	}

	withinBuffer := buffer < 0 || second <= buffer
	if e.String() == everyMinute {
		return withinBuffer
	}
	return e.matchesMinute(t) && withinBuffer
}

// EvaluateString parses value as a time and evaluates it.
func (e *Expression) EvaluateString(value string, buffer int) (bool, error) {
	t, err := now.Parse(value)
	if err != nil {
		return false, fmt.Errorf("%w: %q: %v", ErrInvalidTime, value, err)
	}
	return e.Evaluate(t, buffer), nil
}

// matchesMinute checks every field except seconds.
func (e *Expression) matchesMinute(t time.Time) bool {
	return e.fields[Minute].matches(t.Minute()) &&
		e.fields[Hour].matches(t.Hour()) &&
		e.fields[DayOfMonth].matches(t.Day()) &&
		e.fields[Month].matches(int(t.Month())) &&
		e.fields[DayOfWeek].matches(int(t.Weekday()))
}

// MarshalText implements encoding.TextMarshaler.
func (e *Expression) MarshalText() ([]byte, error) {
	s, err := e.Render()
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *Expression) UnmarshalText(text []byte) error {
	return e.SetSchedule(string(text))
}
