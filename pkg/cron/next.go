package cron

import (
	"strconv"
	"strings"
	"time"

	robfig "github.com/robfig/cron/v3"
)

// maxNextCandidates bounds the search in Next.
const maxNextCandidates = 4096

var standardParser = robfig.NewParser(
	robfig.SecondOptional | robfig.Minute | robfig.Hour | robfig.Dom | robfig.Month | robfig.Dow,
)

// Next returns the first instant strictly after from that the expression
// matches with a zero buffer. It returns the zero time if no such instant
// exists within the search bound.
//
// robfig/cron produces candidate instants; they are filtered through Evaluate
// because robfig treats a restricted day-of-month and day-of-week as
// alternatives while this package requires both.
func (e *Expression) Next(from time.Time) time.Time {
	spec, ok := e.standardSpec()
	if !ok {
		return time.Time{}
	}
	sched, err := standardParser.Parse(spec)
	if err != nil {
		return time.Time{}
	}

	t := from
	for range maxNextCandidates {
		t = sched.Next(t)
		if t.IsZero() {
			return t
		}
		if e.Evaluate(t, 0) {
			return t
		}
		if !e.matchesDay(t) {
			// skip the rest of a day that cannot match
			t = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, t.Location()).Add(-time.Second)
		}
	}
	return time.Time{}
}

func (e *Expression) matchesDay(t time.Time) bool {
	return e.fields[DayOfMonth].matches(t.Day()) &&
		e.fields[Month].matches(int(t.Month())) &&
		e.fields[DayOfWeek].matches(int(t.Weekday()))
}

// standardSpec translates the expression into robfig syntax with identical
// per-field semantics. ok is false when some field can never match.
func (e *Expression) standardSpec() (string, bool) {
	if !e.HasSchedule() {
		return "", false
	}
	parts := make([]string, 0, 6)
	secondField := field{"0"}
	if e.hasSeconds {
		secondField = e.fields[Second]
	}
	for u := Second; u <= DayOfWeek; u++ {
		f := e.fields[u]
		if u == Second {
			f = secondField
		}
		s, ok := translateField(u, f)
		if !ok {
			return "", false
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " "), true
}

func translateField(u Unit, f field) (string, bool) {
	if f.isWildcard() {
		return wildcard, true
	}
	out := make([]string, 0, len(f))
	for _, tok := range f {
		for member := range strings.SplitSeq(tok, ",") {
			if s, ok := translateToken(u, member); ok {
				out = append(out, s)
			}
		}
	}
	if len(out) == 0 {
		return "", false
	}
	return strings.Join(out, ","), true
}

// translateToken rewrites step tokens, whose base is ignored here, into the
// equivalent robfig range so that both agree on "value divisible by step".
func translateToken(u Unit, tok string) (string, bool) {
	_, stepStr, isStep := strings.Cut(tok, "/")
	if !isStep {
		return tok, true
	}
	n, err := strconv.Atoi(stepStr)
	if err != nil || n <= 0 {
		return "", false
	}
	lo, hi := u.bounds()
	if lo == 0 {
		return "*/" + stepStr, true
	}
	// one-based units: the first multiple of n is n itself
	if n > hi {
		return "", false
	}
	return strconv.Itoa(n) + "-" + strconv.Itoa(hi) + "/" + stepStr, true
}
