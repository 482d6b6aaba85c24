// Package cron parses and evaluates cron-like schedule expressions with an
// optional leading seconds field and a tolerance buffer.
//
// An Expression holds six ordered field-sets: seconds, minutes, hours,
// day-of-month, month and day-of-week. Five-field strings are standard cron;
// six-field strings put seconds first and enable sub-minute scheduling.
//
// Each field is either "*", an integer, a comma list, an inclusive "lo-hi"
// range, or a step expression ("*/n" or "v/n"). Step expressions match when
// the value is divisible by the step; the part before the slash is ignored.
//
// # Evaluation
//
// Evaluate answers "is this instant due" and takes a buffer in seconds:
//
//   - buffer == 0 matches only second 0 of a matching minute
//   - buffer in 1..59 matches during the first buffer seconds of the minute
//   - buffer < 0 ignores the seconds component entirely
//
// Six-field expressions match on all six fields and ignore the buffer.
//
// # Usage
//
//	expr, err := cron.Parse("*/5 8-18 * * 1-5")
//	if err != nil {
//	    return err
//	}
//	if expr.Evaluate(time.Now(), 10) {
//	    // due
//	}
//
//	daily := cron.DailyAt(2, 30) // "30 2 * * *"
//	next := daily.Next(time.Now())
//
// # Errors
//
// ErrInvalidSchedule reports an unparsable expression, ErrScheduleNotSet an
// attempt to render an empty expression, and ErrInvalidTime an unparsable time
// string passed to EvaluateString.
package cron
