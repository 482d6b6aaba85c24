package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// New returns an expression that matches every minute.
func New() *Expression {
	e := &Expression{set: true}
	for i := range e.fields {
		e.fields[i] = wildcardField()
	}
	return e
}

// ensure turns a zero-value expression into a wildcard one.
func (e *Expression) ensure() {
	if e.set {
		return
	}
	for i := range e.fields {
		e.fields[i] = wildcardField()
	}
	e.hasSeconds = false
	e.set = true
}

// setField replaces the field-set of u. An invalid value leaves the field
// untouched and poisons the expression: Render and Err report it and
// HasSchedule turns false.
func (e *Expression) setField(u Unit, values []string) bool {
	e.ensure()
	if len(values) == 0 {
		e.fields[u] = wildcardField()
		return true
	}
	for _, v := range values {
		if strings.ContainsFunc(v, unicode.IsSpace) || !validToken(u, v) {
			if e.err == nil {
				e.err = fmt.Errorf("%w: bad %s value %q", ErrInvalidSchedule, u, v)
			}
			return false
		}
	}
	e.fields[u] = append(field(nil), values...)
	return true
}

// Seconds sets the seconds field and enables sub-minute precision.
func (e *Expression) Seconds(values ...string) *Expression {
	if e.setField(Second, values) {
		e.hasSeconds = true
	}
	return e
}

// Minutes sets the minutes field.
func (e *Expression) Minutes(values ...string) *Expression {
	e.setField(Minute, values)
	return e
}

// Hours sets the hours field.
func (e *Expression) Hours(values ...string) *Expression {
	e.setField(Hour, values)
	return e
}

// DaysOfMonth sets the day-of-month field.
func (e *Expression) DaysOfMonth(values ...string) *Expression {
	e.setField(DayOfMonth, values)
	return e
}

// Months sets the month field.
func (e *Expression) Months(values ...string) *Expression {
	e.setField(Month, values)
	return e
}

// DaysOfWeek sets the day-of-week field (0 = Sunday).
func (e *Expression) DaysOfWeek(values ...string) *Expression {
	e.setField(DayOfWeek, values)
	return e
}

// Weekdays limits the expression to Monday through Friday.
func (e *Expression) Weekdays() *Expression {
	return e.DaysOfWeek("1-5")
}

// Weekends limits the expression to Saturday and Sunday.
func (e *Expression) Weekends() *Expression {
	return e.DaysOfWeek("0,6")
}

// at pins hours and minutes and resets the calendar fields.
func (e *Expression) at(hour, minute int) *Expression {
	e.Minutes(itoa(minute)).Hours(itoa(hour))
	e.fields[DayOfMonth] = wildcardField()
	e.fields[Month] = wildcardField()
	e.fields[DayOfWeek] = wildcardField()
	return e
}

// EverySecond matches every second.
func EverySecond() *Expression {
	return New().Seconds()
}

// EverySeconds matches every n seconds.
func EverySeconds(n int) *Expression {
	return New().Seconds(step(n))
}

// EveryMinute matches every minute.
func EveryMinute() *Expression {
	return New()
}

// EveryMinutes matches every n minutes.
func EveryMinutes(n int) *Expression {
	return New().Minutes(step(n))
}

// Hourly matches at minute 0 of every hour.
func Hourly() *Expression {
	return HourlyAt(0)
}

// HourlyAt matches at the given minute of every hour.
func HourlyAt(minute int) *Expression {
	return New().Minutes(itoa(minute))
}

// Daily matches at midnight.
func Daily() *Expression {
	return DailyAt(0, 0)
}

// DailyAt matches once a day at hour:minute.
func DailyAt(hour, minute int) *Expression {
	return New().at(hour, minute)
}

// Weekly matches at midnight on the given weekday.
func Weekly(day time.Weekday) *Expression {
	return WeeklyOn(day, 0, 0)
}

// WeeklyOn matches on the given weekday at hour:minute.
func WeeklyOn(day time.Weekday, hour, minute int) *Expression {
	return New().at(hour, minute).DaysOfWeek(itoa(int(day)))
}

// Monthly matches at midnight on the given day of month.
func Monthly(day int) *Expression {
	return MonthlyOn(day, 0, 0)
}

// MonthlyOn matches on the given day of month at hour:minute.
func MonthlyOn(day, hour, minute int) *Expression {
	return New().at(hour, minute).DaysOfMonth(itoa(day))
}

// Yearly matches at midnight on January 1st.
func Yearly() *Expression {
	return Monthly(1).Months("1")
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func step(n int) string {
	if n <= 1 {
		return wildcard
	}
	return "*/" + strconv.Itoa(n)
}
