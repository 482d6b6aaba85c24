package cron

import "errors"

var (
	// ErrInvalidSchedule is returned when a schedule string cannot be parsed
	ErrInvalidSchedule = errors.New("invalid cron schedule")

	// ErrScheduleNotSet is returned when rendering an expression that holds no schedule
	ErrScheduleNotSet = errors.New("cron schedule is not set")

	// ErrInvalidTime is returned when a time string cannot be parsed for evaluation
	ErrInvalidTime = errors.New("invalid time value")
)
