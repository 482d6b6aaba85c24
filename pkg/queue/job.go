package queue

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/jinzhu/now"

	"github.com/dmitrymomot/jobqueue/pkg/cron"
)

// Job is a single unit of work plus its attempt bookkeeping.
// A Job with a Schedule is a Task.
//
// Adapters store copies. The *Job handed out by Pop or Task is a working
// copy that must be written back with Push or UpdateTask to persist changes.
type Job struct {
	ID             string           `json:"id"`
	Work           WorkUnit         `json:"work"`
	MaxAttempts    uint             `json:"max_attempts,omitempty"`
	Attempts       uint             `json:"attempts"`
	RunUntil       *time.Time       `json:"run_until,omitempty"`
	StartedAt      *time.Time       `json:"started_at,omitempty"`
	CompletedAt    *time.Time       `json:"completed_at,omitempty"`
	FailedAt       *time.Time       `json:"failed_at,omitempty"`
	FailedMessages []Failure        `json:"failed_messages,omitempty"`
	Results        any              `json:"results,omitempty"`
	Schedule       *cron.Expression `json:"schedule,omitempty"`
	Buffer         int              `json:"buffer,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// JobOption configures a job at construction time.
type JobOption func(*Job)

// NewJob creates a job, generating an ID when none is given.
func NewJob(opts ...JobOption) *Job {
	j := &Job{CreatedAt: time.Now()}
	for _, opt := range opts {
		opt(j)
	}
	if j.ID == "" {
		j.ID = newID()
	}
	return j
}

// NewTask creates a job that runs on the given schedule.
func NewTask(schedule *cron.Expression, opts ...JobOption) *Job {
	j := NewJob(opts...)
	j.Schedule = schedule
	return j
}

// WithID sets the job identifier
func WithID(id string) JobOption {
	return func(j *Job) { j.ID = id }
}

// WithMaxAttempts limits how many times the job may run. Zero means unlimited.
func WithMaxAttempts(n uint) JobOption {
	return func(j *Job) { j.MaxAttempts = n }
}

// WithRunUntil sets an absolute expiry
func WithRunUntil(t time.Time) JobOption {
	return func(j *Job) { j.RunUntil = &t }
}

// WithRunFor sets the expiry relative to now
func WithRunFor(d time.Duration) JobOption {
	return func(j *Job) {
		t := time.Now().Add(d)
		j.RunUntil = &t
	}
}

// WithBuffer sets the seconds of slack used when evaluating the schedule
func WithBuffer(seconds int) JobOption {
	return func(j *Job) { j.Buffer = seconds }
}

// WithCallable makes the job invoke fn.
func WithCallable(name string, fn CallableFunc, args ...any) JobOption {
	return func(j *Job) { j.Work = Callable(name, fn, args...) }
}

// WithCommand makes the job invoke a named command of the App.
func WithCommand(name string, args ...any) JobOption {
	return func(j *Job) { j.Work = Command(name, args...) }
}

// WithShell makes the job run a shell command line.
func WithShell(line string) JobOption {
	return func(j *Job) { j.Work = Shell(line) }
}

// WithArgs appends arguments to the current work unit
func WithArgs(args ...any) JobOption {
	return func(j *Job) { j.Work.Args = append(j.Work.Args, args...) }
}

// SetRunUntil parses value as a duration relative to now ("90m", "+2h") or,
// failing that, as a date.
func (j *Job) SetRunUntil(value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidTime)
	}
	if d, err := time.ParseDuration(strings.TrimPrefix(value, "+")); err == nil {
		t := time.Now().Add(d)
		j.RunUntil = &t
		return nil
	}
	t, err := now.Parse(value)
	if err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidTime, value, err)
	}
	j.RunUntil = &t
	return nil
}

// IsTask reports whether the job carries a schedule.
func (j *Job) IsTask() bool {
	return j.Schedule.HasSchedule()
}

func (j *Job) IsExpired() bool {
	return j.RunUntil != nil && j.RunUntil.Before(time.Now())
}

func (j *Job) HasExceededMaxAttempts() bool {
	return j.MaxAttempts > 0 && j.Attempts >= j.MaxAttempts
}

// IsValid gates every execution and re-enqueue.
func (j *Job) IsValid() bool {
	return !j.IsExpired() && !j.HasExceededMaxAttempts()
}

// Start records the start of an attempt.
func (j *Job) Start() {
	t := time.Now()
	j.StartedAt = &t
}

// Complete records a successful attempt.
func (j *Job) Complete() {
	t := time.Now()
	j.CompletedAt = &t
	j.Attempts++
}

// Fail records a failed attempt and appends message to the failure log.
func (j *Job) Fail(message string) {
	t := time.Now()
	j.FailedAt = &t
	j.Attempts++
	if message != "" {
		j.FailedMessages = append(j.FailedMessages, Failure{At: t, Message: message})
	}
}

// HasFailed reports whether the latest attempt ended in failure.
func (j *Job) HasFailed() bool {
	if j.FailedAt == nil {
		return false
	}
	return j.CompletedAt == nil || !j.FailedAt.Before(*j.CompletedAt)
}

// IsDue evaluates the schedule with the job's own buffer.
func (j *Job) IsDue(t time.Time) bool {
	return j.IsDueWithBuffer(t, j.Buffer)
}

func (j *Job) IsDueWithBuffer(t time.Time, buffer int) bool {
	return j.IsTask() && j.Schedule.Evaluate(t, buffer)
}

// Clone returns a deep copy. Results are copied by reference.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	c.Work = j.Work.clone()
	c.RunUntil = cloneTime(j.RunUntil)
	c.StartedAt = cloneTime(j.StartedAt)
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.FailedAt = cloneTime(j.FailedAt)
	c.FailedMessages = slices.Clone(j.FailedMessages)
	c.Schedule = j.Schedule.Clone()
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
