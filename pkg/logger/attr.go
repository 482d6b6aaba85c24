package logger

import (
	"log/slog"
	"strconv"
)

// Group creates a slog group attribute from the provided attributes.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}

// Errors groups multiple non-nil errors under the key "errors".
// If all errors are nil, it returns an empty Attr.
func Errors(errs ...error) slog.Attr {
	as := make([]slog.Attr, 0, len(errs))
	for i, err := range errs {
		if err != nil {
			as = append(as, slog.Any(strconv.Itoa(i), err))
		}
	}
	if len(as) == 0 {
		return slog.Attr{}
	}
	return slog.Attr{Key: "errors", Value: slog.GroupValue(as...)}
}

// Error creates an attribute for a single error under the key "error".
// If err is nil, it returns an empty Attr.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// JobID records the job identifier under the key "job_id".
// If id is empty, it returns an empty Attr.
func JobID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("job_id", id)
}

// QueueName records the queue name under the key "queue".
func QueueName(name string) slog.Attr {
	return slog.String("queue", name)
}

// Attempts records the attempt counter under the key "attempts".
func Attempts(n uint) slog.Attr {
	return slog.Uint64("attempts", uint64(n))
}

// Schedule records a cron schedule under the key "schedule".
// If schedule is empty, it returns an empty Attr.
func Schedule(schedule string) slog.Attr {
	if schedule == "" {
		return slog.Attr{}
	}
	return slog.String("schedule", schedule)
}

// Driver records the storage driver under the key "driver".
func Driver(name string) slog.Attr {
	return slog.String("driver", name)
}

// Duration records a duration under the key "duration".
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}

// Component records the component name under the key "component".
func Component(name string) slog.Attr {
	return slog.String("component", name)
}
