package queue

import (
	"fmt"
	"strings"
	"time"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// Priority is the dequeue ordering carried by an Adapter.
type Priority int

const (
	// FIFO pushes to the tail and pops from the head.
	FIFO Priority = iota
	// FILO pushes to the head and pops from the head.
	FILO
)

// Aliases. LILO behaves exactly like FIFO and LIFO exactly like FILO.
const (
	LILO = FIFO
	LIFO = FILO
)

func (p Priority) String() string {
	switch p {
	case FIFO:
		return "fifo"
	case FILO:
		return "filo"
	default:
		return fmt.Sprintf("priority(%d)", int(p))
	}
}

// Valid checks if the priority is one of the known orderings
func (p Priority) Valid() bool {
	return p == FIFO || p == FILO
}

// ParsePriority accepts fifo, lilo, filo and lifo in any case.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fifo", "lilo":
		return FIFO, nil
	case "filo", "lifo":
		return FILO, nil
	default:
		return FIFO, fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

// Status describes what an adapter holds at a given index.
type Status int

const (
	StatusOpen    Status = 0
	StatusPending Status = 1
	StatusFailed  Status = 2
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Failure is a single entry of a job's failure log.
type Failure struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}
