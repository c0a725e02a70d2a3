package push

import (
	"fmt"
	"strings"
)

// Priority is the urgency class of a push message.
//
// The zero value is PriorityNormal, so envelopes built without an explicit
// priority are treated as normal traffic.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityUrgent
	PriorityRoutine
)

// Rank orders priorities by urgency: urgent 2, normal 1, routine 0.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 2
	case PriorityRoutine:
		return 0
	default:
		return 1
	}
}

// MoreUrgentThan reports whether p outranks other.
func (p Priority) MoreUrgentThan(other Priority) bool {
	return p.Rank() > other.Rank()
}

func (p Priority) String() string {
	switch p {
	case PriorityUrgent:
		return "URGENT"
	case PriorityNormal:
		return "NORMAL"
	case PriorityRoutine:
		return "ROUTINE"
	default:
		return fmt.Sprintf("Priority(%d)", int(p))
	}
}

// ParsePriority converts a case-insensitive name back to a Priority.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "URGENT":
		return PriorityUrgent, nil
	case "NORMAL":
		return PriorityNormal, nil
	case "ROUTINE":
		return PriorityRoutine, nil
	default:
		return PriorityNormal, fmt.Errorf("%w: %q", ErrUnknownPriority, s)
	}
}
