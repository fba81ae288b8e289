package sink

import "github.com/sirupsen/logrus"

// Priority is a scheduling hint for the sink's dedicated OS thread.
type Priority int

const (
	// PriorityLowest is used while idle-polling an empty queue.
	PriorityLowest Priority = iota
	// PriorityBelowNormal is used while pacing between frames.
	PriorityBelowNormal
	// PriorityNormal is the thread's default.
	PriorityNormal
	// PriorityAboveNormal is used while a frame is being dispatched.
	PriorityAboveNormal
)

// String returns the name of the priority level.
func (p Priority) String() string {
	switch p {
	case PriorityLowest:
		return "lowest"
	case PriorityBelowNormal:
		return "below_normal"
	case PriorityNormal:
		return "normal"
	case PriorityAboveNormal:
		return "above_normal"
	default:
		return "unknown"
	}
}

// niceness maps a priority to a Unix nice value.
func (p Priority) niceness() int {
	switch p {
	case PriorityLowest:
		return 19
	case PriorityBelowNormal:
		return 5
	case PriorityAboveNormal:
		return -5
	default:
		return 0
	}
}

// priorityHints applies Priority levels to the calling OS thread.
//
// Raising priority needs privileges on most systems, so the controller
// probes once and turns itself into a no-op when the platform refuses.
// The bounded sleeps of the scheduler keep idle CPU use low either way.
type priorityHints struct {
	enabled bool
	current Priority
}

// newPriorityHints probes the platform from the calling thread.
func newPriorityHints(requested bool) *priorityHints {
	h := &priorityHints{current: PriorityNormal}
	if !requested {
		return h
	}

	if err := setThreadPriority(PriorityAboveNormal); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "newPriorityHints",
			"error":    err.Error(),
		}).Debug("Thread priority hints unavailable, relying on bounded sleeps")
		return h
	}

	h.enabled = true
	h.current = PriorityAboveNormal
	return h
}

// set moves the thread to level p. Failures disable further hints.
func (h *priorityHints) set(p Priority) {
	if !h.enabled || h.current == p {
		return
	}
	if err := setThreadPriority(p); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "priorityHints.set",
			"priority": p.String(),
			"error":    err.Error(),
		}).Debug("Disabling thread priority hints")
		h.enabled = false
		return
	}
	h.current = p
}
