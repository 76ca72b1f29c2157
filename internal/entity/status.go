package entity

import "fmt"

type Status string

const (
	StatusPending     Status = "pending"
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusPaused      Status = "paused"
	StatusCompleted   Status = "completed"
	StatusError       Status = "error"
	StatusCancelled   Status = "cancelled"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusQueued: true,
	},
	StatusQueued: {
		StatusDownloading: true,
		StatusCancelled:   true, // pause or cancel before admission
	},
	StatusDownloading: {
		StatusCompleted: true,
		StatusError:     true,
		StatusPaused:    true,
		StatusCancelled: true,
	},
	StatusPaused: {
		StatusQueued: true, // explicit re-download
	},
	StatusError: {
		StatusQueued: true, // explicit re-download
	},
	// Completed and Cancelled are terminal for the session.
	StatusCompleted: {},
	StatusCancelled: {},
}

func IsKnownStatus(status Status) bool {
	_, ok := allowedTransitions[status]
	return ok
}

func CanTransition(from, to Status) bool {
	next, ok := allowedTransitions[from]
	if !ok {
		return false
	}

	return next[to]
}

// IsTerminal reports whether no further automatic transition is defined.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func Transition(item *Item, to Status) error {
	if !CanTransition(item.Status, to) {
		return fmt.Errorf("invalid item status transition: %q -> %q (item_id=%d)", item.Status, to, item.ID)
	}
	item.Status = to

	return nil
}
