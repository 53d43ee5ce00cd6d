package orders

import "errors"

type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusDeclined  Status = "declined"
)

var ErrInvalidTransition = errors.New("invalid status transition")

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCompleted: true, StatusDeclined: true},
	StatusCompleted: {},
	StatusDeclined:  {},
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool { return s.Valid() && len(validNext[s]) == 0 }

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
