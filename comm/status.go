package comm

import (
	"fmt"
)

// Constants

// Status is the protocol-agnostic outcome code a replica answers
// a sync message or client operation with.
type Status string

const (
	StatusCreated    Status = "accepted-created"
	StatusReplaced   Status = "accepted-replaced"
	StatusDeleted    Status = "accepted-deleted"
	StatusFound      Status = "accepted-found"
	StatusNotFound   Status = "rejected-notfound"
	StatusCausality  Status = "rejected-causality"
	StatusInvalid    Status = "rejected-invalid"
	StatusUnexpected Status = "fatal-unexpected"
)

// Functions

// Accepted reports whether this status marks a successfully
// applied operation.
func (s Status) Accepted() bool {

	switch s {
	case StatusCreated, StatusReplaced, StatusDeleted, StatusFound:
		return true
	}

	return false
}

// ParseStatus validates a received status line against the set
// of defined outcome codes.
func ParseStatus(raw string) (Status, error) {

	switch Status(raw) {
	case StatusCreated, StatusReplaced, StatusDeleted, StatusFound,
		StatusNotFound, StatusCausality, StatusInvalid, StatusUnexpected:
		return Status(raw), nil
	}

	return "", fmt.Errorf("unknown status line '%s'", raw)
}
