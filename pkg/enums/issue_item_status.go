package enums

import "fmt"

// IssueItemStatus is derived from quantity and returned_quantity and is
// never stored. Transitions only move forward.
type IssueItemStatus string

const (
	IssueItemStatusOutstanding       IssueItemStatus = "outstanding"
	IssueItemStatusPartiallyReturned IssueItemStatus = "partially_returned"
	IssueItemStatusSettled           IssueItemStatus = "settled"
)

var validIssueItemStatuses = []IssueItemStatus{
	IssueItemStatusOutstanding,
	IssueItemStatusPartiallyReturned,
	IssueItemStatusSettled,
}

func (s IssueItemStatus) IsValid() bool {
	for _, candidate := range validIssueItemStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseIssueItemStatus(value string) (IssueItemStatus, error) {
	for _, candidate := range validIssueItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid issue item status %q", value)
}

// IssueItemStatusFor derives the status of an item from its counters.
func IssueItemStatusFor(quantity, returned int) IssueItemStatus {
	switch {
	case returned >= quantity:
		return IssueItemStatusSettled
	case returned > 0:
		return IssueItemStatusPartiallyReturned
	default:
		return IssueItemStatusOutstanding
	}
}

// rank orders statuses along the forward-only lifecycle.
func (s IssueItemStatus) rank() int {
	switch s {
	case IssueItemStatusOutstanding:
		return 0
	case IssueItemStatusPartiallyReturned:
		return 1
	case IssueItemStatusSettled:
		return 2
	}
	return -1
}

// CanTransitionTo reports whether moving from s to next keeps the
// lifecycle monotonic. Staying in the same status is allowed.
func (s IssueItemStatus) CanTransitionTo(next IssueItemStatus) bool {
	if !s.IsValid() || !next.IsValid() {
		return false
	}
	return next.rank() >= s.rank()
}
