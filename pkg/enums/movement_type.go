package enums

import "fmt"

// MovementType classifies a stock_movements row.
type MovementType string

const (
	MovementTypeRestock MovementType = "restock"
	MovementTypeResize  MovementType = "resize"
	MovementTypeIssue   MovementType = "issue"
	MovementTypeReturn  MovementType = "return"
)

var validMovementTypes = []MovementType{
	MovementTypeRestock,
	MovementTypeResize,
	MovementTypeIssue,
	MovementTypeReturn,
}

// IsValid reports whether the value matches a known movement type.
func (t MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseMovementType converts raw input into MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
