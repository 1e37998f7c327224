package ledger

import (
	"fmt"

	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/google/uuid"
)

func fieldError(field, msg string) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(map[string]string{field: msg})
}

func insufficientStock(id uuid.UUID, name string, requested, available int, reason string) error {
	label := name
	if label == "" {
		label = id.String()
	}
	details := map[string]any{
		"component_id": id,
		"requested":    requested,
		"available":    available,
	}
	if name != "" {
		details["component_name"] = name
	}
	if reason != "" {
		details["reason"] = reason
	}
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, fmt.Sprintf("insufficient stock for %s", label)).WithDetails(details)
}

func invalidReduction(c *models.Component, newTotal int) error {
	return pkgerrors.New(pkgerrors.CodeInvalidReduction, "cannot reduce below issued quantity").WithDetails(map[string]any{
		"component_id":       c.ID,
		"total_quantity":     c.TotalQuantity,
		"available_quantity": c.AvailableQuantity,
		"issued_quantity":    c.Issued(),
		"new_total_quantity": newTotal,
	})
}

func overReturn(item *models.IssueItem, requested int) error {
	return pkgerrors.New(pkgerrors.CodeOverReturn, "return exceeds remaining quantity").WithDetails(map[string]any{
		"issue_item_id": item.ID,
		"remaining":     item.Remaining(),
		"requested":     requested,
	})
}

func nameTaken(name string) error {
	return pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("component %q already exists", name))
}

// storageError keeps typed errors (not found, validation) and wraps
// anything else as a storage failure.
func storageError(err error, msg string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeStorage, err, msg)
}

// commitError classifies an error surfacing from WithTx. Typed errors come
// from inside the transaction; raw ones come from begin or commit.
func commitError(err error, msg string) error {
	return storageError(err, msg)
}
