package models

import (
	"time"

	"github.com/angelmondragon/labstock-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StockMovement records an immutable change to a component's counters.
type StockMovement struct {
	ID             uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ComponentID    *uuid.UUID         `gorm:"column:component_id;type:uuid"`
	ComponentName  string             `gorm:"column:component_name;not null"`
	Type           enums.MovementType `gorm:"column:movement_type;not null"`
	DeltaTotal     int                `gorm:"column:delta_total;not null"`
	DeltaAvailable int                `gorm:"column:delta_available;not null"`
	IssueID        *uuid.UUID         `gorm:"column:issue_id;type:uuid"`
	IssueItemID    *uuid.UUID         `gorm:"column:issue_item_id;type:uuid"`
	AdminID        *uuid.UUID         `gorm:"column:admin_id;type:uuid"`
	CreatedAt      time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
