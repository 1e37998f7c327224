package models

import (
	"time"

	"github.com/angelmondragon/labstock-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Issue is one hand-out event. Rows are never updated after insert.
type Issue struct {
	ID        uuid.UUID   `gorm:"column:id;type:uuid;primaryKey"`
	StudentID uuid.UUID   `gorm:"column:student_id;type:uuid;not null"`
	IssuedBy  *uuid.UUID  `gorm:"column:issued_by;type:uuid"`
	IssuedAt  time.Time   `gorm:"column:issue_timestamp;not null"`
	Student   *Student    `gorm:"foreignKey:StudentID"`
	Items     []IssueItem `gorm:"foreignKey:IssueID"`
}

func (i *Issue) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.IssuedAt.IsZero() {
		i.IssuedAt = time.Now().UTC()
	}
	return nil
}

// IssueItem is one component line of an issue. ComponentName is a
// snapshot taken at issue time; ComponentID is cleared if the component
// is later deleted.
type IssueItem struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	IssueID          uuid.UUID  `gorm:"column:issue_id;type:uuid;not null"`
	ComponentID      *uuid.UUID `gorm:"column:component_id;type:uuid"`
	ComponentName    string     `gorm:"column:component_name;not null"`
	LineNo           int        `gorm:"column:line_no;not null"`
	Quantity         int        `gorm:"column:quantity;not null"`
	ReturnedQuantity int        `gorm:"column:returned_quantity;not null;default:0"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *IssueItem) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

func (i IssueItem) Remaining() int {
	return i.Quantity - i.ReturnedQuantity
}

func (i IssueItem) Status() enums.IssueItemStatus {
	return enums.IssueItemStatusFor(i.Quantity, i.ReturnedQuantity)
}
