package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Component is a stocked part. AvailableQuantity never exceeds
// TotalQuantity and never drops below zero.
type Component struct {
	ID                uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name              string    `gorm:"column:name;not null;uniqueIndex"`
	TotalQuantity     int       `gorm:"column:total_quantity;not null"`
	AvailableQuantity int       `gorm:"column:available_quantity;not null"`
	Photo1            *string   `gorm:"column:photo1"`
	Photo2            *string   `gorm:"column:photo2"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Component) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Issued returns the units currently out with students.
func (c Component) Issued() int {
	return c.TotalQuantity - c.AvailableQuantity
}
