package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Student is keyed naturally by USN; name and phone follow the latest issue.
type Student struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name      string    `gorm:"column:student_name;not null"`
	USN       string    `gorm:"column:usn;not null;uniqueIndex"`
	Phone     string    `gorm:"column:phone;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Student) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
