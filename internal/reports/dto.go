package reports

import (
	"time"

	"github.com/angelmondragon/labstock-backend/pkg/enums"
	"github.com/angelmondragon/labstock-backend/pkg/pagination"
	"github.com/google/uuid"
)

// StudentSummary is the student block embedded in history rows.
type StudentSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"student_name"`
	USN   string    `json:"usn"`
	Phone string    `json:"phone"`
}

// TransactionItem is one issued line with its computed remaining.
// ComponentID is nil once the component has been deleted.
type TransactionItem struct {
	ID               uuid.UUID             `json:"issue_item_id"`
	ComponentID      *uuid.UUID            `json:"component_id"`
	ComponentName    string                `json:"component_name"`
	Quantity         int                   `json:"quantity"`
	ReturnedQuantity int                   `json:"returned_quantity"`
	Remaining        int                   `json:"remaining"`
	Status           enums.IssueItemStatus `json:"status"`
}

// Transaction is an issue with its student and items.
type Transaction struct {
	IssueID        uuid.UUID         `json:"issue_id"`
	IssuedAt       time.Time         `json:"issue_timestamp"`
	Student        StudentSummary    `json:"student"`
	Items          []TransactionItem `json:"items"`
	TotalRemaining int               `json:"total_remaining"`
}

type TransactionPage struct {
	Transactions []Transaction   `json:"transactions"`
	Page         pagination.Page `json:"page"`
}

type StudentHistory struct {
	Student          StudentSummary `json:"student"`
	Issues           []Transaction  `json:"issues"`
	TotalOutstanding int            `json:"total_outstanding"`
}

// DashboardSummary backs the landing page counters. TotalOut is the sum
// of remaining over every issue item.
type DashboardSummary struct {
	TotalComponents int64 `json:"total_components"`
	TotalOut        int64 `json:"total_out"`
	TotalStudents   int64 `json:"total_students"`
}

type issueRow struct {
	ID        uuid.UUID `gorm:"column:id"`
	IssuedAt  time.Time `gorm:"column:issue_timestamp"`
	StudentID uuid.UUID `gorm:"column:student_id"`
	Name      string    `gorm:"column:student_name"`
	USN       string    `gorm:"column:usn"`
	Phone     string    `gorm:"column:phone"`
}

type itemRow struct {
	ID               uuid.UUID  `gorm:"column:id"`
	IssueID          uuid.UUID  `gorm:"column:issue_id"`
	ComponentID      *uuid.UUID `gorm:"column:component_id"`
	ComponentName    string     `gorm:"column:component_name"`
	Quantity         int        `gorm:"column:quantity"`
	ReturnedQuantity int        `gorm:"column:returned_quantity"`
}
