package reports

import (
	"context"

	"github.com/angelmondragon/labstock-backend/internal/repo"
	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	"github.com/angelmondragon/labstock-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository runs the read-only queries behind the reports.
type Repository interface {
	ListIssues(ctx context.Context, cursor *pagination.Cursor, limit int) ([]issueRow, error)
	ListIssuesForStudent(ctx context.Context, studentID uuid.UUID) ([]issueRow, error)
	ItemsForIssues(ctx context.Context, issueIDs []uuid.UUID) ([]itemRow, error)
	CountComponents(ctx context.Context) (int64, error)
	CountStudents(ctx context.Context) (int64, error)
	SumOutstanding(ctx context.Context) (int64, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) issues(ctx context.Context) *gorm.DB {
	return r.DB(ctx).
		Table("issues").
		Select("issues.id, issues.issue_timestamp, issues.student_id, students.student_name, students.usn, students.phone").
		Joins("JOIN students ON students.id = issues.student_id")
}

func (r *repository) ListIssues(ctx context.Context, cursor *pagination.Cursor, limit int) ([]issueRow, error) {
	q := r.issues(ctx)
	if cursor != nil {
		q = q.Where("issues.issue_timestamp < ? OR (issues.issue_timestamp = ? AND issues.id < ?)", cursor.At, cursor.At, cursor.ID)
	}
	var rows []issueRow
	err := q.Order("issues.issue_timestamp DESC").Order("issues.id DESC").Limit(limit).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListIssuesForStudent(ctx context.Context, studentID uuid.UUID) ([]issueRow, error) {
	var rows []issueRow
	err := r.issues(ctx).
		Where("issues.student_id = ?", studentID).
		Order("issues.issue_timestamp DESC").
		Order("issues.id DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ItemsForIssues prefers the live component name and falls back to the
// snapshot taken at issue time.
func (r *repository) ItemsForIssues(ctx context.Context, issueIDs []uuid.UUID) ([]itemRow, error) {
	if len(issueIDs) == 0 {
		return nil, nil
	}
	var rows []itemRow
	err := r.DB(ctx).
		Table("issue_items").
		Select("issue_items.id, issue_items.issue_id, issue_items.component_id, COALESCE(components.name, issue_items.component_name) AS component_name, issue_items.quantity, issue_items.returned_quantity").
		Joins("LEFT JOIN components ON components.id = issue_items.component_id").
		Where("issue_items.issue_id IN ?", issueIDs).
		Order("issue_items.issue_id").
		Order("issue_items.line_no ASC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) CountComponents(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Component{}).Count(&count).Error
	return count, err
}

func (r *repository) CountStudents(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Student{}).Count(&count).Error
	return count, err
}

func (r *repository) SumOutstanding(ctx context.Context) (int64, error) {
	var total int64
	err := r.DB(ctx).Model(&models.IssueItem{}).
		Select("COALESCE(SUM(quantity - returned_quantity), 0)").
		Scan(&total).Error
	return total, err
}
