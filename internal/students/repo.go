package students

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/labstock-backend/internal/repo"
	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists students keyed by USN.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Upsert(ctx context.Context, student models.Student) (*models.Student, error)
	FindByUSN(ctx context.Context, usn string) (*models.Student, error)
	Count(ctx context.Context) (int64, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Rebind(tx)}
}

// Upsert inserts a student or overwrites name and phone of the existing
// row with the same USN. The stored row is returned.
func (r *repository) Upsert(ctx context.Context, student models.Student) (*models.Student, error) {
	student.USN = NormalizeUSN(student.USN)
	student.Name = strings.TrimSpace(student.Name)
	student.Phone = strings.TrimSpace(student.Phone)
	if student.USN == "" || student.Name == "" || student.Phone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "student name, usn and phone are required")
	}

	now := time.Now().UTC()
	student.CreatedAt = now
	student.UpdatedAt = now

	err := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "usn"}},
			DoUpdates: clause.AssignmentColumns([]string{"student_name", "phone", "updated_at"}),
		}).
		Create(&student).Error
	if err != nil {
		return nil, err
	}
	return r.FindByUSN(ctx, student.USN)
}

func (r *repository) FindByUSN(ctx context.Context, usn string) (*models.Student, error) {
	var student models.Student
	err := r.DB(ctx).Where("usn = ?", NormalizeUSN(usn)).Take(&student).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "student not found")
		}
		return nil, err
	}
	return &student, nil
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.DB(ctx).Model(&models.Student{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// NormalizeUSN trims and upper-cases an enrollment number.
func NormalizeUSN(usn string) string {
	return strings.ToUpper(strings.TrimSpace(usn))
}
