package admins

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/angelmondragon/labstock-backend/internal/repo"
	"github.com/angelmondragon/labstock-backend/pkg/db"
	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const usernameConstraint = "admins_username_key"

// Repository persists admin accounts.
type Repository interface {
	Count(ctx context.Context) (int64, error)
	Create(ctx context.Context, admin *models.Admin) error
	FindByUsername(ctx context.Context, username string) (*models.Admin, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Admin, error)
	UpdateCredentials(ctx context.Context, id uuid.UUID, changes CredentialChanges) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
}

// CredentialChanges lists the columns to overwrite; nil fields are kept.
type CredentialChanges struct {
	Username     *string
	PasswordHash *string
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Admin{}).Count(&count).Error
	return count, err
}

// Create inserts an admin; a taken username surfaces as CONFLICT.
func (r *repository) Create(ctx context.Context, admin *models.Admin) error {
	admin.Username = NormalizeUsername(admin.Username)
	if err := r.DB(ctx).Create(admin).Error; err != nil {
		if db.IsUniqueViolation(err, usernameConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "username already taken")
		}
		return err
	}
	return nil
}

func (r *repository) FindByUsername(ctx context.Context, username string) (*models.Admin, error) {
	var admin models.Admin
	if err := r.DB(ctx).Where("username = ?", NormalizeUsername(username)).Take(&admin).Error; err != nil {
		return nil, notFound(err)
	}
	return &admin, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Admin, error) {
	var admin models.Admin
	if err := r.DB(ctx).Where("id = ?", id).Take(&admin).Error; err != nil {
		return nil, notFound(err)
	}
	return &admin, nil
}

func (r *repository) UpdateCredentials(ctx context.Context, id uuid.UUID, changes CredentialChanges) error {
	updates := map[string]any{"updated_at": time.Now().UTC()}
	if changes.Username != nil {
		updates["username"] = NormalizeUsername(*changes.Username)
	}
	if changes.PasswordHash != nil {
		updates["password_hash"] = *changes.PasswordHash
	}
	res := r.DB(ctx).Model(&models.Admin{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		if db.IsUniqueViolation(res.Error, usernameConstraint) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, res.Error, "username already taken")
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "admin not found")
	}
	return nil
}

func (r *repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.DB(ctx).
		Model(&models.Admin{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// NormalizeUsername trims and lower-cases a login name.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "admin not found")
	}
	return err
}
