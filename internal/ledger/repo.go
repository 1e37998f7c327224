package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/labstock-backend/internal/repo"
	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository holds the ledger's storage primitives. Every counter
// mutation is a conditional UPDATE; a false result means the guard did
// not hold and nothing changed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	ListComponents(ctx context.Context) ([]models.Component, error)
	FindComponent(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Component, error)
	FindComponentByName(ctx context.Context, name string) (*models.Component, error)
	LockComponents(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Component, error)
	UpsertStock(ctx context.Context, name string, quantity int, photo1, photo2 *string) (*models.Component, error)
	ResizeComponent(ctx context.Context, id uuid.UUID, newTotal int) (bool, error)
	RenameComponent(ctx context.Context, id uuid.UUID, name string) error
	DeleteComponent(ctx context.Context, id uuid.UUID) error
	CountOutstanding(ctx context.Context, componentID uuid.UUID) (int64, error)
	DecrementAvailable(ctx context.Context, componentID uuid.UUID, quantity int) (bool, error)
	IncrementAvailable(ctx context.Context, componentID uuid.UUID, quantity int) (bool, error)

	CreateIssue(ctx context.Context, issue *models.Issue, items []models.IssueItem) error
	FindIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error)
	FindIssueItem(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.IssueItem, error)
	ListIssueItems(ctx context.Context, issueID uuid.UUID, forUpdate bool) ([]models.IssueItem, error)
	ApplyReturn(ctx context.Context, itemID uuid.UUID, quantity int) (bool, error)

	RecordMovements(ctx context.Context, movements []models.StockMovement) error
	ListMovements(ctx context.Context, componentID uuid.UUID, limit int) ([]models.StockMovement, error)
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

func (r *repository) ListComponents(ctx context.Context) ([]models.Component, error) {
	var components []models.Component
	if err := r.DB(ctx).Order("name ASC").Find(&components).Error; err != nil {
		return nil, err
	}
	return components, nil
}

func (r *repository) FindComponent(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.Component, error) {
	q := r.DB(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var component models.Component
	if err := q.Where("id = ?", id).Take(&component).Error; err != nil {
		return nil, notFound(err, "component not found")
	}
	return &component, nil
}

func (r *repository) FindComponentByName(ctx context.Context, name string) (*models.Component, error) {
	var component models.Component
	if err := r.DB(ctx).Where("name = ?", name).Take(&component).Error; err != nil {
		return nil, notFound(err, "component not found")
	}
	return &component, nil
}

// LockComponents loads the requested rows in ascending id order so
// concurrent issues acquire row locks consistently. Missing ids are
// simply absent from the result.
func (r *repository) LockComponents(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Component, error) {
	out := make(map[uuid.UUID]models.Component, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Component
	err := r.DB(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id IN ?", ids).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// UpsertStock creates the component or adds quantity to both counters of
// the existing row in one statement. Photos replace stored ones only when
// provided.
func (r *repository) UpsertStock(ctx context.Context, name string, quantity int, photo1, photo2 *string) (*models.Component, error) {
	now := time.Now().UTC()
	component := models.Component{
		Name:              name,
		TotalQuantity:     quantity,
		AvailableQuantity: quantity,
		Photo1:            photo1,
		Photo2:            photo2,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	err := r.DB(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "name"}},
			DoUpdates: clause.Set{
				{Column: clause.Column{Name: "total_quantity"}, Value: gorm.Expr("components.total_quantity + excluded.total_quantity")},
				{Column: clause.Column{Name: "available_quantity"}, Value: gorm.Expr("components.available_quantity + excluded.available_quantity")},
				{Column: clause.Column{Name: "photo1"}, Value: gorm.Expr("COALESCE(excluded.photo1, components.photo1)")},
				{Column: clause.Column{Name: "photo2"}, Value: gorm.Expr("COALESCE(excluded.photo2, components.photo2)")},
				{Column: clause.Column{Name: "updated_at"}, Value: gorm.Expr("excluded.updated_at")},
			},
		}).
		Create(&component).Error
	if err != nil {
		return nil, err
	}
	return r.FindComponentByName(ctx, name)
}

// ResizeComponent sets total_quantity and recomputes available from the
// units currently issued, refusing when that would go negative.
func (r *repository) ResizeComponent(ctx context.Context, id uuid.UUID, newTotal int) (bool, error) {
	res := r.DB(ctx).Exec(
		`UPDATE components
		 SET total_quantity = ?,
		     available_quantity = ? - (total_quantity - available_quantity),
		     updated_at = ?
		 WHERE id = ? AND ? - (total_quantity - available_quantity) >= 0`,
		newTotal, newTotal, time.Now().UTC(), id, newTotal,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RenameComponent(ctx context.Context, id uuid.UUID, name string) error {
	res := r.DB(ctx).Model(&models.Component{}).
		Where("id = ?", id).
		Updates(map[string]any{"name": name, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "component not found")
	}
	return nil
}

func (r *repository) DeleteComponent(ctx context.Context, id uuid.UUID) error {
	res := r.DB(ctx).Where("id = ?", id).Delete(&models.Component{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "component not found")
	}
	return nil
}

func (r *repository) CountOutstanding(ctx context.Context, componentID uuid.UUID) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&models.IssueItem{}).
		Where("component_id = ? AND returned_quantity < quantity", componentID).
		Count(&count).Error
	return count, err
}

func (r *repository) DecrementAvailable(ctx context.Context, componentID uuid.UUID, quantity int) (bool, error) {
	res := r.DB(ctx).Exec(
		`UPDATE components SET available_quantity = available_quantity - ?, updated_at = ?
		 WHERE id = ? AND available_quantity >= ?`,
		quantity, time.Now().UTC(), componentID, quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) IncrementAvailable(ctx context.Context, componentID uuid.UUID, quantity int) (bool, error) {
	res := r.DB(ctx).Exec(
		`UPDATE components SET available_quantity = available_quantity + ?, updated_at = ?
		 WHERE id = ? AND available_quantity + ? <= total_quantity`,
		quantity, time.Now().UTC(), componentID, quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateIssue(ctx context.Context, issue *models.Issue, items []models.IssueItem) error {
	db := r.DB(ctx)
	if err := db.Omit(clause.Associations).Create(issue).Error; err != nil {
		return err
	}
	for i := range items {
		items[i].IssueID = issue.ID
	}
	if len(items) == 0 {
		return nil
	}
	return db.Create(&items).Error
}

func (r *repository) FindIssue(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	var issue models.Issue
	if err := r.DB(ctx).Where("id = ?", id).Take(&issue).Error; err != nil {
		return nil, notFound(err, "issue not found")
	}
	return &issue, nil
}

func (r *repository) FindIssueItem(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.IssueItem, error) {
	q := r.DB(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var item models.IssueItem
	if err := q.Where("id = ?", id).Take(&item).Error; err != nil {
		return nil, notFound(err, "issue item not found")
	}
	return &item, nil
}

func (r *repository) ListIssueItems(ctx context.Context, issueID uuid.UUID, forUpdate bool) ([]models.IssueItem, error) {
	q := r.DB(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var items []models.IssueItem
	if err := q.Where("issue_id = ?", issueID).Order("line_no ASC").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) ApplyReturn(ctx context.Context, itemID uuid.UUID, quantity int) (bool, error) {
	res := r.DB(ctx).Exec(
		`UPDATE issue_items SET returned_quantity = returned_quantity + ?, updated_at = ?
		 WHERE id = ? AND quantity - returned_quantity >= ?`,
		quantity, time.Now().UTC(), itemID, quantity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) RecordMovements(ctx context.Context, movements []models.StockMovement) error {
	if len(movements) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&movements).Error
}

func (r *repository) ListMovements(ctx context.Context, componentID uuid.UUID, limit int) ([]models.StockMovement, error) {
	var movements []models.StockMovement
	err := r.DB(ctx).
		Where("component_id = ?", componentID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, msg)
	}
	return err
}
