package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/angelmondragon/labstock-backend/internal/media"
	"github.com/angelmondragon/labstock-backend/internal/students"
	"github.com/angelmondragon/labstock-backend/pkg/db"
	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	"github.com/angelmondragon/labstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/angelmondragon/labstock-backend/pkg/logger"
	"github.com/angelmondragon/labstock-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxNameLength     = 120
	maxIssueLines     = 100
	defaultMovements  = 50
	maxMovementsLimit = 500
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type recorder interface {
	ObserveOperation(operation, outcome string)
	AddUnits(direction string, units int)
}

// Service is the inventory ledger. Each mutating call runs in a single
// transaction and keeps available_quantity + outstanding = total_quantity
// for every component.
type Service interface {
	ListComponents(ctx context.Context) ([]models.Component, error)
	ListMovements(ctx context.Context, componentID uuid.UUID, limit int) ([]models.StockMovement, error)

	Restock(ctx context.Context, input RestockInput) (*RestockResult, error)
	Resize(ctx context.Context, input ResizeInput) (*models.Component, error)
	RenameComponent(ctx context.Context, input RenameInput) (*models.Component, error)
	DeleteComponent(ctx context.Context, input DeleteInput) error

	CreateIssue(ctx context.Context, input CreateIssueInput) (*IssueResult, error)
	ReturnItem(ctx context.Context, input ReturnItemInput) (*ReturnItemResult, error)
	ReturnAll(ctx context.Context, input ReturnAllInput) (*ReturnAllResult, error)
}

// ServiceParams wires the ledger. Metrics is optional.
type ServiceParams struct {
	Repo     Repository
	Students students.Repository
	Tx       txRunner
	Logger   *logger.Logger
	Metrics  recorder
}

type service struct {
	repo     Repository
	students students.Repository
	tx       txRunner
	logg     *logger.Logger
	metrics  recorder
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Students == nil {
		return nil, fmt.Errorf("students repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	rec := params.Metrics
	if rec == nil {
		rec = (*metrics.LedgerMetrics)(nil)
	}
	return &service{
		repo:     params.Repo,
		students: params.Students,
		tx:       params.Tx,
		logg:     params.Logger,
		metrics:  rec,
	}, nil
}

type RestockInput struct {
	Name     string
	Quantity int
	Photo1   *string
	Photo2   *string
	ActorID  uuid.UUID
}

type RestockResult struct {
	Component *models.Component
	Created   bool
}

type ResizeInput struct {
	ComponentID      uuid.UUID
	NewTotalQuantity int
	ActorID          uuid.UUID
}

type RenameInput struct {
	ComponentID uuid.UUID
	NewName     string
	ActorID     uuid.UUID
}

type DeleteInput struct {
	ComponentID uuid.UUID
	ActorID     uuid.UUID
}

type IssueLine struct {
	ComponentID uuid.UUID
	Quantity    int
}

type CreateIssueInput struct {
	StudentName string
	USN         string
	Phone       string
	Items       []IssueLine
	ActorID     uuid.UUID
}

type IssueResult struct {
	Issue   *models.Issue
	Student *models.Student
	Items   []models.IssueItem
}

// ReturnItemInput identifies the item to return against. ComponentID is
// optional; when set it must match the stored item.
type ReturnItemInput struct {
	IssueItemID    uuid.UUID
	ReturnQuantity int
	ComponentID    *uuid.UUID
	ActorID        uuid.UUID
}

type ReturnItemResult struct {
	Item      *models.IssueItem
	Component *models.Component
}

type ReturnAllInput struct {
	IssueID uuid.UUID
	ActorID uuid.UUID
}

type ReturnAllResult struct {
	IssueID       uuid.UUID
	SettledItems  int
	UnitsReturned int
	Items         []models.IssueItem
}

func (s *service) ListComponents(ctx context.Context) ([]models.Component, error) {
	components, err := s.repo.ListComponents(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list components")
	}
	return components, nil
}

func (s *service) ListMovements(ctx context.Context, componentID uuid.UUID, limit int) ([]models.StockMovement, error) {
	if componentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "component id required")
	}
	if limit <= 0 {
		limit = defaultMovements
	}
	if limit > maxMovementsLimit {
		limit = maxMovementsLimit
	}
	if _, err := s.repo.FindComponent(ctx, componentID, false); err != nil {
		return nil, storageError(err, "load component")
	}
	movements, err := s.repo.ListMovements(ctx, componentID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list movements")
	}
	return movements, nil
}

func (s *service) Restock(ctx context.Context, input RestockInput) (result *RestockResult, err error) {
	defer func() { s.observe("restock", err) }()

	name, err := normalizeName("name", input.Name)
	if err != nil {
		return nil, err
	}
	if input.Quantity <= 0 {
		return nil, fieldError("quantity", "must be greater than 0")
	}
	photo1, err := media.NormalizePhoto("photo1", input.Photo1)
	if err != nil {
		return nil, err
	}
	photo2, err := media.NormalizePhoto("photo2", input.Photo2)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		_, lookupErr := repo.FindComponentByName(ctx, name)
		created := pkgerrors.IsCode(lookupErr, pkgerrors.CodeNotFound)
		if lookupErr != nil && !created {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, lookupErr, "load component")
		}

		component, err := repo.UpsertStock(ctx, name, input.Quantity, photo1, photo2)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "restock component")
		}

		movement := newMovement(component, enums.MovementTypeRestock, input.ActorID)
		movement.DeltaTotal = input.Quantity
		movement.DeltaAvailable = input.Quantity
		if err := repo.RecordMovements(ctx, []models.StockMovement{movement}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record movement")
		}

		result = &RestockResult{Component: component, Created: created}
		return nil
	})
	if err != nil {
		return nil, commitError(err, "restock component")
	}

	s.metrics.AddUnits(metrics.UnitsStocked, input.Quantity)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"component_id": result.Component.ID.String(),
		"quantity":     input.Quantity,
		"created":      result.Created,
	}), "ledger.restock")
	return result, nil
}

func (s *service) Resize(ctx context.Context, input ResizeInput) (result *models.Component, err error) {
	defer func() { s.observe("resize", err) }()

	if input.ComponentID == uuid.Nil {
		return nil, fieldError("component_id", "is required")
	}
	if input.NewTotalQuantity < 0 {
		return nil, fieldError("new_total_quantity", "must be at least 0")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindComponent(ctx, input.ComponentID, true)
		if err != nil {
			return storageError(err, "load component")
		}

		difference := input.NewTotalQuantity - current.TotalQuantity
		if current.AvailableQuantity+difference < 0 {
			return invalidReduction(current, input.NewTotalQuantity)
		}

		ok, err := repo.ResizeComponent(ctx, current.ID, input.NewTotalQuantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "resize component")
		}
		if !ok {
			return invalidReduction(current, input.NewTotalQuantity)
		}

		updated, err := repo.FindComponent(ctx, current.ID, false)
		if err != nil {
			return storageError(err, "reload component")
		}

		if difference != 0 {
			movement := newMovement(updated, enums.MovementTypeResize, input.ActorID)
			movement.DeltaTotal = updated.TotalQuantity - current.TotalQuantity
			movement.DeltaAvailable = updated.AvailableQuantity - current.AvailableQuantity
			if err := repo.RecordMovements(ctx, []models.StockMovement{movement}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record movement")
			}
		}

		result = updated
		return nil
	})
	if err != nil {
		return nil, commitError(err, "resize component")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"component_id":       result.ID.String(),
		"total_quantity":     result.TotalQuantity,
		"available_quantity": result.AvailableQuantity,
	}), "ledger.resize")
	return result, nil
}

func (s *service) RenameComponent(ctx context.Context, input RenameInput) (result *models.Component, err error) {
	defer func() { s.observe("rename", err) }()

	if input.ComponentID == uuid.Nil {
		return nil, fieldError("component_id", "is required")
	}
	name, err := normalizeName("new_name", input.NewName)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindComponent(ctx, input.ComponentID, true)
		if err != nil {
			return storageError(err, "load component")
		}
		if current.Name == name {
			result = current
			return nil
		}

		existing, err := repo.FindComponentByName(ctx, name)
		switch {
		case err == nil && existing.ID != current.ID:
			return nameTaken(name)
		case err != nil && !pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "check component name")
		}

		if err := repo.RenameComponent(ctx, current.ID, name); err != nil {
			if db.IsUniqueViolation(err, "components_name_key") {
				return nameTaken(name)
			}
			return storageError(err, "rename component")
		}

		current.Name = name
		result = current
		return nil
	})
	if err != nil {
		return nil, commitError(err, "rename component")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"component_id": result.ID.String(),
		"name":         result.Name,
	}), "ledger.rename")
	return result, nil
}

func (s *service) DeleteComponent(ctx context.Context, input DeleteInput) (err error) {
	defer func() { s.observe("delete_component", err) }()

	if input.ComponentID == uuid.Nil {
		return fieldError("component_id", "is required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		component, err := repo.FindComponent(ctx, input.ComponentID, true)
		if err != nil {
			return storageError(err, "load component")
		}

		active, err := repo.CountOutstanding(ctx, component.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "count outstanding items")
		}
		if active > 0 {
			return pkgerrors.New(pkgerrors.CodeHasActiveIssues, "cannot delete component with active issues").
				WithDetails(map[string]any{
					"component_id":      component.ID,
					"outstanding_items": active,
					"issued_quantity":   component.Issued(),
				})
		}

		return storageError(repo.DeleteComponent(ctx, component.ID), "delete component")
	})
	if err != nil {
		return commitError(err, "delete component")
	}

	s.logg.Info(s.logg.WithField(ctx, "component_id", input.ComponentID.String()), "ledger.delete_component")
	return nil
}

func (s *service) CreateIssue(ctx context.Context, input CreateIssueInput) (result *IssueResult, err error) {
	defer func() { s.observe("create_issue", err) }()

	student, lines, err := validateIssue(input)
	if err != nil {
		return nil, err
	}

	requested := make(map[uuid.UUID]int, len(lines))
	order := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, seen := requested[line.ComponentID]; !seen {
			order = append(order, line.ComponentID)
		}
		requested[line.ComponentID] += line.Quantity
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		stored, err := s.students.WithTx(tx).Upsert(ctx, student)
		if err != nil {
			return storageError(err, "upsert student")
		}

		components, err := repo.LockComponents(ctx, order)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load components")
		}

		// first offending component in request order
		for _, id := range order {
			component, ok := components[id]
			if !ok {
				return insufficientStock(id, "", requested[id], 0, "component not found")
			}
			if requested[id] > component.AvailableQuantity {
				return insufficientStock(id, component.Name, requested[id], component.AvailableQuantity, "")
			}
		}

		ascending := append([]uuid.UUID(nil), order...)
		sort.Slice(ascending, func(i, j int) bool {
			return ascending[i].String() < ascending[j].String()
		})
		for _, id := range ascending {
			ok, err := repo.DecrementAvailable(ctx, id, requested[id])
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "decrement stock")
			}
			if !ok {
				component := components[id]
				return insufficientStock(id, component.Name, requested[id], component.AvailableQuantity, "stock changed concurrently")
			}
		}

		issue := &models.Issue{StudentID: stored.ID, IssuedBy: actorPtr(input.ActorID)}
		items := make([]models.IssueItem, 0, len(lines))
		for i, line := range lines {
			componentID := line.ComponentID
			items = append(items, models.IssueItem{
				ComponentID:   &componentID,
				ComponentName: components[line.ComponentID].Name,
				LineNo:        i + 1,
				Quantity:      line.Quantity,
			})
		}
		if err := repo.CreateIssue(ctx, issue, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "create issue")
		}

		movements := make([]models.StockMovement, 0, len(items))
		for i := range items {
			component := components[*items[i].ComponentID]
			movement := newMovement(&component, enums.MovementTypeIssue, input.ActorID)
			movement.DeltaAvailable = -items[i].Quantity
			movement.IssueID = &issue.ID
			movement.IssueItemID = &items[i].ID
			movements = append(movements, movement)
		}
		if err := repo.RecordMovements(ctx, movements); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record movements")
		}

		issue.Student = stored
		issue.Items = items
		result = &IssueResult{Issue: issue, Student: stored, Items: items}
		return nil
	})
	if err != nil {
		return nil, commitError(err, "create issue")
	}

	units := 0
	for _, item := range result.Items {
		units += item.Quantity
	}
	s.metrics.AddUnits(metrics.UnitsIssued, units)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"issue_id": result.Issue.ID.String(),
		"usn":      result.Student.USN,
		"lines":    len(result.Items),
		"units":    units,
	}), "ledger.issue_created")
	return result, nil
}

func (s *service) ReturnItem(ctx context.Context, input ReturnItemInput) (result *ReturnItemResult, err error) {
	defer func() { s.observe("return_item", err) }()

	if input.IssueItemID == uuid.Nil {
		return nil, fieldError("issue_item_id", "is required")
	}
	if input.ReturnQuantity <= 0 {
		return nil, fieldError("return_quantity", "must be greater than 0")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		item, err := repo.FindIssueItem(ctx, input.IssueItemID, true)
		if err != nil {
			return storageError(err, "load issue item")
		}
		if input.ComponentID != nil && (item.ComponentID == nil || *item.ComponentID != *input.ComponentID) {
			return fieldError("component_id", "does not match the issue item")
		}

		remaining := item.Remaining()
		if input.ReturnQuantity > remaining {
			return overReturn(item, input.ReturnQuantity)
		}

		ok, err := repo.ApplyReturn(ctx, item.ID, input.ReturnQuantity)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "apply return")
		}
		if !ok {
			return overReturn(item, input.ReturnQuantity)
		}

		var component *models.Component
		if item.ComponentID != nil {
			component, err = s.restoreStock(ctx, repo, *item.ComponentID, input.ReturnQuantity)
			if err != nil {
				return err
			}
			movement := newMovement(component, enums.MovementTypeReturn, input.ActorID)
			movement.DeltaAvailable = input.ReturnQuantity
			movement.IssueID = &item.IssueID
			movement.IssueItemID = &item.ID
			if err := repo.RecordMovements(ctx, []models.StockMovement{movement}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record movement")
			}
		}

		item.ReturnedQuantity += input.ReturnQuantity
		result = &ReturnItemResult{Item: item, Component: component}
		return nil
	})
	if err != nil {
		return nil, commitError(err, "return item")
	}

	s.metrics.AddUnits(metrics.UnitsReturned, input.ReturnQuantity)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"issue_item_id": result.Item.ID.String(),
		"returned":      input.ReturnQuantity,
		"remaining":     result.Item.Remaining(),
	}), "ledger.item_returned")
	return result, nil
}

func (s *service) ReturnAll(ctx context.Context, input ReturnAllInput) (result *ReturnAllResult, err error) {
	defer func() { s.observe("return_all", err) }()

	if input.IssueID == uuid.Nil {
		return nil, fieldError("issue_id", "is required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if _, err := repo.FindIssue(ctx, input.IssueID); err != nil {
			return storageError(err, "load issue")
		}
		items, err := repo.ListIssueItems(ctx, input.IssueID, true)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load issue items")
		}

		out := &ReturnAllResult{IssueID: input.IssueID}
		var movements []models.StockMovement
		for i := range items {
			item := &items[i]
			remaining := item.Remaining()
			if remaining <= 0 {
				continue
			}

			ok, err := repo.ApplyReturn(ctx, item.ID, remaining)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "settle issue item")
			}
			if !ok {
				return overReturn(item, remaining)
			}
			if item.ComponentID != nil {
				component, err := s.restoreStock(ctx, repo, *item.ComponentID, remaining)
				if err != nil {
					return err
				}
				movement := newMovement(component, enums.MovementTypeReturn, input.ActorID)
				movement.DeltaAvailable = remaining
				movement.IssueID = &item.IssueID
				movement.IssueItemID = &item.ID
				movements = append(movements, movement)
			}

			item.ReturnedQuantity = item.Quantity
			out.SettledItems++
			out.UnitsReturned += remaining
		}

		if err := repo.RecordMovements(ctx, movements); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStorage, err, "record movements")
		}

		out.Items = items
		result = out
		return nil
	})
	if err != nil {
		return nil, commitError(err, "return all")
	}

	s.metrics.AddUnits(metrics.UnitsReturned, result.UnitsReturned)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"issue_id":       result.IssueID.String(),
		"settled_items":  result.SettledItems,
		"units_returned": result.UnitsReturned,
	}), "ledger.return_all")
	return result, nil
}

// restoreStock puts units back on the shelf. A failed guard means the
// component already holds its full total, which the conservation rule
// forbids while an item is outstanding.
func (s *service) restoreStock(ctx context.Context, repo Repository, componentID uuid.UUID, quantity int) (*models.Component, error) {
	ok, err := repo.IncrementAvailable(ctx, componentID, quantity)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "restore stock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStorage, "component stock out of balance").
			WithDetails(map[string]any{"component_id": componentID, "quantity": quantity})
	}
	component, err := repo.FindComponent(ctx, componentID, false)
	if err != nil {
		return nil, storageError(err, "reload component")
	}
	return component, nil
}

func (s *service) observe(operation string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = string(pkgerrors.CodeOf(err))
	}
	s.metrics.ObserveOperation(operation, outcome)
}

func validateIssue(input CreateIssueInput) (models.Student, []IssueLine, error) {
	details := map[string]string{}
	name := strings.TrimSpace(input.StudentName)
	usn := students.NormalizeUSN(input.USN)
	phone := strings.TrimSpace(input.Phone)
	if name == "" {
		details["student_name"] = "is required"
	}
	if usn == "" {
		details["usn"] = "is required"
	}
	if phone == "" {
		details["phone"] = "is required"
	}
	if len(details) > 0 {
		return models.Student{}, nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").WithDetails(details)
	}

	if len(input.Items) == 0 {
		return models.Student{}, nil, pkgerrors.New(pkgerrors.CodeEmptyRequest, "issue must contain at least one item")
	}
	if len(input.Items) > maxIssueLines {
		return models.Student{}, nil, fieldError("items", fmt.Sprintf("must contain at most %d lines", maxIssueLines))
	}
	for i, line := range input.Items {
		if line.ComponentID == uuid.Nil {
			return models.Student{}, nil, fieldError(fmt.Sprintf("items[%d].component_id", i), "is required")
		}
		if line.Quantity <= 0 {
			return models.Student{}, nil, fieldError(fmt.Sprintf("items[%d].quantity", i), "must be greater than 0")
		}
	}

	return models.Student{Name: name, USN: usn, Phone: phone}, input.Items, nil
}

func normalizeName(field, raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if name == "" {
		return "", fieldError(field, "is required")
	}
	if len(name) > maxNameLength {
		return "", fieldError(field, fmt.Sprintf("must be at most %d characters", maxNameLength))
	}
	return name, nil
}

func newMovement(component *models.Component, kind enums.MovementType, actorID uuid.UUID) models.StockMovement {
	id := component.ID
	return models.StockMovement{
		ComponentID:   &id,
		ComponentName: component.Name,
		Type:          kind,
		AdminID:       actorPtr(actorID),
	}
}

func actorPtr(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
