package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/labstock-backend/internal/ledger"
	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	"github.com/angelmondragon/labstock-backend/pkg/enums"
)

type restockRequest struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Quantity int     `json:"quantity" validate:"gt=0"`
	Photo1   *string `json:"photo1,omitempty"`
	Photo2   *string `json:"photo2,omitempty"`
}

type resizeRequest struct {
	NewTotalQuantity *int `json:"new_total_quantity" validate:"required,gte=0"`
}

type renameRequest struct {
	NewName string `json:"new_name" validate:"required,max=120"`
}

type issueLineRequest struct {
	ComponentID uuid.UUID `json:"component_id" validate:"required"`
	Quantity    int       `json:"quantity" validate:"gt=0"`
}

type createIssueRequest struct {
	StudentName string             `json:"student_name" validate:"required,max=120"`
	USN         string             `json:"usn" validate:"required,max=32"`
	Phone       string             `json:"phone" validate:"required,max=32"`
	Items       []issueLineRequest `json:"items" validate:"dive"`
}

type returnItemRequest struct {
	ReturnQuantity int        `json:"return_quantity" validate:"gt=0"`
	ComponentID    *uuid.UUID `json:"component_id,omitempty"`
}

type componentResponse struct {
	ID                uuid.UUID `json:"id"`
	Name              string    `json:"name"`
	TotalQuantity     int       `json:"total_quantity"`
	AvailableQuantity int       `json:"available_quantity"`
	IssuedQuantity    int       `json:"issued_quantity"`
	Photo1            *string   `json:"photo1,omitempty"`
	Photo2            *string   `json:"photo2,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type restockResponse struct {
	Component componentResponse `json:"component"`
	Created   bool              `json:"created"`
}

type movementResponse struct {
	ID             uuid.UUID          `json:"id"`
	ComponentID    *uuid.UUID         `json:"component_id,omitempty"`
	ComponentName  string             `json:"component_name"`
	Type           enums.MovementType `json:"movement_type"`
	DeltaTotal     int                `json:"delta_total"`
	DeltaAvailable int                `json:"delta_available"`
	IssueID        *uuid.UUID         `json:"issue_id,omitempty"`
	IssueItemID    *uuid.UUID         `json:"issue_item_id,omitempty"`
	AdminID        *uuid.UUID         `json:"admin_id,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
}

type issueItemResponse struct {
	ID               uuid.UUID             `json:"issue_item_id"`
	IssueID          uuid.UUID             `json:"issue_id"`
	ComponentID      *uuid.UUID            `json:"component_id,omitempty"`
	ComponentName    string                `json:"component_name"`
	Quantity         int                   `json:"quantity"`
	ReturnedQuantity int                   `json:"returned_quantity"`
	Remaining        int                   `json:"remaining"`
	Status           enums.IssueItemStatus `json:"status"`
}

type studentResponse struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"student_name"`
	USN   string    `json:"usn"`
	Phone string    `json:"phone"`
}

type issueResponse struct {
	ID       uuid.UUID           `json:"issue_id"`
	IssuedAt time.Time           `json:"issue_timestamp"`
	Student  *studentResponse    `json:"student,omitempty"`
	Items    []issueItemResponse `json:"items"`
}

type returnItemResponse struct {
	Item      issueItemResponse  `json:"item"`
	Component *componentResponse `json:"component,omitempty"`
}

type returnAllResponse struct {
	IssueID       uuid.UUID           `json:"issue_id"`
	SettledItems  int                 `json:"settled_items"`
	UnitsReturned int                 `json:"units_returned"`
	Items         []issueItemResponse `json:"items"`
}

func (r createIssueRequest) toInput(actor uuid.UUID) ledger.CreateIssueInput {
	lines := make([]ledger.IssueLine, 0, len(r.Items))
	for _, item := range r.Items {
		lines = append(lines, ledger.IssueLine{ComponentID: item.ComponentID, Quantity: item.Quantity})
	}
	return ledger.CreateIssueInput{
		StudentName: r.StudentName,
		USN:         r.USN,
		Phone:       r.Phone,
		Items:       lines,
		ActorID:     actor,
	}
}

func toComponentResponse(c models.Component) componentResponse {
	return componentResponse{
		ID:                c.ID,
		Name:              c.Name,
		TotalQuantity:     c.TotalQuantity,
		AvailableQuantity: c.AvailableQuantity,
		IssuedQuantity:    c.Issued(),
		Photo1:            c.Photo1,
		Photo2:            c.Photo2,
		CreatedAt:         c.CreatedAt,
		UpdatedAt:         c.UpdatedAt,
	}
}

func toComponentList(components []models.Component) []componentResponse {
	out := make([]componentResponse, 0, len(components))
	for _, c := range components {
		out = append(out, toComponentResponse(c))
	}
	return out
}

func toMovementList(movements []models.StockMovement) []movementResponse {
	out := make([]movementResponse, 0, len(movements))
	for _, m := range movements {
		out = append(out, movementResponse{
			ID:             m.ID,
			ComponentID:    m.ComponentID,
			ComponentName:  m.ComponentName,
			Type:           m.Type,
			DeltaTotal:     m.DeltaTotal,
			DeltaAvailable: m.DeltaAvailable,
			IssueID:        m.IssueID,
			IssueItemID:    m.IssueItemID,
			AdminID:        m.AdminID,
			CreatedAt:      m.CreatedAt,
		})
	}
	return out
}

func toIssueItemResponse(item models.IssueItem) issueItemResponse {
	return issueItemResponse{
		ID:               item.ID,
		IssueID:          item.IssueID,
		ComponentID:      item.ComponentID,
		ComponentName:    item.ComponentName,
		Quantity:         item.Quantity,
		ReturnedQuantity: item.ReturnedQuantity,
		Remaining:        item.Remaining(),
		Status:           item.Status(),
	}
}

func toIssueItems(items []models.IssueItem) []issueItemResponse {
	out := make([]issueItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, toIssueItemResponse(item))
	}
	return out
}

func toIssueResponse(result *ledger.IssueResult) issueResponse {
	resp := issueResponse{
		ID:       result.Issue.ID,
		IssuedAt: result.Issue.IssuedAt,
		Items:    toIssueItems(result.Items),
	}
	if s := result.Student; s != nil {
		resp.Student = &studentResponse{ID: s.ID, Name: s.Name, USN: s.USN, Phone: s.Phone}
	}
	return resp
}
