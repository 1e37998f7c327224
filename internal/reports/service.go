package reports

import (
	"context"
	"fmt"

	"github.com/angelmondragon/labstock-backend/internal/students"
	"github.com/angelmondragon/labstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/angelmondragon/labstock-backend/pkg/pagination"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Service exposes the read models consumed by the presentation layer.
type Service interface {
	Transactions(ctx context.Context, params pagination.Params) (*TransactionPage, error)
	StudentHistory(ctx context.Context, usn string) (*StudentHistory, error)
	Summary(ctx context.Context) (*DashboardSummary, error)
}

type service struct {
	repo     Repository
	students students.Repository
}

func NewService(repo Repository, studentsRepo students.Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reports repository required")
	}
	if studentsRepo == nil {
		return nil, fmt.Errorf("students repository required")
	}
	return &service{repo: repo, students: studentsRepo}, nil
}

func (s *service) Transactions(ctx context.Context, params pagination.Params) (*TransactionPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)

	rows, err := s.repo.ListIssues(ctx, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list transactions")
	}
	rows, hasMore := pagination.Trim(rows, limit)

	transactions, err := s.assemble(ctx, rows)
	if err != nil {
		return nil, err
	}

	page := pagination.Page{Limit: limit, HasMore: hasMore}
	if hasMore {
		last := rows[len(rows)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{At: last.IssuedAt, ID: last.ID})
	}
	return &TransactionPage{Transactions: transactions, Page: page}, nil
}

func (s *service) StudentHistory(ctx context.Context, usn string) (*StudentHistory, error) {
	usn = students.NormalizeUSN(usn)
	if usn == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "usn required")
	}

	student, err := s.students.FindByUSN(ctx, usn)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load student")
	}

	rows, err := s.repo.ListIssuesForStudent(ctx, student.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "list student issues")
	}
	issues, err := s.assemble(ctx, rows)
	if err != nil {
		return nil, err
	}

	history := &StudentHistory{
		Student: StudentSummary{ID: student.ID, Name: student.Name, USN: student.USN, Phone: student.Phone},
		Issues:  issues,
	}
	for _, issue := range issues {
		history.TotalOutstanding += issue.TotalRemaining
	}
	return history, nil
}

// Summary runs the three aggregates concurrently.
func (s *service) Summary(ctx context.Context) (*DashboardSummary, error) {
	var out DashboardSummary
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.repo.CountComponents(gctx)
		out.TotalComponents = n
		return err
	})
	g.Go(func() error {
		n, err := s.repo.SumOutstanding(gctx)
		out.TotalOut = n
		return err
	})
	g.Go(func() error {
		n, err := s.repo.CountStudents(gctx)
		out.TotalStudents = n
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "dashboard summary")
	}
	return &out, nil
}

func (s *service) assemble(ctx context.Context, rows []issueRow) ([]Transaction, error) {
	out := make([]Transaction, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	items, err := s.repo.ItemsForIssues(ctx, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeStorage, err, "load issue items")
	}

	byIssue := make(map[uuid.UUID][]TransactionItem, len(rows))
	for _, item := range items {
		byIssue[item.IssueID] = append(byIssue[item.IssueID], TransactionItem{
			ID:               item.ID,
			ComponentID:      item.ComponentID,
			ComponentName:    item.ComponentName,
			Quantity:         item.Quantity,
			ReturnedQuantity: item.ReturnedQuantity,
			Remaining:        item.Quantity - item.ReturnedQuantity,
			Status:           enums.IssueItemStatusFor(item.Quantity, item.ReturnedQuantity),
		})
	}

	for _, row := range rows {
		tx := Transaction{
			IssueID:  row.ID,
			IssuedAt: row.IssuedAt,
			Student:  StudentSummary{ID: row.StudentID, Name: row.Name, USN: row.USN, Phone: row.Phone},
			Items:    byIssue[row.ID],
		}
		if tx.Items == nil {
			tx.Items = []TransactionItem{}
		}
		for _, item := range tx.Items {
			tx.TotalRemaining += item.Remaining
		}
		out = append(out, tx)
	}
	return out, nil
}
