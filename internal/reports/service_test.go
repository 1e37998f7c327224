package reports

import (
	"context"
	"io"
	"testing"

	"github.com/angelmondragon/labstock-backend/internal/ledger"
	"github.com/angelmondragon/labstock-backend/internal/students"
	"github.com/angelmondragon/labstock-backend/pkg/db"
	"github.com/angelmondragon/labstock-backend/pkg/db/dbtest"
	"github.com/angelmondragon/labstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/angelmondragon/labstock-backend/pkg/logger"
	"github.com/angelmondragon/labstock-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*db.Client, ledger.Service, Service) {
	t.Helper()
	client := dbtest.Open(t)
	studentsRepo := students.NewRepository(client.DB())
	ledgerSvc, err := ledger.NewService(ledger.ServiceParams{
		Repo:     ledger.NewRepository(client.DB()),
		Students: studentsRepo,
		Tx:       client,
		Logger:   logger.New(logger.Options{Output: io.Discard}),
	})
	require.NoError(t, err)
	svc, err := NewService(NewRepository(client.DB()), studentsRepo)
	require.NoError(t, err)
	return client, ledgerSvc, svc
}

func issue(t *testing.T, l ledger.Service, usn string, lines ...ledger.IssueLine) *ledger.IssueResult {
	t.Helper()
	res, err := l.CreateIssue(context.Background(), ledger.CreateIssueInput{
		StudentName: "Student " + usn,
		USN:         usn,
		Phone:       "9000000000",
		Items:       lines,
	})
	require.NoError(t, err)
	return res
}

func TestTransactionsPaginateNewestFirst(t *testing.T) {
	_, l, svc := setup(t)
	ctx := context.Background()
	c, err := l.Restock(ctx, ledger.RestockInput{Name: "Wire", Quantity: 50})
	require.NoError(t, err)

	created := map[uuid.UUID]bool{}
	for i := 0; i < 3; i++ {
		res := issue(t, l, "1AB20CS00"+string(rune('1'+i)), ledger.IssueLine{ComponentID: c.Component.ID, Quantity: i + 1})
		created[res.Issue.ID] = true
	}

	first, err := svc.Transactions(ctx, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Transactions, 2)
	assert.True(t, first.Page.HasMore)
	require.NotEmpty(t, first.Page.NextCursor)
	assert.False(t, first.Transactions[0].IssuedAt.Before(first.Transactions[1].IssuedAt))

	second, err := svc.Transactions(ctx, pagination.Params{Limit: 2, Cursor: first.Page.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Transactions, 1)
	assert.False(t, second.Page.HasMore)
	assert.Empty(t, second.Page.NextCursor)

	seen := map[uuid.UUID]bool{}
	for _, tx := range append(first.Transactions, second.Transactions...) {
		assert.False(t, seen[tx.IssueID], "issue listed twice")
		seen[tx.IssueID] = true
		require.Len(t, tx.Items, 1)
		assert.Equal(t, "Wire", tx.Items[0].ComponentName)
		assert.Equal(t, tx.Items[0].Quantity, tx.TotalRemaining)
	}
	assert.Equal(t, created, seen)

	_, err = svc.Transactions(ctx, pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestStudentHistoryShowsRemainingAndSnapshots(t *testing.T) {
	_, l, svc := setup(t)
	ctx := context.Background()
	a, err := l.Restock(ctx, ledger.RestockInput{Name: "Arduino", Quantity: 5})
	require.NoError(t, err)
	b, err := l.Restock(ctx, ledger.RestockInput{Name: "Sensor", Quantity: 5})
	require.NoError(t, err)

	first := issue(t, l, "1ab20cs009", ledger.IssueLine{ComponentID: a.Component.ID, Quantity: 2})
	issue(t, l, "1AB20CS009", ledger.IssueLine{ComponentID: b.Component.ID, Quantity: 3})
	issue(t, l, "1AB20CS010", ledger.IssueLine{ComponentID: b.Component.ID, Quantity: 1})

	_, err = l.ReturnAll(ctx, ledger.ReturnAllInput{IssueID: first.Issue.ID})
	require.NoError(t, err)
	require.NoError(t, l.DeleteComponent(ctx, ledger.DeleteInput{ComponentID: a.Component.ID}))

	history, err := svc.StudentHistory(ctx, " 1ab20cs009 ")
	require.NoError(t, err)
	assert.Equal(t, "1AB20CS009", history.Student.USN)
	require.Len(t, history.Issues, 2)
	assert.Equal(t, 3, history.TotalOutstanding)

	var settled *TransactionItem
	for _, tx := range history.Issues {
		if tx.IssueID == first.Issue.ID {
			settled = &tx.Items[0]
		}
	}
	require.NotNil(t, settled)
	assert.Nil(t, settled.ComponentID)
	assert.Equal(t, "Arduino", settled.ComponentName)
	assert.Equal(t, enums.IssueItemStatusSettled, settled.Status)
	assert.Zero(t, settled.Remaining)

	_, err = svc.StudentHistory(ctx, "UNKNOWN")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = svc.StudentHistory(ctx, "  ")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestSummaryCountsOutstandingUnits(t *testing.T) {
	_, l, svc := setup(t)
	ctx := context.Background()

	empty, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, DashboardSummary{}, *empty)

	a, err := l.Restock(ctx, ledger.RestockInput{Name: "LED", Quantity: 20})
	require.NoError(t, err)
	_, err = l.Restock(ctx, ledger.RestockInput{Name: "Resistor", Quantity: 20})
	require.NoError(t, err)

	res := issue(t, l, "1AB20CS001", ledger.IssueLine{ComponentID: a.Component.ID, Quantity: 7})
	issue(t, l, "1AB20CS002", ledger.IssueLine{ComponentID: a.Component.ID, Quantity: 3})
	_, err = l.ReturnItem(ctx, ledger.ReturnItemInput{IssueItemID: res.Items[0].ID, ReturnQuantity: 2})
	require.NoError(t, err)

	summary, err := svc.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), summary.TotalComponents)
	assert.Equal(t, int64(8), summary.TotalOut)
	assert.Equal(t, int64(2), summary.TotalStudents)
}
