package ledger

import (
	"context"
	"io"
	"sync"
	"testing"

	"github.com/angelmondragon/labstock-backend/internal/students"
	"github.com/angelmondragon/labstock-backend/pkg/db"
	"github.com/angelmondragon/labstock-backend/pkg/db/dbtest"
	"github.com/angelmondragon/labstock-backend/pkg/db/models"
	"github.com/angelmondragon/labstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/labstock-backend/pkg/errors"
	"github.com/angelmondragon/labstock-backend/pkg/logger"
	"github.com/angelmondragon/labstock-backend/pkg/metrics"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	client *db.Client
	svc    Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repo:     NewRepository(client.DB()),
		Students: students.NewRepository(client.DB()),
		Tx:       client,
		Logger:   logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Metrics:  metrics.NewLedgerMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)
	return fixture{client: client, svc: svc}
}

func (f fixture) restock(t *testing.T, name string, qty int) *models.Component {
	t.Helper()
	res, err := f.svc.Restock(context.Background(), RestockInput{Name: name, Quantity: qty})
	require.NoError(t, err)
	return res.Component
}

func (f fixture) component(t *testing.T, id uuid.UUID) models.Component {
	t.Helper()
	var c models.Component
	require.NoError(t, f.client.DB().Where("id = ?", id).Take(&c).Error)
	return c
}

func (f fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.client.DB().Model(model).Count(&n).Error)
	return n
}

// assertConservation checks available + outstanding = total for a component.
func (f fixture) assertConservation(t *testing.T, id uuid.UUID) {
	t.Helper()
	c := f.component(t, id)
	var outstanding int64
	require.NoError(t, f.client.DB().Model(&models.IssueItem{}).
		Where("component_id = ?", id).
		Select("COALESCE(SUM(quantity - returned_quantity), 0)").
		Scan(&outstanding).Error)
	assert.Equal(t, c.TotalQuantity, c.AvailableQuantity+int(outstanding))
	assert.GreaterOrEqual(t, c.AvailableQuantity, 0)
	assert.LessOrEqual(t, c.AvailableQuantity, c.TotalQuantity)
}

func issueInput(lines ...IssueLine) CreateIssueInput {
	return CreateIssueInput{
		StudentName: "Asha",
		USN:         "1AB20CS001",
		Phone:       "9999999999",
		Items:       lines,
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}

func TestLedgerLifecycleScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	resistor := f.restock(t, "Resistor", 100)
	assert.Equal(t, 100, resistor.TotalQuantity)
	assert.Equal(t, 100, resistor.AvailableQuantity)

	issued, err := f.svc.CreateIssue(ctx, issueInput(IssueLine{ComponentID: resistor.ID, Quantity: 30}))
	require.NoError(t, err)
	require.Len(t, issued.Items, 1)
	item := issued.Items[0]
	assert.Equal(t, 30, item.Quantity)
	assert.Equal(t, 0, item.ReturnedQuantity)
	assert.Equal(t, "Resistor", item.ComponentName)
	assert.Equal(t, 70, f.component(t, resistor.ID).AvailableQuantity)
	f.assertConservation(t, resistor.ID)

	returned, err := f.svc.ReturnItem(ctx, ReturnItemInput{IssueItemID: item.ID, ReturnQuantity: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, returned.Item.ReturnedQuantity)
	assert.Equal(t, enums.IssueItemStatusPartiallyReturned, returned.Item.Status())
	assert.Equal(t, 80, returned.Component.AvailableQuantity)
	f.assertConservation(t, resistor.ID)

	all, err := f.svc.ReturnAll(ctx, ReturnAllInput{IssueID: issued.Issue.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, all.SettledItems)
	assert.Equal(t, 20, all.UnitsReturned)
	assert.Equal(t, 30, all.Items[0].ReturnedQuantity)
	assert.Equal(t, 100, f.component(t, resistor.ID).AvailableQuantity)

	require.NoError(t, f.svc.DeleteComponent(ctx, DeleteInput{ComponentID: resistor.ID}))
	assert.Zero(t, f.count(t, &models.Component{}))
}

func TestRestockAddsToBothCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Restock(ctx, RestockInput{Name: "  LED   red ", Quantity: 10})
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "LED red", first.Component.Name)

	_, err = f.svc.CreateIssue(ctx, issueInput(IssueLine{ComponentID: first.Component.ID, Quantity: 4}))
	require.NoError(t, err)

	second, err := f.svc.Restock(ctx, RestockInput{Name: "LED red", Quantity: 5})
	require.NoError(t, err)
	assert.False(t, second.Created)
	assert.Equal(t, first.Component.ID, second.Component.ID)
	assert.Equal(t, 15, second.Component.TotalQuantity)
	assert.Equal(t, 11, second.Component.AvailableQuantity)
	f.assertConservation(t, first.Component.ID)
}

func TestRestockKeepsPhotosUnlessReplaced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	png := "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNkYPhfDwAChwGA60e6kgAAAABJRU5ErkJggg=="

	res, err := f.svc.Restock(ctx, RestockInput{Name: "Servo", Quantity: 2, Photo1: &png})
	require.NoError(t, err)
	require.NotNil(t, res.Component.Photo1)

	res, err = f.svc.Restock(ctx, RestockInput{Name: "Servo", Quantity: 1})
	require.NoError(t, err)
	require.NotNil(t, res.Component.Photo1)
	assert.Nil(t, res.Component.Photo2)
}

func TestRestockRejectsInvalidInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Restock(ctx, RestockInput{Name: " ", Quantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Restock(ctx, RestockInput{Name: "Diode", Quantity: 0})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	bad := "data:text/plain;base64,aGVsbG8="
	_, err = f.svc.Restock(ctx, RestockInput{Name: "Diode", Quantity: 1, Photo2: &bad})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, f.count(t, &models.Component{}))
}

func TestResizeRejectsReductionBelowIssued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.restock(t, "Resistor", 100)
	_, err := f.svc.CreateIssue(ctx, issueInput(IssueLine{ComponentID: c.ID, Quantity: 30}))
	require.NoError(t, err)

	_, err = f.svc.Resize(ctx, ResizeInput{ComponentID: c.ID, NewTotalQuantity: 20})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidReduction))

	after := f.component(t, c.ID)
	assert.Equal(t, 100, after.TotalQuantity)
	assert.Equal(t, 70, after.AvailableQuantity)
}

func TestResizeMovesBothCounters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.restock(t, "Capacitor", 50)
	_, err := f.svc.CreateIssue(ctx, issueInput(IssueLine{ComponentID: c.ID, Quantity: 10}))
	require.NoError(t, err)

	shrunk, err := f.svc.Resize(ctx, ResizeInput{ComponentID: c.ID, NewTotalQuantity: 10})
	require.NoError(t, err)
	assert.Equal(t, 10, shrunk.TotalQuantity)
	assert.Equal(t, 0, shrunk.AvailableQuantity)

	grown, err := f.svc.Resize(ctx, ResizeInput{ComponentID: c.ID, NewTotalQuantity: 80})
	require.NoError(t, err)
	assert.Equal(t, 80, grown.TotalQuantity)
	assert.Equal(t, 70, grown.AvailableQuantity)
	f.assertConservation(t, c.ID)

	_, err = f.svc.Resize(ctx, ResizeInput{ComponentID: uuid.New(), NewTotalQuantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateIssueIsAllOrNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.restock(t, "Arduino", 5)
	b := f.restock(t, "Breadboard", 2)

	_, err := f.svc.CreateIssue(ctx, issueInput(
		IssueLine{ComponentID: a.ID, Quantity: 3},
		IssueLine{ComponentID: b.ID, Quantity: 3},
	))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, b.ID, details["component_id"])

	assert.Equal(t, 5, f.component(t, a.ID).AvailableQuantity)
	assert.Equal(t, 2, f.component(t, b.ID).AvailableQuantity)
	assert.Zero(t, f.count(t, &models.Issue{}))
	assert.Zero(t, f.count(t, &models.IssueItem{}))
	assert.Zero(t, f.count(t, &models.Student{}))
}

func TestCreateIssueNamesFirstOffendingLine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.restock(t, "Arduino", 1)
	missing := uuid.New()

	_, err := f.svc.CreateIssue(ctx, issueInput(
		IssueLine{ComponentID: missing, Quantity: 1},
		IssueLine{ComponentID: a.ID, Quantity: 9},
	))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	details := pkgerrors.As(err).Details().(map[string]any)
	assert.Equal(t, missing, details["component_id"])
}

func TestCreateIssueMergesRepeatedComponents(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.restock(t, "Jumper", 5)

	_, err := f.svc.CreateIssue(ctx, issueInput(
		IssueLine{ComponentID: c.ID, Quantity: 3},
		IssueLine{ComponentID: c.ID, Quantity: 3},
	))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))

	res, err := f.svc.CreateIssue(ctx, issueInput(
		IssueLine{ComponentID: c.ID, Quantity: 2},
		IssueLine{ComponentID: c.ID, Quantity: 3},
	))
	require.NoError(t, err)
	require.Len(t, res.Items, 2)
	assert.Equal(t, 1, res.Items[0].LineNo)
	assert.Equal(t, 2, res.Items[1].LineNo)
	assert.Equal(t, 0, f.component(t, c.ID).AvailableQuantity)
	f.assertConservation(t, c.ID)
}

func TestCreateIssueValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIssue(ctx, issueInput())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeEmptyRequest))

	in := issueInput(IssueLine{ComponentID: uuid.New(), Quantity: 1})
	in.Phone = "  "
	_, err = f.svc.CreateIssue(ctx, in)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.CreateIssue(ctx, issueInput(IssueLine{ComponentID: uuid.New(), Quantity: 0}))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateIssueOverwritesStudentDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.restock(t, "Sensor", 10)

	_, err := f.svc.CreateIssue(ctx, issueInput(IssueLine{ComponentID: c.ID, Quantity: 1}))
	require.NoError(t, err)

	in := issueInput(IssueLine{ComponentID: c.ID, Quantity: 1})
	in.StudentName = "Asha K"
	in.USN = "1ab20cs001"
	in.Phone = "8888888888"
	res, err := f.svc.CreateIssue(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, int64(1), f.count(t, &models.Student{}))
	assert.Equal(t, "Asha K", res.Student.Name)
	assert.Equal(t, "8888888888", res.Student.Phone)
	assert.Equal(t, "1AB20CS001", res.Student.USN)
}

func TestConcurrentIssuesNeverOverIssue(t *testing.T) {
	f := newFixture(t)
	c := f.restock(t, "Oscilloscope probe", 4)

	const workers = 2
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CreateIssue(context.Background(), issueInput(IssueLine{ComponentID: c.ID, Quantity: 4}))
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock):
			insufficient++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, insufficient)
	assert.Equal(t, 0, f.component(t, c.ID).AvailableQuantity)
	f.assertConservation(t, c.ID)
}

func TestReturnItemGuards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.restock(t, "Multimeter", 3)
	other := f.restock(t, "Soldering iron", 1)
	res, err := f.svc.CreateIssue(ctx, issueInput(IssueLine{ComponentID: c.ID, Quantity: 2}))
	require.NoError(t, err)
	item := res.Items[0]

	_, err = f.svc.ReturnItem(ctx, ReturnItemInput{IssueItemID: item.ID, ReturnQuantity: 3})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOverReturn))

	_, err = f.svc.ReturnItem(ctx, ReturnItemInput{IssueItemID: item.ID, ReturnQuantity: 1, ComponentID: &other.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.ReturnItem(ctx, ReturnItemInput{IssueItemID: uuid.New(), ReturnQuantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.ReturnItem(ctx, ReturnItemInput{IssueItemID: item.ID, ReturnQuantity: 0})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, 1, f.component(t, c.ID).AvailableQuantity)
	assert.Equal(t, 1, f.component(t, other.ID).AvailableQuantity)

	done, err := f.svc.ReturnItem(ctx, ReturnItemInput{IssueItemID: item.ID, ReturnQuantity: 2, ComponentID: &c.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.IssueItemStatusSettled, done.Item.Status())

	_, err = f.svc.ReturnItem(ctx, ReturnItemInput{IssueItemID: item.ID, ReturnQuantity: 1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeOverReturn))
	f.assertConservation(t, c.ID)
}

func TestReturnAllIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.restock(t, "Motor", 10)
	b := f.restock(t, "Driver board", 10)
	res, err := f.svc.CreateIssue(ctx, issueInput(
		IssueLine{ComponentID: a.ID, Quantity: 4},
		IssueLine{ComponentID: b.ID, Quantity: 6},
	))
	require.NoError(t, err)
	_, err = f.svc.ReturnItem(ctx, ReturnItemInput{IssueItemID: res.Items[0].ID, ReturnQuantity: 4})
	require.NoError(t, err)

	first, err := f.svc.ReturnAll(ctx, ReturnAllInput{IssueID: res.Issue.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, first.SettledItems)
	assert.Equal(t, 6, first.UnitsReturned)

	second, err := f.svc.ReturnAll(ctx, ReturnAllInput{IssueID: res.Issue.ID})
	require.NoError(t, err)
	assert.Zero(t, second.SettledItems)
	assert.Zero(t, second.UnitsReturned)

	assert.Equal(t, 10, f.component(t, a.ID).AvailableQuantity)
	assert.Equal(t, 10, f.component(t, b.ID).AvailableQuantity)

	_, err = f.svc.ReturnAll(ctx, ReturnAllInput{IssueID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestDeleteComponentBlockedByOutstandingItems(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.restock(t, "Relay", 3)
	res, err := f.svc.CreateIssue(ctx, issueInput(IssueLine{ComponentID: c.ID, Quantity: 1}))
	require.NoError(t, err)

	err = f.svc.DeleteComponent(ctx, DeleteInput{ComponentID: c.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeHasActiveIssues))
	assert.Equal(t, int64(1), f.count(t, &models.Component{}))

	_, err = f.svc.ReturnAll(ctx, ReturnAllInput{IssueID: res.Issue.ID})
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteComponent(ctx, DeleteInput{ComponentID: c.ID}))

	var item models.IssueItem
	require.NoError(t, f.client.DB().Where("id = ?", res.Items[0].ID).Take(&item).Error)
	assert.Nil(t, item.ComponentID)
	assert.Equal(t, "Relay", item.ComponentName)

	err = f.svc.DeleteComponent(ctx, DeleteInput{ComponentID: c.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRenameComponent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.restock(t, "Buzzer", 1)
	f.restock(t, "Speaker", 1)

	_, err := f.svc.RenameComponent(ctx, RenameInput{ComponentID: a.ID, NewName: "Speaker"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.RenameComponent(ctx, RenameInput{ComponentID: a.ID, NewName: "   "})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	renamed, err := f.svc.RenameComponent(ctx, RenameInput{ComponentID: a.ID, NewName: "Piezo buzzer"})
	require.NoError(t, err)
	assert.Equal(t, "Piezo buzzer", renamed.Name)
	assert.Equal(t, "Piezo buzzer", f.component(t, a.ID).Name)

	_, err = f.svc.RenameComponent(ctx, RenameInput{ComponentID: uuid.New(), NewName: "Ghost"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMovementsTrackEveryMutation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.restock(t, "Transistor", 10)
	res, err := f.svc.CreateIssue(ctx, issueInput(IssueLine{ComponentID: c.ID, Quantity: 3}))
	require.NoError(t, err)
	_, err = f.svc.ReturnItem(ctx, ReturnItemInput{IssueItemID: res.Items[0].ID, ReturnQuantity: 1})
	require.NoError(t, err)
	_, err = f.svc.Resize(ctx, ResizeInput{ComponentID: c.ID, NewTotalQuantity: 12})
	require.NoError(t, err)
	_, err = f.svc.Resize(ctx, ResizeInput{ComponentID: c.ID, NewTotalQuantity: 12})
	require.NoError(t, err)

	movements, err := f.svc.ListMovements(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, movements, 4)

	byType := map[enums.MovementType]models.StockMovement{}
	sumTotal, sumAvailable := 0, 0
	for _, m := range movements {
		byType[m.Type] = m
		sumTotal += m.DeltaTotal
		sumAvailable += m.DeltaAvailable
	}
	assert.Equal(t, -3, byType[enums.MovementTypeIssue].DeltaAvailable)
	assert.Equal(t, 1, byType[enums.MovementTypeReturn].DeltaAvailable)
	assert.Equal(t, 2, byType[enums.MovementTypeResize].DeltaTotal)

	current := f.component(t, c.ID)
	assert.Equal(t, current.TotalQuantity, sumTotal)
	assert.Equal(t, current.AvailableQuantity, sumAvailable)

	_, err = f.svc.ListMovements(ctx, uuid.New(), 10)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
