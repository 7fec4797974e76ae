package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/domain/approval"
	"github.com/garyjia/procure-approval/internal/domain/authz"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
)

func newRequisitionService() (RequisitionService, *memoryRepo, *mockPublisher, *mockExporter) {
	repo := newMemoryRepo()
	pub := &mockPublisher{}
	exp := &mockExporter{}
	return NewRequisitionService(repo, &mockTxManager{}, pub, exp, &mockLogger{}), repo, pub, exp
}

func TestRequisitionService_Create(t *testing.T) {
	svc, repo, pub, _ := newRequisitionService()

	req, err := svc.Create(context.Background(), authz.Identity{UserID: "u1"}, expenseInput("m1", "m2"))
	require.NoError(t, err)

	assert.Equal(t, "u1", req.RequesterID)
	assert.Equal(t, requisition.StatusPending, req.Status)
	assert.Equal(t, int64(1), req.Version)
	assert.Len(t, repo.items, 1)
	require.Len(t, pub.events, 1)
	assert.Equal(t, req.ID, pub.events[0].RequisitionID)
}

func TestRequisitionService_CreateInvalid(t *testing.T) {
	svc, repo, pub, _ := newRequisitionService()

	in := expenseInput("m1")
	in.Allocations = []requisition.Allocation{{DepartmentID: "eng", Percentage: decimal.NewFromInt(90)}}

	_, err := svc.Create(context.Background(), authz.Identity{UserID: "u1"}, in)
	assert.ErrorIs(t, err, requisition.ErrInvalidAllocation)
	assert.Empty(t, repo.items)
	assert.Empty(t, pub.events)

	_, err = svc.Create(context.Background(), authz.Identity{}, expenseInput("m1"))
	assert.ErrorIs(t, err, port.ErrUnauthenticated)
}

func TestRequisitionService_GetVisibility(t *testing.T) {
	svc, _, _, _ := newRequisitionService()
	ctx := context.Background()
	req, err := svc.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1"))
	require.NoError(t, err)

	view, err := svc.Get(ctx, manager("m1"), req.ID)
	require.NoError(t, err)
	assert.True(t, view.Capabilities.CanApproveAsManager)
	assert.False(t, view.Capabilities.CanApproveAsDirector)

	view, err = svc.Get(ctx, authz.Identity{UserID: "m1", Role: authz.RoleEmployee}, req.ID)
	require.NoError(t, err)
	assert.False(t, view.Capabilities.CanApproveAsManager, "assigned manager with an employee role")

	_, err = svc.Get(ctx, authz.Identity{UserID: "outsider", Role: authz.RoleManager}, req.ID)
	assert.ErrorIs(t, err, authz.ErrNotAuthorized)

	_, err = svc.Get(ctx, manager("m1"), uuid.New())
	assert.ErrorIs(t, err, port.ErrNotFound)
}

func TestRequisitionService_Lists(t *testing.T) {
	svc, repo, _, _ := newRequisitionService()
	ctx := context.Background()
	_, err := svc.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1"))
	require.NoError(t, err)
	_, err = svc.Create(ctx, authz.Identity{UserID: "u2"}, expenseInput("m2"))
	require.NoError(t, err)

	mine, err := svc.ListMine(ctx, authz.Identity{UserID: "u1"}, port.ListFilter{Limit: 1000, Offset: -3})
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	assert.Equal(t, port.ListFilter{Limit: maxPageSize}, repo.lastQuery)

	inbox, err := svc.ListInbox(ctx, director("d1"), port.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, inbox, 2)
	assert.Equal(t, defaultPageSize, repo.lastQuery.Limit)

	inbox, err = svc.ListInbox(ctx, manager("m2"), port.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, inbox, 1)
}

func TestRequisitionService_RecordsAndExport(t *testing.T) {
	repo := newMemoryRepo()
	exp := &mockExporter{}
	tx := &mockTxManager{}
	reqs := NewRequisitionService(repo, tx, nil, exp, &mockLogger{})
	decisions := NewDecisionService(repo, tx, nil, approval.NewCoordinator(), &mockLogger{})
	ctx := context.Background()

	req, err := reqs.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1"))
	require.NoError(t, err)
	_, err = decisions.DecideAsManager(ctx, manager("m1"), req.ID, req.Quotes[1].ID, requisition.DecisionReject)
	require.NoError(t, err)

	records, err := reqs.Records(ctx, authz.Identity{UserID: "u1"}, req.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, requisition.DecisionReject, records[0].Decision)

	var buf bytes.Buffer
	require.NoError(t, reqs.Export(ctx, authz.Identity{UserID: "u1"}, req.ID, &buf))
	assert.Equal(t, "standing desks", buf.String())
	assert.Equal(t, []uuid.UUID{req.ID}, exp.exported)

	err = reqs.Export(ctx, authz.Identity{UserID: "stranger"}, req.ID, &buf)
	assert.ErrorIs(t, err, authz.ErrNotAuthorized)
}
