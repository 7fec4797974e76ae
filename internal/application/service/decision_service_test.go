package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/domain/approval"
	"github.com/garyjia/procure-approval/internal/domain/authz"
	"github.com/garyjia/procure-approval/internal/domain/event"
	"github.com/garyjia/procure-approval/internal/domain/requisition"
	"github.com/garyjia/procure-approval/internal/domain/workflow"
)

type decisionFixture struct {
	repo      *memoryRepo
	publisher *mockPublisher
	observer  *mockObserver
	reqs      RequisitionService
	decisions DecisionService
}

func newDecisionFixture(opts ...approval.Option) *decisionFixture {
	f := &decisionFixture{
		repo:      newMemoryRepo(),
		publisher: &mockPublisher{},
		observer:  &mockObserver{},
	}
	tx := &mockTxManager{}
	f.reqs = NewRequisitionService(f.repo, tx, f.publisher, &mockExporter{}, &mockLogger{})
	f.decisions = NewDecisionService(f.repo, tx, f.publisher, approval.NewCoordinator(opts...), &mockLogger{}, WithDecisionObserver(f.observer))
	return f
}

func manager(id string) authz.Identity  { return authz.Identity{UserID: id, Role: authz.RoleManager} }
func director(id string) authz.Identity { return authz.Identity{UserID: id, Role: authz.RoleDirector} }

func TestDecisionService_ReferenceScenario(t *testing.T) {
	f := newDecisionFixture()
	ctx := context.Background()

	req, err := f.reqs.Create(ctx, authz.Identity{UserID: "u1", Role: authz.RoleEmployee}, expenseInput("m1", "m2"))
	require.NoError(t, err)
	a, b := req.Quotes[0].ID, req.Quotes[1].ID

	_, err = f.decisions.DecideAsManager(ctx, manager("m1"), req.ID, a, requisition.DecisionApprove)
	require.NoError(t, err)

	_, err = f.decisions.DecideAsManager(ctx, manager("m2"), req.ID, b, requisition.DecisionApprove)
	assert.ErrorIs(t, err, requisition.ErrQuoteAlreadyChosen)

	_, err = f.decisions.DecideAsDirector(ctx, director("d1"), req.ID, a, requisition.DecisionApprove)
	var consensusErr *requisition.ConsensusNotReachedError
	require.ErrorAs(t, err, &consensusErr)
	assert.Equal(t, 1, consensusErr.Current)
	assert.Equal(t, 2, consensusErr.Required)

	_, err = f.decisions.DecideAsManager(ctx, manager("m2"), req.ID, a, requisition.DecisionApprove)
	require.NoError(t, err)

	out, err := f.decisions.DecideAsDirector(ctx, director("d1"), req.ID, a, requisition.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, requisition.StatusApproved, out.Status)

	stored, err := f.repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, requisition.StatusApproved, stored.Status)
	assert.Equal(t, workflow.StateApproved, stored.Quotes[0].State)
	assert.Equal(t, workflow.StateRejected, stored.Quotes[1].State)
	assert.Equal(t, workflow.StateRejected, stored.Quotes[2].State)
	assert.Len(t, stored.Records, 3)
	assert.Equal(t, int64(4), stored.Version)

	assert.Equal(t, []event.Type{
		event.TypeRequisitionCreated,
		event.TypeManagerApproved,
		event.TypeManagerApproved,
		event.TypeQuoteFunded,
		event.TypeRequisitionApproved,
	}, f.publisher.types())

	assert.Equal(t, []string{
		"manager:ok", "manager:conflict", "director:conflict", "manager:ok", "director:ok",
	}, f.observer.results)
}

func TestDecisionService_RepeatedApprovalDoesNotSave(t *testing.T) {
	f := newDecisionFixture()
	ctx := context.Background()
	req, err := f.reqs.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.decisions.DecideAsManager(ctx, manager("m1"), req.ID, req.Quotes[0].ID, requisition.DecisionApprove)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.repo.saveCount())
	assert.Equal(t, []string{"manager:ok", "manager:noop", "manager:noop"}, f.observer.results)
}

func TestDecisionService_ConcurrentManagersReachConsensus(t *testing.T) {
	managers := make([]string, 8)
	for i := range managers {
		managers[i] = fmt.Sprintf("m%d", i)
	}
	f := newDecisionFixture()
	ctx := context.Background()
	req, err := f.reqs.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput(managers...))
	require.NoError(t, err)
	quoteID := req.Quotes[0].ID

	var wg sync.WaitGroup
	errs := make(chan error, len(managers))
	for _, m := range managers {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := f.decisions.DecideAsManager(ctx, manager(id), req.ID, quoteID, requisition.DecisionApprove)
			errs <- err
		}(m)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}

	stored, err := f.repo.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, requisition.HasConsensus(stored, quoteID))
	assert.Len(t, stored.Records, len(managers))

	_, err = f.decisions.DecideAsDirector(ctx, director("d1"), req.ID, quoteID, requisition.DecisionApprove)
	assert.NoError(t, err)
}

func TestDecisionService_ConcurrentCompetingQuotes(t *testing.T) {
	f := newDecisionFixture()
	ctx := context.Background()
	req, err := f.reqs.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1", "m2"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, m := range []string{"m1", "m2"} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, results[i] = f.decisions.DecideAsManager(ctx, manager(id), req.ID, req.Quotes[i].ID, requisition.DecisionApprove)
		}(i, m)
	}
	wg.Wait()

	var ok, chosen int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, requisition.ErrQuoteAlreadyChosen):
			chosen++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, chosen)
}

func TestDecisionService_ConcurrentDirectorApprovals(t *testing.T) {
	boss := authz.Identity{UserID: "boss", Role: authz.RoleEmployeeAdmin, IsMaster: true}

	race := func(t *testing.T, withConsensus bool, first func(DecisionService, *requisition.Requisition) error) {
		f := newDecisionFixture()
		ctx := context.Background()
		req, err := f.reqs.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1"))
		require.NoError(t, err)
		if withConsensus {
			_, err = f.decisions.DecideAsManager(ctx, manager("m1"), req.ID, req.Quotes[0].ID, requisition.DecisionApprove)
			require.NoError(t, err)
		}

		var wg sync.WaitGroup
		results := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			results[0] = first(f.decisions, req)
		}()
		go func() {
			defer wg.Done()
			_, results[1] = f.decisions.DecideAsMaster(ctx, boss, req.ID, req.Quotes[1].ID, requisition.ActingDirector, requisition.DecisionApprove, "")
		}()
		wg.Wait()

		ok := 0
		for _, err := range results {
			if err == nil {
				ok++
			}
		}
		require.Equal(t, 1, ok, "results: %v", results)

		stored, err := f.repo.GetByID(ctx, req.ID)
		require.NoError(t, err)
		assert.Equal(t, requisition.StatusApproved, stored.Status)
		approved := 0
		for _, q := range stored.Quotes {
			if q.State == workflow.StateApproved {
				approved++
			}
		}
		assert.Equal(t, 1, approved)
	}

	t.Run("director against master", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			race(t, true, func(svc DecisionService, req *requisition.Requisition) error {
				_, err := svc.DecideAsDirector(context.Background(), director("d1"), req.ID, req.Quotes[0].ID, requisition.DecisionApprove)
				return err
			})
		}
	})

	t.Run("master against master", func(t *testing.T) {
		for i := 0; i < 50; i++ {
			race(t, false, func(svc DecisionService, req *requisition.Requisition) error {
				_, err := svc.DecideAsMaster(context.Background(), boss, req.ID, req.Quotes[0].ID, requisition.ActingDirector, requisition.DecisionApprove, "")
				return err
			})
		}
	})
}

func TestDecisionService_WriteRunsWithoutRetry(t *testing.T) {
	f := newDecisionFixture()
	ctx := context.Background()
	req, err := f.reqs.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1"))
	require.NoError(t, err)

	var retryAllowed []bool
	tx := &mockTxManager{withTransactionFunc: func(ctx context.Context, fn func(ctx context.Context) error) error {
		retryAllowed = append(retryAllowed, port.RetryAllowed(ctx))
		return fn(ctx)
	}}
	svc := NewDecisionService(f.repo, tx, f.publisher, approval.NewCoordinator(), &mockLogger{})

	_, err = svc.DecideAsManager(ctx, manager("m1"), req.ID, req.Quotes[0].ID, requisition.DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, retryAllowed)
}

func TestDecisionService_StaleVersionIsConflict(t *testing.T) {
	f := newDecisionFixture()
	ctx := context.Background()
	req, err := f.reqs.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1", "m2"))
	require.NoError(t, err)

	// Another process committed in between.
	f.repo.mu.Lock()
	f.repo.items[req.ID].Version = 7
	f.repo.mu.Unlock()

	tx := &mockTxManager{withTransactionFunc: func(ctx context.Context, fn func(ctx context.Context) error) error {
		f.repo.mu.Lock()
		f.repo.items[req.ID].Version = 8
		f.repo.mu.Unlock()
		return fn(ctx)
	}}
	svc := NewDecisionService(f.repo, tx, f.publisher, approval.NewCoordinator(), &mockLogger{})

	_, err = svc.DecideAsManager(ctx, manager("m1"), req.ID, req.Quotes[0].ID, requisition.DecisionApprove)
	assert.ErrorIs(t, err, port.ErrConcurrentModification)
	assert.Equal(t, []event.Type{event.TypeRequisitionCreated}, f.publisher.types())
}

func TestDecisionService_SaveFailureNotPublished(t *testing.T) {
	f := newDecisionFixture()
	ctx := context.Background()
	req, err := f.reqs.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1"))
	require.NoError(t, err)
	f.repo.saveErr = errors.New("disk full")

	_, err = f.decisions.DecideAsManager(ctx, manager("m1"), req.ID, req.Quotes[0].ID, requisition.DecisionReject)
	assert.Error(t, err)
	assert.Equal(t, []event.Type{event.TypeRequisitionCreated}, f.publisher.types())
	assert.Equal(t, []string{"manager:error"}, f.observer.results)
}

func TestDecisionService_NotFound(t *testing.T) {
	f := newDecisionFixture()

	_, err := f.decisions.DecideAsDirector(context.Background(), director("d1"), uuid.New(), uuid.New(), requisition.DecisionApprove)
	assert.ErrorIs(t, err, port.ErrNotFound)
	assert.Equal(t, []string{"director:not_found"}, f.observer.results)
}

func TestDecisionService_MasterPolicies(t *testing.T) {
	boss := authz.Identity{UserID: "boss", Role: authz.RoleEmployeeAdmin, IsMaster: true}

	t.Run("bypass", func(t *testing.T) {
		f := newDecisionFixture()
		ctx := context.Background()
		req, err := f.reqs.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1", "m2"))
		require.NoError(t, err)

		out, err := f.decisions.DecideAsMaster(ctx, boss, req.ID, req.Quotes[2].ID, requisition.ActingDirector, requisition.DecisionApprove, "")
		require.NoError(t, err)
		assert.Equal(t, requisition.StatusApproved, out.Status)
		assert.Equal(t, []string{"master_director:ok"}, f.observer.results)
	})

	t.Run("consensus enforced", func(t *testing.T) {
		f := newDecisionFixture(approval.WithMasterConsensusBypass(false))
		ctx := context.Background()
		req, err := f.reqs.Create(ctx, authz.Identity{UserID: "u1"}, expenseInput("m1", "m2"))
		require.NoError(t, err)

		_, err = f.decisions.DecideAsMaster(ctx, boss, req.ID, req.Quotes[2].ID, requisition.ActingDirector, requisition.DecisionApprove, "")
		assert.ErrorIs(t, err, requisition.ErrConsensusNotReached)

		out, err := f.decisions.DecideAsMaster(ctx, boss, req.ID, req.Quotes[2].ID, requisition.ActingManager, requisition.DecisionApprove, "")
		require.NoError(t, err)
		assert.Len(t, out.Records, 2)

		out, err = f.decisions.DecideAsMaster(ctx, boss, req.ID, req.Quotes[2].ID, requisition.ActingDirector, requisition.DecisionApprove, "")
		require.NoError(t, err)
		assert.Equal(t, requisition.StatusApproved, out.Status)
	})
}

func TestKeyedLock_ReleasesEntries(t *testing.T) {
	locks := newKeyedLock()
	id := uuid.New()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(id)
			counter++
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Equal(t, 0, locks.size())
}
