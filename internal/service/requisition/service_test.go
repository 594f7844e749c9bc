package requisition

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdiawara/branchstock/internal/domain/models"
)

// fakeStore mimics the conditional-write semantics of the Mongo repository:
// a mutation only applies when the stored status matches the expectation.
type fakeStore struct {
	mu           sync.Mutex
	requisitions map[string]*models.Requisition
	lastFilter   models.RequisitionFilter
}

func newFakeStore() *fakeStore {
	return &fakeStore{requisitions: map[string]*models.Requisition{}}
}

func (f *fakeStore) snapshot(req *models.Requisition) *models.Requisition {
	cp := *req
	cp.Items = append([]models.Item(nil), req.Items...)
	return &cp
}

func (f *fakeStore) Insert(_ context.Context, req *models.Requisition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requisitions[req.ID] = f.snapshot(req)
	return nil
}

func (f *fakeStore) FindByID(_ context.Context, id string) (*models.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requisitions[id]
	if !ok {
		return nil, &models.NotFoundError{Entity: "requisition", ID: id}
	}
	return f.snapshot(req), nil
}

func (f *fakeStore) List(_ context.Context, filter models.RequisitionFilter) ([]models.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastFilter = filter

	out := []models.Requisition{}
	for _, req := range f.requisitions {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.DestinationBranch != "" && req.DestinationBranch != filter.DestinationBranch {
			continue
		}
		out = append(out, *f.snapshot(req))
	}
	return out, nil
}

func (f *fakeStore) Approve(_ context.Context, id string, items []models.Item, approvedBy string, deliveryDate *time.Time, at time.Time) (*models.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requisitions[id]
	if !ok || req.Status != models.StatusPending {
		return nil, models.ErrStateNotMatched
	}
	req.Status = models.StatusApproved
	req.Items = append([]models.Item(nil), items...)
	req.ApprovedBy = approvedBy
	req.ApprovedAt = &at
	req.DeliveryDate = deliveryDate
	req.UpdatedAt = at
	return f.snapshot(req), nil
}

func (f *fakeStore) Reject(_ context.Context, id, reason, rejectedBy string, at time.Time) (*models.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requisitions[id]
	if !ok || req.Status != models.StatusPending {
		return nil, models.ErrStateNotMatched
	}
	req.Status = models.StatusRejected
	req.RejectedBy = rejectedBy
	req.RejectedAt = &at
	req.RejectionReason = reason
	req.UpdatedAt = at
	return f.snapshot(req), nil
}

func (f *fakeStore) MarkInTransit(_ context.Context, id string, at time.Time) (*models.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requisitions[id]
	if !ok || req.Status != models.StatusApproved {
		return nil, models.ErrStateNotMatched
	}
	req.Status = models.StatusInTransit
	req.UpdatedAt = at
	return f.snapshot(req), nil
}

func (f *fakeStore) ClaimReceive(_ context.Context, id string, at time.Time) (*models.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requisitions[id]
	if !ok || req.Status != models.StatusInTransit || req.Receiving {
		return nil, models.ErrStateNotMatched
	}
	req.Receiving = true
	req.ReceivingAt = &at
	req.UpdatedAt = at
	return f.snapshot(req), nil
}

func (f *fakeStore) ReleaseReceive(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.requisitions[id]; ok {
		req.Receiving = false
		req.ReceivingAt = nil
		req.UpdatedAt = at
	}
	return nil
}

func (f *fakeStore) CompleteReceive(_ context.Context, id string, report *models.StockTransferReport, at time.Time) (*models.Requisition, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requisitions[id]
	if !ok || req.Status != models.StatusInTransit || !req.Receiving {
		return nil, models.ErrStateNotMatched
	}
	req.Status = models.StatusReceived
	req.StockTransfer = report
	req.ReceivedAt = &at
	req.Receiving = false
	req.ReceivingAt = nil
	req.UpdatedAt = at
	return f.snapshot(req), nil
}

func (f *fakeStore) DeletePending(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.requisitions[id]
	if !ok || req.Status != models.StatusPending {
		return models.ErrStateNotMatched
	}
	delete(f.requisitions, id)
	return nil
}

// stubExecutor returns a canned report and counts invocations.
type stubExecutor struct {
	mu     sync.Mutex
	report *models.StockTransferReport
	calls  int
}

func (s *stubExecutor) Execute(_ context.Context, _ *models.Requisition, _ models.Principal) *models.StockTransferReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls += 1
	return s.report
}

var (
	requester = models.Principal{UserID: "u-req", Name: "Aissatou", Email: "a@shop.test", Role: models.RoleRequester, Branch: "B"}
	approver  = models.Principal{UserID: "u-app", Name: "Mamadou", Email: "m@shop.test", Role: models.RoleApprover, Branch: "HQ"}
)

func validInput() CreateInput {
	return CreateInput{
		Items:        []CreateItemInput{{ProductID: "p1", ProductName: "Soap", RequestedQty: 4}},
		SourceBranch: "A",
	}
}

func newTestService(store Store, exec TransferExecutor) *Service {
	s := NewService(store, exec, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return s
}

func createPending(t *testing.T, s *Service) *models.Requisition {
	t.Helper()
	req, err := s.Create(context.Background(), requester, validInput())
	require.NoError(t, err)
	return req
}

func TestCreateValidation(t *testing.T) {
	s := newTestService(newFakeStore(), &stubExecutor{})

	manyItems := make([]CreateItemInput, 51)
	for i := range manyItems {
		manyItems[i] = CreateItemInput{ProductID: "p", RequestedQty: 1}
	}

	cases := []struct {
		name  string
		input CreateInput
	}{
		{"no items", CreateInput{SourceBranch: "A"}},
		{"too many items", CreateInput{Items: manyItems, SourceBranch: "A"}},
		{"zero quantity", CreateInput{Items: []CreateItemInput{{ProductID: "p", RequestedQty: 0}}, SourceBranch: "A"}},
		{"quantity above cap", CreateInput{Items: []CreateItemInput{{ProductID: "p", RequestedQty: 10001}}, SourceBranch: "A"}},
		{"missing source branch", CreateInput{Items: []CreateItemInput{{ProductID: "p", RequestedQty: 1}}}},
		{"same branch", CreateInput{Items: []CreateItemInput{{ProductID: "p", RequestedQty: 1}}, SourceBranch: "B"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Create(context.Background(), requester, tc.input)
			var verr *models.ValidationError
			require.ErrorAs(t, err, &verr)
		})
	}
}

func TestCreateForcesDestinationBranch(t *testing.T) {
	s := newTestService(newFakeStore(), &stubExecutor{})

	req := createPending(t, s)

	assert.Equal(t, "B", req.DestinationBranch)
	assert.Equal(t, models.StatusPending, req.Status)
	assert.Regexp(t, `^REQ-202603-\d{4}$`, req.Number)
	assert.Equal(t, requester.UserID, req.RequestedBy.UserID)
	require.Len(t, req.Items, 1)
	assert.Nil(t, req.Items[0].ApprovedQty)
}

func TestApproveDefaultsToRequestedQuantities(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, &stubExecutor{})

	req, err := s.Create(context.Background(), requester, CreateInput{
		Items: []CreateItemInput{
			{ProductID: "p1", RequestedQty: 4},
			{ProductID: "p2", RequestedQty: 7},
		},
		SourceBranch: "A",
	})
	require.NoError(t, err)

	updated, err := s.Approve(context.Background(), approver, req.ID, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.StatusApproved, updated.Status)
	assert.Equal(t, approver.UserID, updated.ApprovedBy)
	require.NotNil(t, updated.Items[0].ApprovedQty)
	assert.Equal(t, 4, *updated.Items[0].ApprovedQty)
	assert.Equal(t, 7, *updated.Items[1].ApprovedQty)
}

func TestApproveWithAdjustedQuantities(t *testing.T) {
	s := newTestService(newFakeStore(), &stubExecutor{})
	req := createPending(t, s)

	updated, err := s.Approve(context.Background(), approver, req.ID, []int{2}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, *updated.Items[0].ApprovedQty)
}

func TestApproveRejectsMismatchedQuantities(t *testing.T) {
	s := newTestService(newFakeStore(), &stubExecutor{})
	req := createPending(t, s)

	_, err := s.Approve(context.Background(), approver, req.ID, []int{2, 3}, nil)
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = s.Approve(context.Background(), approver, req.ID, []int{10001}, nil)
	require.ErrorAs(t, err, &verr)
}

func TestRequesterMayNotTransition(t *testing.T) {
	s := newTestService(newFakeStore(), &stubExecutor{})
	req := createPending(t, s)

	var aerr *models.AuthorizationError

	_, err := s.Approve(context.Background(), requester, req.ID, nil, nil)
	require.ErrorAs(t, err, &aerr)

	_, err = s.Reject(context.Background(), requester, req.ID, "no")
	require.ErrorAs(t, err, &aerr)

	_, err = s.MarkInTransit(context.Background(), requester, req.ID)
	require.ErrorAs(t, err, &aerr)

	_, err = s.MarkReceived(context.Background(), requester, req.ID)
	require.ErrorAs(t, err, &aerr)

	err = s.DeleteIfPending(context.Background(), requester, req.ID)
	require.ErrorAs(t, err, &aerr)
}

func TestOnlyForwardTransitionsAreReachable(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, &stubExecutor{report: &models.StockTransferReport{
		Successful: []models.TransferResult{{ProductID: "p1", Quantity: 4}},
		Failed:     []models.TransferResult{},
	}})
	req := createPending(t, s)
	ctx := context.Background()

	var conflict *models.StateConflictError

	// pending: receive and dispatch are unreachable.
	_, err := s.MarkInTransit(ctx, approver, req.ID)
	require.ErrorAs(t, err, &conflict)
	_, err = s.MarkReceived(ctx, approver, req.ID)
	require.ErrorAs(t, err, &conflict)

	_, err = s.Approve(ctx, approver, req.ID, nil, nil)
	require.NoError(t, err)

	// approved: approve/reject are no longer reachable.
	_, err = s.Approve(ctx, approver, req.ID, nil, nil)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, models.StatusApproved, conflict.Current)
	assert.Equal(t, models.StatusPending, conflict.Required)
	_, err = s.Reject(ctx, approver, req.ID, "late")
	require.ErrorAs(t, err, &conflict)

	_, err = s.MarkInTransit(ctx, approver, req.ID)
	require.NoError(t, err)

	_, err = s.MarkReceived(ctx, approver, req.ID)
	require.NoError(t, err)

	// received is terminal.
	_, err = s.MarkReceived(ctx, approver, req.ID)
	require.ErrorAs(t, err, &conflict)

	stored, err := store.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, stored.Status)
	require.NotNil(t, stored.StockTransfer)
	assert.Len(t, stored.StockTransfer.Successful, 1)
}

func TestRejectIsTerminalAndRecordsReason(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, &stubExecutor{})
	req := createPending(t, s)
	ctx := context.Background()

	_, err := s.Reject(ctx, approver, req.ID, "")
	var verr *models.ValidationError
	require.ErrorAs(t, err, &verr)

	updated, err := s.Reject(ctx, approver, req.ID, "budget freeze")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, updated.Status)
	assert.Equal(t, "budget freeze", updated.RejectionReason)

	var conflict *models.StateConflictError
	_, err = s.Approve(ctx, approver, req.ID, nil, nil)
	require.ErrorAs(t, err, &conflict)
}

func TestMarkReceivedTotalFailureKeepsInTransit(t *testing.T) {
	store := newFakeStore()
	exec := &stubExecutor{report: &models.StockTransferReport{
		Successful: []models.TransferResult{},
		Failed:     []models.TransferResult{{ProductID: "p1", Quantity: 4, Reason: "product not found"}},
	}}
	s := newTestService(store, exec)
	req := createPending(t, s)
	ctx := context.Background()

	_, err := s.Approve(ctx, approver, req.ID, nil, nil)
	require.NoError(t, err)
	_, err = s.MarkInTransit(ctx, approver, req.ID)
	require.NoError(t, err)

	_, err = s.MarkReceived(ctx, approver, req.ID)
	var terr *models.TransferFailedError
	require.ErrorAs(t, err, &terr)
	require.Len(t, terr.Report.Failed, 1)

	stored, err := store.FindByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInTransit, stored.Status)
	assert.False(t, stored.Receiving, "claim must be released for retry")
	assert.Nil(t, stored.StockTransfer)

	// Retry succeeds once the transfer can proceed.
	exec.report = &models.StockTransferReport{
		Successful: []models.TransferResult{{ProductID: "p1", Quantity: 4}},
		Failed:     []models.TransferResult{},
	}
	updated, err := s.MarkReceived(ctx, approver, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, updated.Status)
}

func TestMarkReceivedPartialFailureStillCompletes(t *testing.T) {
	store := newFakeStore()
	exec := &stubExecutor{report: &models.StockTransferReport{
		Successful: []models.TransferResult{{ProductID: "x", Quantity: 5}},
		Failed:     []models.TransferResult{{ProductID: "y", Quantity: 5, Reason: "insufficient stock at A: have 1, need 5"}},
	}}
	s := newTestService(store, exec)
	req := createPending(t, s)
	ctx := context.Background()

	_, err := s.Approve(ctx, approver, req.ID, nil, nil)
	require.NoError(t, err)
	_, err = s.MarkInTransit(ctx, approver, req.ID)
	require.NoError(t, err)

	updated, err := s.MarkReceived(ctx, approver, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReceived, updated.Status)
	require.NotNil(t, updated.StockTransfer)
	assert.Len(t, updated.StockTransfer.Successful, 1)
	assert.Len(t, updated.StockTransfer.Failed, 1)
	assert.Contains(t, updated.StockTransfer.Failed[0].Reason, "insufficient stock")
}

func TestConcurrentMarkReceivedRunsExactlyOnce(t *testing.T) {
	store := newFakeStore()
	exec := &stubExecutor{report: &models.StockTransferReport{
		Successful: []models.TransferResult{{ProductID: "p1", Quantity: 4}},
		Failed:     []models.TransferResult{},
	}}
	s := newTestService(store, exec)
	req := createPending(t, s)
	ctx := context.Background()

	_, err := s.Approve(ctx, approver, req.ID, nil, nil)
	require.NoError(t, err)
	_, err = s.MarkInTransit(ctx, approver, req.ID)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.MarkReceived(ctx, approver, req.ID)
		}(i)
	}
	wg.Wait()

	var conflicts, successes int
	for _, err := range errs {
		var conflict *models.StateConflictError
		switch {
		case err == nil:
			successes += 1
		case assert.ErrorAs(t, err, &conflict):
			conflicts += 1
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
	assert.Equal(t, 1, exec.calls, "executor must run exactly once")
}

func TestDeleteOnlyWhilePending(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, &stubExecutor{})
	req := createPending(t, s)
	ctx := context.Background()

	require.NoError(t, s.DeleteIfPending(ctx, approver, req.ID))

	var nferr *models.NotFoundError
	err := s.DeleteIfPending(ctx, approver, req.ID)
	require.ErrorAs(t, err, &nferr)

	req2 := createPending(t, s)
	_, err = s.Approve(ctx, approver, req2.ID, nil, nil)
	require.NoError(t, err)

	var conflict *models.StateConflictError
	err = s.DeleteIfPending(ctx, approver, req2.ID)
	require.ErrorAs(t, err, &conflict)
}

func TestListScopesRequesterToOwnBranch(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, &stubExecutor{})

	_, err := s.List(context.Background(), requester, models.RequisitionFilter{DestinationBranch: "other"})
	require.NoError(t, err)
	assert.Equal(t, "B", store.lastFilter.DestinationBranch, "requester filter must be forced to own branch")
	assert.Equal(t, int64(defaultListLimit), store.lastFilter.Limit)

	_, err = s.List(context.Background(), approver, models.RequisitionFilter{DestinationBranch: "other", Limit: 1000})
	require.NoError(t, err)
	assert.Equal(t, "other", store.lastFilter.DestinationBranch)
	assert.Equal(t, int64(maxListLimit), store.lastFilter.Limit)
}

func TestGetScopesRequesterToOwnBranch(t *testing.T) {
	store := newFakeStore()
	s := newTestService(store, &stubExecutor{})
	ctx := context.Background()

	req := createPending(t, s)

	got, err := s.Get(ctx, requester, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)

	foreign := models.Principal{UserID: "u-x", Role: models.RoleRequester, Branch: "C"}
	_, err = s.Get(ctx, foreign, req.ID)
	var aerr *models.AuthorizationError
	require.ErrorAs(t, err, &aerr)

	_, err = s.Get(ctx, approver, req.ID)
	require.NoError(t, err)
}
