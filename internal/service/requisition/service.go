package requisition

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kdiawara/branchstock/internal/domain/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// Store is the persistence surface the service drives. Conditional methods
// return models.ErrStateNotMatched when the record is missing or not in the
// expected status; the service re-fetches to tell the two apart.
type Store interface {
	Insert(ctx context.Context, req *models.Requisition) error
	FindByID(ctx context.Context, id string) (*models.Requisition, error)
	List(ctx context.Context, filter models.RequisitionFilter) ([]models.Requisition, error)
	Approve(ctx context.Context, id string, items []models.Item, approvedBy string, deliveryDate *time.Time, at time.Time) (*models.Requisition, error)
	Reject(ctx context.Context, id, reason, rejectedBy string, at time.Time) (*models.Requisition, error)
	MarkInTransit(ctx context.Context, id string, at time.Time) (*models.Requisition, error)
	ClaimReceive(ctx context.Context, id string, at time.Time) (*models.Requisition, error)
	ReleaseReceive(ctx context.Context, id string, at time.Time) error
	CompleteReceive(ctx context.Context, id string, report *models.StockTransferReport, at time.Time) (*models.Requisition, error)
	DeletePending(ctx context.Context, id string) error
}

// TransferExecutor runs the per-item stock movement when a requisition is
// received.
type TransferExecutor interface {
	Execute(ctx context.Context, req *models.Requisition, actor models.Principal) *models.StockTransferReport
}

// CreateItemInput is one requested product line.
type CreateItemInput struct {
	ProductID    string
	ProductName  string
	RequestedQty int
	Options      map[string]string
	Image        string
}

// CreateInput carries everything needed to open a requisition. The
// destination branch is never part of the input: it is always the
// requester's own branch.
type CreateInput struct {
	Items        []CreateItemInput
	SourceBranch string
	Notes        string
	Priority     string
}

// Service implements the requisition state machine and its access-control
// gate. Every transition is persisted through a conditional write so that
// concurrent duplicate transitions resolve to exactly one winner.
type Service struct {
	store    Store
	executor TransferExecutor
	logger   *zap.Logger
	now      func() time.Time
	randInt  func(n int) int
	newID    func() string
}

// NewService constructs the requisition service.
func NewService(store Store, executor TransferExecutor, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		executor: executor,
		logger:   logger,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Create validates and persists a new pending requisition on behalf of the
// principal. The destination branch is forced to the principal's own branch.
func (s *Service) Create(ctx context.Context, principal models.Principal, input CreateInput) (*models.Requisition, error) {
	if err := validateCreate(principal, input); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	req := &models.Requisition{
		ID:     s.newID(),
		Number: newNumber(now, s.randInt),
		RequestedBy: models.Requester{
			UserID: principal.UserID,
			Name:   principal.Name,
			Email:  principal.Email,
			Branch: principal.Branch,
		},
		Items:             make([]models.Item, 0, len(input.Items)),
		SourceBranch:      input.SourceBranch,
		DestinationBranch: principal.Branch,
		Status:            models.StatusPending,
		Priority:          input.Priority,
		Notes:             input.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	for _, item := range input.Items {
		req.Items = append(req.Items, models.Item{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			RequestedQty: item.RequestedQty,
			Options:      item.Options,
			Image:        item.Image,
		})
	}

	if err := s.store.Insert(ctx, req); err != nil {
		return nil, fmt.Errorf("create requisition: %w", err)
	}

	s.logger.Info("requisition created",
		zap.String("id", req.ID),
		zap.String("number", req.Number),
		zap.String("source_branch", req.SourceBranch),
		zap.String("destination_branch", req.DestinationBranch),
		zap.Int("items", len(req.Items)))
	return req, nil
}

// List returns requisitions visible to the principal. Requesters only see
// requisitions destined for their own branch; approvers and admins see all
// and may filter by branch.
func (s *Service) List(ctx context.Context, principal models.Principal, filter models.RequisitionFilter) ([]models.Requisition, error) {
	if !principal.CanTransition() {
		filter.DestinationBranch = principal.Branch
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	return s.store.List(ctx, filter)
}

// Get loads a single requisition, applying the same branch scoping as List.
func (s *Service) Get(ctx context.Context, principal models.Principal, id string) (*models.Requisition, error) {
	req, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !principal.CanTransition() && req.DestinationBranch != principal.Branch {
		return nil, models.NewAuthorizationError("requisition %s is not visible to branch %s", id, principal.Branch)
	}
	return req, nil
}

// Approve authorizes a pending requisition. When approvedQuantities is nil,
// every item's approved quantity defaults to its requested quantity;
// otherwise the slice must carry one value per item, each within [0, 10000].
// A zero excludes the item from the eventual stock transfer.
func (s *Service) Approve(ctx context.Context, principal models.Principal, id string, approvedQuantities []int, deliveryDate *time.Time) (*models.Requisition, error) {
	if err := requireTransitionRole(principal, "approve"); err != nil {
		return nil, err
	}

	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if approvedQuantities != nil && len(approvedQuantities) != len(current.Items) {
		return nil, models.NewValidationError("approvedQuantities must carry %d values, got %d", len(current.Items), len(approvedQuantities))
	}

	items := make([]models.Item, len(current.Items))
	copy(items, current.Items)
	for i := range items {
		qty := items[i].RequestedQty
		if approvedQuantities != nil {
			qty = approvedQuantities[i]
			if qty < 0 || qty > models.MaxItemQuantity {
				return nil, models.NewValidationError("approved quantity for item %d must be within [0, %d], got %d", i, models.MaxItemQuantity, qty)
			}
		}
		q := qty
		items[i].ApprovedQty = &q
	}

	updated, err := s.store.Approve(ctx, id, items, principal.UserID, deliveryDate, s.now().UTC())
	if errors.Is(err, models.ErrStateNotMatched) {
		return nil, s.conflictOrNotFound(ctx, id, models.StatusPending)
	}
	if err != nil {
		return nil, fmt.Errorf("approve requisition %s: %w", id, err)
	}

	s.logger.Info("requisition approved", zap.String("id", id), zap.String("approved_by", principal.UserID))
	return updated, nil
}

// Reject closes a pending requisition with a reason; terminal.
func (s *Service) Reject(ctx context.Context, principal models.Principal, id, reason string) (*models.Requisition, error) {
	if err := requireTransitionRole(principal, "reject"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(reason) == "" {
		return nil, models.NewValidationError("a rejection reason is required")
	}

	updated, err := s.store.Reject(ctx, id, reason, principal.UserID, s.now().UTC())
	if errors.Is(err, models.ErrStateNotMatched) {
		return nil, s.conflictOrNotFound(ctx, id, models.StatusPending)
	}
	if err != nil {
		return nil, fmt.Errorf("reject requisition %s: %w", id, err)
	}

	s.logger.Info("requisition rejected", zap.String("id", id), zap.String("rejected_by", principal.UserID))
	return updated, nil
}

// MarkInTransit records that the approved goods left the source branch.
func (s *Service) MarkInTransit(ctx context.Context, principal models.Principal, id string) (*models.Requisition, error) {
	if err := requireTransitionRole(principal, "mark-in-transit"); err != nil {
		return nil, err
	}

	updated, err := s.store.MarkInTransit(ctx, id, s.now().UTC())
	if errors.Is(err, models.ErrStateNotMatched) {
		return nil, s.conflictOrNotFound(ctx, id, models.StatusApproved)
	}
	if err != nil {
		return nil, fmt.Errorf("mark requisition %s in-transit: %w", id, err)
	}

	s.logger.Info("requisition in transit", zap.String("id", id))
	return updated, nil
}

// MarkReceived confirms receipt at the destination branch and runs the stock
// transfer. The requisition is first claimed with a conditional write so two
// concurrent receivers cannot both execute the transfer. If every item fails
// the claim is released, the requisition stays in-transit and the call
// returns a TransferFailedError; with at least one success the requisition
// advances to received carrying the mixed report.
func (s *Service) MarkReceived(ctx context.Context, principal models.Principal, id string) (*models.Requisition, error) {
	if err := requireTransitionRole(principal, "mark-received"); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	claimed, err := s.store.ClaimReceive(ctx, id, now)
	if errors.Is(err, models.ErrStateNotMatched) {
		current, ferr := s.store.FindByID(ctx, id)
		if ferr != nil {
			return nil, ferr
		}
		if current.Status == models.StatusInTransit && current.Receiving {
			// A concurrent receiver holds the claim.
			return nil, &models.StateConflictError{Current: "receiving", Required: models.StatusInTransit}
		}
		return nil, &models.StateConflictError{Current: current.Status, Required: models.StatusInTransit}
	}
	if err != nil {
		return nil, fmt.Errorf("claim receive for requisition %s: %w", id, err)
	}

	report := s.executor.Execute(ctx, claimed, principal)

	if len(report.Successful) == 0 {
		if relErr := s.store.ReleaseReceive(ctx, id, s.now().UTC()); relErr != nil {
			s.logger.Error("failed releasing receive claim", zap.String("id", id), zap.Error(relErr))
		}
		s.logger.Warn("stock transfer failed for every item",
			zap.String("id", id),
			zap.Int("failed", len(report.Failed)))
		return nil, &models.TransferFailedError{Report: report}
	}

	updated, err := s.store.CompleteReceive(ctx, id, report, s.now().UTC())
	if err != nil {
		// Counters already moved; the receive claim stays set so the
		// reconciliation sweep can flag this requisition against the
		// audit trail.
		return nil, fmt.Errorf("persist received status for requisition %s: %w", id, err)
	}

	s.logger.Info("requisition received",
		zap.String("id", id),
		zap.Int("transferred", len(report.Successful)),
		zap.Int("failed", len(report.Failed)))
	return updated, nil
}

// DeleteIfPending permanently removes a requisition that has not yet been
// approved or rejected.
func (s *Service) DeleteIfPending(ctx context.Context, principal models.Principal, id string) error {
	if err := requireTransitionRole(principal, "delete"); err != nil {
		return err
	}

	err := s.store.DeletePending(ctx, id)
	if errors.Is(err, models.ErrStateNotMatched) {
		return s.conflictOrNotFound(ctx, id, models.StatusPending)
	}
	if err != nil {
		return fmt.Errorf("delete requisition %s: %w", id, err)
	}

	s.logger.Info("requisition deleted", zap.String("id", id))
	return nil
}

// conflictOrNotFound resolves a failed conditional write into the precise
// error: the record is gone, or it sits in the wrong status.
func (s *Service) conflictOrNotFound(ctx context.Context, id string, required models.Status) error {
	current, err := s.store.FindByID(ctx, id)
	if err != nil {
		return err
	}
	return &models.StateConflictError{Current: current.Status, Required: required}
}

func requireTransitionRole(principal models.Principal, action string) error {
	if !principal.CanTransition() {
		return models.NewAuthorizationError("role %q may not %s requisitions", principal.Role, action)
	}
	return nil
}

func validateCreate(principal models.Principal, input CreateInput) error {
	if len(input.Items) == 0 {
		return models.NewValidationError("a requisition needs at least one item")
	}
	if len(input.Items) > models.MaxItemsPerRequisition {
		return models.NewValidationError("a requisition may carry at most %d items, got %d", models.MaxItemsPerRequisition, len(input.Items))
	}
	if strings.TrimSpace(input.SourceBranch) == "" {
		return models.NewValidationError("sourceBranch is required")
	}
	if input.SourceBranch == principal.Branch {
		return models.NewValidationError("source branch must differ from the requesting branch %s", principal.Branch)
	}
	for i, item := range input.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			return models.NewValidationError("item %d is missing a product id", i)
		}
		if item.RequestedQty < models.MinItemQuantity || item.RequestedQty > models.MaxItemQuantity {
			return models.NewValidationError("requested quantity for item %d must be within [%d, %d], got %d", i, models.MinItemQuantity, models.MaxItemQuantity, item.RequestedQty)
		}
	}
	return nil
}
