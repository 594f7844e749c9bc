package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kdiawara/branchstock/internal/domain/models"
	"github.com/kdiawara/branchstock/internal/server/middleware"
	svc "github.com/kdiawara/branchstock/internal/service/requisition"
)

// RequisitionService is the surface the HTTP layer consumes.
type RequisitionService interface {
	Create(ctx context.Context, principal models.Principal, input svc.CreateInput) (*models.Requisition, error)
	List(ctx context.Context, principal models.Principal, filter models.RequisitionFilter) ([]models.Requisition, error)
	Get(ctx context.Context, principal models.Principal, id string) (*models.Requisition, error)
	Approve(ctx context.Context, principal models.Principal, id string, approvedQuantities []int, deliveryDate *time.Time) (*models.Requisition, error)
	Reject(ctx context.Context, principal models.Principal, id, reason string) (*models.Requisition, error)
	MarkInTransit(ctx context.Context, principal models.Principal, id string) (*models.Requisition, error)
	MarkReceived(ctx context.Context, principal models.Principal, id string) (*models.Requisition, error)
	DeleteIfPending(ctx context.Context, principal models.Principal, id string) error
}

// RequisitionHandler adapts the requisition service to HTTP.
type RequisitionHandler struct {
	svc    RequisitionService
	logger *zap.Logger
}

// NewRequisitionHandler constructs the HTTP handler adapter.
func NewRequisitionHandler(service RequisitionService, logger *zap.Logger) *RequisitionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequisitionHandler{svc: service, logger: logger}
}

type createItemRequest struct {
	ProductID    string            `json:"productId" binding:"required"`
	ProductName  string            `json:"productName"`
	RequestedQty int               `json:"requestedQty"`
	Options      map[string]string `json:"options"`
	Image        string            `json:"image"`
}

type createRequest struct {
	Items        []createItemRequest `json:"items" binding:"required"`
	SourceBranch string              `json:"sourceBranch" binding:"required"`
	Notes        string              `json:"notes"`
	Priority     string              `json:"priority"`
}

type approveRequest struct {
	ApprovedQuantities []int      `json:"approvedQuantities"`
	DeliveryDate       *time.Time `json:"deliveryDate"`
}

type rejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Create opens a new requisition for the caller's branch.
func (h *RequisitionHandler) Create(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		h.unauthenticated(c)
		return
	}

	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid create payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"category": "validation", "error": "invalid request body"})
		return
	}

	input := svc.CreateInput{
		SourceBranch: req.SourceBranch,
		Notes:        req.Notes,
		Priority:     req.Priority,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, svc.CreateItemInput{
			ProductID:    item.ProductID,
			ProductName:  item.ProductName,
			RequestedQty: item.RequestedQty,
			Options:      item.Options,
			Image:        item.Image,
		})
	}

	created, err := h.svc.Create(c.Request.Context(), principal, input)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// List returns requisitions visible to the caller.
func (h *RequisitionHandler) List(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		h.unauthenticated(c)
		return
	}

	filter := models.RequisitionFilter{
		Status:            models.Status(c.Query("status")),
		DestinationBranch: c.Query("branch"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"category": "validation", "error": "limit must be a positive integer"})
			return
		}
		filter.Limit = limit
	}

	requisitions, err := h.svc.List(c.Request.Context(), principal, filter)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": requisitions})
}

// Get returns a single requisition.
func (h *RequisitionHandler) Get(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		h.unauthenticated(c)
		return
	}

	req, err := h.svc.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, req)
}

// Approve authorizes a pending requisition, optionally adjusting quantities.
func (h *RequisitionHandler) Approve(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		h.unauthenticated(c)
		return
	}

	// Every approve field is optional; a bare POST approves the requested
	// quantities as-is.
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Warn("invalid approve payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"category": "validation", "error": "invalid request body"})
		return
	}

	updated, err := h.svc.Approve(c.Request.Context(), principal, c.Param("id"), req.ApprovedQuantities, req.DeliveryDate)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Reject closes a pending requisition with a reason.
func (h *RequisitionHandler) Reject(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		h.unauthenticated(c)
		return
	}

	var req rejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid reject payload", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"category": "validation", "error": "a rejection reason is required"})
		return
	}

	updated, err := h.svc.Reject(c.Request.Context(), principal, c.Param("id"), req.Reason)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// MarkInTransit records dispatch from the source branch.
func (h *RequisitionHandler) MarkInTransit(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		h.unauthenticated(c)
		return
	}

	updated, err := h.svc.MarkInTransit(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// MarkReceived confirms receipt and runs the stock transfer.
func (h *RequisitionHandler) MarkReceived(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		h.unauthenticated(c)
		return
	}

	updated, err := h.svc.MarkReceived(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

// Delete removes a requisition while it is still pending.
func (h *RequisitionHandler) Delete(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		h.unauthenticated(c)
		return
	}

	if err := h.svc.DeleteIfPending(c.Request.Context(), principal, c.Param("id")); err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (h *RequisitionHandler) unauthenticated(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, gin.H{"category": "authorization", "error": "no verified principal"})
}

// writeError maps domain errors onto the error-category contract:
// validation → 400, authorization → 403, not-found → 404, conflict → 409,
// everything else → internal → 500.
func writeError(c *gin.Context, logger *zap.Logger, err error) {
	var (
		validationErr *models.ValidationError
		authErr       *models.AuthorizationError
		notFoundErr   *models.NotFoundError
		conflictErr   *models.StateConflictError
		transferErr   *models.TransferFailedError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"category": "validation", "error": validationErr.Error()})
	case errors.As(err, &authErr):
		c.JSON(http.StatusForbidden, gin.H{"category": "authorization", "error": authErr.Error()})
	case errors.As(err, &notFoundErr):
		c.JSON(http.StatusNotFound, gin.H{"category": "not-found", "error": notFoundErr.Error()})
	case errors.As(err, &conflictErr):
		c.JSON(http.StatusConflict, gin.H{"category": "conflict", "error": conflictErr.Error()})
	case errors.As(err, &transferErr):
		c.JSON(http.StatusInternalServerError, gin.H{
			"category":      "internal",
			"error":         transferErr.Error(),
			"stockTransfer": transferErr.Report,
		})
	default:
		if logger == nil {
			logger = zap.NewNop()
		}
		logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"category": "internal", "error": "internal error"})
	}
}
