package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kdiawara/branchstock/internal/domain/models"
	"github.com/kdiawara/branchstock/internal/server/middleware"
)

// ProductStore is the inventory surface the stock endpoints consume.
type ProductStore interface {
	FindProduct(ctx context.Context, id string) (*models.Product, error)
	SetCounters(ctx context.Context, id string, patch map[string]int) error
}

// ProductHandler exposes the per-branch stock counters: reads for approvers
// and admins, corrections for admins only. Corrections are the manual leg of
// the reconciliation procedure after a crashed receive.
type ProductHandler struct {
	store  ProductStore
	logger *zap.Logger
}

// NewProductHandler constructs the HTTP handler adapter.
func NewProductHandler(store ProductStore, logger *zap.Logger) *ProductHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProductHandler{store: store, logger: logger}
}

type setCountersRequest struct {
	Counters map[string]int `json:"counters" binding:"required"`
}

// GetCounters returns a product's branch counters.
func (h *ProductHandler) GetCounters(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"category": "authorization", "error": "no verified principal"})
		return
	}
	if !principal.CanTransition() {
		c.JSON(http.StatusForbidden, gin.H{"category": "authorization", "error": "insufficient role for stock counters"})
		return
	}

	product, err := h.store.FindProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"productId": product.ID, "counters": product.Stock})
}

// SetCounters patches individual branch counters on a product record.
func (h *ProductHandler) SetCounters(c *gin.Context) {
	principal, ok := middleware.PrincipalFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"category": "authorization", "error": "no verified principal"})
		return
	}
	if principal.Role != models.RoleAdmin {
		c.JSON(http.StatusForbidden, gin.H{"category": "authorization", "error": "only admins may correct stock counters"})
		return
	}

	var req setCountersRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Counters) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"category": "validation", "error": "counters must carry at least one branch"})
		return
	}
	for branch, qty := range req.Counters {
		if qty < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"category": "validation", "error": "counter for " + branch + " must not be negative"})
			return
		}
	}

	if err := h.store.SetCounters(c.Request.Context(), c.Param("id"), req.Counters); err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.logger.Info("stock counters corrected",
		zap.String("product_id", c.Param("id")),
		zap.String("actor", principal.UserID))
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}
