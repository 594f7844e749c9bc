package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kdiawara/branchstock/internal/domain/models"
)

// ProductStore is the slice of the product inventory store the executor
// consumes.
type ProductStore interface {
	FindProduct(ctx context.Context, id string) (*models.Product, error)
	MoveStock(ctx context.Context, id, sourceBranch, destinationBranch string, qty int) (*models.Product, error)
}

// AuditSink receives an entry for every successful counter move. Failures are
// logged and swallowed; observability degrades before the transfer does.
type AuditSink interface {
	Append(ctx context.Context, entry models.AuditEntry) error
}

// Executor moves approved quantities between branch counters when a
// requisition is received. Items are processed sequentially so the audit
// trail and the failure report keep a deterministic order, and each item is
// isolated: one bad line never aborts its siblings.
type Executor struct {
	products ProductStore
	audit    AuditSink
	logger   *zap.Logger
	now      func() time.Time
}

// NewExecutor constructs a stock transfer executor.
func NewExecutor(products ProductStore, audit AuditSink, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		products: products,
		audit:    audit,
		logger:   logger,
		now:      time.Now,
	}
}

// Execute transfers every item of the requisition whose approved quantity is
// positive. Items with an approved quantity of zero or less were excluded by
// the approver and are skipped silently. The returned report always carries
// both slices; the caller decides what an empty Successful slice means.
func (e *Executor) Execute(ctx context.Context, req *models.Requisition, actor models.Principal) *models.StockTransferReport {
	report := &models.StockTransferReport{
		Successful: []models.TransferResult{},
		Failed:     []models.TransferResult{},
	}

	for _, item := range req.Items {
		qty := 0
		if item.ApprovedQty != nil {
			qty = *item.ApprovedQty
		}
		if qty <= 0 {
			continue
		}

		result := models.TransferResult{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    qty,
		}

		product, err := e.products.FindProduct(ctx, item.ProductID)
		if err != nil {
			result.Reason = fmt.Sprintf("product not found: %v", err)
			report.Failed = append(report.Failed, result)
			e.logger.Warn("transfer item failed",
				zap.String("requisition_id", req.ID),
				zap.String("product_id", item.ProductID),
				zap.String("reason", result.Reason))
			continue
		}

		sourceBefore := product.CounterFor(req.SourceBranch)
		destBefore := product.CounterFor(req.DestinationBranch)

		if sourceBefore < qty {
			result.Reason = fmt.Sprintf("insufficient stock at %s: have %d, need %d", req.SourceBranch, sourceBefore, qty)
			report.Failed = append(report.Failed, result)
			e.logger.Warn("transfer item failed",
				zap.String("requisition_id", req.ID),
				zap.String("product_id", item.ProductID),
				zap.String("reason", result.Reason))
			continue
		}

		updated, err := e.products.MoveStock(ctx, item.ProductID, req.SourceBranch, req.DestinationBranch, qty)
		if err != nil {
			if errors.Is(err, models.ErrStateNotMatched) {
				// Lost a race against a concurrent transfer draining the
				// same counter; the guarded write refused to go negative.
				result.Reason = fmt.Sprintf("insufficient stock at %s: need %d, counter drained concurrently", req.SourceBranch, qty)
			} else {
				result.Reason = fmt.Sprintf("stock update failed: %v", err)
			}
			report.Failed = append(report.Failed, result)
			e.logger.Warn("transfer item failed",
				zap.String("requisition_id", req.ID),
				zap.String("product_id", item.ProductID),
				zap.String("reason", result.Reason))
			continue
		}

		report.Successful = append(report.Successful, result)

		e.appendAudit(ctx, models.AuditEntry{
			Action:        "stock.transfer",
			Actor:         actor.UserID,
			RequisitionID: req.ID,
			ProductID:     item.ProductID,
			Before: map[string]int{
				req.SourceBranch:      sourceBefore,
				req.DestinationBranch: destBefore,
			},
			After: map[string]int{
				req.SourceBranch:      updated.CounterFor(req.SourceBranch),
				req.DestinationBranch: updated.CounterFor(req.DestinationBranch),
			},
			Timestamp: e.now().UTC(),
		})
	}

	report.CompletedAt = e.now().UTC()
	return report
}

func (e *Executor) appendAudit(ctx context.Context, entry models.AuditEntry) {
	if e.audit == nil {
		return
	}
	if err := e.audit.Append(ctx, entry); err != nil {
		e.logger.Error("audit append failed",
			zap.String("requisition_id", entry.RequisitionID),
			zap.String("product_id", entry.ProductID),
			zap.Error(err))
	}
}

// LogSink is the fallback audit sink when no spreadsheet is configured: it
// writes entries to the application log.
type LogSink struct {
	Logger *zap.Logger
}

// Append logs the audit entry.
func (s LogSink) Append(_ context.Context, entry models.AuditEntry) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("audit entry",
		zap.String("action", entry.Action),
		zap.String("actor", entry.Actor),
		zap.String("requisition_id", entry.RequisitionID),
		zap.String("product_id", entry.ProductID),
		zap.Any("before", entry.Before),
		zap.Any("after", entry.After),
		zap.Time("timestamp", entry.Timestamp))
	return nil
}
