package sheets

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/kdiawara/branchstock/internal/config"
	"github.com/kdiawara/branchstock/internal/domain/models"
)

// AuditSink appends audit entries to a Google Sheet. Appends are best-effort:
// callers log failures and carry on, the business operation never blocks on
// the sink.
type AuditSink struct {
	service       *sheetsapi.Service
	spreadsheetID string
	sheetRange    string
	logger        *zap.Logger
}

// NewAuditSink builds a Google Sheets backed audit sink.
func NewAuditSink(ctx context.Context, cfg config.AuditConfig, logger *zap.Logger) (*AuditSink, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}

	return &AuditSink{
		service:       service,
		spreadsheetID: cfg.SpreadsheetID,
		sheetRange:    cfg.SheetRange,
		logger:        logger,
	}, nil
}

// Append writes one audit entry as a spreadsheet row.
func (s *AuditSink) Append(ctx context.Context, entry models.AuditEntry) error {
	row := []interface{}{
		entry.Timestamp.Format(time.RFC3339),
		entry.Action,
		entry.Actor,
		entry.RequisitionID,
		entry.ProductID,
		formatCounters(entry.Before),
		formatCounters(entry.After),
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{row}}

	call := s.service.Spreadsheets.Values.Append(s.spreadsheetID, s.sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append audit row into range %s: %w", s.sheetRange, err)
	}

	s.logger.Debug("audit row appended",
		zap.String("action", entry.Action),
		zap.String("requisition_id", entry.RequisitionID))
	return nil
}

func formatCounters(counters map[string]int) string {
	if len(counters) == 0 {
		return ""
	}

	branches := make([]string, 0, len(counters))
	for branch := range counters {
		branches = append(branches, branch)
	}
	sort.Strings(branches)

	out := ""
	for _, branch := range branches {
		if out != "" {
			out += ", "
		}
		out += fmt.Sprintf("%s=%d", branch, counters[branch])
	}
	return out
}
