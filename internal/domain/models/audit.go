package models

import "time"

// AuditEntry is an immutable record of a stock mutation. Entries are appended
// best-effort: a sink failure is logged and never surfaced to the caller.
type AuditEntry struct {
	Action        string         `json:"action"`
	Actor         string         `json:"actor"`
	RequisitionID string         `json:"requisitionId"`
	ProductID     string         `json:"productId"`
	Before        map[string]int `json:"before"`
	After         map[string]int `json:"after"`
	Timestamp     time.Time      `json:"timestamp"`
}
