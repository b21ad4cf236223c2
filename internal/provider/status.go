package provider

import (
	"strings"

	"keyflow/internal/db"
)

// MapStatus translates a provider-reported status string into the
// engine's closed status vocabulary. Every provider speaks its own
// dialect, so matching is case-insensitive and deliberately loose on
// in-flight synonyms. Unrecognized values map to in_progress: an order
// is never claimed complete on vocabulary the engine does not know.
func MapStatus(s string) db.OrderStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "complete", "success":
		return db.OrderCompleted
	case "partial", "partially completed":
		return db.OrderPartial
	case "canceled", "cancelled", "refunded":
		return db.OrderCancelled
	case "failed", "fail", "error":
		return db.OrderFailed
	case "pending", "queued", "awaiting", "processing", "in progress", "inprogress", "in_progress":
		return db.OrderInProgress
	default:
		return db.OrderInProgress
	}
}
