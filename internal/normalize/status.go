package normalize

import (
	"strings"

	"github.com/shapeeat/sales-service/internal/types"
)

// vendorStatuses maps lower-cased VendLive vend statuses to resolved statuses
var vendorStatuses = map[string]types.Status{
	"success":    types.StatusCompleted,
	"successful": types.StatusCompleted,
	"delivered":  types.StatusCompleted,
	"paid":       types.StatusCompleted,
	"completed":  types.StatusCompleted,
	"refunded":   types.StatusRefunded,
	"failure":    types.StatusFailed,
	"failed":     types.StatusFailed,
	"declined":   types.StatusFailed,
	"error":      types.StatusFailed,
	"canceled":   types.StatusCancelled,
	"cancelled":  types.StatusCancelled,
	"pending":    types.StatusPending,
	"processing": types.StatusPending,
}

// ResolveStatus returns the line status. The refund flag overrides the
// vendor status; unmapped or empty vendor statuses resolve to unknown.
func ResolveStatus(vendStatus string, refunded bool) types.Status {
	if refunded {
		return types.StatusRefunded
	}
	if status, ok := vendorStatuses[strings.ToLower(strings.TrimSpace(vendStatus))]; ok {
		return status
	}
	return types.StatusUnknown
}
