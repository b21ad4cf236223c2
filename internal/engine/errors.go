package engine

import "errors"

var (
	// ErrInvalidQuantity rejects non-positive redemption quantities.
	ErrInvalidQuantity = errors.New("quantity must be at least 1")

	// ErrInvalidTarget rejects redemptions without a target URL/handle.
	ErrInvalidTarget = errors.New("target is required")

	// ErrServiceNotFound covers unknown or deactivated catalog entries.
	ErrServiceNotFound = errors.New("service not found")

	// ErrKeyServiceMismatch rejects redeeming a key against a catalog
	// entry other than the one it was sold for.
	ErrKeyServiceMismatch = errors.New("key is bound to a different service")

	// ErrUnresolvedProvider means the catalog entry has no live provider
	// binding. A configuration error: dispatch is blocked, never rerouted.
	ErrUnresolvedProvider = errors.New("no provider resolved for service")

	// ErrProviderSubmission wraps transport or provider-level failures
	// during order submission. The reservation has already been released,
	// so a fresh redemption may simply be retried.
	ErrProviderSubmission = errors.New("provider submission failed")

	// ErrProviderUnavailable wraps provider call failures outside the
	// submission path (catalog listing).
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrRefreshFailed wraps transient reconciliation failures. The order
	// keeps its last confirmed status and stays eligible for retry.
	ErrRefreshFailed = errors.New("order refresh failed")

	// ErrOrderNotFound covers unknown order identifiers.
	ErrOrderNotFound = errors.New("order not found")

	// ErrProviderNotFound covers unknown provider identifiers.
	ErrProviderNotFound = errors.New("provider not found")
)
