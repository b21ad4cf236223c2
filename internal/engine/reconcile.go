package engine

import (
	"fmt"
	"log"
	"time"

	"gorm.io/datatypes"

	"keyflow/internal/db"
	"keyflow/internal/metrics"
	"keyflow/internal/provider"
)

// reconcileBatchSize bounds one sweep pass over non-terminal orders.
const reconcileBatchSize = 200

// pendingSubmitGrace is how long a pending order may sit without an
// external reference before the sweep fails it out. Kept well above the
// provider call timeout so an in-flight submission is never raced.
const pendingSubmitGrace = 10 * time.Minute

// Refresh fetches the provider's current view of the order and advances
// the local lifecycle state. Terminal orders are returned unchanged.
// Both the on-demand status endpoints and the periodic sweep go through
// here, so there is exactly one mapping path.
func (e *Engine) Refresh(orderID uint) (*db.Order, error) {
	order, err := e.store.OrderByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}
	return e.refresh(order)
}

func (e *Engine) refresh(order *db.Order) (*db.Order, error) {
	if order.Status.Terminal() {
		return order, nil
	}
	// Orders without an external reference were never accepted by a
	// provider; there is nothing to poll. A pending one whose submission
	// attempt is long past is failed out so it stops clogging the sweep
	// and its reservation comes back.
	if order.ExternalID == "" {
		if order.Status != db.OrderPending || e.now().Sub(order.UpdatedAt) < pendingSubmitGrace {
			return order, nil
		}
		return e.failOut(order, "submission never completed")
	}

	svc := &order.Service
	if svc.ID != order.ServiceID {
		loaded, err := e.store.ServiceByID(order.ServiceID)
		if err != nil {
			return order, err
		}
		if loaded == nil {
			return order, ErrUnresolvedProvider
		}
		svc = loaded
	}

	prov, err := e.resolveProvider(svc)
	if err != nil {
		return order, err
	}

	info, err := e.client.Status(*prov, order.ExternalID)
	if err != nil {
		// Transient: keep the last confirmed status, retry next sweep.
		return order, fmt.Errorf("%w: %s", ErrRefreshFailed, err)
	}

	mapped := provider.MapStatus(info.Status)
	changed := mapped != order.Status

	order.Payload = datatypes.JSONMap(info.Raw)
	order.Message = info.Status

	var release int
	switch mapped {
	case db.OrderInProgress:
		order.Status = db.OrderInProgress

	case db.OrderCompleted:
		order.Status = db.OrderCompleted
		order.Remains = 0
		now := e.now()
		order.CompletedAt = &now

	case db.OrderPartial:
		order.Status = db.OrderPartial
		order.Remains = clampRemains(info.Remains, order.Quantity)
		now := e.now()
		order.CompletedAt = &now
		release = order.Remains

	case db.OrderFailed, db.OrderCancelled:
		order.Status = mapped
		remains := clampRemains(info.Remains, order.Quantity)
		if remains == 0 {
			// No fulfillment reported: the whole reservation comes back.
			remains = order.Quantity
		}
		order.Remains = remains
		now := e.now()
		order.CompletedAt = &now
		release = remains
	}

	// The release runs only after the transition persists, and only for
	// the caller that won it. A failed write leaves the reservation in
	// place for the retry; a lost race means the winner already released.
	claimed, err := e.store.AdvanceOrder(order)
	if err != nil {
		return order, err
	}
	if !claimed {
		stored, err := e.store.OrderByID(order.ID)
		if err != nil || stored == nil {
			return order, err
		}
		return stored, nil
	}
	if release > 0 {
		e.releaseRemainder(order, release)
	}
	if changed {
		metrics.OrdersTotal.WithLabelValues(prov.Name, string(order.Status)).Inc()
	}
	return order, nil
}

// failOut moves a never-submitted order to failed and returns its whole
// reservation, gated on winning the terminal transition.
func (e *Engine) failOut(order *db.Order, reason string) (*db.Order, error) {
	order.Status = db.OrderFailed
	order.Message = reason
	order.Remains = order.Quantity
	now := e.now()
	order.CompletedAt = &now

	claimed, err := e.store.AdvanceOrder(order)
	if err != nil {
		return order, err
	}
	if claimed {
		log.Printf("order %d failed out: %s", order.ID, reason)
		e.releaseRemainder(order, order.Quantity)
	}
	return order, nil
}

// releaseRemainder hands the unfulfilled portion of a terminal order
// back to the key ledger. A release failure is logged but does not block
// the status transition; capacity can be corrected administratively.
func (e *Engine) releaseRemainder(order *db.Order, quantity int) {
	if quantity <= 0 {
		return
	}
	if err := e.store.Release(order.KeyID, quantity); err != nil {
		log.Printf("release remainder %d for key %d (order %d): %v", quantity, order.KeyID, order.ID, err)
	}
}

func clampRemains(remains, quantity int) int {
	if remains < 0 {
		return 0
	}
	if remains > quantity {
		return quantity
	}
	return remains
}

// runReconcileSweepOnce refreshes one batch of non-terminal orders,
// oldest update first.
func (e *Engine) runReconcileSweepOnce() {
	orders, err := e.store.NonTerminalOrders(reconcileBatchSize)
	if err != nil {
		log.Printf("reconcile sweep: list orders: %v", err)
		return
	}
	for i := range orders {
		if _, err := e.refresh(&orders[i]); err != nil {
			log.Printf("reconcile sweep: order %d: %v", orders[i].ID, err)
		}
	}
}

// StartReconcileWorker launches a background goroutine that sweeps
// non-terminal orders once at startup and then on the given interval.
func (e *Engine) StartReconcileWorker(interval time.Duration) {
	go func() {
		e.runReconcileSweepOnce()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for range ticker.C {
			e.runReconcileSweepOnce()
		}
	}()
}
