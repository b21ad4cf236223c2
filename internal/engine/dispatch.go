package engine

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"keyflow/internal/db"
	"keyflow/internal/metrics"
)

// RedeemInput is one redemption request: a key value, the catalog entry
// to fulfill (optional when the key is bound to one), the target and the
// quantity to draw from the key.
type RedeemInput struct {
	KeyValue  string
	ServiceID uint
	Target    string
	Quantity  int
}

// Redeem runs the dispatch sequence: resolve provider, reserve key
// capacity, create the order, submit to the provider.
//
// Capacity and validity failures are returned before any provider call.
// A failed submission (including timeout) moves the order to failed and
// releases the full reservation, so the key never silently loses
// capacity; the order is returned alongside the error for audit.
func (e *Engine) Redeem(in RedeemInput) (*db.Order, error) {
	if in.Quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if strings.TrimSpace(in.Target) == "" {
		return nil, ErrInvalidTarget
	}

	key, err := e.store.KeyByValue(strings.TrimSpace(in.KeyValue))
	if err != nil {
		return nil, e.countRedemption(nil, err)
	}
	if key.Deleted {
		return nil, e.countRedemption(nil, db.ErrKeyDeleted)
	}

	serviceID := in.ServiceID
	if serviceID == 0 {
		serviceID = key.ServiceID
	}
	if key.ServiceID != 0 && serviceID != key.ServiceID {
		return nil, e.countRedemption(nil, ErrKeyServiceMismatch)
	}

	svc, err := e.store.ServiceByID(serviceID)
	if err != nil {
		return nil, err
	}
	if svc == nil || !svc.Active {
		return nil, e.countRedemption(nil, ErrServiceNotFound)
	}

	prov, err := e.resolveProvider(svc)
	if err != nil {
		return nil, e.countRedemption(nil, err)
	}

	// Reservation commits before the provider call; the provider wait
	// never holds ledger state.
	res, err := e.store.Reserve(key.ID, in.Quantity, e.now())
	if err != nil {
		return nil, e.countRedemption(nil, err)
	}

	order := &db.Order{
		KeyID:            key.ID,
		ServiceID:        svc.ID,
		Quantity:         in.Quantity,
		Target:           in.Target,
		Status:           db.OrderPending,
		ReservationToken: res.Token,
	}
	if err := e.store.CreateOrder(order); err != nil {
		if relErr := e.store.Release(key.ID, in.Quantity); relErr != nil {
			log.Printf("release after order create failure for key %d: %v", key.ID, relErr)
		}
		return nil, err
	}

	externalID, err := e.client.Submit(*prov, svc.ExternalID, in.Target, in.Quantity)
	if err != nil {
		// Nothing was fulfilled: compensate the whole reservation. The
		// release only runs when this call wins the terminal transition;
		// if the write fails, the order stays pending and the sweep fails
		// it out (and releases) later, so capacity comes back exactly once.
		order.Status = db.OrderFailed
		order.Message = err.Error()
		order.Remains = in.Quantity
		now := e.now()
		order.CompletedAt = &now
		claimed, advErr := e.store.AdvanceOrder(order)
		if advErr != nil {
			log.Printf("fail order %d after submission error: %v", order.ID, advErr)
		}
		if claimed {
			if relErr := e.store.Release(key.ID, in.Quantity); relErr != nil {
				log.Printf("release after submission failure for key %d: %v", key.ID, relErr)
			}
		}
		metrics.OrdersTotal.WithLabelValues(prov.Name, string(db.OrderFailed)).Inc()
		return order, e.countRedemption(order, fmt.Errorf("%w: %s", ErrProviderSubmission, err))
	}

	order.Status = db.OrderProcessing
	order.ExternalID = externalID
	if err := e.store.SaveOrder(order); err != nil {
		return nil, err
	}

	metrics.OrdersTotal.WithLabelValues(prov.Name, string(db.OrderProcessing)).Inc()
	metrics.RedemptionsTotal.WithLabelValues("dispatched").Inc()
	return order, nil
}

// countRedemption records the redemption outcome metric and passes the
// error through.
func (e *Engine) countRedemption(_ *db.Order, err error) error {
	metrics.RedemptionsTotal.WithLabelValues(redemptionResult(err)).Inc()
	return err
}

func redemptionResult(err error) string {
	switch {
	case err == nil:
		return "dispatched"
	case errors.Is(err, db.ErrKeyNotFound):
		return "key_not_found"
	case errors.Is(err, db.ErrKeyDeleted):
		return "key_deleted"
	case errors.Is(err, db.ErrKeyExpired):
		return "key_expired"
	case errors.Is(err, db.ErrKeyExhausted):
		return "key_exhausted"
	case errors.Is(err, ErrKeyServiceMismatch):
		return "key_service_mismatch"
	case errors.Is(err, ErrServiceNotFound):
		return "service_not_found"
	case errors.Is(err, ErrUnresolvedProvider):
		return "unresolved_provider"
	case errors.Is(err, ErrProviderSubmission):
		return "provider_submission_failed"
	default:
		return "error"
	}
}
