package engine

import (
	"time"

	"keyflow/internal/db"
	"keyflow/internal/metrics"
	"keyflow/internal/provider"
)

// Store is the persistence surface the engine needs. Implemented by
// db.Store for real traffic and by fakes in tests.
type Store interface {
	KeyByValue(value string) (*db.Key, error)
	Reserve(keyID uint, quantity int, now time.Time) (*db.Reservation, error)
	Release(keyID uint, quantity int) error

	ServiceByID(id uint) (*db.Service, error)
	ServiceByProviderExternalID(providerID uint, externalID string) (*db.Service, error)
	UnboundServices() ([]db.Service, error)
	SaveService(svc *db.Service) error
	CreateService(svc *db.Service) error

	ProviderByID(id uint) (*db.Provider, error)
	ActiveProviders() ([]db.Provider, error)

	CreateOrder(o *db.Order) error
	OrderByID(id uint) (*db.Order, error)
	SaveOrder(o *db.Order) error
	AdvanceOrder(o *db.Order) (bool, error)
	NonTerminalOrders(limit int) ([]db.Order, error)
}

// Client is the normalized provider contract: catalog listing, order
// submission and status polling.
type Client interface {
	Services(p db.Provider) ([]provider.RemoteService, error)
	Submit(p db.Provider, externalServiceID, target string, quantity int) (string, error)
	Status(p db.Provider, externalOrderID string) (provider.OrderInfo, error)
}

// Engine is the redemption and dispatch core: it owns the sequencing of
// provider resolution, capacity reservation, order creation/submission
// and reconciliation.
type Engine struct {
	store  Store
	client Client
	now    func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source (tests).
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(store Store, client Client, opts ...Option) *Engine {
	metrics.Init()
	e := &Engine{
		store:  store,
		client: client,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// resolveProvider returns the provider bound to the catalog entry. No
// heuristics run here: binding happened at import time, and a missing or
// inactive provider blocks dispatch instead of falling back.
func (e *Engine) resolveProvider(svc *db.Service) (*db.Provider, error) {
	if svc.ProviderID == 0 {
		return nil, ErrUnresolvedProvider
	}
	if svc.Provider.ID == svc.ProviderID {
		p := svc.Provider
		if !p.Active {
			return nil, ErrUnresolvedProvider
		}
		return &p, nil
	}
	p, err := e.store.ProviderByID(svc.ProviderID)
	if err != nil {
		return nil, err
	}
	if p == nil || !p.Active {
		return nil, ErrUnresolvedProvider
	}
	return p, nil
}
