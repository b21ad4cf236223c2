package engine

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"keyflow/internal/db"
	"keyflow/internal/provider"
)

// fakeStore implements Store in memory with the same reservation
// semantics the SQL ledger enforces.
type fakeStore struct {
	mu sync.Mutex

	keys      map[uint]*db.Key
	services  map[uint]*db.Service
	providers map[uint]*db.Provider
	orders    map[uint]*db.Order

	nextOrderID   uint
	nextServiceID uint
	nextResToken  int

	createOrderErr  error
	saveOrderErr    error
	advanceOrderErr error
	releaseCalls    []releaseCall
}

type releaseCall struct {
	keyID    uint
	quantity int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		keys:      make(map[uint]*db.Key),
		services:  make(map[uint]*db.Service),
		providers: make(map[uint]*db.Provider),
		orders:    make(map[uint]*db.Order),
	}
}

func (s *fakeStore) addKey(k db.Key) *db.Key {
	s.keys[k.ID] = &k
	return s.keys[k.ID]
}

func (s *fakeStore) addService(svc db.Service) *db.Service {
	if svc.ID == 0 {
		s.nextServiceID++
		svc.ID = s.nextServiceID
	} else if svc.ID > s.nextServiceID {
		s.nextServiceID = svc.ID
	}
	s.services[svc.ID] = &svc
	return s.services[svc.ID]
}

func (s *fakeStore) addProvider(p db.Provider) *db.Provider {
	s.providers[p.ID] = &p
	return s.providers[p.ID]
}

func (s *fakeStore) KeyByValue(value string) (*db.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range s.keys {
		if k.Value == value {
			copied := *k
			return &copied, nil
		}
	}
	return nil, db.ErrKeyNotFound
}

func (s *fakeStore) Reserve(keyID uint, quantity int, now time.Time) (*db.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k, ok := s.keys[keyID]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	switch {
	case k.Deleted:
		return nil, db.ErrKeyDeleted
	case k.Expired(now):
		return nil, db.ErrKeyExpired
	case k.Used || k.Consumed+quantity > k.MaxQuantity:
		return nil, db.ErrKeyExhausted
	}
	k.Consumed += quantity
	if k.Consumed >= k.MaxQuantity {
		k.Used = true
	}
	s.nextResToken++
	return &db.Reservation{Token: "res-" + strconv.Itoa(s.nextResToken), KeyID: keyID, Quantity: quantity}, nil
}

func (s *fakeStore) Release(keyID uint, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseCalls = append(s.releaseCalls, releaseCall{keyID: keyID, quantity: quantity})
	k, ok := s.keys[keyID]
	if !ok {
		return nil
	}
	k.Consumed -= quantity
	if k.Consumed < 0 {
		k.Consumed = 0
	}
	k.Used = k.Consumed >= k.MaxQuantity
	return nil
}

func (s *fakeStore) ServiceByID(id uint) (*db.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	svc, ok := s.services[id]
	if !ok {
		return nil, nil
	}
	copied := *svc
	return &copied, nil
}

func (s *fakeStore) ServiceByProviderExternalID(providerID uint, externalID string) (*db.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, svc := range s.services {
		if svc.ProviderID == providerID && svc.ExternalID == externalID {
			copied := *svc
			return &copied, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) UnboundServices() ([]db.Service, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Service
	for i := uint(1); i <= s.nextServiceID; i++ {
		svc, ok := s.services[i]
		if !ok {
			continue
		}
		if svc.ProviderID == 0 {
			out = append(out, *svc)
			continue
		}
		if _, exists := s.providers[svc.ProviderID]; !exists {
			out = append(out, *svc)
		}
	}
	return out, nil
}

func (s *fakeStore) SaveService(svc *db.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *svc
	s.services[svc.ID] = &copied
	return nil
}

func (s *fakeStore) CreateService(svc *db.Service) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextServiceID++
	svc.ID = s.nextServiceID
	copied := *svc
	s.services[svc.ID] = &copied
	return nil
}

func (s *fakeStore) ProviderByID(id uint) (*db.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.providers[id]
	if !ok {
		return nil, nil
	}
	copied := *p
	return &copied, nil
}

func (s *fakeStore) ActiveProviders() ([]db.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var maxID uint
	for id := range s.providers {
		if id > maxID {
			maxID = id
		}
	}
	var out []db.Provider
	for i := uint(1); i <= maxID; i++ {
		if p, ok := s.providers[i]; ok && p.Active {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateOrder(o *db.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createOrderErr != nil {
		return s.createOrderErr
	}
	s.nextOrderID++
	o.ID = s.nextOrderID
	copied := *o
	s.orders[o.ID] = &copied
	return nil
}

func (s *fakeStore) OrderByID(id uint) (*db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, nil
	}
	copied := *o
	return &copied, nil
}

func (s *fakeStore) SaveOrder(o *db.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveOrderErr != nil {
		return s.saveOrderErr
	}
	copied := *o
	s.orders[o.ID] = &copied
	return nil
}

// AdvanceOrder mirrors the SQL store's conditional update: the write
// only lands while the stored order is still non-terminal.
func (s *fakeStore) AdvanceOrder(o *db.Order) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.advanceOrderErr != nil {
		return false, s.advanceOrderErr
	}
	stored, ok := s.orders[o.ID]
	if !ok || stored.Status.Terminal() {
		return false, nil
	}
	stored.Status = o.Status
	stored.Message = o.Message
	stored.Payload = o.Payload
	stored.Remains = o.Remains
	stored.CompletedAt = o.CompletedAt
	return true, nil
}

func (s *fakeStore) NonTerminalOrders(limit int) ([]db.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []db.Order
	for i := uint(1); i <= s.nextOrderID && len(out) < limit; i++ {
		o, ok := s.orders[i]
		if ok && !o.Status.Terminal() {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (s *fakeStore) order(id uint) db.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

func (s *fakeStore) key(id uint) db.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.keys[id]
}

// fakeClient implements Client with scripted responses.
type fakeClient struct {
	mu sync.Mutex

	submitErr    error
	submitCalls  int
	statusResp   provider.OrderInfo
	statusErr    error
	statusCalls  int
	servicesResp []provider.RemoteService
	servicesErr  error
}

func (c *fakeClient) Services(p db.Provider) ([]provider.RemoteService, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.servicesErr != nil {
		return nil, c.servicesErr
	}
	return c.servicesResp, nil
}

func (c *fakeClient) Submit(p db.Provider, externalServiceID, target string, quantity int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitCalls++
	if c.submitErr != nil {
		return "", c.submitErr
	}
	return fmt.Sprintf("ext-%d", c.submitCalls), nil
}

func (c *fakeClient) Status(p db.Provider, externalOrderID string) (provider.OrderInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statusCalls++
	if c.statusErr != nil {
		return provider.OrderInfo{}, c.statusErr
	}
	return c.statusResp, nil
}

var (
	errProviderDown = errors.New("connection timed out")
	errStoreDown    = errors.New("driver: bad connection")
)

// fixture builds an engine over one provider, one bound service and one
// fresh key.
func fixture(now time.Time) (*Engine, *fakeStore, *fakeClient) {
	store := newFakeStore()
	store.addProvider(db.Provider{ID: 1, Name: "MediaBoost", BaseURL: "https://mediaboost.example/api/v2", APIKey: "secret", Active: true})
	store.addService(db.Service{ID: 1, ProviderID: 1, ExternalID: "101", Name: "Followers", Platform: "Instagram", Active: true,
		Provider: db.Provider{ID: 1, Name: "MediaBoost", Active: true}})
	store.addKey(db.Key{ID: 1, Value: "kf_test", ServiceID: 1, MaxQuantity: 10, ValidityDays: 7, CreatedAt: now})

	client := &fakeClient{}
	eng := New(store, client, WithClock(func() time.Time { return now }))
	return eng, store, client
}
