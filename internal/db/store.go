package db

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Store bundles the engine-facing persistence operations over a single
// GORM connection. The engine talks to this through an interface so its
// orchestration logic can be tested against fakes.
type Store struct {
	g *gorm.DB
}

func NewStore(g *gorm.DB) *Store {
	return &Store{g: g}
}

func (s *Store) KeyByValue(value string) (*Key, error) {
	return FindKeyByValue(s.g, value)
}

func (s *Store) Reserve(keyID uint, quantity int, now time.Time) (*Reservation, error) {
	return ReserveKey(s.g, keyID, quantity, now)
}

func (s *Store) Release(keyID uint, quantity int) error {
	return ReleaseKey(s.g, keyID, quantity)
}

func (s *Store) ServiceByID(id uint) (*Service, error) {
	var svc Service
	if err := s.g.Preload("Provider").First(&svc, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &svc, nil
}

func (s *Store) ServiceByProviderExternalID(providerID uint, externalID string) (*Service, error) {
	var svc Service
	err := s.g.Where("provider_id = ? AND external_id = ?", providerID, externalID).First(&svc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &svc, nil
}

// UnboundServices returns catalog entries with no live provider binding:
// either never bound, or bound to a provider that no longer exists.
func (s *Store) UnboundServices() ([]Service, error) {
	var svcs []Service
	err := s.g.
		Where("provider_id = 0 OR provider_id NOT IN (?)", s.g.Model(&Provider{}).Select("id")).
		Order("id").
		Find(&svcs).Error
	return svcs, err
}

func (s *Store) SaveService(svc *Service) error {
	return s.g.Save(svc).Error
}

func (s *Store) CreateService(svc *Service) error {
	return s.g.Create(svc).Error
}

func (s *Store) ProviderByID(id uint) (*Provider, error) {
	var p Provider
	if err := s.g.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// ActiveProviders returns active providers in registration (ID) order,
// which is the deterministic tie-break order for binding.
func (s *Store) ActiveProviders() ([]Provider, error) {
	var provs []Provider
	err := s.g.Where("active = ?", true).Order("id").Find(&provs).Error
	return provs, err
}

func (s *Store) CreateOrder(o *Order) error {
	return s.g.Create(o).Error
}

func (s *Store) OrderByID(id uint) (*Order, error) {
	var o Order
	err := s.g.Preload("Service").Preload("Service.Provider").First(&o, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (s *Store) SaveOrder(o *Order) error {
	return s.g.Save(o).Error
}

// AdvanceOrder persists a lifecycle transition only while the stored
// order is still non-terminal, reporting whether this write won. Losing
// means a concurrent refresh already moved the order on; the caller must
// not apply side effects such as releasing the reservation.
func (s *Store) AdvanceOrder(o *Order) (bool, error) {
	res := s.g.Model(&Order{}).
		Where("id = ? AND status IN ?", o.ID, []OrderStatus{OrderPending, OrderProcessing, OrderInProgress}).
		Updates(map[string]interface{}{
			"status":       o.Status,
			"message":      o.Message,
			"payload":      o.Payload,
			"remains":      o.Remains,
			"completed_at": o.CompletedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// NonTerminalOrders returns in-flight orders, oldest update first, for
// the reconcile sweep.
func (s *Store) NonTerminalOrders(limit int) ([]Order, error) {
	var orders []Order
	err := s.g.Preload("Service").Preload("Service.Provider").
		Where("status IN ?", []OrderStatus{OrderPending, OrderProcessing, OrderInProgress}).
		Order("updated_at").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
