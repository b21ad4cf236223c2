package db

import (
	"time"
)

// Service is a fulfillable catalog entry. Each entry is bound to exactly
// one provider; the binding is assigned at import time and dispatch only
// ever follows the foreign key, never re-runs matching heuristics.
type Service struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// ProviderID is the owning provider. Zero means unbound: the entry
	// cannot be dispatched until an import or rebind assigns a provider.
	ProviderID uint `gorm:"index"`

	// ExternalID is the provider's own identifier for this service,
	// passed back verbatim on order submission.
	ExternalID string `gorm:"size:32;not null"`

	Name string `gorm:"size:255;not null"`

	// Platform is a free-text platform tag (e.g. "Instagram Followers").
	// Only consulted by the import-time binding heuristic.
	Platform string `gorm:"size:128;index"`

	// Type is the provider-reported service type (e.g. "Default", "Drip-feed").
	Type string `gorm:"size:64"`

	// Price is the provider rate per 1000 units.
	Price float64

	Active bool `gorm:"default:true"`

	Provider Provider `gorm:"foreignKey:ProviderID"`
}
