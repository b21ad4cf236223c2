package db

import (
	"time"
)

// Provider is an external fulfillment system registration: the endpoint
// and credential this engine uses to submit and track orders. The name
// doubles as the matching key for import-time service binding, so it is
// unique and not mere decoration.
type Provider struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	Name string `gorm:"uniqueIndex;size:128;not null"`

	// BaseURL is the full API endpoint (e.g. https://panel.example.com/api/v2).
	BaseURL string `gorm:"size:255;not null"`

	// APIKey is the credential secret sent with every request.
	APIKey string `gorm:"size:255;not null"`

	// Active gates dispatch: orders are never submitted to an inactive provider.
	Active bool `gorm:"default:true"`
}
