package db

import (
	"time"
)

// Key is a finite capacity token sold to a customer. Redemptions draw
// against MaxQuantity until the key is exhausted or its validity window
// ends. Keys are only ever mutated by the ledger (reserve/release) and
// by administrative soft-delete; read paths never write.
type Key struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	// Name is an optional display label shared by a generated batch.
	Name string `gorm:"size:128"`

	// Category tags the key with a platform family (e.g. "instagram").
	// Used for scoped listing and export.
	Category string `gorm:"size:64;index"`

	// Value is the opaque redemption code handed to the customer.
	Value string `gorm:"uniqueIndex;size:64;not null"`

	// ServiceID is the catalog entry this key was sold for.
	ServiceID uint `gorm:"index;not null"`

	// MaxQuantity is the total redeemable quantity across all orders.
	MaxQuantity int `gorm:"not null"`

	// Consumed is the quantity already reserved. Invariant: 0 <= Consumed <= MaxQuantity.
	Consumed int `gorm:"not null;default:0"`

	// ValidityDays is the redemption window measured from CreatedAt.
	ValidityDays int `gorm:"not null"`

	// Used is set once Consumed reaches MaxQuantity.
	Used bool `gorm:"default:false"`

	// Deleted marks an administrative soft delete. Purged for good by the
	// retention worker after the configured window.
	Deleted   bool `gorm:"index;default:false"`
	DeletedAt *time.Time
}

// ExpiresAt returns the end of the key's validity window.
func (k *Key) ExpiresAt() time.Time {
	return k.CreatedAt.AddDate(0, 0, k.ValidityDays)
}

// Expired reports whether the key's validity window has passed at now.
func (k *Key) Expired(now time.Time) bool {
	return now.After(k.ExpiresAt())
}

// Remaining returns the redeemable quantity left on the key.
func (k *Key) Remaining() int {
	if r := k.MaxQuantity - k.Consumed; r > 0 {
		return r
	}
	return 0
}
