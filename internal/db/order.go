package db

import (
	"time"

	"gorm.io/datatypes"
)

// OrderStatus is the engine's closed status vocabulary. Provider-specific
// status strings are mapped into this set by the reconciler; provider
// vocabulary never leaks into stored status.
type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderProcessing OrderStatus = "processing"
	OrderInProgress OrderStatus = "in_progress"
	OrderCompleted  OrderStatus = "completed"
	OrderPartial    OrderStatus = "partial"
	OrderFailed     OrderStatus = "failed"
	OrderCancelled  OrderStatus = "cancelled"
)

// Terminal reports whether the status ends the order lifecycle. Terminal
// orders are never mutated again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderCompleted, OrderPartial, OrderFailed, OrderCancelled:
		return true
	}
	return false
}

// Order is a single redemption's fulfillment record. Created by the
// dispatcher together with the capacity reservation, then owned by the
// reconciler for every later mutation. Orders accumulate as history and
// are never deleted.
type Order struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time
	UpdatedAt time.Time

	KeyID     uint `gorm:"index;not null"`
	ServiceID uint `gorm:"index;not null"`

	// Quantity is the requested fulfillment amount, reserved on the key
	// before submission.
	Quantity int `gorm:"not null"`

	// Target is the URL or handle the order is fulfilled against.
	Target string `gorm:"size:500;not null"`

	Status OrderStatus `gorm:"size:16;index;not null"`

	// ExternalID is the provider-assigned order reference, stored on
	// successful submission and used for all status polling.
	ExternalID string `gorm:"size:64;index"`

	// Message holds the latest provider-reported or local error message.
	Message string `gorm:"size:255"`

	// Payload is the last raw provider status response, kept opaque for
	// audit and debugging.
	Payload datatypes.JSONMap `gorm:"type:json"`

	// Remains is the unfulfilled quantity reported by the provider when
	// the order ended partial/failed/cancelled. Zero otherwise.
	Remains int `gorm:"not null;default:0"`

	// ReservationToken ties the order to the ledger reservation it was
	// created with.
	ReservationToken string `gorm:"size:36"`

	CompletedAt *time.Time

	Service Service `gorm:"foreignKey:ServiceID"`
}

// OrderBucket stores pre-aggregated hourly order outcomes per provider
// for fast admin charts. Filled by the aggregation worker.
type OrderBucket struct {
	ID uint `gorm:"primaryKey"`

	ProviderID  uint      `gorm:"uniqueIndex:idx_order_bucket_unique,priority:1;not null"`
	BucketStart time.Time `gorm:"uniqueIndex:idx_order_bucket_unique,priority:2;not null"` // start of the hour (UTC)

	TotalCount     int64 `gorm:"not null"` // orders created in this hour
	CompletedCount int64 `gorm:"not null"` // orders currently completed
	PartialCount   int64 `gorm:"not null"` // orders currently partial
	FailedCount    int64 `gorm:"not null"` // orders currently failed or cancelled
}
