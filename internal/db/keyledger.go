package db

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Typed reservation failures. All are pre-dispatch and non-retryable
// without administrative intervention or a different key.
var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrKeyDeleted   = errors.New("key deleted")
	ErrKeyExpired   = errors.New("key expired")
	ErrKeyExhausted = errors.New("key exhausted")
)

// Reservation is the result of a successful capacity reservation.
type Reservation struct {
	Token    string
	KeyID    uint
	Quantity int
}

// ReserveKey atomically reserves quantity units of the key's capacity.
//
// The reservation is a single conditional UPDATE: consumed is only
// incremented when the key is live, inside its validity window, and the
// resulting consumed stays within max_quantity. Two concurrent reservations
// can therefore never interleave into an over-redemption; the loser simply
// affects zero rows and gets a typed reason from a follow-up read.
func ReserveKey(db *gorm.DB, keyID uint, quantity int, now time.Time) (*Reservation, error) {
	res := db.Model(&Key{}).
		Where("id = ? AND deleted = ? AND used = ?", keyID, false, false).
		Where("consumed + ? <= max_quantity", quantity).
		Where("created_at + make_interval(days => validity_days) >= ?", now).
		Update("consumed", gorm.Expr("consumed + ?", quantity))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, classifyReserveFailure(db, keyID, now)
	}

	// Flip the used flag once capacity is gone. Losing this update is
	// harmless: reservation already rejects exhausted keys on its own.
	if err := MarkUsedIfExhausted(db, keyID); err != nil {
		return nil, err
	}

	return &Reservation{Token: uuid.NewString(), KeyID: keyID, Quantity: quantity}, nil
}

// classifyReserveFailure re-reads the key to turn a zero-row conditional
// update into a typed reason.
func classifyReserveFailure(db *gorm.DB, keyID uint, now time.Time) error {
	var key Key
	if err := db.First(&key, keyID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrKeyNotFound
		}
		return err
	}
	switch {
	case key.Deleted:
		return ErrKeyDeleted
	case key.Expired(now):
		return ErrKeyExpired
	default:
		return ErrKeyExhausted
	}
}

// ReleaseKey is the compensating decrement for a reservation whose order
// never reached (or was not fully fulfilled by) the provider. Consumed is
// clamped at zero and the used flag is recomputed in the same statement,
// so a key regains redeemability when capacity reappears.
func ReleaseKey(db *gorm.DB, keyID uint, quantity int) error {
	if quantity <= 0 {
		return nil
	}
	return db.Model(&Key{}).
		Where("id = ?", keyID).
		Updates(map[string]interface{}{
			"consumed": gorm.Expr("GREATEST(consumed - ?, 0)", quantity),
			"used":     gorm.Expr("GREATEST(consumed - ?, 0) >= max_quantity", quantity),
		}).Error
}

// MarkUsedIfExhausted sets the used flag when consumed has reached the
// key's maximum.
func MarkUsedIfExhausted(db *gorm.DB, keyID uint) error {
	return db.Model(&Key{}).
		Where("id = ? AND consumed >= max_quantity", keyID).
		Update("used", true).Error
}

// MarkUsed flags a key as used regardless of remaining capacity
// (administrative action).
func MarkUsed(db *gorm.DB, keyID uint) error {
	return db.Model(&Key{}).Where("id = ?", keyID).Update("used", true).Error
}

// FindKeyByValue loads a key by its opaque redemption value. Soft-deleted
// rows are returned as well so callers can distinguish deleted from
// unknown keys.
func FindKeyByValue(db *gorm.DB, value string) (*Key, error) {
	var key Key
	if err := db.Where("value = ?", value).First(&key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	return &key, nil
}
