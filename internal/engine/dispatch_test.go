package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keyflow/internal/db"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func TestRedeem_Success(t *testing.T) {
	eng, store, client := fixture(testNow)

	order, err := eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://instagram.com/someone", Quantity: 4})
	require.NoError(t, err)
	require.NotNil(t, order)

	assert.Equal(t, db.OrderProcessing, order.Status)
	assert.Equal(t, "ext-1", order.ExternalID)
	assert.NotEmpty(t, order.ReservationToken)
	assert.Equal(t, 4, store.key(1).Consumed)
	assert.Equal(t, 1, client.submitCalls)

	stored := store.order(order.ID)
	assert.Equal(t, db.OrderProcessing, stored.Status)
}

func TestRedeem_UsesKeyBoundServiceWhenOmitted(t *testing.T) {
	eng, store, _ := fixture(testNow)

	order, err := eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://instagram.com/someone", Quantity: 1})
	require.NoError(t, err)
	assert.Equal(t, uint(1), order.ServiceID)
	assert.Equal(t, 1, store.key(1).Consumed)
}

func TestRedeem_ServiceMismatch(t *testing.T) {
	eng, store, client := fixture(testNow)
	store.addService(db.Service{ID: 2, ProviderID: 1, ExternalID: "102", Name: "Likes", Active: true})

	_, err := eng.Redeem(RedeemInput{KeyValue: "kf_test", ServiceID: 2, Target: "https://instagram.com/x", Quantity: 1})
	assert.ErrorIs(t, err, ErrKeyServiceMismatch)
	assert.Equal(t, 0, store.key(1).Consumed)
	assert.Equal(t, 0, client.submitCalls)
}

func TestRedeem_CapacitySequence(t *testing.T) {
	eng, store, _ := fixture(testNow)

	_, err := eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://t.example/a", Quantity: 7})
	require.NoError(t, err)
	assert.Equal(t, 7, store.key(1).Consumed)

	_, err = eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://t.example/a", Quantity: 5})
	assert.ErrorIs(t, err, db.ErrKeyExhausted)
	assert.Equal(t, 7, store.key(1).Consumed)

	_, err = eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://t.example/a", Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, 10, store.key(1).Consumed)
	assert.True(t, store.key(1).Used)

	_, err = eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://t.example/a", Quantity: 1})
	assert.ErrorIs(t, err, db.ErrKeyExhausted)
}

func TestRedeem_ExpiredKey(t *testing.T) {
	eng, store, client := fixture(testNow)
	store.addKey(db.Key{ID: 2, Value: "kf_old", ServiceID: 1, MaxQuantity: 10, ValidityDays: 7,
		CreatedAt: testNow.AddDate(0, 0, -8)})

	_, err := eng.Redeem(RedeemInput{KeyValue: "kf_old", Target: "https://t.example/a", Quantity: 1})
	assert.ErrorIs(t, err, db.ErrKeyExpired)
	assert.Equal(t, 0, store.key(2).Consumed)
	assert.Equal(t, 0, client.submitCalls)
}

func TestRedeem_DeletedAndUnknownKey(t *testing.T) {
	eng, store, _ := fixture(testNow)
	store.addKey(db.Key{ID: 3, Value: "kf_gone", ServiceID: 1, MaxQuantity: 5, ValidityDays: 7,
		CreatedAt: testNow, Deleted: true})

	_, err := eng.Redeem(RedeemInput{KeyValue: "kf_gone", Target: "https://t.example/a", Quantity: 1})
	assert.ErrorIs(t, err, db.ErrKeyDeleted)

	_, err = eng.Redeem(RedeemInput{KeyValue: "kf_missing", Target: "https://t.example/a", Quantity: 1})
	assert.ErrorIs(t, err, db.ErrKeyNotFound)
}

func TestRedeem_UnresolvedProviderBlocksReservation(t *testing.T) {
	eng, store, client := fixture(testNow)
	store.addService(db.Service{ID: 3, ProviderID: 0, ExternalID: "301", Name: "Orphan", Active: true})
	store.addKey(db.Key{ID: 4, Value: "kf_orphan", ServiceID: 3, MaxQuantity: 5, ValidityDays: 7, CreatedAt: testNow})

	_, err := eng.Redeem(RedeemInput{KeyValue: "kf_orphan", Target: "https://t.example/a", Quantity: 1})
	assert.ErrorIs(t, err, ErrUnresolvedProvider)
	assert.Equal(t, 0, store.key(4).Consumed)
	assert.Equal(t, 0, client.submitCalls)
}

func TestRedeem_InactiveProviderBlocksDispatch(t *testing.T) {
	eng, store, client := fixture(testNow)
	store.addProvider(db.Provider{ID: 2, Name: "Dormant", BaseURL: "https://dormant.example", APIKey: "k", Active: false})
	store.addService(db.Service{ID: 4, ProviderID: 2, ExternalID: "401", Name: "Views", Active: true})
	store.addKey(db.Key{ID: 5, Value: "kf_dormant", ServiceID: 4, MaxQuantity: 5, ValidityDays: 7, CreatedAt: testNow})

	_, err := eng.Redeem(RedeemInput{KeyValue: "kf_dormant", Target: "https://t.example/a", Quantity: 1})
	assert.ErrorIs(t, err, ErrUnresolvedProvider)
	assert.Equal(t, 0, client.submitCalls)
}

func TestRedeem_SubmissionFailureCompensates(t *testing.T) {
	eng, store, client := fixture(testNow)
	client.submitErr = errProviderDown

	order, err := eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://t.example/a", Quantity: 6})
	assert.ErrorIs(t, err, ErrProviderSubmission)
	require.NotNil(t, order)
	assert.Equal(t, db.OrderFailed, order.Status)
	assert.NotNil(t, order.CompletedAt)

	// Reservation fully compensated: a fresh redemption sees restored capacity.
	assert.Equal(t, 0, store.key(1).Consumed)

	client.submitErr = nil
	again, err := eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://t.example/a", Quantity: 6})
	require.NoError(t, err)
	assert.Equal(t, db.OrderProcessing, again.Status)
	assert.Equal(t, 6, store.key(1).Consumed)
}

func TestRedeem_SubmissionFailureSaveErrorDefersRelease(t *testing.T) {
	eng, store, client := fixture(testNow)
	client.submitErr = errProviderDown
	store.advanceOrderErr = errStoreDown

	order, err := eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://t.example/a", Quantity: 6})
	assert.ErrorIs(t, err, ErrProviderSubmission)
	require.NotNil(t, order)

	// The stored order stays pending and the reservation stays in place;
	// the sweep fails it out and releases later, never twice.
	assert.Equal(t, db.OrderPending, store.order(order.ID).Status)
	assert.Equal(t, 6, store.key(1).Consumed)
}

func TestRedeem_InvalidInput(t *testing.T) {
	eng, _, _ := fixture(testNow)

	_, err := eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://t.example/a", Quantity: 0})
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "  ", Quantity: 1})
	assert.ErrorIs(t, err, ErrInvalidTarget)
}

func TestRedeem_ConcurrentReservationsNeverExceedMaximum(t *testing.T) {
	eng, store, _ := fixture(testNow)

	const attempts = 40
	var wg sync.WaitGroup
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Redeem(RedeemInput{KeyValue: "kf_test", Target: "https://t.example/a", Quantity: 1})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	succeeded, exhausted := 0, 0
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		default:
			assert.ErrorIs(t, err, db.ErrKeyExhausted)
			exhausted++
		}
	}

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, attempts-10, exhausted)
	assert.Equal(t, 10, store.key(1).Consumed)
}
