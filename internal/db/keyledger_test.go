package db

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var ledgerNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 conn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		DisableAutomaticPing:   true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return gdb, mock
}

func keyRows(k Key) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "created_at", "max_quantity", "consumed", "validity_days", "used", "deleted",
	}).AddRow(k.ID, k.CreatedAt, k.MaxQuantity, k.Consumed, k.ValidityDays, k.Used, k.Deleted)
}

func TestReserveKey_Success(t *testing.T) {
	gdb, mock := newMockDB(t)

	// The conditional update wins, then the used flag sweep runs.
	mock.ExpectExec(`UPDATE "keys" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "keys" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	res, err := ReserveKey(gdb, 7, 3, ledgerNow)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, uint(7), res.KeyID)
	assert.Equal(t, 3, res.Quantity)
	assert.NotEmpty(t, res.Token)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveKey_ExhaustedClassification(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE "keys" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "keys"`).
		WillReturnRows(keyRows(Key{ID: 7, CreatedAt: ledgerNow, MaxQuantity: 10, Consumed: 10, ValidityDays: 30, Used: true}))

	_, err := ReserveKey(gdb, 7, 1, ledgerNow)
	assert.ErrorIs(t, err, ErrKeyExhausted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveKey_ExpiredClassification(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE "keys" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "keys"`).
		WillReturnRows(keyRows(Key{ID: 7, CreatedAt: ledgerNow.AddDate(0, 0, -31), MaxQuantity: 10, ValidityDays: 30}))

	_, err := ReserveKey(gdb, 7, 1, ledgerNow)
	assert.ErrorIs(t, err, ErrKeyExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveKey_DeletedClassification(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE "keys" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "keys"`).
		WillReturnRows(keyRows(Key{ID: 7, CreatedAt: ledgerNow, MaxQuantity: 10, ValidityDays: 30, Deleted: true}))

	_, err := ReserveKey(gdb, 7, 1, ledgerNow)
	assert.ErrorIs(t, err, ErrKeyDeleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveKey_NotFoundClassification(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE "keys" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT \* FROM "keys"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := ReserveKey(gdb, 404, 1, ledgerNow)
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseKey(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE "keys" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, ReleaseKey(gdb, 7, 4))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseKey_ZeroQuantityIsNoOp(t *testing.T) {
	gdb, mock := newMockDB(t)

	require.NoError(t, ReleaseKey(gdb, 7, 0))
	require.NoError(t, ReleaseKey(gdb, 7, -5))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkUsed(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectExec(`UPDATE "keys" SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, MarkUsed(gdb, 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindKeyByValue_NotFound(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM "keys"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := FindKeyByValue(gdb, "kf_missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindKeyByValue_ReturnsSoftDeleted(t *testing.T) {
	gdb, mock := newMockDB(t)

	mock.ExpectQuery(`SELECT \* FROM "keys"`).
		WillReturnRows(keyRows(Key{ID: 9, CreatedAt: ledgerNow, MaxQuantity: 5, ValidityDays: 7, Deleted: true}))

	key, err := FindKeyByValue(gdb, "kf_gone")
	require.NoError(t, err)
	assert.True(t, key.Deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
