package pricecache

import (
	"context"
	"math/big"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func mockCache(t *testing.T) (*Cache, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gormDB, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return &Cache{db: gormDB}, mock
}

func TestGetReturnsPriceOnHit(t *testing.T) {
	cache, mock := mockCache(t)

	rows := sqlmock.NewRows([]string{"id", "symbol", "asset_addr", "block", "price_usd", "source_layer"}).
		AddRow(1, "ETH", "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18_000_000, "3000/1", "aave_oracle")
	mock.ExpectQuery("SELECT \\* FROM `resolved_prices`").WillReturnRows(rows)

	price, ok := cache.Get(context.Background(), "ETH", 18_000_000)
	require.True(t, ok)
	assert.Equal(t, 0, price.Cmp(big.NewRat(3000, 1)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetReturnsFalseOnMiss(t *testing.T) {
	cache, mock := mockCache(t)
	mock.ExpectQuery("SELECT \\* FROM `resolved_prices`").WillReturnError(gorm.ErrRecordNotFound)

	_, ok := cache.Get(context.Background(), "ETH", 18_000_000)
	assert.False(t, ok)
}

func TestPutUpsertsRecord(t *testing.T) {
	cache, mock := mockCache(t)

	mock.ExpectQuery("SELECT \\* FROM `resolved_prices`").WillReturnRows(sqlmock.NewRows(nil))
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `resolved_prices`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cache.Put(context.Background(), "ETH", common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"), 18_000_000, big.NewRat(3000, 1), "aave_oracle")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPriceRecordTableName(t *testing.T) {
	assert.Equal(t, "resolved_prices", PriceRecord{}.TableName())
}
