// Package pricecache durably memoizes price_usd(symbol, asset, block)
// lookups so that a price already proven correct at a historical block
// is never re-resolved over RPC. It is additive: a miss (including a
// nil cache) always falls through to a live PriceResolver chain, and
// the canonical liquidations CSV remains the sole source of truth for
// event data.
package pricecache

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PriceRecord is the database model for one memoized historical price.
type PriceRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	Symbol      string `gorm:"size:32;not null;uniqueIndex:idx_symbol_block"`
	AssetAddr   string `gorm:"size:42;not null"`
	Block       uint64 `gorm:"not null;uniqueIndex:idx_symbol_block"`
	PriceUSD    string `gorm:"type:varchar(128);not null;comment:big.Rat.RatString()"`
	SourceLayer string `gorm:"size:32;not null"`
}

// TableName specifies the table name for GORM.
func (PriceRecord) TableName() string {
	return "resolved_prices"
}

// Cache implements priceresolver.Cache over a GORM database connection.
type Cache struct {
	db *gorm.DB
}

// New opens dsn (a MySQL DSN, e.g.
// "user:password@tcp(host:port)/dbname?charset=utf8mb4&parseTime=True&loc=Local")
// and migrates the resolved_prices table.
func New(dsn string) (*Cache, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("pricecache: connect: %w", err)
	}
	return NewWithDB(db)
}

// NewWithDB builds a Cache from an existing GORM DB instance, migrating
// the resolved_prices table if it doesn't already exist. Tests supply a
// sqlmock-backed *gorm.DB here.
func NewWithDB(db *gorm.DB) (*Cache, error) {
	if err := db.AutoMigrate(&PriceRecord{}); err != nil {
		return nil, fmt.Errorf("pricecache: migrate: %w", err)
	}
	return &Cache{db: db}, nil
}

// Get implements priceresolver.Cache. A miss returns (nil, false)
// without error; the resolver always treats cache absence the same as
// a cache disabled entirely.
func (c *Cache) Get(ctx context.Context, symbol string, block uint64) (*big.Rat, bool) {
	var record PriceRecord
	result := c.db.WithContext(ctx).Where("symbol = ? AND block = ?", symbol, block).First(&record)
	if result.Error != nil {
		return nil, false
	}
	price, ok := new(big.Rat).SetString(record.PriceUSD)
	if !ok {
		return nil, false
	}
	return price, true
}

// Put stores price for (symbol, block), overwriting any prior entry.
// The cache is a pure optimization, never a correctness dependency, so
// Put intentionally has no error return.
func (c *Cache) Put(ctx context.Context, symbol string, asset common.Address, block uint64, price *big.Rat, sourceLayer string) {
	record := PriceRecord{
		Symbol:      symbol,
		AssetAddr:   asset.Hex(),
		Block:       block,
		PriceUSD:    price.RatString(),
		SourceLayer: sourceLayer,
	}
	c.db.WithContext(ctx).
		Where(PriceRecord{Symbol: symbol, Block: block}).
		Assign(record).
		FirstOrCreate(&record)
}
