package priceresolver

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
)

type fakeCache struct {
	store   map[string]*big.Rat
	getKeys []string
	putKeys []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{store: make(map[string]*big.Rat)}
}

func (f *fakeCache) key(symbol string, block uint64) string {
	return symbol
}

func (f *fakeCache) Get(ctx context.Context, symbol string, block uint64) (*big.Rat, bool) {
	f.getKeys = append(f.getKeys, symbol)
	v, ok := f.store[f.key(symbol, block)]
	return v, ok
}

func (f *fakeCache) Put(ctx context.Context, symbol string, asset common.Address, block uint64, price *big.Rat, sourceLayer string) {
	f.putKeys = append(f.putKeys, symbol)
	f.store[f.key(symbol, block)] = price
}

func TestResolveCacheHitShortCircuitsLayers(t *testing.T) {
	cache := newFakeCache()
	cache.store["ETH"] = big.NewRat(3000, 1)

	r := New(nil, cache, time.Second)
	price := r.resolve(context.Background(), "ETH", common.Address{}, 100, 1700000000, "")

	assert.NotNil(t, price)
	assert.Equal(t, 0, price.Cmp(big.NewRat(3000, 1)))
}

func TestPriceUSDAppliesAliasBeforeLookup(t *testing.T) {
	cache := newFakeCache()
	cache.store["ETH"] = big.NewRat(3000, 1)

	r := New(nil, cache, time.Second)
	price := r.PriceUSD(context.Background(), "WETH", common.Address{}, 100, 1700000000)

	assert.NotNil(t, price)
	assert.Equal(t, 0, price.Cmp(big.NewRat(3000, 1)))
	assert.Contains(t, cache.getKeys, "ETH")
}

func TestStablecoinLayerRecognizesStableSymbols(t *testing.T) {
	r := &Resolver{}
	price := r.stablecoinLayer(context.Background(), "USDC", common.Address{}, 100, 1700000000)
	assert.NotNil(t, price)
	assert.Equal(t, 0, price.Cmp(big.NewRat(1, 1)))
}

func TestStablecoinLayerReturnsNilForNonStable(t *testing.T) {
	r := &Resolver{}
	price := r.stablecoinLayer(context.Background(), "AAVE", common.Address{}, 100, 1700000000)
	assert.Nil(t, price)
}

func TestChainlinkDirectLayerSkipsUnknownSymbols(t *testing.T) {
	r := &Resolver{}
	price := r.chainlinkDirectLayer(context.Background(), "NOTREAL", common.Address{}, 100, 1700000000)
	assert.Nil(t, price)
}

func TestRawLSDLayerSkipsUnknownSymbols(t *testing.T) {
	r := &Resolver{}
	price := r.rawLSDLayer(context.Background(), "NOTREAL", common.Address{}, 100, 1700000000)
	assert.Nil(t, price)
}

func TestCapoLSDLayerSkipsAssetsWithoutAdapter(t *testing.T) {
	r := &Resolver{}
	price := r.capoLSDLayer(context.Background(), "SDAI", common.Address{}, 100, 1700000000)
	assert.Nil(t, price)
}

func TestEthCompositionLayerSkipsUnknownSymbols(t *testing.T) {
	r := &Resolver{}
	price := r.ethCompositionLayer(context.Background(), "NOTREAL", common.Address{}, 100, 1700000000)
	assert.Nil(t, price)
}

func TestRatFromBig8Decimals(t *testing.T) {
	price := ratFromBig8Decimals(big.NewInt(300000000000)) // 3000.00000000
	assert.Equal(t, 0, price.Cmp(big.NewRat(3000, 1)))
}

func TestRatFromDecimals(t *testing.T) {
	price := ratFromDecimals(big.NewInt(1_500_000_000_000_000_000), 18)
	assert.Equal(t, 0, price.Cmp(big.NewRat(3, 2)))
}

func TestBlockBigInt(t *testing.T) {
	assert.Equal(t, big.NewInt(12345), blockBigInt(12345))
}
