package priceresolver

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/aave-liq/scanner/internal/abi"
	"github.com/aave-liq/scanner/pkg/tokenregistry"
)

func blockBigInt(block uint64) *big.Int {
	return new(big.Int).SetUint64(block)
}

// aaveOracleLayer is layer 1: the Aave V3 oracle is authoritative for
// every Aave-listed asset and is therefore tried first.
func (r *Resolver) aaveOracleLayer(ctx context.Context, symbol string, asset common.Address, block, eventTimestamp uint64) *big.Rat {
	c, url := r.client(ctx, AaveOracleAddress, abi.AaveOracle)
	if c == nil {
		return nil
	}
	out, ok := call(ctx, r.pool, url, func() ([]interface{}, error) {
		return c.Call(ctx, blockBigInt(block), "getAssetPrice", asset)
	})
	if !ok || len(out) != 1 {
		return nil
	}
	price, isInt := out[0].(*big.Int)
	if !isInt || price.Sign() <= 0 {
		return nil
	}
	return ratFromBig8Decimals(price)
}

// chainlinkDirectLayer is layer 2: a direct X/USD aggregator.
func (r *Resolver) chainlinkDirectLayer(ctx context.Context, symbol string, asset common.Address, block, eventTimestamp uint64) *big.Rat {
	feed, ok := chainlinkFeeds[symbol]
	if !ok {
		return nil
	}
	return r.readAggregatorUSD(ctx, feed, block)
}

func (r *Resolver) readAggregatorUSD(ctx context.Context, feed common.Address, block uint64) *big.Rat {
	c, url := r.client(ctx, feed, abi.ChainlinkAggregator)
	if c == nil {
		return nil
	}
	round, ok := call(ctx, r.pool, url, func() ([]interface{}, error) {
		return c.Call(ctx, blockBigInt(block), "latestRoundData")
	})
	if !ok || len(round) != 5 {
		return nil
	}
	answer, isInt := round[1].(*big.Int)
	if !isInt || answer.Sign() <= 0 {
		return nil
	}
	dec, ok := call(ctx, r.pool, url, func() ([]interface{}, error) {
		return c.Call(ctx, blockBigInt(block), "decimals")
	})
	if !ok || len(dec) != 1 {
		return nil
	}
	decimals, isU8 := dec[0].(uint8)
	if !isU8 {
		return nil
	}
	return ratFromDecimals(answer, decimals)
}

// capoLSDLayer is layer 3: CAPO-bounded LSD price.
func (r *Resolver) capoLSDLayer(ctx context.Context, symbol string, asset common.Address, block, eventTimestamp uint64) *big.Rat {
	adapter, ok := capoAdapters[symbol]
	if !ok {
		return nil
	}
	raw := r.computeLSDRawPrice(ctx, symbol, block, eventTimestamp)
	if raw == nil {
		return nil
	}
	info := lsdAssets[symbol]
	underlyingPrice := r.resolve(ctx, info.Underlying, info.UnderlyingAsset, block, eventTimestamp, "")
	if underlyingPrice == nil || underlyingPrice.Sign() <= 0 {
		return nil
	}

	c, url := r.client(ctx, adapter, abi.CapoAdapter)
	if c == nil {
		return nil
	}
	snapshotRatioOut, ok := call(ctx, r.pool, url, func() ([]interface{}, error) {
		return c.Call(ctx, blockBigInt(block), "getSnapshotRatio")
	})
	if !ok || len(snapshotRatioOut) != 1 {
		return nil
	}
	snapshotTimestampOut, ok := call(ctx, r.pool, url, func() ([]interface{}, error) {
		return c.Call(ctx, blockBigInt(block), "getSnapshotTimestamp")
	})
	if !ok || len(snapshotTimestampOut) != 1 {
		return nil
	}
	maxGrowthOut, ok := call(ctx, r.pool, url, func() ([]interface{}, error) {
		return c.Call(ctx, blockBigInt(block), "getMaxYearlyGrowthRatePercent")
	})
	if !ok || len(maxGrowthOut) != 1 {
		return nil
	}
	ratioDecimalsOut, ok := call(ctx, r.pool, url, func() ([]interface{}, error) {
		return c.Call(ctx, blockBigInt(block), "RATIO_DECIMALS")
	})
	if !ok || len(ratioDecimalsOut) != 1 {
		return nil
	}

	snapshotRatio, isInt := snapshotRatioOut[0].(*big.Int)
	if !isInt {
		return nil
	}
	snapshotTimestamp, isInt := snapshotTimestampOut[0].(*big.Int)
	if !isInt {
		return nil
	}
	maxGrowthBps, isInt := maxGrowthOut[0].(*big.Int)
	if !isInt {
		return nil
	}
	ratioDecimals, isU8 := ratioDecimalsOut[0].(uint8)
	if !isU8 {
		return nil
	}

	elapsed := int64(eventTimestamp) - snapshotTimestamp.Int64()
	maxRatio := capoMaxRatio(new(big.Rat).SetInt(snapshotRatio), maxGrowthBps.Int64(), elapsed)
	return capoCappedPrice(raw, underlyingPrice, ratioDecimals, maxRatio)
}

// rawLSDLayer is layer 4: exchange_rate × underlying, uncapped.
func (r *Resolver) rawLSDLayer(ctx context.Context, symbol string, asset common.Address, block, eventTimestamp uint64) *big.Rat {
	return r.computeLSDRawPrice(ctx, symbol, block, eventTimestamp)
}

func (r *Resolver) computeLSDRawPrice(ctx context.Context, symbol string, block, eventTimestamp uint64) *big.Rat {
	info, ok := lsdAssets[symbol]
	if !ok {
		return nil
	}
	c, url := r.client(ctx, info.RateAddress, abi.LSDRates)
	if c == nil {
		return nil
	}

	var rateOut []interface{}
	var success bool
	if info.RateHasShares {
		oneShare := pow10(18)
		rateOut, success = call(ctx, r.pool, url, func() ([]interface{}, error) {
			return c.Call(ctx, blockBigInt(block), info.RateMethod, oneShare)
		})
	} else {
		rateOut, success = call(ctx, r.pool, url, func() ([]interface{}, error) {
			return c.Call(ctx, blockBigInt(block), info.RateMethod)
		})
	}
	if !success || len(rateOut) != 1 {
		return nil
	}
	rateBig, isInt := rateOut[0].(*big.Int)
	if !isInt || rateBig.Sign() <= 0 {
		return nil
	}
	rate := ratFromDecimals(rateBig, 18)

	underlyingPrice := r.resolve(ctx, info.Underlying, info.UnderlyingAsset, block, eventTimestamp, "")
	if underlyingPrice == nil || underlyingPrice.Sign() <= 0 {
		return nil
	}
	return new(big.Rat).Mul(rate, underlyingPrice)
}

// ethCompositionLayer is layer 5: X/ETH feed × ETH/USD.
func (r *Resolver) ethCompositionLayer(ctx context.Context, symbol string, asset common.Address, block, eventTimestamp uint64) *big.Rat {
	feed, ok := ethBasedFeeds[symbol]
	if !ok {
		return nil
	}
	xPerEth := r.readAggregatorUSD(ctx, feed, block)
	if xPerEth == nil {
		return nil
	}
	ethPrice := r.resolve(ctx, "ETH", WETHAddress, block, eventTimestamp, "")
	if ethPrice == nil {
		return nil
	}
	return new(big.Rat).Mul(xPerEth, ethPrice)
}

// stablecoinLayer is layer 6, the last resort.
func (r *Resolver) stablecoinLayer(ctx context.Context, symbol string, asset common.Address, block, eventTimestamp uint64) *big.Rat {
	if tokenregistry.IsStable(symbol) {
		return big.NewRat(1, 1)
	}
	return nil
}
