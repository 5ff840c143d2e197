package priceresolver

import "math/big"

const (
	percentageFactor = 10_000
	secondsPerYear   = 365 * 24 * 3600
)

// capoMaxRatio computes the CAPO growth-rate cap using exact rational
// arithmetic:
//
//	max_ratio = snapshot_ratio + snapshot_ratio*maxYearlyBps*elapsed / (10000*secondsPerYear)
func capoMaxRatio(snapshotRatio *big.Rat, maxYearlyGrowthBps int64, elapsedSeconds int64) *big.Rat {
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	growth := new(big.Rat).SetFrac(
		new(big.Int).Mul(big.NewInt(maxYearlyGrowthBps), big.NewInt(elapsedSeconds)),
		big.NewInt(percentageFactor*secondsPerYear),
	)
	growth.Mul(growth, snapshotRatio)
	return new(big.Rat).Add(snapshotRatio, growth)
}

// capoCappedPrice applies the CAPO cap to a raw computed price.
//
//	current_ratio = rawPrice * 10^ratioDecimals / underlyingPrice
//	cappedRatio   = min(current_ratio, max_ratio)
//	price         = underlyingPrice * cappedRatio / 10^ratioDecimals
func capoCappedPrice(rawPrice, underlyingPrice *big.Rat, ratioDecimals uint8, maxRatio *big.Rat) *big.Rat {
	scale := new(big.Rat).SetInt(pow10(ratioDecimals))

	currentRatio := new(big.Rat).Mul(rawPrice, scale)
	currentRatio.Quo(currentRatio, underlyingPrice)

	cappedRatio := currentRatio
	if currentRatio.Cmp(maxRatio) > 0 {
		cappedRatio = maxRatio
	}

	price := new(big.Rat).Mul(underlyingPrice, cappedRatio)
	price.Quo(price, scale)
	return price
}

func pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}
