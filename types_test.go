package aaveliq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRow(t *testing.T) {
	t.Run("CoversEveryCanonicalColumn", func(t *testing.T) {
		row := LiquidationEvent{}.ToRow()
		require.Len(t, row, len(CSVFieldOrder))
		for _, col := range CSVFieldOrder {
			_, ok := row[col]
			assert.True(t, ok, "missing column %q", col)
		}
	})

	t.Run("RendersValues", func(t *testing.T) {
		e := LiquidationEvent{
			Block:                     18_000_000,
			Timestamp:                 1_700_000_000,
			DatetimeUTC:               "2023-11-14T22:13:20Z",
			CollateralAsset:           "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2",
			DebtAsset:                 "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
			User:                      "0x0000000000000000000000000000000000dEaD",
			Liquidator:                "0x0000000000000000000000000000000000bEEF",
			CollateralOut:             "1.5",
			DebtToCover:               "2500",
			ReceiveAToken:             true,
			CollateralSymbol:          "WETH",
			DebtSymbol:                "USDC",
			CollateralPriceUSDAtBlock: "3000.00000000",
			DebtPriceUSDAtBlock:       "1.00000000",
			CollateralValueUSD:        "4500.00",
			DebtValueUSD:              "2500.00",
			ETHPriceUSDAtBlock:        "3000.00000000",
			Tx:                        "0xabc",
			BlockBuilder:              "0x0000000000000000000000000000000000c0FFee",
			GasUsed:                   321_000,
			GasPriceGwei:              "23.5",
		}
		row := e.ToRow()
		assert.Equal(t, "18000000", row["block"])
		assert.Equal(t, "1700000000", row["timestamp"])
		assert.Equal(t, "True", row["receiveAToken"])
		assert.Equal(t, "321000", row["gas_used"])
		assert.Equal(t, "3000.00000000", row["eth_price_usd_at_block"])
	})

	t.Run("UnresolvedNumericColumnsStayEmpty", func(t *testing.T) {
		row := LiquidationEvent{Tx: "0xabc"}.ToRow()
		assert.Equal(t, "", row["collateral_price_usd_at_block"])
		assert.Equal(t, "", row["debt_value_usd"])
		assert.Equal(t, "False", row["receiveAToken"])
	})
}

func TestUitoa(t *testing.T) {
	assert.Equal(t, "0", uitoa(0))
	assert.Equal(t, "7", uitoa(7))
	assert.Equal(t, "18446744073709551615", uitoa(1<<64-1))
}
