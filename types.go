// Package aaveliq holds the canonical record types shared across the
// scanner, the CSV store, and the checkpoint/status projection.
package aaveliq

import "time"

// CSVFieldOrder is the canonical, fixed column order for the liquidations
// CSV. Every writer and reader in this module must agree on this order.
var CSVFieldOrder = []string{
	"block",
	"timestamp",
	"datetime_utc",
	"collateralAsset",
	"debtAsset",
	"user",
	"liquidator",
	"collateralOut",
	"debtToCover",
	"receiveAToken",
	"collateralSymbol",
	"debtSymbol",
	"collateral_price_usd_at_block",
	"debt_price_usd_at_block",
	"collateral_value_usd",
	"debt_value_usd",
	"tx",
	"block_builder",
	"gas_used",
	"gas_price_gwei",
	"eth_price_usd_at_block",
}

// LiquidationEvent is the enriched, canonical record for one LiquidationCall.
// Numeric fields that could not be resolved are left as the empty string
// when converted to a CSV row, never a non-numeric placeholder.
type LiquidationEvent struct {
	Block       uint64
	Timestamp   uint64
	DatetimeUTC string

	CollateralAsset string
	DebtAsset       string
	User            string
	Liquidator      string
	CollateralOut   string // decimal-normalized amount
	DebtToCover     string // decimal-normalized amount
	ReceiveAToken   bool

	CollateralSymbol string
	DebtSymbol       string

	CollateralPriceUSDAtBlock string // 8-decimal fixed point, or empty
	DebtPriceUSDAtBlock       string
	CollateralValueUSD        string // 2-decimal, or empty
	DebtValueUSD              string
	ETHPriceUSDAtBlock        string

	Tx           string // lowercased tx hash, unique key
	BlockBuilder string
	GasUsed      uint64
	GasPriceGwei string
}

// ToRow renders the event as a CSV row matching CSVFieldOrder exactly.
func (e LiquidationEvent) ToRow() map[string]string {
	receive := "False"
	if e.ReceiveAToken {
		receive = "True"
	}
	return map[string]string{
		"block":                         uitoa(e.Block),
		"timestamp":                     uitoa(e.Timestamp),
		"datetime_utc":                  e.DatetimeUTC,
		"collateralAsset":               e.CollateralAsset,
		"debtAsset":                     e.DebtAsset,
		"user":                          e.User,
		"liquidator":                    e.Liquidator,
		"collateralOut":                 e.CollateralOut,
		"debtToCover":                   e.DebtToCover,
		"receiveAToken":                 receive,
		"collateralSymbol":              e.CollateralSymbol,
		"debtSymbol":                    e.DebtSymbol,
		"collateral_price_usd_at_block": e.CollateralPriceUSDAtBlock,
		"debt_price_usd_at_block":       e.DebtPriceUSDAtBlock,
		"collateral_value_usd":          e.CollateralValueUSD,
		"debt_value_usd":                e.DebtValueUSD,
		"tx":                            e.Tx,
		"block_builder":                 e.BlockBuilder,
		"gas_used":                      uitoa(e.GasUsed),
		"gas_price_gwei":                e.GasPriceGwei,
		"eth_price_usd_at_block":        e.ETHPriceUSDAtBlock,
	}
}

func uitoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for v > 0 {
		i--
		digits[i] = byte('0' + v%10)
		v /= 10
	}
	return string(digits[i:])
}

// ScanStatus is the externally-visible progress record, derived fresh
// from the CSV on every write so it can never drift from reality.
type ScanStatus struct {
	Status       string `json:"status"` // idle, running, completed, waiting, error
	FromBlock    uint64 `json:"from_block"`
	ToBlock      uint64 `json:"to_block"`
	CurrentBlock uint64 `json:"current_block"`
	EventsFound  int    `json:"events_found"`
	LastUpdated  int64  `json:"last_updated"`
	Message      string `json:"message"`
}

// Now is overridable in tests; production code always uses time.Now.
var Now = time.Now
