// Package tokenregistry resolves an ERC-20 contract address to its
// (symbol, decimals) pair, preferring a curated table for the known
// Aave asset set and falling back to on-chain symbol()/decimals() reads,
// then to a shortened hex literal if even that fails.
package tokenregistry

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/aave-liq/scanner/internal/abi"
	"github.com/aave-liq/scanner/pkg/contractclient"
)

// Asset is the curated record for one well-known token.
type Asset struct {
	Symbol   string
	Decimals uint8
}

// curated maps well-known mainnet asset addresses to their symbol and
// decimals. Several downstream values (USDC/USDT/WBTC amounts) depend
// on knowing the non-18 decimals up front, so this table is
// authoritative over the on-chain fallback.
var curated = map[common.Address]Asset{
	common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"): {"WETH", 18},
	common.HexToAddress("0x2260FAC5E5542a773Aa44fBCfeDf7C193bc2C599"): {"WBTC", 8},
	common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"): {"USDC", 6},
	common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"): {"USDT", 6},
	common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F"): {"DAI", 18},
	common.HexToAddress("0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84"): {"STETH", 18},
	common.HexToAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0"): {"WSTETH", 18},
	common.HexToAddress("0xae78736Cd615f374D3085123A210448E74Fc6393"): {"RETH", 18},
	common.HexToAddress("0xBe9895146f7AF43049ca1c1AE358B0541Ea49704"): {"CBETH", 18},
	common.HexToAddress("0xCd5fE23C85820F7B72D0926FC9b05b43E359b7ee"): {"WEETH", 18},
	common.HexToAddress("0xA1290d69c65A6Fe4DF752f95823fae25cB99e5A7"): {"RSETH", 18},
	common.HexToAddress("0xf1C9acDc66974dFB6dEcB12aA385b9cD01190E38"): {"OSETH", 18},
	common.HexToAddress("0x9D39A5DE30e57443BfF2A8307A4256c8797A3497"): {"SUSDE", 18},
	common.HexToAddress("0x83F20F44975D03b1b09e64809B757c47f942BEeA"): {"SDAI", 18},
	common.HexToAddress("0x514910771AF9Ca656af840dff83E8264EcF986CA"): {"LINK", 18},
	common.HexToAddress("0x7Fc66500c84A76Ad7e9c93437bFc5Ac33E2DDaE9"): {"AAVE", 18},
	common.HexToAddress("0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984"): {"UNI", 18},
	common.HexToAddress("0xD533a949740bb3306d119CC777fa900bA034cd52"): {"CRV", 18},
	common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2"): {"MKR", 18},
	common.HexToAddress("0x5A98FcBEA516Cf06857215779Fd812CA3beF1B32"): {"LDO", 18},
	common.HexToAddress("0x40D16FC0246aD3160Ccc09B8D0D3A2cD28aE6C2f"): {"GHO", 18},
	common.HexToAddress("0x5f98805A4E8be255a32880FDeC7F6728C6568bA0"): {"LUSD", 18},
	common.HexToAddress("0x853d955aCEf822Db058eb8505911ED77F175b99e"): {"FRAX", 18},
	common.HexToAddress("0x6c3ea9036406852006290770BEdFcAbA0e23A0e8"): {"PYUSD", 6},
	common.HexToAddress("0xf939E0A03FB07F59A73314E73794Be0093957C37"): {"CRVUSD", 18},
	common.HexToAddress("0xdC035D45d973E3EC169d2276DDab16f1e407384F"): {"USDS", 18},
	common.HexToAddress("0x8E870D67F660D95d5be530380D0eC0bd388289E1"): {"RLUSD", 18},
	common.HexToAddress("0x1aBaEA1f7C830bD89Acc67eC4af516284b1bC33c"): {"EURC", 6},
}

// TokenAliases normalizes a symbol to the canonical key used by the
// price resolver's feed tables.
var TokenAliases = map[string]string{
	"WETH": "ETH", "ETH": "ETH", "WBTC": "BTC", "TBTC": "BTC", "BTC": "BTC",
	"DAI": "DAI", "USDC": "USDC", "USDT": "USDT", "AAVE": "AAVE", "LINK": "LINK",
	"MKR": "MKR", "UNI": "UNI", "CRV": "CRV", "GNO": "GNO", "STG": "STG",
	"COMP": "COMP", "WSTETH": "WSTETH", "STETH": "WSTETH", "RETH": "RETH",
	"LDO": "LDO", "GHO": "GHO", "LUSD": "LUSD", "RPL": "RPL", "ENS": "ENS",
	"CBETH": "CBETH", "FRAX": "FRAX", "SNX": "SNX", "BAL": "BAL", "FXS": "FXS",
	"1INCH": "1INCH", "CBBTC": "CBBTC", "PYUSD": "PYUSD", "CRVUSD": "CRVUSD",
	"USDS": "USDS", "USDE": "USDE", "EURC": "EUR", "USDB": "USDB",
	"ETHX": "ETH",
}

// StableSymbols is the curated stablecoin-fallback list, final resort
// in PriceResolver's priority chain.
var StableSymbols = map[string]bool{
	"USDC": true, "USDT": true, "DAI": true, "FRAX": true, "LUSD": true,
	"GHO": true, "PYUSD": true, "USDS": true, "CRVUSD": true, "USDE": true,
	"USDB": true, "RLUSD": true,
}

// Alias returns the canonical feed symbol for sym, or sym upper-cased if
// no alias is registered.
func Alias(sym string) string {
	if a, ok := TokenAliases[strings.ToUpper(sym)]; ok {
		return a
	}
	return strings.ToUpper(sym)
}

// IsStable reports whether symbol (already alias-normalized or not) is
// on the stablecoin fallback list.
func IsStable(sym string) bool {
	return StableSymbols[strings.ToUpper(sym)]
}

// Registry resolves addresses to (symbol, decimals), backed by the
// curated table with an on-chain fallback.
type Registry struct {
	backend bind.ContractCaller
}

// New builds a Registry that falls back to on-chain symbol()/decimals()
// reads (through backend) for addresses absent from the curated table.
func New(backend bind.ContractCaller) *Registry {
	return &Registry{backend: backend}
}

// Resolve returns the (symbol, decimals) pair for address at the given
// historical block. It never returns an error: on-chain failures fall
// back to a shortened hex literal and 18 decimals.
func (r *Registry) Resolve(ctx context.Context, address common.Address, block *big.Int) (symbol string, decimals uint8) {
	if a, ok := curated[address]; ok {
		return a.Symbol, a.Decimals
	}

	client, err := contractclient.New(r.backend, address, abi.ERC20)
	if err != nil {
		return shorten(address), 18
	}

	symbol = shorten(address)
	decimals = 18

	if out, err := client.Call(ctx, block, "symbol"); err == nil && len(out) == 1 {
		if s, ok := out[0].(string); ok && s != "" {
			symbol = s
		}
	}
	if out, err := client.Call(ctx, block, "decimals"); err == nil && len(out) == 1 {
		if d, ok := out[0].(uint8); ok {
			decimals = d
		}
	}
	return symbol, decimals
}

// shorten renders "0xABCD…1234": the first 6 characters ("0x" plus 4
// hex digits) and the last 4 hex digits of the checksummed address,
// used when on-chain symbol() is unavailable.
func shorten(address common.Address) string {
	hex := address.Hex()
	if len(hex) < 10 {
		return hex
	}
	return fmt.Sprintf("%s…%s", hex[:6], hex[len(hex)-4:])
}
