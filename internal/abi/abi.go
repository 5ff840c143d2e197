// Package abi bundles the contract ABI fragments this indexer needs
// directly into the binary rather than shipping loose JSON files.
package abi

import _ "embed"

//go:embed erc20.json
var ERC20 string

//go:embed chainlink_aggregator.json
var ChainlinkAggregator string

//go:embed aave_oracle.json
var AaveOracle string

//go:embed capo_adapter.json
var CapoAdapter string

//go:embed lsd_rates.json
var LSDRates string

//go:embed aave_pool.json
var AavePool string
