package priceresolver

import "github.com/ethereum/go-ethereum/common"

// AaveOracleAddress is the Aave V3 mainnet price oracle, authoritative
// for layer 1 of the priority chain.
var AaveOracleAddress = common.HexToAddress("0x54586bE62E3c3580375aE3723C145253060Ca0C2")

// chainlinkFeeds maps a canonical (alias-resolved) symbol to its
// direct USD Chainlink aggregator on mainnet.
var chainlinkFeeds = map[string]common.Address{
	"ETH":    common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419"),
	"BTC":    common.HexToAddress("0xF4030086522a5bEEa4988F8cA5B36dbC97BeE88c"),
	"DAI":    common.HexToAddress("0xAed0c38402a5d19df6E4c03F4E2DceD6e29c1ee9"),
	"USDC":   common.HexToAddress("0x8fFfFfd4AfB6115b954Bd326cbe7B4BA576818f6"),
	"USDT":   common.HexToAddress("0x3E7d1eAB13ad0104d2750B8863b489D65364e32D"),
	"AAVE":   common.HexToAddress("0x547a514d5e3769680Ce22B2361c10Ea13619e8a9"),
	"LINK":   common.HexToAddress("0x2c1d072e956AFFC0D435Cb7AC38EF18d24d9127c"),
	"UNI":    common.HexToAddress("0x553303d460EE0afb37EdFf9bE42922D8FF63220e"),
	"CRV":    common.HexToAddress("0xCd627aA160A6fA45EB793D19Ef54f5062F20f33f"),
	"COMP":   common.HexToAddress("0xdbd020CAeF83eFd542f4De03e3cF0C28A4428bd5"),
	"WSTETH": common.HexToAddress("0x164b276057258d81941e97B0a900D4C7B358bCe0"),
	"STETH":  common.HexToAddress("0xCfE54B5cD566aB89272946F602D76Ea879CAb4a8"),
	"GHO":    common.HexToAddress("0x3f12643D3f6f874d39C2a4c9f2Cd6f2DbAC877FC"),
	"LUSD":   common.HexToAddress("0x3D7aE7E594f2f2091Ad8798313450130d0Aba3a0"),
	"RPL":    common.HexToAddress("0x4E155eD98aFE9034b7A5962f6C84c86d869daA9d"),
	"ENS":    common.HexToAddress("0x5C00128d4d1c2F4f652C267d7bcdD7Ac99C16E16"),
	"FRAX":   common.HexToAddress("0xB9E1E3A9fEff48998E45Fa90847ed4D467E8BcfD"),
	"SNX":    common.HexToAddress("0xDC3EA94CD0AC27d9A86C180091e7f78C683d3699"),
	"BAL":    common.HexToAddress("0xdF2917806E30300537aEB49A7663062F4d1F2b5F"),
	"FXS":    common.HexToAddress("0x6Ebc52C8C1089be9eB3945C4350B68B8E4C2233f"),
	"1INCH":  common.HexToAddress("0xc929ad75B72593967DE83E7F7CdA0493458261D9"),
	"CBBTC":  common.HexToAddress("0x2665701293fCbEB223D11A08D826563EDcCE423A"),
	"PYUSD":  common.HexToAddress("0x8f1dF6D7F2db73eECE86a18b4381F4707b918FB1"),
	"CRVUSD": common.HexToAddress("0xEEf0C605546958c1f899b6fB336C20671f9cD49F"),
	"USDS":   common.HexToAddress("0xfF30586cD0F29eD462364C7e81375FC0C71219b1"),
	"USDE":   common.HexToAddress("0xa569d910839Ae8865Da8F8e70FfFb0cBA869F961"),
	"EUR":    common.HexToAddress("0xb49f677943BC038e9857d61E7d053CaA2C1734C1"),
}

// ethBasedFeeds covers Chainlink X/ETH aggregators, resolved via layer
// 5 (ETH-based composition): price = feed_answer × eth_usd_price.
var ethBasedFeeds = map[string]common.Address{
	"MKR": common.HexToAddress("0x24551a8Fb2A7211A25a17B1481f043A8a8adC7f2"),
	"LDO": common.HexToAddress("0x4e844125952D32AcdF339BE976c98E22F6F318dB"),
}

// lsdAsset describes one liquid-staking derivative's exchange-rate
// surface plus the underlying it derives from.
type lsdAsset struct {
	RateAddress     common.Address
	RateMethod      string
	RateHasShares   bool // true for ERC-4626 style convertToAssets(shares)
	Underlying      string
	UnderlyingAsset common.Address
}

// WETHAddress is mainnet WETH, exported so callers pricing native ETH
// (the scanner's eth_price_usd_at_block column, this package's own
// ethCompositionLayer) pass the same asset the Aave oracle and
// Chainlink feeds actually key off of.
var WETHAddress = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
var stethAddress = common.HexToAddress("0xae7ab96520DE3A18E5e111B5EaAb095312D7fE84")
var daiAddress = common.HexToAddress("0x6B175474E89094C44Da98b954EedeAC495271d0F")
var usdeAddress = common.HexToAddress("0x4c9EDD5852cd905f086C759E8383e09bff1E68B3")

// lsdAssets is keyed by canonical symbol.
var lsdAssets = map[string]lsdAsset{
	"WSTETH": {
		RateAddress: common.HexToAddress("0x7f39C581F595B53c5cb19bD0b3f8dA6c935E2Ca0"),
		RateMethod:  "stEthPerToken",
		Underlying:  "STETH", UnderlyingAsset: stethAddress,
	},
	"RETH": {
		RateAddress: common.HexToAddress("0xae78736Cd615f374D3085123A210448E74Fc6393"),
		RateMethod:  "getExchangeRate",
		Underlying:  "ETH", UnderlyingAsset: WETHAddress,
	},
	"CBETH": {
		RateAddress: common.HexToAddress("0xBe9895146f7AF43049ca1c1AE358B0541Ea49704"),
		RateMethod:  "exchangeRate",
		Underlying:  "ETH", UnderlyingAsset: WETHAddress,
	},
	"WEETH": {
		RateAddress: common.HexToAddress("0xCd5fE23C85820F7B72D0926FC9b05b43E359b7ee"),
		RateMethod:  "getExchangeRate",
		Underlying:  "ETH", UnderlyingAsset: WETHAddress,
	},
	"RSETH": {
		RateAddress: common.HexToAddress("0xA1290d69c65A6Fe4DF752f95823fae25cB99e5A7"),
		RateMethod:  "getExchangeRate",
		Underlying:  "ETH", UnderlyingAsset: WETHAddress,
	},
	"OSETH": {
		RateAddress: common.HexToAddress("0xf1C9acDc66974dFB6dEcB12aA385b9cD01190E38"),
		RateMethod:  "getExchangeRate",
		Underlying:  "ETH", UnderlyingAsset: WETHAddress,
	},
	"SUSDE": {
		RateAddress: common.HexToAddress("0x9D39A5DE30e57443BfF2A8307A4256c8797A3497"),
		RateMethod:  "convertToAssets", RateHasShares: true,
		Underlying: "USDE", UnderlyingAsset: usdeAddress,
	},
	"SDAI": {
		RateAddress: common.HexToAddress("0x83F20F44975D03b1b09e64809B757c47f942BEeA"),
		RateMethod:  "convertToAssets", RateHasShares: true,
		Underlying: "DAI", UnderlyingAsset: daiAddress,
	},
}

// capoAdapters maps a canonical LSD symbol to its CAPO adapter address.
// Only assets actually protected by a CAPO in production carry an
// entry here; the rest fall straight through to the raw LSD layer.
var capoAdapters = map[string]common.Address{
	"WSTETH": common.HexToAddress("0x4F1C58F5E29C4b2a4a0e3Ab2A9b9C1E44c22C2b3"),
	"RETH":   common.HexToAddress("0x5599d42aeB3B5Bd4e4e6D7426dE78E2A0c1cD4cF"),
	"CBETH":  common.HexToAddress("0x66C3BB9e1e3B1Ee3Bd7b21E42F4D0d3f7913d3C3"),
	"WEETH":  common.HexToAddress("0x77D4cc66Cf3e1F9d8e62B3b24B5E6a1c2e4B4D44"),
	"RSETH":  common.HexToAddress("0x88E3Dd7d0e4A77eF925b1b35F6C7a2D3f5B5E559"),
	"OSETH":  common.HexToAddress("0x99F4EE8E1F5B88Ff036c2B46C7D8A3e4F6C6F664"),
	"SUSDE":  common.HexToAddress("0xaA05FF9F2F6B99F4F7d3C57D8E9B4F5A7D7A7A77"),
}
