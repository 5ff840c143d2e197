package tokenregistry

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ourabi "github.com/aave-liq/scanner/internal/abi"
)

func TestResolveCuratedAsset(t *testing.T) {
	r := New(nil)
	symbol, decimals := r.Resolve(context.Background(), common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7"), nil)
	assert.Equal(t, "USDT", symbol)
	assert.Equal(t, uint8(6), decimals)
}

type stubCaller struct {
	symbol   string
	decimals uint8
	fail     bool
}

func (s *stubCaller) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	return []byte{0x1}, nil
}

func (s *stubCaller) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if s.fail {
		return nil, assertErr("execution reverted")
	}
	parsed, err := abi.JSON(strings.NewReader(ourabi.ERC20))
	if err != nil {
		return nil, err
	}
	// Determine which method was called from the 4-byte selector.
	for name, method := range parsed.Methods {
		if len(call.Data) >= 4 && string(method.ID) == string(call.Data[:4]) {
			switch name {
			case "symbol":
				return method.Outputs.Pack(s.symbol)
			case "decimals":
				return method.Outputs.Pack(s.decimals)
			}
		}
	}
	return nil, assertErr("unknown method")
}

type assertErr string

func (e assertErr) Error() string { return string(e) }

func TestResolveUnknownAssetFallsBackOnChain(t *testing.T) {
	r := New(&stubCaller{symbol: "FOO", decimals: 9})
	symbol, decimals := r.Resolve(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), big.NewInt(100))
	assert.Equal(t, "FOO", symbol)
	assert.Equal(t, uint8(9), decimals)
}

func TestResolveUnknownAssetFallsBackToShortenedHex(t *testing.T) {
	r := New(&stubCaller{fail: true})
	symbol, decimals := r.Resolve(context.Background(), common.HexToAddress("0x1111111111111111111111111111111111111111"), nil)
	assert.Contains(t, symbol, "0x1111")
	assert.Contains(t, symbol, "1111")
	assert.Equal(t, uint8(18), decimals)
}

func TestAliasNormalization(t *testing.T) {
	assert.Equal(t, "ETH", Alias("weth"))
	assert.Equal(t, "WSTETH", Alias("STETH"))
	assert.Equal(t, "EUR", Alias("EURC"))
	assert.Equal(t, "UNKNOWNTOKEN", Alias("unknowntoken"))
}

func TestIsStable(t *testing.T) {
	assert.True(t, IsStable("usdc"))
	assert.False(t, IsStable("WETH"))
}

func TestShorten(t *testing.T) {
	require.Equal(t, "0x1111…1111", shorten(common.HexToAddress("0x1111111111111111111111111111111111111111")))
}
