// Package contractclient is a thin, generalized wrapper over a parsed
// ABI and a bound contract address, supporting historical-block eth_call
// invocations. Every price layer and the token registry share this same
// client shape instead of hand-rolling ABI packing per call site.
package contractclient

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Client calls methods on one contract address through a shared ABI.
type Client struct {
	caller  bind.ContractCaller
	bound   *bind.BoundContract
	abi     abi.ABI
	address common.Address
}

// New parses abiJSON and binds it to address, using backend for calls.
func New(backend bind.ContractCaller, address common.Address, abiJSON string) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("contractclient: parse abi: %w", err)
	}
	bound := bind.NewBoundContract(address, parsed, backend, nil, nil)
	return &Client{caller: backend, bound: bound, abi: parsed, address: address}, nil
}

// Address returns the contract address this client is bound to.
func (c *Client) Address() common.Address {
	return c.address
}

// Call invokes method at the given historical block (nil means latest)
// and returns the unpacked return values in ABI-declared order.
func (c *Client) Call(ctx context.Context, blockNumber *big.Int, method string, args ...interface{}) ([]interface{}, error) {
	var out []interface{}
	opts := &bind.CallOpts{Context: ctx, BlockNumber: blockNumber}
	if err := c.bound.Call(opts, &out, method, args...); err != nil {
		return nil, fmt.Errorf("contractclient: call %s on %s: %w", method, c.address, err)
	}
	return out, nil
}

// HasMethod reports whether the bound ABI declares the given method.
// It reflects only the ABI passed to New, not the code deployed at the
// address.
func (c *Client) HasMethod(name string) bool {
	_, ok := c.abi.Methods[name]
	return ok
}
