// Package rpcclientfake provides an in-memory rpcclient.ContractReader for tests.
package rpcclientfake

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

type Call struct {
	Address common.Address
	Method  string
	Args    []any
}

type ContractReader struct {
	CallFunc    func(ctx context.Context, address common.Address, method string, args []any) ([]any, error)
	BalanceFunc func(ctx context.Context, address common.Address) (*big.Int, error)
	Block       uint64

	mu       sync.Mutex
	calls    []Call
	balances []common.Address
}

func (f *ContractReader) CallContract(ctx context.Context, contractAddress common.Address, _ *abi.ABI, method string, args ...any) ([]any, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Address: contractAddress, Method: method, Args: args})
	f.mu.Unlock()

	if f.CallFunc == nil {
		return nil, errors.New("execution reverted")
	}
	return f.CallFunc(ctx, contractAddress, method, args)
}

func (f *ContractReader) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	f.mu.Lock()
	f.balances = append(f.balances, address)
	f.mu.Unlock()

	if f.BalanceFunc == nil {
		return big.NewInt(0), nil
	}
	return f.BalanceFunc(ctx, address)
}

func (f *ContractReader) BlockNumber(context.Context) (uint64, error) {
	return f.Block, nil
}

func (f *ContractReader) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Call{}, f.calls...)
}

func (f *ContractReader) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, call := range f.calls {
		if call.Method == method {
			count++
		}
	}
	return count
}

func (f *ContractReader) BalanceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.balances)
}
