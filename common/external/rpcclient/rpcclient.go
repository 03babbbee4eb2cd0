package rpcclient

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/alexkalak/go_arena_market/common/external/rpcclient/rpcerrors"
	"github.com/alexkalak/go_arena_market/common/observability"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

//go:embed rpcclientassets/quoterV2ABI.json
var QuoterV2ABIStr string

//go:embed rpcclientassets/gameABI.json
var GameABIStr string

// ContractReader is the read-only view of a chain node used by the quote and player components.
type ContractReader interface {
	CallContract(ctx context.Context, contractAddress common.Address, contractABI *abi.ABI, method string, args ...any) ([]any, error)
	BalanceAt(ctx context.Context, address common.Address) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type RpcClient interface {
	ContractReader
	Close()
}

// subset of *ethclient.Client the reader needs
type ethBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

type RpcClientConfig struct {
	RPCUrl      string
	CallTimeout time.Duration
}

func (c *RpcClientConfig) validate() error {
	if c.RPCUrl == "" {
		return errors.New("RpcClientConfig.RPCUrl cannot be empty")
	}

	return nil
}

type RpcClientDependencies struct {
	Metrics *observability.Metrics
}

type rpcClient struct {
	config  RpcClientConfig
	backend ethBackend
	metrics *observability.Metrics
}

func NewRpcClient(ctx context.Context, config RpcClientConfig, dependencies RpcClientDependencies) (RpcClient, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	ethClient, err := ethclient.DialContext(ctx, config.RPCUrl)
	if err != nil {
		return nil, rpcerrors.Wrap("dial", err)
	}

	return newWithBackend(config, dependencies, ethClient), nil
}

func newWithBackend(config RpcClientConfig, dependencies RpcClientDependencies, backend ethBackend) *rpcClient {
	if config.CallTimeout == 0 {
		config.CallTimeout = 10 * time.Second
	}

	return &rpcClient{
		config:  config,
		backend: backend,
		metrics: dependencies.Metrics,
	}
}

func ParseQuoterABI() (*abi.ABI, error) {
	return parseABI(QuoterV2ABIStr)
}

func ParseGameABI() (*abi.ABI, error) {
	return parseABI(GameABIStr)
}

func parseABI(abiStr string) (*abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiStr))
	if err != nil {
		return nil, err
	}

	return &parsed, nil
}

func (c *rpcClient) CallContract(ctx context.Context, contractAddress common.Address, contractABI *abi.ABI, method string, args ...any) ([]any, error) {
	if contractABI == nil {
		return nil, fmt.Errorf("abi for method %s not set", method)
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to pack %s: %w", method, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	startedAt := time.Now()
	returnBytes, err := c.backend.CallContract(ctx, ethereum.CallMsg{
		To:   &contractAddress,
		Data: data,
	}, nil)
	c.metrics.ObserveRPCCall(method, time.Since(startedAt))
	if err != nil {
		return nil, rpcerrors.Wrap(method, err)
	}

	out, err := contractABI.Unpack(method, returnBytes)
	if err != nil {
		// empty return data from a call is how a missing contract or a bare revert looks
		if len(returnBytes) == 0 {
			return nil, rpcerrors.Wrap(method, errors.New("execution reverted: empty return data"))
		}
		return nil, fmt.Errorf("unable to unpack %s: %w", method, err)
	}

	return out, nil
}

func (c *rpcClient) BalanceAt(ctx context.Context, address common.Address) (*big.Int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	startedAt := time.Now()
	balance, err := c.backend.BalanceAt(ctx, address, nil)
	c.metrics.ObserveRPCCall("eth_getBalance", time.Since(startedAt))
	if err != nil {
		return nil, rpcerrors.Wrap("eth_getBalance", err)
	}

	return balance, nil
}

func (c *rpcClient) BlockNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.CallTimeout)
	defer cancel()

	blockNumber, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return 0, rpcerrors.Wrap("eth_blockNumber", err)
	}

	return blockNumber, nil
}

func (c *rpcClient) Close() {
	c.backend.Close()
}
