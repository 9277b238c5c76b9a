package rpc

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// EthClient abstracts the underlying ethclient.Client implementation for easier mocking/testing
type EthClient interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
	BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	Close()
}

// Client defines the read surface the services depend on.
// This allows for mocking the client in tests or implementing multi-node load balancing.
type Client interface {
	// ChainID retrieves the chain ID
	ChainID(ctx context.Context) (*big.Int, error)

	// BlockNumber retrieves the latest block height
	BlockNumber(ctx context.Context) (uint64, error)

	// HeaderByNumber retrieves a block header
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)

	// BlockByNumber retrieves a full block (nil number means latest)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)

	// BlockByHash retrieves a full block by hash
	BlockByHash(ctx context.Context, hash common.Hash) (*types.Block, error)

	// TransactionByHash retrieves a transaction and its pending flag
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)

	// TransactionReceipt retrieves the receipt of a mined transaction
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)

	// BalanceAt retrieves the native balance of an account
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)

	// NonceAt retrieves the transaction count of an account
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)

	// CodeAt checks contract code (used to distinguish contracts from EOAs)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)

	// CallContract executes an eth_call style read
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)

	// SuggestGasPrice retrieves the current gas price (network status reporting)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)

	// Close closes the connection
	Close()
}
