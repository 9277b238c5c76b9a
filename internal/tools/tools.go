package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/celokit/celo-reader/pkg/chaindata"
	"github.com/celokit/celo-reader/pkg/contracts"
	"github.com/celokit/celo-reader/pkg/staking"
	"github.com/celokit/celo-reader/pkg/tokens"
)

// Services collects the domain services the tool set is built from.
type Services struct {
	ChainData *chaindata.Service
	Tokens    *tokens.Service
	Staking   *staking.Service
	Contracts *contracts.Service
}

// NewDefaultRegistry builds a registry with the full tool set.
// timeout <= 0 selects DefaultTimeout.
func NewDefaultRegistry(svcs Services, timeout time.Duration) (*Registry, error) {
	r := NewRegistry(timeout)
	for _, t := range DefaultTools(svcs) {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultTools enumerates every exposed tool.
func DefaultTools(svcs Services) []Tool {
	return []Tool{
		{
			Name:        "get_network_status",
			Description: "Chain ID, latest block and gas price of the connected Celo network",
			Handler: func(ctx context.Context, _ map[string]any) (any, error) {
				return svcs.ChainData.NetworkStatus(ctx)
			},
		},
		{
			Name:        "get_block",
			Description: "Fetch a block by number, hash or \"latest\"; optionally with full transactions",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				refStr, err := blockRefArg(args, "block_identifier")
				if err != nil {
					return nil, err
				}
				ref, err := chaindata.ParseBlockRef(refStr)
				if err != nil {
					return nil, err
				}
				fullTxs, err := optBoolArg(args, "include_transactions", false)
				if err != nil {
					return nil, err
				}
				return svcs.ChainData.Block(ctx, ref, fullTxs)
			},
		},
		{
			Name:        "get_transaction",
			Description: "Fetch a transaction and its receipt by hash",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				hash, err := stringArg(args, "tx_hash")
				if err != nil {
					return nil, err
				}
				return svcs.ChainData.Transaction(ctx, hash)
			},
		},
		{
			Name:        "get_account",
			Description: "Native balance, nonce and contract flag of an address",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				address, err := stringArg(args, "address")
				if err != nil {
					return nil, err
				}
				return svcs.ChainData.Account(ctx, address)
			},
		},
		{
			Name:        "get_latest_blocks",
			Description: "Summaries of the most recent blocks (up to 100)",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				count, err := optIntArg(args, "count", 10)
				if err != nil {
					return nil, err
				}
				return svcs.ChainData.LatestBlocks(ctx, count)
			},
		},
		{
			Name:        "get_token_info",
			Description: "Name, symbol, decimals and total supply of an ERC-20 token",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				token, err := stringArg(args, "token_address")
				if err != nil {
					return nil, err
				}
				return svcs.Tokens.Info(ctx, token)
			},
		},
		{
			Name:        "get_token_balance",
			Description: "One account's balance of one ERC-20 token",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				token, err := stringArg(args, "token_address")
				if err != nil {
					return nil, err
				}
				address, err := stringArg(args, "address")
				if err != nil {
					return nil, err
				}
				return svcs.Tokens.Balance(ctx, token, address)
			},
		},
		{
			Name:        "get_celo_balances",
			Description: "CELO plus stable token balances of an account",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				address, err := stringArg(args, "address")
				if err != nil {
					return nil, err
				}
				balances, err := svcs.Tokens.AccountBalances(ctx, address)
				if err != nil {
					return nil, err
				}
				return map[string]any{"address": address, "balances": balances}, nil
			},
		},
		{
			Name:        "get_staking_balances",
			Description: "Active and pending stake across every group an account voted for",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				address, err := stringArg(args, "address")
				if err != nil {
					return nil, err
				}
				return svcs.Staking.Balances(ctx, address)
			},
		},
		{
			Name:        "get_activatable_stakes",
			Description: "Groups whose pending votes the account can activate",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				address, err := stringArg(args, "address")
				if err != nil {
					return nil, err
				}
				return svcs.Staking.Activatable(ctx, address)
			},
		},
		{
			Name:        "get_validator_group",
			Description: "Validator group details with per-member scores and election status",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				group, err := stringArg(args, "group_address")
				if err != nil {
					return nil, err
				}
				return svcs.Staking.Group(ctx, group)
			},
		},
		{
			Name:        "call_contract_function",
			Description: "Read-only call of a function from a registered contract ABI",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				address, err := stringArg(args, "contract_address")
				if err != nil {
					return nil, err
				}
				function, err := stringArg(args, "function_name")
				if err != nil {
					return nil, err
				}
				callArgs, err := optSliceArg(args, "args")
				if err != nil {
					return nil, err
				}
				return svcs.Contracts.Call(ctx, address, function, callArgs)
			},
		},
		{
			Name:        "register_contract_abi",
			Description: "Register or replace the ABI used for a contract address",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				address, err := stringArg(args, "contract_address")
				if err != nil {
					return nil, err
				}
				abiJSON, err := abiArg(args, "abi")
				if err != nil {
					return nil, err
				}
				name, err := optStringArg(args, "name", "")
				if err != nil {
					return nil, err
				}
				if err := svcs.Contracts.Register(ctx, address, name, abiJSON); err != nil {
					return nil, err
				}
				return map[string]any{
					"registered": true,
					"address":    address,
					"message":    fmt.Sprintf("ABI registered for %s", address),
				}, nil
			},
		},
		{
			Name:        "get_contract_info",
			Description: "On-chain code presence and registered ABI summary for an address",
			Handler: func(ctx context.Context, args map[string]any) (any, error) {
				address, err := stringArg(args, "contract_address")
				if err != nil {
					return nil, err
				}
				return svcs.Contracts.Info(ctx, address)
			},
		},
	}
}
