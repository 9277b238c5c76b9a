// Package tokens resolves ERC-20 and native balances for Celo accounts.
// Every lookup that touches more than one contract goes through the multicall
// batcher; raw amounts are formatted exactly once, via pkg/format.
package tokens

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/celokit/celo-reader/pkg/cache"
	"github.com/celokit/celo-reader/pkg/chain"
	"github.com/celokit/celo-reader/pkg/format"
	"github.com/celokit/celo-reader/pkg/multicall"
)

// ErrInvalidAddress rejects malformed inputs before any network I/O.
var ErrInvalidAddress = errors.New("invalid address")

// DefaultSoftTimeout bounds AccountBalances under the 30s deadline the tool
// layer is held to, leaving headroom for serialization.
const DefaultSoftTimeout = 25 * time.Second

const infoCacheTTL = time.Hour

// BatchExecutor is the slice of the multicall batcher this service uses.
type BatchExecutor interface {
	Execute(ctx context.Context, calls []multicall.Call) ([]multicall.Result, error)
}

// NativeBalanceReader is the slice of the RPC client needed for the native asset.
type NativeBalanceReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Service answers token balance questions for one network.
type Service struct {
	client      NativeBalanceReader
	batcher     BatchExecutor
	cache       cache.Cache
	preset      chain.Preset
	softTimeout time.Duration
}

// New wires a token service. softTimeout <= 0 selects DefaultSoftTimeout.
func New(client NativeBalanceReader, batcher BatchExecutor, c cache.Cache, preset chain.Preset, softTimeout time.Duration) *Service {
	if softTimeout <= 0 {
		softTimeout = DefaultSoftTimeout
	}
	return &Service{
		client:      client,
		batcher:     batcher,
		cache:       c,
		preset:      preset,
		softTimeout: softTimeout,
	}
}

// Info fetches name/symbol/decimals/totalSupply in one batch. Cached for an hour.
func (s *Service) Info(ctx context.Context, token string) (*TokenInfo, error) {
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, token)
	}
	addr := common.HexToAddress(token)

	cacheKey := "token_info_" + addr.Hex()
	var cached TokenInfo
	if found, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	pack := func(method string) []byte {
		data, _ := erc20ABI.Pack(method)
		return data
	}
	calls := []multicall.Call{
		{Target: addr, CallData: pack("name")},
		{Target: addr, CallData: pack("symbol")},
		{Target: addr, CallData: pack("decimals")},
		{Target: addr, CallData: pack("totalSupply")},
	}

	results, err := s.batcher.Execute(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("token info %s: %w", addr.Hex(), err)
	}

	name, err := unpackString("name", results[0].ReturnData)
	if err != nil {
		return nil, err
	}
	symbol, err := unpackString("symbol", results[1].ReturnData)
	if err != nil {
		return nil, err
	}
	decimals, err := unpackDecimals(results[2].ReturnData)
	if err != nil {
		return nil, err
	}
	totalSupply, err := unpackUint256("totalSupply", results[3].ReturnData)
	if err != nil {
		return nil, err
	}

	info := &TokenInfo{
		Address:              addr.Hex(),
		Name:                 name,
		Symbol:               symbol,
		Decimals:             decimals,
		TotalSupply:          totalSupply.String(),
		TotalSupplyFormatted: format.Units(totalSupply, decimals),
	}

	if err := s.cache.Set(ctx, cacheKey, info, infoCacheTTL); err != nil {
		log.Warn("Failed to cache token info", "token", addr.Hex(), "err", err)
	}
	return info, nil
}

// Balance fetches one account's holding of one token.
func (s *Service) Balance(ctx context.Context, token, account string) (*TokenBalance, error) {
	if !common.IsHexAddress(token) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, token)
	}
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, account)
	}

	info, err := s.Info(ctx, token)
	if err != nil {
		return nil, err
	}

	tokenAddr := common.HexToAddress(token)
	owner := common.HexToAddress(account)

	results, err := s.batcher.Execute(ctx, []multicall.Call{
		{Target: tokenAddr, CallData: packBalanceOf(owner)},
	})
	if err != nil {
		return nil, fmt.Errorf("balanceOf %s: %w", tokenAddr.Hex(), err)
	}

	balance, err := unpackUint256("balanceOf", results[0].ReturnData)
	if err != nil {
		return nil, err
	}

	return &TokenBalance{
		TokenAddress:     info.Address,
		TokenName:        info.Name,
		TokenSymbol:      info.Symbol,
		TokenDecimals:    info.Decimals,
		AccountAddress:   owner.Hex(),
		Balance:          balance.String(),
		BalanceFormatted: format.Units(balance, info.Decimals),
	}, nil
}

// AccountBalances resolves the native balance plus every registry token's
// balance for one account. The native read and the ERC-20 batch run
// concurrently under the soft timeout; per-token failures are omitted from the
// result, and if the gather times out a last-resort native read keeps the
// answer from coming back empty.
func (s *Service) AccountBalances(ctx context.Context, account string) ([]TokenBalance, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, account)
	}
	owner := common.HexToAddress(account)

	gatherCtx, cancel := context.WithTimeout(ctx, s.softTimeout)
	defer cancel()

	native, hasNative := s.preset.NativeToken()
	var erc20s []chain.Token
	for _, t := range s.preset.Tokens {
		if !t.Native {
			erc20s = append(erc20s, t)
		}
	}

	var (
		wg            sync.WaitGroup
		nativeBalance *big.Int
		nativeErr     error
		batchResults  []multicall.Result
		batchErr      error
	)

	if hasNative {
		wg.Add(1)
		go func() {
			defer wg.Done()
			nativeBalance, nativeErr = s.client.BalanceAt(gatherCtx, owner, nil)
		}()
	}

	if len(erc20s) > 0 {
		calls := make([]multicall.Call, len(erc20s))
		for i, t := range erc20s {
			calls[i] = multicall.Call{Target: t.Address, CallData: packBalanceOf(owner), AllowFailure: true}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			batchResults, batchErr = s.batcher.Execute(gatherCtx, calls)
		}()
	}

	wg.Wait()

	// Timed-out native read gets one more short attempt against the parent
	// context so the caller at least sees the native balance.
	if hasNative && nativeErr != nil && ctx.Err() == nil {
		log.Warn("Native balance fetch failed, retrying once", "account", owner.Hex(), "err", nativeErr)
		retryCtx, retryCancel := context.WithTimeout(ctx, 3*time.Second)
		nativeBalance, nativeErr = s.client.BalanceAt(retryCtx, owner, nil)
		retryCancel()
	}

	balances := make([]TokenBalance, 0, len(s.preset.Tokens))
	var lastErr error

	if hasNative {
		if nativeErr != nil {
			log.Warn("Failed to get native balance", "account", owner.Hex(), "err", nativeErr)
			lastErr = nativeErr
		} else {
			balances = append(balances, TokenBalance{
				TokenAddress:     chain.ZeroAddress.Hex(),
				TokenName:        native.Name,
				TokenSymbol:      native.Symbol,
				TokenDecimals:    native.Decimals,
				AccountAddress:   owner.Hex(),
				Balance:          nativeBalance.String(),
				BalanceFormatted: format.Units(nativeBalance, native.Decimals),
			})
		}
	}

	if batchErr != nil {
		log.Warn("Token balance batch failed", "account", owner.Hex(), "err", batchErr)
		lastErr = batchErr
	} else {
		for i, res := range batchResults {
			t := erc20s[i]
			if !res.Success {
				log.Warn("Failed to get token balance", "token", t.Symbol, "account", owner.Hex(), "err", res.Err)
				continue
			}
			balance, err := unpackUint256("balanceOf", res.ReturnData)
			if err != nil {
				log.Warn("Failed to decode token balance", "token", t.Symbol, "err", err)
				continue
			}
			balances = append(balances, TokenBalance{
				TokenAddress:     t.Address.Hex(),
				TokenName:        t.Name,
				TokenSymbol:      t.Symbol,
				TokenDecimals:    t.Decimals,
				AccountAddress:   owner.Hex(),
				Balance:          balance.String(),
				BalanceFormatted: format.Units(balance, t.Decimals),
			})
		}
	}

	// Nothing resolved at all: surface the underlying failure instead of an
	// empty success.
	if len(balances) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return balances, nil
}
