// Package chaindata answers general block, transaction and account queries
// against a Celo network, flattening go-ethereum types into JSON-friendly
// snapshots.
package chaindata

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"

	"github.com/celokit/celo-reader/pkg/chain"
	"github.com/celokit/celo-reader/pkg/format"
	"github.com/celokit/celo-reader/pkg/rpc"
)

var (
	// ErrInvalidAddress rejects malformed inputs before any network I/O.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrInvalidBlockRef is returned for block references that are neither a
	// number, a hash nor "latest".
	ErrInvalidBlockRef = errors.New("invalid block reference")
	// ErrInvalidTxHash rejects malformed transaction hashes.
	ErrInvalidTxHash = errors.New("invalid transaction hash")
	// ErrNotFound is returned when the requested object does not exist.
	ErrNotFound = errors.New("not found")
)

// maxLatestBlocks caps a single latest-blocks query.
const maxLatestBlocks = 100

// BlockRef selects a block by number, by hash, or as the chain head.
type BlockRef struct {
	Latest bool
	Number *big.Int
	Hash   *common.Hash
}

// ParseBlockRef interprets a user-supplied block reference: "latest" (or
// empty), a decimal height, or a 0x-prefixed 32-byte hash.
func ParseBlockRef(s string) (BlockRef, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "latest") {
		return BlockRef{Latest: true}, nil
	}
	if strings.HasPrefix(s, "0x") {
		raw, err := hexutil.Decode(s)
		if err != nil || len(raw) != common.HashLength {
			return BlockRef{}, fmt.Errorf("%w: %s", ErrInvalidBlockRef, s)
		}
		h := common.BytesToHash(raw)
		return BlockRef{Hash: &h}, nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Sign() < 0 {
		return BlockRef{}, fmt.Errorf("%w: %s", ErrInvalidBlockRef, s)
	}
	return BlockRef{Number: n}, nil
}

// Service reads chain data through the failover RPC client.
type Service struct {
	client rpc.Client
	preset chain.Preset
	signer types.Signer
}

// New wires a chain data service.
func New(client rpc.Client, preset chain.Preset) *Service {
	chainID, ok := new(big.Int).SetString(preset.ChainID, 10)
	if !ok {
		chainID = big.NewInt(0)
	}
	return &Service{
		client: client,
		preset: preset,
		signer: types.LatestSignerForChainID(chainID),
	}
}

// NetworkStatus reports chain identity, head block and current gas price.
func (s *Service) NetworkStatus(ctx context.Context) (*NetworkStatus, error) {
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("network status: %w", err)
	}

	header, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("network status: %w", err)
	}

	status := &NetworkStatus{
		ChainID:         chainID.Uint64(),
		NetworkName:     s.preset.Name,
		LatestBlock:     header.Number.Uint64(),
		LatestBlockTime: header.Time,
	}

	// Gas price is informational; a failed read does not sink the status.
	if gasPrice, err := s.client.SuggestGasPrice(ctx); err == nil {
		status.GasPrice = gasPrice.String()
		status.GasPriceFormatted = format.Units(gasPrice, 9) + " gwei"
	} else {
		log.Warn("Failed to read gas price", "err", err)
	}
	return status, nil
}

// Account snapshots an address: balance, nonce and whether it is a contract.
func (s *Service) Account(ctx context.Context, address string) (*Account, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)

	balance, err := s.client.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", addr.Hex(), err)
	}
	nonce, err := s.client.NonceAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", addr.Hex(), err)
	}
	code, err := s.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", addr.Hex(), err)
	}

	account := &Account{
		Address:          addr.Hex(),
		Balance:          balance.String(),
		BalanceFormatted: format.Units(balance, format.DefaultDecimals),
		Nonce:            nonce,
		Type:             AccountTypeEOA,
	}
	if len(code) > 0 {
		account.Type = AccountTypeContract
		account.CodeSize = len(code)
	}
	return account, nil
}

// Block resolves a block by reference. With fullTxs the transactions are
// expanded inline; otherwise only their hashes are listed.
func (s *Service) Block(ctx context.Context, ref BlockRef, fullTxs bool) (*Block, error) {
	var (
		blk *types.Block
		err error
	)
	switch {
	case ref.Hash != nil:
		blk, err = s.client.BlockByHash(ctx, *ref.Hash)
	case ref.Number != nil:
		blk, err = s.client.BlockByNumber(ctx, ref.Number)
	default:
		blk, err = s.client.BlockByNumber(ctx, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("block: %w", err)
	}
	if blk == nil {
		return nil, ErrNotFound
	}
	return s.renderBlock(blk, fullTxs), nil
}

// LatestBlocks returns up to count block summaries walking back from the
// chain head. count is clamped to 100.
func (s *Service) LatestBlocks(ctx context.Context, count int) ([]*Block, error) {
	if count <= 0 {
		count = 10
	}
	if count > maxLatestBlocks {
		count = maxLatestBlocks
	}

	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest blocks: %w", err)
	}

	blocks := make([]*Block, 0, count)
	for i := 0; i < count; i++ {
		height := int64(head) - int64(i)
		if height < 0 {
			break
		}
		header, err := s.client.HeaderByNumber(ctx, big.NewInt(height))
		if err != nil {
			return nil, fmt.Errorf("latest blocks at %d: %w", height, err)
		}
		blocks = append(blocks, renderHeader(header))
	}
	return blocks, nil
}

// Transaction resolves a transaction by hash, merging in receipt data once
// the transaction is mined.
func (s *Service) Transaction(ctx context.Context, hash string) (*Transaction, error) {
	raw, err := hexutil.Decode(hash)
	if err != nil || len(raw) != common.HashLength {
		return nil, fmt.Errorf("%w: %s", ErrInvalidTxHash, hash)
	}
	txHash := common.BytesToHash(raw)

	tx, pending, err := s.client.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txHash.Hex(), err)
	}

	out := s.renderTransaction(tx, pending)
	if pending {
		return out, nil
	}

	receipt, err := s.client.TransactionReceipt(ctx, txHash)
	if err != nil {
		// The transaction exists; report it without receipt fields.
		log.Warn("Failed to read transaction receipt", "hash", txHash.Hex(), "err", err)
		return out, nil
	}

	out.BlockNumber = receipt.BlockNumber.Uint64()
	out.Status = receipt.Status
	out.GasUsed = receipt.GasUsed
	fee := new(big.Int).Mul(tx.GasPrice(), new(big.Int).SetUint64(receipt.GasUsed))
	out.FeeFormatted = format.Units(fee, format.DefaultDecimals)
	return out, nil
}

func (s *Service) renderBlock(blk *types.Block, fullTxs bool) *Block {
	out := renderHeader(blk.Header())
	out.TransactionCount = len(blk.Transactions())
	for _, tx := range blk.Transactions() {
		if fullTxs {
			rendered := s.renderTransaction(tx, false)
			rendered.BlockNumber = blk.NumberU64()
			out.Transactions = append(out.Transactions, rendered)
		} else {
			out.Transactions = append(out.Transactions, tx.Hash().Hex())
		}
	}
	return out
}

func renderHeader(header *types.Header) *Block {
	out := &Block{
		Number:     header.Number.Uint64(),
		Hash:       header.Hash().Hex(),
		ParentHash: header.ParentHash.Hex(),
		Timestamp:  header.Time,
		GasUsed:    header.GasUsed,
		GasLimit:   header.GasLimit,
	}
	if header.BaseFee != nil {
		out.BaseFee = header.BaseFee.String()
	}
	return out
}

func (s *Service) renderTransaction(tx *types.Transaction, pending bool) *Transaction {
	out := &Transaction{
		Hash:           tx.Hash().Hex(),
		Value:          tx.Value().String(),
		ValueFormatted: format.Units(tx.Value(), format.DefaultDecimals),
		GasLimit:       tx.Gas(),
		GasPrice:       tx.GasPrice().String(),
		Nonce:          tx.Nonce(),
		Pending:        pending,
	}
	if to := tx.To(); to != nil {
		out.To = to.Hex()
	}
	if len(tx.Data()) > 0 {
		out.Data = hexutil.Encode(tx.Data())
	}
	if from, err := types.Sender(s.signer, tx); err == nil {
		out.From = from.Hex()
	}
	return out
}
