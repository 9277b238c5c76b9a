// Package multicall folds many independent contract reads into as few network
// round-trips as the transport allows, using the Multicall3 aggregate3 entry
// point. Individual calls may fail without aborting their siblings, and an
// expiring deadline degrades to a partial result set instead of an error.
package multicall

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
)

// ContractCaller is the slice of the RPC client the batcher depends on.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// DefaultBatchSize bounds the number of calls folded into one aggregate3
// round-trip. Public RPC endpoints reject oversized call payloads well before
// this is a gas concern.
const DefaultBatchSize = 100

var (
	// ErrRequiredCallFailed is returned by Execute when a call submitted with
	// AllowFailure=false reverts or cannot be attempted.
	ErrRequiredCallFailed = errors.New("required call failed")

	// ErrDeadline marks results whose sub-batch was never completed before the
	// context expired.
	ErrDeadline = errors.New("batch deadline exceeded")
)

// aggregate3 ABI, the only Multicall3 entry point this package uses.
const aggregate3JSON = `[{"inputs":[{"components":[{"internalType":"address","name":"target","type":"address"},{"internalType":"bool","name":"allowFailure","type":"bool"},{"internalType":"bytes","name":"callData","type":"bytes"}],"internalType":"struct Multicall3.Call3[]","name":"calls","type":"tuple[]"}],"name":"aggregate3","outputs":[{"components":[{"internalType":"bool","name":"success","type":"bool"},{"internalType":"bytes","name":"returnData","type":"bytes"}],"internalType":"struct Multicall3.Result[]","name":"returnData","type":"tuple[]"}],"stateMutability":"payable","type":"function"}]`

// Call is a single read request. Immutable once constructed; the batcher is
// its only consumer for the duration of one Execute.
type Call struct {
	Target       common.Address
	CallData     []byte
	AllowFailure bool
}

// Result is produced 1:1 per Call, in submission order.
type Result struct {
	Success    bool
	ReturnData []byte
	Err        error
}

// call3 / aggResult mirror the tuple layouts of the aggregate3 signature.
type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

type aggResult struct {
	Success    bool
	ReturnData []byte
}

// Batcher executes batched reads against a Multicall3 deployment.
type Batcher struct {
	client    ContractCaller
	contract  common.Address
	batchSize int
	parsedABI abi.ABI
}

// New creates a Batcher targeting the given Multicall3 deployment.
// batchSize <= 0 selects DefaultBatchSize.
func New(client ContractCaller, contract common.Address, batchSize int) *Batcher {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	parsed, err := abi.JSON(strings.NewReader(aggregate3JSON))
	if err != nil {
		// The ABI literal is a compile-time constant; failing to parse it is a
		// programming error, not a runtime condition.
		panic(err)
	}
	return &Batcher{
		client:    client,
		contract:  contract,
		batchSize: batchSize,
		parsedABI: parsed,
	}
}

// Execute resolves every call, returning exactly len(calls) results in input
// order. Oversized batches are split into concurrent sub-batches; the caller
// never observes the split. When the context deadline expires mid-flight,
// completed sub-batches keep their results and the remainder is marked failed
// with ErrDeadline.
//
// A failed call with AllowFailure=true is reported as Result{Success: false}.
// A failed call with AllowFailure=false makes Execute return
// ErrRequiredCallFailed after all sub-batches settle.
func (b *Batcher) Execute(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}

	results := make([]Result, len(calls))

	var wg sync.WaitGroup
	for start := 0; start < len(calls); start += b.batchSize {
		end := start + b.batchSize
		if end > len(calls) {
			end = len(calls)
		}

		wg.Add(1)
		go func(offset int, chunk []Call) {
			defer wg.Done()
			b.executeChunk(ctx, chunk, results[offset:offset+len(chunk)])
		}(start, calls[start:end])
	}
	wg.Wait()

	for i, r := range results {
		if !r.Success && !calls[i].AllowFailure {
			return results, fmt.Errorf("%w: call %d target %s: %v",
				ErrRequiredCallFailed, i, calls[i].Target.Hex(), r.Err)
		}
	}
	return results, nil
}

// executeChunk runs one aggregate3 round-trip and writes its outcome into out
// (same length as chunk).
func (b *Batcher) executeChunk(ctx context.Context, chunk []Call, out []Result) {
	// Deadline already gone: don't burn a round-trip, mark as abandoned.
	if err := ctx.Err(); err != nil {
		failChunk(out, fmt.Errorf("%w: %v", ErrDeadline, err))
		return
	}

	packed := make([]call3, len(chunk))
	for i, c := range chunk {
		packed[i] = call3{Target: c.Target, AllowFailure: c.AllowFailure, CallData: c.CallData}
	}

	data, err := b.parsedABI.Pack("aggregate3", packed)
	if err != nil {
		failChunk(out, fmt.Errorf("encode aggregate3: %w", err))
		return
	}

	raw, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &b.contract, Data: data}, nil)
	if err != nil {
		// One chunk's transport failure does not abort sibling chunks; the
		// calls it carried are all reported failed.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			err = fmt.Errorf("%w: %v", ErrDeadline, err)
		}
		log.Warn("Multicall chunk failed", "calls", len(chunk), "err", err)
		failChunk(out, err)
		return
	}

	decoded, err := b.decodeAggregate3(raw)
	if err != nil {
		failChunk(out, fmt.Errorf("decode aggregate3: %w", err))
		return
	}
	if len(decoded) != len(chunk) {
		failChunk(out, fmt.Errorf("aggregate3 returned %d results for %d calls", len(decoded), len(chunk)))
		return
	}

	for i, r := range decoded {
		out[i] = Result{Success: r.Success, ReturnData: r.ReturnData}
		if !r.Success {
			out[i].Err = errors.New("call reverted")
		}
	}
}

func (b *Batcher) decodeAggregate3(raw []byte) ([]aggResult, error) {
	outs, err := b.parsedABI.Unpack("aggregate3", raw)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(outs[0], new([]aggResult)).(*[]aggResult), nil
}

func failChunk(out []Result, err error) {
	for i := range out {
		out[i] = Result{Success: false, Err: err}
	}
}
