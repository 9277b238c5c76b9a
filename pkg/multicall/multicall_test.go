package multicall

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(aggregate3JSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// fakeCaller routes CallContract through a function so tests can answer based
// on the decoded request instead of call ordering (chunks run concurrently).
type fakeCaller struct {
	fn func(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
}

func (f *fakeCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	return f.fn(ctx, msg)
}

// decodeRequest unpacks the aggregate3 calldata a test received.
func decodeRequest(t *testing.T, data []byte) []call3 {
	t.Helper()
	vals, err := testABI.Methods["aggregate3"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	return *abi.ConvertType(vals[0], new([]call3)).(*[]call3)
}

// encodeResponse packs aggregate3 return data.
func encodeResponse(t *testing.T, results []aggResult) []byte {
	t.Helper()
	out, err := testABI.Methods["aggregate3"].Outputs.Pack(results)
	require.NoError(t, err)
	return out
}

func addr(n byte) common.Address {
	return common.BytesToAddress([]byte{n})
}

// echoCaller answers every call with success and return data equal to the
// call's target address bytes, so order can be verified end to end.
func echoCaller(t *testing.T) *fakeCaller {
	return &fakeCaller{fn: func(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
		calls := decodeRequest(t, msg.Data)
		results := make([]aggResult, len(calls))
		for i, c := range calls {
			results[i] = aggResult{Success: true, ReturnData: c.Target.Bytes()}
		}
		return encodeResponse(t, results), nil
	}}
}

func TestExecute_OrderPreserved(t *testing.T) {
	b := New(echoCaller(t), addr(0xCC), 0)

	calls := make([]Call, 7)
	for i := range calls {
		calls[i] = Call{Target: addr(byte(i + 1)), AllowFailure: true}
	}

	results, err := b.Execute(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, len(calls))
	for i, r := range results {
		assert.True(t, r.Success)
		assert.Equal(t, addr(byte(i+1)).Bytes(), r.ReturnData)
	}
}

func TestExecute_ChunkSplitTransparent(t *testing.T) {
	var mu sync.Mutex
	chunkSizes := []int{}

	caller := &fakeCaller{fn: func(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
		calls := decodeRequest(t, msg.Data)
		mu.Lock()
		chunkSizes = append(chunkSizes, len(calls))
		mu.Unlock()
		results := make([]aggResult, len(calls))
		for i, c := range calls {
			results[i] = aggResult{Success: true, ReturnData: c.Target.Bytes()}
		}
		return encodeResponse(t, results), nil
	}}

	b := New(caller, addr(0xCC), 2)

	calls := make([]Call, 5)
	for i := range calls {
		calls[i] = Call{Target: addr(byte(i + 1)), AllowFailure: true}
	}

	results, err := b.Execute(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, 5)

	// 5 calls with batch size 2 -> chunks of 2, 2, 1
	assert.Len(t, chunkSizes, 3)
	total := 0
	for _, n := range chunkSizes {
		total += n
	}
	assert.Equal(t, 5, total)

	// Order matches submission order regardless of chunk completion order
	for i, r := range results {
		assert.Equal(t, addr(byte(i+1)).Bytes(), r.ReturnData)
	}
}

func TestExecute_PartialFailureIsolated(t *testing.T) {
	// Calls targeting address 0x02 revert, everything else succeeds.
	caller := &fakeCaller{fn: func(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
		calls := decodeRequest(t, msg.Data)
		results := make([]aggResult, len(calls))
		for i, c := range calls {
			if c.Target == addr(2) {
				results[i] = aggResult{Success: false}
			} else {
				results[i] = aggResult{Success: true, ReturnData: c.Target.Bytes()}
			}
		}
		return encodeResponse(t, results), nil
	}}

	b := New(caller, addr(0xCC), 0)
	calls := []Call{
		{Target: addr(1), AllowFailure: true},
		{Target: addr(2), AllowFailure: true},
		{Target: addr(3), AllowFailure: true},
	}

	results, err := b.Execute(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.True(t, results[0].Success)
	assert.False(t, results[1].Success)
	assert.Error(t, results[1].Err)
	assert.True(t, results[2].Success)
}

func TestExecute_RequiredCallFailure(t *testing.T) {
	caller := &fakeCaller{fn: func(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
		calls := decodeRequest(t, msg.Data)
		results := make([]aggResult, len(calls))
		for i := range calls {
			results[i] = aggResult{Success: false}
		}
		return encodeResponse(t, results), nil
	}}

	b := New(caller, addr(0xCC), 0)
	_, err := b.Execute(context.Background(), []Call{{Target: addr(1), AllowFailure: false}})
	assert.ErrorIs(t, err, ErrRequiredCallFailed)
}

func TestExecute_TransportFailureMarksAllResults(t *testing.T) {
	caller := &fakeCaller{fn: func(_ context.Context, _ ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("connection refused")
	}}

	b := New(caller, addr(0xCC), 0)
	calls := []Call{
		{Target: addr(1), AllowFailure: true},
		{Target: addr(2), AllowFailure: true},
	}

	results, err := b.Execute(context.Background(), calls)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.Success)
		assert.Error(t, r.Err)
	}
}

func TestExecute_DeadlineDegradesToPartial(t *testing.T) {
	// First chunk answers instantly; the second blocks until the deadline.
	caller := &fakeCaller{fn: func(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
		calls := decodeRequest(t, msg.Data)
		if calls[0].Target == addr(1) {
			results := make([]aggResult, len(calls))
			for i, c := range calls {
				results[i] = aggResult{Success: true, ReturnData: c.Target.Bytes()}
			}
			return encodeResponse(t, results), nil
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}}

	b := New(caller, addr(0xCC), 2)
	calls := []Call{
		{Target: addr(1), AllowFailure: true},
		{Target: addr(1), AllowFailure: true},
		{Target: addr(9), AllowFailure: true},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	results, err := b.Execute(ctx, calls)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.True(t, results[0].Success, "completed sub-batch keeps its results")
	assert.True(t, results[1].Success)
	assert.False(t, results[2].Success)
	assert.ErrorIs(t, results[2].Err, ErrDeadline)
}

func TestExecute_ExpiredContextSkipsRoundTrips(t *testing.T) {
	attempted := false
	caller := &fakeCaller{fn: func(_ context.Context, _ ethereum.CallMsg) ([]byte, error) {
		attempted = true
		return nil, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := New(caller, addr(0xCC), 0)
	results, err := b.Execute(ctx, []Call{{Target: addr(1), AllowFailure: true}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.ErrorIs(t, results[0].Err, ErrDeadline)
	assert.False(t, attempted)
}

func TestExecute_Idempotent(t *testing.T) {
	b := New(echoCaller(t), addr(0xCC), 3)

	calls := make([]Call, 8)
	for i := range calls {
		calls[i] = Call{Target: addr(byte(i + 1)), AllowFailure: true}
	}

	first, err := b.Execute(context.Background(), calls)
	require.NoError(t, err)
	second, err := b.Execute(context.Background(), calls)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExecute_Empty(t *testing.T) {
	b := New(echoCaller(t), addr(0xCC), 0)
	results, err := b.Execute(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, results)
}
