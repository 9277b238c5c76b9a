package contracts

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celokit/celo-reader/pkg/cache"
)

const (
	contractAddr = "0x765DE816845861e75A25fCA122bb6898B8B1282a"
	tokenABI     = `[
	  {"inputs":[{"name":"owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	  {"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
	  {"inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"stateMutability":"nonpayable","type":"function"}
	]`
)

type fakeReader struct {
	callFn func(msg ethereum.CallMsg) ([]byte, error)
	code   []byte
	codeFn func() ([]byte, error)
}

func (f *fakeReader) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.callFn == nil {
		return nil, errors.New("unexpected call")
	}
	return f.callFn(msg)
}

func (f *fakeReader) CodeAt(_ context.Context, _ common.Address, _ *big.Int) ([]byte, error) {
	if f.codeFn != nil {
		return f.codeFn()
	}
	return f.code, nil
}

func newService(t *testing.T, reader *fakeReader) *Service {
	t.Helper()
	svc := New(reader, NewMemoryABIStore(), cache.NewMemoryCache())
	require.NoError(t, svc.Register(context.Background(), contractAddr, "cUSD", tokenABI))
	return svc
}

func TestRegister_InvalidABI(t *testing.T) {
	svc := New(&fakeReader{}, NewMemoryABIStore(), cache.NewMemoryCache())
	err := svc.Register(context.Background(), contractAddr, "bad", "not json")
	assert.Error(t, err)

	err = svc.Register(context.Background(), "nope", "bad", tokenABI)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestCall_Success(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(tokenABI))
	require.NoError(t, err)

	balance := big.NewInt(1234)
	reader := &fakeReader{callFn: func(msg ethereum.CallMsg) ([]byte, error) {
		assert.Equal(t, common.HexToAddress(contractAddr), *msg.To)
		// The call data must select balanceOf with the owner argument.
		expected, err := parsed.Pack("balanceOf", common.HexToAddress("0x1111111111111111111111111111111111111111"))
		require.NoError(t, err)
		assert.Equal(t, expected, msg.Data)
		return parsed.Methods["balanceOf"].Outputs.Pack(balance)
	}}

	svc := newService(t, reader)
	res, err := svc.Call(context.Background(), contractAddr, "balanceOf",
		[]any{"0x1111111111111111111111111111111111111111"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "1234", res.Result)
	assert.Empty(t, res.Error)
}

func TestCall_RevertInsideResult(t *testing.T) {
	reader := &fakeReader{callFn: func(ethereum.CallMsg) ([]byte, error) {
		return nil, errors.New("execution reverted")
	}}

	svc := newService(t, reader)
	res, err := svc.Call(context.Background(), contractAddr, "symbol", nil)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "execution reverted")
	assert.Nil(t, res.Result)
}

func TestCall_UnknownFunction(t *testing.T) {
	svc := newService(t, &fakeReader{})
	res, err := svc.Call(context.Background(), contractAddr, "mint", nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "function not found")
}

func TestCall_RejectsStateMutation(t *testing.T) {
	svc := newService(t, &fakeReader{})
	res, err := svc.Call(context.Background(), contractAddr, "transfer",
		[]any{"0x1111111111111111111111111111111111111111", "10"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "not read-only")
}

func TestCall_UnregisteredContract(t *testing.T) {
	svc := New(&fakeReader{}, NewMemoryABIStore(), cache.NewMemoryCache())
	_, err := svc.Call(context.Background(), contractAddr, "symbol", nil)
	assert.ErrorIs(t, err, ErrABINotRegistered)
}

func TestCall_ArgumentMismatch(t *testing.T) {
	svc := newService(t, &fakeReader{})
	res, err := svc.Call(context.Background(), contractAddr, "balanceOf", []any{})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "expects 1 arguments")
}

func TestConvertArg_IntegerForms(t *testing.T) {
	uint256Type, err := abi.NewType("uint256", "", nil)
	require.NoError(t, err)

	for _, arg := range []any{"1000000000000000000", float64(42), "0xff"} {
		v, err := convertArg(uint256Type, arg)
		require.NoError(t, err, "arg %v", arg)
		assert.IsType(t, (*big.Int)(nil), v)
	}

	_, err = convertArg(uint256Type, 1.5)
	assert.Error(t, err, "fractional values are not integers")
}

func TestInfo(t *testing.T) {
	codeCalls := 0
	reader := &fakeReader{codeFn: func() ([]byte, error) {
		codeCalls++
		return []byte{0x60, 0x80, 0x60, 0x40}, nil
	}}

	svc := newService(t, reader)
	info, err := svc.Info(context.Background(), contractAddr)
	require.NoError(t, err)

	assert.True(t, info.HasCode)
	assert.Equal(t, 4, info.CodeSize)
	assert.True(t, info.ABIRegistered)
	assert.Equal(t, "cUSD", info.Name)
	assert.ElementsMatch(t, []string{"balanceOf", "symbol"}, info.ViewFunctions)

	// Second lookup is served from cache.
	_, err = svc.Info(context.Background(), contractAddr)
	require.NoError(t, err)
	assert.Equal(t, 1, codeCalls)
}

func TestInfo_NoCodeNoABI(t *testing.T) {
	svc := New(&fakeReader{code: nil}, NewMemoryABIStore(), cache.NewMemoryCache())
	info, err := svc.Info(context.Background(), "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)

	assert.False(t, info.HasCode)
	assert.False(t, info.ABIRegistered)
	assert.Empty(t, info.ViewFunctions)
}
