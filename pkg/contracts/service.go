// Package contracts exposes registered-ABI contract reads: callers register
// an ABI for an address once, then invoke view functions by name with plain
// JSON-style arguments.
package contracts

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"

	"github.com/celokit/celo-reader/pkg/cache"
)

var (
	// ErrInvalidAddress rejects malformed inputs before any network I/O.
	ErrInvalidAddress = errors.New("invalid address")
	// ErrABINotRegistered is returned when a call names a contract with no
	// registered ABI.
	ErrABINotRegistered = errors.New("no ABI registered for contract")
	// ErrUnknownFunction is returned when the registered ABI has no function
	// with the requested name.
	ErrUnknownFunction = errors.New("function not found in registered ABI")
	// ErrNotView is returned for functions that would mutate state.
	ErrNotView = errors.New("function is not read-only")
)

const infoCacheTTL = time.Hour

// FunctionResult carries the outcome of a single contract function call.
// Exactly one of Result and Error is meaningful, selected by Success.
type FunctionResult struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ContractInfo describes what is known about an address on chain and in the
// ABI registry.
type ContractInfo struct {
	Address       string   `json:"address"`
	Name          string   `json:"name,omitempty"`
	HasCode       bool     `json:"has_code"`
	CodeSize      int      `json:"code_size"`
	ABIRegistered bool     `json:"abi_registered"`
	ViewFunctions []string `json:"view_functions,omitempty"`
}

// ChainReader is the slice of the RPC client this service uses.
type ChainReader interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
}

// Service registers ABIs and executes read-only calls against them.
type Service struct {
	client ChainReader
	store  ABIStore
	cache  cache.Cache
}

// New wires a contract service.
func New(client ChainReader, store ABIStore, c cache.Cache) *Service {
	return &Service{client: client, store: store, cache: c}
}

// Register validates and stores an ABI for a contract address. An existing
// registration for the same address is replaced.
func (s *Service) Register(ctx context.Context, address, name, abiJSON string) error {
	if !common.IsHexAddress(address) {
		return fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	if _, err := abi.JSON(strings.NewReader(abiJSON)); err != nil {
		return fmt.Errorf("invalid ABI JSON: %w", err)
	}
	addr := common.HexToAddress(address)
	if err := s.store.SaveABI(ctx, addr.Hex(), name, abiJSON); err != nil {
		return fmt.Errorf("register ABI %s: %w", addr.Hex(), err)
	}
	// A stale info snapshot would report the old function list.
	if err := s.cache.Delete(ctx, infoCacheKey(addr)); err != nil {
		log.Warn("Failed to invalidate contract info cache", "address", addr.Hex(), "err", err)
	}
	log.Info("Registered contract ABI", "address", addr.Hex(), "name", name)
	return nil
}

// Call executes a read-only function from the registered ABI. Call errors
// (revert, bad args) come back inside FunctionResult; only infrastructure
// failures (store, transport) surface as Go errors.
func (s *Service) Call(ctx context.Context, address, function string, args []any) (*FunctionResult, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)

	parsed, err := s.loadParsedABI(ctx, addr)
	if err != nil {
		return nil, err
	}

	method, ok := parsed.Methods[function]
	if !ok {
		return &FunctionResult{Success: false, Error: fmt.Sprintf("%v: %s", ErrUnknownFunction, function)}, nil
	}
	if !method.IsConstant() {
		return &FunctionResult{Success: false, Error: fmt.Sprintf("%v: %s", ErrNotView, function)}, nil
	}

	packed, err := packArgs(parsed, method, args)
	if err != nil {
		return &FunctionResult{Success: false, Error: err.Error()}, nil
	}

	data, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &addr, Data: packed}, nil)
	if err != nil {
		log.Warn("Contract call failed", "address", addr.Hex(), "function", function, "err", err)
		return &FunctionResult{Success: false, Error: err.Error()}, nil
	}

	vals, err := parsed.Unpack(function, data)
	if err != nil {
		return &FunctionResult{Success: false, Error: fmt.Sprintf("decode output: %v", err)}, nil
	}

	return &FunctionResult{Success: true, Result: renderOutputs(vals)}, nil
}

// Info reports on-chain code presence and registry state for an address.
// Snapshots are cached for an hour.
func (s *Service) Info(ctx context.Context, address string) (*ContractInfo, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, address)
	}
	addr := common.HexToAddress(address)

	cacheKey := infoCacheKey(addr)
	var cached ContractInfo
	if found, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	code, err := s.client.CodeAt(ctx, addr, nil)
	if err != nil {
		return nil, fmt.Errorf("contract info %s: %w", addr.Hex(), err)
	}

	info := &ContractInfo{
		Address:  addr.Hex(),
		HasCode:  len(code) > 0,
		CodeSize: len(code),
	}

	abiJSON, found, err := s.store.LoadABI(ctx, addr.Hex())
	if err != nil {
		return nil, fmt.Errorf("contract info %s: %w", addr.Hex(), err)
	}
	if found {
		info.ABIRegistered = true
		if name, err := s.store.LoadName(ctx, addr.Hex()); err == nil {
			info.Name = name
		}
		if parsed, err := abi.JSON(strings.NewReader(abiJSON)); err == nil {
			for name, method := range parsed.Methods {
				if method.IsConstant() {
					info.ViewFunctions = append(info.ViewFunctions, name)
				}
			}
		}
	}

	if err := s.cache.Set(ctx, cacheKey, info, infoCacheTTL); err != nil {
		log.Warn("Failed to cache contract info", "address", addr.Hex(), "err", err)
	}
	return info, nil
}

func (s *Service) loadParsedABI(ctx context.Context, addr common.Address) (abi.ABI, error) {
	abiJSON, found, err := s.store.LoadABI(ctx, addr.Hex())
	if err != nil {
		return abi.ABI{}, fmt.Errorf("load ABI %s: %w", addr.Hex(), err)
	}
	if !found {
		return abi.ABI{}, fmt.Errorf("%w: %s", ErrABINotRegistered, addr.Hex())
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("stored ABI %s: %w", addr.Hex(), err)
	}
	return parsed, nil
}

func infoCacheKey(addr common.Address) string {
	return "contract_info_" + addr.Hex()
}

func packArgs(parsed abi.ABI, method abi.Method, args []any) ([]byte, error) {
	if len(args) != len(method.Inputs) {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", method.Name, len(method.Inputs), len(args))
	}
	converted := make([]any, len(args))
	for i, arg := range args {
		v, err := convertArg(method.Inputs[i].Type, arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, method.Inputs[i].Type.String(), err)
		}
		converted[i] = v
	}
	return parsed.Pack(method.Name, converted...)
}

// convertArg maps JSON-decoded values (string, float64, bool) onto the Go
// types the ABI encoder expects.
func convertArg(t abi.Type, arg any) (any, error) {
	switch t.T {
	case abi.AddressTy:
		s, ok := arg.(string)
		if !ok || !common.IsHexAddress(s) {
			return nil, fmt.Errorf("expected hex address, got %v", arg)
		}
		return common.HexToAddress(s), nil

	case abi.UintTy:
		n, err := toBigInt(arg)
		if err != nil {
			return nil, err
		}
		// Small integer widths encode as native Go ints.
		switch t.Size {
		case 8:
			return uint8(n.Uint64()), nil
		case 16:
			return uint16(n.Uint64()), nil
		case 32:
			return uint32(n.Uint64()), nil
		case 64:
			return n.Uint64(), nil
		default:
			return n, nil
		}

	case abi.IntTy:
		n, err := toBigInt(arg)
		if err != nil {
			return nil, err
		}
		switch t.Size {
		case 8:
			return int8(n.Int64()), nil
		case 16:
			return int16(n.Int64()), nil
		case 32:
			return int32(n.Int64()), nil
		case 64:
			return n.Int64(), nil
		default:
			return n, nil
		}

	case abi.BoolTy:
		b, ok := arg.(bool)
		if !ok {
			return nil, fmt.Errorf("expected bool, got %v", arg)
		}
		return b, nil

	case abi.StringTy:
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %v", arg)
		}
		return s, nil

	case abi.BytesTy:
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("expected hex string, got %v", arg)
		}
		return hexutil.Decode(s)

	default:
		return nil, fmt.Errorf("unsupported argument type %s", t.String())
	}
}

func toBigInt(arg any) (*big.Int, error) {
	switch v := arg.(type) {
	case string:
		n, ok := new(big.Int).SetString(strings.TrimPrefix(v, "0x"), deciOrHexBase(v))
		if !ok {
			return nil, fmt.Errorf("cannot parse integer %q", v)
		}
		return n, nil
	case float64:
		if v != float64(int64(v)) {
			return nil, fmt.Errorf("integer argument has fractional part: %v", v)
		}
		return big.NewInt(int64(v)), nil
	case int:
		return big.NewInt(int64(v)), nil
	case int64:
		return big.NewInt(v), nil
	case *big.Int:
		return v, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to integer", arg)
	}
}

func deciOrHexBase(s string) int {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return 16
	}
	return 10
}

// renderOutputs converts decoded ABI values into JSON-safe shapes: big
// integers become decimal strings, addresses and byte slices hex strings.
// A single-output function returns the bare value.
func renderOutputs(vals []any) any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = renderValue(v)
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

func renderValue(v any) any {
	switch t := v.(type) {
	case *big.Int:
		return t.String()
	case common.Address:
		return t.Hex()
	case []byte:
		return hexutil.Encode(t)
	case [32]byte:
		return hexutil.Encode(t[:])
	case []common.Address:
		out := make([]string, len(t))
		for i, a := range t {
			out[i] = a.Hex()
		}
		return out
	case []*big.Int:
		out := make([]string, len(t))
		for i, n := range t {
			out[i] = n.String()
		}
		return out
	default:
		return v
	}
}
