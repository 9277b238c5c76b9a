package tokens

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Minimal ERC-20 read surface.
const erc20JSON = `[
  {"constant":true,"inputs":[],"name":"name","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[],"name":"totalSupply","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(erc20JSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

func packBalanceOf(owner common.Address) []byte {
	data, _ := erc20ABI.Pack("balanceOf", owner)
	return data
}

func unpackUint256(method string, data []byte) (*big.Int, error) {
	vals, err := erc20ABI.Unpack(method, data)
	if err != nil {
		return nil, err
	}
	out, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, vals[0])
	}
	return out, nil
}

func unpackString(method string, data []byte) (string, error) {
	vals, err := erc20ABI.Unpack(method, data)
	if err != nil {
		return "", err
	}
	out, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected output type %T", method, vals[0])
	}
	return out, nil
}

func unpackDecimals(data []byte) (int, error) {
	vals, err := erc20ABI.Unpack("decimals", data)
	if err != nil {
		return 0, err
	}
	out, ok := vals[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("decimals: unexpected output type %T", vals[0])
	}
	return int(out), nil
}
