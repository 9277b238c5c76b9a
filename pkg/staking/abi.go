package staking

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Read surfaces of the three Celo core contracts this service touches.
// Only the functions actually called are declared.

const electionJSON = `[
  {"inputs":[{"name":"account","type":"address"}],"name":"getGroupsVotedForByAccount","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"group","type":"address"},{"name":"account","type":"address"}],"name":"getPendingVotesForGroupByAccount","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"group","type":"address"},{"name":"account","type":"address"}],"name":"getActiveVotesForGroupByAccount","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"account","type":"address"},{"name":"group","type":"address"}],"name":"hasActivatablePendingVotes","outputs":[{"name":"","type":"bool"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"group","type":"address"}],"name":"getTotalVotesForGroup","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"group","type":"address"}],"name":"getNumVotesReceivable","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getEligibleValidatorGroups","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"},
  {"inputs":[],"name":"getCurrentValidatorSigners","outputs":[{"name":"","type":"address[]"}],"stateMutability":"view","type":"function"}
]`

const validatorsJSON = `[
  {"inputs":[{"name":"account","type":"address"}],"name":"getValidatorGroup","outputs":[{"name":"members","type":"address[]"},{"name":"commission","type":"uint256"},{"name":"nextCommission","type":"uint256"},{"name":"nextCommissionBlock","type":"uint256"},{"name":"sizeHistory","type":"uint256[]"},{"name":"slashMultiplier","type":"uint256"},{"name":"lastSlashed","type":"uint256"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"account","type":"address"}],"name":"getValidator","outputs":[{"name":"ecdsaPublicKey","type":"bytes"},{"name":"blsPublicKey","type":"bytes"},{"name":"affiliation","type":"address"},{"name":"score","type":"uint256"},{"name":"signer","type":"address"}],"stateMutability":"view","type":"function"}
]`

const accountsJSON = `[
  {"inputs":[{"name":"account","type":"address"}],"name":"getName","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"},
  {"inputs":[{"name":"account","type":"address"}],"name":"getMetadataURL","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

var (
	electionABI   = mustParse(electionJSON)
	validatorsABI = mustParse(validatorsJSON)
	accountsABI   = mustParse(accountsJSON)
)

func mustParse(jsonStr string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(jsonStr))
	if err != nil {
		panic(err)
	}
	return parsed
}

func pack(parsed abi.ABI, method string, args ...any) []byte {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("pack %s: %v", method, err))
	}
	return data
}

func unpackAddresses(parsed abi.ABI, method string, data []byte) ([]common.Address, error) {
	vals, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, err
	}
	out, ok := vals[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, vals[0])
	}
	return out, nil
}

func unpackUint256(parsed abi.ABI, method string, data []byte) (*big.Int, error) {
	vals, err := parsed.Unpack(method, data)
	if err != nil {
		return nil, err
	}
	out, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected output type %T", method, vals[0])
	}
	return out, nil
}

func unpackBool(parsed abi.ABI, method string, data []byte) (bool, error) {
	vals, err := parsed.Unpack(method, data)
	if err != nil {
		return false, err
	}
	out, ok := vals[0].(bool)
	if !ok {
		return false, fmt.Errorf("%s: unexpected output type %T", method, vals[0])
	}
	return out, nil
}

func unpackString(parsed abi.ABI, method string, data []byte) (string, error) {
	vals, err := parsed.Unpack(method, data)
	if err != nil {
		return "", err
	}
	out, ok := vals[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected output type %T", method, vals[0])
	}
	return out, nil
}

// validatorGroupData mirrors getValidatorGroup's output tuple.
type validatorGroupData struct {
	Members     []common.Address
	LastSlashed *big.Int
}

func unpackValidatorGroup(data []byte) (*validatorGroupData, error) {
	vals, err := validatorsABI.Unpack("getValidatorGroup", data)
	if err != nil {
		return nil, err
	}
	members, ok := vals[0].([]common.Address)
	if !ok {
		return nil, fmt.Errorf("getValidatorGroup: unexpected members type %T", vals[0])
	}
	lastSlashed, ok := vals[6].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getValidatorGroup: unexpected lastSlashed type %T", vals[6])
	}
	return &validatorGroupData{Members: members, LastSlashed: lastSlashed}, nil
}

// validatorData mirrors getValidator's output tuple (the fields used here).
type validatorData struct {
	Score  *big.Int
	Signer common.Address
}

func unpackValidator(data []byte) (*validatorData, error) {
	vals, err := validatorsABI.Unpack("getValidator", data)
	if err != nil {
		return nil, err
	}
	score, ok := vals[3].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("getValidator: unexpected score type %T", vals[3])
	}
	signer, ok := vals[4].(common.Address)
	if !ok {
		return nil, fmt.Errorf("getValidator: unexpected signer type %T", vals[4])
	}
	return &validatorData{Score: score, Signer: signer}, nil
}
