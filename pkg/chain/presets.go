// Package chain holds per-network presets: chain ids, core contract addresses
// and the standard token registry. Services resolve every on-chain address
// through a Preset instead of hardcoding it.
package chain

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Multicall3Address is the canonical Multicall3 deployment, identical on Celo
// mainnet and Alfajores.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// ZeroAddress stands in for the native asset in token records.
var ZeroAddress = common.HexToAddress("0x0000000000000000000000000000000000000000")

// Token describes one entry of a network's standard token registry.
type Token struct {
	Symbol   string
	Name     string
	Address  common.Address
	Decimals int
	Native   bool
}

// Preset defines the default behavior parameters and core addresses for a network.
type Preset struct {
	ChainID   string
	Name      string
	BlockTime time.Duration // Average block time
	Testnet   bool
	Endpoint  string // (Optional) Default public RPC

	// Core protocol contracts
	Multicall3 common.Address
	Election   common.Address
	Validators common.Address
	Accounts   common.Address

	// Standard tokens, native asset first
	Tokens []Token
}

// TokenBySymbol looks up a registry token by its symbol.
func (p Preset) TokenBySymbol(symbol string) (Token, bool) {
	for _, t := range p.Tokens {
		if t.Symbol == symbol {
			return t, true
		}
	}
	return Token{}, false
}

// NativeToken returns the network's native asset entry.
func (p Preset) NativeToken() (Token, bool) {
	for _, t := range p.Tokens {
		if t.Native {
			return t, true
		}
	}
	return Token{}, false
}

var (
	registry = make(map[string]Preset)
	mu       sync.RWMutex
)

// Register adds a new network preset to the global registry.
func Register(name string, p Preset) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = p
}

// Get retrieves a preset configuration from the registry by its name.
func Get(name string) (Preset, bool) {
	mu.RLock()
	defer mu.RUnlock()
	p, ok := registry[name]
	return p, ok
}

// Built-in presets
func init() {
	Register("celo-mainnet", Preset{
		ChainID:    "42220",
		Name:       "Celo Mainnet",
		BlockTime:  5 * time.Second,
		Endpoint:   "https://forno.celo.org",
		Multicall3: Multicall3Address,
		Election:   common.HexToAddress("0x8D6677192144292870907E3Fa8A5527fE55A7ff6"),
		Validators: common.HexToAddress("0xaEb865bCa93DdC8F47b8e29F40C5399cE34d0C58"),
		Accounts:   common.HexToAddress("0x7d21685C17607338b313a7174bAb6620baD0aaB7"),
		Tokens: []Token{
			{Symbol: "CELO", Name: "Celo", Address: common.HexToAddress("0x471EcE3750Da237f93B8E339c536989b8978a438"), Decimals: 18, Native: true},
			{Symbol: "cUSD", Name: "Celo Dollar", Address: common.HexToAddress("0x765DE816845861e75A25fCA122bb6898B8B1282a"), Decimals: 18},
			{Symbol: "cEUR", Name: "Celo Euro", Address: common.HexToAddress("0xD8763CBa276a3738E6DE85b4b3bF5FDed6D6cA73"), Decimals: 18},
			{Symbol: "cREAL", Name: "Celo Brazilian Real", Address: common.HexToAddress("0xe8537a3d056DA446677B9E9d6c5dB704EaAb4787"), Decimals: 18},
		},
	})

	Register("celo-alfajores", Preset{
		ChainID:    "44787",
		Name:       "Celo Alfajores Testnet",
		BlockTime:  5 * time.Second,
		Testnet:    true,
		Endpoint:   "https://alfajores-forno.celo-testnet.org",
		Multicall3: Multicall3Address,
		Election:   common.HexToAddress("0x1c3eDf937CFc2F6F51784D20DEB1af1F9a8655fA"),
		Validators: common.HexToAddress("0x9acF2A99914E083aD0d610672E93d14b0736BBCc"),
		Accounts:   common.HexToAddress("0xed7f51A34B4e71fbE69B3091FcF879cD14bD73A9"),
		Tokens: []Token{
			{Symbol: "CELO", Name: "Celo", Address: common.HexToAddress("0xF194afDf50B03e69Bd7D057c1Aa9e10c9954E4C9"), Decimals: 18, Native: true},
			{Symbol: "cUSD", Name: "Celo Dollar", Address: common.HexToAddress("0x874069Fa1Eb16D44d622F2e0Ca25eeA172369bC1"), Decimals: 18},
			{Symbol: "cEUR", Name: "Celo Euro", Address: common.HexToAddress("0x10c892A6EC43a53E45D0B916B4b7D383B1b78C0F"), Decimals: 18},
			{Symbol: "cREAL", Name: "Celo Brazilian Real", Address: common.HexToAddress("0xE4D517785D091D3c54818832dB6094bcc2744545"), Decimals: 18},
		},
	})
}
