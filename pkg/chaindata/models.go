package chaindata

// AccountType values.
const (
	AccountTypeContract = "contract"
	AccountTypeEOA      = "eoa"
)

// Account is a point-in-time snapshot of an address.
type Account struct {
	Address          string `json:"address"`
	Balance          string `json:"balance"`
	BalanceFormatted string `json:"balance_formatted"`
	Nonce            uint64 `json:"nonce"`
	Type             string `json:"type"`
	CodeSize         int    `json:"code_size,omitempty"`
}

// Transaction is a flattened view of a transaction and, once mined, its
// receipt.
type Transaction struct {
	Hash           string `json:"hash"`
	BlockNumber    uint64 `json:"block_number,omitempty"`
	From           string `json:"from"`
	To             string `json:"to,omitempty"`
	Value          string `json:"value"`
	ValueFormatted string `json:"value_formatted"`
	GasLimit       uint64 `json:"gas_limit"`
	GasPrice       string `json:"gas_price"`
	Nonce          uint64 `json:"nonce"`
	Data           string `json:"data,omitempty"`
	Pending        bool   `json:"pending"`
	Status         uint64 `json:"status,omitempty"`
	GasUsed        uint64 `json:"gas_used,omitempty"`
	FeeFormatted   string `json:"fee_formatted,omitempty"`
}

// Block is a flattened view of a block. Transactions holds hashes by
// default; with full transactions requested it holds Transaction objects.
type Block struct {
	Number           uint64 `json:"number"`
	Hash             string `json:"hash"`
	ParentHash       string `json:"parent_hash"`
	Timestamp        uint64 `json:"timestamp"`
	GasUsed          uint64 `json:"gas_used"`
	GasLimit         uint64 `json:"gas_limit"`
	BaseFee          string `json:"base_fee,omitempty"`
	TransactionCount int    `json:"transaction_count"`
	Transactions     []any  `json:"transactions,omitempty"`
}

// NetworkStatus summarizes the connected network.
type NetworkStatus struct {
	ChainID           uint64 `json:"chain_id"`
	NetworkName       string `json:"network_name"`
	LatestBlock       uint64 `json:"latest_block"`
	LatestBlockTime   uint64 `json:"latest_block_time"`
	GasPrice          string `json:"gas_price"`
	GasPriceFormatted string `json:"gas_price_formatted"`
}
