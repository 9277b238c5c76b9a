package tokens

// TokenInfo describes an ERC-20 token.
type TokenInfo struct {
	Address              string `json:"address"`
	Name                 string `json:"name"`
	Symbol               string `json:"symbol"`
	Decimals             int    `json:"decimals"`
	TotalSupply          string `json:"total_supply"`
	TotalSupplyFormatted string `json:"total_supply_formatted"`
}

// TokenBalance carries one account's holding of one token. Balance is the
// exact base-unit integer; BalanceFormatted is the display rendering.
type TokenBalance struct {
	TokenAddress     string `json:"token_address"`
	TokenName        string `json:"token_name"`
	TokenSymbol      string `json:"token_symbol"`
	TokenDecimals    int    `json:"token_decimals"`
	AccountAddress   string `json:"account_address"`
	Balance          string `json:"balance"`
	BalanceFormatted string `json:"balance_formatted"`
}
