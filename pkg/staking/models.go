package staking

// StakeInfo is one account's position in one validator group. Raw amounts are
// exact base-unit integers carried as strings.
type StakeInfo struct {
	Active           string `json:"active"`
	Pending          string `json:"pending"`
	GroupIndex       int    `json:"group_index"`
	ActiveFormatted  string `json:"active_formatted"`
	PendingFormatted string `json:"pending_formatted"`
	TotalFormatted   string `json:"total_formatted"`
}

// StakingBalances aggregates an account's stake across every group it has
// voted for. Total is exactly Active + Pending in integer arithmetic.
type StakingBalances struct {
	AccountAddress   string               `json:"account_address"`
	Active           string               `json:"active"`
	Pending          string               `json:"pending"`
	Total            string               `json:"total"`
	ActiveFormatted  string               `json:"active_formatted"`
	PendingFormatted string               `json:"pending_formatted"`
	TotalFormatted   string               `json:"total_formatted"`
	GroupStakes      map[string]StakeInfo `json:"group_to_stake"`
}

// Validator statuses.
const (
	StatusElected    = "elected"
	StatusNotElected = "not_elected"
)

// ValidatorInfo describes one member of a validator group.
type ValidatorInfo struct {
	Address        string `json:"address"`
	Name           string `json:"name"`
	Score          string `json:"score"`
	ScoreFormatted string `json:"score_formatted"`
	Signer         string `json:"signer"`
	Status         string `json:"status"`
}

// ValidatorGroup describes a staking group and its members.
// NumElected <= NumMembers; AvgScore is the arithmetic mean of member scores
// (fraction of 1.0) over NumMembers, 0 for an empty group.
type ValidatorGroup struct {
	Address           string                   `json:"address"`
	Name              string                   `json:"name"`
	URL               string                   `json:"url"`
	Eligible          bool                     `json:"eligible"`
	Capacity          string                   `json:"capacity"`
	CapacityFormatted string                   `json:"capacity_formatted"`
	Votes             string                   `json:"votes"`
	VotesFormatted    string                   `json:"votes_formatted"`
	LastSlashed       int64                    `json:"last_slashed,omitempty"`
	Members           map[string]ValidatorInfo `json:"members"`
	NumElected        int                      `json:"num_elected"`
	NumMembers        int                      `json:"num_members"`
	AvgScore          float64                  `json:"avg_score"`
}

// ActivatableStakes lists the groups whose pending votes an account can
// currently activate.
type ActivatableStakes struct {
	AccountAddress       string          `json:"account_address"`
	ActivatableGroups    []string        `json:"activatable_groups"`
	GroupToIsActivatable map[string]bool `json:"group_to_is_activatable"`
}
