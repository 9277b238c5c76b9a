// Package staking aggregates Celo staking positions and validator group
// details. A business question ("where is this account's stake") becomes one
// or two multicall batches; per-item failures degrade the answer instead of
// failing it.
package staking

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/shopspring/decimal"

	"github.com/celokit/celo-reader/pkg/cache"
	"github.com/celokit/celo-reader/pkg/chain"
	"github.com/celokit/celo-reader/pkg/format"
	"github.com/celokit/celo-reader/pkg/multicall"
)

// ErrInvalidAddress rejects malformed inputs before any network I/O.
var ErrInvalidAddress = errors.New("invalid address")

// Validator group snapshots change slowly; cache them briefly.
const groupCacheTTL = 5 * time.Minute

// scoreScale is the Celo fixidity unit: a score of 1e24 is 1.0.
var scoreScale = decimal.New(1, 24)

// BatchExecutor is the slice of the multicall batcher this service uses.
type BatchExecutor interface {
	Execute(ctx context.Context, calls []multicall.Call) ([]multicall.Result, error)
}

// Service answers staking questions for one network.
type Service struct {
	batcher BatchExecutor
	cache   cache.Cache
	preset  chain.Preset
}

// New wires a staking service.
func New(batcher BatchExecutor, c cache.Cache, preset chain.Preset) *Service {
	return &Service{batcher: batcher, cache: c, preset: preset}
}

// Balances aggregates active and pending stake across every validator group
// the account has voted for. Groups whose reads fail are skipped with a
// warning; totals cover only resolved groups.
func (s *Service) Balances(ctx context.Context, account string) (*StakingBalances, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, account)
	}
	owner := common.HexToAddress(account)

	groups, err := s.groupsVotedFor(ctx, owner)
	if err != nil {
		return nil, err
	}

	totalActive := new(big.Int)
	totalPending := new(big.Int)
	stakes := make(map[string]StakeInfo, len(groups))

	if len(groups) > 0 {
		// Two reads per group, pending first.
		calls := make([]multicall.Call, 0, len(groups)*2)
		for _, g := range groups {
			calls = append(calls,
				multicall.Call{Target: s.preset.Election, CallData: pack(electionABI, "getPendingVotesForGroupByAccount", g, owner), AllowFailure: true},
				multicall.Call{Target: s.preset.Election, CallData: pack(electionABI, "getActiveVotesForGroupByAccount", g, owner), AllowFailure: true},
			)
		}

		results, err := s.batcher.Execute(ctx, calls)
		if err != nil {
			return nil, fmt.Errorf("staking balances %s: %w", owner.Hex(), err)
		}

		for i, g := range groups {
			pendingRes, activeRes := results[i*2], results[i*2+1]
			if !pendingRes.Success || !activeRes.Success {
				log.Warn("Skipping group with failed stake reads", "group", g.Hex(), "account", owner.Hex())
				continue
			}
			pending, err := unpackUint256(electionABI, "getPendingVotesForGroupByAccount", pendingRes.ReturnData)
			if err != nil {
				log.Warn("Failed to decode pending votes", "group", g.Hex(), "err", err)
				continue
			}
			active, err := unpackUint256(electionABI, "getActiveVotesForGroupByAccount", activeRes.ReturnData)
			if err != nil {
				log.Warn("Failed to decode active votes", "group", g.Hex(), "err", err)
				continue
			}

			totalActive.Add(totalActive, active)
			totalPending.Add(totalPending, pending)

			total := new(big.Int).Add(active, pending)
			stakes[g.Hex()] = StakeInfo{
				Active:           active.String(),
				Pending:          pending.String(),
				GroupIndex:       i,
				ActiveFormatted:  format.Units(active, format.DefaultDecimals),
				PendingFormatted: format.Units(pending, format.DefaultDecimals),
				TotalFormatted:   format.Units(total, format.DefaultDecimals),
			}
		}
	}

	total := new(big.Int).Add(totalActive, totalPending)
	return &StakingBalances{
		AccountAddress:   owner.Hex(),
		Active:           totalActive.String(),
		Pending:          totalPending.String(),
		Total:            total.String(),
		ActiveFormatted:  format.Units(totalActive, format.DefaultDecimals),
		PendingFormatted: format.Units(totalPending, format.DefaultDecimals),
		TotalFormatted:   format.Units(total, format.DefaultDecimals),
		GroupStakes:      stakes,
	}, nil
}

// Activatable reports which of the account's groups hold pending votes that
// can be activated.
func (s *Service) Activatable(ctx context.Context, account string) (*ActivatableStakes, error) {
	if !common.IsHexAddress(account) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, account)
	}
	owner := common.HexToAddress(account)

	groups, err := s.groupsVotedFor(ctx, owner)
	if err != nil {
		return nil, err
	}

	out := &ActivatableStakes{
		AccountAddress:       owner.Hex(),
		ActivatableGroups:    []string{},
		GroupToIsActivatable: make(map[string]bool, len(groups)),
	}
	if len(groups) == 0 {
		return out, nil
	}

	calls := make([]multicall.Call, len(groups))
	for i, g := range groups {
		calls[i] = multicall.Call{Target: s.preset.Election, CallData: pack(electionABI, "hasActivatablePendingVotes", owner, g), AllowFailure: true}
	}

	results, err := s.batcher.Execute(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("activatable stakes %s: %w", owner.Hex(), err)
	}

	for i, g := range groups {
		if !results[i].Success {
			log.Warn("Skipping group with failed activatable read", "group", g.Hex())
			continue
		}
		activatable, err := unpackBool(electionABI, "hasActivatablePendingVotes", results[i].ReturnData)
		if err != nil {
			log.Warn("Failed to decode activatable flag", "group", g.Hex(), "err", err)
			continue
		}
		out.GroupToIsActivatable[g.Hex()] = activatable
		if activatable {
			out.ActivatableGroups = append(out.ActivatableGroups, g.Hex())
		}
	}
	return out, nil
}

// Group resolves a validator group's metadata plus nested per-member detail.
func (s *Service) Group(ctx context.Context, group string) (*ValidatorGroup, error) {
	if !common.IsHexAddress(group) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidAddress, group)
	}
	addr := common.HexToAddress(group)

	cacheKey := "validator_group_" + addr.Hex()
	var cached ValidatorGroup
	if found, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && found {
		return &cached, nil
	}

	// Group metadata, election state and the elected signer set in one batch.
	metaCalls := []multicall.Call{
		{Target: s.preset.Validators, CallData: pack(validatorsABI, "getValidatorGroup", addr)},
		{Target: s.preset.Accounts, CallData: pack(accountsABI, "getName", addr), AllowFailure: true},
		{Target: s.preset.Accounts, CallData: pack(accountsABI, "getMetadataURL", addr), AllowFailure: true},
		{Target: s.preset.Election, CallData: pack(electionABI, "getTotalVotesForGroup", addr), AllowFailure: true},
		{Target: s.preset.Election, CallData: pack(electionABI, "getNumVotesReceivable", addr), AllowFailure: true},
		{Target: s.preset.Election, CallData: pack(electionABI, "getEligibleValidatorGroups"), AllowFailure: true},
		{Target: s.preset.Election, CallData: pack(electionABI, "getCurrentValidatorSigners"), AllowFailure: true},
	}

	metaResults, err := s.batcher.Execute(ctx, metaCalls)
	if err != nil {
		return nil, fmt.Errorf("validator group %s: %w", addr.Hex(), err)
	}

	groupData, err := unpackValidatorGroup(metaResults[0].ReturnData)
	if err != nil {
		return nil, fmt.Errorf("validator group %s: %w", addr.Hex(), err)
	}

	vg := &ValidatorGroup{
		Address:    addr.Hex(),
		Members:    make(map[string]ValidatorInfo, len(groupData.Members)),
		NumMembers: len(groupData.Members),
		Capacity:   "0",
		Votes:      "0",
	}
	if groupData.LastSlashed != nil {
		vg.LastSlashed = groupData.LastSlashed.Int64()
	}

	if metaResults[1].Success {
		if name, err := unpackString(accountsABI, "getName", metaResults[1].ReturnData); err == nil {
			vg.Name = name
		}
	}
	if metaResults[2].Success {
		if url, err := unpackString(accountsABI, "getMetadataURL", metaResults[2].ReturnData); err == nil {
			vg.URL = url
		}
	}
	if metaResults[3].Success {
		if votes, err := unpackUint256(electionABI, "getTotalVotesForGroup", metaResults[3].ReturnData); err == nil {
			vg.Votes = votes.String()
			vg.VotesFormatted = format.Units(votes, format.DefaultDecimals)
		}
	}
	if metaResults[4].Success {
		if capacity, err := unpackUint256(electionABI, "getNumVotesReceivable", metaResults[4].ReturnData); err == nil {
			vg.Capacity = capacity.String()
			vg.CapacityFormatted = format.Units(capacity, format.DefaultDecimals)
		}
	}
	if metaResults[5].Success {
		if eligible, err := unpackAddresses(electionABI, "getEligibleValidatorGroups", metaResults[5].ReturnData); err == nil {
			for _, g := range eligible {
				if g == addr {
					vg.Eligible = true
					break
				}
			}
		}
	}

	electedSigners := make(map[common.Address]struct{})
	if metaResults[6].Success {
		if signers, err := unpackAddresses(electionABI, "getCurrentValidatorSigners", metaResults[6].ReturnData); err == nil {
			for _, signer := range signers {
				electedSigners[signer] = struct{}{}
			}
		}
	}

	s.resolveMembers(ctx, vg, groupData.Members, electedSigners)

	if err := s.cache.Set(ctx, cacheKey, vg, groupCacheTTL); err != nil {
		log.Warn("Failed to cache validator group", "group", addr.Hex(), "err", err)
	}
	return vg, nil
}

// resolveMembers fetches per-member validator info as one batch and fills in
// membership stats. A member whose reads fail still counts toward NumMembers,
// with a zero score.
func (s *Service) resolveMembers(ctx context.Context, vg *ValidatorGroup, members []common.Address, electedSigners map[common.Address]struct{}) {
	if len(members) == 0 {
		return
	}

	calls := make([]multicall.Call, 0, len(members)*2)
	for _, m := range members {
		calls = append(calls,
			multicall.Call{Target: s.preset.Validators, CallData: pack(validatorsABI, "getValidator", m), AllowFailure: true},
			multicall.Call{Target: s.preset.Accounts, CallData: pack(accountsABI, "getName", m), AllowFailure: true},
		)
	}

	results, err := s.batcher.Execute(ctx, calls)
	if err != nil {
		log.Warn("Member batch failed", "group", vg.Address, "err", err)
		return
	}

	scoreSum := decimal.Zero
	for i, m := range members {
		info := ValidatorInfo{
			Address:        m.Hex(),
			Score:          "0",
			ScoreFormatted: format.ScorePercent(nil),
			Status:         StatusNotElected,
		}

		if validatorRes := results[i*2]; validatorRes.Success {
			if v, err := unpackValidator(validatorRes.ReturnData); err == nil {
				info.Score = v.Score.String()
				info.ScoreFormatted = format.ScorePercent(v.Score)
				info.Signer = v.Signer.Hex()
				if _, elected := electedSigners[v.Signer]; elected {
					info.Status = StatusElected
					vg.NumElected++
				}
				scoreSum = scoreSum.Add(decimal.NewFromBigInt(v.Score, 0).DivRound(scoreScale, 8))
			}
		} else {
			log.Warn("Failed to resolve validator", "member", m.Hex(), "group", vg.Address)
		}

		if nameRes := results[i*2+1]; nameRes.Success {
			if name, err := unpackString(accountsABI, "getName", nameRes.ReturnData); err == nil {
				info.Name = name
			}
		}

		vg.Members[m.Hex()] = info
	}

	// Mean over all members; zero members was handled by the early return.
	avg, _ := scoreSum.DivRound(decimal.NewFromInt(int64(len(members))), 8).Float64()
	vg.AvgScore = avg
}

// groupsVotedFor issues the single required read listing the groups an
// account has voted for.
func (s *Service) groupsVotedFor(ctx context.Context, owner common.Address) ([]common.Address, error) {
	results, err := s.batcher.Execute(ctx, []multicall.Call{
		{Target: s.preset.Election, CallData: pack(electionABI, "getGroupsVotedForByAccount", owner)},
	})
	if err != nil {
		return nil, fmt.Errorf("groups voted for %s: %w", owner.Hex(), err)
	}
	return unpackAddresses(electionABI, "getGroupsVotedForByAccount", results[0].ReturnData)
}
