// Package pendingpool implements the three bounded pools of spec §4.7:
// pending transactions, stakes, and blocks, each with its own admission
// and overflow-trim rule. Grounded on
// original_source/src/blockchain.rs's pending_transactions_push /
// pending_stakes_push / pending_blocks_push and their
// sort_pending_*/limit_pending_* helpers (sort descending by fee, trim the
// tail — the lowest-fee entries after that sort).
package pendingpool

import (
	"math/big"
	"sort"

	"github.com/pea-chain/peacashd/internal/amount"
	"github.com/pea-chain/peacashd/internal/errs"
	"github.com/pea-chain/peacashd/internal/params"
	"github.com/pea-chain/peacashd/internal/state"
)

// BalanceView is the read access admission needs from the current chain
// state: balances and staked balances by recovered address.
type BalanceView interface {
	Balance(addr state.AddressBytes) *big.Int
	StakedBalance(addr state.AddressBytes) *big.Int
}

// Pools holds the three pending pools. The zero value is ready to use.
type Pools struct {
	Transactions []state.Transaction
	Stakes       []state.Stake
	Blocks       []state.Block
}

// New returns empty pools.
func New() *Pools { return &Pools{} }

// Clear empties all three pools, called whenever the main head advances
// (spec §3 "Lifecycles").
func (p *Pools) Clear() {
	p.Transactions = nil
	p.Stakes = nil
	p.Blocks = nil
}

// AdmitTransaction validates tx against the current balance of its
// recovered input address and either appends it or, if an entry from the
// same input address is already pending, replaces it when tx's fee is
// strictly higher.
func (p *Pools) AdmitTransaction(tx state.Transaction, view BalanceView) error {
	for _, existing := range p.Transactions {
		if existing.Signature == tx.Signature {
			return errs.New(errs.AlreadyPending)
		}
	}

	in, err := tx.Validate()
	if err != nil {
		return err
	}

	replaceIdx := -1
	for i, existing := range p.Transactions {
		existingIn, verr := existing.Validate()
		if verr == nil && existingIn == in {
			replaceIdx = i
			break
		}
	}
	if replaceIdx >= 0 {
		if amount.FromBytes(tx.Fee).Cmp(amount.FromBytes(p.Transactions[replaceIdx].Fee)) <= 0 {
			return errs.New(errs.FeeTooLow)
		}
	}

	amt := amount.FromBytes(tx.Amount)
	fee := amount.FromBytes(tx.Fee)
	need := new(big.Int).Add(amt, fee)
	if view.Balance(in).Cmp(need) < 0 {
		return errs.New(errs.BalanceInsufficient)
	}

	if replaceIdx >= 0 {
		p.Transactions = append(p.Transactions[:replaceIdx], p.Transactions[replaceIdx+1:]...)
	}
	p.Transactions = append(p.Transactions, tx)
	p.Transactions = sortAndTrimTx(p.Transactions, params.PendingTransactionsLimit)
	return nil
}

// AdmitStake validates st against the current balance/staked-balance of
// its recovered address, with the same duplicate/replace rule as
// transactions, keyed by address instead of input.
func (p *Pools) AdmitStake(st state.Stake, view BalanceView) error {
	for _, existing := range p.Stakes {
		if existing.Signature == st.Signature {
			return errs.New(errs.AlreadyPending)
		}
	}

	addr, err := st.Validate()
	if err != nil {
		return err
	}

	replaceIdx := -1
	for i, existing := range p.Stakes {
		existingAddr, verr := existing.Validate()
		if verr == nil && existingAddr == addr {
			replaceIdx = i
			break
		}
	}
	if replaceIdx >= 0 {
		if amount.FromBytes(st.Fee).Cmp(amount.FromBytes(p.Stakes[replaceIdx].Fee)) <= 0 {
			return errs.New(errs.FeeTooLow)
		}
	}

	amt := amount.FromBytes(st.Amount)
	if st.Deposit {
		if !st.IsGenesisMint() {
			fee := amount.FromBytes(st.Fee)
			need := new(big.Int).Add(amt, fee)
			if view.Balance(addr).Cmp(need) < 0 {
				return errs.New(errs.BalanceInsufficient)
			}
		}
	} else {
		if view.StakedBalance(addr).Cmp(amt) < 0 {
			return errs.New(errs.BalanceInsufficient)
		}
	}

	if replaceIdx >= 0 {
		p.Stakes = append(p.Stakes[:replaceIdx], p.Stakes[replaceIdx+1:]...)
	}
	p.Stakes = append(p.Stakes, st)
	p.Stakes = sortAndTrimStake(p.Stakes, params.PendingStakesLimit)
	return nil
}

// AdmitBlock rejects an exact duplicate signature; all other validation
// (signature, proposer eligibility, VRF, timestamp window, entity
// validity) is the caller's (internal/blockchain's) responsibility, since
// it alone has the chain context a block's full validation needs.
func (p *Pools) AdmitBlock(b state.Block) error {
	for _, existing := range p.Blocks {
		if existing.Signature == b.Signature {
			return errs.New(errs.AlreadyPending)
		}
	}
	p.Blocks = append(p.Blocks, b)
	for len(p.Blocks) > params.PendingBlocksLimit {
		p.Blocks = p.Blocks[:len(p.Blocks)-1]
	}
	return nil
}

// SortedTransactions returns pending transactions sorted by descending fee,
// the order forge pulls from.
func (p *Pools) SortedTransactions() []state.Transaction {
	out := append([]state.Transaction(nil), p.Transactions...)
	sort.SliceStable(out, func(i, j int) bool {
		return amount.FromBytes(out[i].Fee).Cmp(amount.FromBytes(out[j].Fee)) > 0
	})
	return out
}

// SortedStakes returns pending stakes sorted by descending fee.
func (p *Pools) SortedStakes() []state.Stake {
	out := append([]state.Stake(nil), p.Stakes...)
	sort.SliceStable(out, func(i, j int) bool {
		return amount.FromBytes(out[i].Fee).Cmp(amount.FromBytes(out[j].Fee)) > 0
	})
	return out
}

func sortAndTrimTx(in []state.Transaction, limit int) []state.Transaction {
	sort.SliceStable(in, func(i, j int) bool {
		return amount.FromBytes(in[i].Fee).Cmp(amount.FromBytes(in[j].Fee)) > 0
	})
	for len(in) > limit {
		in = in[:len(in)-1]
	}
	return in
}

func sortAndTrimStake(in []state.Stake, limit int) []state.Stake {
	sort.SliceStable(in, func(i, j int) bool {
		return amount.FromBytes(in[i].Fee).Cmp(amount.FromBytes(in[j].Fee)) > 0
	})
	for len(in) > limit {
		in = in[:len(in)-1]
	}
	return in
}
