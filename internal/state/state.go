package state

import (
	"math/big"
	"time"

	"github.com/pea-chain/peacashd/internal/amount"
	"github.com/pea-chain/peacashd/internal/params"
)

// State is the mutable ledger bookkeeping applied one block at a time:
// balances, staked balances, the ordered staker queue, and the main-branch
// hash sequence from genesis to head. Grounded on
// original_source/src/blockchain.rs's balance/balance_staked/stakers/hashes
// fields and its reward/set_balances/set_stakers methods, folded here into
// one State value per spec §4.5/§4.6 instead of living directly on
// Blockchain.
type State struct {
	Balances         map[AddressBytes]*big.Int
	Staked           map[AddressBytes]*big.Int
	Stakers          []AddressBytes
	Hashes           []Hash
	SumStakesNow     *big.Int
	SumStakesAllTime *big.Int
}

// New returns an empty State, as at genesis.
func New() *State {
	return &State{
		Balances:         make(map[AddressBytes]*big.Int),
		Staked:           make(map[AddressBytes]*big.Int),
		SumStakesNow:     big.NewInt(0),
		SumStakesAllTime: big.NewInt(0),
	}
}

// Clone deep-copies a State for fork-state reconstruction (§4.6).
func (s *State) Clone() *State {
	c := New()
	for k, v := range s.Balances {
		c.Balances[k] = new(big.Int).Set(v)
	}
	for k, v := range s.Staked {
		c.Staked[k] = new(big.Int).Set(v)
	}
	c.Stakers = append(c.Stakers, s.Stakers...)
	c.Hashes = append(c.Hashes, s.Hashes...)
	c.SumStakesNow = new(big.Int).Set(s.SumStakesNow)
	c.SumStakesAllTime = new(big.Int).Set(s.SumStakesAllTime)
	return c
}

// Balance returns the balance of addr, or zero if unknown.
func (s *State) Balance(addr AddressBytes) *big.Int {
	if b, ok := s.Balances[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

// StakedBalance returns the staked balance of addr, or zero if unknown.
func (s *State) StakedBalance(addr AddressBytes) *big.Int {
	if b, ok := s.Staked[addr]; ok {
		return b
	}
	return big.NewInt(0)
}

func (s *State) setBalance(addr AddressBytes, v *big.Int) {
	if v.Sign() == 0 {
		delete(s.Balances, addr)
		return
	}
	s.Balances[addr] = v
}

func (s *State) stakerIndex(addr AddressBytes) int {
	for i, a := range s.Stakers {
		if a == addr {
			return i
		}
	}
	return -1
}

func (s *State) removeStaker(addr AddressBytes) {
	idx := s.stakerIndex(addr)
	if idx < 0 {
		return
	}
	s.Stakers = append(s.Stakers[:idx], s.Stakers[idx+1:]...)
}

// ProposerIndex maps a 32-byte beta deterministically into [0, n) over the
// staker queue, per spec §4.5's "index(beta_prev, stakers.len())".
func ProposerIndex(beta [params.BetaSize]byte, n int) int {
	if n == 0 {
		return 0
	}
	v := new(big.Int).SetBytes(beta[:])
	m := new(big.Int).Mod(v, big.NewInt(int64(n)))
	return int(m.Int64())
}

// Proposer returns the address eligible to forge given the previous
// block's beta, or the zero address if the staker queue is empty.
func (s *State) Proposer(previousBeta [params.BetaSize]byte) (AddressBytes, bool) {
	if len(s.Stakers) == 0 {
		return AddressBytes{}, false
	}
	return s.Stakers[ProposerIndex(previousBeta, len(s.Stakers))], true
}

// Append applies one block's effects in the exact order spec §4.5 lists:
// reward, transactions, stakes, staker rotation, aggregates, hashes.
func (s *State) Append(b Block) {
	s.reward(b)
	s.applyTransactions(b)
	s.applyStakes(b)
	s.rotateStakers(b)
	s.recomputeAggregates()
	s.Hashes = append(s.Hashes, b.Hash())
}

func (s *State) reward(b Block) {
	addr := AddressFromPublicKeyBytes(b.PublicKey)
	staked := s.StakedBalance(addr)
	bal := s.Balance(addr)
	bal = new(big.Int).Add(bal, Reward(staked, s.SumStakesNow))
	if len(b.Stakes) > 0 && b.Stakes[0].IsGenesisMint() {
		bal = new(big.Int).Add(bal, params.MinStake)
	}
	s.setBalance(addr, bal)
}

func (s *State) applyTransactions(b Block) {
	for _, tx := range b.Transactions {
		pub, err := tx.Recover()
		if err != nil {
			continue // unreachable for already-validated blocks; defensive only
		}
		in := AddressFromPublicKey(pub)
		amt := amount.FromBytes(tx.Amount)
		fee := amount.FromBytes(tx.Fee)

		inBal := s.Balance(in)
		inBal = new(big.Int).Sub(inBal, new(big.Int).Add(amt, fee))
		s.setBalance(in, inBal)

		outBal := s.Balance(tx.OutputAddress)
		outBal = new(big.Int).Add(outBal, amt)
		s.setBalance(tx.OutputAddress, outBal)
		// fee is burned: never credited anywhere (spec §9 "fee destination").
	}
}

func (s *State) applyStakes(b Block) {
	for _, st := range b.Stakes {
		pub, err := st.Recover()
		if err != nil {
			continue
		}
		addr := AddressFromPublicKey(pub)
		amt := amount.FromBytes(st.Amount)
		fee := amount.FromBytes(st.Fee)

		if st.Deposit {
			if !st.IsGenesisMint() {
				bal := s.Balance(addr)
				bal = new(big.Int).Sub(bal, new(big.Int).Add(amt, fee))
				s.setBalance(addr, bal)
			}
			staked := s.StakedBalance(addr)
			staked = new(big.Int).Add(staked, amt)
			s.Staked[addr] = staked
		} else {
			bal := s.Balance(addr)
			bal = new(big.Int).Add(bal, new(big.Int).Sub(amt, fee))
			s.setBalance(addr, bal)
			staked := s.StakedBalance(addr)
			staked = new(big.Int).Sub(staked, amt)
			s.Staked[addr] = staked
		}
	}
}

// rotateStakers rotates the queue left by one (the just-elected proposer
// moves to the back) whenever it holds at least two entries, then applies
// this block's staker-queue membership changes (add/remove), per spec
// §4.5 step 4. Rotation must happen before membership changes: a staker
// newly added this block must land after the rotated former front of the
// queue, not before it, matching original_source/src/blockchain.rs's
// rotate_left(1)-then-membership-update order.
func (s *State) rotateStakers(b Block) {
	if len(s.Stakers) >= 2 {
		s.Stakers = append(s.Stakers[1:], s.Stakers[0])
	}
	for _, st := range b.Stakes {
		pub, err := st.Recover()
		if err != nil {
			continue
		}
		addr := AddressFromPublicKey(pub)
		if s.StakedBalance(addr).Cmp(params.MinStake) < 0 {
			delete(s.Staked, addr)
			s.removeStaker(addr)
		} else if s.stakerIndex(addr) < 0 {
			s.Stakers = append(s.Stakers, addr)
		}
	}
}

// Penalty forfeits the front of the staker queue — the proposer that
// failed to show up for its slot — removing both its staker-queue entry
// and its staked balance. A no-op on an empty queue. Grounded on
// original_source/src/blockchain.rs's penalty().
func (s *State) Penalty() (AddressBytes, bool) {
	if len(s.Stakers) == 0 {
		return AddressBytes{}, false
	}
	addr := s.Stakers[0]
	s.Stakers = s.Stakers[1:]
	delete(s.Staked, addr)
	s.recomputeAggregates()
	return addr, true
}

// PenaltyReload replays the no-show penalty (timestamp - previousTimestamp
// - 1) / BLOCK_TIME_MAX times (integer division, in seconds), used while
// replaying history (or catching up to now()) rather than reacting to a
// single live tick. Grounded on blockchain.rs's penalty_reload.
func (s *State) PenaltyReload(timestamp, previousTimestamp uint32) {
	if timestamp == previousTimestamp {
		return
	}
	diff := timestamp - previousTimestamp - 1
	blockTimeMaxSeconds := uint32(params.BlockTimeMax / time.Second)
	n := diff / blockTimeMaxSeconds
	for i := uint32(0); i < n; i++ {
		if len(s.Stakers) == 0 {
			return
		}
		s.Penalty()
	}
}

func (s *State) recomputeAggregates() {
	sum := big.NewInt(0)
	for _, v := range s.Staked {
		sum.Add(sum, v)
	}
	s.SumStakesNow = sum
	s.SumStakesAllTime = new(big.Int).Add(s.SumStakesAllTime, sum)
}
