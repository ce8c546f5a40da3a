// Package states maintains the current/trusted State pair of spec §4.6:
// current tracks the present head of the main branch; trusted lags it by
// TRUST_FORK_AFTER_BLOCKS and is the finality rule's base — forks older
// than the trusted tip are refused with ForkTooDeep. Grounded on
// original_source/src/states.rs's States{current, previous} and its
// get_fork_state/append/reload methods (the Rust field is named
// "previous"; spec names it "trusted", which this package follows).
package states

import (
	"github.com/pea-chain/peacashd/internal/blocktree"
	"github.com/pea-chain/peacashd/internal/errs"
	"github.com/pea-chain/peacashd/internal/params"
	"github.com/pea-chain/peacashd/internal/state"
)

type Hash = [params.HashSize]byte

// BlockSource resolves a stored block by hash, letting this package stay
// independent of the storage driver. internal/blockchain supplies one
// backed by internal/store.
type BlockSource interface {
	GetBlock(hash Hash) (state.Block, error)
}

// States holds the current and trusted State instances.
type States struct {
	Current *state.State
	Trusted *state.State
}

// New returns an empty current/trusted pair, as at genesis.
func New() *States {
	return &States{Current: state.New(), Trusted: state.New()}
}

// GetForkState builds a scratch State for a candidate block whose parent,
// previousHash, may be on a branch other than main. It clones Trusted and
// replays onto it the blocks from the trusted tip up to and including
// previousHash. Fails with
// errs.ForkTooDeep if the fork point is older than the trusted tip —
// rewriting trusted history is refused.
func (s *States) GetForkState(tree *blocktree.Tree, src BlockSource, previousHash Hash) (*state.State, error) {
	if previousHash == (Hash{}) {
		return state.New(), nil
	}

	parentHeight, ok := tree.Height(previousHash)
	if !ok {
		return nil, errs.New(errs.UnknownParent)
	}
	_, headHeight, _ := tree.Main()
	trustedFloor := int64(headHeight) - int64(params.TrustForkAfterBlocks)
	if int64(parentHeight) < trustedFloor {
		return nil, errs.New(errs.ForkTooDeep)
	}

	vec := tree.GetForkVec(s.Trusted.Hashes, previousHash)
	fork := s.Trusted.Clone()
	for _, h := range vec {
		block, err := src.GetBlock(h)
		if err != nil {
			return nil, err
		}
		fork.Append(block)
	}
	return fork, nil
}

// Append applies block to Current and, once Current's hash sequence is
// longer than TRUST_FORK_AFTER_BLOCKS, advances Trusted by exactly the
// block that newly crosses the trust horizon, so Trusted holds the first
// len(Current.Hashes) - TRUST_FORK_AFTER_BLOCKS blocks, as Reload builds
// it — mirroring original_source/src/states.rs's States::append.
func (s *States) Append(block state.Block, src BlockSource) error {
	s.Current.Append(block)
	n := len(s.Current.Hashes)
	if n > params.TrustForkAfterBlocks {
		horizonBlock, err := src.GetBlock(s.Current.Hashes[n-1-params.TrustForkAfterBlocks])
		if err != nil {
			return err
		}
		s.Trusted.Append(horizonBlock)
	}
	return nil
}

// Reload rebuilds both Current and Trusted from the main-branch hash
// sequence, replaying every block from genesis. Trusted only replays the
// prefix up to height (len(hashes) - TRUST_FORK_AFTER_BLOCKS).
func (s *States) Reload(hashes []Hash, src BlockSource) error {
	s.Current = state.New()
	for _, h := range hashes {
		block, err := src.GetBlock(h)
		if err != nil {
			return err
		}
		s.Current.Append(block)
	}

	s.Trusted = state.New()
	n := len(hashes)
	start := 0
	if n >= params.TrustForkAfterBlocks {
		start = n - params.TrustForkAfterBlocks
	}
	for i := 0; i < start; i++ {
		block, err := src.GetBlock(hashes[i])
		if err != nil {
			return err
		}
		s.Trusted.Append(block)
	}
	return nil
}
