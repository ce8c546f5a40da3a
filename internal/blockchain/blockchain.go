// Package blockchain is the top-level engine of spec §4.8: it owns the
// store, the block tree, the current/trusted state pair, and the pending
// pools, and exposes load/reload, forge, append, on_tick and sync_block
// exactly as spec.md names them. Grounded throughout on
// original_source/src/blockchain.rs's Blockchain struct and its
// reload/append/forge_block/append_handle/get_next_sync_block methods.
package blockchain

import (
	"time"

	logrus "github.com/sirupsen/logrus"

	"github.com/pea-chain/peacashd/internal/address"
	"github.com/pea-chain/peacashd/internal/blocktree"
	"github.com/pea-chain/peacashd/internal/errs"
	"github.com/pea-chain/peacashd/internal/params"
	"github.com/pea-chain/peacashd/internal/pendingpool"
	"github.com/pea-chain/peacashd/internal/state"
	"github.com/pea-chain/peacashd/internal/states"
	"github.com/pea-chain/peacashd/internal/store"
	"github.com/pea-chain/peacashd/internal/vrf"
)

type Hash = [params.HashSize]byte

// Blockchain is the single-owner engine value spec §5 requires: every
// method here mutates in one synchronous step between the engine loop's
// suspension points, with no internal locking.
type Blockchain struct {
	store   *store.Store
	tree    *blocktree.Tree
	states  *states.States
	pools   *pendingpool.Pools
	keypair *address.KeyPair

	syncIndex int
	log       *logrus.Entry

	now func() time.Time
}

// New opens the node over an already-open store and key pair, then loads
// (replaying the store's main branch into state).
func New(st *store.Store, kp *address.KeyPair) (*Blockchain, error) {
	bc := &Blockchain{
		store:   st,
		tree:    blocktree.New(),
		states:  states.New(),
		pools:   pendingpool.New(),
		keypair: kp,
		log:     logrus.WithField("component", "blockchain"),
		now:     time.Now,
	}
	if err := bc.Load(); err != nil {
		return nil, err
	}
	return bc, nil
}

// GetBlock implements states.BlockSource and blocktree's replay source,
// reading a stored block by hash.
func (bc *Blockchain) GetBlock(hash Hash) (state.Block, error) {
	raw, err := bc.store.Get(store.FamilyBlock, hash)
	if err != nil {
		return state.Block{}, err
	}
	return state.DecodeBlock(raw)
}

func (bc *Blockchain) putBlock(b state.Block) error {
	return bc.store.Put(store.FamilyBlock, b.Hash(), b.Encode())
}

// Height returns the number of blocks on the main branch (1 once the first
// block is appended), or 0 if empty. The block tree numbers its first block
// 0, so this is the tree's tip height plus one.
func (bc *Blockchain) Height() uint32 {
	_, height, ok := bc.tree.Main()
	if !ok {
		return 0
	}
	return height + 1
}

// Head returns the main branch's tip hash, or the zero hash at genesis.
func (bc *Blockchain) Head() Hash {
	hash, _, ok := bc.tree.Main()
	if !ok {
		return Hash{}
	}
	return hash
}

// HeadBlock returns the block at the main branch's tip, with ok=false at
// genesis (no block yet).
func (bc *Blockchain) HeadBlock() (state.Block, bool) {
	hash, _, ok := bc.tree.Main()
	if !ok {
		return state.Block{}, false
	}
	b, err := bc.GetBlock(hash)
	if err != nil {
		return state.Block{}, false
	}
	return b, true
}

// HeadBeta returns the VRF output of the current head block, or the
// genesis beta (all-zero) before any block exists.
func (bc *Blockchain) HeadBeta() [params.BetaSize]byte {
	b, ok := bc.HeadBlock()
	if !ok {
		return params.GenesisBeta
	}
	return b.Beta()
}

// Load rebuilds the block tree from every stored block, replays the main
// branch into current/trusted state (applying PenaltyReload between
// consecutive block timestamps), and finally applies one more
// PenaltyReload from the last block's timestamp through now(). Grounded
// on blockchain.rs's reload/Blockchain::new.
func (bc *Blockchain) Load() error {
	var entries []blocktree.Entry
	err := bc.store.ForEach(store.FamilyBlock, func(hash Hash, raw []byte) error {
		b, err := state.DecodeBlock(raw)
		if err != nil {
			return err
		}
		entries = append(entries, blocktree.Entry{
			Hash:         hash,
			PreviousHash: b.PreviousHash,
			Beta:         b.Beta(),
		})
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.StoreIO, err)
	}

	bc.tree = blocktree.New()
	bc.tree.Reload(entries)

	mainHash, height, ok := bc.tree.Main()
	if ok {
		bc.log.Infof("main branch height=%d hash=%x", height, mainHash)
	}

	var hashes []Hash
	if ok {
		hashes = bc.tree.GetForkVec(nil, mainHash)
	}

	bc.states = states.New()
	if err := bc.states.Reload(hashes, bc); err != nil {
		return err
	}

	previousTimestamp := uint32(0)
	if len(hashes) > 0 {
		first, err := bc.GetBlock(hashes[0])
		if err != nil {
			return err
		}
		previousTimestamp = first.Timestamp - 1
	}

	// Re-derive penalties along the replayed chain to match reload
	// behavior exactly (states.Reload already applied Append effects, so
	// this pass mutates Current's staker queue in place via the
	// same PenaltyReload rule blockchain.rs applies between consecutive
	// blocks).
	lastTimestamp := previousTimestamp
	for _, h := range hashes {
		b, err := bc.GetBlock(h)
		if err != nil {
			return err
		}
		bc.states.Current.PenaltyReload(b.Timestamp, lastTimestamp)
		lastTimestamp = b.Timestamp
	}
	bc.states.Current.PenaltyReload(uint32(bc.now().Unix()), lastTimestamp)

	bc.pools.Clear()
	return nil
}

// AdmitTransaction validates tx against current balances and queues it.
func (bc *Blockchain) AdmitTransaction(tx state.Transaction) error {
	return bc.pools.AdmitTransaction(tx, bc.states.Current)
}

// AdmitStake validates st against current balances and queues it.
func (bc *Blockchain) AdmitStake(st state.Stake) error {
	return bc.pools.AdmitStake(st, bc.states.Current)
}

// AdmitBlock queues a gossip-received block for append, rejecting only an
// exact duplicate signature — full validation happens in Append.
func (bc *Blockchain) AdmitBlock(b state.Block) error {
	return bc.pools.AdmitBlock(b)
}

// Forge builds, signs, appends, and returns a new block extending the
// current head, when this node holds the winning VRF proof for the
// current slot. Grounded on blockchain.rs's forge_block.
func (bc *Blockchain) Forge() (state.Block, error) {
	previousHash := bc.Head()
	previousBeta := bc.HeadBeta()

	secret := bc.keypair.SecretKeyBytes()
	sk := vrf.ScalarFromSeed(secret[:])
	proof := vrf.Prove(previousBeta[:], sk)

	b := state.Block{
		PreviousHash: previousHash,
		Timestamp:    uint32(bc.now().Unix()),
		Pi:           proof.ToBytes(),
		Transactions: limitTransactions(bc.pools.SortedTransactions(), params.BlockTransactionsLimit),
		Stakes:       limitStakes(bc.pools.SortedStakes(), params.BlockStakesLimit),
		PublicKey:    bc.keypair.PublicKeyBytes(),
		VRFPublicKey: vrf.PublicKeyFromScalar(sk),
	}

	sig, err := bc.keypair.Sign(b.Hash())
	if err != nil {
		return state.Block{}, err
	}
	b.Signature = sig

	if _, err := bc.Append(b); err != nil {
		return state.Block{}, err
	}
	bc.log.Infof("forged height=%d hash=%x", bc.Height(), b.Hash())
	return b, nil
}

func limitTransactions(in []state.Transaction, limit int) []state.Transaction {
	if len(in) > limit {
		in = in[:limit]
	}
	return append([]state.Transaction(nil), in...)
}

func limitStakes(in []state.Stake, limit int) []state.Stake {
	if len(in) > limit {
		in = in[:limit]
	}
	return append([]state.Stake(nil), in...)
}

// Append re-validates block (signature, proposer eligibility, VRF,
// timestamp window, entity validity), persists it, links it into the
// tree, and either reloads (branch change) or applies incrementally
// (head extension), clearing the pending pools either way. Grounded on
// blockchain.rs's append.
func (bc *Blockchain) Append(b state.Block) (Hash, error) {
	if err := bc.validateBlock(b); err != nil {
		return Hash{}, err
	}

	if err := bc.putBlock(b); err != nil {
		return Hash{}, errs.Wrap(errs.StoreIO, err)
	}

	hash := b.Hash()
	prevMain, _, hadMain := bc.tree.Main()
	extendsMain, newBranch, err := bc.tree.Insert(hash, b.PreviousHash, b.Beta())
	if err != nil {
		return Hash{}, err
	}

	newMain, _, _ := bc.tree.Main()
	switch {
	case newBranch && hadMain && newMain != prevMain:
		// A fork just overtook the previous main branch: current/trusted
		// state must be rebuilt along the new canonical path rather than
		// patched, since it diverges before the previous tip.
		if err := bc.Load(); err != nil {
			return Hash{}, err
		}
		bc.pools.Clear()
	case extendsMain || !hadMain:
		// The common case: a linear extension of (or the very first
		// addition to) the main branch.
		if err := bc.states.Append(b, bc); err != nil {
			return Hash{}, err
		}
		bc.pools.Clear()
	default:
		// A side branch that does not (yet) overtake main: the block is
		// persisted and linked into the tree for future reference, but
		// current/trusted state and the pending pools are untouched.
	}
	return hash, nil
}

// validateBlock re-checks everything a gossip-received or self-forged
// block must satisfy before it can be persisted and linked: proposer
// eligibility and VRF soundness against the branch it extends, the
// timestamp window, and every transaction/stake's own validity.
func (bc *Blockchain) validateBlock(b state.Block) error {
	// The common case — extending the current main tip — uses Current
	// directly; GetForkState is reserved for a genuine fork (previousHash
	// off the main branch), where its Trusted-plus-replay reconstruction
	// applies.
	var baseState *state.State
	if b.PreviousHash == bc.Head() {
		baseState = bc.states.Current
	} else {
		fs, err := bc.states.GetForkState(bc.tree, bc, b.PreviousHash)
		if err != nil {
			return err
		}
		baseState = fs
	}

	previousBeta := params.GenesisBeta
	var parent state.Block
	var hasParent bool
	if b.PreviousHash != (Hash{}) {
		p, err := bc.GetBlock(b.PreviousHash)
		if err != nil {
			return errs.New(errs.UnknownParent)
		}
		parent = p
		hasParent = true
		previousBeta = parent.Beta()
	}

	if _, err := b.VerifyVRF(previousBeta); err != nil {
		return errs.Wrap(errs.BadVRF, err)
	}

	if len(baseState.Stakers) > 0 {
		proposer, ok := baseState.Proposer(previousBeta)
		if ok {
			addr := state.AddressFromPublicKeyBytes(b.PublicKey)
			if addr != proposer {
				return errs.New(errs.NotProposer)
			}
		}
	}

	if hasParent && b.Timestamp <= parent.Timestamp {
		return errs.New(errs.BadTimestamp)
	}
	now := uint32(bc.now().Unix())
	if b.Timestamp > now+uint32(params.TimeDelta/time.Second) {
		return errs.New(errs.BadTimestamp)
	}

	if _, err := b.Recover(); err != nil {
		return errs.Wrap(errs.BadSignature, err)
	}

	if len(b.Transactions) > params.BlockTransactionsLimit {
		return errs.New(errs.MalformedBytes)
	}
	if len(b.Stakes) > params.BlockStakesLimit {
		return errs.New(errs.MalformedBytes)
	}
	for _, tx := range b.Transactions {
		if _, err := tx.Validate(); err != nil {
			return err
		}
	}
	for _, st := range b.Stakes {
		// The fee-zero genesis mint is only legal on the first block.
		if hasParent && st.IsGenesisMint() {
			return errs.New(errs.ZeroFee)
		}
		if _, err := st.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// OnTick is the slot-tick callback: it forfeits a staker if the head
// hasn't advanced within BLOCK_TIME_MAX, then forges if this node is the
// elected proposer for the current slot and has something to propose (or
// the empty-slot condition: it is simply its turn). Grounded on
// blockchain.rs's append_handle plus spec §4.8's "Slot-tick on_tick".
// Pending blocks that fail validation are dropped; a StoreIO failure while
// appending one is returned to the caller.
func (bc *Blockchain) OnTick() error {
	head, ok := bc.HeadBlock()
	if ok {
		deadline := head.Timestamp + uint32(params.BlockTimeMax/time.Second)
		if uint32(bc.now().Unix()) >= deadline {
			if addr, evicted := bc.states.Current.Penalty(); evicted {
				bc.log.Warnf("penalty: proposer %x did not show up in time", addr)
			}
		}
	}

	for _, pending := range append([]state.Block(nil), bc.pools.Blocks...) {
		if _, err := bc.Append(pending); err != nil {
			if errs.Is(err, errs.StoreIO) {
				return err
			}
			bc.log.Debugf("dropping pending block: %v", err)
		}
	}

	proposer, ok := bc.states.Current.Proposer(bc.HeadBeta())
	if !ok {
		return nil
	}
	if state.AddressFromPublicKeyBytes(bc.keypair.PublicKeyBytes()) != proposer {
		return nil
	}
	// Forging proceeds whether or not any transactions/stakes are pending
	// (the "empty-slot condition" of spec §4.8): an elected proposer still
	// advances the chain with a transaction-less block.
	_, err := bc.Forge()
	return err
}

// NextSyncBlock returns the next block of the main branch modulo its
// length and advances an internal cursor by one. The engine loop calls it
// up to SYNC_BLOCKS_PER_TICK times per tick to feed catching-up peers.
// Grounded on blockchain.rs's get_next_sync_block.
func (bc *Blockchain) NextSyncBlock() (state.Block, bool) {
	hash, _, ok := bc.tree.Main()
	if !ok {
		return state.Block{}, false
	}
	hashes := bc.tree.GetForkVec(nil, hash)
	if len(hashes) == 0 {
		return state.Block{}, false
	}
	if bc.syncIndex >= len(hashes) {
		bc.syncIndex = 0
	}
	b, err := bc.GetBlock(hashes[bc.syncIndex])
	if err != nil {
		return state.Block{}, false
	}
	bc.syncIndex++
	return b, true
}

// HashAtHeight returns the main-branch block hash at height, or ok=false
// if the branch is shorter than height+1. Used by the HTTP read API's
// /hash/{h} endpoint.
func (bc *Blockchain) HashAtHeight(height uint32) (Hash, bool) {
	head, _, ok := bc.tree.Main()
	if !ok {
		return Hash{}, false
	}
	hashes := bc.tree.GetForkVec(nil, head)
	if int(height) >= len(hashes) {
		return Hash{}, false
	}
	return hashes[height], true
}

// Pending exposes the pending pools for API/debugging callers.
func (bc *Blockchain) Pending() *pendingpool.Pools { return bc.pools }

// CurrentState exposes the read-only current state for API/pool callers.
func (bc *Blockchain) CurrentState() *state.State { return bc.states.Current }

// Tree exposes the block tree for API callers that need height lookups.
func (bc *Blockchain) Tree() *blocktree.Tree { return bc.tree }
