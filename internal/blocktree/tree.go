// Package blocktree implements the in-memory multi-branch block DAG (spec
// §4.4's "Tree"): a forest of block references keyed by hash, indexed by
// previous_hash, that selects a canonical main branch by (height, tip
// beta, insertion order) and can enumerate a fork's divergent block path.
// There is no direct Rust analogue in the retrieval pack (tree.rs was not
// retrieved); this is built from spec §4.4 and grounded on the insert/
// reward/reload call shape in original_source/src/blockchain.rs, whose
// tree.insert/tree.main/tree.get_fork_vec/tree.reload calls this package
// implements.
package blocktree

import (
	"bytes"

	"github.com/pea-chain/peacashd/internal/errs"
	"github.com/pea-chain/peacashd/internal/params"
)

type Hash = [params.HashSize]byte

var zeroHash Hash

// node is one block reference in the forest.
type node struct {
	hash         Hash
	previousHash Hash
	height       uint32
	beta         [params.BetaSize]byte
	seq          uint64
}

// Entry is the minimal information Reload needs per stored block; the
// caller (internal/blockchain) supplies these from the KV store so this
// package never depends on a storage driver.
type Entry struct {
	Hash         Hash
	PreviousHash Hash
	Beta         [params.BetaSize]byte
}

// Tree is a forest of block references. The zero value is an empty tree
// with no main branch.
type Tree struct {
	nodes      map[Hash]*node
	children   map[Hash][]Hash
	mainHash   Hash
	mainHeight uint32
	mainSet    bool
	seqCounter uint64
}

// New returns an empty Tree.
func New() *Tree {
	return &Tree{
		nodes:    make(map[Hash]*node),
		children: make(map[Hash][]Hash),
	}
}

// Insert records hash as a child of previousHash with the given tip beta
// (the new block's own VRF output, used for tie-breaking when this node
// becomes a branch tip). It is idempotent: inserting a known hash again is
// a no-op. Fails with errs.UnknownParent if previousHash is neither
// genesis (all-zero) nor already present.
func (t *Tree) Insert(hash, previousHash Hash, beta [params.BetaSize]byte) (extendsMain, newBranch bool, err error) {
	if _, ok := t.nodes[hash]; ok {
		return false, false, nil
	}
	var height uint32
	if previousHash != zeroHash {
		parent, ok := t.nodes[previousHash]
		if !ok {
			return false, false, errs.New(errs.UnknownParent)
		}
		height = parent.height + 1
	}

	t.seqCounter++
	n := &node{hash: hash, previousHash: previousHash, height: height, beta: beta, seq: t.seqCounter}
	t.nodes[hash] = n
	t.children[previousHash] = append(t.children[previousHash], hash)

	newBranch = t.mainSet && previousHash != t.mainHash

	if t.beats(n) {
		extendsMain = t.mainSet && previousHash == t.mainHash
		t.mainHash = hash
		t.mainHeight = height
		t.mainSet = true
	}
	return extendsMain, newBranch, nil
}

// beats reports whether candidate n should become the new main tip: a
// strictly greater height wins outright; equal height is broken by
// strictly greater beta (lexicographic); anything else leaves the current
// main tip in place, which is how ties resolve to "earlier insertion wins"
// (the earlier node is already main, so it is never displaced by an
// equally-ranked later one).
func (t *Tree) beats(n *node) bool {
	if !t.mainSet {
		return true
	}
	cur := t.nodes[t.mainHash]
	if n.height != cur.height {
		return n.height > cur.height
	}
	return bytes.Compare(n.beta[:], cur.beta[:]) > 0
}

// Main returns the current main tip's hash and height. ok is false for an
// empty tree.
func (t *Tree) Main() (hash Hash, height uint32, ok bool) {
	return t.mainHash, t.mainHeight, t.mainSet
}

// Height returns the height of hash, if present.
func (t *Tree) Height(hash Hash) (uint32, bool) {
	n, ok := t.nodes[hash]
	if !ok {
		return 0, false
	}
	return n.height, true
}

// Contains reports whether hash has been inserted.
func (t *Tree) Contains(hash Hash) bool {
	_, ok := t.nodes[hash]
	return ok
}

// GetForkVec walks backward from forkFrom through previousHash pointers
// until it reaches a hash present in knownHashes (the common ancestor) or
// genesis, then returns the collected hashes in forward order —
// [child-of-ancestor, ..., forkFrom]. An empty result means forkFrom is
// itself already in knownHashes (no replay needed). Used by States to
// reconstruct the scratch state for a block built on a forked parent.
func (t *Tree) GetForkVec(knownHashes []Hash, forkFrom Hash) []Hash {
	known := make(map[Hash]bool, len(knownHashes))
	for _, h := range knownHashes {
		known[h] = true
	}

	var path []Hash
	cur := forkFrom
	for cur != zeroHash && !known[cur] {
		n, ok := t.nodes[cur]
		if !ok {
			break
		}
		path = append(path, cur)
		cur = n.previousHash
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Reload rebuilds the forest from a flat, arbitrarily-ordered set of
// stored entries (spec §4.4's "scans the KV store once"). Entries whose
// parent has not yet been linked are retried on subsequent passes, so
// storage iteration order need not be topological.
func (t *Tree) Reload(entries []Entry) {
	t.nodes = make(map[Hash]*node)
	t.children = make(map[Hash][]Hash)
	t.mainHash = Hash{}
	t.mainHeight = 0
	t.mainSet = false
	t.seqCounter = 0

	pending := make([]Entry, len(entries))
	copy(pending, entries)
	for len(pending) > 0 {
		progressed := false
		var next []Entry
		for _, e := range pending {
			if e.PreviousHash != zeroHash && !t.Contains(e.PreviousHash) {
				next = append(next, e)
				continue
			}
			if _, _, err := t.Insert(e.Hash, e.PreviousHash, e.Beta); err == nil {
				progressed = true
			}
		}
		if !progressed {
			break // remaining entries name a parent never seen: orphaned, left out
		}
		pending = next
	}
}
