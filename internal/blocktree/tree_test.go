package blocktree

import (
	"testing"

	"github.com/pea-chain/peacashd/internal/params"
)

func hashOf(b byte) Hash {
	var h Hash
	h[0] = b
	return h
}

func beta(b byte) [params.BetaSize]byte {
	var v [params.BetaSize]byte
	v[31] = b
	return v
}

func TestInsertGenesisAndExtend(t *testing.T) {
	tr := New()
	extends, newBranch, err := tr.Insert(hashOf(1), zeroHash, beta(1))
	if err != nil {
		t.Fatalf("insert genesis child: %v", err)
	}
	if newBranch {
		t.Fatal("first insert into an empty tree should not be a new branch")
	}
	// extendsMain requires a main tip to have already existed, so the very
	// first insert into an empty tree is correctly reported as not extending.
	if extends {
		t.Fatal("first insert into an empty tree cannot extend an existing main branch")
	}

	extends2, _, err := tr.Insert(hashOf(2), hashOf(1), beta(2))
	if err != nil {
		t.Fatalf("insert second block: %v", err)
	}
	if !extends2 {
		t.Fatal("inserting a child of the current main tip should extend main")
	}
	main, height, ok := tr.Main()
	if !ok || main != hashOf(2) || height != 1 {
		t.Fatalf("main = (%v, %d, %v), want (hashOf(2), 1, true)", main, height, ok)
	}
}

func TestInsertUnknownParentFails(t *testing.T) {
	tr := New()
	if _, _, err := tr.Insert(hashOf(1), hashOf(99), beta(1)); err == nil {
		t.Fatal("expected UnknownParent error")
	}
}

func TestInsertIsIdempotent(t *testing.T) {
	tr := New()
	tr.Insert(hashOf(1), zeroHash, beta(1))
	extends, newBranch, err := tr.Insert(hashOf(1), zeroHash, beta(1))
	if err != nil {
		t.Fatalf("re-inserting a known hash should not error: %v", err)
	}
	if extends || newBranch {
		t.Fatal("re-inserting a known hash should be a pure no-op")
	}
}

func TestTieBreakByHeightThenBeta(t *testing.T) {
	tr := New()
	tr.Insert(hashOf(1), zeroHash, beta(1))

	// two competing children of the same parent at the same height
	tr.Insert(hashOf(2), hashOf(1), beta(5))
	tr.Insert(hashOf(3), hashOf(1), beta(9))

	main, _, _ := tr.Main()
	if main != hashOf(3) {
		t.Fatalf("main = %v, want hashOf(3) (higher beta wins at equal height)", main)
	}

	// a late, lower-beta sibling must not displace the higher-beta tip
	tr.Insert(hashOf(4), hashOf(1), beta(2))
	main, _, _ = tr.Main()
	if main != hashOf(3) {
		t.Fatalf("main changed to %v after inserting a lower-beta sibling", main)
	}
}

func TestNewBranchDetection(t *testing.T) {
	tr := New()
	tr.Insert(hashOf(1), zeroHash, beta(1))
	tr.Insert(hashOf(2), hashOf(1), beta(1)) // main tip is now hashOf(2)

	_, newBranch, err := tr.Insert(hashOf(3), hashOf(1), beta(1))
	if err != nil {
		t.Fatalf("insert sibling: %v", err)
	}
	if !newBranch {
		t.Fatal("inserting a sibling of the main tip should be a new branch")
	}
}

func TestGetForkVec(t *testing.T) {
	tr := New()
	tr.Insert(hashOf(1), zeroHash, beta(1))
	tr.Insert(hashOf(2), hashOf(1), beta(1))
	tr.Insert(hashOf(3), hashOf(2), beta(1))
	// fork off hashOf(1)
	tr.Insert(hashOf(10), hashOf(1), beta(0))
	tr.Insert(hashOf(11), hashOf(10), beta(0))

	known := []Hash{hashOf(1), hashOf(2), hashOf(3)}
	vec := tr.GetForkVec(known, hashOf(11))
	want := []Hash{hashOf(10), hashOf(11)}
	if len(vec) != len(want) {
		t.Fatalf("GetForkVec len = %d, want %d", len(vec), len(want))
	}
	for i := range want {
		if vec[i] != want[i] {
			t.Fatalf("GetForkVec[%d] = %v, want %v", i, vec[i], want[i])
		}
	}
}

func TestGetForkVecEmptyWhenOnKnownChain(t *testing.T) {
	tr := New()
	tr.Insert(hashOf(1), zeroHash, beta(1))
	tr.Insert(hashOf(2), hashOf(1), beta(1))

	known := []Hash{hashOf(1), hashOf(2)}
	vec := tr.GetForkVec(known, hashOf(2))
	if len(vec) != 0 {
		t.Fatalf("GetForkVec should be empty when forkFrom is already known, got %v", vec)
	}
}

func TestReloadRebuildsOutOfOrderEntries(t *testing.T) {
	tr := New()
	entries := []Entry{
		{Hash: hashOf(3), PreviousHash: hashOf(2), Beta: beta(1)},
		{Hash: hashOf(1), PreviousHash: zeroHash, Beta: beta(1)},
		{Hash: hashOf(2), PreviousHash: hashOf(1), Beta: beta(1)},
	}
	tr.Reload(entries)

	main, height, ok := tr.Main()
	if !ok || main != hashOf(3) || height != 2 {
		t.Fatalf("main after reload = (%v, %d, %v), want (hashOf(3), 2, true)", main, height, ok)
	}
}

func TestHeightLookup(t *testing.T) {
	tr := New()
	tr.Insert(hashOf(1), zeroHash, beta(1))
	tr.Insert(hashOf(2), hashOf(1), beta(1))

	h, ok := tr.Height(hashOf(2))
	if !ok || h != 1 {
		t.Fatalf("Height(hashOf(2)) = (%d, %v), want (1, true)", h, ok)
	}
	if _, ok := tr.Height(hashOf(99)); ok {
		t.Fatal("Height should report false for an unknown hash")
	}
}
