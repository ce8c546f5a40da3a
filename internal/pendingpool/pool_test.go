package pendingpool

import (
	"math/big"
	"testing"

	"github.com/pea-chain/peacashd/internal/address"
	"github.com/pea-chain/peacashd/internal/amount"
	"github.com/pea-chain/peacashd/internal/params"
	"github.com/pea-chain/peacashd/internal/state"
)

type fakeView struct {
	balances map[state.AddressBytes]*big.Int
	staked   map[state.AddressBytes]*big.Int
}

func newFakeView() *fakeView {
	return &fakeView{balances: make(map[state.AddressBytes]*big.Int), staked: make(map[state.AddressBytes]*big.Int)}
}

func (f *fakeView) Balance(a state.AddressBytes) *big.Int {
	if v, ok := f.balances[a]; ok {
		return v
	}
	return big.NewInt(0)
}

func (f *fakeView) StakedBalance(a state.AddressBytes) *big.Int {
	if v, ok := f.staked[a]; ok {
		return v
	}
	return big.NewInt(0)
}

func signedTx(t *testing.T, kp *address.KeyPair, out state.AddressBytes, amt, fee int64, ts uint32) state.Transaction {
	t.Helper()
	tx := state.Transaction{
		OutputAddress: out,
		Amount:        amount.ToBytes(big.NewInt(amt)),
		Fee:           amount.ToBytes(big.NewInt(fee)),
		Timestamp:     ts,
	}
	sig, err := kp.Sign(tx.Hash())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	tx.Signature = sig
	return tx
}

func TestAdmitTransactionRejectsInsufficientBalance(t *testing.T) {
	kp, _ := address.Generate()
	receiver, _ := address.Generate()
	view := newFakeView()

	tx := signedTx(t, kp, receiver.Address(), 1<<60, 1000, 1)
	p := New()
	if err := p.AdmitTransaction(tx, view); err == nil {
		t.Fatal("expected BalanceInsufficient")
	}
}

func TestAdmitTransactionReplacesOnHigherFee(t *testing.T) {
	kp, _ := address.Generate()
	receiver, _ := address.Generate()
	view := newFakeView()
	view.balances[kp.Address()] = new(big.Int).Mul(big.NewInt(100), params.MinStake)

	tx1 := signedTx(t, kp, receiver.Address(), 1000, 10, 1)
	p := New()
	if err := p.AdmitTransaction(tx1, view); err != nil {
		t.Fatalf("admit tx1: %v", err)
	}

	tx2 := signedTx(t, kp, receiver.Address(), 1000, 5, 2)
	if err := p.AdmitTransaction(tx2, view); err == nil {
		t.Fatal("expected FeeTooLow replacing with a lower fee")
	}

	tx3 := signedTx(t, kp, receiver.Address(), 1000, 20, 3)
	if err := p.AdmitTransaction(tx3, view); err != nil {
		t.Fatalf("admit tx3 with higher fee: %v", err)
	}
	if len(p.Transactions) != 1 {
		t.Fatalf("pool len = %d, want 1 (replacement, not addition)", len(p.Transactions))
	}
	if p.Transactions[0].Signature != tx3.Signature {
		t.Fatal("pool should hold the higher-fee replacement")
	}
}

func TestAdmitTransactionRejectsDuplicateSignature(t *testing.T) {
	kp, _ := address.Generate()
	receiver, _ := address.Generate()
	view := newFakeView()
	view.balances[kp.Address()] = new(big.Int).Mul(big.NewInt(100), params.MinStake)

	tx := signedTx(t, kp, receiver.Address(), 1000, 10, 1)
	p := New()
	if err := p.AdmitTransaction(tx, view); err != nil {
		t.Fatalf("admit tx: %v", err)
	}
	if err := p.AdmitTransaction(tx, view); err == nil {
		t.Fatal("expected AlreadyPending for a duplicate signature")
	}
}

func TestPoolOverflowTrimsLowestFee(t *testing.T) {
	receiver, _ := address.Generate()
	view := newFakeView()
	p := New()

	for i := 0; i < params.PendingTransactionsLimit+5; i++ {
		kp, _ := address.Generate()
		view.balances[kp.Address()] = new(big.Int).Mul(big.NewInt(100), params.MinStake)
		tx := signedTx(t, kp, receiver.Address(), 1000, int64(i+1), uint32(i+1))
		if err := p.AdmitTransaction(tx, view); err != nil {
			t.Fatalf("admit tx %d: %v", i, err)
		}
	}

	if len(p.Transactions) != params.PendingTransactionsLimit {
		t.Fatalf("pool len = %d, want %d", len(p.Transactions), params.PendingTransactionsLimit)
	}
	// the five lowest fees (1..5) should have been trimmed
	for _, tx := range p.Transactions {
		if amount.FromBytes(tx.Fee).Cmp(big.NewInt(5)) <= 0 {
			t.Fatalf("low-fee transaction survived trimming: fee=%v", amount.FromBytes(tx.Fee))
		}
	}
}

func TestAdmitBlockRejectsDuplicateSignature(t *testing.T) {
	kp, _ := address.Generate()
	b := state.Block{PublicKey: kp.PublicKeyBytes()}
	sig, err := kp.Sign(b.Hash())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	b.Signature = sig

	p := New()
	if err := p.AdmitBlock(b); err != nil {
		t.Fatalf("admit block: %v", err)
	}
	if err := p.AdmitBlock(b); err == nil {
		t.Fatal("expected AlreadyPending for a duplicate block signature")
	}
}

func TestSortedTransactionsDescendingFee(t *testing.T) {
	receiver, _ := address.Generate()
	view := newFakeView()
	p := New()
	fees := []int64{5, 50, 1}
	for i, fee := range fees {
		kp, _ := address.Generate()
		view.balances[kp.Address()] = new(big.Int).Mul(big.NewInt(100), params.MinStake)
		tx := signedTx(t, kp, receiver.Address(), 1000, fee, uint32(i+1))
		if err := p.AdmitTransaction(tx, view); err != nil {
			t.Fatalf("admit: %v", err)
		}
	}
	sorted := p.SortedTransactions()
	for i := 1; i < len(sorted); i++ {
		if amount.FromBytes(sorted[i-1].Fee).Cmp(amount.FromBytes(sorted[i].Fee)) < 0 {
			t.Fatal("SortedTransactions must be non-increasing by fee")
		}
	}
}
