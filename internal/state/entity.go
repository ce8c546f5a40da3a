// Package state defines the ledger entities (Transaction, Stake, Block) and
// the State type that applies a block's effects deterministically to the
// balance/staked/stakers bookkeeping, grounded on
// original_source/src/blockchain.rs's reward/set_balances/set_stakers logic.
package state

import (
	"math/big"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/pea-chain/peacashd/internal/address"
	"github.com/pea-chain/peacashd/internal/amount"
	"github.com/pea-chain/peacashd/internal/codec"
	"github.com/pea-chain/peacashd/internal/errs"
	"github.com/pea-chain/peacashd/internal/params"
	"github.com/pea-chain/peacashd/internal/vrf"
)

type Hash = [params.HashSize]byte
type AddressBytes = [params.AddressSize]byte
type PublicKeyBytes = [params.PublicKeySize]byte
type SignatureBytes = [params.SignatureSize]byte

// Transaction moves amount (plus fee) out of the address recovered from its
// signature and into output_address. The input address is never stored —
// it is recovered at validation time, per spec §9's "cross-crate
// divergence" resolution (the recovery variant is canonical; the older
// public-key-carrying variant in original_source/transaction/src/lib.rs is
// not reproduced).
type Transaction struct {
	OutputAddress AddressBytes
	Amount        [params.AmountBytes]byte
	Fee           [params.AmountBytes]byte
	Timestamp     uint32
	Signature     SignatureBytes
}

func (t Transaction) headerBytes() []byte {
	w := codec.NewWriter()
	w.Fixed(t.OutputAddress[:]).Fixed(t.Amount[:]).Fixed(t.Fee[:]).Uint32(t.Timestamp)
	return w.Bytes()
}

// Hash is SHA-256 of the canonical header (every field but the signature).
func (t Transaction) Hash() Hash {
	return codec.Hash(t.headerBytes())
}

// Encode renders the full wire/storage form, header followed by signature.
func (t Transaction) Encode() []byte {
	w := codec.NewWriter()
	w.Fixed(t.headerBytes()).Fixed(t.Signature[:])
	return w.Bytes()
}

// DecodeTransaction parses the form produced by Encode.
func DecodeTransaction(b []byte) (Transaction, error) {
	var t Transaction
	r := codec.NewReader(b)
	out, err := r.Fixed(params.AddressSize)
	if err != nil {
		return t, err
	}
	copy(t.OutputAddress[:], out)
	amt, err := r.Fixed(params.AmountBytes)
	if err != nil {
		return t, err
	}
	copy(t.Amount[:], amt)
	fee, err := r.Fixed(params.AmountBytes)
	if err != nil {
		return t, err
	}
	copy(t.Fee[:], fee)
	ts, err := r.Uint32()
	if err != nil {
		return t, err
	}
	t.Timestamp = ts
	sig, err := r.Fixed(params.SignatureSize)
	if err != nil {
		return t, err
	}
	copy(t.Signature[:], sig)
	return t, nil
}

// Recover recovers the secp256k1 public key that signed this transaction's
// header hash, with the recovery id pinned to 0 per spec §9.
func (t Transaction) Recover() (*secp256k1.PublicKey, error) {
	return address.Recover(t.Hash(), t.Signature)
}

// Validate checks the stand-alone invariants of §3/§7 that do not require
// chain context: positive floored amount and fee, self-transfer, and
// signature recoverability. Balance sufficiency is checked by the caller
// (PendingPools / State.append), which has access to the relevant balance.
func (t Transaction) Validate() (AddressBytes, error) {
	amt := amount.FromBytes(t.Amount)
	fee := amount.FromBytes(t.Fee)
	if amt.Sign() == 0 {
		return AddressBytes{}, errs.New(errs.ZeroAmount)
	}
	if fee.Sign() == 0 {
		return AddressBytes{}, errs.New(errs.ZeroFee)
	}
	if !amount.IsFloored(amt) || !amount.IsFloored(fee) {
		return AddressBytes{}, errs.New(errs.AmountNotFloored)
	}
	pub, err := t.Recover()
	if err != nil {
		return AddressBytes{}, errs.Wrap(errs.BadSignature, err)
	}
	var in AddressBytes
	in = address.FromPublicKey(pub)
	if in == t.OutputAddress {
		return AddressBytes{}, errs.New(errs.SelfTransfer)
	}
	return in, nil
}

// Stake deposits amount into, or withdraws amount from, the staked balance
// of the address that signed it. A fee of zero marks the cold-start
// genesis mint (spec §4.8); it is only legal on the first block.
type Stake struct {
	Amount    [params.AmountBytes]byte
	Fee       [params.AmountBytes]byte
	Deposit   bool
	Timestamp uint32
	Signature SignatureBytes
}

func (s Stake) headerBytes() []byte {
	w := codec.NewWriter()
	var dep byte
	if s.Deposit {
		dep = 1
	}
	w.Fixed(s.Amount[:]).Fixed(s.Fee[:]).Byte(dep).Uint32(s.Timestamp)
	return w.Bytes()
}

func (s Stake) Hash() Hash {
	return codec.Hash(s.headerBytes())
}

func (s Stake) Encode() []byte {
	w := codec.NewWriter()
	w.Fixed(s.headerBytes()).Fixed(s.Signature[:])
	return w.Bytes()
}

func DecodeStake(b []byte) (Stake, error) {
	var s Stake
	r := codec.NewReader(b)
	amt, err := r.Fixed(params.AmountBytes)
	if err != nil {
		return s, err
	}
	copy(s.Amount[:], amt)
	fee, err := r.Fixed(params.AmountBytes)
	if err != nil {
		return s, err
	}
	copy(s.Fee[:], fee)
	dep, err := r.Byte()
	if err != nil {
		return s, err
	}
	s.Deposit = dep != 0
	ts, err := r.Uint32()
	if err != nil {
		return s, err
	}
	s.Timestamp = ts
	sig, err := r.Fixed(params.SignatureSize)
	if err != nil {
		return s, err
	}
	copy(s.Signature[:], sig)
	return s, nil
}

func (s Stake) Recover() (*secp256k1.PublicKey, error) {
	return address.Recover(s.Hash(), s.Signature)
}

// IsGenesisMint reports the cold-start condition of spec §4.8: a deposit
// stake with fee == 0.
func (s Stake) IsGenesisMint() bool {
	return s.Deposit && amount.FromBytes(s.Fee).Sign() == 0
}

func (s Stake) Validate() (AddressBytes, error) {
	amt := amount.FromBytes(s.Amount)
	if amt.Sign() == 0 {
		return AddressBytes{}, errs.New(errs.ZeroAmount)
	}
	if !amount.IsFloored(amt) {
		return AddressBytes{}, errs.New(errs.AmountNotFloored)
	}
	if !s.IsGenesisMint() {
		fee := amount.FromBytes(s.Fee)
		if fee.Sign() == 0 {
			return AddressBytes{}, errs.New(errs.ZeroFee)
		}
		if !amount.IsFloored(fee) {
			return AddressBytes{}, errs.New(errs.AmountNotFloored)
		}
	}
	pub, err := s.Recover()
	if err != nil {
		return AddressBytes{}, errs.Wrap(errs.BadSignature, err)
	}
	return address.FromPublicKey(pub), nil
}

// Block is the unit of ledger replication: a VRF-elected proposer's batch of
// transactions and stakes, chained by previous_hash.
type Block struct {
	PreviousHash Hash
	Timestamp    uint32
	Pi           [params.PiSize]byte
	Transactions []Transaction
	Stakes       []Stake
	PublicKey    PublicKeyBytes
	// VRFPublicKey is the Ristretto255 public key Pi is verified against —
	// independent of PublicKey (the secp256k1 identity recovered for
	// address/reward purposes), since the VRF group and the signature
	// curve are different groups (see internal/vrf).
	VRFPublicKey [params.VRFPublicKeySize]byte
	Signature    SignatureBytes
}

func (b Block) headerBytes() []byte {
	w := codec.NewWriter()
	w.Fixed(b.PreviousHash[:]).Uint32(b.Timestamp).Fixed(b.Pi[:])
	w.Count(len(b.Transactions))
	for _, t := range b.Transactions {
		w.Fixed(t.Encode())
	}
	w.Count(len(b.Stakes))
	for _, s := range b.Stakes {
		w.Fixed(s.Encode())
	}
	w.Fixed(b.PublicKey[:])
	w.Fixed(b.VRFPublicKey[:])
	return w.Bytes()
}

// Hash is SHA-256 of every field but the signature.
func (b Block) Hash() Hash {
	return codec.Hash(b.headerBytes())
}

func (b Block) Encode() []byte {
	w := codec.NewWriter()
	w.Fixed(b.headerBytes()).Fixed(b.Signature[:])
	return w.Bytes()
}

func DecodeBlock(raw []byte) (Block, error) {
	var b Block
	r := codec.NewReader(raw)
	ph, err := r.Fixed(params.HashSize)
	if err != nil {
		return b, err
	}
	copy(b.PreviousHash[:], ph)
	ts, err := r.Uint32()
	if err != nil {
		return b, err
	}
	b.Timestamp = ts
	pi, err := r.Fixed(params.PiSize)
	if err != nil {
		return b, err
	}
	copy(b.Pi[:], pi)

	txCount, err := r.Count()
	if err != nil {
		return b, err
	}
	for i := 0; i < txCount; i++ {
		txLen := params.AddressSize + 2*params.AmountBytes + 4 + params.SignatureSize
		raw, err := r.Fixed(txLen)
		if err != nil {
			return b, err
		}
		tx, err := DecodeTransaction(raw)
		if err != nil {
			return b, err
		}
		b.Transactions = append(b.Transactions, tx)
	}

	stCount, err := r.Count()
	if err != nil {
		return b, err
	}
	for i := 0; i < stCount; i++ {
		stLen := 2*params.AmountBytes + 1 + 4 + params.SignatureSize
		raw, err := r.Fixed(stLen)
		if err != nil {
			return b, err
		}
		st, err := DecodeStake(raw)
		if err != nil {
			return b, err
		}
		b.Stakes = append(b.Stakes, st)
	}

	pk, err := r.Fixed(params.PublicKeySize)
	if err != nil {
		return b, err
	}
	copy(b.PublicKey[:], pk)
	vrfPk, err := r.Fixed(params.VRFPublicKeySize)
	if err != nil {
		return b, err
	}
	copy(b.VRFPublicKey[:], vrfPk)
	sig, err := r.Fixed(params.SignatureSize)
	if err != nil {
		return b, err
	}
	copy(b.Signature[:], sig)
	return b, nil
}

func (b Block) Recover() (*secp256k1.PublicKey, error) {
	return address.Recover(b.Hash(), b.Signature)
}

// AddressFromPublicKey derives the 20-byte address of a parsed public key.
func AddressFromPublicKey(pub *secp256k1.PublicKey) AddressBytes {
	return address.FromPublicKey(pub)
}

// AddressFromPublicKeyBytes parses a compressed public key and derives its
// address, used for the block proposer field (which, unlike transactions
// and stakes, does carry its public key on the wire).
func AddressFromPublicKeyBytes(b PublicKeyBytes) AddressBytes {
	pub, err := secp256k1.ParsePubKey(b[:])
	if err != nil {
		return AddressBytes{}
	}
	return address.FromPublicKey(pub)
}

// Beta extracts this block's VRF output (slot randomness) from its proof
// without verifying it against any particular alpha — gamma alone
// determines beta (see internal/vrf.Proof.Beta). Used by the block tree
// for fork tie-breaking, where every candidate's beta must be readable
// independent of the (possibly yet-unknown) chain it attaches to.
func (b Block) Beta() [params.BetaSize]byte {
	return vrf.ProofFromBytes(b.Pi).Beta()
}

// VerifyVRF checks pi against the block's public key over alpha =
// previous_beta, returning the resulting beta (slot randomness).
func (b Block) VerifyVRF(previousBeta [params.BetaSize]byte) ([params.BetaSize]byte, error) {
	proof := vrf.ProofFromBytes(b.Pi)
	beta := proof.Beta()
	if err := vrf.Verify(b.VRFPublicKey[:], previousBeta[:], beta, b.Pi); err != nil {
		return beta, err
	}
	return beta, nil
}

// rewardDivisor sets the per-block base issuance to MIN_STAKE / 1000,
// grounded on original_source/src/blockchain.rs's reward() shape: a fixed
// base reward scaled by the proposer's share of sum_stakes_now.
var rewardDivisor = big.NewInt(1000)

// Reward computes the block reward for a proposer with the given staked
// balance, proportional to their share of sum_stakes_now. Returns zero if
// nobody is staked yet (sumStakesNow == 0), since the share is undefined.
func Reward(stakedBalance, sumStakesNow *big.Int) *big.Int {
	base := new(big.Int).Div(params.MinStake, rewardDivisor)
	if sumStakesNow == nil || sumStakesNow.Sign() == 0 {
		return big.NewInt(0)
	}
	reward := new(big.Int).Mul(base, stakedBalance)
	reward.Div(reward, sumStakesNow)
	return amount.Floor(reward)
}
