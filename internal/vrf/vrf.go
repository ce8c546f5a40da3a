// Package vrf implements the prove/verify/hash-to-beta VRF used to elect a
// slot's block producer. It follows the Chaum-Pedersen discrete-log-equality
// construction of original_source/vrf/src/lib.rs over the Ristretto255
// group: H hashes alpha onto a group element with a wide (64-byte)
// reduction, H2 hashes a group element to 32 bytes with SHA-256.
package vrf

import (
	"crypto/rand"
	"crypto/sha256"

	"github.com/gtank/ristretto255"

	"github.com/pea-chain/peacashd/internal/errs"
	"github.com/pea-chain/peacashd/internal/params"
)

// randomBytes64 draws the witness scalar k. Prove is therefore randomized
// (as in original_source/vrf/src/lib.rs, which uses OsRng), not
// deterministic — the proof still verifies against the same alpha/beta/pi
// triple regardless of which k was drawn.
func randomBytes64() []byte {
	b := make([]byte, 64)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// Proof is the 96-byte (gamma, c, s) VRF proof.
type Proof struct {
	Gamma [32]byte
	C     [32]byte
	S     [32]byte
}

// ToBytes serializes the proof to its 96-byte wire form.
func (p Proof) ToBytes() [params.PiSize]byte {
	var out [params.PiSize]byte
	copy(out[0:32], p.Gamma[:])
	copy(out[32:64], p.C[:])
	copy(out[64:96], p.S[:])
	return out
}

// ProofFromBytes parses a 96-byte VRF proof.
func ProofFromBytes(b [params.PiSize]byte) Proof {
	var p Proof
	copy(p.Gamma[:], b[0:32])
	copy(p.C[:], b[32:64])
	copy(p.S[:], b[64:96])
	return p
}

// hashToPoint implements H: alpha -> group element, a uniform (wide) hash
// onto the curve so no alpha maps predictably near the identity.
func hashToPoint(alpha []byte) *ristretto255.Element {
	wide := sha512Like(alpha)
	el := ristretto255.NewElement()
	el.FromUniformBytes(wide)
	return el
}

// sha512Like stretches alpha to the 64 bytes Element.FromUniformBytes
// requires, via two chained SHA-256 passes (there is no SHA-512 elsewhere
// in this module worth pulling in crypto/sha512 for).
func sha512Like(alpha []byte) []byte {
	h1 := sha256.Sum256(alpha)
	h2 := sha256.Sum256(h1[:])
	out := make([]byte, 64)
	copy(out[:32], h1[:])
	copy(out[32:], h2[:])
	return out
}

// hashToScalarWide implements H2 restricted to the 32-byte Beta output:
// SHA-256 of the concatenated transcript.
func hashToScalarWide(parts ...[]byte) *ristretto255.Scalar {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	sum := h.Sum(nil)
	wide := make([]byte, 64)
	copy(wide, sum)
	s := ristretto255.NewScalar()
	s.FromUniformBytes(wide)
	return s
}

// betaOf hashes a gamma element to the 32-byte slot randomness.
func betaOf(gamma *ristretto255.Element) [params.BetaSize]byte {
	sum := sha256.Sum256(gamma.Encode(nil))
	return sum
}

// ScalarFromSeed derives a deterministic Ristretto255 scalar from seed via
// the same wide-reduction H2 used elsewhere in this package. Used to turn
// a node's long-term secret into a VRF secret key without needing a
// second independently-generated keypair on disk.
func ScalarFromSeed(seed []byte) *ristretto255.Scalar {
	return hashToScalarWide([]byte("peacash-vrf-key"), seed)
}

// PublicKeyFromScalar returns the 32-byte encoded public point G*sk for a
// VRF secret scalar, the form Verify's pkBytes argument expects.
func PublicKeyFromScalar(sk *ristretto255.Scalar) [32]byte {
	pub := ristretto255.NewElement().ScalarBaseMult(sk)
	var out [32]byte
	copy(out[:], pub.Encode(nil))
	return out
}

// Prove computes gamma = H(alpha)*sk and a Chaum-Pedersen proof that gamma
// is the Diffie-Hellman of H(alpha) and the public key G*sk, without
// revealing sk.
func Prove(alpha []byte, sk *ristretto255.Scalar) Proof {
	hp := hashToPoint(alpha)
	pub := ristretto255.NewElement().ScalarBaseMult(sk)
	gamma := ristretto255.NewElement().ScalarMult(sk, hp)

	k := ristretto255.NewScalar()
	k.FromUniformBytes(randomBytes64())

	kg := ristretto255.NewElement().ScalarBaseMult(k)
	kh := ristretto255.NewElement().ScalarMult(k, hp)

	c := hashToScalarWide(hp.Encode(nil), pub.Encode(nil), gamma.Encode(nil), kg.Encode(nil), kh.Encode(nil))

	s := ristretto255.NewScalar().Subtract(k, ristretto255.NewScalar().Multiply(c, sk))

	var proof Proof
	copy(proof.Gamma[:], gamma.Encode(nil))
	copy(proof.C[:], c.Encode(nil))
	copy(proof.S[:], s.Encode(nil))
	return proof
}

// Beta returns the 32-byte slot randomness a Proof commits to.
func (p Proof) Beta() [params.BetaSize]byte {
	gamma := ristretto255.NewElement()
	if err := gamma.Decode(p.Gamma[:]); err != nil {
		var zero [params.BetaSize]byte
		return zero
	}
	return betaOf(gamma)
}

// Verify checks that pi proves beta is the VRF output of alpha under the
// public key encoded by pkBytes (a Ristretto255 public point, not a
// secp256k1 key — the VRF key and the signing key are independent).
func Verify(pkBytes []byte, alpha []byte, beta [params.BetaSize]byte, pi [params.PiSize]byte) error {
	pub := ristretto255.NewElement()
	if err := pub.Decode(pkBytes); err != nil {
		return errs.Wrap(errs.BadVRF, err)
	}
	proof := ProofFromBytes(pi)

	gamma := ristretto255.NewElement()
	if err := gamma.Decode(proof.Gamma[:]); err != nil {
		return errs.Wrap(errs.BadVRF, err)
	}
	if betaOf(gamma) != beta {
		return errs.New(errs.BadVRF)
	}

	c := ristretto255.NewScalar()
	if err := c.Decode(proof.C[:]); err != nil {
		return errs.Wrap(errs.BadVRF, err)
	}
	s := ristretto255.NewScalar()
	if err := s.Decode(proof.S[:]); err != nil {
		return errs.Wrap(errs.BadVRF, err)
	}

	hp := hashToPoint(alpha)

	// U = pub*c + G*s
	u := ristretto255.NewElement().Add(
		ristretto255.NewElement().ScalarMult(c, pub),
		ristretto255.NewElement().ScalarBaseMult(s),
	)
	// V = gamma*c + H(alpha)*s
	v := ristretto255.NewElement().Add(
		ristretto255.NewElement().ScalarMult(c, gamma),
		ristretto255.NewElement().ScalarMult(s, hp),
	)

	cCheck := hashToScalarWide(hp.Encode(nil), pub.Encode(nil), gamma.Encode(nil), u.Encode(nil), v.Encode(nil))
	if !scalarEqual(cCheck, c) {
		return errs.New(errs.BadVRF)
	}
	return nil
}

func scalarEqual(a, b *ristretto255.Scalar) bool {
	ae, be := a.Encode(nil), b.Encode(nil)
	if len(ae) != len(be) {
		return false
	}
	for i := range ae {
		if ae[i] != be[i] {
			return false
		}
	}
	return true
}
