// Package amount implements the 4-byte floor-compressed representation of
// a logical 128-bit unsigned amount: the low nibble of the last byte holds
// the number of significant bytes in x (its byte-shift), and the rest of
// the four bytes hold x's most-significant bytes, starting at its first
// non-zero byte. The round trip is lossy below the floor:
// FromBytes(ToBytes(x)) is always the largest representable value <= x.
package amount

import (
	"math/big"

	"github.com/pea-chain/peacashd/internal/params"
)

// maxUint128 bounds every on-wire amount to 128 bits.
var maxUint128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// ToBytes floors x into the 4-byte compressed form. x must fit in 128 bits;
// callers that accept amounts from untrusted input validate that first.
func ToBytes(x *big.Int) [params.AmountBytes]byte {
	var out [params.AmountBytes]byte
	if x.Sign() <= 0 {
		return out
	}
	full := make([]byte, 16)
	x.FillBytes(full)

	i := 0
	for i < 16 && full[i] == 0 {
		i++
	}
	size := 16 - i
	for j := 0; j < params.AmountBytes; j++ {
		k := i + j
		if k == 16 {
			break
		}
		out[j] = full[k]
	}
	out[params.AmountBytes-1] = (out[params.AmountBytes-1] & 0xf0) | byte(size)
	return out
}

// FromBytes expands the 4-byte compressed form back into a *big.Int.
func FromBytes(in [params.AmountBytes]byte) *big.Int {
	size := int(in[params.AmountBytes-1] & 0x0f)
	full := make([]byte, 16)
	for i := 0; i < params.AmountBytes; i++ {
		j := 16 - size + i
		if j >= 16 {
			break
		}
		if i == params.AmountBytes-1 {
			full[j] = in[i] & 0xf0
			break
		}
		full[j] = in[i]
	}
	return new(big.Int).SetBytes(full)
}

// Floor returns the largest value representable in the compressed form
// that is <= x. Round-tripping ToBytes/FromBytes always produces Floor(x).
func Floor(x *big.Int) *big.Int {
	return FromBytes(ToBytes(x))
}

// IsFloored reports whether x already equals Floor(x): the invariant every
// user-signed Transaction and Stake amount/fee must satisfy.
func IsFloored(x *big.Int) bool {
	return x.Cmp(Floor(x)) == 0
}

// Fits128 reports whether x is representable as an unsigned 128-bit
// integer, the precondition ToBytes requires.
func Fits128(x *big.Int) bool {
	return x.Sign() >= 0 && x.Cmp(maxUint128) <= 0
}
