package address

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/pea-chain/peacashd/internal/errs"
	"github.com/pea-chain/peacashd/internal/params"
)

// checksum is the first 4 bytes of SHA-256(b), appended to every text form
// so a single flipped character is caught on decode.
func checksum(b []byte) [params.ChecksumSize]byte {
	sum := sha256.Sum256(b)
	var out [params.ChecksumSize]byte
	copy(out[:], sum[:params.ChecksumSize])
	return out
}

// EncodeAddress renders a 20-byte address as "0x" + hex(bytes) +
// hex(checksum(bytes)).
func EncodeAddress(a [params.AddressSize]byte) string {
	return encodeChecksummed(params.PrefixAddress, a[:])
}

// DecodeAddress reverses EncodeAddress, failing with BadPrefix, BadHex,
// WrongLength, or ChecksumMismatch.
func DecodeAddress(s string) ([params.AddressSize]byte, error) {
	var out [params.AddressSize]byte
	b, err := decodeChecksummed(params.PrefixAddress, s, params.AddressSize)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

// EncodeSecretKey renders a 32-byte secret key as "SECRETx" + hex(bytes) +
// hex(checksum(bytes)).
func EncodeSecretKey(sk [params.SecretKeySize]byte) string {
	return encodeChecksummed(params.PrefixSecretKey, sk[:])
}

// DecodeSecretKey reverses EncodeSecretKey.
func DecodeSecretKey(s string) ([params.SecretKeySize]byte, error) {
	var out [params.SecretKeySize]byte
	b, err := decodeChecksummed(params.PrefixSecretKey, s, params.SecretKeySize)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func encodeChecksummed(prefix string, raw []byte) string {
	sum := checksum(raw)
	var sb strings.Builder
	sb.WriteString(prefix)
	sb.WriteString(hex.EncodeToString(raw))
	sb.WriteString(hex.EncodeToString(sum[:]))
	return sb.String()
}

func decodeChecksummed(prefix, s string, rawLen int) ([]byte, error) {
	if !strings.HasPrefix(s, prefix) {
		return nil, errs.New(errs.BadPrefix)
	}
	decoded, err := hex.DecodeString(strings.TrimPrefix(s, prefix))
	if err != nil {
		return nil, errs.Wrap(errs.BadHex, err)
	}
	if len(decoded) != rawLen+params.ChecksumSize {
		return nil, errs.New(errs.WrongLength)
	}
	raw := decoded[:rawLen]
	want := decoded[rawLen:]
	got := checksum(raw)
	if !bytesEqual(got[:], want) {
		return nil, errs.New(errs.ChecksumMismatch)
	}
	return raw, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
