// Package walletfile implements the minimal passphrase-encrypted secret
// key file of spec §6's `--wallet`/`--passphrase` contract: an scrypt KDF
// derives a 32-byte key from the passphrase and a stored salt, which
// seals the 32-byte secp256k1 secret under XChaCha20-Poly1305. Grounded
// on the teacher's own Encrypt/Decrypt wire form in core/security.go
// (nonce || ciphertext || tag), with scrypt substituted for a KDF where
// the teacher's file takes a raw key directly — a wallet file must derive
// its key from a human passphrase rather than assume one already has
// page-aligned 32 random bytes.
package walletfile

import (
	"crypto/rand"
	"encoding/json"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/scrypt"

	"github.com/pea-chain/peacashd/internal/errs"
	"github.com/pea-chain/peacashd/internal/params"
)

// scrypt cost parameters, chosen per the golang.org/x/crypto/scrypt docs'
// own "interactive login" recommendation (N=2^15) scaled up one notch
// since this key guards staked funds, not a login session.
const (
	scryptN = 1 << 16
	scryptR = 8
	scryptP = 1
)

const saltSize = 16

// file is the on-disk JSON envelope: salt for the KDF, and the sealed
// blob (nonce || ciphertext || tag) from the teacher's Encrypt wire form.
type file struct {
	Salt []byte `json:"salt"`
	Blob []byte `json:"blob"`
}

// Save encrypts secret under a key derived from passphrase and writes the
// JSON envelope to path.
func Save(path string, secret [params.SecretKeySize]byte, passphrase string) error {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return errs.Wrap(errs.MalformedBytes, err)
	}
	key, err := deriveKey(passphrase, salt)
	if err != nil {
		return err
	}

	blob, err := encrypt(key, secret[:])
	if err != nil {
		return err
	}

	raw, err := json.Marshal(file{Salt: salt, Blob: blob})
	if err != nil {
		return errs.Wrap(errs.MalformedBytes, err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return errs.Wrap(errs.StoreIO, err)
	}
	return nil
}

// Load reads and decrypts the secret key stored at path, failing with
// errs.BadSignature if passphrase is wrong (decryption authentication
// failure looks identical to a wrong key; there is no separate signal).
func Load(path, passphrase string) ([params.SecretKeySize]byte, error) {
	var out [params.SecretKeySize]byte
	raw, err := os.ReadFile(path)
	if err != nil {
		return out, errs.Wrap(errs.StoreIO, err)
	}
	var f file
	if err := json.Unmarshal(raw, &f); err != nil {
		return out, errs.Wrap(errs.MalformedBytes, err)
	}

	key, err := deriveKey(passphrase, f.Salt)
	if err != nil {
		return out, err
	}
	plain, err := decrypt(key, f.Blob)
	if err != nil {
		return out, errs.Wrap(errs.BadSignature, err)
	}
	if len(plain) != params.SecretKeySize {
		return out, errs.New(errs.WrongLength)
	}
	copy(out[:], plain)
	return out, nil
}

func deriveKey(passphrase string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, chacha20poly1305.KeySize)
	if err != nil {
		return nil, errs.Wrap(errs.MalformedBytes, err)
	}
	return key, nil
}

// encrypt returns nonce || ciphertext || tag using XChaCha20-Poly1305,
// the same wire form as the teacher's core/security.go Encrypt.
func encrypt(key, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errs.Wrap(errs.MalformedBytes, err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errs.Wrap(errs.MalformedBytes, err)
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

// decrypt reverses encrypt.
func decrypt(key, blob []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	minLen := chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(blob) < minLen {
		return nil, errs.New(errs.WrongLength)
	}
	nonce, ciphertext := blob[:chacha20poly1305.NonceSizeX], blob[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ciphertext, nil)
}
