package address

import (
	"crypto/sha256"
	"testing"
)

func TestGenerateProducesDistinctKeyPairs(t *testing.T) {
	a, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	b, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if a.Address() == b.Address() {
		t.Fatal("two calls to Generate must not collide")
	}
}

func TestFromSecretBytesReconstructsTheSameKeyPair(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	rebuilt := FromSecretBytes(kp.SecretKeyBytes())
	if rebuilt.Address() != kp.Address() {
		t.Fatal("FromSecretBytes must reproduce the original address")
	}
	if rebuilt.PublicKeyBytes() != kp.PublicKeyBytes() {
		t.Fatal("FromSecretBytes must reproduce the original public key")
	}
}

func TestAddressIsFirst20BytesOfPublicKeyHash(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	sum := sha256.Sum256(kp.Public.SerializeCompressed())
	var want [20]byte
	copy(want[:], sum[:20])
	if kp.Address() != want {
		t.Fatal("Address must be the first 20 bytes of SHA-256(compressed public key)")
	}
}

func TestSignThenRecoverReturnsTheSignerPublicKey(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	hash := sha256.Sum256([]byte("a message to sign"))

	sig, err := kp.Sign(hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	pub, err := Recover(hash, sig)
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if FromPublicKey(pub) != kp.Address() {
		t.Fatal("Recover must return the key pair that produced the signature")
	}
}

func TestRecoverFailsOnMalformedSignature(t *testing.T) {
	hash := sha256.Sum256([]byte("whatever"))
	var sig [64]byte // all-zero: r and s both invalid scalars
	if _, err := Recover(hash, sig); err == nil {
		t.Fatal("Recover must reject an all-zero signature")
	}
}

func TestSignIsDeterministicPerHashViaRFC6979(t *testing.T) {
	kp, err := Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	hash := sha256.Sum256([]byte("deterministic"))

	s1, err := kp.Sign(hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	s2, err := kp.Sign(hash)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if s1 != s2 {
		t.Fatal("RFC6979 nonce derivation must make Sign deterministic for a fixed hash")
	}
}
