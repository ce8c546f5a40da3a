package codec

import "testing"

func TestWriterReaderRoundTripsFixedUint32Byte(t *testing.T) {
	w := NewWriter()
	w.Fixed([]byte{1, 2, 3, 4}).Uint32(0xdeadbeef).Byte(0x7f)

	r := NewReader(w.Bytes())
	fixed, err := r.Fixed(4)
	if err != nil || string(fixed) != "\x01\x02\x03\x04" {
		t.Fatalf("Fixed = %v, %v", fixed, err)
	}
	u, err := r.Uint32()
	if err != nil || u != 0xdeadbeef {
		t.Fatalf("Uint32 = %x, %v", u, err)
	}
	b, err := r.Byte()
	if err != nil || b != 0x7f {
		t.Fatalf("Byte = %x, %v", b, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("Remaining = %d, want 0", r.Remaining())
	}
}

func TestCountRoundTripsLittleEndian(t *testing.T) {
	w := NewWriter()
	w.Count(3)
	raw := w.Bytes()
	if raw[0] != 3 || raw[1] != 0 {
		t.Fatalf("Count must encode little-endian, got %v", raw)
	}

	r := NewReader(raw)
	n, err := r.Count()
	if err != nil || n != 3 {
		t.Fatalf("Count = %d, %v", n, err)
	}
}

func TestReaderFailsOnLengthUnderrun(t *testing.T) {
	r := NewReader([]byte{1, 2})
	if _, err := r.Fixed(4); err == nil {
		t.Fatal("Fixed must fail when not enough bytes remain")
	}
	if _, err := NewReader([]byte{1, 2, 3}).Uint32(); err == nil {
		t.Fatal("Uint32 must fail on a 3-byte buffer")
	}
	if _, err := NewReader(nil).Count(); err == nil {
		t.Fatal("Count must fail on an empty buffer")
	}
}

func TestHashIsDeterministicAndSensitiveToInput(t *testing.T) {
	a := Hash([]byte("header-one"))
	b := Hash([]byte("header-one"))
	c := Hash([]byte("header-two"))
	if a != b {
		t.Fatal("Hash must be deterministic for identical input")
	}
	if a == c {
		t.Fatal("Hash must differ for different input")
	}
}
