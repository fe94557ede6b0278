package crypto

import (
	"encoding/hex"
	"testing"
)

func hexToHash(t *testing.T, s string) Hash {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatalf("bad hex: %v", err)
	}
	var h Hash
	copy(h[:], b)
	return h
}

func TestSumHash(t *testing.T) {
	got := SumHash([]byte("hello"))
	again := SumHash([]byte("hello"))
	if got != again {
		t.Errorf("SumHash is not deterministic: %x != %x", got, again)
	}
}

func TestSumHash_DifferentInputs(t *testing.T) {
	h1 := SumHash([]byte("input A"))
	h2 := SumHash([]byte("input B"))
	if h1 == h2 {
		t.Error("different inputs produced the same hash")
	}
}

func TestHashConcat(t *testing.T) {
	a := SumHash([]byte("left"))
	b := SumHash([]byte("right"))
	result := HashConcat(a, b)

	if result == (Hash{}) {
		t.Error("HashConcat returned zero hash")
	}

	reversed := HashConcat(b, a)
	if result == reversed {
		t.Error("HashConcat(a,b) should differ from HashConcat(b,a)")
	}

	again := HashConcat(a, b)
	if result != again {
		t.Error("HashConcat is not deterministic")
	}
}

func TestHashConcat_EqualsManualConcat(t *testing.T) {
	a := SumHash([]byte("left"))
	b := SumHash([]byte("right"))

	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	want := SumHash(buf[:])

	got := HashConcat(a, b)
	if got != want {
		t.Errorf("HashConcat = %x, want %x", got, want)
	}
}

func TestHexToHash_Roundtrip(t *testing.T) {
	h := SumHash([]byte("roundtrip"))
	parsed, err := HexToHash(h.String())
	if err != nil {
		t.Fatalf("HexToHash() error: %v", err)
	}
	if parsed != h {
		t.Errorf("HexToHash(h.String()) = %x, want %x", parsed, h)
	}
}

func TestHexToHash_BadLength(t *testing.T) {
	if _, err := HexToHash("deadbeef"); err == nil {
		t.Error("expected error for short hex string")
	}
}

func TestShort(t *testing.T) {
	h := hexToHash(t, "af1349b9f5f9a1a6a0404dea36dcc9499bcb25c9adc112b7cc9a93cae41f3262")
	if got := h.Short(); got != "af1349b9" {
		t.Errorf("Short() = %q, want %q", got, "af1349b9")
	}
}
