package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mr-tron/base58"
)

func testKeypair(t *testing.T) Keypair {
	t.Helper()
	kp, err := NewKeypairFromSeed(bytes.Repeat([]byte{7}, ed25519.SeedSize))
	if err != nil {
		t.Fatalf("NewKeypairFromSeed: %v", err)
	}
	return kp
}

func TestParseKeypair_Base58(t *testing.T) {
	kp := testKeypair(t)

	parsed, err := ParseKeypair(kp.Base58())
	if err != nil {
		t.Fatalf("ParseKeypair: %v", err)
	}
	if parsed.PublicKey() != kp.PublicKey() {
		t.Errorf("public key mismatch: %s vs %s", parsed.PublicKey(), kp.PublicKey())
	}
}

func TestParseKeypair_JSONArray(t *testing.T) {
	kp := testKeypair(t)
	raw, _ := base58.Decode(kp.Base58())
	ints := make([]int, len(raw))
	for i, b := range raw {
		ints[i] = int(b)
	}
	data, _ := json.Marshal(ints)

	parsed, err := ParseKeypair(string(data))
	if err != nil {
		t.Fatalf("ParseKeypair: %v", err)
	}
	if parsed.PublicKey() != kp.PublicKey() {
		t.Error("public key mismatch")
	}
}

func TestParseKeypair_Invalid(t *testing.T) {
	kp := testKeypair(t)
	raw, _ := base58.Decode(kp.Base58())
	raw[40] ^= 0xff // corrupt the public half

	inputs := map[string]string{
		"empty":      "",
		"not base58": "0OIl",
		"short":      base58.Encode([]byte{1, 2, 3}),
		"mismatch":   base58.Encode(raw),
		"bad json":   "[1, 2,",
		"byte range": "[256]",
	}
	for name, in := range inputs {
		if _, err := ParseKeypair(in); !errors.Is(err, ErrInvalidKeypair) {
			t.Errorf("%s: expected ErrInvalidKeypair, got %v", name, err)
		}
	}
}

func TestParsePublicKey(t *testing.T) {
	pk, err := ParsePublicKey(WrappedSOLMint)
	if err != nil {
		t.Fatalf("ParsePublicKey: %v", err)
	}
	if pk.String() != WrappedSOLMint {
		t.Errorf("round trip mismatch: %s", pk)
	}

	if ValidAddress("abc") {
		t.Error("short address reported valid")
	}
	if _, err := ParsePublicKey("not-base58!"); !errors.Is(err, ErrInvalidAddress) {
		t.Errorf("expected ErrInvalidAddress, got %v", err)
	}
}

func TestPublicKey_IsOnCurve(t *testing.T) {
	if !testKeypair(t).PublicKey().IsOnCurve() {
		t.Error("wallet key must be on curve")
	}

	// Not every 32-byte string decodes to a curve point.
	found := false
	for i := 0; i < 256 && !found; i++ {
		var pk PublicKey
		pk[0] = byte(i)
		pk[31] = 0x7f
		for j := 1; j < 31; j++ {
			pk[j] = 0xff
		}
		found = !pk.IsOnCurve()
	}
	if !found {
		t.Error("expected some off-curve key")
	}
}

func TestKeypair_Sign(t *testing.T) {
	kp := testKeypair(t)
	msg := []byte("hello")
	sig := kp.Sign(msg)
	pk := kp.PublicKey()
	if !ed25519.Verify(pk[:], msg, sig) {
		t.Error("signature does not verify")
	}
	if kp.IsZero() || !(Keypair{}).IsZero() {
		t.Error("IsZero mismatch")
	}
}
