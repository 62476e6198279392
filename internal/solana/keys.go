package solana

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// PublicKeySize is the length of a Solana address in bytes.
const PublicKeySize = 32

// Key errors.
var (
	ErrInvalidAddress = errors.New("invalid solana address")
	ErrInvalidKeypair = errors.New("invalid keypair")
)

// PublicKey is a 32-byte Solana address.
type PublicKey [PublicKeySize]byte

// ParsePublicKey decodes a base58 address.
func ParsePublicKey(s string) (PublicKey, error) {
	var pk PublicKey
	raw, err := base58.Decode(s)
	if err != nil {
		return pk, fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	if len(raw) != PublicKeySize {
		return pk, fmt.Errorf("%w: %d bytes", ErrInvalidAddress, len(raw))
	}
	copy(pk[:], raw)
	return pk, nil
}

// String returns the base58 form.
func (pk PublicKey) String() string {
	return base58.Encode(pk[:])
}

// IsOnCurve reports whether the key is a valid ed25519 point. Program
// derived addresses are off the curve; wallet and mint keys are on it.
func (pk PublicKey) IsOnCurve() bool {
	_, err := new(edwards25519.Point).SetBytes(pk[:])
	return err == nil
}

// ValidAddress reports whether s decodes to a 32-byte address.
func ValidAddress(s string) bool {
	_, err := ParsePublicKey(s)
	return err == nil
}

// Keypair is an ed25519 signing key.
type Keypair struct {
	priv ed25519.PrivateKey
}

// ParseKeypair accepts a base58 64-byte secret key (Phantom export) or a
// JSON byte array (solana-keygen file contents).
func ParseKeypair(s string) (Keypair, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Keypair{}, fmt.Errorf("%w: empty", ErrInvalidKeypair)
	}

	var raw []byte
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return Keypair{}, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return Keypair{}, fmt.Errorf("%w: byte %d out of range", ErrInvalidKeypair, i)
			}
			raw[i] = byte(v)
		}
	} else {
		var err error
		if raw, err = base58.Decode(s); err != nil {
			return Keypair{}, fmt.Errorf("%w: %v", ErrInvalidKeypair, err)
		}
	}

	if len(raw) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("%w: %d bytes", ErrInvalidKeypair, len(raw))
	}

	// The trailing 32 bytes must be the public key of the seed.
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return Keypair{}, fmt.Errorf("%w: public key does not match seed", ErrInvalidKeypair)
	}
	return Keypair{priv: derived}, nil
}

// NewKeypairFromSeed derives a keypair from a 32-byte seed.
func NewKeypairFromSeed(seed []byte) (Keypair, error) {
	if len(seed) != ed25519.SeedSize {
		return Keypair{}, fmt.Errorf("%w: seed is %d bytes", ErrInvalidKeypair, len(seed))
	}
	return Keypair{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// PublicKey returns the wallet address.
func (k Keypair) PublicKey() PublicKey {
	var pk PublicKey
	copy(pk[:], k.priv[ed25519.SeedSize:])
	return pk
}

// Sign signs msg.
func (k Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.priv, msg)
}

// IsZero reports whether the keypair is unset.
func (k Keypair) IsZero() bool {
	return len(k.priv) == 0
}

// Base58 returns the 64-byte secret key in base58.
func (k Keypair) Base58() string {
	return base58.Encode(k.priv)
}
