package solana

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// AssociatedTokenProgramID owns associated token accounts.
const AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"

// ErrNoViableBump is returned when no bump seed yields an off-curve address.
var ErrNoViableBump = errors.New("solana: no viable bump seed")

const maxSeedLen = 32

// FindProgramAddress derives the canonical program address for seeds,
// trying bump seeds from 255 down.
func FindProgramAddress(seeds [][]byte, program PublicKey) (PublicKey, uint8, error) {
	for _, s := range seeds {
		if len(s) > maxSeedLen {
			return PublicKey{}, 0, fmt.Errorf("seed longer than %d bytes", maxSeedLen)
		}
	}
	for bump := 255; bump >= 0; bump-- {
		h := sha256.New()
		for _, s := range seeds {
			h.Write(s)
		}
		h.Write([]byte{byte(bump)})
		h.Write(program[:])
		h.Write([]byte("ProgramDerivedAddress"))

		var pk PublicKey
		copy(pk[:], h.Sum(nil))
		if !pk.IsOnCurve() {
			return pk, uint8(bump), nil
		}
	}
	return PublicKey{}, 0, ErrNoViableBump
}

// BondingCurveAddress returns the pump.fun bonding curve account of mint.
func BondingCurveAddress(mint PublicKey) (PublicKey, error) {
	program, err := ParsePublicKey(PumpFunProgram)
	if err != nil {
		return PublicKey{}, err
	}
	pk, _, err := FindProgramAddress([][]byte{[]byte("bonding-curve"), mint[:]}, program)
	return pk, err
}

// AssociatedTokenAddress returns the associated token account of owner for mint.
func AssociatedTokenAddress(owner, mint PublicKey) (PublicKey, error) {
	tokenProgram, err := ParsePublicKey(TokenProgramID)
	if err != nil {
		return PublicKey{}, err
	}
	ata, err := ParsePublicKey(AssociatedTokenProgramID)
	if err != nil {
		return PublicKey{}, err
	}
	pk, _, err := FindProgramAddress([][]byte{owner[:], tokenProgram[:], mint[:]}, ata)
	return pk, err
}
