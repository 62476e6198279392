package solana

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"github.com/mr-tron/base58"
)

// SPL mint account layout.
const (
	mintAccountSize       = 82
	mintAuthorityOffset   = 0
	mintSupplyOffset      = 36
	mintDecimalsOffset    = 44
	mintInitializedOffset = 45
	freezeAuthorityOffset = 46
)

// MintInfo is a decoded SPL mint account.
type MintInfo struct {
	MintAuthority   string // empty when revoked
	FreezeAuthority string // empty when revoked
	Supply          uint64
	Decimals        uint8
	Initialized     bool
}

// ParseMintAccount decodes base64 SPL mint account data.
func ParseMintAccount(data string) (*MintInfo, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode mint data: %w", err)
	}
	if len(raw) < mintAccountSize {
		return nil, fmt.Errorf("mint data too short: %d", len(raw))
	}

	return &MintInfo{
		MintAuthority:   optionalKey(raw[mintAuthorityOffset:]),
		FreezeAuthority: optionalKey(raw[freezeAuthorityOffset:]),
		Supply:          binary.LittleEndian.Uint64(raw[mintSupplyOffset:]),
		Decimals:        raw[mintDecimalsOffset],
		Initialized:     raw[mintInitializedOffset] == 1,
	}, nil
}

// optionalKey decodes a COption<Pubkey>: u32 tag followed by 32 bytes.
func optionalKey(b []byte) string {
	if binary.LittleEndian.Uint32(b) == 0 {
		return ""
	}
	return base58.Encode(b[4 : 4+PublicKeySize])
}
