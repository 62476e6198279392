package solana

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

// Transaction errors.
var (
	ErrMalformedTx    = errors.New("malformed transaction")
	ErrSignerNotFound = errors.New("signer not among required signers")
	ErrTxFailed       = errors.New("transaction failed on chain")
	ErrTxNotConfirmed = errors.New("transaction not confirmed")
)

// SignTransaction signs a serialized (legacy or v0) transaction in place of
// k's signature slot and returns the base64 result together with the
// transaction signature.
func SignTransaction(txBase64 string, k Keypair) (signed string, signature string, err error) {
	raw, err := base64.StdEncoding.DecodeString(txBase64)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedTx, err)
	}

	numSigs, n, err := decodeShortVec(raw)
	if err != nil {
		return "", "", err
	}
	sigStart := n
	msgStart := sigStart + numSigs*ed25519.SignatureSize
	if numSigs == 0 || len(raw) <= msgStart {
		return "", "", fmt.Errorf("%w: %d signatures, %d bytes", ErrMalformedTx, numSigs, len(raw))
	}
	msg := raw[msgStart:]

	keys, err := signerKeys(msg, numSigs)
	if err != nil {
		return "", "", err
	}
	pk := k.PublicKey()
	idx := -1
	for i, key := range keys {
		if key == pk {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", "", ErrSignerNotFound
	}

	sig := k.Sign(msg)
	copy(raw[sigStart+idx*ed25519.SignatureSize:], sig)

	// The first signature identifies the transaction.
	first := raw[sigStart : sigStart+ed25519.SignatureSize]
	return base64.StdEncoding.EncodeToString(raw), base58.Encode(first), nil
}

// signerKeys returns the first numSigs account keys of a message.
func signerKeys(msg []byte, numSigs int) ([]PublicKey, error) {
	off := 0
	if msg[0]&0x80 != 0 { // versioned message prefix
		off++
	}
	off += 3 // header: required sigs, readonly signed, readonly unsigned
	if len(msg) < off {
		return nil, fmt.Errorf("%w: short message header", ErrMalformedTx)
	}

	numKeys, n, err := decodeShortVec(msg[off:])
	if err != nil {
		return nil, err
	}
	off += n
	if numKeys < numSigs || len(msg) < off+numKeys*PublicKeySize {
		return nil, fmt.Errorf("%w: %d account keys", ErrMalformedTx, numKeys)
	}

	keys := make([]PublicKey, numSigs)
	for i := range keys {
		copy(keys[i][:], msg[off+i*PublicKeySize:])
	}
	return keys, nil
}

// decodeShortVec decodes Solana's compact-u16 length prefix.
func decodeShortVec(b []byte) (value, size int, err error) {
	for size < 3 {
		if size >= len(b) {
			return 0, 0, fmt.Errorf("%w: truncated length prefix", ErrMalformedTx)
		}
		v := b[size]
		value |= int(v&0x7f) << (7 * size)
		size++
		if v&0x80 == 0 {
			return value, size, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: length prefix too long", ErrMalformedTx)
}

// StatusGetter reports transaction signature statuses.
type StatusGetter interface {
	GetSignatureStatuses(ctx context.Context, signatures []string) ([]*SignatureStatus, error)
}

// WaitForConfirmation polls signature status until it is confirmed, fails,
// or ctx is done.
func WaitForConfirmation(ctx context.Context, rpc StatusGetter, signature string, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		statuses, err := rpc.GetSignatureStatuses(ctx, []string{signature})
		if err == nil && len(statuses) == 1 && statuses[0] != nil {
			st := statuses[0]
			if st.Err != nil {
				return fmt.Errorf("%w: %v", ErrTxFailed, st.Err)
			}
			if st.Confirmed() {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrTxNotConfirmed, signature, ctx.Err())
		case <-ticker.C:
		}
	}
}
