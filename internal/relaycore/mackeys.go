package relaycore

import (
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/blake2s"
)

// macLabel is prepended to the raw public key before hashing, per the
// noise-protocol convention this relay's MAC1 verification piggybacks on.
var macLabel = []byte("mac1----")

// MacKey is the 32-byte output of BLAKE2s-256(label || pubkey), used to
// key the 16-byte MAC1 found on handshake initiation/response messages.
type MacKey [32]byte

// MacKeyTable maps each configured public key to its precomputed MAC key.
// Built once at startup from configuration and never mutated afterward
// (invariant I5).
type MacKeyTable struct {
	keys map[PubKey]MacKey
}

// DecodePubKey decodes a base64-encoded public key from configuration.
func DecodePubKey(b64 string) (PubKey, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return PubKey{}, fmt.Errorf("decode public key %q: %w", b64, err)
	}
	if len(raw) != 32 {
		return PubKey{}, fmt.Errorf("public key %q: want 32 bytes, got %d", b64, len(raw))
	}
	var pk PubKey
	copy(pk[:], raw)
	return pk, nil
}

// deriveMacKey computes BLAKE2s-256("mac1----" || pubkey).
func deriveMacKey(pk PubKey) (MacKey, error) {
	h, err := blake2s.New256(nil)
	if err != nil {
		return MacKey{}, err
	}
	h.Write(macLabel)
	h.Write(pk[:])
	var mk MacKey
	copy(mk[:], h.Sum(nil))
	return mk, nil
}

// NewMacKeyTable derives and stores a MAC key for every distinct public
// key in keys.
func NewMacKeyTable(keys []PubKey) (*MacKeyTable, error) {
	t := &MacKeyTable{keys: make(map[PubKey]MacKey, len(keys))}
	for _, pk := range keys {
		if _, exists := t.keys[pk]; exists {
			continue
		}
		mk, err := deriveMacKey(pk)
		if err != nil {
			return nil, fmt.Errorf("derive mac key: %w", err)
		}
		t.keys[pk] = mk
	}
	return t, nil
}

// FindKey performs a linear scan over configured keys, returning the
// first one whose MAC key verifies the datagram's MAC1. A handful of
// configured keys is the expected scale, so linear scan is intentional
// (see design notes on caching the last-matched key as an optional
// optimization not required for correctness).
func (t *MacKeyTable) FindKey(d []byte, mac1Offset int) (PubKey, bool) {
	for pk, mk := range t.keys {
		if VerifyMAC1(d, mac1Offset, mk) {
			return pk, true
		}
	}
	return PubKey{}, false
}
