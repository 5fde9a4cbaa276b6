package relaycore

import (
	"crypto/subtle"

	"github.com/hurzhurz/wg-bridge/internal/wireformat"
	"golang.org/x/crypto/blake2s"
)

// VerifyMAC1 recomputes MAC1 over the canonical message (header with
// reserved bytes cleared, then the body up to the MAC1 region) and
// compares it against the MAC1 carried in the datagram, in constant
// time. The keys authenticating MAC1 are not secret, but there is no
// reason to leak timing information about which configured key matched.
func VerifyMAC1(d []byte, mac1Offset int, key MacKey) bool {
	if len(d) < mac1Offset+wireformat.MAC1Size {
		return false
	}

	canonical := wireformat.CanonicalMAC1Message(d, mac1Offset)

	h, err := blake2s.New128(key[:])
	if err != nil {
		return false
	}
	h.Write(canonical)
	computed := h.Sum(nil)

	carried := d[mac1Offset : mac1Offset+wireformat.MAC1Size]
	return subtle.ConstantTimeCompare(computed, carried) == 1
}
