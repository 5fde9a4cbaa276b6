// Package relaycore implements the relay's state machine: MAC1
// verification, the key group registry, the session table and the
// datagram dispatcher that ties them together. This is the core the rest
// of the service (config, logging, metrics, transport) exists to serve.
package relaycore

import (
	"encoding/hex"
	"net/netip"
)

// Idx is a 4-byte session index chosen by a VPN peer. It carries no
// structure beyond equality and hashability, which is exactly what a Go
// array gives us for free as a map key.
type Idx [4]byte

// String renders the index the way relay logs want it: hex, no separators.
func (i Idx) String() string {
	return hex.EncodeToString(i[:])
}

// PubKey is a 32-byte Curve25519 public key as configured (base64 in,
// raw bytes at rest).
type PubKey [32]byte

// Addr is the transport address a session is currently reachable at.
// The zero value is not a valid address; use Addr.IsValid to test for
// the "None" case described in the spec (timed-out / not yet observed).
type Addr struct {
	netip.AddrPort
}

// NoAddr is the explicit "None" address.
var NoAddr = Addr{}
