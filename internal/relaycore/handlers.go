package relaycore

import (
	"encoding/base64"
	"time"

	"github.com/hurzhurz/wg-bridge/internal/metrics"
	"github.com/hurzhurz/wg-bridge/internal/wireformat"
)

// handleInitiation implements spec §4.4 "Handshake initiation (type 1)".
func (d *Dispatcher) handleInitiation(data []byte, from Addr) {
	sender := Idx(wireformat.Sender(data))

	if s, exists := d.sessions.Get(sender); exists && s.Established() {
		d.metrics.PacketsTotal.WithLabelValues("initiation", metrics.OutcomeDroppedCollision).Inc()
		return
	}

	offset, _ := wireformat.MAC1Offset(wireformat.TypeHandshakeInitiation)
	key, ok := d.macKeys.FindKey(data, offset)
	if !ok {
		d.metrics.PacketsTotal.WithLabelValues("initiation", metrics.OutcomeDroppedMAC).Inc()
		return
	}

	d.sessions.Set(sender, &Session{Addr: from, Peer: nil, Last: time.Now()})

	// Collect every other peer index across every group the matched key
	// belongs to, then forward to their addresses (deduplicated, source
	// address excluded). Registering sender in every matching group,
	// even ones it may later also reach through a different key, is
	// deliberate multi-group rendezvous behavior (see design notes).
	targets := make(map[Addr]struct{})
	for _, g := range d.registry.GroupsContainingKey(key) {
		for peer := range g.Peers {
			if peer == sender {
				continue
			}
			if ps, exists := d.sessions.Get(peer); exists {
				targets[ps.Addr] = struct{}{}
			}
		}
		g.AddPeer(sender)
	}
	delete(targets, from)

	d.log.Info().
		Str("sender", sender.String()).
		Str("key", base64.StdEncoding.EncodeToString(key[:])).
		Str("from", from.String()).
		Int("targets", len(targets)).
		Msg("handshake initiation accepted")

	for target := range targets {
		d.send(target, data)
	}
	d.metrics.PacketsTotal.WithLabelValues("initiation", metrics.OutcomeForwarded).Inc()
}

// handleInitiationResponse implements spec §4.4 "Handshake
// initiation-response (type 2)".
func (d *Dispatcher) handleInitiationResponse(data []byte, from Addr) {
	sender := Idx(wireformat.Sender(data))
	receiver := Idx(wireformat.Receiver(data))

	if s, exists := d.sessions.Get(sender); exists && s.Established() {
		d.metrics.PacketsTotal.WithLabelValues("response", metrics.OutcomeDroppedCollision).Inc()
		return
	}
	receiverSession, exists := d.sessions.Get(receiver)
	if !exists || receiverSession.Established() {
		d.metrics.PacketsTotal.WithLabelValues("response", metrics.OutcomeDroppedUnknown).Inc()
		return
	}

	offset, _ := wireformat.MAC1Offset(wireformat.TypeHandshakeResponse)
	key, ok := d.macKeys.FindKey(data, offset)
	if !ok {
		d.metrics.PacketsTotal.WithLabelValues("response", metrics.OutcomeDroppedMAC).Inc()
		return
	}

	// The matched key must belong to a group that also already lists
	// receiver among its peers — otherwise an initiator in one group
	// could be completed by a responder with no shared permission group.
	if !d.registry.AnyGroupHasKeyAndPeer(key, receiver) {
		d.metrics.PacketsTotal.WithLabelValues("response", metrics.OutcomeDroppedPolicy).Inc()
		return
	}

	now := time.Now()
	d.sessions.Set(sender, &Session{Addr: from, Peer: &receiver, Last: now})
	receiverSession.Peer = &sender

	d.log.Info().
		Str("sender", sender.String()).
		Str("receiver", receiver.String()).
		Str("key", base64.StdEncoding.EncodeToString(key[:])).
		Msg("session established")

	d.send(receiverSession.Addr, data)
	d.metrics.SessionsEstablishedTotal.Inc()
	d.metrics.PacketsTotal.WithLabelValues("response", metrics.OutcomeForwarded).Inc()
}

// handleCookieReply implements spec §4.4 "Cookie reply (type 3)". No MAC
// verification is performed — cookie replies are authenticated under a
// different key the relay never sees, and legitimately arrive from any
// responder in the group. This is a preserved open question, not a gap.
func (d *Dispatcher) handleCookieReply(data []byte, from Addr) {
	receiver := Idx(wireformat.Sender(data)) // bytes 4:8 carry the receiver on a cookie reply

	s, exists := d.sessions.Get(receiver)
	if !exists || s.Established() {
		d.metrics.PacketsTotal.WithLabelValues("cookie_reply", metrics.OutcomeDroppedUnknown).Inc()
		return
	}

	d.log.Info().
		Str("receiver", receiver.String()).
		Str("from", from.String()).
		Msg("cookie reply forwarded")

	d.send(s.Addr, data)
	d.metrics.PacketsTotal.WithLabelValues("cookie_reply", metrics.OutcomeForwarded).Inc()
}

// handleTransport implements spec §4.4 "Transport (type 4, data/keepalive)".
func (d *Dispatcher) handleTransport(data []byte, from Addr) {
	receiver := Idx(wireformat.Sender(data)) // on a transport frame, bytes 4:8 carry the receiver's index

	receiverSession, exists := d.sessions.Get(receiver)
	if !exists || !receiverSession.Established() {
		d.metrics.PacketsTotal.WithLabelValues("transport", metrics.OutcomeDroppedUnknown).Inc()
		return
	}

	// The relay trusts the source address of any authenticated-channel
	// transport frame for the paired index — this is how NAT rebinding
	// on either side is learned.
	senderIdx := *receiverSession.Peer
	if senderSession, ok := d.sessions.Get(senderIdx); ok {
		senderSession.Addr = from
		senderSession.Last = time.Now()
	}

	if !receiverSession.Addr.IsValid() {
		d.metrics.PacketsTotal.WithLabelValues("transport", metrics.OutcomeDroppedTimedOut).Inc()
		return
	}

	d.send(receiverSession.Addr, data)
	d.metrics.PacketsTotal.WithLabelValues("transport", metrics.OutcomeForwarded).Inc()
}
