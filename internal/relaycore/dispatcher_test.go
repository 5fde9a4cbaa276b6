package relaycore

import (
	"testing"
	"time"
)

func TestSingleGroupRendezvous(t *testing.T) {
	ka, kb := pubKey(0xAA), pubKey(0xBB)
	aIdx, bIdx := [4]byte{0x11, 0x11, 0x11, 0x11}, [4]byte{0x22, 0x22, 0x22, 0x22}
	a, b := mustAddr("10.0.0.1:51820"), mustAddr("10.0.0.2:51820")

	d, sender := newTestDispatcher([][]PubKey{{ka, kb}})

	// A initiates with a MAC valid under KB: group is empty of other
	// peers, so nothing is forwarded yet.
	d.HandleDatagram(buildInitiation(aIdx, kb), a)
	if len(sender.out) != 0 {
		t.Fatalf("expected no forwards on first initiation, got %d", len(sender.out))
	}

	// B initiates with a MAC valid under KA: relay forwards to A.
	d.HandleDatagram(buildInitiation(bIdx, ka), b)
	if got := sender.sentTo(a); len(got) != 1 {
		t.Fatalf("expected B's initiation forwarded to A, got %d sends", len(got))
	}

	// A responds, pairing with B; relay forwards to B and marks established.
	d.HandleDatagram(buildResponse(aIdx, bIdx, ka), a)
	if got := sender.sentTo(b); len(got) != 1 {
		t.Fatalf("expected response forwarded to B, got %d sends", len(got))
	}
	bs, ok := d.sessions.Get(bIdx)
	if !ok || !bs.Established() {
		t.Fatalf("expected B's session established")
	}

	// A subsequent type-4 from B with receiver aIdx is forwarded to A, which
	// has then received B's initiation and this transport frame.
	d.HandleDatagram(buildTransport(aIdx, []byte("hello")), b)
	got := sender.sentTo(a)
	if len(got) != 2 {
		t.Fatalf("expected initiation and transport forwarded to A, got %d sends", len(got))
	}
}

func TestCrossGroupIsolation(t *testing.T) {
	ka, kb, kc := pubKey(0xAA), pubKey(0xBB), pubKey(0xCC)
	aIdx, bIdx, cIdx := [4]byte{1}, [4]byte{2}, [4]byte{3}
	a, b, c := mustAddr("10.0.0.1:1"), mustAddr("10.0.0.2:1"), mustAddr("10.0.0.3:1")

	d, sender := newTestDispatcher([][]PubKey{{ka, kb}, {ka, kc}})

	d.HandleDatagram(buildInitiation(bIdx, ka), b)
	d.HandleDatagram(buildInitiation(cIdx, ka), c)
	d.HandleDatagram(buildInitiation(aIdx, kb), a)

	// B receives C's initiation (KA is in both groups) as well as A's.
	if got := sender.sentTo(b); len(got) != 2 {
		t.Fatalf("expected C's and A's initiations forwarded to B, got %d", len(got))
	}
	if got := sender.sentTo(c); len(got) != 0 {
		t.Fatalf("expected A's initiation NOT forwarded to C, got %d", len(got))
	}
}

func TestNATRebinding(t *testing.T) {
	ka, kb := pubKey(0xAA), pubKey(0xBB)
	aIdx, bIdx := [4]byte{1}, [4]byte{2}
	a, b := mustAddr("10.0.0.1:1"), mustAddr("10.0.0.2:1")
	bNew := mustAddr("10.0.0.2:40000")

	d, sender := newTestDispatcher([][]PubKey{{ka, kb}})
	d.HandleDatagram(buildInitiation(aIdx, kb), a)
	d.HandleDatagram(buildInitiation(bIdx, ka), b)
	d.HandleDatagram(buildResponse(aIdx, bIdx, ka), a)

	// B rebinds to a new port and sends a transport frame naming A as receiver.
	d.HandleDatagram(buildTransport(aIdx, nil), bNew)

	bs, _ := d.sessions.Get(bIdx)
	if bs.Addr != bNew {
		t.Fatalf("expected B's session address updated to %v, got %v", bNew, bs.Addr)
	}

	// Next type-4 from A to bIdx is sent to B's new address.
	d.HandleDatagram(buildTransport(bIdx, nil), a)
	if got := sender.sentTo(bNew); len(got) == 0 {
		t.Fatalf("expected frame forwarded to B's rebound address")
	}
}

func TestInitiationTimeout(t *testing.T) {
	ka, kb := pubKey(0xAA), pubKey(0xBB)
	aIdx := [4]byte{1}
	a := mustAddr("10.0.0.1:1")

	d, _ := newTestDispatcher([][]PubKey{{ka, kb}})
	d.HandleDatagram(buildInitiation(aIdx, kb), a)

	if _, ok := d.sessions.Get(aIdx); !ok {
		t.Fatalf("expected session to exist right after initiation")
	}

	d.runExpirySweep(time.Now().Add(11 * time.Second))

	if _, ok := d.sessions.Get(aIdx); ok {
		t.Fatalf("expected initiator session to be gone after timeout")
	}

	// A type-2 claiming receiver = aIdx is now dropped (receiver unknown).
	d.HandleDatagram(buildResponse([4]byte{9}, aIdx, ka), mustAddr("10.0.0.9:1"))
	if bs, ok := d.sessions.Get(aIdx); ok {
		t.Fatalf("receiver should still be absent, got %+v", bs)
	}
}

func TestEstablishedHalfTimeout(t *testing.T) {
	ka, kb := pubKey(0xAA), pubKey(0xBB)
	aIdx, bIdx := [4]byte{1}, [4]byte{2}
	a, b := mustAddr("10.0.0.1:1"), mustAddr("10.0.0.2:1")

	d, sender := newTestDispatcher([][]PubKey{{ka, kb}})
	d.HandleDatagram(buildInitiation(aIdx, kb), a)
	d.HandleDatagram(buildInitiation(bIdx, ka), b)
	d.HandleDatagram(buildResponse(aIdx, bIdx, ka), a)

	// A goes silent for 61s: sweep clears A's address.
	d.runExpirySweep(time.Now().Add(61 * time.Second))
	as, ok := d.sessions.Get(aIdx)
	if !ok || as.Addr.IsValid() {
		t.Fatalf("expected A's address cleared by half-timeout")
	}

	// B sends a transport frame naming A as receiver: B's own entry
	// updates, but the outbound to A is dropped because A has no address.
	d.HandleDatagram(buildTransport(aIdx, nil), b)
	if got := sender.sentTo(a); len(got) != 0 {
		t.Fatalf("expected no forward to timed-out A, got %d", len(got))
	}
	bs, _ := d.sessions.Get(bIdx)
	if bs.Addr != b {
		t.Fatalf("expected B's session address still tracked")
	}

	// A comes back: its next transport frame restores its address via B's
	// paired-update path.
	d.HandleDatagram(buildTransport(bIdx, nil), a)
	as, _ = d.sessions.Get(aIdx)
	if as.Addr != a {
		t.Fatalf("expected A's address restored, got %v", as.Addr)
	}
}

func TestMACRejection(t *testing.T) {
	ka, kb, kx := pubKey(0xAA), pubKey(0xBB), pubKey(0xFF)
	aIdx := [4]byte{1}
	a := mustAddr("10.0.0.1:1")

	d, sender := newTestDispatcher([][]PubKey{{ka, kb}})
	d.HandleDatagram(buildInitiation(aIdx, kx), a)

	if _, ok := d.sessions.Get(aIdx); ok {
		t.Fatalf("expected no session created for unconfigured key")
	}
	if len(sender.out) != 0 {
		t.Fatalf("expected nothing forwarded")
	}
	for _, g := range d.registry.Groups {
		if g.HasPeer(aIdx) {
			t.Fatalf("expected group peers unchanged")
		}
	}
}

func TestCookieReplyForwardedWithoutMAC(t *testing.T) {
	ka, kb := pubKey(0xAA), pubKey(0xBB)
	aIdx := [4]byte{1}
	a := mustAddr("10.0.0.1:1")

	d, sender := newTestDispatcher([][]PubKey{{ka, kb}})
	d.HandleDatagram(buildInitiation(aIdx, kb), a)

	d.HandleDatagram(buildCookieReply(aIdx), mustAddr("10.0.0.9:1"))
	if got := sender.sentTo(a); len(got) != 1 {
		t.Fatalf("expected cookie reply forwarded to initiator, got %d", len(got))
	}
}

func TestRepeatedInitiationIsIdempotent(t *testing.T) {
	ka, kb := pubKey(0xAA), pubKey(0xBB)
	aIdx := [4]byte{1}
	a := mustAddr("10.0.0.1:1")

	d, _ := newTestDispatcher([][]PubKey{{ka, kb}})
	d.HandleDatagram(buildInitiation(aIdx, kb), a)
	first, _ := d.sessions.Get(aIdx)
	firstLast := first.Last

	time.Sleep(time.Millisecond)
	d.HandleDatagram(buildInitiation(aIdx, kb), a)
	second, _ := d.sessions.Get(aIdx)

	if !second.Last.After(firstLast) {
		t.Fatalf("expected last-seen timestamp to advance on repeated initiation")
	}
	if second.Established() {
		t.Fatalf("repeated initiation must not establish a session by itself")
	}
}
