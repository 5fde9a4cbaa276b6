package relaycore

import "testing"

func TestAnyGroupHasKeyAndPeer(t *testing.T) {
	ka, kb := pubKey(0xAA), pubKey(0xBB)
	idx := Idx{1, 2, 3, 4}

	r := NewRegistry([][]PubKey{{ka}, {kb}})
	r.Groups[1].AddPeer(idx)

	if r.AnyGroupHasKeyAndPeer(ka, idx) {
		t.Fatalf("idx belongs to group 1, not group 0")
	}
	if !r.AnyGroupHasKeyAndPeer(kb, idx) {
		t.Fatalf("expected group 1 to have both kb and idx")
	}
}

func TestPruneStaleRemovesDeadAndMissingPeers(t *testing.T) {
	ka := pubKey(0xAA)
	live, deadAddr, gone := Idx{1}, Idx{2}, Idx{3}

	r := NewRegistry([][]PubKey{{ka}})
	r.Groups[0].AddPeer(live)
	r.Groups[0].AddPeer(deadAddr)
	r.Groups[0].AddPeer(gone)

	sessions := NewSessionTable()
	sessions.Set(live, &Session{Addr: mustAddr("10.0.0.1:1")})
	sessions.Set(deadAddr, &Session{Addr: NoAddr})
	// gone is never inserted into the session table at all.

	r.PruneStale(sessions)

	if !r.Groups[0].HasPeer(live) {
		t.Fatalf("expected live peer to survive pruning")
	}
	if r.Groups[0].HasPeer(deadAddr) {
		t.Fatalf("expected peer with None address to be pruned")
	}
	if r.Groups[0].HasPeer(gone) {
		t.Fatalf("expected peer missing from session table to be pruned")
	}
}

func TestAllKeysDeduplicatesAcrossGroups(t *testing.T) {
	ka, kb := pubKey(0xAA), pubKey(0xBB)
	r := NewRegistry([][]PubKey{{ka, kb}, {ka}})

	keys := r.AllKeys()
	if len(keys) != 2 {
		t.Fatalf("expected 2 distinct keys, got %d", len(keys))
	}
}
