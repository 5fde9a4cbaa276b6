package relaycore

// Group is a configured permission group: a set of public keys whose
// holders may rendezvous through this relay, plus the dynamic set of
// session indices that have successfully initiated against one of those
// keys. Keys are immutable once loaded from configuration; Peers is
// mutated by handlers and trimmed by the expiry sweep.
type Group struct {
	Keys  map[PubKey]struct{}
	Peers map[Idx]struct{}
}

// NewGroup builds a group from a configured key list.
func NewGroup(keys []PubKey) *Group {
	g := &Group{
		Keys:  make(map[PubKey]struct{}, len(keys)),
		Peers: make(map[Idx]struct{}),
	}
	for _, k := range keys {
		g.Keys[k] = struct{}{}
	}
	return g
}

// HasKey reports whether pk is one of this group's permitted keys.
func (g *Group) HasKey(pk PubKey) bool {
	_, ok := g.Keys[pk]
	return ok
}

// HasPeer reports whether idx is currently registered as one of this
// group's rendezvous-eligible peers.
func (g *Group) HasPeer(idx Idx) bool {
	_, ok := g.Peers[idx]
	return ok
}

// AddPeer registers idx as belonging to this group. Per the preserved
// open question in the design notes, a sender index may end up
// registered in more than one group if it matches keys in several
// groups over time — this is deliberate multi-group rendezvous
// behavior, not a bug to "fix".
func (g *Group) AddPeer(idx Idx) {
	g.Peers[idx] = struct{}{}
}

// Registry is the static list of configured groups.
type Registry struct {
	Groups []*Group
}

// NewRegistry builds a registry from the groups' configured key lists.
func NewRegistry(groupKeys [][]PubKey) *Registry {
	r := &Registry{Groups: make([]*Group, 0, len(groupKeys))}
	for _, keys := range groupKeys {
		r.Groups = append(r.Groups, NewGroup(keys))
	}
	return r
}

// AllKeys returns every distinct public key across all groups, used to
// build the MAC-key table once at startup.
func (r *Registry) AllKeys() []PubKey {
	seen := make(map[PubKey]struct{})
	var keys []PubKey
	for _, g := range r.Groups {
		for k := range g.Keys {
			if _, ok := seen[k]; !ok {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
	}
	return keys
}

// GroupsContainingKey iterates the groups that permit the given key.
func (r *Registry) GroupsContainingKey(pk PubKey) []*Group {
	var out []*Group
	for _, g := range r.Groups {
		if g.HasKey(pk) {
			out = append(out, g)
		}
	}
	return out
}

// AnyGroupHasKeyAndPeer reports whether some group both permits pk and
// already lists idx among its peers — the policy check that keeps a
// handshake response from completing across unrelated permission
// groups.
func (r *Registry) AnyGroupHasKeyAndPeer(pk PubKey, idx Idx) bool {
	for _, g := range r.Groups {
		if g.HasKey(pk) && g.HasPeer(idx) {
			return true
		}
	}
	return false
}

// PruneStale drops any peer index from every group's Peers set unless it
// still exists in the session table and has a live (non-None) address.
// Called once per expiry sweep to keep broadcast targets fresh and
// bounded (spec §4.5).
func (r *Registry) PruneStale(sessions *SessionTable) {
	for _, g := range r.Groups {
		for idx := range g.Peers {
			s, exists := sessions.Get(idx)
			if !exists || !s.Addr.IsValid() {
				delete(g.Peers, idx)
			}
		}
	}
}
