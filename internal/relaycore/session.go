package relaycore

import "time"

// Session is a single session-index entry. addr is None (the zero Addr)
// when the peer has half-timed-out and is awaiting recovery or
// coordinated teardown; peer is nil while the session is still an
// initiator awaiting a response, and points at the paired index once
// established.
type Session struct {
	Addr Addr
	Peer *Idx
	Last time.Time
}

// Established reports whether this session has completed a handshake
// and has a paired session index (invariant I2).
func (s *Session) Established() bool {
	return s.Peer != nil
}

// SessionTable maps session indices to their current state. Only ever
// touched from the single dispatcher goroutine, so it needs no locking
// of its own (spec §5).
type SessionTable struct {
	sessions map[Idx]*Session
}

// NewSessionTable creates an empty session table.
func NewSessionTable() *SessionTable {
	return &SessionTable{sessions: make(map[Idx]*Session)}
}

// Get returns the session for idx, if any.
func (t *SessionTable) Get(idx Idx) (*Session, bool) {
	s, ok := t.sessions[idx]
	return s, ok
}

// Set stores (or replaces) the session for idx.
func (t *SessionTable) Set(idx Idx, s *Session) {
	t.sessions[idx] = s
}

// Delete removes idx from the table.
func (t *SessionTable) Delete(idx Idx) {
	delete(t.sessions, idx)
}

// Len returns the number of tracked sessions, used for the active
// sessions gauge.
func (t *SessionTable) Len() int {
	return len(t.sessions)
}

// Snapshot returns the current set of session indices. The expiry sweep
// iterates a snapshot rather than the live map because it deletes
// entries as it goes (spec §4.5: "Over a snapshot of current session
// indices").
func (t *SessionTable) Snapshot() []Idx {
	out := make([]Idx, 0, len(t.sessions))
	for idx := range t.sessions {
		out = append(out, idx)
	}
	return out
}
