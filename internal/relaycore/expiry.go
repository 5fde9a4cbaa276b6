package relaycore

import "time"

// Initiator and established session timeouts (spec §4.5). These mirror
// the reference relay's constants exactly; changing them changes
// reconnection behavior for every client, so they are not exposed as
// configuration.
const (
	initiatorTimeout   = 10 * time.Second
	establishedTimeout = 60 * time.Second
)

// runExpirySweep walks a snapshot of the session table and applies the
// two-phase expiry described in spec §4.5: initiator sessions that never
// complete a handshake are dropped outright; established sessions first
// lose their address (half-timeout, so a late packet can still revive
// them) and are only removed once their peer has also gone stale.
func (d *Dispatcher) runExpirySweep(now time.Time) {
	idxs := d.sessions.Snapshot()

	// Addr validity is snapshotted before any mutation so that whether a
	// pair gets torn down this pass never depends on map iteration order:
	// a session half-timed-out earlier in this same sweep must not look
	// "already gone" to its peer until the *next* sweep observes it.
	wasValid := make(map[Idx]bool, len(idxs))
	for _, idx := range idxs {
		if s, exists := d.sessions.Get(idx); exists {
			wasValid[idx] = s.Addr.IsValid()
		}
	}

	for _, idx := range idxs {
		s, exists := d.sessions.Get(idx)
		if !exists {
			continue
		}

		switch {
		case s.Peer == nil:
			if now.Sub(s.Last) > initiatorTimeout {
				d.sessions.Delete(idx)
				d.metrics.SessionsExpiredTotal.WithLabelValues("initiator_timeout").Inc()
				d.log.Debug().Str("session", idx.String()).Msg("initiator timed out")
			}

		default:
			if _, peerExists := d.sessions.Get(*s.Peer); !peerExists {
				d.sessions.Delete(idx)
				d.metrics.SessionsExpiredTotal.WithLabelValues("broken_pairing").Inc()
				continue
			}

			if now.Sub(s.Last) > establishedTimeout {
				if !wasValid[*s.Peer] {
					d.sessions.Delete(idx)
					d.sessions.Delete(*s.Peer)
					d.metrics.SessionsExpiredTotal.WithLabelValues("established_timeout").Inc()
					d.log.Info().
						Str("session", idx.String()).
						Str("peer", s.Peer.String()).
						Msg("established pair removed")
				} else if s.Addr.IsValid() {
					s.Addr = NoAddr
					d.metrics.SessionsExpiredTotal.WithLabelValues("half_timeout").Inc()
					d.log.Debug().Str("session", idx.String()).Msg("established peer timed out")
				}
			}
		}
	}

	d.registry.PruneStale(d.sessions)
}
