package relaycore

import (
	"time"

	"github.com/hurzhurz/wg-bridge/internal/logging"
	"github.com/hurzhurz/wg-bridge/internal/metrics"
	"github.com/hurzhurz/wg-bridge/internal/wireformat"
)

// Sender forwards an already-framed datagram verbatim to a transport
// address. Implemented by internal/transport over a real UDP socket;
// kept as an interface here so the core state machine stays unit
// testable without a socket.
type Sender interface {
	SendTo(addr Addr, data []byte) error
}

// Dispatcher is the relay's main classify-and-route loop. It owns no
// goroutines itself — callers drive it one datagram (or one sweep) at a
// time, which is what keeps the session/group tables lock-free (spec §5).
type Dispatcher struct {
	macKeys  *MacKeyTable
	registry *Registry
	sessions *SessionTable
	sender   Sender
	log      *logging.Logger
	metrics  *metrics.Metrics

	sweepInterval time.Duration
	lastSweep     time.Time
}

// Config bundles the pieces a Dispatcher is built from.
type Config struct {
	MacKeys  *MacKeyTable
	Registry *Registry
	Sessions *SessionTable
	Sender   Sender
	Log      *logging.Logger
	Metrics  *metrics.Metrics
}

// NewDispatcher builds a Dispatcher ready to process datagrams.
func NewDispatcher(cfg Config) *Dispatcher {
	return &Dispatcher{
		macKeys:       cfg.MacKeys,
		registry:      cfg.Registry,
		sessions:      cfg.Sessions,
		sender:        cfg.Sender,
		log:           cfg.Log.WithComponent("dispatcher"),
		metrics:       cfg.Metrics,
		sweepInterval: time.Second,
	}
}

// HandleDatagram classifies one received datagram and routes it to the
// matching handler. Zero-length datagrams and anything that fails the
// type/length check in wireformat.Classify are dropped without
// touching any state (spec §4.3).
func (d *Dispatcher) HandleDatagram(data []byte, from Addr) {
	if len(data) == 0 {
		return
	}

	msgType, ok := wireformat.Classify(data)
	if !ok {
		d.metrics.PacketsTotal.WithLabelValues(typeLabel(msgType), metrics.OutcomeDroppedMalformed).Inc()
		return
	}

	switch msgType {
	case wireformat.TypeHandshakeInitiation:
		d.handleInitiation(data, from)
	case wireformat.TypeHandshakeResponse:
		d.handleInitiationResponse(data, from)
	case wireformat.TypeCookieReply:
		d.handleCookieReply(data, from)
	case wireformat.TypeTransportData:
		d.handleTransport(data, from)
	}
}

// Sweep runs the expiry sweep if at least sweepInterval has passed since
// the last run; otherwise it is a no-op. Safe to call on every iteration
// of the receive loop (spec §4.3 step 1).
func (d *Dispatcher) Sweep(now time.Time) {
	if now.Sub(d.lastSweep) < d.sweepInterval {
		return
	}
	d.lastSweep = now
	d.runExpirySweep(now)
	d.metrics.ActiveSessions.Set(float64(d.sessions.Len()))
	d.metrics.ActiveGroups.Set(float64(len(d.registry.Groups)))
}

func (d *Dispatcher) send(addr Addr, data []byte) {
	if err := d.sender.SendTo(addr, data); err != nil {
		d.metrics.SendErrorsTotal.Inc()
		d.log.Debug().Err(err).Str("addr", addr.String()).Msg("sendto failed")
	} else {
		d.metrics.BytesForwarded.Add(float64(len(data)))
	}
}

func typeLabel(t byte) string {
	switch t {
	case wireformat.TypeHandshakeInitiation:
		return "initiation"
	case wireformat.TypeHandshakeResponse:
		return "response"
	case wireformat.TypeCookieReply:
		return "cookie_reply"
	case wireformat.TypeTransportData:
		return "transport"
	default:
		return "unknown"
	}
}
