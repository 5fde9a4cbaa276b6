package relaycore

import (
	"net/netip"
	"sync"

	"github.com/hurzhurz/wg-bridge/internal/logging"
	"github.com/hurzhurz/wg-bridge/internal/metrics"
	"github.com/hurzhurz/wg-bridge/internal/wireformat"
	"golang.org/x/crypto/blake2s"
)

// fakeSender records every datagram handed to SendTo, keyed by
// destination address, so tests can assert on what was forwarded
// without a real socket.
type fakeSender struct {
	mu  sync.Mutex
	out []sentDatagram
}

type sentDatagram struct {
	addr Addr
	data []byte
}

func (f *fakeSender) SendTo(addr Addr, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := append([]byte(nil), data...)
	f.out = append(f.out, sentDatagram{addr: addr, data: cp})
	return nil
}

func (f *fakeSender) sentTo(addr Addr) [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]byte
	for _, d := range f.out {
		if d.addr == addr {
			out = append(out, d.data)
		}
	}
	return out
}

func mustAddr(s string) Addr {
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		panic(err)
	}
	return Addr{AddrPort: ap}
}

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.LogConfig{Level: "disabled"})
}

// buildInitiation constructs a syntactically valid type-1 datagram with a
// MAC1 computed under pk, sender index idx. Every byte past the header
// fields the relay reads is left zero; the relay never inspects them.
func buildInitiation(idx [4]byte, pk PubKey) []byte {
	d := make([]byte, wireformat.InitiationSize)
	d[0] = wireformat.TypeHandshakeInitiation
	copy(d[4:8], idx[:])
	signMAC1(d, wireformat.TypeHandshakeInitiation, pk)
	return d
}

// buildResponse constructs a type-2 datagram with sender/receiver indices
// and a MAC1 valid under pk.
func buildResponse(sender, receiver [4]byte, pk PubKey) []byte {
	d := make([]byte, wireformat.ResponseSize)
	d[0] = wireformat.TypeHandshakeResponse
	copy(d[4:8], sender[:])
	copy(d[8:12], receiver[:])
	signMAC1(d, wireformat.TypeHandshakeResponse, pk)
	return d
}

func buildCookieReply(receiver [4]byte) []byte {
	d := make([]byte, wireformat.CookieReplySize)
	d[0] = wireformat.TypeCookieReply
	copy(d[4:8], receiver[:])
	return d
}

func buildTransport(receiver [4]byte, payload []byte) []byte {
	d := make([]byte, wireformat.MinTransportSize+len(payload))
	d[0] = wireformat.TypeTransportData
	copy(d[4:8], receiver[:])
	copy(d[wireformat.MinTransportSize:], payload)
	return d
}

func signMAC1(d []byte, msgType byte, pk PubKey) {
	offset, ok := wireformat.MAC1Offset(msgType)
	if !ok {
		panic("no mac1 offset for type")
	}
	mk, err := deriveMacKey(pk)
	if err != nil {
		panic(err)
	}
	canonical := wireformat.CanonicalMAC1Message(d, offset)
	h, err := blake2s.New128(mk[:])
	if err != nil {
		panic(err)
	}
	h.Write(canonical)
	copy(d[offset:offset+wireformat.MAC1Size], h.Sum(nil))
}

func pubKey(b byte) PubKey {
	var pk PubKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

// newTestDispatcher builds a Dispatcher over fresh tables for groupKeys,
// backed by a fakeSender.
func newTestDispatcher(groupKeys [][]PubKey) (*Dispatcher, *fakeSender) {
	registry := NewRegistry(groupKeys)
	macKeys, err := NewMacKeyTable(registry.AllKeys())
	if err != nil {
		panic(err)
	}
	sender := &fakeSender{}
	d := NewDispatcher(Config{
		MacKeys:  macKeys,
		Registry: registry,
		Sessions: NewSessionTable(),
		Sender:   sender,
		Log:      testLogger(),
		Metrics:  metrics.New("test"),
	})
	return d, sender
}
