// Package wireformat describes the small slice of the VPN's UDP framing
// that the relay needs to read: message type, session indices, and the
// MAC1 offsets. The relay never parses anything past what is listed here
// and never touches key material.
package wireformat

// Message types, carried in byte 0 of every datagram.
const (
	TypeHandshakeInitiation byte = 1
	TypeHandshakeResponse   byte = 2
	TypeCookieReply         byte = 3
	TypeTransportData       byte = 4
)

// Fixed message sizes, in bytes.
const (
	InitiationSize = 148
	ResponseSize   = 92
	CookieReplySize = 64
	MinTransportSize = 32
)

// MAC1 is 16 bytes, found at a type-dependent offset.
const (
	MAC1Size             = 16
	initiationMAC1Offset = 116
	responseMAC1Offset   = 60
)

// senderOffset/receiverOffset locate the 4-byte session indices common to
// initiation, response and transport frames.
const (
	senderOffset   = 4
	receiverOffset = 8
	idxSize        = 4
)

// Classify returns the handler-relevant message type for a datagram, and
// whether its length is acceptable for that type. Unrecognized type bytes
// or rejected lengths both report ok=false so the caller drops silently.
func Classify(d []byte) (msgType byte, ok bool) {
	if len(d) == 0 {
		return 0, false
	}
	switch d[0] {
	case TypeHandshakeInitiation:
		return TypeHandshakeInitiation, len(d) == InitiationSize
	case TypeHandshakeResponse:
		return TypeHandshakeResponse, len(d) == ResponseSize
	case TypeCookieReply:
		return TypeCookieReply, len(d) == CookieReplySize
	case TypeTransportData:
		return TypeTransportData, len(d) >= MinTransportSize
	default:
		return d[0], false
	}
}

// MAC1Offset returns where the 16-byte MAC1 begins for a handshake
// initiation or response message. Only valid for those two types.
func MAC1Offset(msgType byte) (offset int, ok bool) {
	switch msgType {
	case TypeHandshakeInitiation:
		return initiationMAC1Offset, true
	case TypeHandshakeResponse:
		return responseMAC1Offset, true
	default:
		return 0, false
	}
}

// Sender reads the 4-byte session index at bytes 4:8. On initiation and
// response messages this is the sender's index; on cookie reply and
// transport messages the same bytes carry the receiver's index, and
// callers treat it as such.
func Sender(d []byte) [4]byte {
	var idx [4]byte
	copy(idx[:], d[senderOffset:senderOffset+idxSize])
	return idx
}

// Receiver reads the 4-byte receiver session index at bytes 8:12 of a
// response message.
func Receiver(d []byte) [4]byte {
	var idx [4]byte
	copy(idx[:], d[receiverOffset:receiverOffset+idxSize])
	return idx
}

// CanonicalMAC1Message builds the message that MAC1 is computed over: the
// type byte, three zeroed reserved bytes, then the original body up to
// (not including) the MAC1 region.
func CanonicalMAC1Message(d []byte, mac1Offset int) []byte {
	canonical := make([]byte, mac1Offset)
	canonical[0] = d[0]
	// canonical[1:4] stay zero — the reserved bytes are cleared.
	copy(canonical[4:], d[4:mac1Offset])
	return canonical
}
