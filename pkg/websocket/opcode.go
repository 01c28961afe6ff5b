package websocket

import "strconv"

// Opcode denotes the type of a WebSocket frame, as defined in
// https://datatracker.ietf.org/doc/html/rfc6455#section-5.2 and
// https://datatracker.ietf.org/doc/html/rfc6455#section-11.8.
type Opcode int

const (
	opcodeContinuation Opcode = iota
	OpcodeText
	OpcodeBinary
	// 3-7 are reserved for further non-control frames.
	_
	_
	_
	_
	_
	OpcodeClose
	OpcodePing
	OpcodePong
	// 11-15 are reserved for further control frames.
)

// String returns the opcode's name, or its number if it's unrecognized.
func (o Opcode) String() string {
	switch o {
	case opcodeContinuation:
		return "continuation"
	case OpcodeText:
		return "text"
	case OpcodeBinary:
		return "binary"
	case OpcodeClose:
		return "close"
	case OpcodePing:
		return "ping"
	case OpcodePong:
		return "pong"
	default:
		return strconv.Itoa(int(o))
	}
}

// isControl reports whether o lies in the control range 8-15 (Close, Ping,
// Pong, or a reserved control opcode), which RFC 6455 §5.5 restricts to
// small, unfragmented frames.
func (o Opcode) isControl() bool {
	return o >= OpcodeClose
}

// isData reports whether o is Text or Binary.
func (o Opcode) isData() bool {
	return o == OpcodeText || o == OpcodeBinary
}

// isReserved reports whether o falls in one of the two ranges RFC 6455
// reserves for future non-control (3-7) and control (11-15) opcodes.
func (o Opcode) isReserved() bool {
	return (o > OpcodeBinary && o < OpcodeClose) || o > OpcodePong
}
