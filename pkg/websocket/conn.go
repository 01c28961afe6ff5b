package websocket

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"unicode/utf8"

	"github.com/lithammer/shortuuid/v4"
)

// maxCloseReason is the largest reason string that fits in a Close
// control frame alongside its 2-byte status code, per RFC 6455 §5.5.1.
const maxCloseReason = maxControlPayload - 2

// recvState tracks message assembly: either idle (waiting for the start
// of a new message) or assembling the fragments of one.
type recvState int

const (
	recvIdle recvState = iota
	recvAssembling
)

// closeState tracks the progress of the closing handshake
// (RFC 6455 §7.1.2).
type closeState int

const (
	closeOpen closeState = iota
	closeSent
	closeClosed
)

// Conn is a connected WebSocket client. It is single-owner and
// synchronous: every method blocks the calling goroutine, and a Conn is
// not safe for concurrent use by more than one goroutine at a time.
// There is deliberately no internal locking; callers that want to share
// a Conn must serialize access themselves.
type Conn struct {
	// ID is a short, process-unique identifier for this connection,
	// useful for correlating log lines across a Pool running many
	// connections concurrently.
	ID string

	cfg Config

	transport io.ReadWriteCloser
	br        *bufio.Reader

	recvState  recvState
	assembling Opcode
	validator  utf8Validator

	closeState  closeState
	closeCode   CloseCode
	closeReason string

	scratch [8]byte
}

// ConnectPlain opens a plain (non-TLS) TCP connection to a ws:// URL and
// performs the opening handshake. opts may be nil. For wss://, dial a
// *tls.Conn externally and pass it to NewConn instead.
func ConnectPlain(ctx context.Context, wsURL string, cfg Config, opts *DialOptions) (*Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid WebSocket URL: %w", ErrConnect, err)
	}
	if u.Scheme != "ws" {
		return nil, fmt.Errorf("%w: ConnectPlain only supports the ws scheme, got %q", ErrConnect, u.Scheme)
	}

	var d net.Dialer
	nc, err := d.DialContext(ctx, "tcp", dialAddr(u))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	return newConn(nc, u, cfg, opts)
}

// NewConn performs the opening handshake over an already-open transport
// and returns a ready-to-use Conn. opts may be nil. Use this for wss://
// (wrap a *tls.Conn dialed by the caller) or for tests (net.Pipe).
func NewConn(transport io.ReadWriteCloser, wsURL string, cfg Config, opts *DialOptions) (*Conn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid WebSocket URL: %w", ErrConnect, err)
	}
	return newConn(transport, u, cfg, opts)
}

func newConn(transport io.ReadWriteCloser, u *url.URL, cfg Config, opts *DialOptions) (*Conn, error) {
	if cfg.ReadBufferCapacity <= 0 {
		cfg.ReadBufferCapacity = DefaultReadBufferCapacity
	}

	id := shortuuid.New()

	br, err := handshake(transport, u, cfg.rng(), cfg.ReadBufferCapacity, opts)
	if err != nil {
		_ = transport.Close()
		cfg.Logger.Debug().Err(err).Str("conn", id).Str("url", u.String()).Msg("websocket handshake failed")
		return nil, err
	}

	cfg.Logger.Debug().Str("conn", id).Str("url", u.String()).Msg("websocket handshake complete")

	return &Conn{
		ID:        id,
		cfg:       cfg,
		transport: transport,
		br:        br,
	}, nil
}

func dialAddr(u *url.URL) string {
	if u.Port() != "" {
		return u.Host
	}
	return u.Hostname() + ":80"
}

// NextMsg blocks until a complete application message (Text or Binary,
// possibly reassembled from several fragments) arrives, a Ping is
// answered and the loop continues, or the connection is closed. buf is
// reused as the accumulation buffer and its returned value may differ
// from the one passed in.
//
// Incoming Ping frames are answered with a Pong before this call
// returns or loops again, invisibly to the caller; incoming Pong
// frames are silently discarded; a peer-initiated Close frame is echoed
// (if the local side hadn't already sent one) and reported as a
// *ClosedError, which every subsequent call to NextMsg (or any Send*
// method) also returns.
func (c *Conn) NextMsg(buf []byte) ([]byte, Opcode, error) {
	buf = buf[:0]

	if c.closeState == closeClosed {
		return buf, 0, &ClosedError{Code: c.closeCode, Reason: c.closeReason}
	}

	for {
		h, err := readFrameHeader(c.br, c.scratch[:])
		if err != nil {
			var perr *ProtocolError
			if errors.As(err, &perr) {
				return buf, 0, c.fail(perr.Close, perr)
			}
			return buf, 0, c.handleIOErr(err)
		}

		// Validate the header before allocating or reading the payload, so
		// a frame announcing an absurd length is rejected without ever
		// reserving memory for it.
		msgType := opcodeContinuation
		if c.recvState == recvAssembling {
			msgType = c.assembling
		}
		if perr := checkFrameHeader(h, msgType, uint64(c.cfg.MaxFrameSize)); perr != nil {
			return buf, 0, c.fail(perr.Close, perr)
		}

		if !h.opcode.isControl() && c.cfg.MaxMessageSize > 0 &&
			uint64(len(buf))+h.payloadLength > uint64(c.cfg.MaxMessageSize) {
			err := fmt.Errorf("%w: accumulated message exceeds %d bytes", ErrMessageTooBig, c.cfg.MaxMessageSize)
			return buf, 0, c.fail(CloseMessageTooBig, err)
		}

		var payload []byte
		if h.payloadLength > 0 {
			payload = make([]byte, h.payloadLength)
			if _, err := io.ReadFull(c.br, payload); err != nil {
				return buf, 0, c.handleIOErr(err)
			}
		}

		switch {
		case h.opcode.isData() || h.opcode == opcodeContinuation:
			if h.opcode != opcodeContinuation {
				c.assembling = h.opcode
				c.validator = utf8Validator{}
			}

			if c.assembling == OpcodeText {
				if !c.validator.step(payload) {
					perr := protocolErr("invalid UTF-8 in text message", CloseInvalidData)
					return buf, 0, c.fail(perr.Close, perr)
				}
			}
			buf = append(buf, payload...)

			if !h.fin {
				c.recvState = recvAssembling
				continue
			}

			if c.assembling == OpcodeText && !c.validator.done() {
				perr := protocolErr("text message ends mid UTF-8 sequence", CloseInvalidData)
				return buf, 0, c.fail(perr.Close, perr)
			}

			op := c.assembling
			c.recvState = recvIdle
			c.assembling = 0
			return buf, op, nil

		case h.opcode == OpcodePing:
			if err := c.sendControl(OpcodePong, payload); err != nil {
				return buf, 0, err
			}
			continue

		case h.opcode == OpcodePong:
			continue

		case h.opcode == OpcodeClose:
			code, reason := parseClosePayload(payload)
			if c.closeState == closeOpen {
				// An empty close body stands for "no status code", and the
				// local representation of that (1005) must never be echoed
				// onto the wire; reply with an empty body instead.
				var echo []byte
				if len(payload) > 0 {
					echo = closeFramePayload(code, reason)
				}
				_ = c.sendControl(OpcodeClose, echo)
			}
			c.closeState = closeClosed
			c.closeCode, c.closeReason = code, reason
			_ = c.transport.Close()
			return buf, 0, &ClosedError{Code: code, Reason: reason}
		}
	}
}

// ReadFrame reads a single raw frame - header and payload - without
// running it through the message-assembly or close-handshake state
// machine. It exists for interop tooling that needs to observe frame
// boundaries directly (e.g. an Autobahn test agent verifying
// fragmentation behavior).
func (c *Conn) ReadFrame() (fin bool, opcode Opcode, payload []byte, err error) {
	h, err := readFrameHeader(c.br, c.scratch[:])
	if err != nil {
		return false, 0, nil, c.handleIOErr(err)
	}
	if h.payloadLength > 0 {
		payload = make([]byte, h.payloadLength)
		if _, err := io.ReadFull(c.br, payload); err != nil {
			return false, 0, nil, c.handleIOErr(err)
		}
	}
	return h.fin, h.opcode, payload, nil
}

// SendText sends data as a single-frame Text message. data must be valid
// UTF-8, per RFC 6455 §5.6.
func (c *Conn) SendText(data []byte) error {
	if !utf8.Valid(data) {
		return protocolErr("outgoing text is not valid UTF-8", CloseInvalidData)
	}
	return c.sendData(OpcodeText, data)
}

// SendBinary sends data as a single-frame Binary message.
func (c *Conn) SendBinary(data []byte) error {
	return c.sendData(OpcodeBinary, data)
}

func (c *Conn) sendData(opcode Opcode, data []byte) error {
	if c.closeState != closeOpen {
		return &ClosedError{Code: c.closeCode, Reason: c.closeReason}
	}

	var mask [4]byte
	if _, err := io.ReadFull(c.cfg.rng(), mask[:]); err != nil {
		return fmt.Errorf("%w: failed to generate frame mask: %w", ErrIO, err)
	}

	buf := append([]byte(nil), data...)
	buf = encodeData(buf, mask, true, opcode)
	if _, err := c.transport.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// SendPing emits a Ping control frame carrying payload (at most 125
// bytes).
func (c *Conn) SendPing(payload []byte) error {
	if c.closeState == closeClosed {
		return &ClosedError{Code: c.closeCode, Reason: c.closeReason}
	}
	return c.sendControl(OpcodePing, payload)
}

// SendPong emits an unsolicited Pong control frame carrying payload (at
// most 125 bytes). The receive loop already answers incoming Pings on
// its own; this is for callers that want to send an unsolicited
// heartbeat.
func (c *Conn) SendPong(payload []byte) error {
	if c.closeState == closeClosed {
		return &ClosedError{Code: c.closeCode, Reason: c.closeReason}
	}
	return c.sendControl(OpcodePong, payload)
}

// Close initiates the closing handshake (RFC 6455 §7.1.2) by sending a
// Close frame
// with the given code and reason, truncating reason if it would overflow
// a control frame, and correcting code to 1002 if it isn't valid on the
// wire. It is idempotent: calling it again after the handshake has
// started, or after the connection is fully closed, is a no-op.
//
// After Close returns, the caller should keep calling NextMsg until it
// returns a *ClosedError, so the peer's own Close frame (and any
// in-flight messages) are drained.
func (c *Conn) Close(code CloseCode, reason string) error {
	if c.closeState != closeOpen {
		return nil
	}
	code, reason = checkClosePayload(code, reason)
	if err := c.sendControl(OpcodeClose, closeFramePayload(code, reason)); err != nil {
		return err
	}
	c.closeState = closeSent
	c.closeCode, c.closeReason = code, reason
	return nil
}

// IsClosed reports whether the Conn has reached its terminal closed state
// and is unusable: a peer Close frame was received, a protocol violation
// failed the connection, or the transport reached EOF without a closing
// handshake. Other transport errors don't change this state.
func (c *Conn) IsClosed() bool {
	return c.closeState == closeClosed
}

// IsClosing reports whether the Conn has left the open state: either
// side has sent a Close frame, or the Conn is already closed.
func (c *Conn) IsClosing() bool {
	return c.closeState != closeOpen
}

func (c *Conn) sendControl(opcode Opcode, payload []byte) error {
	if len(payload) > maxControlPayload {
		return fmt.Errorf("websocket: control frame payload too large: %d bytes", len(payload))
	}

	var mask [4]byte
	if _, err := io.ReadFull(c.cfg.rng(), mask[:]); err != nil {
		return fmt.Errorf("%w: failed to generate frame mask: %w", ErrIO, err)
	}

	buf := make([]byte, len(payload)+controlHeaderLen)
	copy(buf, payload)
	if err := encodeControl(buf, mask, true, opcode); err != nil {
		return err
	}
	if _, err := c.transport.Write(buf); err != nil {
		return fmt.Errorf("%w: %w", ErrIO, err)
	}
	return nil
}

// fail closes the connection in response to a locally-detected protocol
// violation or oversize message: it makes a best-effort attempt to tell
// the peer why via a Close frame, tears down the transport, and returns
// cause (not a *ClosedError - the caller that triggered the failure gets
// the original error; only later calls get *ClosedError).
func (c *Conn) fail(code CloseCode, cause error) error {
	if c.closeState == closeOpen {
		_ = c.sendControl(OpcodeClose, closeFramePayload(code, ""))
	}
	c.closeState = closeClosed
	c.closeCode = code
	_ = c.transport.Close()
	return cause
}

// handleIOErr classifies a read/write failure against the transport. A
// clean EOF with no preceding close handshake is an abnormal closure
// (RFC 6455 §7.1.4); anything else is wrapped in ErrIO.
func (c *Conn) handleIOErr(err error) error {
	if errors.Is(err, io.EOF) {
		c.closeState = closeClosed
		c.closeCode = CloseAbnormal
		c.closeReason = "connection closed without a close handshake"
		return &ClosedError{Code: c.closeCode, Reason: c.closeReason}
	}
	return fmt.Errorf("%w: %w", ErrIO, err)
}

// parseClosePayload extracts the final code and reason from a received
// Close frame's body, per RFC 6455 §5.5.1/§7.1.6, applying the
// correction rules that govern what gets echoed back to the peer and
// reported to the caller: an empty body stands for the absence of a
// status code (CloseNotReceived, which is itself a valid local
// representation even though it may never appear on the wire); a
// single-byte body is malformed and is treated as a protocol error; an
// explicit code that isn't valid on the wire is replaced with 1002; and
// a reason that isn't valid UTF-8 is reported as CloseInvalidData.
func parseClosePayload(payload []byte) (CloseCode, string) {
	switch {
	case len(payload) == 0:
		return CloseNotReceived, ""
	case len(payload) == 1:
		return CloseProtocolError, ""
	}

	code := CloseCode(binary.BigEndian.Uint16(payload[:2]))
	if !code.isValidOnWire() {
		code = CloseProtocolError
	}

	reason := payload[2:]
	if !utf8.Valid(reason) {
		return CloseInvalidData, ""
	}
	return code, string(reason)
}

// checkClosePayload validates a locally-chosen code and reason before
// they're sent in an outgoing Close frame: an invalid code is replaced
// with 1002, and an oversize reason is truncated to fit a control frame.
func checkClosePayload(code CloseCode, reason string) (CloseCode, string) {
	if !code.isValidOnWire() {
		code = CloseProtocolError
	}
	if len(reason) > maxCloseReason {
		reason = reason[:maxCloseReason]
	}
	return code, reason
}

func closeFramePayload(code CloseCode, reason string) []byte {
	payload := make([]byte, 2+len(reason))
	binary.BigEndian.PutUint16(payload[:2], uint16(code))
	copy(payload[2:], reason)
	return payload
}
