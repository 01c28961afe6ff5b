package websocket

import (
	"bufio"
	"fmt"
	"net"
	"testing"
)

// serverHandshake reads the client's request off conn and writes back a
// minimal valid 101 response with the accept key a real WebSocket server
// would compute.
func serverHandshake(t *testing.T, conn net.Conn) {
	t.Helper()

	br := bufio.NewReader(conn)
	var key string
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			t.Fatalf("server: failed to read request: %v", err)
		}
		if len(line) <= 2 {
			break
		}
		const prefix = "Sec-WebSocket-Key: "
		if len(line) > len(prefix) && line[:len(prefix)] == prefix {
			key = line[len(prefix) : len(line)-2]
		}
	}

	resp := fmt.Sprintf(
		"HTTP/1.1 101 Switching Protocols\r\nUpgrade: websocket\r\nConnection: Upgrade\r\nSec-WebSocket-Accept: %s\r\n\r\n",
		expectedAccept(key),
	)
	if _, err := conn.Write([]byte(resp)); err != nil {
		t.Fatalf("server: failed to write response: %v", err)
	}
}

// TestIntegrationFragmentedRoundTrip dials over a net.Pipe, has a fake
// server complete the handshake and then send a fragmented Text message
// followed by a peer-initiated Close, and checks the client reassembles
// the message and completes the closing handshake.
func TestIntegrationFragmentedRoundTrip(t *testing.T) {
	clientSide, serverSide := net.Pipe()
	defer serverSide.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		serverHandshake(t, serverSide)

		// Fragmented Text "hello": "hel" + "lo", unmasked (server frames).
		if _, err := serverSide.Write([]byte{0x01, 0x03, 'h', 'e', 'l'}); err != nil {
			t.Errorf("server: write first fragment: %v", err)
			return
		}
		if _, err := serverSide.Write([]byte{0x80, 0x02, 'l', 'o'}); err != nil {
			t.Errorf("server: write final fragment: %v", err)
			return
		}

		// Peer-initiated Close, code 1000.
		if _, err := serverSide.Write([]byte{0x88, 0x02, 0x03, 0xe8}); err != nil {
			t.Errorf("server: write close: %v", err)
			return
		}

		// Drain the client's echoed Close frame so its Write doesn't block
		// forever on the pipe.
		buf := make([]byte, 64)
		_, _ = serverSide.Read(buf)
	}()

	cfg := DefaultConfig()
	conn, err := NewConn(clientSide, "ws://example.invalid/", cfg, nil)
	if err != nil {
		t.Fatalf("NewConn() error = %v", err)
	}

	got, op, err := conn.NextMsg(nil)
	if err != nil {
		t.Fatalf("NextMsg() error = %v", err)
	}
	if op != OpcodeText || string(got) != "hello" {
		t.Fatalf("NextMsg() = (%q, %v), want (\"hello\", OpcodeText)", got, op)
	}

	_, _, err = conn.NextMsg(nil)
	var closedErr *ClosedError
	if err == nil {
		t.Fatal("NextMsg() after peer close = nil error, want *ClosedError")
	}
	if ce, ok := err.(*ClosedError); ok {
		closedErr = ce
	} else {
		t.Fatalf("NextMsg() error = %v (%T), want *ClosedError", err, err)
	}
	if closedErr.Code != CloseNormalClosure {
		t.Errorf("ClosedError.Code = %v, want CloseNormalClosure", closedErr.Code)
	}

	<-done
}
