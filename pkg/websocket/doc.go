// Package websocket implements a client-side WebSocket protocol engine
// conforming to RFC 6455 (https://datatracker.ietf.org/doc/html/rfc6455).
//
// The core type, Conn, is a single-owner, single-threaded cooperative
// state machine: callers drive it by blocking on NextMsg to receive
// messages and calling SendText/SendBinary/SendPing/SendPong/Close to
// send them, over any transport that implements io.ReadWriteCloser.
// There is no background goroutine relaying frames and no internal
// locking - a Conn is meant to be owned and driven by exactly one
// goroutine at a time, matching how a cooperative single-threaded event
// loop would use it.
//
// Deliberately out of scope: the server role, WebSocket extensions
// (including permessage-deflate), subprotocol negotiation, automatic
// reconnection, and backpressure beyond whatever the underlying
// transport already provides. Connection pooling for running many
// independent connections concurrently (as the autobahn/wstest interop
// harness does) is provided by Pool, which is a thin fan-out over Conn
// rather than part of the protocol engine itself.
package websocket
