package viewport

// Transport is the adapter contract a concrete connection (socket, pipe,
// websocket, stdio, in-process channel) implements to carry frames between
// a viewer and a source. It is deliberately minimal: everything above
// this boundary — frame parsing, payload decoding, tree/patch application —
// is transport-agnostic.
//
// Concrete transports live outside this package; this interface is what a
// transport implementation and the viewer/source plumbing agree on.
//
// For stream-oriented transports (raw TCP, pipes, stdio) the adapter is
// responsible for feeding received bytes through a FrameReader to recover
// message boundaries before calling the registered handler; message-
// boundary transports (WebSocket, in-process channels) may hand frames
// straight through.
type Transport interface {
	// Send writes a fully encoded frame (as produced by EncodeFrame) to the
	// remote peer. It must not block past what the underlying transport
	// requires, and must be safe to call concurrently with itself.
	Send(frame []byte) error

	// OnMessage registers the handler invoked for each frame received from
	// the peer, already delimited (and, for stream transports, already
	// resynchronized past any corruption) but not yet decoded.
	OnMessage(handler func(frame []byte))

	// OnClose registers the handler invoked once the connection ends, for
	// any reason (peer close, local close, transport error).
	OnClose(handler func(err error))

	// Close ends the connection. It is safe to call more than once.
	Close() error

	// Connected reports whether the transport currently believes it has a
	// live connection.
	Connected() bool

	// Info returns transport-specific diagnostic metadata (address,
	// protocol, negotiated options) for logging; callers must not rely on
	// any particular key being present.
	Info() map[string]interface{}
}
