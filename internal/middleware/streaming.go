package middleware

import (
	"bufio"
	"errors"
	"net"
	"net/http"
)

// RelayResponseWriter wraps the inbound http.ResponseWriter for the
// dispatch-streaming phase, where streampump.Pump.Relay copies
// upstream SSE chunks straight through to the caller. It exists
// because the dispatch phase needs the status code and byte count
// after the fact (for the UsageRecord and request log), and because an
// http.ResponseWriter obtained through several layers of chi
// middleware can lose the Flusher/Hijacker/Pusher interfaces a raw
// relay needs preserved.
type RelayResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	written      bool
	bytesWritten int64
}

// NewRelayResponseWriter wraps w for one streamed dispatch.
func NewRelayResponseWriter(w http.ResponseWriter) *RelayResponseWriter {
	return &RelayResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
		written:        false,
		bytesWritten:   0,
	}
}

// WriteHeader captures the status code the relay settled on, since
// upstream SSE responses write it once and then stream body chunks.
func (w *RelayResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.statusCode = code
		w.written = true
		w.ResponseWriter.WriteHeader(code)
	}
}

// Write relays one chunk and tallies it toward BytesWritten.
func (w *RelayResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += int64(n)
	return n, err
}

// Flush pushes a relayed chunk to the client immediately; Pump.Relay
// calls this after every event so SSE consumers see tokens as they
// arrive rather than buffered.
func (w *RelayResponseWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack implements http.Hijacker for transports below chi that need it.
func (w *RelayResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijack not supported")
}

// Push implements http.Pusher; unused by any current relay path but
// kept so this wrapper is a transparent http.ResponseWriter substitute.
func (w *RelayResponseWriter) Push(target string, opts *http.PushOptions) error {
	if p, ok := w.ResponseWriter.(http.Pusher); ok {
		return p.Push(target, opts)
	}
	return http.ErrNotSupported
}

// StatusCode returns the status code the relay wrote.
func (w *RelayResponseWriter) StatusCode() int {
	return w.statusCode
}

// Written reports whether headers have already gone out.
func (w *RelayResponseWriter) Written() bool {
	return w.written
}

// BytesWritten returns the number of body bytes relayed to the client,
// independent of the provider-reported token usage streampump.Pump
// accumulates separately.
func (w *RelayResponseWriter) BytesWritten() int64 {
	return w.bytesWritten
}

// Unwrap exposes the underlying ResponseWriter, e.g. for chi's own
// middleware.WrapResponseWriter chain further up the stack.
func (w *RelayResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
