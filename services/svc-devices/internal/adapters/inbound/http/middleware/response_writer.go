package middleware

import (
	"bufio"
	"net"
	"net/http"
)

// FlushableResponseWriter records the status and size of a response while
// keeping the optional interfaces of the wrapped writer reachable.
type FlushableResponseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten uint64
	wroteHeader  bool
}

func NewFlushableResponseWriter(w http.ResponseWriter) *FlushableResponseWriter {
	return &FlushableResponseWriter{
		ResponseWriter: w,
		statusCode:     http.StatusOK,
	}
}

func (w *FlushableResponseWriter) WriteHeader(code int) {
	if w.wroteHeader {
		return
	}

	w.statusCode = code
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *FlushableResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}

	n, err := w.ResponseWriter.Write(b)
	w.bytesWritten += uint64(n)

	return n, err
}

func (w *FlushableResponseWriter) StatusCode() int {
	return w.statusCode
}

func (w *FlushableResponseWriter) BytesWritten() uint64 {
	return w.bytesWritten
}

func (w *FlushableResponseWriter) Flush() {
	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *FlushableResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}

	return nil, nil, http.ErrNotSupported
}

func (w *FlushableResponseWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
