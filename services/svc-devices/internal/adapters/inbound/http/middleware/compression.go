package middleware

import (
	"bufio"
	"compress/gzip"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
)

const (
	encodingGzip   = "gzip"
	encodingBrotli = "br"
)

var DefaultCompressibleTypes = []string{
	"application/json",
	"application/problem+json",
	"application/yaml",
	"text/plain",
}

// serverPreferenceOrder breaks ties between equally weighted encodings.
var serverPreferenceOrder = []string{encodingGzip, encodingBrotli}

type acceptEncoding struct {
	encoding string
	quality  float64
}

// Compression negotiates gzip or brotli from Accept-Encoding and compresses
// bodies of at least cfg.MinSize bytes with a compressible content type.
func Compression(cfg config.Compression) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	contentTypes := cfg.ContentTypes
	if len(contentTypes) == 0 {
		contentTypes = DefaultCompressibleTypes
	}

	pools := map[string]*sync.Pool{
		encodingGzip: {New: func() any {
			w, err := gzip.NewWriterLevel(io.Discard, cfg.Level)
			if err != nil {
				w = gzip.NewWriter(io.Discard)
			}

			return w
		}},
		encodingBrotli: {New: func() any {
			return brotli.NewWriterLevel(io.Discard, cfg.Level)
		}},
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodHead || shouldSkipPath(r.URL.Path, cfg.SkipPaths) {
				next.ServeHTTP(w, r)

				return
			}

			encoding := selectEncoding(parseAcceptEncoding(r.Header.Get("Accept-Encoding")))
			if encoding == "" {
				next.ServeHTTP(w, r)

				return
			}

			w.Header().Add("Vary", "Accept-Encoding")

			cw := &compressResponseWriter{
				ResponseWriter: w,
				encoding:       encoding,
				pool:           pools[encoding],
				minSize:        cfg.MinSize,
				contentTypes:   contentTypes,
				statusCode:     http.StatusOK,
			}
			defer func() { _ = cw.Close() }()

			next.ServeHTTP(cw, r)
		})
	}
}

func parseAcceptEncoding(header string) []acceptEncoding {
	var encodings []acceptEncoding

	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		enc := acceptEncoding{quality: 1.0}
		subparts := strings.Split(part, ";")
		enc.encoding = strings.ToLower(strings.TrimSpace(subparts[0]))

		for _, param := range subparts[1:] {
			param = strings.TrimSpace(param)
			if value, ok := strings.CutPrefix(param, "q="); ok {
				if q, err := strconv.ParseFloat(value, 64); err == nil {
					enc.quality = q
				}
			}
		}

		encodings = append(encodings, enc)
	}

	return encodings
}

func selectEncoding(encodings []acceptEncoding) string {
	best := ""
	bestQuality := 0.0
	bestPriority := len(serverPreferenceOrder)

	for _, enc := range encodings {
		if enc.quality <= 0 {
			continue
		}

		candidates := []string{enc.encoding}
		if enc.encoding == "*" {
			candidates = serverPreferenceOrder
		}

		for _, candidate := range candidates {
			priority := slices.Index(serverPreferenceOrder, candidate)
			if priority < 0 {
				continue
			}

			if enc.quality > bestQuality || (enc.quality == bestQuality && priority < bestPriority) {
				best, bestQuality, bestPriority = candidate, enc.quality, priority
			}
		}
	}

	return best
}

func shouldSkipPath(path string, skipPaths []string) bool {
	for _, skipPath := range skipPaths {
		if path == skipPath || strings.HasPrefix(path, strings.TrimSuffix(skipPath, "/")+"/") {
			return true
		}
	}

	return false
}

// compressResponseWriter buffers the first minSize bytes before deciding
// whether the response is worth compressing.
type compressResponseWriter struct {
	http.ResponseWriter
	encoding     string
	pool         *sync.Pool
	minSize      int
	contentTypes []string

	statusCode int
	buf        []byte
	decided    bool
	encoder    io.WriteCloser
}

func (w *compressResponseWriter) WriteHeader(statusCode int) {
	if w.decided {
		return
	}

	w.statusCode = statusCode
}

func (w *compressResponseWriter) Write(b []byte) (int, error) {
	if w.decided {
		if w.encoder != nil {
			return w.encoder.Write(b)
		}

		return w.ResponseWriter.Write(b)
	}

	w.buf = append(w.buf, b...)
	if len(w.buf) >= w.minSize {
		if err := w.decide(); err != nil {
			return 0, err
		}
	}

	return len(b), nil
}

func (w *compressResponseWriter) decide() error {
	w.decided = true

	if !w.compressible() {
		w.ResponseWriter.WriteHeader(w.statusCode)

		return w.flushBuffer(w.ResponseWriter)
	}

	w.Header().Set("Content-Encoding", w.encoding)
	w.Header().Del("Content-Length")
	w.ResponseWriter.WriteHeader(w.statusCode)

	switch encoder := w.pool.Get().(type) {
	case *gzip.Writer:
		encoder.Reset(w.ResponseWriter)
		w.encoder = encoder
	case *brotli.Writer:
		encoder.Reset(w.ResponseWriter)
		w.encoder = encoder
	}

	return w.flushBuffer(w.encoder)
}

func (w *compressResponseWriter) compressible() bool {
	if len(w.buf) < w.minSize || len(w.buf) == 0 {
		return false
	}

	if w.statusCode == http.StatusNoContent || w.statusCode == http.StatusNotModified {
		return false
	}

	if w.Header().Get("Content-Encoding") != "" {
		return false
	}

	mediaType, _, _ := strings.Cut(w.Header().Get("Content-Type"), ";")
	mediaType = strings.ToLower(strings.TrimSpace(mediaType))

	for _, allowed := range w.contentTypes {
		if strings.EqualFold(allowed, mediaType) {
			return true
		}
	}

	return false
}

func (w *compressResponseWriter) flushBuffer(dst io.Writer) error {
	if len(w.buf) == 0 {
		return nil
	}

	_, err := dst.Write(w.buf)
	w.buf = nil

	return err
}

func (w *compressResponseWriter) Close() error {
	if !w.decided {
		if err := w.decide(); err != nil {
			return err
		}
	}

	if w.encoder == nil {
		return nil
	}

	err := w.encoder.Close()
	w.pool.Put(w.encoder)
	w.encoder = nil

	return err
}

func (w *compressResponseWriter) Flush() {
	if !w.decided {
		_ = w.decide()
	}

	if flusher, ok := w.encoder.(interface{ Flush() error }); ok {
		_ = flusher.Flush()
	}

	if flusher, ok := w.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (w *compressResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hijacker, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hijacker.Hijack()
	}

	return nil, nil, http.ErrNotSupported
}
