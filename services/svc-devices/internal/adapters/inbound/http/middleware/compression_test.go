package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/stretchr/testify/require"
)

func largeJSON() string {
	devices := make([]string, 50)
	for index := range devices {
		devices[index] = `{"id":"device-` + strings.Repeat("x", 20) + `","name":"test device"}`
	}

	return `{"data":[` + strings.Join(devices, ",") + `]}`
}

func bodyHandler(status int, body, contentType string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}

		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func defaultCompressionConfig() config.Compression {
	return config.Compression{
		Enabled:   true,
		Level:     5,
		MinSize:   1024,
		SkipPaths: []string{"/health", "/health/live", "/health/ready"},
	}
}

func TestCompression(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name             string
		method           string
		path             string
		acceptEncoding   string
		status           int
		body             string
		contentType      string
		expectedEncoding string
	}{
		{
			name:             "gzip",
			acceptEncoding:   "gzip",
			body:             largeJSON(),
			contentType:      "application/json",
			expectedEncoding: "gzip",
		},
		{
			name:             "brotli",
			acceptEncoding:   "br",
			body:             largeJSON(),
			contentType:      "application/json",
			expectedEncoding: "br",
		},
		{
			name:             "client preference wins",
			acceptEncoding:   "gzip;q=0.5, br;q=0.9",
			body:             largeJSON(),
			contentType:      "application/json",
			expectedEncoding: "br",
		},
		{
			name:           "small body stays plain",
			acceptEncoding: "gzip",
			body:           `{"status":"ok"}`,
			contentType:    "application/json",
		},
		{
			name:           "unsupported content type",
			acceptEncoding: "gzip",
			body:           largeJSON(),
			contentType:    "image/png",
		},
		{
			name:        "no accept-encoding",
			body:        largeJSON(),
			contentType: "application/json",
		},
		{
			name:           "skip path",
			path:           "/health",
			acceptEncoding: "gzip",
			body:           largeJSON(),
			contentType:    "application/json",
		},
		{
			name:           "head request",
			method:         http.MethodHead,
			acceptEncoding: "gzip",
			body:           largeJSON(),
			contentType:    "application/json",
		},
		{
			name:           "no content",
			acceptEncoding: "gzip",
			status:         http.StatusNoContent,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			method := tc.method
			if method == "" {
				method = http.MethodGet
			}

			path := tc.path
			if path == "" {
				path = "/v1/devices"
			}

			status := tc.status
			if status == 0 {
				status = http.StatusOK
			}

			req := httptest.NewRequest(method, path, nil)
			if tc.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tc.acceptEncoding)
			}

			rec := httptest.NewRecorder()
			Compression(defaultCompressionConfig())(bodyHandler(status, tc.body, tc.contentType)).ServeHTTP(rec, req)

			require.Equal(t, status, rec.Code)
			require.Equal(t, tc.expectedEncoding, rec.Header().Get("Content-Encoding"))

			var reader io.Reader = rec.Body

			switch tc.expectedEncoding {
			case encodingGzip:
				gr, err := gzip.NewReader(rec.Body)
				require.NoError(t, err)
				reader = gr
			case encodingBrotli:
				reader = brotli.NewReader(rec.Body)
			}

			decoded, err := io.ReadAll(reader)
			require.NoError(t, err)

			if method != http.MethodHead {
				require.Equal(t, tc.body, string(decoded))
			}
		})
	}
}

func TestCompressionDisabled(t *testing.T) {
	t.Parallel()

	cfg := defaultCompressionConfig()
	cfg.Enabled = false

	req := httptest.NewRequest(http.MethodGet, "/v1/devices", nil)
	req.Header.Set("Accept-Encoding", "gzip")

	rec := httptest.NewRecorder()
	Compression(cfg)(bodyHandler(http.StatusOK, largeJSON(), "application/json")).ServeHTTP(rec, req)

	require.Empty(t, rec.Header().Get("Content-Encoding"))
	require.Equal(t, largeJSON(), rec.Body.String())
}

func TestSelectEncoding(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		header   string
		expected string
	}{
		{name: "empty", header: "", expected: ""},
		{name: "identity only", header: "identity", expected: ""},
		{name: "tie prefers gzip", header: "br, gzip", expected: "gzip"},
		{name: "weights", header: "gzip;q=0.2, br;q=0.8", expected: "br"},
		{name: "wildcard", header: "*", expected: "gzip"},
		{name: "rejected encoding", header: "gzip;q=0, br", expected: "br"},
		{name: "deflate is not offered", header: "deflate", expected: ""},
		{name: "case insensitive", header: "GZIP", expected: "gzip"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.expected, selectEncoding(parseAcceptEncoding(tc.header)))
		})
	}
}

func TestShouldSkipPath(t *testing.T) {
	t.Parallel()

	skip := []string{"/health", "/metrics/"}

	require.True(t, shouldSkipPath("/health", skip))
	require.True(t, shouldSkipPath("/health/ready", skip))
	require.True(t, shouldSkipPath("/metrics/runtime", skip))
	require.False(t, shouldSkipPath("/healthz", skip))
	require.False(t, shouldSkipPath("/v1/devices", skip))
}
