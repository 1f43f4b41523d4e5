package middleware_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/architeacher/device-inventory/pkg/idempotency"
	"github.com/architeacher/device-inventory/pkg/logger"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/adapters/inbound/http/middleware"
	"github.com/architeacher/device-inventory/services/svc-devices/internal/config"
	"github.com/stretchr/testify/suite"
)

const validKey = "550e8400-e29b-41d4-a716-446655440000"

type memoryIdempotencyStore struct {
	mu       sync.Mutex
	records  map[string]*idempotency.Record
	locks    map[string]bool
	err      error
	getCalls int
}

func newMemoryIdempotencyStore() *memoryIdempotencyStore {
	return &memoryIdempotencyStore{
		records: map[string]*idempotency.Record{},
		locks:   map[string]bool{},
	}
}

func (m *memoryIdempotencyStore) Get(_ context.Context, key string) (*idempotency.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.getCalls++

	if m.err != nil {
		return nil, m.err
	}

	return m.records[key], nil
}

func (m *memoryIdempotencyStore) Set(_ context.Context, key string, record *idempotency.Record, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[key] = record

	return nil
}

func (m *memoryIdempotencyStore) Lock(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[key] {
		return false, nil
	}

	m.locks[key] = true

	return true, nil
}

func (m *memoryIdempotencyStore) Unlock(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.locks, key)

	return nil
}

type IdempotencyMiddlewareTestSuite struct {
	suite.Suite
	store *memoryIdempotencyStore
	cfg   config.Idempotency
	calls int
}

func TestIdempotencyMiddlewareSuite(t *testing.T) {
	t.Parallel()
	suite.Run(t, new(IdempotencyMiddlewareTestSuite))
}

func (s *IdempotencyMiddlewareTestSuite) SetupTest() {
	s.store = newMemoryIdempotencyStore()
	s.calls = 0
	s.cfg = config.Idempotency{
		Enabled:          true,
		CacheTTL:         24 * time.Hour,
		LockTTL:          30 * time.Second,
		RequiredMethods:  []string{http.MethodPost},
		HeaderName:       "Idempotency-Key",
		ReplayedHeader:   "Idempotent-Replayed",
		GracefulDegraded: true,
	}
}

func (s *IdempotencyMiddlewareTestSuite) handler(status int) http.Handler {
	return middleware.Idempotency(s.store, s.cfg, logger.NewTestLogger())(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.calls++

			body, err := io.ReadAll(r.Body)
			s.Require().NoError(err)

			key, ok := idempotency.FromContext(r.Context())
			s.Require().True(ok)
			s.Require().Equal(validKey, key)

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Location", "/v1/devices/42")
			w.WriteHeader(status)
			_, _ = w.Write(body)
		}),
	)
}

func (s *IdempotencyMiddlewareTestSuite) post(handler http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/devices", strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	return rec
}

func (s *IdempotencyMiddlewareTestSuite) TestSkipsWithoutKey() {
	handler := middleware.Idempotency(s.store, s.cfg, logger.NewTestLogger())(okHandler(`{}`))

	rec := s.post(handler, "", `{"name":"Pixel"}`)

	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().Zero(s.store.getCalls)
}

func (s *IdempotencyMiddlewareTestSuite) TestSkipsNonMutatingMethods() {
	handler := middleware.Idempotency(s.store, s.cfg, logger.NewTestLogger())(okHandler(`{}`))

	req := httptest.NewRequest(http.MethodGet, "/v1/devices", nil)
	req.Header.Set("Idempotency-Key", validKey)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	s.Require().Equal(http.StatusOK, rec.Code)
	s.Require().Zero(s.store.getCalls)
}

func (s *IdempotencyMiddlewareTestSuite) TestRejectsInvalidKey() {
	rec := s.post(s.handler(http.StatusCreated), "short", `{}`)

	s.Require().Equal(http.StatusBadRequest, rec.Code)
	s.Require().Equal("INVALID_IDEMPOTENCY_KEY", decodeError(s.T(), rec.Body.Bytes()).Code)
	s.Require().Zero(s.calls)
}

func (s *IdempotencyMiddlewareTestSuite) TestReplaysStoredResponse() {
	handler := s.handler(http.StatusCreated)

	first := s.post(handler, validKey, `{"name":"Pixel","brand":"Google"}`)
	s.Require().Equal(http.StatusCreated, first.Code)
	s.Require().Empty(first.Header().Get("Idempotent-Replayed"))

	second := s.post(handler, validKey, `{"name":"Pixel","brand":"Google"}`)
	s.Require().Equal(http.StatusCreated, second.Code)
	s.Require().Equal("true", second.Header().Get("Idempotent-Replayed"))
	s.Require().Equal("/v1/devices/42", second.Header().Get("Location"))
	s.Require().Equal("application/json", second.Header().Get("Content-Type"))
	s.Require().Equal(first.Body.String(), second.Body.String())
	s.Require().Equal(1, s.calls)
}

func (s *IdempotencyMiddlewareTestSuite) TestRejectsKeyReuseWithDifferentBody() {
	handler := s.handler(http.StatusCreated)

	s.Require().Equal(http.StatusCreated, s.post(handler, validKey, `{"name":"Pixel"}`).Code)

	rec := s.post(handler, validKey, `{"name":"Galaxy"}`)
	s.Require().Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Require().Equal("IDEMPOTENCY_KEY_REUSED", decodeError(s.T(), rec.Body.Bytes()).Code)
	s.Require().Equal(1, s.calls)
}

func (s *IdempotencyMiddlewareTestSuite) TestFailuresAreNotStored() {
	handler := s.handler(http.StatusBadRequest)

	s.Require().Equal(http.StatusBadRequest, s.post(handler, validKey, `{}`).Code)
	s.Require().Equal(http.StatusBadRequest, s.post(handler, validKey, `{}`).Code)
	s.Require().Equal(2, s.calls)
	s.Require().Empty(s.store.records)
	s.Require().Empty(s.store.locks)
}

func (s *IdempotencyMiddlewareTestSuite) TestConcurrentRequestIsRejected() {
	cacheKey := idempotency.BuildCacheKey(http.MethodPost, "/v1/devices", validKey)
	s.store.locks[cacheKey] = true

	rec := s.post(s.handler(http.StatusCreated), validKey, `{}`)

	s.Require().Equal(http.StatusConflict, rec.Code)
	s.Require().Equal("REQUEST_IN_PROGRESS", decodeError(s.T(), rec.Body.Bytes()).Code)
	s.Require().Zero(s.calls)
}

func (s *IdempotencyMiddlewareTestSuite) TestStoreFailure() {
	cases := []struct {
		name           string
		degraded       bool
		expectedStatus int
		expectedCalls  int
	}{
		{name: "graceful degradation serves the request", degraded: true, expectedStatus: http.StatusCreated, expectedCalls: 1},
		{name: "strict mode rejects", degraded: false, expectedStatus: http.StatusServiceUnavailable},
	}

	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.store = newMemoryIdempotencyStore()
			s.store.err = errors.New("redis down")
			s.calls = 0
			s.cfg.GracefulDegraded = tc.degraded

			rec := s.post(s.handler(http.StatusCreated), validKey, `{}`)

			s.Require().Equal(tc.expectedStatus, rec.Code)
			s.Require().Equal(tc.expectedCalls, s.calls)
		})
	}
}
