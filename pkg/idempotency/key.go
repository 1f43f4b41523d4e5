package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	MinKeyLength = 16
	MaxKeyLength = 128
	KeyPrefix    = "idempotency"
)

var (
	ErrKeyTooShort = errors.New("idempotency key must be at least 16 characters")
	ErrKeyTooLong  = errors.New("idempotency key must not exceed 128 characters")
	ErrKeyInvalid  = errors.New("idempotency key contains invalid characters")

	validKeyPattern = regexp.MustCompile(`^[a-zA-Z0-9\-_]+$`)
)

// Record is a stored response replayed for a repeated key.
type Record struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"body"`
	Fingerprint string            `json:"fingerprint"`
	CreatedAt   time.Time         `json:"created_at"`
}

// Matches reports whether the record was produced by a request with the same payload.
func (r Record) Matches(fingerprint string) bool {
	return r.Fingerprint == "" || r.Fingerprint == fingerprint
}

func Validate(key string) error {
	switch {
	case len(key) < MinKeyLength:
		return ErrKeyTooShort
	case len(key) > MaxKeyLength:
		return ErrKeyTooLong
	case !validKeyPattern.MatchString(key):
		return ErrKeyInvalid
	}

	return nil
}

// BuildCacheKey scopes a client key to the method and path it was sent with.
func BuildCacheKey(method, path, key string) string {
	return fmt.Sprintf("%s:%s", KeyPrefix, digest(method+":"+path+":"+key))
}

// Fingerprint hashes a request body so reuse of a key with a different payload
// can be detected.
func Fingerprint(body []byte) string {
	return digest(string(body))
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))

	return hex.EncodeToString(sum[:])
}
