// Package credential is the Auth phase of the pipeline: it extracts a
// bearer secret from the inbound request, fingerprints it, and resolves
// the fingerprint to a tenant through a short-TTL cache backed by the
// authoritative store.
package credential

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/amerfu/pllm-gateway/internal/cache"
	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/amerfu/pllm-gateway/internal/store"
	"go.uber.org/zap"
)

var (
	// ErrNoCredential means the request carried no extractable secret.
	ErrNoCredential = errors.New("credential: no credential presented")
	// ErrUnknown means the fingerprint does not resolve to an active
	// credential. It is never an authorizer on collision: two distinct
	// secrets that hash to the same fingerprint is treated as a system
	// failure, not a grant, because this only resolves to one tenant.
	ErrUnknown = errors.New("credential: unknown or inactive credential")
	// ErrUnavailable means the store could not be reached to resolve a
	// fingerprint that was not already cached; callers must fail closed.
	ErrUnavailable = errors.New("credential: resolution unavailable")
)

// Resolver looks a fingerprint up in the authoritative store.
type Resolver interface {
	GetCredentialByFingerprint(ctx context.Context, fingerprint string) (*models.Credential, error)
}

type Store struct {
	resolver  Resolver
	snapshots *cache.Snapshots
	salt      string
	ttl       time.Duration
	logger    *zap.Logger
}

func NewStore(resolver Resolver, snapshots *cache.Snapshots, salt string, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{resolver: resolver, snapshots: snapshots, salt: salt, ttl: ttl, logger: logger}
}

// Fingerprint computes the salted SHA256 fingerprint of a raw secret. The
// secret itself is never retained past this call.
func (s *Store) Fingerprint(secret string) string {
	h := sha256.Sum256([]byte(secret + s.salt))
	return hex.EncodeToString(h[:])
}

// Resolve fingerprints secret and returns the credential it maps to,
// preferring the in-process snapshot cache over a store round trip.
func (s *Store) Resolve(ctx context.Context, secret string) (*models.Credential, error) {
	fp := s.Fingerprint(secret)

	cacheKey := "credential:" + fp
	if raw, ok := s.snapshots.Get(cacheKey); ok {
		var cred models.Credential
		if err := json.Unmarshal(raw, &cred); err == nil {
			return &cred, nil
		}
	}

	cred, err := s.resolver.GetCredentialByFingerprint(ctx, fp)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknown
		}
		s.logger.Warn("credential store unreachable", zap.Error(err))
		return nil, ErrUnavailable
	}

	if raw, err := json.Marshal(cred); err == nil {
		s.snapshots.Set(cacheKey, raw, s.ttl)
	}
	return cred, nil
}

// ExtractSecret pulls the bearer secret out of a request, preferring the
// gateway's own header and falling back to each upstream SDK's native
// shape: x-acc-api-key, x-api-key (Anthropic-style), or Authorization:
// Bearer (OpenAI-style). Query-param extraction is deliberately not
// supported here to keep secrets out of access logs.
func ExtractSecret(r *http.Request) (string, error) {
	if key := r.Header.Get("x-acc-api-key"); key != "" {
		return key, nil
	}
	if key := r.Header.Get("x-api-key"); key != "" {
		return key, nil
	}
	if authHeader := r.Header.Get("Authorization"); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1], nil
		}
		return authHeader, nil
	}
	return "", ErrNoCredential
}
