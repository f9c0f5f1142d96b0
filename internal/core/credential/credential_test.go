package credential

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/amerfu/pllm-gateway/internal/cache"
	"github.com/amerfu/pllm-gateway/internal/models"
	"github.com/amerfu/pllm-gateway/internal/store"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeResolver struct {
	byFingerprint map[string]*models.Credential
	calls         int
}

func (f *fakeResolver) GetCredentialByFingerprint(ctx context.Context, fingerprint string) (*models.Credential, error) {
	f.calls++
	cred, ok := f.byFingerprint[fingerprint]
	if !ok {
		return nil, store.ErrNotFound
	}
	return cred, nil
}

func newTestStore(t *testing.T) (*Store, *fakeResolver) {
	t.Helper()
	snapshots, err := cache.NewSnapshots(1024)
	require.NoError(t, err)
	resolver := &fakeResolver{byFingerprint: map[string]*models.Credential{}}
	store := NewStore(resolver, snapshots, "test-salt", 30*time.Second, zap.NewNop())
	return store, resolver
}

func TestFingerprintIsDeterministicAndSalted(t *testing.T) {
	store, _ := newTestStore(t)
	other := NewStore(nil, nil, "different-salt", 0, zap.NewNop())

	fp1 := store.Fingerprint("sk-agent-secret")
	fp2 := store.Fingerprint("sk-agent-secret")
	assert.Equal(t, fp1, fp2)
	assert.NotEqual(t, fp1, other.Fingerprint("sk-agent-secret"))
}

func TestResolveCachesAcrossCalls(t *testing.T) {
	store, resolver := newTestStore(t)
	cred := &models.Credential{TenantID: uuid.New(), Active: true}
	fp := store.Fingerprint("sk-agent-secret")
	resolver.byFingerprint[fp] = cred

	ctx := context.Background()
	got, err := store.Resolve(ctx, "sk-agent-secret")
	require.NoError(t, err)
	assert.Equal(t, cred.TenantID, got.TenantID)
	assert.Equal(t, 1, resolver.calls)

	_, err = store.Resolve(ctx, "sk-agent-secret")
	require.NoError(t, err)
	assert.Equal(t, 1, resolver.calls, "second resolve should be served from the snapshot cache")
}

func TestResolveUnknownFingerprint(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Resolve(context.Background(), "sk-does-not-exist")
	assert.ErrorIs(t, err, ErrUnknown)
}

func TestExtractSecretFromBearer(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("Authorization", "Bearer sk-agent-secret")

	secret, err := ExtractSecret(req)
	require.NoError(t, err)
	assert.Equal(t, "sk-agent-secret", secret)
}

func TestExtractSecretFromAPIKeyHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("X-API-Key", "sk-agent-secret")

	secret, err := ExtractSecret(req)
	require.NoError(t, err)
	assert.Equal(t, "sk-agent-secret", secret)
}

func TestExtractSecretFromAccKeyHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	req.Header.Set("x-acc-api-key", "sk-agent-secret")

	secret, err := ExtractSecret(req)
	require.NoError(t, err)
	assert.Equal(t, "sk-agent-secret", secret)
}

func TestExtractSecretMissing(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", nil)
	_, err := ExtractSecret(req)
	assert.ErrorIs(t, err, ErrNoCredential)
}
