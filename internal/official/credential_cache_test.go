package official

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/spec-kit/official-relay/internal/domain"
	"github.com/spec-kit/official-relay/internal/observability"
	apperrors "github.com/spec-kit/official-relay/pkg/util/errorutil"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeIssuer struct {
	calls     atomic.Int32
	expiresIn int
	err       error
	delay     time.Duration
}

func (f *fakeIssuer) IssueCredential(context.Context) (*TokenResponse, error) {
	n := f.calls.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	return &TokenResponse{AccessToken: "token-" + string(rune('0'+n)), ExpiresIn: f.expiresIn}, nil
}

type memoryShared struct {
	mu    sync.Mutex
	cred  domain.Credential
	saves int
}

func (m *memoryShared) Load(context.Context) (domain.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cred, nil
}

func (m *memoryShared) Save(_ context.Context, cred domain.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cred = cred
	m.saves++
	return nil
}

func (m *memoryShared) Clear(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cred.Token == token {
		m.cred = domain.Credential{}
	}
	return nil
}

type CredentialCacheSuite struct {
	suite.Suite
	clock  *fakeClock
	issuer *fakeIssuer
	cache  *CredentialCache
	ctx    context.Context
}

func TestCredentialCacheSuite(t *testing.T) {
	suite.Run(t, new(CredentialCacheSuite))
}

func (s *CredentialCacheSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = &fakeClock{now: time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)}
	s.issuer = &fakeIssuer{expiresIn: 7200}
	s.cache = s.newCache(nil)
}

func (s *CredentialCacheSuite) newCache(shared SharedCredentialStore) *CredentialCache {
	return NewCredentialCache(s.issuer, CacheOptions{
		Margin:   100 * time.Second,
		Fallback: 7000 * time.Second,
		Shared:   shared,
		Now:      s.clock.Now,
		Metrics:  observability.NewMetrics(prometheus.NewRegistry()),
	})
}

func (s *CredentialCacheSuite) TestHitsUntilMarginThenRefreshesOnce() {
	token, err := s.cache.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal("token-1", token)
	s.Equal(int32(1), s.issuer.calls.Load())

	// Just before T + L - margin every call is served from the cache.
	s.clock.Advance(7100*time.Second - time.Nanosecond)
	for i := 0; i < 5; i++ {
		token, err = s.cache.Get(s.ctx)
		s.Require().NoError(err)
		s.Equal("token-1", token)
	}
	s.Equal(int32(1), s.issuer.calls.Load())

	s.clock.Advance(time.Nanosecond)
	token, err = s.cache.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal("token-2", token)
	s.Equal(int32(2), s.issuer.calls.Load())

	token, err = s.cache.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal("token-2", token)
	s.Equal(int32(2), s.issuer.calls.Load())
}

func (s *CredentialCacheSuite) TestFallbackLifetimeWhenOmitted() {
	s.issuer.expiresIn = 0
	_, err := s.cache.Get(s.ctx)
	s.Require().NoError(err)

	s.Equal(s.clock.Now().Add(7000*time.Second), s.cache.Peek().ExpiresAt)
}

func (s *CredentialCacheSuite) TestShortLifetimeIsHalved() {
	s.issuer.expiresIn = 60
	_, err := s.cache.Get(s.ctx)
	s.Require().NoError(err)

	s.Equal(s.clock.Now().Add(30*time.Second), s.cache.Peek().ExpiresAt)
}

func (s *CredentialCacheSuite) TestFailedRefreshSurfacesUpstreamError() {
	s.issuer.err = &APIError{Code: 40013, Msg: "invalid appid"}

	_, err := s.cache.Get(s.ctx)
	s.Require().Error(err)
	s.True(apperrors.IsCode(err, "UPSTREAM_FAILED"))

	var apiErr *APIError
	s.Require().ErrorAs(err, &apiErr)
	s.Equal(40013, apiErr.Code)
	s.Equal(domain.Credential{}, s.cache.Peek())
}

func (s *CredentialCacheSuite) TestFailedRefreshKeepsPriorEntry() {
	_, err := s.cache.Get(s.ctx)
	s.Require().NoError(err)
	before := s.cache.Peek()

	s.issuer.err = errors.New("network down")
	s.clock.Advance(7100 * time.Second)

	_, err = s.cache.Get(s.ctx)
	s.Require().Error(err)
	s.Equal(before, s.cache.Peek(), "failed refresh must not mutate state")
	s.Equal(int32(2), s.issuer.calls.Load())
}

func (s *CredentialCacheSuite) TestConcurrentMissesShareOneRefresh() {
	s.issuer.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := s.cache.Get(s.ctx)
			s.NoError(err)
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), s.issuer.calls.Load())
	for _, token := range tokens {
		s.Equal("token-1", token)
	}
}

func (s *CredentialCacheSuite) TestInvalidateOnlyDropsMatchingToken() {
	token, err := s.cache.Get(s.ctx)
	s.Require().NoError(err)

	s.cache.Invalidate(s.ctx, "someone-else")
	s.Equal(token, s.cache.Peek().Token)

	s.cache.Invalidate(s.ctx, token)
	s.Equal("", s.cache.Peek().Token)

	next, err := s.cache.Get(s.ctx)
	s.Require().NoError(err)
	s.Equal("token-2", next)
}

func (s *CredentialCacheSuite) TestSharedStore() {
	s.Run("adopts a valid shared token without calling upstream", func() {
		shared := &memoryShared{cred: domain.Credential{Token: "from-peer", ExpiresAt: s.clock.Now().Add(time.Hour)}}
		cache := s.newCache(shared)

		token, err := cache.Get(s.ctx)
		s.Require().NoError(err)
		s.Equal("from-peer", token)
		s.Equal(int32(0), s.issuer.calls.Load())
	})

	s.Run("writes fresh tokens through", func() {
		shared := &memoryShared{cred: domain.Credential{Token: "stale", ExpiresAt: s.clock.Now().Add(-time.Second)}}
		cache := s.newCache(shared)

		token, err := cache.Get(s.ctx)
		s.Require().NoError(err)
		s.Equal(token, shared.cred.Token)
		s.Equal(1, shared.saves)

		cache.Invalidate(s.ctx, token)
		s.Equal("", shared.cred.Token)
	})
}

func TestLifetime(t *testing.T) {
	cache := NewCredentialCache(&fakeIssuer{}, CacheOptions{Margin: 100 * time.Second})
	require.NotNil(t, cache)
	assert.Equal(t, 7100*time.Second, cache.lifetime(7200))
	assert.Equal(t, 7000*time.Second, cache.lifetime(0))
	assert.Equal(t, 50*time.Second, cache.lifetime(100))
}
