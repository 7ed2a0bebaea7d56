package official

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/official-relay/internal/domain"
	"github.com/spec-kit/official-relay/internal/observability"
	apperrors "github.com/spec-kit/official-relay/pkg/util/errorutil"
)

const refreshKey = "access_token"

// CredentialIssuer obtains a fresh access token from the platform.
type CredentialIssuer interface {
	IssueCredential(ctx context.Context) (*TokenResponse, error)
}

// SharedCredentialStore lets several relay instances reuse one token. Load returns
// a zero Credential when nothing is stored.
type SharedCredentialStore interface {
	Load(ctx context.Context) (domain.Credential, error)
	Save(ctx context.Context, cred domain.Credential) error
	Clear(ctx context.Context, token string) error
}

// CacheOptions configures a CredentialCache.
type CacheOptions struct {
	Margin   time.Duration
	Fallback time.Duration
	Shared   SharedCredentialStore
	Now      func() time.Time
	Logger   *zap.Logger
	Metrics  *observability.Metrics
}

// CredentialCache owns the single active access token of the deployment.
type CredentialCache struct {
	issuer   CredentialIssuer
	shared   SharedCredentialStore
	margin   time.Duration
	fallback time.Duration
	now      func() time.Time
	logger   *zap.Logger
	metrics  *observability.Metrics

	mu    sync.RWMutex
	state domain.Credential
	sf    singleflight.Group
}

// NewCredentialCache starts with an empty credential.
func NewCredentialCache(issuer CredentialIssuer, opts CacheOptions) *CredentialCache {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Fallback <= 0 {
		opts.Fallback = 7000 * time.Second
	}
	return &CredentialCache{
		issuer:   issuer,
		shared:   opts.Shared,
		margin:   opts.Margin,
		fallback: opts.Fallback,
		now:      opts.Now,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
}

// Get returns a token that is valid now, refreshing it first when needed.
func (c *CredentialCache) Get(ctx context.Context) (string, error) {
	if cred := c.Peek(); cred.ValidAt(c.now()) {
		c.metrics.RecordCredentialHit()
		return cred.Token, nil
	}

	// The refresh outlives a cancelled first caller; the client timeout still bounds it.
	token, err, _ := c.sf.Do(refreshKey, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx))
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

// Peek returns the cached credential without refreshing it.
func (c *CredentialCache) Peek() domain.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Invalidate drops token if it is still the cached one. Used when the platform
// rejects a token before its computed expiry.
func (c *CredentialCache) Invalidate(ctx context.Context, token string) {
	c.mu.Lock()
	if c.state.Token == token {
		c.state = domain.Credential{}
	}
	c.mu.Unlock()

	if c.shared != nil {
		if err := c.shared.Clear(ctx, token); err != nil {
			c.logger.Warn("clear shared credential failed", zap.Error(err))
		}
	}
}

func (c *CredentialCache) refresh(ctx context.Context) (string, error) {
	now := c.now()
	if cred := c.Peek(); cred.ValidAt(now) {
		return cred.Token, nil
	}

	if c.shared != nil {
		cred, err := c.shared.Load(ctx)
		switch {
		case err != nil:
			c.logger.Warn("load shared credential failed", zap.Error(err))
		case cred.ValidAt(now):
			c.replace(cred)
			c.metrics.RecordCredentialRefresh("shared")
			return cred.Token, nil
		}
	}

	resp, err := c.issuer.IssueCredential(ctx)
	if err != nil {
		c.metrics.RecordCredentialRefresh("failed")
		c.logger.Error("issue access token failed", zap.Error(err))
		return "", apperrors.NewUpstreamError("get token failed", err)
	}

	cred := domain.Credential{
		Token:     resp.AccessToken,
		ExpiresAt: now.Add(c.lifetime(resp.ExpiresIn)),
	}
	c.replace(cred)
	c.metrics.RecordCredentialRefresh("issued")
	c.logger.Info("access token refreshed", zap.Time("expires_at", cred.ExpiresAt))

	if c.shared != nil {
		if err := c.shared.Save(ctx, cred); err != nil {
			c.logger.Warn("save shared credential failed", zap.Error(err))
		}
	}
	return cred.Token, nil
}

func (c *CredentialCache) replace(cred domain.Credential) {
	c.mu.Lock()
	c.state = cred
	c.mu.Unlock()
}

// lifetime is the reported lifetime minus the safety margin. Lifetimes shorter
// than the margin are halved instead.
func (c *CredentialCache) lifetime(expiresIn int) time.Duration {
	if expiresIn <= 0 {
		return c.fallback
	}
	reported := time.Duration(expiresIn) * time.Second
	if reported <= c.margin {
		return reported / 2
	}
	return reported - c.margin
}
