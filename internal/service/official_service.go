package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/official-relay/internal/config"
	"github.com/spec-kit/official-relay/internal/official"
	apperrors "github.com/spec-kit/official-relay/pkg/util/errorutil"
)

// MaxQRCodeExpireSeconds is the longest lifetime the platform accepts for temporary QR codes.
const MaxQRCodeExpireSeconds = 2592000

// QRCode is a created temporary QR code.
type QRCode struct {
	URL           string
	Ticket        string
	ExpireSeconds int
}

// OfficialService proxies platform operations using the shared credential cache.
type OfficialService struct {
	client        *official.Client
	credentials   *official.CredentialCache
	qrBaseURL     string
	defaultExpire int
	configErr     error
	logger        *zap.Logger
}

// OfficialDependencies encapsulates the platform collaborators.
type OfficialDependencies struct {
	Client      *official.Client
	Credentials *official.CredentialCache
}

// NewOfficialService builds the service. With an incomplete credential pair every
// operation fails with a ConfigError instead of calling the platform.
func NewOfficialService(cfg config.OfficialConfig, deps OfficialDependencies, logger *zap.Logger) *OfficialService {
	defaultExpire := cfg.QRCodeExpireSeconds
	if defaultExpire <= 0 {
		defaultExpire = 1800
	}
	return &OfficialService{
		client:        deps.Client,
		credentials:   deps.Credentials,
		qrBaseURL:     cfg.QRCodeBaseURL,
		defaultExpire: defaultExpire,
		configErr:     cfg.ValidateCredentials(),
		logger:        logger,
	}
}

// AccessToken returns the current access token, refreshing it when needed.
func (s *OfficialService) AccessToken(ctx context.Context) (string, error) {
	if s.configErr != nil {
		return "", s.configErr
	}
	return s.credentials.Get(ctx)
}

// NormalizeExpire applies the default and the platform maximum.
func (s *OfficialService) NormalizeExpire(expireSeconds int) int {
	switch {
	case expireSeconds <= 0:
		return s.defaultExpire
	case expireSeconds > MaxQRCodeExpireSeconds:
		return MaxQRCodeExpireSeconds
	default:
		return expireSeconds
	}
}

// CreateQRCode creates a temporary string-scene QR code.
func (s *OfficialService) CreateQRCode(ctx context.Context, sceneStr string, expireSeconds int) (*QRCode, error) {
	if strings.TrimSpace(sceneStr) == "" {
		return nil, apperrors.NewValidationError("scene_str required", nil)
	}
	expire := s.NormalizeExpire(expireSeconds)

	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.CreateQRCode(ctx, token, sceneStr, expire)
	if err != nil {
		s.invalidateOnRejection(ctx, token, err)
		return nil, apperrors.NewUpstreamError("create qrcode failed", err)
	}
	if resp.Ticket == "" {
		return nil, apperrors.NewUpstreamError("create qrcode failed", nil)
	}
	if resp.ExpireSeconds > 0 {
		expire = resp.ExpireSeconds
	}

	return &QRCode{
		URL:           s.qrBaseURL + "?ticket=" + url.QueryEscape(resp.Ticket),
		Ticket:        resp.Ticket,
		ExpireSeconds: expire,
	}, nil
}

// SendTemplateMessage forwards a template-message body verbatim.
func (s *OfficialService) SendTemplateMessage(ctx context.Context, body []byte) (json.RawMessage, error) {
	return s.forward(ctx, "send template message failed", func(token string) (json.RawMessage, error) {
		return s.client.SendTemplateMessage(ctx, token, body)
	})
}

// ListFollowers returns one page of followers.
func (s *OfficialService) ListFollowers(ctx context.Context, nextOpenID string) (json.RawMessage, error) {
	return s.forward(ctx, "list followers failed", func(token string) (json.RawMessage, error) {
		return s.client.ListFollowers(ctx, token, nextOpenID)
	})
}

// BatchGetUserInfo forwards a batch user-info request verbatim.
func (s *OfficialService) BatchGetUserInfo(ctx context.Context, body []byte) (json.RawMessage, error) {
	return s.forward(ctx, "batch get user info failed", func(token string) (json.RawMessage, error) {
		return s.client.BatchGetUserInfo(ctx, token, body)
	})
}

// forward returns the platform body verbatim, errcode included. A rejected token
// is evicted so the next call refreshes it.
func (s *OfficialService) forward(ctx context.Context, failure string, call func(token string) (json.RawMessage, error)) (json.RawMessage, error) {
	token, err := s.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := call(token)
	if err != nil {
		return nil, apperrors.NewUpstreamError(failure, err)
	}
	if apiErr, rejected := official.RejectedCredential(raw); rejected {
		s.invalidateOnRejection(ctx, token, apiErr)
	}
	return raw, nil
}

func (s *OfficialService) invalidateOnRejection(ctx context.Context, token string, err error) {
	var apiErr *official.APIError
	if !errors.As(err, &apiErr) || !apiErr.CredentialRejected() {
		return
	}
	s.logger.Warn("platform rejected access token", zap.Int("errcode", apiErr.Code))
	s.credentials.Invalidate(ctx, token)
}
