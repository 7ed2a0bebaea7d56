package official

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/spec-kit/official-relay/internal/config"
	"github.com/spec-kit/official-relay/internal/observability"
)

const (
	pathToken        = "/cgi-bin/token"
	pathQRCodeCreate = "/cgi-bin/qrcode/create"
	pathTemplateSend = "/cgi-bin/message/template/send"
	pathUserGet      = "/cgi-bin/user/get"
	pathUserBatchGet = "/cgi-bin/user/info/batchget"
	maxResponseBytes = 1 << 20
	qrActionStrScene = "QR_STR_SCENE"
	contentTypeJSON  = "application/json"
)

// APIError is the errcode/errmsg pair the platform returns on failure.
type APIError struct {
	Code int    `json:"errcode"`
	Msg  string `json:"errmsg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("official api errcode=%d errmsg=%s", e.Code, e.Msg)
}

// CredentialRejected reports whether the platform refused the access token itself.
func (e *APIError) CredentialRejected() bool {
	switch e.Code {
	case 40001, 40014, 42001:
		return true
	}
	return false
}

// TokenResponse is the credential-issue payload.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	APIError
}

// QRCodeResponse is the QR-code creation payload.
type QRCodeResponse struct {
	Ticket        string `json:"ticket"`
	ExpireSeconds int    `json:"expire_seconds"`
	URL           string `json:"url"`
	APIError
}

type qrCodeRequest struct {
	ExpireSeconds int          `json:"expire_seconds"`
	ActionName    string       `json:"action_name"`
	ActionInfo    qrActionInfo `json:"action_info"`
}

type qrActionInfo struct {
	Scene struct {
		SceneStr string `json:"scene_str"`
	} `json:"scene"`
}

// Client calls the Official Account HTTP API. It holds no per-call state.
type Client struct {
	baseURL   string
	appID     string
	appSecret string
	http      *http.Client
	metrics   *observability.Metrics
}

// NewClient builds a client whose every request is bounded by the configured timeout.
func NewClient(cfg config.OfficialConfig, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL:   cfg.APIBaseURL,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		http:      &http.Client{Timeout: cfg.UpstreamTimeout()},
		metrics:   metrics,
	}
}

// IssueCredential requests a fresh access token with the configured appid/secret.
func (c *Client) IssueCredential(ctx context.Context) (*TokenResponse, error) {
	query := url.Values{}
	query.Set("grant_type", "client_credential")
	query.Set("appid", c.appID)
	query.Set("secret", c.appSecret)

	body, err := c.do(ctx, "token", http.MethodGet, pathToken, query, nil)
	if err != nil {
		return nil, err
	}

	var resp TokenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if resp.Code != 0 {
		return nil, &resp.APIError
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}
	return &resp, nil
}

// CreateQRCode creates a temporary string-scene QR code.
func (c *Client) CreateQRCode(ctx context.Context, accessToken, sceneStr string, expireSeconds int) (*QRCodeResponse, error) {
	req := qrCodeRequest{ExpireSeconds: expireSeconds, ActionName: qrActionStrScene}
	req.ActionInfo.Scene.SceneStr = sceneStr

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	body, err := c.do(ctx, "qrcode_create", http.MethodPost, pathQRCodeCreate, tokenQuery(accessToken), payload)
	if err != nil {
		return nil, err
	}

	var resp QRCodeResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode qrcode response: %w", err)
	}
	if resp.Code != 0 {
		return nil, &resp.APIError
	}
	return &resp, nil
}

// SendTemplateMessage forwards body verbatim and returns the platform response verbatim.
func (c *Client) SendTemplateMessage(ctx context.Context, accessToken string, body []byte) (json.RawMessage, error) {
	raw, err := c.do(ctx, "template_send", http.MethodPost, pathTemplateSend, tokenQuery(accessToken), body)
	if err != nil {
		return nil, err
	}
	return passthrough(raw), nil
}

// ListFollowers returns one page of follower openids starting after nextOpenID.
func (c *Client) ListFollowers(ctx context.Context, accessToken, nextOpenID string) (json.RawMessage, error) {
	query := tokenQuery(accessToken)
	query.Set("next_openid", nextOpenID)
	raw, err := c.do(ctx, "user_get", http.MethodGet, pathUserGet, query, nil)
	if err != nil {
		return nil, err
	}
	return passthrough(raw), nil
}

// BatchGetUserInfo forwards a batch user-info request verbatim.
func (c *Client) BatchGetUserInfo(ctx context.Context, accessToken string, body []byte) (json.RawMessage, error) {
	raw, err := c.do(ctx, "user_batchget", http.MethodPost, pathUserBatchGet, tokenQuery(accessToken), body)
	if err != nil {
		return nil, err
	}
	return passthrough(raw), nil
}

func (c *Client) do(ctx context.Context, endpoint, method, path string, query url.Values, body []byte) ([]byte, error) {
	start := time.Now()
	defer c.metrics.ObserveUpstream(endpoint, start)

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		if len(body) == 0 {
			body = []byte("{}")
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", endpoint, err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", endpoint, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("call %s: unexpected status %d", endpoint, resp.StatusCode)
	}
	return raw, nil
}

func tokenQuery(accessToken string) url.Values {
	query := url.Values{}
	query.Set("access_token", accessToken)
	return query
}

// passthrough keeps JSON bodies as-is and wraps anything else as {"raw": "..."}.
func passthrough(raw []byte) json.RawMessage {
	if json.Valid(raw) {
		return json.RawMessage(raw)
	}
	wrapped, _ := json.Marshal(map[string]string{"raw": string(raw)})
	return wrapped
}

// RejectedCredential extracts an APIError that refused the access token.
func RejectedCredential(raw json.RawMessage) (*APIError, bool) {
	var apiErr APIError
	if err := json.Unmarshal(raw, &apiErr); err != nil {
		return nil, false
	}
	return &apiErr, apiErr.CredentialRejected()
}
