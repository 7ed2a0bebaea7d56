package service

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/official-relay/internal/config"
	"github.com/spec-kit/official-relay/internal/official"
)

// fakePlatform mimics the platform endpoints the relay calls.
type fakePlatform struct {
	srv *httptest.Server

	tokenCalls    atomic.Int32
	qrCalls       atomic.Int32
	templateCalls atomic.Int32

	mu            sync.Mutex
	qrRequests    []map[string]any
	templateBody  []string
	rejectNext    bool
	templateReply string
}

func newFakePlatform(t *testing.T) *fakePlatform {
	t.Helper()
	p := &fakePlatform{templateReply: `{"errcode":0,"errmsg":"ok","msgid":1}`}
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/token", func(w http.ResponseWriter, r *http.Request) {
		n := p.tokenCalls.Add(1)
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "TOKEN-" + string(rune('0'+n)), "expires_in": 7200})
	})
	mux.HandleFunc("/cgi-bin/qrcode/create", func(w http.ResponseWriter, r *http.Request) {
		p.qrCalls.Add(1)
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		p.mu.Lock()
		p.qrRequests = append(p.qrRequests, req)
		reject := p.rejectNext
		p.rejectNext = false
		p.mu.Unlock()
		if reject {
			_, _ = io.WriteString(w, `{"errcode":40001,"errmsg":"invalid credential"}`)
			return
		}
		_, _ = io.WriteString(w, `{"ticket":"gQH/8DoAA==","expire_seconds":1800,"url":"http://weixin.qq.com/q/x"}`)
	})
	mux.HandleFunc("/cgi-bin/message/template/send", func(w http.ResponseWriter, r *http.Request) {
		p.templateCalls.Add(1)
		body, _ := io.ReadAll(r.Body)
		p.mu.Lock()
		p.templateBody = append(p.templateBody, string(body))
		reply := p.templateReply
		p.mu.Unlock()
		_, _ = io.WriteString(w, reply)
	})
	mux.HandleFunc("/cgi-bin/user/get", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"total":1,"count":1,"data":{"openid":["o1"]},"next_openid":"`+r.URL.Query().Get("next_openid")+`"}`)
	})
	p.srv = httptest.NewServer(mux)
	t.Cleanup(p.srv.Close)
	return p
}

func (p *fakePlatform) config() config.OfficialConfig {
	return config.OfficialConfig{
		AppID:                  "wx-app",
		AppSecret:              "wx-secret",
		APIBaseURL:             p.srv.URL,
		QRCodeBaseURL:          "https://mp.weixin.qq.com/cgi-bin/showqrcode",
		UpstreamTimeoutSeconds: 2,
		TokenMarginSeconds:     100,
		QRCodeExpireSeconds:    1800,
		DedupWindowSeconds:     30,
	}
}

func (p *fakePlatform) lastQRRequest() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.qrRequests) == 0 {
		return nil
	}
	return p.qrRequests[len(p.qrRequests)-1]
}

func newOfficialService(cfg config.OfficialConfig) *OfficialService {
	client := official.NewClient(cfg, nil)
	cache := official.NewCredentialCache(client, official.CacheOptions{
		Margin:   cfg.TokenMargin(),
		Fallback: cfg.TokenFallback(),
	})
	return NewOfficialService(cfg, OfficialDependencies{Client: client, Credentials: cache}, zap.NewNop())
}
