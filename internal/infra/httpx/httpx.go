package httpx

import (
	"errors"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/John-Robertt/leakloom/internal/metrics"
)

const (
	DefaultTimeout  = 20 * time.Second
	defaultRetryMax = 2
	retryBackoff    = 250 * time.Millisecond
)

// Options 描述共享 HTTP 客户端的网络策略。
type Options struct {
	ProxyURL string
	Timeout  time.Duration
	// RatePerSecond <= 0 表示不限速；Burst 至少为 1。
	RatePerSecond float64
	Burst         int
	// UserAgent 非空时固定使用；为空则每个请求从内置 UA 池随机选择。
	UserAgent string
	// RetryMax 为 0 使用默认值；负数表示不重试。
	RetryMax int
	Metrics   *metrics.Metrics
}

// Transport 把“UA 池 + 代理 + keep-alive 策略 + 限速 + 有界重试”固化为统一策略。
//
// 设计目标：抓取与验证只关心“请求什么、怎么解释响应”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	ua        *uaPool
	userAgent string

	// Limiter 为 nil 时不限速；每次尝试（包括重试）都消耗一个令牌。
	Limiter *rate.Limiter

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool

	Metrics *metrics.Metrics
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 {
		max = 0
	}
	if !canRetry {
		max = 0
	}

	ctx := req.Context()
	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(req, time.Duration(attempt)*retryBackoff); err != nil {
				return nil, lastErr
			}
		}
		if t.Limiter != nil {
			if err := t.Limiter.Wait(ctx); err != nil {
				if lastErr == nil {
					lastErr = err
				}
				return nil, lastErr
			}
		}

		r := cloneRequest(req)
		if r.Header.Get("User-Agent") == "" {
			r.Header.Set("User-Agent", t.pickUA())
		}
		if t.DisableKeepAlives {
			// 额外保险：即使上层误用了其它 Transport，也尽量不复用连接。
			r.Close = true
		}

		started := time.Now()
		resp, err := t.Base.RoundTrip(r)
		if err != nil {
			t.Metrics.ObserveHTTP(req.Method, 0, time.Since(started))
			lastErr = err
			if ctx.Err() != nil {
				// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
				return nil, lastErr
			}
			continue
		}
		t.Metrics.ObserveHTTP(req.Method, resp.StatusCode, time.Since(started))

		if attempt < max && retryableStatus(resp.StatusCode) {
			drain(resp)
			lastErr = &StatusError{Code: resp.StatusCode}
			continue
		}
		return resp, nil
	}
	return nil, lastErr
}

// StatusError 只在重试耗尽前的临时状态码上出现（最后一次尝试总是原样返回响应）。
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return "http status " + http.StatusText(e.Code) }

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

func sleepCtx(req *http.Request, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return req.Context().Err()
	case <-timer.C:
		return nil
	}
}

func cloneRequest(req *http.Request) *http.Request {
	// Clone 会复制 Header 等，避免在 RoundTripper 内部“污染”调用方的 request。
	return req.Clone(req.Context())
}

func (t *Transport) pickUA() string {
	if t.userAgent != "" {
		return t.userAgent
	}
	if t.ua == nil {
		return globalUA.random()
	}
	return t.ua.random()
}

// NewClient 构造抓取与验证共用的 HTTP client。
//
// 规则：
// - ProxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - UserAgent 为空：内置 UA 池，每个请求随机 UA
// - RatePerSecond > 0：所有请求共享一个令牌桶
// - 有界重试 + 总超时（Timeout<=0 使用 DefaultTimeout）
func NewClient(opts Options) (*http.Client, error) {
	proxyURL := strings.TrimSpace(opts.ProxyURL)
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
		MaxIdleConnsPerHost:   32,
	}

	disableKeepAlives := false
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy.url 必须包含 scheme 与 host")
		}
		base.Proxy = http.ProxyURL(u)
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	retry := opts.RetryMax
	if retry == 0 {
		retry = defaultRetryMax
	}

	tr := &Transport{
		Base:              base,
		ua:                globalUA,
		userAgent:         strings.TrimSpace(opts.UserAgent),
		Limiter:           newLimiter(opts.RatePerSecond, opts.Burst),
		RetryMax:          retry,
		DisableKeepAlives: disableKeepAlives,
		Metrics:           opts.Metrics,
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

func newLimiter(perSecond float64, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 13_6) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.3 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64; rv:123.0) Gecko/20100101 Firefox/123.0",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
