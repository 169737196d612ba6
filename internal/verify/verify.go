package verify

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/John-Robertt/leakloom/internal/domain"
	"github.com/John-Robertt/leakloom/internal/mediaurl"
)

// Verifier 是候选 URL 的存在性探测边界。
//
// 约束：
// - 实现必须并发安全（会被 worker pool 并发调用）
// - 失败只体现在返回的 Verification 上，不返回 error，不 panic
// - 重试 / 限速 / 调度属于实现自身的 HTTP 策略，调用方不做任何重试
type Verifier interface {
	Verify(ctx context.Context, rawURL string) domain.Verification
}

// sniffBytes 是 Range GET 回退时读取的最大字节数（足够 mimetype 判断媒体类型）。
const sniffBytes = 512

// HTTPVerifier 用 HEAD 探测候选 URL；服务端不支持 HEAD（405/501）时回退为 Range GET。
type HTTPVerifier struct {
	Client *http.Client
	// Timeout > 0 时为每个请求单独设置超时；只取消该请求本身。
	Timeout time.Duration
}

func (v HTTPVerifier) Verify(ctx context.Context, rawURL string) domain.Verification {
	if !mediaurl.IsHTTP(rawURL) {
		return domain.NotChecked()
	}
	if ctx.Err() != nil {
		return domain.NotChecked()
	}

	resp, err := v.do(ctx, http.MethodHead, rawURL)
	if err != nil {
		return v.failed(ctx, err)
	}
	if resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented {
		_ = resp.Body.Close()
		resp, err = v.do(ctx, http.MethodGet, rawURL)
		if err != nil {
			return v.failed(ctx, err)
		}
	}
	defer resp.Body.Close()

	return classify(resp)
}

func (v HTTPVerifier) do(ctx context.Context, method, rawURL string) (*http.Response, error) {
	if v.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.Timeout)
		// body 在 classify 之后才关闭，cancel 必须跟随 body 生命周期。
		resp, err := v.send(ctx, method, rawURL)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelBody{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return v.send(ctx, method, rawURL)
}

func (v HTTPVerifier) send(ctx context.Context, method, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "*/*")
	if method == http.MethodGet {
		req.Header.Set("Range", "bytes=0-511")
	}
	c := v.Client
	if c == nil {
		c = http.DefaultClient
	}
	return c.Do(req)
}

func (v HTTPVerifier) failed(ctx context.Context, err error) domain.Verification {
	// 上层取消（例如用户 Ctrl-C）不是“不可达”，保持 not_checked。
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return domain.NotChecked()
	}
	return domain.Verification{State: domain.VerifyUnreachable, Error: err.Error()}
}

// classify 把响应映射为三态：2xx（含 206）为 reachable，其余为 unreachable。
func classify(resp *http.Response) domain.Verification {
	out := domain.Verification{
		StatusCode:    resp.StatusCode,
		ContentType:   mediaType(resp.Header.Get("Content-Type")),
		ContentLength: contentLength(resp),
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		out.State = domain.VerifyUnreachable
		return out
	}
	out.State = domain.VerifyReachable

	if out.ContentType == "" && resp.Request != nil && resp.Request.Method == http.MethodGet {
		head, _ := io.ReadAll(io.LimitReader(resp.Body, sniffBytes))
		if len(head) > 0 {
			out.ContentType = mediaType(mimetype.Detect(head).String())
		}
	}
	return out
}

func contentLength(resp *http.Response) int64 {
	// Range 响应的 Content-Length 只是片段长度；完整大小在 Content-Range 的 "/total" 中。
	if cr := resp.Header.Get("Content-Range"); cr != "" {
		if i := strings.LastIndexByte(cr, '/'); i >= 0 {
			if n, err := strconv.ParseInt(cr[i+1:], 10, 64); err == nil {
				return n
			}
			return 0
		}
	}
	if resp.ContentLength > 0 {
		return resp.ContentLength
	}
	return 0
}

func mediaType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(ct)
	}
	return mt
}

type cancelBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelBody) Close() error {
	err := b.ReadCloser.Close()
	b.cancel()
	return err
}
