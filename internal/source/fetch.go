package source

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"

	"github.com/John-Robertt/leakloom/internal/domain"
	"github.com/John-Robertt/leakloom/internal/infra/cache"
	"github.com/John-Robertt/leakloom/internal/mediaurl"
	"github.com/John-Robertt/leakloom/internal/metrics"
)

const (
	acceptHeader = "text/html,application/xml,text/xml,application/xhtml+xml;q=0.9,*/*;q=0.8"
	// maxBodyBytes 限制单个文档（解压后）的大小。
	maxBodyBytes = 64 << 20
)

// Document 是抓取/读取到的原始文档（已解压，未做字符集转换）。
type Document struct {
	// URL 是文档来源（http(s) URL 或本地绝对路径）。
	URL string
	// BaseURL 用于解析文档中的相对链接；本地文件为 file://<dir>/。
	BaseURL     string
	ContentType string
	Body        []byte
}

// Kind 判断文档是 sitemap（XML）还是 HTML：优先 Content-Type，其次内容嗅探。
func (d Document) Kind() string {
	ct := strings.ToLower(d.ContentType)
	switch {
	case strings.Contains(ct, "html"):
		return domain.SourceKindHTML
	case strings.Contains(ct, "xml"):
		return domain.SourceKindSitemap
	}
	head := d.Body
	if len(head) > 512 {
		head = head[:512]
	}
	if bytes.Contains(head, []byte("<urlset")) || bytes.Contains(head, []byte("<sitemapindex")) {
		return domain.SourceKindSitemap
	}
	for m := mimetype.Detect(d.Body); m != nil; m = m.Parent() {
		if m.Is("text/html") {
			return domain.SourceKindHTML
		}
		if m.Is("text/xml") || m.Is("application/xml") {
			return domain.SourceKindSitemap
		}
	}
	return domain.SourceKindHTML
}

// UTF8 返回转换为 UTF-8 的文本 reader（依据 BOM / Content-Type / <meta charset>）。
func (d Document) UTF8() io.Reader {
	r, err := charset.NewReader(bytes.NewReader(d.Body), d.ContentType)
	if err != nil {
		return bytes.NewReader(d.Body)
	}
	return r
}

// Fetcher 负责读取输入文档：http(s) URL 或本地文件。
//
// 约束：
// - 网络策略（UA/代理/重试/限速）全部由 Client 的 Transport 负责
// - Cache 启用时先读缓存；成功抓取后写缓存（缓存写失败只记日志）
// - 非 2xx 返回 *HTTPStatusError；所有错误都包装为 *Error
type Fetcher struct {
	Client  *http.Client
	Cache   cache.Store
	Log     zerolog.Logger
	Metrics *metrics.Metrics
}

func (f *Fetcher) Fetch(ctx context.Context, src string) (Document, error) {
	src = strings.TrimSpace(src)
	if mediaurl.IsHTTP(src) {
		return f.fetchHTTP(ctx, src)
	}
	return readFile(src)
}

func (f *Fetcher) fetchHTTP(ctx context.Context, rawURL string) (Document, error) {
	if b, ok, err := f.Cache.ReadDocument(rawURL); err != nil {
		f.Log.Warn().Err(err).Str("url", rawURL).Msg("读取缓存失败")
	} else if ok {
		f.Log.Debug().Str("url", rawURL).Msg("命中缓存")
		return Document{URL: rawURL, BaseURL: rawURL, Body: b}, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Document{}, &Error{Source: rawURL, Stage: StageFetch, Err: err}
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")

	c := f.Client
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return Document{}, &Error{Source: rawURL, Stage: StageFetch, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Document{}, &Error{Source: rawURL, Stage: StageFetch, Err: &HTTPStatusError{
			URL:        rawURL,
			StatusCode: resp.StatusCode,
			Location:   resp.Header.Get("Location"),
		}}
	}

	body, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return Document{}, &Error{Source: rawURL, Stage: StageFetch, Err: err}
	}

	// 重定向后以最终 URL 作为相对链接的基准。
	base := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		base = resp.Request.URL.String()
	}

	ct := resp.Header.Get("Content-Type")
	// .gz sitemap：服务器通常不会声明 Content-Encoding，只能按后缀/类型 + magic 判断。
	if (hasGzSuffix(rawURL) || hasGzSuffix(base) || strings.Contains(strings.ToLower(ct), "gzip")) && isGzip(body) {
		if b, gerr := gunzip(body); gerr == nil {
			body = b
			ct = ""
		}
	}

	if err := f.Cache.WriteDocument(rawURL, body); err != nil && !errors.Is(err, cache.ErrReadOnly) {
		f.Log.Warn().Err(err).Str("url", rawURL).Msg("写入缓存失败")
	}
	return Document{URL: rawURL, BaseURL: base, ContentType: ct, Body: body}, nil
}

func readFile(path string) (Document, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Document{}, &Error{Source: path, Stage: StageRead, Err: err}
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return Document{}, &Error{Source: path, Stage: StageRead, Err: err}
	}
	if strings.EqualFold(filepath.Ext(abs), ".gz") {
		b, err = gunzip(b)
		if err != nil {
			return Document{}, &Error{Source: path, Stage: StageRead, Err: err}
		}
	}
	return Document{URL: abs, BaseURL: fileBase(abs), Body: b}, nil
}

// fileBase 返回 file://<dir>/，用于解析本地 HTML 中的相对链接。
func fileBase(abs string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Dir(abs)) + "/"}
	return u.String()
}

func decodeBody(r io.Reader, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case "deflate":
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	case "br":
		r = brotli.NewReader(r)
	default:
		return nil, fmt.Errorf("不支持的 Content-Encoding：%q", encoding)
	}
	return readLimited(r)
}

func readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxBodyBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxBodyBytes {
		return nil, fmt.Errorf("文档超过 %d 字节上限", maxBodyBytes)
	}
	return b, nil
}

func hasGzSuffix(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".gz")
}

func isGzip(b []byte) bool {
	return len(b) >= 2 && b[0] == 0x1f && b[1] == 0x8b
}

func gunzip(b []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return readLimited(zr)
}
