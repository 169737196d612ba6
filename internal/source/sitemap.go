package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/John-Robertt/leakloom/internal/mediaurl"
)

const (
	rootSitemapIndex = "sitemapindex"
	rootURLSet       = "urlset"
)

// Urlset 是 sitemap 遍历得到的一个叶子文档。
// Err 非空表示该子 sitemap 抓取/解析失败（其余子 sitemap 不受影响）。
type Urlset struct {
	URL     string
	Vendor  string
	Locs    []string
	Entries []Entry
	Err     error
}

// Entry 是 urlset 中的一个 <url>：页面地址，以及该条目声明的图片/视频
// （image:image/image:loc、video:video 下的 content_loc / player_loc / thumbnail_loc）。
type Entry struct {
	Page  string
	Media []string
}

// ParseSitemap 收集 XML 中所有 <loc>（忽略命名空间：image:loc 同样计入）以及视频 sitemap 的
// <video:content_loc> / <video:player_loc> / <video:thumbnail_loc>，并返回根元素的 local name。
//
// base 非空时，相对地址以 base 解析为绝对 URL。
func ParseSitemap(body []byte, base string) (root string, locs []string, err error) {
	sd, err := parseSitemap(body, base)
	return sd.root, sd.locs, err
}

type sitemapDoc struct {
	root    string
	locs    []string
	entries []Entry
}

func parseSitemap(body []byte, base string) (sitemapDoc, error) {
	dec := xml.NewDecoder(bytes.NewReader(body))
	dec.Strict = false
	dec.CharsetReader = charset.NewReaderLabel

	var (
		sd    sitemapDoc
		stack []string
		cur   *Entry
		inLoc bool
		text  strings.Builder
	)
	for {
		tok, terr := dec.Token()
		if terr == io.EOF {
			break
		}
		if terr != nil {
			return sd, terr
		}
		switch t := tok.(type) {
		case xml.StartElement:
			local := t.Name.Local
			if sd.root == "" {
				sd.root = local
			}
			stack = append(stack, local)
			switch {
			case local == "url":
				cur = &Entry{}
			case isLocElement(local):
				inLoc = true
				text.Reset()
			}
		case xml.CharData:
			if inLoc {
				text.Write(t)
			}
		case xml.EndElement:
			local := t.Name.Local
			if inLoc && isLocElement(local) {
				inLoc = false
				if loc := resolveLoc(base, strings.TrimSpace(text.String())); loc != "" {
					sd.locs = append(sd.locs, loc)
					if cur != nil {
						// <url><loc> 是页面；更深层的 loc 是该页面声明的媒体。
						if local == "loc" && parentOf(stack) == "url" {
							cur.Page = loc
						} else {
							cur.Media = append(cur.Media, loc)
						}
					}
				}
			}
			if local == "url" && cur != nil {
				if cur.Page != "" {
					sd.entries = append(sd.entries, *cur)
				}
				cur = nil
			}
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if sd.root == "" {
		return sitemapDoc{}, errors.New("不是 XML 文档")
	}
	return sd, nil
}

// parentOf 返回栈顶元素的父元素名（栈顶是当前元素）。
func parentOf(stack []string) string {
	if len(stack) < 2 {
		return ""
	}
	return stack[len(stack)-2]
}

func isLocElement(local string) bool {
	switch local {
	case "loc", "content_loc", "player_loc", "thumbnail_loc":
		return true
	}
	return false
}

func resolveLoc(base, loc string) string {
	if loc == "" {
		return ""
	}
	if base == "" || mediaurl.IsHTTP(loc) {
		return loc
	}
	if abs, ok := mediaurl.Resolve(base, loc); ok {
		return abs
	}
	return ""
}

// WalkSitemap 从 start 开始遍历：sitemapindex => 子 sitemap（最多再嵌套一层 sitemapindex）=> urlset。
//
// 规则：
// - start 本身失败：返回错误（该来源整体失败）
// - 子 sitemap 失败：作为带 Err 的 Urlset 返回并记录日志，不影响其他子 sitemap
// - 非标准根元素：按原样当作一个 urlset 返回
func (f *Fetcher) WalkSitemap(ctx context.Context, start string) ([]Urlset, error) {
	sd, vendor, err := f.fetchSitemap(ctx, start)
	if err != nil {
		return nil, err
	}
	if sd.root != rootSitemapIndex {
		return []Urlset{leafUrlset(start, vendor, sd)}, nil
	}

	out := make([]Urlset, 0, len(sd.locs))
	for _, child := range sd.locs {
		if ctx.Err() != nil {
			break
		}
		csd, cvendor, cerr := f.fetchSitemap(ctx, child)
		if cerr != nil {
			f.Log.Warn().Err(cerr).Str("sitemap", child).Msg("子 sitemap 失败，已跳过")
			out = append(out, Urlset{URL: child, Err: cerr})
			continue
		}
		switch csd.root {
		case rootURLSet:
			out = append(out, leafUrlset(child, cvendor, csd))
		case rootSitemapIndex:
			// 只再展开一层。
			for _, leaf := range csd.locs {
				lsd, lvendor, lerr := f.fetchSitemap(ctx, leaf)
				if lerr != nil {
					f.Log.Warn().Err(lerr).Str("sitemap", leaf).Msg("子 sitemap 失败，已跳过")
					out = append(out, Urlset{URL: leaf, Err: lerr})
					continue
				}
				if lsd.root == rootURLSet {
					out = append(out, leafUrlset(leaf, lvendor, lsd))
				}
			}
		}
	}
	return out, nil
}

func leafUrlset(src, vendor string, sd sitemapDoc) Urlset {
	return Urlset{URL: src, Vendor: vendor, Locs: sd.locs, Entries: sd.entries}
}

func (f *Fetcher) fetchSitemap(ctx context.Context, src string) (sitemapDoc, string, error) {
	doc, err := f.Fetch(ctx, src)
	if err != nil {
		return sitemapDoc{}, "", err
	}
	base := ""
	if mediaurl.IsHTTP(doc.BaseURL) {
		base = doc.BaseURL
	}
	sd, err := parseSitemap(doc.Body, base)
	if err != nil {
		return sitemapDoc{}, "", &Error{Source: src, Stage: StageParse, Err: err}
	}
	return sd, DetectVendor(doc.Body), nil
}

// 常见 sitemap 入口（SEO 插件的索引优先）。
var sitemapCandidates = []string{
	"/sitemap_index.xml",
	"/sitemap.xml",
	"/wp-sitemap.xml",
	"/index.php/sitemap_index.xml",
	"/index.php/sitemap.xml",
}

// DiscoverSitemap 依次尝试常见 sitemap 路径，最后回退 robots.txt 中的 Sitemap: 行。
// 返回第一个 2xx 且非空的地址。
func (f *Fetcher) DiscoverSitemap(ctx context.Context, site string) (string, error) {
	site = strings.TrimRight(strings.TrimSpace(site), "/")
	if !mediaurl.IsHTTP(site) {
		return "", &Error{Source: site, Stage: StageFetch, Err: errors.New("site 必须是 http(s) URL")}
	}

	for _, p := range sitemapCandidates {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if f.usable(ctx, site+p) {
			return site + p, nil
		}
	}

	doc, err := f.Fetch(ctx, site+"/robots.txt")
	if err == nil {
		for _, sm := range robotsSitemaps(doc.Body) {
			if f.usable(ctx, sm) {
				return sm, nil
			}
		}
	}
	return "", &Error{Source: site, Stage: StageFetch, Err: errors.New("未找到可用的 sitemap")}
}

func (f *Fetcher) usable(ctx context.Context, u string) bool {
	doc, err := f.Fetch(ctx, u)
	if err != nil {
		f.Log.Debug().Err(err).Str("url", u).Msg("sitemap 候选不可用")
		return false
	}
	return len(bytes.TrimSpace(doc.Body)) > 0
}

func robotsSitemaps(body []byte) []string {
	var out []string
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		ln := strings.TrimSpace(sc.Text())
		if len(ln) < len("sitemap:") || !strings.EqualFold(ln[:len("sitemap:")], "sitemap:") {
			continue
		}
		if u := strings.TrimSpace(ln[len("sitemap:"):]); u != "" {
			out = append(out, u)
		}
	}
	return out
}
