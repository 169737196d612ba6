package source

import (
	"context"
	"os"
	"regexp"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/leakloom/internal/domain"
	"github.com/John-Robertt/leakloom/internal/mediaurl"
	"github.com/John-Robertt/leakloom/internal/metrics"
	"github.com/John-Robertt/leakloom/internal/scan"
)

// Inputs 描述一次收集的输入来源。
type Inputs struct {
	// HTML 可以是 http(s) URL、本地文件或本地目录（递归扫描 *.htm*）。
	HTML []string
	// Sitemap 是 sitemap（或 sitemapindex）的 URL / 本地路径。
	Sitemap string
	// Site 非空且 Sitemap 为空时，自动探测站点的 sitemap。
	Site string
	// CrawlFromSitemap 额外抓取 sitemap 中的非媒体页面并提取其中的媒体引用（只走一跳）。
	CrawlFromSitemap bool
	// ExcludeDirs 作用于本地目录扫描。
	ExcludeDirs []string
}

// Filter 是收集结果的过滤规则（按顺序：include、exclude、media-only）。
type Filter struct {
	Include   *regexp.Regexp
	Exclude   *regexp.Regexp
	MediaOnly bool
}

func (f Filter) keep(u string) bool {
	if u == "" {
		return false
	}
	if f.Include != nil && !f.Include.MatchString(u) {
		return false
	}
	if f.Exclude != nil && f.Exclude.MatchString(u) {
		return false
	}
	if f.MediaOnly && !mediaurl.IsMedia(u) {
		return false
	}
	return true
}

// Collector 把所有输入来源汇总为一组规范化、去重、过滤后的 URL。
//
// 约束：
// - 单个来源失败只记录在 SourceResult 上，不影响其他来源
// - 页面抓取并发数不超过 Concurrency
// - 输出排序稳定
type Collector struct {
	Fetcher     *Fetcher
	Filter      Filter
	Concurrency int
	Log         zerolog.Logger
	Metrics     *metrics.Metrics
}

type urlSet struct {
	mu sync.Mutex
	m  map[string]struct{}
}

func (s *urlSet) add(urls ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range urls {
		if nu := mediaurl.Normalize(u); nu != "" {
			s.m[nu] = struct{}{}
		}
	}
}

func (c *Collector) Collect(ctx context.Context, in Inputs) ([]string, []domain.SourceResult) {
	all := &urlSet{m: make(map[string]struct{}, 256)}
	var sources []domain.SourceResult

	for _, src := range in.HTML {
		sources = append(sources, c.collectHTMLInput(ctx, src, in.ExcludeDirs, all)...)
	}

	sitemap := in.Sitemap
	if sitemap == "" && in.Site != "" {
		found, err := c.Fetcher.DiscoverSitemap(ctx, in.Site)
		if err != nil {
			c.Log.Warn().Err(err).Str("site", in.Site).Msg("未能探测到 sitemap")
			sources = append(sources, sourceResult(in.Site, domain.SourceKindSitemap, "", 0, err))
		} else {
			c.Log.Info().Str("site", in.Site).Str("sitemap", found).Msg("探测到 sitemap")
			sitemap = found
		}
	}
	if sitemap != "" {
		sources = append(sources, c.collectSitemap(ctx, sitemap, in.CrawlFromSitemap, all)...)
	}

	out := make([]string, 0, len(all.m))
	for u := range all.m {
		if c.Filter.keep(u) {
			out = append(out, u)
		}
	}
	sort.Strings(out)
	c.Metrics.Collected(len(out))
	return out, sources
}

func (c *Collector) collectHTMLInput(ctx context.Context, src string, excludeDirs []string, all *urlSet) []domain.SourceResult {
	if !mediaurl.IsHTTP(src) {
		if fi, err := os.Stat(src); err == nil && fi.IsDir() {
			files, err := scan.ScanHTML(src, excludeDirs)
			if err != nil {
				c.Log.Warn().Err(err).Str("dir", src).Msg("扫描目录失败")
				return []domain.SourceResult{sourceResult(src, domain.SourceKindHTML, "", 0, &Error{Source: src, Stage: StageRead, Err: err})}
			}
			out := make([]domain.SourceResult, 0, len(files))
			for _, f := range files {
				out = append(out, c.collectHTML(ctx, f.AbsPath, domain.SourceKindHTML, nil, all))
			}
			return out
		}
	}
	return []domain.SourceResult{c.collectHTML(ctx, src, domain.SourceKindHTML, nil, all)}
}

// collectHTML 抓取一个 HTML 文档并提取其中的 URL。
// declared 是 sitemap 为该页面声明的媒体；页面没有引用的部分记录在 SourceResult.Unlinked。
func (c *Collector) collectHTML(ctx context.Context, src, kind string, declared []string, all *urlSet) domain.SourceResult {
	doc, err := c.Fetcher.Fetch(ctx, src)
	if err != nil {
		c.Metrics.Document(kind, false)
		c.Log.Warn().Err(err).Str("source", src).Msg("无法读取 HTML 来源")
		return sourceResult(src, kind, "", 0, err)
	}
	// --html 误传了 sitemap 时按 sitemap 解析（不展开索引）。
	if kind == domain.SourceKindHTML && doc.Kind() == domain.SourceKindSitemap {
		base := ""
		if mediaurl.IsHTTP(doc.BaseURL) {
			base = doc.BaseURL
		}
		_, locs, err := ParseSitemap(doc.Body, base)
		if err != nil {
			c.Metrics.Document(domain.SourceKindSitemap, false)
			return sourceResult(src, domain.SourceKindSitemap, "", 0, &Error{Source: src, Stage: StageParse, Err: err})
		}
		c.Metrics.Document(domain.SourceKindSitemap, true)
		all.add(locs...)
		return sourceResult(src, domain.SourceKindSitemap, DetectVendor(doc.Body), len(locs), nil)
	}

	urls, err := ExtractHTML(doc.UTF8(), doc.BaseURL)
	if err != nil {
		c.Metrics.Document(kind, false)
		perr := &Error{Source: src, Stage: StageParse, Err: err}
		c.Log.Warn().Err(perr).Msg("HTML 解析失败")
		return sourceResult(src, kind, "", 0, perr)
	}
	c.Metrics.Document(kind, true)
	all.add(urls...)
	c.Log.Debug().Str("source", src).Int("urls", len(urls)).Msg("HTML 来源完成")
	res := sourceResult(src, kind, "", len(urls), nil)
	if len(declared) > 0 {
		res.Unlinked = Unlinked(declared, urls)
		if len(res.Unlinked) > 0 {
			c.Log.Info().Str("page", src).Int("unlinked", len(res.Unlinked)).Msg("sitemap 声明的媒体未被页面引用")
		}
	}
	return res
}

func (c *Collector) collectSitemap(ctx context.Context, sitemap string, crawl bool, all *urlSet) []domain.SourceResult {
	sets, err := c.Fetcher.WalkSitemap(ctx, sitemap)
	if err != nil {
		c.Metrics.Document(domain.SourceKindSitemap, false)
		c.Log.Warn().Err(err).Str("sitemap", sitemap).Msg("无法读取 sitemap")
		return []domain.SourceResult{sourceResult(sitemap, domain.SourceKindSitemap, "", 0, err)}
	}

	out := make([]domain.SourceResult, 0, len(sets))
	var pages []string
	seenPage := make(map[string]struct{}, 64)
	declared := make(map[string][]string, 64)
	for _, us := range sets {
		c.Metrics.Document(domain.SourceKindSitemap, us.Err == nil)
		out = append(out, sourceResult(us.URL, domain.SourceKindSitemap, us.Vendor, len(us.Locs), us.Err))
		if us.Err != nil {
			continue
		}
		all.add(us.Locs...)
		if !crawl {
			continue
		}
		for _, e := range us.Entries {
			declared[e.Page] = append(declared[e.Page], e.Media...)
		}
		for _, loc := range us.Locs {
			if !mediaurl.IsHTTP(loc) || mediaurl.IsMedia(loc) {
				continue
			}
			if _, ok := seenPage[loc]; ok {
				continue
			}
			seenPage[loc] = struct{}{}
			pages = append(pages, loc)
		}
	}

	if len(pages) > 0 {
		out = append(out, c.crawlPages(ctx, pages, declared, all)...)
	}
	return out
}

// crawlPages 并发抓取页面（有界并发）。单页失败只体现在结果上。
func (c *Collector) crawlPages(ctx context.Context, pages []string, declared map[string][]string, all *urlSet) []domain.SourceResult {
	limit := c.Concurrency
	if limit < 1 {
		limit = 1
	}

	results := make([]domain.SourceResult, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range pages {
		i, p := i, p
		g.Go(func() error {
			results[i] = c.collectHTML(gctx, p, domain.SourceKindPage, declared[p], all)
			return nil
		})
	}
	_ = g.Wait()
	return results
}
