package run

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/leakloom/internal/app/planner"
	"github.com/John-Robertt/leakloom/internal/config"
	"github.com/John-Robertt/leakloom/internal/domain"
	"github.com/John-Robertt/leakloom/internal/infra/cache"
	"github.com/John-Robertt/leakloom/internal/infra/httpx"
	"github.com/John-Robertt/leakloom/internal/metrics"
	"github.com/John-Robertt/leakloom/internal/pattern"
	"github.com/John-Robertt/leakloom/internal/source"
	"github.com/John-Robertt/leakloom/internal/verify"
)

// Deps 是一次运行的外部依赖。零值可用：Client/Verifier 为空时按 eff 构造。
type Deps struct {
	Client   *http.Client
	Verifier verify.Verifier
	Log      zerolog.Logger
	Metrics  *metrics.Metrics
}

// Execute 执行一次完整分析，并返回对外稳定的 Report。
// 该函数尽量把错误“降级”为来源级失败（单个来源失败不影响其他来源）。
func Execute(ctx context.Context, eff config.EffectiveConfig, deps Deps) domain.Report {
	return ExecuteWithObserver(ctx, eff, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
//
// 阶段（固定顺序）：collect -> analyze -> suggest（--suggest）-> verify（--check）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, deps Deps, obs Observer) domain.Report {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rep := domain.Report{StartedAt: started}
	log := deps.Log

	client := deps.Client
	if client == nil {
		c, err := httpx.NewClient(httpx.Options{
			ProxyURL:      eff.ProxyURL,
			Timeout:       eff.Timeout,
			RatePerSecond: eff.RatePerSecond,
			UserAgent:     eff.UserAgent,
			Metrics:       deps.Metrics,
		})
		if err != nil {
			rep.Sources = append(rep.Sources, domain.SourceResult{
				Source:    "proxy.url",
				Kind:      "config",
				ErrorCode: domain.ErrCodeConfigInvalid,
				ErrorMsg:  fmt.Sprintf("proxy.url 无效：%v", err),
			})
			rep.FinishedAt = time.Now().UTC()
			rep.Finalize()
			return rep
		}
		client = c
	}

	// collect
	collectStarted := time.Now()
	collector := &source.Collector{
		Fetcher: &source.Fetcher{
			Client:  client,
			Cache:   cache.New(eff.CacheDir, eff.CacheReadOnly),
			Log:     log.With().Str("component", "source").Logger(),
			Metrics: deps.Metrics,
		},
		Filter: source.Filter{
			Include:   eff.Include,
			Exclude:   eff.Exclude,
			MediaOnly: !eff.AllURLs,
		},
		Concurrency: eff.Concurrency,
		Log:         log.With().Str("component", "collect").Logger(),
		Metrics:     deps.Metrics,
	}
	urls, sources := collector.Collect(ctx, source.Inputs{
		HTML:             eff.HTML,
		Sitemap:          eff.Sitemap,
		Site:             eff.Site,
		CrawlFromSitemap: eff.CrawlFromSitemap,
		ExcludeDirs:      eff.ExcludeDirs,
	})
	rep.Sources = sources

	if obs != nil {
		failed, unlinked := 0, 0
		for _, s := range sources {
			if s.Failed() {
				failed++
			}
			unlinked += len(s.Unlinked)
		}
		obs.OnPhaseDone("collect", map[string]any{
			"sources":  len(sources),
			"failed":   failed,
			"urls":     len(urls),
			"unlinked": unlinked,
		}, time.Since(collectStarted))
	}

	// analyze（引擎调用同步执行；suggest 作为独立阶段计时）
	analyzeStarted := time.Now()
	a := analyze(urls, eff.Vocabulary, AnalyzeOptions{
		Top:      eff.Top,
		Examples: eff.Examples,
		Missing:  eff.Missing,
	})
	rep.Summary = a.summary
	rep.Patterns = a.patterns
	deps.Metrics.SetPatterns(len(a.groups))

	if obs != nil {
		obs.OnPhaseDone("analyze", map[string]any{
			"parsed":   a.summary.Parsed,
			"patterns": len(a.groups),
		}, time.Since(analyzeStarted))
	}

	if eff.Suggest {
		suggestStarted := time.Now()
		rep.Suggestions = toRecords(pattern.Synthesize(a.groups, pattern.Observed(urls)))

		byRule := map[string]int{}
		for _, r := range rep.Suggestions {
			byRule[r.Rule]++
			deps.Metrics.Suggested(r.Rule)
		}
		if obs != nil {
			obs.OnPhaseDone("suggest", map[string]any{
				"suggestions":           len(rep.Suggestions),
				pattern.RuleUnmodified:  byRule[pattern.RuleUnmodified],
				pattern.RuleGap:         byRule[pattern.RuleGap],
				pattern.RuleGapModified: byRule[pattern.RuleGapModified],
			}, time.Since(suggestStarted))
		}

		if eff.Check {
			v := deps.Verifier
			if v == nil {
				v = verify.HTTPVerifier{Client: client, Timeout: eff.Timeout}
			}
			verifyAll(ctx, rep.Suggestions, v, eff, deps.Metrics, obs)
		}
	}

	rep.FinishedAt = time.Now().UTC()
	rep.Finalize()
	return rep
}

// verifyAll 用 worker pool 探测计划内的候选，并把结果写回 records（其余保持 not_checked）。
//
// 结构：jobs channel -> N 个 worker -> 带缓冲的 results channel -> 单一汇总循环。
// records 只在汇总循环中写入。
func verifyAll(ctx context.Context, records []domain.SuggestionRecord, v verify.Verifier, eff config.EffectiveConfig, m *metrics.Metrics, obs Observer) {
	checks, skipped := planner.PlanChecks(records, eff.MaxChecks)

	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > config.MaxConcurrency {
		workers = config.MaxConcurrency
	}

	if obs != nil {
		obs.OnPhaseDone("verify", map[string]any{
			"workers": workers,
			"checks":  len(checks),
			"skipped": len(skipped),
		}, 0)
	}

	type job struct {
		idx int
		url string
	}
	type verifyResult struct {
		idx int
		ver domain.Verification
		dur time.Duration
	}

	jobs := make(chan job)
	results := make(chan verifyResult, len(checks))

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				oneStarted := time.Now()
				ver := v.Verify(ctx, j.url)
				results <- verifyResult{idx: j.idx, ver: ver, dur: time.Since(oneStarted)}
			}
		}()
	}

	go func() {
		defer func() {
			close(jobs)
			wg.Wait()
			close(results)
		}()
		for _, idx := range checks {
			select {
			case jobs <- job{idx: idx, url: records[idx].URL}:
			case <-ctx.Done():
				return
			}
		}
	}()

	done := 0
	for r := range results {
		done++
		records[r.idx].Verification = r.ver
		m.Verified(r.ver.State)
		if obs != nil {
			obs.OnItemDone(done, len(checks), records[r.idx], r.dur)
		}
	}
}
