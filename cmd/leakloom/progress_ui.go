package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/leakloom/internal/app/run"
	"github.com/John-Robertt/leakloom/internal/config"
	"github.com/John-Robertt/leakloom/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr，不污染 stdout 的报告输出
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无探测完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	fail    int
	skip    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] leakloom analyze\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigFile != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigFile)
	}
	if len(eff.HTML) > 0 {
		fmt.Fprintf(p.w, "  html: %s\n", formatStringListJSON(eff.HTML))
	}
	if eff.Sitemap != "" {
		fmt.Fprintf(p.w, "  sitemap: %s\n", truncate(eff.Sitemap, 120))
	}
	if eff.Site != "" {
		fmt.Fprintf(p.w, "  site: %s (自动探测 sitemap)\n", truncate(eff.Site, 120))
	}
	fmt.Fprintf(p.w, "  crawl_from_sitemap: %s\n", onOff(eff.CrawlFromSitemap))
	fmt.Fprintf(p.w, "  media_only: %s\n", onOff(!eff.AllURLs))
	fmt.Fprintf(p.w, "  suggest: %s  check: %s\n", onOff(eff.Suggest), onOff(eff.Check))
	if eff.Check {
		fmt.Fprintf(p.w, "  max_checks: %s\n", formatLimit(eff.MaxChecks))
	}
	fmt.Fprintf(p.w, "  concurrency: %d  timeout: %s  rate: %s\n", eff.Concurrency, eff.Timeout, formatRate(eff.RatePerSecond))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	if eff.CacheDir != "" {
		mode := ""
		if eff.CacheReadOnly {
			mode = " (只读)"
		}
		fmt.Fprintf(p.w, "  cache: %s%s\n", eff.CacheDir, mode)
	}
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "collect":
		fmt.Fprintf(p.w, "收集: sources=%d failed=%d urls=%d (%s)\n",
			intField(fields, "sources"), intField(fields, "failed"), intField(fields, "urls"), formatShortDuration(dur),
		)
		if n := intField(fields, "unlinked"); n > 0 {
			fmt.Fprintf(p.w, "  sitemap 声明但页面未引用的媒体: %d\n", n)
		}
	case "analyze":
		fmt.Fprintf(p.w, "分组: parsed=%d patterns=%d (%s)\n",
			intField(fields, "parsed"), intField(fields, "patterns"), formatShortDuration(dur),
		)
	case "suggest":
		fmt.Fprintf(p.w, "推断: suggestions=%d unmodified=%d gap=%d gap_modified=%d (%s)\n",
			intField(fields, "suggestions"),
			intField(fields, "unmodified"),
			intField(fields, "gap"),
			intField(fields, "gap_modified"),
			formatShortDuration(dur),
		)
	case "verify":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "checks")
		fmt.Fprintf(p.w, "探测: workers=%d checks=%d skipped=%d\n\n", p.workers, p.total, intField(fields, "skipped"))
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, rec domain.SuggestionRecord, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	v := rec.Verification
	switch v.State {
	case domain.VerifyReachable:
		p.ok++
		fmt.Fprintf(p.w, "[%d/%d] FOUND %d %s %s (%s)\n",
			idx, total, v.StatusCode, truncate(rec.URL, 160), v.ContentType, formatShortDuration(dur),
		)
	case domain.VerifyUnreachable:
		p.fail++
		reason := v.Error
		if v.StatusCode != 0 {
			reason = fmt.Sprintf("HTTP %d", v.StatusCode)
		}
		fmt.Fprintf(p.w, "[%d/%d] MISS %s: %s (%s)\n",
			idx, total, truncate(rec.URL, 160), truncate(reason, 120), formatShortDuration(dur),
		)
	default:
		p.skip++
		fmt.Fprintf(p.w, "[%d/%d] SKIP %s (%s)\n", idx, total, truncate(rec.URL, 160), formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.done >= p.total {
		p.stopTickerLocked()
	}
}

func (p *progressUI) OnProgress(done, total, ok, fail, skip, active int, activeURLs []string, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "进度: done=%d/%d found=%d miss=%d skip=%d active=%d elapsed=%s\n",
		done, total, ok, fail, skip, active, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

// Close 停止 keepalive（取消运行时条目可能不会全部完成）。
func (p *progressUI) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopTickerLocked()
}

func (p *progressUI) stopTickerLocked() {
	if p.tickerStarted {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	stop := p.stopCh
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 已完成：安全退出（OnItemDone 会 close stopCh，但这里也做兜底）。
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}

				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := p.workers
					remain := p.total - p.done
					if remain < active {
						active = remain
					}
					elapsed := time.Since(p.startedAt)
					fmt.Fprintf(p.w, "进度: done=%d/%d found=%d miss=%d skip=%d active=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.fail, p.skip, active, formatElapsed(elapsed),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatLimit(n int) string {
	if n <= 0 {
		return "unlimited"
	}
	return fmt.Sprintf("%d", n)
}

func formatRate(r float64) string {
	if r <= 0 {
		return "off"
	}
	return fmt.Sprintf("%g/s", r)
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatStringListJSON(xs []string) string {
	// json.Marshal(nil slice) => "null"；对用户更友好的是 "[]"
	if xs == nil {
		xs = []string{}
	}
	b, err := json.Marshal(xs)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}
