package run

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/John-Robertt/leakloom/internal/config"
	"github.com/John-Robertt/leakloom/internal/domain"
	"github.com/John-Robertt/leakloom/internal/metrics"
	"github.com/John-Robertt/leakloom/internal/pattern"
)

// newSite 模拟一个站点：sitemap 列出 photo-1/2/4 与 photo-5-redacted，其中只有 photo-5.jpg 原图可访问。
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0"?><urlset>
<url><loc>` + srv.URL + `/g/photo-1.jpg</loc></url>
<url><loc>` + srv.URL + `/g/photo-2.jpg</loc></url>
<url><loc>` + srv.URL + `/g/photo-4.jpg?ver=2</loc></url>
<url><loc>` + srv.URL + `/g/photo-5-redacted.jpg</loc></url>
<url><loc>` + srv.URL + `/about/</loc></url>
</urlset>`))
	})
	mux.HandleFunc("/g/photo-5.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.Header().Set("Content-Length", "2048")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", http.NotFound)
	srv = httptest.NewServer(mux)
	return srv
}

func siteConfig(base string) config.EffectiveConfig {
	return config.EffectiveConfig{
		Sitemap:     base + "/sitemap.xml",
		Vocabulary:  pattern.DefaultVocabulary(),
		Top:         config.DefaultTop,
		Examples:    config.DefaultExamples,
		Missing:     config.DefaultMissingShown,
		Suggest:     true,
		Check:       true,
		Concurrency: 4,
	}
}

func TestExecute_SitemapSuggestAndVerify(t *testing.T) {
	srv := newSite(t)
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	rep := Execute(context.Background(), siteConfig(srv.URL), Deps{Client: srv.Client(), Metrics: m})

	if rep.Summary.URLs != 4 || rep.Summary.Parsed != 4 || rep.Summary.Patterns != 1 {
		t.Fatalf("summary 不正确：%+v", rep.Summary)
	}
	if len(rep.Patterns) != 1 || rep.Patterns[0].Pattern != "/g/photo-{n}(-{modifier}).jpg" {
		t.Fatalf("patterns 不正确：%+v", rep.Patterns)
	}
	if got := rep.Patterns[0].Missing; len(got) != 1 || got[0] != 3 {
		t.Fatalf("missing 不正确：%v", got)
	}

	want := []struct {
		url   string
		rule  string
		state string
	}{
		{srv.URL + "/g/photo-5.jpg", pattern.RuleUnmodified, domain.VerifyReachable},
		{srv.URL + "/g/photo-3.jpg", pattern.RuleGap, domain.VerifyUnreachable},
		{srv.URL + "/g/photo-3-redacted.jpg", pattern.RuleGapModified, domain.VerifyUnreachable},
	}
	if len(rep.Suggestions) != len(want) {
		t.Fatalf("期望 %d 个候选，实际 %+v", len(want), rep.Suggestions)
	}
	for i, w := range want {
		got := rep.Suggestions[i]
		if got.URL != w.url || got.Rule != w.rule || got.Verification.State != w.state {
			t.Fatalf("第 %d 个候选不符合预期：got=%+v want=%+v", i, got, w)
		}
	}
	if v := rep.Suggestions[0].Verification; v.StatusCode != 200 || v.ContentType != "image/jpeg" || v.ContentLength != 2048 {
		t.Fatalf("reachable 结果缺少响应信息：%+v", v)
	}
	if rep.Summary.Checked != 3 || rep.Summary.Reachable != 1 || rep.Summary.Unreachable != 2 {
		t.Fatalf("验证统计不正确：%+v", rep.Summary)
	}

	if got := testutil.ToFloat64(m.Verifications.WithLabelValues(domain.VerifyReachable)); got != 1 {
		t.Fatalf("verifications_total{reachable} 期望 1，实际 %v", got)
	}
	if got := testutil.ToFloat64(m.Suggestions.WithLabelValues(pattern.RuleGapModified)); got != 1 {
		t.Fatalf("suggestions_total{gap_modified} 期望 1，实际 %v", got)
	}
}

type countingVerifier struct {
	calls atomic.Int32
	state string
}

func (v *countingVerifier) Verify(ctx context.Context, rawURL string) domain.Verification {
	v.calls.Add(1)
	return domain.Verification{State: v.state}
}

func TestExecute_MaxChecksLimitsProbes(t *testing.T) {
	srv := newSite(t)
	defer srv.Close()

	eff := siteConfig(srv.URL)
	eff.MaxChecks = 1
	ver := &countingVerifier{state: domain.VerifyUnreachable}

	rep := Execute(context.Background(), eff, Deps{Client: srv.Client(), Verifier: ver})

	if ver.calls.Load() != 1 {
		t.Fatalf("max_checks=1 时只应探测 1 次，实际 %d", ver.calls.Load())
	}
	// 按 URL 顺序挑选：photo-3-redacted.jpg 排在 photo-3.jpg 之前。
	for _, s := range rep.Suggestions {
		checked := s.Verification.Checked()
		if s.URL == srv.URL+"/g/photo-3-redacted.jpg" {
			if !checked {
				t.Fatalf("期望探测 %s", s.URL)
			}
		} else if s.Verification.State != domain.VerifyNotChecked {
			t.Fatalf("未入选的候选应保持 not_checked：%+v", s)
		}
	}
}

func TestExecute_NoCheckLeavesNotChecked(t *testing.T) {
	srv := newSite(t)
	defer srv.Close()

	eff := siteConfig(srv.URL)
	eff.Check = false
	ver := &countingVerifier{state: domain.VerifyReachable}

	rep := Execute(context.Background(), eff, Deps{Client: srv.Client(), Verifier: ver})
	if ver.calls.Load() != 0 {
		t.Fatalf("未开启 check 时不应探测")
	}
	for _, s := range rep.Suggestions {
		if s.Verification.State != domain.VerifyNotChecked {
			t.Fatalf("期望 not_checked：%+v", s)
		}
	}
}

func TestExecute_AllSourcesFailed(t *testing.T) {
	eff := config.EffectiveConfig{
		HTML:        []string{filepath.Join(t.TempDir(), "missing.html")},
		Vocabulary:  pattern.DefaultVocabulary(),
		Concurrency: 1,
	}
	rep := Execute(context.Background(), eff, Deps{})
	if !rep.AllSourcesFailed() {
		t.Fatalf("唯一来源失败时应视为全部失败：%+v", rep.Sources)
	}
	if rep.Sources[0].ErrorCode != domain.ErrCodeReadFailed {
		t.Fatalf("本地文件读取失败应为 read_failed：%+v", rep.Sources[0])
	}
}

func TestExecute_InvalidProxyDegradesToReportEntry(t *testing.T) {
	eff := config.EffectiveConfig{ProxyURL: "not-a-proxy", Vocabulary: pattern.DefaultVocabulary()}
	rep := Execute(context.Background(), eff, Deps{})
	if len(rep.Sources) != 1 || rep.Sources[0].ErrorCode != domain.ErrCodeConfigInvalid {
		t.Fatalf("代理无效应记录为 config_invalid：%+v", rep.Sources)
	}
}

func TestAnalyze_TopExamplesMissing(t *testing.T) {
	urls := []string{
		"https://example.test/g/image-1.jpg",
		"https://example.test/g/image-4.jpg",
		"https://example.test/g/image-7.jpg",
		"https://example.test/shots/screen-1-2.webp",
		"https://example.test/banner.png",
	}
	rep := Analyze(urls, pattern.DefaultVocabulary(), AnalyzeOptions{Top: 1, Examples: 2, Missing: 3})

	if rep.Summary.Patterns != 2 || len(rep.Patterns) != 1 {
		t.Fatalf("top=1 时应只展示 1 个模式但保留总数：summary=%+v patterns=%d", rep.Summary, len(rep.Patterns))
	}
	p := rep.Patterns[0]
	// image 与 screen 同为 3 分，成员数多者优先。
	if p.Pattern != "/g/image-{n}.jpg" || p.Seen != 3 || p.DistinctIndices != 3 {
		t.Fatalf("排名第一的模式不正确：%+v", p)
	}
	if len(p.Examples) != 2 || p.Examples[0] != "https://example.test/g/image-1.jpg" {
		t.Fatalf("examples 应排序并截断：%v", p.Examples)
	}
	if len(p.Missing) != 3 || p.Missing[0] != 2 || p.MissingCount != 4 {
		t.Fatalf("missing 不正确：%v count=%d", p.Missing, p.MissingCount)
	}
	if rep.Summary.URLs != 5 || rep.Summary.Parsed != 4 {
		t.Fatalf("summary 不正确：%+v", rep.Summary)
	}
	if len(rep.Suggestions) != 0 {
		t.Fatalf("未开启 suggest 时不应生成候选")
	}
}

func TestAnalyze_Suggest(t *testing.T) {
	rep := Analyze([]string{
		"https://example.test/g/photo-1.jpg",
		"https://example.test/g/photo-3.jpg",
	}, pattern.DefaultVocabulary(), AnalyzeOptions{Top: 10, Suggest: true})

	if len(rep.Suggestions) != 1 || rep.Suggestions[0].URL != "https://example.test/g/photo-2.jpg" {
		t.Fatalf("候选不正确：%+v", rep.Suggestions)
	}
	if rep.Suggestions[0].Verification.State != domain.VerifyNotChecked {
		t.Fatalf("Analyze 不做探测，状态应为 not_checked")
	}
}
