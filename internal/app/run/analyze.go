package run

import (
	"sort"
	"time"

	"github.com/John-Robertt/leakloom/internal/domain"
	"github.com/John-Robertt/leakloom/internal/pattern"
)

// AnalyzeOptions 控制报告中模式的展示量与是否生成候选。
type AnalyzeOptions struct {
	// Top 为展示的模式数上限（按排名截断）。
	Top int
	// Examples 为每个模式展示的示例 URL 数。
	Examples int
	// Missing 为每个模式展示的缺失序号数（0 表示不展示，MissingCount 总是计算）。
	Missing int
	Suggest bool
}

// Analyze 是纯引擎入口：分组、排名、（可选）生成候选，不做任何网络请求。
// 所有候选的验证状态均为 not_checked。
func Analyze(urls []string, v pattern.Vocabulary, opts AnalyzeOptions) domain.Report {
	started := time.Now().UTC()
	a := analyze(urls, v, opts)

	rep := domain.Report{
		StartedAt:   started,
		Summary:     a.summary,
		Patterns:    a.patterns,
		Suggestions: a.records,
	}
	rep.FinishedAt = time.Now().UTC()
	rep.Finalize()
	return rep
}

type analysis struct {
	groups   []*pattern.PatternGroup
	summary  domain.ReportSummary
	patterns []domain.PatternSummary
	records  []domain.SuggestionRecord
}

func analyze(urls []string, v pattern.Vocabulary, opts AnalyzeOptions) analysis {
	observed := pattern.Observed(urls)
	groups := pattern.Rank(pattern.Group(urls, v))

	parsed := 0
	for _, g := range groups {
		parsed += g.Len()
	}

	a := analysis{
		groups: groups,
		summary: domain.ReportSummary{
			URLs:     len(observed),
			Parsed:   parsed,
			Patterns: len(groups),
		},
	}

	top := len(groups)
	if opts.Top >= 0 && opts.Top < top {
		top = opts.Top
	}
	a.patterns = make([]domain.PatternSummary, 0, top)
	for _, g := range groups[:top] {
		a.patterns = append(a.patterns, summarize(g, opts))
	}

	if opts.Suggest {
		a.records = toRecords(pattern.Synthesize(groups, observed))
	}
	return a
}

func summarize(g *pattern.PatternGroup, opts AnalyzeOptions) domain.PatternSummary {
	k := g.Key()
	tuples := g.IndexTuples()
	indices := make([]string, 0, len(tuples))
	for _, t := range tuples {
		indices = append(indices, t.String())
	}

	urls := make([]string, 0, g.Len())
	for _, m := range g.Members() {
		urls = append(urls, m.URL())
	}
	sort.Strings(urls)
	if opts.Examples >= 0 && len(urls) > opts.Examples {
		urls = urls[:opts.Examples]
	}

	mods := g.Modifiers()
	if mods == nil {
		mods = []string{}
	}

	return domain.PatternSummary{
		Pattern:         g.Pattern(),
		DirTemplate:     k.DirTemplate,
		Prefix:          k.Prefix,
		Ext:             k.Ext,
		NumLen:          k.NumLen,
		Score:           g.Score(),
		Seen:            g.Len(),
		DistinctIndices: len(tuples),
		Indices:         indices,
		Modifiers:       mods,
		Examples:        urls,
		Missing:         g.Missing(opts.Missing),
		MissingCount:    g.MissingCount(),
	}
}

func toRecords(ss []pattern.Suggestion) []domain.SuggestionRecord {
	out := make([]domain.SuggestionRecord, 0, len(ss))
	for _, s := range ss {
		out = append(out, domain.SuggestionRecord{
			URL:          s.URL,
			Pattern:      s.Pattern,
			Rule:         s.Rule,
			Indices:      append([]int(nil), s.Indices...),
			Modifier:     s.Modifier,
			Verification: domain.NotChecked(),
		})
	}
	return out
}
