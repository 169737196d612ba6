package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	SourceKindHTML    = "html"
	SourceKindSitemap = "sitemap"
	SourceKindPage    = "page"
)

const (
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeParseFailed    = "parse_failed"
	ErrCodeReadFailed     = "read_failed"
	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
)

// Report 是对外稳定输出（--out 文件 / stdout JSON / API 响应）的结构。
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary     ReportSummary      `json:"summary"`
	Sources     []SourceResult     `json:"sources"`
	Patterns    []PatternSummary   `json:"patterns"`
	Suggestions []SuggestionRecord `json:"suggestions"`
}

// ReportSummary 中 URLs/Parsed 由调用方填写（Finalize 保留），其余由条目计算得出。
// Patterns 是分组总数：调用方可以只展示前 N 个模式，此时保留调用方给出的更大值。
type ReportSummary struct {
	URLs          int `json:"urls"`
	Parsed        int `json:"parsed"`
	Sources       int `json:"sources"`
	SourcesFailed int `json:"sources_failed"`
	Patterns      int `json:"patterns"`
	Suggestions   int `json:"suggestions"`
	Checked       int `json:"checked"`
	Reachable     int `json:"reachable"`
	Unreachable   int `json:"unreachable"`
	Unlinked      int `json:"unlinked"`
}

// SourceResult 描述一个输入来源（HTML 页面 / 文件 / sitemap）的收集结果。
// 单个来源失败只记录在这里，不影响其他来源。
//
// Unlinked 只出现在 page 来源上：sitemap 为该页面声明、但页面本身没有引用的媒体 URL。
type SourceResult struct {
	Source   string   `json:"source"`
	Kind     string   `json:"kind"`
	Vendor   string   `json:"vendor,omitempty"`
	URLs     int      `json:"urls"`
	Unlinked []string `json:"unlinked,omitempty"`

	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

func (s SourceResult) Failed() bool { return s.ErrorCode != "" }

// PatternSummary 是一个模式分组的展示视图。
//
// Indices 为去重排序后的序号元组（多段序号以 '-' 连接）；Missing 只对单序号分组有意义。
type PatternSummary struct {
	Pattern         string   `json:"pattern"`
	DirTemplate     string   `json:"dir_template"`
	Prefix          string   `json:"prefix"`
	Ext             string   `json:"ext"`
	NumLen          int      `json:"numlen"`
	Score           int      `json:"score"`
	Seen            int      `json:"seen"`
	DistinctIndices int      `json:"distinct_indices"`
	Indices         []string `json:"indices"`
	Modifiers       []string `json:"modifiers"`
	Examples        []string `json:"examples"`
	Missing         []int    `json:"missing,omitempty"`
	MissingCount    int      `json:"missing_count"`
}

// SuggestionRecord 是一个候选 URL 及其（可选的）存在性验证结果。
type SuggestionRecord struct {
	URL          string       `json:"url"`
	Pattern      string       `json:"pattern"`
	Rule         string       `json:"rule"`
	Indices      []int        `json:"indices"`
	Modifier     string       `json:"modifier,omitempty"`
	Verification Verification `json:"verification"`
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) patterns 稳定排序：score 降序，seen 降序；同分保持调用方给出的顺序
// 3) summary 由条目计算得出（URLs/Parsed 保留调用方的值，Patterns 取两者较大者）
func (r *Report) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	if r.Sources == nil {
		r.Sources = []SourceResult{}
	}
	if r.Patterns == nil {
		r.Patterns = []PatternSummary{}
	}
	if r.Suggestions == nil {
		r.Suggestions = []SuggestionRecord{}
	}

	sort.SliceStable(r.Patterns, func(i, j int) bool {
		a, b := r.Patterns[i], r.Patterns[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Seen > b.Seen
	})

	s := ReportSummary{
		URLs:        r.Summary.URLs,
		Parsed:      r.Summary.Parsed,
		Sources:     len(r.Sources),
		Patterns:    max(r.Summary.Patterns, len(r.Patterns)),
		Suggestions: len(r.Suggestions),
	}
	for _, src := range r.Sources {
		if src.Failed() {
			s.SourcesFailed++
		}
		s.Unlinked += len(src.Unlinked)
	}
	for _, sg := range r.Suggestions {
		switch sg.Verification.State {
		case VerifyReachable:
			s.Checked++
			s.Reachable++
		case VerifyUnreachable:
			s.Checked++
			s.Unreachable++
		}
	}
	r.Summary = s
}

// AllSourcesFailed 在至少有一个来源且全部失败时为 true（CLI 退出码依据）。
func (r Report) AllSourcesFailed() bool {
	return r.Summary.Sources > 0 && r.Summary.SourcesFailed == r.Summary.Sources
}

// MarshalJSON 仅用于集中约束输出的稳定性（避免未来不小心引入非确定字段）。
// 当前只是透传 encoding/json 的默认行为。
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(Alias(r))
}
