package planner

import (
	"sort"

	"github.com/John-Robertt/leakloom/internal/domain"
	"github.com/John-Robertt/leakloom/internal/mediaurl"
)

// PlanChecks 基于候选列表生成确定性的探测计划（不做任何网络请求）。
//
// 规则：
// - 只探测 http/https 候选；其余保持 not_checked
// - 按 URL 字典序挑选，最多 maxChecks 个（<=0 表示不限）
// - checks 按 URL 顺序返回；skipped 按下标升序返回
func PlanChecks(records []domain.SuggestionRecord, maxChecks int) (checks []int, skipped []int) {
	eligible := make([]int, 0, len(records))
	for i, r := range records {
		if mediaurl.IsHTTP(r.URL) {
			eligible = append(eligible, i)
		}
	}
	sort.SliceStable(eligible, func(a, b int) bool {
		return records[eligible[a]].URL < records[eligible[b]].URL
	})

	if maxChecks > 0 && len(eligible) > maxChecks {
		eligible = eligible[:maxChecks]
	}

	picked := make(map[int]struct{}, len(eligible))
	for _, i := range eligible {
		picked[i] = struct{}{}
	}
	for i := range records {
		if _, ok := picked[i]; !ok {
			skipped = append(skipped, i)
		}
	}
	return eligible, skipped
}
