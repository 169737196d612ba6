package pattern

import (
	"sort"

	"github.com/John-Robertt/leakloom/internal/mediaurl"
)

// 候选生成上限：稀疏的大跨度序列也只会产生有限输出。
//
// MaxModifiedGapModifiers 大于 SensitiveModifiers 的长度（9），
// 当前封闭集合下一个分组最多产生 MaxModifiedGapIndices*9 条 gap_modified；
// 该上限只在敏感集合扩充后才会截断。
const (
	MaxGapCandidates        = 500
	MaxModifiedGapIndices   = 200
	MaxModifiedGapModifiers = 10
)

// 候选规则。
const (
	RuleUnmodified  = "unmodified"
	RuleGap         = "gap"
	RuleGapModified = "gap_modified"
)

// Suggestion 是一个推断出来、但未在输入中出现的候选 URL。
type Suggestion struct {
	URL      string
	Pattern  string
	Rule     string
	Indices  Index
	Modifier string
}

// Suggest 为单个分组生成候选（确定性输出）。
//
// 规则：
//   - unmodified：某个序号只出现过带修饰词的版本，且其中至少一个是敏感修饰词 => 推断原图存在
//   - gap：numlen==1 时，[min,max] 内缺失的序号（最多 MaxGapCandidates 个）
//   - gap_modified：前 MaxModifiedGapIndices 个缺失序号 × 组内前 MaxModifiedGapModifiers 个敏感修饰词
//
// 候选使用成员的真实目录（不是模板），所以重新解析候选会得到同一个分组键。
// 与组内成员相同的候选不会输出。
func Suggest(g *PatternGroup) []Suggestion {
	members := make(map[string]struct{}, len(g.members))
	for _, m := range g.members {
		members[m.url] = struct{}{}
	}
	pattern := g.Pattern()

	var out []Suggestion
	emitted := make(map[string]struct{}, 16)
	emit := func(dir string, ix Index, modifier, rule string) {
		u := dir + g.filename(ix, modifier)
		if _, ok := members[u]; ok {
			return
		}
		if _, ok := emitted[u]; ok {
			return
		}
		emitted[u] = struct{}{}
		out = append(out, Suggestion{
			URL:      u,
			Pattern:  pattern,
			Rule:     rule,
			Indices:  append(Index(nil), ix...),
			Modifier: modifier,
		})
	}

	for _, ix := range g.IndexTuples() {
		key := ix.String()
		unmodified, sensitive := false, false
		dirs := make([]string, 0, 2)
		seenDir := make(map[string]struct{}, 2)
		for _, m := range g.members {
			if m.indices.String() != key {
				continue
			}
			if m.modifier == "" {
				unmodified = true
			} else if IsSensitive(m.modifier) {
				sensitive = true
			}
			d := m.dir()
			if _, ok := seenDir[d]; !ok {
				seenDir[d] = struct{}{}
				dirs = append(dirs, d)
			}
		}
		if unmodified || !sensitive {
			continue
		}
		for _, d := range dirs {
			emit(d, ix, "", RuleUnmodified)
		}
	}

	if g.key.NumLen != 1 {
		return out
	}

	missing := g.Missing(MaxGapCandidates)
	if len(missing) == 0 {
		return out
	}
	dirBelow := g.gapDirs()
	for _, n := range missing {
		emit(dirBelow(n), Index{n}, "", RuleGap)
	}

	mods := g.sensitiveModifiers()
	if len(mods) > MaxModifiedGapModifiers {
		mods = mods[:MaxModifiedGapModifiers]
	}
	if len(mods) == 0 {
		return out
	}
	if len(missing) > MaxModifiedGapIndices {
		missing = missing[:MaxModifiedGapIndices]
	}
	for _, n := range missing {
		d := dirBelow(n)
		for _, mod := range mods {
			emit(d, Index{n}, mod, RuleGapModified)
		}
	}
	return out
}

// Synthesize 按给定分组顺序生成全部候选，并在所有分组之间、以及与 observed 之间去重。
func Synthesize(groups []*PatternGroup, observed map[string]struct{}) []Suggestion {
	var out []Suggestion
	seen := make(map[string]struct{}, 64)
	for _, g := range groups {
		for _, s := range Suggest(g) {
			if _, ok := observed[s.URL]; ok {
				continue
			}
			if _, ok := seen[s.URL]; ok {
				continue
			}
			seen[s.URL] = struct{}{}
			out = append(out, s)
		}
	}
	return out
}

// Observed 返回规范化后的 URL 集合，供 Synthesize 做存在性判断。
func Observed(urls []string) map[string]struct{} {
	out := make(map[string]struct{}, len(urls))
	for _, u := range urls {
		if nu := mediaurl.Normalize(u); nu != "" {
			out[nu] = struct{}{}
		}
	}
	return out
}

func (g *PatternGroup) filename(ix Index, modifier string) string {
	name := g.key.Prefix + "-" + ix.String()
	if modifier != "" {
		name += "-" + modifier
	}
	return name + "." + g.key.Ext
}

// gapDirs 返回“缺失序号 => 目录”的查找函数：取缺失值下方最近的已观测序号，
// 用该序号下 URL 字典序最小的成员目录。
func (g *PatternGroup) gapDirs() func(n int) string {
	first := make(map[int]string, len(g.members))
	for _, m := range g.members {
		// members 已按 URL 排序，第一次出现即字典序最小。
		if _, ok := first[m.indices[0]]; !ok {
			first[m.indices[0]] = m.dir()
		}
	}
	present := make([]int, 0, len(first))
	for n := range first {
		present = append(present, n)
	}
	sort.Ints(present)

	return func(n int) string {
		i := sort.SearchInts(present, n)
		if i == 0 {
			return first[present[0]]
		}
		return first[present[i-1]]
	}
}

func (g *PatternGroup) sensitiveModifiers() []string {
	mods := g.Modifiers()
	out := mods[:0]
	for _, m := range mods {
		if IsSensitive(m) {
			out = append(out, m)
		}
	}
	return out
}

