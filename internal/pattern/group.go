package pattern

import (
	"sort"
	"strconv"
	"strings"
)

// PatternGroup 是共享同一 Key 的媒体集合。
// 由 Group 创建；Group 返回后不再修改。
type PatternGroup struct {
	key     Key
	members []ParsedMedia
}

// Group 解析全部 URL 并按 Key 分组。
//
// - 解析失败的 URL 直接丢弃（没有可猜测的模式）
// - 规范化后相同的 URL 只计一次
// - 组内成员按 URL 字典序排序：输入顺序不影响分组结果
func Group(urls []string, v Vocabulary) map[Key]*PatternGroup {
	groups := make(map[Key]*PatternGroup, 64)
	seen := make(map[string]struct{}, len(urls))

	for _, raw := range urls {
		pm, ok := Parse(raw, v)
		if !ok {
			continue
		}
		if _, dup := seen[pm.url]; dup {
			continue
		}
		seen[pm.url] = struct{}{}

		k := pm.Key()
		g, ok := groups[k]
		if !ok {
			g = &PatternGroup{key: k}
			groups[k] = g
		}
		g.members = append(g.members, pm)
	}

	for _, g := range groups {
		sort.Slice(g.members, func(i, j int) bool { return g.members[i].url < g.members[j].url })
	}
	return groups
}

// Rank 按展示顺序排列分组：score 降序，成员数降序，最后按 pattern 字符串升序保证稳定。
func Rank(groups map[Key]*PatternGroup) []*PatternGroup {
	out := make([]*PatternGroup, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if sa, sb := a.Score(), b.Score(); sa != sb {
			return sa > sb
		}
		if a.Len() != b.Len() {
			return a.Len() > b.Len()
		}
		return a.Pattern() < b.Pattern()
	})
	return out
}

func (g *PatternGroup) Key() Key { return g.key }
func (g *PatternGroup) Len() int { return len(g.members) }

// Members 返回成员副本（按 URL 排序）。
func (g *PatternGroup) Members() []ParsedMedia {
	return append([]ParsedMedia(nil), g.members...)
}

// Modifiers 返回组内出现过的不同修饰词（排序）。
func (g *PatternGroup) Modifiers() []string {
	set := make(map[string]struct{}, 4)
	for _, m := range g.members {
		if m.modifier != "" {
			set[m.modifier] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for m := range set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// IndexTuples 返回组内出现过的不同序号元组（按数值字典序排序）。
func (g *PatternGroup) IndexTuples() []Index {
	set := make(map[string]Index, len(g.members))
	for _, m := range g.members {
		set[m.indices.String()] = m.indices
	}
	out := make([]Index, 0, len(set))
	for _, ix := range set {
		out = append(out, append(Index(nil), ix...))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].less(out[j]) })
	return out
}

// Pattern 返回用于展示的规范模式串，例如：
//
//	/uploads/{YYYY}/{MM}/image-{n}(-{modifier}).png
//	/shots/screenshot-dashboard-{n1}-{n2}.png
func (g *PatternGroup) Pattern() string {
	idx := "{n}"
	if g.key.NumLen > 1 {
		parts := make([]string, g.key.NumLen)
		for i := range parts {
			parts[i] = "{n" + strconv.Itoa(i+1) + "}"
		}
		idx = strings.Join(parts, "-")
	}
	mod := ""
	if g.hasModifier() {
		mod = "(-{modifier})"
	}
	return g.key.DirTemplate + g.key.Prefix + "-" + idx + mod + "." + g.key.Ext
}

// Missing 返回 [min,max] 范围内缺失的序号（升序，最多 limit 个）。
// 仅对单序号分组有意义；其余情况返回 nil。
func (g *PatternGroup) Missing(limit int) []int {
	present := g.singleIndices()
	if limit <= 0 || len(present) == 0 {
		return nil
	}

	lo, hi := present[0], present[len(present)-1]
	out := make([]int, 0, min(limit, 64))
	j := 0
	// 从 lo 逐个推进：稀疏大区间的开销上限为 limit + len(present)。
	for n := lo; len(out) < limit; n++ {
		if j < len(present) && present[j] == n {
			j++
		} else {
			out = append(out, n)
		}
		if n == hi {
			break
		}
	}
	return out
}

// MissingCount 返回缺失序号总数（不受 limit 限制）。
func (g *PatternGroup) MissingCount() int {
	present := g.singleIndices()
	if len(present) == 0 {
		return 0
	}
	span := present[len(present)-1] - present[0]
	return span - (len(present) - 1)
}

// singleIndices 返回单序号分组里去重、升序的序号。
func (g *PatternGroup) singleIndices() []int {
	if g.key.NumLen != 1 {
		return nil
	}
	set := make(map[int]struct{}, len(g.members))
	for _, m := range g.members {
		set[m.indices[0]] = struct{}{}
	}
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}

func (g *PatternGroup) hasModifier() bool {
	for _, m := range g.members {
		if m.modifier != "" {
			return true
		}
	}
	return false
}
