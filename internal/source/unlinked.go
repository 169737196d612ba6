package source

import (
	"sort"

	"github.com/John-Robertt/leakloom/internal/mediaurl"
)

// Unlinked 返回 declared 中没有被页面引用的媒体（规范化、去重、排序）。
//
// 规则：
// - 先按规范化 URL 精确匹配
// - 再按 FilenameKey 模糊匹配（页面引用的是缩略图 / -scaled / @2x 变体也算已引用）
func Unlinked(declared, rendered []string) []string {
	urls := make(map[string]struct{}, len(rendered))
	keys := make(map[string]struct{}, len(rendered))
	for _, u := range rendered {
		nu := mediaurl.Normalize(u)
		if nu == "" {
			continue
		}
		urls[nu] = struct{}{}
		if k := mediaurl.FilenameKey(nu); k != "" {
			keys[k] = struct{}{}
		}
	}

	var out []string
	seen := make(map[string]struct{}, len(declared))
	for _, d := range declared {
		nd := mediaurl.Normalize(d)
		if nd == "" {
			continue
		}
		if _, ok := seen[nd]; ok {
			continue
		}
		seen[nd] = struct{}{}
		if _, ok := urls[nd]; ok {
			continue
		}
		if _, ok := keys[mediaurl.FilenameKey(nd)]; ok {
			continue
		}
		out = append(out, nd)
	}
	sort.Strings(out)
	return out
}
