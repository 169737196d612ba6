package pattern

import "strings"

var genericPrefixes = map[string]struct{}{
	"image": {}, "images": {}, "img": {},
	"video": {}, "videos": {},
	"screenshot": {}, "screen": {}, "capture": {},
}

// Score 计算分组的展示排序分（只用于排序，从不过滤）。
//
// 权重保持原样：
// +2 目录模板同时含 {YYYY} 与 {MM}
// +2 存在带修饰词的成员
// +2 numlen >= 1（现存分组恒成立）
// +1 prefix 是通用媒体词
// +min(3, 成员数/5)
func (g *PatternGroup) Score() int {
	s := 0
	if strings.Contains(g.key.DirTemplate, PlaceholderYear) && strings.Contains(g.key.DirTemplate, PlaceholderMonth) {
		s += 2
	}
	if g.hasModifier() {
		s += 2
	}
	if g.key.NumLen >= 1 {
		s += 2
	}
	if _, ok := genericPrefixes[g.key.Prefix]; ok {
		s++
	}
	s += min(3, len(g.members)/5)
	return s
}
