package pattern

import (
	"regexp"
	"strings"
)

const (
	PlaceholderYear  = "{YYYY}"
	PlaceholderMonth = "{MM}"
	PlaceholderDay   = "{DD}"
)

var (
	yearRE  = regexp.MustCompile(`^(?:19|20)\d{2}$`)
	monthRE = regexp.MustCompile(`^(?:0[1-9]|1[0-2])$`)
	dayRE   = regexp.MustCompile(`^(?:0[1-9]|[12]\d|3[01])$`)
)

// DirTemplate 把 path 的目录部分转换为模板：日期形态的目录段替换为占位符。
//
// 规则（从左到右，顺序依赖）：
// 1) 19xx/20xx => {YYYY}
// 2) 01-12 => {MM}，仅当上一个输出段是 {YYYY}
// 3) 01-31 => {DD}，仅当前两个输出段依次是 {YYYY},{MM}
//
// 两位数段只有紧跟已识别的日期段时才会折叠，避免把任意两位数目录误判为月份。
// 最后一段（文件名）总是被丢弃；结果首尾都带 '/'。
func DirTemplate(path string) string {
	parts := make([]string, 0, 8)
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return "/"
	}

	dirs := parts[:len(parts)-1]
	out := make([]string, 0, len(dirs))
	for _, seg := range dirs {
		n := len(out)
		switch {
		case yearRE.MatchString(seg):
			out = append(out, PlaceholderYear)
		case n >= 1 && out[n-1] == PlaceholderYear && monthRE.MatchString(seg):
			out = append(out, PlaceholderMonth)
		case n >= 2 && out[n-2] == PlaceholderYear && out[n-1] == PlaceholderMonth && dayRE.MatchString(seg):
			out = append(out, PlaceholderDay)
		default:
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		return "/"
	}
	return "/" + strings.Join(out, "/") + "/"
}
