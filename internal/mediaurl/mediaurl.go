package mediaurl

import (
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	sizeSuffixRE   = regexp.MustCompile(`-\d{2,5}x\d{2,5}$`)
	scaledSuffixRE = regexp.MustCompile(`(?i)-scaled$`)
	retinaSuffixRE = regexp.MustCompile(`@[\dx]+$`)
)

var imageExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
	".svg": {}, ".bmp": {}, ".tif": {}, ".tiff": {},
}

var videoExts = map[string]struct{}{
	".mp4": {}, ".mov": {}, ".webm": {}, ".m4v": {}, ".ogg": {}, ".ogv": {},
}

// Normalize 去掉 query 与 fragment，其余部分逐字保留（不做重新编码）。
//
// 约束：仅在 query/fragment 上不同的两个 URL，Normalize 后必须完全相等。
func Normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	if i := strings.IndexByte(s, '?'); i >= 0 {
		s = s[:i]
	}
	return s
}

// Path 返回规范化 URL 的 path 部分（保持转义形态）。
// 无法解析时退化为规范化后的原文。
func Path(raw string) string {
	nu := Normalize(raw)
	u, err := url.Parse(nu)
	if err != nil {
		return nu
	}
	return u.EscapedPath()
}

// FilenameKey 生成“模糊文件名键”：用于判断某个媒体是否已被页面引用。
//
// 规则（顺序固定）：
// 1) 取 path 最后一段，若含 '.' 去掉扩展名
// 2) 去掉 -800x600 尺寸后缀
// 3) 去掉 -scaled 后缀（忽略大小写）
// 4) 去掉 @2x 视网膜后缀
// 5) 转小写
func FilenameKey(raw string) string {
	p := Path(raw)
	name := p[strings.LastIndexByte(p, '/')+1:]
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[:i]
	}
	name = sizeSuffixRE.ReplaceAllString(name, "")
	name = scaledSuffixRE.ReplaceAllString(name, "")
	name = retinaSuffixRE.ReplaceAllString(name, "")
	return strings.ToLower(name)
}

func ext(raw string) string {
	return strings.ToLower(path.Ext(Path(raw)))
}

// IsImage 按扩展名判断 URL 是否像图片。
func IsImage(raw string) bool {
	_, ok := imageExts[ext(raw)]
	return ok
}

// IsVideo 按扩展名判断 URL 是否像视频。
func IsVideo(raw string) bool {
	_, ok := videoExts[ext(raw)]
	return ok
}

// IsMedia 是 IsImage || IsVideo。
func IsMedia(raw string) bool {
	return IsImage(raw) || IsVideo(raw)
}

// IsHTTP 判断 URL 是否为可探测的 http/https 绝对地址。
func IsHTTP(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Resolve 以 base 为基准解析页面里的引用，返回规范化后的绝对 URL。
// 空引用与 data:/javascript:/mailto:/tel: 伪链接返回 ok=false。
func Resolve(base, ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", false
	}
	low := strings.ToLower(ref)
	for _, p := range []string{"data:", "javascript:", "mailto:", "tel:"} {
		if strings.HasPrefix(low, p) {
			return "", false
		}
	}

	r, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	b, err := url.Parse(strings.TrimSpace(base))
	if err != nil || base == "" {
		if !r.IsAbs() {
			return "", false
		}
		return Normalize(ref), true
	}
	return Normalize(b.ResolveReference(r).String()), true
}
