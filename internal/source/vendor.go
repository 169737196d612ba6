package source

import "bytes"

// sitemap 生成器指纹。
const (
	VendorCore     = "core"
	VendorWPCom    = "wpcom"
	VendorJetpack  = "jetpack"
	VendorYoast    = "yoast"
	VendorRankMath = "rank-math"
	VendorAIOSEO   = "aioseo"
	VendorSEOPress = "seopress"
	VendorUnknown  = "unknown"
)

// DetectVendor 按文本标记识别 sitemap 的生成器（顺序敏感：先核心/托管，再 SEO 插件）。
func DetectVendor(body []byte) string {
	t := bytes.ToLower(body)
	has := func(s string) bool { return bytes.Contains(t, []byte(s)) }

	switch {
	case has("<urlset") && has("wp-sitemap"):
		return VendorCore
	case has(`generator="wordpress.com"`):
		return VendorWPCom
	case has("jetpack"):
		return VendorJetpack
	case has("yoast"):
		return VendorYoast
	case has("rank math") || has("rank-math"):
		return VendorRankMath
	case has("all in one seo") || has("aioseo"):
		return VendorAIOSEO
	case has("seopress"):
		return VendorSEOPress
	}
	return VendorUnknown
}
