package source

import (
	"io"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/leakloom/internal/mediaurl"
)

// 需要提取的 (选择器, 属性) 组合。
var htmlAttrs = []struct {
	sel    string
	attrs  []string
	srcset bool
}{
	{sel: "img", attrs: []string{"src", "data-src", "data-lazy-src", "data-original"}},
	{sel: "img, source", attrs: []string{"srcset", "data-srcset"}, srcset: true},
	{sel: "video, source, audio", attrs: []string{"src"}},
	{sel: "video", attrs: []string{"poster"}},
	{sel: "iframe", attrs: []string{"src"}},
	{sel: "a", attrs: []string{"href"}},
	{sel: "link", attrs: []string{"href"}},
	{sel: `meta[property="og:image"], meta[property="og:image:url"], meta[property="og:video"], meta[name="twitter:image"]`, attrs: []string{"content"}},
}

// ExtractHTML 提取页面中所有可能指向媒体的 URL（已解析为绝对地址并规范化，排序去重）。
//
// r 必须已是 UTF-8 文本（见 Document.UTF8）。是否为媒体由上层过滤决定。
func ExtractHTML(r io.Reader, base string) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	// <base href> 覆盖文档地址。
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if abs, ok := mediaurl.Resolve(base, href); ok {
			base = abs
		}
	}

	set := make(map[string]struct{}, 64)
	add := func(ref string) {
		if abs, ok := mediaurl.Resolve(base, ref); ok {
			set[abs] = struct{}{}
		}
	}

	for _, ha := range htmlAttrs {
		doc.Find(ha.sel).Each(func(_ int, s *goquery.Selection) {
			for _, attr := range ha.attrs {
				v, ok := s.Attr(attr)
				if !ok {
					continue
				}
				if ha.srcset {
					for _, ref := range splitSrcset(v) {
						add(ref)
					}
					continue
				}
				add(v)
			}
		})
	}

	out := make([]string, 0, len(set))
	for u := range set {
		out = append(out, u)
	}
	sort.Strings(out)
	return out, nil
}

// splitSrcset 取 srcset 中每个候选的 URL 部分（忽略 1x / 640w 描述符）。
func splitSrcset(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		fields := strings.Fields(part)
		if len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}
