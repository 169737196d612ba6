package pattern

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/leakloom/internal/mediaurl"
)

// Index 是文件名末尾的数字序号元组（保持从左到右的原始顺序）。
type Index []int

// String 以 '-' 连接序号，例如 (12,3) => "12-3"。
func (ix Index) String() string {
	parts := make([]string, len(ix))
	for i, n := range ix {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, "-")
}

func (ix Index) less(other Index) bool {
	for i := 0; i < len(ix) && i < len(other); i++ {
		if ix[i] != other[i] {
			return ix[i] < other[i]
		}
	}
	return len(ix) < len(other)
}

// Key 是分组键：同一目录模板、前缀、扩展名与序号元数的媒体属于同一模式。
type Key struct {
	DirTemplate string
	Prefix      string
	Ext         string
	NumLen      int
}

// ParsedMedia 是单个媒体 URL 的解析结果（不可变）。
type ParsedMedia struct {
	url         string
	dirTemplate string
	prefix      string
	indices     Index
	modifier    string
	ext         string
}

func (p ParsedMedia) URL() string         { return p.url }
func (p ParsedMedia) DirTemplate() string { return p.dirTemplate }
func (p ParsedMedia) Prefix() string      { return p.prefix }
func (p ParsedMedia) Ext() string         { return p.ext }
func (p ParsedMedia) NumLen() int         { return len(p.indices) }

// Indices 返回序号元组的副本。
func (p ParsedMedia) Indices() Index {
	return append(Index(nil), p.indices...)
}

// Modifier 返回末尾修饰词；没有修饰词时 ok=false。
func (p ParsedMedia) Modifier() (string, bool) {
	return p.modifier, p.modifier != ""
}

func (p ParsedMedia) Key() Key {
	return Key{DirTemplate: p.dirTemplate, Prefix: p.prefix, Ext: p.ext, NumLen: len(p.indices)}
}

// dir 返回规范化 URL 中文件名之前的部分（含末尾 '/'）。
func (p ParsedMedia) dir() string {
	return p.url[:strings.LastIndexByte(p.url, '/')+1]
}

// Parse 把一个媒体 URL 解析为 ParsedMedia。
//
// 步骤（固定）：
// 1) Normalize；文件名按最后一个 '.' 切分 stem/ext，无扩展名则失败
// 2) stem 按 '-' 切分为非空 token，无 token 则失败
// 3) 末尾 token（忽略大小写）在词表中 => 弹出为 modifier（只弹一次）
// 4) 末尾 token 为纯数字则持续弹出为序号，最后反转恢复左到右顺序
// 5) 没有任何序号 => 失败（只有修饰词不构成可猜测的序列）
// 6) 剩余 token 以 '-' 连接并转小写作为 prefix，为空则失败
// 7) 目录部分转换为 DirTemplate
//
// Parse 是纯函数：相同输入 => 相同输出。失败用 ok=false 表示“没有可猜测的模式”，不是错误。
func Parse(rawURL string, v Vocabulary) (ParsedMedia, bool) {
	nu := mediaurl.Normalize(rawURL)
	u, err := url.Parse(nu)
	if err != nil {
		return ParsedMedia{}, false
	}
	path := u.EscapedPath()
	if !strings.Contains(path, "/") || !strings.Contains(nu, "/") {
		return ParsedMedia{}, false
	}

	base := nu[strings.LastIndexByte(nu, '/')+1:]
	dot := strings.LastIndexByte(base, '.')
	if dot < 0 {
		return ParsedMedia{}, false
	}
	stem, ext := base[:dot], strings.ToLower(base[dot+1:])
	if ext == "" {
		return ParsedMedia{}, false
	}

	tokens := splitTokens(stem)
	if len(tokens) == 0 {
		return ParsedMedia{}, false
	}

	var modifier string
	if last := strings.ToLower(tokens[len(tokens)-1]); v.Has(last) {
		modifier = last
		tokens = tokens[:len(tokens)-1]
	}

	var popped []int
	for len(tokens) > 0 {
		n, ok := indexToken(tokens[len(tokens)-1])
		if !ok {
			break
		}
		popped = append(popped, n)
		tokens = tokens[:len(tokens)-1]
	}
	if len(popped) == 0 {
		return ParsedMedia{}, false
	}
	indices := make(Index, len(popped))
	for i, n := range popped {
		indices[len(popped)-1-i] = n
	}

	prefix := strings.ToLower(strings.Join(tokens, "-"))
	if prefix == "" {
		return ParsedMedia{}, false
	}

	return ParsedMedia{
		url:         nu,
		dirTemplate: DirTemplate(path),
		prefix:      prefix,
		indices:     indices,
		modifier:    modifier,
		ext:         ext,
	}, true
}

func splitTokens(stem string) []string {
	out := make([]string, 0, 4)
	for _, t := range strings.Split(stem, "-") {
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// indexToken 接受纯 ASCII 数字且能放进 int 的 token。
func indexToken(tok string) (int, bool) {
	if !isDigits(tok) {
		return 0, false
	}
	n, err := strconv.Atoi(tok)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
