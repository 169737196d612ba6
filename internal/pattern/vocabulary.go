package pattern

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
)

// DefaultModifiers 是内置的修饰词基础集合（封闭）。调用方只能追加，不能删除。
var DefaultModifiers = []string{
	// 脱敏 / 隐私
	"redacted", "censored", "anonymized", "anonymised", "masked", "obfuscated", "pixelated", "blur", "blurred",
	// 编辑 / 裁剪 / 版本
	"cropped", "crop", "trimmed", "resized", "edited", "edit", "final", "draft",
}

// SensitiveModifiers 是“遮挡信息”的修饰词子集（封闭，不可配置）。
// 只有这些修饰词会触发“原图可能存在”的候选推断。
var SensitiveModifiers = []string{
	"redacted", "censored", "anonymized", "anonymised", "masked", "obfuscated", "pixelated", "blur", "blurred",
}

var sensitiveSet = toSet(SensitiveModifiers)

// IsSensitive 判断修饰词是否属于敏感子集。
func IsSensitive(modifier string) bool {
	_, ok := sensitiveSet[strings.ToLower(modifier)]
	return ok
}

// Vocabulary 是一次分析使用的修饰词表（基础集合 + 调用方追加）。
// 零值 Vocabulary 不含任何修饰词。
type Vocabulary struct {
	modifiers map[string]struct{}
}

// VocabularyError 表示调用方提供的修饰词不合法（配置错误，只在配置阶段出现一次）。
type VocabularyError struct {
	Token  string
	Reason string
}

func (e *VocabularyError) Error() string {
	return fmt.Sprintf("修饰词 %q 无效：%s", e.Token, e.Reason)
}

// DefaultVocabulary 返回只包含 DefaultModifiers 的词表。
func DefaultVocabulary() Vocabulary {
	return Vocabulary{modifiers: toSet(DefaultModifiers)}
}

// NewVocabulary 在基础集合上追加 extra。
//
// 规则：
// - 追加项 trim + 小写；空项跳过
// - 含 '-' '.' '/' 或空白的项无法作为文件名中的单个 token，视为配置错误
// - 纯数字项会与序号混淆，视为配置错误
func NewVocabulary(extra []string) (Vocabulary, error) {
	v := DefaultVocabulary()
	for _, raw := range extra {
		tok := strings.ToLower(strings.TrimSpace(raw))
		if tok == "" {
			continue
		}
		if err := validateToken(tok); err != nil {
			return Vocabulary{}, err
		}
		v.modifiers[tok] = struct{}{}
	}
	return v, nil
}

func validateToken(tok string) error {
	if strings.ContainsAny(tok, "-./\\?#") {
		return &VocabularyError{Token: tok, Reason: "不能包含 - . / \\ ? #"}
	}
	if strings.IndexFunc(tok, unicode.IsSpace) >= 0 {
		return &VocabularyError{Token: tok, Reason: "不能包含空白"}
	}
	if isDigits(tok) {
		return &VocabularyError{Token: tok, Reason: "不能是纯数字"}
	}
	return nil
}

// Has 判断 token（忽略大小写）是否是修饰词。
func (v Vocabulary) Has(token string) bool {
	_, ok := v.modifiers[strings.ToLower(token)]
	return ok
}

// Modifiers 返回排序后的全部修饰词。
func (v Vocabulary) Modifiers() []string {
	out := make([]string, 0, len(v.modifiers))
	for m := range v.modifiers {
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

func toSet(xs []string) map[string]struct{} {
	m := make(map[string]struct{}, len(xs))
	for _, x := range xs {
		m[x] = struct{}{}
	}
	return m
}
