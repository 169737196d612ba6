package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/leakloom/internal/logging"
	"github.com/John-Robertt/leakloom/internal/pattern"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	DefaultConcurrency = 20
	MaxConcurrency     = 32
	DefaultTimeout     = 20 * time.Second
	DefaultTop         = 50
	DefaultExamples    = 4
	// DefaultMissingShown 是 --missing 时每个模式最多展示的缺失序号数。
	DefaultMissingShown = 20
	DefaultListen       = "127.0.0.1:8080"
)

// DefaultFileNames 是 cwd 下自动发现的配置文件名（按顺序取第一个存在的）。
var DefaultFileNames = []string{"leakloom.yaml", "leakloom.yml", "leakloom.json"}

// CLIArgs 是 CLI 暴露的参数，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --suggest=false 必须能覆盖 config.suggest=true。
//
// 字符串/切片字段：非空即视为显式指定。
type CLIArgs struct {
	ConfigPath string

	HTML    []string
	Sitemap string
	Site    string

	CrawlFromSitemap    bool
	CrawlFromSitemapSet bool
	AllURLs             bool
	AllURLsSet          bool

	Include   string
	Exclude   string
	Modifiers []string

	Top          int
	TopSet       bool
	Examples     int
	ExamplesSet  bool
	Missing      bool
	MissingSet   bool
	Suggest      bool
	SuggestSet   bool
	Check        bool
	CheckSet     bool
	MaxChecks    int
	MaxChecksSet bool

	TimeoutSeconds int
	TimeoutSet     bool
	Concurrency    int
	ConcurrencySet bool
	Rate           float64
	RateSet        bool

	ProxyURL         string
	CacheDir         string
	CacheReadOnly    bool
	CacheReadOnlySet bool

	LogLevel    string
	LogFile     string
	MetricsFile string
	Listen      string
}

// FileConfig 对应 leakloom.yaml / leakloom.json 的解析结构。
// 指针字段用于区分“未写”与“显式写成零值”。
type FileConfig struct {
	HTML             []string     `yaml:"html" json:"html"`
	Sitemap          string       `yaml:"sitemap" json:"sitemap"`
	Site             string       `yaml:"site" json:"site"`
	CrawlFromSitemap *bool        `yaml:"crawl_from_sitemap" json:"crawl_from_sitemap"`
	AllURLs          *bool        `yaml:"all_urls" json:"all_urls"`
	Include          string       `yaml:"include" json:"include"`
	Exclude          string       `yaml:"exclude" json:"exclude"`
	Modifiers        []string     `yaml:"modifiers" json:"modifiers"`
	Top              *int         `yaml:"top" json:"top"`
	Examples         *int         `yaml:"examples" json:"examples"`
	Missing          *bool        `yaml:"missing" json:"missing"`
	Suggest          *bool        `yaml:"suggest" json:"suggest"`
	Check            *bool        `yaml:"check" json:"check"`
	MaxChecks        *int         `yaml:"max_checks" json:"max_checks"`
	TimeoutSeconds   int          `yaml:"timeout_seconds" json:"timeout_seconds"`
	Concurrency      int          `yaml:"concurrency" json:"concurrency"`
	RatePerSecond    float64      `yaml:"rate_per_second" json:"rate_per_second"`
	UserAgent        string       `yaml:"user_agent" json:"user_agent"`
	Proxy            *ProxyConfig `yaml:"proxy" json:"proxy"`
	CacheDir         string       `yaml:"cache_dir" json:"cache_dir"`
	CacheReadOnly    *bool        `yaml:"cache_readonly" json:"cache_readonly"`
	ExcludeDirs      []string     `yaml:"exclude_dirs" json:"exclude_dirs"`
	Log              *LogConfig   `yaml:"log" json:"log"`
	MetricsFile      string       `yaml:"metrics_file" json:"metrics_file"`
	Serve            *ServeConfig `yaml:"serve" json:"serve"`
}

type ProxyConfig struct {
	URL string `yaml:"url" json:"url"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

type ServeConfig struct {
	Listen string `yaml:"listen" json:"listen"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigFile 是实际读取的配置文件（没有则为空）。
	ConfigFile string

	HTML             []string
	Sitemap          string
	Site             string
	CrawlFromSitemap bool
	ExcludeDirs      []string

	// AllURLs=false 时只保留媒体 URL。
	AllURLs bool
	Include *regexp.Regexp
	Exclude *regexp.Regexp

	Vocabulary pattern.Vocabulary

	Top      int
	Examples int
	// Missing 为每个模式展示的缺失序号数（0 表示不展示）。
	Missing int
	Suggest bool
	Check   bool
	// MaxChecks <= 0 表示不限。
	MaxChecks int

	Timeout       time.Duration
	Concurrency   int
	RatePerSecond float64
	UserAgent     string
	ProxyURL      string
	CacheDir      string
	CacheReadOnly bool

	LogLevel    string
	LogFile     string
	MetricsFile string
	Listen      string
}

// HasInputs 判断是否至少给了一个输入来源。
func (e EffectiveConfig) HasInputs() bool {
	return len(e.HTML) > 0 || e.Sitemap != "" || e.Site != ""
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			if e.Path == "" {
				return fmt.Sprintf("%s：%v", e.Code, e.Err)
			}
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在，否则 config_not_found
// 2) 否则依次尝试 <cwd>/leakloom.yaml、leakloom.yml、leakloom.json（都不存在不算错误）
//
// 覆盖优先级（固定）：CLI > 配置文件 > 内置默认。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var (
		cfgPath string
		fc      FileConfig
	)

	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		var exists bool
		fc, exists, err = readFileConfig(cfgPath)
		if err != nil {
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
		if !exists {
			return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
		}
	} else {
		for _, name := range DefaultFileNames {
			p := filepath.Join(cwdAbs, name)
			c, exists, rerr := readFileConfig(p)
			if rerr != nil {
				return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: p, Err: rerr}
			}
			if exists {
				cfgPath, fc = p, c
				break
			}
		}
	}

	eff, err := merge(cwdAbs, cli, fc)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.ConfigFile = cfgPath
	return eff, nil
}

func merge(cwdAbs string, cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		HTML:          pickStrings(cli.HTML, fc.HTML),
		Sitemap:       pickString(cli.Sitemap, fc.Sitemap),
		Site:          pickString(cli.Site, fc.Site),
		ExcludeDirs:   append([]string(nil), fc.ExcludeDirs...),
		UserAgent:     strings.TrimSpace(fc.UserAgent),
		CacheDir:      pickString(cli.CacheDir, fc.CacheDir),
		MetricsFile:   pickString(cli.MetricsFile, fc.MetricsFile),
		Listen:        DefaultListen,
		Top:           DefaultTop,
		Examples:      DefaultExamples,
		Timeout:       DefaultTimeout,
		Concurrency:   DefaultConcurrency,
		RatePerSecond: fc.RatePerSecond,
	}

	// 本地路径以 cwd 为基准转为绝对路径（URL 原样保留）。
	for i, h := range eff.HTML {
		eff.HTML[i] = absIfLocal(cwdAbs, h)
	}
	eff.Sitemap = absIfLocal(cwdAbs, eff.Sitemap)
	if eff.CacheDir != "" {
		eff.CacheDir = absCleanFrom(cwdAbs, eff.CacheDir)
	}

	eff.CrawlFromSitemap = pickBool(cli.CrawlFromSitemap, cli.CrawlFromSitemapSet, fc.CrawlFromSitemap, false)
	eff.AllURLs = pickBool(cli.AllURLs, cli.AllURLsSet, fc.AllURLs, false)
	eff.Suggest = pickBool(cli.Suggest, cli.SuggestSet, fc.Suggest, false)
	eff.Check = pickBool(cli.Check, cli.CheckSet, fc.Check, false)
	if eff.Check {
		// 探测对象是候选 URL：check 隐含 suggest。
		eff.Suggest = true
	}
	eff.CacheReadOnly = pickBool(cli.CacheReadOnly, cli.CacheReadOnlySet, fc.CacheReadOnly, false)
	if pickBool(cli.Missing, cli.MissingSet, fc.Missing, false) {
		eff.Missing = DefaultMissingShown
	}

	eff.Top = pickInt(cli.Top, cli.TopSet, fc.Top, DefaultTop)
	eff.Examples = pickInt(cli.Examples, cli.ExamplesSet, fc.Examples, DefaultExamples)
	eff.MaxChecks = pickInt(cli.MaxChecks, cli.MaxChecksSet, fc.MaxChecks, 0)
	if eff.Top < 0 || eff.Examples < 0 || eff.MaxChecks < 0 {
		return EffectiveConfig{}, fmt.Errorf("top/examples/max_checks 不能为负数")
	}

	timeout := fc.TimeoutSeconds
	if cli.TimeoutSet {
		timeout = cli.TimeoutSeconds
	}
	switch {
	case timeout < 0:
		return EffectiveConfig{}, fmt.Errorf("timeout 不能为负数：%d", timeout)
	case timeout > 0:
		eff.Timeout = time.Duration(timeout) * time.Second
	}

	concurrency := fc.Concurrency
	if cli.ConcurrencySet {
		concurrency = cli.Concurrency
	}
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 范围 [1, 32]；超出截断。
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > MaxConcurrency {
		concurrency = MaxConcurrency
	}
	eff.Concurrency = concurrency

	if cli.RateSet {
		eff.RatePerSecond = cli.Rate
	}
	if eff.RatePerSecond < 0 {
		return EffectiveConfig{}, fmt.Errorf("rate 不能为负数：%v", eff.RatePerSecond)
	}

	var err error
	if eff.Include, err = compileRegex("include", pickString(cli.Include, fc.Include)); err != nil {
		return EffectiveConfig{}, err
	}
	if eff.Exclude, err = compileRegex("exclude", pickString(cli.Exclude, fc.Exclude)); err != nil {
		return EffectiveConfig{}, err
	}

	// 修饰词：配置文件与 CLI 的追加项取并集（都只能在基础集合上追加）。
	extra := append(append([]string(nil), fc.Modifiers...), splitList(cli.Modifiers)...)
	if eff.Vocabulary, err = pattern.NewVocabulary(extra); err != nil {
		return EffectiveConfig{}, err
	}

	proxyURL := strings.TrimSpace(cli.ProxyURL)
	if proxyURL == "" && fc.Proxy != nil {
		proxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if proxyURL != "" {
		u, perr := url.Parse(proxyURL)
		if perr != nil || u.Scheme == "" || u.Host == "" {
			return EffectiveConfig{}, fmt.Errorf("proxy.url 无效：%q", proxyURL)
		}
	}
	eff.ProxyURL = proxyURL

	var lc LogConfig
	if fc.Log != nil {
		lc = *fc.Log
	}
	eff.LogLevel = pickString(cli.LogLevel, lc.Level)
	eff.LogFile = pickString(cli.LogFile, lc.File)
	if _, err := logging.ParseLevel(eff.LogLevel); err != nil {
		return EffectiveConfig{}, err
	}

	if fc.Serve != nil && strings.TrimSpace(fc.Serve.Listen) != "" {
		eff.Listen = strings.TrimSpace(fc.Serve.Listen)
	}
	if l := strings.TrimSpace(cli.Listen); l != "" {
		eff.Listen = l
	}

	if eff.Site != "" {
		u, perr := url.Parse(eff.Site)
		if perr != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return EffectiveConfig{}, fmt.Errorf("site 必须是 http/https URL：%q", eff.Site)
		}
	}

	return eff, nil
}

func compileRegex(field, expr string) (*regexp.Regexp, error) {
	if expr == "" {
		return nil, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("%s 正则无效：%w", field, err)
	}
	return re, nil
}

// splitList 把 "a,b" 与重复参数统一展开为列表。
func splitList(xs []string) []string {
	var out []string
	for _, x := range xs {
		for _, p := range strings.Split(x, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

func pickString(cli, file string) string {
	if s := strings.TrimSpace(cli); s != "" {
		return s
	}
	return strings.TrimSpace(file)
}

func pickStrings(cli, file []string) []string {
	src := cli
	if len(src) == 0 {
		src = file
	}
	out := make([]string, 0, len(src))
	for _, s := range src {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func pickBool(cli, cliSet bool, file *bool, def bool) bool {
	if cliSet {
		return cli
	}
	if file != nil {
		return *file
	}
	return def
}

func pickInt(cli int, cliSet bool, file *int, def int) int {
	if cliSet {
		return cli
	}
	if file != nil {
		return *file
	}
	return def
}

func absIfLocal(cwdAbs, s string) string {
	if s == "" || strings.Contains(s, "://") {
		return s
	}
	return absCleanFrom(cwdAbs, s)
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
// - p 若已是绝对路径：直接 Clean
// - p 若是相对路径：Join(base, p) 后 Clean
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析配置文件：.json 用 encoding/json，其余按 YAML。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(b, &fc)
	} else {
		err = yaml.Unmarshal(b, &fc)
	}
	if err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
