package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/leakloom/internal/pattern"
)

func TestLoadEffective_NoConfigUsesDefaults(t *testing.T) {
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{HTML: []string{"page.html", "https://example.test/"}})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigFile != "" {
		t.Fatalf("没有配置文件时 ConfigFile 应为空：%q", eff.ConfigFile)
	}
	if eff.Concurrency != DefaultConcurrency || eff.Timeout != DefaultTimeout || eff.Top != DefaultTop || eff.Examples != DefaultExamples {
		t.Fatalf("默认值不正确：%+v", eff)
	}
	if eff.Suggest || eff.Check || eff.AllURLs || eff.Missing != 0 {
		t.Fatalf("开关默认应关闭：%+v", eff)
	}
	if eff.HTML[0] != filepath.Join(cwd, "page.html") || eff.HTML[1] != "https://example.test/" {
		t.Fatalf("本地路径应转为绝对路径，URL 原样保留：%v", eff.HTML)
	}
	if !eff.HasInputs() {
		t.Fatalf("期望 HasInputs=true")
	}
}

func TestLoadEffective_ExplicitConfigNotFound(t *testing.T) {
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{ConfigPath: "missing.yaml"})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_YAMLAndCLIOverride(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "leakloom.yaml"), []byte(`
sitemap: https://example.test/sitemap.xml
suggest: true
check: true
max_checks: 10
concurrency: 64
timeout_seconds: 5
modifiers: [watermarked]
include: "/uploads/"
log:
  level: info
serve:
  listen: ":9000"
`))

	eff, err := LoadEffective(cwd, CLIArgs{
		Check:    false,
		CheckSet: true, // --check=false
	})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigFile != filepath.Join(cwd, "leakloom.yaml") {
		t.Fatalf("ConfigFile 不正确：%q", eff.ConfigFile)
	}
	if !eff.Suggest || eff.Check {
		t.Fatalf("期望 suggest=true（文件）check=false（CLI 覆盖），实际 suggest=%v check=%v", eff.Suggest, eff.Check)
	}
	if eff.Concurrency != MaxConcurrency {
		t.Fatalf("concurrency 应截断到 %d，实际 %d", MaxConcurrency, eff.Concurrency)
	}
	if eff.Timeout != 5*time.Second || eff.MaxChecks != 10 {
		t.Fatalf("timeout/max_checks 不正确：%v %d", eff.Timeout, eff.MaxChecks)
	}
	if !eff.Vocabulary.Has("watermarked") || !eff.Vocabulary.Has("redacted") {
		t.Fatalf("修饰词应在基础集合上追加：%v", eff.Vocabulary.Modifiers())
	}
	if eff.Include == nil || !eff.Include.MatchString("https://x.test/uploads/a.png") {
		t.Fatalf("include 未编译")
	}
	if eff.LogLevel != "info" || eff.Listen != ":9000" {
		t.Fatalf("嵌套字段解析失败：level=%q listen=%q", eff.LogLevel, eff.Listen)
	}
}

func TestLoadEffective_FileBoolExplicitFalse(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "leakloom.json"), []byte(`{"suggest":false,"top":0,"cache_dir":"cache"}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Suggest || eff.Top != 0 {
		t.Fatalf("文件中显式零值应生效：suggest=%v top=%d", eff.Suggest, eff.Top)
	}
	if eff.CacheDir != filepath.Join(cwd, "cache") {
		t.Fatalf("cache_dir 应以 cwd 为基准：%q", eff.CacheDir)
	}

	eff, err = LoadEffective(cwd, CLIArgs{Suggest: true, SuggestSet: true, Top: 5, TopSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !eff.Suggest || eff.Top != 5 {
		t.Fatalf("CLI 应覆盖文件：suggest=%v top=%d", eff.Suggest, eff.Top)
	}
}

func TestLoadEffective_YAMLPreferredOverJSON(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, "leakloom.yaml"), []byte("top: 7\n"))
	writeFile(t, filepath.Join(cwd, "leakloom.json"), []byte(`{"top":9}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Top != 7 {
		t.Fatalf("期望优先读取 leakloom.yaml，实际 top=%d", eff.Top)
	}
}

func TestLoadEffective_MissingFlag(t *testing.T) {
	eff, err := LoadEffective(t.TempDir(), CLIArgs{Missing: true, MissingSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Missing != DefaultMissingShown {
		t.Fatalf("--missing 应展示 %d 个缺失序号，实际 %d", DefaultMissingShown, eff.Missing)
	}
}

func TestLoadEffective_Invalid(t *testing.T) {
	cases := []struct {
		name string
		file string
		cli  CLIArgs
	}{
		{name: "bad yaml", file: "top: [1,\n"},
		{name: "bad regex", cli: CLIArgs{Include: "("}},
		{name: "bad modifier", cli: CLIArgs{Modifiers: []string{"ok,with-dash"}}},
		{name: "digit modifier", file: "modifiers: ['2024']\n"},
		{name: "bad proxy", cli: CLIArgs{ProxyURL: "127.0.0.1"}},
		{name: "bad log level", cli: CLIArgs{LogLevel: "loud"}},
		{name: "negative timeout", cli: CLIArgs{TimeoutSeconds: -1, TimeoutSet: true}},
		{name: "negative rate", file: "rate_per_second: -2\n"},
		{name: "negative top", cli: CLIArgs{Top: -1, TopSet: true}},
		{name: "site not http", cli: CLIArgs{Site: "ftp://example.test"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cwd := t.TempDir()
			if tc.file != "" {
				writeFile(t, filepath.Join(cwd, "leakloom.yaml"), []byte(tc.file))
			}
			_, err := LoadEffective(cwd, tc.cli)
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}

func TestLoadEffective_VocabularyErrorIsWrapped(t *testing.T) {
	_, err := LoadEffective(t.TempDir(), CLIArgs{Modifiers: []string{"a.b"}})
	var ve *pattern.VocabularyError
	if !errors.As(err, &ve) || ve.Token != "a.b" {
		t.Fatalf("期望可通过 errors.As 取到 VocabularyError：%v", err)
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}

func TestLoadEffective_CheckImpliesSuggest(t *testing.T) {
	eff, err := LoadEffective(t.TempDir(), CLIArgs{Check: true, CheckSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !eff.Check || !eff.Suggest {
		t.Fatalf("check 应隐含 suggest：suggest=%v check=%v", eff.Suggest, eff.Check)
	}
}
