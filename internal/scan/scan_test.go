package scan

import (
	"os"
	"path/filepath"
	"testing"
)

func TestScanHTML_FindsHTMLAndSkipsPermanentExcludes(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, ".git", "index.html"))
	touch(t, filepath.Join(root, "node_modules", "pkg", "readme.html"))

	touch(t, filepath.Join(root, "site", "index.html"))
	touch(t, filepath.Join(root, "site", "about.HTM"))
	touch(t, filepath.Join(root, "site", "logo.png"))
	touch(t, filepath.Join(root, "page.xhtml"))

	got, err := ScanHTML(root, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{filepath.Join("site", "about.HTM"), filepath.Join("site", "index.html")}
	if len(got) != len(want) {
		t.Fatalf("期望 %d 个 HTML 文件，实际 %d：%v", len(want), len(got), got)
	}
	for i := range want {
		if got[i].RelPath != want[i] {
			t.Fatalf("期望 rel=%q，实际=%q", want[i], got[i].RelPath)
		}
		if !filepath.IsAbs(got[i].AbsPath) {
			t.Fatalf("AbsPath 必须是绝对路径：%q", got[i].AbsPath)
		}
	}
}

func TestScanHTML_ExcludeDirsFromConfig(t *testing.T) {
	root := t.TempDir()

	touch(t, filepath.Join(root, "drafts", "a.html"))
	touch(t, filepath.Join(root, "ok", "b.html"))

	got, err := ScanHTML(root, []string{"drafts"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 1 || got[0].RelPath != filepath.Join("ok", "b.html") {
		t.Fatalf("排除目录未生效：%v", got)
	}
}

func TestScanHTML_MissingRoot(t *testing.T) {
	if _, err := ScanHTML(filepath.Join(t.TempDir(), "nope"), nil); err == nil {
		t.Fatalf("root 不存在时应返回错误")
	}
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
