package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/leakloom/internal/domain"
)

func newGallery(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	var srv *httptest.Server
	mux.HandleFunc("/sitemap.xml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0"?><urlset>
<url><loc>` + srv.URL + `/g/photo-1.jpg</loc></url>
<url><loc>` + srv.URL + `/g/photo-3.jpg</loc></url>
</urlset>`))
	})
	mux.HandleFunc("/g/photo-2.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/", http.NotFound)
	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := realMain(context.Background(), append([]string{"leakloom"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_NoTTY_StdoutOnlyReportJSON(t *testing.T) {
	// 锁定对外契约：stdout 非 TTY 时只能输出一个 Report JSON。
	chdir(t, t.TempDir())
	srv := newGallery(t)

	dir := t.TempDir()
	outPath := filepath.Join(dir, "reports", "report.json")
	metricsPath := filepath.Join(dir, "leakloom.prom")

	code, stdout, stderr := runCLI(t, "analyze",
		"--sitemap", srv.URL+"/sitemap.xml",
		"--check",
		"--out", outPath,
		"--metrics-file", metricsPath,
	)
	if code != exitOK {
		t.Fatalf("退出码应为 0，实际 %d\nstderr=%s", code, stderr)
	}

	var rep domain.Report
	if err := json.Unmarshal([]byte(stdout), &rep); err != nil {
		t.Fatalf("stdout 不是合法的 Report JSON：%v\nstdout=%q", err, stdout)
	}
	if len(rep.Suggestions) != 1 || rep.Suggestions[0].URL != srv.URL+"/g/photo-2.jpg" {
		t.Fatalf("候选不符合预期：%+v", rep.Suggestions)
	}
	if !rep.Suggestions[0].Verification.Exists() || rep.Summary.Reachable != 1 {
		t.Fatalf("photo-2 应探测为可访问：%+v", rep.Suggestions[0].Verification)
	}

	b, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("--out 未写入：%v", err)
	}
	var saved domain.Report
	if err := json.Unmarshal(b, &saved); err != nil || saved.Summary != rep.Summary {
		t.Fatalf("--out 内容与 stdout 不一致：%v", err)
	}

	prom, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("--metrics-file 未写入：%v", err)
	}
	if !strings.Contains(string(prom), "leakloom_verifications_total") {
		t.Fatalf("指标文件缺少探测计数：\n%s", prom)
	}
}

func TestCLI_Brief(t *testing.T) {
	chdir(t, t.TempDir())
	srv := newGallery(t)

	code, stdout, stderr := runCLI(t, "analyze", "--sitemap", srv.URL+"/sitemap.xml", "--suggest", "--brief")
	if code != exitOK {
		t.Fatalf("退出码应为 0，实际 %d\nstderr=%s", code, stderr)
	}
	want := "PATTERN\t2\t/g/photo-{n}.jpg\nSUGGEST\t-\t" + srv.URL + "/g/photo-2.jpg\n"
	if stdout != want {
		t.Fatalf("brief 输出不符合预期：\n%q\n期望：\n%q", stdout, want)
	}
}

func TestCLI_UsageErrors(t *testing.T) {
	chdir(t, t.TempDir())

	code, _, stderr := runCLI(t, "analyze")
	if code != exitUsage || !strings.Contains(stderr, "至少需要一个输入") {
		t.Fatalf("无输入应退出 2：code=%d stderr=%s", code, stderr)
	}

	code, _, stderr = runCLI(t, "analyze", "--sitemap", "x.xml", "--config", "nope.yaml")
	if code != exitUsage || !strings.Contains(stderr, "config_not_found") {
		t.Fatalf("--config 不存在应退出 2 并给出错误码：code=%d stderr=%s", code, stderr)
	}

	code, _, stderr = runCLI(t, "analyze", "--sitemap", "x.xml", "--modifiers", "a-b")
	if code != exitUsage || !strings.Contains(stderr, "config_invalid") {
		t.Fatalf("非法修饰词应退出 2：code=%d stderr=%s", code, stderr)
	}

	code, _, _ = runCLI(t, "analyze", "--no-such-flag")
	if code != exitUsage {
		t.Fatalf("未知参数应退出 2，实际 %d", code)
	}
}

func TestCLI_AllSourcesFailed(t *testing.T) {
	chdir(t, t.TempDir())

	code, stdout, _ := runCLI(t, "analyze", "--html", filepath.Join(t.TempDir(), "missing.html"))
	if code != exitFailed {
		t.Fatalf("全部来源失败应退出 1，实际 %d", code)
	}
	var rep domain.Report
	if err := json.Unmarshal([]byte(stdout), &rep); err != nil {
		t.Fatalf("失败时 stdout 仍应是 Report JSON：%v", err)
	}
	if len(rep.Sources) != 1 || rep.Sources[0].ErrorCode != domain.ErrCodeReadFailed {
		t.Fatalf("来源失败未记录：%+v", rep.Sources)
	}
}

// chdir 切换工作目录并在测试结束时恢复（等价于 Go 1.24 的 t.Chdir）。
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
