package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/John-Robertt/leakloom/internal/api"
	"github.com/John-Robertt/leakloom/internal/app/run"
	"github.com/John-Robertt/leakloom/internal/config"
	"github.com/John-Robertt/leakloom/internal/domain"
	"github.com/John-Robertt/leakloom/internal/infra/fsx"
	"github.com/John-Robertt/leakloom/internal/logging"
	"github.com/John-Robertt/leakloom/internal/metrics"
	"github.com/John-Robertt/leakloom/internal/render"
)

// 退出码：0 成功；1 运行失败（全部来源失败 / 写文件失败）；2 参数或配置错误。
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := realMain(ctx, os.Args, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// realMain 运行 CLI 并返回退出码（不直接 os.Exit，便于测试）。
func realMain(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	app := newApp(stdout, stderr)
	err := app.RunContext(ctx, args)
	if err == nil {
		return exitOK
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		if msg := ec.Error(); msg != "" {
			fmt.Fprintln(stderr, msg)
		}
		return ec.ExitCode()
	}
	fmt.Fprintf(stderr, "参数错误：%v\n", err)
	return exitUsage
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "leakloom",
		Usage:     "从公开媒体 URL 推断命名模式，并给出可能存在的对应 URL",
		Writer:    stdout,
		ErrWriter: stderr,
		// 退出码由 realMain 统一处理。
		ExitErrHandler: func(*cli.Context, error) {},
		Commands: []*cli.Command{
			{
				Name:         "analyze",
				Usage:        "收集 URL、分组模式、推断候选（可选探测）",
				ArgsUsage:    " ",
				Flags:        analyzeFlags(),
				OnUsageError: usageError,
				Action: func(c *cli.Context) error {
					return analyzeCmd(c, stdout, stderr)
				},
			},
			{
				Name:         "serve",
				Usage:        "启动 REST API（只分析调用方提交的 URL）",
				Flags:        serveFlags(),
				OnUsageError: usageError,
				Action:       serveCmd,
			},
		},
	}
}

// usageError 让参数解析错误走统一的退出码，且不向 stdout 打印帮助。
func usageError(_ *cli.Context, err error, _ bool) error {
	return cli.Exit(fmt.Sprintf("参数错误：%v", err), exitUsage)
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "配置文件路径（默认在当前目录查找 leakloom.yaml/.yml/.json）"},
		&cli.StringSliceFlag{Name: "modifiers", Usage: "追加修饰词（逗号分隔，可重复）"},
		&cli.StringFlag{Name: "log-level", Usage: "日志级别：trace|debug|info|warn|error|disabled"},
		&cli.StringFlag{Name: "log-file", Usage: "额外写入 JSON 行日志的滚动文件"},
	}
}

func analyzeFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.StringSliceFlag{Name: "html", Usage: "HTML 文件 / 目录 / http(s) 页面（可重复）"},
		&cli.StringFlag{Name: "sitemap", Usage: "sitemap 文件或 URL（支持 sitemap index 与 .gz）"},
		&cli.StringFlag{Name: "site", Usage: "站点根 URL：依次尝试 /sitemap.xml 与 robots.txt"},
		&cli.BoolFlag{Name: "crawl-from-sitemap", Usage: "抓取 sitemap 中的页面并提取其中的媒体 URL"},
		&cli.BoolFlag{Name: "all-urls", Usage: "不限于图片/视频扩展名"},
		&cli.StringFlag{Name: "include", Usage: "只保留匹配该正则的 URL"},
		&cli.StringFlag{Name: "exclude", Usage: "丢弃匹配该正则的 URL"},
		&cli.IntFlag{Name: "top", Usage: "最多展示的模式数", Value: config.DefaultTop},
		&cli.IntFlag{Name: "examples", Usage: "每个模式展示的示例 URL 数", Value: config.DefaultExamples},
		&cli.BoolFlag{Name: "missing", Usage: "展示单序号模式的缺失序号"},
		&cli.BoolFlag{Name: "suggest", Usage: "生成候选 URL"},
		&cli.BoolFlag{Name: "check", Usage: "对候选 URL 做存在性探测（隐含 --suggest）"},
		&cli.IntFlag{Name: "max-checks", Usage: "最多探测的候选数（0 为不限）"},
		&cli.IntFlag{Name: "timeout", Usage: "单次 HTTP 请求超时（秒）", Value: int(config.DefaultTimeout / time.Second)},
		&cli.IntFlag{Name: "concurrency", Usage: "抓取/探测并发数", Value: config.DefaultConcurrency},
		&cli.Float64Flag{Name: "rate", Usage: "每秒最多请求数（0 为不限）"},
		&cli.StringFlag{Name: "proxy", Usage: "HTTP 代理 URL"},
		&cli.StringFlag{Name: "cache-dir", Usage: "抓取缓存目录"},
		&cli.BoolFlag{Name: "cache-readonly", Usage: "只读缓存（不写入新条目）"},
		&cli.BoolFlag{Name: "json", Usage: "stdout 输出 JSON 报告"},
		&cli.BoolFlag{Name: "brief", Usage: "stdout 输出精简的行格式"},
		&cli.StringFlag{Name: "out", Usage: "另存 JSON 报告到文件"},
		&cli.StringFlag{Name: "metrics-file", Usage: "结束时写出 Prometheus 文本格式指标"},
	)
}

func serveFlags() []cli.Flag {
	return append(commonFlags(),
		&cli.StringFlag{Name: "listen", Usage: "监听地址", Value: config.DefaultListen},
	)
}

func cliArgs(c *cli.Context) config.CLIArgs {
	a := config.CLIArgs{
		ConfigPath: c.String("config"),
		Modifiers:  c.StringSlice("modifiers"),
		LogLevel:   c.String("log-level"),
		LogFile:    c.String("log-file"),
	}
	if c.Command.Name == "serve" {
		if c.IsSet("listen") {
			a.Listen = c.String("listen")
		}
		return a
	}

	a.HTML = c.StringSlice("html")
	a.Sitemap = c.String("sitemap")
	a.Site = c.String("site")
	a.CrawlFromSitemap, a.CrawlFromSitemapSet = c.Bool("crawl-from-sitemap"), c.IsSet("crawl-from-sitemap")
	a.AllURLs, a.AllURLsSet = c.Bool("all-urls"), c.IsSet("all-urls")
	a.Include = c.String("include")
	a.Exclude = c.String("exclude")
	a.Top, a.TopSet = c.Int("top"), c.IsSet("top")
	a.Examples, a.ExamplesSet = c.Int("examples"), c.IsSet("examples")
	a.Missing, a.MissingSet = c.Bool("missing"), c.IsSet("missing")
	a.Suggest, a.SuggestSet = c.Bool("suggest"), c.IsSet("suggest")
	a.Check, a.CheckSet = c.Bool("check"), c.IsSet("check")
	a.MaxChecks, a.MaxChecksSet = c.Int("max-checks"), c.IsSet("max-checks")
	a.TimeoutSeconds, a.TimeoutSet = c.Int("timeout"), c.IsSet("timeout")
	a.Concurrency, a.ConcurrencySet = c.Int("concurrency"), c.IsSet("concurrency")
	a.Rate, a.RateSet = c.Float64("rate"), c.IsSet("rate")
	a.ProxyURL = c.String("proxy")
	a.CacheDir = c.String("cache-dir")
	a.CacheReadOnly, a.CacheReadOnlySet = c.Bool("cache-readonly"), c.IsSet("cache-readonly")
	a.MetricsFile = c.String("metrics-file")
	return a
}

func loadConfig(c *cli.Context) (config.EffectiveConfig, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return config.EffectiveConfig{}, cli.Exit(fmt.Sprintf("读取当前目录失败：%v", err), exitFailed)
	}
	eff, err := config.LoadEffective(cwd, cliArgs(c))
	if err != nil {
		return config.EffectiveConfig{}, cli.Exit(err.Error(), exitUsage)
	}
	return eff, nil
}

func analyzeCmd(c *cli.Context, stdout, stderr io.Writer) error {
	if c.Bool("json") && c.Bool("brief") {
		return cli.Exit("--json 与 --brief 不能同时使用", exitUsage)
	}
	eff, err := loadConfig(c)
	if err != nil {
		return err
	}
	if !eff.HasInputs() {
		return cli.Exit("至少需要一个输入：--html / --sitemap / --site（或配置文件中的对应项）", exitUsage)
	}

	log, closeLog, err := logging.New(logging.Options{
		Level:   eff.LogLevel,
		File:    eff.LogFile,
		Console: stderr,
		NoColor: !isTTY(stderr),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer closeLog()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var obs run.Observer
	var ui *progressUI
	if isTTY(stderr) {
		ui = newProgressUI(stderr)
		obs = ui
	}

	rep := run.ExecuteWithObserver(c.Context, eff, run.Deps{Log: log, Metrics: m}, obs)
	if ui != nil {
		ui.Close()
	}

	failed := false
	if out := c.String("out"); out != "" {
		if err := writeReportFile(out, rep); err != nil {
			log.Error().Err(err).Str("path", out).Msg("写入报告失败")
			failed = true
		} else if ui != nil {
			fmt.Fprintf(stderr, "report: %s\n", out)
		}
	}
	if eff.MetricsFile != "" {
		if err := metrics.WriteTextfile(eff.MetricsFile, reg); err != nil {
			log.Error().Err(err).Str("path", eff.MetricsFile).Msg("写入指标文件失败")
			failed = true
		}
	}

	if err := emitReport(stdout, rep, c.Bool("json"), c.Bool("brief")); err != nil {
		log.Error().Err(err).Msg("输出报告失败")
		failed = true
	}

	if rep.AllSourcesFailed() {
		for _, s := range rep.Sources {
			log.Warn().Str("source", s.Source).Str("code", s.ErrorCode).Msg(s.ErrorMsg)
		}
		return cli.Exit("所有输入来源均失败", exitFailed)
	}
	if failed {
		return cli.Exit("", exitFailed)
	}
	return nil
}

// emitReport 选择 stdout 的输出形态：
// --json 或 stdout 非 TTY 时输出单个 JSON；--brief 输出行格式；否则输出给人看的摘要。
func emitReport(w io.Writer, rep domain.Report, asJSON, brief bool) error {
	switch {
	case brief:
		return render.Brief(w, rep)
	case asJSON || !isTTY(w):
		return render.JSON(w, rep)
	default:
		return render.Human(w, rep, render.HumanOptions{Color: !color.NoColor})
	}
}

func writeReportFile(path string, rep domain.Report) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFile(path, b)
}

func serveCmd(c *cli.Context) error {
	eff, err := loadConfig(c)
	if err != nil {
		return err
	}
	log, closeLog, err := logging.New(logging.Options{Level: eff.LogLevel, File: eff.LogFile})
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}
	defer closeLog()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv := api.NewServer(api.Options{
		Modifiers: eff.Vocabulary.Modifiers(),
		Log:       logging.Component(log, "api"),
		Metrics:   metrics.New(reg),
		Gatherer:  reg,
	})
	return serveHTTP(c.Context, log, eff.Listen, srv.Handler())
}

func serveHTTP(ctx context.Context, log zerolog.Logger, addr string, h http.Handler) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API 服务已启动")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return cli.Exit(fmt.Sprintf("监听 %s 失败：%v", addr, err), exitFailed)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("收到退出信号，正在关闭")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return cli.Exit(fmt.Sprintf("关闭服务失败：%v", err), exitFailed)
	}
	return nil
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
