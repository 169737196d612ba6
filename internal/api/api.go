package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/leakloom/internal/app/run"
	"github.com/John-Robertt/leakloom/internal/config"
	"github.com/John-Robertt/leakloom/internal/metrics"
	"github.com/John-Robertt/leakloom/internal/pattern"
)

const (
	// MaxURLs 是单次 /v1/analyze 请求允许的 URL 数上限。
	MaxURLs = 100_000
	// MaxMissing 是请求中 missing 字段的上限，与 gap 候选的生成上限一致。
	MaxMissing = pattern.MaxGapCandidates
)

// Options 描述 API 服务的依赖。
type Options struct {
	// Modifiers 是服务级追加修饰词（来自配置）；请求可以在此基础上继续追加。
	Modifiers []string
	Log       zerolog.Logger
	Metrics   *metrics.Metrics
	// Gatherer 为 nil 时 /metrics 返回 404。
	Gatherer prometheus.Gatherer
}

// Server 是只暴露引擎能力的 REST API（不抓取、不探测）。
type Server struct {
	router *gin.Engine
	opts   Options
}

// AnalyzeRequest 是 POST /v1/analyze 的请求体。
// 未给出的 top/examples 使用 CLI 相同的默认值。
type AnalyzeRequest struct {
	URLs      []string `json:"urls" binding:"required"`
	Modifiers []string `json:"modifiers"`
	Suggest   bool     `json:"suggest"`
	Top       *int     `json:"top"`
	Examples  *int     `json:"examples"`
	Missing   int      `json:"missing"`
}

func NewServer(opts Options) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{router: gin.New(), opts: opts}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler 返回可直接挂到 http.Server 的 handler。
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())

	s.router.Use(func(c *gin.Context) {
		started := time.Now()
		c.Next()
		s.opts.Log.Info().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("dur", time.Since(started)).
			Msg("API 请求")
	})
}

func (s *Server) setupRoutes() {
	s.router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if s.opts.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := s.router.Group("/v1")
	v1.POST("/analyze", s.analyze)
}

func (s *Server) analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.URLs) > MaxURLs {
		errorResponse(c, http.StatusRequestEntityTooLarge, "urls 超过上限")
		return
	}

	extra := append(append([]string(nil), s.opts.Modifiers...), req.Modifiers...)
	vocab, err := pattern.NewVocabulary(extra)
	if err != nil {
		var ve *pattern.VocabularyError
		if errors.As(err, &ve) {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}

	opts := run.AnalyzeOptions{
		Top:      config.DefaultTop,
		Examples: config.DefaultExamples,
		Missing:  req.Missing,
		Suggest:  req.Suggest,
	}
	if req.Top != nil {
		opts.Top = *req.Top
	}
	if req.Examples != nil {
		opts.Examples = *req.Examples
	}
	if opts.Top < 0 || opts.Examples < 0 || opts.Missing < 0 {
		errorResponse(c, http.StatusBadRequest, "top/examples/missing 不能为负数")
		return
	}
	if opts.Missing > MaxMissing {
		errorResponse(c, http.StatusBadRequest, fmt.Sprintf("missing 不能超过 %d", MaxMissing))
		return
	}

	rep := run.Analyze(req.URLs, vocab, opts)

	s.opts.Metrics.Collected(len(req.URLs))
	s.opts.Metrics.SetPatterns(rep.Summary.Patterns)
	for _, sg := range rep.Suggestions {
		s.opts.Metrics.Suggested(sg.Rule)
	}

	c.JSON(http.StatusOK, rep)
}

func errorResponse(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
