package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options 描述日志输出。
//
// 约束：
// - 日志只写 stderr / 文件，绝不写 stdout（stdout 属于 JSON 报告）
// - Console 为 nil 时使用带颜色转换的 stderr
// - File 非空时额外写 JSON 行到滚动日志文件
type Options struct {
	Level   string
	File    string
	Console io.Writer
	NoColor bool
}

// ParseLevel 接受 trace/debug/info/warn/error/disabled；空串为 warn。
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return zerolog.WarnLevel, nil
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || s == "panic" || s == "fatal" {
		return zerolog.NoLevel, fmt.Errorf("未知日志级别：%q", s)
	}
	return lvl, nil
}

// New 构造根 logger；返回的 closer 负责关闭日志文件。
func New(opts Options) (zerolog.Logger, func() error, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), noop, err
	}

	console := opts.Console
	if console == nil {
		console = colorable.NewColorableStderr()
	}
	writers := []io.Writer{zerolog.ConsoleWriter{
		Out:        console,
		TimeFormat: time.TimeOnly,
		NoColor:    opts.NoColor,
	}}

	closer := noop
	if f := strings.TrimSpace(opts.File); f != "" {
		lj := &lumberjack.Logger{
			Filename:   f,
			MaxSize:    20, // MB
			MaxBackups: 3,
			MaxAge:     14, // days
		}
		writers = append(writers, lj)
		closer = lj.Close
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(lvl).
		With().Timestamp().Logger()
	return l, closer, nil
}

// Component 派生带 component 字段的子 logger。
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

func noop() error { return nil }
