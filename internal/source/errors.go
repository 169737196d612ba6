package source

import (
	"errors"
	"fmt"
	"strings"

	"github.com/John-Robertt/leakloom/internal/domain"
)

// 失败阶段。
const (
	StageFetch = "fetch"
	StageRead  = "read"
	StageParse = "parse"
)

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// Error 是来源级别的可追溯错误。上层据此把失败归类为 fetch_failed / read_failed / parse_failed。
type Error struct {
	Source string
	Stage  string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("source=%s stage=%s: %v", e.Source, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode 把错误映射为 report 中稳定的 error_code。
func ErrorCode(err error) string {
	var se *Error
	if errors.As(err, &se) {
		switch se.Stage {
		case StageRead:
			return domain.ErrCodeReadFailed
		case StageParse:
			return domain.ErrCodeParseFailed
		}
	}
	return domain.ErrCodeFetchFailed
}

// sourceResult 把一次来源处理结果转换为 report 条目。
func sourceResult(src, kind, vendor string, urls int, err error) domain.SourceResult {
	r := domain.SourceResult{Source: src, Kind: kind, Vendor: vendor, URLs: urls}
	if err != nil {
		r.ErrorCode = ErrorCode(err)
		r.ErrorMsg = err.Error()
	}
	return r
}
