package render

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/John-Robertt/leakloom/internal/domain"
)

const (
	// maxIndicesShown / maxTuplesShown / maxSuggestionsShown 控制人类可读输出的长度。
	maxIndicesShown     = 80
	maxTuplesShown      = 30
	maxSuggestionsShown = 200
)

// HumanOptions 控制人类可读输出。
type HumanOptions struct {
	// Color=false 时输出纯文本（非 TTY / NO_COLOR）。
	Color bool
}

// JSON 输出缩进的 Report（不转义 HTML 字符，URL 保持原样）。
func JSON(w io.Writer, rep domain.Report) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// Brief 输出制表符分隔的行，便于 grep/cut：
//
//	PATTERN\t<seen>\t<pattern>
//	UNLINKED\t<page>\t<url>
//	SUGGEST\t<status|->\t<url>
//
// SUGGEST 行按 URL 排序；未探测或无状态码时为 "-"。
func Brief(w io.Writer, rep domain.Report) error {
	bw := &errWriter{w: w}
	for _, p := range rep.Patterns {
		bw.printf("PATTERN\t%d\t%s\n", p.Seen, p.Pattern)
	}
	for _, src := range rep.Sources {
		for _, u := range src.Unlinked {
			bw.printf("UNLINKED\t%s\t%s\n", src.Source, u)
		}
	}
	for _, s := range sortedSuggestions(rep.Suggestions) {
		bw.printf("SUGGEST\t%s\t%s\n", statusText(s.Verification), s.URL)
	}
	return bw.err
}

// Human 输出带颜色的分组报告。
func Human(w io.Writer, rep domain.Report, opts HumanOptions) error {
	var (
		info    = newColor(opts.Color, color.FgCyan)
		warn    = newColor(opts.Color, color.FgYellow)
		heading = newColor(opts.Color, color.Bold)
		ok      = newColor(opts.Color, color.FgGreen)
		bad     = newColor(opts.Color, color.FgRed)
		faint   = newColor(opts.Color, color.Faint)
	)
	bw := &errWriter{w: w}

	for _, s := range rep.Sources {
		if s.Failed() {
			bw.printf("%s %s %s: %s\n", warn.Sprint("[WARN]"), s.Source, s.ErrorCode, s.ErrorMsg)
		}
	}
	bw.printf("%s URLs analyzed: %s\n", info.Sprint("[INFO]"), humanize.Comma(int64(rep.Summary.URLs)))
	bw.printf("%s Patterns found: %s\n", info.Sprint("[INFO]"), humanize.Comma(int64(rep.Summary.Patterns)))

	for _, p := range rep.Patterns {
		bw.printf("\n%s %s\n", heading.Sprint("Pattern:"), p.Pattern)
		bw.printf("  Score: %d  |  Seen: %d  |  Unique indices: %d\n", p.Score, p.Seen, p.DistinctIndices)
		if len(p.Modifiers) > 0 {
			bw.printf("  Modifiers: %s\n", strings.Join(p.Modifiers, ", "))
		}
		if p.NumLen == 1 {
			bw.printf("  Indices: %s\n", joinLimited(p.Indices, maxIndicesShown))
			if len(p.Missing) > 0 && len(p.Indices) > 0 {
				missing := make([]string, 0, len(p.Missing))
				for _, n := range p.Missing {
					missing = append(missing, strconv.Itoa(n))
				}
				more := ""
				if p.MissingCount > len(p.Missing) {
					more = fmt.Sprintf(" ... (%s total)", humanize.Comma(int64(p.MissingCount)))
				}
				bw.printf("  Missing in range [%s-%s]: %s%s\n",
					p.Indices[0], p.Indices[len(p.Indices)-1], strings.Join(missing, ", "), more)
			}
		} else {
			bw.printf("  Index tuples: %s\n", joinLimited(p.Indices, maxTuplesShown))
		}
		if len(p.Examples) > 0 {
			bw.printf("  Examples:\n")
			for _, u := range p.Examples {
				bw.printf("    - %s\n", faint.Sprint(u))
			}
		}
	}

	if rep.Summary.Unlinked > 0 {
		bw.printf("\n%s Declared in sitemap but not referenced by the page: %s\n",
			warn.Sprint("[WARN]"), humanize.Comma(int64(rep.Summary.Unlinked)))
		for _, s := range rep.Sources {
			if len(s.Unlinked) == 0 {
				continue
			}
			bw.printf("  %s\n", s.Source)
			for _, u := range s.Unlinked {
				bw.printf("    - %s\n", u)
			}
		}
	}

	if len(rep.Suggestions) == 0 {
		return bw.err
	}

	bw.printf("\n%s Suggestions: %s\n", info.Sprint("[INFO]"), humanize.Comma(int64(len(rep.Suggestions))))
	for i, s := range sortedSuggestions(rep.Suggestions) {
		if i >= maxSuggestionsShown {
			bw.printf("  ...\n")
			break
		}
		v := s.Verification
		switch {
		case v.Exists():
			bw.printf("  - %s\t%s\t%s\n", ok.Sprint(v.StatusCode), s.URL, describeContent(v))
		case v.Checked() && v.StatusCode != 0:
			bw.printf("  - %s\t%s\n", bad.Sprint(v.StatusCode), s.URL)
		case v.Checked():
			bw.printf("  - %s\t%s\t%s\n", bad.Sprint("ERR"), s.URL, faint.Sprint(v.Error))
		default:
			bw.printf("  - %s\n", s.URL)
		}
	}
	if rep.Summary.Checked > 0 {
		bw.printf("%s Checked: %d  reachable: %s  unreachable: %d\n",
			info.Sprint("[INFO]"), rep.Summary.Checked, ok.Sprint(rep.Summary.Reachable), rep.Summary.Unreachable)
	}
	return bw.err
}

func newColor(enabled bool, attrs ...color.Attribute) *color.Color {
	c := color.New(attrs...)
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

func describeContent(v domain.Verification) string {
	parts := make([]string, 0, 2)
	if v.ContentType != "" {
		parts = append(parts, v.ContentType)
	}
	if v.ContentLength > 0 {
		parts = append(parts, humanize.Bytes(uint64(v.ContentLength)))
	}
	return strings.Join(parts, " ")
}

func statusText(v domain.Verification) string {
	if v.Checked() && v.StatusCode != 0 {
		return strconv.Itoa(v.StatusCode)
	}
	return "-"
}

func sortedSuggestions(in []domain.SuggestionRecord) []domain.SuggestionRecord {
	out := append([]domain.SuggestionRecord(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

func joinLimited(xs []string, limit int) string {
	if len(xs) <= limit {
		return strings.Join(xs, ", ")
	}
	return strings.Join(xs[:limit], ", ") + " ..."
}

// errWriter 记录第一次写失败，之后的写入全部跳过。
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
