package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Document("sitemap", true)
	m.Document("html", false)
	m.Collected(12)
	m.Suggested("gap")
	m.Suggested("gap")
	m.Verified("reachable")
	m.SetPatterns(3)
	m.ObserveHTTP("GET", 200, 150*time.Millisecond)
	m.ObserveHTTP("HEAD", 0, time.Second)

	require.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues("sitemap", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Documents.WithLabelValues("html", "failed")))
	require.Equal(t, 12.0, testutil.ToFloat64(m.URLsCollected))
	require.Equal(t, 2.0, testutil.ToFloat64(m.Suggestions.WithLabelValues("gap")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.Verifications.WithLabelValues("reachable")))
	require.Equal(t, 3.0, testutil.ToFloat64(m.Patterns))
	require.Equal(t, 2, testutil.CollectAndCount(m.HTTPDuration))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.Document("html", true)
	m.Collected(1)
	m.Suggested("gap")
	m.Verified("reachable")
	m.SetPatterns(1)
	m.ObserveHTTP("GET", 200, time.Millisecond)
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.Collected(5)

	path := filepath.Join(t.TempDir(), "leakloom.prom")
	require.NoError(t, WriteTextfile(path, reg))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(b), "leakloom_urls_collected_total 5"), string(b))
}
