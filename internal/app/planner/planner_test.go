package planner

import (
	"reflect"
	"testing"

	"github.com/John-Robertt/leakloom/internal/domain"
)

func records(urls ...string) []domain.SuggestionRecord {
	out := make([]domain.SuggestionRecord, 0, len(urls))
	for _, u := range urls {
		out = append(out, domain.SuggestionRecord{URL: u})
	}
	return out
}

func TestPlanChecks_URLOrderAndCap(t *testing.T) {
	rs := records(
		"https://example.test/g/photo-5.jpg",
		"https://example.test/g/photo-3.jpg",
		"file:///tmp/g/photo-4.jpg",
		"https://example.test/g/photo-3-redacted.jpg",
	)

	checks, skipped := PlanChecks(rs, 0)
	if want := []int{3, 1, 0}; !reflect.DeepEqual(checks, want) {
		t.Fatalf("checks 顺序不符合预期：got=%v want=%v", checks, want)
	}
	if want := []int{2}; !reflect.DeepEqual(skipped, want) {
		t.Fatalf("非 http 候选应被跳过：got=%v", skipped)
	}

	checks, skipped = PlanChecks(rs, 2)
	if want := []int{3, 1}; !reflect.DeepEqual(checks, want) {
		t.Fatalf("maxChecks 截断不正确：got=%v", checks)
	}
	if want := []int{0, 2}; !reflect.DeepEqual(skipped, want) {
		t.Fatalf("skipped 应按下标升序：got=%v", skipped)
	}
}

func TestPlanChecks_Empty(t *testing.T) {
	checks, skipped := PlanChecks(nil, 10)
	if len(checks) != 0 || len(skipped) != 0 {
		t.Fatalf("空输入应返回空计划：checks=%v skipped=%v", checks, skipped)
	}
}
