package agg

import (
	"testing"
	"time"
)

type record struct {
	key  string
	date *time.Time
}

func datePtr(t time.Time) *time.Time { return &t }

func TestCountByIgnoresInputOrder(t *testing.T) {
	forward := []record{{key: "a"}, {key: "b"}, {key: "a"}, {key: "c"}}
	reversed := []record{{key: "c"}, {key: "a"}, {key: "b"}, {key: "a"}}

	left := CountBy(forward, func(r record) string { return r.key })
	right := CountBy(reversed, func(r record) string { return r.key })

	if len(left) != len(right) {
		t.Fatalf("counts differ in size: %v vs %v", left, right)
	}
	for k, v := range left {
		if right[k] != v {
			t.Fatalf("count for %q: %d vs %d", k, v, right[k])
		}
	}
	if left["a"] != 2 || left["b"] != 1 || left["c"] != 1 {
		t.Fatalf("unexpected counts: %v", left)
	}
}

func TestCountByFixedZeroFillsEmptyInput(t *testing.T) {
	severities := []string{"low", "medium", "high", "critical"}
	counts := CountByFixed(nil, severities, func(r record) string { return r.key })
	if len(counts) != 4 {
		t.Fatalf("expected all 4 keys present, got %v", counts)
	}
	for _, sev := range severities {
		if counts[sev] != 0 {
			t.Fatalf("expected zero-filled %q, got %d", sev, counts[sev])
		}
	}
}

func TestCountByFixedDropsKeysOutsideSet(t *testing.T) {
	counts := CountByFixed([]record{{key: "high"}, {key: "bogus"}}, []string{"low", "high"}, func(r record) string { return r.key })
	if counts["high"] != 1 || counts["low"] != 0 {
		t.Fatalf("unexpected counts: %v", counts)
	}
	if _, ok := counts["bogus"]; ok {
		t.Fatalf("keys outside the fixed set must not appear: %v", counts)
	}
}

func TestBucketByDatePartitionsWithoutOverlap(t *testing.T) {
	day := func(offset int) time.Time {
		return time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
	}
	bounds := []time.Time{day(0), day(30), day(60), day(90)}

	records := []record{
		{key: "today", date: datePtr(day(0))},
		{key: "mid-first", date: datePtr(day(12))},
		{key: "on-30", date: datePtr(day(30))},
		{key: "just-after-30", date: datePtr(day(31))},
		{key: "on-60", date: datePtr(day(60))},
		{key: "on-90", date: datePtr(day(90))},
		{key: "beyond", date: datePtr(day(91))},
		{key: "past", date: datePtr(day(-1))},
		{key: "no-date", date: nil},
	}

	buckets := BucketByDate(records, func(r record) *time.Time { return r.date }, bounds)
	if len(buckets) != 3 {
		t.Fatalf("expected 3 buckets, got %d", len(buckets))
	}

	names := func(bucket []record) []string {
		out := make([]string, 0, len(bucket))
		for _, r := range bucket {
			out = append(out, r.key)
		}
		return out
	}

	want := [][]string{
		{"today", "mid-first", "on-30"},
		{"just-after-30", "on-60"},
		{"on-90"},
	}
	for i, expected := range want {
		got := names(buckets[i])
		if len(got) != len(expected) {
			t.Fatalf("bucket %d: got %v, want %v", i, got, expected)
		}
		for j := range expected {
			if got[j] != expected[j] {
				t.Fatalf("bucket %d: got %v, want %v", i, got, expected)
			}
		}
	}

	// A boundary record must appear in exactly one bucket.
	seen := 0
	for _, bucket := range buckets {
		for _, r := range bucket {
			if r.key == "on-30" {
				seen++
			}
		}
	}
	if seen != 1 {
		t.Fatalf("boundary record appeared in %d buckets", seen)
	}
}

func TestStaleSinceBoundaries(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	cutoff := 14 * 24 * time.Hour

	records := []record{
		{key: "never", date: nil},
		{key: "old", date: datePtr(now.Add(-cutoff - time.Second))},
		{key: "exact", date: datePtr(now.Add(-cutoff))},
		{key: "fresh", date: datePtr(now.Add(-time.Hour))},
	}

	stale := StaleSince(records, func(r record) *time.Time { return r.date }, now, cutoff)
	if len(stale) != 2 {
		t.Fatalf("expected 2 stale records, got %d", len(stale))
	}
	if stale[0].key != "never" || stale[1].key != "old" {
		t.Fatalf("unexpected stale set: %v, %v", stale[0].key, stale[1].key)
	}
}
