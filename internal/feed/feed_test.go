package feed

import (
	"testing"
	"time"
)

func at(minute int) time.Time {
	return time.Date(2026, 3, 10, 9, minute, 0, 0, time.UTC)
}

func TestMergeOrdersByTimestamp(t *testing.T) {
	comments := []Comment{
		{Timestamp: at(1), Actor: "ana@acme.dev", Body: "first"},
		{Timestamp: at(3), Actor: "ana@acme.dev", Body: "third"},
	}
	updates := []Update{
		{Timestamp: at(2), Actor: "bo@acme.dev", Status: "execution"},
	}

	entries := Merge(comments, updates)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}

	wantKinds := []Kind{KindComment, KindUpdate, KindComment}
	for i, kind := range wantKinds {
		if entries[i].Kind != kind {
			t.Fatalf("entry %d: kind %q, want %q", i, entries[i].Kind, kind)
		}
	}
	if entries[0].Body != "first" || entries[2].Body != "third" {
		t.Fatalf("comment bodies out of order: %q, %q", entries[0].Body, entries[2].Body)
	}
}

func TestMergeTieBreakKeepsCommentsFirst(t *testing.T) {
	comments := []Comment{{Timestamp: at(5), Body: "c"}}
	updates := []Update{{Timestamp: at(5), Status: "design"}}

	entries := Merge(comments, updates)
	if entries[0].Kind != KindComment || entries[1].Kind != KindUpdate {
		t.Fatalf("equal timestamps must keep input order, got %q then %q", entries[0].Kind, entries[1].Kind)
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	comments := []Comment{{Timestamp: at(1), Body: "a"}, {Timestamp: at(1), Body: "b"}}
	updates := []Update{{Timestamp: at(1), Status: "discovery"}}

	first := Merge(comments, updates)
	second := Merge(comments, updates)
	for i := range first {
		if first[i].Kind != second[i].Kind || first[i].Body != second[i].Body {
			t.Fatalf("merge output changed between identical calls at %d", i)
		}
	}
	if first[0].Body != "a" || first[1].Body != "b" {
		t.Fatalf("equal-timestamp comments must keep input order: %q, %q", first[0].Body, first[1].Body)
	}
}

func TestMergeEmptyInput(t *testing.T) {
	entries := Merge(nil, nil)
	if len(entries) != 0 {
		t.Fatalf("expected no entries, got %d", len(entries))
	}
}

func TestUpdateRendersOnlyNonEmptyFields(t *testing.T) {
	entries := Merge(nil, []Update{{
		Timestamp:  at(0),
		Status:     "at_risk",
		NextStep:   "escalate to infra",
		TargetDate: "2026-04-01",
	}})

	fields := entries[0].Fields
	if len(fields) != 3 {
		t.Fatalf("expected 3 rendered fields, got %d: %v", len(fields), fields)
	}
	want := []Field{
		{Name: "status", Value: "at_risk"},
		{Name: "next_step", Value: "escalate to infra"},
		{Name: "target_date", Value: "2026-04-01"},
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Fatalf("field %d: got %+v, want %+v", i, fields[i], want[i])
		}
	}
}
