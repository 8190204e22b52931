// Package feed merges an item's comments and status-update snapshots into a
// single chronological activity timeline.
package feed

import (
	"sort"
	"time"
)

type Kind string

const (
	KindComment Kind = "comment"
	KindUpdate  Kind = "update"
)

// Comment is one posted comment, ready for the timeline.
type Comment struct {
	Timestamp time.Time
	Actor     string
	Body      string
}

// Update is one status-update snapshot, ready for the timeline. Snapshot
// fields are optional; empty values are omitted from the rendered entry.
type Update struct {
	Timestamp         time.Time
	Actor             string
	Status            string
	StatusReason      string
	BlockersSummary   string
	HelpNeededSummary string
	NextStep          string
	TargetDate        string
}

// Field is one rendered snapshot field. Fields keep a fixed order so the
// merge output is byte-for-byte deterministic.
type Field struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Entry is a single tagged timeline entry.
type Entry struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Body      string    `json:"body,omitempty"`
	Fields    []Field   `json:"fields,omitempty"`
}

// Merge interleaves comments and updates ascending by timestamp. Ties keep
// stable input order, comments ahead of updates, so the result is
// deterministic for identical input.
func Merge(comments []Comment, updates []Update) []Entry {
	entries := make([]Entry, 0, len(comments)+len(updates))
	for _, c := range comments {
		entries = append(entries, Entry{
			Kind:      KindComment,
			Timestamp: c.Timestamp,
			Actor:     c.Actor,
			Body:      c.Body,
		})
	}
	for _, u := range updates {
		entries = append(entries, Entry{
			Kind:      KindUpdate,
			Timestamp: u.Timestamp,
			Actor:     u.Actor,
			Fields:    renderFields(u),
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	return entries
}

func renderFields(u Update) []Field {
	fields := make([]Field, 0, 6)
	add := func(name, value string) {
		if value != "" {
			fields = append(fields, Field{Name: name, Value: value})
		}
	}
	add("status", u.Status)
	add("next_step", u.NextStep)
	add("target_date", u.TargetDate)
	add("status_reason", u.StatusReason)
	add("blockers_summary", u.BlockersSummary)
	add("help_needed_summary", u.HelpNeededSummary)
	return fields
}
