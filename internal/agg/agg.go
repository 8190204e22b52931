// Package agg holds the pure aggregation helpers behind the dashboard and
// board views: key counts, target-date buckets, and staleness filters.
// Every function is deterministic and side-effect free.
package agg

import "time"

// CountBy tallies records by the key function. Keys with zero count are
// absent; iteration order of the result is undefined.
func CountBy[T any, K comparable](records []T, key func(T) K) map[K]int {
	counts := make(map[K]int, len(records))
	for _, record := range records {
		counts[key(record)]++
	}
	return counts
}

// CountByFixed tallies records by the key function over a fixed key set.
// Every supplied key is present in the result, zero-filled when unmatched;
// records whose key is outside the set are ignored.
func CountByFixed[T any, K comparable](records []T, keys []K, key func(T) K) map[K]int {
	counts := make(map[K]int, len(keys))
	for _, k := range keys {
		counts[k] = 0
	}
	for _, record := range records {
		k := key(record)
		if _, ok := counts[k]; ok {
			counts[k]++
		}
	}
	return counts
}

// BucketByDate partitions records into len(bounds)-1 ordered date ranges.
// bounds must be ascending; the first bucket includes its lower bound, and
// every bucket includes its upper bound and excludes anything above it, so
// a record sitting exactly on an interior boundary lands in the earlier
// bucket and in exactly one bucket overall. Records with a nil date, or a
// date outside [bounds[0], bounds[last]], are dropped.
func BucketByDate[T any](records []T, date func(T) *time.Time, bounds []time.Time) [][]T {
	if len(bounds) < 2 {
		return nil
	}
	buckets := make([][]T, len(bounds)-1)
	for _, record := range records {
		d := date(record)
		if d == nil || d.Before(bounds[0]) {
			continue
		}
		for i := 1; i < len(bounds); i++ {
			if !d.After(bounds[i]) {
				buckets[i-1] = append(buckets[i-1], record)
				break
			}
		}
	}
	return buckets
}

// StaleSince returns records whose timestamp is nil (never updated) or
// strictly older than now minus cutoff. A record updated exactly at the
// cutoff boundary is fresh.
func StaleSince[T any](records []T, updatedAt func(T) *time.Time, now time.Time, cutoff time.Duration) []T {
	threshold := now.Add(-cutoff)
	stale := make([]T, 0)
	for _, record := range records {
		ts := updatedAt(record)
		if ts == nil || ts.Before(threshold) {
			stale = append(stale, record)
		}
	}
	return stale
}
