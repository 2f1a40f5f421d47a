// Package cache is the local mirror of server state. Entries are written only
// after a successful remote fetch and observed reactively; nothing in the cache
// is ever merged with local edits.
package cache

import (
	"context"

	"diarysync/model"
)

// Table holds one kind of tracked resource: entries keyed by id plus ordered
// lists keyed by scope (a listing filter).
type Table[T any] interface {
	// Get returns the cached entry for id.
	Get(id string) (T, bool)
	// Put overwrites the given entries.
	Put(items ...T) error
	// Delete drops id and removes it from every list.
	Delete(id string) error
	// List returns the cached list for scope. ok is false when the scope was
	// never stored.
	List(scope string) (items []T, ok bool)
	// ReplaceList overwrites the list for scope and every entry in it.
	ReplaceList(scope string, items []T) error
	// Watch streams id: the current entry first, then every write. Readers
	// that fall behind only see the latest value. The channel closes when ctx
	// is done.
	Watch(ctx context.Context, id string) <-chan T
	// WatchList streams the list for scope the same way.
	WatchList(ctx context.Context, scope string) <-chan []T
}

// Store is the read/write contract of the local cache.
type Store interface {
	Videos() Table[model.Video]
	Clips() Table[model.Clip]
	Compilations() Table[model.Compilation]

	// CalendarMonth returns the cached days of one bucket.
	CalendarMonth(year, month int) ([]model.CalendarDay, bool)
	// ReplaceCalendarMonth swaps the whole bucket in one step; readers never
	// see days from two different fetches.
	ReplaceCalendarMonth(year, month int, days []model.CalendarDay) error
	// WatchCalendarMonth streams the bucket.
	WatchCalendarMonth(ctx context.Context, year, month int) <-chan []model.CalendarDay

	// Clear drops every entry, list and bucket. Open list and bucket watchers
	// receive an empty slice, entry watchers the zero value.
	Clear() error
	Close() error
}
