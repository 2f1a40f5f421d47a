package cache

import (
	"context"
	"slices"
)

type table[T any] struct {
	s     *FileStore
	data  func(*snapshot) *tableData[T]
	id    func(T) string
	items *hub[string, T]
	lists *hub[string, []T]
}

func newTable[T any](s *FileStore, data func(*snapshot) *tableData[T], id func(T) string) *table[T] {
	return &table[T]{
		s:     s,
		data:  data,
		id:    id,
		items: newHub[string, T](),
		lists: newHub[string, []T](),
	}
}

func (t *table[T]) Get(id string) (T, bool) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	v, ok := t.data(&t.s.snap).Items[id]
	return v, ok
}

func (t *table[T]) Put(items ...T) error {
	if len(items) == 0 {
		return nil
	}
	return t.s.mutate(func(sn *snapshot) {
		d := t.data(sn)
		for _, item := range items {
			d.Items[t.id(item)] = item
		}
	}, func() {
		t.publish(items)
	})
}

func (t *table[T]) Delete(id string) error {
	var scopes []string
	return t.s.mutate(func(sn *snapshot) {
		d := t.data(sn)
		delete(d.Items, id)
		for scope, ids := range d.Lists {
			if slices.Contains(ids, id) {
				d.Lists[scope] = slices.DeleteFunc(slices.Clone(ids), func(v string) bool { return v == id })
				scopes = append(scopes, scope)
			}
		}
	}, func() {
		t.publishScopes(scopes)
	})
}

func (t *table[T]) List(scope string) ([]T, bool) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	d := t.data(&t.s.snap)
	ids, ok := d.Lists[scope]
	if !ok {
		return nil, false
	}
	return t.resolve(d, ids), true
}

func (t *table[T]) ReplaceList(scope string, items []T) error {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, t.id(item))
	}
	return t.s.mutate(func(sn *snapshot) {
		d := t.data(sn)
		for _, item := range items {
			d.Items[t.id(item)] = item
		}
		delete(d.Lists, scope)
		d.Lists[scope] = ids
	}, func() {
		t.publish(items, scope)
	})
}

func (t *table[T]) Watch(ctx context.Context, id string) <-chan T {
	t.s.mu.Lock()
	ch := t.items.add(id)
	if v, ok := t.data(&t.s.snap).Items[id]; ok {
		offer(ch, v)
	}
	t.s.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.s.mu.Lock()
		t.items.remove(id, ch)
		t.s.mu.Unlock()
	}()
	return ch
}

func (t *table[T]) WatchList(ctx context.Context, scope string) <-chan []T {
	t.s.mu.Lock()
	ch := t.lists.add(scope)
	d := t.data(&t.s.snap)
	if ids, ok := d.Lists[scope]; ok {
		offer(ch, t.resolve(d, ids))
	}
	t.s.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.s.mu.Lock()
		t.lists.remove(scope, ch)
		t.s.mu.Unlock()
	}()
	return ch
}

// publish notifies item watchers, the watchers of every list holding one of
// items and the watchers of extra. Must be called with the write lock held.
func (t *table[T]) publish(items []T, extra ...string) {
	changed := make(map[string]bool, len(items))
	for _, item := range items {
		id := t.id(item)
		changed[id] = true
		t.items.publish(id, item)
	}

	d := t.data(&t.s.snap)
	scopes := extra
	for _, scope := range t.lists.keys() {
		if slices.Contains(extra, scope) {
			continue
		}
		if slices.ContainsFunc(d.Lists[scope], func(id string) bool { return changed[id] }) {
			scopes = append(scopes, scope)
		}
	}
	t.publishScopes(scopes)
}

func (t *table[T]) publishScopes(scopes []string) {
	d := t.data(&t.s.snap)
	for _, scope := range scopes {
		if !t.lists.watched(scope) {
			continue
		}
		if ids, ok := d.Lists[scope]; ok {
			t.lists.publish(scope, t.resolve(d, ids))
		}
	}
}

// publishCleared sends the zero value to item watchers and an empty list to
// list watchers. Must be called with the write lock held.
func (t *table[T]) publishCleared() {
	var zero T
	for _, id := range t.items.keys() {
		t.items.publish(id, zero)
	}
	for _, scope := range t.lists.keys() {
		t.lists.publish(scope, []T{})
	}
}

func (t *table[T]) resolve(d *tableData[T], ids []string) []T {
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if v, ok := d.Items[id]; ok {
			out = append(out, v)
		}
	}
	return out
}
