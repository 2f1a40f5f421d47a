package cache

// hub fans values out to subscribers keyed by K. Each subscriber channel holds
// one value; a newer value replaces an unread one. Callers serialize access.
type hub[K comparable, V any] struct {
	subs map[K]map[chan V]struct{}
}

func newHub[K comparable, V any]() *hub[K, V] {
	return &hub[K, V]{subs: make(map[K]map[chan V]struct{})}
}

func (h *hub[K, V]) add(key K) chan V {
	ch := make(chan V, 1)
	if h.subs[key] == nil {
		h.subs[key] = make(map[chan V]struct{})
	}
	h.subs[key][ch] = struct{}{}
	return ch
}

func (h *hub[K, V]) remove(key K, ch chan V) {
	set := h.subs[key]
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	if len(set) == 0 {
		delete(h.subs, key)
	}
	close(ch)
}

func (h *hub[K, V]) watched(key K) bool {
	return len(h.subs[key]) > 0
}

func (h *hub[K, V]) keys() []K {
	out := make([]K, 0, len(h.subs))
	for k := range h.subs {
		out = append(out, k)
	}
	return out
}

func (h *hub[K, V]) publish(key K, v V) {
	for ch := range h.subs[key] {
		offer(ch, v)
	}
}

func offer[V any](ch chan V, v V) {
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- v:
	default:
	}
}
