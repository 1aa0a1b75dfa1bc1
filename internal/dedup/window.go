package dedup

import (
	"github.com/newswire/harvester/internal/feed"
)

// windowEntry pairs a previously accepted item with its embedding.
type windowEntry struct {
	item feed.StoredItem
	vec  []float32
}

// window is a bounded buffer of recently accepted items. When full, the
// oldest entry is evicted; the persistent store remains the source of truth,
// the window only serves semantic comparison.
type window struct {
	entries []windowEntry
	max     int
}

func newWindow(max int) *window {
	if max <= 0 {
		max = 1
	}
	return &window{max: max}
}

func (w *window) add(item feed.StoredItem, vec []float32) {
	if len(w.entries) >= w.max {
		copy(w.entries, w.entries[1:])
		w.entries = w.entries[:len(w.entries)-1]
	}
	w.entries = append(w.entries, windowEntry{item: item, vec: vec})
}

func (w *window) len() int { return len(w.entries) }

// vectors returns the embeddings in window order. The slice indexes align
// with at().
func (w *window) vectors() [][]float32 {
	out := make([][]float32, len(w.entries))
	for i, e := range w.entries {
		out[i] = e.vec
	}
	return out
}

func (w *window) at(i int) feed.StoredItem {
	return w.entries[i].item
}
