// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package router

// DefaultDedupWindow is the number of event ids a stream remembers.
const DefaultDedupWindow = 8192

// window is a fixed-capacity set of recently seen ids. When full, the
// oldest id is forgotten.
type window struct {
	seen  map[string]struct{}
	order []string
	next  int
}

func newWindow(capacity int) *window {
	if capacity <= 0 {
		capacity = DefaultDedupWindow
	}
	return &window{
		seen:  make(map[string]struct{}, capacity),
		order: make([]string, 0, capacity),
	}
}

// add records id and reports whether it was new.
func (w *window) add(id string) bool {
	if _, ok := w.seen[id]; ok {
		return false
	}
	if len(w.order) < cap(w.order) {
		w.order = append(w.order, id)
	} else {
		delete(w.seen, w.order[w.next])
		w.order[w.next] = id
		w.next = (w.next + 1) % len(w.order)
	}
	w.seen[id] = struct{}{}
	return true
}
