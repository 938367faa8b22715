package httpparse

import "strings"

// Headers is a case-insensitive header map that remembers each header's
// original-case name alongside its lowercase storage key, per spec.md §3.
type Headers struct {
	values   map[string]string // lowercase name -> value
	original map[string]string // lowercase name -> as-received name
	order    []string          // lowercase names in first-seen order
}

func newHeaders() *Headers {
	return &Headers{values: map[string]string{}, original: map[string]string{}}
}

// Set stores name=value, lowercasing name for the lookup key. A
// duplicate name overwrites the previous value, per spec.md §4.3.
func (h *Headers) Set(name, value string) {
	lower := strings.ToLower(name)
	if _, exists := h.values[lower]; !exists {
		h.order = append(h.order, lower)
	}
	h.values[lower] = value
	h.original[lower] = name
}

// Get performs a case-insensitive lookup.
func (h *Headers) Get(name string) (string, bool) {
	v, ok := h.values[strings.ToLower(name)]
	return v, ok
}

// GetOr is Get with a default when absent.
func (h *Headers) GetOr(name, def string) string {
	if v, ok := h.Get(name); ok {
		return v
	}
	return def
}

// OriginalName returns the case as it appeared on the wire, if the
// header was set.
func (h *Headers) OriginalName(name string) (string, bool) {
	v, ok := h.original[strings.ToLower(name)]
	return v, ok
}

// Each calls fn for every header in first-seen order, using each
// header's original-case name.
func (h *Headers) Each(fn func(name, value string)) {
	for _, lower := range h.order {
		fn(h.original[lower], h.values[lower])
	}
}

// Has reports whether name is present.
func (h *Headers) Has(name string) bool {
	_, ok := h.values[strings.ToLower(name)]
	return ok
}
