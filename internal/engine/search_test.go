package engine

import (
	"strings"
	"testing"
)

func TestFindNext(t *testing.T) {
	vb := newBuffer(t, "abcabd abcabcabd", WithIteratorWindow(4))
	tests := []struct {
		pattern string
		from    int64
		want    int64
		ok      bool
	}{
		{"abd", 0, 3, true},
		{"abd", 4, 13, true},
		{"abcabd", 1, 10, true},
		{"abc", 16, 0, false},
		{"zzz", 0, 0, false},
		{"", 0, 0, false},
	}
	for _, tt := range tests {
		got, ok := vb.FindNext([]byte(tt.pattern), tt.from)
		if got != tt.want || ok != tt.ok {
			t.Errorf("FindNext(%q, %d) = %d, %v; want %d, %v", tt.pattern, tt.from, got, ok, tt.want, tt.ok)
		}
	}
}

func TestFindNextReleasesIterator(t *testing.T) {
	vb := newBuffer(t, strings.Repeat("x", 10000)+"needle")
	if off, ok := vb.FindNext([]byte("needle"), 0); !ok || off != 10000 {
		t.Fatalf("FindNext = %d, %v", off, ok)
	}
	vb.mu.RLock()
	n := len(vb.iters)
	vb.mu.RUnlock()
	if n != 0 {
		t.Errorf("%d iterators still registered", n)
	}
}
