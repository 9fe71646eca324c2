package editlog

import (
	"bytes"
	"math/rand"
	"testing"
	"testing/quick"

	"github.com/dshills/tessera/internal/engine/chunktree"
)

// harness applies edits to a tree and records them the way a buffer does.
type harness struct {
	t    *testing.T
	tree *chunktree.Tree
	log  *Log
}

func newHarness(t *testing.T) *harness {
	tree := chunktree.New()
	return &harness{t: t, tree: tree, log: New(tree.Version())}
}

func (h *harness) insert(off int64, s string) {
	h.t.Helper()
	before := h.tree.Version()
	after, err := h.tree.Insert(off, []byte(s))
	if err != nil {
		h.t.Fatal(err)
	}
	h.log.Append(Event{Kind: Insert, Offset: off, Data: []byte(s), Before: before, After: after})
}

func (h *harness) delete(start, end int64) {
	h.t.Helper()
	removed, err := h.tree.Read(start, end)
	if err != nil {
		h.t.Fatal(err)
	}
	before := h.tree.Version()
	after, err := h.tree.Delete(start, end)
	if err != nil {
		h.t.Fatal(err)
	}
	h.log.Append(Event{Kind: Delete, Offset: start, Data: removed, Before: before, After: after})
}

func (h *harness) apply(step Step) {
	h.t.Helper()
	if h.tree.Restore(step.Version) {
		return
	}
	for _, ev := range step.Events {
		if _, err := ev.ApplyTo(h.tree); err != nil {
			h.t.Fatal(err)
		}
	}
	h.tree.Retag(step.Version)
}

func (h *harness) content() string {
	return h.tree.Snapshot().String()
}

func TestHelloWorldScenario(t *testing.T) {
	h := newHarness(t)
	h.insert(0, "hello world")
	h.delete(5, 11)
	if got := h.content(); got != "hello" {
		t.Fatalf("content = %q, want %q", got, "hello")
	}

	step, ok := h.log.Undo()
	if !ok {
		t.Fatal("Undo() = false")
	}
	h.apply(step)
	if got := h.content(); got != "hello world" {
		t.Errorf("after undo = %q, want %q", got, "hello world")
	}

	step, ok = h.log.Redo()
	if !ok {
		t.Fatal("Redo() = false")
	}
	h.apply(step)
	if got := h.content(); got != "hello" {
		t.Errorf("after redo = %q, want %q", got, "hello")
	}
}

func TestBoundariesAreNoOps(t *testing.T) {
	l := New(0)
	if _, ok := l.Undo(); ok {
		t.Error("Undo() on empty log returned true")
	}
	if _, ok := l.Redo(); ok {
		t.Error("Redo() on empty log returned true")
	}

	h := newHarness(t)
	h.insert(0, "a")
	h.apply(mustStep(t, h.log.Undo))
	if _, ok := h.log.Undo(); ok {
		t.Error("second Undo() returned true")
	}
	h.apply(mustStep(t, h.log.Redo))
	if _, ok := h.log.Redo(); ok {
		t.Error("second Redo() returned true")
	}
}

func mustStep(t *testing.T, f func() (Step, bool)) Step {
	t.Helper()
	step, ok := f()
	if !ok {
		t.Fatal("expected a step")
	}
	return step
}

func TestAppendClearsRedoTail(t *testing.T) {
	h := newHarness(t)
	h.insert(0, "a")
	h.insert(1, "b")
	h.apply(mustStep(t, h.log.Undo))
	h.insert(1, "c")

	if h.log.CanRedo() {
		t.Error("redo tail survived an append")
	}
	if got := h.content(); got != "ac" {
		t.Errorf("content = %q, want %q", got, "ac")
	}
	if h.log.Len() != 2 {
		t.Errorf("Len() = %d, want 2", h.log.Len())
	}
}

func TestGroupsUndoTogether(t *testing.T) {
	h := newHarness(t)
	h.insert(0, "foo bar")

	h.log.BeginGroup()
	h.insert(4, "X")
	h.insert(0, "X")
	h.log.EndGroup()

	if got := h.content(); got != "Xfoo Xbar" {
		t.Fatalf("content = %q", got)
	}
	step := mustStep(t, h.log.Undo)
	if len(step.Events) != 2 {
		t.Errorf("undo step has %d events, want 2", len(step.Events))
	}
	h.apply(step)
	if got := h.content(); got != "foo bar" {
		t.Errorf("after undo = %q, want %q", got, "foo bar")
	}
	h.apply(mustStep(t, h.log.Redo))
	if got := h.content(); got != "Xfoo Xbar" {
		t.Errorf("after redo = %q", got)
	}
}

func TestStepEventsWithoutRetainedSnapshots(t *testing.T) {
	h := newHarness(t)
	h.insert(0, "hello world")
	h.delete(0, 6)
	h.tree.Prune(func(chunktree.Version) bool { return false })

	h.apply(mustStep(t, h.log.Undo))
	if got := h.content(); got != "hello world" {
		t.Errorf("replayed undo = %q", got)
	}
	if h.tree.Version() != h.log.Current() {
		t.Errorf("tree version %d, log current %d", h.tree.Version(), h.log.Current())
	}
}

func TestPath(t *testing.T) {
	h := newHarness(t)
	v0 := h.tree.Version()
	h.insert(0, "abc")
	v1 := h.tree.Version()
	h.delete(1, 2)
	v2 := h.tree.Version()

	fwd, ok := h.log.Path(v0, v2)
	if !ok || len(fwd) != 2 || fwd[0].Kind != Insert || fwd[1].Kind != Delete {
		t.Fatalf("Path(v0, v2) = %v, %v", fwd, ok)
	}
	back, ok := h.log.Path(v2, v1)
	if !ok || len(back) != 1 || back[0].Kind != Insert || back[0].Offset != 1 {
		t.Fatalf("Path(v2, v1) = %v, %v", back, ok)
	}

	h.apply(mustStep(t, h.log.Undo))
	h.insert(0, "z")
	if _, ok := h.log.Path(v2, h.tree.Version()); ok {
		t.Error("Path from a discarded branch succeeded")
	}
}

func TestWindow(t *testing.T) {
	h := newHarness(t)
	var versions []chunktree.Version
	for i := 0; i < 5; i++ {
		versions = append(versions, h.tree.Version())
		h.insert(0, "x")
	}
	if got := h.log.Window(2); got != versions[3] {
		t.Errorf("Window(2) = %d, want %d", got, versions[3])
	}
	if got := h.log.Window(10); got != versions[0] {
		t.Errorf("Window(10) = %d, want base %d", got, versions[0])
	}
	if got := h.log.Window(0); got != h.log.Base() {
		t.Errorf("Window(0) = %d, want base", got)
	}
}

func TestGCRebasesAndKeepsGroups(t *testing.T) {
	h := newHarness(t)
	h.insert(0, "a")
	h.log.BeginGroup()
	h.insert(1, "b")
	mid := h.tree.Version()
	h.insert(2, "c")
	h.log.EndGroup()
	h.insert(3, "d")

	if n := h.log.GC(mid); n != 1 {
		t.Errorf("GC split a group: dropped %d, want 1", n)
	}
	if h.log.Len() != 3 {
		t.Errorf("Len() = %d, want 3", h.log.Len())
	}

	base, ok := h.tree.At(h.log.Base())
	if !ok {
		t.Fatal("base snapshot not retained")
	}
	replay := chunktree.FromBytes(base.Bytes())
	if err := h.log.Replay(replay); err != nil {
		t.Fatal(err)
	}
	if got := replay.Snapshot().String(); got != "abcd" {
		t.Errorf("replay = %q, want %q", got, "abcd")
	}
}

func TestGCNeverDropsRedoTail(t *testing.T) {
	h := newHarness(t)
	h.insert(0, "a")
	h.insert(1, "b")
	last := h.tree.Version()
	h.apply(mustStep(t, h.log.Undo))

	h.log.GC(last)
	if !h.log.CanRedo() {
		t.Fatal("redo tail dropped by GC")
	}
	h.apply(mustStep(t, h.log.Redo))
	if got := h.content(); got != "ab" {
		t.Errorf("content = %q", got)
	}
}

func TestSavePoint(t *testing.T) {
	h := newHarness(t)
	if h.log.Modified() {
		t.Error("fresh log reports modified")
	}
	h.insert(0, "a")
	if !h.log.Modified() {
		t.Error("edit not reported as modified")
	}
	h.log.MarkSaved(h.tree.Version())
	if h.log.Modified() {
		t.Error("modified after MarkSaved")
	}
	h.apply(mustStep(t, h.log.Undo))
	if !h.log.Modified() {
		t.Error("undo past save point not modified")
	}
	h.apply(mustStep(t, h.log.Redo))
	if h.log.Modified() {
		t.Error("redo back to save point still modified")
	}
}

// TestRoundTripAndUndoLaw checks, for random edit sequences, that replay
// from the base reproduces content and that undo/redo restore the exact
// bytes on either side of each group.
func TestRoundTripAndUndoLaw(t *testing.T) {
	f := func(seed int64) bool {
		rng := rand.New(rand.NewSource(seed))
		h := newHarness(t)
		var history [][]byte

		for i := 0; i < 60; i++ {
			history = append(history, h.tree.Snapshot().Bytes())
			n := h.tree.Len()
			if n == 0 || rng.Intn(2) == 0 {
				h.insert(rng.Int63n(n+1), string(rune('a'+rng.Intn(26))))
			} else {
				s := rng.Int63n(n)
				h.delete(s, min(n, s+1+rng.Int63n(5)))
			}
		}
		final := h.tree.Snapshot().Bytes()

		replay := chunktree.New()
		if err := h.log.Replay(replay); err != nil || !bytes.Equal(replay.Snapshot().Bytes(), final) {
			t.Logf("seed %d: replay mismatch (%v)", seed, err)
			return false
		}

		for i := len(history) - 1; i >= 0; i-- {
			h.apply(mustStep(t, h.log.Undo))
			if !bytes.Equal(h.tree.Snapshot().Bytes(), history[i]) {
				t.Logf("seed %d: undo %d mismatch", seed, i)
				return false
			}
		}
		for h.log.CanRedo() {
			h.apply(mustStep(t, h.log.Redo))
		}
		return bytes.Equal(h.tree.Snapshot().Bytes(), final)
	}
	if err := quick.Check(f, &quick.Config{MaxCount: 40}); err != nil {
		t.Error(err)
	}
}

func TestGapEventsUndo(t *testing.T) {
	tree := chunktree.New(chunktree.WithMaxGap(1 << 20))
	h := &harness{t: t, tree: tree, log: New(tree.Version())}
	h.insert(0, "ab")

	before := tree.Version()
	after, err := tree.InsertGap(2, 1000)
	if err != nil {
		t.Fatal(err)
	}
	h.log.Append(Event{Kind: Insert, Offset: 2, Gap: 1000, Before: before, After: after})
	h.insert(1002, "z")

	if n := tree.Len(); n != 1003 {
		t.Fatalf("Len() = %d, want 1003", n)
	}
	for range 2 {
		step, _ := h.log.Undo()
		for _, ev := range step.Events {
			if _, err := ev.ApplyTo(tree); err != nil {
				t.Fatal(err)
			}
		}
	}
	if got := h.content(); got != "ab" {
		t.Errorf("after undo = %q, want %q", got, "ab")
	}

	step, _ := h.log.Redo()
	inv := step.Events[0]
	if inv.Gap != 1000 || inv.Len() != 1000 || inv.Data != nil {
		t.Errorf("redo event = %v, want a 1000 byte gap", inv)
	}
}
