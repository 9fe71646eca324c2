package engine

import (
	"github.com/pmezard/go-difflib/difflib"
)

// DiffStats summarizes line changes between the save point and the
// current content.
type DiffStats struct {
	Added   int
	Removed int
}

// savedAndCurrent returns the save-point content and the current content
// as lines.
func (vb *VirtualBuffer) savedAndCurrent() ([]string, []string, error) {
	vb.mu.RLock()
	saved, ok := vb.store.At(vb.log.SavePoint())
	cur := vb.store.Snapshot()
	vb.mu.RUnlock()
	if !ok {
		return nil, nil, ErrNoSavePoint
	}
	return difflib.SplitLines(saved.String()), difflib.SplitLines(cur.String()), nil
}

// DiffSinceSave returns a unified diff from the save point to the current
// content. name labels both sides.
func (vb *VirtualBuffer) DiffSinceSave(name string) (string, error) {
	a, b, err := vb.savedAndCurrent()
	if err != nil {
		return "", err
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        a,
		B:        b,
		FromFile: name + " (saved)",
		ToFile:   name,
		Context:  3,
	})
}

// DiffStatsSinceSave counts lines added and removed since the save point.
func (vb *VirtualBuffer) DiffStatsSinceSave() (DiffStats, error) {
	a, b, err := vb.savedAndCurrent()
	if err != nil {
		return DiffStats{}, err
	}
	var st DiffStats
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		switch op.Tag {
		case 'r':
			st.Removed += op.I2 - op.I1
			st.Added += op.J2 - op.J1
		case 'd':
			st.Removed += op.I2 - op.I1
		case 'i':
			st.Added += op.J2 - op.J1
		}
	}
	return st, nil
}
