package engine

// FindNext returns the offset of the first occurrence of pattern that
// starts at or after from. The scan streams through a registered
// iterator, so it does not hold the buffer lock and edits made meanwhile
// move the result like a cursor.
func (vb *VirtualBuffer) FindNext(pattern []byte, from int64) (int64, bool) {
	if len(pattern) == 0 {
		return 0, false
	}
	fail := prefixTable(pattern)
	it := vb.RegisterIterator(from)
	defer it.Close()

	buf := make([]byte, max(vb.opts.window, len(pattern)))
	k := 0
	for {
		base := it.Offset()
		n, err := it.Read(buf)
		for i := 0; i < n; i++ {
			for k > 0 && buf[i] != pattern[k] {
				k = fail[k-1]
			}
			if buf[i] == pattern[k] {
				k++
			}
			if k == len(pattern) {
				return base + int64(i+1-k), true
			}
		}
		if err != nil || n == 0 {
			return 0, false
		}
	}
}

// prefixTable is the Knuth-Morris-Pratt failure function: entry i is the
// length of the longest proper prefix of pattern[:i+1] that is also its
// suffix.
func prefixTable(pattern []byte) []int {
	fail := make([]int, len(pattern))
	k := 0
	for i := 1; i < len(pattern); i++ {
		for k > 0 && pattern[i] != pattern[k] {
			k = fail[k-1]
		}
		if pattern[i] == pattern[k] {
			k++
		}
		fail[i] = k
	}
	return fail
}
