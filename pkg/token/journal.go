package token

// Journal records undo closures for every state write made during a top-level
// call, so the router can discard all effects of a failed call. Reverting runs
// the undos in reverse order and truncates the journal back to the mark.
//
// There is exactly one logical thread of control per call (nested callee
// invocations are synchronous), so the journal needs no locking of its own.
type Journal struct {
	undos []func()
}

// Record appends an undo closure for a write that just happened.
func (j *Journal) Record(undo func()) {
	j.undos = append(j.undos, undo)
}

// Mark returns a position that RevertTo can later unwind to.
func (j *Journal) Mark() int {
	return len(j.undos)
}

// RevertTo undoes every write recorded after mark, newest first.
func (j *Journal) RevertTo(mark int) {
	for i := len(j.undos) - 1; i >= mark; i-- {
		j.undos[i]()
	}
	j.undos = j.undos[:mark]
}

// Len reports the number of recorded writes.
func (j *Journal) Len() int {
	return len(j.undos)
}
