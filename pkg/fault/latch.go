package fault

// Latch holds the first kill requested during a loop iteration.
// The controller consumes it once at the end of the iteration.
// Only the main loop touches it, so it carries no lock.
type Latch struct {
	tripped bool
	code    Code
}

// Request a kill. Only the first code since the last Take is kept.
// Returns true if this call tripped the latch.
func (l *Latch) Trip(code Code) bool {
	if l.tripped {
		return false
	}
	l.tripped = true
	l.code = code
	return true
}

func (l *Latch) Tripped() bool {
	return l.tripped
}

// Consume the pending kill, if any, and clear the latch
func (l *Latch) Take() (Code, bool) {
	if !l.tripped {
		return NoFault, false
	}
	code := l.code
	l.tripped = false
	l.code = NoFault
	return code, true
}
