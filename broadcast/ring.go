package broadcast

// ring keeps the most recent events for one asset so reconnecting
// subscribers can be caught up without a full snapshot. Fixed-size
// circular buffer, power-of-2 length, oldest entries overwritten.
type ring struct {
	buf  []*Event
	mask uint64
	head uint64 // total events written

	// floor is the last sequence consumed before the ring existed, set
	// when a lane recovers at a nonzero sequence. Replay cannot serve
	// anything at or below it.
	floor uint64
}

func newRing(pow2 uint64) *ring {
	return &ring{
		buf:  make([]*Event, pow2),
		mask: pow2 - 1,
	}
}

func (r *ring) push(ev *Event) {
	r.buf[r.head&r.mask] = ev
	r.head++
}

// replayFrom returns the retained events with sequence above from, oldest
// first. ok is false when events past from have already been evicted: the
// subscriber must re-fetch a depth snapshot and resume from its sequence.
func (r *ring) replayFrom(from uint64) ([]*Event, bool) {
	if r.head == 0 {
		return nil, from >= r.floor
	}

	retained := r.head
	if retained > uint64(len(r.buf)) {
		retained = uint64(len(r.buf))
	}
	start := r.head - retained

	oldest := r.buf[start&r.mask]
	if from+1 < oldest.Sequence {
		return nil, false
	}

	var events []*Event
	for i := start; i < r.head; i++ {
		ev := r.buf[i&r.mask]
		if ev.Sequence > from {
			events = append(events, ev)
		}
	}

	return events, true
}
