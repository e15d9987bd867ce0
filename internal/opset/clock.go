package opset

import "weave/pkg/types"

// Clock is a per-actor vector of maximum applied op counters. It covers
// op id (c, a) iff clock[a] >= c. A nil/empty Clock represents the
// pre-document state and covers nothing (the
// `length_at(obj, [])` boundary case).
type Clock struct {
	maxByActor map[int]uint64
}

// NewClock returns an empty clock.
func NewClock() *Clock {
	return &Clock{maxByActor: make(map[int]uint64)}
}

// Clone returns an independent copy.
func (c *Clock) Clone() *Clock {
	out := NewClock()
	for k, v := range c.maxByActor {
		out.maxByActor[k] = v
	}
	return out
}

// Covers reports whether id has been applied as of this clock.
func (c *Clock) Covers(id types.OpID) bool {
	if c == nil {
		return false
	}
	if id.IsRoot() {
		return true
	}
	return c.maxByActor[id.Actor] >= id.Counter
}

// Advance records that id has been applied, raising the actor's max
// counter if id.Counter is higher than what is already recorded.
func (c *Clock) Advance(id types.OpID) {
	if id.Counter > c.maxByActor[id.Actor] {
		c.maxByActor[id.Actor] = id.Counter
	}
}

// Merge unions two clocks, taking the per-actor maximum.
func (c *Clock) Merge(other *Clock) *Clock {
	out := c.Clone()
	if other == nil {
		return out
	}
	for k, v := range other.maxByActor {
		if v > out.maxByActor[k] {
			out.maxByActor[k] = v
		}
	}
	return out
}

// shiftActors renumbers the clock after an actor-table insertion at
// pos: every tracked index >= pos moves up by one.
func (c *Clock) shiftActors(pos int) {
	shifted := make(map[int]uint64, len(c.maxByActor))
	for a, v := range c.maxByActor {
		if a >= pos {
			a++
		}
		shifted[a] = v
	}
	c.maxByActor = shifted
}

// ActorMax returns the highest counter seen for actor index a.
func (c *Clock) ActorMax(a int) uint64 {
	if c == nil {
		return 0
	}
	return c.maxByActor[a]
}
