package tracking

import "github.com/banshee-data/area-monitor/internal/geometry"

// historyArena stores every track's centroid history in one flat slab of
// fixed-capacity ring slots. A track owns a slot index for its lifetime;
// the slot returns to the free list on eviction, so history storage never
// grows per track.
type historyArena struct {
	capacity int
	points   []geometry.Point // len = slots * capacity
	head     []int            // next write position per slot
	length   []int            // filled entries per slot
	free     []int
}

func newHistoryArena(capacity int) *historyArena {
	if capacity < 1 {
		capacity = 1
	}
	return &historyArena{capacity: capacity}
}

// alloc returns an empty slot, growing the slab only when the free list is
// exhausted.
func (a *historyArena) alloc() int {
	if n := len(a.free); n > 0 {
		slot := a.free[n-1]
		a.free = a.free[:n-1]
		a.head[slot] = 0
		a.length[slot] = 0
		return slot
	}
	slot := len(a.head)
	a.points = append(a.points, make([]geometry.Point, a.capacity)...)
	a.head = append(a.head, 0)
	a.length = append(a.length, 0)
	return slot
}

func (a *historyArena) release(slot int) {
	a.length[slot] = 0
	a.head[slot] = 0
	a.free = append(a.free, slot)
}

// push appends p to the slot, overwriting the oldest entry when full.
func (a *historyArena) push(slot int, p geometry.Point) {
	base := slot * a.capacity
	a.points[base+a.head[slot]] = p
	a.head[slot] = (a.head[slot] + 1) % a.capacity
	if a.length[slot] < a.capacity {
		a.length[slot]++
	}
}

// values copies the slot's history oldest first.
func (a *historyArena) values(slot int) []geometry.Point {
	n := a.length[slot]
	out := make([]geometry.Point, n)
	base := slot * a.capacity
	start := (a.head[slot] - n + a.capacity) % a.capacity
	for i := 0; i < n; i++ {
		out[i] = a.points[base+(start+i)%a.capacity]
	}
	return out
}

func (a *historyArena) reset() {
	a.points = a.points[:0]
	a.head = a.head[:0]
	a.length = a.length[:0]
	a.free = a.free[:0]
}
