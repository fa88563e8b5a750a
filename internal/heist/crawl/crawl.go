// Package crawl is the movement rule of a cohort between the staging area
// and a room. It is pure: the party coordinator owns the positions and
// calls Step under its lock, and the audit verifier replays positions
// through CheckFormation.
//
// Both directions are computed in "progress" coordinates: inward progress
// is the position itself, outward progress is target-position. The
// boundary (the room going in, the staging area coming out) is always
// progress == target, and it is the only place where members may stack.
package crawl

import (
	"fmt"
	"sort"
)

type Direction int

const (
	Inward Direction = iota
	Outward
)

func (d Direction) String() string {
	if d == Outward {
		return "outward"
	}
	return "inward"
}

// Situation is where the moving member sits in the formation.
type Situation int

const (
	// Rear is the least advanced member.
	Rear Situation = iota
	// Front is the most advanced member.
	Front
	// Between has members on both sides.
	Between
)

func (s Situation) String() string {
	switch s {
	case Rear:
		return "rear"
	case Front:
		return "front"
	default:
		return "between"
	}
}

type Move struct {
	From      int
	To        int
	Situation Situation
}

func (m Move) Moved() bool { return m.From != m.To }

// Step returns the largest legal move of member, trying step sizes from
// agility down to 1. A move is legal when the destination is free (or is
// the boundary) and every gap it creates or changes stays within maxSep,
// including the gap left behind when the member overtakes a neighbor.
// When nothing is legal the returned move has From == To.
func Step(positions []int, member, agility, target, maxSep int, dir Direction) Move {
	prog := progress(positions, target, dir)
	cur := prog[member]
	mv := Move{From: positions[member], To: positions[member], Situation: situate(prog, member)}

	for s := min(agility, target-cur); s >= 1; s-- {
		if legal(prog, member, cur+s, target, maxSep) {
			mv.To = fromProgress(cur+s, target, dir)
			return mv
		}
	}
	return mv
}

// Arrived reports whether every member has reached the boundary of dir.
func Arrived(positions []int, target int, dir Direction) bool {
	for _, p := range positions {
		if dir == Inward && p != target {
			return false
		}
		if dir == Outward && p != 0 {
			return false
		}
	}
	return true
}

// CheckFormation verifies the separation and no-overlap invariants of a
// cohort whose room is target distance away.
func CheckFormation(positions []int, target, maxSep int) error {
	for _, p := range positions {
		if p < 0 || p > target {
			return fmt.Errorf("position %d out of range [0,%d]: %v", p, target, positions)
		}
	}
	sorted := append([]int(nil), positions...)
	sort.Ints(sorted)
	for i := 1; i < len(sorted); i++ {
		a, b := sorted[i-1], sorted[i]
		if b-a > maxSep {
			return fmt.Errorf("gap %d between %d and %d exceeds %d: %v", b-a, a, b, maxSep, positions)
		}
		if a == b && a != 0 && a != target {
			return fmt.Errorf("members overlap at %d: %v", a, positions)
		}
	}
	return nil
}

func progress(positions []int, target int, dir Direction) []int {
	out := make([]int, len(positions))
	for i, p := range positions {
		if dir == Outward {
			out[i] = target - p
		} else {
			out[i] = p
		}
	}
	return out
}

func fromProgress(q, target int, dir Direction) int {
	if dir == Outward {
		return target - q
	}
	return q
}

func situate(prog []int, member int) Situation {
	rear, front := 0, 0
	for i, q := range prog {
		if q < prog[rear] {
			rear = i
		}
		if q > prog[front] {
			front = i
		}
	}
	switch member {
	case rear:
		return Rear
	case front:
		return Front
	default:
		return Between
	}
}

func legal(prog []int, member, future, boundary, maxSep int) bool {
	cur := prog[member]
	var (
		lo, hi, oldLo, oldHi             int
		hasLo, hasHi, hasOldLo, hasOldHi bool
	)
	for i, q := range prog {
		if i == member {
			continue
		}
		if q == future && future != boundary {
			return false
		}
		// Nearest neighbors around the destination.
		if q <= future && (!hasLo || q > lo) {
			lo, hasLo = q, true
		}
		if q >= future && (!hasHi || q < hi) {
			hi, hasHi = q, true
		}
		// Nearest neighbors around the current spot.
		if q <= cur && (!hasOldLo || q > oldLo) {
			oldLo, hasOldLo = q, true
		}
		if q > cur && (!hasOldHi || q < oldHi) {
			oldHi, hasOldHi = q, true
		}
	}
	if hasLo && future-lo > maxSep {
		return false
	}
	if hasHi && hi-future > maxSep {
		return false
	}
	// Overtaking oldHi leaves oldLo and oldHi adjacent.
	if hasOldLo && hasOldHi && oldHi <= future && oldHi-oldLo > maxSep {
		return false
	}
	return true
}
