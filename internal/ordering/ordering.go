// Package ordering computes order indexes for drag-and-drop reordering.
package ordering

import "math"

// MinGap is the smallest distance between neighbours before a list is renumbered.
const MinGap = 1e-6

// Update assigns Order to the element at Index.
type Update struct {
	Index int
	Order float64
}

// Move removes the element at from and reinserts it at to, returning a new slice.
// Out-of-range positions return a copy of items unchanged.
func Move[T any](items []T, from, to int) []T {
	out := make([]T, len(items))
	copy(out, items)
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) || from == to {
		return out
	}
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]T{moved}, out[to:]...)...)
	return out
}

// Sequential returns 1..n.
func Sequential(n int) []float64 {
	orders := make([]float64, n)
	for i := range orders {
		orders[i] = float64(i + 1)
	}
	return orders
}

// First returns an order that sorts ahead of every value in orders.
func First(orders []float64) float64 {
	if len(orders) == 0 {
		return 1
	}
	lowest := math.Inf(1)
	for _, o := range orders {
		lowest = math.Min(lowest, o)
	}
	return lowest - 1
}

// Last returns an order that sorts after every value in orders.
func Last(orders []float64) float64 {
	if len(orders) == 0 {
		return 1
	}
	highest := math.Inf(-1)
	for _, o := range orders {
		highest = math.Max(highest, o)
	}
	return highest + 1
}

// Plan computes the order changes for a list that already reflects a move: orders holds
// the current order values in display order and moved is the index of the element that
// was dropped. Normally only the moved element changes and takes the midpoint of its
// neighbours. When that gap has collapsed every element is renumbered and only the
// entries whose value changed are returned.
func Plan(orders []float64, moved int) []Update {
	if moved < 0 || moved >= len(orders) {
		return nil
	}

	var next float64
	switch {
	case len(orders) == 1:
		if orders[0] != 0 {
			return nil
		}
		return []Update{{Index: 0, Order: 1}}
	case moved == 0:
		next = orders[1] - 1
	case moved == len(orders)-1:
		next = orders[moved-1] + 1
	default:
		prev, after := orders[moved-1], orders[moved+1]
		if after-prev < 2*MinGap {
			return renumber(orders)
		}
		next = prev + (after-prev)/2
	}

	if next == orders[moved] {
		return nil
	}
	return []Update{{Index: moved, Order: next}}
}

func renumber(orders []float64) []Update {
	var updates []Update
	for i, want := range Sequential(len(orders)) {
		if orders[i] != want {
			updates = append(updates, Update{Index: i, Order: want})
		}
	}
	return updates
}
