package domain

import "slices"

// ArrayMove removes the element at from and inserts it at index to of the
// shortened sequence. The input is never modified; a new slice is returned
// unless the move is the identity or an index is out of range, in which case
// s itself is returned.
func ArrayMove[T any](s []T, from, to int) []T {
	if !movable(len(s), from, to) {
		return s
	}
	item := s[from]
	out := slices.Delete(slices.Clone(s), from, from+1)
	return slices.Insert(out, to, item)
}
