// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package set provides a generic set type used throughout the
// statement-distribution engine for knowledge relations (who knows what),
// advertiser lists, and implicit-view relay-parent membership.
package set

import (
	"fmt"
	"strings"

	"golang.org/x/exp/maps"
)

// minSetSize is the minimum capacity allocated for a non-empty set.
const minSetSize = 16

// Set is a set of elements.
type Set[T comparable] map[T]struct{}

// Of returns a Set initialized with elts.
func Of[T comparable](elts ...T) Set[T] {
	s := NewSet[T](len(elts))
	s.Add(elts...)
	return s
}

// NewSet returns a new set with initial capacity size. More or fewer than
// size elements can be added to this set.
func NewSet[T comparable](size int) Set[T] {
	if size < 0 {
		return Set[T]{}
	}
	return make(map[T]struct{}, size)
}

func (s *Set[T]) resize(size int) {
	if *s == nil {
		if minSetSize > size {
			size = minSetSize
		}
		*s = make(map[T]struct{}, size)
	}
}

// Add adds all the elements to this set. Elements already present are
// no-ops.
func (s *Set[T]) Add(elts ...T) {
	s.resize(2 * len(elts))
	for _, elt := range elts {
		(*s)[elt] = struct{}{}
	}
}

// Union adds all the elements from other into this set.
func (s *Set[T]) Union(other Set[T]) {
	s.resize(2 * other.Len())
	for elt := range other {
		(*s)[elt] = struct{}{}
	}
}

// Difference removes all the elements in other from s.
func (s *Set[T]) Difference(other Set[T]) {
	for elt := range other {
		delete(*s, elt)
	}
}

// Contains returns true iff the set contains elt.
func (s Set[T]) Contains(elt T) bool {
	_, ok := s[elt]
	return ok
}

// Overlaps returns true if the intersection of s and big is non-empty.
func (s Set[T]) Overlaps(big Set[T]) bool {
	small := s
	if small.Len() > big.Len() {
		small, big = big, small
	}
	for elt := range small {
		if _, ok := big[elt]; ok {
			return true
		}
	}
	return false
}

// Len returns the number of elements in this set.
func (s Set[_]) Len() int {
	return len(s)
}

// Clear empties this set.
func (s *Set[_]) Clear() {
	clear(*s)
}

// List converts this set into a slice, in unspecified order.
func (s Set[T]) List() []T {
	return maps.Keys(s)
}

// Equals returns true if the sets contain the same elements.
func (s Set[T]) Equals(other Set[T]) bool {
	return maps.Equal(s, other)
}

// Remove deletes elts from the set.
func (s *Set[T]) Remove(elts ...T) {
	for _, elt := range elts {
		delete(*s, elt)
	}
}

// String returns the string representation of this set.
func (s Set[T]) String() string {
	sb := strings.Builder{}
	sb.WriteString("{")
	first := true
	for elt := range s {
		if !first {
			sb.WriteString(", ")
		}
		first = false
		sb.WriteString(fmt.Sprintf("%v", elt))
	}
	sb.WriteString("}")
	return sb.String()
}
