package util

// Set is an unordered collection of distinct comparable values. It is not
// safe for concurrent use
type Set[K comparable] map[K]struct{}

// SetOf creates a set containing the given elements
func SetOf[K comparable](elements ...K) Set[K] {
	s := make(Set[K], len(elements))
	for _, elem := range elements {
		s.Add(elem)
	}
	return s
}

// Add inserts key into the set
func (s Set[K]) Add(key K) {
	s[key] = struct{}{}
}

// Remove deletes key from the set
func (s Set[K]) Remove(key K) {
	delete(s, key)
}

// Contains reports whether key is in the set
func (s Set[K]) Contains(key K) bool {
	_, ok := s[key]
	return ok
}

// Len returns the number of elements
func (s Set[K]) Len() int {
	return len(s)
}

// Values returns the elements in no particular order
func (s Set[K]) Values() []K {
	res := make([]K, 0, len(s))
	for k := range s {
		res = append(res, k)
	}
	return res
}
