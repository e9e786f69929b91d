package consistency

import "sort"

// blobSet is an immutable-by-convention set of blob ids. Every operation
// returns a new set and leaves its inputs untouched.
type blobSet map[string]struct{}

func newBlobSet(ids []string) blobSet {
	s := make(blobSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s blobSet) union(other blobSet) blobSet {
	out := make(blobSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// minus returns the ids of s that are not in other.
func (s blobSet) minus(other blobSet) blobSet {
	out := make(blobSet)
	for id := range s {
		if _, ok := other[id]; !ok {
			out[id] = struct{}{}
		}
	}
	return out
}

func (s blobSet) sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
