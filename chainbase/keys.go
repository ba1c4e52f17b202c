package chainbase

import "cmp"

// Pair is a two-field composite key ordered lexicographically.
type Pair[A, B cmp.Ordered] struct {
	First  A
	Second B
}

// MakePair builds a Pair.
func MakePair[A, B cmp.Ordered](a A, b B) Pair[A, B] { return Pair[A, B]{First: a, Second: b} }

// ComparePairs orders pairs by First, then Second.
func ComparePairs[A, B cmp.Ordered](x, y Pair[A, B]) int {
	return Compare2(x.First, x.Second, y.First, y.Second)
}

// Triple is a three-field composite key ordered lexicographically.
type Triple[A, B, C cmp.Ordered] struct {
	First  A
	Second B
	Third  C
}

// MakeTriple builds a Triple.
func MakeTriple[A, B, C cmp.Ordered](a A, b B, c C) Triple[A, B, C] {
	return Triple[A, B, C]{First: a, Second: b, Third: c}
}

// CompareTriples orders triples by First, then Second, then Third.
func CompareTriples[A, B, C cmp.Ordered](x, y Triple[A, B, C]) int {
	return Compare3(x.First, x.Second, x.Third, y.First, y.Second, y.Third)
}
