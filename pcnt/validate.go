package pcnt

import "golang.org/x/exp/constraints"

// inRange reports lo <= v && v < hi.
func inRange[T constraints.Integer](v, lo, hi T) bool {
	return v >= lo && v < hi
}
