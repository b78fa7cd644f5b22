package util

// Difference returns the items of a that are not present in b, keeping the order of a
func Difference[T comparable](a []T, b []T) []T {
	present := make(map[T]struct{}, len(b))
	for _, item := range b {
		present[item] = struct{}{}
	}

	var difference []T
	for _, item := range a {
		if _, ok := present[item]; !ok {
			difference = append(difference, item)
		}
	}

	return difference
}
