package common

import "strconv"

// AtoiDefault parses value as an int, returning def when it is empty,
// malformed or not positive.
func AtoiDefault(value string, def int) int {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
