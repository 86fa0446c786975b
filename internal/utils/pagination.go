// Package utils holds small helpers shared by the admin API and services.
package utils

import "strconv"

// AtoiDefault parses s as an int, returning def when s is empty or invalid.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// PageBounds returns the [start, end) slice bounds of a 1-based page over n
// items. Pages past the end (or invalid input) yield an empty range.
func PageBounds(page, pageSize, n int) (start, end int) {
	if page < 1 || pageSize < 1 {
		return 0, 0
	}
	start = (page - 1) * pageSize
	if start >= n || start < 0 {
		return n, n
	}
	return start, min(start+pageSize, n)
}

// TotalPages is ceil(total/pageSize), or 0 for a non-positive page size.
func TotalPages(total int64, pageSize int) int {
	if pageSize < 1 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
