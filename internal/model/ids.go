package model

import (
	"fmt"
	"strconv"
	"strings"
)

// FormatID builds a document identifier from a prefix and number, e.g. "P-100".
func FormatID(prefix string, number int) string {
	return fmt.Sprintf("%s-%d", prefix, number)
}

// ParseID splits an identifier into prefix and number. The boolean is false
// when id has no numeric suffix.
func ParseID(id string) (string, int, bool) {
	i := strings.LastIndexByte(id, '-')
	if i < 0 {
		return id, 0, false
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil || n < 0 {
		return id, 0, false
	}
	return id[:i], n, true
}

// CompareIDs orders identifiers by prefix, then numbered before unnumbered,
// then numerically, so "P-99" sorts before "P-100" and both before "P-draft".
// Remaining ties fall back to byte order. The order is total, so sorting is
// deterministic for any mix of identifiers.
func CompareIDs(a, b string) int {
	pa, na, oka := idKey(a)
	pb, nb, okb := idKey(b)
	if c := strings.Compare(pa, pb); c != 0 {
		return c
	}
	switch {
	case oka && !okb:
		return -1
	case !oka && okb:
		return 1
	case na < nb:
		return -1
	case na > nb:
		return 1
	}
	return strings.Compare(a, b)
}

// idKey is the prefix before the last '-' (the whole id when there is none)
// and the numeric suffix, if any.
func idKey(id string) (string, int, bool) {
	if prefix, n, ok := ParseID(id); ok {
		return prefix, n, true
	}
	if i := strings.LastIndexByte(id, '-'); i >= 0 {
		return id[:i], 0, false
	}
	return id, 0, false
}
