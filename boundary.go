package userdata

import (
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

// boundaryFill is the run of '=' that brackets a boundary's digits,
// matching the boundaries Python's email package (and therefore
// cloud-init's make-mime) generates.
const boundaryFill = "==============="

// NewBoundary returns a fresh multipart boundary of the form
// "===============<digits>==".
//
// The digits are the decimal rendering of a 64-bit hash of 16 random
// bytes. Boundaries need only be unique, not secret.
func NewBoundary() string {
	seed := uuid.New()
	return formatBoundary(xxhash.Sum64(seed[:]))
}

func formatBoundary(n uint64) string {
	var b strings.Builder
	b.Grow(len(boundaryFill) + 20 + 2)
	b.WriteString(boundaryFill)
	b.WriteString(strconv.FormatUint(n, 10))
	b.WriteString("==")
	return b.String()
}

// ValidBoundary reports whether s has the shape produced by
// [NewBoundary]: 15 '=', one or more decimal digits, then "==".
func ValidBoundary(s string) bool {
	digits, ok := strings.CutPrefix(s, boundaryFill)
	if !ok {
		return false
	}
	digits, ok = strings.CutSuffix(digits, "==")
	if !ok || digits == "" {
		return false
	}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
