package domain

import (
	"fmt"
	"strings"
)

// OrphanPolicy decides what happens to the tasks of a deleted column.
type OrphanPolicy int

const (
	// OrphanKeep leaves the tasks in place; no column renders them afterwards.
	OrphanKeep OrphanPolicy = iota
	// OrphanCascade deletes the tasks together with their column.
	OrphanCascade
)

func (p OrphanPolicy) String() string {
	switch p {
	case OrphanCascade:
		return "cascade"
	default:
		return "keep"
	}
}

// ParseOrphanPolicy accepts "keep" (or empty) and "cascade".
func ParseOrphanPolicy(s string) (OrphanPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "keep":
		return OrphanKeep, nil
	case "cascade":
		return OrphanCascade, nil
	default:
		return OrphanKeep, fmt.Errorf("unknown orphan policy %q", s)
	}
}
