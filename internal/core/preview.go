package core

import (
	"strings"

	"airr.io/student-analytics/internal/store"
)

// FilterRecords keeps records whose name, school name or city contains query,
// ignoring case. A blank query returns ds unchanged.
func FilterRecords(ds store.Dataset, query string) store.Dataset {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return ds
	}
	out := store.Dataset{}
	for _, r := range ds {
		if strings.Contains(strings.ToLower(r.Name), query) ||
			strings.Contains(strings.ToLower(r.SchoolName), query) ||
			strings.Contains(strings.ToLower(r.City), query) {
			out = append(out, r)
		}
	}
	return out
}
