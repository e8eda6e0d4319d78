package changes

import (
	"strings"
	"time"
)

// DefaultDateAfter is the lower date bound used when a query sets none.
var DefaultDateAfter = time.Date(1970, time.March, 2, 0, 0, 0, 0, time.UTC)

// Filter selects changelists after reconstruction. Zero fields match everything.
type Filter struct {
	DateAfter  *time.Time
	DateBefore *time.Time
	Author     string
	Text       string
	Branch     *string
}

// Accepts reports whether cl passes every configured criterion.
func (f Filter) Accepts(cl *ChangeList) bool {
	if f.DateAfter != nil && cl.CommitDate.Before(*f.DateAfter) {
		return false
	}
	if f.DateBefore != nil && cl.CommitDate.After(*f.DateBefore) {
		return false
	}
	if f.Author != "" && !strings.EqualFold(f.Author, cl.Author) {
		return false
	}
	if f.Text != "" && !strings.Contains(strings.ToLower(cl.Message), strings.ToLower(f.Text)) {
		return false
	}
	if f.Branch != nil && !strings.EqualFold(*f.Branch, cl.BranchName()) {
		return false
	}
	return true
}

// Apply keeps the accepted changelists, preserving order.
func (f Filter) Apply(lists []*ChangeList) []*ChangeList {
	out := lists[:0:0]
	for _, cl := range lists {
		if f.Accepts(cl) {
			out = append(out, cl)
		}
	}
	return out
}

// Range returns the date bounds to query, applying DefaultDateAfter.
func (f Filter) Range() (time.Time, *time.Time) {
	from := DefaultDateAfter
	if f.DateAfter != nil {
		from = *f.DateAfter
	}
	return from, f.DateBefore
}
