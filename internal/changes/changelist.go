package changes

import (
	"time"

	"github.com/emilianohg/cvsbrowse/internal/revision"
)

// DefaultWindow is how far from a changelist's commit date a file revision may
// be and still join it.
const DefaultWindow = 2 * time.Minute

// GroupKey identifies revisions that may belong to the same changelist.
type GroupKey struct {
	Branch   string
	OnBranch bool
	Author   string
	Message  string
}

func NewGroupKey(branch *string, author, message string) GroupKey {
	key := GroupKey{Author: author, Message: message}
	if branch != nil {
		key.Branch = *branch
		key.OnBranch = true
	}
	return key
}

type FileRevision struct {
	Path     string
	Revision revision.Number
}

// ChangeList is a commit reconstructed from per-file revisions.
type ChangeList struct {
	Number     int64
	Author     string
	Message    string
	Branch     *string
	CommitDate time.Time
	RootPath   string
	Files      []FileRevision

	window time.Duration
	paths  map[string]int
}

// NewChangeList creates an empty changelist anchored at commitDate. Dates are
// kept at millisecond precision in UTC, matching the cache format.
func NewChangeList(number int64, author, message string, branch *string, commitDate time.Time, rootPath string, window time.Duration) *ChangeList {
	if window <= 0 {
		window = DefaultWindow
	}
	var b *string
	if branch != nil {
		name := *branch
		b = &name
	}
	return &ChangeList{
		Number:     number,
		Author:     author,
		Message:    message,
		Branch:     b,
		CommitDate: NormalizeTime(commitDate),
		RootPath:   rootPath,
		window:     window,
		paths:      map[string]int{},
	}
}

// NormalizeTime truncates t to milliseconds in UTC.
func NormalizeTime(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

func (c *ChangeList) Key() GroupKey {
	return NewGroupKey(c.Branch, c.Author, c.Message)
}

// BranchName returns the branch for display, HEAD for the trunk.
func (c *ChangeList) BranchName() string {
	if c.Branch == nil {
		return HeadBranch
	}
	return *c.Branch
}

func (c *ChangeList) Window() time.Duration {
	if c.window <= 0 {
		return DefaultWindow
	}
	return c.window
}

// ContainsDate reports whether t lies within the window around the commit date.
func (c *ChangeList) ContainsDate(t time.Time) bool {
	diff := t.Sub(c.CommitDate)
	if diff < 0 {
		diff = -diff
	}
	return diff <= c.Window()
}

func (c *ChangeList) ContainsFile(path string) bool {
	_, ok := c.index()[path]
	return ok
}

// ContainsFileRevision reports whether the exact revision of path is a member.
func (c *ChangeList) ContainsFileRevision(path string, rev revision.Number) bool {
	i, ok := c.index()[path]
	if !ok {
		return false
	}
	return c.Files[i].Revision.Equal(rev)
}

// AddFileRevision appends a member. It returns false when the path is already present.
func (c *ChangeList) AddFileRevision(path string, rev revision.Number) bool {
	idx := c.index()
	if _, ok := idx[path]; ok {
		return false
	}
	idx[path] = len(c.Files)
	c.Files = append(c.Files, FileRevision{Path: path, Revision: rev})
	return true
}

func (c *ChangeList) index() map[string]int {
	if c.paths == nil || len(c.paths) != len(c.Files) {
		c.paths = make(map[string]int, len(c.Files))
		for i, f := range c.Files {
			c.paths[f.Path] = i
		}
	}
	return c.paths
}
