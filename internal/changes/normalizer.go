package changes

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/emilianohg/cvsbrowse/internal/models"
	"github.com/emilianohg/cvsbrowse/internal/revision"
)

// initiallyAddedOnBranch marks the dead trunk revision CVS writes when a file is
// first created on a branch. It is not a real deletion.
const initiallyAddedOnBranch = "was initially added on branch"

// Event is a single file revision ready to be folded into a changelist.
type Event struct {
	Path      string
	Revision  revision.Number
	Timestamp time.Time
	Author    string
	Message   string
	State     string
	Branch    *string
}

func (e Event) Key() GroupKey {
	return NewGroupKey(e.Branch, e.Author, e.Message)
}

// IsPhantomDead reports whether r is the dead placeholder recorded for a file
// that was added directly on a branch.
func IsPhantomDead(r models.Revision) bool {
	return r.State == models.DeadState && strings.Contains(r.Message, initiallyAddedOnBranch)
}

// Normalizer turns rlog records of one root into events.
type Normalizer struct {
	rootPath string
}

func NewNormalizer(rootPath string) *Normalizer {
	return &Normalizer{rootPath: rootPath}
}

func (n *Normalizer) RootPath() string {
	return n.rootPath
}

// Accepts reports whether file lies under the normalizer's root.
func (n *Normalizer) Accepts(file string) bool {
	return IsAncestor(n.rootPath, file)
}

// FromLog converts one file's log. It returns nil for files outside the root.
func (n *Normalizer) FromLog(log models.LogInformation) ([]Event, error) {
	if !n.Accepts(log.File) {
		return nil, nil
	}

	var events []Event
	for _, r := range log.Revisions {
		if IsPhantomDead(r) {
			continue
		}

		number, err := revision.Parse(r.Number)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", log.File, err)
		}
		branch, err := ResolveBranchName(number, r.Branches, log.SymbolicNames)
		if err != nil {
			return nil, fmt.Errorf("%s revision %s: %w", log.File, r.Number, err)
		}

		events = append(events, Event{
			Path:      log.File,
			Revision:  number,
			Timestamp: r.Date,
			Author:    r.Author,
			Message:   r.Message,
			State:     r.State,
			Branch:    branch,
		})
	}
	return events, nil
}

// Normalize flattens logs into events sorted by timestamp. Events with equal
// timestamps keep their input order.
func (n *Normalizer) Normalize(logs []models.LogInformation) ([]Event, error) {
	var events []Event
	for _, log := range logs {
		converted, err := n.FromLog(log)
		if err != nil {
			return nil, err
		}
		events = append(events, converted...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events, nil
}

// IsAncestor reports whether child equals parent or lies beneath it. Both
// separators are accepted. An empty or "." parent contains every path.
func IsAncestor(parent, child string) bool {
	parent = strings.TrimSuffix(toSlash(parent), "/")
	child = toSlash(child)
	if parent == "" || parent == "." {
		return true
	}
	if child == parent {
		return true
	}
	return strings.HasPrefix(child, parent+"/")
}

func toSlash(p string) string {
	return strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
}
