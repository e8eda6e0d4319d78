package zipper

import (
	"sort"
	"strings"

	"github.com/emilianohg/cvsbrowse/internal/changes"
	"github.com/emilianohg/cvsbrowse/internal/cvs"
	"github.com/emilianohg/cvsbrowse/internal/models"
)

// Group collects the locations that point at the same physical repository.
type Group struct {
	Key       string
	Locations []models.Location
}

// LocationResult holds the changelists loaded for one location.
type LocationResult struct {
	Location    models.Location
	ChangeLists []*changes.ChangeList
}

// GroupResult is the merged, newest-first view of one group.
type GroupResult struct {
	Group       Group
	ChangeLists []*changes.ChangeList
}

// GroupKey returns the repository identity of a location. Access method and
// credentials do not take part in it, so :pserver: and :ext: checkouts of the
// same server end up together.
func GroupKey(loc models.Location) string {
	raw := strings.TrimSpace(loc.CvsRoot)
	root, err := cvs.ParseRoot(raw)
	if err != nil {
		return raw
	}
	return root.Identity()
}

func BuildGroup(key string, locs []models.Location) Group {
	g := Group{Key: key}
	for _, loc := range locs {
		if GroupKey(loc) == key {
			g.Locations = append(g.Locations, loc)
		}
	}
	return g
}

// Groups partitions locs by GroupKey. Groups are sorted by key and keep the
// input order of their locations.
func Groups(locs []models.Location) []Group {
	index := map[string]int{}
	var groups []Group
	for _, loc := range locs {
		key := GroupKey(loc)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key})
		}
		groups[i].Locations = append(groups[i].Locations, loc)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].Key < groups[j].Key
	})
	return groups
}

// Number is the presentation sort key of a changelist.
func Number(cl *changes.ChangeList) int64 {
	return cl.CommitDate.UnixMilli()
}

type mergeKey struct {
	number int64
	key    changes.GroupKey
}

// sourced is a changelist together with the location that produced it.
type sourced struct {
	location int64
	list     *changes.ChangeList
}

// folded is a merged changelist and the locations already folded into it.
type folded struct {
	list      *changes.ChangeList
	locations map[int64]bool
}

// accepts reports whether src may be folded into f: it comes from a location
// not yet part of f and carries no other revision of a path f already holds.
func (f *folded) accepts(src sourced) bool {
	if f.locations[src.location] {
		return false
	}
	for _, file := range src.list.Files {
		if f.list.ContainsFile(file.Path) && !f.list.ContainsFileRevision(file.Path, file.Revision) {
			return false
		}
	}
	return true
}

// Zip merges per-location results into per-repository groups. Changelists of
// the same commit seen through several locations are folded into one.
// Changelists of one location are never folded together.
func Zip(results []LocationResult) []GroupResult {
	locs := make([]models.Location, 0, len(results))
	byLocation := map[int64][]*changes.ChangeList{}
	for _, r := range results {
		locs = append(locs, r.Location)
		byLocation[r.Location.ID] = append(byLocation[r.Location.ID], r.ChangeLists...)
	}

	var out []GroupResult
	for _, g := range Groups(dedupLocations(locs)) {
		var lists []sourced
		for _, loc := range g.Locations {
			for _, cl := range byLocation[loc.ID] {
				lists = append(lists, sourced{location: loc.ID, list: cl})
			}
		}
		out = append(out, GroupResult{Group: g, ChangeLists: merge(lists)})
	}
	return out
}

func dedupLocations(locs []models.Location) []models.Location {
	seen := map[int64]bool{}
	out := locs[:0:0]
	for _, loc := range locs {
		if seen[loc.ID] {
			continue
		}
		seen[loc.ID] = true
		out = append(out, loc)
	}
	return out
}

func merge(lists []sourced) []*changes.ChangeList {
	index := map[mergeKey][]*folded{}
	var merged []*changes.ChangeList
	for _, src := range lists {
		cl := src.list
		k := mergeKey{number: Number(cl), key: cl.Key()}

		var target *folded
		for _, candidate := range index[k] {
			if candidate.accepts(src) {
				target = candidate
				break
			}
		}
		if target == nil {
			target = &folded{
				list:      changes.NewChangeList(cl.Number, cl.Author, cl.Message, cl.Branch, cl.CommitDate, cl.RootPath, cl.Window()),
				locations: map[int64]bool{},
			}
			index[k] = append(index[k], target)
			merged = append(merged, target.list)
		}

		target.locations[src.location] = true
		for _, f := range cl.Files {
			target.list.AddFileRevision(f.Path, f.Revision)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		ni, nj := Number(merged[i]), Number(merged[j])
		if ni != nj {
			return ni > nj
		}
		return merged[i].Number > merged[j].Number
	})
	return merged
}
