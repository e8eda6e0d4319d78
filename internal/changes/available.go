package changes

import (
	"github.com/emilianohg/cvsbrowse/internal/revision"
)

// IsChangeLocallyAvailable reports whether a committed change needs no update
// of the local file. local may be zero when the file is not checked out; a nil
// localTag means the trunk.
func IsChangeLocallyAvailable(local, change revision.Number, localTag *string, cl *ChangeList) bool {
	if !local.IsZero() && !change.IsZero() {
		if local.Len() != change.Len() {
			// trunk against branch
			return true
		}
		for i := 2; i < local.Len(); i += 2 {
			if local.Component(i) != change.Component(i) {
				return true
			}
		}
	}

	if !sameTag(localTag, cl.Branch) {
		return true
	}
	return !local.IsZero() && revision.Compare(local, change) >= 0
}

func sameTag(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
