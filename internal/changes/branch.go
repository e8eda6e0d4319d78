package changes

import (
	"fmt"
	"strings"

	"github.com/emilianohg/cvsbrowse/internal/models"
	"github.com/emilianohg/cvsbrowse/internal/revision"
)

// HeadBranch is the display name of the trunk.
const HeadBranch = "HEAD"

// BranchTag derives the magic branch number (x.y.0.z) that CVS records in the
// symbolic names table for the branch a revision belongs to. It returns ok=false
// for trunk revisions that start no branch.
func BranchTag(number revision.Number, branches string) (revision.Number, bool, error) {
	if number.Len() >= 4 {
		onBranch := number.Component(number.Len() - 2)
		base, err := number.WithTailRemoved(2)
		if err != nil {
			return revision.Number{}, false, err
		}
		return base.WithTailAppended(0, onBranch), true, nil
	}

	branches = strings.TrimSpace(branches)
	if branches == "" {
		return revision.Number{}, false, nil
	}

	first := strings.TrimSpace(strings.Split(branches, ";")[0])
	branchNumber, err := revision.Parse(first)
	if err != nil {
		return revision.Number{}, false, fmt.Errorf("branches field %q: %w", branches, err)
	}
	last := branchNumber.Component(branchNumber.Len() - 1)
	base, err := branchNumber.WithTailRemoved(1)
	if err != nil {
		return revision.Number{}, false, err
	}
	return base.WithTailAppended(0, last), true, nil
}

// ResolveBranchName maps a revision to the symbolic branch name it belongs to.
// A nil result means the trunk.
func ResolveBranchName(number revision.Number, branches string, names []models.SymbolicName) (*string, error) {
	tag, ok, err := BranchTag(number, branches)
	if err != nil || !ok {
		return nil, err
	}

	tagString := tag.String()
	for _, name := range names {
		if strings.TrimSpace(name.Revision) == tagString {
			branch := name.Name
			return &branch, nil
		}
	}
	return nil, nil
}
