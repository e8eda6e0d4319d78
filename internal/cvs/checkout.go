package cvs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Checkout is what a working directory's CVS/ admin files say about it.
type Checkout struct {
	Dir     string
	CvsRoot string
	Module  string
}

// ReadCheckout reads CVS/Root and CVS/Repository of dir. Older clients write an
// absolute repository path; it is made relative to the CVSROOT.
func ReadCheckout(dir string) (*Checkout, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	root, err := readAdminFile(abs, "Root")
	if err != nil {
		return nil, err
	}
	repository, err := readAdminFile(abs, "Repository")
	if err != nil {
		return nil, err
	}

	module := repository
	if parsed, err := ParseRoot(root); err == nil && strings.HasPrefix(repository, "/") {
		module = strings.TrimPrefix(strings.TrimPrefix(repository, parsed.Repository), "/")
	}
	if module == "" {
		module = "."
	}

	return &Checkout{Dir: abs, CvsRoot: root, Module: module}, nil
}

// Entry is one file line of CVS/Entries.
type Entry struct {
	Name     string
	Revision string
	// Tag is the sticky branch or tag of the file, nil on the trunk or when a
	// sticky date is set.
	Tag *string
}

// ErrNoEntry is returned when CVS/Entries does not list a file.
var ErrNoEntry = errors.New("file is not under CVS control")

// ReadEntry looks up name in dir's CVS/Entries. Lines have the form
// /name/revision/timestamp/options/tagdate; directory lines start with D.
func ReadEntry(dir, name string) (*Entry, error) {
	data, err := os.ReadFile(filepath.Join(dir, "CVS", "Entries"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s is not a CVS checkout: missing CVS/Entries", dir)
		}
		return nil, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\r")
		if !strings.HasPrefix(line, "/") {
			continue
		}
		fields := strings.SplitN(line[1:], "/", 5)
		if len(fields) < 5 || fields[0] != name {
			continue
		}

		entry := &Entry{Name: fields[0], Revision: fields[1]}
		if tagdate := fields[4]; strings.HasPrefix(tagdate, "T") && len(tagdate) > 1 {
			tag := tagdate[1:]
			entry.Tag = &tag
		}
		return entry, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoEntry, filepath.Join(dir, name))
}

func readAdminFile(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, "CVS", name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s is not a CVS checkout: missing CVS/%s", dir, name)
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
