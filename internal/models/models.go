package models

import "time"

// DeadState is the rlog state of a revision that removed the file.
const DeadState = "dead"

// Location is a registered CVS checkout whose committed changes can be browsed.
type Location struct {
	ID        int64
	RootPath  string // local working directory
	CvsRoot   string // empty for offline locations
	Module    string
	CreatedAt time.Time
}

// IsOffline reports whether the location has no CVSROOT to query.
func (l Location) IsOffline() bool {
	return l.CvsRoot == ""
}

type SymbolicName struct {
	Name     string
	Revision string
}

// Revision is one rlog revision entry of a single file.
type Revision struct {
	Number   string
	Date     time.Time
	Author   string
	State    string
	Lines    string
	CommitID string
	Branches string // semicolon separated branch numbers, e.g. "1.2.2;1.2.4"
	Message  string
}

// LogInformation is the rlog record for one file.
type LogInformation struct {
	File          string // module-relative path, e.g. "proj/src/main.c"
	RcsFile       string
	Head          string
	SymbolicNames []SymbolicName
	Revisions     []Revision
}
